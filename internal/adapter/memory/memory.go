package memory

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/n3m01726/cloudcaddy-sub000/internal/adapter"
)

const (
	rootID     = "root"
	folderMIME = "application/vnd.google-apps.folder"

	maxDemoContentSize = 256 * 1024 // 256KB
	maxDemoTitleLength = 255
	maxDemoItemCount   = 50
)

type item struct {
	record  adapter.FileRecord
	parents []string
	content []byte
	deleted bool
}

// MemoryAdapter implements adapter.StorageAdapter over an in-process map.
// It backs the demo vendor in dev mode and stands in for real vendors in tests.
type MemoryAdapter struct {
	provider adapter.ProviderName
	userID   string
	limits   bool
	now      func() time.Time

	mu       sync.RWMutex
	items    map[string]*item
	failures map[string]error
	calls    map[string]int
}

// NewMemoryAdapter creates an empty adapter reporting itself as provider.
func NewMemoryAdapter(provider adapter.ProviderName, userID string) *MemoryAdapter {
	return &MemoryAdapter{
		provider: provider,
		userID:   userID,
		now:      time.Now,
		items:    make(map[string]*item),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

// WithDemoLimits enables the size and count limits applied to demo users.
func (m *MemoryAdapter) WithDemoLimits() *MemoryAdapter {
	m.limits = true
	return m
}

// WithClock replaces the time source used for timestamps.
func (m *MemoryAdapter) WithClock(now func() time.Time) *MemoryAdapter {
	m.now = now
	return m
}

// Fail makes every later call of operation return err. A nil err clears it.
func (m *MemoryAdapter) Fail(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, operation)
		return
	}
	m.failures[operation] = err
}

// Calls returns how many times operation was invoked.
func (m *MemoryAdapter) Calls(operation string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[operation]
}

// Seed stores a file directly and returns its record. parentID "" means root.
func (m *MemoryAdapter) Seed(name string, content []byte, parentID string) adapter.FileRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insert(name, "", content, parentOrRoot(parentID), false).record
}

// SeedFolder stores a folder directly and returns its record.
func (m *MemoryAdapter) SeedFolder(name, parentID string) adapter.FileRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insert(name, folderMIME, nil, parentOrRoot(parentID), true).record
}

func (m *MemoryAdapter) Provider() adapter.ProviderName {
	return m.provider
}

// begin records a call and returns the injected failure for it, if any.
func (m *MemoryAdapter) begin(op string) error {
	m.calls[op]++
	if err, ok := m.failures[op]; ok {
		return adapter.WrapError(m.provider, op, err, 0)
	}
	return nil
}

func (m *MemoryAdapter) notFound(op, id string) error {
	return adapter.WrapError(m.provider, op, fmt.Errorf("%w: %s", adapter.ErrNotFound, id), 0)
}

func (m *MemoryAdapter) ListFiles(ctx context.Context, folderRef string, opts adapter.ListOptions) ([]adapter.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("listFiles"); err != nil {
		return nil, err
	}

	target := parentOrRoot(folderRef)
	if target != rootID {
		if it, ok := m.items[target]; !ok || it.deleted {
			return nil, m.notFound("listFiles", target)
		}
	}

	files := []adapter.FileRecord{}
	for _, it := range m.items {
		if it.deleted || !hasParent(it.parents, target) {
			continue
		}
		files = append(files, it.record)
	}
	sortByName(files)
	if opts.PageSize > 0 && len(files) > opts.PageSize {
		files = files[:opts.PageSize]
	}
	return files, nil
}

func (m *MemoryAdapter) Search(ctx context.Context, query string, opts adapter.SearchOptions) ([]adapter.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("search"); err != nil {
		return nil, err
	}

	files := []adapter.FileRecord{}
	for _, it := range m.items {
		if it.deleted || !containsIgnoreCase(it.record.Name, query) {
			continue
		}
		files = append(files, it.record)
	}
	sortByName(files)
	if limit := adapter.PageSize(opts.PageSize); len(files) > limit {
		files = files[:limit]
	}
	return files, nil
}

func (m *MemoryAdapter) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("downloadFile"); err != nil {
		return nil, err
	}
	it, ok := m.items[fileID]
	if !ok || it.deleted {
		return nil, m.notFound("downloadFile", fileID)
	}
	if it.record.IsFolder() {
		return nil, adapter.WrapError(m.provider, "downloadFile", fmt.Errorf("%s is a folder", fileID), http.StatusBadRequest)
	}
	out := make([]byte, len(it.content))
	copy(out, it.content)
	return out, nil
}

func (m *MemoryAdapter) UploadFile(ctx context.Context, content []byte, name string, opts adapter.UploadOptions) (*adapter.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("uploadFile"); err != nil {
		return nil, err
	}
	if err := m.checkLimits(name, len(content)); err != nil {
		return nil, adapter.WrapError(m.provider, "uploadFile", err, http.StatusBadRequest)
	}
	parent := parentOrRoot(opts.FolderID)
	if parent != rootID {
		if it, ok := m.items[parent]; !ok || it.deleted || !it.record.IsFolder() {
			return nil, m.notFound("uploadFile", parent)
		}
	}
	mime := opts.MimeType
	if mime == "" {
		mime = "application/octet-stream"
	}
	rec := m.insert(name, mime, content, parent, false).record
	return &rec, nil
}

func (m *MemoryAdapter) GetFileMetadata(ctx context.Context, fileID string) (*adapter.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("getFileMetadata"); err != nil {
		return nil, err
	}
	it, ok := m.items[fileID]
	if !ok || it.deleted {
		return nil, m.notFound("getFileMetadata", fileID)
	}
	rec := it.record
	return &rec, nil
}

func (m *MemoryAdapter) GetPreviewURL(ctx context.Context, fileID string, opts adapter.PreviewOptions) (*adapter.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("getPreviewUrl"); err != nil {
		return nil, err
	}
	it, ok := m.items[fileID]
	if !ok || it.deleted {
		return nil, m.notFound("getPreviewUrl", fileID)
	}
	rec := it.record
	rec.PreviewURL, rec.DownloadURL, rec.ThumbnailURL = adapter.ProxyURLs("", m.provider, fileID, opts.UserID)
	return &rec, nil
}

func (m *MemoryAdapter) MoveFile(ctx context.Context, fileID, newParentID string, opts adapter.MoveOptions) (*adapter.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("moveFile"); err != nil {
		return nil, err
	}
	it, ok := m.items[fileID]
	if !ok || it.deleted {
		return nil, m.notFound("moveFile", fileID)
	}
	target := parentOrRoot(newParentID)
	if target != rootID {
		if p, ok := m.items[target]; !ok || p.deleted || !p.record.IsFolder() {
			return nil, m.notFound("moveFile", target)
		}
	}

	old := opts.OldParentID
	if old == "" && len(it.parents) > 0 {
		old = it.parents[0]
	}
	parents := []string{}
	for _, p := range it.parents {
		if p != old && p != target {
			parents = append(parents, p)
		}
	}
	it.parents = append(parents, target)
	it.record.ModifiedTime = adapter.FormatTime(m.now())
	adapter.SetExtra(&it.record, adapter.ExtraParentID, it.parents[0])
	rec := it.record
	return &rec, nil
}

func (m *MemoryAdapter) CopyFile(ctx context.Context, fileID, newParentID string, opts adapter.CopyOptions) (*adapter.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("copyFile"); err != nil {
		return nil, err
	}
	it, ok := m.items[fileID]
	if !ok || it.deleted {
		return nil, m.notFound("copyFile", fileID)
	}
	name := opts.NewName
	if name == "" {
		name = "Copy of " + it.record.Name
	}
	parent := parentOrRoot(newParentID)
	if parent == rootID && newParentID == "" && len(it.parents) > 0 {
		parent = it.parents[0]
	}
	if err := m.checkLimits(name, len(it.content)); err != nil {
		return nil, adapter.WrapError(m.provider, "copyFile", err, http.StatusBadRequest)
	}
	content := make([]byte, len(it.content))
	copy(content, it.content)
	rec := m.insert(name, it.record.MimeType, content, parent, it.record.IsFolder()).record
	return &rec, nil
}

func (m *MemoryAdapter) DeleteFile(ctx context.Context, fileID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("deleteFile"); err != nil {
		return false, err
	}
	it, ok := m.items[fileID]
	if !ok || it.deleted {
		return false, m.notFound("deleteFile", fileID)
	}
	m.deleteTree(fileID)
	return true, nil
}

func (m *MemoryAdapter) CreateFolder(ctx context.Context, name, parentRef string) (*adapter.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("createFolder"); err != nil {
		return nil, err
	}
	if err := m.checkLimits(name, 0); err != nil {
		return nil, adapter.WrapError(m.provider, "createFolder", err, http.StatusBadRequest)
	}
	parent := parentOrRoot(parentRef)
	if parent != rootID {
		if p, ok := m.items[parent]; !ok || p.deleted {
			return nil, m.notFound("createFolder", parent)
		}
	}
	rec := m.insert(name, folderMIME, nil, parent, true).record
	return &rec, nil
}

func (m *MemoryAdapter) GetFolderInfo(ctx context.Context, folderRef string) (*adapter.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("getFolderInfo"); err != nil {
		return nil, err
	}
	id := parentOrRoot(folderRef)
	if id == rootID {
		return &adapter.FileRecord{ID: rootID, Name: "My Files", Type: adapter.TypeFolder, MimeType: folderMIME, Provider: m.provider}, nil
	}
	it, ok := m.items[id]
	if !ok || it.deleted || !it.record.IsFolder() {
		return nil, m.notFound("getFolderInfo", id)
	}
	rec := it.record
	return &rec, nil
}

// GetThumbnail returns the content of image files.
func (m *MemoryAdapter) GetThumbnail(ctx context.Context, fileID string) ([]byte, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("getThumbnail"); err != nil {
		return nil, "", err
	}
	it, ok := m.items[fileID]
	if !ok || it.deleted {
		return nil, "", m.notFound("getThumbnail", fileID)
	}
	if !strings.HasPrefix(it.record.MimeType, "image/") {
		return nil, "", adapter.WrapError(m.provider, "getThumbnail", adapter.ErrThumbnailUnavailable, http.StatusNotFound)
	}
	return append([]byte(nil), it.content...), it.record.MimeType, nil
}

// RecentFiles lists non-folder items, most recently modified first.
func (m *MemoryAdapter) RecentFiles(ctx context.Context, limit int) ([]adapter.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("recentFiles"); err != nil {
		return nil, err
	}
	files := []adapter.FileRecord{}
	for _, it := range m.items {
		if it.deleted || it.record.IsFolder() {
			continue
		}
		files = append(files, it.record)
	}
	sort.SliceStable(files, func(i, j int) bool { return files[i].ModifiedTime > files[j].ModifiedTime })
	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}
	return files, nil
}

func (m *MemoryAdapter) insert(name, mime string, content []byte, parent string, folder bool) *item {
	now := adapter.FormatTime(m.now())
	rec := adapter.FileRecord{
		ID:           uuid.New().String(),
		Name:         name,
		Type:         adapter.TypeFile,
		MimeType:     mime,
		Size:         int64(len(content)),
		ModifiedTime: now,
		CreatedTime:  now,
		Provider:     m.provider,
	}
	if folder {
		rec.Type = adapter.TypeFolder
		rec.MimeType = folderMIME
		rec.Size = 0
	}
	adapter.SetExtra(&rec, adapter.ExtraParentID, parent)
	it := &item{record: rec, parents: []string{parent}, content: content}
	m.items[rec.ID] = it
	return it
}

func (m *MemoryAdapter) deleteTree(id string) {
	m.items[id].deleted = true
	for childID, it := range m.items {
		if !it.deleted && hasParent(it.parents, id) {
			m.deleteTree(childID)
		}
	}
}

func (m *MemoryAdapter) checkLimits(name string, size int) error {
	if !m.limits {
		return nil
	}
	if len(name) > maxDemoTitleLength {
		return fmt.Errorf("name too long (max %d characters)", maxDemoTitleLength)
	}
	if size > maxDemoContentSize {
		return fmt.Errorf("content too large (max %d bytes)", maxDemoContentSize)
	}
	live := 0
	for _, it := range m.items {
		if !it.deleted {
			live++
		}
	}
	if live >= maxDemoItemCount {
		return fmt.Errorf("item limit reached for demo mode (max %d items)", maxDemoItemCount)
	}
	return nil
}

func parentOrRoot(ref string) string {
	if ref == "" || ref == "/" {
		return rootID
	}
	return ref
}

func hasParent(parents []string, id string) bool {
	for _, p := range parents {
		if p == id {
			return true
		}
	}
	return false
}

func sortByName(files []adapter.FileRecord) {
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].IsFolder() != files[j].IsFolder() {
			return files[i].IsFolder()
		}
		return strings.ToLower(files[i].Name) < strings.ToLower(files[j].Name)
	})
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// Provider hands out one adapter per (vendor, user) so demo data survives across requests.
type Provider struct {
	mu       sync.Mutex
	adapters map[string]*MemoryAdapter
	limits   bool
}

// NewProvider creates a Provider. Demo limits apply when limits is true.
func NewProvider(limits bool) *Provider {
	return &Provider{adapters: make(map[string]*MemoryAdapter), limits: limits}
}

// Adapter returns the adapter for a vendor name and user, creating it on first use.
func (p *Provider) Adapter(name adapter.ProviderName, userID string) *MemoryAdapter {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := string(name) + "|" + userID
	a, ok := p.adapters[key]
	if !ok {
		a = NewMemoryAdapter(name, userID)
		if p.limits {
			a.WithDemoLimits()
		}
		p.adapters[key] = a
	}
	return a
}

// Constructor returns a registry constructor that reports adapters as vendor name.
func (p *Provider) Constructor(name adapter.ProviderName) adapter.Constructor {
	return func(ctx context.Context, creds adapter.Credentials) (adapter.StorageAdapter, error) {
		if creds.UserID == "" {
			return nil, fmt.Errorf("user id is required")
		}
		return p.Adapter(name, creds.UserID), nil
	}
}
