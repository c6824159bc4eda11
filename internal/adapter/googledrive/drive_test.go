package googledrive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/n3m01726/cloudcaddy-sub000/internal/adapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

var _ adapter.StorageAdapter = (*DriveAdapter)(nil)
var _ adapter.Thumbnailer = (*DriveAdapter)(nil)
var _ adapter.RecentLister = (*DriveAdapter)(nil)

// fakeDrive is a small in-memory stand-in for the Drive v3 REST API.
type fakeDrive struct {
	mu      sync.Mutex
	files   map[string]*drive.File
	content map[string][]byte
	queries []string
	nextID  int
	server  *httptest.Server
}

var (
	inParentsRe = regexp.MustCompile(`'([^']*)' in parents`)
	nameRe      = regexp.MustCompile(`name contains '([^']*)'`)
)

func newFakeDrive(t *testing.T) *fakeDrive {
	t.Helper()
	f := &fakeDrive{files: map[string]*drive.File{}, content: map[string][]byte{}}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeDrive) add(file *drive.File, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[file.Id] = file
	if content != "" {
		f.content[file.Id] = []byte(content)
	}
}

func (f *fakeDrive) adapter(t *testing.T) *DriveAdapter {
	t.Helper()
	d, err := NewDriveAdapter(context.Background(), f.server.Client(), "https://app.test", "user1",
		option.WithEndpoint(f.server.URL+"/"))
	require.NoError(t, err)
	return d
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"error": map[string]any{"code": 404, "message": "File not found"},
	})
}

func (f *fakeDrive) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, "/thumb/"):
		if strings.HasSuffix(path, "=s800") {
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("big-thumb"))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/files"):
		f.list(w, r)
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/files"):
		f.create(w, r)
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/copy"):
		id := strings.TrimSuffix(strings.TrimPrefix(path, "/files/"), "/copy")
		f.copy(w, r, id)
	case strings.HasPrefix(path, "/files/"):
		id := strings.TrimPrefix(path, "/files/")
		id = strings.TrimSuffix(id, "/export")
		file, ok := f.files[id]
		if !ok {
			notFound(w)
			return
		}
		switch r.Method {
		case http.MethodGet:
			if r.URL.Query().Get("alt") == "media" || strings.HasSuffix(path, "/export") {
				_, _ = w.Write(f.content[id])
				return
			}
			writeJSON(w, http.StatusOK, file)
		case http.MethodPatch:
			remove := r.URL.Query().Get("removeParents")
			parents := []string{}
			for _, p := range file.Parents {
				if p != remove {
					parents = append(parents, p)
				}
			}
			if add := r.URL.Query().Get("addParents"); add != "" {
				parents = append(parents, add)
			}
			file.Parents = parents
			writeJSON(w, http.StatusOK, file)
		case http.MethodDelete:
			delete(f.files, id)
			w.WriteHeader(http.StatusNoContent)
		}
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func (f *fakeDrive) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	f.queries = append(f.queries, q)
	out := []*drive.File{}
	for _, file := range f.files {
		if m := inParentsRe.FindStringSubmatch(q); m != nil && !contains(file.Parents, m[1]) {
			continue
		}
		if m := nameRe.FindStringSubmatch(q); m != nil && !strings.Contains(strings.ToLower(file.Name), strings.ToLower(m[1])) {
			continue
		}
		if strings.Contains(q, "mimeType != ") && file.MimeType == folderMIMEType {
			continue
		}
		out = append(out, file)
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": out})
}

func (f *fakeDrive) create(w http.ResponseWriter, r *http.Request) {
	meta := &drive.File{}
	var content []byte
	mediaType, params, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(r.Body, params["boundary"])
		part, err := mr.NextPart()
		if err == nil {
			_ = json.NewDecoder(part).Decode(meta)
		}
		if part, err = mr.NextPart(); err == nil {
			content, _ = io.ReadAll(part)
		}
	} else {
		_ = json.NewDecoder(r.Body).Decode(meta)
	}
	f.nextID++
	meta.Id = "new-" + string(rune('0'+f.nextID))
	meta.Size = int64(len(content))
	meta.ModifiedTime = "2024-05-01T10:00:00.000Z"
	f.files[meta.Id] = meta
	f.content[meta.Id] = content
	writeJSON(w, http.StatusOK, meta)
}

func (f *fakeDrive) copy(w http.ResponseWriter, r *http.Request, id string) {
	src, ok := f.files[id]
	if !ok {
		notFound(w)
		return
	}
	req := &drive.File{}
	_ = json.NewDecoder(r.Body).Decode(req)
	cp := *src
	f.nextID++
	cp.Id = "copy-" + string(rune('0'+f.nextID))
	cp.Name = req.Name
	if cp.Name == "" {
		cp.Name = "Copy of " + src.Name
	}
	if len(req.Parents) > 0 {
		cp.Parents = req.Parents
	}
	f.files[cp.Id] = &cp
	writeJSON(w, http.StatusOK, &cp)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestDriveAdapter_ListFiles_Root(t *testing.T) {
	fd := newFakeDrive(t)
	fd.add(&drive.File{Id: "f1", Name: "a.txt", MimeType: "text/plain", Size: 12, Parents: []string{"root"}, ModifiedTime: "2024-01-02T03:04:05.000Z"}, "hello")
	fd.add(&drive.File{Id: "f2", Name: "b.pdf", MimeType: "application/pdf", Parents: []string{"root"}}, "")
	fd.add(&drive.File{Id: "d1", Name: "Docs", MimeType: folderMIMEType, Parents: []string{"root"}}, "")
	fd.add(&drive.File{Id: "x1", Name: "nested.txt", MimeType: "text/plain", Parents: []string{"d1"}}, "")

	files, err := fd.adapter(t).ListFiles(context.Background(), "root", adapter.ListOptions{})
	require.NoError(t, err)
	require.Len(t, files, 3)

	folders := 0
	for _, f := range files {
		assert.Equal(t, adapter.GoogleDrive, f.Provider)
		if f.Type == adapter.TypeFolder {
			folders++
			assert.Equal(t, int64(0), f.Size)
		}
		if f.ID == "f1" {
			assert.Equal(t, int64(12), f.Size)
			assert.Equal(t, "2024-01-02T03:04:05Z", f.ModifiedTime)
		}
	}
	assert.Equal(t, 1, folders)
	assert.Contains(t, fd.queries[0], "'root' in parents and trashed = false")
}

func TestDriveAdapter_ListFiles_DefaultsToRoot(t *testing.T) {
	fd := newFakeDrive(t)
	_, err := fd.adapter(t).ListFiles(context.Background(), "", adapter.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, "'root' in parents and trashed = false", fd.queries[0])
}

func TestDriveAdapter_Search_EscapesQuery(t *testing.T) {
	fd := newFakeDrive(t)
	fd.add(&drive.File{Id: "f1", Name: "Budget 2024.xlsx", Parents: []string{"root"}}, "")

	files, err := fd.adapter(t).Search(context.Background(), "budget", adapter.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, files, 1)

	_, err = fd.adapter(t).Search(context.Background(), "it's", adapter.SearchOptions{})
	require.NoError(t, err)
	assert.Contains(t, fd.queries[1], `name contains 'it\'s'`)
}

func TestDriveAdapter_RecordShape(t *testing.T) {
	fd := newFakeDrive(t)
	fd.add(&drive.File{
		Id: "f1", Name: "a.txt", MimeType: "text/plain", Parents: []string{"root"},
		WebViewLink: "https://drive.test/view", Md5Checksum: "abc", OwnedByMe: true,
	}, "")

	rec, err := fd.adapter(t).GetFileMetadata(context.Background(), "f1")
	require.NoError(t, err)

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))

	allowed := map[string]bool{
		"id": true, "name": true, "type": true, "mimeType": true, "size": true,
		"modifiedTime": true, "createdTime": true, "provider": true,
		adapter.ExtraWebViewLink: true, adapter.ExtraThumbnailLink: true,
		adapter.ExtraIconLink: true, adapter.ExtraParentID: true,
	}
	for k := range raw {
		assert.True(t, allowed[k], "unexpected field %q", k)
	}
	assert.Equal(t, "https://drive.test/view", raw[adapter.ExtraWebViewLink])
}

func TestDriveAdapter_GetFileMetadata_NotFound(t *testing.T) {
	fd := newFakeDrive(t)
	_, err := fd.adapter(t).GetFileMetadata(context.Background(), "missing")

	require.Error(t, err)
	assert.True(t, errors.Is(err, adapter.ErrNotFound))
	var pErr *adapter.ProviderError
	require.True(t, errors.As(err, &pErr))
	assert.Equal(t, "getFileMetadata", pErr.Operation)
	assert.Equal(t, adapter.GoogleDrive, pErr.Provider)
}

func TestDriveAdapter_MoveFile_ResolvesOldParent(t *testing.T) {
	fd := newFakeDrive(t)
	fd.add(&drive.File{Id: "src", Name: "src", MimeType: folderMIMEType, Parents: []string{"root"}}, "")
	fd.add(&drive.File{Id: "dst", Name: "dst", MimeType: folderMIMEType, Parents: []string{"root"}}, "")
	fd.add(&drive.File{Id: "f1", Name: "a.txt", Parents: []string{"src", "other"}}, "")
	d := fd.adapter(t)
	ctx := context.Background()

	_, err := d.MoveFile(ctx, "f1", "dst", adapter.MoveOptions{})
	require.NoError(t, err)

	rec, err := d.GetFileMetadata(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, []string{"other", "dst"}, fd.files["f1"].Parents)
	assert.Equal(t, "other", rec.Extra(adapter.ExtraParentID))

	inSrc, err := d.ListFiles(ctx, "src", adapter.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, inSrc)
	inDst, err := d.ListFiles(ctx, "dst", adapter.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, inDst, 1)
}

func TestDriveAdapter_UploadAndDownload(t *testing.T) {
	fd := newFakeDrive(t)
	d := fd.adapter(t)
	ctx := context.Background()

	rec, err := d.UploadFile(ctx, []byte("payload"), "notes.txt", adapter.UploadOptions{MimeType: "text/plain"})
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", rec.Name)
	assert.Equal(t, []string{"root"}, fd.files[rec.ID].Parents)

	data, err := d.DownloadFile(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestDriveAdapter_CopyAndDelete(t *testing.T) {
	fd := newFakeDrive(t)
	fd.add(&drive.File{Id: "f1", Name: "a.txt", Parents: []string{"root"}}, "")
	d := fd.adapter(t)
	ctx := context.Background()

	cp, err := d.CopyFile(ctx, "f1", "", adapter.CopyOptions{NewName: "b.txt"})
	require.NoError(t, err)
	assert.Equal(t, "b.txt", cp.Name)
	assert.NotEqual(t, "f1", cp.ID)

	ok, err := d.DeleteFile(ctx, "f1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.DeleteFile(ctx, "f1")
	assert.False(t, ok)
	assert.True(t, errors.Is(err, adapter.ErrNotFound))
}

func TestDriveAdapter_CreateFolder(t *testing.T) {
	fd := newFakeDrive(t)
	rec, err := fd.adapter(t).CreateFolder(context.Background(), "New", "")
	require.NoError(t, err)
	assert.Equal(t, adapter.TypeFolder, rec.Type)
	assert.Equal(t, []string{"root"}, fd.files[rec.ID].Parents)
}

func TestDriveAdapter_GetPreviewURL(t *testing.T) {
	fd := newFakeDrive(t)
	fd.add(&drive.File{Id: "doc", Name: "Plan", MimeType: "application/vnd.google-apps.document", WebViewLink: "https://docs.test/doc"}, "")
	fd.add(&drive.File{Id: "bin", Name: "a.pdf", MimeType: "application/pdf", WebViewLink: "https://drive.test/bin"}, "")
	d := fd.adapter(t)
	ctx := context.Background()

	native, err := d.GetPreviewURL(ctx, "doc", adapter.PreviewOptions{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "https://docs.test/doc", native.PreviewURL)

	opaque, err := d.GetPreviewURL(ctx, "bin", adapter.PreviewOptions{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "https://app.test/api/files/proxy/google_drive/bin?userId=u1", opaque.PreviewURL)
	assert.Equal(t, "https://app.test/api/files/proxy/google_drive/bin/thumbnail?userId=u1", opaque.ThumbnailURL)
}

func TestDriveAdapter_GetThumbnail(t *testing.T) {
	fd := newFakeDrive(t)
	fd.add(&drive.File{Id: "img", Name: "a.png", MimeType: "image/png"}, "raw-png")
	fd.add(&drive.File{Id: "pdf", Name: "a.pdf", MimeType: "application/pdf", ThumbnailLink: fd.server.URL + "/thumb/abc=s220"}, "")
	fd.add(&drive.File{Id: "bare", Name: "a.bin", MimeType: "application/octet-stream"}, "")
	d := fd.adapter(t)
	ctx := context.Background()

	data, ct, err := d.GetThumbnail(ctx, "img")
	require.NoError(t, err)
	assert.Equal(t, "raw-png", string(data))
	assert.Equal(t, "image/png", ct)

	data, ct, err = d.GetThumbnail(ctx, "pdf")
	require.NoError(t, err)
	assert.Equal(t, "big-thumb", string(data))
	assert.Equal(t, "image/png", ct)

	_, _, err = d.GetThumbnail(ctx, "bare")
	assert.True(t, errors.Is(err, adapter.ErrThumbnailUnavailable))
}

func TestUpgradeThumbnailSize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"upgrades plain size", "https://lh3.test/abc=s220", "https://lh3.test/abc=s800"},
		{"upgrades cropped size", "https://lh3.test/abc=s220-c", "https://lh3.test/abc=s800"},
		{"leaves link without size", "https://lh3.test/abc", "https://lh3.test/abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := upgradeThumbnailSize(tt.in); got != tt.want {
				t.Errorf("upgradeThumbnailSize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewConstructor_RequiresToken(t *testing.T) {
	ctor := NewConstructor(Config{})
	_, err := ctor(context.Background(), adapter.Credentials{UserID: "u1"})
	assert.Error(t, err)
}
