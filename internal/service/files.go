package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/n3m01726/cloudcaddy-sub000/internal/adapter"
	"github.com/n3m01726/cloudcaddy-sub000/internal/model"
	"github.com/n3m01726/cloudcaddy-sub000/internal/store"
	"github.com/sirupsen/logrus"
)

// ListResult is the merged outcome of a listing or search across accounts.
type ListResult struct {
	Files   []adapter.FileRecord `json:"files"`
	Errors  []ProviderFailure    `json:"errors,omitempty"`
	Message string               `json:"message,omitempty"`
}

// FileService runs single-file operations and cross-account listings.
type FileService struct {
	aggregator
	metadata MetadataRepository
}

// NewFileService creates a FileService.
func NewFileService(registry *adapter.Registry, accounts AccountLoader, metadata MetadataRepository, opts Options, log logrus.FieldLogger) *FileService {
	return &FileService{
		aggregator: newAggregator(registry, accounts, opts, log),
		metadata:   metadata,
	}
}

// List returns the children of folderRef in every connected account, or only in
// provider when it is set. An empty folderRef lists each vendor's root.
func (s *FileService) List(ctx context.Context, userID, provider, folderRef string) (*ListResult, error) {
	return s.collect(ctx, userID, provider, "listFiles", func(ctx context.Context, a adapter.StorageAdapter) ([]adapter.FileRecord, error) {
		return a.ListFiles(ctx, folderRef, adapter.ListOptions{})
	})
}

// Search runs query against every connected account, or only provider when set.
func (s *FileService) Search(ctx context.Context, userID, provider, query string, pageSize int) (*ListResult, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidArgument)
	}
	return s.collect(ctx, userID, provider, "search", func(ctx context.Context, a adapter.StorageAdapter) ([]adapter.FileRecord, error) {
		return a.Search(ctx, query, adapter.SearchOptions{PageSize: pageSize})
	})
}

func (s *FileService) collect(ctx context.Context, userID, provider, op string, fn func(ctx context.Context, a adapter.StorageAdapter) ([]adapter.FileRecord, error)) (*ListResult, error) {
	accounts, err := s.accountsFor(ctx, userID, provider)
	if err != nil {
		return nil, err
	}
	res := &ListResult{Files: []adapter.FileRecord{}}
	if len(accounts) == 0 {
		res.Message = NoAccountsMessage
		return res, nil
	}

	branch := func(ctx context.Context, _ model.CloudAccount, a adapter.StorageAdapter) ([]adapter.FileRecord, error) {
		return fn(ctx, a)
	}
	for _, r := range fanOut(ctx, s.aggregator, accounts, op, branch) {
		if r.err != nil {
			res.Errors = append(res.Errors, ProviderFailure{Provider: r.account.Provider, Error: r.err.Error()})
			continue
		}
		res.Files = append(res.Files, r.value...)
	}
	s.enrichAll(ctx, userID, res.Files)
	return res, nil
}

// enrichAll attaches local metadata. A metadata store failure leaves records unenriched.
func (s *FileService) enrichAll(ctx context.Context, userID string, files []adapter.FileRecord) {
	if s.metadata == nil || len(files) == 0 {
		return
	}
	rows, err := s.metadata.ListForUser(ctx, userID)
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("failed to load file metadata")
		return
	}
	idx := metadataIndex(rows)
	for i := range files {
		enrich(&files[i], idx[model.MetadataKey(string(files[i].Provider), files[i].ID)])
	}
}

func (s *FileService) enrichOne(ctx context.Context, userID string, f *adapter.FileRecord) {
	if s.metadata == nil {
		return
	}
	m, err := s.metadata.Get(ctx, userID, string(f.Provider), f.ID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.WithError(err).WithField("file_id", f.ID).Warn("failed to load file metadata")
		}
		return
	}
	enrich(f, m)
}

// GetMetadata returns a single record with local metadata attached.
func (s *FileService) GetMetadata(ctx context.Context, userID, provider, fileID string) (*adapter.FileRecord, error) {
	a, err := s.adapterFor(ctx, userID, provider)
	if err != nil {
		return nil, err
	}
	f, err := a.GetFileMetadata(ctx, fileID)
	if err != nil {
		return nil, err
	}
	s.enrichOne(ctx, userID, f)
	return f, nil
}

// Preview returns the record with preview, download and thumbnail URLs.
func (s *FileService) Preview(ctx context.Context, userID, provider, fileID string) (*adapter.FileRecord, error) {
	a, err := s.adapterFor(ctx, userID, provider)
	if err != nil {
		return nil, err
	}
	f, err := a.GetPreviewURL(ctx, fileID, adapter.PreviewOptions{UserID: userID})
	if err != nil {
		return nil, err
	}
	s.enrichOne(ctx, userID, f)
	return f, nil
}

// Download returns a file's content together with its record. The record's name and
// MIME type describe the returned bytes, so exported native documents carry the export format.
func (s *FileService) Download(ctx context.Context, userID, provider, fileID string) ([]byte, *adapter.FileRecord, error) {
	a, err := s.adapterFor(ctx, userID, provider)
	if err != nil {
		return nil, nil, err
	}
	f, err := a.GetFileMetadata(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}
	if f.IsFolder() {
		return nil, nil, fmt.Errorf("%w: %s is a folder", ErrInvalidArgument, fileID)
	}
	content, err := a.DownloadFile(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}
	f.Name, f.MimeType = adapter.AsDownloaded(*f)
	return content, f, nil
}

// Thumbnail returns thumbnail bytes and their content type.
func (s *FileService) Thumbnail(ctx context.Context, userID, provider, fileID string) ([]byte, string, error) {
	a, err := s.adapterFor(ctx, userID, provider)
	if err != nil {
		return nil, "", err
	}
	t, ok := a.(adapter.Thumbnailer)
	if !ok {
		return nil, "", adapter.WrapError(a.Provider(), "getThumbnail", adapter.ErrThumbnailUnavailable, http.StatusNotFound)
	}
	return t.GetThumbnail(ctx, fileID)
}

// Upload stores content as a new file.
func (s *FileService) Upload(ctx context.Context, userID, provider string, content []byte, name string, opts adapter.UploadOptions) (*adapter.FileRecord, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidArgument)
	}
	a, err := s.adapterFor(ctx, userID, provider)
	if err != nil {
		return nil, err
	}
	return a.UploadFile(ctx, content, name, opts)
}

// CreateFolder creates a folder under parentRef.
func (s *FileService) CreateFolder(ctx context.Context, userID, provider, name, parentRef string) (*adapter.FileRecord, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidArgument)
	}
	a, err := s.adapterFor(ctx, userID, provider)
	if err != nil {
		return nil, err
	}
	return a.CreateFolder(ctx, name, parentRef)
}

// FolderInfo returns the record of a folder.
func (s *FileService) FolderInfo(ctx context.Context, userID, provider, folderRef string) (*adapter.FileRecord, error) {
	a, err := s.adapterFor(ctx, userID, provider)
	if err != nil {
		return nil, err
	}
	return a.GetFolderInfo(ctx, folderRef)
}

// Move reparents a file. oldParentID may be empty.
func (s *FileService) Move(ctx context.Context, userID, provider, fileID, newParentID, oldParentID string) (*adapter.FileRecord, error) {
	a, err := s.adapterFor(ctx, userID, provider)
	if err != nil {
		return nil, err
	}
	return a.MoveFile(ctx, fileID, newParentID, adapter.MoveOptions{OldParentID: oldParentID})
}

// Copy duplicates a file inside the same account.
func (s *FileService) Copy(ctx context.Context, userID, provider, fileID, newParentID, newName string) (*adapter.FileRecord, error) {
	a, err := s.adapterFor(ctx, userID, provider)
	if err != nil {
		return nil, err
	}
	return a.CopyFile(ctx, fileID, newParentID, adapter.CopyOptions{NewName: newName})
}

// Delete removes a file and then its local metadata. Metadata cleanup never fails the call.
func (s *FileService) Delete(ctx context.Context, userID, provider, fileID string) (bool, error) {
	a, err := s.adapterFor(ctx, userID, provider)
	if err != nil {
		return false, err
	}
	ok, err := a.DeleteFile(ctx, fileID)
	if err != nil {
		return false, err
	}
	removeMetadata(ctx, s.metadata, s.log, userID, provider, fileID)
	return ok, nil
}

func removeMetadata(ctx context.Context, repo MetadataRepository, log logrus.FieldLogger, userID, provider, fileID string) {
	if repo == nil {
		return
	}
	if err := repo.Delete(ctx, userID, provider, fileID); err != nil && !errors.Is(err, store.ErrNotFound) {
		log.WithError(err).WithFields(logrus.Fields{"provider": provider, "file_id": fileID}).
			Warn("failed to delete file metadata")
	}
}

// Starred returns the live records of every starred file, merged with local metadata.
// Rows whose provider is disconnected or whose file no longer resolves are skipped.
func (s *FileService) Starred(ctx context.Context, userID string) ([]adapter.FileRecord, error) {
	out := []adapter.FileRecord{}
	if s.metadata == nil {
		return out, nil
	}
	rows, err := s.metadata.ListStarred(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list starred files: %w", err)
	}
	if len(rows) == 0 {
		return out, nil
	}

	accounts, err := s.accounts.Ensure(ctx, userID)
	if err != nil {
		return nil, err
	}
	adapters := make(map[string]adapter.StorageAdapter, len(accounts))
	for _, acct := range accounts {
		a, err := s.build(ctx, acct)
		if err != nil {
			s.log.WithError(err).WithField("provider", acct.Provider).Warn("failed to build adapter")
			continue
		}
		adapters[acct.Provider] = a
	}

	for i := range rows {
		a, ok := adapters[rows[i].CloudType]
		if !ok {
			continue
		}
		f, err := a.GetFileMetadata(ctx, rows[i].FileID)
		if err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"provider": rows[i].CloudType,
				"file_id":  rows[i].FileID,
			}).Debug("skipping starred file")
			continue
		}
		enrich(f, &rows[i])
		out = append(out, *f)
	}
	return out, nil
}

// UpdateMetadata applies a partial update to a file's local metadata, creating it if absent.
func (s *FileService) UpdateMetadata(ctx context.Context, userID, provider, fileID string, u store.MetadataUpdate) (*model.FileMetadata, error) {
	if !s.registry.IsSupported(provider) {
		return nil, fmt.Errorf("%w: %s", adapter.ErrUnsupportedProvider, provider)
	}
	if fileID == "" {
		return nil, fmt.Errorf("%w: file id is required", ErrInvalidArgument)
	}
	return s.metadata.Upsert(ctx, userID, provider, fileID, u)
}

// ToggleStar flips the starred flag of a file.
func (s *FileService) ToggleStar(ctx context.Context, userID, provider, fileID string) (*model.FileMetadata, error) {
	starred := true
	current, err := s.metadata.Get(ctx, userID, provider, fileID)
	switch {
	case err == nil:
		starred = !current.Starred
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}
	return s.UpdateMetadata(ctx, userID, provider, fileID, store.MetadataUpdate{Starred: &starred})
}
