package service

import (
	"context"
	"fmt"

	"github.com/n3m01726/cloudcaddy-sub000/internal/adapter"
	"github.com/n3m01726/cloudcaddy-sub000/internal/store"
	"github.com/sirupsen/logrus"
)

// FolderMoveResult is returned by CreateFolderAndMove.
type FolderMoveResult struct {
	Folder     *adapter.FileRecord  `json:"folder"`
	MovedFiles []adapter.FileRecord `json:"movedFiles"`
	Errors     []ItemError          `json:"errors"`
}

// MoveResult is returned by MoveFiles.
type MoveResult struct {
	Moved  []adapter.FileRecord `json:"moved"`
	Errors []ItemError          `json:"errors"`
}

// CopyResult is returned by CopyFiles.
type CopyResult struct {
	Copied []adapter.FileRecord `json:"copied"`
	Errors []ItemError          `json:"errors"`
}

// DeleteResult is returned by DeleteFiles.
type DeleteResult struct {
	Deleted []string    `json:"deleted"`
	Errors  []ItemError `json:"errors"`
}

// TagResult is returned by TagFiles.
type TagResult struct {
	Tagged []string    `json:"tagged"`
	Errors []ItemError `json:"errors"`
}

// CopyRequest describes a batch copy. DestProvider defaults to SourceProvider.
type CopyRequest struct {
	SourceProvider string
	DestProvider   string
	FileIDs        []string
	DestFolderID   string
}

// BatchService applies one operation to many files. Items are processed in order and
// independently: a failing item is recorded and the rest still run.
type BatchService struct {
	aggregator
	metadata MetadataRepository
}

// NewBatchService creates a BatchService.
func NewBatchService(registry *adapter.Registry, accounts AccountLoader, metadata MetadataRepository, opts Options, log logrus.FieldLogger) *BatchService {
	return &BatchService{
		aggregator: newAggregator(registry, accounts, opts, log),
		metadata:   metadata,
	}
}

func requireIDs(ids []string) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: at least one file id is required", ErrInvalidArgument)
	}
	return nil
}

func itemError(fileID string, err error) ItemError {
	return ItemError{FileID: fileID, Error: err.Error()}
}

// CreateFolderAndMove creates a folder and moves each file into it.
// Failing to create the folder fails the call; failing moves are reported per file.
func (s *BatchService) CreateFolderAndMove(ctx context.Context, userID, provider, folderName, parentRef string, fileIDs []string) (*FolderMoveResult, error) {
	if folderName == "" {
		return nil, fmt.Errorf("%w: folder name is required", ErrInvalidArgument)
	}
	a, err := s.adapterFor(ctx, userID, provider)
	if err != nil {
		return nil, err
	}
	folder, err := a.CreateFolder(ctx, folderName, parentRef)
	if err != nil {
		return nil, err
	}

	res := &FolderMoveResult{Folder: folder, MovedFiles: []adapter.FileRecord{}, Errors: []ItemError{}}
	for _, id := range fileIDs {
		moved, err := a.MoveFile(ctx, id, folder.ID, adapter.MoveOptions{})
		if err != nil {
			res.Errors = append(res.Errors, itemError(id, err))
			continue
		}
		res.MovedFiles = append(res.MovedFiles, *moved)
	}
	return res, nil
}

// MoveFiles moves each file into destFolderID.
func (s *BatchService) MoveFiles(ctx context.Context, userID, provider string, fileIDs []string, destFolderID string) (*MoveResult, error) {
	if err := requireIDs(fileIDs); err != nil {
		return nil, err
	}
	a, err := s.adapterFor(ctx, userID, provider)
	if err != nil {
		return nil, err
	}

	res := &MoveResult{Moved: []adapter.FileRecord{}, Errors: []ItemError{}}
	for _, id := range fileIDs {
		moved, err := a.MoveFile(ctx, id, destFolderID, adapter.MoveOptions{})
		if err != nil {
			res.Errors = append(res.Errors, itemError(id, err))
			continue
		}
		res.Moved = append(res.Moved, *moved)
	}
	return res, nil
}

// CopyFiles copies each file into DestFolderID. Within one vendor the vendor's copy
// is used; across vendors the whole file is downloaded and uploaded again.
func (s *BatchService) CopyFiles(ctx context.Context, userID string, req CopyRequest) (*CopyResult, error) {
	if err := requireIDs(req.FileIDs); err != nil {
		return nil, err
	}
	if req.DestProvider == "" {
		req.DestProvider = req.SourceProvider
	}
	src, err := s.adapterFor(ctx, userID, req.SourceProvider)
	if err != nil {
		return nil, err
	}
	sameVendor := req.DestProvider == req.SourceProvider
	dst := src
	if !sameVendor {
		if dst, err = s.adapterFor(ctx, userID, req.DestProvider); err != nil {
			return nil, err
		}
	}

	res := &CopyResult{Copied: []adapter.FileRecord{}, Errors: []ItemError{}}
	for _, id := range req.FileIDs {
		var copied *adapter.FileRecord
		if sameVendor {
			copied, err = src.CopyFile(ctx, id, req.DestFolderID, adapter.CopyOptions{})
		} else {
			copied, err = transfer(ctx, src, dst, id, req.DestFolderID)
		}
		if err != nil {
			res.Errors = append(res.Errors, itemError(id, err))
			continue
		}
		res.Copied = append(res.Copied, *copied)
	}
	return res, nil
}

// transfer copies one file between vendors through memory.
func transfer(ctx context.Context, src, dst adapter.StorageAdapter, fileID, destFolderID string) (*adapter.FileRecord, error) {
	f, err := src.GetFileMetadata(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if f.IsFolder() {
		return nil, fmt.Errorf("%w: folders cannot be copied across providers", ErrInvalidArgument)
	}
	content, err := src.DownloadFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	name, mimeType := adapter.AsDownloaded(*f)
	return dst.UploadFile(ctx, content, name, adapter.UploadOptions{
		MimeType: mimeType,
		FolderID: destFolderID,
	})
}

// DeleteFiles deletes each file and its local metadata.
func (s *BatchService) DeleteFiles(ctx context.Context, userID, provider string, fileIDs []string) (*DeleteResult, error) {
	if err := requireIDs(fileIDs); err != nil {
		return nil, err
	}
	a, err := s.adapterFor(ctx, userID, provider)
	if err != nil {
		return nil, err
	}

	res := &DeleteResult{Deleted: []string{}, Errors: []ItemError{}}
	for _, id := range fileIDs {
		if _, err := a.DeleteFile(ctx, id); err != nil {
			res.Errors = append(res.Errors, itemError(id, err))
			continue
		}
		res.Deleted = append(res.Deleted, id)
		removeMetadata(ctx, s.metadata, s.log, userID, provider, id)
	}
	return res, nil
}

// TagFiles adds tags to each file's local metadata.
func (s *BatchService) TagFiles(ctx context.Context, userID, provider string, fileIDs, tags []string, colors map[string]string) (*TagResult, error) {
	if err := requireIDs(fileIDs); err != nil {
		return nil, err
	}
	if len(store.NormalizeTags(tags)) == 0 {
		return nil, fmt.Errorf("%w: at least one tag is required", ErrInvalidArgument)
	}
	if !s.registry.IsSupported(provider) {
		return nil, fmt.Errorf("%w: %s", adapter.ErrUnsupportedProvider, provider)
	}

	res := &TagResult{Tagged: []string{}, Errors: []ItemError{}}
	for _, id := range fileIDs {
		if id == "" {
			res.Errors = append(res.Errors, ItemError{FileID: id, Error: "file id is required"})
			continue
		}
		if _, err := s.metadata.AddTags(ctx, userID, provider, id, tags, colors); err != nil {
			res.Errors = append(res.Errors, itemError(id, err))
			continue
		}
		res.Tagged = append(res.Tagged, id)
	}
	return res, nil
}
