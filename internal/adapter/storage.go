package adapter

import (
	"context"
	"encoding/json"
)

// ProviderName identifies a cloud storage vendor.
type ProviderName string

const (
	GoogleDrive ProviderName = "google_drive"
	Dropbox     ProviderName = "dropbox"
	// Memory is the in-process demo vendor. It is only registered in dev mode and tests.
	Memory ProviderName = "memory"
)

// FileType distinguishes files from folders in a FileRecord.
type FileType string

const (
	TypeFile   FileType = "file"
	TypeFolder FileType = "folder"
)

// DefaultPageSize caps search results when the caller does not set one.
const DefaultPageSize = 50

// Documented vendor extras. Anything else an adapter wants to expose must be added here.
const (
	ExtraWebViewLink   = "webViewLink"
	ExtraThumbnailLink = "thumbnailLink"
	ExtraIconLink      = "iconLink"
	ExtraParentID      = "parentId"
	ExtraPath          = "path"
	ExtraPathLower     = "pathLower"
	ExtraRevision      = "rev"
	ExtraContentHash   = "contentHash"
)

// FileRecord is the vendor-agnostic shape every adapter returns.
//
// The local-metadata fields (Tags through Color) are never set by an adapter; the
// service layer fills them from the metadata store. Extras are flattened into the
// JSON object but can never replace a normalized field.
type FileRecord struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Type         FileType     `json:"type"`
	MimeType     string       `json:"mimeType,omitempty"`
	Size         int64        `json:"size"`
	ModifiedTime string       `json:"modifiedTime,omitempty"`
	CreatedTime  string       `json:"createdTime,omitempty"`
	Provider     ProviderName `json:"provider"`

	PreviewURL   string `json:"previewUrl,omitempty"`
	DownloadURL  string `json:"downloadUrl,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`

	Tags        []string          `json:"tags,omitempty"`
	TagColors   map[string]string `json:"tagColors,omitempty"`
	CustomName  string            `json:"customName,omitempty"`
	Description string            `json:"description,omitempty"`
	Starred     bool              `json:"starred,omitempty"`
	Color       string            `json:"color,omitempty"`

	Extras map[string]string `json:"-"`
}

// IsFolder reports whether the record describes a folder.
func (f FileRecord) IsFolder() bool {
	return f.Type == TypeFolder
}

// Extra returns a vendor extra or "" if absent.
func (f FileRecord) Extra(key string) string {
	if f.Extras == nil {
		return ""
	}
	return f.Extras[key]
}

// MarshalJSON flattens Extras next to the normalized fields.
func (f FileRecord) MarshalJSON() ([]byte, error) {
	type plain FileRecord
	base, err := json.Marshal(plain(f))
	if err != nil {
		return nil, err
	}
	if len(f.Extras) == 0 {
		return base, nil
	}

	var out map[string]json.RawMessage
	if err := json.Unmarshal(base, &out); err != nil {
		return nil, err
	}
	for k, v := range f.Extras {
		if _, taken := out[k]; taken || reservedFields[k] {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out[k] = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON: unknown string fields land in Extras.
func (f *FileRecord) UnmarshalJSON(data []byte) error {
	type plain FileRecord
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for k, raw := range all {
		if reservedFields[k] {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			continue
		}
		if p.Extras == nil {
			p.Extras = make(map[string]string)
		}
		p.Extras[k] = s
	}
	*f = FileRecord(p)
	return nil
}

var reservedFields = map[string]bool{
	"id": true, "name": true, "type": true, "mimeType": true, "size": true,
	"modifiedTime": true, "createdTime": true, "provider": true,
	"previewUrl": true, "downloadUrl": true, "thumbnailUrl": true,
	"tags": true, "tagColors": true, "customName": true, "description": true,
	"starred": true, "color": true,
}

// ListOptions tunes ListFiles.
type ListOptions struct {
	PageSize int
	OrderBy  string
}

// SearchOptions tunes Search.
type SearchOptions struct {
	PageSize int
}

// UploadOptions describes where and how to create an uploaded file.
type UploadOptions struct {
	MimeType string
	FolderID string
}

// PreviewOptions carries what a preview URL needs beyond the file ID.
type PreviewOptions struct {
	UserID string
}

// MoveOptions optionally names the parent the file is leaving.
type MoveOptions struct {
	OldParentID string
}

// CopyOptions optionally renames the copy.
type CopyOptions struct {
	NewName string
}

// StorageAdapter is the capability set every vendor integration implements.
// Container references are folder IDs for ID-organized vendors and paths for
// path-organized ones; an empty reference means the vendor's root.
type StorageAdapter interface {
	// Provider returns the vendor this adapter talks to.
	Provider() ProviderName

	// ListFiles returns the direct, non-trashed children of a container.
	ListFiles(ctx context.Context, folderRef string, opts ListOptions) ([]FileRecord, error)

	// Search returns records whose name matches query, capped at the page size.
	Search(ctx context.Context, query string, opts SearchOptions) ([]FileRecord, error)

	// DownloadFile returns the complete file content.
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)

	// UploadFile creates a file from content.
	UploadFile(ctx context.Context, content []byte, name string, opts UploadOptions) (*FileRecord, error)

	// GetFileMetadata returns a single record, or a not-found error.
	GetFileMetadata(ctx context.Context, fileID string) (*FileRecord, error)

	// GetPreviewURL returns the record enriched with preview, download and thumbnail URLs.
	GetPreviewURL(ctx context.Context, fileID string, opts PreviewOptions) (*FileRecord, error)

	// MoveFile reparents a file. The current parent is resolved when opts.OldParentID is empty.
	MoveFile(ctx context.Context, fileID, newParentID string, opts MoveOptions) (*FileRecord, error)

	// CopyFile copies a file into newParentID.
	CopyFile(ctx context.Context, fileID, newParentID string, opts CopyOptions) (*FileRecord, error)

	// DeleteFile deletes a file. Deleting an unknown ID is an error.
	DeleteFile(ctx context.Context, fileID string) (bool, error)

	// CreateFolder creates a folder under parentRef.
	CreateFolder(ctx context.Context, name, parentRef string) (*FileRecord, error)

	// GetFolderInfo returns the record of the folder itself.
	GetFolderInfo(ctx context.Context, folderRef string) (*FileRecord, error)
}

// Thumbnailer is implemented by adapters that can produce thumbnail bytes.
type Thumbnailer interface {
	GetThumbnail(ctx context.Context, fileID string) ([]byte, string, error)
}

// RecentLister is implemented by adapters that can list recently modified files.
type RecentLister interface {
	RecentFiles(ctx context.Context, limit int) ([]FileRecord, error)
}

// Change is a single folder-change entry reported by a vendor.
type Change struct {
	Kind   string // "added", "modified" or "deleted"
	Record FileRecord
}

// ChangeLister is implemented by adapters exposing a change cursor.
type ChangeLister interface {
	// ListChanges returns the changes since cursor and the cursor to use next time.
	// An empty cursor only establishes a starting point.
	ListChanges(ctx context.Context, cursor string) ([]Change, string, error)
}
