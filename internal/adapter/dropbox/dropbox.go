package dropbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"
	"strings"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
	"github.com/n3m01726/cloudcaddy-sub000/internal/adapter"
)

const recentScanLimit = 2000

// DropboxAdapter implements adapter.StorageAdapter for Dropbox.
// Containers are addressed by path ("" is the root); files may be addressed by path or "id:" reference.
type DropboxAdapter struct {
	client  Client
	baseURL string
	userID  string
}

// NewDropboxAdapter wraps a files client.
func NewDropboxAdapter(client Client, baseURL, userID string) *DropboxAdapter {
	return &DropboxAdapter{client: client, baseURL: baseURL, userID: userID}
}

func (d *DropboxAdapter) Provider() adapter.ProviderName {
	return adapter.Dropbox
}

// wrap maps Dropbox error summaries onto status codes.
func (d *DropboxAdapter) wrap(op string, err error) error {
	msg := err.Error()
	status := 0
	switch {
	case strings.Contains(msg, "not_found"):
		status = http.StatusNotFound
	case strings.Contains(msg, "invalid_access_token"), strings.Contains(msg, "expired_access_token"):
		status = http.StatusUnauthorized
	case strings.Contains(msg, "conflict"):
		status = http.StatusConflict
	case strings.Contains(msg, "too_many_requests"):
		status = http.StatusTooManyRequests
	}
	return adapter.WrapError(adapter.Dropbox, op, err, status)
}

func rootPath(ref string) string {
	if ref == "" || ref == "/" || ref == "root" {
		return ""
	}
	return ref
}

// folderPath turns a folder reference into a path usable as a destination prefix.
func (d *DropboxAdapter) folderPath(ref string) (string, error) {
	ref = rootPath(ref)
	if !strings.HasPrefix(ref, "id:") {
		if ref != "" && !strings.HasPrefix(ref, "/") {
			ref = "/" + ref
		}
		return ref, nil
	}
	meta, err := d.client.GetMetadata(files.NewGetMetadataArg(ref))
	if err != nil {
		return "", err
	}
	folder, ok := meta.(*files.FolderMetadata)
	if !ok {
		return "", fmt.Errorf("%s is not a folder", ref)
	}
	return folder.PathDisplay, nil
}

func (d *DropboxAdapter) ListFiles(ctx context.Context, folderRef string, opts adapter.ListOptions) ([]adapter.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, d.wrap("listFiles", err)
	}
	arg := files.NewListFolderArg(rootPath(folderRef))
	if opts.PageSize > 0 {
		arg.Limit = uint32(opts.PageSize)
	}
	res, err := d.client.ListFolder(arg)
	if err != nil {
		return nil, d.wrap("listFiles", err)
	}

	out := []adapter.FileRecord{}
	for {
		for _, e := range res.Entries {
			if rec, ok := toRecord(e); ok {
				out = append(out, rec)
			}
		}
		if !res.HasMore || (opts.PageSize > 0 && len(out) >= opts.PageSize) {
			break
		}
		res, err = d.client.ListFolderContinue(files.NewListFolderContinueArg(res.Cursor))
		if err != nil {
			return nil, d.wrap("listFiles", err)
		}
	}
	return out, nil
}

func (d *DropboxAdapter) Search(ctx context.Context, query string, opts adapter.SearchOptions) ([]adapter.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, d.wrap("search", err)
	}
	arg := files.NewSearchV2Arg(query)
	arg.Options = files.NewSearchOptions()
	arg.Options.MaxResults = uint64(adapter.PageSize(opts.PageSize))

	res, err := d.client.SearchV2(arg)
	if err != nil {
		return nil, d.wrap("search", err)
	}
	out := make([]adapter.FileRecord, 0, len(res.Matches))
	for _, m := range res.Matches {
		if m == nil || m.Metadata == nil {
			continue
		}
		if rec, ok := toRecord(m.Metadata.Metadata); ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (d *DropboxAdapter) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, d.wrap("downloadFile", err)
	}
	_, body, err := d.client.Download(files.NewDownloadArg(fileID))
	if err != nil {
		return nil, d.wrap("downloadFile", err)
	}
	defer body.Close()

	content, err := io.ReadAll(body)
	if err != nil {
		return nil, d.wrap("downloadFile", fmt.Errorf("unable to read file content: %w", err))
	}
	return content, nil
}

func (d *DropboxAdapter) UploadFile(ctx context.Context, content []byte, name string, opts adapter.UploadOptions) (*adapter.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, d.wrap("uploadFile", err)
	}
	dir, err := d.folderPath(opts.FolderID)
	if err != nil {
		return nil, d.wrap("uploadFile", err)
	}
	arg := files.NewUploadArg(dir + "/" + name)
	arg.Autorename = true

	res, err := d.client.Upload(arg, bytes.NewReader(content))
	if err != nil {
		return nil, d.wrap("uploadFile", err)
	}
	rec, _ := toRecord(res)
	return &rec, nil
}

func (d *DropboxAdapter) GetFileMetadata(ctx context.Context, fileID string) (*adapter.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, d.wrap("getFileMetadata", err)
	}
	meta, err := d.client.GetMetadata(files.NewGetMetadataArg(fileID))
	if err != nil {
		return nil, d.wrap("getFileMetadata", err)
	}
	rec, ok := toRecord(meta)
	if !ok {
		return nil, d.wrap("getFileMetadata", fmt.Errorf("%w: %s", adapter.ErrNotFound, fileID))
	}
	return &rec, nil
}

// GetPreviewURL always routes through the proxy; Dropbox has no native document formats.
func (d *DropboxAdapter) GetPreviewURL(ctx context.Context, fileID string, opts adapter.PreviewOptions) (*adapter.FileRecord, error) {
	rec, err := d.GetFileMetadata(ctx, fileID)
	if err != nil {
		return nil, err
	}
	userID := opts.UserID
	if userID == "" {
		userID = d.userID
	}
	rec.PreviewURL, rec.DownloadURL, rec.ThumbnailURL = adapter.ProxyURLs(d.baseURL, adapter.Dropbox, rec.ID, userID)
	return rec, nil
}

// relocate resolves the source name and builds the destination path for move and copy.
func (d *DropboxAdapter) relocate(fileID, newParentID, newName string) (*files.RelocationArg, error) {
	meta, err := d.client.GetMetadata(files.NewGetMetadataArg(fileID))
	if err != nil {
		return nil, err
	}
	name := newName
	if name == "" {
		name = metadataName(meta)
	}
	dir, err := d.folderPath(newParentID)
	if err != nil {
		return nil, err
	}
	arg := files.NewRelocationArg(fileID, dir+"/"+name)
	arg.Autorename = true
	return arg, nil
}

// MoveFile moves a file under newParentID. Dropbox files have a single parent, so OldParentID is ignored.
func (d *DropboxAdapter) MoveFile(ctx context.Context, fileID, newParentID string, opts adapter.MoveOptions) (*adapter.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, d.wrap("moveFile", err)
	}
	arg, err := d.relocate(fileID, newParentID, "")
	if err != nil {
		return nil, d.wrap("moveFile", err)
	}
	res, err := d.client.MoveV2(arg)
	if err != nil {
		return nil, d.wrap("moveFile", err)
	}
	rec, _ := toRecord(res.Metadata)
	return &rec, nil
}

func (d *DropboxAdapter) CopyFile(ctx context.Context, fileID, newParentID string, opts adapter.CopyOptions) (*adapter.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, d.wrap("copyFile", err)
	}
	arg, err := d.relocate(fileID, newParentID, opts.NewName)
	if err != nil {
		return nil, d.wrap("copyFile", err)
	}
	res, err := d.client.CopyV2(arg)
	if err != nil {
		return nil, d.wrap("copyFile", err)
	}
	rec, _ := toRecord(res.Metadata)
	return &rec, nil
}

func (d *DropboxAdapter) DeleteFile(ctx context.Context, fileID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, d.wrap("deleteFile", err)
	}
	if _, err := d.client.DeleteV2(files.NewDeleteArg(fileID)); err != nil {
		return false, d.wrap("deleteFile", err)
	}
	return true, nil
}

func (d *DropboxAdapter) CreateFolder(ctx context.Context, name, parentRef string) (*adapter.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, d.wrap("createFolder", err)
	}
	dir, err := d.folderPath(parentRef)
	if err != nil {
		return nil, d.wrap("createFolder", err)
	}
	arg := files.NewCreateFolderArg(dir + "/" + name)
	arg.Autorename = true
	res, err := d.client.CreateFolderV2(arg)
	if err != nil {
		return nil, d.wrap("createFolder", err)
	}
	rec, _ := toRecord(res.Metadata)
	return &rec, nil
}

func (d *DropboxAdapter) GetFolderInfo(ctx context.Context, folderRef string) (*adapter.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, d.wrap("getFolderInfo", err)
	}
	p := rootPath(folderRef)
	if p == "" {
		// The root has no metadata entry in Dropbox.
		return &adapter.FileRecord{ID: "", Name: "Dropbox", Type: adapter.TypeFolder, Provider: adapter.Dropbox,
			Extras: map[string]string{adapter.ExtraPath: "/"}}, nil
	}
	meta, err := d.client.GetMetadata(files.NewGetMetadataArg(p))
	if err != nil {
		return nil, d.wrap("getFolderInfo", err)
	}
	if _, ok := meta.(*files.FolderMetadata); !ok {
		return nil, d.wrap("getFolderInfo", fmt.Errorf("%s is not a folder", p))
	}
	rec, _ := toRecord(meta)
	return &rec, nil
}

// GetThumbnail fetches a 640x480 JPEG rendition.
func (d *DropboxAdapter) GetThumbnail(ctx context.Context, fileID string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", d.wrap("getThumbnail", err)
	}
	arg := files.NewThumbnailArg(fileID)
	arg.Size = &files.ThumbnailSize{Tagged: dropbox.Tagged{Tag: files.ThumbnailSizeW640h480}}

	_, body, err := d.client.GetThumbnail(arg)
	if err != nil {
		if strings.Contains(err.Error(), "unsupported_extension") || strings.Contains(err.Error(), "unsupported_image") {
			err = fmt.Errorf("%w: %v", adapter.ErrThumbnailUnavailable, err)
		}
		return nil, "", d.wrap("getThumbnail", err)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return nil, "", d.wrap("getThumbnail", fmt.Errorf("%w: empty thumbnail for %s", adapter.ErrThumbnailUnavailable, fileID))
	}
	return data, "image/jpeg", nil
}

// RecentFiles scans the first page of a recursive listing and returns the newest files.
func (d *DropboxAdapter) RecentFiles(ctx context.Context, limit int) ([]adapter.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, d.wrap("recentFiles", err)
	}
	arg := files.NewListFolderArg("")
	arg.Recursive = true
	arg.Limit = recentScanLimit
	res, err := d.client.ListFolder(arg)
	if err != nil {
		return nil, d.wrap("recentFiles", err)
	}

	out := []adapter.FileRecord{}
	for _, e := range res.Entries {
		if _, ok := e.(*files.FileMetadata); !ok {
			continue
		}
		if rec, ok := toRecord(e); ok {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ModifiedTime > out[j].ModifiedTime })
	if limit = adapter.PageSize(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListChanges returns folder changes since cursor. An empty cursor only fetches the latest cursor.
func (d *DropboxAdapter) ListChanges(ctx context.Context, cursor string) ([]adapter.Change, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", d.wrap("listChanges", err)
	}
	if cursor == "" {
		arg := files.NewListFolderArg("")
		arg.Recursive = true
		arg.IncludeDeleted = true
		res, err := d.client.ListFolderGetLatestCursor(arg)
		if err != nil {
			return nil, "", d.wrap("listChanges", err)
		}
		return nil, res.Cursor, nil
	}

	changes := []adapter.Change{}
	for {
		res, err := d.client.ListFolderContinue(files.NewListFolderContinueArg(cursor))
		if err != nil {
			return nil, "", d.wrap("listChanges", err)
		}
		for _, e := range res.Entries {
			changes = append(changes, toChange(e))
		}
		cursor = res.Cursor
		if !res.HasMore {
			break
		}
	}
	return changes, cursor, nil
}

func toChange(e files.IsMetadata) adapter.Change {
	switch m := e.(type) {
	case *files.DeletedMetadata:
		// Deleted entries carry no id; the lower-cased path still addresses the file.
		rec := adapter.FileRecord{ID: m.PathLower, Name: m.Name, Type: adapter.TypeFile, Provider: adapter.Dropbox}
		adapter.SetExtra(&rec, adapter.ExtraPath, m.PathDisplay)
		adapter.SetExtra(&rec, adapter.ExtraPathLower, m.PathLower)
		return adapter.Change{Kind: "deleted", Record: rec}
	case *files.FolderMetadata:
		rec, _ := toRecord(m)
		return adapter.Change{Kind: "added", Record: rec}
	default:
		rec, _ := toRecord(e)
		return adapter.Change{Kind: "modified", Record: rec}
	}
}

func metadataName(e files.IsMetadata) string {
	switch m := e.(type) {
	case *files.FileMetadata:
		return m.Name
	case *files.FolderMetadata:
		return m.Name
	case *files.DeletedMetadata:
		return m.Name
	}
	return ""
}

// toRecord normalizes file and folder entries. Deleted entries are reported as not ok.
func toRecord(e files.IsMetadata) (adapter.FileRecord, bool) {
	switch m := e.(type) {
	case *files.FileMetadata:
		rec := adapter.FileRecord{
			ID:           m.Id,
			Name:         m.Name,
			Type:         adapter.TypeFile,
			Size:         adapter.ParseSize(m.Size),
			ModifiedTime: adapter.FormatTime(m.ServerModified),
			Provider:     adapter.Dropbox,
		}
		adapter.SetExtra(&rec, adapter.ExtraPath, m.PathDisplay)
		adapter.SetExtra(&rec, adapter.ExtraPathLower, m.PathLower)
		adapter.SetExtra(&rec, adapter.ExtraParentID, path.Dir(m.PathLower))
		adapter.SetExtra(&rec, adapter.ExtraRevision, m.Rev)
		adapter.SetExtra(&rec, adapter.ExtraContentHash, m.ContentHash)
		return rec, true
	case *files.FolderMetadata:
		rec := adapter.FileRecord{
			ID:       m.Id,
			Name:     m.Name,
			Type:     adapter.TypeFolder,
			Provider: adapter.Dropbox,
		}
		adapter.SetExtra(&rec, adapter.ExtraPath, m.PathDisplay)
		adapter.SetExtra(&rec, adapter.ExtraPathLower, m.PathLower)
		adapter.SetExtra(&rec, adapter.ExtraParentID, path.Dir(m.PathLower))
		return rec, true
	}
	return adapter.FileRecord{}, false
}
