package googledrive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/n3m01726/cloudcaddy-sub000/internal/adapter"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	rootFolderID   = "root"
	folderMIMEType = "application/vnd.google-apps.folder"
	nativePrefix   = "application/vnd.google-apps."

	fileFields   = "id, name, mimeType, size, modifiedTime, createdTime, parents, webViewLink, thumbnailLink, iconLink"
	listFields   = "nextPageToken, files(" + fileFields + ")"
	thumbnailRes = "=s800"
)

var thumbnailSize = regexp.MustCompile(`=s\d+(-c)?$`)

// DriveAdapter implements adapter.StorageAdapter for Google Drive.
type DriveAdapter struct {
	service *drive.Service
	client  *http.Client
	baseURL string
	userID  string
}

// NewDriveAdapter creates a new DriveAdapter.
// client should be an authenticated http.Client carrying the account's access token.
func NewDriveAdapter(ctx context.Context, client *http.Client, baseURL, userID string, opts ...option.ClientOption) (*DriveAdapter, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Drive client: %w", err)
	}
	return &DriveAdapter{service: srv, client: client, baseURL: baseURL, userID: userID}, nil
}

func (d *DriveAdapter) Provider() adapter.ProviderName {
	return adapter.GoogleDrive
}

func (d *DriveAdapter) wrap(op string, err error) error {
	status := 0
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		status = gErr.Code
	}
	return adapter.WrapError(adapter.GoogleDrive, op, err, status)
}

func folderOrRoot(id string) string {
	if id == "" || id == "/" {
		return rootFolderID
	}
	return id
}

// escapeQuery escapes a value for use inside a single-quoted Drive query literal.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

func (d *DriveAdapter) ListFiles(ctx context.Context, folderRef string, opts adapter.ListOptions) ([]adapter.FileRecord, error) {
	q := fmt.Sprintf("'%s' in parents and trashed = false", escapeQuery(folderOrRoot(folderRef)))
	orderBy := opts.OrderBy
	if orderBy == "" {
		orderBy = "folder,name"
	}

	files := []adapter.FileRecord{}
	call := d.service.Files.List().
		Q(q).
		OrderBy(orderBy).
		Fields(googleapi.Field(listFields)).
		Context(ctx)
	if opts.PageSize > 0 {
		call = call.PageSize(int64(opts.PageSize))
	}

	for {
		r, err := call.Do()
		if err != nil {
			return nil, d.wrap("listFiles", err)
		}
		for _, f := range r.Files {
			files = append(files, toRecord(f))
		}
		if r.NextPageToken == "" || (opts.PageSize > 0 && len(files) >= opts.PageSize) {
			break
		}
		call = call.PageToken(r.NextPageToken)
	}
	return files, nil
}

func (d *DriveAdapter) Search(ctx context.Context, query string, opts adapter.SearchOptions) ([]adapter.FileRecord, error) {
	q := fmt.Sprintf("name contains '%s' and trashed = false", escapeQuery(query))
	r, err := d.service.Files.List().
		Q(q).
		PageSize(int64(adapter.PageSize(opts.PageSize))).
		Fields(googleapi.Field(listFields)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, d.wrap("search", err)
	}

	files := make([]adapter.FileRecord, 0, len(r.Files))
	for _, f := range r.Files {
		files = append(files, toRecord(f))
	}
	return files, nil
}

// DownloadFile returns the file content. Native documents are exported.
func (d *DriveAdapter) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	meta, err := d.service.Files.Get(fileID).Fields("id, mimeType").Context(ctx).Do()
	if err != nil {
		return nil, d.wrap("downloadFile", err)
	}

	var resp *http.Response
	if export, ok := adapter.ExportFor(meta.MimeType); ok {
		resp, err = d.service.Files.Export(fileID, export.MimeType).Context(ctx).Download()
	} else {
		resp, err = d.service.Files.Get(fileID).Context(ctx).Download()
	}
	if err != nil {
		return nil, d.wrap("downloadFile", err)
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, d.wrap("downloadFile", fmt.Errorf("unable to read file content: %w", err))
	}
	return content, nil
}

func (d *DriveAdapter) UploadFile(ctx context.Context, content []byte, name string, opts adapter.UploadOptions) (*adapter.FileRecord, error) {
	f := &drive.File{
		Name:     name,
		MimeType: opts.MimeType,
		Parents:  []string{folderOrRoot(opts.FolderID)},
	}
	res, err := d.service.Files.Create(f).
		Media(bytes.NewReader(content)).
		Fields(fileFields).
		Context(ctx).
		Do()
	if err != nil {
		return nil, d.wrap("uploadFile", err)
	}
	rec := toRecord(res)
	return &rec, nil
}

func (d *DriveAdapter) GetFileMetadata(ctx context.Context, fileID string) (*adapter.FileRecord, error) {
	f, err := d.service.Files.Get(fileID).Fields(fileFields).Context(ctx).Do()
	if err != nil {
		return nil, d.wrap("getFileMetadata", err)
	}
	rec := toRecord(f)
	return &rec, nil
}

// GetPreviewURL routes native documents to the Drive viewer and everything else
// through the proxy.
func (d *DriveAdapter) GetPreviewURL(ctx context.Context, fileID string, opts adapter.PreviewOptions) (*adapter.FileRecord, error) {
	f, err := d.service.Files.Get(fileID).Fields(fileFields).Context(ctx).Do()
	if err != nil {
		return nil, d.wrap("getPreviewUrl", err)
	}
	rec := toRecord(f)

	userID := opts.UserID
	if userID == "" {
		userID = d.userID
	}
	preview, download, thumb := adapter.ProxyURLs(d.baseURL, adapter.GoogleDrive, fileID, userID)
	rec.DownloadURL = download
	rec.ThumbnailURL = thumb
	rec.PreviewURL = preview
	if isNative(f.MimeType) && f.WebViewLink != "" {
		rec.PreviewURL = f.WebViewLink
	}
	return &rec, nil
}

// MoveFile reparents a file. Without an old parent, only the first listed parent is removed.
func (d *DriveAdapter) MoveFile(ctx context.Context, fileID, newParentID string, opts adapter.MoveOptions) (*adapter.FileRecord, error) {
	oldParent := opts.OldParentID
	if oldParent == "" {
		cur, err := d.service.Files.Get(fileID).Fields("id, parents").Context(ctx).Do()
		if err != nil {
			return nil, d.wrap("moveFile", err)
		}
		if len(cur.Parents) > 0 {
			oldParent = cur.Parents[0]
		}
	}

	call := d.service.Files.Update(fileID, &drive.File{}).
		AddParents(folderOrRoot(newParentID)).
		Fields(fileFields).
		Context(ctx)
	if oldParent != "" {
		call = call.RemoveParents(oldParent)
	}
	res, err := call.Do()
	if err != nil {
		return nil, d.wrap("moveFile", err)
	}
	rec := toRecord(res)
	return &rec, nil
}

func (d *DriveAdapter) CopyFile(ctx context.Context, fileID, newParentID string, opts adapter.CopyOptions) (*adapter.FileRecord, error) {
	f := &drive.File{Name: opts.NewName}
	if newParentID != "" {
		f.Parents = []string{newParentID}
	}
	res, err := d.service.Files.Copy(fileID, f).Fields(fileFields).Context(ctx).Do()
	if err != nil {
		return nil, d.wrap("copyFile", err)
	}
	rec := toRecord(res)
	return &rec, nil
}

func (d *DriveAdapter) DeleteFile(ctx context.Context, fileID string) (bool, error) {
	if err := d.service.Files.Delete(fileID).Context(ctx).Do(); err != nil {
		return false, d.wrap("deleteFile", err)
	}
	return true, nil
}

func (d *DriveAdapter) CreateFolder(ctx context.Context, name, parentRef string) (*adapter.FileRecord, error) {
	f := &drive.File{
		Name:     name,
		MimeType: folderMIMEType,
		Parents:  []string{folderOrRoot(parentRef)},
	}
	res, err := d.service.Files.Create(f).Fields(fileFields).Context(ctx).Do()
	if err != nil {
		return nil, d.wrap("createFolder", err)
	}
	rec := toRecord(res)
	return &rec, nil
}

func (d *DriveAdapter) GetFolderInfo(ctx context.Context, folderRef string) (*adapter.FileRecord, error) {
	f, err := d.service.Files.Get(folderOrRoot(folderRef)).Fields(fileFields).Context(ctx).Do()
	if err != nil {
		return nil, d.wrap("getFolderInfo", err)
	}
	if f.MimeType != folderMIMEType {
		return nil, d.wrap("getFolderInfo", fmt.Errorf("%s is not a folder", f.Id))
	}
	rec := toRecord(f)
	return &rec, nil
}

// RecentFiles lists non-folder files by modification time, newest first.
func (d *DriveAdapter) RecentFiles(ctx context.Context, limit int) ([]adapter.FileRecord, error) {
	q := fmt.Sprintf("trashed = false and mimeType != '%s'", folderMIMEType)
	r, err := d.service.Files.List().
		Q(q).
		OrderBy("modifiedTime desc").
		PageSize(int64(adapter.PageSize(limit))).
		Fields(googleapi.Field(listFields)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, d.wrap("recentFiles", err)
	}
	files := make([]adapter.FileRecord, 0, len(r.Files))
	for _, f := range r.Files {
		files = append(files, toRecord(f))
	}
	return files, nil
}

func isNative(mimeType string) bool {
	return strings.HasPrefix(mimeType, nativePrefix) && mimeType != folderMIMEType
}

func toRecord(f *drive.File) adapter.FileRecord {
	rec := adapter.FileRecord{
		ID:           f.Id,
		Name:         f.Name,
		Type:         adapter.TypeFile,
		MimeType:     f.MimeType,
		Size:         f.Size,
		ModifiedTime: adapter.NormalizeTime(f.ModifiedTime),
		CreatedTime:  adapter.NormalizeTime(f.CreatedTime),
		Provider:     adapter.GoogleDrive,
	}
	if f.MimeType == folderMIMEType {
		rec.Type = adapter.TypeFolder
		rec.Size = 0
	}
	adapter.SetExtra(&rec, adapter.ExtraWebViewLink, f.WebViewLink)
	adapter.SetExtra(&rec, adapter.ExtraThumbnailLink, f.ThumbnailLink)
	adapter.SetExtra(&rec, adapter.ExtraIconLink, f.IconLink)
	if len(f.Parents) > 0 {
		adapter.SetExtra(&rec, adapter.ExtraParentID, f.Parents[0])
	}
	return rec
}
