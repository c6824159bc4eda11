package dropbox

import (
	"io"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
)

// Client is the subset of the Dropbox files API the adapter uses.
// files.Client satisfies it; tests substitute a fake.
type Client interface {
	GetMetadata(arg *files.GetMetadataArg) (files.IsMetadata, error)
	ListFolder(arg *files.ListFolderArg) (*files.ListFolderResult, error)
	ListFolderContinue(arg *files.ListFolderContinueArg) (*files.ListFolderResult, error)
	ListFolderGetLatestCursor(arg *files.ListFolderArg) (*files.ListFolderGetLatestCursorResult, error)
	SearchV2(arg *files.SearchV2Arg) (*files.SearchV2Result, error)
	Download(arg *files.DownloadArg) (*files.FileMetadata, io.ReadCloser, error)
	Upload(arg *files.UploadArg, content io.Reader) (*files.FileMetadata, error)
	CopyV2(arg *files.RelocationArg) (*files.RelocationResult, error)
	MoveV2(arg *files.RelocationArg) (*files.RelocationResult, error)
	DeleteV2(arg *files.DeleteArg) (*files.DeleteResult, error)
	CreateFolderV2(arg *files.CreateFolderArg) (*files.CreateFolderResult, error)
	GetThumbnail(arg *files.ThumbnailArg) (*files.FileMetadata, io.ReadCloser, error)
}
