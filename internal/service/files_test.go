package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/n3m01726/cloudcaddy-sub000/internal/adapter"
	"github.com/n3m01726/cloudcaddy-sub000/internal/service"
	"github.com/n3m01726/cloudcaddy-sub000/internal/store"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileService(f *fixture, opts service.Options) *service.FileService {
	logger, _ := test.NewNullLogger()
	return service.NewFileService(f.registry, f.guard, f.metadata, opts, logger)
}

func TestFileService_ListRoot(t *testing.T) {
	f := newFixture(t, adapter.GoogleDrive)
	drive := f.vendor(adapter.GoogleDrive)
	drive.Seed("a.txt", []byte("a"), "")
	drive.Seed("b.txt", []byte("b"), "")
	drive.SeedFolder("docs", "")

	res, err := newFileService(f, service.Options{}).List(context.Background(), userID, "", "root")
	require.NoError(t, err)
	require.Len(t, res.Files, 3)

	folders := 0
	for _, file := range res.Files {
		assert.Equal(t, adapter.GoogleDrive, file.Provider)
		if file.Type == adapter.TypeFolder {
			folders++
		}
	}
	assert.Equal(t, 1, folders)
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Message)
}

func TestFileService_ListWithoutAccounts(t *testing.T) {
	f := newFixture(t)

	res, err := newFileService(f, service.Options{}).List(context.Background(), userID, "", "")
	require.NoError(t, err)
	assert.Empty(t, res.Files)
	assert.Equal(t, service.NoAccountsMessage, res.Message)
}

func TestFileService_ListIsolatesFailingProvider(t *testing.T) {
	for _, concurrency := range []int{0, 1} {
		f := newFixture(t, adapter.GoogleDrive, adapter.Dropbox)
		drive := f.vendor(adapter.GoogleDrive)
		a := drive.Seed("a.txt", nil, "")
		b := drive.Seed("b.txt", nil, "")
		box := f.vendor(adapter.Dropbox)
		box.Seed("c.txt", nil, "")
		box.Fail("listFiles", errors.New("dropbox is down"))

		res, err := newFileService(f, service.Options{Concurrency: concurrency}).List(context.Background(), userID, "", "")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{a.ID, b.ID}, ids(res.Files))
		require.Len(t, res.Errors, 1)
		assert.Equal(t, "dropbox", res.Errors[0].Provider)
	}
}

func TestFileService_ListKeepsAccountOrder(t *testing.T) {
	f := newFixture(t, adapter.GoogleDrive, adapter.Dropbox)
	f.vendor(adapter.GoogleDrive).Seed("drive.txt", nil, "")
	f.vendor(adapter.Dropbox).Seed("box.txt", nil, "")

	res, err := newFileService(f, service.Options{Concurrency: 4}).List(context.Background(), userID, "", "")
	require.NoError(t, err)
	require.Len(t, res.Files, 2)
	// Accounts are listed sorted by provider name.
	assert.Equal(t, adapter.Dropbox, res.Files[0].Provider)
	assert.Equal(t, adapter.GoogleDrive, res.Files[1].Provider)
}

func TestFileService_ListSingleProvider(t *testing.T) {
	f := newFixture(t, adapter.GoogleDrive, adapter.Dropbox)
	f.vendor(adapter.GoogleDrive).Seed("drive.txt", nil, "")
	box := f.vendor(adapter.Dropbox).Seed("box.txt", nil, "")

	res, err := newFileService(f, service.Options{}).List(context.Background(), userID, "dropbox", "")
	require.NoError(t, err)
	assert.Equal(t, []string{box.ID}, ids(res.Files))
}

func TestFileService_UnsupportedProvider(t *testing.T) {
	f := newFixture(t, adapter.GoogleDrive)
	s := newFileService(f, service.Options{})

	_, err := s.List(context.Background(), userID, "onedrive", "")
	assert.ErrorIs(t, err, adapter.ErrUnsupportedProvider)

	_, err = s.GetMetadata(context.Background(), userID, "onedrive", "x")
	assert.ErrorIs(t, err, adapter.ErrUnsupportedProvider)
}

func TestFileService_TargetedOperationNeedsConnection(t *testing.T) {
	f := newFixture(t, adapter.GoogleDrive)
	s := newFileService(f, service.Options{})

	_, err := s.GetMetadata(context.Background(), userID, "dropbox", "x")
	assert.ErrorIs(t, err, adapter.ErrNotConnected)

	_, err = s.Delete(context.Background(), userID, "dropbox", "x")
	assert.ErrorIs(t, err, adapter.ErrNotConnected)
}

func TestFileService_SearchEnrichesMetadata(t *testing.T) {
	f := newFixture(t, adapter.GoogleDrive)
	drive := f.vendor(adapter.GoogleDrive)
	report := drive.Seed("Report 2024.pdf", nil, "")
	drive.Seed("notes.txt", nil, "")

	name := "Annual report"
	_, err := f.metadata.Upsert(context.Background(), userID, "google_drive", report.ID, store.MetadataUpdate{
		CustomName: &name,
		Tags:       []string{"work"},
	})
	require.NoError(t, err)

	res, err := newFileService(f, service.Options{}).Search(context.Background(), userID, "", "report", 0)
	require.NoError(t, err)
	require.Len(t, res.Files, 1)
	assert.Equal(t, "Annual report", res.Files[0].CustomName)
	assert.Equal(t, []string{"work"}, res.Files[0].Tags)
}

func TestFileService_SearchRequiresQuery(t *testing.T) {
	f := newFixture(t, adapter.GoogleDrive)
	_, err := newFileService(f, service.Options{}).Search(context.Background(), userID, "", "", 0)
	assert.ErrorIs(t, err, service.ErrInvalidArgument)
}

func TestFileService_MoveThenMetadata(t *testing.T) {
	f := newFixture(t, adapter.GoogleDrive)
	drive := f.vendor(adapter.GoogleDrive)
	src := drive.SeedFolder("src", "")
	dst := drive.SeedFolder("dst", "")
	file := drive.Seed("a.txt", []byte("a"), src.ID)
	s := newFileService(f, service.Options{})
	ctx := context.Background()

	_, err := s.Move(ctx, userID, "google_drive", file.ID, dst.ID, "")
	require.NoError(t, err)

	got, err := s.GetMetadata(ctx, userID, "google_drive", file.ID)
	require.NoError(t, err)
	assert.Equal(t, dst.ID, got.Extra(adapter.ExtraParentID))

	inSrc, err := s.List(ctx, userID, "google_drive", src.ID)
	require.NoError(t, err)
	assert.Empty(t, inSrc.Files)
}

func TestFileService_DeleteRemovesMetadata(t *testing.T) {
	f := newFixture(t, adapter.GoogleDrive)
	file := f.vendor(adapter.GoogleDrive).Seed("a.txt", nil, "")
	ctx := context.Background()
	_, err := f.metadata.AddTags(ctx, userID, "google_drive", file.ID, []string{"x"}, nil)
	require.NoError(t, err)
	s := newFileService(f, service.Options{})

	ok, err := s.Delete(ctx, userID, "google_drive", file.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = f.metadata.Get(ctx, userID, "google_drive", file.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.Delete(ctx, userID, "google_drive", file.ID)
	assert.ErrorIs(t, err, adapter.ErrNotFound)
}

func TestFileService_StarredSkipsMissingFiles(t *testing.T) {
	f := newFixture(t, adapter.GoogleDrive)
	live := f.vendor(adapter.GoogleDrive).Seed("live.txt", nil, "")
	ctx := context.Background()
	starred := true
	for _, id := range []string{live.ID, "gone"} {
		_, err := f.metadata.Upsert(ctx, userID, "google_drive", id, store.MetadataUpdate{Starred: &starred})
		require.NoError(t, err)
	}
	// Starred file on a provider the user is not connected to.
	_, err := f.metadata.Upsert(ctx, userID, "dropbox", "elsewhere", store.MetadataUpdate{Starred: &starred})
	require.NoError(t, err)

	files, err := newFileService(f, service.Options{}).Starred(ctx, userID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, live.ID, files[0].ID)
	assert.True(t, files[0].Starred)
}

func TestFileService_ToggleStar(t *testing.T) {
	f := newFixture(t, adapter.GoogleDrive)
	s := newFileService(f, service.Options{})
	ctx := context.Background()

	m, err := s.ToggleStar(ctx, userID, "google_drive", "f1")
	require.NoError(t, err)
	assert.True(t, m.Starred)

	m, err = s.ToggleStar(ctx, userID, "google_drive", "f1")
	require.NoError(t, err)
	assert.False(t, m.Starred)
}

func TestFileService_UpdateMetadataRejectsUnknownProvider(t *testing.T) {
	f := newFixture(t, adapter.GoogleDrive)
	_, err := newFileService(f, service.Options{}).UpdateMetadata(context.Background(), userID, "box", "f1", store.MetadataUpdate{})
	assert.ErrorIs(t, err, adapter.ErrUnsupportedProvider)
}

func TestFileService_UploadDownload(t *testing.T) {
	f := newFixture(t, adapter.Dropbox)
	s := newFileService(f, service.Options{})
	ctx := context.Background()

	rec, err := s.Upload(ctx, userID, "dropbox", []byte("hello"), "hello.txt", adapter.UploadOptions{MimeType: "text/plain"})
	require.NoError(t, err)
	assert.Equal(t, adapter.Dropbox, rec.Provider)

	content, meta, err := s.Download(ctx, userID, "dropbox", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))
	assert.Equal(t, "hello.txt", meta.Name)

	folder, err := s.CreateFolder(ctx, userID, "dropbox", "dir", "")
	require.NoError(t, err)
	_, _, err = s.Download(ctx, userID, "dropbox", folder.ID)
	assert.ErrorIs(t, err, service.ErrInvalidArgument)
}

func TestFileService_Thumbnail(t *testing.T) {
	f := newFixture(t, adapter.GoogleDrive)
	s := newFileService(f, service.Options{})
	ctx := context.Background()
	img, err := s.Upload(ctx, userID, "google_drive", []byte{0x89, 'P', 'N', 'G'}, "a.png", adapter.UploadOptions{MimeType: "image/png"})
	require.NoError(t, err)
	txt := f.vendor(adapter.GoogleDrive).Seed("a.txt", []byte("a"), "")

	data, ct, err := s.Thumbnail(ctx, userID, "google_drive", img.ID)
	require.NoError(t, err)
	assert.Equal(t, "image/png", ct)
	assert.Len(t, data, 4)

	_, _, err = s.Thumbnail(ctx, userID, "google_drive", txt.ID)
	assert.ErrorIs(t, err, adapter.ErrThumbnailUnavailable)
}

func TestFileService_DownloadNativeDocumentAsExport(t *testing.T) {
	f := newFixture(t, adapter.GoogleDrive)
	doc, err := f.vendor(adapter.GoogleDrive).UploadFile(context.Background(), []byte("%PDF"), "Plan",
		adapter.UploadOptions{MimeType: "application/vnd.google-apps.document"})
	require.NoError(t, err)

	_, meta, err := newFileService(f, service.Options{}).Download(context.Background(), userID, "google_drive", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Plan.pdf", meta.Name)
	assert.Equal(t, "application/pdf", meta.MimeType)
}
