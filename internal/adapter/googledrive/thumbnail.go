package googledrive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/n3m01726/cloudcaddy-sub000/internal/adapter"
)

// GetThumbnail returns image bytes for a file. Images are downloaded as is;
// other files go through Drive's thumbnail link at a higher resolution.
func (d *DriveAdapter) GetThumbnail(ctx context.Context, fileID string) ([]byte, string, error) {
	f, err := d.service.Files.Get(fileID).Fields("id, mimeType, thumbnailLink").Context(ctx).Do()
	if err != nil {
		return nil, "", d.wrap("getThumbnail", err)
	}

	if strings.HasPrefix(f.MimeType, "image/") {
		resp, err := d.service.Files.Get(fileID).Context(ctx).Download()
		if err == nil {
			defer resp.Body.Close()
			data, err := io.ReadAll(resp.Body)
			if err == nil && len(data) > 0 {
				return data, f.MimeType, nil
			}
		}
	}

	if f.ThumbnailLink != "" {
		data, contentType, err := d.fetchThumbnailLink(ctx, upgradeThumbnailSize(f.ThumbnailLink))
		if err == nil && len(data) > 0 {
			return data, contentType, nil
		}
	}

	return nil, "", d.wrap("getThumbnail",
		fmt.Errorf("%w: no image content or thumbnail link for %s", adapter.ErrThumbnailUnavailable, fileID))
}

func (d *DriveAdapter) fetchThumbnailLink(ctx context.Context, link string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("thumbnail link returned %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return data, contentType, nil
}

// upgradeThumbnailSize swaps the trailing size parameter (e.g. "=s220") for a larger one.
func upgradeThumbnailSize(link string) string {
	if thumbnailSize.MatchString(link) {
		return thumbnailSize.ReplaceAllString(link, thumbnailRes)
	}
	return link
}
