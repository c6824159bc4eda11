package adapter

import (
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
)

// ParseSize converts a vendor size field into bytes. Unknown shapes yield 0.
func ParseSize(v any) int64 {
	switch s := v.(type) {
	case nil:
		return 0
	case int64:
		return s
	case int:
		return int64(s)
	case uint64:
		return int64(s)
	case float64:
		return int64(s)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return 0
		}
		return n
	case *string:
		if s == nil {
			return 0
		}
		return ParseSize(*s)
	default:
		return 0
	}
}

// FormatTime renders a timestamp as RFC 3339 in UTC. The zero time renders as "".
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// NormalizeTime re-renders a vendor timestamp string as RFC 3339, keeping unparsable input as is.
func NormalizeTime(s string) string {
	if s == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return s
	}
	return FormatTime(t)
}

// Export is the format a vendor-native document is downloaded as.
type Export struct {
	MimeType  string
	Extension string
}

var exports = map[string]Export{
	"application/vnd.google-apps.document":     {MimeType: "application/pdf", Extension: ".pdf"},
	"application/vnd.google-apps.spreadsheet":  {MimeType: "application/pdf", Extension: ".pdf"},
	"application/vnd.google-apps.presentation": {MimeType: "application/pdf", Extension: ".pdf"},
	"application/vnd.google-apps.drawing":      {MimeType: "image/png", Extension: ".png"},
}

// ExportFor reports whether mimeType is a native document type and what it exports as.
func ExportFor(mimeType string) (Export, bool) {
	e, ok := exports[mimeType]
	return e, ok
}

// AsDownloaded returns the name and MIME type of the bytes DownloadFile yields for f.
// Native documents get the export type and its extension.
func AsDownloaded(f FileRecord) (name, mimeType string) {
	e, ok := exports[f.MimeType]
	if !ok {
		return f.Name, f.MimeType
	}
	name = f.Name
	if !strings.EqualFold(path.Ext(name), e.Extension) {
		name += e.Extension
	}
	return name, e.MimeType
}

// SetExtra records a vendor extra, skipping empty values.
func SetExtra(f *FileRecord, key, value string) {
	if value == "" {
		return
	}
	if f.Extras == nil {
		f.Extras = make(map[string]string)
	}
	f.Extras[key] = value
}

// ProxyURLs builds the same-origin proxy endpoints used for previewing opaque files,
// so the browser never needs vendor credentials.
func ProxyURLs(baseURL string, provider ProviderName, fileID, userID string) (preview, download, thumbnail string) {
	base := strings.TrimSuffix(baseURL, "/")
	q := url.Values{}
	q.Set("userId", userID)
	path := fmt.Sprintf("%s/api/files/proxy/%s/%s", base, provider, url.PathEscape(fileID))

	preview = path + "?" + q.Encode()
	q.Set("download", "1")
	download = path + "?" + q.Encode()
	q.Del("download")
	thumbnail = path + "/thumbnail?" + q.Encode()
	return preview, download, thumbnail
}

// PageSize returns n, or the default when n is not positive.
func PageSize(n int) int {
	if n <= 0 {
		return DefaultPageSize
	}
	return n
}
