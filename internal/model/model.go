package model

import "time"

// CloudAccount binds one user to one storage provider. There is exactly one row per (user_id, provider).
// Tokens are encrypted at rest by the account store and never serialized to API clients.
type CloudAccount struct {
	UserID       string     `json:"userId" dynamodbav:"user_id"`
	Provider     string     `json:"provider" dynamodbav:"provider"`
	Email        string     `json:"email,omitempty" dynamodbav:"email,omitempty"`
	AccessToken  string     `json:"-" dynamodbav:"access_token"`
	RefreshToken string     `json:"-" dynamodbav:"refresh_token,omitempty"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty" dynamodbav:"expires_at,omitempty"`
	ChangeCursor string     `json:"-" dynamodbav:"change_cursor,omitempty"` // Dropbox list_folder cursor
	CreatedAt    time.Time  `json:"createdAt" dynamodbav:"created_at"`
	UpdatedAt    time.Time  `json:"updatedAt" dynamodbav:"updated_at"`
}

// FileMetadata is local enrichment for a vendor file. It is never the record of file existence.
type FileMetadata struct {
	UserID      string            `json:"userId" dynamodbav:"user_id"`
	SortKey     string            `json:"-" dynamodbav:"sk"` // cloudType#fileId
	FileID      string            `json:"fileId" dynamodbav:"file_id"`
	CloudType   string            `json:"cloudType" dynamodbav:"cloud_type"`
	Tags        []string          `json:"tags" dynamodbav:"tags"`
	TagColors   map[string]string `json:"tagColors,omitempty" dynamodbav:"tag_colors,omitempty"`
	CustomName  string            `json:"customName,omitempty" dynamodbav:"custom_name,omitempty"`
	Description string            `json:"description,omitempty" dynamodbav:"description,omitempty"`
	Starred     bool              `json:"starred" dynamodbav:"starred"`
	Color       string            `json:"color,omitempty" dynamodbav:"color,omitempty"`
	UpdatedAt   time.Time         `json:"updatedAt" dynamodbav:"updated_at"`
}

// MetadataKey builds the FileMetadata sort key.
func MetadataKey(cloudType, fileID string) string {
	return cloudType + "#" + fileID
}

// Notification sources.
const (
	SourceApp = "app"
)

// Notification is one entry of the unified feed. App rows and drained vendor change entries
// are stored; recent-file entries are synthesized per request and never persisted.
type Notification struct {
	UserID    string            `json:"userId" dynamodbav:"user_id"`
	ID        string            `json:"id" dynamodbav:"id"` // time-ordered UUIDv7, also the sort key
	Source    string            `json:"source" dynamodbav:"source"`
	Provider  string            `json:"provider,omitempty" dynamodbav:"provider,omitempty"`
	Type      string            `json:"type" dynamodbav:"type"`
	Message   string            `json:"message" dynamodbav:"message"`
	Metadata  map[string]string `json:"metadata,omitempty" dynamodbav:"metadata,omitempty"`
	IsRead    bool              `json:"isRead" dynamodbav:"is_read"`
	CreatedAt time.Time         `json:"createdAt" dynamodbav:"created_at"`
}
