package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/n3m01726/cloudcaddy-sub000/internal/adapter"
	"github.com/n3m01726/cloudcaddy-sub000/internal/cache"
	"github.com/n3m01726/cloudcaddy-sub000/internal/model"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultFeedTTL is how long an assembled feed is served from cache.
	DefaultFeedTTL = 60 * time.Second
	// DefaultFeedLimit is used when the caller does not set a limit.
	DefaultFeedLimit = 50

	// SourceAll selects every notification source.
	SourceAll = "all"

	recentPerProvider = 20
)

// Notification types.
const (
	TypeFileAdded    = "file_added"
	TypeFileModified = "file_modified"
	TypeFileDeleted  = "file_deleted"
)

// NotificationRepository stores app-created notifications and drained vendor change entries.
type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	Record(ctx context.Context, n *model.Notification) error
	List(ctx context.Context, userID string, includeRead bool, limit int) ([]model.Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
}

// CursorStore persists vendor change cursors per account.
type CursorStore interface {
	UpdateChangeCursor(ctx context.Context, userID, provider, cursor string) error
}

// FeedOptions filters the notification feed.
type FeedOptions struct {
	// Source is SourceAll, model.SourceApp or a provider name.
	Source      string
	IncludeRead bool
	Limit       int
}

// NotificationService assembles the unified feed from stored notifications
// (app-created and drained vendor change entries) and recently modified vendor files.
type NotificationService struct {
	aggregator
	store   NotificationRepository
	cursors CursorStore
	cache   cache.Cache
	ttl     time.Duration
	now     func() time.Time
}

// NewNotificationService creates a NotificationService. A ttl of zero uses DefaultFeedTTL.
func NewNotificationService(registry *adapter.Registry, accounts AccountLoader, store NotificationRepository, cursors CursorStore, c cache.Cache, ttl time.Duration, opts Options, log logrus.FieldLogger) *NotificationService {
	if ttl <= 0 {
		ttl = DefaultFeedTTL
	}
	if c == nil {
		c = cache.NewLocal()
	}
	return &NotificationService{
		aggregator: newAggregator(registry, accounts, opts, log),
		store:      store,
		cursors:    cursors,
		cache:      c,
		ttl:        ttl,
		now:        time.Now,
	}
}

// WithClock replaces the time source used for change entries without a timestamp.
func (s *NotificationService) WithClock(now func() time.Time) *NotificationService {
	s.now = now
	return s
}

func feedPrefix(userID string) string {
	return "notifications:" + userID + ":"
}

func feedKey(userID, source string, includeRead bool) string {
	return fmt.Sprintf("%s%s:%t", feedPrefix(userID), source, includeRead)
}

// Feed returns the newest notifications first. The whole merged feed for a
// (user, source, includeRead) triple is cached and truncated per call.
func (s *NotificationService) Feed(ctx context.Context, userID string, opts FeedOptions) ([]model.Notification, error) {
	if opts.Source == "" {
		opts.Source = SourceAll
	}
	if opts.Source != SourceAll && opts.Source != model.SourceApp && !s.registry.IsSupported(opts.Source) {
		return nil, fmt.Errorf("%w: unknown notification source %q", ErrInvalidArgument, opts.Source)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultFeedLimit
	}

	raw, err := s.cache.GetOrCompute(ctx, feedKey(userID, opts.Source, opts.IncludeRead), s.ttl, func(ctx context.Context) ([]byte, error) {
		feed, err := s.assemble(ctx, userID, opts)
		if err != nil {
			return nil, err
		}
		return json.Marshal(feed)
	})
	if err != nil {
		return nil, err
	}

	var feed []model.Notification
	if err := json.Unmarshal(raw, &feed); err != nil {
		return nil, fmt.Errorf("failed to decode cached feed: %w", err)
	}
	if len(feed) > limit {
		feed = feed[:limit]
	}
	return feed, nil
}

func (s *NotificationService) assemble(ctx context.Context, userID string, opts FeedOptions) ([]model.Notification, error) {
	feed := []model.Notification{}

	// Vendors go first so change entries drained now are already stored when the rows are read.
	if opts.Source != model.SourceApp {
		provider := ""
		if opts.Source != SourceAll {
			provider = opts.Source
		}
		accounts, err := s.accountsFor(ctx, userID, provider)
		if err != nil {
			return nil, err
		}
		for _, r := range fanOut(ctx, s.aggregator, accounts, "notifications", s.vendorEvents) {
			if r.err == nil {
				feed = append(feed, r.value...)
			}
		}
	}

	rows, err := s.store.List(ctx, userID, opts.IncludeRead, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	for _, n := range rows {
		if opts.Source == SourceAll || n.Source == opts.Source {
			feed = append(feed, n)
		}
	}

	sort.SliceStable(feed, func(i, j int) bool {
		return feed[i].CreatedAt.After(feed[j].CreatedAt)
	})
	return feed, nil
}

// vendorEvents synthesizes notifications from one account's recent files and change entries.
func (s *NotificationService) vendorEvents(ctx context.Context, acct model.CloudAccount, a adapter.StorageAdapter) ([]model.Notification, error) {
	userID := acct.UserID
	var events []model.Notification

	if rl, ok := a.(adapter.RecentLister); ok {
		files, err := rl.RecentFiles(ctx, recentPerProvider)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			events = append(events, fileEvent(userID, a.Provider(), TypeFileModified, f, s.now()))
		}
	}

	if cl, ok := a.(adapter.ChangeLister); ok {
		changes, err := s.drainChanges(ctx, acct, cl)
		if err != nil {
			s.log.WithError(err).WithField("provider", a.Provider()).Warn("failed to list changes")
		}
		events = append(events, changes...)
	}
	return events, nil
}

// drainChanges reads the account's change entries since its stored cursor, stores them
// as notifications and advances the cursor. Entries that could not be stored are returned
// so the current feed still shows them.
func (s *NotificationService) drainChanges(ctx context.Context, acct model.CloudAccount, cl adapter.ChangeLister) ([]model.Notification, error) {
	provider := adapter.ProviderName(acct.Provider)
	cursor := acct.ChangeCursor
	changes, next, err := cl.ListChanges(ctx, cursor)
	if err != nil {
		return nil, err
	}

	var unsaved []model.Notification
	recorded := 0
	for _, c := range changes {
		typ := TypeFileModified
		switch c.Kind {
		case "added":
			typ = TypeFileAdded
		case "deleted":
			typ = TypeFileDeleted
		}
		n := fileEvent(acct.UserID, provider, typ, c.Record, s.now())
		if err := s.store.Record(ctx, &n); err != nil {
			s.log.WithError(err).WithField("provider", provider).Warn("failed to store change entry")
			unsaved = append(unsaved, n)
			continue
		}
		recorded++
	}
	if recorded > 0 {
		s.invalidate(ctx, acct.UserID)
	}

	if next != "" && next != cursor && s.cursors != nil {
		if err := s.cursors.UpdateChangeCursor(ctx, acct.UserID, acct.Provider, next); err != nil {
			s.log.WithError(err).WithField("provider", provider).Warn("failed to store change cursor")
		}
	}
	return unsaved, nil
}

// fileEvent turns a vendor record into a feed entry. Records without a timestamp
// (deleted entries) are stamped with fallback.
func fileEvent(userID string, provider adapter.ProviderName, typ string, f adapter.FileRecord, fallback time.Time) model.Notification {
	created, err := time.Parse(time.RFC3339, f.ModifiedTime)
	if err != nil {
		created = fallback
	}
	var verb string
	switch typ {
	case TypeFileAdded:
		verb = "was added"
	case TypeFileDeleted:
		verb = "was deleted"
	default:
		verb = "was modified"
	}
	fileID := f.ID
	if fileID == "" {
		fileID = f.Extra(adapter.ExtraPathLower)
	}
	if fileID == "" {
		fileID = f.Extra(adapter.ExtraPath)
	}
	metadata := map[string]string{"fileId": fileID, "fileName": f.Name}
	if p := f.Extra(adapter.ExtraPath); p != "" {
		metadata["path"] = p
	}
	return model.Notification{
		UserID:    userID,
		ID:        fmt.Sprintf("%s:%s:%s:%s", provider, typ, fileID, f.ModifiedTime),
		Source:    string(provider),
		Provider:  string(provider),
		Type:      typ,
		Message:   fmt.Sprintf("%s %s", f.Name, verb),
		Metadata:  metadata,
		CreatedAt: created.UTC(),
	}
}

// Create stores an app notification and drops the user's cached feeds.
func (s *NotificationService) Create(ctx context.Context, userID, typ, message string, metadata map[string]string) (*model.Notification, error) {
	if typ == "" || message == "" {
		return nil, fmt.Errorf("%w: type and message are required", ErrInvalidArgument)
	}
	n := &model.Notification{UserID: userID, Type: typ, Message: message, Metadata: metadata}
	if err := s.store.Create(ctx, n); err != nil {
		return nil, err
	}
	s.invalidate(ctx, userID)
	return n, nil
}

// MarkRead flags one notification as read.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) error {
	if err := s.store.MarkRead(ctx, userID, id); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

// MarkAllRead flags every unread notification as read and returns how many changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int, error) {
	n, err := s.store.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx, userID)
	return n, nil
}

// UnreadCount counts unread stored notifications.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.store.UnreadCount(ctx, userID)
}

func (s *NotificationService) invalidate(ctx context.Context, userID string) {
	if err := s.cache.DeletePrefix(ctx, feedPrefix(userID)); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("failed to invalidate notification cache")
	}
}
