// Package service runs file, batch and notification operations across every cloud
// account a user has connected.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/n3m01726/cloudcaddy-sub000/internal/adapter"
	"github.com/n3m01726/cloudcaddy-sub000/internal/model"
	"github.com/n3m01726/cloudcaddy-sub000/internal/store"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidArgument is returned for requests that are missing required input.
var ErrInvalidArgument = errors.New("invalid argument")

// NoAccountsMessage accompanies empty listings for users without connected accounts.
const NoAccountsMessage = "No cloud accounts connected"

// AccountLoader returns a user's accounts with live credentials. *auth.RefreshGuard implements it.
type AccountLoader interface {
	Ensure(ctx context.Context, userID string) ([]model.CloudAccount, error)
}

// MetadataRepository is the local metadata store.
type MetadataRepository interface {
	Get(ctx context.Context, userID, cloudType, fileID string) (*model.FileMetadata, error)
	Upsert(ctx context.Context, userID, cloudType, fileID string, u store.MetadataUpdate) (*model.FileMetadata, error)
	AddTags(ctx context.Context, userID, cloudType, fileID string, tags []string, colors map[string]string) (*model.FileMetadata, error)
	ListForUser(ctx context.Context, userID string) ([]model.FileMetadata, error)
	ListStarred(ctx context.Context, userID string) ([]model.FileMetadata, error)
	Delete(ctx context.Context, userID, cloudType, fileID string) error
}

// Options tunes the aggregation shared by all services.
type Options struct {
	// Concurrency bounds the per-account fan-out. Zero or less means unbounded.
	Concurrency int
	// CallTimeout bounds each per-account branch. Zero disables it.
	CallTimeout time.Duration
}

// ProviderFailure reports one account that failed during an aggregation.
type ProviderFailure struct {
	Provider string `json:"provider"`
	Error    string `json:"error"`
}

// ItemError reports one item that failed during a batch operation.
type ItemError struct {
	FileID string `json:"fileId"`
	Error  string `json:"error"`
}

// aggregator builds adapters for accounts and fans operations out across them.
type aggregator struct {
	registry *adapter.Registry
	accounts AccountLoader
	opts     Options
	log      logrus.FieldLogger
}

func newAggregator(registry *adapter.Registry, accounts AccountLoader, opts Options, log logrus.FieldLogger) aggregator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return aggregator{registry: registry, accounts: accounts, opts: opts, log: log}
}

func credentials(a model.CloudAccount) adapter.Credentials {
	c := adapter.Credentials{
		UserID:       a.UserID,
		AccessToken:  a.AccessToken,
		RefreshToken: a.RefreshToken,
	}
	if a.ExpiresAt != nil {
		c.Expiry = *a.ExpiresAt
	}
	return c
}

func (g aggregator) build(ctx context.Context, a model.CloudAccount) (adapter.StorageAdapter, error) {
	return g.registry.Create(ctx, adapter.ProviderName(a.Provider), credentials(a))
}

// accountsFor loads the user's accounts, keeping only provider when it is set.
func (g aggregator) accountsFor(ctx context.Context, userID, provider string) ([]model.CloudAccount, error) {
	if provider != "" && !g.registry.IsSupported(provider) {
		return nil, fmt.Errorf("%w: %s", adapter.ErrUnsupportedProvider, provider)
	}
	all, err := g.accounts.Ensure(ctx, userID)
	if err != nil {
		return nil, err
	}
	if provider == "" {
		return all, nil
	}
	out := make([]model.CloudAccount, 0, 1)
	for _, a := range all {
		if a.Provider == provider {
			out = append(out, a)
		}
	}
	return out, nil
}

// adapterFor returns the adapter for a single connected provider.
func (g aggregator) adapterFor(ctx context.Context, userID, provider string) (adapter.StorageAdapter, error) {
	if provider == "" {
		return nil, fmt.Errorf("%w: provider is required", ErrInvalidArgument)
	}
	accounts, err := g.accountsFor(ctx, userID, provider)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("%w: %s", adapter.ErrNotConnected, provider)
	}
	return g.build(ctx, accounts[0])
}

type accountResult[T any] struct {
	account model.CloudAccount
	value   T
	err     error
}

// fanOut runs fn once per account. Every branch reports to its own slot and returns
// nil to the group, so one failing account never cancels the others.
// Results keep the order of accounts.
func fanOut[T any](ctx context.Context, g aggregator, accounts []model.CloudAccount, op string, fn func(ctx context.Context, acct model.CloudAccount, a adapter.StorageAdapter) (T, error)) []accountResult[T] {
	results := make([]accountResult[T], len(accounts))
	var eg errgroup.Group
	if g.opts.Concurrency > 0 {
		eg.SetLimit(g.opts.Concurrency)
	}

	for i, acct := range accounts {
		results[i].account = acct
		eg.Go(func() error {
			callCtx := ctx
			if g.opts.CallTimeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, g.opts.CallTimeout)
				defer cancel()
			}

			a, err := g.build(callCtx, acct)
			if err == nil {
				results[i].value, err = fn(callCtx, acct, a)
			}
			if err != nil {
				results[i].err = err
				g.log.WithFields(logrus.Fields{
					"user_id":   acct.UserID,
					"provider":  acct.Provider,
					"operation": op,
				}).WithError(err).Warn("provider failed during aggregation")
			}
			return nil
		})
	}
	_ = eg.Wait()
	return results
}

// enrich copies local metadata onto a record.
func enrich(f *adapter.FileRecord, m *model.FileMetadata) {
	if m == nil {
		return
	}
	f.Tags = m.Tags
	f.TagColors = m.TagColors
	f.CustomName = m.CustomName
	f.Description = m.Description
	f.Starred = m.Starred
	f.Color = m.Color
}

func metadataIndex(rows []model.FileMetadata) map[string]*model.FileMetadata {
	idx := make(map[string]*model.FileMetadata, len(rows))
	for i := range rows {
		idx[model.MetadataKey(rows[i].CloudType, rows[i].FileID)] = &rows[i]
	}
	return idx
}
