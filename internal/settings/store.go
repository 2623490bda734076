// Package settings persists the pending-update record and the failed-update
// list, scoped by application name.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/adamancini/hotpush/internal/logging"
	"github.com/adamancini/hotpush/internal/types"
)

const (
	failedUpdatesKey = "HotPushFailedUpdates"
	pendingUpdateKey = "HotPushPendingUpdate"
	clientIDKey      = "HotPushClientID"
)

var log = logging.L("settings")

// Store reads and writes settings for one application.
type Store struct {
	kv      KV
	appName string

	// mu serializes read-modify-write of the failed list
	mu sync.Mutex
}

// New returns a Store that prefixes every key with appName.
func New(kv KV, appName string) *Store {
	return &Store{kv: kv, appName: appName}
}

// AppName returns the prefix this store writes under.
func (s *Store) AppName() string {
	return s.appName
}

func (s *Store) key(name string) string {
	return s.appName + "-" + name
}

// FailedUpdates returns the failed-update list in the order failures were recorded.
// A corrupted list is reset to empty.
func (s *Store) FailedUpdates(ctx context.Context) ([]types.Descriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failedUpdates(ctx)
}

func (s *Store) failedUpdates(ctx context.Context) ([]types.Descriptor, error) {
	raw, ok, err := s.kv.Get(ctx, s.key(failedUpdatesKey))
	if err != nil {
		return nil, err
	}
	if !ok || raw == "" {
		return []types.Descriptor{}, nil
	}

	var failed []types.Descriptor
	if err := json.Unmarshal([]byte(raw), &failed); err != nil {
		log.Warn("failed update list is corrupted, resetting", logging.Err(err))
		if err := s.kv.Set(ctx, s.key(failedUpdatesKey), "[]"); err != nil {
			return nil, err
		}
		return []types.Descriptor{}, nil
	}
	if failed == nil {
		failed = []types.Descriptor{}
	}
	return failed, nil
}

// SaveFailedUpdate appends pkg to the failed-update list.
func (s *Store) SaveFailedUpdate(ctx context.Context, pkg types.Package) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	failed, err := s.failedUpdates(ctx)
	if err != nil {
		return err
	}

	d := pkg.Meta()
	d.FailedInstall = true
	failed = append(failed, d)

	data, err := json.Marshal(failed)
	if err != nil {
		return fmt.Errorf("failed to encode failed updates: %w", err)
	}
	log.Info("recorded failed update", logging.KeyHash, d.PackageHash)
	return s.kv.Set(ctx, s.key(failedUpdatesKey), string(data))
}

// ExistsFailedUpdate reports whether hash is in the failed-update list.
func (s *Store) ExistsFailedUpdate(ctx context.Context, hash string) (bool, error) {
	if hash == "" {
		return false, nil
	}
	failed, err := s.FailedUpdates(ctx)
	if err != nil {
		return false, err
	}
	for _, d := range failed {
		if d.PackageHash == hash {
			return true, nil
		}
	}
	return false, nil
}

// ClearFailedUpdates empties the failed-update list.
func (s *Store) ClearFailedUpdates(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.Delete(ctx, s.key(failedUpdatesKey))
}

// PendingUpdate returns the pending-update record, or nil if there is none.
// A record that cannot be decoded is logged, removed and treated as absent.
func (s *Store) PendingUpdate(ctx context.Context) (*types.PendingUpdate, error) {
	raw, ok, err := s.kv.Get(ctx, s.key(pendingUpdateKey))
	if err != nil {
		return nil, err
	}
	if !ok || raw == "" {
		return nil, nil
	}

	var pending types.PendingUpdate
	if err := json.Unmarshal([]byte(raw), &pending); err != nil {
		log.Warn("pending update record is corrupted, removing", logging.Err(err))
		return nil, s.RemovePendingUpdate(ctx)
	}
	return &pending, nil
}

// SavePendingUpdate replaces the pending-update record.
func (s *Store) SavePendingUpdate(ctx context.Context, pending types.PendingUpdate) error {
	data, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("failed to encode pending update: %w", err)
	}
	return s.kv.Set(ctx, s.key(pendingUpdateKey), string(data))
}

// RemovePendingUpdate deletes the pending-update record.
func (s *Store) RemovePendingUpdate(ctx context.Context) error {
	return s.kv.Delete(ctx, s.key(pendingUpdateKey))
}

// IsPendingUpdate reports whether a pending record exists that is not loading.
// An empty hash matches any pending record; otherwise the hashes must be equal.
func (s *Store) IsPendingUpdate(ctx context.Context, hash string) (bool, error) {
	pending, err := s.PendingUpdate(ctx)
	if err != nil {
		return false, err
	}
	if pending == nil || pending.IsLoading {
		return false, nil
	}
	return hash == "" || pending.Hash == hash, nil
}

// ClientUniqueID returns the identifier sent with update checks, generating
// and persisting it on first use.
func (s *Store) ClientUniqueID(ctx context.Context) (string, error) {
	id, ok, err := s.kv.Get(ctx, s.key(clientIDKey))
	if err != nil {
		return "", err
	}
	if ok && id != "" {
		return id, nil
	}

	id = uuid.NewString()
	if err := s.kv.Set(ctx, s.key(clientIDKey), id); err != nil {
		return "", err
	}
	return id, nil
}
