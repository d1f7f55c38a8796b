// Package sync mirrors the local key-value store to the sync server.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	gosync "sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/conorfennell/vocabsync/internal/api"
	"github.com/conorfennell/vocabsync/internal/domain"
	"github.com/conorfennell/vocabsync/internal/kv"
)

// DefaultInterval is the auto-sync period.
const DefaultInterval = 5 * time.Minute

// Credentials is the session the engine syncs as.
type Credentials interface {
	IsAuthenticated() bool
	Token() string
}

// Remote is the sync server. *api.Client implements it.
type Remote interface {
	Upload(ctx context.Context, token string, data map[string]json.RawMessage) (int, error)
	Download(ctx context.Context, token string) (map[string]json.RawMessage, error)
	PutItem(ctx context.Context, token, key string, value json.RawMessage) error
}

// Engine uploads, downloads and merges the local store. auth-* keys never leave the device.
type Engine struct {
	store    kv.Store
	creds    Credentials
	remote   Remote
	interval time.Duration
	timeout  time.Duration

	mu        gosync.Mutex
	scheduler *gocron.Scheduler
}

// Option configures an Engine.
type Option func(*Engine)

// WithInterval sets the auto-sync period.
func WithInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

// NewEngine creates an Engine.
func NewEngine(store kv.Store, creds Credentials, remote Remote, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		creds:    creds,
		remote:   remote,
		interval: DefaultInterval,
		timeout:  api.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) token() (string, error) {
	if !e.creds.IsAuthenticated() {
		return "", api.ErrUnauthenticated
	}
	return e.creds.Token(), nil
}

func (e *Engine) snapshot() (map[string]json.RawMessage, error) {
	data, err := kv.Snapshot(e.store, domain.IsAuthKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read local store: %w", err)
	}
	return data, nil
}

// UploadAll sends every local key to the server and returns the count it stored.
func (e *Engine) UploadAll(ctx context.Context) (int, error) {
	token, err := e.token()
	if err != nil {
		return 0, err
	}
	data, err := e.snapshot()
	if err != nil {
		return 0, err
	}

	count, err := e.remote.Upload(ctx, token, data)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", api.ErrSyncFailed, err)
	}
	slog.Info("data uploaded", "count", count)
	return count, nil
}

// DownloadAll overwrites local keys with the server's copy and returns how many were written.
// Keys only present locally are left alone.
func (e *Engine) DownloadAll(ctx context.Context) (int, error) {
	token, err := e.token()
	if err != nil {
		return 0, err
	}
	remote, err := e.remote.Download(ctx, token)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", api.ErrSyncFailed, err)
	}

	written, err := e.writeAll(remote)
	if err != nil {
		return written, err
	}
	slog.Info("data downloaded", "count", written)
	return written, nil
}

// MergeData combines the server's keys with the local ones, keeping the local value
// for keys present on both sides, stores the result locally and uploads it.
func (e *Engine) MergeData(ctx context.Context) (int, error) {
	token, err := e.token()
	if err != nil {
		return 0, err
	}
	remote, err := e.remote.Download(ctx, token)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", api.ErrSyncFailed, err)
	}
	local, err := e.snapshot()
	if err != nil {
		return 0, err
	}

	merged := Merge(remote, local)
	if _, err := e.writeAll(merged); err != nil {
		return 0, err
	}

	count, err := e.UploadAll(ctx)
	if err != nil {
		return 0, err
	}
	slog.Info("data merged", "count", count)
	return count, nil
}

// Merge returns remote overlaid with local.
func Merge(remote, local map[string]json.RawMessage) map[string]json.RawMessage {
	merged := make(map[string]json.RawMessage, len(remote)+len(local))
	for k, v := range remote {
		merged[k] = v
	}
	for k, v := range local {
		merged[k] = v
	}
	return merged
}

func (e *Engine) writeAll(data map[string]json.RawMessage) (int, error) {
	keys := make([]string, 0, len(data))
	for k := range data {
		if domain.IsAuthKey(k) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for i, k := range keys {
		if err := kv.WriteValue(e.store, k, data[k]); err != nil {
			return i, fmt.Errorf("failed to write key %s locally: %w", k, err)
		}
	}
	return len(keys), nil
}

// SyncItem pushes one key. It does nothing without a session; failures are only logged.
func (e *Engine) SyncItem(ctx context.Context, key string, value json.RawMessage) {
	if !e.creds.IsAuthenticated() || domain.IsAuthKey(key) {
		return
	}
	if err := e.remote.PutItem(ctx, e.creds.Token(), key, value); err != nil {
		slog.Error("failed to sync item", "key", key, "error", err)
	}
}

// StartAutoSync uploads every interval while a session is held. The first upload
// happens one interval after the start. Calling it again while running does nothing.
func (e *Engine) StartAutoSync() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.scheduler != nil {
		return nil
	}

	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	if _, err := s.Every(e.interval).WaitForSchedule().Do(e.autoSync); err != nil {
		return fmt.Errorf("failed to schedule auto sync: %w", err)
	}
	s.StartAsync()
	e.scheduler = s
	slog.Info("auto sync started", "interval", e.interval.String())
	return nil
}

// StopAutoSync prevents further runs. An upload already in flight is not interrupted.
func (e *Engine) StopAutoSync() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.scheduler == nil {
		return
	}
	e.scheduler.Stop()
	e.scheduler = nil
	slog.Info("auto sync stopped")
}

// AutoSyncRunning reports whether the periodic upload is scheduled.
func (e *Engine) AutoSyncRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scheduler != nil
}

func (e *Engine) autoSync() {
	if !e.creds.IsAuthenticated() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	if _, err := e.UploadAll(ctx); err != nil {
		slog.Error("auto sync failed", "error", err)
	}
}
