// Package engine ties the acquisition client, package store and settings
// store together into the update lifecycle: check, download, install,
// restart-time reconciliation and rollback.
package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/semaphore"

	"github.com/adamancini/hotpush/internal/acquisition"
	"github.com/adamancini/hotpush/internal/errs"
	"github.com/adamancini/hotpush/internal/logging"
	"github.com/adamancini/hotpush/internal/packages"
	"github.com/adamancini/hotpush/internal/settings"
	"github.com/adamancini/hotpush/internal/transport"
	"github.com/adamancini/hotpush/internal/types"
)

const (
	// DefaultAppName scopes storage when no app name is configured.
	DefaultAppName = "HotPush"
	// DefaultServerURL is queried when no server is configured.
	DefaultServerURL = "https://codepush.appcenter.ms/"
	// SettingsFileName is the settings database under the base directory.
	SettingsFileName = "settings.db"
)

// Host is the application embedding the engine.
type Host interface {
	// BinaryVersion returns the version of the natively installed build.
	BinaryVersion() string
	// Restart asks the host to reload; immediate requests a restart right away.
	Restart(immediate bool)
}

// State is a snapshot of the engine's process-local state.
type State struct {
	DidUpdate                 bool              `json:"didUpdate" yaml:"didUpdate"`
	NeedToReportRollback      bool              `json:"needToReportRollback" yaml:"needToReportRollback"`
	IsRunningBinaryVersion    bool              `json:"isRunningBinaryVersion" yaml:"isRunningBinaryVersion"`
	SyncInProgress            bool              `json:"syncInProgress" yaml:"syncInProgress"`
	InstallModeInProgress     types.InstallMode `json:"installModeInProgress,omitempty" yaml:"installModeInProgress,omitempty"`
	MinimumBackgroundDuration time.Duration     `json:"minimumBackgroundDuration" yaml:"minimumBackgroundDuration"`
}

// Engine runs the update lifecycle for one application identity.
// It is safe for concurrent use.
type Engine struct {
	cfg        types.Configuration
	entryPoint string

	fs       afero.Fs
	fetcher  transport.Fetcher
	settings *settings.Store
	store    *packages.Store
	acq      *acquisition.Client
	host     Host
	log      *slog.Logger
	closer   io.Closer

	// sem admits one mutating lifecycle operation at a time
	sem *semaphore.Weighted

	mu    sync.Mutex
	state State
}

// Option configures an Engine.
type Option func(*Engine)

// WithFS sets the filesystem packages are stored on.
func WithFS(fs afero.Fs) Option {
	return func(e *Engine) { e.fs = fs }
}

// WithFetcher sets the transport used for update checks and downloads.
func WithFetcher(f transport.Fetcher) Option {
	return func(e *Engine) { e.fetcher = f }
}

// WithSettings sets the settings store. Without it the engine opens a SQLite
// database under the base directory.
func WithSettings(st *settings.Store) Option {
	return func(e *Engine) { e.settings = st }
}

// WithHost sets the embedding application.
func WithHost(h Host) Option {
	return func(e *Engine) { e.host = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithEntryPoint sets the name of the file the host loads from a package.
// An empty name keeps the default.
func WithEntryPoint(name string) Option {
	return func(e *Engine) {
		if name != "" {
			e.entryPoint = name
		}
	}
}

// WithCompanion marks update checks as coming from a companion app.
func WithCompanion(companion bool) Option {
	return func(e *Engine) { e.cfg.IsCompanion = companion }
}

// New returns an Engine for cfg. Missing app name and server URL fall back to
// defaults; the base directory is required.
func New(cfg types.Configuration, opts ...Option) (*Engine, error) {
	if cfg.BaseDirectory == "" {
		return nil, errs.New(errs.InvalidParameter, "newEngine", "base directory is required")
	}
	if cfg.AppName == "" {
		cfg.AppName = DefaultAppName
	}
	if cfg.ServerURL == "" {
		cfg.ServerURL = DefaultServerURL
	}

	e := &Engine{
		cfg:        cfg,
		entryPoint: packages.DefaultEntryPoint,
		fs:         afero.NewOsFs(),
		sem:        semaphore.NewWeighted(1),
		log:        logging.L("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.fetcher == nil {
		e.fetcher = transport.New()
	}
	if e.settings == nil {
		if err := e.fs.MkdirAll(cfg.BaseDirectory, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", err)
		}
		kv, err := settings.OpenSQLite(context.Background(), filepath.Join(cfg.BaseDirectory, SettingsFileName))
		if err != nil {
			return nil, err
		}
		e.settings = settings.New(kv, cfg.AppName)
		e.closer = kv
	}

	e.store = packages.NewStore(e.fs, packages.Config{
		BaseDirectory: cfg.BaseDirectory,
		AppName:       cfg.AppName,
		EntryPoint:    e.entryPoint,
	}, e.settings, e.fetcher)
	e.acq = acquisition.NewClient(e.fetcher)

	return e, nil
}

// Close releases the settings database if the engine opened it.
func (e *Engine) Close() error {
	if e.closer == nil {
		return nil
	}
	return e.closer.Close()
}

// Store returns the package store.
func (e *Engine) Store() *packages.Store {
	return e.store
}

// Settings returns the settings store.
func (e *Engine) Settings() *settings.Store {
	return e.settings
}

// Configuration returns the effective configuration, including the
// persisted client id.
func (e *Engine) Configuration(ctx context.Context) (types.Configuration, error) {
	cfg := e.cfg
	cfg.AppVersion = e.binaryVersion()
	if cfg.ClientUniqueID == "" {
		id, err := e.settings.ClientUniqueID(ctx)
		if err != nil {
			return types.Configuration{}, errs.E(errs.KindUnknown, "configuration", err)
		}
		cfg.ClientUniqueID = id
	}
	return cfg, nil
}

// State returns a snapshot of the engine state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) updateState(f func(*State)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f(&e.state)
}

// binaryVersion prefers the host's view of the installed build.
func (e *Engine) binaryVersion() string {
	if e.host != nil {
		if v := e.host.BinaryVersion(); v != "" {
			return v
		}
	}
	return e.cfg.AppVersion
}

// acquire takes the lifecycle semaphore.
func (e *Engine) acquire(ctx context.Context, op string) (func(), error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, errs.E(errs.Canceled, op, err)
	}
	return func() { e.sem.Release(1) }, nil
}
