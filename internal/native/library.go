package native

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mitchellh/go-homedir"

	"github.com/eniz1806/VaultUplink/internal/config"
	"github.com/eniz1806/VaultUplink/internal/satellite"
)

// HomeEnv names the environment variable that points at a library home.
const HomeEnv = "VAULTUPLINK_HOME"

// DefaultHome is the fallback library home.
const DefaultHome = "~/.vaultuplink"

const defaultDialTimeout = 10 * time.Second

// Library is one loaded instance of the storage library. Every handle it
// returns is only meaningful to the same Library.
type Library struct {
	registry *satellite.Registry
	handles  *arena
	logger   *slog.Logger
	defaults Config

	ctx    context.Context
	cancel context.CancelFunc

	home  string
	owned *satellite.Satellite
	once  sync.Once
}

type Option func(*Library)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Library) { l.logger = logger }
}

// WithDefaults sets the config used by calls that take none.
func WithDefaults(cfg Config) Option {
	return func(l *Library) { l.defaults = cfg }
}

// New returns a library dialing the satellites in registry.
func New(registry *satellite.Registry, opts ...Option) *Library {
	l := &Library{
		registry: registry,
		handles:  newArena(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.ctx, l.cancel = context.WithCancel(context.Background())
	return l
}

var (
	loadMu sync.Mutex
	loaded = make(map[string]*Library)
)

// Load returns the library for home, starting its satellite on first use.
// Later calls with the same home return the same instance until it is
// closed. An empty home is resolved with Locate.
func Load(home string) (*Library, error) {
	if home == "" {
		located, err := Locate()
		if err != nil {
			return nil, err
		}
		home = located
	}
	home, err := homedir.Expand(home)
	if err != nil {
		return nil, newError(fmt.Errorf("expand library home: %w", err))
	}
	if abs, err := filepath.Abs(home); err == nil {
		home = abs
	}

	loadMu.Lock()
	defer loadMu.Unlock()
	if l, ok := loaded[home]; ok {
		return l, nil
	}

	cfg, err := config.Load(filepath.Join(home, config.FileName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, libraryNotFound(home)
	}
	if err != nil {
		return nil, newError(err)
	}
	logger := slog.Default().With("home", home)
	sat, err := satellite.Open(cfg, logger)
	if err != nil {
		return nil, newError(err)
	}
	registry := satellite.NewRegistry()
	registry.Register(sat)

	l := New(registry,
		WithLogger(logger),
		WithDefaults(Config{
			UserAgent:         cfg.Client.UserAgent,
			DialTimeoutMillis: int32(cfg.Client.DialTimeoutMillis),
			TempDirectory:     cfg.Client.TempDirectory,
		}),
	)
	l.home = home
	l.owned = sat
	loaded[home] = l
	logger.Debug("library loaded", "satellite", sat.Address())
	return l, nil
}

// Locate finds a library home: $VAULTUPLINK_HOME, the directory holding
// the running executable, then ~/.vaultuplink. A home is a directory
// holding the config file.
func Locate() (string, error) {
	var candidates []string
	if env := os.Getenv(HomeEnv); env != "" {
		candidates = append(candidates, env)
	}
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Dir(exe))
	}
	if def, err := homedir.Expand(DefaultHome); err == nil {
		candidates = append(candidates, def)
	}
	for _, dir := range candidates {
		if _, err := os.Stat(filepath.Join(dir, config.FileName)); err == nil {
			return dir, nil
		}
	}
	return "", libraryNotFound(candidates...)
}

func libraryNotFound(searched ...string) *Error {
	return &Error{
		Code: CodeLibraryNotFound,
		Message: fmt.Sprintf("no %s found in %v; run `vaultuplink init` to provision a library home or set %s",
			config.FileName, searched, HomeEnv),
	}
}

// Home returns the directory the library was loaded from, or "" for New.
func (l *Library) Home() string {
	return l.home
}

// Outstanding counts live handles. Tests use it to check that every
// handle was freed.
func (l *Library) Outstanding() int {
	return l.handles.count()
}

// Close cancels in-flight calls and frees every handle. A library from
// Load also stops its satellite and can be loaded again afterwards.
func (l *Library) Close() error {
	var err error
	l.once.Do(func() {
		l.cancel()
		for _, v := range l.handles.releaseOwned(0) {
			if p, ok := v.(*project); ok {
				l.closeProject(p)
			}
		}
		if l.owned == nil {
			return
		}
		loadMu.Lock()
		if loaded[l.home] == l {
			delete(loaded, l.home)
		}
		loadMu.Unlock()
		l.registry.Unregister(l.owned.Address())
		err = l.owned.Close()
	})
	return err
}

// dialContext bounds satellite dials by the config's timeout.
func (l *Library) dialContext(cfg Config) (context.Context, context.CancelFunc) {
	timeout := defaultDialTimeout
	if cfg.DialTimeoutMillis > 0 {
		timeout = time.Duration(cfg.DialTimeoutMillis) * time.Millisecond
	}
	return context.WithTimeout(l.ctx, timeout)
}

// merge fills zero fields of cfg from the library defaults.
func (l *Library) merge(cfg Config) Config {
	if cfg.UserAgent == "" {
		cfg.UserAgent = l.defaults.UserAgent
	}
	if cfg.DialTimeoutMillis == 0 {
		cfg.DialTimeoutMillis = l.defaults.DialTimeoutMillis
	}
	if cfg.TempDirectory == "" {
		cfg.TempDirectory = l.defaults.TempDirectory
	}
	return cfg
}
