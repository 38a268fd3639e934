package satellite

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/eniz1806/VaultUplink/internal/config"
	"github.com/eniz1806/VaultUplink/internal/erasure"
	"github.com/eniz1806/VaultUplink/internal/lifecycle"
	"github.com/eniz1806/VaultUplink/internal/metadata"
	"github.com/eniz1806/VaultUplink/internal/notify"
	"github.com/eniz1806/VaultUplink/internal/ratelimit"
)

// Satellite is the embedded storage network: it owns the metadata database,
// the storage nodes and the per-project limits.
type Satellite struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *metadata.Store
	pieces    *erasure.Engine
	limiter   *ratelimit.Limiter
	bandwidth *ratelimit.BandwidthLimiter
	events    *notify.Dispatcher
	lifecycle *lifecycle.Worker

	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// Open starts a satellite over the directories named in cfg.
func Open(cfg *config.Config, logger *slog.Logger) (*Satellite, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// Initialize storage nodes
	nodes, err := erasure.NewFileSystemNodes(cfg.Satellite.DataDir, cfg.Satellite.Nodes)
	if err != nil {
		return nil, fmt.Errorf("init storage nodes: %w", err)
	}
	pieces, err := erasure.NewEngine(nodes, cfg.Erasure)
	if err != nil {
		return nil, fmt.Errorf("init erasure: %w", err)
	}

	// Initialize metadata store
	store, err := metadata.NewStore(cfg.MetadataPath())
	if err != nil {
		return nil, fmt.Errorf("init metadata: %w", err)
	}

	s := &Satellite{
		cfg:    cfg,
		logger: logger.With("satellite", cfg.Satellite.Address),
		store:  store,
		pieces: pieces,
		limiter: ratelimit.NewLimiter(
			cfg.Limits.RequestsPerSec, cfg.Limits.RequestBurst,
			cfg.Limits.KeyRequestsPerSec, cfg.Limits.KeyRequestBurst,
		),
		bandwidth: ratelimit.NewBandwidthLimiter(cfg.Limits.EgressBytesPerSec),
		events:    notify.NewFromConfig(cfg.Events),
	}
	s.lifecycle = lifecycle.NewWorker(store, s, cfg.Satellite.ExpirySweepSecs, cfg.Satellite.StaleUploadHours, s.logger)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.events.Start(context.Background())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.lifecycle.Run(ctx)
	}()

	s.logger.Info("satellite opened",
		"nodes", len(nodes),
		"data_shards", cfg.Erasure.DataShards,
		"parity_shards", cfg.Erasure.ParityShards,
		"event_backends", s.events.Backends(),
	)
	return s, nil
}

func (s *Satellite) Address() string {
	return s.cfg.Satellite.Address
}

// Events returns the dispatcher bucket and object events are published on.
func (s *Satellite) Events() *notify.Dispatcher {
	return s.events
}

// Store exposes the metadata database for maintenance commands.
func (s *Satellite) Store() *metadata.Store {
	return s.store
}

// Close stops background work and closes the metadata database.
func (s *Satellite) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.cancel()
	s.wg.Wait()
	s.events.Stop()
	s.limiter.Stop()
	st := s.Stats()
	s.logger.Info("satellite closed",
		"rejected_requests", st.Requests.Rejected,
		"events_delivered", st.Events.Delivered,
		"events_dropped", st.Events.Dropped,
		"events_failed", st.Events.Failed,
	)
	return s.store.Close()
}

// Stats reports request admission and event delivery counters since Open.
type Stats struct {
	Requests ratelimit.Stats `json:"requests"`
	Events   notify.Stats    `json:"events"`
}

func (s *Satellite) Stats() Stats {
	return Stats{Requests: s.limiter.Stats(), Events: s.events.Stats()}
}

// CreateProject registers a project and returns its unrestricted API key.
func (s *Satellite) CreateProject(name string) (*metadata.ProjectInfo, *APIKey, error) {
	if s.closed.Load() {
		return nil, nil, ErrClosed
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, nil, fmt.Errorf("generate project secret: %w", err)
	}
	id := shortuuid.New()
	info := metadata.ProjectInfo{
		ID:        id,
		Name:      name,
		Secret:    secret,
		Salt:      projectSalt(id),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateProject(info); err != nil {
		return nil, nil, fmt.Errorf("create project: %w", err)
	}

	key, err := newAPIKey(secret)
	if err != nil {
		return nil, nil, err
	}
	if err := s.store.PutAPIKey(key.ID(), id); err != nil {
		return nil, nil, fmt.Errorf("register api key: %w", err)
	}
	s.logger.Info("project created", "project", id, "name", name)
	return &info, key, nil
}

// RevokeAPIKey revokes key and every key restricted from it. Keys it was
// restricted from keep working.
func (s *Satellite) RevokeAPIKey(key *APIKey) error {
	if _, err := s.authenticate(key); err != nil {
		return err
	}
	if err := s.store.RevokeTail(key.Tail); err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	s.logger.Info("api key revoked", "head", key.ID(), "caveats", len(key.Caveats))
	return nil
}

func (s *Satellite) Projects() ([]metadata.ProjectInfo, error) {
	return s.store.ListProjects()
}

// SetProjectLimits overrides the configured limits for one project and
// applies its egress rate.
func (s *Satellite) SetProjectLimits(projectID string, limits metadata.ProjectLimits, egressBytesPerSec int64) error {
	if err := s.store.SetProjectLimits(projectID, limits); err != nil {
		return err
	}
	if egressBytesPerSec > 0 {
		s.bandwidth.SetProjectLimit(projectID, egressBytesPerSec)
	}
	return nil
}

// authenticate resolves the key's project and verifies its signature chain.
func (s *Satellite) authenticate(key *APIKey) (*metadata.ProjectInfo, error) {
	if key == nil {
		return nil, ErrInvalidAPIKey
	}
	projectID, err := s.store.GetAPIKeyProject(key.ID())
	if errors.Is(err, metadata.ErrAPIKeyNotFound) {
		return nil, fmt.Errorf("%w: unknown key %s", ErrInvalidAPIKey, key.ID())
	}
	if err != nil {
		return nil, err
	}
	project, err := s.store.GetProject(projectID)
	if err != nil {
		return nil, err
	}
	tails, err := key.chain(project.Secret)
	if err != nil {
		return nil, err
	}
	revoked, err := s.store.AnyRevoked(tails)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, fmt.Errorf("%w: key %s revoked", ErrInvalidAPIKey, key.ID())
	}
	return project, nil
}

func (s *Satellite) publish(ev notify.Event) {
	s.events.Dispatch(ev)
}

// Registry maps satellite addresses to running satellites. It stands in for
// the network when an access grant is opened.
type Registry struct {
	mu   sync.RWMutex
	sats map[string]*Satellite
}

func NewRegistry() *Registry {
	return &Registry{sats: make(map[string]*Satellite)}
}

func (r *Registry) Register(s *Satellite) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sats[s.Address()] = s
}

func (r *Registry) Unregister(address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sats, address)
}

// Dial returns the satellite listening at address.
func (r *Registry) Dial(ctx context.Context, address string) (*Satellite, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	s, ok := r.sats[address]
	r.mu.RUnlock()
	if !ok || s.closed.Load() {
		return nil, fmt.Errorf("%w: no satellite at %s", ErrDialFailed, address)
	}
	return s, nil
}

// RequestAccessWithPassphrase builds a full-project access grant. The
// passphrase is stretched with argon2id, so call it once and serialize the result.
func (r *Registry) RequestAccessWithPassphrase(ctx context.Context, address, apiKey, passphrase string) (*Access, error) {
	key, err := ParseAPIKey(apiKey)
	if err != nil {
		return nil, err
	}
	s, err := r.Dial(ctx, address)
	if err != nil {
		return nil, err
	}
	project, err := s.authenticate(key)
	if err != nil {
		return nil, err
	}
	root := DeriveRootKey(passphrase, project.Salt)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Access{
		SatelliteAddress: address,
		APIKey:           key,
		Encryption:       &EncryptionAccess{Root: root},
	}, nil
}

// SessionOptions carries the client settings of one opened project.
type SessionOptions struct {
	UserAgent     string
	TempDirectory string
}

// OpenProject authenticates access against its satellite and starts a session.
func (r *Registry) OpenProject(ctx context.Context, access *Access, opts SessionOptions) (*Session, error) {
	s, err := r.Dial(ctx, access.SatelliteAddress)
	if err != nil {
		return nil, err
	}
	project, err := s.authenticate(access.APIKey)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("project opened", "project", project.ID, "user_agent", opts.UserAgent)
	return &Session{
		sat:       s,
		projectID: project.ID,
		key:       access.APIKey,
		enc:       access.Encryption,
		opts:      opts,
	}, nil
}
