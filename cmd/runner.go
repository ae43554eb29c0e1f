package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/pubkytree/internal/metrics"
	"github.com/desertthunder/pubkytree/internal/repositories"
	"github.com/desertthunder/pubkytree/internal/services"
	"github.com/desertthunder/pubkytree/internal/shared"
	"github.com/desertthunder/pubkytree/internal/tasks"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The engine and its cache are opened on first use so commands that never touch them (setup, search)
// don't create a database.
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	metrics    *metrics.Metrics

	identity services.IdentityClient
	social   services.SocialIndex
	public   services.PublicStorage
	store    repositories.Store
	journal  *repositories.SyncLogRepository
	updates  chan tasks.SyncEvent

	db     *sql.DB
	redis  *redis.Client
	engine *tasks.Engine
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Identity, Social, Public and Store override the clients built from Config.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	Metrics    *metrics.Metrics

	Identity services.IdentityClient
	Social   services.SocialIndex
	Public   services.PublicStorage
	Store    repositories.Store
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Config.Nexus.Timeout.Duration}
	}

	r := &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		metrics:    opts.Metrics,
		identity:   opts.Identity,
		social:     opts.Social,
		public:     opts.Public,
		store:      opts.Store,
	}

	if r.identity == nil {
		r.identity = services.NewHomeserverClient(services.HomeserverOpts{
			ApprovalTimeout: r.config.Homeserver.ApprovalTimeout.Duration,
			HTTPClient:      r.httpClient,
			Logger:          shared.WithLogger(r.logger, "component", "homeserver"),
			Metrics:         r.metrics,
		})
	}
	if r.social == nil {
		r.social = services.NewNexusService(services.NexusOpts{
			BaseURL:       r.config.Nexus.BaseURL,
			StaticBaseURL: r.config.Nexus.StaticBaseURL,
			RateLimit:     r.config.Nexus.RateLimit,
			HTTPClient:    r.httpClient,
			Logger:        shared.WithLogger(r.logger, "component", "nexus"),
			Metrics:       r.metrics,
		})
	}
	if r.public == nil {
		r.public = services.NewHTTPPublicStorage(r.config.Homeserver.PublicGateway, r.httpClient, r.metrics)
	}

	return r
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, connectCommand, disconnectCommand, statusCommand, profileCommand, linksCommand,
		syncCommand, importCommand, publicCommand, searchCommand, popularCommand, serveCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger replaces the logger used by the runner and everything it builds afterwards.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// openStore opens the configured cache backend. For sqlite the same database also holds the sync history.
func (r *Runner) openStore(ctx context.Context) (repositories.Store, error) {
	if r.store != nil {
		return r.store, nil
	}

	switch r.config.Cache.Backend {
	case "sqlite":
		db, err := shared.NewDatabase(r.config.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)
		if err := shared.RunMigrations(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		r.db = db
		r.journal = repositories.NewSyncLogRepository(db)
		r.store = repositories.NewSQLiteStore(db)
	case "redis":
		client, err := repositories.NewRedisClient(ctx, r.config.Cache.RedisAddr, r.config.Cache.RedisDB)
		if err != nil {
			return nil, err
		}
		r.redis = client
		r.store = repositories.NewRedisStore(client, r.config.Cache.KeyPrefix)
	case "memory":
		r.store = repositories.NewMemoryStore()
	default:
		return nil, fmt.Errorf("%w: unknown cache backend %q", shared.ErrInvalidConfig, r.config.Cache.Backend)
	}

	r.logger.Debug("opened local cache", "backend", r.config.Cache.Backend)
	return r.store, nil
}

func (r *Runner) engineOpts(store repositories.Store) tasks.EngineOpts {
	opts := tasks.EngineOpts{
		Cache:    repositories.NewLocalCache(store, r.metrics),
		Identity: r.identity,
		Social:   r.social,
		Logger:   shared.WithLogger(r.logger, "component", "engine"),
		Metrics:  r.metrics,
		Paths: tasks.Paths{
			Profile:      r.config.Homeserver.ProfilePath(),
			Links:        r.config.Homeserver.LinksPath(),
			Capabilities: r.config.Homeserver.Capabilities,
		},
		AutoImport:   r.config.Sync.AutoImport,
		SeedDefaults: r.config.Sync.SeedDefaults,
	}
	if r.journal != nil {
		opts.Journal = r.journal
	}
	if r.updates != nil {
		opts.Updates = r.updates
	}
	return opts
}

// Engine returns the initialized engine, creating it on first call.
//
// Without an identity client the engine still serves local commands; connect and status report the error.
func (r *Runner) Engine(ctx context.Context) (*tasks.Engine, error) {
	if r.engine != nil {
		return r.engine, nil
	}

	store, err := r.openStore(ctx)
	if err != nil {
		return nil, err
	}

	engine := tasks.NewEngine(r.engineOpts(store))
	if err := engine.Init(ctx); errors.Is(err, shared.ErrIdentityUnavailable) {
		r.logger.Warn("identity client unavailable, connecting is disabled", "error", err)
	} else if err != nil {
		return nil, fmt.Errorf("failed to initialize engine: %w", err)
	}

	r.engine = engine
	return engine, nil
}

// Viewer builds the read-only public page service.
func (r *Runner) Viewer() *tasks.PublicViewer {
	return tasks.NewPublicViewer(tasks.PublicViewerOpts{
		Social:        r.social,
		Storage:       r.public,
		LinksPath:     r.config.Homeserver.LinksPath(),
		StaticBaseURL: r.config.Nexus.StaticBaseURL,
		Logger:        shared.WithLogger(r.logger, "component", "viewer"),
	})
}

// Close waits for background pushes and releases the cache backend.
func (r *Runner) Close() error {
	if r.engine != nil {
		r.engine.Wait()
	}

	var errs []error
	if r.db != nil {
		errs = append(errs, r.db.Close())
		r.db = nil
	}
	if r.redis != nil {
		errs = append(errs, r.redis.Close())
		r.redis = nil
	}
	return errors.Join(errs...)
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
