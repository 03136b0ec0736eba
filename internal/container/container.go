package container

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/garyjia/hr-approval/internal/application/dispatcher"
	"github.com/garyjia/hr-approval/internal/application/port"
	"github.com/garyjia/hr-approval/internal/application/service"
	"github.com/garyjia/hr-approval/internal/application/workflow"
	"github.com/garyjia/hr-approval/internal/infrastructure/metrics"
	"github.com/garyjia/hr-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/hr-approval/internal/infrastructure/persistence/sqldb"
	"github.com/garyjia/hr-approval/internal/infrastructure/worker"
	"github.com/garyjia/hr-approval/pkg/database"
)

// Container manages all application dependencies and lifecycle.
// Components start in dependency order and close in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure - Data
	sqlDB        *database.DB
	db           *sqldb.DB
	repositories *RepositoryBundle

	// Infrastructure - External
	messenger port.Messenger
	metrics   *metrics.Metrics

	// Application
	dispatcher dispatcher.Dispatcher
	engine     workflow.Engine
	services   *ServiceBundle

	// Workers
	workers  *worker.WorkerManager
	sweepJob *worker.SweepJob

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Definition   port.DefinitionRepository
	Instance     port.InstanceRepository
	History      port.HistoryRepository
	Notification port.NotificationRepository
	Org          *repository.OrgRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Definition   service.DefinitionService
	Org          service.OrgService
	Notification service.NotificationService
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components and begins processing.
// Components are initialized in dependency order:
// 1. Database and repositories
// 2. External clients and metrics
// 3. Event dispatcher and approval engine
// 4. Application services
// 5. Workers
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}

	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized", zap.String("driver", c.sqlDB.Driver()))

	c.initExternal()
	c.logger.Info("External clients initialized",
		zap.Bool("lark_enabled", c.messenger != nil),
		zap.Bool("metrics_enabled", c.metrics != nil))

	if err := c.initDispatcherAndEngine(); err != nil {
		return fmt.Errorf("failed to initialize approval engine: %w", err)
	}
	c.logger.Info("Dispatcher and approval engine initialized")

	if err := c.initServices(); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.logger.Info("Application services initialized")

	if err := c.initWorkers(); err != nil {
		return fmt.Errorf("failed to initialize workers: %w", err)
	}
	c.logger.Info("Workers initialized and started", zap.Strings("workers", c.workers.Names()))

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	var errs []error

	if c.cancel != nil {
		c.cancel()
	}

	// Workers first so no sweep runs against a closing database
	if c.workers != nil && c.workers.IsRunning() {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		} else {
			c.logger.Info("Workers stopped")
		}
	}

	// Drains in-flight notification handlers
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
	}

	if c.sqlDB != nil {
		if err := c.sqlDB.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}
	set := func(name string, h ComponentHealth) {
		status.Components[name] = h
		if !h.Healthy {
			status.Overall = false
		}
	}

	switch {
	case c.sqlDB == nil:
		set("database", ComponentHealth{Message: "not initialized"})
	default:
		if err := c.sqlDB.PingContext(ctx); err != nil {
			set("database", ComponentHealth{Message: fmt.Sprintf("ping failed: %v", err)})
		} else {
			set("database", ComponentHealth{Healthy: true, Message: c.sqlDB.Driver()})
		}
	}

	if c.workers == nil {
		set("workers", ComponentHealth{Message: "not initialized"})
	} else {
		h := ComponentHealth{
			Healthy: c.workers.IsRunning(),
			Message: fmt.Sprintf("worker count: %d", c.workers.Count()),
		}
		if c.sweepJob != nil {
			if runs, last := c.sweepJob.Stats(); last != nil {
				h.Message = fmt.Sprintf("%s, sweeps: %d, last auto-approved: %d", h.Message, runs, last.AutoApproved)
			}
		}
		set("workers", h)
	}

	if c.dispatcher == nil || c.engine == nil {
		set("engine", ComponentHealth{Message: "not initialized"})
	} else {
		set("engine", ComponentHealth{Healthy: true})
	}

	if c.config.Lark.Enabled {
		if c.messenger == nil {
			set("lark", ComponentHealth{Message: "not initialized"})
		} else {
			set("lark", ComponentHealth{Healthy: true})
		}
	}

	return status
}

func (c *Container) initDatabase() error {
	dbBundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}

	c.sqlDB = dbBundle.SQLDB
	c.db = dbBundle.TransactionMgr

	repos, err := ProvideRepositories(c.db, c.logger)
	if err != nil {
		_ = c.sqlDB.Close()
		return err
	}

	c.repositories = repos
	return nil
}

func (c *Container) initExternal() {
	c.messenger = ProvideMessenger(&c.config.Lark, c.logger)
	c.metrics = ProvideMetrics(&c.config.Metrics)
}

func (c *Container) initDispatcherAndEngine() error {
	c.dispatcher = ProvideDispatcher(c.logger)

	engine, err := ProvideEngine(&EngineDeps{
		Repos:       c.repositories,
		TxManager:   c.db,
		Dispatcher:  c.dispatcher,
		Metrics:     c.metrics,
		SystemActor: c.config.Approval.SystemActor,
		Logger:      c.logger,
	})
	if err != nil {
		return err
	}
	c.engine = engine
	return nil
}

func (c *Container) initServices() error {
	services, err := ProvideServices(&ServiceDeps{
		Repos:      c.repositories,
		TxManager:  c.db,
		Messenger:  c.messenger,
		Dispatcher: c.dispatcher,
		Approval:   c.config.Approval,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}

	c.services = services
	return nil
}

func (c *Container) initWorkers() error {
	workers, sweepJob, err := ProvideWorkers(&WorkerDeps{
		Engine:        c.engine,
		Notifications: c.services.Notification,
		Approval:      &c.config.Approval,
		HasMessenger:  c.messenger != nil,
		Logger:        c.logger,
	})
	if err != nil {
		return err
	}
	c.workers = workers
	c.sweepJob = sweepJob

	if err := c.workers.StartAll(c.ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}

	return nil
}

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.db
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Engine returns the approval engine.
func (c *Container) Engine() workflow.Engine {
	return c.engine
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.WorkerManager {
	return c.workers
}

// MetricsHandler serves the Prometheus registry, or nil when metrics are disabled
func (c *Container) MetricsHandler() http.Handler {
	if c.metrics == nil {
		return nil
	}
	return c.metrics.Handler()
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}
