package container

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/hr-approval/internal/application/dispatcher"
	"github.com/garyjia/hr-approval/internal/application/port"
	"github.com/garyjia/hr-approval/internal/application/service"
	"github.com/garyjia/hr-approval/internal/application/workflow"
	infraLark "github.com/garyjia/hr-approval/internal/infrastructure/external/lark"
	"github.com/garyjia/hr-approval/internal/infrastructure/metrics"
	"github.com/garyjia/hr-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/hr-approval/internal/infrastructure/persistence/sqldb"
	"github.com/garyjia/hr-approval/internal/infrastructure/worker"
	"github.com/garyjia/hr-approval/pkg/database"
	"github.com/garyjia/hr-approval/pkg/utils"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Worker names as reported by the worker manager and health check
const (
	SweepWorkerName             = "auto-approval-sweep"
	NotificationRetryWorkerName = "notification-retry"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	SQLDB          *database.DB
	TransactionMgr *sqldb.DB
}

// ProvideDatabase opens the configured database, applies pending migrations
// and wraps the connection in a transaction manager.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(cfg.Config, logger)
	if err != nil {
		return nil, err
	}

	if cfg.MigrationsDir != "" {
		migrator := database.NewMigrator(db, logger)
		if err := migrator.RunMigrations(cfg.MigrationsDir); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return &DatabaseBundle{
		SQLDB:          db,
		TransactionMgr: sqldb.NewDB(db.DB, sqldb.Dialect(db.Driver()), logger),
	}, nil
}

// ProvideRepositories creates all repositories on the transaction manager
func ProvideRepositories(db *sqldb.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Definition:   repository.NewDefinitionRepository(db, logger),
		Instance:     repository.NewInstanceRepository(db, logger),
		History:      repository.NewHistoryRepository(db, logger),
		Notification: repository.NewNotificationRepository(db, logger),
		Org:          repository.NewOrgRepository(db, logger),
	}, nil
}

// ProvideMessenger returns the Lark messenger, or nil when Lark is disabled
func ProvideMessenger(cfg *LarkConfig, logger *zap.Logger) port.Messenger {
	if cfg == nil || !cfg.Enabled {
		logger.Info("Lark delivery disabled, notifications are stored only")
		return nil
	}

	client := infraLark.NewSDKClient(infraLark.Config{
		AppID:      cfg.AppID,
		AppSecret:  cfg.AppSecret,
		APITimeout: cfg.APITimeout,
	})
	return infraLark.NewMessenger(client, logger)
}

// ProvideMetrics returns the Prometheus collectors, or nil when disabled
func ProvideMetrics(cfg *MetricsConfig) *metrics.Metrics {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	return metrics.New()
}

// ProvideDispatcher creates the event dispatcher
func ProvideDispatcher(logger *zap.Logger) dispatcher.Dispatcher {
	return dispatcher.NewDispatcher(dispatcher.WithLogger(utils.NewZapAdapter(logger.Named("dispatcher"))))
}

// EngineDeps holds dependencies for the approval engine
type EngineDeps struct {
	Repos       *RepositoryBundle
	TxManager   port.TransactionManager
	Dispatcher  dispatcher.Dispatcher
	Metrics     *metrics.Metrics
	SystemActor string
	Logger      *zap.Logger
}

// ProvideEngine creates the approval engine. Events go to the dispatcher.
func ProvideEngine(deps *EngineDeps) (workflow.Engine, error) {
	if deps == nil || deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}

	opts := []workflow.EngineOption{
		workflow.WithLogger(utils.NewZapAdapter(deps.Logger.Named("engine"))),
		workflow.WithSystemActor(deps.SystemActor),
	}
	if deps.Dispatcher != nil {
		opts = append(opts, workflow.WithNotifier(deps.Dispatcher))
	}
	if deps.Metrics != nil {
		opts = append(opts, workflow.WithMetrics(deps.Metrics))
	}

	return workflow.NewEngine(
		deps.Repos.Definition,
		deps.Repos.Instance,
		deps.Repos.History,
		deps.TxManager,
		deps.Repos.Org,
		opts...,
	), nil
}

// ServiceDeps holds dependencies for creating services
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Messenger  port.Messenger
	Dispatcher dispatcher.Dispatcher
	Approval   ApprovalConfig
	Logger     *zap.Logger
}

// ProvideServices creates the administration and notification services and
// subscribes notifications to engine events
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}

	logger := utils.NewZapAdapter(deps.Logger.Named("service"))
	notifications := service.NewNotificationService(deps.Repos.Notification, deps.Messenger, logger,
		service.WithRetryPolicy(deps.Approval.MaxAttempts, deps.Approval.RetryAfter),
	)
	if deps.Dispatcher != nil {
		notifications.Register(deps.Dispatcher)
	}

	return &ServiceBundle{
		Definition:   service.NewDefinitionService(deps.Repos.Definition, deps.TxManager, logger),
		Org:          service.NewOrgService(deps.Repos.Org, logger),
		Notification: notifications,
	}, nil
}

// WorkerDeps holds dependencies for creating workers
type WorkerDeps struct {
	Engine        workflow.Engine
	Notifications service.NotificationService
	Approval      *ApprovalConfig
	HasMessenger  bool
	Logger        *zap.Logger
}

// ProvideWorkers registers the enabled cron workers. The sweep job is
// returned so its statistics can be reported.
func ProvideWorkers(deps *WorkerDeps) (*worker.WorkerManager, *worker.SweepJob, error) {
	if deps == nil || deps.Approval == nil {
		return nil, nil, fmt.Errorf("approval config is required")
	}

	manager := worker.NewWorkerManager(deps.Logger)
	var sweepJob *worker.SweepJob

	if deps.Approval.SweepEnabled {
		sweepJob = worker.NewSweepJob(deps.Engine, port.SystemClock{}, deps.Logger.Named("sweep"))
		w, err := worker.NewCronWorker(SweepWorkerName, deps.Approval.SweepSchedule, sweepJob.Run, deps.Logger)
		if err != nil {
			return nil, nil, err
		}
		manager.Register(w)
	}

	// Without an external channel there is nothing to re-deliver
	if deps.Approval.NotificationRetry && deps.HasMessenger {
		job := worker.NewNotificationRetryJob(deps.Notifications, deps.Approval.NotificationBatch, deps.Logger.Named("notification-retry"))
		w, err := worker.NewCronWorker(NotificationRetryWorkerName, deps.Approval.RetrySchedule, job, deps.Logger)
		if err != nil {
			return nil, nil, err
		}
		manager.Register(w)
	}

	return manager, sweepJob, nil
}
