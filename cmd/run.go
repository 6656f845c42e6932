package cmd

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"stakehouse/config"
	"stakehouse/database"
	"stakehouse/events"
	"stakehouse/infrastructure"
	"stakehouse/lock"
	"stakehouse/observability"
	"stakehouse/repository"
	"stakehouse/scheduler"
	"stakehouse/service"
)

const (
	lockPrefix  = "stakehouse:lock"
	queuePrefix = "stakehouse:triggers"
	serviceName = "stakehouse"
)

// engine bundles the shared connections and services of one process
type engine struct {
	db      *database.DB
	bus     *events.Bus
	rooms   service.RoomService
	ledger  service.LedgerService
	staking service.StakingService
	queue   *scheduler.RedisQueue
	closers []func()
	health  *observability.HealthChecker
	metrics *observability.Metrics
}

func (e *engine) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// connect opens Postgres and Redis and builds the engine services
func connect(ctx context.Context, cfg *config.Config) (*engine, error) {
	e := &engine{
		bus:     events.NewBus(),
		health:  observability.NewHealthChecker(),
		metrics: observability.NewMetrics(),
	}

	log.Info("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.GetDatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	e.db = db
	e.closers = append(e.closers, db.Close)
	e.health.AddCheck("postgres", db.Health)

	redisClient, err := infrastructure.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		e.close()
		return nil, err
	}
	e.closers = append(e.closers, func() {
		if err := redisClient.Close(); err != nil {
			log.WithError(err).Warn("Failed to close Redis client")
		}
	})
	e.health.AddCheck("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})

	uowFactory := repository.NewUnitOfWorkFactory(db, e.bus)
	locker := lock.NewRedisLocker(redisClient, lockPrefix)
	e.queue = scheduler.NewRedisQueue(redisClient, queuePrefix)
	engineCfg := cfg.EngineConfig()
	e.rooms = service.NewRoomService(uowFactory, locker, e.queue, engineCfg)
	e.ledger = service.NewLedgerService(uowFactory)
	e.staking = service.NewStakingService(uowFactory, locker, engineCfg)
	return e, nil
}

// Bootstrap creates the missing lobby rooms once and exits
func Bootstrap(ctx context.Context) error {
	cfg := config.Get()
	cfg.ConfigureLogging()

	e, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer e.close()

	created, err := e.rooms.EnsureSystemRooms(ctx)
	if err != nil {
		return fmt.Errorf("failed to ensure system rooms: %w", err)
	}
	log.WithField("created", created).Info("System rooms ensured")
	return nil
}

// Run initializes and starts the engine until ctx is cancelled
func Run(ctx context.Context) error {
	cfg := config.Get()
	cfg.ConfigureLogging()
	log.WithField("environment", cfg.Environment).Info("Starting stakehouse engine...")

	e, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer e.close()

	e.metrics.Attach(e.bus)

	if cfg.NATSServers != "" {
		natsClient := infrastructure.NewNATSClient(cfg.NATSServers, serviceName)
		if err := natsClient.Connect(); err != nil {
			return err
		}
		e.closers = append(e.closers, func() {
			if err := natsClient.Close(); err != nil {
				log.WithError(err).Warn("Failed to close NATS connection")
			}
		})

		mapper := infrastructure.NewEventSubjectMapper()
		if err := natsClient.EnsureStream(infrastructure.StreamName, mapper.GetAllSubjects()); err != nil {
			return err
		}
		infrastructure.NewNATSEventPublisher(natsClient, mapper, serviceName).Attach(e.bus)
		e.health.AddCheck("nats", func(ctx context.Context) error {
			if !natsClient.IsConnected() {
				return fmt.Errorf("not connected")
			}
			return nil
		})
	} else {
		log.Info("NATS_SERVERS not set, event forwarding disabled")
	}

	created, err := e.rooms.EnsureSystemRooms(ctx)
	if err != nil {
		return fmt.Errorf("failed to ensure system rooms: %w", err)
	}
	log.WithField("created", created).Info("System rooms ensured")

	worker := scheduler.NewWorker(e.queue, cfg.WorkerConfig()).WithObserver(e.metrics)
	service.NewTriggerHandlers(e.rooms).Register(worker)
	stopWorker := worker.Start(ctx)

	server := observability.NewServer(cfg.MetricsAddr, e.metrics, e.health)
	serverErr := server.Start()
	e.health.SetReady(true)

	log.Info("Engine is running")
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			log.WithError(err).Error("Metrics server stopped")
		}
	}

	log.Info("Shutting down engine...")
	e.health.SetReady(false)
	stopWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Failed to stop metrics server")
	}

	log.Info("Engine shutdown complete")
	return nil
}
