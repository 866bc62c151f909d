// Package app wires storage, services and background workers from config.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/travyy/tour-booking-backend/internal/cache"
	"github.com/travyy/tour-booking-backend/internal/config"
	"github.com/travyy/tour-booking-backend/internal/database"
	"github.com/travyy/tour-booking-backend/internal/handlers"
	"github.com/travyy/tour-booking-backend/internal/memstore"
	"github.com/travyy/tour-booking-backend/internal/services"
	"github.com/travyy/tour-booking-backend/pkg/jwt"
	"github.com/travyy/tour-booking-backend/pkg/sms"
	"go.mongodb.org/mongo-driver/mongo"
)

// Stores groups the storage ports so one driver can fill all of them
type Stores struct {
	Ledger   services.SeatLedger
	Sessions services.SessionStore
	Bookings services.BookingStore
	Carts    services.CartStore
	Audit    services.AuditLogger
}

// App holds the wired service graph
type App struct {
	Config    *config.Config
	Logger    *logrus.Logger
	Stores    Stores
	Resolver  *services.SessionResolver
	Scheduler *services.ExpiryScheduler
	Cron      *services.CronService
	Payments  *services.PaymentSessionService
	JWT       *jwt.Service
	Health    map[string]handlers.Pinger

	// Postgres is nil with the memory driver
	Postgres *database.PostgresDB
	Memory   *memstore.MemoryStore

	closers []func() error
}

type pingFunc func() error

func (f pingFunc) Ping() error { return f() }

// New connects every configured backend and builds the services
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	a := &App{
		Config: cfg,
		Logger: logger,
		Health: make(map[string]handlers.Pinger),
	}
	if err := a.openStorage(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openCarts(ctx); err != nil {
		a.Close()
		return nil, err
	}

	publisher := a.newPublisher()
	notifier := services.NewSMSNotifier(a.newSMSGateway(), logger)
	provider := services.NewMoMoService(&cfg.Payment, logger)
	if !provider.IsConfigured() {
		logger.Warn("MoMo credentials not set, payment redirects are placeholders")
	}

	st := a.Stores
	hold := services.NewHoldManager(st.Ledger, st.Sessions, st.Audit, logger)
	bookings := services.NewBookingFactory(st.Bookings, st.Audit, logger)
	carts := services.NewCartSynchronizer(st.Carts, st.Audit, logger)
	a.Resolver = services.NewSessionResolver(st.Sessions, hold, bookings, carts, notifier, publisher, st.Audit, logger)
	a.Scheduler = services.NewExpiryScheduler(a.Resolver, st.Sessions, cfg.Reservation.SweepBatchSize, logger)
	a.Cron = services.NewCronService(a.Scheduler, cfg.Reservation.SweepSchedule, logger)
	a.Payments = services.NewPaymentSessionService(st.Ledger, st.Sessions, hold, carts, a.Resolver, a.Scheduler,
		provider, &cfg.Reservation, st.Audit, logger)
	a.JWT = jwt.NewService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTokenExpiry)

	return a, nil
}

func (a *App) openStorage(ctx context.Context) error {
	switch a.Config.Storage.Driver {
	case "memory":
		a.Logger.Warn("Using in-memory storage, data is lost on restart")
		a.Memory = memstore.NewMemoryStore()
		a.Stores = Stores{
			Ledger:   a.Memory,
			Sessions: a.Memory,
			Bookings: a.Memory,
			Carts:    a.Memory,
			Audit:    a.Memory,
		}
		a.Health["storage"] = a.Memory
		return nil

	case "postgres":
		a.Logger.Info("Connecting to database...")
		db, err := database.NewConnection(a.Config.Database)
		if err != nil {
			return err
		}
		a.Postgres = db
		a.closers = append(a.closers, db.Close)
		a.Logger.Info("Database connection established")

		if a.Config.Database.AutoMigrate {
			if err := database.MigrateUp(db); err != nil {
				return err
			}
			a.Logger.Info("Database migrations applied")
		}

		a.Stores = Stores{
			Ledger:   database.NewDepartureRepository(db),
			Sessions: database.NewPaymentSessionRepository(db),
			Bookings: database.NewBookingRepository(db),
			Audit:    database.NewPaymentAuditRepository(db, a.Logger),
		}
		a.Health["postgres"] = db
		return nil

	default:
		return fmt.Errorf("unknown storage driver %q", a.Config.Storage.Driver)
	}
}

// openCarts picks the cart store: Mongo when configured, otherwise the
// memory store. Redis fronts whichever store is chosen.
func (a *App) openCarts(ctx context.Context) error {
	var store services.CartStore
	switch {
	case a.Config.Mongo.URI != "":
		connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		mdb, err := database.ConnectMongoDB(connectCtx, a.Config.Mongo.URI, a.Config.Mongo.Database)
		if err != nil {
			return err
		}
		client := mdb.Client()
		a.closers = append(a.closers, func() error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return client.Disconnect(shutdownCtx)
		})

		repo := database.NewCartRepository(mdb)
		if err := repo.CreateIndexes(connectCtx); err != nil {
			return err
		}
		store = repo
		a.Health["mongo"] = mongoPinger(client)
		a.Logger.WithField("database", a.Config.Mongo.Database).Info("Cart store: MongoDB")
	case a.Memory != nil:
		store = a.Memory
	default:
		a.Memory = memstore.NewMemoryStore()
		store = a.Memory
		a.Logger.Warn("MONGO_URI not set, carts are kept in memory")
	}

	if a.Config.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     a.Config.Redis.Addr,
			Password: a.Config.Redis.Password,
			DB:       a.Config.Redis.DB,
		})
		a.closers = append(a.closers, client.Close)
		a.Health["redis"] = pingFunc(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return client.Ping(ctx).Err()
		})
		store = cache.NewCachedCartStore(store, cache.NewCartCache(client, a.Config.Redis.CartTTL), a.Logger)
		a.Logger.WithField("addr", a.Config.Redis.Addr).Info("Cart cache: Redis")
	}

	a.Stores.Carts = store
	return nil
}

func mongoPinger(client *mongo.Client) handlers.Pinger {
	return pingFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return client.Ping(ctx, nil)
	})
}

func (a *App) newPublisher() services.EventPublisher {
	if len(a.Config.Kafka.Brokers) == 0 {
		return services.NewLogEventPublisher(a.Logger)
	}
	publisher := services.NewKafkaEventPublisher(a.Config.Kafka.Topic, a.Logger, a.Config.Kafka.Brokers...)
	a.closers = append(a.closers, publisher.Close)
	a.Logger.WithFields(logrus.Fields{
		"brokers": a.Config.Kafka.Brokers,
		"topic":   a.Config.Kafka.Topic,
	}).Info("Session events: Kafka")
	return publisher
}

func (a *App) newSMSGateway() sms.Gateway {
	if a.Config.SMS.Mode == "production" {
		a.Logger.Info("SMS gateway: HTTP")
		return sms.NewHTTPGateway(a.Config.SMS.Endpoint, a.Config.SMS.APIKey, a.Config.SMS.Sender)
	}
	a.Logger.Info("SMS gateway: log only")
	return sms.NewLogGateway(a.Logger)
}

// StartWorkers re-arms timers for pending sessions and starts the sweep
func (a *App) StartWorkers(ctx context.Context) error {
	armed, err := a.Scheduler.Rearm(ctx)
	if err != nil {
		a.Logger.WithError(err).Error("Failed to re-arm expiry timers, relying on sweep")
	} else {
		a.Logger.WithField("sessions", armed).Info("Expiry timers re-armed")
	}
	return a.Cron.Start()
}

// Close stops workers and releases connections in reverse order of opening
func (a *App) Close() error {
	if a.Cron != nil {
		a.Cron.Stop()
	}
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
