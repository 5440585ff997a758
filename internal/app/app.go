package app

import (
	"context"
	"fmt"
	"os"

	"smec-portal/internal/api"
	"smec-portal/internal/catalog"
	"smec-portal/internal/config"
	"smec-portal/internal/kafka"
	"smec-portal/internal/logger"
	"smec-portal/internal/registration"
	regredis "smec-portal/internal/registration/redis"
	"smec-portal/internal/session"
	"smec-portal/internal/tickets/db"
	tickets "smec-portal/internal/tickets/service"
	"smec-portal/internal/tickets/template"

	"github.com/go-redis/redis/v8"
)

// App wires the shared core for both front ends.
type App struct {
	Config    *config.Config
	Logger    *logger.Logger
	API       *api.Client
	Sessions  *session.Store
	Catalog   *catalog.Accessor
	Dashboard *tickets.Dashboard
	Passes    *template.TicketPDFGenerator
	Cue       registration.Cue
	Lock      registration.Locker // set with the redis session backend
	LocalDB   *db.DB
	Producer  *kafka.Producer

	redis *redis.Client
}

// Build connects every backing service named in cfg. Optional services
// (local database, kafka) degrade to disabled with a warning.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger, extraCues ...registration.Cue) (*App, error) {
	a := &App{Config: cfg, Logger: log}

	a.API = api.NewClient(cfg.API.BaseURL, cfg.API.PurchaseURL, cfg.API.Timeout, log)
	log.Info("API", fmt.Sprintf("Using festival API at %s (purchases via %s)", a.API.BaseURL, a.API.PurchaseURL))

	storage, err := a.sessionStorage(ctx)
	if err != nil {
		return nil, err
	}
	a.Sessions = session.NewStore(storage, session.WithLogger(log))
	if a.redis != nil {
		a.Lock = regredis.NewSubmissionLock(a.redis, cfg.Session.KeyPrefix, cfg.Session.LockTTL, log)
	}
	a.Catalog = catalog.NewAccessor(a.API, log)

	if cfg.Database.Path != "" {
		localDB, err := db.Open(ctx, cfg.Database.Path)
		if err != nil {
			log.Warn("DATABASE", fmt.Sprintf("Local ticket store disabled: %v", err))
		} else {
			if cfg.Database.MaxOpenConns > 0 {
				localDB.Bun.SetMaxOpenConns(cfg.Database.MaxOpenConns)
			}
			a.LocalDB = localDB
			log.LogDatabase("open", "local_tickets", cfg.Database.Path)
		}
	}

	// A nil *db.DB must not end up inside the interface.
	var store tickets.LocalStore
	if a.LocalDB != nil {
		store = a.LocalDB
	}
	a.Dashboard = tickets.NewDashboard(a.API, store, a.Sessions, log)

	a.Passes = template.NewTicketPDFGenerator(cfg.Pass.Title, cfg.Pass.FontPath, cfg.Pass.QRSecret)

	cues := registration.MultiCue(extraCues)
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, []string{cfg.Kafka.Topic}, log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		a.Producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		cues = append(cues, kafka.PurchaseCue{Producer: a.Producer})
		log.Info("KAFKA", "Registration attempts will be published")
	}
	if len(cues) > 0 {
		a.Cue = cues
	}

	return a, nil
}

func (a *App) sessionStorage(ctx context.Context) (session.Storage, error) {
	cfg := a.Config.Session
	switch cfg.Backend {
	case "file", "":
		return session.NewFileStorage(cfg.Dir), nil
	case "memory":
		return session.NewMemoryStorage(), nil
	case "redis":
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis connection error: %w", err)
		}
		a.Logger.Info("SESSION", fmt.Sprintf("Session stored in Redis at %s", cfg.RedisAddr))
		return session.NewRedisStorage(a.redis, cfg.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}

// OutputDir is where passes are written by default.
func (a *App) OutputDir() string {
	if a.Config.Pass.OutputDir != "" {
		return a.Config.Pass.OutputDir
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

func (a *App) Close() {
	if a.Producer != nil {
		if err := a.Producer.Close(); err != nil {
			a.Logger.Error("KAFKA", fmt.Sprintf("Failed to close producer: %v", err))
		}
	}
	if a.LocalDB != nil {
		if err := a.LocalDB.Close(); err != nil {
			a.Logger.Error("DATABASE", fmt.Sprintf("Failed to close local database: %v", err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}
