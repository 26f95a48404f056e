// Command server wires the trust engine together and runs the HTTP surface.
// Business logic lives in the internal service packages; this file only
// chooses store implementations from configuration and manages lifecycle.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"pharmatrust/internal/credential"
	credentialservice "pharmatrust/internal/credential/service"
	"pharmatrust/internal/identity"
	"pharmatrust/internal/identity/keystore"
	identityservice "pharmatrust/internal/identity/service"
	"pharmatrust/internal/jwttoken"
	"pharmatrust/internal/medicine"
	"pharmatrust/internal/platform/config"
	"pharmatrust/internal/platform/httpserver"
	"pharmatrust/internal/platform/kafka"
	"pharmatrust/internal/platform/logger"
	"pharmatrust/internal/platform/postgres"
	"pharmatrust/internal/platform/redis"
	"pharmatrust/internal/revocation"
	"pharmatrust/internal/scanlog"
	httptransport "pharmatrust/internal/transport/http"
	"pharmatrust/internal/verification"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return err
		}
	}

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	producer, err := kafka.NewProducer(cfg.Kafka)
	if err != nil {
		return err
	}

	// Store selection: Postgres/Redis when configured, in-memory otherwise.
	var (
		identityStore   identity.Store
		medicineStore   medicine.Store
		credentialStore credential.Store
		registry        revocation.Registry
		auditStore      scanlog.Store
	)
	if db != nil {
		identityStore = identity.NewPostgresStore(db)
		medicineStore = medicine.NewPostgresStore(db)
		credentialStore = credential.NewPostgresStore(db)
		auditStore = scanlog.NewPostgresStore(db)
		registry = revocation.NewPostgresRegistry(db)
	} else {
		identityStore = identity.NewInMemoryStore()
		medicineStore = medicine.NewInMemoryStore()
		credentialStore = credential.NewInMemoryStore()
		auditStore = scanlog.NewInMemoryStore()
		registry = revocation.NewInMemoryRegistry()
	}
	// The revocation check sits on the hot scan path; Redis takes over when
	// available.
	if redisClient != nil {
		registry = revocation.NewRedisRegistry(redisClient.Client)
	}

	var keys keystore.Store
	if cfg.KeyDir != "" {
		keys, err = keystore.NewFileStore(cfg.KeyDir)
		if err != nil {
			return err
		}
	} else {
		keys = keystore.NewInMemoryStore()
	}

	events := scanlog.NewPublisher(producerOrNil(producer), log, 256)

	identitySvc, err := identityservice.New(identityStore, keys, registry, db, log)
	if err != nil {
		return err
	}
	credentialSvc, err := credentialservice.New(credentialStore, identityStore, keys, medicineStore, log)
	if err != nil {
		return err
	}
	pipeline, err := verification.New(identityStore, registry, medicineStore, credentialStore, auditStore, events, log)
	if err != nil {
		return err
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Identity:     identitySvc,
		Credentials:  credentialSvc,
		Verification: pipeline,
		Tokens:       jwttoken.NewService(cfg.JWTSigningKey, cfg.JWTIssuer),
		Logger:       log,
		Health:       healthCheck(ctx, db, redisClient),
	})
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting pharmatrust server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		events.Close()
		if producer != nil {
			producer.Close()
		}
		return nil
	})
	return g.Wait()
}

// producerOrNil avoids handing a typed-nil *kafka.Producer to the publisher's
// interface field.
func producerOrNil(p *kafka.Producer) scanlog.Producer {
	if p == nil {
		return nil
	}
	return p
}

func healthCheck(ctx context.Context, db *sql.DB, r *redis.Client) func() map[string]string {
	return func() map[string]string {
		out := map[string]string{}
		if db != nil {
			out["postgres"] = "ok"
			if err := db.PingContext(ctx); err != nil {
				out["postgres"] = "unreachable"
			}
		}
		if r != nil {
			out["redis"] = "ok"
			if err := r.Health(ctx); err != nil {
				out["redis"] = "unreachable"
			}
		}
		return out
	}
}
