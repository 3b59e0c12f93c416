package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/sirta-dev/sirta/modules/registry/domain/events"
	"github.com/sirta-dev/sirta/modules/registry/infrastructure/persistence"
	"github.com/sirta-dev/sirta/modules/registry/presentation/controllers"
	"github.com/sirta-dev/sirta/modules/registry/services"
	"github.com/sirta-dev/sirta/pkg/composables"
	"github.com/sirta-dev/sirta/pkg/configuration"
	"github.com/sirta-dev/sirta/pkg/eventbus"
)

func main() {
	conf := configuration.Use()
	defer conf.Unload()
	log := conf.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, conf.Database.Opts)
	if err != nil {
		log.WithError(err).Fatal("failed to create database pool")
	}
	defer pool.Close()

	publisher := eventbus.NewEventPublisher(log)
	publisher.Subscribe(func(e events.BatchValidated) {
		log.WithFields(logrus.Fields{
			"batch": e.BatchID, "kind": e.Kind,
			"valid": e.Valid, "invalid": e.Invalid, "warnings": e.Warnings,
		}).Info("ingest batch validated")
	})
	publisher.Subscribe(func(e events.BatchCommitted) {
		log.WithFields(logrus.Fields{
			"batch": e.BatchID, "kind": e.Kind,
			"created": e.Created, "updated": e.Updated, "failed": e.Failed,
		}).Info("ingest batch committed")
	})

	ingest := services.NewIngestService(
		persistence.NewCompanyRepository(),
		persistence.NewResolutionRepository(),
		persistence.NewRouteRepository(),
		persistence.NewLocalityRepository(),
		persistence.NewVehicleRepository(),
		publisher,
		log,
		services.IngestConfig{MaxRows: conf.Ingest.MaxRows, Strict: conf.Ingest.Strict},
	)

	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(composables.WithPool(req.Context(), pool)))
		})
	})
	controllers.NewIngestController(ingest).Register(r)

	srv := &http.Server{
		Addr:              conf.SocketAddress,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithField("address", conf.SocketAddress).Info("server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("server stopped")
	}
}
