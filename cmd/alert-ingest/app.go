package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/BearBump/ShipAlert/internal/broker/messages"
	"github.com/BearBump/ShipAlert/internal/metrics"
	"github.com/BearBump/ShipAlert/internal/services/pipeline"
	"github.com/go-chi/chi/v5"
)

type ingestOpts struct {
	httpAddr string

	topic         string
	consumerGroup string

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

// runAlertIngest поднимает health/stats HTTP и гонит consume-цикл:
// shipment.updates -> нормализация -> вердикт -> enqueue.
func runAlertIngest(ctx context.Context, opts ingestOpts, svc *pipeline.Service, consumer kafkaConsumer, rep *metrics.Reporter) error {
	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runIngestHTTPServer(ctx, lis, rep)
	}()

	consumeErr := make(chan error, 1)
	go func() {
		slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
		consumeErr <- consumer.Consume(ctx, func(_key, value []byte) error {
			var m messages.ShipmentUpdateReceived
			if err := json.Unmarshal(value, &m); err != nil {
				// Битый payload ретраить бессмысленно: логируем, коммитим offset.
				slog.Error("malformed shipment update, skipping", "error", err)
				rep.InputError()
				return nil
			}
			return svc.Handle(ctx, m)
		})
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-httpErr:
		return err
	case err := <-consumeErr:
		return err
	}
}

func runIngestHTTPServer(ctx context.Context, lis net.Listener, rep *metrics.Reporter) error {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})
	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rep.Snapshot())
	})

	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	slog.Info("ingest HTTP listening", "addr", lis.Addr().String())
	return srv.Serve(lis)
}
