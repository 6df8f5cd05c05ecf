package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/BearBump/ShipAlert/config"
	"github.com/BearBump/ShipAlert/internal/metrics"
	"github.com/BearBump/ShipAlert/internal/services/dispatcher"
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
)

type workerHTTPOpts struct {
	httpAddr    string
	swaggerPath string
	onListen    func(httpAddr string)

	dispatchers []*dispatcher.Dispatcher
	storage     workerStorage
	rep         *metrics.Reporter
	cfg         *config.Config
}

func runWorkerHTTPServer(ctx context.Context, opts workerHTTPOpts) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8082"
	}
	if opts.swaggerPath == "" {
		return fmt.Errorf("worker swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("worker swagger file not found: %s", opts.swaggerPath)
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

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
		byChannel := make(map[string]dispatcher.Stats, len(opts.dispatchers))
		for _, d := range opts.dispatchers {
			byChannel[d.Channel()] = d.Stats()
		}
		out := map[string]any{"dispatchers": byChannel}
		if opts.rep != nil {
			out["metrics"] = opts.rep.Snapshot()
		}
		_ = json.NewEncoder(w).Encode(out)
	})

	r.Get("/dead-jobs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.storage == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"storage not wired"}`))
			return
		}
		limit := queryInt(r, "limit", 50)
		offset := queryInt(r, "offset", 0)
		jobs, err := opts.storage.ListDeadJobs(r.Context(), limit, offset)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"deadJobs": jobs, "count": len(jobs)})
	})

	// Аудит дедупликации: когда сигнатура впервые попала в леджер.
	r.Get("/signatures/{signature}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.storage == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"storage not wired"}`))
			return
		}
		sig := chi.URLParam(r, "signature")
		seen, err := opts.storage.FirstSeen(r.Context(), sig)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		if seen == nil {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "signature not seen"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"delaySignature": sig, "firstSeenAt": seen})
	})

	r.Get("/config", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.cfg == nil {
			_, _ = w.Write([]byte(`{"error":"config not wired"}`))
			return
		}
		// Секреты провайдеров не показываем, только операционные настройки.
		sa := opts.cfg.ShipAlert
		out := map[string]any{
			"channels":               sa.Channels,
			"pollIntervalMs":         sa.NotifyPollIntervalMs,
			"leaseDurationMs":        sa.NotifyLeaseDurationMs,
			"maxAttempts":            sa.NotifyMaxAttempts,
			"backoffBaseMs":          sa.NotifyBackoffBaseMs,
			"backoffCapMs":           sa.NotifyBackoffCapMs,
			"batchSize":              sa.WorkerBatchSize,
			"concurrency":            sa.WorkerConcurrency,
			"sendRateLimitPerMinute": sa.SendRateLimitPerMinute,
			"smsProviderMode":        sa.SmsProviderMode,
			"emailProviderMode":      sa.EmailProviderMode,
		}
		_ = json.NewEncoder(w).Encode(out)
	})

	r.Post("/trigger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		for _, d := range opts.dispatchers {
			d.Trigger()
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"triggered": len(opts.dispatchers)})
	})

	// Swagger с no-cache + cachebuster, чтобы UI не залипал на старой схеме.
	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFile(w, r, opts.swaggerPath)
	})

	swaggerURL := "/swagger.json"
	if fi, err := os.Stat(opts.swaggerPath); err == nil {
		swaggerURL = fmt.Sprintf("/swagger.json?v=%d", fi.ModTime().Unix())
	}
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL(swaggerURL)))

	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	return srv.Serve(lis)
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}
