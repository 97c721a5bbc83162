// Command panelbench serves the simulation API: template discovery,
// validated dataset runs, and asynchronous artifact exports.
//
// Configuration comes from environment variables (PANELBENCH_STORAGE_DRIVER,
// PANELBENCH_BLOB_DRIVER and friends) plus the -addr flag.
package main

import (
	"context"
	"encoding/json"
	"expvar"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"panelbench/internal/adapters/exports"
	"panelbench/internal/blob"
	"panelbench/internal/core"
	"panelbench/plugins/crossedpanel"
)

func main() {
	addr := flag.String("addr", defaultAddr(), "listen address")
	flag.Parse()
	if err := run(*addr); err != nil {
		log.Fatalf("panelbench: %v", err)
	}
}

func defaultAddr() string {
	if v := os.Getenv("PANELBENCH_ADDR"); v != "" {
		return v
	}
	return ":8080"
}

func run(addr string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := core.OpenPersistentStore()
	if err != nil {
		return fmt.Errorf("open persistent store: %w", err)
	}
	defer closeIfCloser(store)

	opts := []core.ServiceOption{core.WithMetricsRecorder(newMetricsRecorder())}
	if path := os.Getenv("PANELBENCH_TRACE_LOG"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open trace log: %w", err)
		}
		defer f.Close()
		opts = append(opts, core.WithTracer(core.NewJSONTracer(f)))
	}

	svc := core.NewService(store, opts...)
	if _, err := svc.RegisterTemplate(crossedpanel.Study, crossedpanel.Template()); err != nil {
		return fmt.Errorf("register template: %w", err)
	}

	blobStore, err := blob.Open(ctx)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	worker := exports.NewWorker(svc, exports.NewBlobObjectStore(blobStore), jsonAuditLogger{out: os.Stdout})
	worker.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = worker.Stop(shutdownCtx)
	}()

	handler := exports.NewHandler(svc)
	handler.Exports = worker

	mux := http.NewServeMux()
	mux.Handle("/api/v1/sim/", handler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/debug/vars", expvar.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("panelbench listening on %s", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// newMetricsRecorder prefers Prometheus; when registration against the
// default registry fails the service keeps publishing through expvar.
func newMetricsRecorder() core.MetricsRecorder {
	metrics, err := core.NewPrometheusMetricsRecorder(nil)
	if err != nil {
		log.Printf("prometheus metrics unavailable, falling back to expvar: %v", err)
		return core.NewExpvarMetricsRecorder("")
	}
	return metrics
}

func closeIfCloser(v any) {
	if closer, ok := v.(io.Closer); ok {
		_ = closer.Close()
	}
}

// jsonAuditLogger writes export audit entries as JSON lines.
type jsonAuditLogger struct {
	out io.Writer
}

func (l jsonAuditLogger) Record(_ context.Context, entry exports.AuditEntry) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return
	}
	payload = append(payload, '\n')
	_, _ = l.out.Write(payload)
}
