package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/docintel/detect"
	"github.com/hazyhaar/docintel/extract"
	"github.com/hazyhaar/docintel/fault"
)

var (
	flagAddr string
	flagMCP  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the extraction engine over HTTP, or over MCP stdio with --mcp",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		logger := setupLogger()
		engine, cfg, err := setupEngine(logger)
		if err != nil {
			return err
		}
		defer engine.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if flagMCP {
			return serveMCP(ctx, engine, logger)
		}
		return serveHTTP(ctx, engine, cfg, logger)
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagAddr, "addr", env("DOCINTEL_ADDR", ":8086"), "HTTP listen address")
	serveCmd.Flags().BoolVar(&flagMCP, "mcp", false, "serve MCP over stdio instead of HTTP")
}

// serveMCP runs an MCP session over stdin/stdout until the peer disconnects
// or the process is signalled.
func serveMCP(ctx context.Context, engine *extract.Engine, logger *slog.Logger) error {
	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "docintel",
		Version: version,
	}, nil)
	engine.RegisterMCP(srv)

	transport := &mcp.IOTransport{
		Reader: os.Stdin,
		Writer: os.Stdout,
	}

	logger.Info("MCP stdio session starting")
	session, err := srv.Connect(ctx, transport, nil)
	if err != nil {
		return err
	}
	return session.Wait()
}

func serveHTTP(ctx context.Context, engine *extract.Engine, cfg *extract.Config, logger *slog.Logger) error {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/formats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, formatList())
	})

	r.Get("/cache/stats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, engine.CacheStats())
	})

	r.Post("/extract", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Path   string          `json:"path"`
			Config *extract.Config `json:"config"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		reqCfg := body.Config
		if reqCfg == nil {
			reqCfg = cfg
		}
		res, err := engine.ExtractFile(req.Context(), body.Path, reqCfg)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	r.Post("/batch", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Paths  []string        `json:"paths"`
			Config *extract.Config `json:"config"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		reqCfg := body.Config
		if reqCfg == nil {
			reqCfg = cfg
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"results": engine.Batch(req.Context(), body.Paths, reqCfg),
		})
	})

	srv := &http.Server{
		Addr:              flagAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("HTTP server starting", "addr", flagAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// requestID tags every request with a UUID for log correlation.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		slog.Debug("request", "id", id, "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

// statusFor maps extraction error kinds to HTTP statuses.
func statusFor(err error) int {
	switch fault.KindOf(err) {
	case fault.KindValidation:
		return http.StatusBadRequest
	case fault.KindUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case fault.KindIO:
		return http.StatusNotFound
	case fault.KindMissingDependency:
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

func formatList() []map[string]string {
	var out []map[string]string
	for _, f := range detect.Formats() {
		out = append(out, map[string]string{
			"format":    string(f),
			"mime_type": detect.MimeType(f),
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{
		"error": err.Error(),
		"kind":  string(fault.KindOf(err)),
	})
}
