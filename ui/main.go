package main

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"paperscout/internal/config"
	"paperscout/internal/logger"
)

//go:embed index.html
var content embed.FS

// The ui binary serves the chat page and forwards its API calls to the
// backend, so the browser only ever talks to one origin.
func main() {
	log := logger.New("ui")
	cfg, err := config.LoadUI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	page, err := template.ParseFS(content, "index.html")
	if err != nil {
		log.Error("parse template", slog.Any("err", err))
		os.Exit(1)
	}

	srv := &server{
		log:     log,
		cfg:     cfg,
		page:    page,
		backend: &http.Client{Timeout: 130 * time.Second},
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/", srv.handleIndex)
	r.Post("/api/query", srv.proxy("/agent/query"))
	r.Post("/api/translate", srv.proxy("/agent/translate_summary"))

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	go func() {
		log.Info("ui server starting",
			slog.String("addr", cfg.BindAddr),
			slog.String("backend", cfg.BackendURL),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}

type server struct {
	log     *slog.Logger
	cfg     *config.UI
	page    *template.Template
	backend *http.Client
}

func (s *server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.page.Execute(w, nil); err != nil {
		s.log.Error("render page", slog.Any("err", err))
	}
}

// proxy forwards the request body to the backend path and streams the
// response back unchanged.
func (s *server) proxy(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, s.cfg.BackendURL+path, r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.backend.Do(req)
		if err != nil {
			s.log.Error("backend request failed", slog.String("path", path), slog.Any("err", err))
			http.Error(w, `{"error":"backend unavailable"}`, http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.StatusCode)
		if _, err := io.Copy(w, resp.Body); err != nil {
			s.log.Warn("copy backend response", slog.Any("err", err))
		}
	}
}
