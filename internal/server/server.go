// Package server は生成フローを HTTP API として公開します。
// 1つの run が1回分の生成フローで、作成した利用者だけが操作できるのだ。
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/patrickmn/go-cache"

	"github.com/shouni/go-comic-kit/pkg/identity"
	"github.com/shouni/go-comic-kit/pkg/pipeline"
	"github.com/shouni/go-comic-kit/pkg/stage"
	"github.com/shouni/go-comic-kit/pkg/store"
)

const (
	DefaultRunIdleTTL = time.Hour
	shutdownTimeout   = 10 * time.Second
)

// Config は Server の依存関係です。
type Config struct {
	Service  stage.Service
	Chat     stage.Chatter
	Store    store.Repository
	Identity *identity.Manager
	Logger   *slog.Logger

	// RunIdleTTL を過ぎて誰も触らなかった run は破棄されるのだ。
	RunIdleTTL time.Duration
	// ControllerOptions は run ごとの Controller に追加で渡すオプションです。
	ControllerOptions []pipeline.Option
}

// Server は HTTP ハンドラと run の置き場を持ちます。
type Server struct {
	service  stage.Service
	chat     stage.Chatter
	repo     store.Repository
	identity *identity.Manager
	logger   *slog.Logger
	ctrlOpts []pipeline.Option

	runs *cache.Cache

	// baseCtx は非同期に実行する工程の親コンテキストです。リクエストが終わっても続くのだ。
	baseCtx context.Context
	cancel  context.CancelFunc
}

// New は Server を生成します。
func New(cfg Config) (*Server, error) {
	switch {
	case cfg.Service == nil:
		return nil, fmt.Errorf("stage.Service は必須です")
	case cfg.Store == nil:
		return nil, fmt.Errorf("store.Repository は必須です")
	case cfg.Identity == nil:
		return nil, fmt.Errorf("identity.Manager は必須です")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RunIdleTTL <= 0 {
		cfg.RunIdleTTL = DefaultRunIdleTTL
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		service:  cfg.Service,
		chat:     cfg.Chat,
		repo:     cfg.Store,
		identity: cfg.Identity,
		logger:   cfg.Logger,
		ctrlOpts: cfg.ControllerOptions,
		runs:     cache.New(cfg.RunIdleTTL, cfg.RunIdleTTL/2),
		baseCtx:  ctx,
		cancel:   cancel,
	}, nil
}

// Handler はルーティング済みの http.Handler を返します。
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/session", s.handleSignIn)
		r.Get("/styles", s.handleStyles)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Post("/runs", s.handleCreateRun)
			r.Route("/runs/{runID}", func(r chi.Router) {
				r.Use(s.loadRun)
				r.Get("/", s.handleGetRun)
				r.Get("/events", s.handleEvents)
				r.Put("/characters/{index}", s.handleUpdateCharacter)
				r.Post("/characters/{index}/enhance", s.handleEnhanceCharacter)
				r.Post("/characters/confirm", s.handleConfirmCharacters)
				r.Put("/scenes/{index}", s.handleUpdateScene)
				r.Post("/scenes/{index}/enhance", s.handleEnhanceScene)
				r.Post("/scenes/confirm", s.handleConfirmScenes)
				r.Post("/save", s.handleSave)
				r.Post("/reset", s.handleReset)
				r.Get("/pdf", s.handlePDF)
			})

			r.Get("/projects", s.handleListProjects)
			r.Delete("/projects/{projectID}", s.handleDeleteProject)
			r.Post("/chat", s.handleChat)
		})
	})
	return r
}

// ListenAndServe は ctx が終わるまで addr で待ち受けます。
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP サーバーを起動しました", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP サーバーが停止しました: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("HTTP サーバーを停止します")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	return err
}

// Close は実行中の工程を止め、すべての run を破棄します。
func (s *Server) Close() {
	s.cancel()
	s.runs.Flush()
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.InfoContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).Round(time.Millisecond),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
