package builder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/shouni/go-comic-kit/internal/config"
	"github.com/shouni/go-comic-kit/internal/server"
	"github.com/shouni/go-comic-kit/pkg/gemini"
	"github.com/shouni/go-comic-kit/pkg/identity"
	"github.com/shouni/go-comic-kit/pkg/pipeline"
	"github.com/shouni/go-comic-kit/pkg/store"
)

// MemoryDBPath を DB パスに指定すると、作品はプロセス内にだけ保存されるのだ。
const MemoryDBPath = ":memory:"

// ErrDefaultSecret は HTTP API をローカル開発用の署名鍵で公開しようとしたことを表します。
var ErrDefaultSecret = errors.New("serve にはローカル開発用ではない署名鍵が必要です。COMIC_JWT_SECRET を設定してください")

// BuildAppContext は保存先と利用者管理までを組み立てます。生成サービスは含みません。
func BuildAppContext(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*AppContext, error) {
	repo, err := BuildRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}
	id, err := BuildIdentity(cfg, logger, repo)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}
	return NewAppContext(cfg, logger, repo, id), nil
}

// BuildRepository は設定された DB パスに応じて作品の保存先を構築します。
func BuildRepository(ctx context.Context, cfg *config.Config) (store.Repository, error) {
	if cfg.DBPath == MemoryDBPath {
		return store.NewMemory(nil), nil
	}
	repo, err := store.OpenSQLite(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("作品データベースの初期化に失敗しました: %w", err)
	}
	return repo, nil
}

// BuildIdentity は CLI のセッションファイルを使う利用者管理を構築します。
// 表示名と利用者 ID の対応は作品と同じ保存先に持つのだ。
func BuildIdentity(cfg *config.Config, logger *slog.Logger, users store.Users) (*identity.Manager, error) {
	secret, isDefault := cfg.Secret()
	if isDefault {
		logger.Debug("COMIC_JWT_SECRET が未設定のため、ローカル開発用の署名鍵を使います")
	}
	session := identity.NewFileSession(filepath.Join(config.AppDir(), "session"))
	m, err := identity.NewManager(secret,
		identity.WithSessionStore(session),
		identity.WithUsers(users),
	)
	if err != nil {
		return nil, fmt.Errorf("利用者管理の初期化に失敗しました: %w", err)
	}
	return m, nil
}

// BuildGenerator は genai クライアントを初期化し、生成サービスとチャットを AppContext に設定します。
func BuildGenerator(ctx context.Context, appCtx *AppContext) error {
	gc := appCtx.Config.GeminiConfig()
	client, err := gemini.NewClient(ctx, gc)
	if err != nil {
		return err
	}

	svc, err := gemini.New(client, gc, gemini.WithLogger(appCtx.Logger))
	if err != nil {
		return fmt.Errorf("生成サービスの初期化に失敗しました: %w", err)
	}
	chat, err := gemini.NewChatSession(client, gc)
	if err != nil {
		return fmt.Errorf("チャットの初期化に失敗しました: %w", err)
	}
	appCtx.Service = svc
	appCtx.Chat = chat
	return nil
}

// BuildController は1回分の生成フローを構築します。
func BuildController(appCtx *AppContext, opts ...pipeline.Option) (*pipeline.Controller, error) {
	if appCtx.Service == nil {
		return nil, fmt.Errorf("生成サービスが初期化されていません")
	}
	base := []pipeline.Option{
		pipeline.WithPanelDelay(appCtx.Config.PanelDelay()),
		pipeline.WithLogger(appCtx.Logger),
	}
	if appCtx.Store != nil {
		base = append(base, pipeline.WithPersister(appCtx.Store))
	}
	return pipeline.New(appCtx.Service, append(base, opts...)...)
}

// BuildServer は HTTP API を構築します。ローカル開発用の署名鍵のままでは起動しないのだ。
func BuildServer(appCtx *AppContext) (*server.Server, error) {
	if _, isDefault := appCtx.Config.Secret(); isDefault {
		return nil, ErrDefaultSecret
	}
	if appCtx.Service == nil {
		return nil, fmt.Errorf("生成サービスが初期化されていません")
	}
	cfg := server.Config{
		Service:    appCtx.Service,
		Store:      appCtx.Store,
		Identity:   appCtx.Identity,
		Logger:     appCtx.Logger,
		RunIdleTTL: config.DefaultRunIdleTTL,
		ControllerOptions: []pipeline.Option{
			pipeline.WithPanelDelay(appCtx.Config.PanelDelay()),
		},
	}
	// nil のポインタをインターフェースに入れないのだ
	if appCtx.Chat != nil {
		cfg.Chat = appCtx.Chat
	}
	return server.New(cfg)
}
