package builder

import (
	"log/slog"

	"github.com/shouni/go-comic-kit/internal/config"
	"github.com/shouni/go-comic-kit/pkg/gemini"
	"github.com/shouni/go-comic-kit/pkg/identity"
	"github.com/shouni/go-comic-kit/pkg/store"
)

// AppContext は、アプリケーション実行に必要な共通コンテキストを保持する
// これを各Build関数に渡すことで、依存関係の注入を簡素化します。
type AppContext struct {
	Config   *config.Config         // Configは、設定ファイルと環境変数から読み込まれたグローバルな設定です。
	Options  config.GenerateOptions // Optionsは、コマンドラインから渡された実行時の設定です。
	Logger   *slog.Logger
	Store    store.Repository    // Storeは、完成した作品の保存先です。
	Identity *identity.Manager   // Identityは、サインイン中の利用者を管理します。
	Service  *gemini.Service     // Serviceは、生成の各工程を呼び出す窓口です。生成しないコマンドでは nil なのだ。
	Chat     *gemini.ChatSession // Chatは、アプリケーション全体で1つだけのチャットセッションです。
}

// NewAppContext は AppContext の新しいインスタンスを生成する
func NewAppContext(cfg *config.Config, logger *slog.Logger, repo store.Repository, id *identity.Manager) *AppContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &AppContext{
		Config:   cfg,
		Options:  cfg.Options,
		Logger:   logger,
		Store:    repo,
		Identity: id,
	}
}

// Close は保持しているリソースを解放します。
func (a *AppContext) Close() error {
	if a.Store == nil {
		return nil
	}
	return a.Store.Close()
}
