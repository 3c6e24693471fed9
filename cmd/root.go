package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shouni/go-comic-kit/internal/builder"
	"github.com/shouni/go-comic-kit/internal/config"
)

// グローバルフラグの値なのだ。
var (
	configPath string
	dbPath     string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "comic-kit",
	Short: "台本から漫画を仕上げる AI パイプラインなのだ。",
	Long: `台本を解析してキャラクターとシーンを抽出し、レビューを挟んでから
表紙・各コマの画像とページ割りを生成するのだ。作品の保存や PDF 書き出し、HTTP API もあるのだよ。`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogger()
	},
}

// addAppFlags は、アプリケーション全般に適用されるグローバルフラグを定義するのだ。
func addAppFlags(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "設定ファイル (TOML) のパスなのだ。")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "作品データベースのパス（':memory:' でプロセス内だけに保存）なのだ。")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "デバッグログを出力するのだ。")
}

func setupLogger() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// loadConfig は設定ファイル・環境変数・フラグの順に設定を組み立てるのだ。
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	cfg.Options = opts
	return cfg, nil
}

// preRunAppE は、コマンド実行前に環境変数などの必須チェックを行うのだ。
func preRunAppE(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// Vertex AI を使う場合は API キーの代わりにプロジェクト ID があればよいのだ
	if cfg.GeminiAPIKey == "" && cfg.ProjectID == "" {
		return fmt.Errorf("エラー: 環境変数 GEMINI_API_KEY が設定されていません。Gemini APIの利用には必須なのだ")
	}
	return nil
}

// newAppContext はコマンドの実行に必要な依存関係を組み立てます。
// withGenerator が true なら生成サービスとチャットも初期化するのだ。
func newAppContext(ctx context.Context, withGenerator bool) (*builder.AppContext, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	appCtx, err := builder.BuildAppContext(ctx, cfg, slog.Default())
	if err != nil {
		return nil, err
	}
	if withGenerator {
		if err := builder.BuildGenerator(ctx, appCtx); err != nil {
			_ = appCtx.Close()
			return nil, err
		}
	}
	return appCtx, nil
}

func init() {
	addAppFlags(rootCmd)
	rootCmd.AddCommand(
		generateCmd,
		projectsCmd,
		stylesCmd,
		chatCmd,
		loginCmd,
		logoutCmd,
		whoamiCmd,
		serveCmd,
	)
}

// Execute は、アプリケーションのメインエントリポイントなのだ。
// Ctrl+C で実行中の生成を中断できるようにするのだ。
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
