package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/shouni/go-utils/envutil"

	libconfig "github.com/shouni/go-comic-kit/pkg/config"
)

// デフォルト値の定義なのだ
const (
	DefaultHTTPAddr     = ":8080"
	DefaultDBFileName   = "comics.db"
	DefaultAppDirName   = "go-comic-kit"
	DefaultRunIdleTTL   = time.Hour
	DefaultStyleID      = "classic-american"
	DefaultAspectRatio  = "3:4"
	DefaultPDFFile      = "comic-book.pdf"
	DefaultJWTSecret    = "go-comic-kit-local-development-secret"
	DefaultPanelDelayMS = 1200
)

// Config はアプリケーション全体の環境設定（APIキーや保存先など）を保持する構造体なのだ。
// 設定ファイル (TOML) → 環境変数 → CLI フラグの順に上書きされます。
type Config struct {
	ProjectID    string `toml:"project_id"`
	LocationID   string `toml:"region"`
	GeminiAPIKey string `toml:"gemini_api_key"`
	TextModel    string `toml:"text_model"`
	ProModel     string `toml:"pro_model"`
	ImageModel   string `toml:"image_model"`

	DBPath       string `toml:"db_path"`
	JWTSecret    string `toml:"jwt_secret"`
	HTTPAddr     string `toml:"http_addr"`
	PanelDelayMS int    `toml:"panel_delay_ms"`

	Options GenerateOptions `toml:"-"`
}

// GenerateOptions は CLI フラグから渡される実行時のパラメータなのだ。
type GenerateOptions struct {
	ScriptFile  string // --script-file
	Style       string // --style
	AspectRatio string // --aspect
	Title       string // --title
	PDFFile     string // --pdf
	ImageDir    string // --image-dir
	Interactive bool   // --interactive
	EnhanceAll  bool   // --enhance-all
}

// LoadConfig は設定ファイル（任意）と環境変数から設定を読み込むのだ！
// path が空なら設定ファイルは読みません。
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("設定ファイルが見つかりません: %s", path)
		case err != nil:
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗しました: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("設定ファイルの解析に失敗しました (%s): %w", path, err)
		}
	}

	cfg.ProjectID = envutil.GetEnv("PROJECT_ID", cfg.ProjectID)
	cfg.LocationID = envutil.GetEnv("REGION", orDefault(cfg.LocationID, libconfig.DefaultLocationID))
	cfg.GeminiAPIKey = envutil.GetEnv("GEMINI_API_KEY", cfg.GeminiAPIKey)
	cfg.TextModel = envutil.GetEnv("GEMINI_TEXT_MODEL", orDefault(cfg.TextModel, libconfig.DefaultFlashModel))
	cfg.ProModel = envutil.GetEnv("GEMINI_PRO_MODEL", orDefault(cfg.ProModel, libconfig.DefaultProModel))
	cfg.ImageModel = envutil.GetEnv("IMAGE_MODEL", orDefault(cfg.ImageModel, libconfig.DefaultImageModel))
	cfg.DBPath = envutil.GetEnv("COMIC_DB_PATH", orDefault(cfg.DBPath, defaultDBPath()))
	cfg.JWTSecret = envutil.GetEnv("COMIC_JWT_SECRET", cfg.JWTSecret)
	cfg.HTTPAddr = envutil.GetEnv("COMIC_HTTP_ADDR", orDefault(cfg.HTTPAddr, DefaultHTTPAddr))
	if cfg.PanelDelayMS <= 0 {
		cfg.PanelDelayMS = DefaultPanelDelayMS
	}
	return cfg, nil
}

// GeminiConfig は生成サービス向けの設定に変換します。
func (c *Config) GeminiConfig() libconfig.Config {
	gc := libconfig.DefaultConfig()
	gc.GeminiAPIKey = c.GeminiAPIKey
	gc.ProjectID = c.ProjectID
	gc.LocationID = c.LocationID
	gc.ProModel = c.ProModel
	gc.FlashModel = c.TextModel
	gc.ChatModel = c.TextModel
	gc.ImageModel = c.ImageModel
	gc.PanelDelay = c.PanelDelay()
	return gc.WithDefaults()
}

// PanelDelay はコマ生成の合間の待ち時間です。
func (c *Config) PanelDelay() time.Duration {
	return time.Duration(c.PanelDelayMS) * time.Millisecond
}

// Secret はトークン署名鍵を返します。未設定ならローカル開発用の固定値なのだ。
func (c *Config) Secret() (secret []byte, isDefault bool) {
	if c.JWTSecret == "" {
		return []byte(DefaultJWTSecret), true
	}
	return []byte(c.JWTSecret), false
}

// AppDir はセッションやデータベースを置くディレクトリです。
func AppDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "."+DefaultAppDirName)
	}
	return filepath.Join(dir, DefaultAppDirName)
}

func defaultDBPath() string {
	return filepath.Join(AppDir(), DefaultDBFileName)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
