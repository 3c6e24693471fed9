package config

import (
	"time"
)

// デフォルト値の定義
const (
	DefaultLocationID = "us-central1"

	// DefaultProModel はキャラクター・シーンの抽出と描写の書き直しに使うモデルです。
	DefaultProModel = "gemini-2.5-pro"
	// DefaultFlashModel はコマ割り・ページ割り・チャットに使う高速モデルです。
	DefaultFlashModel = "gemini-2.5-flash"
	DefaultImageModel = "imagen-4.0-generate-001"

	DefaultTemperature       = float32(0.4)
	DefaultImageRateInterval = time.Second
	DefaultImageBurst        = 1
	DefaultResponseCacheTTL  = 30 * time.Minute
	DefaultPanelDelay        = 1200 * time.Millisecond

	ChatSystemInstruction = "You are a friendly and helpful assistant specializing in comic books and storytelling."
)

// Config は Go Comic Kit の生成サービスとパイプラインを動作させるための基本設定です。
type Config struct {
	// --- Google AI (Gemini API) Settings ---
	GeminiAPIKey string

	// --- Vertex AI Settings ---
	ProjectID  string // Google Cloud Project ID。空なら Gemini API を使う
	LocationID string

	// --- AI Model Settings ---
	ProModel   string
	FlashModel string
	ImageModel string
	ChatModel  string

	Temperature float32

	// --- Rate Settings ---
	ImageRateInterval time.Duration // 画像生成リクエストの最小間隔（全実行で共有）
	ImageBurst        int
	ResponseCacheTTL  time.Duration // 抽出結果のキャッシュ期間。0 でキャッシュ無効
	PanelDelay        time.Duration // パネル生成の合間に挟む待ち時間
}

// DefaultConfig は推奨されるデフォルト設定を返すヘルパー関数です。
func DefaultConfig() Config {
	return Config{
		LocationID:        DefaultLocationID,
		ProModel:          DefaultProModel,
		FlashModel:        DefaultFlashModel,
		ImageModel:        DefaultImageModel,
		ChatModel:         DefaultFlashModel,
		Temperature:       DefaultTemperature,
		ImageRateInterval: DefaultImageRateInterval,
		ImageBurst:        DefaultImageBurst,
		ResponseCacheTTL:  DefaultResponseCacheTTL,
		PanelDelay:        DefaultPanelDelay,
	}
}

// WithDefaults は空のフィールドをデフォルト値で埋めたコピーを返すのだ。
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.LocationID == "" {
		c.LocationID = d.LocationID
	}
	if c.ProModel == "" {
		c.ProModel = d.ProModel
	}
	if c.FlashModel == "" {
		c.FlashModel = d.FlashModel
	}
	if c.ImageModel == "" {
		c.ImageModel = d.ImageModel
	}
	if c.ChatModel == "" {
		c.ChatModel = c.FlashModel
	}
	if c.Temperature == 0 {
		c.Temperature = d.Temperature
	}
	if c.ImageRateInterval < 0 {
		c.ImageRateInterval = 0
	}
	if c.ImageBurst <= 0 {
		c.ImageBurst = d.ImageBurst
	}
	if c.PanelDelay < 0 {
		c.PanelDelay = 0
	}
	return c
}
