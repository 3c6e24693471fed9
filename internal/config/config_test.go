package config

import (
	"os"
	"path/filepath"
	"testing"

	libconfig "github.com/shouni/go-comic-kit/pkg/config"
)

func TestLoadConfig(t *testing.T) {
	for _, key := range []string{"PROJECT_ID", "REGION", "GEMINI_API_KEY", "GEMINI_TEXT_MODEL", "GEMINI_PRO_MODEL", "IMAGE_MODEL", "COMIC_DB_PATH", "COMIC_JWT_SECRET", "COMIC_HTTP_ADDR"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	t.Run("デフォルト値", func(t *testing.T) {
		cfg, err := LoadConfig("")
		if err != nil {
			t.Fatalf("読み込みに失敗したのだ: %v", err)
		}
		if cfg.TextModel != libconfig.DefaultFlashModel || cfg.ProModel != libconfig.DefaultProModel {
			t.Errorf("モデルの既定値がおかしいのだ: %+v", cfg)
		}
		if cfg.HTTPAddr != DefaultHTTPAddr || cfg.PanelDelay().Milliseconds() != DefaultPanelDelayMS {
			t.Errorf("既定値がおかしいのだ: %+v", cfg)
		}
		if _, isDefault := cfg.Secret(); !isDefault {
			t.Error("署名鍵は既定値のはずなのだ")
		}
	})

	t.Run("設定ファイルと環境変数", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "comic.toml")
		content := "gemini_api_key = \"file-key\"\nimage_model = \"imagen-file\"\ndb_path = \"/tmp/file.db\"\npanel_delay_ms = 500\n"
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		t.Setenv("GEMINI_API_KEY", "env-key")

		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("読み込みに失敗したのだ: %v", err)
		}
		if cfg.GeminiAPIKey != "env-key" {
			t.Errorf("環境変数が優先されるはずなのだ: %q", cfg.GeminiAPIKey)
		}
		if cfg.ImageModel != "imagen-file" || cfg.DBPath != "/tmp/file.db" {
			t.Errorf("設定ファイルの値が使われていないのだ: %+v", cfg)
		}

		gc := cfg.GeminiConfig()
		if gc.ImageModel != "imagen-file" || gc.PanelDelay.Milliseconds() != 500 || gc.ChatModel != libconfig.DefaultFlashModel {
			t.Errorf("生成サービス向けの設定がおかしいのだ: %+v", gc)
		}
	})

	t.Run("存在しない設定ファイル", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
			t.Error("エラーになるはずなのだ")
		}
	})
}
