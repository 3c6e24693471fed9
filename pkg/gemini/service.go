// Package gemini は genai SDK を使って生成パイプラインの各工程を実装します。
package gemini

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/shouni/go-comic-kit/pkg/asset"
	"github.com/shouni/go-comic-kit/pkg/config"
	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/parser"
	"github.com/shouni/go-comic-kit/pkg/prompts"
	"github.com/shouni/go-comic-kit/pkg/retry"
	"github.com/shouni/go-comic-kit/pkg/stage"
)

// Models は genai.Models のうち、このパッケージが使うメソッドだけを切り出したものです。
type Models interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateImages(ctx context.Context, model string, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
}

// Service は stage.Service を Gemini / Imagen で実装します。
type Service struct {
	cfg     config.Config
	models  Models
	prompts prompts.PromptBuilder
	limiter *rate.Limiter
	cache   *cache.Cache
	retry   retry.Policy
	logger  *slog.Logger
}

var _ stage.Service = (*Service)(nil)

// Option は Service の任意設定です。
type Option func(*Service)

// WithRetryPolicy は再試行ポリシーを差し替えます。
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Service) { s.retry = p }
}

// WithLogger はロガーを差し替えます。
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithPromptBuilder はテキストプロンプトのビルダーを差し替えるのだ。
func WithPromptBuilder(pb prompts.PromptBuilder) Option {
	return func(s *Service) { s.prompts = pb }
}

// NewClient は設定に応じて Gemini API または Vertex AI の genai クライアントを生成します。
func NewClient(ctx context.Context, cfg config.Config) (*genai.Client, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.ProjectID != "" {
		cc = &genai.ClientConfig{
			Project:  cfg.ProjectID,
			Location: cfg.WithDefaults().LocationID,
			Backend:  genai.BackendVertexAI,
		}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("AIクライアントの初期化に失敗しました: %w", err)
	}
	return client, nil
}

// New は genai クライアントから Service を生成するのだ。
func New(client *genai.Client, cfg config.Config, opts ...Option) (*Service, error) {
	if client == nil {
		return nil, fmt.Errorf("genai クライアントは必須です")
	}
	return NewService(client.Models, cfg, opts...)
}

// NewService は任意の Models 実装から Service を生成します。
func NewService(models Models, cfg config.Config, opts ...Option) (*Service, error) {
	if models == nil {
		return nil, fmt.Errorf("Models は必須です")
	}
	cfg = cfg.WithDefaults()

	limit := rate.Inf
	if cfg.ImageRateInterval > 0 {
		limit = rate.Every(cfg.ImageRateInterval)
	}

	s := &Service{
		cfg:     cfg,
		models:  models,
		limiter: rate.NewLimiter(limit, cfg.ImageBurst),
		retry:   retry.DefaultPolicy(),
		logger:  slog.Default(),
	}
	if cfg.ResponseCacheTTL > 0 {
		s.cache = cache.New(cfg.ResponseCacheTTL, 2*cfg.ResponseCacheTTL)
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.prompts == nil {
		pb, err := prompts.NewTextPromptBuilder()
		if err != nil {
			return nil, fmt.Errorf("TextPromptBuilder の新規作成に失敗しました: %w", err)
		}
		s.prompts = pb
	}
	if s.retry.Logger == nil {
		s.retry.Logger = s.logger
	}
	return s, nil
}

// ExtractCharacters は台本から登場人物と外見描写を抽出します。
func (s *Service) ExtractCharacters(ctx context.Context, script string) ([]domain.Character, error) {
	var payload struct {
		Characters []domain.Character `json:"characters"`
	}
	err := s.structured(ctx, "characters", s.cfg.ProModel, prompts.ModeCharacterExtraction,
		prompts.TemplateData{Script: script}, characterSchema, &payload,
		func() error { return stage.ValidateCharacters(payload.Characters) })
	if err != nil {
		return nil, fmt.Errorf("failed to identify characters from the script: %w", err)
	}
	return payload.Characters, nil
}

// ExtractScenes は台本からシーン見出しと場所の描写を抽出します。
func (s *Service) ExtractScenes(ctx context.Context, script string) ([]domain.Scene, error) {
	var payload struct {
		Scenes []domain.Scene `json:"scenes"`
	}
	err := s.structured(ctx, "scenes", s.cfg.ProModel, prompts.ModeSceneExtraction,
		prompts.TemplateData{Script: script}, sceneSchema, &payload,
		func() error { return stage.ValidateScenes(payload.Scenes) })
	if err != nil {
		return nil, fmt.Errorf("failed to identify scenes from the script: %w", err)
	}
	return payload.Scenes, nil
}

// BreakdownPanels は台本をコマ単位に分解します。
func (s *Service) BreakdownPanels(ctx context.Context, script string) ([]domain.PanelSpec, error) {
	var specs []domain.PanelSpec
	err := s.structured(ctx, "panels", s.cfg.FlashModel, prompts.ModePanelBreakdown,
		prompts.TemplateData{Script: script}, panelSchema, &specs,
		func() error { return stage.ValidatePanelSpecs(specs) })
	if err != nil {
		return nil, fmt.Errorf("failed to parse the script. The script might be too complex or the format is not recognized: %w", err)
	}
	return specs, nil
}

// EnhanceCharacter はキャラクターの描写を詳細なモデルシートに書き直します。
func (s *Service) EnhanceCharacter(ctx context.Context, c domain.Character) (string, error) {
	text, err := s.rewrite(ctx, prompts.ModeEnhanceCharacter, prompts.TemplateData{Name: c.Name, Description: c.Description})
	if err != nil {
		return "", fmt.Errorf("failed to enhance description for %s: %w", c.Name, err)
	}
	return text, nil
}

// EnhanceScene はシーンの描写を詳細なロケーション設定に書き直します。
func (s *Service) EnhanceScene(ctx context.Context, sc domain.Scene) (string, error) {
	text, err := s.rewrite(ctx, prompts.ModeEnhanceScene, prompts.TemplateData{Name: sc.ID, Description: sc.Description})
	if err != nil {
		return "", fmt.Errorf("failed to enhance description for %s: %w", sc.ID, err)
	}
	return text, nil
}

// RenderPanel は1コマの画像を生成し、data URL を返します。
func (s *Service) RenderPanel(ctx context.Context, req stage.PanelRequest) (string, error) {
	ref, err := s.generateImage(ctx, prompts.BuildPanelPrompt(req), req.AspectRatio)
	if err != nil {
		return "", fmt.Errorf("failed to generate an image for the description: %q. Reason: %w", req.Description, err)
	}
	return ref, nil
}

// RenderCover は表紙を 3:4 で生成します。
func (s *Service) RenderCover(ctx context.Context, req stage.CoverRequest) (string, error) {
	ref, err := s.generateImage(ctx, prompts.BuildCoverPrompt(req), domain.CoverAspectRatio)
	if err != nil {
		return "", fmt.Errorf("failed to generate a cover image. Reason: %w", err)
	}
	return ref, nil
}

// LayoutPages はコマの説明文の並びをページにまとめ、レイアウトを提案させます。
func (s *Service) LayoutPages(ctx context.Context, descriptions []string) ([]domain.PageLayout, error) {
	data, err := prompts.LayoutTemplateData(descriptions)
	if err != nil {
		return nil, err
	}

	var layouts []domain.PageLayout
	err = s.structured(ctx, "page layouts", s.cfg.FlashModel, prompts.ModePageLayout, data, layoutSchema, &layouts,
		func() error { return stage.ValidatePageLayouts(layouts) })
	if err != nil {
		return nil, fmt.Errorf("failed to create comic book page layouts: %w", err)
	}
	return layouts, nil
}

// structured は JSON 応答を要求し、デコードと検証まで済ませます。
// 検証を通った応答だけをキャッシュするのだ。
func (s *Service) structured(ctx context.Context, what, model, mode string, data prompts.TemplateData, schema *genai.Schema, out any, validate func() error) error {
	prompt, err := s.prompts.Build(mode, data)
	if err != nil {
		return fmt.Errorf("プロンプト生成に失敗: %w", err)
	}

	key := cacheKey(model, prompt)
	raw, cached := s.cached(key)
	if !cached {
		raw, err = s.generateText(ctx, model, prompt, schema)
		if err != nil {
			return err
		}
	}

	if err := parser.Decode(raw, out); err != nil {
		return err
	}
	if err := validate(); err != nil {
		return err
	}

	if !cached && s.cache != nil {
		s.cache.SetDefault(key, raw)
	}
	s.logger.DebugContext(ctx, "構造化応答を受け取りました", "what", what, "model", model, "cached", cached)
	return nil
}

func (s *Service) rewrite(ctx context.Context, mode string, data prompts.TemplateData) (string, error) {
	prompt, err := s.prompts.Build(mode, data)
	if err != nil {
		return "", fmt.Errorf("プロンプト生成に失敗: %w", err)
	}
	return s.generateText(ctx, s.cfg.ProModel, prompt, nil)
}

func (s *Service) generateText(ctx context.Context, model, prompt string, schema *genai.Schema) (string, error) {
	gc := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(s.cfg.Temperature),
	}
	if schema != nil {
		gc.ResponseMIMEType = "application/json"
		gc.ResponseSchema = schema
	}

	start := time.Now()
	resp, err := retry.Do(ctx, s.retry, func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		return s.models.GenerateContent(ctx, model, genai.Text(prompt), gc)
	})
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", stage.ErrEmptyResponse
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", stage.ErrEmptyResponse
	}
	s.logger.DebugContext(ctx, "Text generation completed", "model", model, "duration", time.Since(start).Round(time.Millisecond))
	return text, nil
}

func (s *Service) generateImage(ctx context.Context, prompt string, aspect domain.AspectRatio) (string, error) {
	ic := &genai.GenerateImagesConfig{
		NumberOfImages:   1,
		AspectRatio:      string(aspect),
		IncludeRAIReason: true,
	}

	start := time.Now()
	resp, err := retry.Do(ctx, s.retry, func(ctx context.Context) (*genai.GenerateImagesResponse, error) {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return s.models.GenerateImages(ctx, s.cfg.ImageModel, prompt, ic)
	})
	if err != nil {
		return "", err
	}

	if resp == nil || len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0] == nil {
		return "", stage.ErrNoImage
	}
	generated := resp.GeneratedImages[0]
	if generated.Image == nil || len(generated.Image.ImageBytes) == 0 {
		if generated.RAIFilteredReason != "" {
			return "", fmt.Errorf("%w: %s", stage.ErrNoImage, generated.RAIFilteredReason)
		}
		return "", stage.ErrNoImage
	}

	s.logger.DebugContext(ctx, "Image generation completed",
		"model", s.cfg.ImageModel,
		"aspect_ratio", aspect,
		"bytes", len(generated.Image.ImageBytes),
		"duration", time.Since(start).Round(time.Millisecond))
	return asset.EncodeDataURL(generated.Image.MIMEType, generated.Image.ImageBytes), nil
}

func (s *Service) cached(key string) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	v, ok := s.cache.Get(key)
	if !ok {
		return "", false
	}
	raw, ok := v.(string)
	return raw, ok
}

func cacheKey(model, prompt string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + prompt))
	return hex.EncodeToString(sum[:])
}
