// Package stage は生成パイプラインの各工程と外部生成サービスとの契約を定義します。
package stage

import (
	"context"
	"errors"

	"github.com/shouni/go-comic-kit/pkg/domain"
)

// CoverExcerptLength は表紙生成に渡す台本の抜粋の長さ（文字数）です。
const CoverExcerptLength = 500

var (
	// ErrNoImage は生成サービスが画像を1枚も返さなかったことを示すのだ。
	ErrNoImage = errors.New("no image was generated")
	// ErrEmptyResponse は生成サービスの応答本文が空だったことを示します。
	ErrEmptyResponse = errors.New("empty response from generation service")
)

// Service は外部の生成サービスが満たすべき工程ごとの契約です。
type Service interface {
	ExtractCharacters(ctx context.Context, script string) ([]domain.Character, error)
	ExtractScenes(ctx context.Context, script string) ([]domain.Scene, error)
	BreakdownPanels(ctx context.Context, script string) ([]domain.PanelSpec, error)
	EnhanceCharacter(ctx context.Context, c domain.Character) (string, error)
	EnhanceScene(ctx context.Context, s domain.Scene) (string, error)
	RenderPanel(ctx context.Context, req PanelRequest) (string, error)
	RenderCover(ctx context.Context, req CoverRequest) (string, error)
	LayoutPages(ctx context.Context, descriptions []string) ([]domain.PageLayout, error)
}

// Chatter はセッション単位の自由会話アシスタントです。
type Chatter interface {
	Send(ctx context.Context, message string) (string, error)
}

// CharacterEnhancer はキャラクター描写の書き直しだけを担う工程です。
type CharacterEnhancer interface {
	EnhanceCharacter(ctx context.Context, c domain.Character) (string, error)
}

// SceneEnhancer はシーン描写の書き直しだけを担う工程です。
type SceneEnhancer interface {
	EnhanceScene(ctx context.Context, s domain.Scene) (string, error)
}

// PanelRequest は1コマの画像生成リクエストなのだ。
type PanelRequest struct {
	Description           string
	CharacterDescriptions []string
	SceneDescription      string
	StylePrompt           string
	AspectRatio           domain.AspectRatio
	ShotType              string
}

// CoverRequest は表紙の画像生成リクエストです。縦横比は常に 3:4 なのだ。
type CoverRequest struct {
	ScriptExcerpt string
	StylePrompt   string
}

// CoverExcerpt は台本の先頭 CoverExcerptLength 文字を返します。
func CoverExcerpt(script string) string {
	runes := []rune(script)
	if len(runes) <= CoverExcerptLength {
		return script
	}
	return string(runes[:CoverExcerptLength])
}
