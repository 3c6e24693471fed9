package director

import (
	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/stage"
)

// PanelRequest は1コマ分の画像生成リクエストを組み立てます。
// キャラクター名とシーン見出しは大文字小文字を区別せずに引き当て、
// 見つからないものは黙って落とすのだ。
func PanelRequest(spec domain.PanelSpec, characters domain.Characters, scenes domain.Scenes, cfg domain.GenerationConfig) stage.PanelRequest {
	return stage.PanelRequest{
		Description:           spec.Description,
		CharacterDescriptions: characters.DescriptionsFor(spec.Characters),
		SceneDescription:      scenes.DescriptionFor(spec.SceneID),
		StylePrompt:           cfg.Style.Prompt,
		AspectRatio:           cfg.AspectRatio,
		ShotType:              spec.Shot(),
	}
}
