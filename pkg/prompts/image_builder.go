package prompts

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/stage"
)

// BuildPanelPrompt は1コマ分の画像生成プロンプトを組み立てます。
// 解決できたキャラクターが居ない場合、キャラクターの節は省くのだ。
func BuildPanelPrompt(req stage.PanelRequest) string {
	parts := []string{
		fmt.Sprintf("A comic book panel in the art style of \"%s\".", req.StylePrompt),
	}
	if shot := strings.TrimSpace(req.ShotType); shot != "" {
		parts = append(parts, fmt.Sprintf("Shot Type: \"%s\".", shot))
	}
	parts = append(parts,
		fmt.Sprintf("The main action of the panel is: \"%s\".", req.Description),
		fmt.Sprintf("Scene Environment: \"%s\". This description must be followed exactly for visual consistency.", req.SceneDescription),
	)
	if len(req.CharacterDescriptions) > 0 {
		parts = append(parts, fmt.Sprintf("Characters present (must be visually consistent with descriptions): %s.",
			strings.Join(req.CharacterDescriptions, " ")))
	}
	parts = append(parts, "Do not include text or speech bubbles.")
	return strings.Join(parts, " ")
}

// BuildCoverPrompt は文字を含まない表紙の画像生成プロンプトを組み立てます。
func BuildCoverPrompt(req stage.CoverRequest) string {
	return fmt.Sprintf("Generate a captivating, text-free comic book cover for a story with the following summary: \"%s\". "+
		"The art style should be: %s. The cover must be dynamic, visually striking, and suitable for a title page. "+
		"DO NOT include any words, titles, or text on the image.", req.ScriptExcerpt, req.StylePrompt)
}

// LayoutTemplateData はページ割りプロンプト用のデータを用意するのだ。
func LayoutTemplateData(descriptions []string) (TemplateData, error) {
	if descriptions == nil {
		descriptions = []string{}
	}
	b, err := json.Marshal(descriptions)
	if err != nil {
		return TemplateData{}, fmt.Errorf("パネル説明のJSON化に失敗しました: %w", err)
	}

	choices := make([]string, 0, len(domain.Layouts()))
	for _, l := range domain.Layouts() {
		choices = append(choices, "'"+string(l)+"'")
	}

	return TemplateData{
		PanelDescriptionsJSON: string(b),
		LayoutChoices:         strings.Join(choices, ", "),
	}, nil
}
