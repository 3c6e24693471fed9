package prompts

import (
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed *.md
var templateFS embed.FS

// modes はテキスト生成で使う全モードです。
var modes = []string{
	ModeCharacterExtraction,
	ModeSceneExtraction,
	ModePanelBreakdown,
	ModeEnhanceCharacter,
	ModeEnhanceScene,
	ModePageLayout,
}

// PromptBuilder は、AIプロンプトを構築する契約です。
type PromptBuilder interface {
	Build(mode string, data TemplateData) (string, error)
}

// TextPromptBuilder は埋め込みの Markdown テンプレートからテキスト生成プロンプトを組み立てます。
type TextPromptBuilder struct {
	set *template.Template
}

// NewTextPromptBuilder は埋め込まれた全テンプレートを解析します。
// どれか1つでも欠けていれば初期化に失敗するのだ。
func NewTextPromptBuilder() (*TextPromptBuilder, error) {
	set, err := template.New("prompts").Option("missingkey=error").ParseFS(templateFS, "*.md")
	if err != nil {
		return nil, fmt.Errorf("プロンプトテンプレートの解析に失敗しました: %w", err)
	}
	for _, mode := range modes {
		t := set.Lookup(mode + ".md")
		if t == nil || t.Tree == nil || len(t.Tree.Root.Nodes) == 0 {
			return nil, fmt.Errorf("プロンプトテンプレート '%s' が見つからないか空です", mode)
		}
	}
	return &TextPromptBuilder{set: set}, nil
}

// Build はモードに対応するテンプレートを data で実行します。
func (b *TextPromptBuilder) Build(mode string, data TemplateData) (string, error) {
	var sb strings.Builder
	if b.set.Lookup(mode+".md") == nil {
		return "", fmt.Errorf("不明なモードです: '%s'", mode)
	}
	if err := b.set.ExecuteTemplate(&sb, mode+".md", data); err != nil {
		return "", fmt.Errorf("プロンプト '%s' の実行に失敗しました: %w", mode, err)
	}
	return strings.TrimSpace(sb.String()), nil
}
