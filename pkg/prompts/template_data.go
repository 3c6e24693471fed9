package prompts

// モード名はテンプレートのファイル名（拡張子なし）と一致させるのだ。
const (
	ModeCharacterExtraction = "character_extraction"
	ModeSceneExtraction     = "scene_extraction"
	ModePanelBreakdown      = "panel_breakdown"
	ModeEnhanceCharacter    = "enhance_character"
	ModeEnhanceScene        = "enhance_scene"
	ModePageLayout          = "page_layout"
)

// TemplateData はテキスト生成プロンプトのテンプレートに渡すデータ構造です。
// モードごとに使うフィールドだけが埋められるのだ。
type TemplateData struct {
	Script string

	// Name と Description は描写の書き直し（キャラクター名またはシーン見出し）に使います。
	Name        string
	Description string

	PanelDescriptionsJSON string
	LayoutChoices         string
}
