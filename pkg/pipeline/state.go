package pipeline

import (
	"errors"
	"fmt"

	"github.com/shouni/go-comic-kit/pkg/domain"
)

// State は生成フローの現在位置です。
type State int

const (
	StateSetup State = iota
	StateGenerating
	StateCharacterReview
	StateSceneReview
	StateDisplay
)

var stateNames = map[State]string{
	StateSetup:           "SETUP",
	StateGenerating:      "GENERATING",
	StateCharacterReview: "CHARACTER_REVIEW",
	StateSceneReview:     "SCENE_REVIEW",
	StateDisplay:         "DISPLAY",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText は JSON に状態名で出すためのものなのだ。
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText は状態名から State を復元します。
func (s *State) UnmarshalText(b []byte) error {
	for st, name := range stateNames {
		if name == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}

// Phase は GENERATING 中にどちらの段階を実行しているかを表します。
type Phase int

const (
	PhaseNone Phase = iota
	PhaseExtract
	PhaseRender
)

func (p Phase) String() string {
	switch p {
	case PhaseExtract:
		return "extract"
	case PhaseRender:
		return "render"
	default:
		return ""
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(b []byte) error {
	switch string(b) {
	case "":
		*p = PhaseNone
	case "extract":
		*p = PhaseExtract
	case "render":
		*p = PhaseRender
	default:
		return fmt.Errorf("unknown phase %q", b)
	}
	return nil
}

// 画面に出す進捗とエラーの文言。
const (
	MsgAnalyzingCharacters = "Step 1: Analyzing script for characters..."
	MsgDefiningScenes      = "Step 2: Defining scene styles..."
	MsgBreakingPanels      = "Step 3: Breaking script into panels..."
	MsgGeneratingCover     = "Generating comic book cover..."
	MsgGeneratingPanelFmt  = "Generating image for panel %d of %d..."
	MsgArrangingPages      = "Arranging panels into comic book pages..."

	NoPanelsMessage      = "Could not extract any panels from the script. Please check the script format."
	MissingConfigMessage = "Generation configuration is missing. Please start over."
	RateLimitMessage     = "Image generation failed due to API rate limits. This can happen with long scripts. Please wait a minute and try again."
)

var (
	// ErrBusy は別の工程の実行中に呼び出されたことを表すのだ。
	ErrBusy = errors.New("pipeline: another operation is in progress")
	// ErrAlreadySaved はこの作品がすでに保存済みであることを表します。
	ErrAlreadySaved = errors.New("pipeline: comic has already been saved")

	ErrNoPanels      = errors.New(NoPanelsMessage)
	ErrMissingConfig = errors.New(MissingConfigMessage)
	ErrEmptyScript   = errors.New("pipeline: script is empty")
	ErrEmptyTitle    = errors.New("pipeline: title is required")
	ErrNoOwner       = errors.New("pipeline: a signed-in user is required to save")
	ErrNoPersister   = errors.New("pipeline: no persister configured")
)

// StateError は現在の状態では許されない操作を呼び出したことを表します。
type StateError struct {
	Op    string
	State State
	Want  State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("pipeline: %s requires state %s, current state is %s", e.Op, e.Want, e.State)
}

// Progress は工程の進み具合です。Total が 0 のときは進捗表示が無いのだ。
type Progress struct {
	Step    int    `json:"step"`
	Total   int    `json:"total"`
	Message string `json:"message"`
}

// Snapshot はある時点のフローの状態をまるごとコピーしたものです。
type Snapshot struct {
	State         State                    `json:"state"`
	Phase         Phase                    `json:"phase"`
	Progress      Progress                 `json:"progress"`
	Error         string                   `json:"error,omitempty"`
	Script        string                   `json:"script,omitempty"`
	Config        *domain.GenerationConfig `json:"config,omitempty"`
	Characters    domain.Characters        `json:"characters"`
	Scenes        domain.Scenes            `json:"scenes"`
	PanelSpecs    domain.PanelSpecs        `json:"panelSpecs"`
	Panels        []domain.Panel           `json:"panels"`
	Pages         domain.ComicPages        `json:"pages"`
	CoverImageURL string                   `json:"coverImageUrl,omitempty"`
	ProjectID     string                   `json:"projectId,omitempty"`
}
