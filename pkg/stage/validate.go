package stage

import (
	"fmt"
	"strings"

	"github.com/shouni/go-comic-kit/pkg/domain"
)

// ShapeError は生成サービスの応答が契約の形に合わないことを表すエラーです。
type ShapeError struct {
	Stage  string
	Index  int
	Reason string
}

func (e *ShapeError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid %s data structure received from API: %s", e.Stage, e.Reason)
	}
	return fmt.Sprintf("invalid %s data structure received from API: item %d: %s", e.Stage, e.Index, e.Reason)
}

func shapeErr(stage string, index int, reason string) error {
	return &ShapeError{Stage: stage, Index: index, Reason: reason}
}

// ValidateCharacters は名前が空のキャラクターを契約違反とみなすのだ。
func ValidateCharacters(cs []domain.Character) error {
	if cs == nil {
		return shapeErr("character", -1, `missing "characters" array`)
	}
	for i, c := range cs {
		if strings.TrimSpace(c.Name) == "" {
			return shapeErr("character", i, "name is empty")
		}
	}
	return nil
}

// ValidateScenes はシーン見出しが空のものを契約違反とみなします。
func ValidateScenes(ss []domain.Scene) error {
	if ss == nil {
		return shapeErr("scene", -1, `missing "scenes" array`)
	}
	for i, s := range ss {
		if strings.TrimSpace(s.ID) == "" {
			return shapeErr("scene", i, "id is empty")
		}
	}
	return nil
}

// ValidatePanelSpecs はパネルの説明が空のものを契約違反とみなします。
// 空のスライスは形としては正しく、0コマの判定は呼び出し側の責務なのだ。
func ValidatePanelSpecs(ps []domain.PanelSpec) error {
	if ps == nil {
		return shapeErr("panel", -1, "expected a JSON array")
	}
	for i, p := range ps {
		if strings.TrimSpace(p.Description) == "" {
			return shapeErr("panel", i, "description is empty")
		}
	}
	return nil
}

// ValidatePageLayouts は配列でない応答だけを契約違反とみなします。
// 負や範囲外の番号、空のページは解決時に読み飛ばして報告するのだ。
func ValidatePageLayouts(ls []domain.PageLayout) error {
	if ls == nil {
		return shapeErr("page layout", -1, "expected a JSON array")
	}
	return nil
}
