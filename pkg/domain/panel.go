package domain

import "strings"

// DefaultShotType はショット指定が無いパネルに使うカメラの距離感です。
const DefaultShotType = "medium shot"

// PanelSpec はコマ割り工程が出力する、1コマ分の設計図なのだ。
// 生成後は変更されず、画像生成工程でそのまま消費されます。
type PanelSpec struct {
	SceneID     string   `json:"sceneId"`
	Description string   `json:"description"`
	Characters  []string `json:"characters"`
	ShotType    string   `json:"shotType"`
}

// Shot はショットの種類を返します。未指定なら DefaultShotType なのだ。
func (p PanelSpec) Shot() string {
	if s := strings.TrimSpace(p.ShotType); s != "" {
		return s
	}
	return DefaultShotType
}

// Panel は生成済みの1コマです。ImageURL は data URL 形式の画像参照を保持します。
type Panel struct {
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl"`
}

// PanelSpecs は PanelSpec のスライスです。
type PanelSpecs []PanelSpec

// Descriptions はページ割り工程に渡すための説明文を順番通りに返すのだ。
func (ps PanelSpecs) Descriptions() []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Description
	}
	return out
}

// Clone はキャラクター名のスライスまで含めてコピーします。
func (ps PanelSpecs) Clone() PanelSpecs {
	if ps == nil {
		return nil
	}
	out := make(PanelSpecs, len(ps))
	for i, p := range ps {
		out[i] = p
		if p.Characters != nil {
			out[i].Characters = append([]string(nil), p.Characters...)
		}
	}
	return out
}
