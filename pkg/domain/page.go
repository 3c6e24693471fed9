package domain

// Layout はページ内のコマの並べ方を表すタグです。
type Layout string

const (
	Layout2x1            Layout = "2x1"
	Layout1x2            Layout = "1x2"
	Layout2x2            Layout = "2x2"
	Layout3StripVertical Layout = "3_strip_vertical"
	Layout2Over1         Layout = "2_over_1"
	Layout1Over2         Layout = "1_over_2"
)

var layouts = []Layout{
	Layout2x1,
	Layout1x2,
	Layout2x2,
	Layout3StripVertical,
	Layout2Over1,
	Layout1Over2,
}

// Layouts は選択可能なレイアウトの一覧を返します。
func Layouts() []Layout {
	return append([]Layout(nil), layouts...)
}

// Valid は定義済みのレイアウトかどうかを判定するのだ。
func (l Layout) Valid() bool {
	for _, v := range layouts {
		if l == v {
			return true
		}
	}
	return false
}

// Capacity はそのレイアウトに配置できるコマ数です。未知のタグは1コマ扱いなのだ。
func (l Layout) Capacity() int {
	switch l {
	case Layout2x1, Layout1x2:
		return 2
	case Layout2x2:
		return 4
	case Layout3StripVertical, Layout2Over1, Layout1Over2:
		return 3
	default:
		return 1
	}
}

// PageLayout はページ割り工程の出力で、パネル番号の並びとレイアウトの組です。
type PageLayout struct {
	PanelIndices []int  `json:"panel_indices"`
	Layout       Layout `json:"layout"`
}

// ComicPage は表示・出力の単位となる完成ページです。
type ComicPage struct {
	Panels []Panel `json:"panels"`
	Layout Layout  `json:"layout"`
}

// ComicPages は ComicPage のスライスです。
type ComicPages []ComicPage

// PanelCount は全ページに配置されたコマの総数なのだ。
func (ps ComicPages) PanelCount() int {
	n := 0
	for _, p := range ps {
		n += len(p.Panels)
	}
	return n
}

// Clone はページとコマのスライスをコピーします。
func (ps ComicPages) Clone() ComicPages {
	if ps == nil {
		return nil
	}
	out := make(ComicPages, len(ps))
	for i, p := range ps {
		out[i] = ComicPage{Layout: p.Layout, Panels: append([]Panel(nil), p.Panels...)}
	}
	return out
}
