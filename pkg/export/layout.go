package export

import "github.com/shouni/go-comic-kit/pkg/domain"

// 用紙上の余白とコマ間の溝（pt）。
const (
	PageMargin = 20.0
	Gutter     = 10.0
)

// Rect はページ上の矩形です。単位は pt なのだ。
type Rect struct {
	X, Y, W, H float64
}

// Slots はレイアウトに応じて area をコマの枠に分割します。
// 未知のレイアウトは area 全体を1コマとして扱うのだ。
func Slots(layout domain.Layout, area Rect) []Rect {
	halfW := (area.W - Gutter) / 2
	halfH := (area.H - Gutter) / 2
	right := area.X + halfW + Gutter
	lower := area.Y + halfH + Gutter

	switch layout {
	case domain.Layout1x2:
		return []Rect{
			{area.X, area.Y, area.W, halfH},
			{area.X, lower, area.W, halfH},
		}
	case domain.Layout2x1:
		return []Rect{
			{area.X, area.Y, halfW, area.H},
			{right, area.Y, halfW, area.H},
		}
	case domain.Layout2x2:
		return []Rect{
			{area.X, area.Y, halfW, halfH},
			{right, area.Y, halfW, halfH},
			{area.X, lower, halfW, halfH},
			{right, lower, halfW, halfH},
		}
	case domain.Layout2Over1:
		return []Rect{
			{area.X, area.Y, halfW, halfH},
			{right, area.Y, halfW, halfH},
			{area.X, lower, area.W, halfH},
		}
	case domain.Layout1Over2:
		return []Rect{
			{area.X, area.Y, area.W, halfH},
			{area.X, lower, halfW, halfH},
			{right, lower, halfW, halfH},
		}
	case domain.Layout3StripVertical:
		thirdH := (area.H - 2*Gutter) / 3
		return []Rect{
			{area.X, area.Y, area.W, thirdH},
			{area.X, area.Y + thirdH + Gutter, area.W, thirdH},
			{area.X, area.Y + 2*(thirdH+Gutter), area.W, thirdH},
		}
	default:
		return []Rect{area}
	}
}
