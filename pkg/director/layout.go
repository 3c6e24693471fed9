// Package director はコマの並びとページ割りの提案を突き合わせ、表示するページを組み立てます。
package director

import (
	"github.com/shouni/go-comic-kit/pkg/domain"
)

// Report はページ割りの提案と実際のコマの食い違いをまとめたものです。
// どれも致命的ではなく、呼び出し側がログに残すためだけに使うのだ。
type Report struct {
	// OutOfRange はコマ数の範囲外だったため捨てた番号です。
	OutOfRange []int
	// Duplicated は2回以上参照された番号です。最初に参照された位置にだけ配置されるのだ。
	Duplicated []int
	// Omitted はどのページからも参照されなかった番号です。
	Omitted []int
	// UnknownLayouts は定義外のレイアウト名です。そのまま残し、出力時は1コマ扱いになるのだ。
	UnknownLayouts []domain.Layout
}

// Clean は食い違いが1つも無いときに true を返します。
func (r Report) Clean() bool {
	return len(r.OutOfRange) == 0 && len(r.Duplicated) == 0 && len(r.Omitted) == 0 && len(r.UnknownLayouts) == 0
}

// ResolvePages はページ割りの番号をコマの並びに当てはめてページを作ります。
// 範囲外の番号と2回目以降の参照は読み飛ばし、コマの無いページも提案どおり残すのだ。
// 配置されるコマの総数は len(panels) を超えません。
func ResolvePages(panels []domain.Panel, layouts []domain.PageLayout) ([]domain.ComicPage, Report) {
	var report Report
	seen := make(map[int]int, len(panels))
	unknown := make(map[domain.Layout]bool)

	pages := make([]domain.ComicPage, 0, len(layouts))
	for _, pl := range layouts {
		page := domain.ComicPage{Layout: pl.Layout, Panels: make([]domain.Panel, 0, len(pl.PanelIndices))}
		for _, idx := range pl.PanelIndices {
			if idx < 0 || idx >= len(panels) {
				report.OutOfRange = append(report.OutOfRange, idx)
				continue
			}
			seen[idx]++
			if seen[idx] > 1 {
				if seen[idx] == 2 {
					report.Duplicated = append(report.Duplicated, idx)
				}
				continue
			}
			page.Panels = append(page.Panels, panels[idx])
		}
		if !pl.Layout.Valid() && !unknown[pl.Layout] {
			unknown[pl.Layout] = true
			report.UnknownLayouts = append(report.UnknownLayouts, pl.Layout)
		}
		pages = append(pages, page)
	}

	for i := range panels {
		if seen[i] == 0 {
			report.Omitted = append(report.Omitted, i)
		}
	}
	return pages, report
}
