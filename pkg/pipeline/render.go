package pipeline

import (
	"context"
	"fmt"

	"github.com/shouni/go-comic-kit/pkg/director"
	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/retry"
	"github.com/shouni/go-comic-kit/pkg/stage"
)

// render は表紙、各コマ、ページ割りの順に生成します。
// 進捗は表紙が1、コマ i が i+2、ページ割りが最後の N+2 なのだ。
func (c *Controller) render(ctx context.Context, script string, cfg domain.GenerationConfig, specs domain.PanelSpecs) error {
	total := len(specs) + 2

	c.setProgress(1, total, MsgGeneratingCover)
	cover, err := c.service.RenderCover(ctx, stage.CoverRequest{
		ScriptExcerpt: stage.CoverExcerpt(script),
		StylePrompt:   cfg.Style.Prompt,
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.cover = cover
	c.notifyLocked()
	c.mu.Unlock()

	// レビューで確定した描写をここで固定し、以降のコマはすべて同じ描写で描くのだ。
	characters := c.store.Characters()
	scenes := c.store.Scenes()

	for i, spec := range specs {
		if i > 0 {
			if err := c.sleep(ctx, c.panelDelay); err != nil {
				return err
			}
		}
		c.setProgress(i+2, total, fmt.Sprintf(MsgGeneratingPanelFmt, i+1, len(specs)))

		logger := c.logger.With("panel", i+1, "of", len(specs), "scene", spec.SceneID)
		ref, err := c.service.RenderPanel(ctx, director.PanelRequest(spec, characters, scenes, cfg))
		if err != nil {
			return err
		}
		logger.DebugContext(ctx, "コマの画像を生成しました")

		c.mu.Lock()
		c.panels = append(c.panels, domain.Panel{Description: spec.Description, ImageURL: ref})
		c.notifyLocked()
		c.mu.Unlock()
	}

	c.setProgress(total, total, MsgArrangingPages)
	layouts, err := c.service.LayoutPages(ctx, specs.Descriptions())
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	pages, report := director.ResolvePages(c.panels, layouts)
	if !report.Clean() {
		c.logger.WarnContext(ctx, "ページ割りの提案とコマが一致しませんでした",
			"out_of_range", report.OutOfRange,
			"duplicated", report.Duplicated,
			"omitted", report.Omitted,
			"unknown_layouts", report.UnknownLayouts)
	}
	c.running = false
	c.pages = pages
	c.state = StateDisplay
	c.phase = PhaseNone
	c.progress = Progress{}
	c.notifyLocked()
	c.logger.InfoContext(ctx, "漫画の生成が完了しました", "pages", len(pages), "panels", len(c.panels))
	return nil
}

// renderFailureMessage はレート制限なら案内文に置き換え、それ以外はエラー文をそのまま使うのだ。
func renderFailureMessage(err error) string {
	if retry.IsRateLimit(err) {
		return RateLimitMessage
	}
	return err.Error()
}
