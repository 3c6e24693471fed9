// Package export は完成した漫画を PDF に書き出します。
package export

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"log/slog"

	"github.com/go-pdf/fpdf"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"

	"github.com/shouni/go-comic-kit/pkg/asset"
	"github.com/shouni/go-comic-kit/pkg/domain"
)

// decodeLimit は同時にデコードする画像の数です。
const decodeLimit = 4

type placement struct {
	ref  string
	rect Rect
}

type pdfImage struct {
	name string
	kind string
	data []byte
}

// PDF は表紙と各ページを A4 縦の PDF として w に書き出します。
// 表紙がある場合は1ページ目に余白の内側いっぱいに配置するのだ。
func PDF(ctx context.Context, w io.Writer, cover string, pages []domain.ComicPage) error {
	doc := fpdf.New("P", "pt", "A4", "")
	doc.SetMargins(PageMargin, PageMargin, PageMargin)
	doc.SetAutoPageBreak(false, PageMargin)

	pageW, pageH := doc.GetPageSize()
	area := Rect{X: PageMargin, Y: PageMargin, W: pageW - 2*PageMargin, H: pageH - 2*PageMargin}

	// 1ページごとの配置を先に決め、画像のデコードはまとめて並行に行うのだ。
	var sheets [][]placement
	if cover != "" {
		sheets = append(sheets, []placement{{ref: cover, rect: area}})
	}
	for _, page := range pages {
		slots := Slots(page.Layout, area)
		sheet := make([]placement, 0, len(slots))
		for i, slot := range slots {
			if i >= len(page.Panels) {
				break
			}
			if page.Panels[i].ImageURL == "" {
				continue
			}
			sheet = append(sheet, placement{ref: page.Panels[i].ImageURL, rect: slot})
		}
		if capacity := page.Layout.Capacity(); len(page.Panels) > capacity {
			slog.WarnContext(ctx, "レイアウトの枠より多いコマは出力しません",
				"layout", page.Layout, "panels", len(page.Panels), "slots", capacity)
		}
		sheets = append(sheets, sheet)
	}

	images, err := decodeAll(ctx, sheets)
	if err != nil {
		return err
	}

	n := 0
	for _, sheet := range sheets {
		doc.AddPage()
		for _, p := range sheet {
			img := images[n]
			n++
			doc.RegisterImageOptionsReader(img.name, fpdf.ImageOptions{ImageType: img.kind}, bytes.NewReader(img.data))
			doc.ImageOptions(img.name, p.rect.X, p.rect.Y, p.rect.W, p.rect.H, false, fpdf.ImageOptions{ImageType: img.kind}, 0, "")
		}
	}
	if err := doc.Error(); err != nil {
		return fmt.Errorf("PDF の組み立てに失敗しました: %w", err)
	}
	if err := doc.Output(w); err != nil {
		return fmt.Errorf("PDF の書き出しに失敗しました: %w", err)
	}
	return nil
}

// decodeAll は配置順に画像を取り出します。PNG と JPEG 以外は PNG に変換するのだ。
func decodeAll(ctx context.Context, sheets [][]placement) ([]pdfImage, error) {
	var refs []string
	for _, sheet := range sheets {
		for _, p := range sheet {
			refs = append(refs, p.ref)
		}
	}

	images := make([]pdfImage, len(refs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(decodeLimit)
	for i, ref := range refs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := toPDFImage(ref)
			if err != nil {
				return fmt.Errorf("image %d: %w", i+1, err)
			}
			img.name = fmt.Sprintf("image-%d", i)
			images[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return images, nil
}

func toPDFImage(ref string) (pdfImage, error) {
	src, err := asset.DecodeDataURL(ref)
	if err != nil {
		return pdfImage{}, err
	}
	switch src.MIMEType {
	case "image/png":
		return pdfImage{kind: "PNG", data: src.Data}, nil
	case "image/jpeg", "image/jpg":
		return pdfImage{kind: "JPG", data: src.Data}, nil
	}

	decoded, _, err := image.Decode(bytes.NewReader(src.Data))
	if err != nil {
		return pdfImage{}, fmt.Errorf("decode %s: %w", src.MIMEType, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, decoded); err != nil {
		return pdfImage{}, fmt.Errorf("re-encode as png: %w", err)
	}
	return pdfImage{kind: "PNG", data: buf.Bytes()}, nil
}
