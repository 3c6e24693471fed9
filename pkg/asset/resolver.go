package asset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-utils/urlpath"
)

const (
	// DefaultPanelFileName はパネル画像の共通のベースファイル名です。
	DefaultPanelFileName = "panel.png"
	// DefaultCoverFileName は表紙画像のファイル名です。
	DefaultCoverFileName = "cover.png"
)

// GenerateIndexedPath は、指定されたベースパスの拡張子の前に連番を挿入し、
// 新しいパス文字列を生成します。index は1以上の整数である必要があります。
// 例: "path/to/image.png", 1 -> "path/to/image_1.png"
func GenerateIndexedPath(basePath string, index int) (string, error) {
	return urlpath.GenerateIndexedPath(basePath, index)
}

// WriteImage は data URL の画像をファイルへ書き出すのだ。
// 拡張子は MIME タイプに合わせて付け替えます。
func WriteImage(path, dataURL string) (string, error) {
	img, err := DecodeDataURL(dataURL)
	if err != nil {
		return "", err
	}

	path = strings.TrimSuffix(path, filepath.Ext(path)) + img.Extension()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("出力ディレクトリの作成に失敗しました: %w", err)
	}
	if err := os.WriteFile(path, img.Data, 0o644); err != nil {
		return "", fmt.Errorf("画像の書き出しに失敗しました (%s): %w", path, err)
	}
	return path, nil
}

// WriteComic は表紙と全ページのコマ画像を dir 配下に連番で書き出し、書き出したパスを返します。
// パネル番号はページをまたいで通しで振るのだ。
func WriteComic(dir, coverURL string, pages []domain.ComicPage) ([]string, error) {
	var written []string
	if coverURL != "" {
		p, err := WriteImage(filepath.Join(dir, DefaultCoverFileName), coverURL)
		if err != nil {
			return written, fmt.Errorf("表紙の書き出しに失敗しました: %w", err)
		}
		written = append(written, p)
	}

	base := filepath.Join(dir, DefaultPanelFileName)
	n := 0
	for _, page := range pages {
		for _, panel := range page.Panels {
			n++
			indexed, err := GenerateIndexedPath(base, n)
			if err != nil {
				return written, fmt.Errorf("パネル %d の出力パスの生成に失敗しました: %w", n, err)
			}
			p, err := WriteImage(indexed, panel.ImageURL)
			if err != nil {
				return written, fmt.Errorf("パネル %d の書き出しに失敗しました: %w", n, err)
			}
			written = append(written, p)
		}
	}
	return written, nil
}
