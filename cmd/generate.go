package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shouni/go-comic-kit/internal/builder"
	"github.com/shouni/go-comic-kit/internal/config"
	"github.com/shouni/go-comic-kit/pkg/asset"
	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/export"
	"github.com/shouni/go-comic-kit/pkg/pipeline"
)

var opts config.GenerateOptions

// generateCmd は、台本から漫画を最後まで生成するのだ。
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "台本から漫画を生成しますなのだ。",
	Long: `台本を解析してキャラクターとシーンを抽出し、2つのレビュー地点を経て
表紙・各コマの画像とページ割りを生成するのだ。
--interactive を付けるとレビュー地点で描写を編集・書き直しできるのだよ。`,
	PreRunE: preRunAppE,
	RunE:    generateCommand,
}

func init() {
	f := generateCmd.Flags()
	f.StringVarP(&opts.ScriptFile, "script-file", "f", "", "台本ファイルのパス（'-'で標準入力なのだ）。")
	f.StringVar(&opts.Style, "style", config.DefaultStyleID, "画風の ID なのだ（styles コマンドで一覧できるのだ）。")
	f.StringVar(&opts.AspectRatio, "aspect", config.DefaultAspectRatio, "コマ画像の縦横比 (1:1, 3:4, 4:3) なのだ。")
	f.StringVar(&opts.Title, "title", "", "指定するとサインイン中の利用者の作品として保存するのだ。")
	f.StringVar(&opts.PDFFile, "pdf", "", "PDF の書き出し先なのだ。")
	f.StringVarP(&opts.ImageDir, "image-dir", "i", "", "表紙とコマの画像を書き出すディレクトリなのだ。")
	f.BoolVar(&opts.Interactive, "interactive", false, "レビュー地点で端末から編集するのだ。")
	f.BoolVar(&opts.EnhanceAll, "enhance-all", false, "レビュー地点で全ての描写を AI に書き直させるのだ。")
}

func generateCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	// 1. 入力と生成設定の確認
	if opts.Interactive && opts.ScriptFile == "-" {
		return fmt.Errorf("--interactive と標準入力からの台本は同時に使えないのだ")
	}
	script, err := readScript(cmd.InOrStdin(), opts.ScriptFile)
	if err != nil {
		return err
	}
	genCfg, err := domain.NewGenerationConfig(opts.Style, opts.AspectRatio)
	if err != nil {
		return err
	}

	// 2. 依存関係の組み立て
	appCtx, err := newAppContext(ctx, true)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	// 保存先の利用者は生成の前に確かめ、長い生成が無駄にならないようにするのだ
	var owner *domain.User
	if opts.Title != "" {
		owner, err = currentUser(ctx, appCtx.Identity)
		if err != nil {
			return err
		}
		if owner == nil {
			slog.Warn("サインインしていないため、生成した作品は保存しません。先に login してほしいのだ")
		}
	}

	progress := newProgressPrinter(cmd.ErrOrStderr())
	controller, err := builder.BuildController(appCtx, pipeline.WithObserver(progress.observe))
	if err != nil {
		return err
	}

	slog.Info("漫画生成パイプラインを起動するのだ！",
		"style", genCfg.Style.ID,
		"aspect", genCfg.AspectRatio,
		"interactive", opts.Interactive)

	// 3. 抽出とレビュー
	if err := controller.Submit(ctx, script, genCfg); err != nil {
		return fmt.Errorf("台本の解析に失敗したのだ: %w", err)
	}
	in := bufio.NewScanner(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	if err := reviewCheckpoint(ctx, in, out, characterTarget(controller, appCtx)); err != nil {
		return err
	}
	if err := controller.ConfirmCharacters(nil); err != nil {
		return err
	}
	if err := reviewCheckpoint(ctx, in, out, sceneTarget(controller, appCtx)); err != nil {
		return err
	}

	// 4. 画像生成とページ割り
	if err := controller.ConfirmScenes(ctx, nil); err != nil {
		return fmt.Errorf("画像の生成に失敗したのだ: %w", err)
	}
	snap := controller.Snapshot()
	printSummary(out, snap)

	// 5. 書き出しと保存
	if opts.ImageDir != "" {
		paths, err := asset.WriteComic(opts.ImageDir, snap.CoverImageURL, snap.Pages)
		if err != nil {
			return err
		}
		slog.Info("画像を書き出したのだ", "dir", opts.ImageDir, "files", len(paths))
	}
	if opts.PDFFile != "" {
		if err := writePDF(ctx, opts.PDFFile, snap.CoverImageURL, snap.Pages); err != nil {
			return err
		}
		slog.Info("PDF を書き出したのだ", "path", opts.PDFFile)
	}
	if owner != nil {
		id, err := controller.Save(ctx, owner.ID, opts.Title)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "作品を保存したのだ: %s\n", id)
	}

	slog.Info("すべての生成工程が完了したのだ！")
	return nil
}

// readScript は台本を読み込みます。path が空でも標準入力がパイプなら読むのだ。
func readScript(stdin io.Reader, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	switch {
	case path == "-" || (path == "" && isStdin()):
		data, err = io.ReadAll(stdin)
	case path != "":
		data, err = os.ReadFile(path)
	default:
		return "", fmt.Errorf("台本（--script-file）を指定してほしいのだ")
	}
	if err != nil {
		return "", fmt.Errorf("台本の読み込みに失敗しました: %w", err)
	}
	script := string(data)
	if strings.TrimSpace(script) == "" {
		return "", pipeline.ErrEmptyScript
	}
	return script, nil
}

func writePDF(ctx context.Context, path, cover string, pages []domain.ComicPage) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("PDF ファイルの作成に失敗しました: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return export.PDF(ctx, f, cover, pages)
}

func printSummary(w io.Writer, snap pipeline.Snapshot) {
	fmt.Fprintf(w, "%d ページ / %d コマの漫画ができたのだ。\n", len(snap.Pages), snap.Pages.PanelCount())
	for i, p := range snap.Pages {
		fmt.Fprintf(w, "  page %d: %s (%d panels)\n", i+1, p.Layout, len(p.Panels))
	}
}

func isStdin() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}
