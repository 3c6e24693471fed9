package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/shouni/go-comic-kit/internal/builder"
	"github.com/shouni/go-comic-kit/pkg/pipeline"
)

// reviewTarget はレビュー地点で編集する一覧への操作をまとめたものです。
type reviewTarget struct {
	name    string
	entries func() []string
	edit    func(i int, text string) error
	enhance func(ctx context.Context, i int) (string, error)
	// notify は編集を observer に知らせるのだ。nil でもよい。
	notify func()
}

func characterTarget(c *pipeline.Controller, appCtx *builder.AppContext) reviewTarget {
	store := c.Review()
	return reviewTarget{
		name: "characters",
		entries: func() []string {
			var out []string
			for _, ch := range store.Characters() {
				out = append(out, fmt.Sprintf("%s: %s", ch.Name, ch.Description))
			}
			return out
		},
		edit: store.UpdateCharacter,
		enhance: func(ctx context.Context, i int) (string, error) {
			return store.EnhanceCharacter(ctx, i, appCtx.Service)
		},
		notify: c.Notify,
	}
}

func sceneTarget(c *pipeline.Controller, appCtx *builder.AppContext) reviewTarget {
	store := c.Review()
	return reviewTarget{
		name: "scenes",
		entries: func() []string {
			var out []string
			for _, s := range store.Scenes() {
				out = append(out, fmt.Sprintf("%s: %s", s.ID, s.Description))
			}
			return out
		},
		edit: store.UpdateScene,
		enhance: func(ctx context.Context, i int) (string, error) {
			return store.EnhanceScene(ctx, i, appCtx.Service)
		},
		notify: c.Notify,
	}
}

const reviewHelp = `commands:
  list              一覧を表示するのだ
  edit N <text>     N 番目の描写を書き換えるのだ
  enhance N         N 番目の描写を AI に書き直させるのだ
  done              確定して次に進むのだ`

func reviewCheckpoint(ctx context.Context, in *bufio.Scanner, out io.Writer, t reviewTarget) error {
	return runReview(ctx, in, out, t, opts.Interactive, opts.EnhanceAll)
}

// runReview はレビュー地点の処理です。書き直しの失敗はその1件のメッセージを出して続行するのだ。
func runReview(ctx context.Context, in *bufio.Scanner, out io.Writer, t reviewTarget, interactive, enhanceAll bool) error {
	if enhanceAll {
		for i := range t.entries() {
			if _, err := t.enhance(ctx, i); err != nil {
				fmt.Fprintln(out, err)
			}
		}
		t.changed()
	}
	if !interactive {
		return nil
	}

	fmt.Fprintf(out, "\n== review %s ==\n%s\n", t.name, reviewHelp)
	t.print(out)
	for {
		fmt.Fprintf(out, "%s> ", t.name)
		if !in.Scan() {
			if err := in.Err(); err != nil {
				return fmt.Errorf("入力の読み込みに失敗しました: %w", err)
			}
			// 入力が尽きたら確定扱いにするのだ
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		cmd, rest, _ := strings.Cut(strings.TrimSpace(in.Text()), " ")
		switch cmd {
		case "":
		case "list":
			t.print(out)
		case "done":
			return nil
		case "edit":
			idx, text, _ := strings.Cut(strings.TrimSpace(rest), " ")
			i, err := entryIndex(idx)
			if err == nil {
				err = t.edit(i, strings.TrimSpace(text))
			}
			if err != nil {
				fmt.Fprintln(out, err)
				continue
			}
			t.changed()
			t.print(out)
		case "enhance":
			i, err := entryIndex(strings.TrimSpace(rest))
			if err != nil {
				fmt.Fprintln(out, err)
				continue
			}
			text, err := t.enhance(ctx, i)
			if err != nil {
				fmt.Fprintln(out, err)
				continue
			}
			t.changed()
			fmt.Fprintf(out, "[%d] %s\n", i, text)
		default:
			fmt.Fprintln(out, reviewHelp)
		}
	}
}

func (t reviewTarget) print(out io.Writer) {
	for i, e := range t.entries() {
		fmt.Fprintf(out, "[%d] %s\n", i, e)
	}
}

func (t reviewTarget) changed() {
	if t.notify != nil {
		t.notify()
	}
}

func entryIndex(s string) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("番号を指定してほしいのだ: %q", s)
	}
	return i, nil
}

// progressPrinter は進捗メッセージが変わった時だけ表示します。
type progressPrinter struct {
	mu   sync.Mutex
	w    io.Writer
	last pipeline.Progress
	err  string
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w}
}

func (p *progressPrinter) observe(s pipeline.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s.Progress != p.last && s.Progress.Message != "" {
		p.last = s.Progress
		fmt.Fprintf(p.w, "[%d/%d] %s\n", s.Progress.Step, s.Progress.Total, s.Progress.Message)
	}
	if s.Error != "" && s.Error != p.err {
		fmt.Fprintf(p.w, "error: %s\n", s.Error)
	}
	p.err = s.Error
}
