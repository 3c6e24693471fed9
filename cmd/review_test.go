package cmd

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/pipeline"
	"github.com/shouni/go-comic-kit/pkg/review"
)

type stubEnhancer struct {
	fail map[string]bool
}

func (e stubEnhancer) EnhanceCharacter(ctx context.Context, c domain.Character) (string, error) {
	if e.fail[c.Name] {
		return "", errors.New("boom")
	}
	return "vivid " + c.Name, nil
}

func testTarget(store *review.Store, e stubEnhancer, notified *int) reviewTarget {
	return reviewTarget{
		name: "characters",
		entries: func() []string {
			var out []string
			for _, c := range store.Characters() {
				out = append(out, fmt.Sprintf("%s: %s", c.Name, c.Description))
			}
			return out
		},
		edit: store.UpdateCharacter,
		enhance: func(ctx context.Context, i int) (string, error) {
			return store.EnhanceCharacter(ctx, i, e)
		},
		notify: func() { *notified++ },
	}
}

func TestRunReview_Interactive(t *testing.T) {
	store := review.New()
	store.ReplaceCharacters([]domain.Character{{Name: "John", Description: "tall"}, {Name: "Mary", Description: "short"}})
	notified := 0

	input := strings.Join([]string{
		"list",
		"edit 0 a very tall man",
		"edit x nope",
		"enhance 1",
		"enhance 5",
		"done",
		"edit 0 ignored after done",
	}, "\n")
	var out bytes.Buffer
	err := runReview(context.Background(), bufio.NewScanner(strings.NewReader(input)), &out,
		testTarget(store, stubEnhancer{}, &notified), true, false)
	if err != nil {
		t.Fatalf("レビューに失敗したのだ: %v", err)
	}

	chars := store.Characters()
	if chars[0].Description != "a very tall man" {
		t.Errorf("edit が反映されていないのだ: %q", chars[0].Description)
	}
	if chars[1].Description != "vivid Mary" {
		t.Errorf("enhance が反映されていないのだ: %q", chars[1].Description)
	}
	if notified != 2 {
		t.Errorf("成功した編集の数だけ通知されるはずなのだ: %d", notified)
	}
	if !strings.Contains(out.String(), "番号を指定してほしいのだ") {
		t.Errorf("不正な番号のメッセージが無いのだ:\n%s", out.String())
	}
	if !strings.Contains(out.String(), review.ErrIndexOutOfRange.Error()) {
		t.Errorf("範囲外のメッセージが無いのだ:\n%s", out.String())
	}
}

func TestRunReview_EnhanceAllContinuesPastFailures(t *testing.T) {
	store := review.New()
	store.ReplaceCharacters([]domain.Character{{Name: "John"}, {Name: "Mary"}, {Name: "Rex"}})
	notified := 0

	var out bytes.Buffer
	err := runReview(context.Background(), bufio.NewScanner(strings.NewReader("")), &out,
		testTarget(store, stubEnhancer{fail: map[string]bool{"Mary": true}}, &notified), false, true)
	if err != nil {
		t.Fatalf("レビューに失敗したのだ: %v", err)
	}

	chars := store.Characters()
	if chars[0].Description != "vivid John" || chars[2].Description != "vivid Rex" {
		t.Errorf("失敗した1件以外は書き直されるはずなのだ: %+v", chars)
	}
	if chars[1].Description != "" {
		t.Errorf("失敗した1件は元のままのはずなのだ: %+v", chars[1])
	}
	if !strings.Contains(out.String(), "Failed to enhance description for Mary.") {
		t.Errorf("失敗メッセージが出ていないのだ:\n%s", out.String())
	}
}

func TestProgressPrinter(t *testing.T) {
	var out bytes.Buffer
	p := newProgressPrinter(&out)
	step := pipeline.Progress{Step: 1, Total: 3, Message: pipeline.MsgAnalyzingCharacters}

	p.observe(pipeline.Snapshot{Progress: step})
	p.observe(pipeline.Snapshot{Progress: step})
	p.observe(pipeline.Snapshot{Error: pipeline.NoPanelsMessage})

	got := out.String()
	if strings.Count(got, pipeline.MsgAnalyzingCharacters) != 1 {
		t.Errorf("同じ進捗は1度だけ表示するのだ:\n%s", got)
	}
	if !strings.Contains(got, "error: "+pipeline.NoPanelsMessage) {
		t.Errorf("エラーが表示されていないのだ:\n%s", got)
	}
}
