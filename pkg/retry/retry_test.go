package retry

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"google.golang.org/genai"
)

// recordingTimer は待ち時間を記録し、すぐに発火するテスト用タイマーなのだ。
type recordingTimer struct {
	delays []time.Duration
	c      chan time.Time
}

func newRecordingTimer() *recordingTimer {
	return &recordingTimer{c: make(chan time.Time, 1)}
}

func (r *recordingTimer) Start(d time.Duration) {
	r.delays = append(r.delays, d)
	r.c <- time.Time{}
}

func (r *recordingTimer) Stop() {}

func (r *recordingTimer) C() <-chan time.Time { return r.c }

func testPolicy(timer *recordingTimer) Policy {
	p := DefaultPolicy()
	p.Timer = timer
	return p
}

func TestDo_RetriesRateLimitThenSucceeds(t *testing.T) {
	timer := newRecordingTimer()
	calls := 0

	got, err := Do(context.Background(), testPolicy(timer), func(ctx context.Context) (string, error) {
		calls++
		if calls <= 2 {
			return "", errors.New("Error 429, Message: Resource has been exhausted, Status: RESOURCE_EXHAUSTED")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("成功するはずがエラーになったのだ: %v", err)
	}
	if got != "ok" {
		t.Errorf("戻り値が違うのだ: %q", got)
	}
	if calls != 3 {
		t.Errorf("呼び出しは3回のはずなのだ: %d", calls)
	}
	want := []time.Duration{2000 * time.Millisecond, 4000 * time.Millisecond}
	if !reflect.DeepEqual(timer.delays, want) {
		t.Errorf("待ち時間が違うのだ。期待: %v, 実際: %v", want, timer.delays)
	}
}

func TestDo_NonRateLimitFailsImmediately(t *testing.T) {
	timer := newRecordingTimer()
	calls := 0
	boom := errors.New("invalid argument")

	_, err := Do(context.Background(), testPolicy(timer), func(ctx context.Context) (int, error) {
		calls++
		return 0, boom
	})
	if err != boom {
		t.Errorf("エラーはそのまま返るはずなのだ: %v", err)
	}
	if calls != 1 {
		t.Errorf("呼び出しは1回のはずなのだ: %d", calls)
	}
	if len(timer.delays) != 0 {
		t.Errorf("待ちが発生してはいけないのだ: %v", timer.delays)
	}
}

func TestDo_ExhaustsBudget(t *testing.T) {
	timer := newRecordingTimer()
	calls := 0

	_, err := Do(context.Background(), testPolicy(timer), func(ctx context.Context) (int, error) {
		calls++
		return 0, fmt.Errorf("attempt %d: quota exceeded for project", calls)
	})
	if err == nil || err.Error() != "attempt 4: quota exceeded for project" {
		t.Errorf("最後のエラーが返るはずなのだ: %v", err)
	}
	if calls != 4 {
		t.Errorf("最初の1回 + 再試行3回のはずなのだ: %d", calls)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	if !reflect.DeepEqual(timer.delays, want) {
		t.Errorf("待ち時間が違うのだ。期待: %v, 実際: %v", want, timer.delays)
	}
}

func TestDo_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Do(ctx, testPolicy(newRecordingTimer()), func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("429 Too Many Requests")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("キャンセルされたコンテキストのエラーが返るはずなのだ: %v", err)
	}
	if calls != 1 {
		t.Errorf("呼び出しは1回のはずなのだ: %d", calls)
	}
}

func TestIsRateLimit(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"429", errors.New("googleapi: Error 429"), true},
		{"RESOURCE_EXHAUSTED", errors.New("status RESOURCE_EXHAUSTED"), true},
		{"Quota Exceeded", errors.New("Quota Exceeded for metric"), true},
		{"wrapped", fmt.Errorf("failed to generate an image: %w", errors.New("resource_exhausted")), true},
		{"APIError", genai.APIError{Code: 429}, true},
		{"other", errors.New("500 internal"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRateLimit(tt.err); got != tt.want {
				t.Errorf("IsRateLimit(%v) = %v, 期待 %v", tt.err, got, tt.want)
			}
		})
	}
}
