package gemini

import (
	"context"
	"errors"
	"sync"
	"testing"

	"google.golang.org/genai"
)

type fakeConversation struct {
	mu    sync.Mutex
	sent  []string
	fails bool
}

func (c *fakeConversation) SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fails {
		return nil, errors.New("backend down")
	}
	c.sent = append(c.sent, parts[0].Text)
	return textResponse("reply to " + parts[0].Text), nil
}

func TestChatSession_CreatesOnceAndReuses(t *testing.T) {
	conv := &fakeConversation{}
	created := 0
	var mu sync.Mutex
	s := NewChatSessionWithFactory(func(ctx context.Context) (Conversation, error) {
		mu.Lock()
		defer mu.Unlock()
		created++
		return conv, nil
	}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Send(context.Background(), "hello"); err != nil {
				t.Errorf("送信に失敗したのだ: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := s.Send(context.Background(), "what is a splash page?")
	if err != nil {
		t.Fatalf("送信に失敗したのだ: %v", err)
	}
	if got != "reply to what is a splash page?" {
		t.Errorf("返答がおかしいのだ: %q", got)
	}
	if created != 1 {
		t.Errorf("会話は1度だけ作られるはずなのだ: %d", created)
	}
	if len(conv.sent) != 6 {
		t.Errorf("全てのメッセージが同じ会話に送られるはずなのだ: %d", len(conv.sent))
	}
}

func TestChatSession_FailureMessage(t *testing.T) {
	s := NewChatSessionWithFactory(func(ctx context.Context) (Conversation, error) {
		return &fakeConversation{fails: true}, nil
	}, nil)

	_, err := s.Send(context.Background(), "hi")
	if !errors.Is(err, ErrChatUnavailable) {
		t.Errorf("ErrChatUnavailable のはずなのだ: %v", err)
	}
	if err.Error() != ChatFailureMessage {
		t.Errorf("利用者向けの文言がおかしいのだ: %q", err.Error())
	}

	if _, err := s.Send(context.Background(), "   "); err == nil {
		t.Error("空メッセージはエラーのはずなのだ")
	}
}

func TestChatSession_FactoryErrorRetriesLater(t *testing.T) {
	calls := 0
	s := NewChatSessionWithFactory(func(ctx context.Context) (Conversation, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("temporary")
		}
		return &fakeConversation{}, nil
	}, nil)

	if _, err := s.Send(context.Background(), "hi"); !errors.Is(err, ErrChatUnavailable) {
		t.Fatalf("最初は失敗するはずなのだ: %v", err)
	}
	if _, err := s.Send(context.Background(), "hi again"); err != nil {
		t.Errorf("2回目は会話が作られるはずなのだ: %v", err)
	}
}
