package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
	"google.golang.org/genai"

	"github.com/shouni/go-comic-kit/pkg/config"
	"github.com/shouni/go-comic-kit/pkg/stage"
)

// ChatFailureMessage はチャットが失敗したときに利用者へ見せる文言です。
const ChatFailureMessage = "Sorry, I'm having trouble responding right now."

// ErrChatUnavailable はチャット応答の取得に失敗したことを表すのだ。
var ErrChatUnavailable = errors.New(ChatFailureMessage)

// Conversation は genai.Chat のうち送信だけを切り出したものです。
type Conversation interface {
	SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// ConversationFactory は会話を新しく開始する関数です。
type ConversationFactory func(ctx context.Context) (Conversation, error)

// ChatSession は最初の送信時に一度だけ会話を作成し、以降はそれを使い回します。
// 送信は1件ずつ直列に処理するのだ。
type ChatSession struct {
	factory ConversationFactory
	logger  *slog.Logger

	group singleflight.Group
	mu    sync.Mutex // 送信の直列化
	convM sync.Mutex // conv の保護
	conv  Conversation
}

var _ stage.Chatter = (*ChatSession)(nil)

// NewChatSession は genai クライアント上にチャットセッションを用意します。
func NewChatSession(client *genai.Client, cfg config.Config) (*ChatSession, error) {
	if client == nil {
		return nil, fmt.Errorf("genai クライアントは必須です")
	}
	cfg = cfg.WithDefaults()
	factory := func(ctx context.Context) (Conversation, error) {
		return client.Chats.Create(ctx, cfg.ChatModel, &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(config.ChatSystemInstruction, genai.RoleUser),
		}, nil)
	}
	return NewChatSessionWithFactory(factory, nil), nil
}

// NewChatSessionWithFactory は任意の会話生成関数からセッションを作ります。
func NewChatSessionWithFactory(factory ConversationFactory, logger *slog.Logger) *ChatSession {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatSession{factory: factory, logger: logger}
}

// Send はメッセージを送り、アシスタントの返答を返します。
// 失敗時は ErrChatUnavailable を返し、原因はログにだけ残すのだ。
func (s *ChatSession) Send(ctx context.Context, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", fmt.Errorf("メッセージが空です")
	}

	conv, err := s.conversation(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "チャットセッションの作成に失敗しました", "error", err)
		return "", ErrChatUnavailable
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	resp, err := conv.SendMessage(ctx, genai.Part{Text: message})
	if err != nil {
		s.logger.ErrorContext(ctx, "チャット応答の取得に失敗しました", "error", err)
		return "", ErrChatUnavailable
	}
	if resp == nil {
		return "", ErrChatUnavailable
	}
	return resp.Text(), nil
}

func (s *ChatSession) conversation(ctx context.Context) (Conversation, error) {
	s.convM.Lock()
	conv := s.conv
	s.convM.Unlock()
	if conv != nil {
		return conv, nil
	}

	v, err, _ := s.group.Do("conversation", func() (any, error) {
		s.convM.Lock()
		defer s.convM.Unlock()
		if s.conv != nil {
			return s.conv, nil
		}
		c, err := s.factory(ctx)
		if err != nil {
			return nil, err
		}
		s.conv = c
		s.logger.InfoContext(ctx, "チャットセッションを開始したのだ")
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Conversation), nil
}
