// Package identity はサインイン中の利用者と、そのセッショントークンを管理します。
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/store"
)

const (
	DefaultIssuer   = "go-comic-kit"
	DefaultTokenTTL = 24 * time.Hour
)

var (
	ErrNotSignedIn  = errors.New("identity: not signed in")
	ErrInvalidToken = errors.New("identity: invalid session token")
)

// SessionStore はトークンをプロセスの外に保存する先です。
type SessionStore interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

type claims struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	jwt.RegisteredClaims
}

// Option は Manager の任意設定です。
type Option func(*Manager)

// WithTokenTTL はトークンの有効期間を変更します。
func WithTokenTTL(d time.Duration) Option {
	return func(m *Manager) { m.ttl = d }
}

// WithClock は現在時刻の取得元を差し替えるのだ。
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithSessionStore はトークンの保存先を設定します。
func WithSessionStore(s SessionStore) Option {
	return func(m *Manager) { m.session = s }
}

// WithUsers は表示名と利用者 ID の対応の保存先を設定します。未設定ならプロセス内にだけ持つのだ。
func WithUsers(u store.Users) Option {
	return func(m *Manager) { m.users = u }
}

// Manager は HS256 のセッショントークンを発行・検証し、現在の利用者を購読者に配信します。
type Manager struct {
	secret  []byte
	issuer  string
	ttl     time.Duration
	now     func() time.Time
	session SessionStore
	users   store.Users

	mu      sync.Mutex
	current *domain.User
	nextSub int
	subs    map[int]chan *domain.User
}

// NewManager は署名鍵を受け取って Manager を生成します。
func NewManager(secret []byte, opts ...Option) (*Manager, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("署名鍵は必須です")
	}
	m := &Manager{
		secret: secret,
		issuer: DefaultIssuer,
		ttl:    DefaultTokenTTL,
		now:    time.Now,
		subs:   make(map[int]chan *domain.User),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.users == nil {
		m.users = store.NewMemory(nil)
	}
	return m, nil
}

// Register は表示名に新しい利用者 ID を割り当てて登録します。
// 登録済みの名前は奪えず、store.ErrNameTaken を返すのだ。
func (m *Manager) Register(ctx context.Context, displayName, avatarURL string) (domain.User, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return domain.User{}, fmt.Errorf("表示名は必須です")
	}
	user := domain.User{ID: uuid.NewString(), DisplayName: displayName, AvatarURL: avatarURL}
	if err := m.users.ClaimUser(ctx, user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// SignIn は端末の利用者をサインインさせ、セッショントークンを返します。
// 登録済みの表示名ならその利用者に戻り、未登録なら新しく登録するのだ。
func (m *Manager) SignIn(ctx context.Context, displayName, avatarURL string) (domain.User, string, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return domain.User{}, "", fmt.Errorf("表示名は必須です")
	}
	user, err := m.users.FindUser(ctx, displayName)
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		user, err = m.Register(ctx, displayName, avatarURL)
		if err != nil {
			return domain.User{}, "", err
		}
	case err != nil:
		return domain.User{}, "", fmt.Errorf("利用者の検索に失敗しました: %w", err)
	}

	token, err := m.Issue(user)
	if err != nil {
		return domain.User{}, "", err
	}
	if m.session != nil {
		if err := m.session.Save(token); err != nil {
			return domain.User{}, "", fmt.Errorf("セッションの保存に失敗しました: %w", err)
		}
	}
	m.setCurrent(&user)
	return user, token, nil
}

// Issue は利用者のトークンを発行するだけで、現在の利用者は変えません。
func (m *Manager) Issue(user domain.User) (string, error) {
	now := m.now()
	c := claims{
		Name:   user.DisplayName,
		Avatar: user.AvatarURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify はトークンを検証して利用者を取り出します。
func (m *Manager) Verify(token string) (domain.User, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c.Subject == "" {
		return domain.User{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return domain.User{ID: c.Subject, DisplayName: c.Name, AvatarURL: c.Avatar}, nil
}

// Restore は保存済みのセッションから利用者を復元します。
func (m *Manager) Restore(ctx context.Context) (domain.User, error) {
	if m.session == nil {
		return domain.User{}, ErrNotSignedIn
	}
	token, err := m.session.Load()
	if err != nil {
		return domain.User{}, err
	}
	if token == "" {
		return domain.User{}, ErrNotSignedIn
	}
	user, err := m.Verify(token)
	if err != nil {
		return domain.User{}, err
	}
	m.setCurrent(&user)
	return user, nil
}

// SignOut は現在の利用者をサインアウトさせます。
func (m *Manager) SignOut(ctx context.Context) error {
	if m.session != nil {
		if err := m.session.Clear(); err != nil {
			return fmt.Errorf("セッションの削除に失敗しました: %w", err)
		}
	}
	m.setCurrent(nil)
	return nil
}

// Current は現在の利用者を返します。サインインしていなければ nil なのだ。
func (m *Manager) Current() *domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyUser(m.current)
}

// Watch は現在の利用者を最初に1度、以降は変わるたびに送るチャネルを返します。
// 受信が追いつかない場合は最新の値だけが残り、ctx が終わるとチャネルは閉じられるのだ。
func (m *Manager) Watch(ctx context.Context) <-chan *domain.User {
	ch := make(chan *domain.User, 1)

	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	ch <- copyUser(m.current)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
		close(ch)
	}()
	return ch
}

func (m *Manager) setCurrent(u *domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = copyUser(u)
	for _, ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		ch <- copyUser(u)
	}
}

func copyUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
