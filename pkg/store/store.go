// Package store は完成した作品の保存・一覧・削除を提供します。
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shouni/go-comic-kit/pkg/domain"
)

var (
	// ErrNotFound は指定した作品が存在しないことを表すのだ。
	ErrNotFound = errors.New("store: project not found")
	// ErrUserNotFound はその表示名の利用者がまだ登録されていないことを表します。
	ErrUserNotFound = errors.New("store: user not found")
	// ErrNameTaken は表示名がすでに別の利用者に使われていることを表すのだ。
	ErrNameTaken = errors.New("store: display name is already taken")
)

// Users は表示名と利用者 ID の対応を保存します。表示名は大文字小文字を区別しません。
type Users interface {
	// ClaimUser は表示名を u.ID に結び付けます。登録済みの名前なら ErrNameTaken なのだ。
	ClaimUser(ctx context.Context, u domain.User) error
	FindUser(ctx context.Context, displayName string) (domain.User, error)
}

// Repository は作品と利用者の永続化先です。
type Repository interface {
	Users

	// SaveProject は作品を保存し、新しい作品 ID を返します。
	SaveProject(ctx context.Context, ownerID string, data domain.ProjectData) (string, error)
	// ListProjects は所有者の作品を新しい順に返します。
	ListProjects(ctx context.Context, ownerID string) ([]domain.Project, error)
	GetProject(ctx context.Context, id string) (domain.Project, error)
	DeleteProject(ctx context.Context, id string) error
	Close() error
}

// Clock は保存時刻の取得元です。テストで順序を固定するために差し替えるのだ。
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

// NameKey は表示名を比較用のキーにします。
func NameKey(displayName string) string {
	return strings.ToLower(strings.TrimSpace(displayName))
}

func validUser(u domain.User) error {
	if u.ID == "" || NameKey(u.DisplayName) == "" {
		return errors.New("store: user id and display name are required")
	}
	return nil
}
