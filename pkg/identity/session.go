package identity

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

// FileSession はトークンを1つのファイルに保存します。
// 複数の CLI プロセスが同時に書き込まないよう、隣に置いたロックファイルで排他するのだ。
type FileSession struct {
	path string
	lock *flock.Flock
}

var _ SessionStore = (*FileSession)(nil)

// DefaultSessionPath はユーザー設定ディレクトリ配下のセッションファイルの場所です。
func DefaultSessionPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "go-comic-kit", "session"), nil
}

// NewFileSession は path にトークンを保存する FileSession を返します。
func NewFileSession(path string) *FileSession {
	return &FileSession{path: path, lock: flock.New(path + ".lock")}
}

func (s *FileSession) Load() (string, error) {
	if err := s.ensureDir(); err != nil {
		return "", err
	}
	if err := s.lock.RLock(); err != nil {
		return "", fmt.Errorf("acquire session lock: %w", err)
	}
	defer s.lock.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read session: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *FileSession) Save(token string) error {
	if err := s.ensureDir(); err != nil {
		return err
	}
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("acquire session lock: %w", err)
	}
	defer s.lock.Unlock()

	if err := os.WriteFile(s.path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

func (s *FileSession) Clear() error {
	if err := s.ensureDir(); err != nil {
		return err
	}
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("acquire session lock: %w", err)
	}
	defer s.lock.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}

func (s *FileSession) ensureDir() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("ensure session dir: %w", err)
	}
	return nil
}
