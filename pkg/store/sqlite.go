package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/shouni/go-comic-kit/pkg/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS projects (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    title      TEXT NOT NULL,
    data       TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_projects_user_created ON projects (user_id, created_at DESC);
CREATE TABLE IF NOT EXISTS users (
    name_key     TEXT PRIMARY KEY,
    id           TEXT NOT NULL UNIQUE,
    display_name TEXT NOT NULL,
    avatar_url   TEXT NOT NULL,
    created_at   INTEGER NOT NULL
);
`

// SQLite は SQLite ファイルに作品を保存する Repository です。
type SQLite struct {
	db    *sql.DB
	path  string
	clock Clock
}

var _ Repository = (*SQLite)(nil)

// SQLiteOption は SQLite の任意設定です。
type SQLiteOption func(*SQLite)

// WithClock は保存時刻の取得元を差し替えます。
func WithClock(c Clock) SQLiteOption {
	return func(s *SQLite) { s.clock = c }
}

// OpenSQLite はデータベースを開き、必要ならテーブルを作成します。
func OpenSQLite(ctx context.Context, path string, opts ...SQLiteOption) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s := &SQLite{db: db, path: path, clock: systemClock}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close はデータベース接続を閉じます。
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveProject は作品を JSON として1行に保存します。
func (s *SQLite) SaveProject(ctx context.Context, ownerID string, data domain.ProjectData) (string, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal project: %w", err)
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO projects (id, user_id, title, data, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, ownerID, data.Title, string(payload), s.clock().UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("insert project: %w", err)
	}
	return id, nil
}

// ListProjects は所有者の作品を作成日時の新しい順に返します。
func (s *SQLite) ListProjects(ctx context.Context, ownerID string) ([]domain.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, data, created_at FROM projects WHERE user_id = ? ORDER BY created_at DESC, id`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return projects, nil
}

// GetProject は ID で作品を1件取得します。
func (s *SQLite) GetProject(ctx context.Context, id string) (domain.Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, data, created_at FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Project{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, err
}

// DeleteProject は作品を削除します。
func (s *SQLite) DeleteProject(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// ClaimUser は表示名がまだ空いていれば利用者を登録します。
func (s *SQLite) ClaimUser(ctx context.Context, u domain.User) error {
	if err := validUser(u); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (name_key, id, display_name, avatar_url, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(name_key) DO NOTHING`,
		NameKey(u.DisplayName), u.ID, strings.TrimSpace(u.DisplayName), u.AvatarURL, s.clock().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNameTaken, u.DisplayName)
	}
	return nil
}

// FindUser は表示名から登録済みの利用者を返します。
func (s *SQLite) FindUser(ctx context.Context, displayName string) (domain.User, error) {
	var u domain.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, display_name, avatar_url FROM users WHERE name_key = ?`, NameKey(displayName),
	).Scan(&u.ID, &u.DisplayName, &u.AvatarURL)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, fmt.Errorf("%w: %s", ErrUserNotFound, displayName)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(sc scanner) (domain.Project, error) {
	var (
		p         domain.Project
		payload   string
		createdAt int64
	)
	if err := sc.Scan(&p.ID, &p.UserID, &payload, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Project{}, err
		}
		return domain.Project{}, fmt.Errorf("scan project: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &p.ProjectData); err != nil {
		return domain.Project{}, fmt.Errorf("unmarshal project %s: %w", p.ID, err)
	}
	p.CreatedAt = time.Unix(0, createdAt).UTC()
	return p, nil
}
