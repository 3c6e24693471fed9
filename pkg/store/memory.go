package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/shouni/go-comic-kit/pkg/domain"
)

// Memory はプロセス内にだけ作品を保持する Repository です。
type Memory struct {
	items *cache.Cache
	users *cache.Cache
	clock Clock
}

var _ Repository = (*Memory)(nil)

// NewMemory は期限切れの無いメモリ上の Repository を返すのだ。
func NewMemory(clock Clock) *Memory {
	if clock == nil {
		clock = systemClock
	}
	return &Memory{
		items: cache.New(cache.NoExpiration, 0),
		users: cache.New(cache.NoExpiration, 0),
		clock: clock,
	}
}

func (m *Memory) SaveProject(ctx context.Context, ownerID string, data domain.ProjectData) (string, error) {
	p := domain.Project{
		ProjectData: data.Clone(),
		ID:          uuid.NewString(),
		UserID:      ownerID,
		CreatedAt:   m.clock(),
	}
	if err := m.items.Add(p.ID, p, cache.NoExpiration); err != nil {
		return "", fmt.Errorf("store project: %w", err)
	}
	return p.ID, nil
}

func (m *Memory) ListProjects(ctx context.Context, ownerID string) ([]domain.Project, error) {
	var projects []domain.Project
	for _, item := range m.items.Items() {
		p := item.Object.(domain.Project)
		if p.UserID == ownerID {
			projects = append(projects, clone(p))
		}
	}
	sort.Slice(projects, func(i, j int) bool {
		if projects[i].CreatedAt.Equal(projects[j].CreatedAt) {
			return projects[i].ID < projects[j].ID
		}
		return projects[i].CreatedAt.After(projects[j].CreatedAt)
	})
	return projects, nil
}

func (m *Memory) GetProject(ctx context.Context, id string) (domain.Project, error) {
	v, ok := m.items.Get(id)
	if !ok {
		return domain.Project{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return clone(v.(domain.Project)), nil
}

func (m *Memory) DeleteProject(ctx context.Context, id string) error {
	if _, ok := m.items.Get(id); !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	m.items.Delete(id)
	return nil
}

// ClaimUser は cache.Add の重複拒否で表示名の先取りを判定するのだ。
func (m *Memory) ClaimUser(ctx context.Context, u domain.User) error {
	if err := validUser(u); err != nil {
		return err
	}
	u.DisplayName = strings.TrimSpace(u.DisplayName)
	if err := m.users.Add(NameKey(u.DisplayName), u, cache.NoExpiration); err != nil {
		return fmt.Errorf("%w: %s", ErrNameTaken, u.DisplayName)
	}
	return nil
}

func (m *Memory) FindUser(ctx context.Context, displayName string) (domain.User, error) {
	v, ok := m.users.Get(NameKey(displayName))
	if !ok {
		return domain.User{}, fmt.Errorf("%w: %s", ErrUserNotFound, displayName)
	}
	return v.(domain.User), nil
}

func (m *Memory) Close() error {
	m.items.Flush()
	m.users.Flush()
	return nil
}

func clone(p domain.Project) domain.Project {
	p.ProjectData = p.ProjectData.Clone()
	return p
}
