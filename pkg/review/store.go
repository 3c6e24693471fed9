// Package review はレビュー中のキャラクターとシーンの一覧を保持し、
// 利用者の編集や AI による書き直しを1件単位で反映します。
package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/stage"
)

var (
	// ErrIndexOutOfRange は存在しない位置を編集しようとしたことを表すのだ。
	ErrIndexOutOfRange = errors.New("review: index out of range")
	// ErrStale は書き直しの途中で一覧が丸ごと差し替えられたため、結果を捨てたことを表します。
	ErrStale = errors.New("review: collection was replaced during enhancement")
)

// EnhanceError は1件の書き直しに失敗したことを表します。Error() はそのまま画面に出せる文言なのだ。
type EnhanceError struct {
	Label string
	Err   error
}

func (e *EnhanceError) Error() string {
	return fmt.Sprintf("Failed to enhance description for %s.", e.Label)
}

func (e *EnhanceError) Unwrap() error { return e.Err }

// Store はキャラクターとシーンの2つの一覧を独立して保持します。
// 並行に呼び出しても安全です。
type Store struct {
	mu         sync.RWMutex
	characters domain.Characters
	scenes     domain.Scenes
	charGen    uint64
	sceneGen   uint64
}

// New は空の Store を返します。
func New() *Store {
	return &Store{}
}

// ReplaceCharacters はキャラクター一覧を丸ごと差し替えるのだ。
func (s *Store) ReplaceCharacters(cs []domain.Character) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.characters = domain.Characters(cs).Clone()
	s.charGen++
}

// ReplaceScenes はシーン一覧を丸ごと差し替えます。
func (s *Store) ReplaceScenes(ss []domain.Scene) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scenes = domain.Scenes(ss).Clone()
	s.sceneGen++
}

// Characters は現在のキャラクター一覧のコピーを返します。
func (s *Store) Characters() domain.Characters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.characters.Clone()
}

// Scenes は現在のシーン一覧のコピーを返します。
func (s *Store) Scenes() domain.Scenes {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scenes.Clone()
}

// UpdateCharacter は i 番目のキャラクターの描写だけを書き換えます。
func (s *Store) UpdateCharacter(i int, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.characters) {
		return fmt.Errorf("%w: character %d of %d", ErrIndexOutOfRange, i, len(s.characters))
	}
	s.characters[i].Description = description
	return nil
}

// UpdateScene は i 番目のシーンの描写だけを書き換えます。
func (s *Store) UpdateScene(i int, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.scenes) {
		return fmt.Errorf("%w: scene %d of %d", ErrIndexOutOfRange, i, len(s.scenes))
	}
	s.scenes[i].Description = description
	return nil
}

// EnhanceCharacter は i 番目のキャラクターの描写を AI に書き直させ、その1件だけを置き換えます。
// 外部呼び出しの間はロックを保持しないのだ。
func (s *Store) EnhanceCharacter(ctx context.Context, i int, enhancer stage.CharacterEnhancer) (string, error) {
	s.mu.RLock()
	if i < 0 || i >= len(s.characters) {
		n := len(s.characters)
		s.mu.RUnlock()
		return "", fmt.Errorf("%w: character %d of %d", ErrIndexOutOfRange, i, n)
	}
	target := s.characters[i]
	gen := s.charGen
	s.mu.RUnlock()

	text, err := enhancer.EnhanceCharacter(ctx, target)
	if err == nil && strings.TrimSpace(text) == "" {
		err = stage.ErrEmptyResponse
	}
	if err != nil {
		return "", &EnhanceError{Label: label(target.Name, i), Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.charGen != gen {
		return "", ErrStale
	}
	s.characters[i].Description = text
	return text, nil
}

// EnhanceScene は i 番目のシーンの描写を AI に書き直させ、その1件だけを置き換えます。
func (s *Store) EnhanceScene(ctx context.Context, i int, enhancer stage.SceneEnhancer) (string, error) {
	s.mu.RLock()
	if i < 0 || i >= len(s.scenes) {
		n := len(s.scenes)
		s.mu.RUnlock()
		return "", fmt.Errorf("%w: scene %d of %d", ErrIndexOutOfRange, i, n)
	}
	target := s.scenes[i]
	gen := s.sceneGen
	s.mu.RUnlock()

	text, err := enhancer.EnhanceScene(ctx, target)
	if err == nil && strings.TrimSpace(text) == "" {
		err = stage.ErrEmptyResponse
	}
	if err != nil {
		return "", &EnhanceError{Label: label(target.ID, i), Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sceneGen != gen {
		return "", ErrStale
	}
	s.scenes[i].Description = text
	return text, nil
}

// Reset は両方の一覧を空に戻すのだ。
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.characters = nil
	s.scenes = nil
	s.charGen++
	s.sceneGen++
}

func label(key string, i int) string {
	if strings.TrimSpace(key) != "" {
		return key
	}
	return fmt.Sprintf("#%d", i)
}
