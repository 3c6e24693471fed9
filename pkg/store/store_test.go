package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shouni/go-comic-kit/pkg/domain"
)

// steppingClock は呼ばれるたびに1分ずつ進む時計なのだ。
func steppingClock() Clock {
	t := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Minute)
		return t
	}
}

func sampleProject(title string) domain.ProjectData {
	return domain.ProjectData{
		Title:       title,
		Script:      "INT. ROOM — DAY\nJohn enters.",
		AspectRatio: domain.AspectPortrait,
		Characters:  domain.Characters{{Name: "John", Description: "tall"}},
		Scenes:      domain.Scenes{{ID: "INT. ROOM — DAY", Description: "small room"}},
		ComicPages: domain.ComicPages{{
			Layout: domain.Layout2x1,
			Panels: []domain.Panel{{Description: "John enters.", ImageURL: "data:image/png;base64,AA=="}},
		}},
		CoverImageURL: "data:image/png;base64,AA==",
	}
}

func repositories(t *testing.T) map[string]Repository {
	t.Helper()
	db, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "comics.db"), WithClock(steppingClock()))
	if err != nil {
		t.Fatalf("SQLite を開けなかったのだ: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return map[string]Repository{
		"sqlite": db,
		"memory": NewMemory(steppingClock()),
	}
}

func TestRepository(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first, err := repo.SaveProject(ctx, "alice", sampleProject("First"))
			if err != nil {
				t.Fatalf("保存に失敗したのだ: %v", err)
			}
			second, err := repo.SaveProject(ctx, "alice", sampleProject("Second"))
			if err != nil {
				t.Fatalf("保存に失敗したのだ: %v", err)
			}
			if _, err := repo.SaveProject(ctx, "bob", sampleProject("Bob's")); err != nil {
				t.Fatalf("保存に失敗したのだ: %v", err)
			}

			list, err := repo.ListProjects(ctx, "alice")
			if err != nil {
				t.Fatalf("一覧の取得に失敗したのだ: %v", err)
			}
			if len(list) != 2 || list[0].ID != second || list[1].ID != first {
				t.Fatalf("新しい順に自分の作品だけが返るはずなのだ: %+v", list)
			}

			got, err := repo.GetProject(ctx, first)
			if err != nil {
				t.Fatalf("取得に失敗したのだ: %v", err)
			}
			if got.Title != "First" || got.UserID != "alice" || got.CreatedAt.IsZero() {
				t.Errorf("取得した作品がおかしいのだ: %+v", got)
			}
			if len(got.ComicPages) != 1 || got.ComicPages[0].Panels[0].Description != "John enters." {
				t.Errorf("ページが復元されていないのだ: %+v", got.ComicPages)
			}

			if err := repo.DeleteProject(ctx, first); err != nil {
				t.Fatalf("削除に失敗したのだ: %v", err)
			}
			if _, err := repo.GetProject(ctx, first); !errors.Is(err, ErrNotFound) {
				t.Errorf("削除後は ErrNotFound のはずなのだ: %v", err)
			}
			if err := repo.DeleteProject(ctx, first); !errors.Is(err, ErrNotFound) {
				t.Errorf("2回目の削除は ErrNotFound のはずなのだ: %v", err)
			}

			empty, err := repo.ListProjects(ctx, "nobody")
			if err != nil || len(empty) != 0 {
				t.Errorf("作品の無い利用者は空のはずなのだ: %v %+v", err, empty)
			}
		})
	}
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "comics.db")

	db, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("SQLite を開けなかったのだ: %v", err)
	}
	id, err := db.SaveProject(ctx, "alice", sampleProject("Kept"))
	if err != nil {
		t.Fatalf("保存に失敗したのだ: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	db, err = OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("再オープンに失敗したのだ: %v", err)
	}
	defer db.Close()
	got, err := db.GetProject(ctx, id)
	if err != nil || got.Title != "Kept" {
		t.Errorf("再オープン後も作品が残っているはずなのだ: %v %+v", err, got)
	}
}

func TestUsers_ClaimOnce(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			alice := domain.User{ID: "id-alice", DisplayName: " Alice ", AvatarURL: "https://example.com/a.png"}

			if _, err := repo.FindUser(ctx, "alice"); !errors.Is(err, ErrUserNotFound) {
				t.Fatalf("未登録なら ErrUserNotFound のはずなのだ: %v", err)
			}
			if err := repo.ClaimUser(ctx, alice); err != nil {
				t.Fatalf("登録に失敗したのだ: %v", err)
			}
			err := repo.ClaimUser(ctx, domain.User{ID: "id-mallory", DisplayName: "ALICE"})
			if !errors.Is(err, ErrNameTaken) {
				t.Fatalf("大文字小文字違いの同名は ErrNameTaken のはずなのだ: %v", err)
			}

			got, err := repo.FindUser(ctx, "aLiCe")
			if err != nil {
				t.Fatalf("検索に失敗したのだ: %v", err)
			}
			if got.ID != "id-alice" || got.DisplayName != "Alice" {
				t.Errorf("最初に登録した利用者のままのはずなのだ: %+v", got)
			}

			if err := repo.ClaimUser(ctx, domain.User{ID: "id-x", DisplayName: "  "}); err == nil {
				t.Error("空の表示名はエラーのはずなのだ")
			}
		})
	}
}
