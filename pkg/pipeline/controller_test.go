package pipeline

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/stage"
)

// fakeService は呼び出し順を記録する stage.Service の偽物なのだ。
type fakeService struct {
	mu sync.Mutex

	characters []domain.Character
	scenes     []domain.Scene
	specs      []domain.PanelSpec
	layouts    []domain.PageLayout

	extractErr error
	panelErrAt int // 1始まり。0 なら失敗しない
	panelErr   error
	gate       chan struct{}
	entered    chan struct{}

	calls         []string
	panelRequests []stage.PanelRequest
	coverRequest  stage.CoverRequest
	layoutInput   []string
}

func (f *fakeService) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeService) ExtractCharacters(ctx context.Context, script string) ([]domain.Character, error) {
	f.record("characters")
	if f.entered != nil {
		close(f.entered)
	}
	if f.gate != nil {
		<-f.gate
	}
	if f.extractErr != nil {
		return nil, f.extractErr
	}
	return f.characters, nil
}

func (f *fakeService) ExtractScenes(ctx context.Context, script string) ([]domain.Scene, error) {
	f.record("scenes")
	return f.scenes, nil
}

func (f *fakeService) BreakdownPanels(ctx context.Context, script string) ([]domain.PanelSpec, error) {
	f.record("panels")
	return f.specs, nil
}

func (f *fakeService) EnhanceCharacter(ctx context.Context, c domain.Character) (string, error) {
	f.record("enhance-character")
	return "enhanced " + c.Name, nil
}

func (f *fakeService) EnhanceScene(ctx context.Context, s domain.Scene) (string, error) {
	f.record("enhance-scene")
	return "enhanced " + s.ID, nil
}

func (f *fakeService) RenderPanel(ctx context.Context, req stage.PanelRequest) (string, error) {
	f.record("panel:" + req.Description)
	f.mu.Lock()
	f.panelRequests = append(f.panelRequests, req)
	n := len(f.panelRequests)
	f.mu.Unlock()
	if f.panelErrAt > 0 && n == f.panelErrAt {
		return "", f.panelErr
	}
	return fmt.Sprintf("data:image/png;base64,cGFuZWw%d", n), nil
}

func (f *fakeService) RenderCover(ctx context.Context, req stage.CoverRequest) (string, error) {
	f.record("cover")
	f.coverRequest = req
	return "data:image/png;base64,Y292ZXI=", nil
}

func (f *fakeService) LayoutPages(ctx context.Context, descriptions []string) ([]domain.PageLayout, error) {
	f.record("layout")
	f.layoutInput = append([]string(nil), descriptions...)
	if f.layouts != nil {
		return f.layouts, nil
	}
	indices := make([]int, len(descriptions))
	for i := range indices {
		indices[i] = i
	}
	return []domain.PageLayout{{PanelIndices: indices, Layout: domain.Layout2x2}}, nil
}

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return nil
}

type fakePersister struct {
	err   error
	saved []domain.ProjectData
	owner string
}

func (p *fakePersister) SaveProject(ctx context.Context, ownerID string, data domain.ProjectData) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.owner = ownerID
	p.saved = append(p.saved, data)
	return fmt.Sprintf("project-%d", len(p.saved)), nil
}

func testConfig(t *testing.T) domain.GenerationConfig {
	t.Helper()
	style, err := domain.FindArtStyle("manga")
	if err != nil {
		t.Fatalf("画風が見つからないのだ: %v", err)
	}
	return domain.GenerationConfig{Style: style, AspectRatio: domain.AspectPortrait}
}

func johnService() *fakeService {
	return &fakeService{
		characters: []domain.Character{{Name: "John", Description: "tall man, red scarf"}},
		scenes:     []domain.Scene{{ID: "INT. ROOM — DAY", Description: "a cramped studio"}},
		specs: []domain.PanelSpec{{
			SceneID:     "INT. ROOM — DAY",
			Description: "John enters.",
			Characters:  []string{"John"},
			ShotType:    "medium shot",
		}},
	}
}

func newController(t *testing.T, svc stage.Service, opts ...Option) (*Controller, *recordingSleeper, *[]Snapshot) {
	t.Helper()
	sleeper := &recordingSleeper{}
	var mu sync.Mutex
	var seen []Snapshot
	opts = append([]Option{
		WithSleeper(sleeper.Sleep),
		WithObserver(func(s Snapshot) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, s)
		}),
	}, opts...)
	c, err := New(svc, opts...)
	if err != nil {
		t.Fatalf("Controller の生成に失敗したのだ: %v", err)
	}
	return c, sleeper, &seen
}

func progressMessages(snaps []Snapshot) []string {
	var out []string
	for _, s := range snaps {
		if s.Progress.Message == "" {
			continue
		}
		if len(out) > 0 && out[len(out)-1] == s.Progress.Message {
			continue
		}
		out = append(out, s.Progress.Message)
	}
	return out
}

func TestController_SingleSceneScript(t *testing.T) {
	svc := johnService()
	persister := &fakePersister{}
	c, sleeper, seen := newController(t, svc, WithPersister(persister))
	ctx := context.Background()

	if err := c.Submit(ctx, "INT. ROOM — DAY\nJohn enters.", testConfig(t)); err != nil {
		t.Fatalf("Submit に失敗したのだ: %v", err)
	}
	if got := c.Snapshot().State; got != StateCharacterReview {
		t.Fatalf("CHARACTER_REVIEW に進むはずなのだ: %s", got)
	}
	if err := c.ConfirmCharacters(nil); err != nil {
		t.Fatalf("ConfirmCharacters に失敗したのだ: %v", err)
	}
	if err := c.ConfirmScenes(ctx, nil); err != nil {
		t.Fatalf("ConfirmScenes に失敗したのだ: %v", err)
	}

	snap := c.Snapshot()
	if snap.State != StateDisplay {
		t.Fatalf("DISPLAY に進むはずなのだ: %s (%s)", snap.State, snap.Error)
	}
	if len(snap.Pages) != 1 || len(snap.Pages[0].Panels) != 1 {
		t.Fatalf("1ページ1コマのはずなのだ: %+v", snap.Pages)
	}
	if snap.CoverImageURL == "" {
		t.Error("表紙が設定されていないのだ")
	}

	req := svc.panelRequests[0]
	if !reflect.DeepEqual(req.CharacterDescriptions, []string{"tall man, red scarf"}) {
		t.Errorf("キャラクターの描写が渡っていないのだ: %v", req.CharacterDescriptions)
	}
	if req.SceneDescription != "a cramped studio" {
		t.Errorf("シーンの描写が渡っていないのだ: %q", req.SceneDescription)
	}
	if len(sleeper.delays) != 0 {
		t.Errorf("1コマなら待ち時間は入らないはずなのだ: %v", sleeper.delays)
	}

	wantCalls := []string{"characters", "scenes", "panels", "cover", "panel:John enters.", "layout"}
	if !reflect.DeepEqual(svc.calls, wantCalls) {
		t.Errorf("呼び出し順がおかしいのだ:\n got %v\nwant %v", svc.calls, wantCalls)
	}

	wantProgress := []string{
		MsgAnalyzingCharacters,
		MsgDefiningScenes,
		MsgBreakingPanels,
		MsgGeneratingCover,
		"Generating image for panel 1 of 1...",
		MsgArrangingPages,
	}
	if got := progressMessages(*seen); !reflect.DeepEqual(got, wantProgress) {
		t.Errorf("進捗の文言がおかしいのだ:\n got %v\nwant %v", got, wantProgress)
	}

	id, err := c.Save(ctx, "user-1", "  My Comic  ")
	if err != nil {
		t.Fatalf("保存に失敗したのだ: %v", err)
	}
	if id != "project-1" || c.Snapshot().ProjectID != id {
		t.Errorf("作品 ID が記録されていないのだ: %q", id)
	}
	saved := persister.saved[0]
	if saved.Title != "My Comic" || saved.ArtStyle.ID != "manga" || len(saved.ComicPages) != 1 {
		t.Errorf("保存内容がおかしいのだ: %+v", saved)
	}
	if _, err := c.Save(ctx, "user-1", "Again"); !errors.Is(err, ErrAlreadySaved) {
		t.Errorf("2回目の保存は ErrAlreadySaved のはずなのだ: %v", err)
	}
}

func TestController_ZeroPanelsReturnsToSetup(t *testing.T) {
	svc := johnService()
	svc.specs = []domain.PanelSpec{}
	c, _, _ := newController(t, svc)

	err := c.Submit(context.Background(), "a script with no action", testConfig(t))
	if !errors.Is(err, ErrNoPanels) {
		t.Fatalf("ErrNoPanels のはずなのだ: %v", err)
	}
	snap := c.Snapshot()
	if snap.State != StateSetup || snap.Error != NoPanelsMessage {
		t.Errorf("SETUP に戻って案内を出すはずなのだ: %s %q", snap.State, snap.Error)
	}
	if len(snap.Characters) != 0 || len(snap.Scenes) != 0 || len(snap.PanelSpecs) != 0 {
		t.Errorf("途中までの抽出結果は捨てるはずなのだ: %+v", snap)
	}
	for _, call := range svc.calls {
		if call == "cover" || strings.HasPrefix(call, "panel:") {
			t.Errorf("画像生成は呼ばれないはずなのだ: %v", svc.calls)
		}
	}
}

func TestController_ExtractFailure(t *testing.T) {
	svc := johnService()
	svc.extractErr = errors.New("failed to identify characters from the script: boom")
	c, _, _ := newController(t, svc)

	if err := c.Submit(context.Background(), "script", testConfig(t)); err == nil {
		t.Fatal("エラーになるはずなのだ")
	}
	snap := c.Snapshot()
	if snap.State != StateSetup || snap.Error != svc.extractErr.Error() {
		t.Errorf("エラー文がそのまま出るはずなのだ: %s %q", snap.State, snap.Error)
	}
	if snap.Script != "script" {
		t.Errorf("台本は再投入用に残るはずなのだ: %q", snap.Script)
	}
}

func TestController_FivePanelsInOrderWithDelays(t *testing.T) {
	svc := johnService()
	svc.specs = nil
	for i := 0; i < 5; i++ {
		svc.specs = append(svc.specs, domain.PanelSpec{SceneID: "INT. ROOM — DAY", Description: fmt.Sprintf("p%d", i)})
	}
	c, sleeper, seen := newController(t, svc)
	ctx := context.Background()

	if err := c.Submit(ctx, "script", testConfig(t)); err != nil {
		t.Fatalf("Submit に失敗したのだ: %v", err)
	}
	if err := c.ConfirmCharacters(nil); err != nil {
		t.Fatal(err)
	}
	if err := c.ConfirmScenes(ctx, nil); err != nil {
		t.Fatalf("ConfirmScenes に失敗したのだ: %v", err)
	}

	var order []string
	for _, r := range svc.panelRequests {
		order = append(order, r.Description)
	}
	if !reflect.DeepEqual(order, []string{"p0", "p1", "p2", "p3", "p4"}) {
		t.Errorf("コマは順番通りに生成するはずなのだ: %v", order)
	}
	want := []time.Duration{1200 * time.Millisecond, 1200 * time.Millisecond, 1200 * time.Millisecond, 1200 * time.Millisecond}
	if !reflect.DeepEqual(sleeper.delays, want) {
		t.Errorf("待ち時間は 1200ms を4回のはずなのだ: %v", sleeper.delays)
	}
	if !reflect.DeepEqual(svc.layoutInput, []string{"p0", "p1", "p2", "p3", "p4"}) {
		t.Errorf("ページ割りには説明文を順番通りに渡すはずなのだ: %v", svc.layoutInput)
	}

	var panelSteps []Progress
	for _, s := range *seen {
		if !strings.HasPrefix(s.Progress.Message, "Generating image for panel") {
			continue
		}
		if n := len(panelSteps); n > 0 && panelSteps[n-1] == s.Progress {
			continue
		}
		panelSteps = append(panelSteps, s.Progress)
	}
	if len(panelSteps) != 5 {
		t.Fatalf("コマごとに進捗が出るはずなのだ: %+v", panelSteps)
	}
	last := panelSteps[4]
	if last.Step != 6 || last.Total != 7 || last.Message != "Generating image for panel 5 of 5..." {
		t.Errorf("最後のコマの進捗がおかしいのだ: %+v", last)
	}
	if got := c.Snapshot().Pages.PanelCount(); got != 5 {
		t.Errorf("全てのコマが配置されるはずなのだ: %d", got)
	}
}

func TestController_RenderFailureDiscardsArtifacts(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"rate limit", errors.New("failed to generate an image: Error 429, Status: RESOURCE_EXHAUSTED"), RateLimitMessage},
		{"other", errors.New("failed to generate an image: no image was generated"), "failed to generate an image: no image was generated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := johnService()
			svc.specs = append(svc.specs, domain.PanelSpec{Description: "second"})
			svc.panelErrAt = 2
			svc.panelErr = tt.err
			c, _, _ := newController(t, svc)
			ctx := context.Background()

			if err := c.Submit(ctx, "script", testConfig(t)); err != nil {
				t.Fatal(err)
			}
			if err := c.ConfirmCharacters(nil); err != nil {
				t.Fatal(err)
			}
			if err := c.ConfirmScenes(ctx, nil); !errors.Is(err, tt.err) {
				t.Fatalf("元のエラーが返るはずなのだ: %v", err)
			}

			snap := c.Snapshot()
			if snap.State != StateSetup || snap.Error != tt.wantMsg {
				t.Errorf("SETUP に戻って %q を出すはずなのだ: %s %q", tt.wantMsg, snap.State, snap.Error)
			}
			if len(snap.Panels) != 0 || len(snap.Pages) != 0 || snap.CoverImageURL != "" {
				t.Errorf("生成済みのコマと表紙は捨てるはずなのだ: %+v", snap)
			}
		})
	}
}

func TestController_ReviewEditsReachPanels(t *testing.T) {
	svc := johnService()
	svc.specs[0].Characters = []string{"JOHN"}
	svc.specs[0].SceneID = "int. room — day"
	c, _, _ := newController(t, svc)
	ctx := context.Background()

	if err := c.Submit(ctx, "script", testConfig(t)); err != nil {
		t.Fatal(err)
	}
	if err := c.Review().UpdateCharacter(0, "short woman, green coat"); err != nil {
		t.Fatalf("編集に失敗したのだ: %v", err)
	}
	if err := c.ConfirmCharacters(nil); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Review().EnhanceScene(ctx, 0, svc); err != nil {
		t.Fatalf("書き直しに失敗したのだ: %v", err)
	}
	if err := c.ConfirmScenes(ctx, nil); err != nil {
		t.Fatal(err)
	}

	req := svc.panelRequests[0]
	if !reflect.DeepEqual(req.CharacterDescriptions, []string{"short woman, green coat"}) {
		t.Errorf("編集後の描写が使われていないのだ: %v", req.CharacterDescriptions)
	}
	if req.SceneDescription != "enhanced INT. ROOM — DAY" {
		t.Errorf("書き直し後のシーン描写が使われていないのだ: %q", req.SceneDescription)
	}
}

func TestController_ConfirmWithReplacementLists(t *testing.T) {
	svc := johnService()
	c, _, _ := newController(t, svc)
	ctx := context.Background()

	if err := c.Submit(ctx, "script", testConfig(t)); err != nil {
		t.Fatal(err)
	}
	if err := c.ConfirmCharacters([]domain.Character{{Name: "John", Description: "replaced"}}); err != nil {
		t.Fatal(err)
	}
	if err := c.ConfirmScenes(ctx, []domain.Scene{{ID: "INT. ROOM — DAY", Description: "replaced room"}}); err != nil {
		t.Fatal(err)
	}
	req := svc.panelRequests[0]
	if req.CharacterDescriptions[0] != "replaced" || req.SceneDescription != "replaced room" {
		t.Errorf("確定時に渡した一覧が使われていないのだ: %+v", req)
	}
}

func TestController_StateErrors(t *testing.T) {
	c, _, _ := newController(t, johnService())
	ctx := context.Background()

	var se *StateError
	if err := c.ConfirmCharacters(nil); !errors.As(err, &se) || se.State != StateSetup {
		t.Errorf("SETUP での ConfirmCharacters は StateError のはずなのだ: %v", err)
	}
	if err := c.ConfirmScenes(ctx, nil); !errors.As(err, &se) {
		t.Errorf("SETUP での ConfirmScenes は StateError のはずなのだ: %v", err)
	}
	if _, err := c.Save(ctx, "user", "title"); !errors.As(err, &se) {
		t.Errorf("SETUP での Save は StateError のはずなのだ: %v", err)
	}
	if err := c.Submit(ctx, "   ", testConfig(t)); !errors.Is(err, ErrEmptyScript) {
		t.Errorf("空の台本は ErrEmptyScript のはずなのだ: %v", err)
	}
	if err := c.Submit(ctx, "script", domain.GenerationConfig{}); !errors.Is(err, domain.ErrIncompleteGenConfig) {
		t.Errorf("不完全な設定はエラーのはずなのだ: %v", err)
	}

	if err := c.Submit(ctx, "script", testConfig(t)); err != nil {
		t.Fatal(err)
	}
	if err := c.Submit(ctx, "script", testConfig(t)); !errors.As(err, &se) {
		t.Errorf("レビュー中の Submit は StateError のはずなのだ: %v", err)
	}
}

func TestController_RejectsReentrantCalls(t *testing.T) {
	svc := johnService()
	svc.gate = make(chan struct{})
	svc.entered = make(chan struct{})
	c, _, _ := newController(t, svc)
	ctx := context.Background()

	cfg := testConfig(t)
	done := make(chan error, 1)
	go func() { done <- c.Submit(ctx, "script", cfg) }()
	<-svc.entered

	if err := c.Submit(ctx, "script", cfg); !errors.Is(err, ErrBusy) {
		t.Errorf("実行中の Submit は ErrBusy のはずなのだ: %v", err)
	}
	if err := c.Reset(); !errors.Is(err, ErrBusy) {
		t.Errorf("実行中の Reset は ErrBusy のはずなのだ: %v", err)
	}
	if snap := c.Snapshot(); snap.State != StateGenerating || snap.Phase != PhaseExtract {
		t.Errorf("実行中は GENERATING(extract) のはずなのだ: %s/%s", snap.State, snap.Phase)
	}

	close(svc.gate)
	if err := <-done; err != nil {
		t.Fatalf("Submit に失敗したのだ: %v", err)
	}
	if err := c.Reset(); err != nil {
		t.Fatalf("Reset に失敗したのだ: %v", err)
	}
	snap := c.Snapshot()
	if snap.State != StateSetup || snap.Script != "" || len(snap.Characters) != 0 {
		t.Errorf("Reset 後は空の SETUP のはずなのだ: %+v", snap)
	}
}

func TestController_SaveRules(t *testing.T) {
	svc := johnService()
	persister := &fakePersister{err: errors.New("disk full")}
	c, _, _ := newController(t, svc, WithPersister(persister))
	ctx := context.Background()

	if err := c.Submit(ctx, "script", testConfig(t)); err != nil {
		t.Fatal(err)
	}
	if err := c.ConfirmCharacters(nil); err != nil {
		t.Fatal(err)
	}
	if err := c.ConfirmScenes(ctx, nil); err != nil {
		t.Fatal(err)
	}

	if _, err := c.Save(ctx, "user-1", "   "); !errors.Is(err, ErrEmptyTitle) {
		t.Errorf("空のタイトルは ErrEmptyTitle のはずなのだ: %v", err)
	}
	if _, err := c.Save(ctx, "", "Title"); !errors.Is(err, ErrNoOwner) {
		t.Errorf("未ログインは ErrNoOwner のはずなのだ: %v", err)
	}
	if _, err := c.Save(ctx, "user-1", "Title"); err == nil || !errors.Is(err, persister.err) {
		t.Errorf("保存先のエラーが返るはずなのだ: %v", err)
	}
	snap := c.Snapshot()
	if snap.State != StateDisplay || snap.ProjectID != "" || snap.Error != "" {
		t.Errorf("保存の失敗で状態は変わらないはずなのだ: %+v", snap)
	}

	persister.err = nil
	if _, err := c.Save(ctx, "user-1", "Title"); err != nil {
		t.Errorf("再試行した保存は成功するはずなのだ: %v", err)
	}
	if persister.owner != "user-1" {
		t.Errorf("所有者が渡っていないのだ: %q", persister.owner)
	}
}

func TestController_MissingConfigAbortsRender(t *testing.T) {
	svc := johnService()
	c, _, _ := newController(t, svc)

	c.mu.Lock()
	c.state = StateSceneReview
	c.mu.Unlock()

	if err := c.ConfirmScenes(context.Background(), nil); !errors.Is(err, ErrMissingConfig) {
		t.Fatalf("ErrMissingConfig のはずなのだ: %v", err)
	}
	snap := c.Snapshot()
	if snap.State != StateSetup || snap.Error != MissingConfigMessage {
		t.Errorf("SETUP に戻って案内を出すはずなのだ: %s %q", snap.State, snap.Error)
	}
	if len(svc.calls) != 0 {
		t.Errorf("生成サービスは呼ばれないはずなのだ: %v", svc.calls)
	}
}

func TestController_CoverExcerpt(t *testing.T) {
	svc := johnService()
	c, _, _ := newController(t, svc)
	ctx := context.Background()
	script := strings.Repeat("あ", 600)

	if err := c.Submit(ctx, script, testConfig(t)); err != nil {
		t.Fatal(err)
	}
	if err := c.ConfirmCharacters(nil); err != nil {
		t.Fatal(err)
	}
	if err := c.ConfirmScenes(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if got := len([]rune(svc.coverRequest.ScriptExcerpt)); got != stage.CoverExcerptLength {
		t.Errorf("表紙には先頭 %d 文字を渡すはずなのだ: %d", stage.CoverExcerptLength, got)
	}
}

func TestController_LooseLayoutReachesDisplay(t *testing.T) {
	svc := johnService()
	svc.specs = append(svc.specs, domain.PanelSpec{
		SceneID:     "INT. ROOM — DAY",
		Description: "John sits.",
		Characters:  []string{"John"},
	})
	svc.layouts = []domain.PageLayout{
		{PanelIndices: []int{0, -1}, Layout: domain.Layout2x1},
		{PanelIndices: []int{}, Layout: domain.Layout1x2},
	}
	c, _, _ := newController(t, svc)
	ctx := context.Background()

	if err := c.Submit(ctx, "INT. ROOM — DAY\nJohn enters. John sits.", testConfig(t)); err != nil {
		t.Fatal(err)
	}
	if err := c.ConfirmCharacters(nil); err != nil {
		t.Fatal(err)
	}
	if err := c.ConfirmScenes(ctx, nil); err != nil {
		t.Fatalf("負の番号や空のページで止まらないはずなのだ: %v", err)
	}

	snap := c.Snapshot()
	if snap.State != StateDisplay {
		t.Fatalf("DISPLAY に進むはずなのだ: %s (%s)", snap.State, snap.Error)
	}
	if len(snap.Pages) != 2 {
		t.Fatalf("2ページのはずなのだ: %+v", snap.Pages)
	}
	if got := snap.Pages.PanelCount(); got != 1 {
		t.Errorf("配置されるのは1コマのはずなのだ: %d", got)
	}
	if len(snap.Pages[1].Panels) != 0 {
		t.Errorf("空のページは空のまま残るはずなのだ: %+v", snap.Pages[1])
	}
}
