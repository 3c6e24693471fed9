// Package pipeline は台本から漫画を仕上げるまでの流れを、2つのレビュー地点を持つ状態機械として制御します。
//
//	SETUP -> GENERATING(extract) -> CHARACTER_REVIEW -> SCENE_REVIEW -> GENERATING(render) -> DISPLAY
//
// 生成中の失敗はすべて SETUP に戻り、途中までの成果物は破棄されるのだ。
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shouni/go-comic-kit/pkg/config"
	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/review"
	"github.com/shouni/go-comic-kit/pkg/stage"
)

// Persister は完成した作品を保存する先です。
type Persister interface {
	SaveProject(ctx context.Context, ownerID string, data domain.ProjectData) (string, error)
}

// Sleeper はコマ生成の合間の待ち時間を実装します。テストでは記録するだけの実装に差し替えるのだ。
type Sleeper func(ctx context.Context, d time.Duration) error

// Option は Controller の任意設定です。
type Option func(*Controller)

// WithSleeper は待ち時間の実装を差し替えます。
func WithSleeper(s Sleeper) Option {
	return func(c *Controller) { c.sleep = s }
}

// WithPanelDelay はコマ生成の間に挟む待ち時間を変更します。
func WithPanelDelay(d time.Duration) Option {
	return func(c *Controller) { c.panelDelay = d }
}

// WithObserver は状態が変わるたびにスナップショットを受け取る関数を登録します。
// ロックを保持したまま呼ばれるので、observer から Controller を呼び返してはいけないのだ。
func WithObserver(fn func(Snapshot)) Option {
	return func(c *Controller) { c.observer = fn }
}

// WithPersister は保存先を設定します。
func WithPersister(p Persister) Option {
	return func(c *Controller) { c.persister = p }
}

// WithLogger はロガーを差し替えます。
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// Controller は1回分の生成フローを保持する状態機械です。
// 外部の生成サービスへの呼び出しは常に1つずつ行うのだ。
type Controller struct {
	service    stage.Service
	store      *review.Store
	persister  Persister
	sleep      Sleeper
	panelDelay time.Duration
	observer   func(Snapshot)
	logger     *slog.Logger

	mu        sync.Mutex
	running   bool
	state     State
	phase     Phase
	progress  Progress
	errMsg    string
	script    string
	genConfig *domain.GenerationConfig
	specs     domain.PanelSpecs
	panels    []domain.Panel
	pages     domain.ComicPages
	cover     string
	projectID string
}

// New は SETUP 状態の Controller を生成します。
func New(service stage.Service, opts ...Option) (*Controller, error) {
	if service == nil {
		return nil, fmt.Errorf("stage.Service は必須です")
	}
	c := &Controller{
		service:    service,
		store:      review.New(),
		sleep:      sleepContext,
		panelDelay: config.DefaultPanelDelay,
		logger:     slog.Default(),
		state:      StateSetup,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.panelDelay < 0 {
		c.panelDelay = 0
	}
	return c, nil
}

// Review はレビュー中の編集に使う Store を返します。
func (c *Controller) Review() *review.Store {
	return c.store
}

// Notify は現在のスナップショットを observer に送り直します。Review() 経由で編集した後に呼ぶのだ。
func (c *Controller) Notify() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifyLocked()
}

// Snapshot は現在の状態のディープコピーを返します。
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Submit は台本と生成設定を受け取り、抽出段階を最後まで実行します。
// 成功すると CHARACTER_REVIEW に進み、失敗すると SETUP に戻ってエラーを返すのだ。
func (c *Controller) Submit(ctx context.Context, script string, cfg domain.GenerationConfig) error {
	if strings.TrimSpace(script) == "" {
		return ErrEmptyScript
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	if err := c.beginLocked("Submit", StateSetup); err != nil {
		c.mu.Unlock()
		return err
	}
	c.clearLocked()
	c.script = script
	c.genConfig = &cfg
	c.state = StateGenerating
	c.phase = PhaseExtract
	c.notifyLocked()
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "台本の解析を開始します", "script_runes", len([]rune(script)), "style", cfg.Style.ID)

	specs, err := c.extract(ctx, script)
	if err != nil {
		c.fail(ctx, "extract", err, err.Error())
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	c.specs = specs
	c.state = StateCharacterReview
	c.phase = PhaseNone
	c.progress = Progress{}
	c.notifyLocked()
	c.logger.InfoContext(ctx, "台本の解析が完了しました",
		"characters", len(c.store.Characters()),
		"scenes", len(c.store.Scenes()),
		"panels", len(specs))
	return nil
}

func (c *Controller) extract(ctx context.Context, script string) (domain.PanelSpecs, error) {
	c.setProgress(1, 3, MsgAnalyzingCharacters)
	characters, err := c.service.ExtractCharacters(ctx, script)
	if err != nil {
		return nil, err
	}
	c.store.ReplaceCharacters(characters)

	c.setProgress(2, 3, MsgDefiningScenes)
	scenes, err := c.service.ExtractScenes(ctx, script)
	if err != nil {
		return nil, err
	}
	c.store.ReplaceScenes(scenes)

	c.setProgress(3, 3, MsgBreakingPanels)
	specs, err := c.service.BreakdownPanels(ctx, script)
	if err != nil {
		return nil, err
	}
	if len(specs) == 0 {
		return nil, ErrNoPanels
	}
	return domain.PanelSpecs(specs).Clone(), nil
}

// ConfirmCharacters はキャラクターのレビューを終えて SCENE_REVIEW に進みます。
// characters が nil なら Store の現在の一覧をそのまま確定するのだ。
func (c *Controller) ConfirmCharacters(characters []domain.Character) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkLocked("ConfirmCharacters", StateCharacterReview); err != nil {
		return err
	}
	if characters != nil {
		c.store.ReplaceCharacters(characters)
	}
	c.state = StateSceneReview
	c.notifyLocked()
	return nil
}

// ConfirmScenes はシーンのレビューを終え、表紙・各コマ・ページ割りの生成を最後まで実行します。
// 成功すると DISPLAY に進むのだ。
func (c *Controller) ConfirmScenes(ctx context.Context, scenes []domain.Scene) error {
	c.mu.Lock()
	if err := c.beginLocked("ConfirmScenes", StateSceneReview); err != nil {
		c.mu.Unlock()
		return err
	}
	if scenes != nil {
		c.store.ReplaceScenes(scenes)
	}
	if c.genConfig == nil || strings.TrimSpace(c.script) == "" || len(c.specs) == 0 {
		c.running = false
		c.clearLocked()
		c.state = StateSetup
		c.errMsg = MissingConfigMessage
		c.notifyLocked()
		c.mu.Unlock()
		return ErrMissingConfig
	}
	script := c.script
	cfg := *c.genConfig
	specs := c.specs.Clone()
	c.state = StateGenerating
	c.phase = PhaseRender
	c.notifyLocked()
	c.mu.Unlock()

	if err := c.render(ctx, script, cfg, specs); err != nil {
		c.fail(ctx, "render", err, renderFailureMessage(err))
		return err
	}
	return nil
}

// Save は完成した作品を保存し、作品 ID を返します。保存できるのは1回の生成につき1度だけなのだ。
// 保存に失敗しても状態は変わりません。
func (c *Controller) Save(ctx context.Context, ownerID, title string) (string, error) {
	title = strings.TrimSpace(title)

	c.mu.Lock()
	if err := c.checkLocked("Save", StateDisplay); err != nil {
		c.mu.Unlock()
		return "", err
	}
	switch {
	case c.projectID != "":
		c.mu.Unlock()
		return "", ErrAlreadySaved
	case title == "":
		c.mu.Unlock()
		return "", ErrEmptyTitle
	case ownerID == "":
		c.mu.Unlock()
		return "", ErrNoOwner
	case c.persister == nil:
		c.mu.Unlock()
		return "", ErrNoPersister
	}
	data := c.projectDataLocked(title)
	c.running = true
	c.mu.Unlock()

	id, err := c.persister.SaveProject(ctx, ownerID, data)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	if err != nil {
		c.logger.ErrorContext(ctx, "作品の保存に失敗しました", "title", title, "error", err)
		return "", fmt.Errorf("作品の保存に失敗しました: %w", err)
	}
	c.projectID = id
	c.notifyLocked()
	c.logger.InfoContext(ctx, "作品を保存しました", "project_id", id, "title", title)
	return id, nil
}

// Reset はすべてを破棄して SETUP に戻ります。工程の実行中は ErrBusy を返すのだ。
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrBusy
	}
	c.clearLocked()
	c.script = ""
	c.genConfig = nil
	c.state = StateSetup
	c.notifyLocked()
	return nil
}

func (c *Controller) projectDataLocked(title string) domain.ProjectData {
	data := domain.ProjectData{
		Title:         title,
		Script:        c.script,
		Characters:    c.store.Characters(),
		Scenes:        c.store.Scenes(),
		ComicPages:    c.pages.Clone(),
		CoverImageURL: c.cover,
	}
	if c.genConfig != nil {
		data.ArtStyle = c.genConfig.Style
		data.AspectRatio = c.genConfig.AspectRatio
	}
	return data
}

// beginLocked は状態を確認し、工程の実行中フラグを立てます。
func (c *Controller) beginLocked(op string, want State) error {
	if err := c.checkLocked(op, want); err != nil {
		return err
	}
	c.running = true
	c.errMsg = ""
	return nil
}

func (c *Controller) checkLocked(op string, want State) error {
	if c.running {
		return ErrBusy
	}
	if c.state != want {
		return &StateError{Op: op, State: c.state, Want: want}
	}
	return nil
}

// fail は SETUP に戻し、途中までの成果物を破棄します。台本と設定は再投入用に残すのだ。
func (c *Controller) fail(ctx context.Context, phase string, err error, message string) {
	c.logger.ErrorContext(ctx, "生成に失敗したため最初に戻ります", "phase", phase, "error", err)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	c.clearLocked()
	c.state = StateSetup
	c.errMsg = message
	c.notifyLocked()
}

// clearLocked は生成途中・生成済みの成果物を捨てるのだ。
func (c *Controller) clearLocked() {
	c.store.Reset()
	c.phase = PhaseNone
	c.progress = Progress{}
	c.specs = nil
	c.panels = nil
	c.pages = nil
	c.cover = ""
	c.projectID = ""
}

func (c *Controller) setProgress(step, total int, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.progress = Progress{Step: step, Total: total, Message: message}
	c.notifyLocked()
}

func (c *Controller) notifyLocked() {
	if c.observer != nil {
		c.observer(c.snapshotLocked())
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		State:         c.state,
		Phase:         c.phase,
		Progress:      c.progress,
		Error:         c.errMsg,
		Script:        c.script,
		Characters:    c.store.Characters(),
		Scenes:        c.store.Scenes(),
		PanelSpecs:    c.specs.Clone(),
		Panels:        append([]domain.Panel(nil), c.panels...),
		Pages:         c.pages.Clone(),
		CoverImageURL: c.cover,
		ProjectID:     c.projectID,
	}
	if c.genConfig != nil {
		cfg := *c.genConfig
		s.Config = &cfg
	}
	return s
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
