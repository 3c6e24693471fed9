package server

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/shouni/go-comic-kit/pkg/pipeline"
	"github.com/shouni/go-comic-kit/pkg/store"
)

// run は1回分の生成フローと、その購読者をまとめたものです。
type run struct {
	id         string
	owner      string
	controller *pipeline.Controller
	hub        *hub
}

// hub は run のスナップショットを購読者に配信します。
// 受信が遅い購読者には最新のスナップショットだけが残るのだ。
type hub struct {
	mu   sync.Mutex
	next int
	subs map[int]chan pipeline.Snapshot
}

func newHub() *hub {
	return &hub{subs: make(map[int]chan pipeline.Snapshot)}
}

func (h *hub) subscribe() (<-chan pipeline.Snapshot, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	ch := make(chan pipeline.Snapshot, 1)
	h.subs[id] = ch
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, id)
	}
}

func (h *hub) publish(s pipeline.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

func (s *Server) newRun(owner string) (*run, error) {
	r := &run{id: uuid.NewString(), owner: owner, hub: newHub()}
	opts := append([]pipeline.Option{
		pipeline.WithPersister(s.repo),
		pipeline.WithLogger(s.logger.With("run_id", r.id)),
	}, s.ctrlOpts...)
	opts = append(opts, pipeline.WithObserver(func(snap pipeline.Snapshot) {
		// 生成中の run は誰も見ていなくても期限を延ばすのだ。
		s.runs.Set(r.id, r, cache.DefaultExpiration)
		r.hub.publish(snap)
	}))

	c, err := pipeline.New(s.service, opts...)
	if err != nil {
		return nil, err
	}
	r.controller = c
	s.runs.Set(r.id, r, cache.DefaultExpiration)
	return r, nil
}

type runKey struct{}

// loadRun は URL の runID から run を取り出し、所有者を確認します。
func (s *Server) loadRun(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "runID")
		v, ok := s.runs.Get(id)
		if !ok {
			writeError(w, http.StatusNotFound, store.ErrNotFound.Error())
			return
		}
		r := v.(*run)
		if r.owner != userFrom(req.Context()).ID {
			writeError(w, http.StatusNotFound, store.ErrNotFound.Error())
			return
		}
		s.runs.Set(id, r, cache.DefaultExpiration)
		next.ServeHTTP(w, req.WithContext(context.WithValue(req.Context(), runKey{}, r)))
	})
}

func runFrom(ctx context.Context) *run {
	return ctx.Value(runKey{}).(*run)
}
