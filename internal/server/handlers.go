package server

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/export"
	"github.com/shouni/go-comic-kit/pkg/identity"
	"github.com/shouni/go-comic-kit/pkg/pipeline"
	"github.com/shouni/go-comic-kit/pkg/store"
)

type signInRequest struct {
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
}

type signInResponse struct {
	User  domain.User `json:"user"`
	Token string      `json:"token"`
}

// handleSignIn は未登録の表示名を新しい利用者として登録します。
// 登録済みの名前は、その利用者の有効なトークンを添えたときだけトークンを更新できるのだ。
func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		user, err := s.identity.Verify(strings.TrimSpace(bearer))
		if err != nil {
			writeError(w, http.StatusUnauthorized, identity.ErrInvalidToken.Error())
			return
		}
		s.issueSession(w, user)
		return
	}

	var req signInRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		writeError(w, http.StatusBadRequest, "displayName is required")
		return
	}

	user, err := s.identity.Register(r.Context(), name, req.AvatarURL)
	if err != nil {
		fail(w, err)
		return
	}
	s.logger.InfoContext(r.Context(), "利用者を登録しました", "user_id", user.ID)
	s.issueSession(w, user)
}

func (s *Server) issueSession(w http.ResponseWriter, user domain.User) {
	token, err := s.identity.Issue(user)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, signInResponse{User: user, Token: token})
}

func (s *Server) handleStyles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, domain.ArtStyles())
}

type createRunRequest struct {
	Script      string `json:"script"`
	ArtStyle    string `json:"artStyle"`
	AspectRatio string `json:"aspectRatio"`
}

type runResponse struct {
	RunID    string            `json:"runId"`
	Snapshot pipeline.Snapshot `json:"snapshot"`
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg, err := domain.NewGenerationConfig(req.ArtStyle, req.AspectRatio)
	if err != nil {
		fail(w, err)
		return
	}
	if strings.TrimSpace(req.Script) == "" {
		fail(w, pipeline.ErrEmptyScript)
		return
	}

	run, err := s.newRun(userFrom(r.Context()).ID)
	if err != nil {
		fail(w, err)
		return
	}
	s.async(run, "submit", func(ctx context.Context) error {
		return run.controller.Submit(ctx, req.Script, cfg)
	})
	writeJSON(w, http.StatusAccepted, runResponse{RunID: run.id, Snapshot: run.controller.Snapshot()})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run := runFrom(r.Context())
	writeJSON(w, http.StatusOK, runResponse{RunID: run.id, Snapshot: run.controller.Snapshot()})
}

type descriptionRequest struct {
	Description string `json:"description"`
}

func (s *Server) handleUpdateCharacter(w http.ResponseWriter, r *http.Request) {
	s.updateEntry(w, r, pipeline.StateCharacterReview, func(run *run, i int, desc string) error {
		return run.controller.Review().UpdateCharacter(i, desc)
	})
}

func (s *Server) handleUpdateScene(w http.ResponseWriter, r *http.Request) {
	s.updateEntry(w, r, pipeline.StateSceneReview, func(run *run, i int, desc string) error {
		return run.controller.Review().UpdateScene(i, desc)
	})
}

func (s *Server) updateEntry(w http.ResponseWriter, r *http.Request, want pipeline.State, update func(*run, int, string) error) {
	run := runFrom(r.Context())
	i, ok := indexParam(w, r)
	if !ok {
		return
	}
	var req descriptionRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := requireState(run, "update", want); err != nil {
		fail(w, err)
		return
	}
	if err := update(run, i, req.Description); err != nil {
		fail(w, err)
		return
	}
	run.controller.Notify()
	writeJSON(w, http.StatusOK, runResponse{RunID: run.id, Snapshot: run.controller.Snapshot()})
}

type enhanceResponse struct {
	Description string `json:"description"`
}

func (s *Server) handleEnhanceCharacter(w http.ResponseWriter, r *http.Request) {
	s.enhanceEntry(w, r, pipeline.StateCharacterReview, func(ctx context.Context, run *run, i int) (string, error) {
		return run.controller.Review().EnhanceCharacter(ctx, i, s.service)
	})
}

func (s *Server) handleEnhanceScene(w http.ResponseWriter, r *http.Request) {
	s.enhanceEntry(w, r, pipeline.StateSceneReview, func(ctx context.Context, run *run, i int) (string, error) {
		return run.controller.Review().EnhanceScene(ctx, i, s.service)
	})
}

func (s *Server) enhanceEntry(w http.ResponseWriter, r *http.Request, want pipeline.State, enhance func(context.Context, *run, int) (string, error)) {
	run := runFrom(r.Context())
	i, ok := indexParam(w, r)
	if !ok {
		return
	}
	if err := requireState(run, "enhance", want); err != nil {
		fail(w, err)
		return
	}
	text, err := enhance(r.Context(), run, i)
	if err != nil {
		fail(w, err)
		return
	}
	run.controller.Notify()
	writeJSON(w, http.StatusOK, enhanceResponse{Description: text})
}

type confirmCharactersRequest struct {
	Characters []domain.Character `json:"characters"`
}

func (s *Server) handleConfirmCharacters(w http.ResponseWriter, r *http.Request) {
	run := runFrom(r.Context())
	var req confirmCharactersRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := run.controller.ConfirmCharacters(req.Characters); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runResponse{RunID: run.id, Snapshot: run.controller.Snapshot()})
}

type confirmScenesRequest struct {
	Scenes []domain.Scene `json:"scenes"`
}

func (s *Server) handleConfirmScenes(w http.ResponseWriter, r *http.Request) {
	run := runFrom(r.Context())
	var req confirmScenesRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := requireState(run, "ConfirmScenes", pipeline.StateSceneReview); err != nil {
		fail(w, err)
		return
	}
	s.async(run, "render", func(ctx context.Context) error {
		return run.controller.ConfirmScenes(ctx, req.Scenes)
	})
	writeJSON(w, http.StatusAccepted, runResponse{RunID: run.id, Snapshot: run.controller.Snapshot()})
}

type saveRequest struct {
	Title string `json:"title"`
}

type saveResponse struct {
	ProjectID string `json:"projectId"`
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	run := runFrom(r.Context())
	var req saveRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := run.controller.Save(r.Context(), userFrom(r.Context()).ID, req.Title)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, saveResponse{ProjectID: id})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	run := runFrom(r.Context())
	if err := run.controller.Reset(); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runResponse{RunID: run.id, Snapshot: run.controller.Snapshot()})
}

func (s *Server) handlePDF(w http.ResponseWriter, r *http.Request) {
	run := runFrom(r.Context())
	snap := run.controller.Snapshot()
	if snap.State != pipeline.StateDisplay {
		fail(w, &pipeline.StateError{Op: "pdf", State: snap.State, Want: pipeline.StateDisplay})
		return
	}

	var buf bytes.Buffer
	if err := export.PDF(r.Context(), &buf, snap.CoverImageURL, snap.Pages); err != nil {
		fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="comic-book.pdf"`)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.repo.ListProjects(r.Context(), userFrom(r.Context()).ID)
	if err != nil {
		fail(w, err)
		return
	}
	if projects == nil {
		projects = []domain.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "projectID")
	p, err := s.repo.GetProject(r.Context(), id)
	if err != nil {
		fail(w, err)
		return
	}
	if p.UserID != userFrom(r.Context()).ID {
		fail(w, fmt.Errorf("%w: %s", store.ErrNotFound, id))
		return
	}
	if err := s.repo.DeleteProject(r.Context(), id); err != nil {
		fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.chat == nil {
		writeError(w, http.StatusServiceUnavailable, "chat is not configured")
		return
	}
	var req chatRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	reply, err := s.chat.Send(r.Context(), req.Message)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Reply: reply})
}

// async は工程をリクエストとは切り離して実行します。結果はスナップショットで観測するのだ。
func (s *Server) async(run *run, what string, fn func(context.Context) error) {
	go func() {
		if err := fn(s.baseCtx); err != nil {
			s.logger.Warn("run の工程が失敗しました", "run_id", run.id, "step", what, "error", err)
		}
	}()
}

func requireState(run *run, op string, want pipeline.State) error {
	snap := run.controller.Snapshot()
	if snap.State != want {
		return &pipeline.StateError{Op: op, State: snap.State, Want: want}
	}
	return nil
}

func indexParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "index must be an integer")
		return 0, false
	}
	return i, true
}
