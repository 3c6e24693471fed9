package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/gemini"
	"github.com/shouni/go-comic-kit/pkg/pipeline"
	"github.com/shouni/go-comic-kit/pkg/review"
	"github.com/shouni/go-comic-kit/pkg/store"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// readJSON はリクエストボディを v に読み込みます。空のボディは何もしないのだ。
func readJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// statusFor はドメインのエラーを HTTP ステータスに対応付けます。
func statusFor(err error) int {
	var stateErr *pipeline.StateError
	var enhanceErr *review.EnhanceError
	switch {
	case errors.As(err, &stateErr),
		errors.Is(err, pipeline.ErrBusy),
		errors.Is(err, pipeline.ErrAlreadySaved),
		errors.Is(err, store.ErrNameTaken),
		errors.Is(err, review.ErrStale):
		return http.StatusConflict
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, review.ErrIndexOutOfRange),
		errors.Is(err, pipeline.ErrEmptyScript),
		errors.Is(err, pipeline.ErrEmptyTitle),
		errors.Is(err, domain.ErrUnknownArtStyle),
		errors.Is(err, domain.ErrInvalidAspectRatio),
		errors.Is(err, domain.ErrIncompleteGenConfig):
		return http.StatusBadRequest
	case errors.As(err, &enhanceErr),
		errors.Is(err, gemini.ErrChatUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func fail(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}
