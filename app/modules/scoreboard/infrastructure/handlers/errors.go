package scoreboardhandlers

import (
	"encoding/json"
	"errors"
	"net/http"

	scoreboardservice "github.com/scorecard-club/scorecard/app/modules/scoreboard/application"
)

type errorResponse struct {
	Error  string                        `json:"error"`
	Report *scoreboardservice.SaveReport `json:"report,omitempty"`
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, scoreboardservice.ErrNotEditor):
		return http.StatusForbidden
	case errors.Is(err, scoreboardservice.ErrNotComplete),
		errors.Is(err, scoreboardservice.ErrDuplicatePlayer),
		errors.Is(err, scoreboardservice.ErrRoundLimitReached),
		errors.Is(err, scoreboardservice.ErrGameCompleted):
		return http.StatusConflict
	case scoreboardservice.IsPrecondition(err):
		return http.StatusBadRequest
	case errors.Is(err, scoreboardservice.ErrGameGone):
		return http.StatusGone
	case errors.Is(err, scoreboardservice.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, scoreboardservice.ErrPartialSave),
		errors.Is(err, scoreboardservice.ErrConflict),
		errors.Is(err, scoreboardservice.ErrRefreshSuperseded),
		errors.Is(err, scoreboardservice.ErrNotLoaded):
		return http.StatusConflict
	case errors.Is(err, scoreboardservice.ErrStoreUnavailable),
		errors.Is(err, scoreboardservice.ErrRefreshTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// message hides internal failures; service sentinels are safe to show.
func message(err error, status int) string {
	if status == http.StatusInternalServerError {
		return http.StatusText(status)
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
