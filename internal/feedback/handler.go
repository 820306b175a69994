package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cordoba-data/program-dashboard/internal/history"
	"github.com/cordoba-data/program-dashboard/internal/middleware"
)

const (
	maxBodyBytes = 64 << 10 // 64 KiB
	maxTextRunes = 4000
)

// Sender delivers a comment.
type Sender interface {
	Send(ctx context.Context, cm Comment) error
}

// Recorder stores submissions. *history.Store satisfies it.
type Recorder interface {
	RecordFeedback(ctx context.Context, fb *history.Feedback) error
}

// Handler accepts comments from the dashboard.
type Handler struct {
	sender   Sender
	recorder Recorder
	limiter  *rate.Limiter
	log      *zap.Logger
	now      func() time.Time
}

// NewHandler creates the inbound handler. recorder may be nil.
func NewHandler(sender Sender, recorder Recorder, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		sender:   sender,
		recorder: recorder,
		limiter:  rate.NewLimiter(rate.Every(time.Second), 5),
		log:      log.Named("feedback"),
		now:      time.Now,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	var cm Comment
	if err := json.NewDecoder(r.Body).Decode(&cm); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	cm.Text = strings.TrimSpace(cm.Text)
	cm.Program = strings.TrimSpace(cm.Program)
	cm.Page = strings.TrimSpace(cm.Page)
	if cm.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if len([]rune(cm.Text)) > maxTextRunes {
		writeError(w, http.StatusBadRequest, "text is too long")
		return
	}

	if !h.limiter.Allow() {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "too many comments, try again shortly")
		return
	}

	err := h.sender.Send(r.Context(), cm)
	if errors.Is(err, ErrDisabled) {
		writeError(w, http.StatusServiceUnavailable, "feedback is disabled")
		return
	}
	if err != nil {
		h.log.Warn("feedback delivery failed", zap.String("program", cm.Program), zap.Error(err))
	}

	if h.recorder != nil {
		sessionID, _ := middleware.SessionIDFromContext(r.Context())
		fb := &history.Feedback{
			SessionID: sessionID,
			Program:   cm.Program,
			Page:      cm.Page,
			Text:      cm.Text,
			Delivered: err == nil,
			CreatedAt: h.now(),
		}
		if rerr := h.recorder.RecordFeedback(r.Context(), fb); rerr != nil {
			h.log.Warn("record feedback", zap.Error(rerr))
		}
	}

	if err != nil {
		writeError(w, http.StatusBadGateway, "feedback could not be delivered")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
