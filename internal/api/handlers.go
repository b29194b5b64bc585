package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/restrict-content-pro/membership-scheduler/internal/app"
	"github.com/restrict-content-pro/membership-scheduler/internal/domain"
	"github.com/restrict-content-pro/membership-scheduler/internal/store"
)

// JobRunner runs maintenance jobs on demand.
type JobRunner interface {
	Names() []string
	Run(ctx context.Context, name string) error
}

// CountsReader reads the stored per-level member counters.
type CountsReader interface {
	GetLevelMemberCounts(ctx context.Context, levelID int64) ([]domain.LevelMemberCount, error)
}

// MemberReader looks up a single member.
type MemberReader interface {
	GetMember(ctx context.Context, memberID int64) (*domain.Member, error)
}

// Handler serves the internal operations endpoints.
type Handler struct {
	jobs    JobRunner
	counts  CountsReader
	members MemberReader
	logger  *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(jobs JobRunner, counts CountsReader, members MemberReader, logger *slog.Logger) *Handler {
	return &Handler{jobs: jobs, counts: counts, members: members, logger: logger}
}

type runJobResponse struct {
	Job        string `json:"job"`
	Status     string `json:"status"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

func (h *Handler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"jobs": h.jobs.Names()})
}

func (h *Handler) handleRunJob(w http.ResponseWriter, r *http.Request) {
	job := chi.URLParam(r, "job")
	start := time.Now()

	err := h.jobs.Run(r.Context(), job)
	resp := runJobResponse{Job: job, Status: "completed", DurationMS: time.Since(start).Milliseconds()}

	switch {
	case errors.Is(err, app.ErrUnknownJob):
		resp.Status, resp.Error = "not_found", err.Error()
		writeJSON(w, http.StatusNotFound, resp)
	case errors.Is(err, app.ErrJobLocked):
		resp.Status, resp.Error = "skipped", err.Error()
		writeJSON(w, http.StatusConflict, resp)
	case err != nil:
		h.logger.Error("manual job run failed", "job", job, "error", err)
		resp.Status, resp.Error = "failed", err.Error()
		writeJSON(w, http.StatusInternalServerError, resp)
	default:
		h.logger.Info("manual job run completed", "job", job, "duration_ms", resp.DurationMS)
		writeJSON(w, http.StatusOK, resp)
	}
}

func (h *Handler) handleGetLevelCounts(w http.ResponseWriter, r *http.Request) {
	levelID, err := strconv.ParseInt(chi.URLParam(r, "levelID"), 10, 64)
	if err != nil || levelID <= 0 {
		http.Error(w, "invalid level id", http.StatusBadRequest)
		return
	}

	counts, err := h.counts.GetLevelMemberCounts(r.Context(), levelID)
	if err != nil {
		h.logger.Error("failed to read level counts", "level_id", levelID, "error", err)
		http.Error(w, "failed to read level counts", http.StatusInternalServerError)
		return
	}

	out := make(map[domain.Status]int64, len(domain.Statuses))
	for _, s := range domain.Statuses {
		out[s] = 0
	}
	for _, c := range counts {
		out[c.Status] = c.Count
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"level_id": levelID,
		"counts":   out,
	})
}

// handleGetMember shows the fields the maintenance jobs act on, for checking
// why a member was or was not expired or reminded.
func (h *Handler) handleGetMember(w http.ResponseWriter, r *http.Request) {
	memberID, err := strconv.ParseInt(chi.URLParam(r, "memberID"), 10, 64)
	if err != nil || memberID <= 0 {
		http.Error(w, "invalid member id", http.StatusBadRequest)
		return
	}

	member, err := h.members.GetMember(r.Context(), memberID)
	if errors.Is(err, store.ErrMemberNotFound) {
		http.Error(w, "member not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to read member", "member_id", memberID, "error", err)
		http.Error(w, "failed to read member", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, member)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
