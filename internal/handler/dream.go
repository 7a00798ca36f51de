package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/dreams-saver/internal/apperror"
	"github.com/sakif/dreams-saver/internal/auth"
	"github.com/sakif/dreams-saver/internal/model"
	"github.com/sakif/dreams-saver/internal/repository"
	"github.com/sakif/dreams-saver/internal/service"
)

// DreamService is what DreamHandler needs from the service layer.
type DreamService interface {
	Create(ctx context.Context, ownerID string, in service.CreateDreamInput) (*model.Dream, error)
	Get(ctx context.Context, ownerID, id string) (*model.Dream, error)
	List(ctx context.Context, ownerID string, filter repository.DreamFilter) ([]model.Dream, error)
	Delete(ctx context.Context, ownerID, id string) error
	ListTags(ctx context.Context, limit, offset int) ([]model.Tag, error)
}

// InsightService is what DreamHandler needs for interpretations.
type InsightService interface {
	RequestInsight(ctx context.Context, callerID, dreamID string) (*model.Insight, error)
	Get(ctx context.Context, callerID, dreamID string) (*model.Insight, error)
}

// DreamHandler serves the dream journal and its insights.
type DreamHandler struct {
	dreams   DreamService
	insights InsightService
	logger   *slog.Logger
}

func NewDreamHandler(dreams DreamService, insights InsightService, logger *slog.Logger) *DreamHandler {
	return &DreamHandler{dreams: dreams, insights: insights, logger: logger}
}

type createDreamRequest struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	DreamDate      string   `json:"dreamDate"`
	MoodUponWaking string   `json:"moodUponWaking"`
	IsLucid        bool     `json:"isLucid"`
	Tags           []string `json:"tags"`
}

// HandleCreate handles POST /api/dreams.
func (h *DreamHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req createDreamRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	dream, err := h.dreams.Create(r.Context(), userID, service.CreateDreamInput{
		Title:       req.Title,
		Description: req.Description,
		DreamDate:   req.DreamDate,
		Mood:        model.Mood(req.MoodUponWaking),
		IsLucid:     req.IsLucid,
		Tags:        req.Tags,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"dream": dream})
}

// HandleList handles GET /api/dreams?mood=&lucid=&sort=&limit=&offset=.
func (h *DreamHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	filter, err := parseDreamFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}

	dreams, err := h.dreams.List(r.Context(), userID, filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"dreams": dreams})
}

// HandleGet handles GET /api/dreams/{id}.
func (h *DreamHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	dream, err := h.dreams.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"dream": dream})
}

// HandleDelete handles DELETE /api/dreams/{id}.
func (h *DreamHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	if err := h.dreams.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleListTags handles GET /api/tags.
func (h *DreamHandler) HandleListTags(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := intParam(r, "offset")
	if err != nil {
		writeError(w, err)
		return
	}

	tags, err := h.dreams.ListTags(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
}

// HandleRequestInsight handles POST /api/dreams/{id}/insight.
func (h *DreamHandler) HandleRequestInsight(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	insight, err := h.insights.RequestInsight(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"insight": insight})
}

// HandleGetInsight handles GET /api/dreams/{id}/insight.
func (h *DreamHandler) HandleGetInsight(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	insight, err := h.insights.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"insight": insight})
}

func parseDreamFilter(r *http.Request) (repository.DreamFilter, error) {
	q := r.URL.Query()
	filter := repository.DreamFilter{
		Mood: model.Mood(q.Get("mood")),
		Sort: q.Get("sort"),
	}

	if v := q.Get("lucid"); v != "" {
		lucid, err := strconv.ParseBool(v)
		if err != nil {
			return filter, apperror.ValidationFailed("lucid", "lucid must be true or false")
		}
		filter.Lucid = &lucid
	}

	var err error
	if filter.Limit, err = intParam(r, "limit"); err != nil {
		return filter, err
	}
	if filter.Offset, err = intParam(r, "offset"); err != nil {
		return filter, err
	}
	return filter, nil
}

// intParam reads an optional integer query parameter; absent means 0.
func intParam(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperror.ValidationFailed(name, name+" must be an integer")
	}
	return n, nil
}
