package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/vncsmyrnk/servervote/internal/core/domain"
	"github.com/vncsmyrnk/servervote/internal/core/ports"
)

type TargetHandler struct {
	service ports.TargetService
	log     logrus.FieldLogger
}

func NewTargetHandler(service ports.TargetService, log logrus.FieldLogger) *TargetHandler {
	return &TargetHandler{
		service: service,
		log:     log,
	}
}

type votifierRequest struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	PublicKey string `json:"public_key"`
}

type createTargetRequest struct {
	Name     string           `json:"name"`
	Address  string           `json:"address"`
	Port     int              `json:"port"`
	Votifier *votifierRequest `json:"votifier"`
}

type targetResponse struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Address         string    `json:"address"`
	Port            int       `json:"port"`
	VoteCount       int64     `json:"vote_count"`
	VotifierEnabled bool      `json:"votifier_enabled"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toTargetResponse(t *domain.Target) targetResponse {
	return targetResponse{
		ID:              t.ID,
		Name:            t.Name,
		Address:         t.Address,
		Port:            t.Port,
		VoteCount:       t.VoteCount,
		VotifierEnabled: t.AcceptsNotifications(),
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

func (h *TargetHandler) CreateTarget(w http.ResponseWriter, r *http.Request) {
	var req createTargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	input := ports.CreateTargetInput{
		Name:    req.Name,
		Address: req.Address,
		Port:    req.Port,
	}
	if req.Votifier != nil {
		input.Notification = &domain.NotificationEndpoint{
			Host:      req.Votifier.Host,
			Port:      req.Votifier.Port,
			PublicKey: req.Votifier.PublicKey,
		}
	}

	target, err := h.service.Submit(r.Context(), input)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTargetResponse(target))
}

func (h *TargetHandler) ListTargets(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil || p < 1 {
			writeError(w, http.StatusBadRequest, "invalid page")
			return
		}
		page = p
	}

	targets, err := h.service.ListTargets(r.Context(), ports.ListTargetsInput{Page: page})
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	resp := make([]targetResponse, 0, len(targets))
	for _, t := range targets {
		resp = append(resp, toTargetResponse(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *TargetHandler) GetTarget(w http.ResponseWriter, r *http.Request) {
	target, err := h.service.GetTarget(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, toTargetResponse(target))
}
