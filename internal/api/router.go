package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/hashguard/hashguard/internal/orchestrator"
	"github.com/hashguard/hashguard/internal/secret"
	"github.com/hashguard/hashguard/internal/store"
)

// Handlers carries the dependencies of the API surface. History may
// be nil, in which case the batches listing is unavailable.
type Handlers struct {
	Auth    *AuthService
	Orch    *orchestrator.Orchestrator
	History *store.Store
	Logger  *slog.Logger

	validate *validator.Validate
}

// NewRouter creates and configures the API router.
func NewRouter(h *Handlers) http.Handler {
	h.validate = validator.New()

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Recovery(h.Logger))
	r.Use(Logger(h.Logger))

	r.Get("/health", h.health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/login", h.login)

		r.Group(func(r chi.Router) {
			r.Use(JWTAuth(h.Auth))

			r.Get("/batches", h.listBatches)
			r.Post("/detect", h.startDetect)
			r.Post("/rotate", h.startRotate)
		})
	})

	return r
}

func (h *Handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", "malformed login payload")
		return
	}

	resp, err := h.Auth.Login(req.Username, req.Password)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid credentials")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) listBatches(w http.ResponseWriter, r *http.Request) {
	if h.History == nil {
		writeError(w, r, http.StatusServiceUnavailable, "NO_HISTORY", "history store not configured")
		return
	}

	batches, err := h.History.ListBatches(r.Context(), 50)
	if err != nil {
		h.Logger.Error("failed to list batches", "error", err)
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "failed to list batches")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"batches": batches})
}

type detectRequest struct {
	HostFile   string `json:"host_file"`
	Controller string `json:"controller"`
	WindowDays int    `json:"window_days" validate:"omitempty,min=1"`
	Channel    string `json:"channel"`
	Workers    int    `json:"workers" validate:"omitempty,min=1"`
}

// startDetect launches a detection batch in the background. The batch
// outcome lands in the history store; the response only acknowledges
// the start.
func (h *Handlers) startDetect(w http.ResponseWriter, r *http.Request) {
	var req detectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", "malformed detect payload")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	opts := orchestrator.DetectOptions{
		Hosts: orchestrator.HostSelection{
			ListFile:   req.HostFile,
			Controller: req.Controller,
		},
		WindowDays: req.WindowDays,
		Channel:    req.Channel,
		Workers:    req.Workers,
	}

	go func() {
		if _, err := h.Orch.Detect(context.Background(), opts); err != nil {
			h.Logger.Error("detection batch failed", "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type rotateRequest struct {
	HostFile   string `json:"host_file"`
	Controller string `json:"controller"`
	Account    string `json:"account"`
	Workers    int    `json:"workers" validate:"omitempty,min=1"`
	MinLength  int    `json:"min_length" validate:"omitempty,min=1"`
	MaxLength  int    `json:"max_length"`
	OutputDir  string `json:"output_dir"`
	Policy     string `json:"policy" validate:"omitempty,oneof=random salted"`
	Base       string `json:"base"`
	Direction  string `json:"direction" validate:"omitempty,oneof=prepend append"`
}

// startRotate launches a rotation batch in the background.
func (h *Handlers) startRotate(w http.ResponseWriter, r *http.Request) {
	var req rotateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", "malformed rotate payload")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if req.Policy == string(secret.MethodSalted) && req.Base == "" {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", "salted policy requires a base secret")
		return
	}

	opts := orchestrator.RotateOptions{
		Hosts: orchestrator.HostSelection{
			ListFile:   req.HostFile,
			Controller: req.Controller,
		},
		Account:   req.Account,
		Workers:   req.Workers,
		MinLen:    req.MinLength,
		MaxLen:    req.MaxLength,
		OutputDir: req.OutputDir,
		Policy:    secret.Method(req.Policy),
		Base:      req.Base,
		Direction: secret.Direction(req.Direction),
	}

	go func() {
		if _, err := h.Orch.Rotate(context.Background(), opts); err != nil {
			h.Logger.Error("rotation batch failed", "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
