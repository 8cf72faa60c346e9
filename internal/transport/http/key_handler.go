package http

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "keyforge/internal/errors"
	"keyforge/internal/middleware"
	"keyforge/internal/services"
	api "keyforge/pkg/contracts/api/v1"
	"keyforge/pkg/contracts/domain"
)

// KeyHandler serves the key lifecycle endpoints
type KeyHandler struct {
	service   services.KeyService
	validator *middleware.Validator
	errors    *apierrors.ErrorHandler
	logger    *slog.Logger
}

// NewKeyHandler creates a new key handler
func NewKeyHandler(service services.KeyService, errorHandler *apierrors.ErrorHandler, logger *slog.Logger) *KeyHandler {
	return &KeyHandler{
		service:   service,
		validator: middleware.NewValidator(),
		errors:    errorHandler,
		logger:    logger.With(slog.String("handler", "keys")),
	}
}

// Register mounts the admin endpoints on r. Validate is mounted separately
// because client software calls it without an admin key.
func (h *KeyHandler) Register(r chi.Router) {
	r.Post("/generate", h.Generate)
	r.Post("/tempkey", h.TempKey)
	r.Delete("/deletekey", h.DeleteKey)
	r.Post("/resethwid", h.ResetHWID)
	r.Post("/revoke", h.Revoke)
	r.Post("/bind", h.Bind)
	r.Get("/keys/{key}", h.GetKey)
	r.Get("/listkeys", h.ListKeys)
	r.Get("/checktime", h.CheckTime)
	r.Delete("/cleanup", h.Cleanup)
	r.Get("/stats", h.Stats)
}

// Generate handles POST /api/generate
func (h *KeyHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req api.GenerateRequest
	if err := h.validator.DecodeJSON(r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	recs, err := h.service.Generate(r.Context(), req.Amount)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, api.GenerateResponse{
		Success: true,
		Message: fmt.Sprintf("Generated %d permanent key(s)", len(recs)),
		Keys:    keyIDs(recs),
	})
}

// TempKey handles POST /api/tempkey
func (h *KeyHandler) TempKey(w http.ResponseWriter, r *http.Request) {
	var req api.TempKeyRequest
	if err := h.validator.DecodeJSON(r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	recs, err := h.service.GenerateTemporary(r.Context(), req.Time, req.Amount)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, api.GenerateResponse{
		Success:   true,
		Message:   fmt.Sprintf("Generated %d temporary key(s) valid for %d minutes", len(recs), req.Time),
		Keys:      keyIDs(recs),
		ExpiresAt: recs[0].ExpiresAt,
	})
}

// DeleteKey handles DELETE /api/deletekey
func (h *KeyHandler) DeleteKey(w http.ResponseWriter, r *http.Request) {
	var req api.KeyRequest
	if err := h.validator.DecodeJSON(r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	if err := h.service.Delete(r.Context(), req.Key); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, api.MessageResponse{
		Success: true,
		Message: fmt.Sprintf("Key %s deleted", req.Key),
	})
}

// ResetHWID handles POST /api/resethwid
func (h *KeyHandler) ResetHWID(w http.ResponseWriter, r *http.Request) {
	var req api.KeyRequest
	if err := h.validator.DecodeJSON(r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	rec, err := h.service.ResetHWID(r.Context(), req.Key)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, api.MessageResponse{
		Success: true,
		Message: fmt.Sprintf("HWID reset for key %s", req.Key),
		Key:     &rec,
	})
}

// Revoke handles POST /api/revoke
func (h *KeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	var req api.KeyRequest
	if err := h.validator.DecodeJSON(r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	rec, err := h.service.Revoke(r.Context(), req.Key)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, api.MessageResponse{
		Success: true,
		Message: fmt.Sprintf("Key %s revoked", req.Key),
		Key:     &rec,
	})
}

// Bind handles POST /api/bind
func (h *KeyHandler) Bind(w http.ResponseWriter, r *http.Request) {
	var req api.BindRequest
	if err := h.validator.DecodeJSON(r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	res, err := h.service.Bind(r.Context(), req.Key, req.HWID)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, api.BindResponse{
		Success:    true,
		NewlyBound: res.NewlyBound,
		Key:        res.Key,
	})
}

// Validate handles POST /api/validate. Lifecycle refusals are a 200 with
// valid=false and a reason; only malformed input and faults are errors.
func (h *KeyHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req api.ValidateRequest
	if err := h.validator.DecodeJSON(r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	result, err := h.service.Validate(r.Context(), req.Key, req.HWID)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, result)
}

// GetKey handles GET /api/keys/{key}
func (h *KeyHandler) GetKey(w http.ResponseWriter, r *http.Request) {
	req := api.KeyRequest{Key: chi.URLParam(r, "key")}
	if err := h.validator.ValidateStruct(&req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	rec, err := h.service.Get(r.Context(), req.Key)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, rec)
}

// ListKeys handles GET /api/listkeys?type=
func (h *KeyHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	req := api.ListKeysRequest{Type: domain.KeyFilter(r.URL.Query().Get("type"))}
	if err := h.validator.ValidateStruct(&req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	if req.Type == "" {
		req.Type = domain.KeyFilterAll
	}

	recs, err := h.service.List(r.Context(), req.Type)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	resp := api.ListKeysResponse{
		Keys:   recs,
		Count:  len(recs),
		Filter: string(req.Type),
	}
	if len(recs) == 0 {
		resp.Keys = []domain.KeyRecord{}
		resp.Message = "No keys found"
	}
	render.JSON(w, r, resp)
}

// CheckTime handles GET /api/checktime?key=. Without a key every temporary
// key is reported.
func (h *KeyHandler) CheckTime(w http.ResponseWriter, r *http.Request) {
	req := api.CheckTimeRequest{Key: r.URL.Query().Get("key")}
	if err := h.validator.ValidateStruct(&req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	infos, err := h.service.CheckTime(r.Context(), req.Key)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	resp := api.CheckTimeResponse{Count: len(infos)}
	if req.Key != "" && len(infos) > 0 {
		resp.KeyInfo = &infos[0]
	} else {
		resp.TemporaryKeys = infos
	}
	render.JSON(w, r, resp)
}

// Cleanup handles DELETE /api/cleanup
func (h *KeyHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	removed, err := h.service.Cleanup(r.Context())
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	if removed == nil {
		removed = []string{}
	}

	render.JSON(w, r, api.CleanupResponse{
		Message:      fmt.Sprintf("Removed %d expired key(s)", len(removed)),
		RemovedCount: len(removed),
		Removed:      removed,
	})
}

// Stats handles GET /api/stats
func (h *KeyHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.Stats(r.Context())
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, st)
}

func keyIDs(recs []domain.KeyRecord) []string {
	out := make([]string, len(recs))
	for i := range recs {
		out[i] = recs[i].ID
	}
	return out
}
