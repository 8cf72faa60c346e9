package http

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"keyforge/internal/exporter"
	apierrors "keyforge/internal/errors"
	"keyforge/internal/middleware"
	"keyforge/internal/services"
	api "keyforge/pkg/contracts/api/v1"
	"keyforge/pkg/contracts/domain"
)

// ExportHandler serves key exports as file downloads
type ExportHandler struct {
	service   services.KeyService
	validator *middleware.Validator
	errors    *apierrors.ErrorHandler
	logger    *slog.Logger
	now       func() time.Time
}

// NewExportHandler creates a new export handler
func NewExportHandler(service services.KeyService, errorHandler *apierrors.ErrorHandler, logger *slog.Logger) *ExportHandler {
	return &ExportHandler{
		service:   service,
		validator: middleware.NewValidator(),
		errors:    errorHandler,
		logger:    logger.With(slog.String("handler", "export")),
		now:       time.Now,
	}
}

// Export handles GET /api/export?format=csv|xlsx&type=
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := api.ExportRequest{Format: q.Get("format"), Type: domain.KeyFilter(q.Get("type"))}
	if err := h.validator.ValidateStruct(&req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	format, err := exporter.ParseFormat(req.Format)
	if err != nil {
		h.errors.HandleError(w, r, apierrors.ErrValidation("format", err.Error()))
		return
	}

	ctx := r.Context()
	recs, err := h.service.List(ctx, req.Type)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	stats, err := h.service.Stats(ctx)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	// render fully before writing headers so a failure still yields a problem document
	var buf bytes.Buffer
	if err := exporter.Write(&buf, format, recs, &stats); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "keys exported",
		slog.String("format", string(format)),
		slog.Int("count", len(recs)))

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.FileName(h.now())))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
