package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/FYCodeLab/safeseal/internal/domain"
	"github.com/FYCodeLab/safeseal/internal/middleware"
	"github.com/FYCodeLab/safeseal/internal/usecases"
)

const (
	defaultPage    = 1
	defaultPerPage = 20
	maxPerPage     = 100

	// multipart parse buffer; larger uploads spill to disk
	multipartMemoryLimit = 16 << 20
)

// SealHandler handles HTTP requests for sealing documents and inspecting
// job history.
type SealHandler struct {
	usecase *usecases.SealUsecase
	logger  *zap.Logger
}

// NewSealHandler creates a new seal handler
func NewSealHandler(usecase *usecases.SealUsecase, logger *zap.Logger) *SealHandler {
	return &SealHandler{
		usecase: usecase,
		logger:  logger,
	}
}

// SealDocument handles POST /seal. Expects a multipart form with a "file"
// part and an "owner" field; responds with the sealed PDF as an attachment.
func (h *SealHandler) SealDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		h.logger.Warn("failed to parse multipart form",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		h.respondError(w, http.StatusBadRequest, "invalid multipart request body", requestID)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "file part is required", requestID)
		return
	}
	defer file.Close()

	owner := r.FormValue("owner")

	data, err := io.ReadAll(file)
	if err != nil {
		h.logger.Error("failed to read upload",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		h.respondError(w, http.StatusBadRequest, "failed to read uploaded file", requestID)
		return
	}

	doc := &domain.SourceDocument{
		Filename: header.Filename,
		Format:   domain.FormatFromFilename(header.Filename),
		Data:     data,
	}

	sealed, err := h.usecase.Seal(ctx, doc, owner)
	if err != nil {
		h.logger.Error("seal failed",
			zap.String("request_id", requestID),
			zap.String("filename", doc.Filename),
			zap.Error(err),
		)
		status, message := sealErrorStatus(err)
		h.respondError(w, status, message, requestID)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", sealed.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(sealed.Data)))
	w.Header().Set("X-Request-ID", requestID)
	w.Header().Set("X-Page-Count", strconv.Itoa(sealed.PageCount))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(sealed.Data); err != nil {
		h.logger.Warn("failed to write sealed PDF response",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
	}
}

// sealErrorStatus maps the pipeline error taxonomy onto HTTP status codes.
// Bad caller input is 400; documents the engine or parser rejected are 422;
// everything else is an internal failure.
func sealErrorStatus(err error) (int, string) {
	var convErr *domain.ConversionError
	var malformedErr *domain.MalformedDocumentError

	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &convErr):
		return http.StatusUnprocessableEntity, convErr.Error()
	case errors.As(err, &malformedErr):
		return http.StatusUnprocessableEntity, malformedErr.Error()
	case errors.Is(err, domain.ErrEmptyDocument):
		return http.StatusUnprocessableEntity, err.Error()
	default:
		return http.StatusInternalServerError, "sealing failed"
	}
}

// GetJob handles GET /jobs/{id}
func (h *SealHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	id := chi.URLParam(r, "id")
	if id == "" {
		h.respondError(w, http.StatusBadRequest, "id parameter is required", requestID)
		return
	}

	job, err := h.usecase.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			h.respondError(w, http.StatusNotFound, "job not found", requestID)
			return
		}
		h.logger.Error("failed to get job",
			zap.String("request_id", requestID),
			zap.String("id", id),
			zap.Error(err),
		)
		h.respondError(w, http.StatusInternalServerError, "failed to get job", requestID)
		return
	}

	h.respondJSON(w, http.StatusOK, job, requestID)
}

// ListJobs handles GET /jobs with pagination
func (h *SealHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	page, perPage, err := h.parsePaginationParams(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), requestID)
		return
	}

	offset := (page - 1) * perPage

	params := domain.PaginationParams{
		Limit:  perPage,
		Offset: offset,
	}

	result, err := h.usecase.ListJobs(ctx, params)
	if err != nil {
		h.logger.Error("failed to list jobs",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		h.respondError(w, http.StatusInternalServerError, "failed to list jobs", requestID)
		return
	}

	response := map[string]interface{}{
		"data": result.Items,
		"pagination": map[string]interface{}{
			"page":        page,
			"per_page":    perPage,
			"total":       result.Total,
			"total_pages": (result.Total + perPage - 1) / perPage,
			"has_more":    result.HasMore,
		},
	}

	h.respondJSON(w, http.StatusOK, response, requestID)
}

// parsePaginationParams parses and validates pagination parameters
func (h *SealHandler) parsePaginationParams(r *http.Request) (page, perPage int, err error) {
	pageStr := r.URL.Query().Get("page")
	if pageStr == "" {
		page = defaultPage
	} else {
		page, err = strconv.Atoi(pageStr)
		if err != nil || page < 1 {
			return 0, 0, fmt.Errorf("invalid page parameter: must be a positive integer")
		}
	}

	perPageStr := r.URL.Query().Get("per_page")
	if perPageStr == "" {
		perPage = defaultPerPage
	} else {
		perPage, err = strconv.Atoi(perPageStr)
		if err != nil || perPage < 1 {
			return 0, 0, fmt.Errorf("invalid per_page parameter: must be a positive integer")
		}
		if perPage > maxPerPage {
			perPage = maxPerPage
		}
	}

	return page, perPage, nil
}

// respondJSON sends a JSON response
func (h *SealHandler) respondJSON(w http.ResponseWriter, status int, data interface{}, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
	}
}

// respondError sends an error response
func (h *SealHandler) respondError(w http.ResponseWriter, status int, message, requestID string) {
	h.respondJSON(w, status, map[string]string{
		"error":      message,
		"request_id": requestID,
	}, requestID)
}
