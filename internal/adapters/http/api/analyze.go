package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/okian/aquascan/internal/adapters/imageprep"
	"github.com/okian/aquascan/internal/adapters/inference"
)

// multipartOverhead is allowed on top of the image cap for boundaries and headers.
const multipartOverhead = 64 << 10

// AnalyzeHandler handles image uploads.
type AnalyzeHandler struct {
	deps     Dependencies
	maxBytes int64
}

// NewAnalyzeHandler creates a new analyze handler.
func NewAnalyzeHandler(deps Dependencies, maxBytes int64) *AnalyzeHandler {
	return &AnalyzeHandler{deps: deps, maxBytes: maxBytes}
}

// HandleAnalyze handles POST /api/v1/analyze requests with a multipart
// "image" field.
func (h *AnalyzeHandler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	const op = "api.analyze"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxBytes + multipartOverhead); err != nil {
		if isBodyTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", NewKind(op, ErrPayloadTooLarge))
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, hdr, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrMissingImage, err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	a, err := h.deps.Analyze(r.Context(), hdr.Filename, data)
	if err != nil {
		writeAnalyzeError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func isBodyTooLarge(err error) bool {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		return true
	}
	// multipart does not always wrap the reader error
	return strings.Contains(err.Error(), "request body too large")
}

func writeAnalyzeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, imageprep.ErrImageTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", err)
	case errors.Is(err, imageprep.ErrEmptyImage), errors.Is(err, imageprep.ErrUnsupportedFormat):
		writeError(w, http.StatusBadRequest, "invalid_image", err)
	case errors.Is(err, inference.ErrNotConnected):
		writeError(w, http.StatusServiceUnavailable, "not_connected", err)
	case errors.Is(err, inference.ErrParse):
		raw, _ := inference.RawResponse(err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Code: "parse_failed", Message: err.Error(), Raw: raw})
	case errors.Is(err, inference.ErrTransport):
		writeError(w, http.StatusBadGateway, "inference_failed", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	}
}
