package handler

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/learnmade/internal/apperror"
	"github.com/sakif/learnmade/internal/auth"
	"github.com/sakif/learnmade/internal/service"
)

// sniffLen is how much of the file http.DetectContentType looks at.
const sniffLen = 512

type UploadHandler struct {
	media    *service.MediaService
	maxBytes int64
	logger   *slog.Logger
}

func NewUploadHandler(media *service.MediaService, maxBytes int64, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{media: media, maxBytes: maxBytes, logger: logger}
}

type uploadResponse struct {
	Success  bool   `json:"success"`
	URL      string `json:"url"`
	PublicID string `json:"publicId"`
}

// HandleUpload stores one course asset and returns its public URL.
//
// HTTP: POST /upload (admin), multipart/form-data with a "file" field
//
// The admin check runs before the body is read so anonymous clients
// cannot make us buffer a large multipart form.
func (h *UploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())
	if err := h.media.Authorize(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, apperror.ValidationFailed("file", "File too large"))
		default:
			// Covers http.ErrMissingFile and non-multipart bodies alike.
			writeError(w, apperror.ValidationFailed("file", "No file uploaded"))
		}
		return
	}
	defer file.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		writeError(w, apperror.ValidationFailed("file", "Could not read uploaded file"))
		return
	}
	head = head[:n]

	contentType := http.DetectContentType(head)
	if contentType == "application/octet-stream" {
		if declared := header.Header.Get("Content-Type"); declared != "" {
			contentType = declared
		}
	}

	obj, err := h.media.Upload(r.Context(), p, header.Filename, contentType, io.MultiReader(bytes.NewReader(head), file))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Success:  true,
		URL:      obj.URL,
		PublicID: obj.Key,
	})
}
