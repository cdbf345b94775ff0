package service

import (
	"context"
	"io"
	"log/slog"

	"github.com/sakif/learnmade/internal/apperror"
	"github.com/sakif/learnmade/internal/auth"
	"github.com/sakif/learnmade/internal/storage"
)

// Uploader is satisfied by *storage.GCSUploader.
type Uploader interface {
	Upload(ctx context.Context, filename, contentType string, body io.Reader) (*storage.Object, error)
}

// MediaService stores course assets uploaded from the admin editor.
type MediaService struct {
	uploader Uploader
	guard    *auth.Guard
	logger   *slog.Logger
}

func NewMediaService(uploader Uploader, guard *auth.Guard, logger *slog.Logger) *MediaService {
	return &MediaService{uploader: uploader, guard: guard, logger: logger}
}

// Authorize lets the handler reject non-admins before reading a large body.
func (s *MediaService) Authorize(ctx context.Context, p auth.Principal) error {
	_, err := s.guard.Authorize(ctx, p, auth.OpUploadMedia)
	return err
}

func (s *MediaService) Upload(ctx context.Context, p auth.Principal, filename, contentType string, body io.Reader) (*storage.Object, error) {
	if err := s.Authorize(ctx, p); err != nil {
		return nil, err
	}
	if body == nil {
		return nil, apperror.ValidationFailed("file", "No file uploaded")
	}

	obj, err := s.uploader.Upload(ctx, filename, contentType, body)
	if err != nil {
		s.logger.Error("media upload failed",
			slog.String("filename", filename),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Upstream("Upload", err)
	}
	return obj, nil
}
