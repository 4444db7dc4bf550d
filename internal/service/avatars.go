package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/gophaccount-server/internal/logger"
	"github.com/dtroode/gophaccount-server/internal/model"
)

const (
	avatarKeyPrefix = "avatars/"
	avatarRefPrefix = "/avatars/"
	sniffLen        = 512
)

// avatarTypes lists the raster formats accepted as avatars by their sniffed
// media type, with the extension they are stored under.
var avatarTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

var _ model.AvatarStore = (*Avatars)(nil)

// Avatars stores profile pictures in a blob store.
type Avatars struct {
	storage  model.Storage
	maxBytes int64
	logger   *logger.Logger
	now      func() time.Time
}

func NewAvatars(storage model.Storage, maxBytes int64, logger *logger.Logger) *Avatars {
	return &Avatars{
		storage:  storage,
		maxBytes: maxBytes,
		logger:   logger,
		now:      time.Now,
	}
}

// Put validates and stores the upload and returns its reference path.
func (a *Avatars) Put(ctx context.Context, upload model.Upload) (string, error) {
	if upload.Reader == nil || upload.Size <= 0 {
		return "", model.NewValidationError(model.ErrInvalidAvatar, "avatar")
	}
	if a.maxBytes > 0 && upload.Size > a.maxBytes {
		return "", model.NewValidationError(fmt.Errorf("%w: larger than %d bytes", model.ErrInvalidAvatar, a.maxBytes), "avatar")
	}

	declared, _, err := mime.ParseMediaType(upload.ContentType)
	if err != nil || !strings.HasPrefix(declared, "image/") {
		return "", model.NewValidationError(fmt.Errorf("%w: unsupported content type %q", model.ErrInvalidAvatar, upload.ContentType), "avatar")
	}

	head := make([]byte, min(sniffLen, upload.Size))
	if _, err := io.ReadFull(upload.Reader, head); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return "", model.NewValidationError(fmt.Errorf("%w: shorter than declared size", model.ErrInvalidAvatar), "avatar")
		}
		return "", fmt.Errorf("failed to read avatar: %w", err)
	}

	contentType := http.DetectContentType(head)
	ext, ok := avatarTypes[contentType]
	if !ok {
		return "", model.NewValidationError(fmt.Errorf("%w: content is %q", model.ErrInvalidAvatar, contentType), "avatar")
	}

	name := fmt.Sprintf("%d-%s%s", a.now().UnixMilli(), uuid.NewString(), ext)
	key := avatarKeyPrefix + name

	reader := io.MultiReader(bytes.NewReader(head), io.LimitReader(upload.Reader, upload.Size-int64(len(head))))
	if err := a.storage.Upload(ctx, key, reader, upload.Size, contentType); err != nil {
		a.logger.Error("Avatars service: failed to upload avatar",
			"key", key,
			"error", err.Error())
		return "", fmt.Errorf("failed to upload avatar: %w", err)
	}

	a.logger.Debug("Avatars service: avatar stored",
		"key", key,
		"size", upload.Size)

	return avatarRefPrefix + name, nil
}

// Open streams the avatar stored under name.
func (a *Avatars) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if name == "" || name != path.Base(name) || strings.HasPrefix(name, ".") {
		return nil, model.ErrNotFound
	}

	key := avatarKeyPrefix + name
	exists, err := a.storage.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to stat avatar: %w", err)
	}
	if !exists {
		return nil, model.ErrNotFound
	}

	rc, err := a.storage.Download(ctx, key)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("failed to download avatar: %w", err)
	}

	return rc, nil
}

// Remove deletes the avatar behind a reference path. Unknown references are ignored.
func (a *Avatars) Remove(ctx context.Context, ref string) error {
	name, ok := strings.CutPrefix(ref, avatarRefPrefix)
	if !ok || name == "" || name != path.Base(name) {
		return nil
	}

	if err := a.storage.Delete(ctx, avatarKeyPrefix+name); err != nil {
		return fmt.Errorf("failed to delete avatar: %w", err)
	}
	return nil
}

// ContentType returns the media type an avatar is served with. Names outside
// the accepted formats are served as opaque bytes.
func (a *Avatars) ContentType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	for contentType, known := range avatarTypes {
		if ext == known {
			return contentType
		}
	}
	return "application/octet-stream"
}
