package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
)

const MaxImageSize = 5 << 20 // 5 MiB

var (
	ErrUnsupportedContentType = errors.New("unsupported content type")
	ErrFileTooLarge           = errors.New("file is too large")
	ErrEmptyFile              = errors.New("file is empty")
)

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

type UploadResult struct {
	Key      string
	Location string
	ETag     string
}

type FileUploader interface {
	Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*UploadResult, error)

	Delete(ctx context.Context, key string) error

	GetPublicURL(key string) string
}

// ValidateImage checks an upload against the accepted image types and size limit.
func ValidateImage(contentType string, size int64) error {
	if _, ok := imageExtensions[contentType]; !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedContentType, contentType)
	}
	if size <= 0 {
		return ErrEmptyFile
	}
	if size > MaxImageSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, size, MaxImageSize)
	}
	return nil
}

// NewObjectKey builds a unique key such as "games/12/3f9a...c1.png".
func NewObjectKey(prefix string, ownerID int64, contentType string) (string, error) {
	ext, ok := imageExtensions[contentType]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedContentType, contentType)
	}
	random := make([]byte, 16)
	if _, err := rand.Read(random); err != nil {
		return "", fmt.Errorf("failed to generate object key: %w", err)
	}
	return path.Join(prefix, fmt.Sprintf("%d", ownerID), hex.EncodeToString(random)+ext), nil
}
