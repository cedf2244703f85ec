// Package evidence stores the images captured around gate decisions.
package evidence

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"gate-access-backend/config"
)

// ErrInvalidImage is returned when an image payload cannot be decoded.
var ErrInvalidImage = errors.New("invalid image payload")

// Store writes an image and returns the key it can be found under.
type Store interface {
	Save(ctx context.Context, kind string, data []byte) (string, error)
}

// New builds the store selected by cfg.Driver.
func New(cfg config.EvidenceConfig) (Store, error) {
	switch cfg.Driver {
	case "", "none":
		return Nop{}, nil
	case "local":
		return NewLocalStore(cfg.Dir)
	case "s3":
		return NewS3Store(cfg)
	default:
		return nil, fmt.Errorf("unknown evidence driver %q", cfg.Driver)
	}
}

// Nop discards every image.
type Nop struct{}

// Save implements Store.
func (Nop) Save(context.Context, string, []byte) (string, error) { return "", nil }

// objectKey lays images out by capture day: 2025/03/14/plate_<uuid>.jpg.
func objectKey(kind string, data []byte, at time.Time) string {
	ext := ".bin"
	switch http.DetectContentType(data) {
	case "image/jpeg":
		ext = ".jpg"
	case "image/png":
		ext = ".png"
	case "image/webp":
		ext = ".webp"
	}
	return fmt.Sprintf("%s/%s_%s%s", at.Format("2006/01/02"), kind, uuid.NewString(), ext)
}

// DecodeImage accepts raw base64 or a data URL ("data:image/jpeg;base64,...").
// An empty string decodes to nil.
func DecodeImage(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "data:") {
		idx := strings.Index(s, ",")
		if idx < 0 || !strings.Contains(s[:idx], ";base64") {
			return nil, ErrInvalidImage
		}
		s = s[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return data, nil
}
