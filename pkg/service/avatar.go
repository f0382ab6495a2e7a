package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"

	"github.com/jowharshamshiri/GoContacts/pkg/contacts"
	"github.com/jowharshamshiri/GoContacts/pkg/provider"
)

// ThumbnailSize bounds both sides of a low resolution photo.
const ThumbnailSize = 96

// GetAvatar returns the contact's photo as PNG, or nil when it has none.
func (s *Service) GetAvatar(ctx context.Context, c *contacts.Contact, highRes bool) ([]byte, error) {
	id, ok := c.ID()
	if !ok {
		return nil, ErrInvalidIdentifier
	}
	return s.loadAvatar(ctx, id, highRes), nil
}

// loadAvatar reads and re-encodes a photo. Absence and failures yield nil.
func (s *Service) loadAvatar(ctx context.Context, contactID int64, highRes bool) []byte {
	blob, err := s.provider.OpenPhoto(ctx, contactID)
	if err != nil {
		if !errors.Is(err, provider.ErrNotFound) {
			s.logger.Error("failed to open contact photo", zap.Int64("contact", contactID), zap.Error(err))
		}
		return nil
	}
	if ctx.Err() != nil {
		return nil
	}

	png, err := EncodePhoto(blob, highRes)
	if err != nil {
		s.logger.Error("failed to convert contact photo", zap.Int64("contact", contactID), zap.Error(err))
		return nil
	}
	return png
}

// EncodePhoto decodes a stored photo and re-encodes it as PNG. Without
// highRes the image is fitted into a ThumbnailSize square.
func EncodePhoto(blob []byte, highRes bool) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	if !highRes {
		img = imaging.Fit(img, ThumbnailSize, ThumbnailSize, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
