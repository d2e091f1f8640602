// Package uploads stores post images as database blobs keyed by generated
// ids, standing in for the managed file storage the UI uploads into.
package uploads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/InkwellLabs/inkwell/backend/internal/ids"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultMaxImageBytes = 5 << 20

var (
	// ErrUnsupportedImageType indicates a content type outside the accepted image formats.
	ErrUnsupportedImageType = errors.New("uploads: unsupported image type")
	// ErrImageTooLarge indicates a payload above the configured size cap.
	ErrImageTooLarge = errors.New("uploads: image too large")
	// ErrEmptyImage indicates a zero-byte payload.
	ErrEmptyImage = errors.New("uploads: empty image")
	// ErrImageNotFound indicates a lookup for an unknown image id.
	ErrImageNotFound = errors.New("uploads: image not found")

	errMissingDatabase   = errors.New("uploads: database handle is required")
	errMissingIDProvider = errors.New("uploads: id provider is required")
)

var allowedContentTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/gif":  {},
	"image/webp": {},
}

// Image is a stored upload. Data is the raw image payload.
type Image struct {
	ID               string `gorm:"column:id;primaryKey;size:190;not null"`
	OwnerID          string `gorm:"column:owner_id;size:190;not null;index"`
	ContentType      string `gorm:"column:content_type;size:64;not null"`
	SizeBytes        int64  `gorm:"column:size_bytes;not null"`
	Data             []byte `gorm:"column:data;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Image) TableName() string {
	return "images"
}

// ServiceConfig describes the dependencies of the image store.
type ServiceConfig struct {
	Database      *gorm.DB
	IDProvider    ids.Provider
	MaxImageBytes int64
	Clock         func() time.Time
	Logger        *zap.Logger
}

// Service stores and serves uploaded images.
type Service struct {
	db       *gorm.DB
	ids      ids.Provider
	maxBytes int64
	clock    func() time.Time
	logger   *zap.Logger
}

// NewService constructs the image store.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	maxBytes := cfg.MaxImageBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxImageBytes
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:       cfg.Database,
		ids:      cfg.IDProvider,
		maxBytes: maxBytes,
		clock:    clock,
		logger:   logger,
	}, nil
}

// Store persists an uploaded image and returns its record.
func (s *Service) Store(ctx context.Context, ownerID, contentType string, data []byte) (Image, error) {
	if _, ok := allowedContentTypes[contentType]; !ok {
		return Image{}, fmt.Errorf("%w: %s", ErrUnsupportedImageType, contentType)
	}
	if len(data) == 0 {
		return Image{}, ErrEmptyImage
	}
	if int64(len(data)) > s.maxBytes {
		return Image{}, fmt.Errorf("%w: %d bytes over the %d cap", ErrImageTooLarge, len(data), s.maxBytes)
	}

	imageID, err := s.ids.NewID()
	if err != nil {
		return Image{}, fmt.Errorf("uploads: id generation: %w", err)
	}

	image := Image{
		ID:               imageID,
		OwnerID:          ownerID,
		ContentType:      contentType,
		SizeBytes:        int64(len(data)),
		Data:             data,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&image).Error; err != nil {
		s.logger.Error("image insert failed", zap.Error(err))
		return Image{}, fmt.Errorf("uploads: insert: %w", err)
	}
	s.logger.Info("image stored",
		zap.String("image_id", imageID),
		zap.Int64("size_bytes", image.SizeBytes))
	return image, nil
}

// Load returns the stored image with its payload.
func (s *Service) Load(ctx context.Context, imageID string) (Image, error) {
	var image Image
	err := s.db.WithContext(ctx).Where("id = ?", imageID).Take(&image).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Image{}, ErrImageNotFound
	}
	if err != nil {
		return Image{}, fmt.Errorf("uploads: lookup: %w", err)
	}
	return image, nil
}
