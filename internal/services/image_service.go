package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ahmetcoskunkizilkaya/taskboard/internal/config"
	"github.com/ahmetcoskunkizilkaya/taskboard/internal/models"
	"github.com/ahmetcoskunkizilkaya/taskboard/internal/storage"
	"gorm.io/gorm"
)

var (
	ErrImageInvalid  = errors.New("image upload failed")
	ErrImageNotFound = errors.New("image not found")
)

const imageDir = "images"

// maxNameBytes leaves room for the "<unix>_<n>_" prefix inside a 255 byte filename.
const maxNameBytes = 200

// UploadedFile is an accepted multipart file read into memory.
type UploadedFile struct {
	Data         []byte
	OriginalName string
	ContentType  string
}

// ImagePolicy is the single upload policy shared by every endpoint that accepts images.
type ImagePolicy struct {
	MaxBytes     int64
	AllowedTypes []string
}

func NewImagePolicy(cfg *config.Config) ImagePolicy {
	allowed := make([]string, 0, len(cfg.ImageAllowedTypes)+1)
	for _, t := range cfg.ImageAllowedTypes {
		allowed = append(allowed, normalizeContentType(t))
	}
	if cfg.ImageAllowSVG {
		allowed = append(allowed, "image/svg+xml")
	}
	return ImagePolicy{
		MaxBytes:     int64(cfg.ImageMaxKB) * 1024,
		AllowedTypes: allowed,
	}
}

func (p ImagePolicy) allows(contentType string) bool {
	for _, t := range p.AllowedTypes {
		if t == contentType {
			return true
		}
	}
	return false
}

type ImageService struct {
	db     *gorm.DB
	store  storage.Storage
	policy ImagePolicy
	now    func() time.Time

	// reserved holds object paths chosen but not yet written.
	mu       sync.Mutex
	reserved map[string]struct{}
}

func NewImageService(db *gorm.DB, store storage.Storage, policy ImagePolicy) *ImageService {
	return &ImageService{
		db:       db,
		store:    store,
		policy:   policy,
		now:      time.Now,
		reserved: make(map[string]struct{}),
	}
}

// Validate checks the declared type, the sniffed type and the size of f.
func (s *ImageService) Validate(f *UploadedFile) error {
	if f == nil || len(f.Data) == 0 {
		return newValidationError(ErrImageInvalid, "image", "image upload failed: the image field is required")
	}
	if int64(len(f.Data)) > s.policy.MaxBytes {
		return newValidationError(ErrImageInvalid, "image",
			fmt.Sprintf("image upload failed: the image must not be greater than %d kilobytes", s.policy.MaxBytes/1024))
	}

	contentType := resolveContentType(f)
	if !s.policy.allows(contentType) {
		return newValidationError(ErrImageInvalid, "image",
			fmt.Sprintf("image upload failed: unsupported file type %q", contentType))
	}
	if contentType != "image/svg+xml" {
		if sniffed := normalizeContentType(http.DetectContentType(f.Data)); sniffed != contentType {
			return newValidationError(ErrImageInvalid, "image",
				"image upload failed: file contents do not match "+contentType)
		}
	}
	f.ContentType = contentType
	return nil
}

// Save stores the bytes and records their metadata for uploaderID. The bytes
// are removed again when the record cannot be written.
func (s *ImageService) Save(ctx context.Context, uploaderID uint, f *UploadedFile) (*models.Image, error) {
	image, err := s.stage(ctx, uploaderID, f)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Create(image).Error; err != nil {
		s.discard(ctx, image)
		return nil, fmt.Errorf("failed to record image: %w", err)
	}

	slog.Info("image stored", "image_id", image.ID, "path", image.Path)
	return image, nil
}

func (s *ImageService) Get(ctx context.Context, id uint) (*models.Image, error) {
	var image models.Image
	if err := s.db.WithContext(ctx).First(&image, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrImageNotFound
		}
		return nil, err
	}
	return &image, nil
}

// Delete removes the record, detaches it from any task and then removes the
// bytes. Bytes that are already gone are not an error. Only the uploader may
// delete an image, and never one bound to a task the caller does not own.
func (s *ImageService) Delete(ctx context.Context, callerID, id uint) error {
	image, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if image.UserID != nil && *image.UserID != callerID {
		slog.WarnContext(ctx, "image ownership violation", "image_id", id, "owner_id", *image.UserID, "caller_id", callerID)
		return ErrNotOwner
	}
	var foreign int64
	if err := s.db.WithContext(ctx).Model(&models.Task{}).
		Where("image_id = ? AND user_id <> ?", image.ID, callerID).
		Count(&foreign).Error; err != nil {
		return fmt.Errorf("failed to check image owner: %w", err)
	}
	if foreign > 0 {
		slog.WarnContext(ctx, "image bound to another user's task", "image_id", id, "caller_id", callerID)
		return ErrNotOwner
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Task{}).Where("image_id = ?", image.ID).Update("image_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(image).Error
	})
	if err != nil {
		return fmt.Errorf("failed to delete image record: %w", err)
	}

	s.removeBytes(ctx, image)
	return nil
}

// stage validates f and writes its bytes, returning an unsaved record.
func (s *ImageService) stage(ctx context.Context, uploaderID uint, f *UploadedFile) (*models.Image, error) {
	if err := s.Validate(f); err != nil {
		return nil, err
	}

	filename, err := s.freeName(ctx, s.now().Unix(), cleanFilename(f.OriginalName))
	if err != nil {
		return nil, err
	}
	objectPath := imageDir + "/" + filename
	defer s.release(objectPath)

	if err := s.store.Put(ctx, objectPath, bytes.NewReader(f.Data), int64(len(f.Data)), f.ContentType); err != nil {
		return nil, fmt.Errorf("failed to store image: %w", err)
	}

	var uploader *uint
	if uploaderID != 0 {
		uploader = &uploaderID
	}

	return &models.Image{
		UserID:   uploader,
		Filename: filename,
		Path:     objectPath,
		URL:      s.store.URL(objectPath),
	}, nil
}

// freeName picks "<unix>_<name>", adding a counter when that object already
// exists or is being written, so two uploads in the same second never share
// bytes. The chosen path stays reserved until release.
func (s *ImageService) freeName(ctx context.Context, ts int64, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	filename := fmt.Sprintf("%d_%s", ts, name)
	for n := 1; ; n++ {
		objectPath := imageDir + "/" + filename
		if _, taken := s.reserved[objectPath]; !taken {
			exists, err := s.store.Exists(ctx, objectPath)
			if err != nil {
				return "", fmt.Errorf("failed to check image path: %w", err)
			}
			if !exists {
				s.reserved[objectPath] = struct{}{}
				return filename, nil
			}
		}
		filename = fmt.Sprintf("%d_%d_%s", ts, n, name)
	}
}

func (s *ImageService) release(objectPath string) {
	s.mu.Lock()
	delete(s.reserved, objectPath)
	s.mu.Unlock()
}

// discard removes staged bytes whose record never made it to the database.
func (s *ImageService) discard(ctx context.Context, image *models.Image) {
	if err := s.store.Delete(context.WithoutCancel(ctx), image.Path); err != nil {
		slog.Error("orphaned image bytes", "path", image.Path, "error", err)
	}
}

func (s *ImageService) removeBytes(ctx context.Context, image *models.Image) {
	if err := s.store.Delete(context.WithoutCancel(ctx), image.Path); err != nil {
		slog.Error("failed to remove image bytes", "image_id", image.ID, "path", image.Path, "error", err)
	}
}

func resolveContentType(f *UploadedFile) string {
	ct := normalizeContentType(f.ContentType)
	if ct == "" || ct == "application/octet-stream" {
		ct = normalizeContentType(mime.TypeByExtension(strings.ToLower(filepath.Ext(f.OriginalName))))
	}
	if ct == "" {
		ct = normalizeContentType(http.DetectContentType(f.Data))
	}
	return ct
}

func normalizeContentType(ct string) string {
	if ct == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		mediaType = strings.TrimSpace(ct)
	}
	mediaType = strings.ToLower(mediaType)
	if mediaType == "image/jpg" || mediaType == "image/pjpeg" {
		return "image/jpeg"
	}
	return mediaType
}

func cleanFilename(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "upload"
	}
	if len(name) <= maxNameBytes {
		return name
	}

	ext := filepath.Ext(name)
	if len(ext) > 16 {
		ext = ""
	}
	return truncateUTF8(strings.TrimSuffix(name, ext), maxNameBytes-len(ext)) + ext
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
