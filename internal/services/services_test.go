package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/taskboard/internal/config"
	"github.com/ahmetcoskunkizilkaya/taskboard/internal/database"
	"github.com/ahmetcoskunkizilkaya/taskboard/internal/dto"
	"github.com/ahmetcoskunkizilkaya/taskboard/internal/models"
	"github.com/ahmetcoskunkizilkaya/taskboard/internal/storage"
	"gorm.io/gorm"
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

type testEnv struct {
	db     *gorm.DB
	store  *storage.Local
	cfg    *config.Config
	auth   *AuthService
	images *ImageService
	tasks  *TaskService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	db, err := database.OpenSQLite(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	store, err := storage.NewLocal(filepath.Join(dir, "public"), "http://localhost:8000/storage")
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	cfg := &config.Config{
		JWTSecret:         "test-secret",
		JWTAccessExpiry:   time.Hour,
		ImageMaxKB:        5048,
		ImageAllowedTypes: []string{"image/jpeg", "image/png", "image/gif"},
	}

	images := NewImageService(db, store, NewImagePolicy(cfg))
	return &testEnv{
		db:     db,
		store:  store,
		cfg:    cfg,
		auth:   NewAuthService(db, cfg),
		images: images,
		tasks:  NewTaskService(db, images, false),
	}
}

func (e *testEnv) mustUser(t *testing.T, name string) uint {
	t.Helper()

	resp, err := e.auth.Register(&dto.RegisterRequest{
		Name:                 name,
		Email:                name + "@example.com",
		Password:             "password123",
		PasswordConfirmation: "password123",
	})
	if err != nil {
		t.Fatalf("failed to register %s: %v", name, err)
	}
	return resp.Data.ID
}

func (e *testEnv) mustTask(t *testing.T, owner uint, in CreateTaskInput) *models.Task {
	t.Helper()

	task, err := e.tasks.Create(context.Background(), owner, in)
	if err != nil {
		t.Fatalf("failed to create task %q: %v", in.Name, err)
	}
	return task
}

func pngFile(name string, size int) *UploadedFile {
	data := make([]byte, size)
	copy(data, pngSignature)
	return &UploadedFile{Data: data, OriginalName: name, ContentType: "image/png"}
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func (e *testEnv) objectExists(t *testing.T, path string) bool {
	t.Helper()

	ok, err := e.store.Exists(context.Background(), path)
	if err != nil {
		t.Fatalf("Exists returned error: %v", err)
	}
	return ok
}

func (e *testEnv) count(t *testing.T, model interface{}) int64 {
	t.Helper()

	var n int64
	if err := e.db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	return n
}

// imageFiles counts the objects under the image directory of the local store.
func (e *testEnv) imageFiles(t *testing.T) int {
	t.Helper()

	entries, err := os.ReadDir(filepath.Join(e.store.Root(), imageDir))
	if errors.Is(err, os.ErrNotExist) {
		return 0
	}
	if err != nil {
		t.Fatalf("ReadDir returned error: %v", err)
	}
	return len(entries)
}

func isValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
