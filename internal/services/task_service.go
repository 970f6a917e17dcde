package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ahmetcoskunkizilkaya/taskboard/internal/models"
	"gorm.io/gorm"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrTaskExists   = errors.New("task already exists")
	ErrNotOwner     = errors.New("you do not own this task")
)

const maxTaskNameLength = 255

var gpsPattern = regexp.MustCompile(`^-?\d+(\.\d+)?,\s*-?\d+(\.\d+)?$`)

type CreateTaskInput struct {
	Name           string
	Description    *string
	Completed      *bool
	GPSCoordinates *string
	Image          *UploadedFile
	OriginIP       string
}

// TaskPatch lists the only fields an owner may change after creation.
type TaskPatch struct {
	Name           *string
	Description    *string
	Completed      *bool
	GPSCoordinates *string
}

func (p TaskPatch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.Completed == nil && p.GPSCoordinates == nil
}

type TaskService struct {
	db        *gorm.DB
	images    *ImageService
	gpsStrict bool
}

func NewTaskService(db *gorm.DB, images *ImageService, gpsStrict bool) *TaskService {
	return &TaskService{db: db, images: images, gpsStrict: gpsStrict}
}

func (s *TaskService) withRelations(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Preload("User").Preload("Image")
}

// ListAll returns every task, newest first.
func (s *TaskService) ListAll(ctx context.Context) ([]models.Task, error) {
	tasks := []models.Task{}
	err := s.withRelations(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Find(&tasks).Error
	return tasks, err
}

// ListMine returns the caller's tasks, newest first.
func (s *TaskService) ListMine(ctx context.Context, callerID uint) ([]models.Task, error) {
	tasks := []models.Task{}
	err := s.withRelations(ctx).
		Where("user_id = ?", callerID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&tasks).Error
	return tasks, err
}

func (s *TaskService) Get(ctx context.Context, id uint) (*models.Task, error) {
	var task models.Task
	if err := s.withRelations(ctx).First(&task, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return &task, nil
}

func (s *TaskService) Create(ctx context.Context, callerID uint, in CreateTaskInput) (*models.Task, error) {
	name := strings.TrimSpace(in.Name)
	verr := &ValidationError{}
	s.validateName(verr, name)
	gps := blankToNil(in.GPSCoordinates)
	s.validateGPS(verr, gps)
	if !verr.empty() {
		return nil, verr
	}

	if in.Image != nil {
		if err := s.images.Validate(in.Image); err != nil {
			return nil, err
		}
	}

	taken, err := s.nameTaken(ctx, callerID, name, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrTaskExists
	}

	var staged *models.Image
	if in.Image != nil {
		staged, err = s.images.stage(ctx, callerID, in.Image)
		if err != nil {
			return nil, err
		}
	}

	task := models.Task{
		UserID:         callerID,
		Name:           name,
		Description:    blankToNil(in.Description),
		GPSCoordinates: gps,
		UserIP:         in.OriginIP,
	}
	if in.Completed != nil {
		task.Completed = *in.Completed
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if staged != nil {
			if err := tx.Create(staged).Error; err != nil {
				return fmt.Errorf("failed to record image: %w", err)
			}
			task.ImageID = &staged.ID
		}
		return tx.Create(&task).Error
	})
	if err != nil {
		if staged != nil {
			s.images.discard(ctx, staged)
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrTaskExists
		}
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	slog.Info("task created", "task_id", task.ID, "user_id", callerID, "has_image", staged != nil)
	return s.Get(ctx, task.ID)
}

func (s *TaskService) Update(ctx context.Context, callerID, id uint, patch TaskPatch) (*models.Task, error) {
	task, err := s.ownedTask(ctx, s.db.WithContext(ctx), callerID, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	verr := &ValidationError{}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		s.validateName(verr, name)
		if verr.empty() && name != task.Name {
			taken, err := s.nameTaken(ctx, callerID, name, task.ID)
			if err != nil {
				return nil, err
			}
			if taken {
				return nil, ErrTaskExists
			}
		}
		updates["name"] = name
	}
	if patch.Description != nil {
		updates["description"] = blankToNil(patch.Description)
	}
	if patch.Completed != nil {
		updates["completed"] = *patch.Completed
	}
	if patch.GPSCoordinates != nil {
		gps := blankToNil(patch.GPSCoordinates)
		s.validateGPS(verr, gps)
		updates["gps_coordinates"] = gps
	}
	if !verr.empty() {
		return nil, verr
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(task).Updates(updates).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return nil, ErrTaskExists
			}
			return nil, fmt.Errorf("failed to update task: %w", err)
		}
	}

	return s.Get(ctx, task.ID)
}

// Delete removes the task and its bound image in one transaction, then
// removes the image bytes.
func (s *TaskService) Delete(ctx context.Context, callerID, id uint) error {
	task, err := s.ownedTask(ctx, s.db.WithContext(ctx).Preload("Image"), callerID, id)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.Task{}, task.ID).Error; err != nil {
			return err
		}
		if task.Image != nil {
			return tx.Delete(&models.Image{}, task.Image.ID).Error
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	if task.Image != nil {
		s.images.removeBytes(ctx, task.Image)
	}

	slog.Info("task deleted", "task_id", task.ID, "user_id", callerID)
	return nil
}

func (s *TaskService) ownedTask(ctx context.Context, q *gorm.DB, callerID, id uint) (*models.Task, error) {
	var task models.Task
	if err := q.First(&task, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	if task.UserID != callerID {
		slog.WarnContext(ctx, "task ownership violation", "task_id", id, "owner_id", task.UserID, "caller_id", callerID)
		return nil, ErrNotOwner
	}
	return &task, nil
}

func (s *TaskService) nameTaken(ctx context.Context, callerID uint, name string, exceptID uint) (bool, error) {
	q := s.db.WithContext(ctx).Model(&models.Task{}).Where("user_id = ? AND name = ?", callerID, name)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check task name: %w", err)
	}
	return count > 0, nil
}

func (s *TaskService) validateName(verr *ValidationError, name string) {
	switch {
	case name == "":
		verr.add("name", "The name field is required.")
	case utf8.RuneCountInString(name) > maxTaskNameLength:
		verr.add("name", fmt.Sprintf("The name field must not be greater than %d characters.", maxTaskNameLength))
	}
}

func (s *TaskService) validateGPS(verr *ValidationError, gps *string) {
	if s.gpsStrict && gps != nil && !gpsPattern.MatchString(*gps) {
		verr.add("gps_coordinates", "Must be valid GPS coordinates")
	}
}

func blankToNil(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
