package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ahmetcoskunkizilkaya/taskboard/internal/dto"
	"github.com/ahmetcoskunkizilkaya/taskboard/internal/models"
)

// API wraps Do with typed calls for each route.
type API struct {
	cfg Config
}

// New returns an API bound to cfg. A nil token store is replaced with an
// in-memory one so Login can remember the token.
func New(cfg Config) *API {
	if cfg.Tokens == nil {
		cfg.Tokens = &MemoryTokenStore{}
	}
	return &API{cfg: cfg}
}

func (a *API) Config() Config { return a.cfg }

type envelope[T any] struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
	Data    T      `json:"data"`
}

func call[T any](ctx context.Context, cfg Config, method, path string, body any) (T, error) {
	var out envelope[T]
	raw, err := Do(ctx, cfg, method, path, body)
	if err != nil {
		return out.Data, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out.Data, fmt.Errorf("client: failed to parse %s %s response: %w", method, path, err)
	}
	return out.Data, nil
}

// NewTask is the form sent to /task/create.
type NewTask struct {
	Name           string
	Description    string
	Completed      *bool
	GPSCoordinates string
	Image          *FilePart
}

// TaskUpdate is a partial update; nil fields are left unchanged.
type TaskUpdate struct {
	Name           *string `json:"name,omitempty"`
	Description    *string `json:"description,omitempty"`
	Completed      *bool   `json:"completed,omitempty"`
	GPSCoordinates *string `json:"gps_coordinates,omitempty"`
}

func (a *API) Register(ctx context.Context, req dto.RegisterRequest) (*dto.AuthResponse, error) {
	return a.authenticate(ctx, "/register", req)
}

func (a *API) Login(ctx context.Context, email, password string) (*dto.AuthResponse, error) {
	return a.authenticate(ctx, "/login", dto.LoginRequest{Email: email, Password: password})
}

func (a *API) authenticate(ctx context.Context, path string, body any) (*dto.AuthResponse, error) {
	raw, err := Do(ctx, a.cfg, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	var resp dto.AuthResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("client: failed to parse auth response: %w", err)
	}
	a.cfg.Tokens.SetToken(resp.Token)
	return &resp, nil
}

// Logout revokes the token server-side. The local token is dropped even when
// the server call fails.
func (a *API) Logout(ctx context.Context) error {
	_, err := Do(ctx, a.cfg, http.MethodPost, "/logout", nil)
	a.cfg.Tokens.Clear()
	return err
}

func (a *API) Me(ctx context.Context) (*dto.UserResponse, error) {
	user, err := call[dto.UserResponse](ctx, a.cfg, http.MethodGet, "/me", nil)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (a *API) ListTasks(ctx context.Context) ([]models.Task, error) {
	return call[[]models.Task](ctx, a.cfg, http.MethodGet, "/task/all", nil)
}

func (a *API) ListMyTasks(ctx context.Context) ([]models.Task, error) {
	return call[[]models.Task](ctx, a.cfg, http.MethodGet, "/task/mine", nil)
}

func (a *API) GetTask(ctx context.Context, id uint) (*models.Task, error) {
	return a.task(ctx, http.MethodGet, taskPath(id), nil)
}

func (a *API) CreateTask(ctx context.Context, t NewTask) (*models.Task, error) {
	form := &Multipart{
		Fields: map[string]string{"name": t.Name},
		Files:  map[string]*FilePart{},
	}
	if t.Description != "" {
		form.Fields["description"] = t.Description
	}
	if t.Completed != nil {
		form.Fields["completed"] = strconv.FormatBool(*t.Completed)
	}
	if t.GPSCoordinates != "" {
		form.Fields["gps_coordinates"] = t.GPSCoordinates
	}
	if t.Image != nil {
		form.Files["image"] = t.Image
	}
	return a.task(ctx, http.MethodPost, "/task/create", form)
}

func (a *API) UpdateTask(ctx context.Context, id uint, u TaskUpdate) (*models.Task, error) {
	return a.task(ctx, http.MethodPatch, taskPath(id), u)
}

func (a *API) DeleteTask(ctx context.Context, id uint) error {
	_, err := Do(ctx, a.cfg, http.MethodDelete, taskPath(id), nil)
	return err
}

func (a *API) UploadImage(ctx context.Context, f *FilePart) (*models.Image, error) {
	image, err := call[models.Image](ctx, a.cfg, http.MethodPost, "/upload-image", &Multipart{
		Files: map[string]*FilePart{"image": f},
	})
	if err != nil {
		return nil, err
	}
	return &image, nil
}

func (a *API) DeleteImage(ctx context.Context, id uint) error {
	_, err := Do(ctx, a.cfg, http.MethodDelete, "/delete-image/"+strconv.FormatUint(uint64(id), 10), nil)
	return err
}

func (a *API) task(ctx context.Context, method, path string, body any) (*models.Task, error) {
	task, err := call[models.Task](ctx, a.cfg, method, path, body)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func taskPath(id uint) string {
	return "/task/" + strconv.FormatUint(uint64(id), 10)
}
