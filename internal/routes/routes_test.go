package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/taskboard/internal/config"
	"github.com/ahmetcoskunkizilkaya/taskboard/internal/database"
	"github.com/ahmetcoskunkizilkaya/taskboard/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/taskboard/internal/services"
	"github.com/ahmetcoskunkizilkaya/taskboard/internal/storage"
	"github.com/gofiber/fiber/v2"
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()

	dir := t.TempDir()
	cfg := &config.Config{
		DBDriver:          "sqlite",
		DBPath:            filepath.Join(dir, "api.db"),
		JWTSecret:         "test-secret",
		JWTAccessExpiry:   time.Hour,
		StorageDriver:     "local",
		StoragePath:       filepath.Join(dir, "public"),
		ImageMaxKB:        5048,
		ImageAllowedTypes: []string{"image/jpeg", "image/png", "image/gif"},
		AppURL:            "http://localhost:8000",
		CORSOrigins:       "*",
		AuthRateLimit:     1000,
	}

	db, err := database.OpenSQLite(cfg.DBPath)
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

	store, err := storage.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	authService := services.NewAuthService(db, cfg)
	imageService := services.NewImageService(db, store, services.NewImagePolicy(cfg))
	taskService := services.NewTaskService(db, imageService, cfg.GPSStrict)

	ping := func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Ping()
	}

	app := NewApp(cfg)
	Setup(app, cfg, Handlers{
		Auth:   handlers.NewAuthHandler(authService),
		Health: handlers.NewHealthHandler(ping),
		Task:   handlers.NewTaskHandler(taskService),
		Image:  handlers.NewImageHandler(imageService),
		Tokens: authService,
	})
	return app
}

type response struct {
	status int
	body   map[string]interface{}
	raw    []byte
}

func do(t *testing.T, app *fiber.App, req *http.Request) response {
	t.Helper()

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s failed: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	out := response{status: resp.StatusCode, raw: raw}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &out.body); err != nil {
			t.Fatalf("invalid json body %q: %v", raw, err)
		}
	}
	return out
}

func jsonRequest(method, path, token string, body interface{}) *http.Request {
	var reader io.Reader
	if body != nil {
		encoded, _ := json.Marshal(body)
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

type upload struct {
	filename    string
	contentType string
	data        []byte
}

func formRequest(t *testing.T, method, path, token string, fields map[string]string, file *upload) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	if file != nil {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, file.filename))
		header.Set("Content-Type", file.contentType)
		part, err := w.CreatePart(header)
		if err != nil {
			t.Fatalf("failed to create part: %v", err)
		}
		if _, err := part.Write(file.data); err != nil {
			t.Fatalf("failed to write part: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close form: %v", err)
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func png(name string, size int) *upload {
	data := make([]byte, size)
	copy(data, pngSignature)
	return &upload{filename: name, contentType: "image/png", data: data}
}

func mustRegister(t *testing.T, app *fiber.App, name string) (token string, userID float64) {
	t.Helper()

	resp := do(t, app, jsonRequest(http.MethodPost, "/api/register", "", map[string]string{
		"name":                  name,
		"email":                 name + "@example.com",
		"password":              "password123",
		"password_confirmation": "password123",
	}))
	if resp.status != http.StatusCreated {
		t.Fatalf("expected 201 on register, got %d: %s", resp.status, resp.raw)
	}
	data := resp.body["data"].(map[string]interface{})
	return resp.body["token"].(string), data["id"].(float64)
}

func mustCreateTask(t *testing.T, app *fiber.App, token string, fields map[string]string, file *upload) map[string]interface{} {
	t.Helper()

	resp := do(t, app, formRequest(t, http.MethodPost, "/api/task/create", token, fields, file))
	if resp.status != http.StatusCreated {
		t.Fatalf("expected 201 on create, got %d: %s", resp.status, resp.raw)
	}
	return resp.body["data"].(map[string]interface{})
}

func taskPath(task map[string]interface{}) string {
	return fmt.Sprintf("/api/task/%d", int(task["id"].(float64)))
}

func TestHealth(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)
	resp := do(t, app, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if resp.status != http.StatusOK || resp.body["db"] != "ok" {
		t.Fatalf("unexpected health response %d: %s", resp.status, resp.raw)
	}
}

func TestAuthFlow(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)

	resp := do(t, app, jsonRequest(http.MethodPost, "/api/register", "", map[string]string{"email": "nope"}))
	if resp.status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 on invalid register, got %d", resp.status)
	}
	if _, ok := resp.body["errors"].(map[string]interface{})["password"]; !ok {
		t.Fatalf("expected password field error, got %s", resp.raw)
	}

	mustRegister(t, app, "erin")

	resp = do(t, app, jsonRequest(http.MethodPost, "/api/login", "", map[string]string{
		"email": "erin@example.com", "password": "bad-password",
	}))
	if resp.status != http.StatusUnauthorized {
		t.Fatalf("expected 401 on bad login, got %d", resp.status)
	}

	resp = do(t, app, jsonRequest(http.MethodPost, "/api/login", "", map[string]string{
		"email": "erin@example.com", "password": "password123",
	}))
	if resp.status != http.StatusOK {
		t.Fatalf("expected 200 on login, got %d: %s", resp.status, resp.raw)
	}
	token := resp.body["token"].(string)

	resp = do(t, app, jsonRequest(http.MethodGet, "/api/me", token, nil))
	if resp.status != http.StatusOK {
		t.Fatalf("expected 200 on me, got %d", resp.status)
	}
	if user := resp.body["data"].(map[string]interface{}); user["email"] != "erin@example.com" {
		t.Fatalf("unexpected me body %s", resp.raw)
	}

	resp = do(t, app, jsonRequest(http.MethodPost, "/api/logout", token, nil))
	if resp.status != http.StatusOK {
		t.Fatalf("expected 200 on logout, got %d", resp.status)
	}

	resp = do(t, app, jsonRequest(http.MethodGet, "/api/me", token, nil))
	if resp.status != http.StatusUnauthorized || resp.body["message"] != "Unauthenticated." {
		t.Fatalf("expected revoked token rejected, got %d: %s", resp.status, resp.raw)
	}
}

func TestTaskRoutes_RequireToken(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)
	for _, path := range []string{"/api/task/all", "/api/task/mine", "/api/task/1", "/api/me"} {
		resp := do(t, app, jsonRequest(http.MethodGet, path, "", nil))
		if resp.status != http.StatusUnauthorized {
			t.Fatalf("expected 401 on %s, got %d", path, resp.status)
		}
	}

	resp := do(t, app, jsonRequest(http.MethodGet, "/api/task/all", "not-a-jwt", nil))
	if resp.status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for malformed token, got %d", resp.status)
	}
}

func TestBuyMilkOverHTTP(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)
	tokenA, idA := mustRegister(t, app, "anna")
	tokenB, _ := mustRegister(t, app, "ben")

	task := mustCreateTask(t, app, tokenA, map[string]string{"name": "Buy milk"}, nil)
	if task["user_id"].(float64) != idA || task["completed"] != false {
		t.Fatalf("unexpected created task %v", task)
	}
	if task["user_ip"] == "" {
		t.Fatalf("expected origin ip recorded")
	}

	resp := do(t, app, formRequest(t, http.MethodPost, "/api/task/create", tokenA, map[string]string{"name": "Buy milk"}, nil))
	if resp.status != http.StatusBadRequest || resp.body["message"] != "Task already exists" {
		t.Fatalf("expected 400 duplicate, got %d: %s", resp.status, resp.raw)
	}

	path := taskPath(task)
	resp = do(t, app, jsonRequest(http.MethodPatch, path, tokenB, map[string]interface{}{"completed": true}))
	if resp.status != http.StatusForbidden || resp.body["message"] != "Unauthorized" {
		t.Fatalf("expected 403 for B's update, got %d: %s", resp.status, resp.raw)
	}
	resp = do(t, app, jsonRequest(http.MethodDelete, path, tokenB, nil))
	if resp.status != http.StatusForbidden {
		t.Fatalf("expected 403 for B's delete, got %d", resp.status)
	}

	resp = do(t, app, jsonRequest(http.MethodPatch, path, tokenA, map[string]interface{}{"completed": true, "user_id": 999}))
	if resp.status != http.StatusOK {
		t.Fatalf("expected 200 for A's update, got %d: %s", resp.status, resp.raw)
	}
	updated := resp.body["data"].(map[string]interface{})
	if updated["completed"] != true || updated["user_id"].(float64) != idA {
		t.Fatalf("expected only completed to change, got %v", updated)
	}

	resp = do(t, app, jsonRequest(http.MethodDelete, path, tokenA, nil))
	if resp.status != http.StatusOK || resp.body["message"] != "Deleted successfully" {
		t.Fatalf("expected 200 delete, got %d: %s", resp.status, resp.raw)
	}

	resp = do(t, app, jsonRequest(http.MethodGet, path, tokenA, nil))
	if resp.status != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.status)
	}
}

func TestTaskWithImage_ServedAndListed(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)
	token, _ := mustRegister(t, app, "fay")
	file := png("plant.png", 2048)

	task := mustCreateTask(t, app, token, map[string]string{
		"name":            "water plants",
		"description":     "balcony",
		"completed":       "0",
		"gps_coordinates": "41.0082,28.9784",
	}, file)

	image, ok := task["image"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected image in task, got %v", task)
	}
	if user := task["user"].(map[string]interface{}); user["name"] != "fay" {
		t.Fatalf("expected joined owner, got %v", user)
	}

	u, err := url.Parse(image["url"].(string))
	if err != nil {
		t.Fatalf("invalid image url: %v", err)
	}
	resp := do(t, app, httptest.NewRequest(http.MethodGet, u.Path, nil))
	if resp.status != http.StatusOK || !bytes.Equal(resp.raw, file.data) {
		t.Fatalf("expected image bytes served at %s, got %d", u.Path, resp.status)
	}

	resp = do(t, app, jsonRequest(http.MethodGet, "/api/task/mine", token, nil))
	if resp.status != http.StatusOK || resp.body["success"] != true {
		t.Fatalf("unexpected mine response %d: %s", resp.status, resp.raw)
	}
	if mine := resp.body["data"].([]interface{}); len(mine) != 1 {
		t.Fatalf("expected one task, got %d", len(mine))
	}

	resp = do(t, app, jsonRequest(http.MethodGet, "/api/task/all", token, nil))
	if resp.status != http.StatusOK || resp.body["message"] != "success" {
		t.Fatalf("unexpected all response %d: %s", resp.status, resp.raw)
	}

	resp = do(t, app, jsonRequest(http.MethodGet, taskPath(task), token, nil))
	if resp.status != http.StatusOK {
		t.Fatalf("expected 200 on show, got %d", resp.status)
	}
}

func TestTaskUpdate_MethodSpoofAndValidation(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)
	token, _ := mustRegister(t, app, "gus")
	task := mustCreateTask(t, app, token, map[string]string{"name": "spoof"}, nil)
	path := taskPath(task)

	resp := do(t, app, formRequest(t, http.MethodPost, path, token, map[string]string{"_method": "PATCH", "name": "renamed"}, nil))
	if resp.status != http.StatusOK {
		t.Fatalf("expected 200 via _method spoof, got %d: %s", resp.status, resp.raw)
	}
	if resp.body["data"].(map[string]interface{})["name"] != "renamed" {
		t.Fatalf("expected rename, got %s", resp.raw)
	}

	resp = do(t, app, formRequest(t, http.MethodPost, path, token, map[string]string{"name": "no method"}, nil))
	if resp.status != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 without _method, got %d", resp.status)
	}

	resp = do(t, app, jsonRequest(http.MethodPatch, path, token, map[string]interface{}{"completed": "maybe"}))
	if resp.status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for bad boolean, got %d", resp.status)
	}

	resp = do(t, app, jsonRequest(http.MethodPatch, path, token, map[string]interface{}{"name": ""}))
	if resp.status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for blank name, got %d", resp.status)
	}

	resp = do(t, app, jsonRequest(http.MethodPatch, "/api/task/abc", token, map[string]interface{}{"completed": true}))
	if resp.status != http.StatusNotFound {
		t.Fatalf("expected 404 for non-numeric id, got %d", resp.status)
	}
}

func TestImageRoutes(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)
	token, _ := mustRegister(t, app, "hal")

	resp := do(t, app, formRequest(t, http.MethodPost, "/api/upload-image", token, nil, png("huge.png", 6*1024*1024)))
	if resp.status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for 6MB upload, got %d: %s", resp.status, resp.raw)
	}

	resp = do(t, app, formRequest(t, http.MethodPost, "/api/upload-image", token, nil, &upload{
		filename: "notes.txt", contentType: "text/plain", data: []byte("hello"),
	}))
	if resp.status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for text upload, got %d", resp.status)
	}

	resp = do(t, app, formRequest(t, http.MethodPost, "/api/upload-image", token, nil, nil))
	if resp.status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 without file, got %d", resp.status)
	}

	resp = do(t, app, formRequest(t, http.MethodPost, "/api/upload-image", token, nil, png("ok.png", 2*1024*1024)))
	if resp.status != http.StatusCreated {
		t.Fatalf("expected 201 for png upload, got %d: %s", resp.status, resp.raw)
	}
	image := resp.body["data"].(map[string]interface{})
	path := fmt.Sprintf("/api/delete-image/%d", int(image["id"].(float64)))

	resp = do(t, app, formRequest(t, http.MethodPost, "/api/upload-image", token, nil, png(strings.Repeat("a", 300)+".png", 128)))
	if resp.status != http.StatusCreated {
		t.Fatalf("expected 201 for long file name, got %d: %s", resp.status, resp.raw)
	}
	if name := resp.body["data"].(map[string]interface{})["filename"].(string); len(name) > 255 || !strings.HasSuffix(name, ".png") {
		t.Fatalf("expected shortened png name, got %q", name)
	}

	intruder, _ := mustRegister(t, app, "ivy")
	resp = do(t, app, jsonRequest(http.MethodDelete, path, intruder, nil))
	if resp.status != http.StatusForbidden || resp.body["message"] != "Unauthorized" {
		t.Fatalf("expected 403 when deleting another user's image, got %d: %s", resp.status, resp.raw)
	}
	task := mustCreateTask(t, app, token, map[string]string{"name": "with pic"}, png("pic.png", 256))
	taskImage := fmt.Sprintf("/api/delete-image/%d", int(task["image"].(map[string]interface{})["id"].(float64)))
	resp = do(t, app, jsonRequest(http.MethodDelete, taskImage, intruder, nil))
	if resp.status != http.StatusForbidden {
		t.Fatalf("expected 403 when deleting another user's task image, got %d", resp.status)
	}

	resp = do(t, app, jsonRequest(http.MethodDelete, path, token, nil))
	if resp.status != http.StatusOK {
		t.Fatalf("expected 200 on image delete, got %d", resp.status)
	}
	resp = do(t, app, jsonRequest(http.MethodDelete, path, token, nil))
	if resp.status != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", resp.status)
	}
}
