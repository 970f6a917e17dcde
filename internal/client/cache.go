package client

import (
	"context"
	"sync"

	"github.com/ahmetcoskunkizilkaya/taskboard/internal/models"
)

// TaskCache holds the "all tasks" and "my tasks" views. Mutations patch the
// views only with what the server returned.
type TaskCache struct {
	api    *API
	userID uint

	mu      sync.RWMutex
	all     []models.Task
	mine    []models.Task
	loading bool
	err     error
}

// NewTaskCache returns an empty cache for the signed-in user userID.
func NewTaskCache(api *API, userID uint) *TaskCache {
	return &TaskCache{api: api, userID: userID}
}

func (c *TaskCache) All() []models.Task {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.Task(nil), c.all...)
}

func (c *TaskCache) Mine() []models.Task {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.Task(nil), c.mine...)
}

func (c *TaskCache) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

// Err is the error from the last call, or nil.
func (c *TaskCache) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// CanEdit reports whether edit and delete controls should be offered for
// task. The server enforces ownership regardless.
func (c *TaskCache) CanEdit(task models.Task) bool {
	return CanEdit(c.userID, task)
}

func CanEdit(userID uint, task models.Task) bool {
	return userID != 0 && task.UserID == userID
}

// Refresh reloads both views. On failure the previous views are kept.
func (c *TaskCache) Refresh(ctx context.Context) error {
	c.begin()

	all, err := c.api.ListTasks(ctx)
	if err != nil {
		return c.end(err)
	}
	mine, err := c.api.ListMyTasks(ctx)
	if err != nil {
		return c.end(err)
	}

	c.mu.Lock()
	c.all, c.mine = all, mine
	c.mu.Unlock()
	return c.end(nil)
}

func (c *TaskCache) Create(ctx context.Context, t NewTask) (*models.Task, error) {
	c.begin()
	task, err := c.api.CreateTask(ctx, t)
	if err != nil {
		return nil, c.end(err)
	}

	c.mu.Lock()
	c.all = append([]models.Task{*task}, c.all...)
	if task.UserID == c.userID {
		c.mine = append([]models.Task{*task}, c.mine...)
	}
	c.mu.Unlock()
	return task, c.end(nil)
}

func (c *TaskCache) Update(ctx context.Context, id uint, u TaskUpdate) (*models.Task, error) {
	c.begin()
	task, err := c.api.UpdateTask(ctx, id, u)
	if err != nil {
		return nil, c.end(err)
	}

	c.mu.Lock()
	replace(c.all, *task)
	replace(c.mine, *task)
	c.mu.Unlock()
	return task, c.end(nil)
}

func (c *TaskCache) Delete(ctx context.Context, id uint) error {
	c.begin()
	if err := c.api.DeleteTask(ctx, id); err != nil {
		return c.end(err)
	}

	c.mu.Lock()
	c.all = remove(c.all, id)
	c.mine = remove(c.mine, id)
	c.mu.Unlock()
	return c.end(nil)
}

func (c *TaskCache) begin() {
	c.mu.Lock()
	c.loading = true
	c.mu.Unlock()
}

func (c *TaskCache) end(err error) error {
	c.mu.Lock()
	c.loading = false
	c.err = err
	c.mu.Unlock()
	return err
}

func replace(tasks []models.Task, task models.Task) {
	for i := range tasks {
		if tasks[i].ID == task.ID {
			tasks[i] = task
			return
		}
	}
}

func remove(tasks []models.Task, id uint) []models.Task {
	out := tasks[:0]
	for _, t := range tasks {
		if t.ID != id {
			out = append(out, t)
		}
	}
	return out
}
