package handlers

import (
	"strconv"
	"strings"

	"github.com/ahmetcoskunkizilkaya/taskboard/internal/dto"
	"github.com/ahmetcoskunkizilkaya/taskboard/internal/identity"
	"github.com/ahmetcoskunkizilkaya/taskboard/internal/services"
	"github.com/gofiber/fiber/v2"
)

type TaskHandler struct {
	taskService *services.TaskService
}

func NewTaskHandler(taskService *services.TaskService) *TaskHandler {
	return &TaskHandler{taskService: taskService}
}

// All lists every task on the board.
func (h *TaskHandler) All(c *fiber.Ctx) error {
	tasks, err := h.taskService.ListAll(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.DataResponse{Message: "success", Data: tasks})
}

// Mine lists the caller's own tasks.
func (h *TaskHandler) Mine(c *fiber.Ctx) error {
	callerID, err := identity.CallerID(c)
	if err != nil {
		return unauthorized(c)
	}

	tasks, err := h.taskService.ListMine(c.UserContext(), callerID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.ListResponse{Success: true, Data: tasks})
}

func (h *TaskHandler) Show(c *fiber.Ctx) error {
	id, ok := pathID(c)
	if !ok {
		return writeError(c, services.ErrTaskNotFound)
	}

	task, err := h.taskService.Get(c.UserContext(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.DataResponse{Message: "success", Data: task})
}

func (h *TaskHandler) Create(c *fiber.Ctx) error {
	callerID, err := identity.CallerID(c)
	if err != nil {
		return unauthorized(c)
	}

	fields, err := readFields(c, taskFieldNames)
	if err != nil {
		return badRequest(c, "Invalid request body")
	}
	completed, ok := fields.boolean("completed")
	if !ok {
		return writeError(c, services.FieldError("completed", "The completed field must be true or false."))
	}
	image, err := uploadedFile(c, "image")
	if err != nil {
		return writeError(c, err)
	}

	task, err := h.taskService.Create(c.UserContext(), callerID, services.CreateTaskInput{
		Name:           fields.text("name"),
		Description:    fields.optional("description"),
		Completed:      completed,
		GPSCoordinates: fields.optional("gps_coordinates"),
		Image:          image,
		OriginIP:       c.IP(),
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.DataResponse{Message: "success", Data: task})
}

// Update applies a partial update. Only name, description, completed and
// gps_coordinates are honored; any other field is ignored.
func (h *TaskHandler) Update(c *fiber.Ctx) error {
	callerID, err := identity.CallerID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := pathID(c)
	if !ok {
		return writeError(c, services.ErrTaskNotFound)
	}

	fields, err := readFields(c, taskFieldNames)
	if err != nil {
		return badRequest(c, "Invalid request body")
	}

	var patch services.TaskPatch
	if fields.has("name") {
		name := fields.text("name")
		patch.Name = &name
	}
	patch.Description = fields.optional("description")
	patch.GPSCoordinates = fields.optional("gps_coordinates")
	if patch.Completed, ok = fields.boolean("completed"); !ok {
		return writeError(c, services.FieldError("completed", "The completed field must be true or false."))
	}

	task, err := h.taskService.Update(c.UserContext(), callerID, id, patch)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.DataResponse{Message: "success", Data: task})
}

// UpdateViaPost serves form clients that cannot send PATCH and spoof the
// method with a _method field.
func (h *TaskHandler) UpdateViaPost(c *fiber.Ctx) error {
	fields, err := readFields(c, []string{"_method"})
	if err != nil {
		return badRequest(c, "Invalid request body")
	}
	switch strings.ToUpper(fields.text("_method")) {
	case fiber.MethodPatch, fiber.MethodPut:
		return h.Update(c)
	}
	return c.Status(fiber.StatusMethodNotAllowed).JSON(dto.ErrorResponse{
		Error: true, Message: "Method not allowed",
	})
}

func (h *TaskHandler) Delete(c *fiber.Ctx) error {
	callerID, err := identity.CallerID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := pathID(c)
	if !ok {
		return writeError(c, services.ErrTaskNotFound)
	}

	if err := h.taskService.Delete(c.UserContext(), callerID, id); err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.MessageResponse{Message: "Deleted successfully"})
}

func pathID(c *fiber.Ctx) (uint, bool) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
