package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/audio-annotator/internal/annotation"
	"github.com/tphakala/audio-annotator/internal/errors"
	"github.com/tphakala/audio-annotator/internal/events"
)

type messageResponse struct {
	Message string `json:"message"`
}

// ListTasks handles GET /api/tasks/ with an optional ?status= filter
func (c *Controller) ListTasks(ctx echo.Context) error {
	var status annotation.Status
	if raw := ctx.QueryParam("status"); raw != "" {
		parsed, err := annotation.ParseStatus(raw)
		if err != nil {
			return c.HandleError(ctx, validation(err), "Invalid status filter")
		}
		status = parsed
	}

	tasks, err := c.Store.Tasks(ctx.Request().Context(), status)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list tasks")
	}
	for i := range tasks {
		tasks[i].AudioURL = c.audioURL(tasks[i].AudioFile)
	}
	return ctx.JSON(http.StatusOK, tasks)
}

// GetTask handles GET /api/task/:id/
func (c *Controller) GetTask(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid task id")
	}
	task, err := c.Store.Task(ctx.Request().Context(), id)
	if err != nil {
		return c.HandleError(ctx, err, "Task not found")
	}
	task.AudioURL = c.audioURL(task.AudioFile)
	return ctx.JSON(http.StatusOK, task)
}

// GetAnnotations handles GET /api/tasks/:id/annotations/
func (c *Controller) GetAnnotations(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid task id")
	}
	reqCtx := ctx.Request().Context()

	task, err := c.Store.Task(reqCtx, id)
	if err != nil {
		return c.HandleError(ctx, err, "Task not found")
	}
	annotations, err := c.Store.Annotations(reqCtx, id)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to load annotations")
	}
	labels, err := c.labels(reqCtx, task.ProjectID)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to load labels")
	}
	return ctx.JSON(http.StatusOK, annotation.TaskAnnotations{Annotations: annotations, Labels: labels})
}

// SaveAnnotations handles POST /api/tasks/:id/save_annotations/
func (c *Controller) SaveAnnotations(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid task id")
	}

	var req annotation.SaveRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, validation(err), "Invalid annotations body")
	}
	status, err := annotation.ParseStatus(string(req.Status))
	if err != nil {
		return c.HandleError(ctx, validation(err), "Invalid status")
	}
	req.Status = status

	reqCtx := ctx.Request().Context()
	if err := c.Store.SaveAnnotations(reqCtx, id, req); err != nil {
		return c.HandleError(ctx, err, "Failed to save annotations")
	}

	if c.publisher != nil {
		saved := events.TaskSaved{TaskID: id, Status: status, Sent: len(req.Annotations), At: time.Now()}
		if task, err := c.Store.Task(reqCtx, id); err == nil {
			saved.AudioFile = task.AudioFile
		}
		c.publisher.TryPublish(saved)
	}
	return ctx.JSON(http.StatusOK, messageResponse{Message: "Annotations saved successfully"})
}

// DeleteAnnotation handles DELETE /api/annotations/:id/
func (c *Controller) DeleteAnnotation(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid annotation id")
	}
	if err := c.Store.DeleteAnnotation(ctx.Request().Context(), id); err != nil {
		return c.HandleError(ctx, err, "Annotation not found")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (c *Controller) audioURL(file string) string {
	if file == "" || c.Settings.MediaURL == "" {
		return ""
	}
	base := c.Settings.MediaURL
	if base[len(base)-1] != '/' {
		base += "/"
	}
	return base + file
}

func validation(err error) error {
	return errors.New(err).
		Component("api").
		Category(errors.CategoryValidation).
		Build()
}
