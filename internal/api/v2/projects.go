package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/audio-annotator/internal/annotation"
	"github.com/tphakala/audio-annotator/internal/datastore"
	"github.com/tphakala/audio-annotator/internal/errors"
	"github.com/tphakala/audio-annotator/internal/logger"
)

// CreateProjectResponse is returned by POST /projects/create/
type CreateProjectResponse struct {
	Project annotation.Project `json:"project"`
	Tasks   []annotation.Task  `json:"tasks"`
}

// ListProjects handles GET /api/projects/
func (c *Controller) ListProjects(ctx echo.Context) error {
	projects, err := c.Store.Projects(ctx.Request().Context())
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list projects")
	}
	return ctx.JSON(http.StatusOK, projects)
}

// GetProject handles GET /api/projects/:id/
func (c *Controller) GetProject(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid project id")
	}
	project, err := c.Store.Project(ctx.Request().Context(), id)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to get project")
	}
	return ctx.JSON(http.StatusOK, project)
}

// CreateProject handles POST /api/projects/create/
func (c *Controller) CreateProject(ctx echo.Context) error {
	var in datastore.ProjectInput
	if err := ctx.Bind(&in); err != nil {
		return c.HandleError(ctx, errors.New(err).
			Component("api").
			Category(errors.CategoryValidation).
			Build(), "Invalid project body")
	}

	project, tasks, err := c.Store.CreateProject(ctx.Request().Context(), in)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to create project")
	}
	c.log.Info("project created via api",
		logger.Int64("project_id", int64(project.ID)),
		logger.Int("tasks", len(tasks)))
	return ctx.JSON(http.StatusCreated, CreateProjectResponse{Project: project, Tasks: tasks})
}

// DeleteProject handles DELETE /api/projects/delete/:id/
func (c *Controller) DeleteProject(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid project id")
	}
	if err := c.Store.DeleteProject(ctx.Request().Context(), id); err != nil {
		return c.HandleError(ctx, err, "Failed to delete project")
	}
	c.labelCache.Delete(labelKey(id))
	return ctx.NoContent(http.StatusNoContent)
}
