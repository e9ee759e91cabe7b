// Package api serves the reference annotation store over HTTP with echo.
// Routes mirror the store the annotation workspace talks to.
package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/patrickmn/go-cache"

	"github.com/tphakala/audio-annotator/internal/annotation"
	"github.com/tphakala/audio-annotator/internal/conf"
	"github.com/tphakala/audio-annotator/internal/datastore"
	"github.com/tphakala/audio-annotator/internal/errors"
	"github.com/tphakala/audio-annotator/internal/events"
	"github.com/tphakala/audio-annotator/internal/logger"
)

const (
	labelCacheTTL     = 5 * time.Minute
	labelCacheCleanup = 10 * time.Minute
	bodyLimit         = "2M"
)

// Store is the persistence the API needs
type Store interface {
	CreateProject(ctx context.Context, in datastore.ProjectInput) (annotation.Project, []annotation.Task, error)
	Projects(ctx context.Context) ([]annotation.Project, error)
	Project(ctx context.Context, id annotation.ID) (annotation.Project, error)
	DeleteProject(ctx context.Context, id annotation.ID) error
	ProjectLabels(ctx context.Context, projectID annotation.ID) ([]annotation.Label, error)
	Task(ctx context.Context, id annotation.ID) (annotation.Task, error)
	Tasks(ctx context.Context, status annotation.Status) ([]annotation.Task, error)
	Annotations(ctx context.Context, taskID annotation.ID) ([]annotation.Persisted, error)
	SaveAnnotations(ctx context.Context, id annotation.ID, req annotation.SaveRequest) error
	DeleteAnnotation(ctx context.Context, id annotation.ID) error
}

// Publisher receives store events, usually the event bus
type Publisher interface {
	TryPublish(events.Event) bool
}

// Controller owns the routes and their dependencies
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	Store    Store
	Settings *conf.WebServerSettings

	labelCache *cache.Cache
	publisher  Publisher
	log        logger.Logger
}

// Option customizes a Controller
type Option func(*Controller)

// WithPublisher forwards save events to p
func WithPublisher(p Publisher) Option {
	return func(c *Controller) { c.publisher = p }
}

// ErrorResponse is the error body of every failed request
type ErrorResponse struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// New registers the store routes under /api on e
func New(e *echo.Echo, store Store, settings *conf.WebServerSettings, opts ...Option) (*Controller, error) {
	if store == nil {
		return nil, errors.Newf("api requires a store").
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if settings == nil {
		settings = &conf.WebServerSettings{}
	}

	c := &Controller{
		Echo:       e,
		Group:      e.Group("/api"),
		Store:      store,
		Settings:   settings,
		labelCache: cache.New(labelCacheTTL, labelCacheCleanup),
		log:        logger.Global().Module("api"),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.Group.Use(middleware.Recover())
	c.Group.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	c.Group.Use(middleware.CORS())
	c.Group.Use(middleware.BodyLimit(bodyLimit))
	c.Group.Use(c.loggingMiddleware)

	c.initRoutes()
	return c, nil
}

func (c *Controller) initRoutes() {
	c.Group.GET("/projects/", c.ListProjects)
	c.Group.POST("/projects/create/", c.CreateProject)
	c.Group.GET("/projects/:id/", c.GetProject)
	c.Group.DELETE("/projects/delete/:id/", c.DeleteProject)

	c.Group.GET("/tasks/", c.ListTasks)
	c.Group.GET("/task/:id/", c.GetTask)
	c.Group.GET("/tasks/:id/annotations/", c.GetAnnotations)
	c.Group.POST("/tasks/:id/save_annotations/", c.SaveAnnotations)

	c.Group.DELETE("/annotations/:id/", c.DeleteAnnotation)
}

func (c *Controller) loggingMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		start := time.Now()
		err := next(ctx)
		if !c.Settings.Debug {
			return err
		}
		req := ctx.Request()
		c.log.Debug("api request",
			logger.String("method", req.Method),
			logger.String("path", req.URL.Path),
			logger.Int("status", ctx.Response().Status),
			logger.Duration("duration", time.Since(start)),
			logger.String("request_id", ctx.Response().Header().Get(echo.HeaderXRequestID)))
		return err
	}
}

// HandleError writes err as an ErrorResponse with a status derived from its category
func (c *Controller) HandleError(ctx echo.Context, err error, message string) error {
	code := statusFor(err)
	correlationID := ctx.Response().Header().Get(echo.HeaderXRequestID)

	text := message
	var ee *errors.EnhancedError
	if errors.As(err, &ee) && code < http.StatusInternalServerError {
		text = ee.Err.Error()
	}

	fields := []logger.Field{
		logger.String("correlation_id", correlationID),
		logger.String("path", ctx.Request().URL.Path),
		logger.Int("status", code),
		logger.Error(err),
	}
	if code >= http.StatusInternalServerError {
		c.log.Error(message, fields...)
	} else {
		c.log.Debug(message, fields...)
	}

	return ctx.JSON(code, ErrorResponse{Error: text, CorrelationID: correlationID})
}

func statusFor(err error) int {
	switch {
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.IsCategory(err, errors.CategoryValidation):
		return http.StatusBadRequest
	case errors.IsCategory(err, errors.CategoryConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// pathID parses the :id route parameter
func pathID(ctx echo.Context) (annotation.ID, error) {
	raw := ctx.Param("id")
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Newf("invalid id %q", raw).
			Component("api").
			Category(errors.CategoryValidation).
			Build()
	}
	return annotation.ID(id), nil
}

// labels returns the taxonomy of a project, cached until the project changes
func (c *Controller) labels(ctx context.Context, projectID annotation.ID) ([]annotation.Label, error) {
	key := labelKey(projectID)
	if cached, ok := c.labelCache.Get(key); ok {
		if labels, ok := cached.([]annotation.Label); ok {
			return labels, nil
		}
	}
	labels, err := c.Store.ProjectLabels(ctx, projectID)
	if err != nil {
		return nil, err
	}
	c.labelCache.SetDefault(key, labels)
	return labels, nil
}

func labelKey(projectID annotation.ID) string {
	return "labels:" + strconv.FormatInt(int64(projectID), 10)
}
