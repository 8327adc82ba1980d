package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/sirupsen/logrus"

	"github.com/affinitybots/triggerd/config"
	"github.com/affinitybots/triggerd/internal/dispatch"
	"github.com/affinitybots/triggerd/internal/history"
	"github.com/affinitybots/triggerd/internal/registry"
	"github.com/affinitybots/triggerd/internal/types"
	"github.com/affinitybots/triggerd/service"
	"github.com/affinitybots/triggerd/storage"
)

type Server struct {
	cfg         config.Config
	db          storage.DatabaseStorage
	registry    *registry.Service
	history     *history.Service
	dispatcher  *dispatch.Dispatcher
	authService *service.AuthService
	sdClient    *statsd.Client
	logger      *logrus.Logger
}

// NewServer returns a new server.
func NewServer(cfg config.Config,
	db storage.DatabaseStorage,
	registryService *registry.Service,
	historyService *history.Service,
	dispatcher *dispatch.Dispatcher,
	sdClient *statsd.Client) *Server {
	logger := logrus.WithField("service", "api").Logger

	return &Server{
		cfg:         cfg,
		db:          db,
		registry:    registryService,
		history:     historyService,
		dispatcher:  dispatcher,
		authService: service.NewAuthService(cfg.Server.JwtSecret),
		sdClient:    sdClient,
		logger:      logger,
	}
}

func (s *Server) StartServer() error {
	e := echo.New()
	e.Logger.SetLevel(log.INFO)
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("2M")) // set maximum allowed size for a request body to 2M
	e.Use(s.statsdMiddleware)
	e.Use(middleware.CORS())
	limiterStore := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{Rate: 5, Burst: 30, ExpiresIn: 5 * time.Minute},
	)
	e.Use(middleware.RateLimiter(limiterStore))

	e.GET("/ping", s.Ping)

	grp := e.Group("/workflows/:workflowId/triggers/:triggerId", s.userAuthMiddleware)
	grp.POST("/schedule", s.RegisterSchedule)
	grp.GET("/schedule", s.GetScheduleStatus)
	grp.POST("/schedule/pause", s.PauseSchedule)
	grp.POST("/schedule/resume", s.ResumeSchedule)
	grp.GET("/executions", s.GetExecutionHistory)
	grp.GET("/executions/last", s.GetLastExecution)
	grp.POST("/run", s.RunTrigger)

	// Webhook and integration routes authenticate by trigger secret, not JWT.
	e.POST("/webhooks/:workflowId/:triggerId", s.DispatchWebhook)
	e.POST("/integrations/events", s.DispatchIntegrationEvent)

	return e.Start(fmt.Sprintf(":%d", s.cfg.Server.Port))
}

func (s *Server) Ping(c echo.Context) error {
	return c.String(http.StatusOK, "triggerd is running")
}

// authorizeWorkflow verifies the authenticated user owns the workflow. A
// workflow owned by someone else reads as not found on purpose.
func (s *Server) authorizeWorkflow(c echo.Context, workflowID string) (*types.Workflow, error) {
	userID, _ := c.Get("user_id").(string)
	wf, err := s.db.GetWorkflow(c.Request().Context(), workflowID)
	if err != nil {
		return nil, err
	}
	if wf.OwnerID != userID {
		return nil, fmt.Errorf("%w: workflow %s", types.ErrNotFound, workflowID)
	}
	return wf, nil
}

func (s *Server) RegisterSchedule(c echo.Context) error {
	workflowID := c.Param("workflowId")
	triggerID := c.Param("triggerId")

	if _, err := s.authorizeWorkflow(c, workflowID); err != nil {
		return s.httpError(err)
	}

	var req types.RegisterScheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "fail to parse request")
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	err := s.registry.Register(c.Request().Context(), registry.RegisterParams{
		TriggerID:      triggerID,
		WorkflowID:     workflowID,
		CronExpression: req.CronExpression,
		Timezone:       req.Timezone,
		Enabled:        enabled,
	})
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"trigger_id": triggerID, "enabled": enabled})
}

func (s *Server) GetScheduleStatus(c echo.Context) error {
	if _, err := s.authorizeWorkflow(c, c.Param("workflowId")); err != nil {
		return s.httpError(err)
	}
	status, err := s.registry.Status(c.Request().Context(), c.Param("triggerId"))
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, status)
}

func (s *Server) PauseSchedule(c echo.Context) error {
	if _, err := s.authorizeWorkflow(c, c.Param("workflowId")); err != nil {
		return s.httpError(err)
	}
	triggerID := c.Param("triggerId")
	if err := s.registry.Pause(c.Request().Context(), triggerID); err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"trigger_id": triggerID, "paused": true})
}

func (s *Server) ResumeSchedule(c echo.Context) error {
	if _, err := s.authorizeWorkflow(c, c.Param("workflowId")); err != nil {
		return s.httpError(err)
	}
	triggerID := c.Param("triggerId")
	if err := s.registry.Resume(c.Request().Context(), triggerID); err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"trigger_id": triggerID, "paused": false})
}

func (s *Server) GetExecutionHistory(c echo.Context) error {
	if _, err := s.authorizeWorkflow(c, c.Param("workflowId")); err != nil {
		return s.httpError(err)
	}
	triggerID := c.Param("triggerId")

	limit := 50
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = parsed
	}

	executions, stats, err := s.history.History(c.Request().Context(), triggerID, limit)
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"executions": executions,
		"stats":      stats,
	})
}

func (s *Server) GetLastExecution(c echo.Context) error {
	if _, err := s.authorizeWorkflow(c, c.Param("workflowId")); err != nil {
		return s.httpError(err)
	}
	execution, err := s.history.LastExecution(c.Request().Context(), c.Param("triggerId"))
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, execution)
}

func (s *Server) RunTrigger(c echo.Context) error {
	workflowID := c.Param("workflowId")
	if _, err := s.authorizeWorkflow(c, workflowID); err != nil {
		return s.httpError(err)
	}

	var payload map[string]interface{}
	if err := c.Bind(&payload); err != nil && err != echo.ErrUnsupportedMediaType {
		return echo.NewHTTPError(http.StatusBadRequest, "fail to parse payload")
	}

	result, err := s.dispatcher.RunManual(c.Request().Context(), workflowID, c.Param("triggerId"), payload)
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) DispatchWebhook(c echo.Context) error {
	workflowID := c.Param("workflowId")
	triggerID := c.Param("triggerId")

	// The secret may come in a query parameter or a header; either match
	// is accepted.
	secrets := []string{
		c.QueryParam("secret"),
		c.Request().Header.Get("X-Webhook-Secret"),
	}

	var payload map[string]interface{}
	if err := c.Bind(&payload); err != nil && err != echo.ErrUnsupportedMediaType {
		return echo.NewHTTPError(http.StatusBadRequest, "fail to parse payload")
	}

	result, err := s.dispatcher.DispatchWebhook(c.Request().Context(), workflowID, triggerID, secrets, payload)
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) DispatchIntegrationEvent(c echo.Context) error {
	var event types.IntegrationEvent
	if err := c.Bind(&event); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "fail to parse event")
	}
	if event.Provider == "" || event.Event == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "provider and event are required")
	}

	dispatched, err := s.dispatcher.DispatchIntegrationEvent(c.Request().Context(), event)
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"dispatched": dispatched})
}

func (s *Server) httpError(err error) error {
	switch {
	case errors.Is(err, types.ErrInvalidSchedule), errors.Is(err, types.ErrTriggerTypeMismatch):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, types.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, types.ErrUnauthorized):
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	default:
		s.logger.Errorf("internal error, err: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
