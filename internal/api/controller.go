// Package api exposes the alert manager over HTTP.
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/vigil/internal/alerting"
	"github.com/tphakala/vigil/internal/errors"
	"github.com/tphakala/vigil/internal/logger"
	"github.com/tphakala/vigil/internal/notification"
)

const defaultCleanupDays = 7

// HistoryReader is the read side of the alert history.
type HistoryReader interface {
	GetRecentAlerts(limit int) []alerting.Alert
	GetAlertsByRule(ruleID string, limit int) []alerting.Alert
	GetStatistics() alerting.Statistics
	Clear()
}

// BrowserQueue holds browser push notifications.
type BrowserQueue interface {
	Pending() []notification.BrowserNotification
	Drain() []notification.BrowserNotification
}

// Controller owns the /api/v1 handlers.
type Controller struct {
	Group *echo.Group

	manager *alerting.Manager
	history HistoryReader
	browser BrowserQueue
	// cleanupDays is used when a cleanup request names no age.
	cleanupDays int
	log         logger.Logger
}

// ControllerOptions wires a Controller. History and Browser are optional.
type ControllerOptions struct {
	Manager     *alerting.Manager
	History     HistoryReader
	Browser     BrowserQueue
	CleanupDays int
	Logger      logger.Logger
}

// NewController registers all routes on group.
func NewController(group *echo.Group, opts ControllerOptions) *Controller {
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	if opts.CleanupDays <= 0 {
		opts.CleanupDays = defaultCleanupDays
	}
	c := &Controller{
		Group:       group,
		manager:     opts.Manager,
		history:     opts.History,
		browser:     opts.Browser,
		cleanupDays: opts.CleanupDays,
		log:         log.Module("api"),
	}
	c.initRuleRoutes()
	c.initAlertRoutes()
	c.initNotificationRoutes()
	return c
}

// HandleError logs err and writes message with code. Validation and
// configuration errors are reported as 400 regardless of code.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	if errors.IsCategory(err, errors.CategoryValidation) || errors.IsCategory(err, errors.CategoryConfiguration) {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	c.logErrorIfEnabled(message,
		logger.String("path", ctx.Path()),
		logger.Int("status", code),
		logger.Error(err))
	return ctx.JSON(code, map[string]string{"error": message})
}

func (c *Controller) logErrorIfEnabled(msg string, fields ...logger.Field) {
	if c.log != nil {
		c.log.Error(msg, fields...)
	}
}

func (c *Controller) logInfoIfEnabled(msg string, fields ...logger.Field) {
	if c.log != nil {
		c.log.Info(msg, fields...)
	}
}

func badRequest(ctx echo.Context, msg string) error {
	return ctx.JSON(http.StatusBadRequest, map[string]string{"error": msg})
}

func notFound(ctx echo.Context, msg string) error {
	return ctx.JSON(http.StatusNotFound, map[string]string{"error": msg})
}
