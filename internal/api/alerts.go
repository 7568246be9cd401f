package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/vigil/internal/alerting"
	"github.com/tphakala/vigil/internal/logger"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

func (c *Controller) initAlertRoutes() {
	alerts := c.Group.Group("/alerts")
	alerts.GET("/schema", c.GetAlertSchema)
	alerts.GET("/active", c.ListActiveAlerts)
	alerts.GET("/history", c.ListAlertHistory)
	alerts.DELETE("/history", c.ClearAlertHistory)
	alerts.GET("/statistics", c.GetAlertStatistics)
	alerts.POST("/cleanup", c.CleanupAlerts)
	alerts.GET("/:id", c.GetAlert)
	alerts.POST("/:id/acknowledge", c.AcknowledgeAlert)
	alerts.POST("/:id/resolve", c.ResolveAlert)
	alerts.POST("/:id/snooze", c.SnoozeAlert)
}

// GetAlertSchema describes operators, severities, types and channels.
func (c *Controller) GetAlertSchema(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, alerting.GetSchema())
}

// ListActiveAlerts returns alerts that still need attention, newest first.
func (c *Controller) ListActiveAlerts(ctx echo.Context) error {
	active := c.manager.GetActiveAlerts()
	return ctx.JSON(http.StatusOK, map[string]any{
		"alerts": active,
		"count":  len(active),
	})
}

// GetAlert returns one alert from the active table.
func (c *Controller) GetAlert(ctx echo.Context) error {
	alert, ok := c.manager.GetAlert(ctx.Param("id"))
	if !ok {
		return notFound(ctx, "Alert not found")
	}
	return ctx.JSON(http.StatusOK, alert)
}

type transitionRequest struct {
	Actor string `json:"actor"`
	Notes string `json:"notes"`
}

// AcknowledgeAlert marks an alert as acknowledged.
func (c *Controller) AcknowledgeAlert(ctx echo.Context) error {
	return c.transition(ctx, "acknowledge", c.manager.AcknowledgeAlert)
}

// ResolveAlert marks an alert as resolved.
func (c *Controller) ResolveAlert(ctx echo.Context) error {
	return c.transition(ctx, "resolve", c.manager.ResolveAlert)
}

func (c *Controller) transition(ctx echo.Context, action string, apply func(id, actor, notes string) bool) error {
	id := ctx.Param("id")
	if _, ok := c.manager.GetAlert(id); !ok {
		return notFound(ctx, "Alert not found")
	}

	var body transitionRequest
	if err := decodeJSON(ctx, &body); err != nil {
		return badRequest(ctx, "Invalid request body")
	}
	if body.Actor == "" {
		body.Actor = "api"
	}
	if !apply(id, body.Actor, body.Notes) {
		return ctx.JSON(http.StatusConflict, map[string]string{"error": "Alert cannot be " + pastTense(action) + " in its current state"})
	}

	c.logInfoIfEnabled("alert "+pastTense(action),
		logger.String("alert_id", id),
		logger.String("actor", body.Actor))

	alert, _ := c.manager.GetAlert(id)
	return ctx.JSON(http.StatusOK, alert)
}

func pastTense(action string) string {
	switch action {
	case "acknowledge":
		return "acknowledged"
	case "resolve":
		return "resolved"
	default:
		return action + "ed"
	}
}

// SnoozeAlert silences an alert for {"minutes": n}.
func (c *Controller) SnoozeAlert(ctx echo.Context) error {
	id := ctx.Param("id")
	if _, ok := c.manager.GetAlert(id); !ok {
		return notFound(ctx, "Alert not found")
	}

	var body struct {
		Minutes int `json:"minutes"`
	}
	if err := decodeJSON(ctx, &body); err != nil {
		return badRequest(ctx, "Invalid request body")
	}
	if body.Minutes <= 0 {
		return badRequest(ctx, "minutes must be positive")
	}
	if !c.manager.SnoozeAlert(id, body.Minutes) {
		return ctx.JSON(http.StatusConflict, map[string]string{"error": "Alert cannot be snoozed in its current state"})
	}

	alert, _ := c.manager.GetAlert(id)
	return ctx.JSON(http.StatusOK, alert)
}

// ListAlertHistory returns fired alerts, newest first. ?limit defaults to 50
// and is capped at 200; ?rule_id filters by rule.
func (c *Controller) ListAlertHistory(ctx echo.Context) error {
	if c.history == nil {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Alert history is not enabled"})
	}

	limit := defaultHistoryLimit
	if limitParam := ctx.QueryParam("limit"); limitParam != "" {
		v, err := strconv.Atoi(limitParam)
		if err != nil || v <= 0 {
			return badRequest(ctx, "Invalid limit")
		}
		limit = min(v, maxHistoryLimit)
	}

	var items []alerting.Alert
	if ruleID := ctx.QueryParam("rule_id"); ruleID != "" {
		items = c.history.GetAlertsByRule(ruleID, limit)
	} else {
		items = c.history.GetRecentAlerts(limit)
	}
	if items == nil {
		items = []alerting.Alert{}
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"history": items,
		"count":   len(items),
		"limit":   limit,
	})
}

// ClearAlertHistory drops the history log and its counters.
func (c *Controller) ClearAlertHistory(ctx echo.Context) error {
	if c.history == nil {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Alert history is not enabled"})
	}
	c.history.Clear()
	c.logInfoIfEnabled("alert history cleared")
	return ctx.NoContent(http.StatusNoContent)
}

// GetAlertStatistics returns lifetime counters plus live manager state.
func (c *Controller) GetAlertStatistics(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.manager.GetAlertStatistics())
}

// CleanupAlerts removes resolved alerts older than ?days (or the configured
// default) from the active table.
func (c *Controller) CleanupAlerts(ctx echo.Context) error {
	days := c.cleanupDays
	if daysParam := ctx.QueryParam("days"); daysParam != "" {
		v, err := strconv.Atoi(daysParam)
		if err != nil || v <= 0 {
			return badRequest(ctx, "Invalid days")
		}
		days = v
	}
	removed := c.manager.CleanupOldAlerts(days)
	return ctx.JSON(http.StatusOK, map[string]any{"removed": removed, "days": days})
}
