package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/vigil/internal/alerting"
	"github.com/tphakala/vigil/internal/logger"
)

func (c *Controller) initRuleRoutes() {
	rules := c.Group.Group("/rules")
	rules.GET("", c.ListRules)
	rules.POST("", c.CreateRule)
	rules.GET("/:id", c.GetRule)
	rules.PUT("/:id", c.UpdateRule)
	rules.DELETE("/:id", c.DeleteRule)
	rules.PATCH("/:id/toggle", c.ToggleRule)
	rules.POST("/:id/test", c.TestRule)

	c.Group.POST("/check", c.CheckSnapshot)
}

// ListRules returns all rules in evaluation order. ?enabled=true|false and
// ?tag=x filter the list.
func (c *Controller) ListRules(ctx echo.Context) error {
	rules := c.manager.GetRules()

	enabled := ctx.QueryParam("enabled")
	tag := ctx.QueryParam("tag")
	if enabled != "" || tag != "" {
		filtered := rules[:0]
		for i := range rules {
			if enabled != "" && rules[i].Enabled != (enabled == "true") {
				continue
			}
			if tag != "" && !rules[i].HasTag(tag) {
				continue
			}
			filtered = append(filtered, rules[i])
		}
		rules = filtered
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"rules": rules,
		"count": len(rules),
	})
}

// GetRule returns a single rule.
func (c *Controller) GetRule(ctx echo.Context) error {
	rule, ok := c.manager.GetRule(ctx.Param("id"))
	if !ok {
		return notFound(ctx, "Alert rule not found")
	}
	return ctx.JSON(http.StatusOK, rule)
}

// CreateRule validates and registers a rule.
func (c *Controller) CreateRule(ctx echo.Context) error {
	var cfg alerting.RuleConfig
	if err := decodeJSON(ctx, &cfg); err != nil {
		return badRequest(ctx, "Invalid request body")
	}
	rule, err := alerting.ParseRule(cfg)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid alert rule", http.StatusBadRequest)
	}
	if !c.manager.AddRule(rule) {
		return ctx.JSON(http.StatusConflict, map[string]string{"error": "A rule with this ID already exists"})
	}

	c.logInfoIfEnabled("alert rule created",
		logger.String("rule_id", rule.ID),
		logger.String("name", rule.Name))

	created, _ := c.manager.GetRule(rule.ID)
	return ctx.JSON(http.StatusCreated, created)
}

// UpdateRule replaces a rule. The ID in the path wins over the body.
func (c *Controller) UpdateRule(ctx echo.Context) error {
	id := ctx.Param("id")
	if _, ok := c.manager.GetRule(id); !ok {
		return notFound(ctx, "Alert rule not found")
	}

	var cfg alerting.RuleConfig
	if err := decodeJSON(ctx, &cfg); err != nil {
		return badRequest(ctx, "Invalid request body")
	}
	cfg.ID = id
	rule, err := alerting.ParseRule(cfg)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid alert rule", http.StatusBadRequest)
	}
	if !c.manager.UpdateRule(rule) {
		return notFound(ctx, "Alert rule not found")
	}

	updated, _ := c.manager.GetRule(id)
	return ctx.JSON(http.StatusOK, updated)
}

// DeleteRule removes a rule.
func (c *Controller) DeleteRule(ctx echo.Context) error {
	if !c.manager.RemoveRule(ctx.Param("id")) {
		return notFound(ctx, "Alert rule not found")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// ToggleRule sets the enabled flag from {"enabled": bool}, or flips it when
// the body is empty.
func (c *Controller) ToggleRule(ctx echo.Context) error {
	id := ctx.Param("id")
	rule, ok := c.manager.GetRule(id)
	if !ok {
		return notFound(ctx, "Alert rule not found")
	}

	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := decodeJSON(ctx, &body); err != nil {
		return badRequest(ctx, "Invalid request body")
	}
	enabled := !rule.Enabled
	if body.Enabled != nil {
		enabled = *body.Enabled
	}

	if enabled {
		ok = c.manager.EnableRule(id)
	} else {
		ok = c.manager.DisableRule(id)
	}
	if !ok {
		return notFound(ctx, "Alert rule not found")
	}
	return ctx.JSON(http.StatusOK, map[string]any{"id": id, "enabled": enabled})
}

// TestRule fires a rule immediately, bypassing conditions and throttling.
func (c *Controller) TestRule(ctx echo.Context) error {
	alert, ok := c.manager.TestFireRule(ctx.Param("id"))
	if !ok {
		return notFound(ctx, "Alert rule not found")
	}
	return ctx.JSON(http.StatusOK, alert)
}

type checkRequest struct {
	Snapshot alerting.Snapshot   `json:"snapshot"`
	History  []alerting.Snapshot `json:"history,omitempty"`
}

// CheckSnapshot evaluates a snapshot pushed by a client. The body is either
// {"snapshot": {...}, "history": [...]} or a bare snapshot object.
func (c *Controller) CheckSnapshot(ctx echo.Context) error {
	var raw map[string]any
	if err := decodeJSON(ctx, &raw); err != nil || raw == nil {
		return badRequest(ctx, "Invalid request body")
	}

	req := checkRequest{Snapshot: raw}
	if snap, ok := raw["snapshot"].(map[string]any); ok {
		req.Snapshot = snap
		if hist, ok := raw["history"].([]any); ok {
			for _, h := range hist {
				if m, ok := h.(map[string]any); ok {
					req.History = append(req.History, m)
				}
			}
		}
	}

	fired := c.manager.CheckAlerts(req.Snapshot, req.History)
	if fired == nil {
		fired = []*alerting.Alert{}
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"alerts": fired,
		"count":  len(fired),
	})
}

func isJSONBody(ctx echo.Context) bool {
	ct := ctx.Request().Header.Get(echo.HeaderContentType)
	return ct == "" || strings.HasPrefix(ct, echo.MIMEApplicationJSON)
}
