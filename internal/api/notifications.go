package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/tphakala/vigil/internal/notification"
)

const (
	browserPollRate  = 2 // requests per second per client
	browserPollBurst = 10
)

func (c *Controller) initNotificationRoutes() {
	limiter := middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(browserPollRate),
				Burst:     browserPollBurst,
				ExpiresIn: 5 * time.Minute,
			},
		),
		IdentifierExtractor: func(ctx echo.Context) (string, error) {
			return ctx.RealIP(), nil
		},
		ErrorHandler: func(ctx echo.Context, err error) error {
			return ctx.JSON(http.StatusForbidden, map[string]string{"error": "Unable to identify client"})
		},
		DenyHandler: func(ctx echo.Context, identifier string, err error) error {
			return ctx.JSON(http.StatusTooManyRequests, map[string]string{"error": "Too many requests"})
		},
	})
	c.Group.GET("/notifications/browser", c.GetBrowserNotifications, limiter)
}

// GetBrowserNotifications drains queued browser pushes. ?peek=true returns
// them without removing.
func (c *Controller) GetBrowserNotifications(ctx echo.Context) error {
	if c.browser == nil {
		return ctx.JSON(http.StatusOK, map[string]any{"notifications": []notification.BrowserNotification{}, "count": 0})
	}

	var items []notification.BrowserNotification
	if ctx.QueryParam("peek") == "true" {
		items = c.browser.Pending()
	} else {
		items = c.browser.Drain()
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"notifications": items,
		"count":         len(items),
	})
}
