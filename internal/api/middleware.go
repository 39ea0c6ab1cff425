package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// CORS is unchanged from the teacher: a permissive, development-shaped
// CORS policy. Ambient scaffolding, not a spec concern.
func CORS(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set("Access-Control-Allow-Origin", "*")
		c.Response().Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Response().Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if c.Request().Method == http.MethodOptions {
			return c.NoContent(http.StatusOK)
		}
		return next(c)
	}
}

// authMiddleware requires a non-empty bearer token. Unchanged from the
// teacher's own placeholder: no JWT validation, just presence — ambient
// auth scaffolding, not a spec concern.
func (a *API) authMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if c.Request().Header.Get("Authorization") == "" {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing token"})
		}
		return next(c)
	}
}
