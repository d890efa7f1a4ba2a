// SPDX-License-Identifier: MPL-2.0

package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"facet/server/core"

	"github.com/labstack/echo/v4"
)

// Login trades the shared install token for a JWT. The token lands in a
// cookie for the frontend and is also returned in the body for API clients
// that prefer the Authorization header. Name becomes the JWT subject and the
// owner fixed variable.
func Login(app *core.App) echo.HandlerFunc {
	return func(c echo.Context) error {
		var loginRequest struct {
			Token string `json:"token"`
			Name  string `json:"name"`
		}
		if err := c.Bind(&loginRequest); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		}
		if !core.ValidLogin(app, loginRequest.Token) {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid token"})
		}
		owner := strings.TrimSpace(loginRequest.Name)
		if owner == "" {
			owner = "anonymous"
		}
		jwtToken, err := core.CreateJWT(app, owner)
		if err != nil {
			app.Logger.Error("Failed to sign token", slog.Any("error", err))
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to sign token"})
		}

		cookie := new(http.Cookie)
		cookie.Name = "facet-token"
		cookie.Value = jwtToken
		cookie.Expires = time.Now().Add(app.JWTExp)
		cookie.HttpOnly = true
		cookie.Secure = true // Use this in production with HTTPS
		cookie.SameSite = http.SameSiteStrictMode
		cookie.Path = "/api"
		c.SetCookie(cookie)

		return c.JSON(http.StatusOK, map[string]string{"jwt": jwtToken})
	}
}
