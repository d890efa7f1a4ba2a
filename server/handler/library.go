// SPDX-License-Identifier: MPL-2.0

package handler

import (
	"log/slog"
	"net/http"

	"facet/server/core"

	"github.com/labstack/echo/v4"
)

func GetLibrary(app *core.App) echo.HandlerFunc {
	return func(c echo.Context) error {
		lib, err := core.GetLibrary(app, c.Request().Context())
		if err != nil {
			c.Logger().Error("error getting library:", slog.Any("error", err))
			return c.JSONPretty(http.StatusBadRequest, struct {
				Error string `json:"error"`
			}{Error: err.Error()}, "  ")
		}
		return c.JSON(http.StatusOK, lib)
	}
}

func SaveLibrary(app *core.App) echo.HandlerFunc {
	return func(c echo.Context) error {
		var request struct {
			Source string `json:"source"`
		}
		if err := c.Bind(&request); err != nil {
			return c.JSONPretty(http.StatusBadRequest, struct {
				Error string `json:"error"`
			}{Error: "Invalid request"}, "  ")
		}

		err := core.SaveLibrary(app, c.Request().Context(), request.Source)
		if err != nil {
			c.Logger().Error("error saving library:", slog.Any("error", err))
			return c.JSONPretty(http.StatusBadRequest, struct {
				Error string `json:"error"`
			}{Error: err.Error()}, "  ")
		}
		return c.JSON(http.StatusOK, map[string]bool{"ok": true})
	}
}
