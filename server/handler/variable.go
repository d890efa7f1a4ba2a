// SPDX-License-Identifier: MPL-2.0

package handler

import (
	"log/slog"
	"net/http"

	"facet/server/core"
	"facet/server/pipeline"

	"github.com/labstack/echo/v4"
)

func SaveVariable(app *core.App) echo.HandlerFunc {
	return func(c echo.Context) error {
		var request struct {
			pipeline.Variable
			Position int `json:"position"`
		}
		if err := c.Bind(&request); err != nil {
			return c.JSONPretty(http.StatusBadRequest, struct {
				Error string `json:"error"`
			}{Error: "Invalid request"}, "  ")
		}

		id, err := core.SaveVariable(app, c.Request().Context(), request.Variable, request.Position)
		if err != nil {
			c.Logger().Error("error saving variable:", slog.Any("error", err))
			return c.JSONPretty(http.StatusBadRequest, struct {
				Error string `json:"error"`
			}{Error: err.Error()}, "  ")
		}
		return c.JSONPretty(http.StatusCreated, struct {
			ID string `json:"id"`
		}{ID: id}, "  ")
	}
}

func DeleteVariable(app *core.App) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := core.DeleteVariable(app, c.Request().Context(), c.Param("id"))
		if err != nil {
			c.Logger().Error("error deleting variable:", slog.Any("error", err))
			return c.JSONPretty(http.StatusBadRequest, struct {
				Error string `json:"error"`
			}{Error: err.Error()}, "  ")
		}
		return c.JSON(http.StatusOK, map[string]bool{"ok": true})
	}
}
