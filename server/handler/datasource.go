// SPDX-License-Identifier: MPL-2.0

package handler

import (
	"log/slog"
	"net/http"

	"facet/server/core"
	"facet/server/driver"

	"github.com/labstack/echo/v4"
)

func ListDataSources(app *core.App) echo.HandlerFunc {
	return func(c echo.Context) error {
		result, err := core.ListDataSources(app, c.Request().Context())
		if err != nil {
			c.Logger().Error("error listing data sources:", slog.Any("error", err))
			return c.JSONPretty(http.StatusBadRequest, struct {
				Error string `json:"error"`
			}{Error: err.Error()}, "  ")
		}
		// DSNs hold credentials and never leave the server.
		for i := range result.DataSources {
			result.DataSources[i].DSN = ""
		}
		return c.JSON(http.StatusOK, result)
	}
}

func SaveDataSource(app *core.App) echo.HandlerFunc {
	return func(c echo.Context) error {
		var request driver.DataSource
		if err := c.Bind(&request); err != nil {
			return c.JSONPretty(http.StatusBadRequest, struct {
				Error string `json:"error"`
			}{Error: "Invalid request"}, "  ")
		}

		id, err := core.SaveDataSource(app, c.Request().Context(), request)
		if err != nil {
			c.Logger().Error("error saving data source:", slog.Any("error", err))
			return c.JSONPretty(http.StatusBadRequest, struct {
				Error string `json:"error"`
			}{Error: err.Error()}, "  ")
		}
		return c.JSONPretty(http.StatusCreated, struct {
			ID string `json:"id"`
		}{ID: id}, "  ")
	}
}

func DeleteDataSource(app *core.App) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := core.DeleteDataSource(app, c.Request().Context(), c.Param("id"))
		if err != nil {
			c.Logger().Error("error deleting data source:", slog.Any("error", err))
			return c.JSONPretty(http.StatusBadRequest, struct {
				Error string `json:"error"`
			}{Error: err.Error()}, "  ")
		}
		return c.JSON(http.StatusOK, map[string]bool{"ok": true})
	}
}
