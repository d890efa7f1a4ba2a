// SPDX-License-Identifier: MPL-2.0

package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"facet/server/core"
	"facet/server/pipeline"
	"facet/server/util"

	"github.com/labstack/echo/v4"
)

func SaveCard(app *core.App) echo.HandlerFunc {
	return func(c echo.Context) error {
		var request core.Card
		if err := c.Bind(&request); err != nil {
			return c.JSONPretty(http.StatusBadRequest, struct {
				Error string `json:"error"`
			}{Error: "Invalid request"}, "  ")
		}

		id, err := core.SaveCard(app, c.Request().Context(), request)
		if err != nil {
			c.Logger().Error("error saving card:", slog.Any("error", err))
			return c.JSONPretty(http.StatusBadRequest, struct {
				Error string `json:"error"`
			}{Error: err.Error()}, "  ")
		}
		return c.JSONPretty(http.StatusCreated, struct {
			ID string `json:"id"`
		}{ID: id}, "  ")
	}
}

func GetCard(app *core.App) echo.HandlerFunc {
	return func(c echo.Context) error {
		card, err := core.GetCard(app, c.Request().Context(), c.Param("id"))
		if err != nil {
			c.Logger().Error("error getting card:", slog.Any("error", err))
			return c.JSONPretty(http.StatusNotFound, struct {
				Error string `json:"error"`
			}{Error: err.Error()}, "  ")
		}
		return c.JSON(http.StatusOK, card)
	}
}

func DeleteCard(app *core.App) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := core.DeleteCard(app, c.Request().Context(), c.Param("id"))
		if err != nil {
			c.Logger().Error("error deleting card:", slog.Any("error", err))
			return c.JSONPretty(http.StatusBadRequest, struct {
				Error string `json:"error"`
			}{Error: err.Error()}, "  ")
		}
		return c.JSON(http.StatusOK, map[string]bool{"ok": true})
	}
}

func SaveCardColumnTypes(app *core.App) echo.HandlerFunc {
	return func(c echo.Context) error {
		var request struct {
			ColumnTypes map[string]pipeline.ColumnType `json:"columnTypes"`
		}
		if err := c.Bind(&request); err != nil {
			return c.JSONPretty(http.StatusBadRequest, struct {
				Error string `json:"error"`
			}{Error: "Invalid request"}, "  ")
		}

		err := core.SaveCardColumnTypes(app, c.Request().Context(), c.Param("id"), request.ColumnTypes)
		if err != nil {
			c.Logger().Error("error saving column types:", slog.Any("error", err))
			return c.JSONPretty(http.StatusBadRequest, struct {
				Error string `json:"error"`
			}{Error: err.Error()}, "  ")
		}
		return c.JSON(http.StatusOK, map[string]bool{"ok": true})
	}
}

// RunCard executes the card pipeline. Every query parameter is treated as a
// variable override; values for unknown or expression variables are ignored.
func RunCard(app *core.App) echo.HandlerFunc {
	return func(c echo.Context) error {
		result, err := core.RunCard(app, c.Request().Context(), c.Param("id"), queryOverrides(c))
		if err != nil {
			c.Logger().Error("error running card:", slog.Any("error", err))
			return c.JSONPretty(http.StatusBadRequest, struct {
				Error string `json:"error"`
			}{Error: err.Error()}, "  ")
		}
		return c.JSON(http.StatusOK, result)
	}
}

// DownloadCard streams the card result as a file. The format comes from the
// requested filename's extension: .csv or .xlsx.
func DownloadCard(app *core.App) echo.HandlerFunc {
	return func(c echo.Context) error {
		filename := util.SanitizeFilename(c.Param("filename"))
		overrides := queryOverrides(c)
		ctx := c.Request().Context()

		switch {
		case strings.HasSuffix(filename, ".csv"):
			c.Response().Header().Set(echo.HeaderContentType, "text/csv")
			c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
			c.Response().WriteHeader(http.StatusOK)
			return core.ExportCardCSV(app, ctx, c.Param("id"), overrides, c.Response())
		case strings.HasSuffix(filename, ".xlsx"):
			c.Response().Header().Set(echo.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
			c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
			c.Response().WriteHeader(http.StatusOK)
			return core.ExportCardXLSX(app, ctx, c.Param("id"), overrides, c.Response())
		}
		return c.JSONPretty(http.StatusBadRequest, struct {
			Error string `json:"error"`
		}{Error: "filename must end in .csv or .xlsx"}, "  ")
	}
}

// UploadCard renders an export and pushes it to the configured S3 bucket.
func UploadCard(app *core.App, s3 core.S3Config) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s3.Endpoint == "" {
			return c.JSONPretty(http.StatusBadRequest, struct {
				Error string `json:"error"`
			}{Error: "S3 uploads are not configured"}, "  ")
		}
		var request struct {
			Format    string            `json:"format"`
			Overrides map[string]string `json:"overrides"`
		}
		if err := c.Bind(&request); err != nil {
			return c.JSONPretty(http.StatusBadRequest, struct {
				Error string `json:"error"`
			}{Error: "Invalid request"}, "  ")
		}

		key, err := core.UploadExport(app, c.Request().Context(), s3, c.Param("id"), request.Format, request.Overrides)
		if err != nil {
			c.Logger().Error("error uploading export:", slog.Any("error", err))
			return c.JSONPretty(http.StatusBadRequest, struct {
				Error string `json:"error"`
			}{Error: err.Error()}, "  ")
		}
		return c.JSON(http.StatusOK, map[string]string{"key": key})
	}
}

func queryOverrides(c echo.Context) map[string]string {
	overrides := map[string]string{}
	for name, values := range c.QueryParams() {
		if len(values) > 0 {
			overrides[name] = values[0]
		}
	}
	return overrides
}
