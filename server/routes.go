// SPDX-License-Identifier: MPL-2.0

package server

import (
	"fmt"
	"net/http"

	"facet/server/core"
	"facet/server/handler"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo-contrib/echoprometheus"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
)

// DepartmentHeader scopes a request to an org unit. The value is exposed to
// queries and scripts as the fixed department variable.
const DepartmentHeader = "X-Facet-Department"

func routes(e *echo.Echo, app *core.App, s3 core.S3Config) {
	apiWithAuth := e.Group("/api",
		echojwt.WithConfig(echojwt.Config{
			TokenLookup: "cookie:facet-token,header:Authorization",
			KeyFunc:     GetJWTKeyfunc(app),
		}),
		SetActor(app),
	)

	e.HEAD("/", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	e.GET("/health", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	e.GET("/metrics", echoprometheus.NewHandler())

	e.POST("/api/login", handler.Login(app))

	apiWithAuth.GET("/dashboards", handler.ListDashboards(app))
	apiWithAuth.POST("/dashboards", handler.CreateDashboard(app))
	apiWithAuth.GET("/dashboards/:id", handler.GetDashboard(app))
	apiWithAuth.POST("/dashboards/:id/name", handler.RenameDashboard(app))
	apiWithAuth.DELETE("/dashboards/:id", handler.DeleteDashboard(app))

	apiWithAuth.POST("/cards", handler.SaveCard(app))
	apiWithAuth.GET("/cards/:id", handler.GetCard(app))
	apiWithAuth.DELETE("/cards/:id", handler.DeleteCard(app))
	apiWithAuth.POST("/cards/:id/column-types", handler.SaveCardColumnTypes(app))
	apiWithAuth.GET("/cards/:id/run", handler.RunCard(app))
	apiWithAuth.GET("/cards/:id/download/:filename", handler.DownloadCard(app))
	apiWithAuth.POST("/cards/:id/upload", handler.UploadCard(app, s3))

	apiWithAuth.POST("/variables", handler.SaveVariable(app))
	apiWithAuth.DELETE("/variables/:id", handler.DeleteVariable(app))

	apiWithAuth.GET("/sources", handler.ListDataSources(app))
	apiWithAuth.POST("/sources", handler.SaveDataSource(app))
	apiWithAuth.DELETE("/sources/:id", handler.DeleteDataSource(app))

	apiWithAuth.GET("/library", handler.GetLibrary(app))
	apiWithAuth.POST("/library", handler.SaveLibrary(app))
}

// SetActor derives who is calling from the JWT subject and the department
// header, and threads it through the request context for the fixed variables.
func SetActor(app *core.App) func(next echo.HandlerFunc) echo.HandlerFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims := c.Get("user").(*jwt.Token).Claims.(jwt.MapClaims)
			actor := core.Actor{
				Department: c.Request().Header.Get(DepartmentHeader),
			}
			if sub, ok := claims["sub"].(string); ok {
				actor.Owner = sub
			}
			ctx := core.WithActor(c.Request().Context(), actor)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// We overide the Keyfunc handler so we can send the JWT secret dynamically when it changes over time
func GetJWTKeyfunc(app *core.App) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != echojwt.AlgorithmHS256 {
			return nil, &echojwt.TokenError{Token: token, Err: fmt.Errorf("unexpected jwt signing method=%v", token.Header["alg"])}
		}
		return app.JWTSecret, nil
	}
}
