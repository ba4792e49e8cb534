package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/databayt/hogwarts-sub013/core/dashboard"
)

func registerDashboardAPI(g *echo.Group, jwt, auth echo.MiddlewareFunc, svc *dashboard.Service) {
	g.GET("/dashboard", func(ctx echo.Context) error {
		ov, err := svc.Overview(ctx.Request().Context(), contextUser(ctx).SchoolID)
		if err != nil {
			return errors.Wrap(err, "computing dashboard overview")
		}
		return ok(ctx, ov)
	}, jwt, auth, adminMiddleware())
}
