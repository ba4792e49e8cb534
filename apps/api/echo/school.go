package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/databayt/hogwarts-sub013/core/school"
	"github.com/databayt/hogwarts-sub013/core/user"
)

type schoolApi struct {
	svc *school.Service
}

func registerSchoolAPI(g *echo.Group, jwt, auth echo.MiddlewareFunc, svc *school.Service) {
	api := schoolApi{svc: svc}

	sg := g.Group("/school", jwt, auth)
	sg.GET("", api.retrieve)
	sg.PUT("", api.update, adminMiddleware(user.RoleAdminOwner, user.RoleAdminPrincipal))
}

// retrieve returns the school of the context user.
func (api *schoolApi) retrieve(ctx echo.Context) error {
	sch, err := api.svc.GetByID(ctx.Request().Context(), contextUser(ctx).SchoolID)
	if err != nil {
		return errors.Wrap(err, "finding school by ID")
	}
	return ok(ctx, sch)
}

func (api *schoolApi) update(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	sch, err := api.svc.GetByID(reqCtx, contextUser(ctx).SchoolID)
	if err != nil {
		return errors.Wrap(err, "finding school by ID")
	}

	var data school.UpdateSchool
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSchool")
	}
	// schools are (de)activated from the admin CLI only
	if data.IsActive != nil {
		return errHttpForbidden
	}
	if err := data.Validate(sch); err != nil {
		return err
	}

	sch, err = api.svc.Update(reqCtx, sch, data)
	if err != nil {
		return errors.Wrap(err, "updating school")
	}
	return ok(ctx, sch)
}
