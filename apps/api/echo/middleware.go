package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/databayt/hogwarts-sub013/core/school"
	"github.com/databayt/hogwarts-sub013/core/user"
)

// authMiddleware loads the token's user into the context. It runs after the JWT middleware
// and rejects deactivated accounts and unavailable schools.
func authMiddleware(users *user.Service, schools *school.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx, users)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			if !usr.IsActive {
				return errAccountDeactivated
			}
			if err := checkSchool(ctx.Request().Context(), usr, schools); err != nil {
				return err
			}
			return next(ctx)
		}
	}
}

// portalMiddleware lets through tokens granting one of `portals` and, when roles are given, one of them.
func portalMiddleware(portals []string, roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if !claims.inPortal(portals...) || !claims.hasAnyRole(roles) {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}

func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return portalMiddleware([]string{portalAdmin}, roles...)
}

// financeMiddleware lets through the admins allowed to handle money.
func financeMiddleware() echo.MiddlewareFunc {
	return adminMiddleware(user.FinanceRoles...)
}

func staffMiddleware() echo.MiddlewareFunc {
	return portalMiddleware([]string{portalAdmin, portalTeacher})
}
