package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/databayt/hogwarts-sub013/core/student"
	exportsvc "github.com/databayt/hogwarts-sub013/services/export"
)

var errStdNotFoundInCtx = errors.New("student object not found in echo.Context")

type studentApi struct {
	svc *student.Service
}

func registerStudentAPI(g *echo.Group, jwt, auth echo.MiddlewareFunc, svc *student.Service) {
	api := studentApi{svc: svc}

	sg := g.Group("/students", jwt, auth)
	sg.GET("", api.query)
	sg.POST("", api.create, adminMiddleware())
	sg.DELETE("", api.destroyMultiple, adminMiddleware())
	sg.GET("/export", api.export, staffMiddleware())

	dg := sg.Group("/:id", studentObjectMiddleware(svc, "id"))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, adminMiddleware())
	dg.DELETE("", api.destroy, adminMiddleware())
}

func (api *studentApi) create(ctx echo.Context) error {
	var data student.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	std, err := api.svc.Create(ctx.Request().Context(), contextUser(ctx).SchoolID, data)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return created(ctx, std)
}

// query lists every student to staff; guardians and students only see their own.
func (api *studentApi) query(ctx echo.Context) error {
	students, err := api.list(ctx)
	if err != nil {
		return err
	}
	return ok(ctx, students)
}

func (api *studentApi) export(ctx echo.Context) error {
	students, err := api.list(ctx)
	if err != nil {
		return err
	}
	return sendExport(ctx, exportsvc.Table{
		Name:    "students",
		Headers: student.ExportHeaders,
		Rows:    student.ExportRows(students),
	})
}

func (api *studentApi) list(ctx echo.Context) ([]student.Student, error) {
	filter, err := bindStudentFilter(ctx)
	if err != nil {
		return nil, err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	usr := contextUser(ctx)
	if !usr.IsStaff() {
		switch {
		case usr.IsGuardian():
			filter.GuardianUserID = usr.ID
		case usr.IsStudent():
			filter.UserID = usr.ID
		default:
			return []student.Student{}, nil
		}
	}

	students, err := api.svc.Query(ctx.Request().Context(), usr.SchoolID, filter, ordering.Orderings)
	if err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []student.Student{}
	}
	return students, nil
}

func (api *studentApi) retrieve(ctx echo.Context) error {
	std, found := ctx.Get("student").(student.Student)
	if !found {
		return errors.Wrap(errStdNotFoundInCtx, "retrieving student from context")
	}
	return ok(ctx, std)
}

func (api *studentApi) update(ctx echo.Context) error {
	std, found := ctx.Get("student").(student.Student)
	if !found {
		return errors.Wrap(errStdNotFoundInCtx, "retrieving student from context")
	}

	var data student.UpdateStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudent")
	}
	if err := data.Validate(std); err != nil {
		return err
	}

	std, err := api.svc.Update(ctx.Request().Context(), std, data)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ok(ctx, std)
}

func (api *studentApi) destroy(ctx echo.Context) error {
	std, found := ctx.Get("student").(student.Student)
	if !found {
		return errors.Wrap(errStdNotFoundInCtx, "retrieving student from context")
	}
	if _, err := api.svc.Delete(ctx.Request().Context(), std.SchoolID, std.ID); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *studentApi) destroyMultiple(ctx echo.Context) error {
	ids := queryList(ctx, "id")
	if len(ids) == 0 {
		return ctx.NoContent(http.StatusNoContent)
	}
	if _, err := api.svc.Delete(ctx.Request().Context(), contextUser(ctx).SchoolID, ids...); err != nil {
		return errors.Wrap(err, "deleting students")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// studentObjectMiddleware loads the student of path param `param` into the context as "student".
// Guardians and students may only reach their own.
func studentObjectMiddleware(svc *student.Service, param string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr := contextUser(ctx)
			std, err := svc.GetByID(ctx.Request().Context(), usr.SchoolID, ctx.Param(param))
			if err != nil {
				if errors.Is(err, student.ErrNotFound) {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding student by ID")
			}
			if !canAccessStudent(usr, std) {
				return errHttpForbidden
			}
			ctx.Set("student", std)
			return next(ctx)
		}
	}
}
