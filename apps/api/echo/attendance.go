package echoapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/databayt/hogwarts-sub013/core"
	"github.com/databayt/hogwarts-sub013/core/attendance"
	"github.com/databayt/hogwarts-sub013/core/student"
	exportsvc "github.com/databayt/hogwarts-sub013/services/export"
)

type attendanceApi struct {
	svc      *attendance.Service
	students *student.Service
}

func registerAttendanceAPI(g *echo.Group, jwt, auth echo.MiddlewareFunc, svc *attendance.Service, students *student.Service) {
	api := attendanceApi{svc: svc, students: students}

	ag := g.Group("/attendance", jwt, auth)

	ig := ag.Group("/intentions")
	ig.GET("", api.queryIntentions)
	ig.POST("", api.submitIntention)
	ig.GET("/:id", api.retrieveIntention)
	ig.POST("/:id/review", api.reviewIntention, staffMiddleware())
	ig.DELETE("/:id", api.cancelIntention)

	rg := ag.Group("/records")
	rg.GET("", api.queryRecords)
	rg.POST("", api.mark, staffMiddleware())
	rg.GET("/export", api.exportRecords, staffMiddleware())

	ag.GET("/summary", api.summary)
}

// Absence intentions

func (api *attendanceApi) submitIntention(ctx echo.Context) error {
	var data attendance.NewIntention
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewIntention")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	usr := contextUser(ctx)
	reqCtx := ctx.Request().Context()
	scope, err := resolveStudentScope(reqCtx, api.students, usr)
	if err != nil {
		return err
	}
	if !scope.allows(data.StudentID) {
		return errHttpForbidden
	}

	ai, err := api.svc.SubmitIntention(reqCtx, usr.SchoolID, usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "submitting absence intention")
	}
	return created(ctx, ai)
}

func (api *attendanceApi) queryIntentions(ctx echo.Context) error {
	filter, err := bindIntentionFilter(ctx)
	if err != nil {
		return err
	}

	usr := contextUser(ctx)
	reqCtx := ctx.Request().Context()
	scope, err := resolveStudentScope(reqCtx, api.students, usr)
	if err != nil {
		return err
	}
	var found bool
	if filter.StudentIDs, found = scope.narrow(filter.StudentIDs); !found {
		return ok(ctx, []attendance.AbsenceIntention{})
	}

	intentions, err := api.svc.QueryIntentions(reqCtx, usr.SchoolID, filter)
	if err != nil {
		return errors.Wrap(err, "querying absence intentions")
	}
	if intentions == nil {
		intentions = []attendance.AbsenceIntention{}
	}
	return ok(ctx, intentions)
}

func (api *attendanceApi) retrieveIntention(ctx echo.Context) error {
	usr := contextUser(ctx)
	reqCtx := ctx.Request().Context()
	ai, err := api.svc.GetIntention(reqCtx, usr.SchoolID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding absence intention")
	}
	scope, err := resolveStudentScope(reqCtx, api.students, usr)
	if err != nil {
		return err
	}
	if !scope.allows(ai.StudentID) {
		return errHttpForbidden
	}
	return ok(ctx, ai)
}

func (api *attendanceApi) reviewIntention(ctx echo.Context) error {
	var data attendance.ReviewIntention
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ReviewIntention")
	}
	data.Status = strings.ToUpper(data.Status)
	if err := data.Validate(); err != nil {
		return err
	}

	usr := contextUser(ctx)
	ai, err := api.svc.ReviewIntention(ctx.Request().Context(), usr.SchoolID, ctx.Param("id"), usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "reviewing absence intention")
	}
	return ok(ctx, ai)
}

// cancelIntention deletes a pending intention; only its submitter or an admin may.
func (api *attendanceApi) cancelIntention(ctx echo.Context) error {
	usr := contextUser(ctx)
	err := api.svc.CancelIntention(ctx.Request().Context(), usr.SchoolID, ctx.Param("id"), usr.ID, usr.IsAdmin())
	if err != nil {
		return errors.Wrap(err, "cancelling absence intention")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Attendance records

func (api *attendanceApi) mark(ctx echo.Context) error {
	var data attendance.MarkAttendance
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MarkAttendance")
	}
	for i := range data.Entries {
		data.Entries[i].Status = strings.ToUpper(data.Entries[i].Status)
	}
	if err := data.Validate(); err != nil {
		return err
	}

	usr := contextUser(ctx)
	records, err := api.svc.MarkAttendance(ctx.Request().Context(), usr.SchoolID, usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "marking attendance")
	}
	return ok(ctx, records)
}

func (api *attendanceApi) queryRecords(ctx echo.Context) error {
	records, err := api.listRecords(ctx)
	if err != nil {
		return err
	}
	return ok(ctx, records)
}

func (api *attendanceApi) exportRecords(ctx echo.Context) error {
	records, err := api.listRecords(ctx)
	if err != nil {
		return err
	}
	students, err := api.students.Query(ctx.Request().Context(), contextUser(ctx).SchoolID, &student.QueryFilter{}, nil)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	return sendExport(ctx, exportsvc.Table{
		Name:    "attendance",
		Headers: attendance.RecordExportHeaders,
		Rows:    attendance.ExportRows(records, student.MapByID(students)),
	})
}

func (api *attendanceApi) listRecords(ctx echo.Context) ([]attendance.Record, error) {
	filter, err := bindRecordFilter(ctx)
	if err != nil {
		return nil, err
	}

	usr := contextUser(ctx)
	reqCtx := ctx.Request().Context()
	scope, err := resolveStudentScope(reqCtx, api.students, usr)
	if err != nil {
		return nil, err
	}
	var found bool
	if filter.StudentIDs, found = scope.narrow(filter.StudentIDs); !found {
		return []attendance.Record{}, nil
	}

	records, err := api.svc.QueryRecords(reqCtx, usr.SchoolID, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying attendance records")
	}
	if records == nil {
		records = []attendance.Record{}
	}
	return records, nil
}

// summary aggregates the school's attendance for staff, or one student's with ?student_id=.
func (api *attendanceApi) summary(ctx echo.Context) error {
	from, to, err := bindDateRange(ctx)
	if err != nil {
		return err
	}

	usr := contextUser(ctx)
	reqCtx := ctx.Request().Context()
	studentID := strings.TrimSpace(ctx.QueryParam("student_id"))
	if studentID == "" {
		if !usr.IsStaff() {
			return core.NewFieldError("student_id", "student_id is required")
		}
		sum, err := api.svc.SchoolSummary(reqCtx, usr.SchoolID, from, to)
		if err != nil {
			return errors.Wrap(err, "summarizing school attendance")
		}
		return ok(ctx, sum)
	}

	scope, err := resolveStudentScope(reqCtx, api.students, usr)
	if err != nil {
		return err
	}
	if !scope.allows(studentID) {
		return errHttpForbidden
	}
	sum, err := api.svc.StudentSummary(reqCtx, usr.SchoolID, studentID, from, to)
	if err != nil {
		return errors.Wrap(err, "summarizing student attendance")
	}
	return ok(ctx, sum)
}
