package echoapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/databayt/hogwarts-sub013/core"
	"github.com/databayt/hogwarts-sub013/core/attendance"
	"github.com/databayt/hogwarts-sub013/core/exam"
	"github.com/databayt/hogwarts-sub013/core/finance"
	"github.com/databayt/hogwarts-sub013/core/school"
	"github.com/databayt/hogwarts-sub013/core/student"
	"github.com/databayt/hogwarts-sub013/core/user"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field != "" {
			ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
		}
	}
}

// Query param helpers

// queryList accepts repeated params (?id=a&id=b) and comma separated values (?id=a,b).
func queryList(ctx echo.Context, name string) []string {
	var list []string
	for _, val := range ctx.QueryParams()[name] {
		for _, v := range strings.Split(val, ",") {
			if v = strings.TrimSpace(v); v != "" {
				list = append(list, v)
			}
		}
	}
	return list
}

func queryBool(ctx echo.Context, name string) (*bool, error) {
	val := strings.TrimSpace(ctx.QueryParam(name))
	if val == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return nil, core.NewFieldError(name, name+" must be a boolean")
	}
	return &b, nil
}

func queryDate(ctx echo.Context, name string) (time.Time, error) {
	val := strings.TrimSpace(ctx.QueryParam(name))
	if val == "" {
		return time.Time{}, nil
	}
	day, err := core.ParseDate(val)
	if err != nil {
		return time.Time{}, core.NewFieldError(name, name+" must be a valid date (YYYY-MM-DD)")
	}
	return day, nil
}

// queryTime accepts RFC 3339 timestamps and plain dates.
func queryTime(ctx echo.Context, name string) (time.Time, error) {
	val := strings.TrimSpace(ctx.QueryParam(name))
	if val == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return t.UTC(), nil
	}
	return queryDate(ctx, name)
}

// Filters

func bindSchoolFilter(ctx echo.Context) (*school.QueryFilter, error) {
	isActive, err := queryBool(ctx, "is_active")
	if err != nil {
		return nil, err
	}
	filter := &school.QueryFilter{Search: ctx.QueryParam("search"), IsActive: isActive}
	filter.Clean()
	return filter, nil
}

func bindUserFilter(ctx echo.Context) (*user.QueryFilter, error) {
	var err error
	filter := &user.QueryFilter{
		Search: ctx.QueryParam("search"),
		Roles:  queryList(ctx, "role"),
	}
	if filter.IsActive, err = queryBool(ctx, "is_active"); err != nil {
		return nil, err
	}
	if filter.CreatedFrom, err = queryTime(ctx, "created_from"); err != nil {
		return nil, err
	}
	if filter.CreatedTo, err = queryTime(ctx, "created_to"); err != nil {
		return nil, err
	}
	filter.Clean()
	return filter, nil
}

func bindStudentFilter(ctx echo.Context) (*student.QueryFilter, error) {
	isActive, err := queryBool(ctx, "is_active")
	if err != nil {
		return nil, err
	}
	filter := &student.QueryFilter{
		IDs:            queryList(ctx, "id"),
		Search:         ctx.QueryParam("search"),
		ClassName:      ctx.QueryParam("class_name"),
		IsActive:       isActive,
		GuardianUserID: strings.TrimSpace(ctx.QueryParam("guardian_user_id")),
	}
	filter.Clean()
	return filter, nil
}

func bindIntentionFilter(ctx echo.Context) (*attendance.IntentionFilter, error) {
	var err error
	filter := &attendance.IntentionFilter{
		StudentIDs: queryList(ctx, "student_id"),
		Status:     strings.ToUpper(strings.TrimSpace(ctx.QueryParam("status"))),
	}
	if filter.From, err = queryDate(ctx, "from"); err != nil {
		return nil, err
	}
	if filter.To, err = queryDate(ctx, "to"); err != nil {
		return nil, err
	}
	return filter, nil
}

func bindRecordFilter(ctx echo.Context) (*attendance.RecordFilter, error) {
	var err error
	filter := &attendance.RecordFilter{
		StudentIDs: queryList(ctx, "student_id"),
		Status:     strings.ToUpper(strings.TrimSpace(ctx.QueryParam("status"))),
	}
	if filter.From, err = queryDate(ctx, "from"); err != nil {
		return nil, err
	}
	if filter.To, err = queryDate(ctx, "to"); err != nil {
		return nil, err
	}
	return filter, nil
}

func bindFeeFilter(ctx echo.Context) (*finance.FeeFilter, error) {
	isActive, err := queryBool(ctx, "is_active")
	if err != nil {
		return nil, err
	}
	return &finance.FeeFilter{ClassName: core.CleanString(ctx.QueryParam("class_name")), IsActive: isActive}, nil
}

func bindInvoiceFilter(ctx echo.Context) (*finance.InvoiceFilter, error) {
	overdue, err := queryBool(ctx, "overdue")
	if err != nil {
		return nil, err
	}
	filter := &finance.InvoiceFilter{
		StudentIDs:     queryList(ctx, "student_id"),
		FeeStructureID: strings.TrimSpace(ctx.QueryParam("fee_structure_id")),
		Status:         strings.ToUpper(strings.TrimSpace(ctx.QueryParam("status"))),
	}
	if overdue != nil {
		filter.Overdue = *overdue
	}
	return filter, nil
}

func bindExamFilter(ctx echo.Context) *exam.ExamFilter {
	return &exam.ExamFilter{
		ClassName: core.CleanString(ctx.QueryParam("class_name")),
		Subject:   core.CleanString(ctx.QueryParam("subject")),
		Status:    strings.ToUpper(strings.TrimSpace(ctx.QueryParam("status"))),
	}
}

// bindDateRange reads ?from=&to= (both optional, inclusive).
func bindDateRange(ctx echo.Context) (from, to time.Time, err error) {
	if from, err = queryDate(ctx, "from"); err != nil {
		return
	}
	to, err = queryDate(ctx, "to")
	return
}
