package dashboard

import (
	"context"
	"errors"
	"time"

	"github.com/jinzhu/now"
	"github.com/kat-co/vala"

	"github.com/databayt/hogwarts-sub013/core"
	"github.com/databayt/hogwarts-sub013/core/attendance"
	"github.com/databayt/hogwarts-sub013/core/finance"
)

// AttendanceWindow is the number of days (today included) covered by the overview attendance rate.
const AttendanceWindow = 30

type (
	Overview struct {
		SchoolID          string             `json:"school_id"`
		ActiveStudents    int                `json:"active_students"`
		Users             map[string]int     `json:"users"` // per role group
		Attendance        attendance.Summary `json:"attendance"`
		AttendanceWeek    attendance.Summary `json:"attendance_week"`
		AttendanceFrom    time.Time          `json:"attendance_from"`
		AttendanceTo      time.Time          `json:"attendance_to"`
		PendingIntentions int                `json:"pending_intentions"`
		Finance           finance.Summary    `json:"finance"`
		PublishedExams    int                `json:"published_exams"`
		GeneratedAt       time.Time          `json:"generated_at"`
	}

	StudentCounter interface {
		CountActive(ctx context.Context, schoolID string) (int, error)
	}

	UserCounter interface {
		CountByRoleGroup(ctx context.Context, schoolID string) (map[string]int, error)
	}

	AttendanceSummarizer interface {
		SchoolSummary(ctx context.Context, schoolID string, from, to time.Time) (attendance.Summary, error)
		CountPendingIntentions(ctx context.Context, schoolID string) (int, error)
	}

	FinanceSummarizer interface {
		Summary(ctx context.Context, schoolID string, filter *finance.InvoiceFilter) (finance.Summary, error)
	}

	ExamCounter interface {
		CountPublished(ctx context.Context, schoolID string) (int, error)
	}

	Service struct {
		students   StudentCounter
		users      UserCounter
		attendance AttendanceSummarizer
		finance    FinanceSummarizer
		exams      ExamCounter
		cache      core.Cache
		logger     core.Logger
	}
)

func NewService(
	students StudentCounter,
	users UserCounter,
	attendance AttendanceSummarizer,
	finance FinanceSummarizer,
	exams ExamCounter,
	cache core.Cache,
	logger core.Logger,
) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(students, "students"),
		vala.IsNotNil(users, "users"),
		vala.IsNotNil(attendance, "attendance"),
		vala.IsNotNil(finance, "finance"),
		vala.IsNotNil(exams, "exams"),
		vala.IsNotNil(cache, "cache"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &Service{
		students:   students,
		users:      users,
		attendance: attendance,
		finance:    finance,
		exams:      exams,
		cache:      cache,
		logger:     logger,
	}
}

// Overview returns the school's overview, from cache when fresh.
// Attendance and finance writes revalidate it (see core.RevalidateDashboard).
func (svc *Service) Overview(ctx context.Context, schoolID string) (Overview, error) {
	key := core.DashboardCacheKey(schoolID)
	var ov Overview
	if err := svc.cache.GetJSON(ctx, key, &ov); err == nil {
		return ov, nil
	} else if !errors.Is(err, core.ErrCacheMiss) {
		svc.logger.Warn("reading dashboard cache", err)
	}

	ov, err := svc.compute(ctx, schoolID)
	if err != nil {
		return Overview{}, err
	}
	if err := svc.cache.SetJSON(ctx, key, ov, core.Conf.Redis.CacheTTL); err != nil {
		svc.logger.Warn("writing dashboard cache", err)
	}
	return ov, nil
}

func (svc *Service) compute(ctx context.Context, schoolID string) (Overview, error) {
	today := now.With(core.NowFunc()).BeginningOfDay()
	ov := Overview{
		SchoolID:       schoolID,
		AttendanceFrom: today.AddDate(0, 0, -(AttendanceWindow - 1)),
		AttendanceTo:   today,
		GeneratedAt:    core.NowFunc(),
	}

	var err error
	if ov.ActiveStudents, err = svc.students.CountActive(ctx, schoolID); err != nil {
		return Overview{}, err
	}
	if ov.Users, err = svc.users.CountByRoleGroup(ctx, schoolID); err != nil {
		return Overview{}, err
	}
	if ov.Attendance, err = svc.attendance.SchoolSummary(ctx, schoolID, ov.AttendanceFrom, ov.AttendanceTo); err != nil {
		return Overview{}, err
	}
	weekStart := now.With(today).BeginningOfWeek()
	if ov.AttendanceWeek, err = svc.attendance.SchoolSummary(ctx, schoolID, weekStart, today); err != nil {
		return Overview{}, err
	}
	if ov.PendingIntentions, err = svc.attendance.CountPendingIntentions(ctx, schoolID); err != nil {
		return Overview{}, err
	}
	if ov.Finance, err = svc.finance.Summary(ctx, schoolID, nil); err != nil {
		return Overview{}, err
	}
	if ov.PublishedExams, err = svc.exams.CountPublished(ctx, schoolID); err != nil {
		return Overview{}, err
	}
	return ov, nil
}
