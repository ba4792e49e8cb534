package dashboard_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/databayt/hogwarts-sub013/core"
	"github.com/databayt/hogwarts-sub013/core/attendance"
	"github.com/databayt/hogwarts-sub013/core/exam"
	"github.com/databayt/hogwarts-sub013/core/finance"
	"github.com/databayt/hogwarts-sub013/core/user"
	"github.com/databayt/hogwarts-sub013/testutil"
)

// a Monday
var today = time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)

func TestOverview(t *testing.T) {
	testutil.FreezeTime(t, today)
	env := testutil.NewEnv(t)
	ctx := context.Background()
	sch := testutil.CreateSchool(t, env, "Hogwarts", "hogwarts")

	harry := testutil.CreateStudent(t, env, sch.ID, "H001", "Harry", "Potter", "Year 1")
	ron := testutil.CreateStudent(t, env, sch.ID, "H002", "Ron", "Weasley", "Year 1")
	testutil.CreateUser(t, env.UserRepo, sch.ID, "Minerva McGonagall", "mcgonagall", "", "", []string{user.RoleTeacher}, true)
	testutil.CreateUser(t, env.UserRepo, sch.ID, "Albus Dumbledore", "dumbledore", "", "", []string{user.RoleAdminOwner}, true)

	ma := attendance.MarkAttendance{Date: "2024-03-04", Entries: []attendance.MarkEntry{
		{StudentID: harry.ID, Status: attendance.Present},
		{StudentID: ron.ID, Status: attendance.Absent},
	}}
	require.NoError(t, ma.Validate())
	_, err := env.Attendance.MarkAttendance(ctx, sch.ID, "teacher-1", ma)
	require.NoError(t, err)

	// outside of the week, inside the 30 day window
	testutil.FreezeTime(t, today.AddDate(0, 0, -10))
	ma = attendance.MarkAttendance{Date: "2024-02-23", Entries: []attendance.MarkEntry{{StudentID: harry.ID, Status: attendance.Late}}}
	require.NoError(t, ma.Validate())
	_, err = env.Attendance.MarkAttendance(ctx, sch.ID, "teacher-1", ma)
	require.NoError(t, err)
	testutil.FreezeTime(t, today)

	ni := attendance.NewIntention{StudentID: ron.ID, DateFrom: "2024-03-11", DateTo: "2024-03-12", Reason: "Family wedding"}
	require.NoError(t, ni.Validate())
	_, err = env.Attendance.SubmitIntention(ctx, sch.ID, "guardian-1", ni)
	require.NoError(t, err)

	inv := finance.NewInvoice{StudentID: harry.ID, Description: "Books", Amount: 2500, DueDate: "2024-03-01"}
	require.NoError(t, inv.Validate())
	_, err = env.Finance.CreateInvoice(ctx, sch.ID, inv)
	require.NoError(t, err)

	ne := exam.NewExam{Title: "Charms", Subject: "Charms", ClassName: "Year 1", Date: "2024-03-10"}
	require.NoError(t, ne.Validate())
	e, err := env.Exams.CreateExam(ctx, sch.ID, "teacher-1", ne)
	require.NoError(t, err)
	nq := exam.NewQuestion{Text: "Lumos?", Options: []string{"light", "dark"}}
	require.NoError(t, nq.Validate())
	_, err = env.Exams.AddQuestion(ctx, e, nq)
	require.NoError(t, err)
	_, err = env.Exams.Publish(ctx, e)
	require.NoError(t, err)

	ov, err := env.Dashboard.Overview(ctx, sch.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, ov.ActiveStudents)
	assert.Equal(t, map[string]int{"teacher": 1, "admin": 1}, ov.Users)
	assert.Equal(t, attendance.Summary{Total: 3, Present: 1, Absent: 1, Late: 1, Rate: 2.0 / 3}, ov.Attendance)
	assert.Equal(t, attendance.Summary{Total: 2, Present: 1, Absent: 1, Rate: 0.5}, ov.AttendanceWeek)
	assert.True(t, ov.AttendanceFrom.Equal(time.Date(2024, 2, 4, 0, 0, 0, 0, time.UTC)), ov.AttendanceFrom)
	assert.True(t, ov.AttendanceTo.Equal(time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)), ov.AttendanceTo)
	assert.Equal(t, 1, ov.PendingIntentions)
	assert.Equal(t, finance.Summary{Currency: "USD", Billed: 2500, Outstanding: 2500, OverdueInvoices: 1, OverdueAmount: 2500}, ov.Finance)
	assert.Equal(t, 1, ov.PublishedExams)

	assert.True(t, env.Redis.Exists(core.DashboardCacheKey(sch.ID)))

	t.Run("served from cache until revalidated", func(t *testing.T) {
		testutil.CreateStudent(t, env, sch.ID, "H003", "Hermione", "Granger", "Year 1")

		cached, err := env.Dashboard.Overview(ctx, sch.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, cached.ActiveStudents)

		tu := finance.TopUp{Amount: 100}
		require.NoError(t, tu.Validate())
		_, err = env.Finance.TopUp(ctx, sch.ID, harry.ID, "bursar-1", tu)
		require.NoError(t, err)
		cached, err = env.Dashboard.Overview(ctx, sch.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, cached.ActiveStudents, "wallet top-ups do not change the overview")

		_, err = env.Finance.CreateInvoice(ctx, sch.ID, inv)
		require.NoError(t, err)
		assert.False(t, env.Redis.Exists(core.DashboardCacheKey(sch.ID)))

		fresh, err := env.Dashboard.Overview(ctx, sch.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, fresh.ActiveStudents)
		assert.EqualValues(t, 5000, fresh.Finance.Billed)
	})

	t.Run("schools are isolated", func(t *testing.T) {
		other := testutil.CreateSchool(t, env, "Beauxbatons", "beauxbatons")
		ov, err := env.Dashboard.Overview(ctx, other.ID)
		require.NoError(t, err)
		assert.Zero(t, ov.ActiveStudents)
		assert.Zero(t, ov.Attendance.Total)
		assert.Equal(t, finance.Summary{Currency: "USD"}, ov.Finance)
	})
}
