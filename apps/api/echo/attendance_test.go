package echoapi

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/databayt/hogwarts-sub013/core/attendance"
	"github.com/databayt/hogwarts-sub013/core/student"
	"github.com/databayt/hogwarts-sub013/core/user"
	"github.com/databayt/hogwarts-sub013/testutil"
)

func Test_attendanceApi(t *testing.T) {
	testutil.FreezeTime(t, time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC))

	e := setup(t)
	admin := e.createUser(t, "minerva", user.RoleAdmin)
	teacher := e.createUser(t, "severus", user.RoleTeacher)
	molly := e.createUser(t, "molly", user.RoleGuardian)

	ron := testutil.CreateStudent(t, e.Env, e.school.ID, "HOG001", "Ron", "Weasley", "Year 1", func(ns *student.NewStudent) {
		ns.GuardianUserID = molly.ID
	})
	ginny := testutil.CreateStudent(t, e.Env, e.school.ID, "HOG002", "Ginny", "Weasley", "Year 1", func(ns *student.NewStudent) {
		ns.GuardianUserID = molly.ID
	})
	harry := testutil.CreateStudent(t, e.Env, e.school.ID, "HOG003", "Harry", "Potter", "Year 1")

	mollyToken := getToken(t, molly)
	teacherToken := getToken(t, teacher)

	var intention attendance.AbsenceIntention
	t.Run("guardian submits for a ward", func(t *testing.T) {
		rec, env := e.do(t, http.MethodPost, "/v1/attendance/intentions", mollyToken, attendance.NewIntention{
			StudentID: ron.ID, DateFrom: "2026-03-10", DateTo: "2026-03-12", Reason: "Family wedding",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		env.decode(t, &intention)
		assert.Equal(t, attendance.StatusPending, intention.Status)
		assert.Equal(t, molly.ID, intention.SubmittedBy)
	})

	runHTTPTests(t, e, []httpTest{
		{
			name: "overlapping intention", method: http.MethodPost, path: "/v1/attendance/intentions", token: mollyToken,
			body:     attendance.NewIntention{StudentID: ron.ID, DateFrom: "2026-03-12", DateTo: "2026-03-13", Reason: "Still at the wedding"},
			wantCode: http.StatusBadRequest, wantErr: "An absence intention already exists for this period.",
		},
		{
			name: "start in the past", method: http.MethodPost, path: "/v1/attendance/intentions", token: mollyToken,
			body:     attendance.NewIntention{StudentID: ginny.ID, DateFrom: "2026-03-09", DateTo: "2026-03-10", Reason: "Dentist"},
			wantCode: http.StatusBadRequest,
		},
		{
			name: "end before start", method: http.MethodPost, path: "/v1/attendance/intentions", token: mollyToken,
			body:     attendance.NewIntention{StudentID: ginny.ID, DateFrom: "2026-03-12", DateTo: "2026-03-11", Reason: "Dentist"},
			wantCode: http.StatusBadRequest,
		},
		{
			name: "someone else's child", method: http.MethodPost, path: "/v1/attendance/intentions", token: mollyToken,
			body:     attendance.NewIntention{StudentID: harry.ID, DateFrom: "2026-03-12", DateTo: "2026-03-12", Reason: "Quidditch"},
			wantCode: http.StatusForbidden,
		},
		{
			name: "guardian cannot review", method: http.MethodPost, path: "/v1/attendance/intentions/" + intention.ID + "/review",
			token: mollyToken, body: attendance.ReviewIntention{Status: attendance.StatusApproved}, wantCode: http.StatusForbidden,
		},
		{
			name: "invalid review status", method: http.MethodPost, path: "/v1/attendance/intentions/" + intention.ID + "/review",
			token: teacherToken, body: attendance.ReviewIntention{Status: "maybe"}, wantCode: http.StatusBadRequest,
		},
	})

	t.Run("review", func(t *testing.T) {
		rec, env := e.do(t, http.MethodPost, "/v1/attendance/intentions/"+intention.ID+"/review", teacherToken,
			attendance.ReviewIntention{Status: "approved", Note: "Enjoy"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var reviewed attendance.AbsenceIntention
		env.decode(t, &reviewed)
		assert.Equal(t, attendance.StatusApproved, reviewed.Status)
		assert.Equal(t, teacher.ID, reviewed.ReviewedBy)

		// once only
		rec, _ = e.do(t, http.MethodPost, "/v1/attendance/intentions/"+intention.ID+"/review", teacherToken,
			attendance.ReviewIntention{Status: attendance.StatusRejected})
		require.Equal(t, http.StatusBadRequest, rec.Code)

		// reviewed intentions cannot be cancelled
		rec, _ = e.do(t, http.MethodDelete, "/v1/attendance/intentions/"+intention.ID, mollyToken, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("cancel", func(t *testing.T) {
		rec, env := e.do(t, http.MethodPost, "/v1/attendance/intentions", mollyToken, attendance.NewIntention{
			StudentID: ginny.ID, DateFrom: "2026-03-20", DateTo: "2026-03-20", Reason: "Dentist",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var ai attendance.AbsenceIntention
		env.decode(t, &ai)

		rec, _ = e.do(t, http.MethodDelete, "/v1/attendance/intentions/"+ai.ID, teacherToken, nil)
		require.Equal(t, http.StatusForbidden, rec.Code)

		rec, _ = e.do(t, http.MethodDelete, "/v1/attendance/intentions/"+ai.ID, mollyToken, nil)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	})

	t.Run("mark", func(t *testing.T) {
		rec, env := e.do(t, http.MethodPost, "/v1/attendance/records", teacherToken, attendance.MarkAttendance{
			Date: "2026-03-10",
			Entries: []attendance.MarkEntry{
				{StudentID: ron.ID, Status: "absent"},
				{StudentID: ginny.ID, Status: attendance.Late},
				{StudentID: harry.ID, Status: attendance.Present},
			},
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var records []attendance.Record
		env.decode(t, &records)
		require.Len(t, records, 3)
		// covered by the approved intention
		assert.Equal(t, attendance.Excused, records[0].Status)

		runHTTPTests(t, e, []httpTest{
			{
				name: "future date", method: http.MethodPost, path: "/v1/attendance/records", token: teacherToken,
				body: attendance.MarkAttendance{
					Date:    "2026-03-11",
					Entries: []attendance.MarkEntry{{StudentID: ron.ID, Status: attendance.Present}},
				},
				wantCode: http.StatusBadRequest,
			},
			{
				name: "guardian cannot mark", method: http.MethodPost, path: "/v1/attendance/records", token: mollyToken,
				body: attendance.MarkAttendance{
					Date:    "2026-03-10",
					Entries: []attendance.MarkEntry{{StudentID: ron.ID, Status: attendance.Present}},
				},
				wantCode: http.StatusForbidden,
			},
		})
	})

	t.Run("records are scoped", func(t *testing.T) {
		rec, env := e.do(t, http.MethodGet, "/v1/attendance/records", mollyToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var records []attendance.Record
		env.decode(t, &records)
		require.Len(t, records, 2)
		for _, r := range records {
			assert.Contains(t, []string{ron.ID, ginny.ID}, r.StudentID)
		}

		// asking for a stranger yields nothing
		rec, env = e.do(t, http.MethodGet, "/v1/attendance/records?student_id="+harry.ID, mollyToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		env.decode(t, &records)
		assert.Empty(t, records)
	})

	t.Run("summaries", func(t *testing.T) {
		rec, env := e.do(t, http.MethodGet, "/v1/attendance/summary", getToken(t, admin), nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var sum attendance.Summary
		env.decode(t, &sum)
		assert.Equal(t, 3, sum.Total)
		assert.Equal(t, 1, sum.Present)
		assert.Equal(t, 1, sum.Late)
		assert.Equal(t, 1, sum.Excused)
		assert.Equal(t, 1.0, sum.Rate)

		rec, env = e.do(t, http.MethodGet, "/v1/attendance/summary?student_id="+ginny.ID+"&from=2026-03-01&to=2026-03-31", mollyToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		env.decode(t, &sum)
		assert.Equal(t, ginny.ID, sum.StudentID)
		assert.Equal(t, 1, sum.Total)
		assert.Equal(t, 1, sum.Late)

		runHTTPTests(t, e, []httpTest{
			{name: "guardian needs a student", path: "/v1/attendance/summary", token: mollyToken, wantCode: http.StatusBadRequest},
			{name: "stranger", path: "/v1/attendance/summary?student_id=" + harry.ID, token: mollyToken, wantCode: http.StatusForbidden},
			{name: "bad date", path: "/v1/attendance/summary?from=yesterday", token: teacherToken, wantCode: http.StatusBadRequest},
		})
	})

	t.Run("export", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/attendance/records/export?format=json", teacherToken)
		e.srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Body.String(), "HOG002")
	})
}
