package echoapi

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/databayt/hogwarts-sub013/core/dashboard"
	"github.com/databayt/hogwarts-sub013/core/school"
	"github.com/databayt/hogwarts-sub013/core/user"
	"github.com/databayt/hogwarts-sub013/testutil"
)

func Test_dashboardApi(t *testing.T) {
	testutil.FreezeTime(t, time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC))

	e := setup(t)
	admin := e.createUser(t, "minerva", user.RoleAdmin)
	teacher := e.createUser(t, "severus", user.RoleTeacher)
	testutil.CreateStudent(t, e.Env, e.school.ID, "HOG001", "Ron", "Weasley", "Year 1")
	testutil.CreateStudent(t, e.Env, e.school.ID, "HOG002", "Hermione", "Granger", "Year 1")

	other := testutil.CreateSchool(t, e.Env, "Durmstrang", "durm")
	testutil.CreateStudent(t, e.Env, other.ID, "DUR001", "Viktor", "Krum", "Year 7")

	runHTTPTests(t, e, []httpTest{
		{name: "token required", path: "/v1/dashboard", wantCode: http.StatusUnauthorized},
		{name: "admins only", path: "/v1/dashboard", token: getToken(t, teacher), wantCode: http.StatusForbidden},
	})

	rec, env := e.do(t, http.MethodGet, "/v1/dashboard", getToken(t, admin), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var ov dashboard.Overview
	env.decode(t, &ov)
	assert.Equal(t, e.school.ID, ov.SchoolID)
	assert.Equal(t, 2, ov.ActiveStudents)
	assert.Equal(t, 1, ov.Users["admin"])
	assert.Equal(t, 1, ov.Users["teacher"])
	assert.Equal(t, 0, ov.PublishedExams)
}

func Test_schoolApi(t *testing.T) {
	e := setup(t)
	principal := e.createUser(t, "albus", user.RoleAdminPrincipal)
	teacher := e.createUser(t, "severus", user.RoleTeacher)

	rec, env := e.do(t, http.MethodGet, "/v1/school", getToken(t, teacher), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sch school.School
	env.decode(t, &sch)
	assert.Equal(t, e.school.ID, sch.ID)

	inactive := false
	runHTTPTests(t, e, []httpTest{
		{
			name: "teacher cannot update", method: http.MethodPut, path: "/v1/school", token: getToken(t, teacher),
			body: school.UpdateSchool{Phone: "+44 555 0100"}, wantCode: http.StatusForbidden,
		},
		{
			name: "no self deactivation", method: http.MethodPut, path: "/v1/school", token: getToken(t, principal),
			body: school.UpdateSchool{IsActive: &inactive}, wantCode: http.StatusForbidden,
		},
		{
			name: "invalid email", method: http.MethodPut, path: "/v1/school", token: getToken(t, principal),
			body: school.UpdateSchool{Email: "owls"}, wantCode: http.StatusBadRequest,
		},
	})

	rec, env = e.do(t, http.MethodPut, "/v1/school", getToken(t, principal), school.UpdateSchool{Phone: "+44 555 0100"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	env.decode(t, &sch)
	assert.Equal(t, "+44 555 0100", sch.Phone)
	assert.Equal(t, "Hogwarts", sch.Name)
	assert.True(t, sch.IsActive)
}
