// Package testutil wires the services over the in-memory store and Miniredis for tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/databayt/hogwarts-sub013/core"
	"github.com/databayt/hogwarts-sub013/core/attendance"
	"github.com/databayt/hogwarts-sub013/core/dashboard"
	"github.com/databayt/hogwarts-sub013/core/exam"
	"github.com/databayt/hogwarts-sub013/core/finance"
	"github.com/databayt/hogwarts-sub013/core/messaging"
	"github.com/databayt/hogwarts-sub013/core/school"
	"github.com/databayt/hogwarts-sub013/core/student"
	"github.com/databayt/hogwarts-sub013/core/user"
	cachesvc "github.com/databayt/hogwarts-sub013/services/cache"
	emailsvc "github.com/databayt/hogwarts-sub013/services/email"
	logsvc "github.com/databayt/hogwarts-sub013/services/logger"
	inmemdb "github.com/databayt/hogwarts-sub013/storage/database/inmem"
)

type Env struct {
	DB     *inmemdb.DB
	Redis  *miniredis.Miniredis
	Client *redis.Client
	Cache  core.Cache
	Events core.EventPublisher
	Mail   core.EmailService
	Logger core.Logger

	UserRepo user.Repository

	Schools    *school.Service
	Users      *user.Service
	Students   *student.Service
	Attendance *attendance.Service
	Finance    *finance.Service
	Exams      *exam.Service
	Messaging  *messaging.Service
	Dashboard  *dashboard.Service
}

func NewEnv(t *testing.T) *Env {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	db := inmemdb.Open()
	tx := inmemdb.NewTransactor(db)
	logger := logsvc.NewNopLogger()
	mailSvc := emailsvc.NewConsoleServiceMock(logger)
	cache := cachesvc.NewCache(client)
	events := cachesvc.NewPublisher(client)
	emailsvc.ResetSentMessages()

	env := &Env{
		DB:       db,
		Redis:    mr,
		Client:   client,
		Cache:    cache,
		Events:   events,
		Mail:     mailSvc,
		Logger:   logger,
		UserRepo: inmemdb.NewUserRepository(db),
	}
	env.Schools = school.NewService(inmemdb.NewSchoolRepository(db))
	env.Users = user.NewService(env.UserRepo, mailSvc)
	env.Students = student.NewService(inmemdb.NewStudentRepository(db))
	env.Attendance = attendance.NewService(inmemdb.NewAttendanceRepository(db), env.Students, tx, cache, logger)
	env.Finance = finance.NewService(inmemdb.NewFinanceRepository(db), env.Students, tx, cache, mailSvc, logger)
	env.Exams = exam.NewService(inmemdb.NewExamRepository(db), env.Students, tx, cache, logger)
	env.Messaging = messaging.NewService(inmemdb.NewMessagingRepository(db), env.Users, tx, events, mailSvc, logger)
	env.Dashboard = dashboard.NewService(env.Students, env.Users, env.Attendance, env.Finance, env.Exams, cache, logger)
	return env
}

// FreezeTime pins core.NowFunc to `tm` for the duration of the test.
func FreezeTime(t *testing.T, tm time.Time) {
	t.Helper()
	orig := core.NowFunc
	core.NowFunc = func() time.Time { return tm.UTC() }
	t.Cleanup(func() { core.NowFunc = orig })
}

func CreateSchool(t *testing.T, env *Env, name, code string) school.School {
	t.Helper()
	sch, err := env.Schools.Create(context.Background(), school.NewSchool{Name: name, Code: code})
	if err != nil {
		t.Fatalf("CreateSchool() failed: %v", err)
	}
	return sch
}

// CreateUser stores a user directly, bypassing the password policy.
func CreateUser(
	t *testing.T,
	repo user.Repository,
	schoolID, name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := core.NowFunc()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		SchoolID:  schoolID,
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateStudent(t *testing.T, env *Env, schoolID, admissionNo, firstName, lastName, className string, mods ...func(*student.NewStudent)) student.Student {
	t.Helper()
	ns := student.NewStudent{AdmissionNo: admissionNo, FirstName: firstName, LastName: lastName, ClassName: className}
	for _, mod := range mods {
		mod(&ns)
	}
	std, err := env.Students.Create(context.Background(), schoolID, ns)
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return std
}
