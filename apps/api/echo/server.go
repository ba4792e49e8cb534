package echoapi

import (
	"context"
	"net/http"

	"github.com/kat-co/vala"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/databayt/hogwarts-sub013/core"
	"github.com/databayt/hogwarts-sub013/core/attendance"
	"github.com/databayt/hogwarts-sub013/core/dashboard"
	"github.com/databayt/hogwarts-sub013/core/exam"
	"github.com/databayt/hogwarts-sub013/core/finance"
	"github.com/databayt/hogwarts-sub013/core/messaging"
	"github.com/databayt/hogwarts-sub013/core/school"
	"github.com/databayt/hogwarts-sub013/core/student"
	"github.com/databayt/hogwarts-sub013/core/user"
)

type (
	Options struct {
		Address        string
		DisableReqLogs bool
		Logger         core.Logger
		// SignalShutdown is called when a handler fails with a core shutdown error.
		SignalShutdown func()

		SchoolSvc     *school.Service
		UserSvc       *user.Service
		StudentSvc    *student.Service
		AttendanceSvc *attendance.Service
		FinanceSvc    *finance.Service
		ExamSvc       *exam.Service
		MessagingSvc  *messaging.Service
		DashboardSvc  *dashboard.Service
	}

	Server interface {
		http.Handler
		Start() error
		Stop(context.Context) error
	}

	server struct {
		opts *Options
		app  *echo.Echo
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	vala.BeginValidation().Validate(
		vala.IsNotNil(opts.Logger, "Logger"),
		vala.IsNotNil(opts.SchoolSvc, "SchoolSvc"),
		vala.IsNotNil(opts.UserSvc, "UserSvc"),
		vala.IsNotNil(opts.StudentSvc, "StudentSvc"),
		vala.IsNotNil(opts.AttendanceSvc, "AttendanceSvc"),
		vala.IsNotNil(opts.FinanceSvc, "FinanceSvc"),
		vala.IsNotNil(opts.ExamSvc, "ExamSvc"),
		vala.IsNotNil(opts.MessagingSvc, "MessagingSvc"),
		vala.IsNotNil(opts.DashboardSvc, "DashboardSvc"),
	).CheckAndPanic()

	if opts.SignalShutdown == nil {
		opts.SignalShutdown = func() {}
	}
	s := &server{
		opts: opts,
		app:  echo.New(),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(core.Conf.Debug || core.Conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.SignalShutdown)
	s.app.Debug = core.Conf.Debug

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(appJWTConfig)
	auth := authMiddleware(s.opts.UserSvc, s.opts.SchoolSvc)

	registerUserAPI(v1, jwt, auth, s.opts.UserSvc, s.opts.SchoolSvc)
	registerSchoolAPI(v1, jwt, auth, s.opts.SchoolSvc)
	registerStudentAPI(v1, jwt, auth, s.opts.StudentSvc)
	registerAttendanceAPI(v1, jwt, auth, s.opts.AttendanceSvc, s.opts.StudentSvc)
	registerFinanceAPI(v1, jwt, auth, s.opts.FinanceSvc, s.opts.StudentSvc)
	registerExamAPI(v1, jwt, auth, s.opts.ExamSvc, s.opts.StudentSvc, s.opts.SchoolSvc)
	registerMessagingAPI(v1, jwt, auth, s.opts.MessagingSvc)
	registerDashboardAPI(v1, jwt, auth, s.opts.DashboardSvc)
}

// Start blocks until the server is stopped; http.ErrServerClosed is not an error.
func (s *server) Start() error {
	if err := s.app.Start(s.opts.Address); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ok(ctx, echo.Map{"name": core.Conf.AppName, "build": core.Conf.Build})
}
