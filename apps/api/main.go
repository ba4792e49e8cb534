package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"

	echoapi "github.com/databayt/hogwarts-sub013/apps/api/echo"
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
	"github.com/databayt/hogwarts-sub013/storage/database"
	inmemdb "github.com/databayt/hogwarts-sub013/storage/database/inmem"
	sqlxrepos "github.com/databayt/hogwarts-sub013/storage/database/sqlx"
)

// repositories groups the storage backends the services are built on.
type repositories struct {
	tx         core.Transactor
	schools    school.Repository
	users      user.Repository
	students   student.Repository
	attendance attendance.Repository
	finance    finance.Repository
	exams      exam.Repository
	messaging  messaging.Repository
	close      func() error
}

func main() {
	conf := core.Conf

	zl, err := logsvc.NewZap(conf)
	if err != nil {
		log.Fatalf("setting up logger: %v", err)
	}
	local := logsvc.NewZapLogger(zl)
	defer func() { _ = local.Sync() }()

	logger := logsvc.NewRollbarLogger(local, conf)
	defer logger.Close()

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build), map[string]interface{}{"env": conf.Env})
	defer logger.Info("Application stopped")

	ctx := context.Background()

	// =========================================================================
	// Storage

	repos, err := setUpStorage(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up storage: %v", err), err)
	}
	defer func() {
		if err := repos.close(); err != nil {
			logger.Error("closing storage", err)
		}
	}()

	var (
		cache  core.Cache          = cachesvc.NopCache{}
		events core.EventPublisher = cachesvc.NopPublisher{}
	)
	if conf.Redis.Enabled {
		client, err := cachesvc.Open(ctx, conf)
		if err != nil {
			logger.Fatal(fmt.Sprintf("connecting to redis: %v", err), err)
		}
		defer client.Close()
		cache = cachesvc.NewCache(client)
		events = cachesvc.NewPublisher(client)
	}

	// =========================================================================
	// Services

	mailSvc := emailsvc.New(logger)

	schoolSvc := school.NewService(repos.schools)
	usrSvc := user.NewService(repos.users, mailSvc)
	studentSvc := student.NewService(repos.students)
	attendanceSvc := attendance.NewService(repos.attendance, studentSvc, repos.tx, cache, logger)
	financeSvc := finance.NewService(repos.finance, studentSvc, repos.tx, cache, mailSvc, logger)
	examSvc := exam.NewService(repos.exams, studentSvc, repos.tx, cache, logger)
	messagingSvc := messaging.NewService(repos.messaging, usrSvc, repos.tx, events, mailSvc, logger)
	dashboardSvc := dashboard.NewService(studentSvc, usrSvc, attendanceSvc, financeSvc, examSvc, cache, logger)

	// =========================================================================
	// API

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	server := echoapi.NewServer(&echoapi.Options{
		Address: conf.Server.Address,
		Logger:  logger,
		SignalShutdown: func() {
			select {
			case shutdown <- syscall.SIGTERM:
			default:
			}
		},
		SchoolSvc:     schoolSvc,
		UserSvc:       usrSvc,
		StudentSvc:    studentSvc,
		AttendanceSvc: attendanceSvc,
		FinanceSvc:    financeSvc,
		ExamSvc:       examSvc,
		MessagingSvc:  messagingSvc,
		DashboardSvc:  dashboardSvc,
	})

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info(fmt.Sprintf("API listening on %s", conf.Server.Address))
		serverErrors <- server.Start()
	}()

	select {
	case err := <-serverErrors:
		if err != nil {
			logger.Error(fmt.Sprintf("server error: %v", err), err)
		}

	case sig := <-shutdown:
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(ctx, conf.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Stop(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)
		}
	}
}

// setUpStorage returns postgres repositories, or in-memory ones in test mode.
func setUpStorage(conf *core.Config) (*repositories, error) {
	if conf.TestMode {
		db := inmemdb.Open()
		return &repositories{
			tx:         inmemdb.NewTransactor(db),
			schools:    inmemdb.NewSchoolRepository(db),
			users:      inmemdb.NewUserRepository(db),
			students:   inmemdb.NewStudentRepository(db),
			attendance: inmemdb.NewAttendanceRepository(db),
			finance:    inmemdb.NewFinanceRepository(db),
			exams:      inmemdb.NewExamRepository(db),
			messaging:  inmemdb.NewMessagingRepository(db),
			close:      func() error { return nil },
		}, nil
	}

	db, err := setUpDB(conf)
	if err != nil {
		return nil, err
	}
	return &repositories{
		tx:         database.NewTransactor(db),
		schools:    sqlxrepos.NewSchoolRepository(db),
		users:      sqlxrepos.NewUserRepository(db),
		students:   sqlxrepos.NewStudentRepository(db),
		attendance: sqlxrepos.NewAttendanceRepository(db),
		finance:    sqlxrepos.NewFinanceRepository(db),
		exams:      sqlxrepos.NewExamRepository(db),
		messaging:  sqlxrepos.NewMessagingRepository(db),
		close:      db.Close,
	}, nil
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
