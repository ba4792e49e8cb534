package main

import (
	"fmt"
	"log"
	"os"

	"github.com/databayt/hogwarts-sub013/core"
	"github.com/databayt/hogwarts-sub013/core/school"
	logsvc "github.com/databayt/hogwarts-sub013/services/logger"
	"github.com/databayt/hogwarts-sub013/storage/database"
	sqlxrepos "github.com/databayt/hogwarts-sub013/storage/database/sqlx"
)

func main() {
	os.Exit(run())
}

func run() int {
	conf := core.Conf

	zl, err := logsvc.NewZap(conf)
	if err != nil {
		log.Fatalf("setting up logger: %v", err)
	}
	logger := logsvc.NewZapLogger(zl.Named("admin"))
	defer func() { _ = logger.Sync() }()

	// set up DB
	if err = database.CreateIfNotExist(conf); err != nil {
		logger.Error(fmt.Sprintf("creating database: %v", err), err)
		return 1
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Error(fmt.Sprintf("opening database: %v", err), err)
		return 1
	}
	defer db.Close()

	// start CLI
	cli := commandLine{
		out:    os.Stdout,
		logger: logger,
		migrate: func(command string, args ...string) error {
			return database.RunMigration(db, command, args...)
		},
		schools: school.NewService(sqlxrepos.NewSchoolRepository(db)),
		usrRepo: sqlxrepos.NewUserRepository(db),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("%s failed: %v", os.Args[1], err), err)
		}
		return 1
	}
	return 0
}
