package main

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/assessly/core"
	"github.com/trezcool/assessly/core/assessment"
	"github.com/trezcool/assessly/core/attempt"
	emailsvc "github.com/trezcool/assessly/services/email"
	logsvc "github.com/trezcool/assessly/services/logger"
	"github.com/trezcool/assessly/storage/database"
	sqlxrepos "github.com/trezcool/assessly/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	logger.Enable(!conf.Debug)

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	catalog := assessment.NewCatalog(sqlxrepos.NewAssessmentRepository(db))

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	assessment.InitValidators(validate, translator)

	// start CLI
	cli := commandLine{
		conf:     conf,
		db:       db.DB,
		catalog:  catalog,
		attempts: attempt.NewService(sqlxrepos.NewAttemptRepository(db), catalog, mailSvc, logger),
		validate: validate,
		out:      os.Stdout,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %v", err), err)
		}
		os.Exit(1)
	}
}
