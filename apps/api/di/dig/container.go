package dig_container

import (
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/assessly/apps/api/echo"
	"github.com/trezcool/assessly/core"
	"github.com/trezcool/assessly/core/assessment"
	"github.com/trezcool/assessly/core/attempt"
	emailsvc "github.com/trezcool/assessly/services/email"
	logsvc "github.com/trezcool/assessly/services/logger"
	"github.com/trezcool/assessly/storage/database"
	inmemdb "github.com/trezcool/assessly/storage/database/inmem"
	sqlxrepos "github.com/trezcool/assessly/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// StorageCloser releases the database behind the repositories.
type StorageCloser func() error

type storage struct {
	dig.Out
	Assessments assessment.Repository
	Attempts    attempt.Repository
	Close       StorageCloser
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newStorage(conf *core.Config, loggerParam DBLoggerParam) storage {
	if conf.Database.InMemory {
		db, err := inmemdb.Open()
		if err != nil {
			loggerParam.Logger.Fatal(fmt.Sprintf("opening in-memory database: %v", err), err)
		}
		loggerParam.Logger.Warn("using the in-memory database: data is lost on exit")
		return storage{
			Assessments: inmemdb.NewAssessmentRepository(db),
			Attempts:    inmemdb.NewAttemptRepository(db),
			Close:       func() error { return nil },
		}
	}

	setUp := func() (core.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db.DB); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return storage{
		Assessments: sqlxrepos.NewAssessmentRepository(db),
		Attempts:    sqlxrepos.NewAttemptRepository(db),
		Close:       db.Close,
	}
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newAttemptService(
	repo attempt.Repository,
	catalog *assessment.Catalog,
	mailSvc core.EmailService,
	logger core.Logger,
) *attempt.Service {
	return attempt.NewService(repo, catalog, mailSvc, logger)
}

func newServer(
	conf *core.Config,
	logger core.Logger,
	catalog *assessment.Catalog,
	attemptSvc *attempt.Service,
	validate *validator.Validate,
	translator ut.Translator,
) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:       conf,
		Logger:     logger,
		Catalog:    catalog,
		AttemptSvc: attemptSvc,
		Validate:   validate,
		Translator: translator,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newStorage))
	must(c.Provide(newEmailService))
	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(assessment.NewCatalog))
	must(c.Provide(newAttemptService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
