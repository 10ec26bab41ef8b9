package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/ioutil"

	"github.com/go-playground/validator/v10"
	pkgerrors "github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	echoapi "github.com/trezcool/assessly/apps/api/echo"
	"github.com/trezcool/assessly/core"
	"github.com/trezcool/assessly/core/assessment"
	"github.com/trezcool/assessly/core/attempt"
	"github.com/trezcool/assessly/storage/database"
)

var (
	gooseRunFunc = database.RunMigrations // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf     *core.Config
	db       *sql.DB
	catalog  *assessment.Catalog
	attempts *attempt.Service
	validate *validator.Validate
	out      io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                      - run goose COMMAND (up, down, status, ...) on the database")
	fmt.Fprintln(cli.out, "  seed -file FILE                             - create or replace the assessments described in a YAML file")
	fmt.Fprintln(cli.out, "  expire                                      - expire every in-progress attempt past its deadline")
	fmt.Fprintln(cli.out, "  token -learner ID [-name NAME] [-email EMAIL] - print an API token for a learner")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	seedCmd := flag.NewFlagSet("seed", flag.ContinueOnError)
	seedCmd.SetOutput(cli.out)
	seedFile := seedCmd.String("file", "", "YAML file holding one assessment or a list of assessments.")

	tokenCmd := flag.NewFlagSet("token", flag.ContinueOnError)
	tokenCmd.SetOutput(cli.out)
	tokenLearner := tokenCmd.String("learner", "", "The learner ID (token subject).")
	tokenName := tokenCmd.String("name", "", "The learner's name.")
	tokenEmail := tokenCmd.String("email", "", "The learner's email, receipts are sent there.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "seed":
		if err := seedCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *seedFile == "" {
			seedCmd.Usage()
			return errHelp
		}
		return cli.seed(*seedFile)
	case "expire":
		return cli.expire()
	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *tokenLearner == "" {
			tokenCmd.Usage()
			return errHelp
		}
		return cli.token(core.Learner{
			ID:    core.CleanString(*tokenLearner),
			Name:  core.CleanString(*tokenName),
			Email: core.CleanString(*tokenEmail, true /* lower */),
		})
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) migrate(args []string) error {
	return gooseRunFunc(cli.db, args[0], args[1:]...)
}

// seed creates or replaces every assessment found in the file.
func (cli *commandLine) seed(path string) error {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return err
	}

	var assessments []assessment.NewAssessment
	if err = yaml.UnmarshalStrict(data, &assessments); err != nil {
		var one assessment.NewAssessment
		if err = yaml.UnmarshalStrict(data, &one); err != nil {
			return pkgerrors.Wrapf(err, "parsing %s", path)
		}
		assessments = []assessment.NewAssessment{one}
	}

	ctx := context.Background()
	for i, na := range assessments {
		a, err := cli.catalog.Save(ctx, cli.validate, na)
		if err != nil {
			return pkgerrors.Wrapf(err, "saving assessment #%d", i+1)
		}
		fmt.Fprintf(cli.out, "saved %s (%d questions)\n", a.ID, len(a.Questions))
	}
	return nil
}

func (cli *commandLine) expire() error {
	n, err := cli.attempts.ExpireOverdue(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%d attempt(s) expired\n", n)
	return nil
}

func (cli *commandLine) token(learner core.Learner) error {
	token, err := echoapi.GenerateToken(cli.conf.SecretKey, echoapi.NewLearnerClaims(cli.conf, learner))
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, token)
	return nil
}
