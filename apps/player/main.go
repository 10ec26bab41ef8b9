package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"golang.org/x/term"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/trezcool/assessly/core"
	"github.com/trezcool/assessly/core/player"
	"github.com/trezcool/assessly/services/attemptapi"
	logsvc "github.com/trezcool/assessly/services/logger"
)

func main() {
	conf := core.NewConfig()

	app := kingpin.New("player", "Take a timed assessment from the terminal.")
	app.UsageTemplate(kingpin.CompactUsageTemplate).Version(conf.Build)
	apiURL := app.Flag("api", "Base URL of the attempt API.").Default(conf.Player.APIBaseURL).String()
	token := app.Flag("token", "Learner API token (see `admin token`).").Default(conf.Player.Token).String()
	assessmentID := app.Flag("assessment", "ID of the assessment to take.").Short('a').Required().String()
	noColor := app.Flag("no-color", "Disable colored output.").Bool()
	verbose := app.Flag("verbose", "Log engine activity to stderr.").Short('v').Bool()
	kingpin.MustParse(app.Parse(os.Args[1:]))

	color.NoColor = *noColor || !term.IsTerminal(int(os.Stdout.Fd()))

	level := logsvc.LevelWarn
	if *verbose {
		level = logsvc.LevelDebug
	}
	logger := logsvc.NewConsoleLogger(os.Stderr, level)

	conf.Player.APIBaseURL = *apiURL
	conf.Player.Token = *token
	client, err := attemptapi.NewFromConfig(conf.Player)
	if err != nil {
		app.Fatalf("%v", err)
	}

	session, err := player.NewSession(client, client, core.CleanString(*assessmentID, true /* lower */), player.OptionsFromConfig(conf.Player, logger))
	if err != nil {
		app.Fatalf("%v", err)
	}
	defer session.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err = newTerminal(session, os.Stdin, color.Output).run(ctx); err != nil && err != context.Canceled {
		fmt.Fprintln(os.Stderr, err)
	}
}
