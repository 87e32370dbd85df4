// Command busfinder lists upcoming conventional bus departures, with fares and
// discount tiers, for one of a fixed set of weekly routes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strconv"
	"syscall"

	"busfinder.onibus.dev/internal/app"
	"busfinder.onibus.dev/internal/appconf"
	"busfinder.onibus.dev/internal/batch"
	"busfinder.onibus.dev/internal/logging"
	"busfinder.onibus.dev/internal/prompt"
	"busfinder.onibus.dev/internal/report"
	"busfinder.onibus.dev/internal/routes"
)

const (
	exitOK      = 0
	exitInvalid = 1
	exitFatal   = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg, err := appconf.Load(args, os.Getenv, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitInvalid
	}

	application, err := BuildApplication(cfg, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitInvalid
	}
	defer logging.SafeCloseWithLogging(application, application.Logger, "application")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, application.Logger)

	return guard(application.Logger, func() int {
		return execute(ctx, application, stdin, stdout)
	})
}

// guard turns a panic that escaped every per-date recovery into a fatal exit.
func guard(logger *slog.Logger, fn func() int) (code int) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("fatal error",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			code = exitFatal
		}
	}()
	return fn()
}

func execute(ctx context.Context, application *app.Application, stdin io.Reader, stdout io.Writer) int {
	logger := application.Logger
	scheduled := application.Schedule(ctx)

	idx, err := choose(application.Config, stdin, stdout, scheduled)
	switch {
	case errors.Is(err, prompt.ErrNoSelection):
		fmt.Fprintln(stdout, "Nenhuma rota selecionada.")
		logger.Info("no route selected")
		return exitOK
	case errors.Is(err, prompt.ErrInvalidSelection):
		fmt.Fprintf(stdout, "Opção inválida: %v\n", err)
		logging.LogWarn(logger, "rejected route selection", err)
		return exitInvalid
	case err != nil:
		logging.LogError(logger, "failed to read route selection", err)
		return exitInvalid
	}

	route := scheduled[idx]
	runner := application.Runner

	var rep batch.RouteReport
	if len(route.Dates) == 0 {
		rep = runner.Run(ctx, route)
		if err := report.Write(stdout, rep); err != nil {
			logging.LogError(logger, "failed to write report", err)
		}
	} else {
		fmt.Fprintln(stdout, route.DisplayName)
		runner.OnOutcome = func(o batch.DateOutcome) {
			if err := report.WriteOutcome(stdout, o); err != nil {
				logging.LogError(logger, "failed to write report", err)
			}
		}
		rep = runner.Run(ctx, route)
		fmt.Fprintf(stdout, "\n%s\n", report.Summary(rep))
	}

	if application.Config.Dump {
		report.Dump(stdout, rep)
	}
	return exitOK
}

// choose uses -route when given, and the interactive menu otherwise.
func choose(cfg appconf.Config, stdin io.Reader, stdout io.Writer, scheduled []routes.ScheduledRoute) (int, error) {
	if cfg.RouteIndex > 0 {
		return prompt.ParseSelection(strconv.Itoa(cfg.RouteIndex), len(scheduled))
	}
	return prompt.Select(stdin, stdout, scheduled)
}
