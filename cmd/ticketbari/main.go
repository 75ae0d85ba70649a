// Command ticketbari is the client for the booking API: it lists tickets,
// books seats and walks a booking through approval, payment and its pass.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/ticketbari/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Getenv)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, describe(err))
		os.Exit(exitCode(err))
	}
}

func run(ctx context.Context, args []string, out io.Writer, getenv func(string) string) error {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)
	if getenv("TICKETBARI_DEBUG") != "" {
		logger.SetLevel(logrus.DebugLevel)
	}

	app := &cliApp{
		ctx:    ctx,
		out:    out,
		getenv: getenv,
		clock:  clockwork.NewRealClock(),
		logger: logrus.NewEntry(logger),
	}
	return app.root().Execute(out, args)
}

func describe(err error) string {
	if errors.Is(err, errUsage) {
		return "error: " + err.Error()
	}
	return fmt.Sprintf("error [%s]: %v", domain.ErrorCode(err), err)
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, errUsage):
		return 2
	case errors.Is(err, domain.ErrUnreachable):
		return 3
	}
	return 1
}
