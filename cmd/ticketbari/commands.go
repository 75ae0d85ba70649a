package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Domenick1991/ticketbari/internal/auth"
	"github.com/Domenick1991/ticketbari/internal/domain"
	"github.com/Domenick1991/ticketbari/internal/lifecycle"
	"github.com/Domenick1991/ticketbari/internal/storeclient"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

const (
	envURL   = "TICKETBARI_URL"
	envToken = "TICKETBARI_TOKEN"
)

// connection holds the flags every API command shares.
type connection struct {
	url     string
	token   string
	timeout time.Duration
}

func (c *connection) addFlags(fs *pflag.FlagSet, getenv func(string) string) {
	defaultURL := getenv(envURL)
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}
	fs.StringVar(&c.url, "url", defaultURL, "booking API base URL (env "+envURL+")")
	fs.StringVar(&c.token, "token", getenv(envToken), "bearer token (env "+envToken+")")
	fs.DurationVar(&c.timeout, "timeout", 10*time.Second, "deadline for each API call")
}

type cliApp struct {
	ctx    context.Context
	out    io.Writer
	getenv func(string) string
	clock  clockwork.Clock
	logger *logrus.Entry
}

func (a *cliApp) session(conn *connection) (*lifecycle.Manager, *storeclient.Client) {
	client := storeclient.New(conn.url, conn.token)
	manager := lifecycle.NewManager(client, client,
		lifecycle.WithClock(a.clock),
		lifecycle.WithTimeout(conn.timeout),
		lifecycle.WithLogger(a.logger),
	)
	return manager, client
}

func (a *cliApp) actor(conn *connection) (domain.Actor, error) {
	if conn.token == "" {
		return domain.Actor{}, fmt.Errorf("%w: --token or %s is required", errUsage, envToken)
	}
	return auth.PeekActor(conn.token)
}

func (a *cliApp) root() *Command {
	return &Command{
		Name:    "ticketbari",
		Summary: "Book and manage travel tickets.",
		Subcommands: []*Command{
			a.tokenCommand(),
			a.ticketsCommand(),
			a.moderateCommand(),
			a.bookCommand(),
			a.showCommand(),
			a.watchCommand(),
			a.statusCommand("accept", "Approve a pending booking (vendor or admin).", lifecycle.EventAccept),
			a.statusCommand("reject", "Reject a pending booking (vendor or admin).", lifecycle.EventReject),
			a.statusCommand("cancel", "Cancel your pending booking.", lifecycle.EventCancel),
			a.payCommand(),
			a.passCommand(),
		},
	}
}

func (a *cliApp) tokenCommand() *Command {
	var secret, issuer, email, role string
	var ttl time.Duration
	return &Command{
		Name:    "token",
		Summary: "Mint a bearer token for local testing.",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("token", pflag.ContinueOnError)
			fs.StringVar(&secret, "secret", a.getenv("TICKETBARI_JWT_SECRET"), "signing secret")
			fs.StringVar(&issuer, "issuer", "ticketbari", "token issuer")
			fs.StringVar(&email, "email", "", "actor email")
			fs.StringVar(&role, "role", string(domain.RoleUser), "actor role: user, vendor or admin")
			fs.DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
			return fs
		},
		Run: func([]string) error {
			if secret == "" {
				return fmt.Errorf("%w: --secret is required", errUsage)
			}
			token, exp, err := auth.NewIssuer(secret, issuer, ttl, a.clock).Sign(domain.Actor{Email: email, Role: domain.Role(role)})
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, token)
			a.logger.WithField("expires_at", exp.Format(time.RFC3339)).Debug("token minted")
			return nil
		},
	}
}

func (a *cliApp) ticketsCommand() *Command {
	var conn connection
	var mine bool
	return &Command{
		Name:    "tickets",
		Summary: "List tickets on sale, or your own listings with --mine.",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("tickets", pflag.ContinueOnError)
			conn.addFlags(fs, a.getenv)
			fs.BoolVar(&mine, "mine", false, "list your own tickets in every moderation state (vendor)")
			return fs
		},
		Run: func([]string) error {
			ctx, cancel := context.WithTimeout(a.ctx, conn.timeout)
			defer cancel()
			client := storeclient.New(conn.url, conn.token)
			var (
				list []domain.Ticket
				err  error
			)
			if mine {
				if _, err := a.actor(&conn); err != nil {
					return err
				}
				list, err = client.ListMyTickets(ctx)
			} else {
				list, err = client.ListTickets(ctx)
			}
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 2, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tROUTE\tTRANSPORT\tPRICE\tSEATS\tDEPARTS\tSTATUS")
			for _, t := range list {
				fmt.Fprintf(tw, "%s\t%s -> %s\t%s\t%d\t%d\t%s\t%s\n",
					t.ID, t.From, t.To, t.Transport, t.UnitPrice, t.AvailableQuantity, t.DepartureAt.Format(time.RFC3339), t.Status)
			}
			return tw.Flush()
		},
	}
}

func (a *cliApp) moderateCommand() *Command {
	var conn connection
	return &Command{
		Name:    "moderate",
		Summary: "Approve or reject a listed ticket (admin).",
		Usage:   "<ticket-id> approved|rejected [flags]",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("moderate", pflag.ContinueOnError)
			conn.addFlags(fs, a.getenv)
			return fs
		},
		Run: func(args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("%w: expected a ticket id and a status", errUsage)
			}
			status, err := domain.ParseTicketStatus(args[1])
			if err != nil {
				return fmt.Errorf("%w: %w", errUsage, err)
			}
			actor, err := a.actor(&conn)
			if err != nil {
				return err
			}
			if actor.Role != domain.RoleAdmin {
				return fmt.Errorf("%w: only admins moderate tickets", domain.ErrForbidden)
			}
			ctx, cancel := context.WithTimeout(a.ctx, conn.timeout)
			defer cancel()
			ticket, err := storeclient.New(conn.url, conn.token).SetTicketStatus(ctx, args[0], status)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "ticket %s is now %s\n", ticket.ID, ticket.Status)
			return nil
		},
	}
}

func (a *cliApp) bookCommand() *Command {
	var conn connection
	var ticketID string
	var quantity int
	return &Command{
		Name:    "book",
		Summary: "Book seats on a ticket.",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("book", pflag.ContinueOnError)
			conn.addFlags(fs, a.getenv)
			fs.StringVar(&ticketID, "ticket", "", "ticket id")
			fs.IntVarP(&quantity, "quantity", "q", 1, "number of seats")
			return fs
		},
		Run: func([]string) error {
			actor, err := a.actor(&conn)
			if err != nil {
				return err
			}
			manager, _ := a.session(&conn)
			created, err := manager.Book(a.ctx, actor, ticketID, quantity)
			if err != nil {
				return err
			}
			a.printBooking(*created)
			return nil
		},
	}
}

func (a *cliApp) showCommand() *Command {
	var conn connection
	return &Command{
		Name:    "show",
		Summary: "Show a booking and what can be done with it.",
		Usage:   "<booking-id> [flags]",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("show", pflag.ContinueOnError)
			conn.addFlags(fs, a.getenv)
			return fs
		},
		Run: func(args []string) error {
			id, err := oneID(args)
			if err != nil {
				return err
			}
			manager, _ := a.session(&conn)
			view, err := manager.Refresh(a.ctx, id)
			if err != nil {
				return err
			}
			a.printBooking(view.Booking)
			a.printEligibility(manager.Eligibility(id))
			return nil
		},
	}
}

func (a *cliApp) watchCommand() *Command {
	var conn connection
	var interval time.Duration
	return &Command{
		Name:    "watch",
		Summary: "Count down to a booking's departure.",
		Usage:   "<booking-id> [flags]",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("watch", pflag.ContinueOnError)
			conn.addFlags(fs, a.getenv)
			fs.DurationVar(&interval, "interval", time.Second, "refresh interval")
			return fs
		},
		Run: func(args []string) error {
			id, err := oneID(args)
			if err != nil {
				return err
			}
			manager, _ := a.session(&conn)
			if _, err := manager.Refresh(a.ctx, id); err != nil {
				return err
			}
			err = manager.Watch(a.ctx, id, interval, func(r lifecycle.Remaining) {
				fmt.Fprintln(a.out, r.String())
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func (a *cliApp) statusCommand(name, summary string, event lifecycle.Event) *Command {
	var conn connection
	return &Command{
		Name:    name,
		Summary: summary,
		Usage:   "<booking-id> [flags]",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
			conn.addFlags(fs, a.getenv)
			return fs
		},
		Run: func(args []string) error {
			id, err := oneID(args)
			if err != nil {
				return err
			}
			actor, err := a.actor(&conn)
			if err != nil {
				return err
			}
			manager, _ := a.session(&conn)

			var result *domain.Booking
			switch event {
			case lifecycle.EventAccept:
				result, err = manager.Accept(a.ctx, actor, id)
			case lifecycle.EventReject:
				result, err = manager.Reject(a.ctx, actor, id)
			default:
				result, err = manager.Cancel(a.ctx, actor, id)
			}
			if err != nil {
				return err
			}
			if event == lifecycle.EventCancel {
				fmt.Fprintf(a.out, "booking %s cancelled\n", result.ID)
				return nil
			}
			a.printBooking(*result)
			a.printEligibility(manager.Eligibility(id))
			return nil
		},
	}
}

func (a *cliApp) payCommand() *Command {
	var conn connection
	var reference string
	return &Command{
		Name:    "pay",
		Summary: "Record payment for an approved booking.",
		Usage:   "<booking-id> --reference <ref> [flags]",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("pay", pflag.ContinueOnError)
			conn.addFlags(fs, a.getenv)
			fs.StringVar(&reference, "reference", "", "payment reference from the payment provider")
			return fs
		},
		Run: func(args []string) error {
			id, err := oneID(args)
			if err != nil {
				return err
			}
			actor, err := a.actor(&conn)
			if err != nil {
				return err
			}
			manager, _ := a.session(&conn)
			paid, err := manager.Pay(a.ctx, actor, id, strings.TrimSpace(reference))
			if err != nil {
				return err
			}
			a.printBooking(*paid)
			a.printEligibility(manager.Eligibility(id))
			return nil
		},
	}
}

func (a *cliApp) passCommand() *Command {
	var conn connection
	var output string
	return &Command{
		Name:    "pass",
		Summary: "Download the QR ticket pass of a paid booking.",
		Usage:   "<booking-id> [flags]",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("pass", pflag.ContinueOnError)
			conn.addFlags(fs, a.getenv)
			fs.StringVarP(&output, "output", "o", "", "file to write (default <booking-id>.jpg)")
			return fs
		},
		Run: func(args []string) error {
			id, err := oneID(args)
			if err != nil {
				return err
			}
			manager, client := a.session(&conn)
			if _, err := manager.Refresh(a.ctx, id); err != nil {
				return err
			}
			if !manager.Eligibility(id).Allows(lifecycle.ActionDownloadTicket) {
				return fmt.Errorf("%w: booking %s has no pass yet", domain.ErrNotEligible, id)
			}
			if output == "" {
				output = id + ".jpg"
			}

			f, err := os.Create(output)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(a.ctx, conn.timeout)
			defer cancel()
			if err := client.DownloadPass(ctx, id, f); err != nil {
				f.Close()
				os.Remove(output)
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "pass written to %s\n", output)
			return nil
		},
	}
}

func (a *cliApp) printBooking(b domain.Booking) {
	tw := tabwriter.NewWriter(a.out, 2, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "id\t%s\n", b.ID)
	fmt.Fprintf(tw, "ticket\t%s\n", b.TicketID)
	fmt.Fprintf(tw, "status\t%s\n", b.Status)
	fmt.Fprintf(tw, "quantity\t%d\n", b.Quantity)
	fmt.Fprintf(tw, "total\t%d\n", b.TotalPrice)
	fmt.Fprintf(tw, "departs\t%s\n", b.DepartureAt.Format(time.RFC3339))
	fmt.Fprintf(tw, "countdown\t%s\n", lifecycle.ComputeRemaining(b.DepartureAt, a.clock.Now()))
	tw.Flush()
}

func (a *cliApp) printEligibility(e lifecycle.Eligibility) {
	if e.Notice != "" {
		fmt.Fprintf(a.out, "notice: %s\n", e.Notice)
	}
	if len(e.Actions) == 0 {
		return
	}
	actions := make([]string, len(e.Actions))
	for i, action := range e.Actions {
		actions[i] = string(action)
	}
	fmt.Fprintf(a.out, "actions: %s\n", strings.Join(actions, ", "))
}

func oneID(args []string) (string, error) {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return "", fmt.Errorf("%w: exactly one booking id is required", errUsage)
	}
	return args[0], nil
}
