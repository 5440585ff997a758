package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"smec-portal/internal/api"
	"smec-portal/internal/app"
	"smec-portal/internal/auth"
	"smec-portal/internal/config"
	"smec-portal/internal/kafka"
	"smec-portal/internal/logger"
	"smec-portal/internal/models"
	"smec-portal/internal/registration"
	tickets "smec-portal/internal/tickets/service"

	"github.com/fatih/color"
	"github.com/spf13/pflag"
)

// cueFlushTimeout bounds how long register waits for cues before exit.
const cueFlushTimeout = 5 * time.Second

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

type command struct {
	summary string
	run     func(ctx context.Context, c *cli, args []string) error
}

var commands = map[string]command{
	"login":       {"sign in as a participant", cmdLogin(false)},
	"admin-login": {"sign in as an organizer", cmdLogin(true)},
	"signup":      {"create a participant account", cmdSignup},
	"logout":      {"forget the stored session", cmdLogout},
	"whoami":      {"show the signed-in user", cmdWhoami},
	"events":      {"list events", cmdEvents},
	"event":       {"show one event", cmdEvent},
	"register":    {"register a team for an event", cmdRegister},
	"tickets":     {"list your tickets", cmdTickets},
	"pass":        {"download the PDF pass of a ticket", cmdPass},
	"watch":       {"follow registration attempts (organizers)", cmdWatch},
}

type cli struct {
	cfg *config.Config
	io  stdio
	log *logger.Logger
	app *app.App
	now func() time.Time
}

func run(ctx context.Context, args []string, cfg *config.Config, std stdio) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printUsage(std.Out)
		return nil
	}

	cmd, ok := commands[args[0]]
	if !ok {
		printUsage(std.Err)
		return fmt.Errorf("unknown command %q", args[0])
	}

	// the logger, the bell cue and prompts share stderr
	std.Err = &syncWriter{w: std.Err}

	log := logger.NewConsoleLogger(std.Err)
	log.SetLevel(logger.WARN)

	core, err := app.Build(ctx, cfg, log, registration.BellCue{W: std.Err})
	if err != nil {
		return err
	}
	defer core.Close()

	c := &cli{cfg: cfg, io: std, log: log, app: core, now: time.Now}
	return cmd.run(ctx, c, args[1:])
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: smec <command> [flags]")
	fmt.Fprintln(w)
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-12s %s\n", name, commands[name].summary)
	}
}

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func (c *cli) prompt(label string) (string, error) {
	fmt.Fprintf(c.io.Err, "%s: ", label)
	line, err := bufio.NewReader(c.io.In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (c *cli) requireSession(ctx context.Context) (*models.Session, error) {
	s := c.app.Sessions.Current(ctx)
	if s == nil {
		return nil, fmt.Errorf("%w: run `smec login` first", models.ErrUnauthenticated)
	}
	return s, nil
}

func cmdLogin(admin bool) func(ctx context.Context, c *cli, args []string) error {
	return func(ctx context.Context, c *cli, args []string) error {
		fs := newFlagSet("login")
		email := fs.String("email", "", "account email")
		password := fs.String("password", "", "account password (prompted when omitted)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *email == "" {
			return errors.New("--email is required")
		}
		if *password == "" {
			p, err := c.prompt("Password")
			if err != nil {
				return err
			}
			*password = p
		}

		creds := models.Credentials{Email: *email, Password: *password}
		login, fallback := c.app.API.Login, api.DefaultLoginMessage
		if admin {
			login, fallback = c.app.API.AdminLogin, api.DefaultAdminLoginMessage
		}
		result, err := login(ctx, creds)
		if err != nil {
			return errors.New(api.Message(err, fallback))
		}
		if err := c.app.Sessions.Login(ctx, *result); err != nil {
			return err
		}
		fmt.Fprintf(c.io.Out, "Welcome Back %s!\n", result.User.FullName)
		return nil
	}
}

func cmdSignup(ctx context.Context, c *cli, args []string) error {
	fs := newFlagSet("signup")
	var req models.SignupRequest
	fs.StringVar(&req.FullName, "name", "", "full name")
	fs.StringVar(&req.Email, "email", "", "email")
	fs.StringVar(&req.PhoneNumber, "phone", "", "phone number")
	fs.StringVar(&req.Password, "password", "", "password (prompted when omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if req.FullName == "" || req.Email == "" {
		return errors.New("--name and --email are required")
	}
	if req.Password == "" {
		p, err := c.prompt("Password")
		if err != nil {
			return err
		}
		req.Password = p
	}

	if err := c.app.API.Signup(ctx, req); err != nil {
		return errors.New(api.Message(err, api.DefaultSignupMessage))
	}
	fmt.Fprintln(c.io.Out, "Account created. Sign in with `smec login`.")
	return nil
}

func cmdLogout(ctx context.Context, c *cli, args []string) error {
	c.app.Sessions.Logout(ctx)
	fmt.Fprintln(c.io.Out, "Logged out.")
	return nil
}

func cmdWhoami(ctx context.Context, c *cli, args []string) error {
	s := c.app.Sessions.Current(ctx)
	if s == nil {
		fmt.Fprintln(c.io.Out, "Not signed in.")
		return nil
	}
	fmt.Fprintf(c.io.Out, "%s <%s> (%s)\n", s.User.FullName, s.User.Email, s.User.Role)
	if exp, ok := auth.TokenExpiry(s.Token); ok {
		fmt.Fprintf(c.io.Out, "session expires %s\n", exp.Local().Format(time.RFC1123))
	}
	return nil
}

func cmdEvents(ctx context.Context, c *cli, args []string) error {
	fs := newFlagSet("events")
	category := fs.String("category", "", "E-Games, Geeks or General Games")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := c.app.Catalog.Refresh(ctx); err != nil {
		return err
	}

	events := c.app.Catalog.ByCategory(*category)
	if len(events) == 0 {
		fmt.Fprintln(c.io.Out, "No events found.")
		return nil
	}
	for _, ev := range events {
		line := fmt.Sprintf("%-26s %-32s %-14s %-16s Rs.%.0f", ev.ID, ev.Title, ev.Category, ev.EntryLabel(), ev.Price)
		fmt.Fprint(c.io.Out, line)
		if label := ev.StockLabel(); label != "" {
			stock := color.New(color.FgYellow)
			if ev.IsSoldOut() {
				stock = color.New(color.FgRed)
			}
			stock.Fprintf(c.io.Out, "  %s", label)
		}
		fmt.Fprintln(c.io.Out)
	}
	return nil
}

func cmdEvent(ctx context.Context, c *cli, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: smec event <event-id>")
	}
	ev, err := c.app.Catalog.Get(ctx, args[0])
	if err != nil {
		return err
	}

	out := c.io.Out
	fmt.Fprintln(out, ev.Title)
	fmt.Fprintf(out, "  %s\n", ev.Description)
	fmt.Fprintf(out, "  Category: %s\n", ev.Category)
	fmt.Fprintf(out, "  Date:     %s at %s\n", ev.Date.Local().Format("Jan 2, 2006"), ev.Time)
	fmt.Fprintf(out, "  Location: %s\n", ev.Location)
	fmt.Fprintf(out, "  Format:   %s\n", ev.FormatLabel())
	fmt.Fprintf(out, "  Fee:      Rs.%.0f\n", ev.Price)
	fmt.Fprintf(out, "  Slots:    %d of %d left\n", ev.Remaining(), ev.TotalTickets)
	return nil
}

func parseMember(raw string) (models.TeamMember, error) {
	name, university, ok := strings.Cut(raw, "|")
	if !ok {
		return models.TeamMember{}, fmt.Errorf("member %q must look like \"Name|University\"", raw)
	}
	return models.TeamMember{FullName: name, UniversityName: university}, nil
}

func cmdRegister(ctx context.Context, c *cli, args []string) error {
	fs := newFlagSet("register")
	members := fs.StringArray("member", nil, `team member as "Name|University" (repeat per member)`)
	discount := fs.String("discount", "", "discount code")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: smec register <event-id> --member \"Name|University\"...")
	}
	if _, err := c.requireSession(ctx); err != nil {
		return err
	}
	if err := c.app.Catalog.Refresh(ctx); err != nil {
		return err
	}
	ev, err := c.app.Catalog.Get(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	if len(*members) != ev.TeamSize {
		return fmt.Errorf("%s needs exactly %d member(s), got %d", ev.Title, ev.TeamSize, len(*members))
	}

	form := registration.NewForm(*ev, registration.Deps{
		Sessions:  c.app.Sessions,
		Purchaser: c.app.API,
		Events:    c.app.Catalog,
		Cue:       c.app.Cue,
		Lock:      c.app.Lock,
		Logger:    c.log,
	})
	defer form.Close()
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cueFlushTimeout)
		defer cancel()
		if err := form.FlushCues(flushCtx); err != nil {
			c.log.Warn("REGISTRATION", fmt.Sprintf("Purchase cues still pending at exit: %v", err))
		}
	}()

	for i, raw := range *members {
		m, err := parseMember(raw)
		if err != nil {
			return err
		}
		if err := form.Edit(i, registration.FieldFullName, m.FullName); err != nil {
			return err
		}
		if err := form.Edit(i, registration.FieldUniversityName, m.UniversityName); err != nil {
			return err
		}
	}
	form.SetDiscountCode(*discount)

	ticket, err := form.Submit(ctx)
	if err != nil {
		if errors.Is(err, models.ErrRemoteFailure) {
			return errors.New(form.State().Reason)
		}
		return err
	}

	color.New(color.FgGreen).Fprintln(c.io.Out, "Registered Successfully!")
	if ticket != nil {
		fmt.Fprintf(c.io.Out, "Ticket %s (%s)\n", ticket.SerialNumber, ticket.ID)
	}
	return nil
}

func cmdTickets(ctx context.Context, c *cli, args []string) error {
	fs := newFlagSet("tickets")
	offline := fs.Bool("offline", false, "show the locally stored copy without contacting the server")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := c.requireSession(ctx)
	if err != nil {
		return err
	}

	var list []models.Ticket
	if *offline {
		list, err = c.app.Dashboard.Cached(ctx, s.User.ID)
	} else {
		list, err = c.app.Dashboard.Load(ctx, s)
	}
	if err != nil {
		return err
	}

	view := tickets.BuildView(list, c.now())
	out := c.io.Out
	fmt.Fprintf(out, "Active: %d  Spent: Rs.%.0f  Members: %d\n\n",
		view.Stats.ActiveTickets, view.Stats.TotalSpent, view.Stats.TotalMembers)
	if len(view.Tickets) == 0 {
		fmt.Fprintln(out, "No tickets yet.")
		return nil
	}
	for _, t := range view.Tickets {
		status := color.New(color.FgGreen)
		if t.Status == models.PassCompleted {
			status = color.New(color.FgHiBlack)
		}
		fmt.Fprintf(out, "%-26s %-12s %-32s %s at %s  ", t.ID, t.SerialNumber, t.Event.Title,
			t.Event.Date.Local().Format("Jan 2, 2006"), t.Event.Time)
		status.Fprintln(out, t.Status)
	}
	return nil
}

func cmdPass(ctx context.Context, c *cli, args []string) error {
	fs := newFlagSet("pass")
	outDir := fs.String("out", "", "directory to write the PDF into")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: smec pass <ticket-id> [--out dir]")
	}
	s, err := c.requireSession(ctx)
	if err != nil {
		return err
	}
	ticketID := fs.Arg(0)

	var ticket *models.Ticket
	if _, err := c.app.Dashboard.Load(ctx, s); err != nil {
		if errors.Is(err, models.ErrUnauthenticated) {
			return err
		}
		c.log.Warn("PASS", fmt.Sprintf("Using local copy, server unavailable: %v", err))
	} else if t, ok := c.app.Dashboard.Find(s.User.ID, ticketID); ok {
		ticket = t
	}
	if ticket == nil {
		t, err := c.app.Dashboard.CachedTicket(ctx, s.User.ID, ticketID)
		if err != nil {
			return fmt.Errorf("ticket %s not found", ticketID)
		}
		ticket = t
	}

	artifact, err := c.app.Passes.Render(*ticket)
	if err != nil {
		return err
	}
	dir := *outDir
	if dir == "" {
		dir = c.app.OutputDir()
	}
	path, err := artifact.Save(dir)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.io.Out, "Saved %s\n", path)
	return nil
}

func cmdWatch(ctx context.Context, c *cli, args []string) error {
	if !c.app.Sessions.IsAdmin(ctx) {
		return fmt.Errorf("%w: organizer sign-in required", models.ErrUnauthorized)
	}
	if !c.cfg.Kafka.Enabled {
		return errors.New("kafka is disabled (set SMEC_KAFKA_ENABLED=true)")
	}

	consumer := kafka.NewConsumer(c.cfg.Kafka.Brokers, c.cfg.Kafka.Topic, "smec-watch", c.log)
	defer consumer.Close()

	fmt.Fprintln(c.io.Out, "Following registration attempts, Ctrl-C to stop.")
	return consumer.Start(ctx, func(a kafka.RegistrationAttempted) {
		fmt.Fprintf(c.io.Out, "%s  %-32s team of %d, %d left\n",
			a.AttemptedAt.Local().Format(time.Kitchen), a.EventTitle, a.TeamSize, a.Remaining)
	})
}
