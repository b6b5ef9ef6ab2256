package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"

	"scheduler/internal/agenda"
	"scheduler/internal/api"
	"scheduler/internal/client"
	"scheduler/internal/config"
	"scheduler/internal/google"
	"scheduler/internal/icloud"
	"scheduler/internal/ics"
	"scheduler/internal/messages"
	"scheduler/internal/metrics"
	"scheduler/internal/models"
	"scheduler/internal/store"
	"scheduler/internal/syncer"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "scheduler",
		Usage: "Keep a personal schedule in memory behind a small REST API.",
		Commands: []*cli.Command{
			serveCommand(),
			listCommand(),
			addCommand(),
			editCommand(),
			removeCommand(),
			exportCommand(),
			authCommand(),
			pushCommand(),
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the event API.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "Listen address. Defaults to SCHEDULER_ADDR."},
			&cli.BoolFlag{Name: "seed", Usage: "Start with a few sample events for today."},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.LogLevel)

			addr := cfg.Addr
			if c.IsSet("addr") {
				addr = c.String("addr")
			}

			st := store.New(logger)
			if cfg.Seed || c.Bool("seed") {
				st.Seed(today(cfg.Location()))
			}

			catalog, err := messages.New(cfg.Language)
			if err != nil {
				return fmt.Errorf("failed to load messages: %w", err)
			}

			srv := api.New(api.Options{
				Store:    st,
				Catalog:  catalog,
				Metrics:  metrics.New(st.Len),
				Calendar: ics.Options{Location: cfg.Location(), Duration: cfg.EventDuration},
				Logger:   logger,
			})

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Serve(ctx, addr)
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "Show the events of one day, ordered by time.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "date", Usage: "Day to show (YYYY-MM-DD). Defaults to today."},
		},
		Action: func(c *cli.Context) error {
			cfg, cl, err := newClient()
			if err != nil {
				return err
			}
			date := c.String("date")
			if date == "" {
				date = today(cfg.Location())
			}

			mirror, err := loadMirror(c.Context, cl)
			if err != nil {
				return err
			}
			printDay(c.App.Writer, date, mirror.Day(date))
			return nil
		},
	}
}

func addCommand() *cli.Command {
	return &cli.Command{
		Name:  "add",
		Usage: "Create an event.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title", Required: true},
			&cli.StringFlag{Name: "date", Usage: "YYYY-MM-DD. Defaults to today."},
			&cli.StringFlag{Name: "time", Required: true, Usage: "HH:MM, 24-hour."},
			&cli.StringFlag{Name: "description"},
			&cli.StringFlag{Name: "category", Usage: "work, personal, health or other."},
		},
		Action: func(c *cli.Context) error {
			cfg, cl, err := newClient()
			if err != nil {
				return err
			}
			in := models.EventInput{
				Title:       c.String("title"),
				Date:        c.String("date"),
				Time:        c.String("time"),
				Description: c.String("description"),
				Category:    c.String("category"),
			}
			if in.Date == "" {
				in.Date = today(cfg.Location())
			}
			if err := agenda.CheckRequired(in); err != nil {
				return err
			}

			mirror, err := loadMirror(c.Context, cl)
			if err != nil {
				return err
			}
			ev, err := cl.Create(c.Context, in)
			if err != nil {
				return fmt.Errorf("failed to create event: %w", err)
			}
			mirror.Add(ev)
			fmt.Fprintf(c.App.Writer, "Created #%d\n", ev.ID)
			printDay(c.App.Writer, ev.Date, mirror.Day(ev.Date))
			return nil
		},
	}
}

func editCommand() *cli.Command {
	return &cli.Command{
		Name:  "edit",
		Usage: "Change some fields of an event. Fields not given are kept.",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "id", Required: true},
			&cli.StringFlag{Name: "title"},
			&cli.StringFlag{Name: "date"},
			&cli.StringFlag{Name: "time"},
			&cli.StringFlag{Name: "description"},
			&cli.StringFlag{Name: "category"},
		},
		Action: func(c *cli.Context) error {
			_, cl, err := newClient()
			if err != nil {
				return err
			}
			id := c.Int64("id")
			patch := models.EventPatch{ID: &id}
			for name, field := range map[string]**string{
				"title":       &patch.Title,
				"date":        &patch.Date,
				"time":        &patch.Time,
				"description": &patch.Description,
				"category":    &patch.Category,
			} {
				if c.IsSet(name) {
					v := c.String(name)
					*field = &v
				}
			}

			mirror, err := loadMirror(c.Context, cl)
			if err != nil {
				return err
			}
			ev, err := cl.Update(c.Context, patch)
			if err != nil {
				return fmt.Errorf("failed to update event: %w", err)
			}
			mirror.Put(ev)
			fmt.Fprintf(c.App.Writer, "Updated #%d\n", ev.ID)
			printDay(c.App.Writer, ev.Date, mirror.Day(ev.Date))
			return nil
		},
	}
}

func removeCommand() *cli.Command {
	return &cli.Command{
		Name:  "rm",
		Usage: "Delete an event.",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "id", Required: true},
		},
		Action: func(c *cli.Context) error {
			_, cl, err := newClient()
			if err != nil {
				return err
			}
			mirror, err := loadMirror(c.Context, cl)
			if err != nil {
				return err
			}
			ev, err := cl.Delete(c.Context, c.Int64("id"))
			if err != nil {
				return fmt.Errorf("failed to delete event: %w", err)
			}
			mirror.Remove(ev.ID)
			fmt.Fprintf(c.App.Writer, "Deleted #%d %s\n", ev.ID, ev.Title)
			printDay(c.App.Writer, ev.Date, mirror.Day(ev.Date))
			return nil
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write events as an iCalendar file.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "date", Usage: "Only export this day."},
			&cli.StringFlag{Name: "out", Value: "-", Usage: "Output file, - for stdout."},
		},
		Action: func(c *cli.Context) error {
			_, cl, err := newClient()
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := cl.ICS(c.Context, c.String("date"), &buf); err != nil {
				if errors.Is(err, client.ErrNoEvents) {
					fmt.Fprintln(c.App.ErrWriter, "No events to export.")
					return nil
				}
				return fmt.Errorf("failed to export events: %w", err)
			}

			out := c.String("out")
			if out == "-" {
				_, err := buf.WriteTo(c.App.Writer)
				return err
			}
			if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}
			return nil
		},
	}
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authenticate with a Google account so push can write to its calendar.",
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.LogLevel)
			logger.Info("Starting Google authentication flow.")

			oauthConfig, err := google.GetOAuthConfigForAuthFlow(cfg.Google.ClientID, cfg.Google.ClientSecret)
			if err != nil {
				return fmt.Errorf("failed to get google oauth config: %w", err)
			}

			authURL := oauthConfig.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
			fmt.Fprintf(c.App.Writer, "Go to the following link in your browser then type the "+
				"authorization code: \n%v\n", authURL)

			fmt.Fprint(c.App.Writer, "Enter Authorization Code: ")
			reader := bufio.NewReader(os.Stdin)
			authCode, _ := reader.ReadString('\n')
			authCode = strings.TrimSpace(authCode)

			token, err := google.TokenFromWeb(c.Context, oauthConfig, authCode)
			if err != nil {
				return fmt.Errorf("unable to retrieve token from web: %w", err)
			}

			tokenFile := google.TokenFile(cfg.Google.Account)
			if err := google.SaveToken(tokenFile, token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			logger.Info("Successfully authenticated and saved token.", "file", tokenFile)
			return nil
		},
	}
}

func pushCommand() *cli.Command {
	return &cli.Command{
		Name:  "push",
		Usage: "Mirror the server's events into iCloud (CalDAV) or Google Calendar.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "target", Value: "icloud", Usage: "icloud or google."},
			&cli.StringFlag{Name: "state", Usage: "Sync state file. Defaults to sync-state-<target>.json."},
			&cli.BoolFlag{Name: "dry-run", Usage: "Log what would be pushed without making changes."},
			&cli.IntFlag{Name: "watch", Value: 300, Usage: "Push every N seconds instead of once."},
		},
		Action: func(c *cli.Context) error {
			if c.IsSet("watch") && c.Int("watch") <= 0 {
				return fmt.Errorf("--watch must be a positive number of seconds, got %d", c.Int("watch"))
			}
			cfg, source, err := newClient()
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.LogLevel)

			if c.Bool("dry-run") {
				logger.Info("Performing a dry run. No changes will be made.")
			}

			target, err := newTarget(c.Context, logger, cfg, c.String("target"))
			if err != nil {
				return err
			}

			statePath := c.String("state")
			if statePath == "" {
				statePath = syncer.StateFile(target.Name())
			}
			s, err := syncer.NewSyncer(logger, source, target, statePath, c.Bool("dry-run"))
			if err != nil {
				return fmt.Errorf("failed to create syncer: %w", err)
			}

			// --watch keeps pushing until interrupted.
			if c.IsSet("watch") {
				ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
				defer stop()

				interval := time.Duration(c.Int("watch")) * time.Second
				logger.Info("Starting watcher.", "interval", interval)
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					if err := s.Sync(ctx); err != nil {
						logger.Error("Sync cycle failed", "error", err)
					}
					select {
					case <-ctx.Done():
						return nil
					case <-ticker.C:
					}
				}
			}

			logger.Info("Running a single sync cycle.")
			if err := s.Sync(c.Context); err != nil {
				return fmt.Errorf("single sync cycle failed: %w", err)
			}
			return nil
		},
	}
}

func newTarget(ctx context.Context, logger *slog.Logger, cfg config.Config, name string) (syncer.Target, error) {
	switch name {
	case "icloud":
		if err := cfg.ICloud.Validate(); err != nil {
			return nil, err
		}
		opts := ics.Options{Location: cfg.Location(), Duration: cfg.EventDuration}
		t, err := icloud.NewClient(ctx, logger, cfg.ICloud.Endpoint, cfg.ICloud.Username, cfg.ICloud.Password, cfg.ICloud.CalendarName, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to create icloud client: %w", err)
		}
		return t, nil
	case "google":
		t, err := google.NewClient(ctx, logger, cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.Account, cfg.Google.CalendarID, cfg.Location(), cfg.EventDuration)
		if err != nil {
			return nil, fmt.Errorf("failed to create google client: %w", err)
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unknown target %q, want icloud or google", name)
	}
}

func newClient() (config.Config, *client.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	c := client.New(cfg.ServerURL, &http.Client{Timeout: cfg.RequestTimeout})
	c.Language = cfg.Language
	return cfg, c, nil
}

// loadMirror fetches every event into a fresh local copy.
func loadMirror(ctx context.Context, cl *client.Client) (*agenda.Mirror, error) {
	events, err := cl.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	mirror := &agenda.Mirror{}
	mirror.Replace(events)
	return mirror, nil
}

func today(loc *time.Location) string {
	return time.Now().In(loc).Format("2006-01-02")
}

func printDay(w io.Writer, date string, events []models.Event) {
	if len(events) == 0 {
		fmt.Fprintf(w, "No events on %s.\n", date)
		return
	}
	fmt.Fprintf(w, "%s\n", date)
	for _, ev := range events {
		printEvent(w, ev)
	}
}

func printEvent(w io.Writer, ev models.Event) {
	fmt.Fprintf(w, "%8s  %-8s  %s  (#%d)\n", agenda.Clock(ev.Time), agenda.CategoryLabel(ev.Category), ev.Title, ev.ID)
	if ev.Description != "" {
		fmt.Fprintf(w, "%20s%s\n", "", ev.Description)
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}
