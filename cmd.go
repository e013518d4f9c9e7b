package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nexidian/gocliselect"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

// cli carries what the persistent hooks set up for the subcommands.
type cli struct {
	configPath string
	logLevel   string
	logFormat  string
	logFile    string
	driver     string

	cfg     Config
	app     *App
	book    Workbook
	logSink io.Closer
}

// SetupCommands builds the command tree. The returned cleanup closes what
// the command opened and must run after Execute whether it failed or not.
func SetupCommands() (*cobra.Command, func()) {
	c := &cli{}
	return c.command(), c.teardown
}

func (c *cli) command() *cobra.Command {
	// root command
	rootCmd := &cobra.Command{
		Use:          "hunterlog",
		Short:        "A chat bot that keeps login and logout ledgers in a workbook",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd.Context())
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "path to credentials.json")
	flags.StringVar(&c.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.StringVar(&c.logFormat, "log-format", string(FormatText), "log format (text, json)")
	flags.StringVar(&c.logFile, "log-file", "", "write logs to this file instead of stderr")
	flags.StringVar(&c.driver, "driver", "", "storage driver (xlsx, sqlite, postgres, memory)")

	// command for running the bot
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Connect to the chat gateway and handle commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.serve(cmd.Context())
		},
	}

	// commands for recording events by hand
	var roles []string
	loginCmd := &cobra.Command{
		Use:   "login [name]",
		Short: "Record a login",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			row, err := c.app.Login(cmd.Context(), Member{DisplayName: args[0], Roles: roles})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recorded login of %s in row %d\n", args[0], row+1)
			return nil
		},
	}
	loginCmd.Flags().StringSliceVar(&roles, "roles", nil, "role names of the member")

	logoutCmd := &cobra.Command{
		Use:   "logout [name]",
		Short: "Record a logout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := c.app.Logout(cmd.Context(), Member{DisplayName: args[0], Roles: roles})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recorded logout of %s in row %d (%s)\n", args[0], res.Row+1, res.Emphasis)
			if res.HadLogin {
				fmt.Fprintf(cmd.OutOrStdout(), "Session length: %s\n", FormatDuration(res.Session))
			}
			return nil
		},
	}
	logoutCmd.Flags().StringSliceVar(&roles, "roles", nil, "role names of the member")

	// command for rebuilding the statistics sheet
	var (
		month      string
		printTable bool
	)
	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Rebuild the statistics sheet for a month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, y, err := c.pickMonth(month)
			if err != nil {
				return err
			}

			res, report, err := c.app.Statistics(cmd.Context(), m, y)
			if err != nil {
				return err
			}
			if printTable {
				PrintTable(cmd.OutOrStdout(), nil, report.Rows, nil)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Statistics for %s written (%d users, %d rows skipped)\n", res.Period, res.Users, res.Skipped)
			return nil
		},
	}
	reportCmd.Flags().StringVar(&month, "month", "", "month to report as YYYY-MM (default: current month)")
	reportCmd.Flags().BoolVar(&printTable, "print", false, "print the report table")

	// command for showing a sheet
	showCmd := &cobra.Command{
		Use:   "show [sheet]",
		Short: "Print the rows of a sheet",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := c.cfg.LoginSheet
			if len(args) > 0 {
				name = args[0]
			}

			rows, err := c.app.SheetRows(cmd.Context(), name)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Sheet %s is empty\n", name)
				return nil
			}
			PrintTable(cmd.OutOrStdout(), nil, rows, nil)
			return nil
		},
	}

	// command for re-appending queued events
	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Append events queued in the outbox",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			replayed, failed, err := c.app.Replay(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Replayed %d queued events, %d still pending\n", replayed, failed)
			return nil
		},
	}

	// command for importing the flat log of the first bot version
	var renames map[string]string
	importCmd := &cobra.Command{
		Use:   "import-legacy [sheet]",
		Short: "Import a flat Username/User ID/Roles/Action/Timestamp sheet into the ledgers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := c.app.SheetRows(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			events, skipped := ParseLegacyRows(rows)
			events = RenameLegacyUsers(events, renames)
			n, err := c.app.ImportLegacy(cmd.Context(), events)
			if err != nil {
				return fmt.Errorf("imported %d of %d events: %w", n, len(events), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d events, skipped %d rows\n", n, skipped)
			return nil
		},
	}

	importCmd.Flags().StringToStringVar(&renames, "rename", nil, "map a legacy username to a display name (username=name)")

	// add commands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(importCmd)

	return rootCmd
}

func (c *cli) setup(ctx context.Context) error {
	cfg, err := LoadConfig(c.configPath)
	if err != nil {
		return err
	}
	if c.driver != "" {
		cfg.Driver = c.driver
	}
	c.cfg = cfg

	sink, err := InitLogger(c.logLevel, LogFormat(c.logFormat), c.logFile)
	if err != nil {
		return err
	}
	c.logSink = sink
	LogDebugf("Loaded config from %s (driver %s)", cfg.CredentialsPath, cfg.Driver)

	book, err := OpenWorkbook(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open workbook: %w", err)
	}
	c.book = book

	var (
		opts   []AppOption
		outbox *Outbox
	)
	if cfg.Outbox {
		if outbox, err = NewOutbox(cfg.OutboxPath()); err != nil {
			book.Close()
			return fmt.Errorf("failed to open outbox: %w", err)
		}
		opts = append(opts, WithOutbox(outbox))
	}
	if cfg.Notify {
		opts = append(opts, WithNotifier(NewDesktopNotifier()))
	}

	app, err := NewApp(ctx, cfg, book, opts...)
	if err != nil {
		if outbox != nil {
			outbox.Close()
		}
		book.Close()
		return err
	}
	c.app = app
	return nil
}

// teardown is safe to call more than once.
func (c *cli) teardown() {
	if c.app != nil {
		if err := c.app.Close(); err != nil {
			LogWarnf("Failed to close workbook: %v", err)
		}
		c.app, c.book = nil, nil
	}
	if c.logSink != nil {
		c.logSink.Close()
		c.logSink = nil
	}
}

func (c *cli) serve(parent context.Context) error {
	if err := c.cfg.RequireToken(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	bot, err := NewBot(c.cfg.Token, c.app, NewPool(c.cfg.Workers))
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bot.Run(gctx)
	})

	if xb, ok := c.book.(*XLSXWorkbook); ok {
		g.Go(func() error {
			return xb.Watch(gctx)
		})
	}
	if c.cfg.KeepAliveAddr != "" {
		g.Go(func() error {
			return ServeHealth(gctx, c.cfg.KeepAliveAddr)
		})
	}
	if c.cfg.KeepAliveURL != "" {
		g.Go(func() error {
			NewKeepAliveClient(c.cfg.KeepAliveURL).Run(gctx, keepAliveInterval)
			return nil
		})
	}

	LogInfof("Bot is running, press Ctrl+C to stop")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	LogInfof("Bot stopped")
	return nil
}

// pickMonth resolves the month flag. Without a flag an interactive terminal
// gets a picker over the last months, anything else the current month.
func (c *cli) pickMonth(flag string) (time.Month, int, error) {
	if flag != "" {
		return ParseMonth(flag)
	}

	now := time.Now().In(c.app.Location())
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return now.Month(), now.Year(), nil
	}

	menu := gocliselect.NewMenu("Choose a month")
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	for i := 0; i < 6; i++ {
		m := first.AddDate(0, -i, 0)
		menu.AddItem(PeriodLabel(m.Month(), m.Year()), m.Format("2006-01"))
	}

	return monthChoice(menu.Display())
}

// monthChoice reads the item id returned by the picker.
func monthChoice(raw any, err error) (time.Month, int, error) {
	if err != nil {
		return 0, 0, fmt.Errorf("month picker: %w", err)
	}
	choice, _ := raw.(string)
	if choice == "" {
		return 0, 0, errors.New("no month selected")
	}
	return ParseMonth(choice)
}
