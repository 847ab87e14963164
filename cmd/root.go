package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"seat-console/config"
	"seat-console/devserver"
	"seat-console/logging"
	"seat-console/tui"
)

const appName = "seat-console"

type rootFlags struct {
	configPath string
	baseURL    string
	showtime   string
	logFile    string
	dev        bool
}

// Execute runs the root command. version and commit are set at link time.
func Execute(version string, commit string) {
	if err := newRootCmd(version, commit).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(version string, commit string) *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   appName,
		Short: "Cinema seat selection console",
		Long: `Pick seats for a showtime from the terminal. Seats are held on the
seat-lock service while selected and released when the console exits.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, flags)
		},
	}

	rootCmd.Flags().StringVar(&flags.configPath, "config", "", "path to a YAML config file")
	rootCmd.Flags().StringVar(&flags.baseURL, "base-url", "", "seat-lock service base URL")
	rootCmd.Flags().StringVar(&flags.showtime, "showtime", "", "showtime id to open directly")
	rootCmd.Flags().StringVar(&flags.logFile, "log-file", "", "append structured logs to this file")
	rootCmd.Flags().BoolVar(&flags.dev, "dev", false, "run against an in-memory seat-lock service")

	rootCmd.AddCommand(newVersionCmd(version, commit))
	return rootCmd
}

func newVersionCmd(version string, commit string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of " + appName,
		Run: func(cmd *cobra.Command, args []string) {
			out := fmt.Sprintf("%s %s", appName, version)
			if commit != "none" && commit != "" {
				out += fmt.Sprintf(" (%s)", commit)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
		},
	}
}

func run(cmd *cobra.Command, flags *rootFlags) error {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, flags, &cfg)

	w, closeLog, err := logging.OpenFile(cfg.LogFile)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer closeLog()
	logger := logging.New(w, cfg.Level())
	slog.SetDefault(logger)

	if flags.dev {
		stop, err := startDevServer(&cfg, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger.Info("console starting", "base_url", cfg.BaseURL, "showtime", cfg.ShowtimeID)
	model := tui.New(tui.Options{
		Config:     cfg,
		Logger:     logger,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	})

	final, err := tea.NewProgram(model, tea.WithAltScreen()).Run()
	if s, ok := final.(interface{ Shutdown() }); ok {
		s.Shutdown()
	}
	if err != nil {
		return err
	}
	logger.Info("console stopped")
	return nil
}

func applyFlags(cmd *cobra.Command, flags *rootFlags, cfg *config.Config) {
	if cmd.Flags().Changed("base-url") {
		cfg.BaseURL = flags.baseURL
	}
	if cmd.Flags().Changed("showtime") {
		cfg.ShowtimeID = flags.showtime
	}
	if cmd.Flags().Changed("log-file") {
		cfg.LogFile = flags.logFile
	}
}

// startDevServer serves a sample showtime on a loopback port and points cfg
// at it. A few seats are held by another session so every seat state shows.
func startDevServer(cfg *config.Config, logger *slog.Logger) (func(), error) {
	srv := devserver.New(devserver.DefaultHoldTTL, logger.With("component", "devserver"))
	showtimeID := cfg.ShowtimeID
	if showtimeID == "" {
		showtimeID = "1"
	}
	info, seats := devserver.SampleShowtime(showtimeID)
	srv.AddShowtime(info, seats)
	if err := srv.HoldFor(showtimeID, uuid.NewString(), 14, 15); err != nil {
		return nil, fmt.Errorf("seed dev holds: %w", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	httpServer := &http.Server{
		Handler:           srv.Router("/api"),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("dev server stopped", "error", err)
		}
	}()

	cfg.BaseURL = fmt.Sprintf("http://%s/api", ln.Addr().String())
	cfg.ShowtimeID = showtimeID
	cfg.SeatAPI = ""
	if len(cfg.Combos) == 0 {
		cfg.Combos = []config.Combo{
			{ID: "popcorn", Name: "Popcorn (L)", Price: "45000"},
			{ID: "soda", Name: "Soda", Price: "30000"},
			{ID: "couple-set", Name: "Couple set", Price: "109000"},
		}
	}
	logger.Info("dev server listening", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctx)
	}, nil
}
