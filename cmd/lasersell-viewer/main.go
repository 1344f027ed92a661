package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lasersell/viewer/internal/credstore"
	"github.com/lasersell/viewer/internal/poller"
	"github.com/lasersell/viewer/internal/telemetry"
	"github.com/lasersell/viewer/internal/tui"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

func main() {
	var configPath string
	var agentURL string
	var showVersion bool

	flag.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/lasersell/config.yml)")
	flag.StringVar(&agentURL, "agent", "", "override the agent base URL")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.Parse()

	if showVersion {
		fmt.Printf("LaserSell Viewer - Trading Agent Dashboard\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return
	}

	cfg, err := loadCLIConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if agentURL != "" {
		cfg.AgentURL = agentURL
	}

	if err := runViewer(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runViewer(cfg cliConfig) error {
	cleanupLogger := configureRuntimeLogger()
	defer cleanupLogger()

	store, err := credstore.New(cfg.CredentialPath)
	if err != nil {
		return fmt.Errorf("opening credential store: %w", err)
	}

	client := telemetry.New(cfg.AgentURL)
	client.RequestTimeout = cfg.RequestTimeout

	supervisor := poller.NewSupervisor(client, store, poller.Options{
		WaitBudget:     cfg.WaitBudget,
		BackoffFloor:   cfg.BackoffFloor,
		BackoffCeiling: cfg.BackoffCeiling,
	})
	if err := supervisor.Start(); err != nil {
		return fmt.Errorf("starting poll supervisor: %w", err)
	}
	defer supervisor.Stop()

	pairing := tui.NewPairingPage(client, store)
	dashboard := tui.NewDashboardPage(supervisor, client, store)

	// Land on the dashboard when a credential already exists.
	pages := []tui.Page{pairing, dashboard}
	if _, ok := store.Get(); ok {
		pages = []tui.Page{dashboard, pairing}
	}
	app := tui.NewApp(pages...)

	p := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		if strings.Contains(err.Error(), "TTY") || strings.Contains(err.Error(), "/dev/tty") {
			return fmt.Errorf("TUI requires a real terminal")
		}
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}

// configureRuntimeLogger routes the standard logger to a file so log output
// never corrupts the alternate screen.
func configureRuntimeLogger() func() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	home, err := os.UserHomeDir()
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	logDir := filepath.Join(home, ".local", "state", "lasersell")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	logPath := filepath.Join(logDir, "viewer.log")
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	log.SetOutput(f)
	return func() {
		_ = f.Close()
	}
}
