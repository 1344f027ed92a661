package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/sync/errgroup"

	"github.com/lasersell/viewer/internal/agentsim"
)

// Build variables - set by ldflags during build.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var configPath string
	var listenAddr string
	var scenarioPath string
	var showVersion bool

	flag.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/lasersell/sim.yml)")
	flag.StringVar(&listenAddr, "listen", "", "override the listen address")
	flag.StringVar(&scenarioPath, "scenario", "", "scenario file to replay")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.Parse()

	if showVersion {
		fmt.Printf("LaserSell Agent Simulator\n")
		fmt.Printf("  Version: %s\n", version)
		fmt.Printf("  Commit:  %s\n", commit)
		return
	}

	cfg, err := loadSimConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if scenarioPath != "" {
		cfg.ScenarioPath = scenarioPath
	}

	if err := runSim(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runSim(cfg simConfig) error {
	scenario := agentsim.DefaultScenario()
	if cfg.ScenarioPath != "" {
		var err error
		scenario, err = agentsim.LoadScenario(cfg.ScenarioPath)
		if err != nil {
			return err
		}
	}

	srv := agentsim.NewServer(cfg.ListenAddr, scenario)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("starting simulated agent: %w", err)
	}

	printStartupBanner(scenario, srv.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		// Shutdown deadline starts now — not at boot.
		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		os.Exit(1)
	}()

	g, gctx := errgroup.WithContext(ctx)

	// Periodic status line for operators tailing the sim.
	g.Go(func() error {
		ticker := time.NewTicker(cfg.StatusInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				log.Printf("agent-sim: %s", srv.Summary())
			}
		}
	})

	// Wait for context cancellation (from signal handler) in the errgroup.
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Printf("agent-sim: errgroup exited with error: %v", err)
	}

	cancel()
	signal.Stop(sigCh)

	return srv.Stop()
}

func printStartupBanner(scenario agentsim.Scenario, addr string) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")

	logo := cyan.Bold(true).Render(`
    ╦  ╔═╗╔═╗╔═╗╦═╗╔═╗╔═╗╦  ╦
    ║  ╠═╣╚═╗║╣ ╠╦╝╚═╗║╣ ║  ║
    ╩═╝╩ ╩╚═╝╚═╝╩╚═╚═╝╚═╝╩═╝`)

	lines := []string{
		logo,
		dim.Render("    simulated trading agent ") + dim.Render("v"+version),
		"",
		fmt.Sprintf("  %s API listening on %s", check, bold.Render("http://"+addr)),
		fmt.Sprintf("  %s Agent %s (%s)", check, bold.Render(scenario.AgentID), network(scenario.Mainnet)),
		fmt.Sprintf("  %s Pairing code: %s", check, bold.Render(strings.Join(scenario.PairingCodes, ", "))),
		fmt.Sprintf("  %s Tick every %s, %d scripted trades", check, scenario.TickInterval, len(scenario.Trades)),
		"",
		dim.Render("  Pair the viewer with: lasersell-viewer -agent http://" + addr),
		"",
	}

	fmt.Println(strings.Join(lines, "\n"))
}

func network(mainnet bool) string {
	if mainnet {
		return "mainnet"
	}
	return "devnet"
}
