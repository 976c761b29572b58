// Package main is the entry point for the switchboard CLI. It wires the
// routing engine to a set of demo agents and exposes them through an
// interactive chat TUI and a one-shot route command.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/northbridge-ai/switchboard"
	"github.com/northbridge-ai/switchboard/internal/demo"
	"github.com/northbridge-ai/switchboard/internal/logging"
	"github.com/northbridge-ai/switchboard/internal/ui"
	"github.com/northbridge-ai/switchboard/pkg/types"
)

var (
	version = "0.1.0"
	cfgPath string
	verbose bool

	appCfg   *switchboard.Config
	logClose io.Closer
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "switchboard",
		Short: "Switchboard - conversational routing across specialist agents",
		Long: `Switchboard routes conversational turns to the best specialist agent:
  • Multi-stage pipeline: explicit requests, classified intents,
    conversation continuity, then full capability evaluation
  • Session memory with entity extraction and topic-change detection
  • Confidence thresholds, tie-breaking and priority override rules
  • Bubble Tea chat interface for trying it out against demo agents

Start the chat UI:   switchboard
Route one input:     switchboard route "where is my order 482193"
Configuration:       switchboard config show`,
		PersistentPreRunE: initLogging,
		RunE:              runChat,
		SilenceUsage:      true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.switchboard/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("switchboard v%s\n", version)
		},
	})

	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(routeCmd())
	rootCmd.AddCommand(agentsCmd())
	rootCmd.AddCommand(configCmd())

	err := rootCmd.Execute()
	if logClose != nil {
		logClose.Close()
	}
	if err != nil {
		os.Exit(1)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Logging initialization
// ═══════════════════════════════════════════════════════════════════════════

// initLogging builds the process logger from the config file's logging
// section. Chat keeps the terminal clean: console output is suppressed and
// only a configured log file receives lines.
func initLogging(cmd *cobra.Command, _ []string) error {
	lc := logging.DefaultConfig()

	switch cmd.Name() {
	case "version", "init", "path":
		// These run before or without a config file; don't create one as
		// a side effect.
	default:
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		lc = logging.Config{
			Level:   cfg.Logging.Level,
			Format:  cfg.Logging.Format,
			NoColor: cfg.Logging.NoColor,
			File:    cfg.Logging.File,
		}
	}

	if verbose {
		lc.Level = "debug"
	}

	quiet := cmd.Name() == "chat" || !cmd.HasParent()
	logger, closer, err := logging.Open(lc, quiet)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	logClose = closer
	logging.SetDefault(logger)
	return nil
}

// loadConfig reads and caches the configuration for the invoked command.
func loadConfig() (*switchboard.Config, error) {
	if appCfg != nil {
		return appCfg, nil
	}
	cfg, err := switchboard.LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	appCfg = cfg
	return cfg, nil
}

// newEngine builds the orchestrator and registers the demo agents.
func newEngine(cfg *switchboard.Config) (*switchboard.Orchestrator, error) {
	orch, err := switchboard.New(cfg)
	if err != nil {
		return nil, err
	}
	orch.RegisterAgents(demo.Agents()...)
	return orch, nil
}

// closeEngine shuts the orchestrator down, bounding the flush of sessions
// and in-flight events.
func closeEngine(orch *switchboard.Orchestrator) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := orch.Close(ctx); err != nil {
		logger := logging.Default()
		logger.Warn().Err(err).Msg("engine shutdown")
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Chat command (also the root default)
// ═══════════════════════════════════════════════════════════════════════════

func chatCmd() *cobra.Command {
	var session string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat routed across the demo agents",
		Long: `Start the Bubble Tea chat interface. Every message is routed through the
engine; the reply shows which agent answered and why. Press ctrl+r for the
routing history of the session.

Examples:
  switchboard chat
  switchboard chat --session support-4912`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return startChat(session)
		},
	}

	cmd.Flags().StringVar(&session, "session", "", "session id (default a fresh uuid)")
	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	return startChat("")
}

func startChat(sessionID string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	// Force TrueColor so the theme renders the same across terminals;
	// no_color drops to plain ASCII instead.
	if cfg.Logging.NoColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	} else {
		lipgloss.SetColorProfile(termenv.TrueColor)
	}

	orch, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer closeEngine(orch)

	logger := logging.Default()
	logger.Info().
		Str("session", sessionID).
		Int("agents", len(orch.Agents())).
		Msg("starting chat")

	return ui.Run(ui.Config{Engine: orch, SessionID: sessionID})
}

// ═══════════════════════════════════════════════════════════════════════════
// Route command (one-shot)
// ═══════════════════════════════════════════════════════════════════════════

func routeCmd() *cobra.Command {
	var (
		session    string
		agent      string
		intent     string
		intentConf float64
		entities   []string
	)

	cmd := &cobra.Command{
		Use:   "route [input]",
		Short: "Route one input and print the result as JSON",
		Long: `Route a single input through the engine and print the routing result.
Upstream context (a named agent, a classified intent, extracted entities)
can be supplied through flags.

Examples:
  switchboard route "where is my order 482193"
  switchboard route --session support-4912 "it's jamie@example.com"
  switchboard route --intent order_status --intent-confidence 0.9 "any update?"
  switchboard route --entity zip_code=98101 "find a store"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ents, err := parseEntities(entities)
			if err != nil {
				return err
			}

			orch, err := newEngine(cfg)
			if err != nil {
				return err
			}
			defer closeEngine(orch)

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			res := orch.Process(ctx, strings.Join(args, " "), types.Context{
				SessionID:        session,
				AgentName:        agent,
				Intent:           intent,
				IntentConfidence: intentConf,
				Entities:         ents,
			})

			out, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			fmt.Println(string(out))

			if !res.Success {
				return errors.New("routing failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&session, "session", types.DefaultSessionID, "session id")
	cmd.Flags().StringVar(&agent, "agent", "", "route to this agent explicitly")
	cmd.Flags().StringVar(&intent, "intent", "", "upstream classified intent")
	cmd.Flags().Float64Var(&intentConf, "intent-confidence", 0, "confidence of the upstream intent")
	cmd.Flags().StringArrayVar(&entities, "entity", nil, "upstream entity as key=value (repeatable)")
	return cmd
}

// parseEntities converts repeated key=value flags into an entity map.
func parseEntities(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --entity %q, expected key=value", p)
		}
		out[k] = v
	}
	return out, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Agents command
// ═══════════════════════════════════════════════════════════════════════════

func agentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List the demo agents",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%-10s %-18s %s\n", "ID", "NAME", "DESCRIPTION")
			for _, a := range demo.Agents() {
				fmt.Printf("%-10s %-18s %s\n", a.ID(), a.Name(), a.Description())
			}
		},
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Config commands
// ═══════════════════════════════════════════════════════════════════════════

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveConfigPath()
			if err != nil {
				return err
			}
			fmt.Println(path)
			return nil
		},
	})

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveConfigPath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", path)
			}
			if err := switchboard.DefaultConfig().Save(path); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)

	return cmd
}

func resolveConfigPath() (string, error) {
	if cfgPath != "" {
		return cfgPath, nil
	}
	return switchboard.DefaultConfigPath()
}
