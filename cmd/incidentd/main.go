package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"incidentd/internal/agent"
	"incidentd/internal/alertmanager"
	"incidentd/internal/blackboard"
	"incidentd/internal/config"
	"incidentd/internal/correlate"
	"incidentd/internal/graph"
	"incidentd/internal/logging"
	"incidentd/internal/provider"
	"incidentd/internal/router"
	"incidentd/internal/session"
	"incidentd/internal/store"
)

var (
	// Global flags
	verbose     bool
	configPath  string
	modelFlag   string
	timeout     time.Duration
	concurrency int
	alertName   string
	statusFlag  string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "incidentd",
	Short: "incidentd - multi-agent infrastructure incident investigation",
	Long: `incidentd investigates infrastructure alerts with a team of
specialist agents coordinating through a shared findings blackboard.

An orchestrator agent routes alerts to compute, storage, and network
specialists over an explicit hand-off graph; multi-alert investigations
run correlation rounds until the assessments converge on a root cause.

Run without arguments to start an interactive investigation chat.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
}

// chatCmd starts the interactive investigation session
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive investigation session",
	Long: `Starts a durable conversational session with the investigation team.

The orchestrator fetches alerts, consults the specialist router, and
delegates to domain specialists. When an agent needs input it suspends
the turn and the question is shown here; your next line answers it.

Commands inside the chat:
  /end    end the investigation
  /quit   alias for /end`,
	RunE: runChat,
}

// investigateCmd runs a non-interactive multi-alert correlation
var investigateCmd = &cobra.Command{
	Use:   "investigate",
	Short: "Investigate firing alerts with correlation rounds",
	Long: `Fetches firing alerts from Alertmanager and runs parallel per-alert
investigators in correlation rounds. Rounds repeat until the mean
confidence or convergence thresholds are reached, then a leader agent
synthesizes the cross-alert report.

Example:
  incidentd investigate
  incidentd investigate --alertname CephOSDDown --concurrency 2`,
	RunE: runInvestigate,
}

// alertsCmd lists current alerts
var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List alerts from Alertmanager",
	RunE:  runAlerts,
}

// sessionsCmd lists persisted investigation sessions
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List persisted investigation sessions",
	RunE:  runSessions,
}

// statusCmd shows effective configuration and connectivity
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show incidentd configuration status",
	RunE:  showStatus,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: .incidentd/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&modelFlag, "model", "", "Override the configured model")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "Operation timeout")

	investigateCmd.Flags().IntVar(&concurrency, "concurrency", 0, "Parallel per-alert investigators (0 = all at once)")
	investigateCmd.Flags().StringVar(&alertName, "alertname", "", "Investigate only alerts with this name")

	alertsCmd.Flags().StringVar(&statusFlag, "status", "firing", "Alert status filter: firing, resolved, all")
	alertsCmd.Flags().StringVar(&alertName, "alertname", "", "Filter by alert name")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(investigateCmd)
	rootCmd.AddCommand(alertsCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// ===== WIRING =====

// loadConfig resolves the effective configuration and initializes the
// category file logs.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if modelFlag != "" {
		cfg.Model = modelFlag
	}
	if err := logging.Initialize(logging.Config{
		Dir:        cfg.Logging.Dir,
		Level:      cfg.Logging.Level,
		Categories: cfg.Logging.Categories,
	}); err != nil {
		return cfg, fmt.Errorf("failed to initialize log files: %w", err)
	}
	return cfg, nil
}

// buildToolset assembles the shared agent toolset from configuration.
func buildToolset(cfg config.Config) *agent.Toolset {
	registry := provider.NewRegistry()
	for _, p := range cfg.Providers {
		if !p.Enabled {
			continue
		}
		t := p.Timeout
		if t <= 0 {
			t = 30 * time.Second
		}
		registry.Register(provider.NewClient(p.Name, p.BaseURL, t))
		logger.Debug("Registered provider", zap.String("name", p.Name), zap.String("url", p.BaseURL))
	}
	return &agent.Toolset{
		Board:     blackboard.New(),
		Alerts:    alertmanager.New(cfg.AlertmanagerURL, 30*time.Second),
		Providers: registry,
		Router:    router.New(cfg.RouterTable(), cfg.Router.Baseline),
		Available: agent.DefaultSpecialists,
	}
}

func newRuntimeFactory(ctx context.Context, cfg config.Config, ts *agent.Toolset) (session.RuntimeFactory, error) {
	key := cfg.APIKey()
	if key == "" {
		return nil, fmt.Errorf("no API key: set %s", cfg.APIKeyEnv)
	}
	client, err := agent.NewClient(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create model client: %w", err)
	}
	return func(team []*agent.Definition, g *graph.Graph) (agent.Runtime, error) {
		return agent.NewGenAIRuntime(client, cfg.Model, cfg.AgentMaxSteps, team, g, ts.AuthorizeHandoff)
	}, nil
}

func openStore(cfg config.Config) *store.SessionStore {
	if cfg.Store.Path == "" {
		return nil
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		logger.Warn("Session persistence disabled", zap.Error(err))
		return nil
	}
	return st
}

// ===== CHAT =====

func runChat(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("Received shutdown signal")
		cancel()
	}()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ts := buildToolset(cfg)
	team := agent.NewTeam(ts)
	g, err := graph.New(cfg.Graph)
	if err != nil {
		return err
	}
	factory, err := newRuntimeFactory(ctx, cfg, ts)
	if err != nil {
		return err
	}
	runtime, err := factory(team, g)
	if err != nil {
		return err
	}

	st := openStore(cfg)
	defer func() {
		if st != nil {
			_ = st.Close()
		}
	}()

	sess := session.New(session.Options{
		MaxTurns: cfg.MaxTurns,
		Runtime:  runtime,
		Board:    ts.Board,
		Store:    st,
	})
	logger.Info("Session started", zap.String("id", sess.ID()))

	// Reload the config file on change so log levels can be adjusted
	// without restarting a long investigation.
	go func() {
		path := configPath
		if path == "" {
			path = config.DefaultPath
		}
		err := config.Watch(ctx, path, func(next config.Config) {
			_ = logging.Initialize(logging.Config{
				Dir:        next.Logging.Dir,
				Level:      next.Logging.Level,
				Categories: next.Logging.Categories,
			})
			logger.Info("Configuration reloaded")
		})
		if err != nil && ctx.Err() == nil {
			logger.Debug("Config watch unavailable", zap.Error(err))
		}
	}()

	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()

	// Print transcript additions as the session produces them.
	go printTranscript(ctx, sess)

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			switch line {
			case "":
				continue
			case "/end", "/quit":
				sess.EndWorkflow()
				return
			default:
				sess.SendMessage(line)
			}
		}
		// stdin closed: end the investigation cleanly.
		sess.EndWorkflow()
	}()

	select {
	case err := <-done:
		// Give the printer a moment to flush the final messages.
		time.Sleep(250 * time.Millisecond)
		return err
	case <-ctx.Done():
		sess.EndWorkflow()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			return fmt.Errorf("session did not stop cleanly")
		}
	}
}

// printTranscript polls the session transcript and prints messages it has
// not shown yet.
func printTranscript(ctx context.Context, sess *session.Session) {
	printed := 0
	ticker := time.NewTicker(150 * time.Millisecond)
	defer ticker.Stop()
	for {
		msgs := sess.Messages()
		for ; printed < len(msgs); printed++ {
			m := msgs[printed]
			switch m.Role {
			case "assistant":
				fmt.Printf("\n%s\n\n> ", m.Content)
			case "user":
				// Already visible on the terminal as typed input.
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ===== INVESTIGATE =====

func runInvestigate(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("Received shutdown signal")
		cancel()
	}()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	am := alertmanager.New(cfg.AlertmanagerURL, 30*time.Second)
	alerts, err := am.Fetch(ctx, alertmanager.FilterFiring, alertName)
	if err != nil {
		return fmt.Errorf("failed to fetch alerts: %w", err)
	}
	logger.Info("Fetched alerts", zap.Int("count", len(alerts)))
	fmt.Printf("Investigating %d firing alert(s)...\n\n", len(alerts))

	ts := buildToolset(cfg)
	factory, err := newRuntimeFactory(ctx, cfg, ts)
	if err != nil {
		return err
	}
	run, err := session.NewCorrelationRun(session.CorrelationOptions{
		Engine:      correlate.NewEngine(cfg.Correlation),
		Toolset:     ts,
		Factory:     factory,
		Concurrency: concurrency,
	})
	if err != nil {
		return err
	}

	report, err := run.Run(ctx, alerts)
	if err != nil {
		return fmt.Errorf("investigation failed: %w", err)
	}

	fmt.Printf("Rounds: %d\n", report.Rounds)
	fmt.Printf("Stopped: %s\n\n", report.ExitReason)
	if len(report.SharedGroups) > 0 {
		fmt.Println("Shared infrastructure:")
		for _, g := range report.SharedGroups {
			fmt.Printf("  %s: %s\n", g.Key, strings.Join(g.AlertIDs, ", "))
		}
		fmt.Println()
	}
	for _, p := range report.TemporalPatterns {
		fmt.Printf("%s\n", p.Description)
	}
	if len(report.TemporalPatterns) > 0 {
		fmt.Println()
	}
	fmt.Println(report.FinalReport)
	return nil
}

// ===== ALERTS =====

func runAlerts(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var filter alertmanager.StatusFilter
	switch statusFlag {
	case "firing", "":
		filter = alertmanager.FilterFiring
	case "resolved":
		filter = alertmanager.FilterResolved
	case "all":
		filter = alertmanager.FilterAll
	default:
		return fmt.Errorf("unknown status filter %q", statusFlag)
	}

	am := alertmanager.New(cfg.AlertmanagerURL, 30*time.Second)
	alerts, err := am.Fetch(ctx, filter, alertName)
	if err != nil {
		return fmt.Errorf("failed to fetch alerts: %w", err)
	}
	fmt.Println(alertmanager.FormatAlertList(alerts))
	return nil
}

// ===== SESSIONS =====

func runSessions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Store.Path == "" {
		fmt.Println("Session persistence is disabled (no store path configured).")
		return nil
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer st.Close()

	sessions, err := st.ListSessions(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions recorded.")
		return nil
	}
	for id, status := range sessions {
		fmt.Printf("%s  %s\n", id, status)
	}
	return nil
}

// ===== STATUS =====

func showStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Println("incidentd Status")
	fmt.Println("================")
	fmt.Printf("Model:        %s\n", cfg.Model)
	fmt.Printf("Alertmanager: %s\n", cfg.AlertmanagerURL)
	fmt.Printf("Max turns:    %d\n", cfg.MaxTurns)
	fmt.Println()

	if cfg.APIKey() != "" {
		fmt.Printf("✓ API key configured (%s)\n", cfg.APIKeyEnv)
	} else {
		fmt.Printf("✗ API key not configured (set %s)\n", cfg.APIKeyEnv)
	}

	g, err := graph.New(cfg.Graph)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Hand-off graph: %d agents, entry %s\n", len(g.Agents()), g.Entry())

	enabled := 0
	for _, p := range cfg.Providers {
		if p.Enabled {
			enabled++
			fmt.Printf("✓ Provider %s: %s\n", p.Name, p.BaseURL)
		}
	}
	if enabled == 0 {
		fmt.Println("- No tool providers enabled")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	am := alertmanager.New(cfg.AlertmanagerURL, 5*time.Second)
	if alerts, err := am.Fetch(ctx, alertmanager.FilterFiring, ""); err != nil {
		fmt.Printf("✗ Alertmanager unreachable: %v\n", err)
	} else {
		fmt.Printf("✓ Alertmanager reachable: %d firing alert(s)\n", len(alerts))
	}
	return nil
}
