// ABOUTME: Entry point for the debug-agent host
// ABOUTME: Serves one remote debugger at a time and reports sessions over HTTP

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/2389/debug-agent/internal/config"
	"github.com/2389/debug-agent/internal/server"
	"github.com/2389/debug-agent/internal/store"
)

// Version is set at build time.
var version = "dev"

const banner = `
     _      _                                          _
  __| | ___| |__  _   _  __ _        __ _  __ _  ___ _ __ | |_
 / _' |/ _ \ '_ \| | | |/ _' |_____ / _' |/ _' |/ _ \ '_ \| __|
| (_| |  __/ |_) | |_| | (_| |_____| (_| | (_| |  __/ | | | |_
 \__,_|\___|_.__/ \__,_|\__, |      \__,_|\__, |\___|_| |_|\__|
                        |___/             |___/
`

// getConfigPath returns the path to the config file.
// Priority: DEBUG_AGENT_CONFIG env var > XDG_CONFIG_HOME/debug-agent/config.yaml > ~/.config/debug-agent/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("DEBUG_AGENT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "debug-agent", "config.yaml")
}

// getDataPath returns the path to the data directory.
// Priority: XDG_DATA_HOME/debug-agent > ~/.local/share/debug-agent
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "debug-agent")
}

func usage() {
	fmt.Println("Usage: debug-agent <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve      Start the debug agent")
	fmt.Println("  init       Create a new config file interactively")
	fmt.Println("  health     Check agent health")
	fmt.Println("  status     Show the attached debugger, if any")
	fmt.Println("  sessions   List recent debugger sessions")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := os.Args[2:]

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, args)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx, args)
	case "status":
		err = runStatus(ctx, args)
	case "sessions":
		err = runSessions(ctx, args)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// commandFlags holds the flags shared by every subcommand.
type commandFlags struct {
	fs         *pflag.FlagSet
	configPath string
}

func newCommandFlags(name string) *commandFlags {
	cf := &commandFlags{fs: pflag.NewFlagSet(name, pflag.ContinueOnError)}
	cf.fs.StringVarP(&cf.configPath, "config", "c", "", "config file (YAML or TOML)")
	return cf
}

// load returns the configuration named by --config, or the default config
// file. A missing default file yields the built-in defaults.
func (cf *commandFlags) load() (*config.Config, string, error) {
	if cf.configPath != "" {
		cfg, err := config.Load(cf.configPath)
		if err != nil {
			return nil, "", fmt.Errorf("loading config: %w", err)
		}
		return cfg, cf.configPath, nil
	}

	path := getConfigPath()
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return config.Default(), "(defaults)", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

func runServe(ctx context.Context, args []string) error {
	cf := newCommandFlags("serve")
	host := cf.fs.String("host", "", "debugger listen host (overrides config)")
	port := cf.fs.IntP("port", "p", -1, "debugger listen port (overrides config)")
	httpAddr := cf.fs.String("http", "", "HTTP status address (overrides config)")
	logLevel := cf.fs.String("log-level", "", "log level: debug, info, warn, error")
	if err := cf.fs.Parse(args); err != nil {
		return err
	}

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, configPath, err := cf.load()
	if err != nil {
		return err
	}

	if cf.fs.Changed("host") {
		cfg.Agent.Host = *host
	}
	if cf.fs.Changed("port") {
		cfg.Agent.Port = *port
	}
	if cf.fs.Changed("http") {
		cfg.HTTP.Addr = *httpAddr
	}
	if cf.fs.Changed("log-level") {
		cfg.Logging.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating flags: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Debugger:  %s\n", cfg.Agent.Addr())
	if cfg.HTTP.Addr != "" {
		green.Print("    ▶ ")
		fmt.Printf("HTTP:      %s\n", cfg.HTTP.Addr)
	}
	if cfg.Database.Path != "" {
		green.Print("    ▶ ")
		fmt.Printf("Ledger:    ")
		gray.Println(cfg.Database.Path)
	}
	fmt.Println()

	logger.Info("starting debug-agent",
		"config", configPath,
		"debugger_addr", cfg.Agent.Addr(),
		"http_addr", cfg.HTTP.Addr,
	)

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return srv.Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			mu:    &sync.Mutex{},
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
// Handlers derived through WithAttrs and WithGroup share the mutex.
type colorHandler struct {
	mu     *sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05.000") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}

	// Handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + prefix + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		mu:     h.mu,
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		mu:     h.mu,
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

// httpGet issues a GET against the status endpoint of the configured agent.
func httpGet(ctx context.Context, cfg *config.Config, path string) (*http.Response, error) {
	if cfg.HTTP.Addr == "" {
		return nil, errors.New("http.addr is not configured")
	}

	url := fmt.Sprintf("http://%s%s", cfg.HTTP.Addr, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

func runHealth(ctx context.Context, args []string) error {
	cf := newCommandFlags("health")
	if err := cf.fs.Parse(args); err != nil {
		return err
	}
	cfg, _, err := cf.load()
	if err != nil {
		return err
	}

	resp, err := httpGet(ctx, cfg, "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func runStatus(ctx context.Context, args []string) error {
	cf := newCommandFlags("status")
	if err := cf.fs.Parse(args); err != nil {
		return err
	}
	cfg, _, err := cf.load()
	if err != nil {
		return err
	}

	resp, err := httpGet(ctx, cfg, "/api/status")
	if err != nil {
		return fmt.Errorf("status check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status check failed: status %d", resp.StatusCode)
	}

	var status server.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	cyan := color.New(color.FgCyan)
	cyan.Printf("%s", status.Name)
	fmt.Printf(" (%s) on %s, engine %s\n", status.State, status.Address, status.EngineVersion)

	if status.Session == nil {
		color.New(color.FgHiBlack).Println("no debugger attached")
		return nil
	}
	s := status.Session
	color.New(color.FgGreen).Printf("attached %s", s.RemoteAddr)
	fmt.Printf(" since %s (in=%d out=%d)\n",
		s.StartedAt.Local().Format(time.DateTime), s.MessagesIn, s.MessagesOut)
	return nil
}

func runSessions(ctx context.Context, args []string) error {
	cf := newCommandFlags("sessions")
	limit := cf.fs.IntP("limit", "n", 20, "number of sessions to show")
	if err := cf.fs.Parse(args); err != nil {
		return err
	}
	cfg, _, err := cf.load()
	if err != nil {
		return err
	}

	resp, err := httpGet(ctx, cfg, fmt.Sprintf("/api/sessions?limit=%d", *limit))
	if err != nil {
		return fmt.Errorf("listing sessions failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("listing sessions failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var sessions []store.SessionRecord
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	if len(sessions) == 0 {
		fmt.Println("no sessions recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tDURATION\tREMOTE\tIN\tOUT\tREASON")
	for _, s := range sessions {
		duration := "active"
		reason := "-"
		if s.EndedAt != nil {
			duration = s.EndedAt.Sub(s.StartedAt).Round(time.Millisecond).String()
			reason = s.CloseReason
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			s.StartedAt.Local().Format(time.DateTime), duration, s.RemoteAddr,
			s.MessagesIn, s.MessagesOut, reason)
	}
	return w.Flush()
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("debug-agent configuration setup")
	fmt.Println("===============================")
	fmt.Println()

	defaults := config.Default()
	defaultDbPath := filepath.Join(getDataPath(), "sessions.db")

	// Output filename
	outputFile := prompt(reader, "Config file path", getConfigPath())

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Debugger Listener ---")
	name := prompt(reader, "Agent name", defaults.Agent.Name)
	host := prompt(reader, "Listen host", defaults.Agent.Host)
	port := prompt(reader, "Listen port", fmt.Sprint(defaults.Agent.Port))
	embeddingHost := prompt(reader, "Embedding host name", "node")
	retry := prompt(reader, "Bind retry interval", defaults.Agent.BindRetryIntervalRaw)

	fmt.Println("\n--- Engine ---")
	engineVersion := prompt(reader, "Reported engine version", defaults.Engine.Version)

	fmt.Println("\n--- Status Endpoint ---")
	httpAddr := disabled(prompt(reader, "HTTP address (\"none\" to disable)", "127.0.0.1:5859"))

	fmt.Println("\n--- Session Ledger ---")
	dbPath := disabled(prompt(reader, "SQLite database path (\"none\" to disable)", defaultDbPath))

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", defaults.Logging.Level)
	logFormat := prompt(reader, "Log format (text/json)", defaults.Logging.Format)

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# debug-agent configuration\n")
	cfg.WriteString("# Generated by debug-agent init\n\n")

	cfg.WriteString("agent:\n")
	cfg.WriteString(fmt.Sprintf("  name: \"%s\"\n", name))
	cfg.WriteString(fmt.Sprintf("  host: \"%s\"\n", host))
	cfg.WriteString(fmt.Sprintf("  port: %s\n", port))
	cfg.WriteString(fmt.Sprintf("  embedding_host: \"%s\"\n", embeddingHost))
	cfg.WriteString(fmt.Sprintf("  bind_retry_interval: \"%s\"\n", retry))
	cfg.WriteString("\n")

	cfg.WriteString("engine:\n")
	cfg.WriteString(fmt.Sprintf("  version: \"%s\"\n", engineVersion))
	cfg.WriteString("\n")

	cfg.WriteString("http:\n")
	cfg.WriteString(fmt.Sprintf("  addr: \"%s\"\n", httpAddr))
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	// Ensure config directory exists
	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Make sure what we wrote actually loads.
	if _, err := config.Load(outputFile); err != nil {
		return fmt.Errorf("generated config is invalid: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nTo start the agent:")
	fmt.Printf("  debug-agent serve --config %s\n", outputFile)

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

// disabled maps the answer "none" to an empty setting.
func disabled(answer string) string {
	if strings.EqualFold(answer, "none") {
		return ""
	}
	return answer
}
