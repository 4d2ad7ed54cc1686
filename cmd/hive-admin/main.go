// ABOUTME: Admin CLI for managing hive-fleet agent records
// ABOUTME: Talks directly to the record store; the daemon converges on changes

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/2389/hive-fleet/internal/config"
	"github.com/2389/hive-fleet/internal/store"
)

const banner = `
  _     _                          _           _
 | |__ (_)_   _____        __ _ __| |_ __ ___ (_)_ __
 | '_ \| \ \ / / _ \_____ / _' / _' | '_ ' _ \| | '_ \
 | | | | |\ V /  __/_____| (_| (_| | | | | | | | | | |
 |_| |_|_| \_/ \___|      \__,_\__,_|_| |_| |_|_|_| |_|
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "create":
		err = cmdCreate(ctx, args)
	case "list":
		err = cmdList(ctx)
	case "show":
		err = cmdShow(ctx, args)
	case "enable":
		err = cmdSetEnabled(ctx, args, true)
	case "disable":
		err = cmdSetEnabled(ctx, args, false)
	case "delete":
		err = cmdDelete(ctx, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: hive-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  create [flags]   Register a new agent record")
	fmt.Println("  list             List all agent records")
	fmt.Println("  show <id>        Show one record in full")
	fmt.Println("  enable <id>      Enable a record (the daemon starts it)")
	fmt.Println("  disable <id>     Disable a record (the daemon stops it)")
	fmt.Println("  delete <id>      Delete a record")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  HIVE_CONFIG      Config file path (default: ~/.config/hive/fleet.yaml)")
}

// getConfigPath mirrors the daemon's config resolution so both binaries
// see the same store.
func getConfigPath() string {
	if envPath := os.Getenv("HIVE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "fleet.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "hive", "fleet.yaml")
}

func openStore(ctx context.Context) (store.Store, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	switch cfg.Database.Driver {
	case "postgres":
		return store.NewPostgresStore(ctx, cfg.Database.DSN)
	default:
		return store.NewSQLiteStore(cfg.Database.Path)
	}
}

func cmdCreate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	name := fs.String("name", "", "agent name (required)")
	homeserver := fs.String("homeserver", "", "homeserver URL (required)")
	token := fs.String("token", "", "access token (required)")
	agentType := fs.String("type", store.AgentTypeEcho, "agent type: echo or llm")
	agentConfig := fs.String("agent-config", "", "behavior config as JSON")
	respondDM := fs.Bool("respond-dm", true, "respond in direct conversations")
	spaces := fs.String("spaces", "", "comma-separated space whitelist")
	rooms := fs.String("rooms", "", "comma-separated room whitelist")
	disabled := fs.Bool("disabled", false, "create the record disabled")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *name == "" || *homeserver == "" || *token == "" {
		return fmt.Errorf("--name, --homeserver, and --token are required")
	}
	if *agentType != store.AgentTypeEcho && *agentType != store.AgentTypeLLM {
		return fmt.Errorf("--type must be %s or %s", store.AgentTypeEcho, store.AgentTypeLLM)
	}

	var behavior map[string]any
	if *agentConfig != "" {
		if err := json.Unmarshal([]byte(*agentConfig), &behavior); err != nil {
			return fmt.Errorf("parsing --agent-config: %w", err)
		}
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	rec := &store.AgentRecord{
		Name:           *name,
		Homeserver:     *homeserver,
		AccessToken:    *token,
		Enabled:        !*disabled,
		RespondToDM:    *respondDM,
		SpaceWhitelist: splitList(*spaces),
		RoomWhitelist:  splitList(*rooms),
		AgentType:      *agentType,
		AgentConfig:    behavior,
	}

	if err := st.Create(ctx, rec); err != nil {
		return fmt.Errorf("creating record: %w", err)
	}

	color.Green("Created agent %d (%s)", rec.ID, rec.Name)
	return nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func cmdList(ctx context.Context) error {
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	records, err := st.List(ctx)
	if err != nil {
		return fmt.Errorf("listing records: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("No agents registered.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tENABLED\tUSER ID")
	for _, rec := range records {
		fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%s\n", rec.ID, rec.Name, rec.AgentType, rec.Enabled, rec.BotUserID)
	}
	return w.Flush()
}

func cmdShow(ctx context.Context, args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	rec, err := st.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("fetching record: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%d\n", rec.ID)
	fmt.Fprintf(w, "Name:\t%s\n", rec.Name)
	fmt.Fprintf(w, "Homeserver:\t%s\n", rec.Homeserver)
	fmt.Fprintf(w, "Enabled:\t%t\n", rec.Enabled)
	fmt.Fprintf(w, "Type:\t%s\n", rec.AgentType)
	fmt.Fprintf(w, "Respond to DM:\t%t\n", rec.RespondToDM)
	fmt.Fprintf(w, "Space whitelist:\t%s\n", strings.Join(rec.SpaceWhitelist, ", "))
	fmt.Fprintf(w, "Room whitelist:\t%s\n", strings.Join(rec.RoomWhitelist, ", "))
	fmt.Fprintf(w, "Bot user ID:\t%s\n", rec.BotUserID)
	fmt.Fprintf(w, "Bot display name:\t%s\n", rec.BotDisplayName)
	fmt.Fprintf(w, "Created:\t%s\n", rec.CreatedAt.Format("2006-01-02 15:04:05"))
	if len(rec.AgentConfig) > 0 {
		cfgJSON, err := json.MarshalIndent(rec.AgentConfig, "", "  ")
		if err == nil {
			fmt.Fprintf(w, "Config:\t%s\n", cfgJSON)
		}
	}
	return w.Flush()
}

func cmdSetEnabled(ctx context.Context, args []string, enabled bool) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.SetEnabled(ctx, id, enabled); err != nil {
		return fmt.Errorf("updating record: %w", err)
	}

	if enabled {
		color.Green("Agent %d enabled", id)
	} else {
		color.Yellow("Agent %d disabled", id)
	}
	return nil
}

func cmdDelete(ctx context.Context, args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	deleted, err := st.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}
	if !deleted {
		return fmt.Errorf("no agent with ID %d", id)
	}

	color.Green("Agent %d deleted", id)
	return nil
}

func parseID(args []string) (int64, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("an agent ID is required")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid agent ID %q", args[0])
	}
	return id, nil
}
