// ABOUTME: Entry point for cortex-chat, a chat front end for a Cortex analyst agent
// ABOUTME: Serves the web UI and offers terminal ask, history, init, and health commands

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/2389/cortex-chat/internal/config"
	"github.com/2389/cortex-chat/internal/conversation"
	"github.com/2389/cortex-chat/internal/render"
	"github.com/2389/cortex-chat/internal/server"
	"github.com/2389/cortex-chat/internal/store"
	"github.com/2389/cortex-chat/internal/stream"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                _                        _           _
  ___ ___  _ __| |_ _____  __       ___| |__   __ _| |_
 / __/ _ \| '__| __/ _ \ \/ /_____ / __| '_ \ / _' | __|
| (_| (_) | |  | ||  __/>  <______| (__| | | | (_| | |_
 \___\___/|_|   \__\___/_/\_\      \___|_| |_|\__,_|\__|
`

func usage() {
	fmt.Println("Usage: cortex-chat <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                        Start the web UI")
	fmt.Println("  ask [--run] [-c ID] QUESTION Ask one question in the terminal")
	fmt.Println("  history [ID]                 List conversations or print one")
	fmt.Println("  init                         Create a new config file interactively")
	fmt.Println("  health                       Check server health")
	fmt.Println("  version                      Print the version")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "ask":
		err = runAsk(ctx, os.Args[2:])
	case "history":
		err = runHistory(ctx, os.Args[2:])
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "version", "--version":
		fmt.Println(version)
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

// loadConfig loads .env files and then the config file, falling back to
// environment variables when no file exists.
func loadConfig() (*config.Config, string, error) {
	cfg, path, err := config.Resolve()
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

func runServe(ctx context.Context) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}

	logger, closeLog, err := setupLogger(cfg.Logging, os.Stdout)
	if err != nil {
		return err
	}
	defer closeLog()

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	source := configPath
	if source == "" {
		source = "environment"
	}
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", source)
	green.Print("    ▶ ")
	fmt.Printf("Agent:     %s\n", cfg.Agent.AccountURL)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      http://%s\n", cfg.Server.HTTPAddr)
	if cfg.Warehouse.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Warehouse: ")
		cyan.Print(cfg.Warehouse.Name)
		yellow.Print(" [run sql]")
		fmt.Println()
	}
	fmt.Println()

	logger.Info("starting cortex-chat",
		"config", source,
		"http_addr", cfg.Server.HTTPAddr,
		"auth", cfg.Auth.Method,
	)

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	return srv.Run(ctx)
}

// askArgs are the parsed arguments of the ask command.
type askArgs struct {
	question       string
	conversationID string
	runSQL         bool
}

// parseAskArgs supports "--conversation ID", "--conversation=ID", "-c ID"
// and "--run" before or among the question words.
func parseAskArgs(args []string) (askArgs, error) {
	var out askArgs
	var words []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--conversation" || arg == "-c":
			if i+1 >= len(args) {
				return askArgs{}, fmt.Errorf("%s requires a value", arg)
			}
			out.conversationID = args[i+1]
			i++
		case strings.HasPrefix(arg, "--conversation="):
			out.conversationID = strings.TrimPrefix(arg, "--conversation=")
		case arg == "--run":
			out.runSQL = true
		case arg == "--":
			words = append(words, args[i+1:]...)
			i = len(args)
		case strings.HasPrefix(arg, "-"):
			return askArgs{}, fmt.Errorf("unknown flag: %s", arg)
		default:
			words = append(words, arg)
		}
	}

	out.question = strings.TrimSpace(strings.Join(words, " "))
	if out.question == "" {
		return askArgs{}, errors.New("a question is required")
	}
	return out, nil
}

func runAsk(ctx context.Context, args []string) error {
	parsed, err := parseAskArgs(args)
	if err != nil {
		return err
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	// Logs go to stderr so answers can be piped.
	logCfg := cfg.Logging
	if logCfg.Level == "info" {
		logCfg.Level = "warn"
	}
	logger, closeLog, err := setupLogger(logCfg, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	backend, err := server.NewBackend(cfg, nil, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	convID := parsed.conversationID
	if convID == "" {
		convID = uuid.New().String()
	}
	conv := conversation.NewStore(convID, st, logger)
	if err := conv.Load(ctx); err != nil {
		return fmt.Errorf("loading conversation: %w", err)
	}

	term := render.NewTerminal(os.Stdout)
	res, err := backend.Chat.Submit(ctx, conv, parsed.question, term)
	term.Finish()
	if err != nil {
		return err
	}

	gray := color.New(color.FgHiBlack)
	if res.SQL != "" {
		fmt.Println()
		color.New(color.FgCyan, color.Bold).Println("SQL")
		fmt.Println(res.SQL)

		if parsed.runSQL {
			if err := runSQL(ctx, backend, res.SQL, os.Stdout); err != nil {
				return err
			}
		}
	}

	fmt.Println()
	gray.Printf("conversation: %s  outcome: %s", convID, res.Status())
	if res.RequestID != "" {
		gray.Printf("  request: %s", res.RequestID)
	}
	fmt.Println()
	return nil
}

func runSQL(ctx context.Context, backend *server.Backend, query string, w io.Writer) error {
	if !backend.Chat.HasWarehouse() {
		return errors.New("running SQL needs warehouse.enabled in the config")
	}

	res, err := backend.Chat.RunSQL(ctx, query)
	if err != nil {
		return err
	}

	table := stream.NewTableData(res.ResultSet())
	table.Title = fmt.Sprintf("%d rows in %s", len(res.Rows), res.Elapsed.Round(time.Millisecond))
	if res.Truncated {
		table.Title = fmt.Sprintf("First %d rows in %s (truncated)", len(res.Rows), res.Elapsed.Round(time.Millisecond))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, render.TableText(table))
	return nil
}

func runHistory(ctx context.Context, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	if len(args) == 0 {
		return listConversations(ctx, st, os.Stdout)
	}
	return printConversation(ctx, st, args[0], os.Stdout)
}

func listConversations(ctx context.Context, st *store.SQLiteStore, out io.Writer) error {
	convs, err := st.ListConversations(ctx, store.DefaultListLimit)
	if err != nil {
		return fmt.Errorf("listing conversations: %w", err)
	}
	if len(convs) == 0 {
		fmt.Fprintln(out, "No conversations yet.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUPDATED\tMESSAGES\tTITLE")
	for _, c := range convs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", c.ID, c.UpdatedAt.Local().Format("2006-01-02 15:04"), c.MessageCount, c.Title)
	}
	return w.Flush()
}

func printConversation(ctx context.Context, st *store.SQLiteStore, id string, out io.Writer) error {
	conv, err := st.GetConversation(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("conversation %s not found", id)
		}
		return err
	}
	msgs, err := st.ListMessages(ctx, id)
	if err != nil {
		return err
	}

	style := "dark"
	if color.NoColor {
		style = "notty"
	}
	tr, err := render.NewTranscript(style, 100)
	if err != nil {
		return err
	}

	color.New(color.FgCyan, color.Bold).Fprintln(out, conv.Title)
	color.New(color.FgHiBlack).Fprintf(out, "%s  %d messages\n\n", conv.CreatedAt.Local().Format("2006-01-02 15:04"), conv.MessageCount)
	for _, msg := range msgs {
		if err := tr.WriteMessage(out, msg); err != nil {
			return err
		}
	}
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s/health/ready", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	fmt.Println(strings.TrimSpace(string(body)))
	return nil
}
