package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/jllopis/telos/pkg/bootstrap"
	"github.com/jllopis/telos/pkg/config"
	"github.com/jllopis/telos/pkg/core"
	"github.com/jllopis/telos/pkg/llm"
	"github.com/jllopis/telos/pkg/mcp"
	"github.com/jllopis/telos/pkg/memory"
	"github.com/jllopis/telos/pkg/memory/ollama"
	"github.com/jllopis/telos/pkg/memory/qdrant"
	"github.com/jllopis/telos/pkg/runtime"
	"github.com/jllopis/telos/pkg/store"
	"github.com/jllopis/telos/pkg/telemetry"
)

const version = "0.1.0"

type globalFlags struct {
	ConfigPath string
	Profile    string
	Room       string
	Help       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	global, args, err := parseGlobalFlags(os.Args[1:])
	if err != nil {
		fatal(err)
	}
	if global.Help || len(args) == 0 {
		printUsage()
		return
	}

	cfg, err := loadConfig(global)
	if err != nil {
		fatal(err)
	}

	switch args[0] {
	case "chat":
		runChat(ctx, global, cfg)
	case "tasks":
		runTasks(ctx, cfg, args[1:])
	case "help":
		printUsage()
	case "version":
		fmt.Println("telos " + version)
	default:
		fatal(fmt.Errorf("unknown command %q", args[0]))
	}
}

func parseGlobalFlags(args []string) (globalFlags, []string, error) {
	var flags globalFlags
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			return flags, args[i:], nil
		}
		switch {
		case arg == "-h" || arg == "--help":
			flags.Help = true
			return flags, nil, nil
		case arg == "--config":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --config")
			}
			flags.ConfigPath = args[i+1]
			i++
		case strings.HasPrefix(arg, "--config="):
			flags.ConfigPath = strings.TrimPrefix(arg, "--config=")
		case arg == "--profile":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --profile")
			}
			flags.Profile = args[i+1]
			i++
		case strings.HasPrefix(arg, "--profile="):
			flags.Profile = strings.TrimPrefix(arg, "--profile=")
		case arg == "--room":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --room")
			}
			flags.Room = args[i+1]
			i++
		case strings.HasPrefix(arg, "--room="):
			flags.Room = strings.TrimPrefix(arg, "--room=")
		default:
			return flags, nil, fmt.Errorf("unknown global flag %q", arg)
		}
	}
	return flags, nil, nil
}

func loadConfig(global globalFlags) (*config.Config, error) {
	if global.Profile != "" {
		return config.LoadWithProfile(global.ConfigPath, global.Profile)
	}
	return config.Load(global.ConfigPath)
}

func runChat(ctx context.Context, global globalFlags, cfg *config.Config) {
	shutdown, err := telemetry.InitWithConfig("telos", version, telemetry.Config{
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		fatal(err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			fmt.Fprintln(os.Stderr, "telemetry shutdown:", err)
		}
	}()

	logger := telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	if global.ConfigPath != "" {
		watcher, _, err := config.WatchConfig(ctx, global.ConfigPath, config.WithWatchLogger(logger))
		if err != nil {
			fatal(err)
		}
		defer watcher.Stop()
		watcher.OnChange(func(updated *config.Config) {
			logger.Warn("config.changed.restart_required", "path", global.ConfigPath)
		})
	}

	character := &core.Character{Name: cfg.Agent.Name}
	if cfg.Agent.CharacterPath != "" {
		character, err = config.LoadCharacter(cfg.Agent.CharacterPath)
		if err != nil {
			fatal(err)
		}
	}

	st, err := openStore(cfg)
	if err != nil {
		fatal(err)
	}
	defer st.Close()

	metrics, err := telemetry.NewRuntimeMetrics(ctx)
	if err != nil {
		fatal(err)
	}

	opts := []runtime.Option{
		runtime.WithCharacter(character),
		runtime.WithLogger(logger),
		runtime.WithStore(st),
		runtime.WithMetrics(metrics),
		runtime.WithTaskSweep(cfg.Runtime.TaskSweepInterval, cfg.Runtime.TaskSweepTimeout),
	}

	if cfg.Memory.Provider == "qdrant" {
		vectors, err := qdrant.New(cfg.Memory.QdrantAddr)
		if err != nil {
			fatal(err)
		}
		opts = append(opts, runtime.WithVectorStore(vectors))
	}

	var embedder memory.Embedder
	if cfg.Memory.EmbedderProvider == "ollama" {
		embedder = ollama.NewEmbedder(cfg.Memory.EmbedderBaseURL, cfg.Memory.EmbedderModel)
	}

	rt := runtime.New(opts...)

	if err := rt.RegisterPlugin(ctx, bootstrap.Plugin()); err != nil {
		fatal(err)
	}

	provider := llm.NewOllama(cfg.Model.BaseURL)
	for modelType, handler := range llm.Handlers(provider, embedder, llm.DefaultHandlerConfig(cfg.Model.Model)) {
		rt.RegisterModel(modelType, handler)
	}

	var mcpService *mcp.Service
	if len(cfg.MCP.Servers) > 0 {
		mcpService = mcp.NewService(cfg.MCP.Servers, mcp.WithServiceLogger(logger))
		if err := rt.RegisterService(ctx, mcpService); err != nil {
			fatal(err)
		}
	}

	if err := rt.Start(ctx); err != nil {
		fatal(err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := rt.Stop(stopCtx); err != nil {
			fmt.Fprintln(os.Stderr, "runtime stop:", err)
		}
	}()

	if mcpService != nil {
		actions, err := mcpService.Actions(ctx)
		if err != nil {
			fatal(err)
		}
		for _, action := range actions {
			rt.RegisterAction(action)
		}
	}

	roomID := resolveRoom(global.Room)
	userID := uuid.New()

	fmt.Printf("%s ready. Type a message, or /quit to exit.\n", character.Name)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			break
		}
		if ctx.Err() != nil {
			break
		}
		if resolvePendingChoice(ctx, rt, roomID, line) {
			continue
		}
		turn(ctx, rt, cfg, character, roomID, userID, line)
	}
}

// resolvePendingChoice routes a message that answers a pending-choice
// task in the room to its worker instead of running a full turn.
// Returns false when no pending task offers the typed option.
func resolvePendingChoice(ctx context.Context, rt *runtime.Runtime, roomID uuid.UUID, text string) bool {
	tasks, err := rt.Tasks().Tasks(ctx, core.TaskQuery{RoomID: roomID, Name: bootstrap.ChooseOptionTask})
	if err != nil {
		return false
	}
	for _, t := range tasks {
		if _, ok := t.Metadata.Option(text); !ok {
			continue
		}
		cb := core.HandlerCallback(func(cbCtx context.Context, content core.Content) ([]core.Memory, error) {
			fmt.Println(content.Text)
			return nil, nil
		})
		if err := rt.Tasks().Resolve(ctx, t.ID, map[string]any{"option": text, "callback": cb}); err != nil {
			fmt.Fprintln(os.Stderr, "resolve task:", err)
		}
		return true
	}
	return false
}

// turn runs one full message cycle: persist, compose, respond, evaluate.
// Per-room turns are serialized here by the REPL itself.
func turn(ctx context.Context, rt *runtime.Runtime, cfg *config.Config, character *core.Character, roomID, userID uuid.UUID, text string) {
	turnCtx, _ := core.EnsureRunID(ctx)
	if cfg.Runtime.RunTimeout > 0 {
		var cancel context.CancelFunc
		turnCtx, cancel = context.WithTimeout(turnCtx, cfg.Runtime.RunTimeout)
		defer cancel()
	}

	msg := &core.Memory{
		EntityID:  userID,
		AgentID:   rt.AgentID(),
		RoomID:    roomID,
		Content:   core.Content{Text: text, Source: "cli"},
		Metadata:  core.MemoryMetadata{Type: core.MemoryTypeMessage},
		CreatedAt: time.Now().UTC(),
	}
	if _, err := rt.Memories(bootstrap.MessagesTable).CreateMemory(turnCtx, msg, false); err != nil {
		fmt.Fprintln(os.Stderr, "store message:", err)
		return
	}

	rt.EmitEvent(turnCtx, []core.EventType{core.EventRunStarted, core.EventMessageReceived},
		core.NewEventPayload(core.EventRunStarted, rt.AgentID(), roomID, msg, nil))

	state, err := rt.ComposeState(turnCtx, msg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "compose:", err)
		return
	}

	cb := func(cbCtx context.Context, content core.Content) ([]core.Memory, error) {
		reply := core.Memory{
			EntityID:  rt.AgentID(),
			AgentID:   rt.AgentID(),
			RoomID:    roomID,
			Content:   content,
			Metadata:  core.MemoryMetadata{Type: core.MemoryTypeMessage},
			CreatedAt: time.Now().UTC(),
		}
		if _, err := rt.Memories(bootstrap.MessagesTable).CreateMemory(cbCtx, &reply, false); err != nil {
			return nil, err
		}
		fmt.Printf("%s: %s\n", character.Name, content.Text)
		return []core.Memory{reply}, nil
	}

	response := &core.Memory{
		EntityID: rt.AgentID(),
		AgentID:  rt.AgentID(),
		RoomID:   roomID,
		Content:  core.Content{Actions: []string{"REPLY"}},
	}
	responses := []*core.Memory{response}

	rt.ProcessActions(turnCtx, msg, responses, state, cb)
	rt.Evaluate(turnCtx, msg, state, true, cb, responses)

	endEvent := core.EventRunEnded
	if turnCtx.Err() == context.DeadlineExceeded {
		endEvent = core.EventRunTimeout
	}
	rt.EmitEvent(turnCtx, []core.EventType{endEvent},
		core.NewEventPayload(endEvent, rt.AgentID(), roomID, msg, nil))
}

func runTasks(ctx context.Context, cfg *config.Config, args []string) {
	if len(args) == 0 {
		fatal(fmt.Errorf("usage: telos tasks <list|resolve <id> <option>>"))
	}

	st, err := openStore(cfg)
	if err != nil {
		fatal(err)
	}
	defer st.Close()

	switch args[0] {
	case "list":
		tasks, err := st.Tasks(ctx, core.TaskQuery{})
		if err != nil {
			fatal(err)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tTAGS\tUPDATED")
		for _, t := range tasks {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				t.ID, t.Name, strings.Join(t.Tags, ","), t.UpdatedAt.Format(time.RFC3339))
		}
		w.Flush()
	case "resolve":
		if len(args) != 3 {
			fatal(fmt.Errorf("usage: telos tasks resolve <id> <option>"))
		}
		id, err := uuid.Parse(args[1])
		if err != nil {
			fatal(fmt.Errorf("invalid task id %q: %w", args[1], err))
		}
		if err := resolveTask(ctx, st, id, args[2]); err != nil {
			fatal(err)
		}
	default:
		fatal(fmt.Errorf("unknown tasks subcommand %q", args[0]))
	}
}

// resolveTask invokes the bound worker for a persisted task. The
// bootstrap plugin supplies the pending-choice worker, so confirmation
// tasks left behind by a chat session can be settled from here.
func resolveTask(ctx context.Context, st store.Store, id uuid.UUID, option string) error {
	rt := runtime.New(runtime.WithStore(st))
	if err := rt.RegisterPlugin(ctx, bootstrap.Plugin()); err != nil {
		return err
	}
	cb := core.HandlerCallback(func(cbCtx context.Context, content core.Content) ([]core.Memory, error) {
		fmt.Println(content.Text)
		return nil, nil
	})
	return rt.Tasks().Resolve(ctx, id, map[string]any{"option": option, "callback": cb})
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "", "sqlite":
		return store.OpenSQLite(cfg.Store.DSN)
	case "inmemory":
		return store.NewInMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func resolveRoom(room string) uuid.UUID {
	if room == "" {
		return uuid.New()
	}
	if id, err := uuid.Parse(room); err == nil {
		return id
	}
	// Stable room from a human name.
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(room))
}

func printUsage() {
	fmt.Println(`telos - agent runtime host

Usage:
  telos [flags] <command>

Commands:
  chat                         Interactive chat with the configured agent
  tasks list                   Show persisted tasks
  tasks resolve <id> <option>  Settle a pending task with the given option
  version                      Print version
  help                         Show this help

Flags:
  --config <path>    Configuration file (YAML)
  --profile <name>   Config profile overlay (config.<name>.yaml)
  --room <id|name>   Chat room id or name (default: random)`)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
