// nexus3d CLI entry point: flag parsing plus a subcommand dispatch table
// under "rpc" that mirrors the JSON-RPC method table one-for-one. The
// heavier TUI/REPL collaborator is out of this runtime's core scope
// (§1); this binary wires the Event Hub, Agent Registry and rpcserver
// together and gives a thin HTTP client for scripting against a running
// daemon.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/batalabs/nexus3d/internal/agent"
	"github.com/batalabs/nexus3d/internal/config"
	"github.com/batalabs/nexus3d/internal/domain"
	"github.com/batalabs/nexus3d/internal/eventhub"
	"github.com/batalabs/nexus3d/internal/provider"
	"github.com/batalabs/nexus3d/internal/registry"
	"github.com/batalabs/nexus3d/internal/rpcserver"
	"github.com/batalabs/nexus3d/internal/skills"
	"github.com/batalabs/nexus3d/internal/skills/docfmt"
	"github.com/batalabs/nexus3d/internal/skills/fs"
	"github.com/batalabs/nexus3d/internal/skills/gitlab"
)

var version = "dev"

func init() {
	if version != "dev" {
		return
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		version = info.Main.Version
	}
}

func main() {
	versionFlag := flag.Bool("version", false, "Print version and exit")
	serveFlag := flag.Bool("serve", false, "Run the JSON-RPC + SSE server")
	portFlag := flag.Int("port", 8765, "Port for --serve (default 8765)")
	bindFlag := flag.String("bind", "localhost", "Network interface to bind for --serve")
	apiKeyFlag := flag.String("api-key", "", "Bearer credential required on every RPC method except detect")
	logDirFlag := flag.String("log-dir", "", "Override the log directory (default ~/.nexus3)")
	initGlobal := flag.Bool("init-global", false, "Populate ~/.nexus3 with template files")
	initGlobalForce := flag.Bool("init-global-force", false, "Like --init-global, but overwrite existing files")
	flag.Parse()

	logger := config.NewLoggerAt(*logDirFlag)
	defer logger.Close()

	if *versionFlag {
		fmt.Printf("nexus3d %s\n", version)
		return
	}

	if *initGlobal || *initGlobalForce {
		if err := initGlobalConfig(*initGlobalForce); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	args := flag.Args()
	if len(args) > 0 && args[0] == "rpc" {
		if err := runRPCClient(*bindFlag, *portFlag, *apiKeyFlag, args[1:]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *serveFlag {
		if err := runServer(*bindFlag, *portFlag, *apiKeyFlag, logger); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	printUsage()
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: nexus3d --serve [--port PORT] [--bind ADDR] [--api-key KEY] [--log-dir DIR]")
	fmt.Fprintln(os.Stderr, "       nexus3d rpc <detect|create|destroy|list|send|cancel|status|compact|shutdown> [json-params]")
	fmt.Fprintln(os.Stderr, "       nexus3d --init-global[-force]")
}

// ---------------------------------------------------------------------------
// Server mode
// ---------------------------------------------------------------------------

func runServer(bindAddr string, port int, apiKey string, logger *config.Logger) error {
	prefs := config.LoadPreferences()
	if apiKey == "" {
		apiKey = prefs.RPCAPIKey
	}

	hub := eventhub.NewDefault()

	var gitlabCfg gitlab.Config
	if url := os.Getenv("GITLAB_URL"); url != "" {
		gitlabCfg.Instances = map[string]gitlab.Instance{
			"default": {Name: "default", Host: hostOf(url), URL: url, TokenEnv: "GITLAB_TOKEN"},
		}
		gitlabCfg.Default = "default"
	}

	factories := append([]skills.Factory{fs.WriteFileFactory}, skills.DefaultFactories()...)
	factories = append(factories, gitlab.CatalogueFactories()...)
	factories = append(factories, docfmt.Factories()...)

	reg := registry.New(hub, newProviderFactory(prefs), &gitlabCfg, factories, noConfirmer{}, ".")
	srv := rpcserver.New(reg, hub, apiKey)
	srv.SetLogger(logger.Printf)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Printf("serving on %s:%d", bindAddr, port)
	return srv.Start(ctx, bindAddr, port)
}

// noConfirmer auto-denies every confirmation prompt. Real confirmation in
// server mode belongs to a REPL client talking over the event plane, which
// is out of this runtime's core scope (§1); wiring a real Confirmer here
// would require the very TUI collaborator the spec excludes.
type noConfirmer struct{}

func (noConfirmer) Confirm(ctx context.Context, prompt string) (bool, error) { return false, nil }

func hostOf(rawURL string) string {
	u := strings.TrimPrefix(rawURL, "https://")
	u = strings.TrimPrefix(u, "http://")
	if idx := strings.Index(u, "/"); idx >= 0 {
		u = u[:idx]
	}
	return u
}

// ---------------------------------------------------------------------------
// Provider wiring: adapts internal/provider's streaming, apiKey-taking
// Provider onto the Agent's minimal Send-based Provider contract.
// ---------------------------------------------------------------------------

func newProviderFactory(prefs config.Preferences) registry.ProviderFactory {
	return func(model string) agent.Provider {
		providerName, modelID := provider.ResolveProviderAndModel(model, prefs.Provider)
		if providerName == "" {
			providerName = "anthropic"
		}
		prov, err := provider.GetProvider(providerName)
		if err != nil {
			return nil
		}
		apiKey, _ := config.LoadProviderAPIKey(prefs, providerName)
		return &providerAdapter{prov: prov, apiKey: apiKey, modelID: modelID}
	}
}

// providerAdapter makes a streaming internal/provider.Provider satisfy
// agent.Provider. The wire format is intentionally opaque to the Agent
// (core spec §1); this is the one place that bridges the two shapes.
type providerAdapter struct {
	prov    provider.Provider
	apiKey  string
	modelID string
}

const defaultSystemPrompt = "You are an autonomous coding agent with access to a small set of tools. Use them when they help accomplish the user's request; answer directly otherwise."

func (p *providerAdapter) Send(ctx context.Context, messages []domain.TranscriptMessage, tools []agent.ToolSpec) (agent.Response, error) {
	pTools := make([]provider.ToolSpec, 0, len(tools))
	for _, t := range tools {
		pTools = append(pTools, schemaToToolSpec(t.Name, t.Description, t.Parameters))
	}

	blocks, stopReason, usage, err := p.prov.StreamMessage(p.apiKey, p.modelID, messages, pTools, defaultSystemPrompt, nil)
	if err != nil {
		return agent.Response{}, err
	}
	return agent.Response{
		Blocks:     blocks,
		StopReason: stopReason,
		Usage: agent.Usage{
			InputTokens:  usage.InputTokens,
			OutputTokens: usage.OutputTokens,
		},
	}, nil
}

func schemaToToolSpec(name, description string, schema map[string]any) provider.ToolSpec {
	spec := provider.ToolSpec{Name: name, Description: description}
	if props, ok := schema["properties"].(map[string]any); ok {
		spec.Properties = make(map[string]provider.ToolProp, len(props))
		for k, v := range props {
			if m, ok := v.(map[string]any); ok {
				spec.Properties[k] = schemaToToolProp(m)
			}
		}
	}
	switch req := schema["required"].(type) {
	case []string:
		spec.Required = req
	case []any:
		for _, r := range req {
			if s, ok := r.(string); ok {
				spec.Required = append(spec.Required, s)
			}
		}
	}
	return spec
}

func schemaToToolProp(m map[string]any) provider.ToolProp {
	var prop provider.ToolProp
	if t, ok := m["type"].(string); ok {
		prop.Type = t
	}
	if d, ok := m["description"].(string); ok {
		prop.Description = d
	}
	if items, ok := m["items"].(map[string]any); ok {
		p := schemaToToolProp(items)
		prop.Items = &p
	}
	if props, ok := m["properties"].(map[string]any); ok {
		prop.Properties = make(map[string]provider.ToolProp, len(props))
		for k, v := range props {
			if mm, ok := v.(map[string]any); ok {
				prop.Properties[k] = schemaToToolProp(mm)
			}
		}
	}
	return prop
}

// ---------------------------------------------------------------------------
// rpc subcommand: a thin JSON-RPC 2.0 client over POST /rpc
// ---------------------------------------------------------------------------

func runRPCClient(bindAddr string, port int, apiKey string, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: nexus3d rpc <method> [json-params]")
	}
	method := args[0]

	var params any
	if len(args) > 1 {
		if err := json.Unmarshal([]byte(args[1]), &params); err != nil {
			return fmt.Errorf("invalid json params: %w", err)
		}
	}

	reqBody, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return err
	}

	host := bindAddr
	if host == "" {
		host = "localhost"
	}
	url := fmt.Sprintf("http://%s:%d/rpc", host, port)

	httpReq, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	fmt.Println(string(body))
	return nil
}

// ---------------------------------------------------------------------------
// --init-global: populate ~/.nexus3 with template files (§6)
// ---------------------------------------------------------------------------

func initGlobalConfig(force bool) error {
	dir, err := config.DataDir()
	if err != nil {
		return err
	}

	files := map[string]string{
		"NEXUS.md": "# NEXUS.md\n\nProject-wide instructions read by every agent started in this directory.\n",
		"mcp.json": "{\n  \"mcpServers\": {}\n}\n",
	}

	for name, contents := range files {
		path := filepath.Join(dir, name)
		if info, statErr := os.Lstat(path); statErr == nil {
			if info.Mode()&os.ModeSymlink != 0 {
				return fmt.Errorf("refusing to write %s: target is a symlink", path)
			}
			if !force {
				continue
			}
		}
		if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}

	fmt.Printf("initialized %s\n", dir)
	return nil
}
