package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jmercer/sprintdesk/internal/agent"
	"github.com/jmercer/sprintdesk/internal/config"
	"github.com/jmercer/sprintdesk/internal/llm"
	"github.com/jmercer/sprintdesk/internal/llm/openaicompat"
	"github.com/jmercer/sprintdesk/internal/report"
	"github.com/jmercer/sprintdesk/internal/server"
	"github.com/jmercer/sprintdesk/internal/toolsvc"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		serve(os.Args[2:])
	case "report":
		reportCmd(os.Args[2:])
	case "version":
		fmt.Println(version)
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  sprintdesk serve --config <sprintdesk.yaml> [--addr <host:port>]")
	fmt.Fprintln(os.Stderr, "  sprintdesk report --config <sprintdesk.yaml> --sprints <4,5,6> [--credential-env <VAR>] [--config-id <id>]")
	fmt.Fprintln(os.Stderr, "  sprintdesk version")
}

func serve(args []string) {
	var configPath string
	var addr string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--config requires a value")
				os.Exit(1)
			}
			configPath = args[i]
		case "--addr":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--addr requires a value")
				os.Exit(1)
			}
			addr = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\n", args[i])
			usage()
			os.Exit(1)
		}
	}

	if configPath == "" {
		fmt.Fprintln(os.Stderr, "--config is required")
		os.Exit(1)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if addr != "" {
		cfg.ListenAddr = addr
	}

	srv, err := buildServer(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := srv.ListenAndServe(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func reportCmd(args []string) {
	var configPath, sprintsArg, credentialEnv, configID string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--config requires a value")
				os.Exit(1)
			}
			configPath = args[i]
		case "--sprints":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--sprints requires a value")
				os.Exit(1)
			}
			sprintsArg = args[i]
		case "--credential-env":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--credential-env requires a value")
				os.Exit(1)
			}
			credentialEnv = args[i]
		case "--config-id":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--config-id requires a value")
				os.Exit(1)
			}
			configID = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\n", args[i])
			usage()
			os.Exit(1)
		}
	}

	if configPath == "" {
		fmt.Fprintln(os.Stderr, "--config is required")
		os.Exit(1)
	}
	sprints := parseSprints(sprintsArg)
	if len(sprints) == 0 {
		fmt.Fprintln(os.Stderr, "--sprints requires a comma-separated list, e.g. --sprints 4,5,6")
		os.Exit(1)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	var credential string
	if credentialEnv != "" {
		credential = os.Getenv(credentialEnv)
	}
	if err := runReport(cfg, sprints, credential, configID, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func parseSprints(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runReport(cfg config.Config, sprints []string, credential, configID string, out io.Writer) error {
	if cfg.ToolService.BaseURL == "" {
		return fmt.Errorf("tool_service.base_url is required for reports")
	}
	tc, err := toolsvc.New(toolsvc.Config{
		BaseURL: cfg.ToolService.BaseURL,
		Timeout: cfg.ToolServiceTimeout(),
	})
	if err != nil {
		return err
	}
	gen, err := report.NewGenerator(tc, report.Config{})
	if err != nil {
		return err
	}
	rep, err := gen.Generate(context.Background(), sprints, credential, configID)
	if err != nil {
		return err
	}
	_, err = io.WriteString(out, rep.Render())
	return err
}

func buildServer(cfg config.Config) (*server.Server, error) {
	client := llm.NewClient()
	client.Register(openaicompat.NewAdapter(openaicompat.Config{
		Provider: cfg.Provider.Name,
		APIKey:   cfg.APIKey(),
		BaseURL:  cfg.Provider.BaseURL,
	}))

	var remote agent.RemoteExecutor
	if cfg.ToolService.BaseURL != "" {
		tc, err := toolsvc.New(toolsvc.Config{
			BaseURL: cfg.ToolService.BaseURL,
			Timeout: cfg.ToolServiceTimeout(),
		})
		if err != nil {
			return nil, err
		}
		remote = tc
	}

	reg := agent.NewToolRegistry(remote)
	if err := agent.RegisterLocalTools(reg); err != nil {
		return nil, err
	}
	if remote != nil {
		if err := agent.RegisterRemoteTools(reg); err != nil {
			return nil, err
		}
	}

	model := agent.NewClientModel(client, cfg.Provider.Name, cfg.Provider.Model, cfg.Provider.ClassifierModel)
	gate := agent.NewWriteGate(cfg.Agent.WriteTools)

	tokens, err := agent.NewTiktokenCounter(cfg.Provider.Model)
	if err != nil {
		tokens = agent.NewHeuristicCounter()
	}

	loop, err := agent.NewLoop(model, reg, gate, agent.LoopConfig{
		MaxToolIterations: cfg.Agent.MaxToolIterations,
		ContextWindow:     cfg.Provider.ContextWindow,
		Tokens:            tokens,
	})
	if err != nil {
		return nil, err
	}

	store := agent.NewLRUStore(cfg.Agent.CacheSize, cfg.CacheTTL())
	return server.New(server.Config{Addr: cfg.ListenAddr}, loop, store), nil
}
