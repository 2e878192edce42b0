// Command draftpilot turns a natural-language request into an executable
// script, runs it against the design-document workspace inside an
// all-or-nothing apply scope, and automatically repairs failing scripts with
// a bounded retry loop.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"draftpilot/pkg/config"
	"draftpilot/pkg/logx"
	"draftpilot/pkg/metrics"
	"draftpilot/pkg/model"
	"draftpilot/pkg/persistence"
	"draftpilot/pkg/pipeline"
	"draftpilot/pkg/retrieval"
	"draftpilot/pkg/sandbox"
	"draftpilot/pkg/workspace"
)

// Exit codes by terminal outcome.
const (
	exitSuccess   = 0
	exitError     = 1
	exitCancelled = 2
	exitExhausted = 3
	exitAborted   = 4
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  = flag.String("config", "draftpilot.json", "path to config file")
		request     = flag.String("request", "", "natural-language request (reads stdin if empty)")
		maxAttempts = flag.Int("max-attempts", 0, "override max attempts from config")
		autoApprove = flag.Bool("auto-approve", false, "execute generated scripts without asking")
	)
	flag.Parse()

	logger := logx.NewLogger("draftpilot")

	cfg, err := config.Load(*configPath)
	if err != nil {
		// A missing config file is fine; defaults apply.
		if !os.IsNotExist(unwrapPathError(err)) {
			logger.Error("config: %v", err)
			return exitError
		}
		cfg = config.Default()
	}
	if *maxAttempts > 0 {
		cfg.MaxAttempts = *maxAttempts
	}
	if *autoApprove {
		cfg.AutoApprove = true
	}

	req := strings.TrimSpace(*request)
	if req == "" && flag.NArg() > 0 {
		req = strings.TrimSpace(strings.Join(flag.Args(), " "))
	}
	if req == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			logger.Error("failed to read request from stdin: %v", err)
			return exitError
		}
		req = strings.TrimSpace(string(data))
	}
	if req == "" {
		logger.Error("request is empty; nothing to do")
		return exitError
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	apiKey, err := config.GetAPIKey()
	if err != nil {
		logger.Error("%v", err)
		return exitError
	}

	ws, err := workspace.Open(cfg.WorkspacePath)
	if err != nil {
		logger.Error("%v", err)
		return exitError
	}
	defer func() { _ = ws.Close() }()

	store, err := persistence.Open(cfg.RunLogPath)
	if err != nil {
		logger.Error("%v", err)
		return exitError
	}
	defer func() { _ = store.Close() }()

	recorder := metrics.NewRecorder()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(cfg.MetricsAddr); err != nil {
				logger.Warn("metrics server stopped: %v", err)
			}
		}()
	}

	var gate pipeline.Gate = pipeline.NewTerminalGate()
	if cfg.AutoApprove {
		gate = pipeline.AutoApproveGate{}
	}

	client := model.NewGeminiClient(model.GeminiOpts{
		APIKey:      apiKey,
		Model:       cfg.Model.Name,
		Timeout:     cfg.ModelTimeout(),
		MaxTokens:   cfg.Model.MaxTokens,
		Temperature: cfg.Model.Temperature,
	})

	pipe, err := pipeline.New(pipeline.Opts{
		Client:      client,
		Workspace:   wsAdapter{ws},
		Executor:    sandbox.NewExecutor(cfg.ExecTimeout()),
		Gate:        gate,
		Store:       store,
		Recorder:    recorder,
		ArchiveDir:  cfg.ArchiveDir,
		MaxAttempts: cfg.MaxAttempts,
	})
	if err != nil {
		logger.Error("%v", err)
		return exitError
	}

	// The retrieval step runs once, before any attempt; its failure aborts
	// the whole operation since no attempt can proceed without a prompt.
	builder := retrieval.New(cfg.Retrieval.ScriptPath, cfg.Retrieval.PythonBin, cfg.RetrievalTimeout(), nil)
	initialPrompt, err := builder.BuildInitialPrompt(ctx, req)
	if err != nil {
		logger.Error("retrieval failed: %v", err)
		return exitAborted
	}

	report := pipe.Run(ctx, req, initialPrompt)
	printReport(report)

	switch report.Outcome {
	case pipeline.OutcomeSuccess:
		return exitSuccess
	case pipeline.OutcomeCancelled:
		return exitCancelled
	case pipeline.OutcomeExhausted:
		return exitExhausted
	default:
		return exitAborted
	}
}

// printReport writes the final report surface: the captured output on
// success; otherwise the last error and last attempted code so the user can
// recover manually.
func printReport(report pipeline.Report) {
	switch report.Outcome {
	case pipeline.OutcomeSuccess:
		fmt.Println(report.Output)
	default:
		fmt.Fprintf(os.Stderr, "run ended: %s\n", report.Outcome)
		if report.LastError != "" {
			fmt.Fprintf(os.Stderr, "last error:\n%s\n", report.LastError)
		}
		if report.LastCode != "" {
			fmt.Fprintf(os.Stderr, "last attempted script:\n%s\n", report.LastCode)
		}
	}
}

// wsAdapter narrows *workspace.SQLite to the pipeline's Workspace interface.
type wsAdapter struct {
	ws *workspace.SQLite
}

func (a wsAdapter) Begin(ctx context.Context) (pipeline.Scope, error) {
	return a.ws.Begin(ctx)
}

// unwrapPathError digs out the underlying fs error for os.IsNotExist checks.
func unwrapPathError(err error) error {
	for {
		unwrapped, ok := err.(interface{ Unwrap() error })
		if !ok {
			return err
		}
		next := unwrapped.Unwrap()
		if next == nil {
			return err
		}
		err = next
	}
}
