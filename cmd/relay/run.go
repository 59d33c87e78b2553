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

	"github.com/spf13/cobra"
	"github.com/tidwall/jsonc"

	"mercator-hq/relay/pkg/cli"
	"mercator-hq/relay/pkg/llm"
	"mercator-hq/relay/pkg/ports"
	"mercator-hq/relay/pkg/routing"
	"mercator-hq/relay/pkg/runs"
)

var runFlags struct {
	model       string
	prompt      string
	promptFile  string
	system      string
	schemaFile  string
	temperature float64
	maxTokens   int
	stream      bool
	versionID   string
	tenantID    string
	task        string
	useCache    bool
	native      bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a model version once",
	Long: `Run a prompt against the candidate providers of a model.

Providers are tried in their configured order. Retryable failures move on to
the next candidate; the finished run is stored in the local run store.

Examples:
  # Free-form completion
  relay run --model gpt-4o --prompt "Summarize RFC 9110 in one line"

  # Structured output validated against a JSON Schema
  relay run --model gpt-4o --prompt-file ticket.txt --schema ticket.schema.json

  # Stream partial outputs as JSON lines
  relay run --model claude-sonnet-4 --prompt "..." --stream -o json

  # Reuse an earlier successful run with the same input
  relay run --model gpt-4o --prompt "..." --version-id v3 --use-cache`,
	RunE: runOnce,
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.StringVarP(&runFlags.model, "model", "m", "", "model to run (required)")
	f.StringVarP(&runFlags.prompt, "prompt", "p", "", "user prompt")
	f.StringVar(&runFlags.promptFile, "prompt-file", "", "read the user prompt from a file (- for stdin)")
	f.StringVar(&runFlags.system, "system", "", "system prompt")
	f.StringVar(&runFlags.schemaFile, "schema", "", "JSON Schema file the output must satisfy (comments allowed)")
	f.Float64Var(&runFlags.temperature, "temperature", 0, "sampling temperature")
	f.IntVar(&runFlags.maxTokens, "max-tokens", 0, "completion token cap (0 for the model maximum)")
	f.BoolVar(&runFlags.stream, "stream", false, "stream partial outputs")
	f.StringVar(&runFlags.versionID, "version-id", "cli", "version the run belongs to")
	f.StringVar(&runFlags.tenantID, "tenant", "default", "tenant billed for the run")
	f.StringVar(&runFlags.task, "task", "", "task name scoping the schema support cache")
	f.BoolVar(&runFlags.useCache, "use-cache", false, "return an earlier successful run with the same input")
	f.BoolVar(&runFlags.native, "structured-generation", true, "ask providers to constrain generation natively")
	runCmd.MarkFlagRequired("model")
	runCmd.MarkFlagsMutuallyExclusive("prompt", "prompt-file")
}

// runReport is the machine-readable result of "relay run".
type runReport struct {
	RunID    string            `json:"run_id,omitempty"`
	Status   ports.RunStatus   `json:"status,omitempty"`
	Model    string            `json:"model"`
	Provider string            `json:"provider,omitempty"`
	Cached   bool              `json:"cached"`
	Output   any               `json:"output,omitempty"`
	Usage    llm.LLMUsage      `json:"usage"`
	CostUSD  float64           `json:"cost_usd"`
	Attempts []routing.Attempt `json:"attempts,omitempty"`
	Error    string            `json:"error,omitempty"`
}

func newRunReport(model string, outcome *runs.Outcome, err error) runReport {
	report := runReport{Model: model}
	if outcome != nil && outcome.Run != nil {
		run := outcome.Run
		report.RunID = run.ID
		report.Status = run.Status
		report.Provider = run.Provider
		report.Cached = outcome.Cached
		report.Usage = run.Usage
		report.CostUSD = run.Cost
		report.Attempts = outcome.Attempts
		if run.Output != nil {
			report.Output = run.Output.Output
		}
	}
	if err != nil {
		report.Error = err.Error()
	}
	return report
}

func runOnce(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	req, err := buildRequest(cmd.InOrStdin())
	if err != nil {
		return err
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(context.WithoutCancel(cmd.Context()))

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	var outcome *runs.Outcome
	if runFlags.stream {
		outcome, err = streamRun(ctx, cmd.OutOrStdout(), a.runs, req)
	} else {
		outcome, err = a.runs.Execute(ctx, req)
	}

	report := newRunReport(req.Model, outcome, err)
	if jsonOutput() {
		if ferr := (&cli.JSONFormatter{Indent: !runFlags.stream}).FormatTo(cmd.OutOrStdout(), report); ferr != nil {
			return ferr
		}
	} else {
		if !runFlags.stream && report.Output != nil {
			if ferr := printOutput(cmd.OutOrStdout(), report.Output); ferr != nil {
				return ferr
			}
		}
		printSummary(printer(cmd), report)
	}
	return err
}

// buildRequest assembles the run request from the flags.
func buildRequest(stdin io.Reader) (runs.Request, error) {
	prompt := runFlags.prompt
	switch runFlags.promptFile {
	case "":
	case "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return runs.Request{}, fmt.Errorf("failed to read prompt from stdin: %w", err)
		}
		prompt = string(data)
	default:
		data, err := os.ReadFile(runFlags.promptFile)
		if err != nil {
			return runs.Request{}, fmt.Errorf("failed to read prompt file: %w", err)
		}
		prompt = string(data)
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return runs.Request{}, cli.NewConfigError("prompt", "a prompt is required (--prompt or --prompt-file)")
	}

	var messages []llm.Message
	if runFlags.system != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: runFlags.system})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: prompt})

	opts := llm.Options{
		Model:                runFlags.model,
		Temperature:          runFlags.temperature,
		StructuredGeneration: runFlags.native,
		TaskName:             runFlags.task,
	}
	if runFlags.maxTokens > 0 {
		opts.MaxTokens = llm.IntPtr(runFlags.maxTokens)
	}
	if runFlags.schemaFile != "" {
		schema, err := loadSchema(runFlags.schemaFile)
		if err != nil {
			return runs.Request{}, err
		}
		opts.OutputSchema = schema
	}

	return runs.Request{
		TenantID:  runFlags.tenantID,
		VersionID: runFlags.versionID,
		Model:     runFlags.model,
		Messages:  messages,
		Options:   opts,
		UseCache:  runFlags.useCache,
	}, nil
}

// loadSchema reads a JSON Schema object. Comments and trailing commas are
// accepted.
func loadSchema(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}

	var schema map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(data), &schema); err != nil {
		return nil, cli.NewConfigError("schema", fmt.Sprintf("%s is not a JSON object: %v", path, err))
	}
	return schema, nil
}

// streamRun consumes a streamed run. In JSON mode every partial output is
// written as one line; in text mode free-form text is echoed as it grows.
func streamRun(ctx context.Context, w io.Writer, svc *runs.Service, req runs.Request) (*runs.Outcome, error) {
	var (
		outcome runs.Outcome
		printed string
		last    *llm.StructuredOutput
	)
	lines := &cli.JSONFormatter{}
	for partial, err := range svc.Stream(ctx, req, &outcome) {
		if err != nil {
			if outcome.Run == nil {
				return nil, err
			}
			return &outcome, err
		}
		last = partial

		if jsonOutput() {
			if err := lines.FormatTo(w, partial); err != nil {
				return nil, err
			}
			continue
		}
		if text, ok := partial.Output.(string); ok && strings.HasPrefix(text, printed) {
			fmt.Fprint(w, text[len(printed):])
			printed = text
		}
	}

	if !jsonOutput() {
		switch {
		case printed != "":
			fmt.Fprintln(w)
		case last != nil && last.Output != nil:
			if err := printOutput(w, last.Output); err != nil {
				return nil, err
			}
		}
	}
	if outcome.Run == nil {
		return nil, errors.New("stream ended without a run")
	}
	return &outcome, nil
}

// printOutput writes text as-is and structured values as indented JSON.
func printOutput(w io.Writer, output any) error {
	if text, ok := output.(string); ok {
		_, err := fmt.Fprintln(w, text)
		return err
	}
	return (&cli.JSONFormatter{Indent: true}).FormatTo(w, output)
}

func printSummary(p *cli.Printer, r runReport) {
	if r.RunID == "" {
		return
	}

	tokens := ""
	if r.Usage.PromptTokens != nil && r.Usage.CompletionTokens != nil {
		tokens = fmt.Sprintf(", %d+%d tokens", *r.Usage.PromptTokens, *r.Usage.CompletionTokens)
	}
	switch {
	case r.Cached:
		p.Success("run %s served from cache (%s)", r.RunID, r.Provider)
	case r.Status == ports.RunStatusSucceeded:
		p.Success("run %s on %s%s, %s", r.RunID, r.Provider, tokens, fmtCost(r.CostUSD))
	default:
		p.Error("run %s failed after %d attempt(s), %s", r.RunID, len(r.Attempts), fmtCost(r.CostUSD))
	}
	if len(r.Attempts) > 1 {
		for _, at := range r.Attempts {
			outcome := "success"
			if at.ErrorCode != "" {
				outcome = string(at.ErrorCode)
			}
			p.Info("  %s #%d: %s (%s)", at.Provider, at.Number, outcome, at.Duration.Round(time.Millisecond))
		}
	}
}
