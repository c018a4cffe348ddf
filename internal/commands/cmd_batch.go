package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hay-kot/criterio"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/hay-kot/chatwidget/internal/core/locale"
	"github.com/hay-kot/chatwidget/internal/engine"
	"github.com/hay-kot/chatwidget/internal/escalation"
	"github.com/hay-kot/chatwidget/pkg/randid"
)

const (
	// StatusCompleted indicates every message in the conversation got a reply.
	StatusCompleted = "completed"
	// StatusFailed indicates the conversation stopped early.
	StatusFailed = "failed"
	// StatusSkipped indicates the conversation was not attempted due to failure threshold.
	StatusSkipped = "skipped"

	// maxFailures is the number of failures before stopping batch processing.
	maxFailures = 3
)

// BatchInput is the JSON input schema for scripted conversations.
type BatchInput struct {
	Conversations []BatchConversation `json:"conversations"`
}

// Validate checks the batch input for errors using criterio.
func (b BatchInput) Validate() error {
	if len(b.Conversations) == 0 {
		return criterio.NewFieldErrors("conversations", fmt.Errorf("array is empty"))
	}

	var errs criterio.FieldErrorsBuilder
	seenNames := make(map[string]bool)
	catalog := locale.Default()

	for i, conv := range b.Conversations {
		field := fmt.Sprintf("conversations[%d]", i)

		name := strings.TrimSpace(conv.Name)
		if name == "" {
			errs = errs.Append(field+".name", fmt.Errorf("is required"))
			continue
		}
		if seenNames[name] {
			errs = errs.Append(field+".name", fmt.Errorf("duplicate name %q", name))
			continue
		}
		seenNames[name] = true

		if conv.Language != "" {
			if _, ok := catalog.Lookup(conv.Language); !ok {
				errs = errs.Append(field+".language", fmt.Errorf("unsupported language %q", conv.Language))
			}
		}

		if len(conv.Messages) == 0 {
			errs = errs.Append(field+".messages", fmt.Errorf("array is empty"))
			continue
		}
		for j, msg := range conv.Messages {
			if strings.TrimSpace(msg) == "" {
				errs = errs.Append(fmt.Sprintf("%s.messages[%d]", field, j), fmt.Errorf("is blank"))
			}
		}
	}

	return errs.ToError()
}

// BatchConversation is one scripted conversation.
type BatchConversation struct {
	Name     string   `json:"name"`
	Language string   `json:"language,omitempty"`
	Messages []string `json:"messages"`
}

// BatchTurn is one message of a transcript.
type BatchTurn struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// BatchResult is the output for a single conversation.
type BatchResult struct {
	Name       string      `json:"name"`
	SessionID  string      `json:"session_id,omitempty"`
	Status     string      `json:"status"`
	Transcript []BatchTurn `json:"transcript,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// BatchOutput is the JSON output schema.
type BatchOutput struct {
	BatchID string        `json:"batch_id"`
	LogFile string        `json:"log_file"`
	Results []BatchResult `json:"results"`
}

// BatchErrorOutput is the JSON output for fatal errors.
type BatchErrorOutput struct {
	Error string `json:"error"`
}

type BatchCmd struct {
	flags   *Flags
	file    string
	timeout time.Duration

	stdin io.Reader
	out   io.Writer
}

func NewBatchCmd(flags *Flags) *BatchCmd {
	return &BatchCmd{flags: flags, stdin: os.Stdin}
}

func (cmd *BatchCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "batch",
		Usage: "Run scripted conversations from JSON input",
		UsageText: `chatwidget batch [options]

Read from stdin:
  echo '{"conversations":[{"name":"pricing","messages":["Quais são os preços?"]}]}' | chatwidget batch

Read from file:
  chatwidget batch -f conversations.json`,
		Description: `Runs each conversation against the configured responder and prints the
transcripts.

Conversations run one after another, each in a fresh session that is not
persisted. Messages are sent in order and every message waits for its reply,
so fallback replies show up exactly as a user would see them.

Processing stops after 3 failures. Conversations not attempted are marked as skipped.

Input JSON schema:
  {
    "conversations": [
      {
        "name": "pricing",
        "language": "pt",
        "messages": ["Olá", "Quais são os preços?"]
      }
    ]
  }

Output is JSON with a batch ID, log file path, and a result per conversation.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "file",
				Aliases:     []string{"f"},
				Usage:       "path to JSON file (reads from stdin if not provided)",
				Destination: &cmd.file,
			},
			&cli.DurationFlag{
				Name:        "timeout",
				Usage:       "time allowed for each conversation",
				Value:       2 * time.Minute,
				Destination: &cmd.timeout,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *BatchCmd) run(ctx context.Context, c *cli.Command) error {
	cmd.out = c.Root().Writer
	batchID := randid.Generate(6)

	logger, logFile, err := cmd.setupLogger(batchID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "batch %s: failed to setup logger: %v\n", batchID, err)
		return cmd.writeError(fmt.Errorf("setup logger: %w", err))
	}
	defer func() {
		if err := logFile.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to close log file: %v\n", err)
		}
	}()

	logger.Info().Str("batch_id", batchID).Msg("starting batch processing")

	input, err := cmd.readInput()
	if err != nil {
		logger.Error().Err(err).Msg("failed to read input")
		return cmd.writeError(fmt.Errorf("read input: %w", err))
	}

	if err := input.Validate(); err != nil {
		logger.Error().Err(err).Msg("input validation failed")
		return cmd.writeError(fmt.Errorf("invalid input: %w", err))
	}

	w, err := newWidget(ctx, cmd.flags, escalation.NopOpener{})
	if err != nil {
		return cmd.writeError(err)
	}

	output := BatchOutput{
		BatchID: batchID,
		LogFile: logFile.Name(),
		Results: make([]BatchResult, 0, len(input.Conversations)),
	}

	failures := 0
	for i, conv := range input.Conversations {
		if failures >= maxFailures {
			logger.Warn().Str("name", conv.Name).Msg("skipping conversation due to failure threshold")
			for j := i; j < len(input.Conversations); j++ {
				output.Results = append(output.Results, BatchResult{
					Name:   input.Conversations[j].Name,
					Status: StatusSkipped,
				})
			}
			break
		}

		logger.Info().Str("name", conv.Name).Int("index", i).Msg("running conversation")

		result := cmd.runConversation(ctx, w, conv)
		output.Results = append(output.Results, result)

		if result.Status == StatusFailed {
			failures++
			logger.Error().Str("name", conv.Name).Str("error", result.Error).Msg("conversation failed")
		} else {
			logger.Info().Str("name", conv.Name).Str("session_id", result.SessionID).Msg("conversation completed")
		}
	}

	logger.Info().
		Int("total", len(input.Conversations)).
		Int("completed", countByStatus(output.Results, StatusCompleted)).
		Int("failed", countByStatus(output.Results, StatusFailed)).
		Int("skipped", countByStatus(output.Results, StatusSkipped)).
		Msg("batch processing complete")

	return cmd.writeOutput(output)
}

func (cmd *BatchCmd) setupLogger(batchID string) (zerolog.Logger, *os.File, error) {
	logsDir := cmd.flags.Config.LogsDir()
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return zerolog.Logger{}, nil, fmt.Errorf("create logs dir: %w", err)
	}

	logPath := filepath.Join(logsDir, fmt.Sprintf("batch-%s.log", batchID))
	file, err := os.Create(logPath)
	if err != nil {
		return zerolog.Logger{}, nil, fmt.Errorf("create log file: %w", err)
	}

	logger := zerolog.New(file).With().Timestamp().Logger()
	return logger, file, nil
}

func (cmd *BatchCmd) readInput() (BatchInput, error) {
	var reader io.Reader

	if cmd.file != "" {
		f, err := os.Open(cmd.file)
		if err != nil {
			return BatchInput{}, fmt.Errorf("open file: %w", err)
		}
		defer func() { _ = f.Close() }()
		reader = f
	} else {
		if f, ok := cmd.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			return BatchInput{}, fmt.Errorf("no input provided (stdin is a terminal); use -f flag or pipe JSON input")
		}
		reader = cmd.stdin
	}

	var input BatchInput
	if err := json.NewDecoder(reader).Decode(&input); err != nil {
		return BatchInput{}, fmt.Errorf("decode JSON: %w", err)
	}

	return input, nil
}

func (cmd *BatchCmd) runConversation(ctx context.Context, w *widget, conv BatchConversation) BatchResult {
	ctx, cancel := context.WithTimeout(ctx, cmd.timeout)
	defer cancel()

	eng := w.engine(nil, conv.Language)
	defer eng.Shutdown()

	result := BatchResult{Name: conv.Name}

	if err := eng.Open(ctx, engine.Activation{Language: locale.Normalize(conv.Language)}); err != nil {
		result.Status = StatusFailed
		result.Error = fmt.Errorf("open widget: %w", err).Error()
		return result
	}
	result.SessionID = eng.Session().ID

	var err error
	for _, msg := range conv.Messages {
		if _, err = exchange(ctx, eng, msg); err != nil {
			break
		}
	}

	for _, m := range eng.Messages() {
		result.Transcript = append(result.Transcript, BatchTurn{Sender: string(m.Sender), Text: m.Text})
	}

	if err != nil {
		result.Status = StatusFailed
		result.Error = err.Error()
		return result
	}

	result.Status = StatusCompleted
	return result
}

func (cmd *BatchCmd) writeOutput(output BatchOutput) error {
	enc := json.NewEncoder(cmd.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(output); err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to write JSON output: %v\n", err)
		fmt.Fprintf(os.Stderr, "batch_id: %s\n", output.BatchID)
		fmt.Fprintf(os.Stderr, "log_file: %s\n", output.LogFile)
		fmt.Fprintf(os.Stderr, "results: %d completed, %d failed, %d skipped\n",
			countByStatus(output.Results, StatusCompleted),
			countByStatus(output.Results, StatusFailed),
			countByStatus(output.Results, StatusSkipped))
		return err
	}
	return nil
}

func (cmd *BatchCmd) writeError(err error) error {
	out := cmd.out
	if out == nil {
		out = os.Stdout
	}
	output := BatchErrorOutput{Error: err.Error()}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(output); encErr != nil {
		fmt.Fprintf(os.Stderr, "error: %s (failed to write JSON: %v)\n", err, encErr)
	}
	return err
}

func countByStatus(results []BatchResult, status string) int {
	count := 0
	for _, r := range results {
		if r.Status == status {
			count++
		}
	}
	return count
}
