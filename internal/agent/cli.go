package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/user/agentgate/internal/types"
	"github.com/user/agentgate/pkg/oai"
)

// CLIConfig describes how to launch the runtime binary.
type CLIConfig struct {
	Bin      string
	Args     []string
	APIKey   string
	WorkDir  string
	MaxTurns int
	Timeout  time.Duration
}

// CLIInvoker launches the runtime as a subprocess in stream-JSON mode and
// adapts its stdout lines to events.
type CLIInvoker struct {
	cfg    CLIConfig
	logger *slog.Logger
}

// NewCLIInvoker builds a CLIInvoker. Timeout and MaxTurns get defaults
// when unset.
func NewCLIInvoker(cfg CLIConfig, logger *slog.Logger) *CLIInvoker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIInvoker{cfg: cfg, logger: logger}
}

// Invoke spawns the runtime for one invocation. The descriptor is written
// to the subprocess's stdin as JSON; events stream back as NDJSON lines.
// Missing auth context fails closed before anything is spawned.
func (c *CLIInvoker) Invoke(ctx context.Context, desc *Descriptor) (EventStream, error) {
	if c.cfg.APIKey == "" && os.Getenv("ANTHROPIC_API_KEY") == "" {
		return nil, types.NewError(types.KindAuthentication, "no runtime credentials configured")
	}

	payload, err := json.Marshal(desc)
	if err != nil {
		return nil, fmt.Errorf("marshal invocation: %w", err)
	}

	args := append([]string{}, c.cfg.Args...)
	args = append(args,
		"--output-format", "stream-json",
		"--max-turns", strconv.Itoa(c.cfg.MaxTurns),
	)
	if desc.Model != "" {
		args = append(args, "--model", desc.Model)
	}
	if !desc.ToolsEnabled {
		args = append(args, "--no-tools")
	}

	// The timeout covers the whole invocation, not individual events.
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)

	cmd := exec.CommandContext(ctx, c.cfg.Bin, args...)
	cmd.Dir = c.cfg.WorkDir
	cmd.Stdin = bytes.NewReader(payload)
	if c.cfg.APIKey != "" {
		cmd.Env = append(os.Environ(), "ANTHROPIC_API_KEY="+c.cfg.APIKey)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("runtime stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, types.WrapError(types.KindRuntimeUnavailable, err, "start runtime %s", c.cfg.Bin)
	}
	c.logger.Debug("runtime started", "bin", c.cfg.Bin, "model", desc.Model, "session", string(desc.SessionKey))

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	return &cliStream{cmd: cmd, runCtx: ctx, cancel: cancel, scanner: scanner, logger: c.logger}, nil
}

// cliStream adapts the subprocess's NDJSON stdout to the EventStream
// contract. Not safe for concurrent use; one goroutine drives a stream.
type cliStream struct {
	cmd     *exec.Cmd
	runCtx  context.Context
	cancel  context.CancelFunc
	scanner *bufio.Scanner
	logger  *slog.Logger

	pending []*Event
	done    bool

	closeOnce sync.Once
	closeErr  error
}

// rawEvent mirrors the runtime's stream-JSON line shape.
type rawEvent struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
	Model   string `json:"model"`
	Message struct {
		Content []rawBlock `json:"content"`
	} `json:"message"`
	Usage *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	IsError      bool    `json:"is_error"`
	ErrorMessage string  `json:"error_message"`
}

type rawBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

func (s *cliStream) Next(ctx context.Context) (*Event, error) {
	if len(s.pending) > 0 {
		ev := s.pending[0]
		s.pending = s.pending[1:]
		return ev, nil
	}
	if s.done {
		return nil, io.EOF
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, s.ctxError(err)
		}

		if !s.scanner.Scan() {
			s.done = true
			if ctxErr := s.runCtx.Err(); ctxErr != nil {
				return nil, s.ctxError(ctxErr)
			}
			if err := s.scanner.Err(); err != nil {
				return nil, types.WrapError(types.KindRuntimeProtocol, err, "read runtime output")
			}
			// Clean EOF. The assembler decides whether a terminal event
			// was actually seen.
			return nil, io.EOF
		}

		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		events, err := parseLine(line)
		if err != nil {
			s.done = true
			return nil, err
		}
		if len(events) == 0 {
			continue
		}

		ev := events[0]
		s.pending = append(s.pending, events[1:]...)
		if ev.Terminal() && len(s.pending) == 0 {
			s.done = true
		}
		return ev, nil
	}
}

// ctxError maps context termination to the taxonomy: deadline means the
// runtime ran too long, plain cancellation means the caller went away.
func (s *cliStream) ctxError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return types.WrapError(types.KindRuntimeTimeout, err, "runtime exceeded deadline")
	}
	return err
}

// parseLine converts one NDJSON line to events. An assistant message with
// several content blocks yields several events in block order.
func parseLine(line []byte) ([]*Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, types.WrapError(types.KindRuntimeProtocol, err, "malformed runtime event")
	}

	switch raw.Type {
	case "system":
		if raw.Subtype == "init" {
			return []*Event{{Type: EventInit, Model: raw.Model}}, nil
		}
		return nil, nil

	case "assistant":
		var events []*Event
		for _, block := range raw.Message.Content {
			switch block.Type {
			case "text":
				if block.Text != "" {
					events = append(events, &Event{Type: EventDelta, Text: block.Text})
				}
			case "tool_use":
				events = append(events, &Event{Type: EventToolCall, ToolName: block.Name, ToolArgs: block.Input})
			}
		}
		return events, nil

	case "result":
		if raw.IsError || raw.Subtype == "error_during_execution" {
			msg := raw.ErrorMessage
			if msg == "" {
				msg = "runtime reported an execution error"
			}
			return []*Event{{Type: EventError, Message: msg}}, nil
		}
		ev := &Event{Type: EventResult, CostUSD: raw.TotalCostUSD}
		if raw.Usage != nil {
			ev.Usage = &oai.Usage{
				PromptTokens:     raw.Usage.InputTokens,
				CompletionTokens: raw.Usage.OutputTokens,
				TotalTokens:      raw.Usage.InputTokens + raw.Usage.OutputTokens,
			}
		}
		return []*Event{ev}, nil

	default:
		// Unknown event types are skipped rather than failed; the runtime
		// may add informational lines.
		return nil, nil
	}
}

// Close kills the subprocess if it is still running and reaps it.
func (s *cliStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		err := s.cmd.Wait()
		// A kill triggered by cancel is the expected path when the
		// consumer abandons the stream early.
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			s.closeErr = err
		}
	})
	return s.closeErr
}
