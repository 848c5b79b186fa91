// ABOUTME: Service orchestrates a chat turn from prompt to rendered answer
// ABOUTME: Appends the prompt, calls the agent, reduces the stream, and rolls back on failure

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/2389/cortex-chat/internal/agent"
	"github.com/2389/cortex-chat/internal/conversation"
	"github.com/2389/cortex-chat/internal/metrics"
	"github.com/2389/cortex-chat/internal/stream"
	"github.com/2389/cortex-chat/internal/warehouse"
)

// ErrEmptyPrompt is returned for prompts that are blank after trimming.
var ErrEmptyPrompt = errors.New("prompt is empty")

// ErrWarehouseDisabled is returned by RunSQL when no warehouse is configured.
var ErrWarehouseDisabled = errors.New("warehouse is not configured")

// outcomeRequestFailed labels turns that never reached the stream.
const outcomeRequestFailed = "request_failed"

// Runner starts an agent run. *agent.Client implements it.
type Runner interface {
	Run(ctx context.Context, req agent.RunRequest) (*agent.Stream, error)
}

// TurnResult describes a finished turn.
type TurnResult struct {
	// Streamed is false when the request failed before any event arrived.
	Streamed  bool
	RequestID string
	Outcome   stream.Outcome
	// SQL is the statement generated by the analyst tool, if any.
	SQL string
}

// Status names how the turn ended, including turns that never streamed.
func (r TurnResult) Status() string {
	if !r.Streamed {
		return outcomeRequestFailed
	}
	return r.Outcome.String()
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	Agent     Runner
	Request   agent.RequestConfig
	Warehouse warehouse.Executor
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Service runs turns. It is safe for concurrent use across conversations.
type Service struct {
	agent     Runner
	request   agent.RequestConfig
	warehouse warehouse.Executor
	reducer   *stream.Reducer
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewService creates a Service.
func NewService(opts ServiceOptions) (*Service, error) {
	if opts.Agent == nil {
		return nil, errors.New("chat: agent runner is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		agent:     opts.Agent,
		request:   opts.Request,
		warehouse: opts.Warehouse,
		reducer:   stream.NewReducer(logger, opts.Metrics),
		metrics:   opts.Metrics,
		logger:    logger.With("component", "chat"),
	}, nil
}

// HasWarehouse reports whether RunSQL can execute statements.
func (s *Service) HasWarehouse() bool {
	return s.warehouse != nil
}

// Turn is a reserved turn slot for one conversation. Exactly one of Run or
// Cancel must be called.
type Turn struct {
	svc     *Service
	conv    *conversation.Store
	prompt  string
	release func()
}

// Start validates prompt and reserves conv for a new turn. It returns
// ErrEmptyPrompt for a blank prompt and conversation.ErrTurnInProgress if
// conv already has a turn in flight.
func (s *Service) Start(conv *conversation.Store, prompt string) (*Turn, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	release, err := conv.BeginTurn()
	if err != nil {
		return nil, err
	}
	return &Turn{svc: s, conv: conv, prompt: prompt, release: release}, nil
}

// Prompt returns the trimmed prompt.
func (t *Turn) Prompt() string {
	return t.prompt
}

// Cancel releases the slot without running the turn.
func (t *Turn) Cancel() {
	t.release()
}

// Submit starts and runs one turn for prompt against conv, rendering into r.
func (s *Service) Submit(ctx context.Context, conv *conversation.Store, prompt string, r stream.Renderer) (TurnResult, error) {
	t, err := s.Start(conv, prompt)
	if err != nil {
		return TurnResult{}, err
	}
	return t.Run(ctx, r)
}

// Run sends the turn and renders the answer into r. It returns the transport
// error if the request never started streaming, and otherwise the reducer's
// outcome and error.
func (t *Turn) Run(ctx context.Context, r stream.Renderer) (TurnResult, error) {
	defer t.release()
	s, conv, prompt := t.svc, t.conv, t.prompt

	logger := s.logger.With("conversation_id", conv.ID())
	persistCtx := context.WithoutCancel(ctx)

	conv.Append(persistCtx, agent.NewUserMessage(prompt))
	req := agent.BuildRunRequest(conv.Messages(), s.request)

	start := time.Now()
	st, err := s.agent.Run(ctx, req)
	s.metrics.AgentRequest(time.Since(start), err)
	if err != nil {
		conv.Pop(persistCtx)
		s.metrics.Turn(outcomeRequestFailed)
		logger.Error("agent request failed", "error", err)
		r.ShowError("Error: " + requestFailureMessage(err))
		return TurnResult{}, fmt.Errorf("calling agent: %w", err)
	}
	defer st.Close()

	logger = logger.With("request_id", st.RequestID)
	logger.Info("agent stream opened", "messages", len(req.Messages))

	outcome, runErr := s.reducer.Run(ctx, st, conv, r)
	s.metrics.Turn(outcome.String())
	result := TurnResult{Streamed: true, RequestID: st.RequestID, Outcome: outcome}

	switch outcome {
	case stream.OutcomeCompleted:
		if last, ok := conv.Last(); ok {
			result.SQL = ExtractSQL(last)
		}
		logger.Info("turn completed", "has_sql", result.SQL != "")
	case stream.OutcomeFailed:
		logger.Warn("turn failed", "error", runErr)
	case stream.OutcomeEndedWithoutResponse:
		conv.Pop(persistCtx)
		r.ShowWarning("The response ended before it was complete. Please try again.")
	case stream.OutcomeAborted:
		conv.Pop(persistCtx)
		logger.Warn("turn aborted", "error", runErr)
		msg := "Error: the response stream was interrupted"
		if runErr != nil {
			msg += ": " + runErr.Error()
		}
		r.ShowError(msg)
	}

	return result, runErr
}

// RunSQL executes a statement on the configured warehouse.
func (s *Service) RunSQL(ctx context.Context, query string) (*warehouse.Result, error) {
	if s.warehouse == nil {
		return nil, ErrWarehouseDisabled
	}
	return s.warehouse.Query(ctx, query)
}

func requestFailureMessage(err error) string {
	var statusErr *agent.StatusError
	if errors.As(err, &statusErr) {
		msg := fmt.Sprintf("agent request failed with HTTP %d", statusErr.StatusCode)
		if body := strings.TrimSpace(statusErr.Body); body != "" {
			msg += ": " + body
		}
		return msg
	}
	return fmt.Sprintf("agent request failed: %v", err)
}
