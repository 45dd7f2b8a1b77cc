// Package bridge invokes named operations inside the remote page and
// retrieves their results. The underlying channel only supports one-shot
// expression evaluation, so each command evaluates an expression that
// registers a self-unregistering reply listener keyed by a correlation id,
// dispatches the command event into the page, and returns a promise the
// evaluation awaits. A correlation map with per-entry deadlines and a
// background sweep guarantees every caller receives a terminal result within
// the command ceiling.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/searchlet/chatbridge/internal/config"
	"github.com/searchlet/chatbridge/internal/core"
	"github.com/searchlet/chatbridge/internal/logging"
)

// Command types understood by the in-page script.
const (
	CommandListChats = "LIST_CHATS"
	CommandSyncChats = "SYNC_CHATS"
)

// Envelope is the reply shape delivered by the in-page listener.
type Envelope struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type commandResult struct {
	envelope *Envelope
	err      error
}

type pendingCommand struct {
	id       string
	deadline time.Time
	resultCh chan commandResult
	once     sync.Once
}

func (p *pendingCommand) resolve(res commandResult) {
	p.once.Do(func() {
		p.resultCh <- res
	})
}

// StatusSource reports whether a process is available for commands.
type StatusSource interface {
	Status() core.ProcessState
}

// Bridge executes commands against the in-page script.
type Bridge struct {
	evaluator core.PageEvaluator
	status    StatusSource
	logger    *logging.Logger

	commandTimeout time.Duration
	sweepInterval  time.Duration

	mu        sync.Mutex
	pending   map[string]*pendingCommand
	sweepStop chan struct{}

	newID func() string
}

// New creates a command bridge.
func New(cfg config.BridgeConfig, evaluator core.PageEvaluator, status StatusSource, logger *logging.Logger) *Bridge {
	return &Bridge{
		evaluator:      evaluator,
		status:         status,
		logger:         logger.WithComponent("bridge"),
		commandTimeout: cfg.CommandTimeout,
		sweepInterval:  cfg.SweepInterval,
		pending:        make(map[string]*pendingCommand),
		newID:          uuid.NewString,
	}
}

// Start launches the deadline sweep.
func (b *Bridge) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sweepStop != nil {
		return
	}
	b.sweepStop = make(chan struct{})
	go b.sweep(b.sweepStop)
}

// Stop halts the sweep and times out every outstanding command.
func (b *Bridge) Stop() {
	b.mu.Lock()
	if b.sweepStop != nil {
		close(b.sweepStop)
		b.sweepStop = nil
	}
	stale := make([]*pendingCommand, 0, len(b.pending))
	for id, p := range b.pending {
		stale = append(stale, p)
		delete(b.pending, id)
	}
	b.mu.Unlock()

	for _, p := range stale {
		p.resolve(commandResult{err: core.ErrTimeout("bridge stopped with command in flight")})
	}
}

func (b *Bridge) sweep(stop <-chan struct{}) {
	ticker := time.NewTicker(b.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			b.expireBefore(now)
		}
	}
}

func (b *Bridge) expireBefore(now time.Time) {
	b.mu.Lock()
	var expired []*pendingCommand
	for id, p := range b.pending {
		if now.After(p.deadline) {
			expired = append(expired, p)
			delete(b.pending, id)
		}
	}
	b.mu.Unlock()

	for _, p := range expired {
		b.logger.Warn("command timed out", "command_id", p.id)
		p.resolve(commandResult{err: core.ErrTimeout("no reply from page within command ceiling").
			WithDetail("command_id", p.id)})
	}
}

// ExecuteCommand dispatches a typed command into the page and awaits the
// correlated reply or a timeout. Callers always receive a terminal result
// within the command ceiling; there is no unresolved hang.
func (b *Bridge) ExecuteCommand(ctx context.Context, commandType string, payload interface{}) (*Envelope, error) {
	if !b.status.Status().Running {
		return nil, core.ErrState(core.CodeNotRunning, "no browser process is running")
	}

	id := b.newID()
	expr, err := buildCommandExpression(commandType, id, payload)
	if err != nil {
		return nil, core.ErrValidation(core.CodeCommandFailed, "failed to encode command payload").WithCause(err)
	}

	entry := &pendingCommand{
		id:       id,
		deadline: time.Now().Add(b.commandTimeout),
		resultCh: make(chan commandResult, 1),
	}
	b.mu.Lock()
	b.pending[id] = entry
	b.mu.Unlock()

	b.logger.Debug("command dispatched", "type", commandType, "command_id", id)

	evalCtx, cancel := context.WithTimeout(ctx, b.commandTimeout)
	defer cancel()

	go func() {
		raw, evalErr := b.evaluator.Evaluate(evalCtx, expr)
		b.deliver(id, raw, evalErr)
	}()

	select {
	case res := <-entry.resultCh:
		return res.envelope, res.err
	case <-ctx.Done():
		b.forget(id)
		return nil, core.ErrTimeout("command abandoned by caller").WithCause(ctx.Err())
	}
}

// deliver resolves the pending entry for id, if the sweep has not already
// expired it. Late replies for expired entries are logged and dropped.
func (b *Bridge) deliver(id string, raw interface{}, evalErr error) {
	b.mu.Lock()
	entry, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	b.mu.Unlock()

	if !ok {
		b.logger.Debug("dropping late command reply", "command_id", id)
		return
	}

	if evalErr != nil {
		if errors.Is(evalErr, context.DeadlineExceeded) || errors.Is(evalErr, context.Canceled) {
			evalErr = core.ErrTimeout("no reply from page within command ceiling").WithCause(evalErr)
		}
		entry.resolve(commandResult{err: evalErr})
		return
	}

	env, err := parseEnvelope(raw, id)
	if err != nil {
		entry.resolve(commandResult{err: err})
		return
	}
	entry.resolve(commandResult{envelope: env})
}

func (b *Bridge) forget(id string) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

// PendingCount returns the number of commands awaiting replies.
func (b *Bridge) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// buildCommandExpression produces the page-side expression: register a
// one-shot listener for the uniquely named reply event, dispatch the command
// event, and hand back a promise the evaluation awaits.
func buildCommandExpression(commandType, id string, payload interface{}) (string, error) {
	payloadJSON := []byte("null")
	if payload != nil {
		var err error
		payloadJSON, err = json.Marshal(payload)
		if err != nil {
			return "", err
		}
	}
	detail, err := json.Marshal(map[string]interface{}{
		"type":    commandType,
		"id":      id,
		"payload": json.RawMessage(payloadJSON),
	})
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(`(() => {
	const detail = %s;
	return new Promise((resolve) => {
		const replyEvent = 'chatbridge:reply:' + detail.id;
		const listener = (event) => {
			window.removeEventListener(replyEvent, listener);
			resolve(JSON.stringify(event.detail));
		};
		window.addEventListener(replyEvent, listener);
		window.dispatchEvent(new CustomEvent('chatbridge:command', { detail }));
	});
})()`, detail), nil
}

func parseEnvelope(raw interface{}, id string) (*Envelope, error) {
	text, ok := raw.(string)
	if !ok {
		return nil, core.ErrState(core.CodeCommandFailed, "page returned a non-string reply").
			WithDetail("command_id", id)
	}
	var env Envelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return nil, core.ErrState(core.CodeCommandFailed, "malformed reply envelope").WithCause(err)
	}
	if env.ID == "" {
		env.ID = id
	}
	return &env, nil
}
