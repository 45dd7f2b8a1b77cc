// Package link classifies whether the remote messaging page shows an
// authenticated view. The only channel into the page is one-shot expression
// evaluation, so the probe polls; a single false-to-true transition is
// reported and then the poller stops itself, since the page never un-links
// within a process lifetime.
package link

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/searchlet/chatbridge/internal/config"
	"github.com/searchlet/chatbridge/internal/core"
	"github.com/searchlet/chatbridge/internal/events"
	"github.com/searchlet/chatbridge/internal/logging"
)

// probeExpression inspects known DOM markers without mutating the page.
// The side panel marks the authenticated view; the QR canvas and landing
// wrapper mark the pre-auth view.
const probeExpression = `(() => {
	const side = document.querySelector('#side')
		|| document.querySelector('[data-testid="chat-list"]')
		|| document.querySelector('header [data-testid="menu-bar-menu"]');
	const landing = document.querySelector('canvas[aria-label]')
		|| document.querySelector('[data-ref]')
		|| document.querySelector('.landing-wrapper');
	const labelEl = document.querySelector('header span[title]');
	return JSON.stringify({
		linked: !!side && !landing,
		profile_label: labelEl ? labelEl.getAttribute('title') : ''
	});
})()`

// StateSink receives the link transition. The process controller implements
// it. SetLinked reports whether the call changed the link state.
type StateSink interface {
	SetLinked(linked bool, profileLabel string) bool
	Status() core.ProcessState
}

// Probe polls the page for login state.
type Probe struct {
	evaluator core.PageEvaluator
	sink      StateSink
	bus       *events.EventBus
	logger    *logging.Logger

	startupDelay time.Duration
	interval     time.Duration
	evalTimeout  time.Duration

	mu      sync.Mutex
	cached  core.LinkStatus
	stopCh  chan struct{}
	running bool

	now func() time.Time
}

// NewProbe creates a probe over the given evaluation channel.
func NewProbe(cfg config.ProbeConfig, evaluator core.PageEvaluator, sink StateSink, bus *events.EventBus, logger *logging.Logger) *Probe {
	return &Probe{
		evaluator:    evaluator,
		sink:         sink,
		bus:          bus,
		logger:       logger.WithComponent("link"),
		startupDelay: cfg.StartupDelay,
		interval:     cfg.Interval,
		evalTimeout:  cfg.EvalTimeout,
		now:          time.Now,
	}
}

// CheckOnce evaluates the marker expression once. A connection failure is
// transient (the process may still be starting), so it returns the cached
// last-known status instead of failing.
func (p *Probe) CheckOnce(ctx context.Context) core.LinkStatus {
	evalCtx, cancel := context.WithTimeout(ctx, p.evalTimeout)
	defer cancel()

	raw, err := p.evaluator.Evaluate(evalCtx, probeExpression)
	if err != nil {
		p.mu.Lock()
		cached := p.cached
		p.mu.Unlock()
		p.logger.Debug("probe unreachable, using cached link state",
			"linked", cached.Linked,
			"error", err.Error(),
		)
		return cached
	}

	status := parseProbeResult(raw, p.now())

	p.mu.Lock()
	p.cached = status
	p.mu.Unlock()
	return status
}

func parseProbeResult(raw interface{}, observedAt time.Time) core.LinkStatus {
	status := core.LinkStatus{ObservedAt: observedAt}
	text, ok := raw.(string)
	if !ok {
		return status
	}
	var parsed struct {
		Linked       bool   `json:"linked"`
		ProfileLabel string `json:"profile_label"`
	}
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return status
	}
	status.Linked = parsed.Linked
	status.ProfileLabel = parsed.ProfileLabel
	return status
}

// Start begins polling after the startup delay. The first false-to-true
// transition updates the controller, emits a one-shot link_established event,
// and stops the poller.
func (p *Probe) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("probe already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	stop := p.stopCh
	p.mu.Unlock()

	go p.poll(ctx, stop)
	return nil
}

func (p *Probe) poll(ctx context.Context, stop <-chan struct{}) {
	// The page needs warm-up time before markers mean anything.
	select {
	case <-time.After(p.startupDelay):
	case <-stop:
		return
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.tick(ctx) {
				return
			}
		}
	}
}

// tick runs one probe cycle. Returns true once linked, which ends polling.
func (p *Probe) tick(ctx context.Context) bool {
	status := p.CheckOnce(ctx)
	if !status.Linked {
		return false
	}

	state := p.sink.Status()
	if !state.Running {
		return false
	}

	// The page webhook races this poll to report the same transition; the
	// sink arbitrates, and only the caller that flipped the state publishes
	// the one-shot event. Either way the poller is done.
	if p.sink.SetLinked(true, status.ProfileLabel) {
		p.logger.Info("link established", "owner_id", state.OwnerID)
		p.bus.PublishPriority(events.NewLinkEstablishedEvent(state.OwnerID, status.ProfileLabel))
	}

	p.mu.Lock()
	p.running = false
	p.stopCh = nil
	p.mu.Unlock()
	return true
}

// Stop halts polling without clearing the cached state.
func (p *Probe) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopCh != nil {
		close(p.stopCh)
		p.stopCh = nil
	}
	p.running = false
}

// Reset stops polling and clears the cached status. Called on process exit so
// a new process starts from unknown.
func (p *Probe) Reset() {
	p.Stop()
	p.mu.Lock()
	p.cached = core.LinkStatus{}
	p.mu.Unlock()
}

// Cached returns the last-known link status.
func (p *Probe) Cached() core.LinkStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cached
}
