package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"gelap-studio/internal/codec"
	"gelap-studio/internal/gemini"
	"gelap-studio/internal/history"
	"gelap-studio/internal/prompt"
	"gelap-studio/internal/usage"
)

type State string

const (
	StateIdle          State = "idle"
	StateRunning       State = "running"
	StateCompleted     State = "completed"
	StateStoppedByUser State = "stopped"
	StateFailed        State = "failed"
)

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateStoppedByUser || s == StateFailed
}

var (
	ErrAlreadyRun = errors.New("batch runner already used")
	ErrEmptyPlan  = errors.New("batch plan has no iterations")
)

type Generator interface {
	GenerateImage(ctx context.Context, in gemini.ImageRequest) (string, error)
}

// Iteration is handed to Plan.Build. Variant is nil when the plan has no
// rotation. Anchor is the first result of the run and is zero for
// iteration 0.
type Iteration struct {
	Index   int
	Total   int
	Variant *prompt.Variant
	Anchor  codec.Image
}

// Submission is what one iteration sends and how it shows up in history.
type Submission struct {
	Built   prompt.Built
	Display string
	Label   string
}

// Plan is captured when a run starts. Base and Display are used when Build
// is nil: each iteration sends Base plus the rotated variant's clause.
type Plan struct {
	Count      int
	Base       prompt.Built
	Display    string
	Build      func(Iteration) (Submission, error)
	Variants   []prompt.Variant
	AnchorLock bool
	Cooldown   time.Duration
	Credential string
}

type Result struct {
	RunID string
	State State
	Items []history.Item
	Err   error
}

type Options struct {
	Generator Generator
	Tracker   *usage.Tracker
	History   *history.List
	Logger    *slog.Logger
	OnEvent   func(Event)
	// Sink runs after each result is recorded. An error fails the run.
	Sink func(ctx context.Context, item history.Item, it Iteration) error
	// Tick is the cooldown poll interval.
	Tick time.Duration
}

// Runner executes one plan. A runner is one-shot; start a new one for the
// next batch.
type Runner struct {
	opts  Options
	id    string
	mu    sync.Mutex
	state State
}

func New(opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	if opts.History == nil {
		opts.History = history.New(history.Options{})
	}
	return &Runner{opts: opts, id: uuid.NewString(), state: StateIdle}
}

func (r *Runner) ID() string {
	return r.id
}

func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Run executes the plan sequentially. Remote calls run under ctx; stop is
// polled before each iteration and on every cooldown tick, so a stop never
// interrupts a call already in flight.
func (r *Runner) Run(ctx context.Context, plan Plan, stop *StopToken) Result {
	r.mu.Lock()
	if r.state != StateIdle {
		r.mu.Unlock()
		return Result{RunID: r.id, State: StateFailed, Err: ErrAlreadyRun}
	}
	r.state = StateRunning
	r.mu.Unlock()

	if stop == nil {
		stop = NewStopToken()
	}
	plan.Variants = append([]prompt.Variant(nil), plan.Variants...)

	res := Result{RunID: r.id}
	finish := func(state State, err error) Result {
		res.State = state
		res.Err = err
		r.setState(state)
		r.emit(Event{Kind: EventFinished, State: state, Err: err, Total: plan.Count, Index: len(res.Items)})
		log := r.opts.Logger.With("run_id", r.id, "state", state, "completed", len(res.Items), "total", plan.Count)
		if err != nil {
			log.Warn("batch finished", "err", err)
		} else {
			log.Info("batch finished")
		}
		return res
	}

	if plan.Count <= 0 {
		return finish(StateFailed, ErrEmptyPlan)
	}
	if r.opts.Generator == nil {
		return finish(StateFailed, errors.New("batch runner has no generator"))
	}

	r.emit(Event{Kind: EventStarted, Total: plan.Count})

	var anchor codec.Image
	for i := 0; i < plan.Count; i++ {
		if r.opts.Tracker != nil {
			if err := r.opts.Tracker.Require(ctx); err != nil {
				return finish(StateFailed, err)
			}
		}
		if stop.Stopped() {
			return finish(StateStoppedByUser, nil)
		}

		it := Iteration{Index: i, Total: plan.Count}
		if len(plan.Variants) > 0 {
			v := plan.Variants[i%len(plan.Variants)]
			it.Variant = &v
		}
		if plan.AnchorLock && i > 0 {
			it.Anchor = anchor
		}

		sub, err := plan.submission(it)
		if err != nil {
			return finish(StateFailed, err)
		}
		if !it.Anchor.IsZero() {
			sub.Built = sub.Built.WithAnchor(it.Anchor)
		}

		r.emit(Event{Kind: EventGenerating, Index: i, Total: plan.Count, Label: sub.Label})
		uri, err := r.opts.Generator.GenerateImage(ctx, gemini.ImageRequest{
			Prompt:      sub.Built.Text,
			Images:      sub.Built.Images,
			AspectRatio: sub.Built.AspectRatio,
			Credential:  plan.Credential,
		})
		if err != nil {
			return finish(StateFailed, fmt.Errorf("generate image %d of %d: %w", i+1, plan.Count, err))
		}

		if i == 0 && plan.AnchorLock {
			if anchor, err = codec.Decode(uri); err != nil {
				return finish(StateFailed, fmt.Errorf("decode anchor image: %w", err))
			}
		}

		item := r.opts.History.Add(uri, sub.Display, sub.Label)
		res.Items = append(res.Items, item)

		if r.opts.Tracker != nil {
			if _, err := r.opts.Tracker.Increment(ctx); err != nil {
				return finish(StateFailed, fmt.Errorf("record usage: %w", err))
			}
		}
		if r.opts.Sink != nil {
			if err := r.opts.Sink(ctx, item, it); err != nil {
				return finish(StateFailed, err)
			}
		}
		r.emit(Event{Kind: EventGenerated, Index: i, Total: plan.Count, Label: sub.Label, Item: &item})

		if i < plan.Count-1 {
			if err := r.cooldown(ctx, plan, i, stop); err != nil {
				return finish(StateFailed, err)
			}
		}
	}
	return finish(StateCompleted, nil)
}

// cooldown waits plan.Cooldown in Tick steps. It returns early, without
// error, when stop fires; the next iteration's stop check ends the run.
func (r *Runner) cooldown(ctx context.Context, plan Plan, index int, stop *StopToken) error {
	for remaining := plan.Cooldown; remaining > 0; remaining -= r.opts.Tick {
		if stop.Stopped() {
			return nil
		}
		r.emit(Event{Kind: EventCooldown, Index: index, Total: plan.Count, Remaining: remaining})

		wait := r.opts.Tick
		if remaining < wait {
			wait = remaining
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-stop.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
	return nil
}

func (p Plan) submission(it Iteration) (Submission, error) {
	if p.Build != nil {
		return p.Build(it)
	}
	sub := Submission{Built: p.Base, Display: p.Display}
	if it.Variant != nil {
		sub.Built = sub.Built.WithClause(it.Variant.Clause(it.Index))
		sub.Display = it.Variant.Display(p.Display)
		sub.Label = it.Variant.Label
	}
	return sub, nil
}

func (r *Runner) emit(ev Event) {
	if r.opts.OnEvent == nil {
		return
	}
	ev.RunID = r.id
	r.opts.OnEvent(ev)
}
