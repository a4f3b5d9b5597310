// Package led drives the identify and fault indicators of enclosure slots
// with a read, modify, write and confirm cycle.
package led

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sigreer/jbod/internal/ses"
	"github.com/sigreer/jbod/internal/topology"
)

// Defaults used when Options leave a field zero.
const (
	DefaultConfirmRetries = 1
	DefaultConfirmDelay   = 500 * time.Millisecond
	DefaultConfirmTimeout = 5 * time.Second
	DefaultLocateDuration = 30 * time.Second
)

// Indicator selects which slot LED a call addresses.
type Indicator int

const (
	Identify Indicator = iota
	Fault
)

func (i Indicator) String() string {
	if i == Fault {
		return "fault"
	}
	return "identify"
}

// Ref addresses one element of one target.
type Ref struct {
	Target string
	Index  int
}

func (r Ref) String() string {
	return fmt.Sprintf("%s:%d", r.Target, r.Index)
}

// RefOf returns the reference of an element found in a discovered enclosure.
func RefOf(enc *topology.Enclosure, el *topology.Element) Ref {
	return Ref{Target: enc.Target, Index: el.Index}
}

// Acquirer grants exclusive use of a target's transport.
type Acquirer interface {
	Acquire(ctx context.Context, target string) (topology.Transport, func(), error)
}

// Auditor records the outcome of every LED operation.
type Auditor interface {
	RecordLEDEvent(ctx context.Context, ev Event) error
}

// Event is one audited LED operation.
type Event struct {
	ID        string    `json:"id"`
	Time      time.Time `json:"time"`
	Target    string    `json:"target"`
	Index     int       `json:"index"`
	Indicator string    `json:"indicator"`
	Requested bool      `json:"requested"`
	Observed  *bool     `json:"observed,omitempty"`
	Attempts  int       `json:"attempts"`
	Result    string    `json:"result"`
	Error     string    `json:"error,omitempty"`
}

// Ack confirms that the enclosure reports the requested indicator state.
type Ack struct {
	ID        uuid.UUID
	Ref       Ref
	Indicator Indicator
	On        bool
	// Attempts counts status reads made to confirm the change.
	Attempts int
	Duration time.Duration
}

// Options tune the confirmation step. Zero durations take the defaults.
type Options struct {
	CommandTimeout time.Duration
	ConfirmRetries int
	ConfirmDelay   time.Duration
	ConfirmTimeout time.Duration
}

// DefaultOptions returns the options used by the CLI when nothing is
// configured.
func DefaultOptions() Options {
	return Options{
		CommandTimeout: topology.DefaultCommandTimeout,
		ConfirmRetries: DefaultConfirmRetries,
		ConfirmDelay:   DefaultConfirmDelay,
		ConfirmTimeout: DefaultConfirmTimeout,
	}
}

// Controller sets slot indicators. It keeps no state between calls.
type Controller struct {
	targets Acquirer
	opts    Options

	// Auditor is optional.
	Auditor Auditor

	log *zap.Logger
}

// New returns a controller using targets for exclusive transport access.
func New(targets Acquirer, opts Options) *Controller {
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = topology.DefaultCommandTimeout
	}
	if opts.ConfirmRetries < 0 {
		opts.ConfirmRetries = 0
	}
	if opts.ConfirmDelay < 0 {
		opts.ConfirmDelay = 0
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = DefaultConfirmTimeout
	}
	return &Controller{targets: targets, opts: opts, log: zap.L()}
}

// SetIdentify turns the identify indicator of a slot on or off.
func (c *Controller) SetIdentify(ctx context.Context, ref Ref, on bool) (*Ack, error) {
	return c.set(ctx, ref, Identify, on)
}

// SetFault turns the fault indicator of a slot on or off.
func (c *Controller) SetFault(ctx context.Context, ref Ref, on bool) (*Ack, error) {
	return c.set(ctx, ref, Fault, on)
}

// Locate turns identify on, waits for d or for ctx to end, and then turns it
// off again. The off request runs even when ctx was cancelled.
func (c *Controller) Locate(ctx context.Context, ref Ref, d time.Duration) error {
	if d <= 0 {
		d = DefaultLocateDuration
	}
	if _, err := c.SetIdentify(ctx, ref, true); err != nil {
		return fmt.Errorf("turn on identify: %w", err)
	}

	timer := time.NewTimer(d)
	select {
	case <-timer.C:
	case <-ctx.Done():
		timer.Stop()
	}

	offCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.offBudget())
	defer cancel()
	if _, err := c.SetIdentify(offCtx, ref, false); err != nil {
		return fmt.Errorf("turn off identify: %w", err)
	}
	return ctx.Err()
}

// offBudget bounds the whole off cycle: snapshot, write and confirm reads.
func (c *Controller) offBudget() time.Duration {
	o := c.opts
	confirm := time.Duration(o.ConfirmRetries+1) * (o.ConfirmTimeout + o.ConfirmDelay)
	return 3*o.CommandTimeout + confirm
}

func (c *Controller) set(ctx context.Context, ref Ref, ind Indicator, on bool) (*Ack, error) {
	id := uuid.New()
	start := time.Now()
	log := c.log.With(
		zap.String("op", id.String()),
		zap.Stringer("slot", ref),
		zap.Stringer("indicator", ind),
		zap.Bool("on", on))

	attempts, err := c.cycle(ctx, ref, ind, on)

	ev := Event{
		ID:        id.String(),
		Time:      start,
		Target:    ref.Target,
		Index:     ref.Index,
		Indicator: ind.String(),
		Requested: on,
		Attempts:  attempts,
		Result:    "ok",
	}
	if err != nil {
		ev.Result = "error"
		ev.Error = err.Error()
		var cerr *ControlError
		if errors.As(err, &cerr) {
			ev.Result = cerr.Reason.String()
			ev.Observed = cerr.Observed
		}
		log.Warn("indicator change failed", zap.Error(err))
	} else {
		observed := on
		ev.Observed = &observed
		log.Info("indicator changed", zap.Int("attempts", attempts))
	}
	c.audit(ctx, ev, log)

	if err != nil {
		return nil, err
	}
	return &Ack{
		ID:        id,
		Ref:       ref,
		Indicator: ind,
		On:        on,
		Attempts:  attempts,
		Duration:  time.Since(start),
	}, nil
}

func (c *Controller) audit(ctx context.Context, ev Event, log *zap.Logger) {
	if c.Auditor == nil {
		return
	}
	if err := c.Auditor.RecordLEDEvent(context.WithoutCancel(ctx), ev); err != nil {
		log.Warn("failed to record LED event", zap.Error(err))
	}
}

// cycle holds the target for Read, Encode, Write and Confirm and returns the
// number of confirmation reads made.
func (c *Controller) cycle(ctx context.Context, ref Ref, ind Indicator, on bool) (int, error) {
	t, release, err := c.targets.Acquire(ctx, ref.Target)
	if err != nil {
		return 0, err
	}
	defer release()

	snap, err := topology.ReadSnapshot(ctx, ref.Target, t, c.opts.CommandTimeout)
	if err != nil {
		return 0, err
	}

	intent := ses.ControlIntent{Index: ref.Index}
	switch ind {
	case Identify:
		intent.Identify = &on
	case Fault:
		intent.Fault = &on
	}
	page, err := ses.EncodeControlPage(snap, []ses.ControlIntent{intent})
	if err != nil {
		if errors.Is(err, ses.ErrUnsupportedElement) || errors.Is(err, ses.ErrIndexOutOfRange) {
			return 0, c.controlErr(ref, ind, on, ReasonUnsupported, nil, err)
		}
		return 0, err
	}

	if err := topology.WriteControl(ctx, ref.Target, t, page, c.opts.CommandTimeout); err != nil {
		// The enclosure may or may not have applied the page; one read
		// tells the caller what it shows now.
		observed, rerr := c.observe(ctx, ref, t, snap.Config, ind, c.opts.ConfirmTimeout)
		if rerr != nil {
			return 1, c.controlErr(ref, ind, on, ReasonIndeterminate, nil, errors.Join(err, rerr))
		}
		return 1, c.controlErr(ref, ind, on, ReasonWriteFailed, &observed, err)
	}

	var (
		attempts int
		observed bool
		lastErr  error
	)
	for attempts <= c.opts.ConfirmRetries {
		if attempts > 0 {
			if err := sleep(ctx, c.opts.ConfirmDelay); err != nil {
				lastErr = err
				break
			}
		}
		attempts++
		observed, lastErr = c.observe(ctx, ref, t, snap.Config, ind, c.opts.ConfirmTimeout)
		if lastErr == nil && observed == on {
			return attempts, nil
		}
	}
	if lastErr != nil {
		return attempts, c.controlErr(ref, ind, on, ReasonIndeterminate, nil, lastErr)
	}
	return attempts, c.controlErr(ref, ind, on, ReasonAckNotObserved, &observed, nil)
}

// observe reads the status page and returns the indicator's request bit.
func (c *Controller) observe(ctx context.Context, ref Ref, t topology.Transport, cfg *ses.ConfigurationPage, ind Indicator, timeout time.Duration) (bool, error) {
	st, err := topology.ReadStatus(ctx, ref.Target, t, timeout)
	if err != nil {
		return false, err
	}
	if st.Generation != cfg.Generation {
		return false, fmt.Errorf("%w: generation %d, expected %d", topology.ErrGenerationChanged, st.Generation, cfg.Generation)
	}
	r, err := st.Element(cfg, ref.Index)
	if err != nil {
		return false, err
	}
	identify, fault := ses.SlotIndicators(r)
	if ind == Fault {
		return fault, nil
	}
	return identify, nil
}

func (c *Controller) controlErr(ref Ref, ind Indicator, on bool, reason Reason, observed *bool, err error) error {
	return &ControlError{
		Ref:       ref,
		Indicator: ind,
		On:        on,
		Reason:    reason,
		Observed:  observed,
		Err:       err,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
