// Package registry discovers enclosures across targets and arbitrates access
// to each target.
package registry

import (
	"context"
	"io"
	"sync"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/sigreer/jbod/internal/pool"
	"github.com/sigreer/jbod/internal/sysfs"
	"github.com/sigreer/jbod/internal/topology"
)

// DefaultConcurrency is the number of targets discovered at once when the
// caller sets no limit.
const DefaultConcurrency = 4

// Opener opens the transport for a target path.
type Opener func(path string) (topology.Transport, error)

// Outcome is the discovery result of one target.
type Outcome struct {
	Target    string
	Enclosure *topology.Enclosure
	Err       error
}

// Outcomes are discovery results in the order targets were given.
type Outcomes []Outcome

// Enclosures returns the successfully built enclosures.
func (o Outcomes) Enclosures() []*topology.Enclosure {
	var out []*topology.Enclosure
	for _, oc := range o {
		if oc.Err == nil && oc.Enclosure != nil {
			out = append(out, oc.Enclosure)
		}
	}
	return out
}

// Err summarizes the failed targets, or returns nil if none failed.
func (o Outcomes) Err() error {
	var result *multierror.Error
	for _, oc := range o {
		if oc.Err != nil {
			result = multierror.Append(result, oc.Err)
		}
	}
	return result.ErrorOrNil()
}

type target struct {
	token chan struct{}
	// raw is the opened transport and c the tracking handle given out for
	// it; both are only touched while token is held.
	raw topology.Transport
	c   *conn
	h   topology.Transport
}

// Registry holds one access token and one transport per target. Targets
// that report the same enclosure identity also share an identity token, so
// an enclosure reached over several paths is used by one caller at a time.
type Registry struct {
	builder     *topology.Builder
	open        Opener
	concurrency int

	mu      sync.Mutex
	targets map[string]*target
	ids     map[string]string        // target path -> enclosure ID
	locks   map[string]chan struct{} // enclosure ID -> identity token
	last    Outcomes

	log *zap.Logger
}

// New returns a registry building topologies with builder and opening
// targets with open.
func New(builder *topology.Builder, open Opener, concurrency int) *Registry {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	return &Registry{
		builder:     builder,
		open:        open,
		concurrency: concurrency,
		targets:     make(map[string]*target),
		ids:         make(map[string]string),
		locks:       make(map[string]chan struct{}),
		log:         zap.L(),
	}
}

func (r *Registry) target(path string) *target {
	r.mu.Lock()
	defer r.mu.Unlock()
	tg, ok := r.targets[path]
	if !ok {
		tg = &target{token: make(chan struct{}, 1)}
		r.targets[path] = tg
	}
	return tg
}

// identity returns the identity token of the enclosure last seen at path,
// or nil before the first successful build.
func (r *Registry) identity(path string) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.ids[path]
	if !ok {
		return nil
	}
	tok, ok := r.locks[id]
	if !ok {
		tok = make(chan struct{}, 1)
		r.locks[id] = tok
	}
	return tok
}

func (r *Registry) learn(path string, enc *topology.Enclosure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if enc.ID == "" || enc.ID == enc.Target {
		delete(r.ids, path)
		return
	}
	r.ids[path] = enc.ID
}

// Acquire takes exclusive access to a target and returns its transport.
// The target token is taken first, then the identity token of the
// enclosure behind it once that is known. The release function must be
// called exactly once; later calls are no-ops.
//
// A transport that failed because its device node went away is closed on
// release and reopened by the next Acquire.
func (r *Registry) Acquire(ctx context.Context, path string) (topology.Transport, func(), error) {
	tg := r.target(path)
	select {
	case tg.token <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, &topology.TransportError{Target: path, Op: "acquire", Err: ctx.Err()}
	}

	idTok := r.identity(path)
	if idTok != nil {
		select {
		case idTok <- struct{}{}:
		case <-ctx.Done():
			<-tg.token
			return nil, nil, &topology.TransportError{Target: path, Op: "acquire", Err: ctx.Err()}
		}
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			if tg.c != nil && tg.c.gone {
				r.drop(path, tg)
			}
			if idTok != nil {
				<-idTok
			}
			<-tg.token
		})
	}

	if tg.h == nil {
		t, err := r.open(path)
		if err != nil {
			release()
			return nil, nil, &topology.TransportError{Target: path, Op: "open", Err: err}
		}
		tg.raw = t
		tg.c, tg.h = track(t)
	}
	return tg.h, release, nil
}

// drop closes a transport whose device went away. The caller holds the
// target token.
func (r *Registry) drop(path string, tg *target) {
	r.log.Warn("device gone, reopening on next use", zap.String("target", path))
	if c, ok := tg.raw.(io.Closer); ok {
		if err := c.Close(); err != nil {
			r.log.Debug("closing gone device", zap.String("target", path), zap.Error(err))
		}
	}
	tg.raw, tg.c, tg.h = nil, nil, nil
}

// Discover builds the topology of every target in parallel. Each target
// fails or succeeds on its own; the outcomes keep the input order.
func (r *Registry) Discover(ctx context.Context, paths []string) Outcomes {
	outcomes := make(Outcomes, len(paths))
	tasks := make([]*pool.Task, len(paths))
	for i, path := range paths {
		i, path := i, path
		tasks[i] = pool.NewTask(func() error {
			enc, err := r.build(ctx, path)
			outcomes[i] = Outcome{Target: path, Enclosure: enc, Err: err}
			return err
		})
	}
	pool.NewPool(tasks, r.concurrency).Run()

	for _, oc := range outcomes {
		if oc.Err != nil {
			r.log.Warn("enclosure discovery failed", zap.String("target", oc.Target), zap.Error(oc.Err))
		}
	}

	r.mu.Lock()
	r.last = outcomes
	r.mu.Unlock()
	return outcomes
}

func (r *Registry) build(ctx context.Context, path string) (*topology.Enclosure, error) {
	t, release, err := r.Acquire(ctx, path)
	if err != nil {
		return nil, &topology.BuildError{Target: path, Err: err}
	}
	defer release()
	enc, err := r.builder.Build(ctx, path, t)
	if err != nil {
		return nil, err
	}
	r.learn(path, enc)
	return enc, nil
}

// Last returns the outcomes of the most recent Discover call.
func (r *Registry) Last() Outcomes {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Close closes every transport the registry opened.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result *multierror.Error
	for path, tg := range r.targets {
		if c, ok := tg.raw.(io.Closer); ok {
			if err := c.Close(); err != nil {
				result = multierror.Append(result, err)
			}
		}
		delete(r.targets, path)
	}
	return result.ErrorOrNil()
}

// Targets returns the configured targets, or the enclosure sg nodes found in
// sysfs when none are configured.
func Targets(configured []string, fs sysfs.FS) ([]string, error) {
	if len(configured) > 0 {
		return configured, nil
	}
	found, err := fs.EnclosureTargets()
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(found))
	for _, t := range found {
		paths = append(paths, t.Path)
	}
	return paths, nil
}
