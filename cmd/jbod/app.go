package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sigreer/jbod/internal/config"
	"github.com/sigreer/jbod/internal/db"
	"github.com/sigreer/jbod/internal/led"
	"github.com/sigreer/jbod/internal/registry"
	"github.com/sigreer/jbod/internal/sgio"
	"github.com/sigreer/jbod/internal/sysfs"
	"github.com/sigreer/jbod/internal/topology"
)

// app wires the configured components for one command invocation.
type app struct {
	cfg   *config.Config
	fs    sysfs.FS
	reg   *registry.Registry
	audit *db.DB
}

func newApp(cfg *config.Config) *app {
	fs := sysfs.Default
	builder := topology.NewBuilder(fs, cfg.Discovery.CommandTimeout)
	return &app{
		cfg: cfg,
		fs:  fs,
		reg: registry.New(builder, openSG(cfg.Discovery.CommandTimeout), cfg.Discovery.Concurrency),
	}
}

func openSG(timeout time.Duration) registry.Opener {
	return func(path string) (topology.Transport, error) {
		d, err := sgio.Open(path, timeout)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}

// targets returns the configured targets or the enclosures found in sysfs.
func (a *app) targets() ([]string, error) {
	paths, err := registry.Targets(a.cfg.Targets, a.fs)
	if err != nil {
		return nil, fmt.Errorf("scanning for enclosures: %w", err)
	}
	return paths, nil
}

// discover runs one discovery over the current targets. A failed scan is
// logged and yields no outcomes.
func (a *app) discover(ctx context.Context) registry.Outcomes {
	paths, err := a.targets()
	if err != nil {
		zap.L().Error("enclosure scan failed", zap.Error(err))
		return nil
	}
	return a.reg.Discover(ctx, paths)
}

// controller returns an LED controller, auditing to the configured database
// when one is set.
func (a *app) controller() (*led.Controller, error) {
	c := led.New(a.reg, led.Options{
		CommandTimeout: a.cfg.Discovery.CommandTimeout,
		ConfirmRetries: a.cfg.LED.Retries(),
		ConfirmDelay:   a.cfg.LED.ConfirmDelay,
		ConfirmTimeout: a.cfg.LED.ConfirmTimeout,
	})
	if a.cfg.Audit.DBPath != "" {
		d, err := a.openAudit()
		if err != nil {
			return nil, err
		}
		c.Auditor = d
	}
	return c, nil
}

func (a *app) openAudit() (*db.DB, error) {
	if a.audit != nil {
		return a.audit, nil
	}
	d, err := db.New(a.cfg.Audit.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	a.audit = d
	return d, nil
}

// find discovers every target and looks the query up.
func (a *app) find(ctx context.Context, query string) (*topology.Enclosure, *topology.Element, error) {
	outcomes := a.discover(ctx)
	enc, el, err := a.reg.FindSlot(registry.ParseQuery(query))
	if err != nil {
		if ferr := outcomes.Err(); ferr != nil {
			return nil, nil, fmt.Errorf("%w (some targets failed: %v)", err, ferr)
		}
		return nil, nil, err
	}
	if !el.Type.IsSlot() {
		return nil, nil, fmt.Errorf("%s is a %s, not a disk slot", query, el.Type)
	}
	return enc, el, nil
}

func (a *app) Close() {
	if err := a.reg.Close(); err != nil {
		zap.L().Warn("closing targets", zap.Error(err))
	}
	if a.audit != nil {
		a.audit.Close()
	}
}
