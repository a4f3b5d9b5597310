package topology

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sigreer/jbod/internal/ses"
)

// DefaultCommandTimeout bounds every page read or write when the builder or
// caller sets none.
const DefaultCommandTimeout = 10 * time.Second

// Builder assembles Enclosures from SES pages.
type Builder struct {
	// Resolver binds slots to host device names; nil skips binding.
	Resolver Resolver
	// CommandTimeout bounds each transport call.
	CommandTimeout time.Duration

	log *zap.Logger
}

// NewBuilder returns a builder logging through the global zap logger.
func NewBuilder(resolver Resolver, timeout time.Duration) *Builder {
	return &Builder{Resolver: resolver, CommandTimeout: timeout, log: zap.L()}
}

func (b *Builder) logger() *zap.Logger {
	if b.log == nil {
		return zap.L()
	}
	return b.log
}

// Build reads the enclosure behind t and returns its topology with live
// status. The configuration and status pages are required; element
// descriptors, additional element status, serial number and device binding
// are best effort and recorded as warnings when they fail.
func (b *Builder) Build(ctx context.Context, target string, t Transport) (*Enclosure, error) {
	snap, err := ReadSnapshot(ctx, target, t, b.CommandTimeout)
	if err != nil {
		return nil, &BuildError{Target: target, Err: err}
	}

	log := b.logger().With(zap.String("target", target))
	enc := newEnclosure(target, snap)

	warn := func(step string, err error) {
		log.Debug("best effort step failed", zap.String("step", step), zap.Error(err))
		enc.Warnings = append(enc.Warnings, fmt.Sprintf("%s: %v", step, err))
	}

	if raw, err := receive(ctx, target, t, ses.PageElementDescriptor, b.CommandTimeout); err != nil {
		warn("element descriptors", err)
	} else if page, err := ses.DecodeElementDescriptorPage(raw, snap.Config); err != nil {
		warn("element descriptors", err)
	} else {
		for i := range enc.Elements {
			enc.Elements[i].Description = page.Description(i)
		}
		for i := range enc.Groups {
			if i < len(page.Overall) {
				enc.Groups[i].Description = page.Overall[i]
			}
		}
	}

	var aes *ses.AdditionalStatusPage
	if raw, err := receive(ctx, target, t, ses.PageAdditionalStatus, b.CommandTimeout); err != nil {
		warn("additional element status", err)
	} else if aes, err = ses.DecodeAdditionalStatusPage(raw, snap.Config); err != nil {
		warn("additional element status", err)
		aes = nil
	}

	if sr, ok := t.(SerialReader); ok {
		cctx, cancel := b.callContext(ctx)
		serial, err := sr.UnitSerial(cctx)
		cancel()
		if err != nil {
			warn("unit serial", err)
		} else {
			enc.Serial = serial
		}
	}

	if aes != nil {
		b.bind(enc, aes, warn)
	}

	log.Debug("built enclosure topology",
		zap.String("enclosure", enc.ID),
		zap.Int("elements", len(enc.Elements)),
		zap.Int("warnings", len(enc.Warnings)))
	return enc, nil
}

func (b *Builder) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return withTimeout(ctx, b.CommandTimeout)
}

func (b *Builder) bind(enc *Enclosure, aes *ses.AdditionalStatusPage, warn func(string, error)) {
	var lookup func(addr uint64) (binding SlotBinding, ok bool)
	if b.Resolver != nil {
		idx, err := b.Resolver.Snapshot()
		if err != nil {
			warn("device binding", err)
		} else {
			lookup = func(addr uint64) (SlotBinding, bool) {
				d, ok := idx.BySASAddress(addr)
				if !ok {
					return SlotBinding{}, false
				}
				return SlotBinding{
					Device:   d.Path,
					SGDevice: d.SGPath,
					HCTL:     d.HCTL,
					Vendor:   d.Vendor,
					Model:    d.Model,
					Serial:   d.Serial,
				}, true
			}
		}
	}

	for i := range enc.Elements {
		el := &enc.Elements[i]
		if !el.Type.IsSlot() {
			continue
		}
		d, ok := aes.ByIndex(el.Index)
		if !ok || d.Invalid {
			continue
		}
		binding := &SlotBinding{SlotNumber: d.SlotNumber}
		for _, addr := range d.SASAddresses() {
			binding.SASAddresses = append(binding.SASAddresses, ses.FormatSASAddress(addr))
			if lookup == nil || binding.Device != "" {
				continue
			}
			if host, ok := lookup(addr); ok {
				host.SlotNumber = binding.SlotNumber
				host.SASAddresses = binding.SASAddresses
				*binding = host
			}
		}
		el.Binding = binding
	}
}

func newEnclosure(target string, snap ses.Snapshot) *Enclosure {
	primary := snap.Config.Primary()
	enc := &Enclosure{
		ID:            target,
		Target:        target,
		Vendor:        primary.Vendor,
		Product:       primary.Product,
		Revision:      primary.Revision,
		Generation:    snap.Status.Generation,
		SubEnclosures: snap.Config.SubEnclosures,
		ReadAt:        time.Now(),
		Elements:      make([]Element, 0, snap.Config.ElementCount()),
	}
	if primary.LogicalID != 0 {
		enc.ID = primary.LogicalIDString()
	}

	pos := 0
	for _, td := range snap.Config.Types {
		overall := snap.Status.Records[pos]
		pos++
		enc.Groups = append(enc.Groups, ElementGroup{
			Type:         td.Type,
			SubEnclosure: td.SubEnclosure,
			Count:        td.Count,
			Start:        td.Start,
			Text:         td.Text,
			Overall:      ses.Interpret(td.Type, overall),
		})
		for i := 0; i < td.Count; i++ {
			r := snap.Status.Records[pos]
			pos++
			enc.Elements = append(enc.Elements, Element{
				Index:        td.Start + i,
				Ordinal:      i,
				Type:         td.Type,
				SubEnclosure: td.SubEnclosure,
				Raw:          r,
				Status:       ses.Interpret(td.Type, r),
			})
		}
	}
	return enc
}

// ReadSnapshot reads the configuration page and then the status page of one
// enclosure and checks that they agree. If the generation code moved between
// the two reads the pair is read once more.
func ReadSnapshot(ctx context.Context, target string, t Transport, timeout time.Duration) (ses.Snapshot, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		raw, err := receive(ctx, target, t, ses.PageConfiguration, timeout)
		if err != nil {
			return ses.Snapshot{}, err
		}
		cfg, err := ses.DecodeConfigurationPage(raw)
		if err != nil {
			return ses.Snapshot{}, err
		}
		st, err := ReadStatus(ctx, target, t, timeout)
		if err != nil {
			return ses.Snapshot{}, err
		}
		if st.Generation != cfg.Generation {
			lastErr = fmt.Errorf("%w: configuration generation %d, status generation %d",
				ErrGenerationChanged, cfg.Generation, st.Generation)
			continue
		}
		snap := ses.Snapshot{Config: cfg, Status: st}
		if err := snap.Check(); err != nil {
			return ses.Snapshot{}, err
		}
		return snap, nil
	}
	return ses.Snapshot{}, lastErr
}

// ErrGenerationChanged means the enclosure configuration changed while it
// was being read.
var ErrGenerationChanged = errors.New("enclosure configuration changed during read")

// ReadStatus reads and decodes the enclosure status page.
func ReadStatus(ctx context.Context, target string, t Transport, timeout time.Duration) (*ses.StatusPage, error) {
	raw, err := receive(ctx, target, t, ses.PageEnclosureStatus, timeout)
	if err != nil {
		return nil, err
	}
	return ses.DecodeStatusPage(ses.PageEnclosureStatus, raw)
}

// WriteControl sends an enclosure control page.
func WriteControl(ctx context.Context, target string, t Transport, page []byte, timeout time.Duration) error {
	cctx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	if err := t.SendDiagnostic(cctx, page); err != nil {
		return &TransportError{Target: target, Op: "send enclosure control page", Err: err}
	}
	return nil
}

func receive(ctx context.Context, target string, t Transport, page ses.PageCode, timeout time.Duration) ([]byte, error) {
	cctx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	raw, err := t.ReceiveDiagnostic(cctx, uint8(page))
	if err != nil {
		return nil, &TransportError{Target: target, Op: "receive " + page.String() + " page", Err: err}
	}
	return raw, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultCommandTimeout
	}
	return context.WithTimeout(ctx, d)
}
