// Package nic applies NIC tuning profiles, interrupt affinity and interface
// addresses to a resolved host.
package nic

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"github.com/samber/mo"
	"go.uber.org/zap"

	breverrors "github.com/nmlab/rigctl/pkg/errors"
	"github.com/nmlab/rigctl/pkg/hostenv"
	"github.com/nmlab/rigctl/pkg/remote"
)

// Options narrows what SetupInterfaces touches. Empty lists select the
// interfaces and profiles configured for the host.
type Options struct {
	Interfaces []string
	Profiles   []string
	// Queues overrides the queue count used by templates that take one. The
	// host CPU count is used otherwise.
	Queues mo.Option[int]
}

// Report summarizes the commands an operation issued.
type Report struct {
	Issued          int
	Failed          int
	SkippedProfiles []string
}

func (r Report) Merge(o Report) Report {
	return Report{
		Issued:          r.Issued + o.Issued,
		Failed:          r.Failed + o.Failed,
		SkippedProfiles: lo.Uniq(append(append([]string{}, r.SkippedProfiles...), o.SkippedProfiles...)),
	}
}

// Applier issues commands through a single executor, one at a time. Command
// failures are tolerated; only transport errors and cancellation abort.
type Applier struct {
	exec remote.Executor
	log  *zap.Logger
}

func NewApplier(exec remote.Executor, log *zap.Logger) Applier {
	return Applier{
		exec: exec,
		log:  log.Named("nic"),
	}
}

// SetupInterfaces tunes the interfaces, then pins their interrupts, then
// assigns addresses. Queue counts must be set before interrupts are
// enumerated, so the order is fixed.
func (a Applier) SetupInterfaces(ctx context.Context, cfg *hostenv.HostConfig, opts Options) (Report, error) {
	report, err := a.ApplyProfiles(ctx, cfg, opts)
	if err != nil {
		return report, err
	}

	irq, err := a.AssignIRQAffinity(ctx, cfg, opts.Interfaces)
	report = report.Merge(irq)
	if err != nil {
		return report, err
	}

	addr, err := a.AssignAddresses(ctx, cfg, opts.Interfaces)
	report = report.Merge(addr)
	return report, err
}

// ApplyProfiles runs, for every interface in order, the templates of every
// selected profile in order. Profiles missing from the catalog are skipped.
func (a Applier) ApplyProfiles(ctx context.Context, cfg *hostenv.HostConfig, opts Options) (Report, error) {
	var report Report

	queues := opts.Queues.OrElse(cfg.CPUs)
	if queues <= 0 {
		return report, breverrors.NewValidationError(fmt.Sprintf("queue count must be positive, got %d", queues))
	}

	profiles := opts.Profiles
	if len(profiles) == 0 {
		profiles = cfg.Profiles
	}

	var usesQueues bool
	for _, iface := range a.interfaces(cfg, opts.Interfaces) {
		for _, name := range profiles {
			templates, ok := cfg.Catalog.Lookup(name)
			if !ok {
				a.log.Debug("skipping unknown profile",
					zap.String("profile", name),
					zap.String("interface", iface),
					zap.Strings("available", cfg.Catalog.Names()),
				)
				report.SkippedProfiles = lo.Uniq(append(report.SkippedProfiles, name))
				continue
			}
			for _, tmpl := range templates {
				usesQueues = usesQueues || tmpl.NeedsQueues()
				line, err := tmpl.Expand(iface, queues)
				if err != nil {
					return report, breverrors.WrapAndTrace(err)
				}
				if err := a.run(ctx, remote.Sudo(line).Tolerant(), &report); err != nil {
					return report, err
				}
			}
		}
	}
	if opts.Queues.IsPresent() && !usesQueues {
		a.log.Info("queue count not used by the selected profiles", zap.Int("queues", queues))
	}
	return report, nil
}

func (a Applier) interfaces(cfg *hostenv.HostConfig, requested []string) []string {
	if len(requested) == 0 {
		return cfg.Interfaces
	}
	for _, iface := range requested {
		if !cfg.HasInterface(iface) {
			a.log.Info("interface is not configured for this host", zap.String("interface", iface))
		}
	}
	return requested
}

func (a Applier) run(ctx context.Context, cmd remote.Command, report *Report) error {
	if err := ctx.Err(); err != nil {
		return breverrors.WrapAndTrace(err)
	}
	res, err := a.exec.Run(ctx, cmd)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	report.Issued++
	if res.Failed() {
		report.Failed++
	}
	return nil
}
