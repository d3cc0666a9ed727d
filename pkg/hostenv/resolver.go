package hostenv

import (
	"fmt"
	"sort"

	"github.com/samber/lo"
	"go.uber.org/zap"

	breverrors "github.com/nmlab/rigctl/pkg/errors"
)

type Resolver struct {
	log   *zap.Logger
	hosts map[string]Override
}

func NewResolver(log *zap.Logger) Resolver {
	return Resolver{
		log:   log.Named("hostenv"),
		hosts: hostTable,
	}
}

// withHosts returns a resolver that also knows the given overrides. Entries
// replace built-in hosts of the same name.
func (r Resolver) withHosts(extra map[string]Override) Resolver {
	hosts := lo.Assign(r.hosts, extra)
	return Resolver{log: r.log, hosts: hosts}
}

// Known lists the host identities with a dedicated configuration.
func (r Resolver) Known() []string {
	names := lo.Keys(r.hosts)
	sort.Strings(names)
	return names
}

// Resolve builds the configuration of a host from its identity and the facts
// probed at connect time. Unknown identities get the OS defaults.
func (r Resolver) Resolve(identity string, os OSKind, cpus int, user string) (*HostConfig, error) {
	if cpus <= 0 {
		return nil, breverrors.Wrap(ErrPrecondition, fmt.Sprintf("resolve %s: cpu count %d", identity, cpus))
	}
	if os != Linux && os != FreeBSD {
		return nil, breverrors.Wrap(ErrPrecondition, fmt.Sprintf("resolve %s: os %s", identity, os))
	}

	c := &HostConfig{
		Identity: identity,
		OS:       os,
		CPUs:     cpus,
		User:     user,
	}
	applyOSDefaults(c)
	c.Sizing = SizingFor(cpus)

	if override, ok := r.hosts[identity]; ok {
		override(c)
	} else {
		r.log.Info("no special configuration for host, using defaults",
			zap.String("host", identity),
			zap.Stringer("os", os),
		)
	}

	r.prune(c)
	if err := c.Validate(); err != nil {
		return nil, breverrors.WrapAndTrace(err)
	}
	return c, nil
}

// prune drops per-interface entries for interfaces the host does not use.
func (r Resolver) prune(c *HostConfig) {
	for field, m := range c.perInterface() {
		for iface := range m {
			if c.HasInterface(iface) {
				continue
			}
			r.log.Debug("dropping entry for unused interface",
				zap.String("host", c.Identity),
				zap.String("field", field),
				zap.String("interface", iface),
			)
			delete(m, iface)
		}
	}
}
