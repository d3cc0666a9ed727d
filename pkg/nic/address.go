package nic

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	breverrors "github.com/nmlab/rigctl/pkg/errors"
	"github.com/nmlab/rigctl/pkg/hostenv"
	"github.com/nmlab/rigctl/pkg/remote"
)

// AssignAddresses gives every selected interface its configured address.
// Interfaces without an address are left alone.
func (a Applier) AssignAddresses(ctx context.Context, cfg *hostenv.HostConfig, ifaces []string) (Report, error) {
	var report Report
	for _, iface := range a.interfaces(cfg, ifaces) {
		addr, ok := cfg.Address(iface)
		if !ok {
			continue
		}

		if cfg.OS == hostenv.FreeBSD {
			if err := a.run(ctx, remote.Sudo(fmt.Sprintf("ifconfig %s inet %s", iface, addr)).Tolerant(), &report); err != nil {
				return report, err
			}
			continue
		}

		assigned, err := a.hasLinuxAddress(ctx, iface, addr)
		if err != nil {
			return report, err
		}
		if assigned {
			a.log.Info("address already assigned", zap.String("interface", iface), zap.String("address", addr))
			continue
		}
		if err := a.run(ctx, remote.Sudo(fmt.Sprintf("ip addr add %s dev %s", addr, iface)).Tolerant(), &report); err != nil {
			return report, err
		}
	}
	return report, nil
}

func (a Applier) hasLinuxAddress(ctx context.Context, iface string, addr string) (bool, error) {
	res, err := a.exec.Run(ctx, remote.Query("ip -j addr show dev "+iface).Tolerant())
	if err != nil {
		return false, breverrors.WrapAndTrace(err)
	}
	if res.Failed() {
		return false, nil
	}
	return AddressAssigned(res.Stdout, addr), nil
}

// AddressAssigned reports whether the JSON output of `ip -j addr show`
// already carries addr. A prefix length is compared only when addr has one.
func AddressAssigned(ipJSON string, addr string) bool {
	if !gjson.Valid(ipJSON) {
		return false
	}
	local, prefix, hasPrefix := strings.Cut(addr, "/")
	found := false
	gjson.Parse(ipJSON).ForEach(func(_, link gjson.Result) bool {
		link.Get("addr_info").ForEach(func(_, info gjson.Result) bool {
			if info.Get("local").String() != local {
				return true
			}
			if hasPrefix && info.Get("prefixlen").String() != prefix {
				return true
			}
			found = true
			return false
		})
		return !found
	})
	return found
}
