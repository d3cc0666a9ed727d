// Package netmap loads and unloads the netmap kernel module and its patched
// NIC drivers on a resolved host.
package netmap

import (
	"bufio"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	breverrors "github.com/nmlab/rigctl/pkg/errors"
	"github.com/nmlab/rigctl/pkg/hostenv"
	"github.com/nmlab/rigctl/pkg/nic"
	"github.com/nmlab/rigctl/pkg/remote"
)

// ErrModuleNotFound is returned when a module binary is missing from the
// netmap build tree. Loading cannot continue without it.
var ErrModuleNotFound = breverrors.New("kernel module not found")

const defaultSettle = time.Second

const (
	kernHeader  = "sys/dev/netmap/netmap_kern.h"
	debugDefine = "#define CONFIG_NETMAP_DEBUG 1"
)

type Loader struct {
	exec    remote.Executor
	applier nic.Applier
	log     *zap.Logger
	settle  time.Duration
}

func NewLoader(exec remote.Executor, log *zap.Logger) Loader {
	return Loader{
		exec:    exec,
		applier: nic.NewApplier(exec, log),
		log:     log.Named("netmap"),
		settle:  defaultSettle,
	}
}

// WithSettle sets the pause between loading helper modules and the drivers.
func (l Loader) WithSettle(d time.Duration) Loader {
	l.settle = d
	return l
}

// Load replaces any running netmap with the one built under NetmapSrc, loads
// the patched drivers, sizes the private pools and reconfigures the
// interfaces. On FreeBSD netmap is part of the kernel and only the pools and
// interfaces are configured.
func (l Loader) Load(ctx context.Context, cfg *hostenv.HostConfig, opts nic.Options) (nic.Report, error) {
	if cfg.OS == hostenv.FreeBSD {
		if err := l.SetParameters(ctx, cfg); err != nil {
			return nic.Report{}, err
		}
		return l.applier.SetupInterfaces(ctx, cfg, opts)
	}

	if err := l.Unload(ctx, cfg); err != nil {
		return nic.Report{}, err
	}

	core := path.Join(cfg.NetmapSrc, "netmap.ko")
	found, err := l.exec.Exists(ctx, core)
	if err != nil {
		return nic.Report{}, breverrors.WrapAndTrace(err)
	}
	if !found {
		return nic.Report{}, breverrors.WrapAndTrace(fmt.Errorf("%w: %s", ErrModuleNotFound, core))
	}
	if _, err := l.exec.Run(ctx, remote.Sudo("insmod "+core)); err != nil {
		return nic.Report{}, breverrors.WrapAndTrace(err)
	}
	for _, m := range cfg.PreModules {
		if _, err := l.exec.Run(ctx, remote.Sudo("modprobe "+m)); err != nil {
			return nic.Report{}, breverrors.WrapAndTrace(err)
		}
	}

	select {
	case <-ctx.Done():
		return nic.Report{}, breverrors.WrapAndTrace(ctx.Err())
	case <-time.After(l.settle):
	}

	if err := l.loadDrivers(ctx, cfg); err != nil {
		return nic.Report{}, err
	}
	if err := l.SetParameters(ctx, cfg); err != nil {
		return nic.Report{}, err
	}
	return l.applier.SetupInterfaces(ctx, cfg, opts)
}

func (l Loader) loadDrivers(ctx context.Context, cfg *hostenv.HostConfig) error {
	res, err := l.exec.Run(ctx, remote.Query("lsmod"))
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	loaded := LoadedModules(res.Stdout)

	for _, m := range cfg.KernelModules {
		if loaded[m] {
			if _, err := l.exec.Run(ctx, remote.Sudo("rmmod "+m).Tolerant()); err != nil {
				return breverrors.WrapAndTrace(err)
			}
		}

		ko, err := l.findModule(ctx, cfg.NetmapSrc, m)
		if err != nil {
			return err
		}
		res, err := l.exec.Run(ctx, remote.Sudo("insmod "+ko).Tolerant())
		if err != nil {
			return breverrors.WrapAndTrace(err)
		}
		if res.Failed() {
			l.log.Info("insmod failed, falling back to modprobe", zap.String("module", m))
			if _, err := l.exec.Run(ctx, remote.Sudo("modprobe "+m)); err != nil {
				return breverrors.WrapAndTrace(err)
			}
		}
	}
	return nil
}

// findModule looks for <src>/<m>/<m>.ko, then <src>/<m>.ko.
func (l Loader) findModule(ctx context.Context, src string, m string) (string, error) {
	candidates := []string{
		path.Join(src, m, m+".ko"),
		path.Join(src, m+".ko"),
	}
	for _, ko := range candidates {
		ok, err := l.exec.Exists(ctx, ko)
		if err != nil {
			return "", breverrors.WrapAndTrace(err)
		}
		if ok {
			return ko, nil
		}
	}
	return "", breverrors.WrapAndTrace(fmt.Errorf("%w: %s.ko under %s", ErrModuleNotFound, m, src))
}

// SetParameters writes the private pool sizing of the host.
func (l Loader) SetParameters(ctx context.Context, cfg *hostenv.HostConfig) error {
	for _, p := range parameters(cfg.Sizing) {
		var line string
		if cfg.OS == hostenv.FreeBSD {
			line = fmt.Sprintf("sysctl -w dev.netmap.priv_%s=%d", p.name, p.value)
		} else {
			line = fmt.Sprintf("echo %d > /sys/module/netmap/parameters/priv_%s", p.value, p.name)
		}
		if _, err := l.exec.Run(ctx, remote.Sudo(line)); err != nil {
			return breverrors.WrapAndTrace(err)
		}
	}
	return nil
}

type parameter struct {
	name  string
	value int
}

func parameters(s hostenv.Sizing) []parameter {
	return []parameter{
		{"if_num", s.IfNum},
		{"ring_num", s.RingNum},
		{"buf_num", s.BufNum},
		{"ring_size", s.RingSize},
	}
}

// EnableDebug turns on netmap debug output for the next build of the tree
// under NetmapSrc. It reports whether the header had to be changed.
func (l Loader) EnableDebug(ctx context.Context, cfg *hostenv.HostConfig) (bool, error) {
	header := path.Join(cfg.NetmapSrc, kernHeader)
	ok, err := l.exec.Contains(ctx, header, debugDefine)
	if err != nil {
		return false, breverrors.WrapAndTrace(err)
	}
	if ok {
		return false, nil
	}
	if _, err := l.exec.Run(ctx, remote.Run(fmt.Sprintf("sed -i '1s/^/%s\\n/' %s", debugDefine, header))); err != nil {
		return false, breverrors.WrapAndTrace(err)
	}
	l.log.Info("enabled debug build", zap.String("header", header))
	return true, nil
}

// Unload removes netmap and every module that depends on it. A dependent
// that modprobe cannot remove is retried once with rmmod.
func (l Loader) Unload(ctx context.Context, cfg *hostenv.HostConfig) error {
	if cfg.OS == hostenv.FreeBSD {
		l.log.Info("netmap is built into the FreeBSD kernel, nothing to unload")
		return nil
	}

	res, err := l.exec.Run(ctx, remote.Query("lsmod"))
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	dependents, loaded := Dependents(res.Stdout)
	if !loaded {
		l.log.Info("netmap is not loaded")
		return nil
	}

	for _, m := range dependents {
		res, err := l.exec.Run(ctx, remote.Sudo("modprobe -r "+m).Tolerant())
		if err != nil {
			return breverrors.WrapAndTrace(err)
		}
		if res.Failed() {
			if _, err := l.exec.Run(ctx, remote.Sudo("rmmod "+m)); err != nil {
				return breverrors.WrapAndTrace(err)
			}
		}
	}
	if _, err := l.exec.Run(ctx, remote.Sudo("rmmod netmap").Tolerant()); err != nil {
		return breverrors.WrapAndTrace(err)
	}
	return nil
}

// Dependents parses lsmod output and returns the modules using netmap and
// whether netmap is loaded at all.
func Dependents(lsmod string) ([]string, bool) {
	scanner := bufio.NewScanner(strings.NewReader(lsmod))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || fields[0] != "netmap" {
			continue
		}
		if len(fields) < 4 || fields[3] == "-" {
			return nil, true
		}
		return strings.Split(strings.Trim(fields[3], ","), ","), true
	}
	return nil, false
}

// LoadedModules returns the set of module names listed by lsmod.
func LoadedModules(lsmod string) map[string]bool {
	loaded := map[string]bool{}
	scanner := bufio.NewScanner(strings.NewReader(lsmod))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || fields[0] == "Module" {
			continue
		}
		loaded[fields[0]] = true
	}
	return loaded
}
