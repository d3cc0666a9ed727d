// Package hostenv resolves the per-host configuration of the testbed
// machines: interfaces and their addresses, kernel modules, NIC tuning
// profiles and netmap resource sizing.
package hostenv

import (
	"fmt"
	"path"
	"strings"

	"github.com/jinzhu/copier"
	"github.com/samber/lo"

	breverrors "github.com/nmlab/rigctl/pkg/errors"
)

type OSKind int

const (
	OSUnknown OSKind = iota
	Linux
	FreeBSD
)

func (o OSKind) String() string {
	switch o {
	case Linux:
		return "Linux"
	case FreeBSD:
		return "FreeBSD"
	default:
		return "unknown"
	}
}

func (o OSKind) MarshalYAML() (interface{}, error) {
	return o.String(), nil
}

// ParseOS maps `uname -s` output to an OSKind.
func ParseOS(uname string) (OSKind, error) {
	switch strings.TrimSpace(uname) {
	case "Linux":
		return Linux, nil
	case "FreeBSD":
		return FreeBSD, nil
	default:
		return OSUnknown, breverrors.Errorf("unsupported os %q", strings.TrimSpace(uname))
	}
}

// Sizing holds the netmap private-pool parameters.
type Sizing struct {
	IfNum    int `yaml:"if_num"`
	RingNum  int `yaml:"ring_num"`
	BufNum   int `yaml:"buf_num"`
	RingSize int `yaml:"ring_size"`
}

// HostConfig is populated once by Resolver.Resolve and read-only afterwards.
type HostConfig struct {
	Identity string `yaml:"identity"`
	OS       OSKind `yaml:"os"`
	CPUs     int    `yaml:"cpus"`
	User     string `yaml:"user"`
	// Home is the base of user home directories, /home when empty.
	Home string `yaml:"home,omitempty"`

	Workdir       string `yaml:"workdir"`
	LinuxSrc      string `yaml:"linux_src,omitempty"`
	NetmapSrc     string `yaml:"netmap_src"`
	OVSSrc        string `yaml:"ovs_src,omitempty"`
	FreeBSDSrc    string `yaml:"freebsd_src,omitempty"`
	LinuxConfig   string `yaml:"linux_config,omitempty"`
	FreeBSDConfig string `yaml:"freebsd_config,omitempty"`
	FreeBSDTarget string `yaml:"freebsd_target,omitempty"`

	Interfaces    []string          `yaml:"interfaces"`
	Addresses     map[string]string `yaml:"addresses,omitempty"`
	MACs          map[string]string `yaml:"macs,omitempty"`
	PeerMACs      map[string]string `yaml:"peer_macs,omitempty"`
	PeerAddresses map[string]string `yaml:"peer_addresses,omitempty"`

	KernelModules       []string `yaml:"kernel_modules,omitempty"`
	ExtDriverExclusions []string `yaml:"ext_driver_exclusions,omitempty"`
	PreModules          []string `yaml:"pre_modules,omitempty"`

	Profiles []string `yaml:"profiles"`
	Catalog  *Catalog `yaml:"catalog"`

	Sizing      Sizing `yaml:"sizing"`
	MaxRingSize int    `yaml:"max_ring_size"`

	DefaultSrcPort int    `yaml:"default_src_port,omitempty"`
	DefaultDstPort int    `yaml:"default_dst_port,omitempty"`
	NoGit          bool   `yaml:"no_git"`
	NoCLFlush      bool   `yaml:"no_clflush,omitempty"`
	NoPMem         bool   `yaml:"no_pmem,omitempty"`
	DataDir        string `yaml:"data_dir,omitempty"`
}

// HomeDir is the home directory of the login user on the host.
func (c *HostConfig) HomeDir() string {
	if c.User == "root" {
		return "/root"
	}
	base := c.Home
	if base == "" {
		base = "/home"
	}
	return path.Join(base, c.User)
}

// HasInterface reports whether iface is one of the configured interfaces.
func (c *HostConfig) HasInterface(iface string) bool {
	return lo.Contains(c.Interfaces, iface)
}

// Address returns the configured address for iface, if any.
func (c *HostConfig) Address(iface string) (string, bool) {
	if !c.HasInterface(iface) {
		return "", false
	}
	addr, ok := c.Addresses[iface]
	return addr, ok && addr != ""
}

// SourcePath maps a source tree name (linux, netmap, ovs, freebsd) to its
// location on the host.
func (c *HostConfig) SourcePath(tree string) (string, error) {
	var p string
	switch tree {
	case "linux":
		p = c.LinuxSrc
	case "netmap":
		p = c.NetmapSrc
	case "ovs":
		p = c.OVSSrc
	case "freebsd":
		p = c.FreeBSDSrc
	default:
		return "", breverrors.NewValidationError(fmt.Sprintf("unknown source tree %q, expected one of linux, netmap, ovs, freebsd", tree))
	}
	if p == "" {
		return "", breverrors.NewValidationError(fmt.Sprintf("host %s has no %s source path", c.Identity, tree))
	}
	return p, nil
}

// Clone returns a deep copy that callers may modify freely.
func (c *HostConfig) Clone() (*HostConfig, error) {
	out := &HostConfig{}
	if err := copier.CopyWithOption(out, c, copier.Option{DeepCopy: true}); err != nil {
		return nil, breverrors.WrapAndTrace(err)
	}
	out.Catalog = c.Catalog.Clone()
	return out, nil
}

// Narrow returns a copy limited to ifaces, in configuration order. Entries
// of the other interfaces are dropped from the per-interface maps.
func (c *HostConfig) Narrow(ifaces []string) (*HostConfig, error) {
	for _, iface := range ifaces {
		if !c.HasInterface(iface) {
			return nil, breverrors.NewValidationError(fmt.Sprintf("host %s has no interface %s", c.Identity, iface))
		}
	}
	out, err := c.Clone()
	if err != nil {
		return nil, err
	}
	out.Interfaces = lo.Filter(c.Interfaces, func(iface string, _ int) bool {
		return lo.Contains(ifaces, iface)
	})
	for _, m := range out.perInterface() {
		for iface := range m {
			if !out.HasInterface(iface) {
				delete(m, iface)
			}
		}
	}
	return out, nil
}

func (c *HostConfig) perInterface() map[string]map[string]string {
	return map[string]map[string]string{
		"addresses":      c.Addresses,
		"macs":           c.MACs,
		"peer_macs":      c.PeerMACs,
		"peer_addresses": c.PeerAddresses,
	}
}

// Validate checks the invariants every resolved configuration must hold.
func (c *HostConfig) Validate() error {
	if c.CPUs <= 0 {
		return breverrors.Wrap(ErrPrecondition, fmt.Sprintf("host %s: cpu count %d", c.Identity, c.CPUs))
	}
	if dup := lo.FindDuplicates(c.Interfaces); len(dup) > 0 {
		return breverrors.Wrap(ErrInvalidConfig, fmt.Sprintf("host %s: duplicate interfaces %v", c.Identity, dup))
	}
	s := c.Sizing
	if s.IfNum <= 0 || s.RingNum <= 0 || s.BufNum <= 0 || s.RingSize <= 0 {
		return breverrors.Wrap(ErrInvalidConfig, fmt.Sprintf("host %s: sizing must be positive, got %+v", c.Identity, s))
	}
	if c.MaxRingSize > 0 && s.RingSize > c.MaxRingSize {
		return breverrors.Wrap(ErrInvalidConfig, fmt.Sprintf("host %s: ring size %d exceeds %d", c.Identity, s.RingSize, c.MaxRingSize))
	}
	return nil
}

var (
	// ErrPrecondition is returned when resolution is attempted before the
	// host was probed for its OS and CPU count.
	ErrPrecondition  = breverrors.New("host facts not probed")
	ErrInvalidConfig = breverrors.New("invalid host configuration")
)
