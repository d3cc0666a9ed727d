package hostenv

import (
	"path"

	"github.com/samber/mo"
)

// Override adjusts the defaults for one known host. Overrides run after the
// OS defaults and the CPU-derived sizing have been applied.
type Override func(c *HostConfig)

// SizingOverride replaces individual sizing parameters with literals.
type SizingOverride struct {
	IfNum    mo.Option[int]
	RingNum  mo.Option[int]
	BufNum   mo.Option[int]
	RingSize mo.Option[int]
}

func (s *Sizing) apply(o SizingOverride) {
	s.IfNum = o.IfNum.OrElse(s.IfNum)
	s.RingNum = o.RingNum.OrElse(s.RingNum)
	s.BufNum = o.BufNum.OrElse(s.BufNum)
	s.RingSize = o.RingSize.OrElse(s.RingSize)
}

func rings(ringNum, bufNum int) SizingOverride {
	return SizingOverride{RingNum: mo.Some(ringNum), BufNum: mo.Some(bufNum)}
}

// byIndex builds a per-interface map from values matched to ifaces by position.
func byIndex(ifaces []string, values ...string) map[string]string {
	m := make(map[string]string, len(values))
	for i, v := range values {
		if i >= len(ifaces) || v == "" {
			continue
		}
		m[ifaces[i]] = v
	}
	return m
}

func srcDst(c *HostConfig, src, dst int) {
	c.DefaultSrcPort = defaultPorts[src]
	c.DefaultDstPort = defaultPorts[dst]
}

func vmCatalog() *Catalog {
	return catalogOf(
		profile("common",
			"ip link set {if} up",
			"ethtool -C {if} rx-usecs 1",
			"ethtool -A {if} autoneg off tx off rx off",
		),
		profile("offload",
			"ethtool -K {if} tx on rx on tso on",
			"ethtool -K {if} gso on gro on",
		),
		profile("onload",
			"ethtool -K {if} tx off rx off tso off",
			"ethtool -K {if} gso off gro off",
		),
	)
}

func bareFreeBSDCatalog() *Catalog {
	return catalogOf(profile("common", "ifconfig {if} up"))
}

// The m1/m2 pair carries swapped interrupt moderation settings.
func mCatalog(common ...string) *Catalog {
	return catalogOf(
		profile("common", common...),
		profile("offload",
			"ethtool -A {if} autoneg off tx off rx off",
			"ethtool -K {if} tx on rx on tso on lro on",
			"ethtool -K {if} gso on gro on",
		),
		profile("onload",
			"ethtool -A {if} autoneg off tx off rx off",
			"ethtool -K {if} tx off rx off tso off lro off",
			"ethtool -K {if} gso off gro off",
		),
		profile("noim",
			"ethtool -C {if} rx-usecs 0",
		),
	)
}

// hostTable is the closed set of known testbed machines.
var hostTable = map[string]Override{
	"vm0": func(c *HostConfig) {
		c.Interfaces = []string{"em1", "em2"}
		c.Addresses = map[string]string{"em1": "172.16.176.65/24", "em2": "172.16.177.65/24"}
		c.KernelModules = []string{"e1000"}
		c.FreeBSDSrc = "/usr/src"
		c.Catalog = bareFreeBSDCatalog()
	},
	"vm1": func(c *HostConfig) {
		c.Interfaces = []string{"eth1", "eth2"}
		c.Addresses = map[string]string{"eth1": "172.16.176.66/24", "eth2": "172.16.177.66/24"}
		c.KernelModules = []string{"e1000", "ixgbe"}
		c.PreModules = []string{"mdio"}
		c.FreeBSDSrc = path.Join(c.Workdir, "freebsd")
		c.Catalog = vmCatalog()
	},
	"nina": func(c *HostConfig) {
		c.Interfaces = []string{"eth2", "eth3"}
		c.KernelModules = []string{"ixgbe"}
		c.MACs = byIndex(c.Interfaces, "90:e2:ba:09:a7:78", "90:e2:ba:09:a7:79")
		c.PeerMACs = byIndex(c.Interfaces, "90:e2:ba:09:a7:78", "90:e2:ba:09:a7:79")
		c.Profiles = []string{"common", "onload", "noim"}
	},
	"nino": func(c *HostConfig) {
		c.Interfaces = []string{"eth2", "eth3"}
		c.KernelModules = []string{"ixgbe"}
		c.MACs = byIndex(c.Interfaces, "b4:96:91:15:33:36", "90:e2:ba:93:a4:b5")
		c.PeerMACs = byIndex(c.Interfaces, "90:e2:ba:93:a4:b5", "b4:96:91:15:33:36")
		c.Profiles = []string{"common", "onload", "noim"}
	},
	"c230": func(c *HostConfig) {
		c.Interfaces = []string{"enp4s0f0", "enp4s0f1"}
		c.KernelModules = []string{"ixgbe"}
		c.MACs = byIndex(c.Interfaces, "00:1b:21:ce:f5:1c", "00:1b:21:ce:f5:1d")
		c.PeerMACs = byIndex(c.Interfaces, "a0:36:9f:52:2a:b4", "a0:36:9f:52:2a:b6")
		c.Addresses = byIndex(c.Interfaces, backToBack[0][0], backToBack[1][0])
		c.PeerAddresses = byIndex(c.Interfaces, backToBack[0][0])
		srcDst(c, 0, 1)
		c.Profiles = []string{"common", "offload", "noim"}
	},
	"c237": func(c *HostConfig) {
		if c.OS == FreeBSD {
			c.Interfaces = []string{"ix0", "ix1", "ixl2", "ixl3"}
			c.FreeBSDConfig = "GENERIC-NODEBUG"
		} else {
			c.Interfaces = []string{"enp23s0f0", "enp23s0f1", "enp179s0f0", "enp179s0f1"}
			c.KernelModules = []string{"ixgbe", "i40e"}
			c.ExtDriverExclusions = []string{"ixgbe", "i40e"}
		}
		c.MACs = byIndex(c.Interfaces, "a0:36:9f:52:2a:b4", "a0:36:9f:52:2a:b6")
		c.PeerMACs = byIndex(c.Interfaces, "a0:36:9f:23:ac:54", "a0:36:9f:23:ac:56")
		c.Addresses = byIndex(c.Interfaces, backToBack[0][1], backToBack[2][1], backToBack[1][1], backToBack[3][1])
		c.PeerAddresses = byIndex(c.Interfaces, backToBack[0][0])
		srcDst(c, 1, 0)
		c.Profiles = []string{"common", "onload", "csum", "singleq", "noim"}
		c.Sizing.apply(rings(160, 200000))
		c.DataDir = "/mnt/nvme/dgraph"
	},
	"c307": func(c *HostConfig) {
		c.KernelModules = []string{"ixgbe", "i40e"}
		c.ExtDriverExclusions = []string{"ixgbe", "i40e"}
		c.Interfaces = []string{"enp4s0f0", "enp4s0f1", "enp3s0f0", "enp3s0f1"}
		c.MACs = byIndex(c.Interfaces, "a0:36:9f:23:ac:54", "a0:36:9f:23:ac:56", "3c:fd:fe:a9:4e:24", "3c:fd:fe:a9:4e:25")
		c.PeerMACs = byIndex(c.Interfaces, "a0:36:9f:70:70:98", "a0:36:9f:70:70:9a", "3c:fd:fe:a9:4d:cc", "3c:fd:fe:a9:4d:cd")
		c.Addresses = byIndex(c.Interfaces, backToBack[0][0], backToBack[2][0], backToBack[1][0], backToBack[3][0])
		c.PeerAddresses = byIndex(c.Interfaces, backToBack[0][1], star[0])
		srcDst(c, 0, 1)
		c.Profiles = []string{"common", "offload", "noim"}
		c.Sizing.apply(rings(320, 400000))
		c.DataDir = "/mnt/nvme/dgraph"
	},
	"c309": func(c *HostConfig) {
		c.KernelModules = []string{"ixgbe"}
		c.Interfaces = []string{"enp4s0f0", "enp4s0f1"}
		c.MACs = byIndex(c.Interfaces, "a0:36:9f:31:fa:a0", "a0:36:9f:31:fa:a2")
		c.Addresses = byIndex(c.Interfaces, backToBack[0][0], star[3])
		c.PeerAddresses = byIndex(c.Interfaces, "", star[0])
		c.Profiles = []string{"common", "offload", "noim"}
		c.Sizing.apply(rings(320, 200000))
	},
	"c416": func(c *HostConfig) {
		c.KernelModules = []string{"ixgbe"}
		c.Interfaces = []string{"enp1s0f0", "enp1s0f1"}
		c.MACs = byIndex(c.Interfaces, "a0:36:9f:70:9d:a4", "a0:36:9f:70:9d:a6")
		c.Addresses = byIndex(c.Interfaces, backToBack[0][0], backToBack[1][0])
		c.PeerAddresses = byIndex(c.Interfaces, backToBack[0][1], backToBack[0][0])
		c.Profiles = []string{"common", "onload", "noim", "singleq"}
		c.Sizing.apply(rings(320, 200000))
	},
	"c415": func(c *HostConfig) {
		c.KernelModules = []string{"ixgbe"}
		c.Interfaces = []string{"enp1s0f0", "enp1s0f1"}
		c.MACs = byIndex(c.Interfaces, "a0:36:9f:23:a4:30", "a0:36:9f:23:a4:32")
		c.Profiles = []string{"common", "onload", "noim", "singleq"}
		c.Sizing.apply(rings(320, 200000))
	},
	"c414": func(c *HostConfig) {
		c.rebase(path.Join(c.HomeDir(), "deployed2"))
		c.KernelModules = []string{"ixgbe"}
		c.Interfaces = []string{"enp1s0f0", "enp1s0f1"}
		c.MACs = byIndex(c.Interfaces, "a0:36:9f:23:ac:2c", "a0:36:9f:23:ac:2e")
		c.Addresses = byIndex(c.Interfaces, backToBack[1][1], backToBack[0][1])
		c.Profiles = []string{"common", "onload", "noim", "singleq"}
		c.Sizing.apply(rings(320, 200000))
	},
	"c402": func(c *HostConfig) {
		c.KernelModules = []string{"ixgbe"}
		c.Interfaces = []string{"enp8s0f0", "enp8s0f1"}
		c.MACs = byIndex(c.Interfaces, "a0:36:9f:70:70:98", "a0:36:9f:70:70:9a")
		c.PeerMACs = byIndex(c.Interfaces, "a0:36:9f:23:ac:54", "a0:36:9f:23:ac:56")
		c.Addresses = byIndex(c.Interfaces, backToBack[0][1], star[0])
		c.PeerAddresses = byIndex(c.Interfaces, backToBack[0][0])
		srcDst(c, 1, 0)
		c.Profiles = []string{"common", "onload", "csum", "singleq", "busywait"}
		c.Sizing.apply(SizingOverride{
			RingNum:  mo.Some(160),
			BufNum:   mo.Some(640000),
			RingSize: mo.Some(DefaultMaxRingSize),
		})
	},
	"c404": func(c *HostConfig) {
		c.Interfaces = []string{"eth2"}
		c.MACs = map[string]string{"eth2": "a0:36:9f:71:67:3c", "eth3": "a0:36:9f:71:67:3e", "eth1": "0c:c4:7a:31:ed:ab"}
		c.PeerMACs = map[string]string{"eth2": "a0:36:9f:71:67:04", "eth3": "a0:36:9f:71:67:06"}
		c.Addresses = map[string]string{"eth2": backToBack[0][0], "eth3": backToBack[1][0]}
		c.PeerAddresses = map[string]string{"eth2": backToBack[0][1], "eth3": backToBack[1][1]}
		srcDst(c, 0, 1)
		c.Profiles = []string{"common", "onload", "csum", "busywait", "singleq"}
		c.Sizing.apply(rings(256, 400000))
	},
	"c411": func(c *HostConfig) {
		c.Interfaces = []string{"enp1s0f0"}
		c.MACs = map[string]string{"enp1s0f0": "a0:36:9f:71:67:04", "enp1s0f1": "a0:36:9f:71:67:06", "eno2": "0c:c4:7a:77:94:c3"}
		c.PeerMACs = map[string]string{"enp1s0f0": "a0:36:9f:70:70:98", "enp1s0f1": "a0:36:9f:70:70:9a"}
		c.Addresses = map[string]string{"enp1s0f0": backToBack[0][0], "enp1s0f1": backToBack[1][0]}
		c.PeerAddresses = map[string]string{"enp1s0f0": backToBack[0][1], "enp1s0f1": backToBack[1][1]}
		srcDst(c, 0, 1)
		// "off" has no catalog entry and is skipped when applied.
		c.Profiles = []string{"common", "off", "csum", "noim"}
		c.Sizing.apply(rings(128, 200000))
	},
	"c412": func(c *HostConfig) {
		c.Interfaces = []string{"enp1s0f0", "enp1s0f1", "eno2"}
		c.MACs = byIndex(c.Interfaces, "a0:36:9f:70:9e:44", "a0:36:9f:70:9e:46", "0c:c4:7a:77:94:cf")
		c.PeerMACs = byIndex(c.Interfaces, "a0:36:9f:71:67:04", "a0:36:9f:71:67:06")
		c.Addresses = byIndex(c.Interfaces, backToBack[0][1], backToBack[1][1])
		c.PeerAddresses = byIndex(c.Interfaces, backToBack[0][0], backToBack[1][0])
	},
	"capoccino.netgroup.uniroma2.it": func(c *HostConfig) {
		c.Interfaces = []string{"eth2", "eth3"}
		c.Profiles = []string{"common", "onload", "singleq"}
	},
	"bach": func(c *HostConfig) {
		c.LinuxSrc = ""
		c.KernelModules = []string{"ixgbe"}
		c.Interfaces = []string{"enp1s0f0", "enp1s0f1"}
		c.MACs = byIndex(c.Interfaces, "00:1b:21:80:ea:18", "00:1b:21:80:ea:19")
		c.Addresses = byIndex(c.Interfaces, "192.168.1.2")
		srcDst(c, 1, 0)
		c.Profiles = []string{"common", "onload", "csum", "singleq", "busywait"}
	},
	"m1": func(c *HostConfig) {
		c.Interfaces = []string{"enp6s0f0"}
		c.Addresses = map[string]string{"enp6s0f0": "10.0.0.2/24", "enp6s0f1": "10.0.1.2/24"}
		c.MACs = map[string]string{"enp6s0f0": "90:e2:ba:2b:3a:00", "enp6s0f1": "90:e2:ba:2b:3a:01"}
		c.PeerAddresses = map[string]string{"enp6s0f0": "10.0.0.3", "enp6s0f1": "10.0.1.3"}
		c.PeerMACs = map[string]string{"enp6s0f0": "90:e2:ba:39:39:50", "enp6s0f1": "90:e2:ba:39:39:51"}
		c.KernelModules = []string{"ixgbe"}
		c.FreeBSDSrc = path.Join(c.Workdir, "freebsd")
		c.Catalog = mCatalog(
			"ip link set {if} up",
			"ethtool -C {if} rx-usecs 0",
		)
	},
	"m2": func(c *HostConfig) {
		c.Interfaces = []string{"enp6s0f0"}
		c.Addresses = map[string]string{"enp6s0f0": "10.0.0.3/24", "enp6s0f1": "10.0.1.3/24"}
		c.MACs = map[string]string{"enp6s0f0": "90:e2:ba:39:39:50", "enp6s0f1": "90:e2:ba:39:39:51"}
		c.PeerAddresses = map[string]string{"enp6s0f0": "10.0.0.2", "enp6s0f1": "10.0.1.2"}
		c.PeerMACs = map[string]string{"enp6s0f0": "90:e2:ba:2b:3a:00", "enp6s0f1": "90:e2:ba:2b:3a:01"}
		c.KernelModules = []string{"ixgbe"}
		c.FreeBSDSrc = path.Join(c.Workdir, "freebsd")
		c.Catalog = mCatalog(
			"ip link set {if} up",
			"ethtool -C {if} rx-usecs 1000",
			"ethtool -L {if} combined 1",
		)
	},
	"laurel": func(c *HostConfig) {
		c.NoGit = false
		c.FreeBSDSrc = path.Join(c.Workdir, "freebsd")
		c.FreeBSDConfig = "MUCLAB"
		c.FreeBSDTarget = path.Join("/usr/local/muclab/image", c.User, "freebsd")
	},
	"netmap": func(c *HostConfig) {
		c.Interfaces = []string{"ix0", "ix1"}
		c.Addresses = map[string]string{"ix0": "10.10.0.1/24", "ix1": "10.10.2.1"}
		c.MACs = map[string]string{"ix0": "00:1b:21:d9:17:00", "ix1": "00:1b:21:d9:17:01"}
		c.FreeBSDConfig = "GENERIC"
		c.Profiles = []string{"common", "onload"}
		c.FreeBSDSrc = path.Join(c.Workdir, "freebsd")
	},
	"netmap3": func(c *HostConfig) {
		c.Interfaces = []string{"em1", "em2"}
		c.Addresses = map[string]string{"em1": "10.0.3.2/24", "em2": "10.0.5.2/24"}
		c.KernelModules = []string{"e1000"}
		c.FreeBSDSrc = "/usr/src"
		c.FreeBSDConfig = "GENERIC-NODEBUG"
		c.Catalog = bareFreeBSDCatalog()
	},
	"va0": func(c *HostConfig) {
		c.Interfaces = []string{"em0", "em1", "em2"}
		c.Addresses = map[string]string{"em0": backToBack[0][0], "em1": backToBack[1][0], "em2": "192.168.18.2"}
		c.MACs = map[string]string{"em0": "08:00:27:ad:47:06", "em1": "08:00:27:6c:66:20"}
		c.PeerAddresses = map[string]string{"em0": backToBack[0][1], "em1": backToBack[1][1]}
		c.PeerMACs = map[string]string{"em0": "08:00:27:24:fb:ba", "em1": "08:00:27:dc:da:59"}
		c.KernelModules = []string{"e1000", "ixgbe", "i40e"}
		srcDst(c, 0, 1)
		c.FreeBSDConfig = "GENERIC"
		c.Profiles = []string{"common", "onload"}
	},
	"vp": func(c *HostConfig) {
		c.Interfaces = []string{"eth1"}
		c.Addresses = map[string]string{"eth1": "192.168.15.15/24"}
		c.MACs = map[string]string{"eth1": "08:00:27:75:03:24"}
		srcDst(c, 1, 0)
		c.KernelModules = []string{"e1000"}
		c.Profiles = []string{"common", "onload", "csum"}
		c.NoCLFlush = true
	},
	"va1": virtualBoxPair,
	"va2": virtualBoxPair,
	"va3": func(c *HostConfig) {
		c.Interfaces = []string{"eth1"}
		c.Addresses = map[string]string{"eth1": "192.168.11.4/24"}
		c.MACs = map[string]string{"eth1": "08:00:27:0f:15:fd"}
		srcDst(c, 1, 0)
		c.KernelModules = []string{"e1000", "i40e", "ixgbe"}
		c.ExtDriverExclusions = []string{"i40e", "ixgbe"}
		c.Profiles = []string{"common", "onload", "csum"}
		c.NoCLFlush = true
	},
	"localhost": func(c *HostConfig) {
		c.KernelModules = []string{"e1000", "ixgbe"}
		c.PreModules = []string{"mdio"}
		c.LinuxSrc = path.Join(c.HomeDir(), "net-next")
		c.FreeBSDSrc = path.Join(c.Workdir, "freebsd")
		c.Catalog = vmCatalog()
		c.DataDir = path.Join(c.HomeDir(), "dgraphdata")
	},
	"node0": func(c *HostConfig) {
		c.setHomeBase("/users")
		c.LinuxSrc = path.Join(c.HomeDir(), "workspace/linux-4.14")
		c.Interfaces = []string{"enp6s0f0"}
		c.Addresses = byIndex(c.Interfaces, "10.10.1.2/24")
		c.KernelModules = []string{"ixgbe"}
		c.ExtDriverExclusions = []string{"ixgbe"}
		c.Profiles = []string{"common", "onload", "csum", "singleq", "noim"}
		c.Sizing.apply(SizingOverride{
			RingNum:  mo.Some(160),
			BufNum:   mo.Some(640000),
			RingSize: mo.Some(DefaultMaxRingSize),
		})
	},
	"cl0": cloudLab,
	"cl1": cloudLab,
	"cl2": cloudLab,
}

func virtualBoxPair(c *HostConfig) {
	c.LinuxConfig = "cur"
	c.Interfaces = []string{"eth1", "eth2", "eth3"}
	c.Addresses = map[string]string{"eth1": backToBack[0][1], "eth2": backToBack[1][1], "eth3": "192.168.18.4/24"}
	srcDst(c, 1, 0)
	c.KernelModules = []string{"i40e", "e1000"}
	c.ExtDriverExclusions = []string{"i40e", "e1000"}
	c.Profiles = []string{"common", "onload", "csum"}
	c.NoCLFlush = true
	c.Sizing.apply(SizingOverride{
		IfNum:    mo.Some(2),
		RingNum:  mo.Some(2),
		BufNum:   mo.Some(16),
		RingSize: mo.Some(DefaultMaxRingSize),
	})
}

func cloudLab(c *HostConfig) {
	c.setHomeBase("/users")
	c.LinuxConfig = "cur"
	c.NoPMem = true
	c.Interfaces = []string{"ens1f0"}
	if c.Identity == "cl2" {
		c.Interfaces = []string{"enp6s0f0", "enp6s0f1"}
	}
	c.Addresses = byIndex(c.Interfaces, backToBackCluster[0][0])
	if c.Identity == "cl1" {
		c.Addresses = byIndex(c.Interfaces, backToBackCluster[0][1])
	}
	c.Profiles = []string{"common", "offload", "csum", "mq", "noim"}
	if c.Identity == "cl0" {
		c.Profiles = []string{"common", "onload", "csum", "singleq", "noim"}
	}
	if c.Identity == "cl0" || c.Identity == "cl2" {
		c.Sizing.apply(SizingOverride{
			IfNum:    mo.Some(32),
			RingNum:  mo.Some(320),
			BufNum:   mo.Some(400000),
			RingSize: mo.Some(DefaultMaxRingSize),
		})
	}
}
