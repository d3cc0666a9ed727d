package hostenv

import (
	"path"
	"strconv"
)

const (
	// DefaultRingSize is the netmap private ring size in bytes.
	DefaultRingSize = 18432
	// DefaultMaxRingSize accommodates 2048 slots.
	DefaultMaxRingSize = 33024
	minIfNum           = 16
)

// Back-to-back topology: pair i connects 192.168.(11+i).2 and .3.
var backToBack = [4][2]string{
	{"192.168.11.2/24", "192.168.11.3/24"},
	{"192.168.12.2/24", "192.168.12.3/24"},
	{"192.168.13.2/24", "192.168.13.3/24"},
	{"192.168.14.2/24", "192.168.14.3/24"},
}

var backToBackCluster = [1][2]string{
	{"10.10.1.1/24", "10.10.1.2/24"},
}

// Star topology around 192.168.20.0/24.
var star = [8]string{
	"192.168.20.2/24",
	"192.168.20.3/24",
	"192.168.20.4/24",
	"192.168.20.5/24",
	"192.168.20.6/24",
	"192.168.20.7/24",
	"192.168.20.8/24",
	"192.168.20.9/24",
}

// Traffic generator source and destination ports.
var defaultPorts = [2]int{50000, 60000}

// SizingFor derives the netmap pool parameters from the CPU count.
func SizingFor(cpus int) Sizing {
	ringNum := 4 * cpus
	return Sizing{
		IfNum:    max(minIfNum, 2*cpus),
		RingNum:  ringNum,
		BufNum:   ringNum*2048 + cpus*10000,
		RingSize: DefaultRingSize,
	}
}

func linuxCatalog() *Catalog {
	c := catalogOf(
		profile("common",
			"ip link set {if} up",
			"ip link set {if} promisc on",
			"ethtool -A {if} autoneg off tx off rx off",
		),
		profile("offload",
			"ethtool -K {if} tx on rx on tso on lro on",
			"ethtool -K {if} gso on gro on",
		),
		profile("onload",
			"ethtool -K {if} tx off rx off tso off",
			"ethtool -K {if} lro off",
			"ethtool -K {if} gso off gro off",
		),
		profile("csum",
			"ethtool -K {if} tx-checksum-ip-generic on",
			"ethtool -K {if} tx-checksum-ipv4 on",
		),
		profile("noim",
			"ethtool -C {if} rx-usecs 0 tx-usecs 0",
			"ethtool -C {if} adaptive-rx off adaptive-tx off rx-usecs 0 tx-usecs 0",
		),
		profile("busywait",
			"ethtool -C {if} rx-usecs 1022",
			"ethtool -C {if} adaptive-rx off adaptive-tx off rx-usecs 1022",
		),
		profile("singleq",
			"ethtool -L {if} combined 1",
		),
		profile("mq",
			"ethtool -L {if} combined {queues}",
		),
	)
	for n := 2; n <= 10; n++ {
		name, cmd := fixedQueues(n)
		c.Set(name, MustTemplate(cmd))
	}
	return c
}

func fixedQueues(n int) (string, string) {
	return "mq" + strconv.Itoa(n), "ethtool -L {if} combined " + strconv.Itoa(n)
}

func freebsdCatalog() *Catalog {
	return catalogOf(
		profile("common",
			"ifconfig {if} up",
		),
		profile("onload",
			"ifconfig {if} -lro -tso -txcsum -rxcsum",
		),
		profile("offload",
			"ifconfig {if} lro tso txcsum rxcsum",
		),
		profile("noim",
			"sysctl dev.{dev}.queue0.interrupt_rate=1",
			"sysctl dev.{dev}.rx_itr=1",
		),
	)
}

func applyOSDefaults(c *HostConfig) {
	c.NoGit = true
	c.MaxRingSize = DefaultMaxRingSize
	c.Profiles = []string{"common"}
	switch c.OS {
	case FreeBSD:
		c.FreeBSDSrc = "/usr/src"
		c.FreeBSDConfig = "GENERIC-NODEBUG"
		c.Catalog = freebsdCatalog()
	default:
		c.KernelModules = []string{"e1000", "ixgbe", "i40e"}
		c.ExtDriverExclusions = []string{"e1000", "ixgbe", "i40e"}
		c.PreModules = []string{"mdio"}
		c.LinuxConfig = "def"
		c.Catalog = linuxCatalog()
	}
	c.rebase(path.Join(c.HomeDir(), "deployed"))
}

// rebase moves the work directory and the source trees derived from it.
func (c *HostConfig) rebase(workdir string) {
	c.Workdir = workdir
	c.NetmapSrc = path.Join(workdir, "netmap")
	if c.OS == Linux {
		c.LinuxSrc = path.Join(workdir, "net-next")
		c.OVSSrc = path.Join(workdir, "ovs")
	}
}

// setHomeBase changes the home directory base and re-derives every path below it.
func (c *HostConfig) setHomeBase(base string) {
	c.Home = base
	c.rebase(path.Join(c.HomeDir(), "deployed"))
}
