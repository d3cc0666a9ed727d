package nic

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nmlab/rigctl/pkg/hostenv"
	"github.com/nmlab/rigctl/pkg/remote/remotetest"
)

const interrupts = `           CPU0       CPU1       CPU2       CPU3
   0:         36          0          0          0   IO-APIC   2-edge      timer
  16:          0          0          0          0   IO-APIC  16-fasteoi   ehci_hcd:usb1
  40:         12          0          0          0   PCI-MSI 524288-edge      eth0
  45:        100          0          0          0   PCI-MSI 1048577-edge      eth1-TxRx-1
  44:        100          0          0          0   PCI-MSI 1048576-edge      eth1-TxRx-0
  46:        100          0          0          0   PCI-MSI 1048578-edge      eth1-TxRx-2
  47:        100          0          0          0   PCI-MSI 1048579-edge      eth1-TxRx-3
  48:        100          0          0          0   PCI-MSI 1048580-edge      eth1-TxRx-4
  49:        100          0          0          0   PCI-MSI 1048581-edge      eth1-TxRx-5
  50:          1          0          0          0   PCI-MSI 1048582-edge      eth1
  60:         10          0          0          0   PCI-MSI 2048000-edge      i40e-eth10-TxRx-0
 NMI:          0          0          0          0   Non-maskable interrupts
 LOC:       1234       1234       1234       1234   Local timer interrupts
`

func exampleHost(t *testing.T, cpus int) *hostenv.HostConfig {
	t.Helper()
	catalog := hostenv.NewCatalog()
	catalog.Set("common", hostenv.MustTemplate("ip link set {if} up"))
	catalog.Set("onload", hostenv.MustTemplate("ethtool -K {if} tso off"))
	catalog.Set("mq", hostenv.MustTemplate("ethtool -L {if} combined {queues}"))
	return &hostenv.HostConfig{
		Identity:   "example-host",
		OS:         hostenv.Linux,
		CPUs:       cpus,
		Interfaces: []string{"eth0"},
		Profiles:   []string{"common", "onload"},
		Catalog:    catalog,
		Sizing:     hostenv.SizingFor(cpus),
	}
}

func TestSetupInterfacesExampleHost(t *testing.T) {
	rec := remotetest.New().On("cat /proc/interrupts", interrupts)
	a := NewApplier(rec, zaptest.NewLogger(t))

	report, err := a.SetupInterfaces(context.Background(), exampleHost(t, 8), Options{})
	require.NoError(t, err)

	want := []string{
		"ip link set eth0 up",
		"ethtool -K eth0 tso off",
		"cat /proc/interrupts",
		"echo 1 > /proc/irq/40/smp_affinity",
	}
	if diff := cmp.Diff(want, rec.Lines()); diff != "" {
		t.Fatalf("commands mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, report.Issued)
	assert.Equal(t, 0, report.Failed)
	assert.True(t, rec.Commands[0].Sudo)
	assert.True(t, rec.Commands[0].Warn)
}

func TestApplyProfilesOrder(t *testing.T) {
	r := hostenv.NewResolver(zap.NewNop())
	cfg, err := r.Resolve("c307", hostenv.Linux, 4, "root")
	require.NoError(t, err)

	rec := remotetest.New()
	a := NewApplier(rec, zap.NewNop())
	_, err = a.ApplyProfiles(context.Background(), cfg, Options{
		Interfaces: []string{"enp4s0f0", "enp4s0f1"},
		Profiles:   []string{"common", "onload"},
	})
	require.NoError(t, err)

	common, _ := cfg.Catalog.Lookup("common")
	onload, _ := cfg.Catalog.Lookup("onload")
	perIface := len(common) + len(onload)
	lines := rec.Lines()
	require.Len(t, lines, 2*perIface)
	assert.Equal(t, []string{
		"ip link set enp4s0f0 up",
		"ip link set enp4s0f0 promisc on",
		"ethtool -A enp4s0f0 autoneg off tx off rx off",
		"ethtool -K enp4s0f0 tx off rx off tso off",
		"ethtool -K enp4s0f0 lro off",
		"ethtool -K enp4s0f0 gso off gro off",
	}, lines[:perIface])
	assert.Equal(t, "ip link set enp4s0f1 up", lines[perIface])
}

func TestApplyProfilesSkipsUnknownProfile(t *testing.T) {
	rec := remotetest.New()
	a := NewApplier(rec, zap.NewNop())
	cfg := exampleHost(t, 4)

	report, err := a.ApplyProfiles(context.Background(), cfg, Options{
		Profiles: []string{"common", "doesnotexist", "onload"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ip link set eth0 up", "ethtool -K eth0 tso off"}, rec.Lines())
	assert.Equal(t, []string{"doesnotexist"}, report.SkippedProfiles)
}

func TestApplyProfilesToleratesFailures(t *testing.T) {
	rec := remotetest.New().Fail("ip link set", 1)
	a := NewApplier(rec, zap.NewNop())

	report, err := a.ApplyProfiles(context.Background(), exampleHost(t, 4), Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Issued)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, "ethtool -K eth0 tso off", rec.Lines()[1])
}

func TestApplyProfilesQueueCount(t *testing.T) {
	ctx := context.Background()
	cfg := exampleHost(t, 6)

	rec := remotetest.New()
	_, err := NewApplier(rec, zap.NewNop()).ApplyProfiles(ctx, cfg, Options{Profiles: []string{"mq"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"ethtool -L eth0 combined 6"}, rec.Lines())

	rec = remotetest.New()
	_, err = NewApplier(rec, zap.NewNop()).ApplyProfiles(ctx, cfg, Options{Profiles: []string{"mq"}, Queues: mo.Some(2)})
	require.NoError(t, err)
	assert.Equal(t, []string{"ethtool -L eth0 combined 2"}, rec.Lines())

	_, err = NewApplier(rec, zap.NewNop()).ApplyProfiles(ctx, cfg, Options{Queues: mo.Some(0)})
	assert.Error(t, err)
}

func TestApplyProfilesUnusedQueueCount(t *testing.T) {
	ctx := context.Background()
	cfg := exampleHost(t, 4)
	core, logs := observer.New(zap.InfoLevel)

	_, err := NewApplier(remotetest.New(), zap.New(core)).ApplyProfiles(ctx, cfg, Options{Profiles: []string{"common"}, Queues: mo.Some(2)})
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("queue count not used by the selected profiles").Len())

	_, err = NewApplier(remotetest.New(), zap.New(core)).ApplyProfiles(ctx, cfg, Options{Profiles: []string{"mq"}, Queues: mo.Some(2)})
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("queue count not used by the selected profiles").Len())
}

func TestApplyProfilesIsRepeatable(t *testing.T) {
	ctx := context.Background()
	cfg := exampleHost(t, 4)

	first := remotetest.New()
	_, err := NewApplier(first, zap.NewNop()).ApplyProfiles(ctx, cfg, Options{})
	require.NoError(t, err)

	second := remotetest.New()
	_, err = NewApplier(second, zap.NewNop()).ApplyProfiles(ctx, cfg, Options{})
	require.NoError(t, err)
	assert.Equal(t, first.Lines(), second.Lines())
}

func TestApplyProfilesStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := remotetest.New()
	_, err := NewApplier(rec, zap.NewNop()).ApplyProfiles(ctx, exampleHost(t, 4), Options{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.Lines())
}

func TestFreeBSDSysctlProfile(t *testing.T) {
	r := hostenv.NewResolver(zap.NewNop())
	cfg, err := r.Resolve("c237", hostenv.FreeBSD, 8, "root")
	require.NoError(t, err)

	rec := remotetest.New()
	_, err = NewApplier(rec, zap.NewNop()).ApplyProfiles(context.Background(), cfg, Options{
		Interfaces: []string{"ixl2"},
		Profiles:   []string{"noim"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"sysctl dev.ixl.2.queue0.interrupt_rate=1",
		"sysctl dev.ixl.2.rx_itr=1",
	}, rec.Lines())
}

func TestReportMerge(t *testing.T) {
	a := Report{Issued: 2, Failed: 1, SkippedProfiles: []string{"off"}}
	b := Report{Issued: 3, SkippedProfiles: []string{"off", "x"}}
	assert.Equal(t, Report{Issued: 5, Failed: 1, SkippedProfiles: []string{"off", "x"}}, a.Merge(b))
}
