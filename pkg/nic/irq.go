package nic

import (
	"bufio"
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	breverrors "github.com/nmlab/rigctl/pkg/errors"
	"github.com/nmlab/rigctl/pkg/hostenv"
	"github.com/nmlab/rigctl/pkg/remote"
)

// queueIRQ is one interrupt line serving a queue of an interface.
type queueIRQ struct {
	IRQ   int
	Queue int
}

// AssignIRQAffinity pins queue i of every interface to core i mod CPUs.
// Interfaces without per-queue interrupts fall back to their single line.
func (a Applier) AssignIRQAffinity(ctx context.Context, cfg *hostenv.HostConfig, ifaces []string) (Report, error) {
	var report Report
	if cfg.CPUs <= 0 {
		return report, breverrors.NewValidationError(fmt.Sprintf("cpu count must be positive, got %d", cfg.CPUs))
	}

	listing := "cat /proc/interrupts"
	if cfg.OS == hostenv.FreeBSD {
		listing = "vmstat -ia"
	}
	res, err := a.exec.Run(ctx, remote.Query(listing))
	if err != nil {
		return report, breverrors.WrapAndTrace(err)
	}

	for _, iface := range a.interfaces(cfg, ifaces) {
		var irqs []queueIRQ
		if cfg.OS == hostenv.FreeBSD {
			irqs = freebsdQueueIRQs(res.Stdout, iface)
		} else {
			irqs = linuxQueueIRQs(res.Stdout, iface)
		}
		if len(irqs) == 0 {
			a.log.Info("no interrupts found for interface", zap.String("interface", iface))
			continue
		}
		for _, q := range irqs {
			core := q.Queue % cfg.CPUs
			var line string
			if cfg.OS == hostenv.FreeBSD {
				line = fmt.Sprintf("cpuset -l %d -x %d", core, q.IRQ)
			} else {
				line = fmt.Sprintf("echo %s > /proc/irq/%d/smp_affinity", CPUMask(core), q.IRQ)
			}
			if err := a.run(ctx, remote.Sudo(line).Tolerant(), &report); err != nil {
				return report, err
			}
		}
	}
	return report, nil
}

type interruptLine struct {
	irq  int
	name string
	text string
}

// parseInterrupts reads the numbered lines of /proc/interrupts. The action
// name is the last field.
func parseInterrupts(text string) []interruptLine {
	var out []interruptLine
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		irq, err := strconv.Atoi(strings.TrimSuffix(fields[0], ":"))
		if err != nil || !strings.HasSuffix(fields[0], ":") {
			continue
		}
		out = append(out, interruptLine{irq: irq, name: fields[len(fields)-1], text: scanner.Text()})
	}
	return out
}

func linuxQueueIRQs(text string, iface string) []queueIRQ {
	lines := parseInterrupts(text)
	queueRe := regexp.MustCompile(`(?:^|-)` + regexp.QuoteMeta(iface) + `-TxRx-(\d+)$`)

	var irqs []queueIRQ
	for _, l := range lines {
		m := queueRe.FindStringSubmatch(l.name)
		if m == nil {
			continue
		}
		q, _ := strconv.Atoi(m[1])
		irqs = append(irqs, queueIRQ{IRQ: l.irq, Queue: q})
	}
	if len(irqs) == 0 {
		for _, l := range lines {
			if l.name == iface {
				irqs = append(irqs, queueIRQ{IRQ: l.irq})
			}
		}
	}
	sortQueues(irqs)
	return irqs
}

// freebsdQueueIRQs reads `vmstat -ia` lines such as "irq264: ix0:rxq3  10  0".
// Receive and transmit lines carry their own queue index.
func freebsdQueueIRQs(text string, iface string) []queueIRQ {
	queueRe := regexp.MustCompile(`^irq(\d+):\s+` + regexp.QuoteMeta(iface) + `:(?:rxq|txq|que\s?)(\d+)\b`)
	singleRe := regexp.MustCompile(`^irq(\d+):\s+` + regexp.QuoteMeta(iface) + `(?::\S*)?\s`)

	var irqs, single []queueIRQ
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if m := queueRe.FindStringSubmatch(line); m != nil {
			irq, _ := strconv.Atoi(m[1])
			q, _ := strconv.Atoi(m[2])
			irqs = append(irqs, queueIRQ{IRQ: irq, Queue: q})
			continue
		}
		if m := singleRe.FindStringSubmatch(line); m != nil {
			irq, _ := strconv.Atoi(m[1])
			single = append(single, queueIRQ{IRQ: irq})
		}
	}
	if len(irqs) == 0 {
		irqs = single
	}
	sortQueues(irqs)
	return irqs
}

func sortQueues(irqs []queueIRQ) {
	sort.SliceStable(irqs, func(i, j int) bool {
		if irqs[i].Queue != irqs[j].Queue {
			return irqs[i].Queue < irqs[j].Queue
		}
		return irqs[i].IRQ < irqs[j].IRQ
	})
}

// CPUMask renders the smp_affinity mask selecting a single core, in the
// comma separated 32-bit groups the kernel expects.
func CPUMask(core int) string {
	groups := []string{fmt.Sprintf("%x", uint32(1)<<(core%32))}
	for i := 0; i < core/32; i++ {
		groups = append(groups, "00000000")
	}
	return strings.Join(groups, ",")
}
