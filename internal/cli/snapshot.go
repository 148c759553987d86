package cli

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/arloliu/go-sbus/coordinator"
)

// valueRow is one polled value ready for display.
type valueRow struct {
	object  string
	address int
	value   string
}

// snapshotRows flattens snap into rows ordered by bucket, then address.
func snapshotRows(snap *coordinator.Snapshot) []valueRow {
	rows := make([]valueRow, 0, len(snap.Registers)+len(snap.Timers)+len(snap.Counters)+len(snap.Flags))

	words := func(object string, m map[int]uint32) {
		for _, addr := range sortedKeys(m) {
			rows = append(rows, valueRow{object, addr, strconv.FormatUint(uint64(m[addr]), 10)})
		}
	}
	words("R", snap.Registers)
	words("T", snap.Timers)
	words("C", snap.Counters)

	for _, addr := range sortedKeys(snap.Flags) {
		rows = append(rows, valueRow{"F", addr, onOff(snap.Flags[addr])})
	}

	return rows
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	return keys
}

// formatSnapshot renders snap on one line: "device time R0=1 R1=2 F0=on".
func formatSnapshot(snap *coordinator.Snapshot) string {
	var b strings.Builder

	b.WriteString(snap.Device)
	b.WriteByte(' ')
	b.WriteString(snap.Time.Format("15:04:05"))
	for _, r := range snapshotRows(snap) {
		fmt.Fprintf(&b, " %s%d=%s", r.object, r.address, r.value)
	}

	return b.String()
}

// snapshotPrinter is a coordinator.Sink writing every outcome as it arrives.
// Several coordinators may share one printer.
type snapshotPrinter struct {
	g *globalFlags

	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer
}

var _ coordinator.Sink = (*snapshotPrinter)(nil)

func (p *snapshotPrinter) OnUpdate(snap *coordinator.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	_ = p.g.render(p.out, snap, func(w io.Writer) error {
		_, err := fmt.Fprintln(w, formatSnapshot(snap))
		return err
	})
}

func (p *snapshotPrinter) OnError(device string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.errOut, "%s: %v\n", device, err)
}
