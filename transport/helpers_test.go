package transport

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-sbus/internal/pcdsim"
	"github.com/arloliu/go-sbus/sbus"
)

const testTimeout = 200 * time.Millisecond

// newTestDevice returns a simulated PCD for station 0 with registers 100..102 = 100, 200, 300.
func newTestDevice(f sbus.Format) *pcdsim.Device {
	d := pcdsim.New(f, 0)
	d.SetRegister(100, 100)
	d.SetRegister(101, 200)
	d.SetRegister(102, 300)

	return d
}

// connectTransport connects tr and disconnects it on cleanup.
func connectTransport(t *testing.T, tr Transport) {
	t.Helper()

	require.NoError(t, tr.Connect(context.Background()))
	t.Cleanup(func() { _ = tr.Disconnect() })
}

// readRegisters runs one READ_REGISTER exchange for 100..102 and returns the decoded words.
func readRegisters(t *testing.T, tr Transport, c *sbus.Codec) ([]uint32, error) {
	t.Helper()

	req, seq := c.BuildRequest(sbus.CmdReadRegister, 100, 3, nil)

	raw, err := tr.SendAndReceive(context.Background(), req)
	if err != nil {
		return nil, err
	}

	data, err := c.ParseResponse(raw, seq)
	if err != nil {
		return nil, err
	}

	values := make([]uint32, len(data)/4)
	for i := range values {
		values[i] = binary.BigEndian.Uint32(data[i*4:])
	}

	return values, nil
}
