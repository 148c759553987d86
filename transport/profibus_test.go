package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-sbus/sbus"
)

func TestProfibus_Exchange(t *testing.T) {
	dev := newTestDevice(sbus.FormatGeneric)

	srv, err := dev.ListenProfibus("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	cfg, err := NewProfibusConfig(srv.Host(), srv.Port(), 5, WithTimeout(testTimeout))
	require.NoError(t, err)

	tr := NewProfibus(cfg)
	connectTransport(t, tr)

	values, err := readRegisters(t, tr, sbus.NewCodec(sbus.FormatGeneric, 0))
	require.NoError(t, err)
	require.Equal(t, []uint32{100, 200, 300}, values)
}

func TestWrapProfibus(t *testing.T) {
	frame, err := WrapProfibus(7, []byte{0xAA, 0xBB, 0xCC})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x07, 0x03, 0xAA, 0xBB, 0xCC}, frame)

	_, err = WrapProfibus(7, make([]byte, 256))
	require.ErrorIs(t, err, sbus.ErrOutOfRange)
	require.ErrorIs(t, err, sbus.ErrValidation)
}

func TestUnwrapProfibus(t *testing.T) {
	telegram, err := UnwrapProfibus([]byte{0x07, 0x03, 0xAA, 0xBB, 0xCC})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, telegram)

	_, err = UnwrapProfibus([]byte{0x07, 0x00})
	require.ErrorIs(t, err, sbus.ErrTooShort)

	size, ok := profibusFrameSize([]byte{0x07, 0x0C})
	assert.True(t, ok)
	assert.Equal(t, 14, size)

	_, ok = profibusFrameSize([]byte{0x07})
	assert.False(t, ok)
}
