package pcdsim

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-sbus/sbus"
)

func TestDevice_ReadRegisters(t *testing.T) {
	for _, f := range []sbus.Format{sbus.FormatEther, sbus.FormatGeneric} {
		d := New(f, 1)
		d.SetRegister(100, 100)
		d.SetRegister(101, 200)
		d.SetRegister(102, 300)

		c := sbus.NewCodec(f, 1)
		req, seq := c.BuildRequest(sbus.CmdReadRegister, 100, 3, nil)

		data, err := c.ParseResponse(d.Handle(req), seq)
		require.NoError(t, err, f.String())
		require.Len(t, data, 12)
		assert.Equal(t, uint32(200), binary.BigEndian.Uint32(data[4:8]))
	}
}

func TestDevice_WriteAndReadFlag(t *testing.T) {
	for _, f := range []sbus.Format{sbus.FormatEther, sbus.FormatGeneric} {
		d := New(f, 0)
		c := sbus.NewCodec(f, 0)

		req, seq := c.BuildRequest(sbus.CmdWriteFlag, 9, 1, []byte{1})
		_, err := c.ParseResponse(d.Handle(req), seq)
		require.NoError(t, err, f.String())
		assert.True(t, d.Flag(9))

		req, seq = c.BuildRequest(sbus.CmdReadFlag, 8, 10, nil)
		data, err := c.ParseResponse(d.Handle(req), seq)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x02, 0x00}, data)
	}
}

func TestDevice_GenericEightFlags(t *testing.T) {
	d := New(sbus.FormatGeneric, 0)
	for _, addr := range []uint16{1, 3, 5, 7} {
		d.SetFlag(addr, true)
	}

	c := sbus.NewCodec(sbus.FormatGeneric, 0)
	req, seq := c.BuildRequest(sbus.CmdReadFlag, 0, 8, nil)
	require.Len(t, req, 10)

	resp := d.Handle(req)
	require.Len(t, resp, 11)

	data, err := c.ParseResponse(resp, seq)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA}, data)
}

func TestDevice_SilentCases(t *testing.T) {
	d := New(sbus.FormatEther, 3)
	c := sbus.NewCodec(sbus.FormatEther, 4)

	req, _ := c.BuildRequest(sbus.CmdReadRegister, 0, 1, nil)
	assert.Nil(t, d.Handle(req), "other station")

	assert.Nil(t, d.Handle([]byte{1, 2, 3}), "garbage")

	d.DropNext(1)
	c = sbus.NewCodec(sbus.FormatEther, 3)
	req, seq := c.BuildRequest(sbus.CmdReadRegister, 0, 1, nil)
	assert.Nil(t, d.Handle(req))
	_, err := c.ParseResponse(d.Handle(req), seq)
	require.NoError(t, err)
	assert.Equal(t, 4, d.Requests())
}

func TestDevice_CorruptNext(t *testing.T) {
	d := New(sbus.FormatGeneric, 0)
	d.CorruptNext(1)
	c := sbus.NewCodec(sbus.FormatGeneric, 0)

	req, seq := c.BuildRequest(sbus.CmdReadRegister, 0, 1, nil)
	_, err := c.ParseResponse(d.Handle(req), seq)
	require.ErrorIs(t, err, sbus.ErrCRC)
}

func TestDevice_Identity(t *testing.T) {
	d := New(sbus.FormatEther, 0)
	d.SetIdentity(0x010203, "PCD3.M5540", 0x0A, 0x0000000100ABCDEF)

	assert.Equal(t, uint32(0x010203), d.Register(RegFirmware))
	assert.Equal(t, uint32(0x50434433), d.Register(RegProductType)) // "PCD3"
	assert.Equal(t, uint32(0x34300000), d.Register(RegProductType+2))
	assert.Equal(t, uint32(0x00000001), d.Register(RegSerial))
	assert.Equal(t, uint32(0x00ABCDEF), d.Register(RegSerial+1))
}

func TestServer_ProfibusFraming(t *testing.T) {
	d := New(sbus.FormatGeneric, 0)
	d.SetRegister(1, 7)

	srv, err := d.ListenProfibus("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	c := sbus.NewCodec(sbus.FormatGeneric, 0)
	req, seq := c.BuildRequest(sbus.CmdReadRegister, 1, 1, nil)
	_, err = conn.Write(append([]byte{5, byte(len(req))}, req...))
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	require.Greater(t, n, 2)
	assert.Equal(t, byte(5), buf[0])
	assert.Equal(t, byte(n-2), buf[1])

	data, err := c.ParseResponse(buf[2:n], seq)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 7}, data)
}
