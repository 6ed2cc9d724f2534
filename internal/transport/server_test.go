package transport

import (
	"encoding/binary"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	mbclient "github.com/goburrow/modbus"
	"github.com/simonvetter/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seikosantana/modbus-sim/internal/registers"
	"github.com/seikosantana/modbus-sim/internal/testutil"
)

func startServer(t *testing.T, bank *registers.Bank) (*Server, int) {
	t.Helper()
	port := testutil.FreePort(t)
	srv := NewServer(bank,
		WithTimeout(5*time.Second),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, srv.Start("127.0.0.1", port))
	t.Cleanup(func() {
		if srv.Listening() {
			_ = srv.Stop()
		}
	})
	testutil.WaitForPort(t, port, 2*time.Second)
	return srv, port
}

func newClient(t *testing.T, port int) *modbus.ModbusClient {
	t.Helper()
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     URL("127.0.0.1", port),
		Timeout: 2 * time.Second,
	})
	require.NoError(t, err)
	require.NoError(t, client.Open())
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newGoburrowClient(t *testing.T, port int) mbclient.Client {
	t.Helper()
	h := mbclient.NewTCPClientHandler(net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	h.Timeout = 2 * time.Second
	h.SlaveId = 1
	require.NoError(t, h.Connect())
	t.Cleanup(func() { _ = h.Close() })
	return mbclient.NewClient(h)
}

func TestURL(t *testing.T) {
	assert.Equal(t, "tcp://0.0.0.0:502", URL("0.0.0.0", 502))
	assert.Equal(t, "tcp://[::1]:1502", URL("::1", 1502))
}

func TestServer_ReadsBank(t *testing.T) {
	bank := registers.NewBank(64)
	require.NoError(t, bank.Write(1, 3))
	require.NoError(t, bank.Write(2, -2))
	_, port := startServer(t, bank)

	client := newClient(t, port)
	got, err := client.ReadRegisters(1, 2, modbus.HOLDING_REGISTER)

	require.NoError(t, err)
	assert.Equal(t, []uint16{3, 0xfffe}, got)
}

func TestServer_WritesReachBank(t *testing.T) {
	bank := registers.NewBank(64)
	srv, port := startServer(t, bank)

	client := newClient(t, port)
	require.NoError(t, client.WriteRegister(5, 1234))
	require.NoError(t, client.WriteRegisters(10, []uint16{1, 2, 3}))

	v, err := bank.Read(5)
	require.NoError(t, err)
	assert.Equal(t, int16(1234), v)

	vals, err := bank.ReadRange(10, 3)
	require.NoError(t, err)
	assert.Equal(t, []uint16{1, 2, 3}, vals)

	assert.Equal(t, uint64(2), srv.Counter(CntWrites))
	assert.Same(t, bank, srv.Bank())
}

func TestServer_GoburrowClientSeesBigEndianBytes(t *testing.T) {
	bank := registers.NewBank(64)
	require.NoError(t, bank.Write(7, 0x0102))
	_, port := startServer(t, bank)

	client := newGoburrowClient(t, port)
	raw, err := client.ReadHoldingRegisters(7, 1)

	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, raw)

	_, err = client.WriteSingleRegister(8, 0xabcd)
	require.NoError(t, err)
	b, err := bank.Bytes(8, 1)
	require.NoError(t, err)
	assert.Equal(t, uint16(0xabcd), binary.BigEndian.Uint16(b))
}

func TestServer_OutOfRangeIsIllegalAddress(t *testing.T) {
	bank := registers.NewBank(16)
	srv, port := startServer(t, bank)

	client := newClient(t, port)
	_, err := client.ReadRegisters(14, 4, modbus.HOLDING_REGISTER)
	assert.ErrorIs(t, err, modbus.ErrIllegalDataAddress)

	err = client.WriteRegisters(15, []uint16{9, 9})
	assert.ErrorIs(t, err, modbus.ErrIllegalDataAddress)

	v, _ := bank.Read(15)
	assert.Equal(t, int16(0), v, "rejected write must not land partially")
	assert.Equal(t, uint64(2), srv.Counter(CntExceptions))
}

func TestServer_OtherTablesIllegalFunction(t *testing.T) {
	_, port := startServer(t, registers.NewBank(16))

	client := newClient(t, port)
	_, err := client.ReadRegisters(0, 1, modbus.INPUT_REGISTER)
	assert.ErrorIs(t, err, modbus.ErrIllegalFunction)

	_, err = client.ReadCoils(0, 1)
	assert.ErrorIs(t, err, modbus.ErrIllegalFunction)
}

func TestServer_SeesRuleMutations(t *testing.T) {
	bank := registers.NewBank(16)
	srv, port := startServer(t, bank)

	view := srv.Registers()
	_, err := view.Modify(3, func(old int16) int16 { return old + 1 })
	require.NoError(t, err)

	client := newClient(t, port)
	v, err := client.ReadRegister(3, modbus.HOLDING_REGISTER)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), v)
}

func TestServer_StartTwice(t *testing.T) {
	srv, port := startServer(t, registers.NewBank(16))
	err := srv.Start("127.0.0.1", port)
	assert.Error(t, err)
}

func TestServer_BindConflict(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	port := l.Addr().(*net.TCPAddr).Port

	srv := NewServer(registers.NewBank(16))
	err = srv.Start("127.0.0.1", port)

	assert.Error(t, err)
	assert.False(t, srv.Listening())
}

func TestServer_StopReleasesPort(t *testing.T) {
	srv, port := startServer(t, registers.NewBank(16))

	require.NoError(t, srv.Stop())
	assert.False(t, srv.Listening())
	assert.ErrorIs(t, srv.Stop(), ErrNotStarted)

	l, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	require.NoError(t, err, "port should be free after Stop")
	_ = l.Close()
}

func TestServer_Counters(t *testing.T) {
	srv, port := startServer(t, registers.NewBank(16))
	client := newClient(t, port)

	_, err := client.ReadRegisters(0, 2, modbus.HOLDING_REGISTER)
	require.NoError(t, err)

	c := srv.Counters()
	assert.Equal(t, uint64(1), c["requests"])
	assert.Equal(t, uint64(1), c["reads"])

	srv.ResetCounters()
	assert.Zero(t, srv.Counter(CntRequests))
	assert.Equal(t, "unknown", Counter(99).String())
}
