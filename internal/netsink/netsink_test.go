package netsink_test

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"codeberg.org/mutker/lkdisplay/internal/errors"
	"codeberg.org/mutker/lkdisplay/internal/netsink"
	"codeberg.org/mutker/lkdisplay/internal/telemetry"
	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listen(t *testing.T) (*net.UDPConn, int) {
	t.Helper()

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn, conn.LocalAddr().(*net.UDPAddr).Port
}

func receive(t *testing.T, conn *net.UDPConn) []byte {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 64*1024)
	n, err := conn.Read(buf)
	require.NoError(t, err)

	return buf[:n]
}

func snapshot() telemetry.Snapshot {
	return telemetry.Snapshot{
		Reading: telemetry.Reading{
			CPUTempC:   telemetry.Float(45),
			GPUTempC:   telemetry.Float(38),
			MemUsedMB:  telemetry.Float(1024),
			MemTotalMB: telemetry.Float(4096),
		},
		CapturedAt: time.Date(2025, 3, 12, 14, 35, 7, 0, time.UTC),
	}
}

func TestSendJSON(t *testing.T) {
	conn, port := listen(t)

	sink, err := netsink.Dial(port, netsink.FormatJSON)
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Send(snapshot()))

	var got map[string]any
	require.NoError(t, json.Unmarshal(receive(t, conn), &got))

	assert.Equal(t, 45.0, got["cpu_temp_c"])
	assert.Equal(t, 38.0, got["gpu_temp_c"])
	assert.Equal(t, 25.0, got["mem_usage_pct"])
	assert.Equal(t, "2025-03-12T14:35:07Z", got["captured_at"])
	assert.NotContains(t, got, "cpu_freq_mhz", "absent fields are omitted")
	assert.NotContains(t, got, "gpu_usage_pct")
}

func TestSendCBOR(t *testing.T) {
	conn, port := listen(t)

	sink, err := netsink.Dial(port, netsink.FormatCBOR)
	require.NoError(t, err)
	defer sink.Close()
	assert.Equal(t, netsink.FormatCBOR, sink.Format())

	require.NoError(t, sink.Send(snapshot()))

	var got struct {
		CPUTempC   *float64 `cbor:"cpu_temp_c"`
		CPUFreqMHz *float64 `cbor:"cpu_freq_mhz"`
		CapturedAt string   `cbor:"captured_at"`
	}
	require.NoError(t, cbor.Unmarshal(receive(t, conn), &got))

	require.NotNil(t, got.CPUTempC)
	assert.InDelta(t, 45, *got.CPUTempC, 0.001)
	assert.Nil(t, got.CPUFreqMHz)
	assert.Equal(t, "2025-03-12T14:35:07Z", got.CapturedAt)
}

func TestEncodeDeterministic(t *testing.T) {
	_, port := listen(t)

	sink, err := netsink.Dial(port, netsink.FormatCBOR)
	require.NoError(t, err)
	defer sink.Close()

	a, err := sink.Encode(snapshot())
	require.NoError(t, err)
	b, err := sink.Encode(snapshot())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSendWithoutListener(t *testing.T) {
	conn, port := listen(t)
	require.NoError(t, conn.Close())

	sink, err := netsink.Dial(port, "")
	require.NoError(t, err)
	defer sink.Close()
	assert.Equal(t, netsink.FormatJSON, sink.Format())

	// UDP gives no guarantee; a refused port may surface on a later write.
	for i := 0; i < 3; i++ {
		_ = sink.Send(snapshot())
	}
}

func TestDialUnknownFormat(t *testing.T) {
	_, err := netsink.Dial(8890, "xml")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidFormat))
}
