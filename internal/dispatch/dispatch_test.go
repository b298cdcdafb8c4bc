package dispatch

import (
	"context"
	"encoding/binary"
	"encoding/json"
	stderrors "errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/lkdisplay/internal/device"
	"codeberg.org/mutker/lkdisplay/internal/metrics"
	"codeberg.org/mutker/lkdisplay/internal/netsink"
	"codeberg.org/mutker/lkdisplay/internal/packet"
	"codeberg.org/mutker/lkdisplay/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedSampler struct {
	mu    sync.Mutex
	calls int
	snap  telemetry.Snapshot
}

func (s *fixedSampler) Sample(context.Context) telemetry.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.snap
}

func (s *fixedSampler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func cpu45() telemetry.Snapshot {
	return telemetry.Snapshot{
		Reading: telemetry.Reading{
			CPUTempC:   telemetry.Float(45),
			CPUFreqMHz: telemetry.Float(3800),
			GPUTempC:   telemetry.Float(38),
		},
		CapturedAt: time.Date(2025, 3, 12, 14, 35, 7, 0, time.UTC),
	}
}

// hidTree is a synthetic /sys and /dev with hidraw nodes
type hidTree struct {
	sysRoot string
	devDir  string
}

func newHIDTree(t *testing.T) hidTree {
	t.Helper()
	root := t.TempDir()
	tree := hidTree{sysRoot: filepath.Join(root, "sys"), devDir: filepath.Join(root, "dev")}
	require.NoError(t, os.MkdirAll(tree.devDir, 0o755))
	return tree
}

func (h hidTree) plug(t *testing.T, node, hidID string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(h.devDir, node), nil, 0o644))
	uevent := filepath.Join(h.sysRoot, "class", "hidraw", node, "device", "uevent")
	require.NoError(t, os.MkdirAll(filepath.Dir(uevent), 0o755))
	require.NoError(t, os.WriteFile(uevent, []byte("HID_ID="+hidID+"\nHID_NAME=test\n"), 0o644))
}

func (h hidTree) unplug(t *testing.T, node string) {
	t.Helper()
	require.NoError(t, os.Remove(filepath.Join(h.devDir, node)))
	require.NoError(t, os.RemoveAll(filepath.Join(h.sysRoot, "class", "hidraw", node)))
}

func (h hidTree) locator() *device.Locator {
	return device.NewLocator(device.DefaultTable(), device.WithSysRoot(h.sysRoot), device.WithDevDir(h.devDir))
}

// recordingHandle captures writes and can simulate removal
type recordingHandle struct {
	mu      sync.Mutex
	writes  [][]byte
	removed bool
	closed  bool
}

func (h *recordingHandle) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.removed {
		return 0, stderrors.New("no such device")
	}
	h.writes = append(h.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (h *recordingHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

func (h *recordingHandle) remove() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removed = true
}

type handles struct {
	mu   sync.Mutex
	list []*recordingHandle
}

func (hs *handles) open(string) (device.Handle, error) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	h := &recordingHandle{}
	hs.list = append(hs.list, h)
	return h, nil
}

func newSession(finder device.Finder, hs *handles) *device.Session {
	return device.NewSession(finder, device.WithOpener(hs.open), device.WithWriteTimeout(0))
}

type recorder struct {
	*metrics.Recorder
	reg *prometheus.Registry
}

func newRecorder(t *testing.T) recorder {
	t.Helper()
	reg := prometheus.NewRegistry()
	r, err := metrics.New(reg)
	require.NoError(t, err)
	return recorder{Recorder: r, reg: reg}
}

func connectAttempts(t *testing.T, r recorder, result string) float64 {
	t.Helper()

	families, err := r.reg.Gather()
	require.NoError(t, err)

	for _, family := range families {
		if family.GetName() != "lkdisplay_connect_attempts_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "result" && label.GetValue() == result {
					return m.GetCounter().GetValue()
				}
			}
		}
	}

	return 0
}

func counterTotal(t *testing.T, r recorder, name string) float64 {
	t.Helper()

	families, err := r.reg.Gather()
	require.NoError(t, err)

	var total float64
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}

	return total
}

func TestNoDisplayTenTicks(t *testing.T) {
	tree := newHIDTree(t)
	tree.plug(t, "hidraw0", "0003:0000046D:0000C52B")

	hs := &handles{}
	rec := newRecorder(t)
	l := New(Config{RefreshInterval: time.Second, SendInterval: time.Second},
		&fixedSampler{snap: cpu45()}, newSession(tree.locator(), hs), WithMetrics(rec.Recorder))

	l.sampleTick(context.Background())
	assert.NotPanics(t, func() {
		for i := 0; i < 10; i++ {
			l.transmitTick()
		}
	})

	assert.Empty(t, hs.list)
	assert.InDelta(t, 10, connectAttempts(t, rec, metrics.ResultNotFound), 0.001)
	assert.InDelta(t, 0, connectAttempts(t, rec, metrics.ResultConnected), 0.001)
}

func TestGamdiasReceivesReports(t *testing.T) {
	tree := newHIDTree(t)
	tree.plug(t, "hidraw4", "0003:00001B80:0000B538")

	hs := &handles{}
	l := New(Config{RefreshInterval: time.Second, SendInterval: time.Second},
		&fixedSampler{snap: cpu45()}, newSession(tree.locator(), hs))

	l.sampleTick(context.Background())
	l.transmitTick()

	require.Len(t, hs.list, 1)
	writes := hs.list[0].writes
	require.Len(t, writes, 4, "three init reports then one data report")

	report := writes[3]
	require.Len(t, report, 65)
	assert.Equal(t, []byte{0xB0, 0x01, 0x00}, report[:3])
	assert.Equal(t, uint16(45), binary.LittleEndian.Uint16(report[4:6]))
	assert.Equal(t, uint16(3800), binary.BigEndian.Uint16(report[14:16]))
	assert.Equal(t, byte(38), report[3])
	assert.Equal(t, packet.Encode(cpu45(), packet.GamdiasAtlas()), report)
}

func TestDisplayRemovedMidStream(t *testing.T) {
	tree := newHIDTree(t)
	tree.plug(t, "hidraw4", "0003:00001B80:0000B538")

	hs := &handles{}
	rec := newRecorder(t)
	session := newSession(tree.locator(), hs)
	l := New(Config{RefreshInterval: time.Second, SendInterval: time.Second},
		&fixedSampler{snap: cpu45()}, session, WithMetrics(rec.Recorder))

	l.sampleTick(context.Background())
	l.transmitTick()
	l.transmitTick()
	require.Equal(t, device.Connected, session.State())

	// Unplug: the next write fails and the node disappears
	hs.list[0].remove()
	tree.unplug(t, "hidraw4")

	l.transmitTick()
	assert.Equal(t, device.Disconnected, session.State())
	assert.True(t, hs.list[0].closed)

	for i := 0; i < 3; i++ {
		l.sampleTick(context.Background())
		l.transmitTick()
	}
	assert.Equal(t, device.Disconnected, session.State())
	assert.Len(t, hs.list, 1, "no open attempts while absent")
	assert.InDelta(t, 3, connectAttempts(t, rec, metrics.ResultNotFound), 0.001)

	// Plugged back in: reconnects on the next tick
	tree.plug(t, "hidraw5", "0003:00001B80:0000B538")
	l.transmitTick()
	assert.Equal(t, device.Connected, session.State())
	require.Len(t, hs.list, 2)
	assert.Len(t, hs.list[1].writes, 4)
}

func TestMirrorEveryTransmitTick(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer conn.Close()

	sink, err := netsink.Dial(conn.LocalAddr().(*net.UDPAddr).Port, netsink.FormatJSON)
	require.NoError(t, err)

	tree := newHIDTree(t)
	rec := newRecorder(t)
	l := New(Config{RefreshInterval: time.Second, SendInterval: time.Second},
		&fixedSampler{snap: cpu45()}, newSession(tree.locator(), &handles{}),
		WithMirror(sink), WithMetrics(rec.Recorder))

	l.sampleTick(context.Background())
	for i := 0; i < 3; i++ {
		l.transmitTick()
	}

	buf := make([]byte, 4096)
	for i := 0; i < 3; i++ {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		n, err := conn.Read(buf)
		require.NoError(t, err, "datagram %d", i)

		var got map[string]any
		require.NoError(t, json.Unmarshal(buf[:n], &got))
		assert.Equal(t, 45.0, got["cpu_temp_c"])
		assert.Equal(t, 38.0, got["gpu_temp_c"])
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(50*time.Millisecond)))
	_, err = conn.Read(buf)
	assert.Error(t, err, "exactly one datagram per tick")
}

type failingMirror struct {
	sends  int
	closed bool
}

func (m *failingMirror) Send(telemetry.Snapshot) error {
	m.sends++
	return stderrors.New("connection refused")
}

func (m *failingMirror) Close() error {
	m.closed = true
	return nil
}

func TestRunShutsDown(t *testing.T) {
	tree := newHIDTree(t)
	tree.plug(t, "hidraw0", "0003:00001B80:0000B538")

	hs := &handles{}
	sampler := &fixedSampler{snap: cpu45()}
	mirror := &failingMirror{}
	session := newSession(tree.locator(), hs)
	l := New(Config{RefreshInterval: 5 * time.Millisecond, SendInterval: 10 * time.Millisecond},
		sampler, session, WithMirror(mirror))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- l.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return session.State() == device.Connected
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}

	assert.GreaterOrEqual(t, sampler.count(), 1)
	assert.Equal(t, device.Disconnected, session.State())
	assert.True(t, hs.list[0].closed)
	assert.True(t, mirror.closed)
	assert.Positive(t, mirror.sends, "mirror errors do not stop the loop")
}

func TestRunRejectsZeroInterval(t *testing.T) {
	l := New(Config{}, &fixedSampler{}, newSession(newHIDTree(t).locator(), &handles{}))
	assert.Error(t, l.Run(context.Background()))
}

func TestMirrorDialFailureKeepsDisplay(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer conn.Close()
	port := conn.LocalAddr().(*net.UDPAddr).Port

	tree := newHIDTree(t)
	tree.plug(t, "hidraw2", "0003:00001B80:0000B538")

	dials := 0
	dial := func() (Mirror, error) {
		dials++
		if dials <= 2 {
			return nil, stderrors.New("network is unreachable")
		}
		return netsink.Dial(port, netsink.FormatJSON)
	}

	hs := &handles{}
	rec := newRecorder(t)
	l := New(Config{RefreshInterval: time.Second, SendInterval: time.Second},
		&fixedSampler{snap: cpu45()}, newSession(tree.locator(), hs),
		WithMirrorDialer(dial), WithMetrics(rec.Recorder))

	l.sampleTick(context.Background())
	for i := 0; i < 3; i++ {
		l.transmitTick()
	}

	require.Len(t, hs.list, 1)
	assert.Len(t, hs.list[0].writes, 3+3, "a report on every tick despite the mirror")
	assert.Equal(t, 3, dials, "dial retried each tick until it succeeds")
	assert.InDelta(t, 2, counterTotal(t, rec, "lkdisplay_datagram_failures_total"), 0.001)
	assert.InDelta(t, 1, counterTotal(t, rec, "lkdisplay_datagrams_sent_total"), 0.001)

	buf := make([]byte, 4096)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), `"cpu_temp_c":45`)

	l.transmitTick()
	assert.Equal(t, 3, dials, "an open mirror is reused")
}

// countingDisplay is always connected and counts reports
type countingDisplay struct {
	mu     sync.Mutex
	sends  int
	closed bool
}

func (d *countingDisplay) Connect() error { return nil }

func (d *countingDisplay) Send([]byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sends++
	return nil
}

func (d *countingDisplay) State() device.State { return device.Connected }

func (d *countingDisplay) Descriptor() (device.Descriptor, bool) {
	return device.Descriptor{Path: "/dev/hidraw0", Profile: packet.GamdiasAtlas()}, true
}

func (d *countingDisplay) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func TestRunKeepsCadencesIndependent(t *testing.T) {
	sampler := &fixedSampler{snap: cpu45()}
	display := &countingDisplay{}
	l := New(Config{RefreshInterval: 100 * time.Millisecond, SendInterval: 10 * time.Millisecond},
		sampler, display)

	ctx, cancel := context.WithTimeout(context.Background(), 520*time.Millisecond)
	defer cancel()

	require.NoError(t, l.Run(ctx))

	display.mu.Lock()
	defer display.mu.Unlock()

	samples := sampler.count()
	assert.GreaterOrEqual(t, samples, 2, "immediate sample plus ticker samples")
	assert.Greater(t, display.sends, samples, "transmits reuse the cached snapshot between samples")
	assert.True(t, display.closed)
}
