package serialmux

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/optical.position/internal/feed"
	"github.com/banshee-data/optical.position/internal/fusion"
)

func TestClassifyLine(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"(30, 90)", LinePlatformState},
		{`{"height_m": 30, "heading_deg": 90}`, LinePlatformState},
		{`{"battery_v": 15.1, "mode": "GUIDED"}`, LineStatus},
		{"# bridge v2 ready", LineComment},
		{"garbage", LineUnknown},
		{"", LineUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyLine(tt.line))
		})
	}
}

func TestHandleLine_PlatformState(t *testing.T) {
	var got []fusion.PlatformState
	onState := func(s fusion.PlatformState) { got = append(got, s) }

	require.NoError(t, HandleLine("(30, 90)", onState))
	require.NoError(t, HandleLine(`{"height_m": 31.5, "heading_deg": 271}`, onState))

	assert.Equal(t, []fusion.PlatformState{
		{HeightMeters: 30, HeadingDegrees: 90},
		{HeightMeters: 31.5, HeadingDegrees: 271},
	}, got)
}

func TestHandleLine_MalformedPlatformState(t *testing.T) {
	called := false
	err := HandleLine("(30, north)", func(fusion.PlatformState) { called = true })
	require.Error(t, err)
	assert.ErrorIs(t, err, feed.ErrMalformedPayload)
	assert.False(t, called)
}

func TestHandleLine_StatusMerges(t *testing.T) {
	CurrentStatus.Reset()
	t.Cleanup(CurrentStatus.Reset)

	require.NoError(t, HandleLine(`{"mode": "GUIDED", "battery_v": 15.1}`, nil))
	require.NoError(t, HandleLine(`{"mode": "LOITER"}`, nil))

	mode, ok := CurrentStatus.Get("mode")
	require.True(t, ok)
	assert.Equal(t, "LOITER", mode)

	sorted := CurrentStatus.Sorted()
	require.Len(t, sorted, 2)
	assert.Equal(t, "battery_v", sorted[0].Key)
	assert.Equal(t, 15.1, sorted[0].Value)
}

func TestHandleLine_BadStatus(t *testing.T) {
	err := HandleLine(`{"mode": }`, nil)
	assert.Error(t, err)
}

func TestHandleLine_IgnoresOtherLines(t *testing.T) {
	assert.NoError(t, HandleLine("# hello", nil))
	assert.NoError(t, HandleLine("noise", nil))
}

func TestConsume(t *testing.T) {
	port := NewTestableSerialPort()
	m := NewSerialMux(port)
	id, lines := m.Subscribe()
	defer m.Unsubscribe(id)

	// Lines already waiting on the port when Monitor starts reach the
	// subscription taken above.
	port.AddReadData("(30, 90)\n(bad)\n# note\n(32, 45)\n")
	runMonitor(t, m)

	var mu sync.Mutex
	var states []fusion.PlatformState
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		Consume(lines, done, func(s fusion.PlatformState) {
			mu.Lock()
			defer mu.Unlock()
			states = append(states, s)
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(states) == 2
	}, time.Second, 5*time.Millisecond)

	close(done)
	<-finished
	assert.Equal(t, []fusion.PlatformState{
		{HeightMeters: 30, HeadingDegrees: 90},
		{HeightMeters: 32, HeadingDegrees: 45},
	}, states)
}

func TestConsume_StopsWhenMuxCloses(t *testing.T) {
	d := NewDisabledSerialMux("udp")
	_, lines := d.Subscribe()
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		Consume(lines, nil, nil)
	}()

	require.NoError(t, d.Close())

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Consume did not return after Close")
	}
}
