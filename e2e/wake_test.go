//go:build e2e

package e2e

import (
	"context"
	"io"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/fgeck/gopgbackup/internal/models"
	"github.com/fgeck/gopgbackup/internal/services/wake"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// Mock implementations for E2E tests
type mockWOLClient struct{}

func (m *mockWOLClient) Wake(broadcastIP string, mac net.HardwareAddr) error {
	return nil
}

func TestWake_WithListeningPort_E2E(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = listener.Close() }()

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	svc := wake.NewWithClients(testLogger(), &mockWOLClient{}, &net.Dialer{Timeout: time.Second})

	cfg := models.WakeConfig{
		MACAddress:    "AA:BB:CC:DD:EE:FF",
		BroadcastIP:   "255.255.255.255",
		Timeout:       5 * time.Second,
		PollInterval:  100 * time.Millisecond,
		StabilizeWait: 100 * time.Millisecond,
	}

	result, err := svc.Wake(context.Background(), cfg, listener.Addr().String())

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	assert.True(t, result.TargetReady)
	assert.Nil(t, result.Error)
	assert.GreaterOrEqual(t, result.WaitDuration, 100*time.Millisecond)
}

func TestWake_DelayedPort_E2E(t *testing.T) {
	// Reserve a free port, release it and start listening later.
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	address := probe.Addr().String()
	require.NoError(t, probe.Close())

	var mu sync.Mutex
	var late net.Listener
	defer func() {
		mu.Lock()
		defer mu.Unlock()
		if late != nil {
			_ = late.Close()
		}
	}()

	go func() {
		time.Sleep(300 * time.Millisecond)
		listener, err := net.Listen("tcp", address)
		if err != nil {
			return
		}
		mu.Lock()
		late = listener
		mu.Unlock()
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	svc := wake.NewWithClients(testLogger(), &mockWOLClient{}, &net.Dialer{Timeout: time.Second})

	cfg := models.WakeConfig{
		MACAddress:   "AA:BB:CC:DD:EE:FF",
		BroadcastIP:  "255.255.255.255",
		Timeout:      5 * time.Second,
		PollInterval: 50 * time.Millisecond,
	}

	result, err := svc.Wake(context.Background(), cfg, address)

	require.NoError(t, err)
	assert.True(t, result.TargetReady)
	assert.GreaterOrEqual(t, result.WaitDuration, 300*time.Millisecond)
}

func TestWake_PortNeverReady_E2E(t *testing.T) {
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	address := probe.Addr().String()
	require.NoError(t, probe.Close())

	svc := wake.NewWithClients(testLogger(), &mockWOLClient{}, &net.Dialer{Timeout: 100 * time.Millisecond})

	cfg := models.WakeConfig{
		MACAddress:   "AA:BB:CC:DD:EE:FF",
		BroadcastIP:  "255.255.255.255",
		Timeout:      200 * time.Millisecond,
		PollInterval: 50 * time.Millisecond,
	}

	result, err := svc.Wake(context.Background(), cfg, address)

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	assert.False(t, result.TargetReady)
	require.NotNil(t, result.Error)
	assert.Contains(t, result.Error.Error(), "timeout")
}

// RealWake tests - only run if explicitly configured
func TestRealWake_E2E(t *testing.T) {
	mac := os.Getenv("TEST_WOL_MAC")
	if mac == "" {
		t.Skip("TEST_WOL_MAC not set")
	}

	address := os.Getenv("TEST_WOL_TARGET_ADDRESS")
	if address == "" {
		t.Skip("TEST_WOL_TARGET_ADDRESS not set")
	}

	svc := wake.New(testLogger())

	cfg := models.WakeConfig{
		MACAddress:    mac,
		BroadcastIP:   "255.255.255.255",
		Timeout:       5 * time.Minute,
		PollInterval:  10 * time.Second,
		StabilizeWait: 10 * time.Second,
	}

	result, err := svc.Wake(context.Background(), cfg, address)

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	assert.True(t, result.TargetReady)
}
