package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/itohio/gasmon/pkg/config"
	"github.com/itohio/gasmon/pkg/console"
	"github.com/itohio/gasmon/pkg/network"
	"github.com/itohio/gasmon/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type uploads struct {
	mu     sync.Mutex
	fields []uint16
}

func (u *uploads) count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.fields)
}

func newTelemetryServer(t *testing.T) (*httptest.Server, *uploads) {
	t.Helper()
	u := &uploads{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n, err := strconv.Atoi(r.URL.Query().Get("field1"))
		assert.NoError(t, err)
		assert.Equal(t, "test-key", r.URL.Query().Get("api_key"))
		u.mu.Lock()
		u.fields = append(u.fields, uint16(n))
		u.mu.Unlock()
	}))
	t.Cleanup(srv.Close)
	return srv, u
}

func testConfig(t *testing.T, url string) *config.Config {
	cfg := config.Default()
	cfg.Telemetry.URL = url
	cfg.Telemetry.APIKey = "test-key"
	cfg.Sensor.Driver = config.DriverMock
	cfg.Sensor.Interval = 5 * time.Millisecond
	cfg.Storage.Path = filepath.Join(t.TempDir(), "gasmon.kv")
	cfg.Mock.WifiFailures = 2
	return cfg
}

func runUntilUploads(t *testing.T, cfg *config.Config, u *uploads, n int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, console.Nop{}) }()

	assert.Eventually(t, func() bool { return u.count() >= n }, 5*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return within timeout")
	}
}

func readBoots(t *testing.T, path string) uint32 {
	t.Helper()
	f, err := storage.OpenFile(path, 0)
	require.NoError(t, err)
	defer f.Close()

	s, err := storage.InitOrErase(f)
	require.NoError(t, err)
	n, err := s.Increment(bootsKey)
	require.NoError(t, err)
	return n - 1
}

func TestRun_MockStation(t *testing.T) {
	srv, u := newTelemetryServer(t)
	cfg := testConfig(t, srv.URL)

	runUntilUploads(t, cfg, u, 3)
	assert.Equal(t, uint32(1), readBoots(t, cfg.Storage.Path))

	u.mu.Lock()
	for _, raw := range u.fields {
		assert.LessOrEqual(t, raw, uint16(4095))
	}
	u.mu.Unlock()
}

func TestRun_CountsBoots(t *testing.T) {
	srv, u := newTelemetryServer(t)
	cfg := testConfig(t, srv.URL)

	runUntilUploads(t, cfg, u, 1)
	runUntilUploads(t, cfg, u, u.count()+1)

	assert.Equal(t, uint32(2), readBoots(t, cfg.Storage.Path))
}

func TestRun_WithStatusServer(t *testing.T) {
	srv, u := newTelemetryServer(t)
	cfg := testConfig(t, srv.URL)
	cfg.Status.Listen = "127.0.0.1:0"

	runUntilUploads(t, cfg, u, 2)
}

func TestRun_StatusAddressInUse(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	srv, u := newTelemetryServer(t)
	cfg := testConfig(t, srv.URL)
	cfg.Status.Listen = busy.Addr().String()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, console.Nop{}) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.NotErrorIs(t, err, context.DeadlineExceeded)
		assert.Contains(t, err.Error(), "failed to listen on "+busy.Addr().String())
	case <-time.After(2 * time.Second):
		t.Fatal("run kept going with a busy status address")
	}
	assert.Zero(t, u.count())
}

type debugLog struct {
	console.Nop
	lines []string
}

func (l *debugLog) Debugf(format string, v ...any) {
	l.lines = append(l.lines, fmt.Sprintf(format, v...))
}

func TestInitStorage_ReportsKeys(t *testing.T) {
	cfg := config.StorageConfig{Path: filepath.Join(t.TempDir(), "gasmon.kv")}

	log := &debugLog{}
	boots, err := initStorage(cfg, log)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), boots)
	require.Len(t, log.lines, 1)
	assert.Contains(t, log.lines[0], "holds []")

	boots, err = initStorage(cfg, log)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), boots)
	require.Len(t, log.lines, 2)
	assert.Contains(t, log.lines[1], "holds [boots]")
}

func TestRun_StorageFailure(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1/update")
	cfg.Storage.Path = filepath.Join(t.TempDir(), "missing", "gasmon.kv")

	err := run(context.Background(), cfg, console.Nop{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage")
}

func TestRun_CancelWhileWaitingForNetwork(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1/update")
	if _, err := net.InterfaceByName("lo"); err != nil {
		t.Skip("no loopback interface named lo")
	}
	// Loopback is up but never carries a routable address, so the station
	// associates and then waits for an IP forever.
	cfg.Sensor.Driver = config.DriverPeriph
	cfg.Network.Interface = "lo"
	cfg.Network.PollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := run(ctx, cfg, console.Nop{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewReconnector(t *testing.T) {
	assert.Equal(t, network.Immediate{}, newReconnector(config.ReconnectConfig{Policy: config.ReconnectImmediate}))

	r := newReconnector(config.ReconnectConfig{Policy: config.ReconnectBackoff, Initial: time.Second, Max: time.Minute, Factor: 2})
	assert.Equal(t, network.Backoff{Initial: time.Second, Max: time.Minute, Factor: 2}, r)
}

func TestNewDevice(t *testing.T) {
	cfg := config.Default()
	for _, driver := range []string{config.DriverMock, config.DriverSerial, config.DriverPeriph} {
		cfg.Sensor.Driver = driver
		dev, err := newDevice(cfg, console.Nop{})
		require.NoError(t, err, driver)
		assert.NotNil(t, dev)
	}

	cfg.Sensor.Driver = "spi"
	_, err := newDevice(cfg, console.Nop{})
	assert.Error(t, err)
}
