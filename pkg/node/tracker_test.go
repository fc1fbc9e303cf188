package node

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	nano "github.com/nanopay/nanogate/pkg"
	"github.com/nanopay/nanogate/pkg/metrics"
	"github.com/nanopay/nanogate/pkg/rpc"
)

type fakeCommander struct {
	daemonErr error
	walletErr error
	tele      rpc.TelemetryResponse
	height    rpc.WalletHeightResponse
}

func (f *fakeCommander) Send(ctx context.Context, action string, body any, result any) error {
	switch action {
	case "telemetry":
		if f.daemonErr != nil {
			return f.daemonErr
		}
		*result.(*rpc.TelemetryResponse) = f.tele
	case "wallet_height":
		if f.walletErr != nil {
			return f.walletErr
		}
		*result.(*rpc.WalletHeightResponse) = f.height
	}
	return nil
}

func testConfig() nano.Config {
	conf := nano.Config{}
	conf.Node = map[string]nano.NodeConfig{
		"XNO": {RPCURL: "http://localhost:7076", WalletID: "WALLET1"},
	}
	return conf
}

func TestRefreshAvailable(t *testing.T) {
	fake := &fakeCommander{
		tele:   rpc.TelemetryResponse{BlockCount: 1000, CementedCount: 1000},
		height: rpc.WalletHeightResponse{Height: 1000},
	}
	tracker := NewTracker(testConfig(), nano.NewMessageBus(), map[string]Commander{"XNO": fake})

	s := tracker.Refresh(context.Background(), "XNO")
	assert.True(t, s.Synced)
	assert.True(t, s.DaemonAvailable)
	assert.True(t, s.WalletAvailable)
	assert.True(t, tracker.IsAvailable("XNO"))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.NodeAvailable.WithLabelValues("XNO")))
}

func TestRefreshDaemonDown(t *testing.T) {
	fake := &fakeCommander{daemonErr: nano.NewErr(nano.TransportError, "down")}
	tracker := NewTracker(testConfig(), nano.NewMessageBus(), map[string]Commander{"XNO": fake})

	s := tracker.Refresh(context.Background(), "XNO")
	assert.False(t, s.DaemonAvailable)
	assert.False(t, tracker.IsAvailable("XNO"))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.NodeAvailable.WithLabelValues("XNO")))
}

func TestRefreshSyncLag(t *testing.T) {
	fake := &fakeCommander{
		tele:   rpc.TelemetryResponse{BlockCount: 2000, CementedCount: 1000},
		height: rpc.WalletHeightResponse{Height: 900},
	}
	tracker := NewTracker(testConfig(), nano.NewMessageBus(), map[string]Commander{"XNO": fake})

	s := tracker.Refresh(context.Background(), "XNO")
	assert.True(t, s.DaemonAvailable)
	assert.False(t, s.Synced)
	assert.False(t, tracker.IsAvailable("XNO"))
	assert.Equal(t, int64(1000), s.CurrentHeight)
	assert.Equal(t, int64(2000), s.TargetHeight)
}

func TestStateChangeEdgeTriggered(t *testing.T) {
	fake := &fakeCommander{
		tele:   rpc.TelemetryResponse{BlockCount: 10, CementedCount: 10},
		height: rpc.WalletHeightResponse{Height: 10},
	}
	bus := nano.NewMessageBus()
	rec := make(chan nano.Message, 10)
	bus.Register(chanSubscriber{rec}, nano.EVENT_NODE("NODE"))

	done := make(chan bool, 1)
	stopped := make(chan bool, 1)
	stop := make(chan context.Context, 1)
	bus.Run(done, stopped, stop)
	<-done
	defer func() { stop <- context.Background(); <-stopped }()

	tracker := NewTracker(testConfig(), bus, map[string]Commander{"XNO": fake})

	// first poll: unknown -> available, one event expected
	tracker.Refresh(context.Background(), "XNO")
	msg := <-rec
	assert.Equal(t, "NODE", msg.EventType.Type())

	// second identical poll: no new event
	tracker.Refresh(context.Background(), "XNO")
	select {
	case m := <-rec:
		t.Fatalf("unexpected second state change: %v", m.EventType)
	default:
	}

	// flip to unavailable: one more event
	fake.daemonErr = nano.NewErr(nano.TransportError, "down")
	tracker.Refresh(context.Background(), "XNO")
	msg = <-rec
	assert.Equal(t, "NODE", msg.EventType.Type())
}

type chanSubscriber struct {
	ch chan nano.Message
}

func (c chanSubscriber) GetChan() chan nano.Message { return c.ch }
