// Package node tracks ledger node health per currency.
//
// The tracker polls telemetry and wallet height on an interval and
// keeps the latest NodeSummary per currency. Other components gate on
// IsAvailable; a DaemonStateChange bus event fires once per
// availability edge, not on every poll.
package node

import (
	"context"
	"log"
	"sync"
	"time"

	nano "github.com/nanopay/nanogate/pkg"
	"github.com/nanopay/nanogate/pkg/metrics"
	"github.com/nanopay/nanogate/pkg/rpc"
)

// a node still cementing a handful of blocks behind its frontier count
// is treated as synced.
const syncLagTolerance = 16

// Commander is the slice of the RPC client the tracker needs.
type Commander interface {
	Send(ctx context.Context, action string, body any, result any) error
}

type Tracker struct {
	conf    nano.Config
	bus     nano.MessageBus
	clients map[string]Commander

	mu        sync.Mutex
	summaries map[string]nano.NodeSummary
}

func NewTracker(conf nano.Config, bus nano.MessageBus, clients map[string]Commander) *Tracker {
	return &Tracker{
		conf:      conf,
		bus:       bus,
		clients:   clients,
		summaries: make(map[string]nano.NodeSummary),
	}
}

// IsAvailable reports whether the node for a currency is synced with a
// working wallet layer. False for unknown currencies or before the
// first poll completes.
func (t *Tracker) IsAvailable(cryptoCode string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.summaries[cryptoCode]
	return ok && s.IsAvailable()
}

// Summary returns the latest poll result for a currency.
func (t *Tracker) Summary(cryptoCode string) (nano.NodeSummary, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.summaries[cryptoCode]
	return s, ok
}

// Summaries returns a copy of every currency's latest summary.
func (t *Tracker) Summaries() map[string]nano.NodeSummary {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]nano.NodeSummary, len(t.summaries))
	for k, v := range t.summaries {
		out[k] = v
	}
	return out
}

// Implements conductor.Service
func (t *Tracker) Run(started, stopped chan bool, stop chan context.Context) error {
	go func() {
		done := make(chan bool)
		var wg sync.WaitGroup
		for code, nodeConf := range t.conf.Node {
			wg.Add(1)
			go func(code string, nodeConf nano.NodeConfig) {
				defer wg.Done()
				// first poll immediately so availability gates settle
				// soon after startup.
				t.Refresh(context.Background(), code)
				ticker := time.NewTicker(nodeConf.TrackerInterval())
				defer ticker.Stop()
				for {
					select {
					case <-done:
						return
					case <-ticker.C:
						t.Refresh(context.Background(), code)
					}
				}
			}(code, nodeConf)
		}
		started <- true
		<-stop
		close(done)
		wg.Wait()
		stopped <- true
	}()
	return nil
}

// Refresh polls one currency's node and stores the new summary,
// publishing a state change when availability flips. Reaching an
// unreachable node marks it unavailable; errors never escape.
func (t *Tracker) Refresh(ctx context.Context, cryptoCode string) nano.NodeSummary {
	client, ok := t.clients[cryptoCode]
	if !ok {
		return nano.NodeSummary{CryptoCode: cryptoCode}
	}

	summary := nano.NodeSummary{CryptoCode: cryptoCode, UpdatedAt: time.Now().UTC()}

	var tele rpc.TelemetryResponse
	if err := client.Send(ctx, "telemetry", nil, &tele); err != nil {
		summary.DaemonAvailable = false
	} else {
		summary.DaemonAvailable = true
		summary.CurrentHeight = int64(tele.CementedCount)
		summary.TargetHeight = int64(tele.BlockCount)
		if summary.TargetHeight == 0 {
			summary.TargetHeight = summary.CurrentHeight
		}
		summary.Synced = summary.TargetHeight-summary.CurrentHeight <= syncLagTolerance
	}

	walletID := t.conf.Node[cryptoCode].WalletID
	if walletID == "" {
		// no node-managed wallet configured; nothing extra to check.
		summary.WalletAvailable = summary.DaemonAvailable
	} else {
		var wh rpc.WalletHeightResponse
		if err := client.Send(ctx, "wallet_height", rpc.WalletHeightRequest{Wallet: walletID}, &wh); err != nil {
			summary.WalletAvailable = false
		} else {
			summary.WalletAvailable = true
			summary.WalletHeight = int64(wh.Height)
		}
	}

	t.mu.Lock()
	prev, seen := t.summaries[cryptoCode]
	changed := !seen || prev.IsAvailable() != summary.IsAvailable()
	t.summaries[cryptoCode] = summary
	t.mu.Unlock()

	avail := 0.0
	if summary.IsAvailable() {
		avail = 1
	}
	metrics.NodeAvailable.WithLabelValues(cryptoCode).Set(avail)

	if changed {
		log.Printf("Tracker: %s availability is now %v (synced=%v wallet=%v)",
			cryptoCode, summary.IsAvailable(), summary.Synced, summary.WalletAvailable)
		t.bus.Send(nano.NODE_STATE_CHANGE, nano.DaemonStateChange{CryptoCode: cryptoCode, Summary: summary})
	}
	return summary
}
