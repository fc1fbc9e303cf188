// Package listener watches the ledger for confirmations touching the
// gateway's accounts. Facts arrive on two redundant paths, a websocket
// confirmation stream and direct receivable polling, and both funnel
// through one classifier onto the message bus.
package listener

import (
	"context"
	"log"
	"time"

	nano "github.com/nanopay/nanogate/pkg"
	"github.com/nanopay/nanogate/pkg/metrics"
)

// Listener is the per-currency watch service. Implements conductor
// Service.
type Listener struct {
	cryptoCode string
	conf       nano.NodeConfig
	bus        nano.MessageBus
	store      nano.Store
	client     Commander

	registry *Registry
	stream   *StreamClient
	pollers  *pollerSet

	cancel context.CancelFunc
}

func NewListener(cryptoCode string, conf nano.NodeConfig, bus nano.MessageBus, store nano.Store, client Commander) *Listener {
	l := &Listener{
		cryptoCode: cryptoCode,
		conf:       conf,
		bus:        bus,
		store:      store,
		client:     client,
	}

	root, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.pollers = newPollerSet(root, cryptoCode, conf, client, l.handleConfirmation)
	l.registry = NewRegistry(RegistryHooks{
		StartStream: func() { l.stream.Start() },
		StopStream:  func() { l.stream.Stop() },
		StreamAdd:   func(a string) { l.stream.Update([]string{a}, nil) },
		StreamDel:   func(a string) { l.stream.Update(nil, []string{a}) },
		StartPoller: l.pollers.StartAddress,
		StopPoller:  l.pollers.StopAddress,
	})
	l.stream = NewStreamClient(root, cryptoCode, conf.WSURL, l.registry, l.handleConfirmation)
	return l
}

// Registry exposes the watch set for the settlement engine and webapi.
func (l *Listener) Registry() *Registry {
	return l.registry
}

// Watch adds an address to the watch set, starting its poller and the
// stream subscription as needed. Idempotent.
func (l *Listener) Watch(addr nano.WatchedAddress) {
	if l.registry.Add(addr) {
		metrics.WatchedAddresses.WithLabelValues(l.cryptoCode).Set(float64(l.registry.Size()))
		log.Printf("Listener %s: watching %s (store %s)", l.cryptoCode, addr.Address, addr.StoreID)
	}
}

// Unwatch drops an address from the watch set.
func (l *Listener) Unwatch(address string) {
	if l.registry.Remove(address) {
		metrics.WatchedAddresses.WithLabelValues(l.cryptoCode).Set(float64(l.registry.Size()))
		log.Printf("Listener %s: stopped watching %s", l.cryptoCode, address)
	}
}

// Implements conductor Service.
func (l *Listener) Run(started, stopped chan bool, stop chan context.Context) error {
	go func() {
		l.rebuild()
		l.discoverWallets()
		started <- true

		// merchant wallet configs can change at runtime; re-scan on the
		// wallet poll cadence so new destinations get watched without a
		// restart.
		discover := time.NewTicker(l.conf.WalletPollInterval())
		defer discover.Stop()
		for {
			select {
			case <-discover.C:
				l.discoverWallets()
			case <-stop:
				l.cancel()
				l.stream.Stop()
				l.pollers.StopAll()
				stopped <- true
				return
			}
		}
	}()
	return nil
}

// rebuild restores the watch set after a restart: every open invoice
// with key material gets its adhoc account watched again.
func (l *Listener) rebuild() {
	invoices, err := l.store.ListOpenInvoices()
	if err != nil {
		log.Printf("Listener %s: rebuild: listing open invoices: %v", l.cryptoCode, err)
		return
	}
	restored := 0
	for _, inv := range invoices {
		km, err := l.store.GetKeyMaterialByInvoice(inv.ID)
		if err != nil {
			if !nano.IsError(err, nano.NotFound) {
				log.Printf("Listener %s: rebuild: key material for invoice %s: %v", l.cryptoCode, inv.ID, err)
			}
			continue
		}
		l.Watch(nano.WatchedAddress{Address: km.Account, StoreID: inv.StoreID})
		restored++
	}
	log.Printf("Listener %s: rebuilt watch set, %d adhoc accounts restored", l.cryptoCode, restored)
}

// discoverWallets watches every enabled store's sweep destination and
// keeps a receive_all poller running for each node-managed wallet.
func (l *Listener) discoverWallets() {
	configs, err := l.store.ListPaymentConfigs(l.cryptoCode)
	if err != nil {
		log.Printf("Listener %s: listing payment configs: %v", l.cryptoCode, err)
		return
	}
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		if cfg.DestinationAccount != "" {
			l.Watch(nano.WatchedAddress{
				Address: cfg.DestinationAccount,
				StoreID: cfg.StoreID,
				Wallet:  true,
			})
		}
		if cfg.WalletID != "" && !l.pollers.PollingWallet(cfg.WalletID) {
			l.pollers.StartWallet(cfg.WalletID)
		}
	}
}

// handleConfirmation is the single funnel for both discovery paths.
func (l *Listener) handleConfirmation(c Confirmation) {
	ev, ok := Classify(l.cryptoCode, c, l.registry)
	if !ok {
		return
	}
	metrics.EventsClassified.WithLabelValues(l.cryptoCode, string(ev.Kind)).Inc()
	log.Printf("Listener %s: %s on %s block %s amount %s", l.cryptoCode, ev.Kind, ev.Account, ev.BlockHash, ev.AmountRaw)
	err := l.bus.Send(ev.BusEventType(), ev, ev.PaymentID())
	if err != nil {
		log.Printf("Listener %s: bus send: %v", l.cryptoCode, err)
	}
}
