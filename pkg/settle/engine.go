/*
Package settle turns classified ledger events into ledger mutations and
durable payment records.

The engine subscribes to the bus and reacts:

  - a send into an adhoc account: build, sign and publish the matching
    receive (or open) block so the funds actually enter the account;
  - a confirmed receive on an adhoc account: upsert the payment record
    under its deterministic ID, then sweep the full balance to the
    store's destination account;
  - invoice expiry or completion: release the invoice's watched address.

All ledger mutations for one account run in order on one queue
partition; a fresh chain snapshot is taken inside each attempt so a
retry never builds on stale frontier or balance.
*/
package settle

import (
	"context"
	"encoding/json"
	"log"
	"time"

	nano "github.com/nanopay/nanogate/pkg"
	"github.com/nanopay/nanogate/pkg/metrics"
	"github.com/nanopay/nanogate/pkg/raw"
	"github.com/nanopay/nanogate/pkg/rpc"
)

const (
	queueWorkers = 4
	queueDepth   = 64

	retryAttempts = 3
	retryDelay    = 2 * time.Second

	// Previous on the first block of an account's chain.
	openPrevious = "0000000000000000000000000000000000000000000000000000000000000000"
)

// Commander is the slice of the RPC client the engine needs.
type Commander interface {
	Send(ctx context.Context, action string, body any, result any) error
}

// WatchSet is the listener surface the engine drives: releasing (and
// restoring) watched addresses as invoices move through their lifecycle.
type WatchSet interface {
	Watch(addr nano.WatchedAddress)
	Unwatch(address string)
}

// Engine is the settlement service for one currency. Implements
// conductor Service.
type Engine struct {
	cryptoCode string
	conf       nano.NodeConfig
	bus        nano.MessageBus
	store      nano.Store
	client     Commander
	work       Commander // may be the same client; split when a work server is configured
	keys       nano.AddressSource
	watch      WatchSet

	rx    chan nano.Message
	queue *taskQueue
	root  context.Context
	stop  context.CancelFunc
}

func NewEngine(cryptoCode string, conf nano.NodeConfig, bus nano.MessageBus, store nano.Store, client, work Commander, keys nano.AddressSource, watch WatchSet) *Engine {
	if work == nil {
		work = client
	}
	root, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cryptoCode: cryptoCode,
		conf:       conf,
		bus:        bus,
		store:      store,
		client:     client,
		work:       work,
		keys:       keys,
		watch:      watch,
		rx:         make(chan nano.Message, queueDepth),
		queue:      newTaskQueue(queueWorkers, queueDepth),
		root:       root,
		stop:       cancel,
	}
	// core subscription: a burst that outruns the task queue must cost
	// messages, not the subscription. The receivable poller resurfaces
	// anything dropped here.
	bus.RegisterCore(e, nano.EVENT_LEDGER("LEDGER"), nano.EVENT_INV("INV"))
	return e
}

// Implements MessageSubscriber.
func (e *Engine) GetChan() chan nano.Message {
	return e.rx
}

// Implements conductor Service.
func (e *Engine) Run(started, stopped chan bool, stop chan context.Context) error {
	go func() {
		started <- true
		rx := e.rx
		for {
			select {
			case msg, ok := <-rx:
				if !ok {
					// channel closed out from under us; a nil channel
					// blocks so the loop waits on stop alone instead of
					// spinning on zero-value messages.
					rx = nil
					continue
				}
				e.dispatch(msg)
			case <-stop:
				e.stop()
				e.queue.Stop()
				stopped <- true
				return
			}
		}
	}()
	return nil
}

func (e *Engine) dispatch(msg nano.Message) {
	switch msg.EventType.(type) {
	case nano.EVENT_LEDGER:
		var ev nano.LedgerEvent
		if err := json.Unmarshal(msg.Message, &ev); err != nil {
			log.Printf("Settle %s: bad ledger event payload: %v", e.cryptoCode, err)
			return
		}
		if ev.CryptoCode != e.cryptoCode {
			return
		}
		// keyed by account: all mutations of one chain stay ordered.
		e.queue.Submit(ev.Account, func() { e.onLedgerEvent(ev) })

	case nano.EVENT_INV:
		var chg nano.InvoiceStatusChange
		if err := json.Unmarshal(msg.Message, &chg); err != nil {
			log.Printf("Settle %s: bad invoice event payload: %v", e.cryptoCode, err)
			return
		}
		e.queue.Submit(chg.InvoiceID, func() { e.onInvoiceChange(msg.EventType, chg) })
	}
}

func (e *Engine) onLedgerEvent(ev nano.LedgerEvent) {
	switch ev.Kind {
	case nano.SendToAdhoc:
		e.pocketSend(ev)
	case nano.ReceiveOnAdhoc:
		e.settle(ev)
	case nano.SweepFromAdhoc:
		log.Printf("Settle %s: sweep %s confirmed from %s (%s raw)", e.cryptoCode, ev.BlockHash, ev.Account, ev.AmountRaw)
	case nano.ReceiveOnWallet:
		log.Printf("Settle %s: wallet %s received %s raw (block %s)", e.cryptoCode, ev.Account, ev.AmountRaw, ev.BlockHash)
	}
}

// pocketSend answers an inbound send with the receive (or open) block
// that moves the funds into the adhoc account.
func (e *Engine) pocketSend(ev nano.LedgerEvent) {
	priv, err := e.keys.PrivateKeyFor(ev.Account)
	if err != nil {
		if nano.IsError(err, nano.MissingKeyMaterial) || nano.IsError(err, nano.NotFound) {
			// a merchant wallet destination: the node's wallet layer
			// pockets it via receive_all, nothing for us to sign.
			log.Printf("Settle %s: no key material for %s, leaving receive to the wallet layer", e.cryptoCode, ev.Account)
			return
		}
		log.Printf("Settle %s: key lookup for %s: %v", e.cryptoCode, ev.Account, err)
		return
	}

	err = e.withRetry("receive", func() error {
		hash, err := e.receiveBlock(e.root, ev.Account, ev.BlockHash, ev.AmountRaw, priv)
		if err != nil {
			return err
		}
		log.Printf("Settle %s: published receive %s on %s for send %s", e.cryptoCode, hash, ev.Account, ev.BlockHash)
		return nil
	})
	if err != nil {
		log.Printf("Settle %s: giving up receiving send %s on %s: %v", e.cryptoCode, ev.BlockHash, ev.Account, err)
	}
}

// receiveBlock builds, signs and publishes one receive. A fresh
// account_info snapshot inside the attempt decides open-vs-receive and
// the balance; the send may already be pocketed on a retry, in which
// case the node rejects the duplicate and the confirmation path has the
// truth.
func (e *Engine) receiveBlock(ctx context.Context, account, sendHash, amountRaw, priv string) (string, error) {
	var info rpc.AccountInfoResponse
	err := e.client.Send(ctx, "account_info", rpc.AccountInfoRequest{
		Account:          account,
		Representative:   true,
		IncludeConfirmed: true,
	}, &info)

	previous := openPrevious
	balance := amountRaw
	representative := e.conf.Representative
	workRoot := ""

	switch {
	case err == nil && info.Frontier != "":
		previous = info.Frontier
		balance = raw.Add(info.BestBalance(), amountRaw)
		if info.Representative != "" {
			representative = info.Representative
		}
		workRoot = info.Frontier
	case err == nil || nano.IsRemoteError(err):
		// unopened account: the work root is the account's public key.
		var key rpc.AccountKeyResponse
		if kerr := e.client.Send(ctx, "account_key", rpc.AccountKeyRequest{Account: account}, &key); kerr != nil {
			return "", kerr
		}
		workRoot = key.Key
	default:
		return "", err
	}
	if representative == "" {
		// self-representation until a vote weight delegate is configured.
		representative = account
	}

	var work rpc.WorkGenerateResponse
	if err := e.work.Send(ctx, "work_generate", rpc.WorkGenerateRequest{Hash: workRoot}, &work); err != nil {
		return "", err
	}

	var created rpc.BlockCreateResponse
	err = e.client.Send(ctx, "block_create", rpc.BlockCreateRequest{
		Type:           "state",
		Account:        account,
		Previous:       previous,
		Representative: representative,
		Balance:        balance,
		Link:           sendHash,
		Key:            priv,
		Work:           work.Work,
		JsonBlock:      true,
	}, &created)
	if err != nil {
		return "", err
	}

	subtype := "receive"
	if previous == openPrevious {
		subtype = "open"
	}
	var processed rpc.ProcessResponse
	err = e.client.Send(ctx, "process", rpc.ProcessRequest{
		JsonBlock: true,
		Subtype:   subtype,
		Block:     created.Block,
	}, &processed)
	if err != nil {
		return "", err
	}
	return processed.Hash, nil
}

// settle records the confirmed receive as a payment and sweeps the
// account's full balance to the store's destination.
func (e *Engine) settle(ev nano.LedgerEvent) {
	invoiceID, err := e.keys.InvoiceIDFor(ev.Account)
	if err != nil {
		log.Printf("Settle %s: no invoice for adhoc account %s: %v", e.cryptoCode, ev.Account, err)
		return
	}

	payment := nano.Payment{
		ID:           ev.PaymentID(),
		InvoiceID:    invoiceID,
		Status:       nano.PaymentSettled,
		Amount:       raw.ToDecimal(ev.AmountRaw),
		Currency:     e.cryptoCode,
		Created:      time.Now(),
		SendHash:     ev.SourceSendHash,
		ReceiveHash:  ev.BlockHash,
		AdhocAccount: ev.Account,
	}
	created, err := e.store.UpsertPayment(payment)
	if err != nil {
		log.Printf("Settle %s: storing payment %s: %v", e.cryptoCode, payment.ID, err)
		return
	}
	if created {
		metrics.PaymentsSettled.WithLabelValues(e.cryptoCode, "created").Inc()
		e.bus.Send(nano.PAY_SETTLED, payment, payment.ID)
	} else {
		metrics.PaymentsSettled.WithLabelValues(e.cryptoCode, "updated").Inc()
		e.bus.Send(nano.PAY_UPDATED, payment, payment.ID)
	}

	e.sweep(ev, payment)
}

// sweep moves the adhoc account's entire confirmed balance to the
// store's destination account. The destination is read at settlement
// time, so a merchant who changes it mid-invoice gets the new one.
func (e *Engine) sweep(ev nano.LedgerEvent, payment nano.Payment) {
	cfg, err := e.store.GetPaymentConfig(ev.StoreID, e.cryptoCode)
	if err != nil {
		log.Printf("Settle %s: payment config for store %s: %v", e.cryptoCode, ev.StoreID, err)
		return
	}
	if cfg.DestinationAccount == "" {
		log.Printf("Settle %s: store %s has no destination account, funds stay on %s", e.cryptoCode, ev.StoreID, ev.Account)
		return
	}
	if cfg.DestinationAccount == ev.Account {
		return
	}

	priv, err := e.keys.PrivateKeyFor(ev.Account)
	if err != nil {
		log.Printf("Settle %s: key lookup for sweep of %s: %v", e.cryptoCode, ev.Account, err)
		return
	}

	err = e.withRetry("sweep", func() error {
		hash, amount, err := e.sendAll(e.root, ev.Account, cfg.DestinationAccount, priv)
		if err != nil {
			return err
		}
		if hash == "" {
			return nil // nothing left to sweep
		}
		log.Printf("Settle %s: swept %s raw from %s to %s (block %s)", e.cryptoCode, amount, ev.Account, cfg.DestinationAccount, hash)
		return e.bus.Send(nano.PAY_SWEPT, nano.LedgerEvent{
			CryptoCode:  e.cryptoCode,
			Kind:        nano.SweepFromAdhoc,
			Account:     ev.Account,
			BlockHash:   hash,
			AmountRaw:   amount,
			FromAccount: ev.Account,
			ToAccount:   cfg.DestinationAccount,
			StoreID:     ev.StoreID,
		}, payment.ID)
	})
	if err != nil {
		log.Printf("Settle %s: giving up sweeping %s: %v", e.cryptoCode, ev.Account, err)
	}
}

// sendAll publishes a send of the account's full confirmed balance.
// Returns empty hash when the balance is already zero.
func (e *Engine) sendAll(ctx context.Context, account, dest, priv string) (hash, amount string, err error) {
	var info rpc.AccountInfoResponse
	err = e.client.Send(ctx, "account_info", rpc.AccountInfoRequest{
		Account:          account,
		Representative:   true,
		IncludeConfirmed: true,
	}, &info)
	if err != nil {
		return "", "", err
	}
	balance := info.BestBalance()
	if raw.IsZero(balance) {
		return "", "", nil
	}

	var destKey rpc.AccountKeyResponse
	if err := e.client.Send(ctx, "account_key", rpc.AccountKeyRequest{Account: dest}, &destKey); err != nil {
		return "", "", err
	}

	var work rpc.WorkGenerateResponse
	if err := e.work.Send(ctx, "work_generate", rpc.WorkGenerateRequest{Hash: info.Frontier}, &work); err != nil {
		return "", "", err
	}

	representative := info.Representative
	if representative == "" {
		representative = account
	}
	var created rpc.BlockCreateResponse
	err = e.client.Send(ctx, "block_create", rpc.BlockCreateRequest{
		Type:           "state",
		Account:        account,
		Previous:       info.Frontier,
		Representative: representative,
		Balance:        "0",
		Link:           destKey.Key,
		Key:            priv,
		Work:           work.Work,
		JsonBlock:      true,
	}, &created)
	if err != nil {
		return "", "", err
	}

	var processed rpc.ProcessResponse
	err = e.client.Send(ctx, "process", rpc.ProcessRequest{
		JsonBlock: true,
		Subtype:   "send",
		Block:     created.Block,
	}, &processed)
	if err != nil {
		return "", "", err
	}
	return processed.Hash, balance, nil
}

// onInvoiceChange releases (or restores) the invoice's adhoc address.
func (e *Engine) onInvoiceChange(t nano.EventType, chg nano.InvoiceStatusChange) {
	account, err := e.keys.AccountFor(chg.InvoiceID)
	if err != nil {
		if !nano.IsError(err, nano.NotFound) {
			log.Printf("Settle %s: account for invoice %s: %v", e.cryptoCode, chg.InvoiceID, err)
		}
		return
	}
	switch t {
	case nano.INV_EXPIRED, nano.INV_COMPLETED:
		e.watch.Unwatch(account)
	case nano.INV_CREATED:
		e.watch.Watch(nano.WatchedAddress{Address: account, StoreID: chg.StoreID})
	}
}

// withRetry reruns a ledger-mutating sequence a bounded number of
// times. Each attempt re-reads chain state, so retries never act on a
// stale snapshot.
func (e *Engine) withRetry(op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		log.Printf("Settle %s: %s attempt %d/%d: %v", e.cryptoCode, op, attempt, retryAttempts, err)
		if attempt < retryAttempts {
			metrics.SettlementRetries.WithLabelValues(e.cryptoCode, op).Inc()
			select {
			case <-e.root.Done():
				return err
			case <-time.After(retryDelay):
			}
		}
	}
	metrics.SettlementFailures.WithLabelValues(e.cryptoCode, op).Inc()
	return err
}
