package nano

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NodeStatus is the availability tracker's read surface.
type NodeStatus interface {
	Summaries() map[string]NodeSummary
	Summary(cryptoCode string) (NodeSummary, bool)
	IsAvailable(cryptoCode string) bool
}

// WatchRegistry is the listener's read surface over the watch set.
type WatchRegistry interface {
	Snapshot() []WatchedAddress
	Size() int
}

// NodeCommander is the slice of the ledger RPC client the facade hands
// out for wallet provisioning.
type NodeCommander interface {
	Send(ctx context.Context, action string, body any, result any) error
}

// CurrencyDeps bundles the per-currency services the API dispatches to.
type CurrencyDeps struct {
	Keys    AddressSource
	Watched WatchRegistry
	Node    NodeCommander
}

/*
API is the business-logic facade the web layer calls into. It owns no
goroutines; every method is a synchronous read or write against the
store plus bus notifications for the services that react asynchronously.
*/
type API struct {
	Store      Store
	Bus        MessageBus
	Nodes      NodeStatus
	Currencies map[string]CurrencyDeps
}

func NewAPI(store Store, bus MessageBus, nodes NodeStatus, currencies map[string]CurrencyDeps) API {
	return API{Store: store, Bus: bus, Nodes: nodes, Currencies: currencies}
}

type InvoiceCreateRequest struct {
	ID         string `json:"id"` // optional; minted when empty
	StoreID    string `json:"store_id"`
	CryptoCode string `json:"crypto_code"`
}

// InvoicePublic is the payer-facing view of an invoice.
type InvoicePublic struct {
	ID         string        `json:"id"`
	StoreID    string        `json:"store_id"`
	CryptoCode string        `json:"crypto_code"`
	Status     InvoiceStatus `json:"status"`
	Created    time.Time     `json:"created"`
	Account    string        `json:"account"`
	URI        string        `json:"uri"`
	Payments   []Payment     `json:"payments,omitempty"`
}

// PaymentURI builds the payment link wallets understand. Amount is in
// raw; zero amount yields a bare address link.
func PaymentURI(account, amountRaw string) string {
	if amountRaw == "" || amountRaw == "0" {
		return fmt.Sprintf("nano:%s", account)
	}
	return fmt.Sprintf("nano:%s?amount=%s", account, amountRaw)
}

// CreateInvoice registers an invoice and mints its adhoc receive
// account. Refused while the currency's node is unavailable: handing a
// payer an address we might not be able to settle on is worse than a
// retryable error.
func (a API) CreateInvoice(req InvoiceCreateRequest) (InvoicePublic, error) {
	if req.StoreID == "" {
		return InvoicePublic{}, NewErr(BadRequest, "store_id is required")
	}
	deps, ok := a.Currencies[req.CryptoCode]
	if !ok {
		return InvoicePublic{}, NewErr(BadRequest, "unknown currency: %s", req.CryptoCode)
	}
	if !a.Nodes.IsAvailable(req.CryptoCode) {
		return InvoicePublic{}, NewErr(NotAvailable, "node for %s is not available", req.CryptoCode)
	}

	inv := Invoice{
		ID:      req.ID,
		StoreID: req.StoreID,
		Status:  InvoiceNew,
		Created: time.Now().UTC(),
	}
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if existing, err := a.Store.GetInvoice(inv.ID); err == nil {
		return InvoicePublic{}, NewErr(AlreadyExists, "invoice exists: %s (store %s)", existing.ID, existing.StoreID)
	}
	if err := a.Store.StoreInvoice(inv); err != nil {
		return InvoicePublic{}, err
	}

	km, err := deps.Keys.Prepare(inv.ID)
	if err != nil {
		return InvoicePublic{}, err
	}

	a.Bus.Send(INV_CREATED, InvoiceStatusChange{
		InvoiceID: inv.ID,
		StoreID:   inv.StoreID,
		Status:    inv.Status,
	}, inv.ID)

	return InvoicePublic{
		ID:         inv.ID,
		StoreID:    inv.StoreID,
		CryptoCode: req.CryptoCode,
		Status:     inv.Status,
		Created:    inv.Created,
		Account:    km.Account,
		URI:        PaymentURI(km.Account, ""),
	}, nil
}

// GetInvoice returns an invoice with its settled payments and receive
// account.
func (a API) GetInvoice(id, cryptoCode string) (InvoicePublic, error) {
	deps, ok := a.Currencies[cryptoCode]
	if !ok {
		return InvoicePublic{}, NewErr(BadRequest, "unknown currency: %s", cryptoCode)
	}
	inv, err := a.Store.GetInvoice(id)
	if err != nil {
		return InvoicePublic{}, err
	}
	payments, err := a.Store.ListPaymentsForInvoice(id)
	if err != nil {
		return InvoicePublic{}, err
	}
	pub := InvoicePublic{
		ID:         inv.ID,
		StoreID:    inv.StoreID,
		CryptoCode: cryptoCode,
		Status:     inv.Status,
		Created:    inv.Created,
		Payments:   payments,
	}
	if account, err := deps.Keys.AccountFor(id); err == nil {
		pub.Account = account
		pub.URI = PaymentURI(account, "")
	}
	return pub, nil
}

// InvoiceTotal sums the settled payments credited to an invoice.
func (a API) InvoiceTotal(id string) (decimal.Decimal, error) {
	payments, err := a.Store.ListPaymentsForInvoice(id)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, p := range payments {
		if p.Status == PaymentSettled {
			total = total.Add(p.Amount)
		}
	}
	return total, nil
}

// MarkInvoice transitions an invoice and notifies the bus so the
// listener releases (or keeps) its watched address.
func (a API) MarkInvoice(id string, status InvoiceStatus) error {
	inv, err := a.Store.GetInvoice(id)
	if err != nil {
		return err
	}
	if inv.Terminal() {
		return NewErr(BadRequest, "invoice %s is already %s", id, inv.Status)
	}
	if err := a.Store.MarkInvoiceStatus(id, status); err != nil {
		return err
	}
	change := InvoiceStatusChange{InvoiceID: id, StoreID: inv.StoreID, Status: status}
	switch status {
	case InvoiceExpired:
		a.Bus.Send(INV_EXPIRED, change, id)
	case InvoiceCompleted:
		a.Bus.Send(INV_COMPLETED, change, id)
	default:
		a.Bus.Send(INV_UPDATED, change, id)
	}
	return nil
}

func (a API) GetPaymentConfig(storeID, cryptoCode string) (PaymentConfig, error) {
	if _, ok := a.Currencies[cryptoCode]; !ok {
		return PaymentConfig{}, NewErr(BadRequest, "unknown currency: %s", cryptoCode)
	}
	return a.Store.GetPaymentConfig(storeID, cryptoCode)
}

func (a API) SetPaymentConfig(cfg PaymentConfig) error {
	if cfg.StoreID == "" {
		return NewErr(BadRequest, "store_id is required")
	}
	if _, ok := a.Currencies[cfg.CryptoCode]; !ok {
		return NewErr(BadRequest, "unknown currency: %s", cfg.CryptoCode)
	}
	return a.Store.SetPaymentConfig(cfg)
}

// Node returns the RPC commander for a currency, for operations the
// facade does not model itself (wallet provisioning).
func (a API) Node(cryptoCode string) (NodeCommander, error) {
	deps, ok := a.Currencies[cryptoCode]
	if !ok || deps.Node == nil {
		return nil, NewErr(BadRequest, "unknown currency: %s", cryptoCode)
	}
	return deps.Node, nil
}

// WatchedAddresses returns the current watch set for a currency.
func (a API) WatchedAddresses(cryptoCode string) ([]WatchedAddress, error) {
	deps, ok := a.Currencies[cryptoCode]
	if !ok {
		return nil, NewErr(BadRequest, "unknown currency: %s", cryptoCode)
	}
	return deps.Watched.Snapshot(), nil
}

// NodeSummaries returns every tracked node's availability, keyed by
// currency.
func (a API) NodeSummaries() map[string]NodeSummary {
	return a.Nodes.Summaries()
}

// NodeSummary returns one currency's availability.
func (a API) NodeSummary(cryptoCode string) (NodeSummary, error) {
	s, ok := a.Nodes.Summary(cryptoCode)
	if !ok {
		return NodeSummary{}, NewErr(NotFound, "no node for currency: %s", cryptoCode)
	}
	return s, nil
}
