package nano

import (
	"time"
)

type InvoiceStatus string

const (
	InvoiceNew        InvoiceStatus = "New"
	InvoiceProcessing InvoiceStatus = "Processing"
	InvoiceCompleted  InvoiceStatus = "Completed"
	InvoiceExpired    InvoiceStatus = "Expired"
)

// Invoice is the narrow view of an invoice the settlement core needs:
// enough to correlate an adhoc account back to a store and decide when
// its watch resources can be released. The merchant-facing invoice
// lifecycle lives outside this module.
type Invoice struct {
	ID      string        `json:"id"`
	StoreID string        `json:"store_id"`
	Status  InvoiceStatus `json:"status"`
	Created time.Time     `json:"created"`
}

// Terminal reports whether the invoice no longer needs a watched
// address.
func (i Invoice) Terminal() bool {
	return i.Status == InvoiceCompleted || i.Status == InvoiceExpired
}

// InvoiceStatusChange is published on the bus (INV events) when an
// invoice transitions; the settlement engine uses Expired/Completed to
// release the invoice's adhoc address.
type InvoiceStatusChange struct {
	InvoiceID string        `json:"invoice_id"`
	StoreID   string        `json:"store_id"`
	Status    InvoiceStatus `json:"status"`
}

// PaymentConfig is a store's payment settings for one currency.
// DestinationAccount is where swept funds land; WalletID is the
// node-managed wallet receive_all runs against.
type PaymentConfig struct {
	StoreID            string `json:"store_id"`
	CryptoCode         string `json:"crypto_code"`
	Enabled            bool   `json:"enabled"`
	WalletID           string `json:"wallet_id,omitempty"`
	DestinationAccount string `json:"destination_account,omitempty"`
}
