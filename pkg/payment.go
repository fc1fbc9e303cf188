package nano

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	// the confirmation topic signals finality, so payments go straight
	// to Settled; Pending exists only for records created ahead of a
	// confirmation (not the normal path).
	PaymentPending PaymentStatus = "Pending"
	PaymentSettled PaymentStatus = "Settled"
)

// Payment is the durable record of one inbound transfer credited to an
// invoice. ID is deterministic (LedgerEvent.PaymentID) so re-delivery
// of the same confirmation updates the row instead of duplicating it.
type Payment struct {
	ID        string          `json:"id"`
	InvoiceID string          `json:"invoice_id"`
	Status    PaymentStatus   `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Created   time.Time       `json:"created"`

	// block hashes proving provenance: the originating send and our
	// receive/open block.
	SendHash    string `json:"send_hash,omitempty"`
	ReceiveHash string `json:"receive_hash,omitempty"`

	AdhocAccount string `json:"adhoc_account"`
}

// ProofHashes returns the block hashes tying this payment to the ledger.
func (p Payment) ProofHashes() []string {
	proofs := []string{}
	if p.SendHash != "" {
		proofs = append(proofs, p.SendHash)
	}
	if p.ReceiveHash != "" {
		proofs = append(proofs, p.ReceiveHash)
	}
	return proofs
}
