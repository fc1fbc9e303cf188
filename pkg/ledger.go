package nano

import (
	"time"
)

// WatchedAddress is one ledger account the gateway currently cares
// about: either an adhoc (per-invoice) receive account, or a merchant
// wallet destination account (Wallet=true). Uniqueness is by Address
// only.
type WatchedAddress struct {
	Address string `json:"address"`
	StoreID string `json:"store_id"`
	Wallet  bool   `json:"wallet,omitempty"`
}

// LedgerEventKind is the classified meaning of one confirmed block.
type LedgerEventKind string

const (
	// external payer sent funds to one of our adhoc accounts
	SendToAdhoc LedgerEventKind = "send-to-adhoc"
	// our own receive/open block on an adhoc account reached confirmation
	ReceiveOnAdhoc LedgerEventKind = "receive-on-adhoc"
	// sweep send from an adhoc account to the merchant wallet
	SweepFromAdhoc LedgerEventKind = "sweep-from-adhoc"
	// merchant wallet received the sweep
	ReceiveOnWallet LedgerEventKind = "receive-on-wallet"
)

// LedgerEvent is an immutable domain fact derived from one raw
// confirmation, from either the websocket stream or a poller. It is
// never persisted itself; the settlement engine derives a Payment
// record from it.
type LedgerEvent struct {
	CryptoCode string          `json:"crypto_code"`
	Kind       LedgerEventKind `json:"kind"`

	Account   string `json:"account"`    // account the block applies to
	BlockHash string `json:"block_hash"` // confirmed block hash
	AmountRaw string `json:"amount_raw"`

	// send-specific
	FromAccount string `json:"from_account,omitempty"`
	ToAccount   string `json:"to_account,omitempty"`

	// for receive events, the originating send hash if available
	SourceSendHash string `json:"source_send_hash,omitempty"`

	StoreID   string `json:"store_id,omitempty"`
	Confirmed bool   `json:"confirmed"`
}

// PaymentID is the idempotency key that prevents double-crediting the
// same inbound transfer: sourceSendHash@account when the source hash is
// known, else blockHash@account.
func (e LedgerEvent) PaymentID() string {
	if e.SourceSendHash != "" {
		return e.SourceSendHash + "@" + e.Account
	}
	return e.BlockHash + "@" + e.Account
}

// BusEventType maps the event kind onto a bus LEDGER event.
func (e LedgerEvent) BusEventType() EventType {
	switch e.Kind {
	case SendToAdhoc:
		return LEDGER_SEND_TO_ADHOC
	case ReceiveOnAdhoc:
		return LEDGER_RECEIVE_ON_ADHOC
	case SweepFromAdhoc:
		return LEDGER_SWEEP_FROM_ADHOC
	default:
		return LEDGER_RECEIVE_ON_WALLET
	}
}

// NodeSummary is the availability tracker's view of one node.
type NodeSummary struct {
	CryptoCode      string    `json:"crypto_code"`
	Synced          bool      `json:"synced"`
	DaemonAvailable bool      `json:"daemon_available"`
	WalletAvailable bool      `json:"wallet_available"`
	CurrentHeight   int64     `json:"current_height"`
	TargetHeight    int64     `json:"target_height"`
	WalletHeight    int64     `json:"wallet_height"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// IsAvailable is true only when the node is synced and its wallet
// answers; payment methods are unusable otherwise.
func (s NodeSummary) IsAvailable() bool {
	return s.Synced && s.WalletAvailable
}

// DaemonStateChange is published on the bus exactly once per
// availability edge.
type DaemonStateChange struct {
	CryptoCode string      `json:"crypto_code"`
	Summary    NodeSummary `json:"summary"`
}
