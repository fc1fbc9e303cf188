package nano

// Nanogate event types

// bus.Send(PAY_SETTLED, payment)
// bus.Send(NODE_STATE_CHANGE, summary)

// Interface for any event
type EventType interface {
	Type() string
}

// slice of all msg types for config funcs lookup
var EVENT_TYPES []EventType = []EventType{EVENT_ALL("ALL"),
	EVENT_SYS("SYS"),
	EVENT_NODE("NODE"),
	EVENT_LEDGER("LEDGER"),
	EVENT_INV("INV"),
	EVENT_PAY("PAY")}

// Special category, do not use directly, represents *
type EVENT_ALL string

func (e EVENT_ALL) Type() string {
	return "ALL"
}

// System Events
type EVENT_SYS string

func (e EVENT_SYS) Type() string {
	return "SYS"
}

const (
	SYS_STARTUP EVENT_SYS = "STARTUP"
	SYS_ERR     EVENT_SYS = "ERR"
	SYS_MSG     EVENT_SYS = "MSG"
)

// Node Events (availability tracker)
type EVENT_NODE string

func (e EVENT_NODE) Type() string {
	return "NODE"
}

const (
	NODE_STATE_CHANGE EVENT_NODE = "STATE_CHANGE"
)

// Ledger Events (classified confirmations from stream or poller)
type EVENT_LEDGER string

func (e EVENT_LEDGER) Type() string {
	return "LEDGER"
}

const (
	LEDGER_SEND_TO_ADHOC     EVENT_LEDGER = "SEND_TO_ADHOC"
	LEDGER_RECEIVE_ON_ADHOC  EVENT_LEDGER = "RECEIVE_ON_ADHOC"
	LEDGER_SWEEP_FROM_ADHOC  EVENT_LEDGER = "SWEEP_FROM_ADHOC"
	LEDGER_RECEIVE_ON_WALLET EVENT_LEDGER = "RECEIVE_ON_WALLET"
)

// Invoice Events
type EVENT_INV string

func (e EVENT_INV) Type() string {
	return "INV"
}

const (
	INV_CREATED   EVENT_INV = "CREATED"
	INV_UPDATED   EVENT_INV = "UPDATED"
	INV_EXPIRED   EVENT_INV = "EXPIRED"
	INV_COMPLETED EVENT_INV = "COMPLETED"
)

// Payment Events
type EVENT_PAY string

func (e EVENT_PAY) Type() string {
	return "PAY"
}

const (
	PAY_SETTLED EVENT_PAY = "SETTLED"
	PAY_UPDATED EVENT_PAY = "UPDATED"
	PAY_SWEPT   EVENT_PAY = "SWEPT"
)

// EventTypeByName resolves a config string like "LEDGER" to a
// registered event family, for receiver setup.
func EventTypeByName(name string) (EventType, bool) {
	for _, t := range EVENT_TYPES {
		if t.Type() == name {
			return t, true
		}
	}
	return nil, false
}
