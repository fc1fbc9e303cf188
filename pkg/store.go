package nano

type Store interface {
	// StoreKeyMaterial persists adhoc key material. Fails with
	// already-exists if the account or invoice already has a record.
	StoreKeyMaterial(km KeyMaterial) error
	// GetKeyMaterialByAccount returns the record for an adhoc account.
	GetKeyMaterialByAccount(account string) (KeyMaterial, error)
	// GetKeyMaterialByInvoice returns the record for an invoice.
	GetKeyMaterialByInvoice(invoiceID string) (KeyMaterial, error)

	// UpsertPayment creates the payment if its ID is new, otherwise
	// updates the existing row in place. Returns true when a new row
	// was created. This is the idempotency point for duplicate
	// confirmation delivery.
	UpsertPayment(p Payment) (created bool, err error)
	// GetPayment returns the payment with the given deterministic ID.
	GetPayment(id string) (Payment, error)
	// ListPaymentsForInvoice returns all payments credited to an invoice.
	ListPaymentsForInvoice(invoiceID string) ([]Payment, error)

	// StoreInvoice stores or updates an invoice record.
	StoreInvoice(inv Invoice) error
	// GetInvoice returns the invoice with the given ID.
	GetInvoice(id string) (Invoice, error)
	// ListOpenInvoices returns invoices not yet in a terminal state,
	// used to rebuild the watch set on startup.
	ListOpenInvoices() ([]Invoice, error)
	// MarkInvoiceStatus transitions an invoice's status.
	MarkInvoiceStatus(id string, status InvoiceStatus) error

	// GetPaymentConfig returns a store's payment settings for a
	// currency; a zero-value disabled config if none is set.
	GetPaymentConfig(storeID, cryptoCode string) (PaymentConfig, error)
	// SetPaymentConfig stores a store's payment settings.
	SetPaymentConfig(cfg PaymentConfig) error
	// ListPaymentConfigs returns every stored payment config for a
	// currency, used by the wallet-discovery poller.
	ListPaymentConfigs(cryptoCode string) ([]PaymentConfig, error)

	// Defer until shutdown.
	Close()
}
