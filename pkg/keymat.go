package nano

// KeyMaterial is the durable record of one adhoc account's keys.
// PrivKeyEncrypted is opaque ciphertext from the Protector; the
// plaintext key exists only transiently in memory while signing. One
// record per adhoc account, written before the address is ever
// advertised to a payer. Losing it makes the funds unrecoverable.
type KeyMaterial struct {
	ID               string `json:"id"`
	PubKey           string `json:"pub_key"`
	PrivKeyEncrypted string `json:"-"`
	Account          string `json:"account"`
	InvoiceID        string `json:"invoice_id"`
}

// Protector is the opaque encrypt/decrypt capability guarding private
// keys at rest. The mechanism (key custody, rotation) is outside this
// module.
type Protector interface {
	Encrypt(plain []byte) (string, error)
	Decrypt(protected string) ([]byte, error)
}

// AddressSource mints adhoc receive accounts and resolves them back to
// invoices. Implemented by pkg/keys.
type AddressSource interface {
	// Prepare creates key material for an invoice, persists it, and
	// returns the new account. Must be durable before the address is
	// shown to a payer.
	Prepare(invoiceID string) (KeyMaterial, error)
	// PrivateKeyFor returns the decrypted private key hex for an
	// adhoc account, or a missing-key-material error.
	PrivateKeyFor(account string) (string, error)
	InvoiceIDFor(account string) (string, error)
	AccountFor(invoiceID string) (string, error)
}
