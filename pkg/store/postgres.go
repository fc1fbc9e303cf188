package store

import (
	"database/sql"

	nano "github.com/nanopay/nanogate/pkg"

	"github.com/lib/pq"
)

const SET_UP_POSTGRES string = `
CREATE TABLE IF NOT EXISTS key_material (
	id TEXT NOT NULL PRIMARY KEY,
	account TEXT NOT NULL UNIQUE,
	pub_key TEXT NOT NULL,
	privkey_enc TEXT NOT NULL,
	invoice_id TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS payment (
	id TEXT NOT NULL PRIMARY KEY,
	invoice_id TEXT NOT NULL,
	status TEXT NOT NULL,
	amount TEXT NOT NULL,
	currency TEXT NOT NULL,
	created BIGINT NOT NULL,
	send_hash TEXT NOT NULL,
	receive_hash TEXT NOT NULL,
	adhoc_account TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS payment_invoice_i ON payment (invoice_id);

CREATE TABLE IF NOT EXISTS invoice (
	id TEXT NOT NULL PRIMARY KEY,
	store_id TEXT NOT NULL,
	status TEXT NOT NULL,
	created BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS invoice_status_i ON invoice (status);

CREATE TABLE IF NOT EXISTS payment_config (
	store_id TEXT NOT NULL,
	crypto_code TEXT NOT NULL,
	enabled BOOLEAN NOT NULL,
	wallet_id TEXT NOT NULL,
	destination_account TEXT NOT NULL,
	PRIMARY KEY (store_id, crypto_code)
);
`

// interface guard ensures Postgres implements nano.Store
var _ nano.Store = Postgres{}

type Postgres struct {
	db *sql.DB
}

// NewPostgres returns a nano.Store implementor backed by postgres, for
// deployments where the gateway's state must outlive a single host.
func NewPostgres(connStr string) (Postgres, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return Postgres{}, dbErr(err, "opening database")
	}
	_, err = db.Exec(SET_UP_POSTGRES)
	if err != nil {
		return Postgres{}, dbErr(err, "creating tables")
	}
	return Postgres{db}, nil
}

func (s Postgres) Close() {
	s.db.Close()
}

func (s Postgres) StoreKeyMaterial(km nano.KeyMaterial) error {
	_, err := s.db.Exec(
		"INSERT INTO key_material (id, account, pub_key, privkey_enc, invoice_id) VALUES ($1, $2, $3, $4, $5)",
		km.ID, km.Account, km.PubKey, km.PrivKeyEncrypted, km.InvoiceID)
	if err != nil {
		if isPqUniqueViolation(err) {
			return nano.NewErr(nano.AlreadyExists, "key material exists for account %s or invoice %s", km.Account, km.InvoiceID)
		}
		return dbErr(err, "StoreKeyMaterial")
	}
	return nil
}

func (s Postgres) GetKeyMaterialByAccount(account string) (nano.KeyMaterial, error) {
	row := s.db.QueryRow(
		"SELECT id, account, pub_key, privkey_enc, invoice_id FROM key_material WHERE account = $1", account)
	return scanKeyMaterial(row, account)
}

func (s Postgres) GetKeyMaterialByInvoice(invoiceID string) (nano.KeyMaterial, error) {
	row := s.db.QueryRow(
		"SELECT id, account, pub_key, privkey_enc, invoice_id FROM key_material WHERE invoice_id = $1", invoiceID)
	return scanKeyMaterial(row, invoiceID)
}

func (s Postgres) UpsertPayment(p nano.Payment) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, dbErr(err, "UpsertPayment: begin")
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRow("SELECT EXISTS(SELECT 1 FROM payment WHERE id = $1)", p.ID).Scan(&exists)
	if err != nil {
		return false, dbErr(err, "UpsertPayment: exists")
	}
	if exists {
		_, err = tx.Exec(
			"UPDATE payment SET status = $1, amount = $2, send_hash = $3, receive_hash = $4 WHERE id = $5",
			p.Status, p.Amount.String(), p.SendHash, p.ReceiveHash, p.ID)
	} else {
		_, err = tx.Exec(
			"INSERT INTO payment (id, invoice_id, status, amount, currency, created, send_hash, receive_hash, adhoc_account) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)",
			p.ID, p.InvoiceID, p.Status, p.Amount.String(), p.Currency, p.Created.Unix(), p.SendHash, p.ReceiveHash, p.AdhocAccount)
	}
	if err != nil {
		return false, dbErr(err, "UpsertPayment: write")
	}
	if err = tx.Commit(); err != nil {
		return false, dbErr(err, "UpsertPayment: commit")
	}
	return !exists, nil
}

func (s Postgres) GetPayment(id string) (nano.Payment, error) {
	row := s.db.QueryRow(
		"SELECT id, invoice_id, status, amount, currency, created, send_hash, receive_hash, adhoc_account FROM payment WHERE id = $1", id)
	return scanPayment(row, id)
}

func (s Postgres) ListPaymentsForInvoice(invoiceID string) ([]nano.Payment, error) {
	rows, err := s.db.Query(
		"SELECT id, invoice_id, status, amount, currency, created, send_hash, receive_hash, adhoc_account FROM payment WHERE invoice_id = $1 ORDER BY created", invoiceID)
	if err != nil {
		return nil, dbErr(err, "ListPaymentsForInvoice")
	}
	defer rows.Close()
	return collectPayments(rows)
}

func (s Postgres) StoreInvoice(inv nano.Invoice) error {
	_, err := s.db.Exec(
		"INSERT INTO invoice (id, store_id, status, created) VALUES ($1, $2, $3, $4) ON CONFLICT (id) DO UPDATE SET status = excluded.status",
		inv.ID, inv.StoreID, inv.Status, inv.Created.Unix())
	if err != nil {
		return dbErr(err, "StoreInvoice")
	}
	return nil
}

func (s Postgres) GetInvoice(id string) (nano.Invoice, error) {
	row := s.db.QueryRow("SELECT id, store_id, status, created FROM invoice WHERE id = $1", id)
	return scanInvoice(row, id)
}

func (s Postgres) ListOpenInvoices() ([]nano.Invoice, error) {
	rows, err := s.db.Query(
		"SELECT id, store_id, status, created FROM invoice WHERE status NOT IN ($1, $2)",
		nano.InvoiceCompleted, nano.InvoiceExpired)
	if err != nil {
		return nil, dbErr(err, "ListOpenInvoices")
	}
	defer rows.Close()
	return collectInvoices(rows)
}

func (s Postgres) MarkInvoiceStatus(id string, status nano.InvoiceStatus) error {
	res, err := s.db.Exec("UPDATE invoice SET status = $1 WHERE id = $2", status, id)
	if err != nil {
		return dbErr(err, "MarkInvoiceStatus")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbErr(err, "MarkInvoiceStatus")
	}
	if n == 0 {
		return nano.NewErr(nano.NotFound, "invoice not found: %v", id)
	}
	return nil
}

func (s Postgres) GetPaymentConfig(storeID, cryptoCode string) (nano.PaymentConfig, error) {
	row := s.db.QueryRow(
		"SELECT store_id, crypto_code, enabled, wallet_id, destination_account FROM payment_config WHERE store_id = $1 AND crypto_code = $2",
		storeID, cryptoCode)
	cfg, err := scanPaymentConfig(row)
	if nano.IsNotFoundError(err) {
		return nano.PaymentConfig{StoreID: storeID, CryptoCode: cryptoCode}, nil
	}
	return cfg, err
}

func (s Postgres) SetPaymentConfig(cfg nano.PaymentConfig) error {
	_, err := s.db.Exec(
		"INSERT INTO payment_config (store_id, crypto_code, enabled, wallet_id, destination_account) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (store_id, crypto_code) DO UPDATE SET enabled = excluded.enabled, wallet_id = excluded.wallet_id, destination_account = excluded.destination_account",
		cfg.StoreID, cfg.CryptoCode, cfg.Enabled, cfg.WalletID, cfg.DestinationAccount)
	if err != nil {
		return dbErr(err, "SetPaymentConfig")
	}
	return nil
}

func (s Postgres) ListPaymentConfigs(cryptoCode string) ([]nano.PaymentConfig, error) {
	rows, err := s.db.Query(
		"SELECT store_id, crypto_code, enabled, wallet_id, destination_account FROM payment_config WHERE crypto_code = $1", cryptoCode)
	if err != nil {
		return nil, dbErr(err, "ListPaymentConfigs")
	}
	defer rows.Close()
	var out []nano.PaymentConfig
	for rows.Next() {
		var cfg nano.PaymentConfig
		if err := rows.Scan(&cfg.StoreID, &cfg.CryptoCode, &cfg.Enabled, &cfg.WalletID, &cfg.DestinationAccount); err != nil {
			return nil, dbErr(err, "ListPaymentConfigs: scan")
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

func isPqUniqueViolation(err error) bool {
	if e, ok := err.(*pq.Error); ok {
		return e.Code == "23505"
	}
	return false
}
