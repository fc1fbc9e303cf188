package store

import (
	"database/sql"
	"time"

	nano "github.com/nanopay/nanogate/pkg"
	"github.com/shopspring/decimal"

	sqlite3 "github.com/mattn/go-sqlite3"
)

var SETUP_SQL string = `
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
	created INTEGER NOT NULL,
	send_hash TEXT NOT NULL,
	receive_hash TEXT NOT NULL,
	adhoc_account TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS payment_invoice_i ON payment (invoice_id);

CREATE TABLE IF NOT EXISTS invoice (
	id TEXT NOT NULL PRIMARY KEY,
	store_id TEXT NOT NULL,
	status TEXT NOT NULL,
	created INTEGER NOT NULL
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

// interface guard ensures SQLite implements nano.Store
var _ nano.Store = SQLite{}

type SQLite struct {
	db *sql.DB
}

// NewSQLite returns a nano.Store implementor that uses sqlite
func NewSQLite(fileName string) (SQLite, error) {
	db, err := sql.Open("sqlite3", fileName)
	if err != nil {
		return SQLite{}, dbErr(err, "opening database")
	}
	// init tables / indexes
	_, err = db.Exec(SETUP_SQL)
	if err != nil {
		return SQLite{}, dbErr(err, "creating tables")
	}
	return SQLite{db}, nil
}

// Defer this until shutdown
func (s SQLite) Close() {
	s.db.Close()
}

func (s SQLite) StoreKeyMaterial(km nano.KeyMaterial) error {
	_, err := s.db.Exec(
		"INSERT INTO key_material (id, account, pub_key, privkey_enc, invoice_id) VALUES (?, ?, ?, ?, ?)",
		km.ID, km.Account, km.PubKey, km.PrivKeyEncrypted, km.InvoiceID)
	if err != nil {
		if isUniqueViolation(err) {
			return nano.NewErr(nano.AlreadyExists, "key material exists for account %s or invoice %s", km.Account, km.InvoiceID)
		}
		return dbErr(err, "StoreKeyMaterial")
	}
	return nil
}

func (s SQLite) GetKeyMaterialByAccount(account string) (nano.KeyMaterial, error) {
	row := s.db.QueryRow(
		"SELECT id, account, pub_key, privkey_enc, invoice_id FROM key_material WHERE account = ?", account)
	return scanKeyMaterial(row, account)
}

func (s SQLite) GetKeyMaterialByInvoice(invoiceID string) (nano.KeyMaterial, error) {
	row := s.db.QueryRow(
		"SELECT id, account, pub_key, privkey_enc, invoice_id FROM key_material WHERE invoice_id = ?", invoiceID)
	return scanKeyMaterial(row, invoiceID)
}

func (s SQLite) UpsertPayment(p nano.Payment) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, dbErr(err, "UpsertPayment: begin")
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRow("SELECT EXISTS(SELECT 1 FROM payment WHERE id = ?)", p.ID).Scan(&exists)
	if err != nil {
		return false, dbErr(err, "UpsertPayment: exists")
	}
	if exists {
		_, err = tx.Exec(
			"UPDATE payment SET status = ?, amount = ?, send_hash = ?, receive_hash = ? WHERE id = ?",
			p.Status, p.Amount.String(), p.SendHash, p.ReceiveHash, p.ID)
	} else {
		_, err = tx.Exec(
			"INSERT INTO payment (id, invoice_id, status, amount, currency, created, send_hash, receive_hash, adhoc_account) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
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

func (s SQLite) GetPayment(id string) (nano.Payment, error) {
	row := s.db.QueryRow(
		"SELECT id, invoice_id, status, amount, currency, created, send_hash, receive_hash, adhoc_account FROM payment WHERE id = ?", id)
	return scanPayment(row, id)
}

func (s SQLite) ListPaymentsForInvoice(invoiceID string) ([]nano.Payment, error) {
	rows, err := s.db.Query(
		"SELECT id, invoice_id, status, amount, currency, created, send_hash, receive_hash, adhoc_account FROM payment WHERE invoice_id = ? ORDER BY created", invoiceID)
	if err != nil {
		return nil, dbErr(err, "ListPaymentsForInvoice")
	}
	defer rows.Close()
	return collectPayments(rows)
}

func (s SQLite) StoreInvoice(inv nano.Invoice) error {
	_, err := s.db.Exec(
		"INSERT INTO invoice (id, store_id, status, created) VALUES (?, ?, ?, ?) ON CONFLICT(id) DO UPDATE SET status = excluded.status",
		inv.ID, inv.StoreID, inv.Status, inv.Created.Unix())
	if err != nil {
		return dbErr(err, "StoreInvoice")
	}
	return nil
}

func (s SQLite) GetInvoice(id string) (nano.Invoice, error) {
	row := s.db.QueryRow("SELECT id, store_id, status, created FROM invoice WHERE id = ?", id)
	return scanInvoice(row, id)
}

func (s SQLite) ListOpenInvoices() ([]nano.Invoice, error) {
	rows, err := s.db.Query(
		"SELECT id, store_id, status, created FROM invoice WHERE status NOT IN (?, ?)",
		nano.InvoiceCompleted, nano.InvoiceExpired)
	if err != nil {
		return nil, dbErr(err, "ListOpenInvoices")
	}
	defer rows.Close()
	return collectInvoices(rows)
}

func (s SQLite) MarkInvoiceStatus(id string, status nano.InvoiceStatus) error {
	res, err := s.db.Exec("UPDATE invoice SET status = ? WHERE id = ?", status, id)
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

func (s SQLite) GetPaymentConfig(storeID, cryptoCode string) (nano.PaymentConfig, error) {
	row := s.db.QueryRow(
		"SELECT store_id, crypto_code, enabled, wallet_id, destination_account FROM payment_config WHERE store_id = ? AND crypto_code = ?",
		storeID, cryptoCode)
	cfg, err := scanPaymentConfig(row)
	if nano.IsNotFoundError(err) {
		// absence means "not set up", which is just a disabled config.
		return nano.PaymentConfig{StoreID: storeID, CryptoCode: cryptoCode}, nil
	}
	return cfg, err
}

func (s SQLite) SetPaymentConfig(cfg nano.PaymentConfig) error {
	_, err := s.db.Exec(
		"INSERT INTO payment_config (store_id, crypto_code, enabled, wallet_id, destination_account) VALUES (?, ?, ?, ?, ?) ON CONFLICT(store_id, crypto_code) DO UPDATE SET enabled = excluded.enabled, wallet_id = excluded.wallet_id, destination_account = excluded.destination_account",
		cfg.StoreID, cfg.CryptoCode, cfg.Enabled, cfg.WalletID, cfg.DestinationAccount)
	if err != nil {
		return dbErr(err, "SetPaymentConfig")
	}
	return nil
}

func (s SQLite) ListPaymentConfigs(cryptoCode string) ([]nano.PaymentConfig, error) {
	rows, err := s.db.Query(
		"SELECT store_id, crypto_code, enabled, wallet_id, destination_account FROM payment_config WHERE crypto_code = ?", cryptoCode)
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

// row scanning shared with the postgres store.

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKeyMaterial(row rowScanner, ref string) (nano.KeyMaterial, error) {
	var km nano.KeyMaterial
	err := row.Scan(&km.ID, &km.Account, &km.PubKey, &km.PrivKeyEncrypted, &km.InvoiceID)
	if err == sql.ErrNoRows {
		return nano.KeyMaterial{}, nano.NewErr(nano.NotFound, "key material not found: %v", ref)
	}
	if err != nil {
		return nano.KeyMaterial{}, dbErr(err, "scanKeyMaterial")
	}
	return km, nil
}

func scanPayment(row rowScanner, id string) (nano.Payment, error) {
	var p nano.Payment
	var amount string
	var created int64
	err := row.Scan(&p.ID, &p.InvoiceID, &p.Status, &amount, &p.Currency, &created, &p.SendHash, &p.ReceiveHash, &p.AdhocAccount)
	if err == sql.ErrNoRows {
		return nano.Payment{}, nano.NewErr(nano.NotFound, "payment not found: %v", id)
	}
	if err != nil {
		return nano.Payment{}, dbErr(err, "scanPayment")
	}
	p.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nano.Payment{}, dbErr(err, "scanPayment: amount")
	}
	p.Created = time.Unix(created, 0).UTC()
	return p, nil
}

func collectPayments(rows *sql.Rows) ([]nano.Payment, error) {
	var out []nano.Payment
	for rows.Next() {
		p, err := scanPayment(rows, "")
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanInvoice(row rowScanner, id string) (nano.Invoice, error) {
	var inv nano.Invoice
	var created int64
	err := row.Scan(&inv.ID, &inv.StoreID, &inv.Status, &created)
	if err == sql.ErrNoRows {
		return nano.Invoice{}, nano.NewErr(nano.NotFound, "invoice not found: %v", id)
	}
	if err != nil {
		return nano.Invoice{}, dbErr(err, "scanInvoice")
	}
	inv.Created = time.Unix(created, 0).UTC()
	return inv, nil
}

func collectInvoices(rows *sql.Rows) ([]nano.Invoice, error) {
	var out []nano.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows, "")
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func scanPaymentConfig(row rowScanner) (nano.PaymentConfig, error) {
	var cfg nano.PaymentConfig
	err := row.Scan(&cfg.StoreID, &cfg.CryptoCode, &cfg.Enabled, &cfg.WalletID, &cfg.DestinationAccount)
	if err == sql.ErrNoRows {
		return nano.PaymentConfig{}, nano.NewErr(nano.NotFound, "payment config not found")
	}
	if err != nil {
		return nano.PaymentConfig{}, dbErr(err, "scanPaymentConfig")
	}
	return cfg, nil
}

func isUniqueViolation(err error) bool {
	if e, ok := err.(sqlite3.Error); ok {
		return e.Code == sqlite3.ErrConstraint
	}
	return false
}

func dbErr(err error, where string) error {
	return nano.NewErr(nano.UnknownError, "store: %s: %v", where, err)
}
