package store

import (
	"sync"

	nano "github.com/nanopay/nanogate/pkg"
)

// interface guard ensures Mock implements nano.Store
var _ nano.Store = &Mock{}

// Mock is an in-memory nano.Store for tests and local development.
type Mock struct {
	mu       sync.Mutex
	keymat   map[string]nano.KeyMaterial // by account
	payments map[string]nano.Payment
	invoices map[string]nano.Invoice
	configs  map[string]nano.PaymentConfig
}

func NewMock() *Mock {
	return &Mock{
		keymat:   make(map[string]nano.KeyMaterial),
		payments: make(map[string]nano.Payment),
		invoices: make(map[string]nano.Invoice),
		configs:  make(map[string]nano.PaymentConfig),
	}
}

func (m *Mock) StoreKeyMaterial(km nano.KeyMaterial) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.keymat[km.Account]; exists {
		return nano.NewErr(nano.AlreadyExists, "key material exists for account %s", km.Account)
	}
	for _, existing := range m.keymat {
		if existing.InvoiceID == km.InvoiceID {
			return nano.NewErr(nano.AlreadyExists, "key material exists for invoice %s", km.InvoiceID)
		}
	}
	m.keymat[km.Account] = km
	return nil
}

func (m *Mock) GetKeyMaterialByAccount(account string) (nano.KeyMaterial, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	km, ok := m.keymat[account]
	if !ok {
		return nano.KeyMaterial{}, nano.NewErr(nano.NotFound, "key material not found: %v", account)
	}
	return km, nil
}

func (m *Mock) GetKeyMaterialByInvoice(invoiceID string) (nano.KeyMaterial, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, km := range m.keymat {
		if km.InvoiceID == invoiceID {
			return km, nil
		}
	}
	return nano.KeyMaterial{}, nano.NewErr(nano.NotFound, "key material not found: %v", invoiceID)
}

func (m *Mock) UpsertPayment(p nano.Payment) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.payments[p.ID]
	m.payments[p.ID] = p
	return !exists, nil
}

func (m *Mock) GetPayment(id string) (nano.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nano.Payment{}, nano.NewErr(nano.NotFound, "payment not found: %v", id)
	}
	return p, nil
}

func (m *Mock) ListPaymentsForInvoice(invoiceID string) ([]nano.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []nano.Payment
	for _, p := range m.payments {
		if p.InvoiceID == invoiceID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *Mock) StoreInvoice(inv nano.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invoices[inv.ID] = inv
	return nil
}

func (m *Mock) GetInvoice(id string) (nano.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return nano.Invoice{}, nano.NewErr(nano.NotFound, "invoice not found: %v", id)
	}
	return inv, nil
}

func (m *Mock) ListOpenInvoices() ([]nano.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []nano.Invoice
	for _, inv := range m.invoices {
		if !inv.Terminal() {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (m *Mock) MarkInvoiceStatus(id string, status nano.InvoiceStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return nano.NewErr(nano.NotFound, "invoice not found: %v", id)
	}
	inv.Status = status
	m.invoices[id] = inv
	return nil
}

func (m *Mock) GetPaymentConfig(storeID, cryptoCode string) (nano.PaymentConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.configs[storeID+"/"+cryptoCode]
	if !ok {
		return nano.PaymentConfig{StoreID: storeID, CryptoCode: cryptoCode}, nil
	}
	return cfg, nil
}

func (m *Mock) SetPaymentConfig(cfg nano.PaymentConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[cfg.StoreID+"/"+cfg.CryptoCode] = cfg
	return nil
}

func (m *Mock) ListPaymentConfigs(cryptoCode string) ([]nano.PaymentConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []nano.PaymentConfig
	for _, cfg := range m.configs {
		if cfg.CryptoCode == cryptoCode {
			out = append(out, cfg)
		}
	}
	return out, nil
}

func (m *Mock) Close() {}
