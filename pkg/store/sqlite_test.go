package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nano "github.com/nanopay/nanogate/pkg"
)

const (
	acct1 = "nano_1adhoc11111111111111111111111111111111111111111111111111111111"
	acct2 = "nano_1adhoc22222222222222222222222222222222222222222222222222222222"
)

func testStore(t *testing.T) nano.Store {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestKeyMaterialRoundTrip(t *testing.T) {
	s := testStore(t)
	km := nano.KeyMaterial{
		ID: "km-1", PubKey: "PUB01", PrivKeyEncrypted: "aa:bb",
		Account: acct1, InvoiceID: "inv-1",
	}
	require.NoError(t, s.StoreKeyMaterial(km))

	got, err := s.GetKeyMaterialByAccount(acct1)
	require.NoError(t, err)
	assert.Equal(t, km, got)

	got, err = s.GetKeyMaterialByInvoice("inv-1")
	require.NoError(t, err)
	assert.Equal(t, km, got)

	_, err = s.GetKeyMaterialByAccount(acct2)
	assert.True(t, nano.IsNotFoundError(err))
}

func TestKeyMaterialUniquePerAccountAndInvoice(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.StoreKeyMaterial(nano.KeyMaterial{
		ID: "km-1", PubKey: "PUB01", PrivKeyEncrypted: "aa:bb",
		Account: acct1, InvoiceID: "inv-1",
	}))

	err := s.StoreKeyMaterial(nano.KeyMaterial{
		ID: "km-2", PubKey: "PUB02", PrivKeyEncrypted: "cc:dd",
		Account: acct1, InvoiceID: "inv-2",
	})
	assert.True(t, nano.IsAlreadyExistsError(err), "duplicate account")

	err = s.StoreKeyMaterial(nano.KeyMaterial{
		ID: "km-3", PubKey: "PUB03", PrivKeyEncrypted: "ee:ff",
		Account: acct2, InvoiceID: "inv-1",
	})
	assert.True(t, nano.IsAlreadyExistsError(err), "duplicate invoice")
}

func TestUpsertPayment(t *testing.T) {
	s := testStore(t)
	p := nano.Payment{
		ID:           "SEND01@" + acct1,
		InvoiceID:    "inv-1",
		Status:       nano.PaymentSettled,
		Amount:       decimal.RequireFromString("1.5"),
		Currency:     "XNO",
		Created:      time.Now().UTC().Truncate(time.Second),
		SendHash:     "SEND01",
		ReceiveHash:  "RECV01",
		AdhocAccount: acct1,
	}

	created, err := s.UpsertPayment(p)
	require.NoError(t, err)
	assert.True(t, created)

	// second delivery of the same confirmation updates in place.
	p.ReceiveHash = "RECV01B"
	created, err = s.UpsertPayment(p)
	require.NoError(t, err)
	assert.False(t, created)

	got, err := s.GetPayment(p.ID)
	require.NoError(t, err)
	assert.Equal(t, "RECV01B", got.ReceiveHash)
	assert.True(t, got.Amount.Equal(p.Amount))
	assert.Equal(t, p.Created, got.Created)

	list, err := s.ListPaymentsForInvoice("inv-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = s.GetPayment("nope")
	assert.True(t, nano.IsNotFoundError(err))
}

func TestInvoiceLifecycle(t *testing.T) {
	s := testStore(t)
	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.StoreInvoice(nano.Invoice{ID: "inv-1", StoreID: "s1", Status: nano.InvoiceNew, Created: now}))
	require.NoError(t, s.StoreInvoice(nano.Invoice{ID: "inv-2", StoreID: "s1", Status: nano.InvoiceExpired, Created: now}))

	open, err := s.ListOpenInvoices()
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "inv-1", open[0].ID)

	require.NoError(t, s.MarkInvoiceStatus("inv-1", nano.InvoiceCompleted))
	open, err = s.ListOpenInvoices()
	require.NoError(t, err)
	assert.Empty(t, open)

	inv, err := s.GetInvoice("inv-1")
	require.NoError(t, err)
	assert.Equal(t, nano.InvoiceCompleted, inv.Status)

	assert.True(t, nano.IsNotFoundError(s.MarkInvoiceStatus("nope", nano.InvoiceExpired)))
}

func TestPaymentConfig(t *testing.T) {
	s := testStore(t)

	// unset config reads as a disabled zero value, not an error.
	cfg, err := s.GetPaymentConfig("s1", "XNO")
	require.NoError(t, err)
	assert.False(t, cfg.Enabled)

	want := nano.PaymentConfig{
		StoreID: "s1", CryptoCode: "XNO", Enabled: true,
		WalletID: "W1", DestinationAccount: acct2,
	}
	require.NoError(t, s.SetPaymentConfig(want))

	cfg, err = s.GetPaymentConfig("s1", "XNO")
	require.NoError(t, err)
	assert.Equal(t, want, cfg)

	// settings replace in place.
	want.DestinationAccount = acct1
	require.NoError(t, s.SetPaymentConfig(want))
	cfg, err = s.GetPaymentConfig("s1", "XNO")
	require.NoError(t, err)
	assert.Equal(t, acct1, cfg.DestinationAccount)

	list, err := s.ListPaymentConfigs("XNO")
	require.NoError(t, err)
	assert.Len(t, list, 1)
	list, err = s.ListPaymentConfigs("BAN")
	require.NoError(t, err)
	assert.Empty(t, list)
}
