package keys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nano "github.com/nanopay/nanogate/pkg"
)

const (
	testAcct = "nano_1adhoc11111111111111111111111111111111111111111111111111111111"
	testPriv = "DEADBEEF00"
)

type fakeNode struct {
	calls int
	fail  bool
}

func (f *fakeNode) Send(ctx context.Context, action string, body any, result any) error {
	f.calls++
	if f.fail {
		return nano.NewErr(nano.TransportError, "node unreachable")
	}
	if action != "key_create" {
		return nano.NewErr(nano.RemoteError, "unexpected action %q", action)
	}
	*(result.(*keyCreateResponse)) = keyCreateResponse{
		Private: testPriv,
		Public:  "PUB01",
		Account: testAcct,
	}
	return nil
}

type kmStore struct {
	nano.Store // panics on anything not overridden
	byAccount  map[string]nano.KeyMaterial
	byInvoice  map[string]nano.KeyMaterial
	failWrite  bool
}

func newKmStore() *kmStore {
	return &kmStore{
		byAccount: make(map[string]nano.KeyMaterial),
		byInvoice: make(map[string]nano.KeyMaterial),
	}
}

func (s *kmStore) StoreKeyMaterial(km nano.KeyMaterial) error {
	if s.failWrite {
		return nano.NewErr(nano.UnknownError, "disk full")
	}
	if _, exists := s.byAccount[km.Account]; exists {
		return nano.NewErr(nano.AlreadyExists, "key material for %s", km.Account)
	}
	s.byAccount[km.Account] = km
	s.byInvoice[km.InvoiceID] = km
	return nil
}

func (s *kmStore) GetKeyMaterialByAccount(account string) (nano.KeyMaterial, error) {
	km, ok := s.byAccount[account]
	if !ok {
		return nano.KeyMaterial{}, nano.NewErr(nano.NotFound, "no key material for %s", account)
	}
	return km, nil
}

func (s *kmStore) GetKeyMaterialByInvoice(invoiceID string) (nano.KeyMaterial, error) {
	km, ok := s.byInvoice[invoiceID]
	if !ok {
		return nano.KeyMaterial{}, nano.NewErr(nano.NotFound, "no key material for invoice %s", invoiceID)
	}
	return km, nil
}

func testProtector(t *testing.T) nano.Protector {
	p, err := NewProtector("test-secret")
	require.NoError(t, err)
	return p
}

func TestProtectorRoundTrip(t *testing.T) {
	p := testProtector(t)
	sealed, err := p.Encrypt([]byte(testPriv))
	require.NoError(t, err)
	assert.NotContains(t, sealed, testPriv, "ciphertext must not leak the key")

	plain, err := p.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, testPriv, string(plain))

	// a fresh nonce per encryption: same plaintext, different ciphertext.
	sealed2, err := p.Encrypt([]byte(testPriv))
	require.NoError(t, err)
	assert.NotEqual(t, sealed, sealed2)
}

func TestProtectorWrongSecret(t *testing.T) {
	p := testProtector(t)
	sealed, err := p.Encrypt([]byte(testPriv))
	require.NoError(t, err)

	other, err := NewProtector("other-secret")
	require.NoError(t, err)
	_, err = other.Decrypt(sealed)
	assert.True(t, nano.IsError(err, nano.MissingKeyMaterial))
}

func TestProtectorRejectsGarbage(t *testing.T) {
	p := testProtector(t)
	for _, bad := range []string{"", "nonsense", "abc:def", "zz:zz"} {
		_, err := p.Decrypt(bad)
		assert.True(t, nano.IsError(err, nano.MissingKeyMaterial), "input %q", bad)
	}
}

func TestProtectorRequiresSecret(t *testing.T) {
	_, err := NewProtector("")
	assert.True(t, nano.IsError(err, nano.BadRequest))
}

func TestPrepareMintsAndPersists(t *testing.T) {
	node := &fakeNode{}
	store := newKmStore()
	keys := NewAdhocKeys(node, store, testProtector(t))

	km, err := keys.Prepare("inv-1")
	require.NoError(t, err)
	assert.Equal(t, testAcct, km.Account)
	assert.Equal(t, "inv-1", km.InvoiceID)
	assert.NotEmpty(t, km.ID)
	assert.NotEqual(t, testPriv, km.PrivKeyEncrypted, "key is stored encrypted")

	// round trip back to the plaintext signing key.
	priv, err := keys.PrivateKeyFor(testAcct)
	require.NoError(t, err)
	assert.Equal(t, testPriv, priv)

	inv, err := keys.InvoiceIDFor(testAcct)
	require.NoError(t, err)
	assert.Equal(t, "inv-1", inv)
	acct, err := keys.AccountFor("inv-1")
	require.NoError(t, err)
	assert.Equal(t, testAcct, acct)
}

func TestPrepareIsIdempotentPerInvoice(t *testing.T) {
	node := &fakeNode{}
	store := newKmStore()
	keys := NewAdhocKeys(node, store, testProtector(t))

	first, err := keys.Prepare("inv-1")
	require.NoError(t, err)
	second, err := keys.Prepare("inv-1")
	require.NoError(t, err)
	assert.Equal(t, first.Account, second.Account)
	assert.Equal(t, 1, node.calls, "no second key minted for the same invoice")
}

func TestPrepareFailsClosedOnStoreError(t *testing.T) {
	node := &fakeNode{}
	store := newKmStore()
	store.failWrite = true
	keys := NewAdhocKeys(node, store, testProtector(t))

	_, err := keys.Prepare("inv-1")
	assert.Error(t, err, "an address is never advertised without durable key material")
}

func TestPrivateKeyForUnknownAccount(t *testing.T) {
	keys := NewAdhocKeys(&fakeNode{}, newKmStore(), testProtector(t))
	_, err := keys.PrivateKeyFor(testAcct)
	assert.True(t, nano.IsError(err, nano.MissingKeyMaterial))
}
