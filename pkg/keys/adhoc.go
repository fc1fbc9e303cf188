// Package keys mints adhoc receive accounts and guards their private
// keys. One fresh keypair per invoice; plaintext keys exist only
// transiently in memory while a block is being signed.
package keys

import (
	"context"
	"log"

	"github.com/google/uuid"

	nano "github.com/nanopay/nanogate/pkg"
)

// Commander is the slice of the RPC client key minting needs.
type Commander interface {
	Send(ctx context.Context, action string, body any, result any) error
}

type keyCreateResponse struct {
	Private string `json:"private"`
	Public  string `json:"public"`
	Account string `json:"account"`
}

// AdhocKeys implements nano.AddressSource on top of the node's
// key_create and the durable key material store.
type AdhocKeys struct {
	client    Commander
	store     nano.Store
	protector nano.Protector
}

func NewAdhocKeys(client Commander, store nano.Store, protector nano.Protector) *AdhocKeys {
	return &AdhocKeys{client: client, store: store, protector: protector}
}

// Prepare mints a keypair for an invoice, persists the encrypted key
// material, and returns it. The record is durable before the account is
// ever returned: an address a payer can see but we cannot spend from
// would strand their funds.
func (k *AdhocKeys) Prepare(invoiceID string) (nano.KeyMaterial, error) {
	if existing, err := k.store.GetKeyMaterialByInvoice(invoiceID); err == nil {
		return existing, nil
	} else if !nano.IsNotFoundError(err) {
		return nano.KeyMaterial{}, err
	}

	var created keyCreateResponse
	if err := k.client.Send(context.Background(), "key_create", struct{}{}, &created); err != nil {
		return nano.KeyMaterial{}, err
	}
	if created.Private == "" || created.Account == "" {
		return nano.KeyMaterial{}, nano.NewErr(nano.RemoteError, "key_create returned incomplete key material")
	}

	protected, err := k.protector.Encrypt([]byte(created.Private))
	if err != nil {
		return nano.KeyMaterial{}, err
	}
	km := nano.KeyMaterial{
		ID:               uuid.NewString(),
		PubKey:           created.Public,
		PrivKeyEncrypted: protected,
		Account:          created.Account,
		InvoiceID:        invoiceID,
	}
	if err := k.store.StoreKeyMaterial(km); err != nil {
		if nano.IsAlreadyExistsError(err) {
			// lost a race with a concurrent Prepare for the same invoice.
			return k.store.GetKeyMaterialByInvoice(invoiceID)
		}
		return nano.KeyMaterial{}, err
	}
	log.Printf("Keys: minted adhoc account %s for invoice %s", km.Account, invoiceID)
	return km, nil
}

// PrivateKeyFor returns the decrypted private key hex for an adhoc
// account.
func (k *AdhocKeys) PrivateKeyFor(account string) (string, error) {
	km, err := k.store.GetKeyMaterialByAccount(account)
	if err != nil {
		if nano.IsNotFoundError(err) {
			return "", nano.NewErr(nano.MissingKeyMaterial, "no key material for account %s", account)
		}
		return "", err
	}
	plain, err := k.protector.Decrypt(km.PrivKeyEncrypted)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func (k *AdhocKeys) InvoiceIDFor(account string) (string, error) {
	km, err := k.store.GetKeyMaterialByAccount(account)
	if err != nil {
		return "", err
	}
	return km.InvoiceID, nil
}

func (k *AdhocKeys) AccountFor(invoiceID string) (string, error) {
	km, err := k.store.GetKeyMaterialByInvoice(invoiceID)
	if err != nil {
		return "", err
	}
	return km.Account, nil
}
