package webapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/julienschmidt/httprouter"

	nano "github.com/nanopay/nanogate/pkg"
	"github.com/nanopay/nanogate/pkg/rpc"
	"github.com/nanopay/nanogate/pkg/store"
)

const (
	testAcct = "nano_1adhoc11111111111111111111111111111111111111111111111111111111"
	destAcct = "nano_1wallet1111111111111111111111111111111111111111111111111111111"
)

func TestWebAPI(t *testing.T) {
	mux, _ := newTestRig(t, true)

	// Create an invoice for store "s1"
	var inv nano.InvoicePublic
	request(t, mux, "/invoice", `{"store_id":"s1"}`, &inv)
	if inv.ID == "" {
		t.Fatalf("Create Invoice did not mint an ID")
	}
	if inv.Account != testAcct {
		t.Fatalf("Create Invoice did not attach the receive account: %v", inv.Account)
	}
	if !strings.HasPrefix(inv.URI, "nano:"+testAcct) {
		t.Fatalf("Create Invoice returned a bad payment URI: %v", inv.URI)
	}
	if inv.Status != nano.InvoiceNew {
		t.Fatalf("fresh invoice has status %v", inv.Status)
	}

	// Get it back
	var inv2 nano.InvoicePublic
	request(t, mux, "/invoice/"+inv.ID, "", &inv2)
	if inv2.ID != inv.ID || inv2.Account != inv.Account {
		t.Fatalf("Get Invoice did not round-trip: %v vs %v", inv2, inv)
	}

	// QR code for the payment URI
	res := rawRequest(t, mux, "GET", "/invoice/"+inv.ID+"/qr.png", "")
	if res.StatusCode != 200 {
		t.Fatalf("QR request failed: %v", res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("QR content type: %v", ct)
	}

	// Store payment config round-trip
	var cfg nano.PaymentConfig
	request(t, mux, "/store/s1/config/XNO", `{"enabled":true,"destination_account":"`+destAcct+`"}`, &cfg)
	if !cfg.Enabled || cfg.DestinationAccount != destAcct {
		t.Fatalf("Set config did not round-trip: %v", cfg)
	}
	var cfg2 nano.PaymentConfig
	request(t, mux, "/store/s1/config/XNO", "", &cfg2)
	if cfg2 != cfg {
		t.Fatalf("Get config mismatch: %v vs %v", cfg2, cfg)
	}

	// Expire the invoice, then a second expire is refused
	var status map[string]any
	request(t, mux, "/invoice/"+inv.ID+"/expire", `{}`, &status)
	if status["status"] != string(nano.InvoiceExpired) {
		t.Fatalf("Expire returned %v", status)
	}
	res = rawRequest(t, mux, "POST", "/invoice/"+inv.ID+"/expire", `{}`)
	if res.StatusCode != 400 {
		t.Fatalf("expiring a terminal invoice should 400, got %v", res.StatusCode)
	}

	// Health exposes the node summary
	var health map[string]nano.NodeSummary
	request(t, mux, "/health", "", &health)
	if !health["XNO"].Synced {
		t.Fatalf("health missing synced XNO node: %v", health)
	}

	// Watch set endpoint
	var watched []nano.WatchedAddress
	request(t, mux, "/watched/XNO", "", &watched)
	if len(watched) != 1 || watched[0].Address != testAcct {
		t.Fatalf("watched set: %v", watched)
	}
}

func TestWebAPIWalletProvisioning(t *testing.T) {
	mux, _ := newTestRig(t, true)

	var created map[string]string
	request(t, mux, "/wallet/XNO", `{}`, &created)
	if created["wallet"] != "WALLET01" || created["account"] != destAcct {
		t.Fatalf("wallet provisioning returned %v", created)
	}

	var destroyed rpc.WalletDestroyResponse
	request(t, mux, "/wallet/XNO/WALLET01/destroy", `{}`, &destroyed)
	if destroyed.Destroyed != "1" {
		t.Fatalf("wallet destroy returned %v", destroyed)
	}

	res := rawRequest(t, mux, "POST", "/wallet/DOGE", `{}`)
	if res.StatusCode != 400 {
		t.Fatalf("unknown currency should 400, got %v", res.StatusCode)
	}
}

func TestWebAPIUnavailableNode(t *testing.T) {
	mux, _ := newTestRig(t, false)
	res := rawRequest(t, mux, "POST", "/invoice", `{"store_id":"s1"}`)
	if res.StatusCode != 503 {
		t.Fatalf("invoice creation on an unavailable node should 503, got %v", res.StatusCode)
	}
}

func TestWebAPIUnknownCurrency(t *testing.T) {
	mux, _ := newTestRig(t, true)
	res := rawRequest(t, mux, "POST", "/invoice", `{"store_id":"s1","crypto_code":"DOGE"}`)
	if res.StatusCode != 400 {
		t.Fatalf("unknown currency should 400, got %v", res.StatusCode)
	}
	res = rawRequest(t, mux, "GET", "/invoice/nope", "")
	if res.StatusCode != 404 {
		t.Fatalf("missing invoice should 404, got %v", res.StatusCode)
	}
}

// Helpers.

func request(t *testing.T, mux *httprouter.Router, path string, body string, out any) *http.Response {
	method := "GET"
	if body != "" {
		method = "POST"
	}
	res := rawRequest(t, mux, method, path, body)
	if res.StatusCode != 200 {
		t.Fatalf("%s request failed: %v", path, res.StatusCode)
	}
	err := json.NewDecoder(res.Body).Decode(out)
	if err != nil {
		t.Fatalf("%s bad json: %v", path, err)
	}
	return res
}

func rawRequest(t *testing.T, mux *httprouter.Router, method, path, body string) *http.Response {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	res := httptest.NewRecorder()
	mux.ServeHTTP(res, req)
	return res.Result()
}

// fixedKeys hands out one adhoc account for any invoice.
type fixedKeys struct {
	invoiceID string
}

func (f *fixedKeys) Prepare(invoiceID string) (nano.KeyMaterial, error) {
	f.invoiceID = invoiceID
	return nano.KeyMaterial{ID: "km-1", Account: testAcct, InvoiceID: invoiceID}, nil
}

func (f *fixedKeys) PrivateKeyFor(account string) (string, error) {
	return "", nano.NewErr(nano.MissingKeyMaterial, "not used in webapi tests")
}

func (f *fixedKeys) InvoiceIDFor(account string) (string, error) {
	if account == testAcct && f.invoiceID != "" {
		return f.invoiceID, nil
	}
	return "", nano.NewErr(nano.NotFound, "no invoice for %s", account)
}

func (f *fixedKeys) AccountFor(invoiceID string) (string, error) {
	if invoiceID == f.invoiceID {
		return testAcct, nil
	}
	return "", nano.NewErr(nano.NotFound, "no account for %s", invoiceID)
}

type fixedNodes struct {
	available bool
}

func (f fixedNodes) Summaries() map[string]nano.NodeSummary {
	s, _ := f.Summary("XNO")
	return map[string]nano.NodeSummary{"XNO": s}
}

func (f fixedNodes) Summary(cryptoCode string) (nano.NodeSummary, bool) {
	if cryptoCode != "XNO" {
		return nano.NodeSummary{}, false
	}
	return nano.NodeSummary{
		CryptoCode: "XNO", Synced: f.available,
		DaemonAvailable: f.available, WalletAvailable: f.available,
	}, true
}

func (f fixedNodes) IsAvailable(cryptoCode string) bool {
	return cryptoCode == "XNO" && f.available
}

// fixedNode scripts the wallet provisioning RPC actions.
type fixedNode struct{}

func (fixedNode) Send(ctx context.Context, action string, body any, result any) error {
	switch action {
	case "wallet_create":
		*(result.(*rpc.WalletCreateResponse)) = rpc.WalletCreateResponse{Wallet: "WALLET01"}
	case "account_create":
		req := body.(rpc.AccountCreateRequest)
		if req.Wallet != "WALLET01" {
			return nano.NewErr(nano.RemoteError, "Wallet not found")
		}
		*(result.(*rpc.AccountCreateResponse)) = rpc.AccountCreateResponse{Account: destAcct}
	case "wallet_destroy":
		*(result.(*rpc.WalletDestroyResponse)) = rpc.WalletDestroyResponse{Destroyed: "1"}
	}
	return nil
}

type fixedWatched struct{}

func (fixedWatched) Snapshot() []nano.WatchedAddress {
	return []nano.WatchedAddress{{Address: testAcct, StoreID: "s1"}}
}

func (fixedWatched) Size() int { return 1 }

func newTestRig(t *testing.T, available bool) (*httprouter.Router, nano.Store) {
	var config nano.Config
	config.Nanogate.DefaultCurrency = "XNO"
	db := store.NewMock()
	bus := nano.NewMessageBus()
	api := nano.NewAPI(db, bus, fixedNodes{available}, map[string]nano.CurrencyDeps{
		"XNO": {Keys: &fixedKeys{}, Watched: fixedWatched{}, Node: fixedNode{}},
	})
	web := WebAPI{api: api, config: config}
	return web.createRouter(), db
}
