package webapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/julienschmidt/httprouter"
	nano "github.com/nanopay/nanogate/pkg"
	"github.com/nanopay/nanogate/pkg/rpc"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tjstebbing/conductor"
)

// WebAPI implements conductor.Service
type WebAPI struct {
	api    nano.API
	config nano.Config
}

// interface guard ensures WebAPI implements conductor.Service
var _ conductor.Service = WebAPI{}

func NewWebAPI(config nano.Config, api nano.API) (WebAPI, error) {
	return WebAPI{api: api, config: config}, nil
}

func (t WebAPI) Run(started, stopped chan bool, stop chan context.Context) error {
	go func() {
		mux := t.createRouter()

		server := &http.Server{Addr: t.config.WebAPI.Bind + ":" + t.config.WebAPI.Port, Handler: mux}
		fmt.Printf("\nAPI listening on %s:%s", t.config.WebAPI.Bind, t.config.WebAPI.Port)
		go func() {
			if err := server.ListenAndServe(); err != http.ErrServerClosed {
				log.Fatalf("HTTP server ListenAndServe: %v", err)
			}
		}()

		started <- true
		ctx := <-stop
		server.Shutdown(ctx)
		stopped <- true
	}()
	return nil
}

func (t WebAPI) createRouter() *httprouter.Router {
	mux := httprouter.New()

	// GET /health -> { currency: summary, ... } availability of every node
	mux.GET("/health", t.health)

	// GET /node/:cryptoCode -> { summary } one node's availability
	mux.GET("/node/:cryptoCode", t.getNode)

	// POST { store_id, crypto_code } /invoice -> { invoice } register an invoice and mint its receive account
	mux.POST("/invoice", t.createInvoice)

	// GET /invoice/:invoiceID -> { invoice } invoice with its payments
	mux.GET("/invoice/:invoiceID", t.getInvoice)

	// GET /invoice/:invoiceID/qr.png -> payment URI QR code
	mux.GET("/invoice/:invoiceID/qr.png", t.getInvoiceQR)

	// POST /invoice/:invoiceID/expire -> { status } release the invoice's address
	mux.POST("/invoice/:invoiceID/expire", t.expireInvoice)

	// POST /invoice/:invoiceID/complete -> { status }
	mux.POST("/invoice/:invoiceID/complete", t.completeInvoice)

	// GET /store/:storeID/config/:cryptoCode -> { config } a store's payment settings
	mux.GET("/store/:storeID/config/:cryptoCode", t.getPaymentConfig)

	// POST { config } /store/:storeID/config/:cryptoCode -> { config } update settings
	mux.POST("/store/:storeID/config/:cryptoCode", t.setPaymentConfig)

	// GET /watched/:cryptoCode -> [ {...} ] current watch set, for operators
	mux.GET("/watched/:cryptoCode", t.getWatched)

	// POST /wallet/:cryptoCode -> { wallet, account } provision a node wallet with its first account
	mux.POST("/wallet/:cryptoCode", t.createWallet)

	// POST /wallet/:cryptoCode/:walletID/destroy -> { destroyed } remove a node wallet
	mux.POST("/wallet/:cryptoCode/:walletID/destroy", t.destroyWallet)

	// GET /metrics -> prometheus exposition
	mux.Handler("GET", "/metrics", promhttp.Handler())

	return mux
}

func (t WebAPI) health(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	sendResponse(w, t.api.NodeSummaries())
}

func (t WebAPI) getNode(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	summary, err := t.api.NodeSummary(p.ByName("cryptoCode"))
	if err != nil {
		sendError(w, "NodeSummary", err)
		return
	}
	sendResponse(w, summary)
}

func (t WebAPI) createInvoice(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	var req nano.InvoiceCreateRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		sendBadRequest(w, fmt.Sprintf("bad request body (expecting JSON): %v", err))
		return
	}
	if req.CryptoCode == "" {
		req.CryptoCode = t.config.Nanogate.DefaultCurrency
	}
	invoice, err := t.api.CreateInvoice(req)
	if err != nil {
		sendError(w, "CreateInvoice", err)
		return
	}
	sendResponse(w, invoice)
}

func (t WebAPI) getInvoice(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	id := p.ByName("invoiceID")
	if id == "" {
		sendBadRequest(w, "missing invoice ID in URL")
		return
	}
	invoice, err := t.api.GetInvoice(id, t.currencyFor(r))
	if err != nil {
		sendError(w, "GetInvoice", err)
		return
	}
	sendResponse(w, invoice)
}

func (t WebAPI) getInvoiceQR(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	id := p.ByName("invoiceID")
	if id == "" {
		sendBadRequest(w, "missing invoice ID in URL")
		return
	}
	invoice, err := t.api.GetInvoice(id, t.currencyFor(r))
	if err != nil {
		sendError(w, "GetInvoice", err)
		return
	}
	if invoice.URI == "" {
		sendErrorResponse(w, 404, nano.NotFound, "invoice has no receive account")
		return
	}
	png, err := GenerateQRCodePNG(invoice.URI, 256)
	if err != nil {
		sendError(w, "GenerateQRCodePNG", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(png)
}

func (t WebAPI) expireInvoice(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	t.markInvoice(w, p.ByName("invoiceID"), nano.InvoiceExpired)
}

func (t WebAPI) completeInvoice(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	t.markInvoice(w, p.ByName("invoiceID"), nano.InvoiceCompleted)
}

func (t WebAPI) markInvoice(w http.ResponseWriter, id string, status nano.InvoiceStatus) {
	if id == "" {
		sendBadRequest(w, "missing invoice ID in URL")
		return
	}
	if err := t.api.MarkInvoice(id, status); err != nil {
		sendError(w, "MarkInvoice", err)
		return
	}
	sendResponse(w, map[string]any{"id": id, "status": status})
}

func (t WebAPI) getPaymentConfig(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	cfg, err := t.api.GetPaymentConfig(p.ByName("storeID"), p.ByName("cryptoCode"))
	if err != nil {
		sendError(w, "GetPaymentConfig", err)
		return
	}
	sendResponse(w, cfg)
}

func (t WebAPI) setPaymentConfig(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	var cfg nano.PaymentConfig
	err := json.NewDecoder(r.Body).Decode(&cfg)
	if err != nil {
		sendBadRequest(w, fmt.Sprintf("bad request body (expecting JSON): %v", err))
		return
	}
	// the URL is authoritative for the composite key.
	cfg.StoreID = p.ByName("storeID")
	cfg.CryptoCode = p.ByName("cryptoCode")
	if err := t.api.SetPaymentConfig(cfg); err != nil {
		sendError(w, "SetPaymentConfig", err)
		return
	}
	sendResponse(w, cfg)
}

func (t WebAPI) getWatched(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	watched, err := t.api.WatchedAddresses(p.ByName("cryptoCode"))
	if err != nil {
		sendError(w, "WatchedAddresses", err)
		return
	}
	if watched == nil {
		watched = []nano.WatchedAddress{}
	}
	sendResponse(w, watched)
}

// createWallet provisions a node-managed wallet and its first account,
// for merchants who want the gateway's node to hold their sweep
// destination. The wallet ID goes into the store's payment config.
func (t WebAPI) createWallet(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	node, err := t.api.Node(p.ByName("cryptoCode"))
	if err != nil {
		sendError(w, "Node", err)
		return
	}
	var wallet rpc.WalletCreateResponse
	if err := node.Send(r.Context(), "wallet_create", nil, &wallet); err != nil {
		sendError(w, "WalletCreate", err)
		return
	}
	var account rpc.AccountCreateResponse
	if err := node.Send(r.Context(), "account_create", rpc.AccountCreateRequest{Wallet: wallet.Wallet}, &account); err != nil {
		sendError(w, "AccountCreate", err)
		return
	}
	sendResponse(w, map[string]string{"wallet": wallet.Wallet, "account": account.Account})
}

func (t WebAPI) destroyWallet(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	node, err := t.api.Node(p.ByName("cryptoCode"))
	if err != nil {
		sendError(w, "Node", err)
		return
	}
	var res rpc.WalletDestroyResponse
	if err := node.Send(r.Context(), "wallet_destroy", rpc.WalletDestroyRequest{Wallet: p.ByName("walletID")}, &res); err != nil {
		sendError(w, "WalletDestroy", err)
		return
	}
	sendResponse(w, res)
}

func (t WebAPI) currencyFor(r *http.Request) string {
	if c := r.URL.Query().Get("currency"); c != "" {
		return c
	}
	return t.config.Nanogate.DefaultCurrency
}
