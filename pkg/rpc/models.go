package rpc

import (
	"encoding/json"
	"strconv"
)

// The node reports most numbers as decimal strings; Height decodes
// either form.
type Height int64

func (h *Height) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		*h = Height(v)
		return nil
	}
	var v int64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*h = Height(v)
	return nil
}

// telemetry (node info)

type TelemetryResponse struct {
	BlockCount    Height `json:"block_count"`
	CementedCount Height `json:"cemented_count"`
	PeerCount     Height `json:"peer_count"`
}

// wallet_height

type WalletHeightRequest struct {
	Wallet string `json:"wallet"`
}

type WalletHeightResponse struct {
	Height Height `json:"height"`
}

// key_create

type KeyCreateResponse struct {
	Private string `json:"private"`
	Public  string `json:"public"`
	Account string `json:"account"`
}

// account_info

type AccountInfoRequest struct {
	Account          string `json:"account"`
	Representative   bool   `json:"representative"`
	IncludeConfirmed bool   `json:"include_confirmed"`
}

type AccountInfoResponse struct {
	Frontier         string `json:"frontier"`
	OpenBlock        string `json:"open_block"`
	Representative   string `json:"representative"`
	Balance          string `json:"balance"`
	ConfirmedBalance string `json:"confirmed_balance"`
}

// BestBalance prefers the confirmed balance; block construction must
// never build on unconfirmed state.
func (a AccountInfoResponse) BestBalance() string {
	if a.ConfirmedBalance != "" {
		return a.ConfirmedBalance
	}
	if a.Balance != "" {
		return a.Balance
	}
	return "0"
}

// account_key

type AccountKeyRequest struct {
	Account string `json:"account"`
}

type AccountKeyResponse struct {
	Key string `json:"key"`
}

// work_generate

type WorkGenerateRequest struct {
	Hash string `json:"hash"`
}

type WorkGenerateResponse struct {
	Work       string `json:"work"`
	Difficulty string `json:"difficulty"`
}

// block_create / process

// Block is a signed state block as the node returns it.
type Block struct {
	Type           string `json:"type"`
	Account        string `json:"account"`
	Previous       string `json:"previous"` // "0" on an open block
	Representative string `json:"representative"`
	Balance        string `json:"balance"`        // raw string
	Link           string `json:"link"`           // send: dest pubkey; receive: source hash
	LinkAsAccount  string `json:"link_as_account,omitempty"`
	Signature      string `json:"signature,omitempty"`
	Work           string `json:"work,omitempty"`
}

type BlockCreateRequest struct {
	Type           string `json:"type"` // always "state"
	Account        string `json:"account"`
	Previous       string `json:"previous"`
	Representative string `json:"representative"`
	Balance        string `json:"balance"`
	Link           string `json:"link"`
	Key            string `json:"key"` // private key hex; the node signs
	Work           string `json:"work,omitempty"`
	JsonBlock      bool   `json:"json_block"`
}

type BlockCreateResponse struct {
	Hash       string `json:"hash"`
	Difficulty string `json:"difficulty"`
	Block      *Block `json:"block"`
}

type ProcessRequest struct {
	JsonBlock bool   `json:"json_block"`
	Subtype   string `json:"subtype,omitempty"`
	Block     *Block `json:"block"`
}

type ProcessResponse struct {
	Hash string `json:"hash"`
}

// accounts_receivable

type AccountsReceivableRequest struct {
	Accounts []string `json:"accounts"`
	Count    string   `json:"count,omitempty"`
	Source   bool     `json:"source"`
}

type ReceivableBlock struct {
	Amount string `json:"amount"` // raw
	Source string `json:"source"` // sending account
}

// ReceivableBlocks is account -> send block hash -> block details.
// The node's "blocks" field is an object normally, but comes back as
// "" (or a JSON-encoded string) when nothing is receivable; the
// fallback decode is isolated here.
type ReceivableBlocks map[string]map[string]ReceivableBlock

func (r *ReceivableBlocks) UnmarshalJSON(b []byte) error {
	var direct map[string]map[string]ReceivableBlock
	if err := json.Unmarshal(b, &direct); err == nil {
		*r = direct
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		*r = nil
		return nil
	}
	if s == "" {
		*r = nil
		return nil
	}
	var reparsed map[string]map[string]ReceivableBlock
	if err := json.Unmarshal([]byte(s), &reparsed); err != nil {
		*r = nil
		return nil
	}
	*r = reparsed
	return nil
}

type AccountsReceivableResponse struct {
	Blocks ReceivableBlocks `json:"blocks"`
}

// wallet management

type WalletCreateResponse struct {
	Wallet string `json:"wallet"`
}

type WalletDestroyRequest struct {
	Wallet string `json:"wallet"`
}

type WalletDestroyResponse struct {
	Destroyed string `json:"destroyed"`
}

type AccountCreateRequest struct {
	Wallet string `json:"wallet"`
}

type AccountCreateResponse struct {
	Account string `json:"account"`
}

// receive_all asks the wallet layer to pocket everything receivable
// for a wallet; some node/proxy combinations do not emit stream
// confirmations for wallet-layer receives, which is why the wallet
// poller exists.
type ReceiveAllRequest struct {
	Wallet string `json:"wallet"`
}

type ReceiveAllResponse struct {
	Received Height `json:"received"`
}
