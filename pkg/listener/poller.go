package listener

import (
	"context"
	"log"
	"sync"
	"time"

	nano "github.com/nanopay/nanogate/pkg"
	"github.com/nanopay/nanogate/pkg/rpc"
)

// Commander is the slice of the RPC client the listener needs.
type Commander interface {
	Send(ctx context.Context, action string, body any, result any) error
}

/*
pollerSet runs the failsafe polling loops for one currency.

One loop per watched address queries accounts_receivable directly, so a
confirmation the stream misses (or delays) is still discovered within
one poll interval. One loop per configured merchant wallet calls
receive_all, because some node/wallet-proxy combinations do not emit
stream confirmations for wallet-layer receives.

Every loop is independently cancellable; an error in one iteration is
logged and the loop proceeds to its next cycle.
*/
type pollerSet struct {
	cryptoCode string
	conf       nano.NodeConfig
	client     Commander
	handle     func(Confirmation)
	root       context.Context

	mu      sync.Mutex
	addrs   map[string]context.CancelFunc
	wallets map[string]context.CancelFunc
}

func newPollerSet(root context.Context, cryptoCode string, conf nano.NodeConfig, client Commander, handle func(Confirmation)) *pollerSet {
	return &pollerSet{
		cryptoCode: cryptoCode,
		conf:       conf,
		client:     client,
		handle:     handle,
		root:       root,
		addrs:      make(map[string]context.CancelFunc),
		wallets:    make(map[string]context.CancelFunc),
	}
}

// StartAddress begins the receivable poll loop for one address. No-op
// if one is already running.
func (p *pollerSet) StartAddress(addr nano.WatchedAddress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.addrs[addr.Address]; exists {
		return
	}
	ctx, cancel := context.WithCancel(p.root)
	p.addrs[addr.Address] = cancel
	go p.addressLoop(ctx, addr)
}

// StopAddress cancels one address loop without affecting siblings.
func (p *pollerSet) StopAddress(address string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cancel, exists := p.addrs[address]; exists {
		cancel()
		delete(p.addrs, address)
	}
}

// StartWallet begins the receive_all loop for a node-managed wallet.
func (p *pollerSet) StartWallet(walletID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.wallets[walletID]; exists {
		return
	}
	ctx, cancel := context.WithCancel(p.root)
	p.wallets[walletID] = cancel
	go p.walletLoop(ctx, walletID)
}

// PollingWallet reports whether a receive_all loop exists for a wallet.
func (p *pollerSet) PollingWallet(walletID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, exists := p.wallets[walletID]
	return exists
}

// StopAll cancels every loop; used at shutdown.
func (p *pollerSet) StopAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for a, cancel := range p.addrs {
		cancel()
		delete(p.addrs, a)
	}
	for w, cancel := range p.wallets {
		cancel()
		delete(p.wallets, w)
	}
}

func (p *pollerSet) addressLoop(ctx context.Context, addr nano.WatchedAddress) {
	log.Printf("Poller %s: watching receivables for %s", p.cryptoCode, addr.Address)
	// hashes already handed to the classifier; receivables stay listed
	// until a receive block pockets them, so each poll would re-report
	// them otherwise. Duplicates are still harmless downstream.
	seen := make(map[string]bool)

	for {
		if ctx.Err() != nil {
			return
		}
		p.pollReceivable(ctx, addr, seen)
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.conf.PollInterval()):
		}
	}
}

func (p *pollerSet) pollReceivable(ctx context.Context, addr nano.WatchedAddress, seen map[string]bool) {
	var resp rpc.AccountsReceivableResponse
	err := p.client.Send(ctx, "accounts_receivable", rpc.AccountsReceivableRequest{
		Accounts: []string{addr.Address},
		Source:   true,
	}, &resp)
	if err != nil {
		log.Printf("Poller %s: accounts_receivable for %s: %v", p.cryptoCode, addr.Address, err)
		return
	}

	for hash, blk := range resp.Blocks[addr.Address] {
		if seen[hash] {
			continue
		}
		seen[hash] = true
		// synthesize the same shape a stream send confirmation has, so
		// classification is identical on both paths.
		p.handle(Confirmation{
			Account: blk.Source,
			Hash:    hash,
			Amount:  blk.Amount,
			Block: BlockBody{
				Type:          "state",
				Subtype:       "send",
				Account:       blk.Source,
				LinkAsAccount: addr.Address,
			},
		})
	}
}

func (p *pollerSet) walletLoop(ctx context.Context, walletID string) {
	log.Printf("Poller %s: receive_all loop for wallet %s", p.cryptoCode, walletID)
	for {
		if ctx.Err() != nil {
			return
		}
		var resp rpc.ReceiveAllResponse
		err := p.client.Send(ctx, "receive_all", rpc.ReceiveAllRequest{Wallet: walletID}, &resp)
		if err != nil {
			log.Printf("Poller %s: receive_all for wallet %s: %v", p.cryptoCode, walletID, err)
		} else if resp.Received > 0 {
			log.Printf("Poller %s: wallet %s pocketed %d receivables", p.cryptoCode, walletID, resp.Received)
		}
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.conf.WalletPollInterval()):
		}
	}
}
