package listener

// Classification of raw confirmations into domain events. Both the
// stream and the poller feed the same function, so a fact discovered
// twice classifies identically on both paths.

import (
	nano "github.com/nanopay/nanogate/pkg"
)

// Classify correlates one confirmation against the watch set and
// returns its domain meaning, or ok=false for blocks touching no
// watched account (or subtypes with no settlement meaning).
func Classify(cryptoCode string, c Confirmation, registry *Registry) (nano.LedgerEvent, bool) {
	// the block's own account: for sends the source, for receives the
	// credited account. Stream frames carry it on the message; poller
	// synthesis carries it on the block body.
	account := c.Block.Account
	if account == "" {
		account = c.Account
	}

	switch c.Block.Subtype {
	case "send":
		dest := c.Block.LinkAsAccount
		destEntry, destOurs := registry.Lookup(dest)
		_, srcOurs := registry.Lookup(account)

		if destOurs && !srcOurs {
			// external payer -> watched address
			return nano.LedgerEvent{
				CryptoCode:  cryptoCode,
				Kind:        nano.SendToAdhoc,
				Account:     dest,
				BlockHash:   c.Hash,
				AmountRaw:   c.Amount,
				FromAccount: account,
				ToAccount:   dest,
				StoreID:     destEntry.StoreID,
				Confirmed:   true,
			}, true
		}
		if srcOurs {
			srcEntry, _ := registry.Lookup(account)
			return nano.LedgerEvent{
				CryptoCode:  cryptoCode,
				Kind:        nano.SweepFromAdhoc,
				Account:     account,
				BlockHash:   c.Hash,
				AmountRaw:   c.Amount,
				FromAccount: account,
				ToAccount:   dest,
				StoreID:     srcEntry.StoreID,
				Confirmed:   true,
			}, true
		}

	case "receive", "open":
		entry, ours := registry.Lookup(account)
		if !ours {
			break
		}
		kind := nano.ReceiveOnAdhoc
		if entry.Wallet {
			kind = nano.ReceiveOnWallet
		}
		return nano.LedgerEvent{
			CryptoCode:     cryptoCode,
			Kind:           kind,
			Account:        account,
			BlockHash:      c.Hash,
			AmountRaw:      c.Amount,
			SourceSendHash: c.Block.Link, // originating send, the idempotency anchor
			StoreID:        entry.StoreID,
			Confirmed:      true,
		}, true
	}

	return nano.LedgerEvent{}, false
}
