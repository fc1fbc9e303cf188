package nano

import (
	"time"
)

// Config is the root configuration for nanogate, unmarshalled
// from TOML by viper (see cmd/nanogate).
type Config struct {
	Nanogate struct {
		// key for which Node entry is the default currency
		DefaultCurrency string `default:"XNO"`
	}

	// info for connecting to a nano-style node, per currency code
	Node map[string]NodeConfig

	// secret used to derive the AES key that protects adhoc private
	// keys at rest. Must be set before the first invoice address is
	// generated.
	KeyProtection struct {
		Secret string
	}

	Store struct {
		// Driver selects the backing database: "sqlite" (default) or
		// "postgres".
		Driver string `default:"sqlite"`
		DBFile string `default:"nanogate.db"`
		// PGConn is the postgres connection string, used when Driver
		// is "postgres".
		PGConn string
	}

	WebAPI struct {
		Bind string `default:"localhost"`
		Port string `default:"8082"`
	}

	// configured loggers
	Loggers map[string]LoggersConfig

	// configured callbacks
	Callbacks map[string]CallbackConfig

	// optional ZMQ event relay
	ZMQRelay struct {
		Enabled bool
		Bind    string // e.g. "tcp://127.0.0.1:28332"
		Types   []string
	}
}

// NodeConfig describes one ledger node endpoint (one per currency).
type NodeConfig struct {
	RPCURL string // e.g. "http://127.0.0.1:7076"
	WSURL  string // e.g. "ws://127.0.0.1:7078"

	// WorkURL is an optional dedicated work server. When empty,
	// work_generate is sent to RPCURL.
	WorkURL string

	// Representative used when opening new adhoc accounts. When
	// empty a network default is used.
	Representative string

	// WalletID is the node-managed wallet for this gateway, used by
	// the availability tracker and receive_all sweeps.
	WalletID string

	PollSeconds       int // per-address receivable poll (default 10)
	WalletPollSeconds int // per-wallet receive_all poll (default 120)
	TrackerSeconds    int // availability poll (default 30)
}

func (n NodeConfig) PollInterval() time.Duration {
	if n.PollSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(n.PollSeconds) * time.Second
}

func (n NodeConfig) WalletPollInterval() time.Duration {
	if n.WalletPollSeconds <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(n.WalletPollSeconds) * time.Second
}

func (n NodeConfig) TrackerInterval() time.Duration {
	if n.TrackerSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(n.TrackerSeconds) * time.Second
}

type LoggersConfig struct {
	Path  string
	Types []string
}

type CallbackConfig struct {
	Path       string
	HMACSecret string
	Types      []string
}
