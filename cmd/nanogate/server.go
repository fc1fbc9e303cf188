package main

import (
	nano "github.com/nanopay/nanogate/pkg"
	"github.com/nanopay/nanogate/pkg/keys"
	"github.com/nanopay/nanogate/pkg/listener"
	"github.com/nanopay/nanogate/pkg/node"
	"github.com/nanopay/nanogate/pkg/receivers"
	"github.com/nanopay/nanogate/pkg/rpc"
	"github.com/nanopay/nanogate/pkg/settle"
	"github.com/nanopay/nanogate/pkg/store"
	"github.com/nanopay/nanogate/pkg/webapi"
	"github.com/tjstebbing/conductor"
)

func Server(conf nano.Config) {

	c := conductor.NewConductor(
		conductor.HookSignals(),
		conductor.Noisy(),
	)

	// Start the MessageBus Service
	bus := nano.NewMessageBus()
	c.Service("MessageBus", bus)

	// Set up all configured receivers
	receivers.SetUpReceivers(c, bus, conf)

	// Setup a Store
	db, err := openStore(conf)
	if err != nil {
		panic(err)
	}
	defer db.Close()

	// Private keys at rest are encrypted with the configured secret
	protector, err := keys.NewProtector(conf.KeyProtection.Secret)
	if err != nil {
		panic(err)
	}

	// Per-currency services: RPC client, confirmation listener,
	// settlement engine, adhoc key minting.
	trackerClients := map[string]node.Commander{}
	currencies := map[string]nano.CurrencyDeps{}
	for code, nc := range conf.Node {
		client := rpc.NewClient(nc.RPCURL)
		work := client
		if nc.WorkURL != "" {
			work = rpc.NewClient(nc.WorkURL)
		}
		trackerClients[code] = client

		lst := listener.NewListener(code, nc, bus, db, client)
		c.Service("Listener "+code, lst)

		adhoc := keys.NewAdhocKeys(client, db, protector)
		engine := settle.NewEngine(code, nc, bus, db, client, work, adhoc, lst)
		c.Service("Settlement "+code, engine)

		currencies[code] = nano.CurrencyDeps{Keys: adhoc, Watched: lst.Registry(), Node: client}
	}

	// Start the node availability tracker
	tracker := node.NewTracker(conf, bus, trackerClients)
	c.Service("NodeTracker", tracker)

	api := nano.NewAPI(db, bus, tracker, currencies)

	// Start the Payment API
	p, err := webapi.NewWebAPI(conf, api)
	if err != nil {
		panic(err)
	}
	c.Service("Payment API", p)

	<-c.Start()
}

func openStore(conf nano.Config) (nano.Store, error) {
	if conf.Store.Driver == "postgres" {
		return store.NewPostgres(conf.Store.PGConn)
	}
	return store.NewSQLite(conf.Store.DBFile)
}
