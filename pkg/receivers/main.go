package receivers

import (
	nano "github.com/nanopay/nanogate/pkg"
	"github.com/tjstebbing/conductor"
)

// Sets up standard receivers.
func SetUpReceivers(cond *conductor.Conductor, bus nano.MessageBus, conf nano.Config) {
	// Set up configured loggers
	SetupLoggers(cond, bus, conf)

	// Set up configured Callbacks
	SetupCallbacks(cond, bus, conf)

	// Set up the ZMQ relay, if enabled
	SetupZMQRelay(cond, bus, conf)
}
