package receivers

import (
	"context"
	"fmt"
	"log"

	nano "github.com/nanopay/nanogate/pkg"
	"github.com/pebbe/zmq4"
	"github.com/tjstebbing/conductor"
)

// ZMQRelay republishes bus messages on a ZMQ PUB socket for external
// consumers (accounting systems, dashboards). Each message goes out as
// a three frame envelope: event type, message ID, JSON payload.
// Subscribers filter on the event type frame prefix.
type ZMQRelay struct {
	Rec  chan nano.Message
	sock *zmq4.Socket
}

// Implements nano.MessageSubscriber
func (z ZMQRelay) GetChan() chan nano.Message {
	return z.Rec
}

// Implements conductor.Service
func (z ZMQRelay) Run(started, stopped chan bool, stop chan context.Context) error {
	go func() {
		started <- true
		for {
			select {
			case <-stop:
				z.sock.Close()
				close(z.Rec)
				close(stopped)
				return
			case msg := <-z.Rec:
				topic := fmt.Sprintf("%s:%s", msg.EventType.Type(), msg.EventType)
				_, err := z.sock.SendMessage(topic, msg.ID, msg.Message)
				if err != nil {
					// PUB drops on slow subscribers by design of the
					// socket type; a send error here means the socket
					// itself is broken.
					log.Printf("ZMQRelay: send failed: %v", err)
				}
			}
		}
	}()
	return nil
}

func NewZMQRelay(bind string) (ZMQRelay, error) {
	sock, err := zmq4.NewSocket(zmq4.PUB)
	if err != nil {
		return ZMQRelay{}, err
	}
	if err := sock.Bind(bind); err != nil {
		sock.Close()
		return ZMQRelay{}, err
	}
	return ZMQRelay{
		Rec:  make(chan nano.Message, 1000),
		sock: sock,
	}, nil
}

// SetupZMQRelay starts the relay if one is configured.
func SetupZMQRelay(cond *conductor.Conductor, bus nano.MessageBus, conf nano.Config) {
	if !conf.ZMQRelay.Enabled {
		return
	}
	relay, err := NewZMQRelay(conf.ZMQRelay.Bind)
	if err != nil {
		log.Printf("ZMQRelay: not starting: %v", err)
		return
	}
	cond.Service(fmt.Sprintf("ZMQ relay on %s", conf.ZMQRelay.Bind), relay)
	bus.Register(relay, eventTypesFor("zmq relay", conf.ZMQRelay.Types)...)
}
