package nano

/*
The message bus is how the settlement core talks to everything else.

Confirmations classified from the node's event stream (or the pollers),
availability changes, invoice lifecycle transitions and payment records
are all published here as typed messages; the settlement engine and any
configured receivers (log files, HTTP callbacks, ZMQ relay) subscribe
with the event families they care about.

MessageSubscribers are registered with the bus and receive messages on
their own channel. An external receiver that stops draining its channel
is unregistered rather than allowed to stall the bus; a core subscriber
(the settlement engine) keeps its subscription and sheds the overflowing
message instead, because the poller paths resurface the underlying fact.
*/

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
)

// MessageSubscribers are things that subscribe to the bus and handle
// messages, ie: the settlement engine, log files, callbacks, ZMQ.
type MessageSubscriber interface {
	GetChan() chan Message
}

// Created by the bus, wraps message sent with Send
type Message struct {
	EventType EventType
	Message   []byte
	ID        string // optional
}

type Subscription struct {
	dest  MessageSubscriber
	types []EventType

	// core subscriptions survive a full channel; only the message is
	// lost, never the subscriber.
	core bool
}

func NewMessageBus() MessageBus {
	return MessageBus{
		receivers: make(map[*Subscription]bool),
		inbound:   make(chan Message, 100),
	}
}

type MessageBus struct {
	// Registered MessageSubscribers.
	receivers map[*Subscription]bool

	// Messages from Send(), destined for MessageSubscribers
	inbound chan Message
}

// Send a message to the bus with a specific EventType.
// msg can be anything JSON serialisable; it is delivered to any
// interested MessageSubscribers as a Message.
func (b MessageBus) Send(t EventType, msg interface{}, msgID ...string) error {
	j, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	if len(msgID) == 0 {
		b.inbound <- Message{t, j, generateID()}
	} else {
		b.inbound <- Message{t, j, msgID[0]}
	}
	return nil
}

func (b MessageBus) Register(m MessageSubscriber, types ...EventType) {
	sub := Subscription{dest: m, types: types}
	b.receivers[&sub] = true
}

// RegisterCore subscribes an in-process service the gateway cannot run
// without. A full channel drops the message, not the subscription.
func (b MessageBus) RegisterCore(m MessageSubscriber, types ...EventType) {
	sub := Subscription{dest: m, types: types, core: true}
	b.receivers[&sub] = true
}

func (b MessageBus) Unregister(sub *Subscription) {
	delete(b.receivers, sub)
	close((*sub).dest.GetChan())
}

// wants reports whether a subscription matches a message's event family.
func (s *Subscription) wants(t EventType) bool {
	for _, x := range s.types {
		if x.Type() == "ALL" || x.Type() == t.Type() {
			return true
		}
	}
	return false
}

// Implements conductor Service
func (b MessageBus) Run(started, stopped chan bool, stop chan context.Context) error {

	go func() {
		stopBus := make(chan bool)
		go func() {
			for {
				select {
				case <-stopBus:
					return
				case message := <-b.inbound:
					b.deliver(message)
				}
			}
		}()

		started <- true
		// wait for shutdown.
		<-stop
		close(stopBus)
		stopped <- true
	}()
	return nil
}

// deliver fans one message out to every interested subscriber without
// ever blocking the bus.
func (b MessageBus) deliver(message Message) {
	for sub := range b.receivers {
		if !sub.wants(message.EventType) {
			continue
		}
		select {
		case (*sub).dest.GetChan() <- message:
		default:
			if sub.core {
				// the pollers re-detect whatever this message carried.
				log.Printf("MessageBus: core subscriber full, dropping %v message %s", message.EventType, message.ID)
				continue
			}
			// a wedged receiver loses its subscription.
			b.Unregister(sub)
		}
	}
}

// create a short random ID for msgs that have none
func generateID() string {
	bytes := make([]byte, 4)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)[:8]
}
