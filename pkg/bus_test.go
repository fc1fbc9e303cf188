package nano

import (
	"testing"
)

type busSink struct {
	ch chan Message
}

func (s busSink) GetChan() chan Message { return s.ch }

func TestBusUnregistersWedgedReceiver(t *testing.T) {
	b := NewMessageBus()
	sink := busSink{make(chan Message, 1)}
	b.Register(sink, EVENT_PAY("PAY"))

	b.deliver(Message{EventType: PAY_SETTLED, Message: []byte(`{}`), ID: "m1"})
	b.deliver(Message{EventType: PAY_SETTLED, Message: []byte(`{}`), ID: "m2"})

	if msg := <-sink.ch; msg.ID != "m1" {
		t.Fatalf("first message: %v", msg.ID)
	}
	// the overflow closed the channel and dropped the subscription.
	if _, open := <-sink.ch; open {
		t.Fatalf("wedged receiver channel should be closed")
	}
	if len(b.receivers) != 0 {
		t.Fatalf("wedged receiver should be unregistered, have %d subscriptions", len(b.receivers))
	}
}

func TestBusKeepsCoreSubscriberWhenFull(t *testing.T) {
	b := NewMessageBus()
	sink := busSink{make(chan Message, 1)}
	b.RegisterCore(sink, EVENT_LEDGER("LEDGER"))

	// three deliveries into a one-slot channel: two overflow.
	b.deliver(Message{EventType: LEDGER_SEND_TO_ADHOC, Message: []byte(`{}`), ID: "m1"})
	b.deliver(Message{EventType: LEDGER_SEND_TO_ADHOC, Message: []byte(`{}`), ID: "m2"})
	b.deliver(Message{EventType: LEDGER_SEND_TO_ADHOC, Message: []byte(`{}`), ID: "m3"})

	if msg, open := <-sink.ch; !open || msg.ID != "m1" {
		t.Fatalf("core subscriber lost its channel: open=%v msg=%v", open, msg.ID)
	}
	if len(b.receivers) != 1 {
		t.Fatalf("core subscription should survive the overflow")
	}

	// with room again, later messages still arrive.
	b.deliver(Message{EventType: LEDGER_RECEIVE_ON_ADHOC, Message: []byte(`{}`), ID: "m4"})
	if msg, open := <-sink.ch; !open || msg.ID != "m4" {
		t.Fatalf("delivery after overflow: open=%v msg=%v", open, msg.ID)
	}
}

func TestBusDeliversByFamily(t *testing.T) {
	b := NewMessageBus()
	pay := busSink{make(chan Message, 4)}
	all := busSink{make(chan Message, 4)}
	b.Register(pay, EVENT_PAY("PAY"))
	b.Register(all, EVENT_ALL("ALL"))

	b.deliver(Message{EventType: INV_CREATED, ID: "inv"})
	b.deliver(Message{EventType: PAY_SWEPT, ID: "pay"})

	if msg := <-pay.ch; msg.ID != "pay" {
		t.Fatalf("PAY subscriber got %v", msg.ID)
	}
	if msg := <-all.ch; msg.ID != "inv" {
		t.Fatalf("ALL subscriber got %v first", msg.ID)
	}
	if msg := <-all.ch; msg.ID != "pay" {
		t.Fatalf("ALL subscriber got %v second", msg.ID)
	}
}
