package receivers

import (
	"context"
	"fmt"
	"log"

	nano "github.com/nanopay/nanogate/pkg"
	"github.com/tjstebbing/conductor"
	"gopkg.in/natefinch/lumberjack.v2"
)

type MessageLogger struct {
	// MessageLogger receives nano.Message via Rec
	Rec chan nano.Message
	// and logs them via Log
	Log *log.Logger
}

// Implements nano.MessageSubscriber
func (l MessageLogger) GetChan() chan nano.Message {
	return l.Rec
}

// Implements conductor.Service
func (l MessageLogger) Run(started, stopped chan bool, stop chan context.Context) error {
	go func() {
		started <- true
		for {
			select {
			// handle stopping the service
			case <-stop:
				close(l.Rec)
				close(stopped)
				return
			case msg := <-l.Rec:
				l.Log.Printf("%s:%s (%s): %s\n",
					msg.EventType.Type(),
					msg.EventType,
					msg.ID,
					msg.Message)
			}
		}
	}()
	return nil
}

func NewMessageLogger(path string) MessageLogger {
	l := MessageLogger{
		make(chan nano.Message, 1000),
		log.New(&lumberjack.Logger{
			Filename: path,
			Compress: true,
		}, "", log.Ltime|log.Lmicroseconds),
	}
	return l
}

// Reads config and sets up any configured loggers
func SetupLoggers(cond *conductor.Conductor, bus nano.MessageBus, conf nano.Config) {
	for name, c := range conf.Loggers {
		l := NewMessageLogger(c.Path)
		cond.Service(fmt.Sprintf("Logger %s", c.Path), l)
		bus.Register(l, eventTypesFor(name, c.Types)...)
	}
}

// eventTypesFor resolves configured event family names, warning on
// anything unknown.
func eventTypesFor(name string, configured []string) []nano.EventType {
	types := []nano.EventType{}
	for _, t := range configured {
		x, ok := nano.EventTypeByName(t)
		if !ok {
			fmt.Printf("⚠️  %s: ignoring invalid message type: %s\n", name, t)
			continue
		}
		types = append(types, x)
	}
	return types
}
