// Package events provides an in-process event bus for pipe execution
// lifecycle notifications, built on kelindar/event.
package events

import (
	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// Publish delivers an event to all subscribers of its type.
// kelindar/event dispatches on the concrete type, so each one needs its own
// case here.
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case ExecStartedEvent:
		event.Publish(b.dispatcher, e)
	case ExecFinishedEvent:
		event.Publish(b.dispatcher, e)
	case ExecFailedEvent:
		event.Publish(b.dispatcher, e)
	case JobsReloadedEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers a typed handler; the handler's parameter type selects
// which events it receives. Returns an unsubscribe function.
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(ExecStartedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ExecFinishedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ExecFailedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(JobsReloadedEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
