// Copyright 2025 Arcade Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package event

import (
	"sync"

	"github.com/go-arcade/hierarchy/pkg/log"
)

// EventBus dispatches events synchronously to the handlers registered for
// the event name. Handlers run on the publisher's goroutine.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[string][]EventHandler
}

func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[string][]EventHandler),
	}
}

func (eb *EventBus) RegisterHandler(eventName string, handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.handlers[eventName] = append(eb.handlers[eventName], handler)
}

// Subscribe registers fn for eventName.
func (eb *EventBus) Subscribe(eventName string, fn func(Event)) {
	eb.RegisterHandler(eventName, HandlerFunc(fn))
}

// Publish delivers event to every handler. A panicking handler is logged and
// does not stop delivery to the others.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	handlers := append([]EventHandler(nil), eb.handlers[event.EventName()]...)
	eb.mu.RUnlock()

	for _, handler := range handlers {
		eb.dispatch(handler, event)
	}
}

func (eb *EventBus) dispatch(handler EventHandler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("event handler panicked", "event", event.EventName(), "panic", r)
		}
	}()
	handler.Handle(event)
}
