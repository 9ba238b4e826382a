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
	"testing"

	"github.com/stretchr/testify/assert"
)

type TestEvent struct {
	Name   string
	Detail Detail
}

type Detail struct {
	Type string
	Data string
}

func (e TestEvent) EventName() string {
	return e.Name
}

func (e TestEvent) EventType() string {
	return e.Detail.Type
}

type countingHandler struct {
	mu   sync.Mutex
	seen []string
}

func (h *countingHandler) Handle(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e, ok := event.(TestEvent); ok {
		h.seen = append(h.seen, e.Detail.Data)
	}
}

func TestEventBus_Publish(t *testing.T) {
	bus := NewEventBus()
	h := &countingHandler{}
	bus.RegisterHandler("test", h)

	bus.Publish(TestEvent{Name: "test", Detail: Detail{Type: "t", Data: "a"}})
	bus.Publish(TestEvent{Name: "other", Detail: Detail{Type: "t", Data: "b"}})

	assert.Equal(t, []string{"a"}, h.seen)
}

func TestEventBus_PanicIsolated(t *testing.T) {
	bus := NewEventBus()
	bus.Subscribe("test", func(Event) { panic("boom") })
	h := &countingHandler{}
	bus.RegisterHandler("test", h)

	assert.NotPanics(t, func() {
		bus.Publish(TestEvent{Name: "test", Detail: Detail{Data: "x"}})
	})
	assert.Equal(t, []string{"x"}, h.seen)
}

func TestEventBus_Concurrent(t *testing.T) {
	bus := NewEventBus()
	h := &countingHandler{}
	bus.RegisterHandler("test", h)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Subscribe("noop", func(Event) {})
			bus.Publish(TestEvent{Name: "test"})
		}()
	}
	wg.Wait()
	assert.Len(t, h.seen, 10)
}
