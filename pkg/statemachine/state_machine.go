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

package statemachine

import (
	"fmt"
	"slices"
	"sync"
)

// Event names the cause of a transition.
type Event string

// TransitionHook runs before the state changes; an error aborts the transition.
type TransitionHook[T comparable] func(from, to T, event Event) error

// StateMachine is a generic finite state machine, safe for concurrent use.
// It either tracks one entity (NewWithState) or serves as a shared, read-only
// transition table for rows whose state lives in the database (CanTransition).
type StateMachine[T comparable] struct {
	mu      sync.RWMutex
	current T
	edges   map[T][]T
	events  map[edge[T]]T
	hooks   []TransitionHook[T]
}

type edge[T comparable] struct {
	from  T
	event Event
}

func New[T comparable]() *StateMachine[T] {
	return &StateMachine[T]{
		edges:  make(map[T][]T),
		events: make(map[edge[T]]T),
	}
}

func NewWithState[T comparable](initial T) *StateMachine[T] {
	sm := New[T]()
	sm.current = initial
	return sm
}

// Allow registers from → to for every target.
func (sm *StateMachine[T]) Allow(from T, to ...T) *StateMachine[T] {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for _, target := range to {
		sm.allowLocked(from, target)
	}
	return sm
}

// AddEventTransition registers from → to, reachable through TriggerEvent(event).
func (sm *StateMachine[T]) AddEventTransition(from T, event Event, to T) *StateMachine[T] {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.events[edge[T]{from: from, event: event}] = to
	sm.allowLocked(from, to)
	return sm
}

func (sm *StateMachine[T]) allowLocked(from, to T) {
	if !slices.Contains(sm.edges[from], to) {
		sm.edges[from] = append(sm.edges[from], to)
	}
}

// OnTransition registers a hook that runs on every transition.
func (sm *StateMachine[T]) OnTransition(h TransitionHook[T]) *StateMachine[T] {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.hooks = append(sm.hooks, h)
	return sm
}

func (sm *StateMachine[T]) CanTransition(from, to T) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return slices.Contains(sm.edges[from], to)
}

func (sm *StateMachine[T]) Current() T {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

func (sm *StateMachine[T]) Is(state T) bool {
	return sm.Current() == state
}

// IsTerminal reports whether no transition leaves state.
func (sm *StateMachine[T]) IsTerminal(state T) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.edges[state]) == 0
}

// TransitionTo moves the current state to to.
func (sm *StateMachine[T]) TransitionTo(to T) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.moveLocked(to, "")
}

// TriggerEvent follows the edge registered for event from the current state.
func (sm *StateMachine[T]) TriggerEvent(event Event) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	to, ok := sm.events[edge[T]{from: sm.current, event: event}]
	if !ok {
		return fmt.Errorf("no transition defined for event %v in state %v", event, sm.current)
	}
	return sm.moveLocked(to, event)
}

func (sm *StateMachine[T]) moveLocked(to T, event Event) error {
	from := sm.current
	if !slices.Contains(sm.edges[from], to) {
		return fmt.Errorf("invalid transition: %v → %v", from, to)
	}
	for _, h := range sm.hooks {
		if err := h(from, to, event); err != nil {
			return fmt.Errorf("transition hook failed: %w", err)
		}
	}
	sm.current = to
	return nil
}
