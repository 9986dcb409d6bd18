package dolly

import (
	"errors"
	"fmt"
)

// Events published on the narrative bus.
const (
	// EventStage carries a StageEvent after the stage changed.
	EventStage = "stage"
	// EventProgress carries a StageEvent whenever progress moved.
	EventProgress = "progress"
	// EventTransitionStart and EventTransitionEnd carry a Transition.
	EventTransitionStart = "transition.start"
	EventTransitionEnd   = "transition.end"
	// EventReady is published by a WaitForSignal panel; payload is its panel ID.
	EventReady = "ready"
	// EventUnlock releases the intro lock.
	EventUnlock = "unlock"
	// EventReleased carries a StageEvent once the scroll lock went back to the host.
	EventReleased = "released"
)

// StageEvent is the payload of stage, progress and released events.
type StageEvent struct {
	Stage     int
	Progress  float64
	Direction Direction
	Locked    bool
}

func stageEventOf(s NarrativeState) StageEvent {
	return StageEvent{Stage: s.Stage, Progress: s.Progress, Direction: s.Direction, Locked: s.Locked}
}

// Handler receives a published payload.
type Handler func(payload any)

// Unsubscribe removes a subscription. Calling it twice is harmless.
type Unsubscribe func()

// Bus is a synchronous publish/subscribe channel between the controller and
// the panels. Handlers run in subscription order inside Publish.
type Bus struct {
	subs   map[string][]*subscription
	nextID int
}

type subscription struct {
	id      int
	handler Handler
	active  bool
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]*subscription)}
}

// Subscribe registers h for event.
func (b *Bus) Subscribe(event string, h Handler) Unsubscribe {
	b.nextID++
	s := &subscription{id: b.nextID, handler: h, active: true}
	b.subs[event] = append(b.subs[event], s)
	return func() {
		if !s.active {
			return
		}
		s.active = false
		list := b.subs[event]
		for i, other := range list {
			if other == s {
				b.subs[event] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers payload to every handler of event. Handlers removed during
// delivery are skipped; handlers added during delivery wait for the next
// Publish. A panicking handler does not stop delivery; the panics come back
// joined in the returned error.
func (b *Bus) Publish(event string, payload any) error {
	list := b.subs[event]
	if len(list) == 0 {
		return nil
	}
	snapshot := make([]*subscription, len(list))
	copy(snapshot, list)

	var errs []error
	for _, s := range snapshot {
		if !s.active {
			continue
		}
		if err := deliver(event, s.handler, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subscribers returns the number of handlers registered for event.
func (b *Bus) Subscribers(event string) int {
	return len(b.subs[event])
}

func deliver(event string, h Handler, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler for %q panicked: %v", event, r)
		}
	}()
	h(payload)
	return nil
}
