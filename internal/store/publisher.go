package store

// Publisher fans a durable state change out to in-process subscribers.
// It is called only after the corresponding row has committed, so a
// subscriber never observes an event before it is durable (spec.md §5).
// events.Bus implements this interface; it is optional (nil is legal and
// means "no live subscribers configured", e.g. in unit tests).
type Publisher interface {
	Publish(eventType string, data map[string]any)
}

// SetPublisher wires the in-memory event bus used for live fan-out. It
// must be called before any mutating call if live events are desired.
func (s *Store) SetPublisher(p Publisher) {
	s.publisher = p
}

func (s *Store) publish(eventType string, data map[string]any) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(eventType, data)
}
