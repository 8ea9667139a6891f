package notify

import "github.com/benchforge/workbench/internal/store"

// Fanout combines multiple store.Publisher targets (the live websocket
// bus and this package's Slack notifier) behind a single store.Publisher,
// since store.SetPublisher only accepts one.
type Fanout struct {
	targets []store.Publisher
}

// NewFanout builds a Fanout over targets, silently dropping any nil
// entries so a disabled notifier (NewService returning nil) doesn't
// need special-casing at the call site.
func NewFanout(targets ...store.Publisher) *Fanout {
	f := &Fanout{}
	for _, t := range targets {
		if t == nil || isNilPublisher(t) {
			continue
		}
		f.targets = append(f.targets, t)
	}
	return f
}

// Publish implements store.Publisher, forwarding to every target.
func (f *Fanout) Publish(eventType string, data map[string]any) {
	for _, t := range f.targets {
		t.Publish(eventType, data)
	}
}

// isNilPublisher catches the common case of a typed nil pointer (e.g.
// a (*Service)(nil) from a disabled notifier) being passed in as a
// store.Publisher interface value, which is non-nil as an interface
// even though the underlying pointer is nil.
func isNilPublisher(p store.Publisher) bool {
	svc, ok := p.(*Service)
	return ok && svc == nil
}
