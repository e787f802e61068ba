package events

import "testing"

type namedEvent string

func (n namedEvent) EventType() string { return string(n) }

type recorder struct{ seen []string }

func (r *recorder) Emit(evt Event) { r.seen = append(r.seen, evt.EventType()) }

func TestFanoutDeliversToAll(t *testing.T) {
	first, second := &recorder{}, &recorder{}
	fan := Fanout{first, nil, NoopEmitter{}, second}
	fan.Emit(namedEvent("lockbox.created"))
	fan.Emit(namedEvent("lockbox.slashed"))

	for _, r := range []*recorder{first, second} {
		if len(r.seen) != 2 || r.seen[0] != "lockbox.created" || r.seen[1] != "lockbox.slashed" {
			t.Fatalf("unexpected delivery %v", r.seen)
		}
	}
}
