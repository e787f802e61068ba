package events

// Fanout forwards every event to each configured emitter in order. Nil
// entries are skipped so optional sinks can be passed unconditionally.
type Fanout []Emitter

// Emit implements the Emitter interface.
func (f Fanout) Emit(evt Event) {
	for _, emitter := range f {
		if emitter == nil {
			continue
		}
		emitter.Emit(evt)
	}
}
