package core

// State is the immutable context snapshot composed once per turn. Values
// and Data are merged provider contributions (later providers override
// earlier keys); Text is the rendered digest used for prompting. Handlers
// receive the snapshot read-only: mutations go through explicit memory,
// task or callback calls, never through the snapshot itself.
type State struct {
	Values map[string]any
	Data   map[string]any
	Text   string
}

// NewState returns an empty snapshot with allocated maps.
func NewState() *State {
	return &State{
		Values: make(map[string]any),
		Data:   make(map[string]any),
	}
}

// Value returns a merged provider value by key.
func (s *State) Value(key string) (any, bool) {
	if s == nil || s.Values == nil {
		return nil, false
	}
	v, ok := s.Values[key]
	return v, ok
}

// Clone returns a shallow copy with fresh top-level maps, so a caller can
// derive a working set without touching the snapshot.
func (s *State) Clone() *State {
	if s == nil {
		return NewState()
	}
	out := &State{
		Values: make(map[string]any, len(s.Values)),
		Data:   make(map[string]any, len(s.Data)),
		Text:   s.Text,
	}
	for k, v := range s.Values {
		out.Values[k] = v
	}
	for k, v := range s.Data {
		out.Data[k] = v
	}
	return out
}
