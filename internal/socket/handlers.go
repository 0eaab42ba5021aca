// ABOUTME: Observer callbacks for socket lifecycle and inbound frames
// ABOUTME: Subscribe returns an unsubscribe function; nil callbacks are skipped

package socket

// Handlers is the observer set for a Socket. Any field may be nil.
type Handlers struct {
	OnOpen        func()
	OnClose       func(code int, reason string)
	OnError       func(err error)
	OnMessage     func(frame Frame)
	OnStateChange func(state State)
}

type subscriber struct {
	id uint64
	h  Handlers
}

// Subscribe registers h and returns a function that removes it. Safe to call
// at any time, including before the first connection completes.
func (s *Socket) Subscribe(h Handlers) (unsubscribe func()) {
	s.subsMu.Lock()
	s.nextSubID++
	id := s.nextSubID
	s.subs = append(s.subs, subscriber{id: id, h: h})
	s.subsMu.Unlock()

	return func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *Socket) observers() []Handlers {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	out := make([]Handlers, len(s.subs))
	for i, sub := range s.subs {
		out[i] = sub.h
	}
	return out
}

func (s *Socket) emitOpen() {
	for _, h := range s.observers() {
		if h.OnOpen != nil {
			h.OnOpen()
		}
	}
}

func (s *Socket) emitClose(code int, reason string) {
	for _, h := range s.observers() {
		if h.OnClose != nil {
			h.OnClose(code, reason)
		}
	}
}

func (s *Socket) emitError(err error) {
	for _, h := range s.observers() {
		if h.OnError != nil {
			h.OnError(err)
		}
	}
}

func (s *Socket) emitMessage(f Frame) {
	for _, h := range s.observers() {
		if h.OnMessage != nil {
			h.OnMessage(f)
		}
	}
}

func (s *Socket) emitState(st State) {
	for _, h := range s.observers() {
		if h.OnStateChange != nil {
			h.OnStateChange(st)
		}
	}
}
