package providers

// SliceStream replays a fixed list of events. Adapters that produce the
// whole response up front use it to satisfy EventStream.
type SliceStream struct {
	events []Event
	next   int
	cur    Event
	result *Result
	err    error
	closed bool
}

// NewSliceStream returns a stream that yields events and then completes with result
func NewSliceStream(events []Event, result *Result) *SliceStream {
	return &SliceStream{events: events, result: result}
}

// NewFailingStream returns a stream that yields events and then fails with err
func NewFailingStream(events []Event, err error) *SliceStream {
	return &SliceStream{events: events, err: err}
}

// Next advances to the next event
func (s *SliceStream) Next() bool {
	if s.closed || s.next >= len(s.events) {
		return false
	}
	s.cur = s.events[s.next]
	s.next++
	return true
}

// Current returns the event Next advanced to
func (s *SliceStream) Current() Event {
	return s.cur
}

// Err returns the terminal error once all events were consumed
func (s *SliceStream) Err() error {
	if s.next < len(s.events) && !s.closed {
		return nil
	}
	return s.err
}

// Close stops the stream
func (s *SliceStream) Close() error {
	s.closed = true
	return nil
}

// Result returns the completed result, nil when the stream failed
func (s *SliceStream) Result() *Result {
	if s.err != nil {
		return nil
	}
	return s.result
}
