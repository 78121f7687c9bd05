package pickle

// special marker
type mark struct{}

// stack is the decoder operand stack.
//
// Besides values it holds mark{} delimiters pushed by MARK opcode.
type stack struct {
	items []any
}

func (s *stack) len() int { return len(s.items) }

// Append a new value
func (s *stack) push(v any) {
	s.items = append(s.items, v)
}

func (s *stack) pushMark() {
	s.push(mark{})
}

// pop returns ErrStackUnderflow if the stack is empty.
func (s *stack) pop() (any, error) {
	ln := len(s.items) - 1
	if ln < 0 {
		return nil, ErrStackUnderflow
	}
	v := s.items[ln]
	s.items[ln] = nil
	s.items = s.items[:ln]
	return v, nil
}

func (s *stack) peek() (any, error) {
	if len(s.items) == 0 {
		return nil, ErrStackUnderflow
	}
	return s.items[len(s.items)-1], nil
}

// Return the position of the topmost marker
func (s *stack) marker() (int, error) {
	for k := len(s.items) - 1; k >= 0; k-- {
		if _, ok := s.items[k].(mark); ok {
			return k, nil
		}
	}
	return 0, errNoMarker
}

// popToMark pops everything above the topmost marker, and the marker itself.
//
// Values are returned in push order. The returned slice does not alias the stack.
func (s *stack) popToMark() ([]any, error) {
	k, err := s.marker()
	if err != nil {
		return nil, err
	}
	v := append([]any(nil), s.items[k+1:]...)
	clear(s.items[k:])
	s.items = s.items[:k]
	return v, nil
}

func (s *stack) clear() {
	clear(s.items)
	s.items = s.items[:0]
}

// userOK tells whether it is ok to return all objects to user.
//
// for example it is not ok to return the mark object.
func userOK(objv ...any) error {
	for _, obj := range objv {
		switch obj.(type) {
		case mark:
			return errNoMarkUse
		}
	}

	return nil
}
