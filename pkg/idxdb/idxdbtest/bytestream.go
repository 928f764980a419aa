package idxdbtest

// ByteStream reads bytes sequentially from a byte slice.
//
// Fuzz tests derive operations from it. An exhausted stream returns zero
// values, so the same input always produces the same operations.
type ByteStream struct {
	bytes []byte
	pos   int
}

// NewByteStream creates a stream over b.
func NewByteStream(b []byte) *ByteStream {
	return &ByteStream{bytes: b}
}

// HasMore reports whether unread bytes remain.
func (s *ByteStream) HasMore() bool {
	return s.pos < len(s.bytes)
}

// NextByte returns the next byte, or 0 if exhausted.
func (s *ByteStream) NextByte() byte {
	if s.pos >= len(s.bytes) {
		return 0
	}

	v := s.bytes[s.pos]
	s.pos++

	return v
}

// NextInt returns a value in [0, maxVal).
func (s *ByteStream) NextInt(maxVal int) int {
	if maxVal <= 0 {
		return 0
	}

	return int(s.NextByte()) % maxVal
}

// NextBool returns a boolean derived from the next byte.
func (s *ByteStream) NextBool() bool {
	return s.NextByte()&1 == 1
}

// OneIn reports true roughly once in n reads.
func (s *ByteStream) OneIn(n int) bool {
	return s.NextInt(n) == 0
}

// Pick returns an element of choices.
func Pick[T any](s *ByteStream, choices []T) T {
	return choices[s.NextInt(len(choices))]
}
