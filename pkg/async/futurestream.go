package async

import "sync"

// FutureStream pairs claims (consumers awaiting the next result) with
// posts (producers supplying results) in FIFO order, independent of
// which side arrives first (spec §4.D, §8 "Response-stream FIFO").
type FutureStream struct {
	mu          sync.Mutex
	early       []*Future // claims that arrived before their post
	late        []*Future // posts that arrived before their claim
	terminalErr error
}

// NewFutureStream returns an open future stream.
func NewFutureStream() *FutureStream {
	return &FutureStream{}
}

// newFuture must be called with s.mu held.
func (s *FutureStream) newFuture() *Future {
	fut := NewFuture()
	if s.terminalErr != nil {
		fut.Complete(nil, s.terminalErr)
	}
	return fut
}

// Claim returns a future for the next posted result. If a post is
// already waiting (the "late" queue), it is handed back immediately;
// otherwise a new future is queued on the "early" side.
func (s *FutureStream) Claim() *Future {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.late) > 0 {
		fut := s.late[0]
		s.late = s.late[1:]
		return fut
	}
	fut := s.newFuture()
	if !fut.Done() {
		s.early = append(s.early, fut)
	}
	return fut
}

// Post supplies a result to the next pending claim, in the order
// claims were made. If no claim is pending: an error post is always
// queued on the "late" side so the next claim sees it; a success post
// is queued only while the stream has no terminal error, and silently
// dropped once it does (spec §9, "posts to a closed stream are lost").
func (s *FutureStream) Post(value interface{}, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.early) > 0 {
		fut := s.early[0]
		s.early = s.early[1:]
		if fut.Complete(value, err) {
			return
		}
	}
	if err != nil || s.terminalErr == nil {
		fut := NewFuture()
		fut.Complete(value, err)
		s.late = append(s.late, fut)
	}
}

// SetTerminalError marks the stream closed: every currently pending
// claim resolves with err, and every future claim (with no matching
// late post) will too. Already-queued successful posts on the "late"
// side remain claimable.
func (s *FutureStream) SetTerminalError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.terminalErr = err
	for _, fut := range s.early {
		fut.Complete(nil, err)
	}
	s.early = nil
}
