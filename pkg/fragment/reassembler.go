package fragment

// Reassembler rebuilds MT frames from a stream of content chunks,
// following the countdown-index protocol of spec §4.C.
//
// The reset predicate compares the *whole* header byte (txSeqno<<4 |
// indexRemaining) of successive chunks, not just indexRemaining: for
// contiguous chunks of one frame the txSeqno nibble is constant and
// indexRemaining counts down by exactly one, so the combined byte
// also decreases by exactly one. This also means a reset fires across
// frame boundaries whenever the first chunk of a new frame doesn't
// happen to land one below the previous frame's terminal header byte
// (a completed frame ends at indexRemaining==0, so lastHeader's low
// nibble is 0 and lastHeader-1 underflows into the previous nibble).
// The initial -1 sentinel makes the very first chunk reset the buffer;
// after a completed frame the buffer is already empty, so a new frame
// starts clean either way.
type Reassembler struct {
	buffer     []byte
	lastHeader int // header byte of the last chunk fed; -1 before the first chunk
}

// NewReassembler returns a reassembler ready to receive the first
// chunk of a frame.
func NewReassembler() *Reassembler {
	return &Reassembler{lastHeader: -1}
}

// Feed processes one non-ack chunk (decoded via DecodeChunk) and
// reports whether it completed a frame. The returned frame bytes
// still carry the trailing CRC-8 byte; the caller verifies it.
func (r *Reassembler) Feed(chunk Chunk) (frame []byte, complete bool) {
	header := int(chunk.HeaderByte())
	if header != r.lastHeader-1 {
		r.buffer = r.buffer[:0]
	}
	r.buffer = append(r.buffer, chunk.Content...)
	r.lastHeader = header
	if !chunk.IsFrameComplete() {
		return nil, false
	}
	out := r.buffer
	r.buffer = nil
	return out, true
}
