package fragment

// Split breaks a complete frame into wire-ready chunks for
// transmission at the given sequence number. Only the index of the
// final chunk is returned separately so callers can attach a
// completion to just that one (spec §4.C: "only the last chunk's
// permit carries the caller's completion").
func Split(frame []byte, seqno byte) (chunks [][]byte, lastIndex int) {
	count := (len(frame) + MaxChunkContentBytes - 1) / MaxChunkContentBytes
	if count == 0 {
		count = 1
	}
	chunks = make([][]byte, count)
	for i := 0; i < count; i++ {
		start := MaxChunkContentBytes * i
		end := start + MaxChunkContentBytes
		if end > len(frame) {
			end = len(frame)
		}
		c := Chunk{
			Seqno:          seqno,
			IndexRemaining: byte(count - 1 - i),
			Content:        frame[start:end],
		}
		chunks[i] = c.Encode()
	}
	return chunks, count - 1
}
