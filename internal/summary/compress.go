package summary

import "github.com/rcliao/convo-memory/internal/condense"

// Compressor folds a new turn into a prior summary within limit characters.
// prior is empty on the first fold of a session.
type Compressor interface {
	Compress(prior, turn string, limit int) string
}

// BoundaryCompressor appends turns verbatim while they fit. Once they don't,
// the prior summary is guaranteed the smaller of its own length and half the
// budget, the new turn gets the rest, and the prior is cut back at a sentence
// or clause boundary to fill whatever the turn left over.
type BoundaryCompressor struct{}

// Compress implements Compressor.
func (BoundaryCompressor) Compress(prior, turn string, limit int) string {
	prior, turn = condense.Collapse(prior), condense.Collapse(turn)
	if prior == "" {
		return condense.Truncate(turn, limit)
	}
	if joined := prior + " " + turn; condense.Len(joined) <= limit {
		return joined
	}

	recent := condense.Truncate(turn, limit-min(condense.Len(prior), limit/2)-1)
	room := limit - condense.Len(recent) - 1
	if room <= 0 {
		return recent
	}
	kept := condense.Truncate(prior, room)
	if kept == "" {
		return recent
	}
	return kept + " " + recent
}
