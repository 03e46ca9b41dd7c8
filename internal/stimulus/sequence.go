package stimulus

import "math/rand"

// Position locates a presentation within the session.
type Position struct {
	Repetition int // 0-based repetition block
	Index      int // 0-based index within the block
}

// Sequence yields every catalog entry once per repetition, reshuffling at the
// start of each repetition block.
type Sequence struct {
	catalog     *Catalog
	repetitions int
	rng         *rand.Rand

	order []Stimulus
	pos   Position
	done  bool
}

// NewSequence returns a sequence over catalog. rng drives the shuffle; pass a
// seeded source for reproducible orders.
func NewSequence(catalog *Catalog, repetitions int, rng *rand.Rand) *Sequence {
	s := &Sequence{
		catalog:     catalog,
		repetitions: repetitions,
		rng:         rng,
		pos:         Position{Repetition: 0, Index: -1},
	}
	if repetitions <= 0 || catalog.Len() == 0 {
		s.done = true
		return s
	}
	s.shuffle()
	return s
}

// Total returns the number of presentations across all repetitions.
func (s *Sequence) Total() int {
	if s.repetitions <= 0 {
		return 0
	}
	return s.repetitions * s.catalog.Len()
}

// Repetitions returns the configured number of repetition blocks.
func (s *Sequence) Repetitions() int { return s.repetitions }

// Next returns the next stimulus and its position, or false once every
// repetition has been exhausted.
func (s *Sequence) Next() (Stimulus, Position, bool) {
	if s.done {
		return Stimulus{}, Position{}, false
	}

	s.pos.Index++
	if s.pos.Index >= len(s.order) {
		s.pos.Repetition++
		s.pos.Index = 0
		if s.pos.Repetition >= s.repetitions {
			s.done = true
			return Stimulus{}, Position{}, false
		}
		s.shuffle()
	}
	return s.order[s.pos.Index], s.pos, true
}

// RemainingInBlock reports whether another stimulus follows in the current repetition.
func (s *Sequence) RemainingInBlock() bool {
	return !s.done && s.pos.Index+1 < len(s.order)
}

func (s *Sequence) shuffle() {
	s.order = make([]Stimulus, s.catalog.Len())
	copy(s.order, s.catalog.Stimuli)
	s.rng.Shuffle(len(s.order), func(i, j int) {
		s.order[i], s.order[j] = s.order[j], s.order[i]
	})
}
