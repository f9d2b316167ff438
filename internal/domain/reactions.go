package domain

// ReactionSet is the fixed emoji palette clients may react with. It is
// chosen at startup and treated as immutable for the process lifetime.
type ReactionSet struct {
	emojis []string
	index  map[string]struct{}
}

func NewReactionSet(emojis []string) *ReactionSet {
	s := &ReactionSet{
		emojis: make([]string, len(emojis)),
		index:  make(map[string]struct{}, len(emojis)),
	}
	copy(s.emojis, emojis)
	for _, e := range emojis {
		s.index[e] = struct{}{}
	}
	return s
}

func DefaultReactions() *ReactionSet {
	return NewReactionSet([]string{"👍", "❤️", "😂", "😮", "😢", "🙏"})
}

func (s *ReactionSet) Contains(emoji string) bool {
	_, ok := s.index[emoji]
	return ok
}

func (s *ReactionSet) Emojis() []string {
	out := make([]string, len(s.emojis))
	copy(out, s.emojis)
	return out
}
