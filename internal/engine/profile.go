package engine

import (
	"sort"
	"strings"
	"time"
)

// SearchProfile bounds a single engine search.
type SearchProfile struct {
	SkillLevel int
	Depth      int
	Threads    int
	MoveTime   time.Duration
}

// Built-in difficulty table. Unknown names fall back to expert.
var profiles = map[string]SearchProfile{
	"easy":   {SkillLevel: 5, Depth: 5, Threads: 1, MoveTime: 1000 * time.Millisecond},
	"medium": {SkillLevel: 10, Depth: 10, Threads: 2, MoveTime: 2000 * time.Millisecond},
	"hard":   {SkillLevel: 15, Depth: 15, Threads: 3, MoveTime: 3000 * time.Millisecond},
	"expert": {SkillLevel: 20, Depth: 20, Threads: 4, MoveTime: 3500 * time.Millisecond},
}

// ProfileFor resolves a difficulty name to its search profile.
// The second return is false when the name was unknown and the
// expert fallback was used.
func ProfileFor(difficulty string) (SearchProfile, bool) {
	key := strings.ToLower(strings.TrimSpace(difficulty))
	if p, ok := profiles[key]; ok {
		return p, true
	}
	return profiles["expert"], false
}

// Difficulties lists the known difficulty names, sorted.
func Difficulties() []string {
	out := make([]string, 0, len(profiles))
	for k := range profiles {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
