package bgm

import (
	"fmt"
	"regexp"
	"sort"
)

// Trigger maps a regex match against a line of game output to an audio
// action. An empty MusicPath encodes a stop trigger.
type Trigger struct {
	Name      string
	Pattern   string
	MusicPath string
	Loop      bool
	FadeInMs  int
	FadeOutMs int
	Volume    float64
	Priority  int

	re *regexp.Regexp
}

// IsStop reports whether matching this trigger should stop playback
// rather than start or switch a track.
func (t *Trigger) IsStop() bool {
	return t.MusicPath == ""
}

func (t *Trigger) compile() error {
	re, err := regexp.Compile(t.Pattern)
	if err != nil {
		return fmt.Errorf("%w: trigger %q pattern %q: %v", ErrInvalidArgument, t.Name, t.Pattern, err)
	}
	t.re = re
	if t.Volume <= 0 {
		t.Volume = 1.0
	}
	return nil
}

func (t *Trigger) matches(line string) bool {
	return t.re != nil && t.re.MatchString(line)
}

// sortTriggers orders by priority descending; ties keep their relative
// insertion order, per the "ties broken by insertion order" requirement.
func sortTriggers(triggers []*Trigger) {
	sort.SliceStable(triggers, func(i, j int) bool {
		return triggers[i].Priority > triggers[j].Priority
	})
}
