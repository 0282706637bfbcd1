package timeline

import (
	"strings"
	"sync"

	"github.com/cogconvo/captioner/pkg/core"
)

// Words is the rolling text of the current speaker. A word from a different
// speaker starts a fresh utterance.
type Words struct {
	mu      sync.Mutex
	speaker core.JurorID
	words   []string
}

// Add appends a word said by speaker.
func (w *Words) Add(word string, speaker core.JurorID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.words) > 0 && w.speaker != speaker {
		w.words = w.words[:0]
	}
	w.speaker = speaker
	w.words = append(w.words, strings.Fields(word)...)
}

// Reset clears the text.
func (w *Words) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.words = nil
	w.speaker = core.JurorNone
}

// Text returns the speaker and the last two lines of the utterance wrapped
// at width characters.
func (w *Words) Text(width int) (core.JurorID, string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.speaker, Wrap(w.words, width)
}

// Wrap greedily fills lines of at most width characters and returns the last
// two joined by a newline. A word longer than width gets a line of its own.
func Wrap(words []string, width int) string {
	var lines []string
	var cur strings.Builder
	for _, word := range words {
		switch {
		case cur.Len() == 0:
			cur.WriteString(word)
		case cur.Len()+1+len(word) <= width:
			cur.WriteByte(' ')
			cur.WriteString(word)
		default:
			lines = append(lines, cur.String())
			cur.Reset()
			cur.WriteString(word)
		}
	}
	if cur.Len() > 0 {
		lines = append(lines, cur.String())
	}
	if len(lines) > 2 {
		lines = lines[len(lines)-2:]
	}
	return strings.Join(lines, "\n")
}
