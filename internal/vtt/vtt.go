// Package vtt turns per-juror WebVTT transcripts into a caption script and
// splits long transcripts into sections.
package vtt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/asticode/go-astisub"

	"github.com/cogconvo/captioner/pkg/core"
)

// DefaultBounds are the section boundaries used to split a recording.
var DefaultBounds = []time.Duration{0, 150 * time.Second, 300 * time.Second, 450 * time.Second, 600 * time.Second}

// Read parses a WebVTT file.
func Read(path string) (*astisub.Subtitles, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	subs, err := astisub.ReadFromWebVTT(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return subs, nil
}

// Write writes subs as WebVTT. An empty transcript is written as a bare
// header.
func Write(path string, subs *astisub.Subtitles) error {
	var buf bytes.Buffer
	if subs == nil || len(subs.Items) == 0 {
		buf.WriteString("WEBVTT\n")
	} else if err := subs.WriteToWebVTT(&buf); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// FileName returns the transcript file of a juror, optionally for a section
// (section 0 means the whole recording).
func FileName(id core.JurorID, section int) string {
	if section == 0 {
		return string(id) + ".vtt"
	}
	return fmt.Sprintf("%s.%d.vtt", id, section)
}

// ReadDir reads the transcript of every juror from dir.
func ReadDir(dir string, section int) (map[core.JurorID]*astisub.Subtitles, error) {
	out := make(map[core.JurorID]*astisub.Subtitles, len(core.Jurors))
	for _, id := range core.Jurors {
		subs, err := Read(filepath.Join(dir, FileName(id, section)))
		if err != nil {
			return nil, err
		}
		out[id] = subs
	}
	return out, nil
}

type cue struct {
	speaker core.JurorID
	item    *astisub.Item
	text    string
}

// Merge interleaves the jurors' cues by start time and splits each non-empty
// cue into one caption per word. Words of a cue are spaced evenly over its
// duration; message ids count cues and chunk ids count words within a cue.
func Merge(perJuror map[core.JurorID]*astisub.Subtitles) []core.Caption {
	var cues []cue
	for _, id := range core.Jurors {
		subs := perJuror[id]
		if subs == nil {
			continue
		}
		for _, it := range subs.Items {
			text := strings.TrimSpace(itemText(it))
			if text == "" {
				continue
			}
			cues = append(cues, cue{speaker: id, item: it, text: text})
		}
	}
	sort.SliceStable(cues, func(i, j int) bool { return cues[i].item.StartAt < cues[j].item.StartAt })

	var out []core.Caption
	for i, c := range cues {
		words := strings.Fields(c.text)
		start := ms(c.item.StartAt)
		step := ms(c.item.EndAt-c.item.StartAt) / float64(len(words))
		for j, w := range words {
			out = append(out, core.Caption{
				Text:      w,
				MessageID: i,
				ChunkID:   j,
				Delay:     start + float64(j)*step,
				SpeakerID: c.speaker,
			})
		}
	}
	return out
}

// Partition splits subs into len(bounds)-1 sections. Section i holds the cues
// lying entirely in [bounds[i], bounds[i+1]), shifted to start at zero.
func Partition(subs *astisub.Subtitles, bounds []time.Duration) []*astisub.Subtitles {
	if len(bounds) < 2 {
		return nil
	}
	out := make([]*astisub.Subtitles, len(bounds)-1)
	for i := 1; i < len(bounds); i++ {
		from, to := bounds[i-1], bounds[i]
		section := astisub.NewSubtitles()
		for _, it := range subs.Items {
			if it.StartAt < from || it.EndAt >= to {
				continue
			}
			shifted := *it
			shifted.StartAt -= from
			shifted.EndAt -= from
			section.Items = append(section.Items, &shifted)
		}
		out[i-1] = section
	}
	return out
}

// WriteCaptions writes a caption script as JSON.
func WriteCaptions(path string, captions []core.Caption) error {
	data, err := json.MarshalIndent(captions, "", "  ")
	if err != nil {
		return fmt.Errorf("encode captions: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func itemText(it *astisub.Item) string {
	var parts []string
	for _, l := range it.Lines {
		for _, li := range l.Items {
			parts = append(parts, li.Text)
		}
	}
	return strings.Join(parts, " ")
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
