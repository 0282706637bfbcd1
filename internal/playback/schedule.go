package playback

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cogconvo/captioner/pkg/core"
)

// Blocks returns the speaker of every caption block (message) in order.
func Blocks(captions []core.Caption) []core.JurorID {
	var out []core.JurorID
	last := -1
	for _, c := range captions {
		if c.MessageID == last {
			continue
		}
		last = c.MessageID
		out = append(out, c.SpeakerID)
	}
	return out
}

// Schedule rotates idle and active clips. The speaker of the current block
// plays active clip N.mp4; everyone else loops a random idle clip from
// idle/<juror>/.
type Schedule struct {
	dir    string
	blocks []core.JurorID
	block  int
	rng    *rand.Rand
	idle   map[core.JurorID][]string
}

// NewSchedule reads the idle clips under dir and starts at the first block.
func NewSchedule(dir string, blocks []core.JurorID, seed int64) (*Schedule, error) {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s := &Schedule{
		dir:    dir,
		blocks: blocks,
		rng:    rand.New(rand.NewSource(seed)),
		idle:   make(map[core.JurorID][]string),
	}
	for _, id := range core.Jurors {
		idleDir := filepath.Join(dir, "idle", string(id))
		entries, err := os.ReadDir(idleDir)
		if err != nil {
			return nil, fmt.Errorf("idle clips for %s: %w", id, err)
		}
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".mp4") {
				s.idle[id] = append(s.idle[id], filepath.Join(idleDir, e.Name()))
			}
		}
		if len(s.idle[id]) == 0 {
			return nil, fmt.Errorf("no idle clips for %s in %s", id, idleDir)
		}
		sort.Strings(s.idle[id])
	}
	return s, nil
}

// Block returns the index of the current block.
func (s *Schedule) Block() int { return s.block }

// Active returns the speaker of the current block.
func (s *Schedule) Active() core.JurorID {
	if s.block >= len(s.blocks) {
		return core.JurorNone
	}
	return s.blocks[s.block]
}

// ActiveClip returns the active clip of block i.
func (s *Schedule) ActiveClip(i int) string {
	return filepath.Join(s.dir, fmt.Sprintf("%d.mp4", i+1))
}

// Current returns the clip every juror plays in the current block.
func (s *Schedule) Current() map[core.JurorID]string {
	active := s.Active()
	out := make(map[core.JurorID]string, len(core.Jurors))
	for _, id := range core.Jurors {
		if id == active {
			out[id] = s.ActiveClip(s.block)
			continue
		}
		clips := s.idle[id]
		out[id] = clips[s.rng.Intn(len(clips))]
	}
	return out
}

// Advance moves to the next block once the active clip finished. It reports
// false after the last block.
func (s *Schedule) Advance() bool {
	if s.block >= len(s.blocks) {
		return false
	}
	s.block++
	return s.block < len(s.blocks)
}

// CutArgs are the ffmpeg arguments copying [from, to) of in to out.
func CutArgs(in, out string, from, to time.Duration) []string {
	return []string{"-err_detect", "ignore_err", "-i", in, "-ss", clock(from), "-to", clock(to), "-c", "copy", out}
}

// Cut extracts [from, to) of a video with ffmpeg.
func Cut(ctx context.Context, ffmpeg, in, out string, from, to time.Duration) error {
	cmd := exec.CommandContext(ctx, ffmpeg, CutArgs(in, out, from, to)...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("cut %s: %w: %s", in, err, strings.TrimSpace(string(output)))
	}
	return nil
}

func clock(d time.Duration) string {
	d = d.Truncate(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	return fmt.Sprintf("%02d:%02d:%02d", h, m, d/time.Second)
}
