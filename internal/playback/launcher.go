// Package playback drives the external video players showing the jurors.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
)

// ErrNotPrepared is returned when releasing a launcher that was not prepared.
var ErrNotPrepared = errors.New("playback not prepared")

// Launcher starts one player process per video. Processes are prepared
// first and held until Release starts them all together.
type Launcher struct {
	player string
	args   []string
	files  []string
	logger *slog.Logger

	mu       sync.Mutex
	release  chan struct{}
	released bool
	wg       sync.WaitGroup
	errs     []error
}

// NewLauncher creates a launcher running `player args... file` per file.
func NewLauncher(player string, args []string, files []string, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{player: player, args: args, files: files, logger: logger}
}

// Files returns the videos played.
func (l *Launcher) Files() []string { return l.files }

// Prepare checks the player and videos and parks one goroutine per video
// behind the start barrier. Cancelling ctx kills running players.
func (l *Launcher) Prepare(ctx context.Context) error {
	path, err := exec.LookPath(l.player)
	if err != nil {
		return fmt.Errorf("video player %q: %w", l.player, err)
	}
	for _, f := range l.files {
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("video %s: %w", f, err)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.release != nil {
		return fmt.Errorf("playback already prepared")
	}
	l.release = make(chan struct{})
	for _, f := range l.files {
		cmd := exec.CommandContext(ctx, path, append(append([]string(nil), l.args...), f)...)
		l.wg.Add(1)
		go l.play(ctx, cmd, f)
	}
	l.logger.Info("Video players ready", "videos", len(l.files))
	return nil
}

func (l *Launcher) play(ctx context.Context, cmd *exec.Cmd, file string) {
	defer l.wg.Done()
	select {
	case <-ctx.Done():
		return
	case <-l.release:
	}
	l.logger.Debug("Starting video", "file", filepath.Base(file))
	if err := cmd.Run(); err != nil && ctx.Err() == nil {
		l.mu.Lock()
		l.errs = append(l.errs, fmt.Errorf("play %s: %w", file, err))
		l.mu.Unlock()
	}
}

// Release starts every prepared player at once.
func (l *Launcher) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.release == nil {
		return ErrNotPrepared
	}
	if !l.released {
		close(l.release)
		l.released = true
	}
	return nil
}

// Wait blocks until every player has exited.
func (l *Launcher) Wait() error {
	l.wg.Wait()
	l.mu.Lock()
	defer l.mu.Unlock()
	return errors.Join(l.errs...)
}
