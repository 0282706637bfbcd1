package playback

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/cogconvo/captioner/pkg/core"
)

// Rotation plays a Schedule block by block: the active speaker's clip plays
// once while every other juror loops an idle clip. When the active clip ends
// the idle players are stopped and the next block starts. Like Launcher it
// is held until Release.
type Rotation struct {
	player   string
	args     []string
	loopArgs []string
	sched    *Schedule
	logger   *slog.Logger

	mu       sync.Mutex
	release  chan struct{}
	released bool
	done     chan struct{}
	err      error
}

// NewRotation creates a rotation over sched. loopArgs are added for idle
// clips only, e.g. "--loop-file=inf".
func NewRotation(player string, args, loopArgs []string, sched *Schedule, logger *slog.Logger) *Rotation {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rotation{player: player, args: args, loopArgs: loopArgs, sched: sched, logger: logger}
}

// Prepare checks the player and waits for Release in the background.
// Cancelling ctx stops the rotation.
func (r *Rotation) Prepare(ctx context.Context) error {
	path, err := exec.LookPath(r.player)
	if err != nil {
		return fmt.Errorf("video player %q: %w", r.player, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.release != nil {
		return fmt.Errorf("playback already prepared")
	}
	r.release = make(chan struct{})
	r.done = make(chan struct{})
	go func() {
		defer close(r.done)
		select {
		case <-ctx.Done():
			return
		case <-r.release:
		}
		err := r.run(ctx, path)
		r.mu.Lock()
		r.err = err
		r.mu.Unlock()
	}()
	return nil
}

// Release starts the first block.
func (r *Rotation) Release() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.release == nil {
		return ErrNotPrepared
	}
	if !r.released {
		close(r.release)
		r.released = true
	}
	return nil
}

// Wait blocks until the last block finished or the rotation was stopped.
func (r *Rotation) Wait() error {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done == nil {
		return ErrNotPrepared
	}
	<-done

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Rotation) run(ctx context.Context, path string) error {
	for {
		active := r.sched.Active()
		if !active.IsSet() {
			return nil
		}
		if err := r.playBlock(ctx, path, active, r.sched.Current()); err != nil {
			return err
		}
		if !r.sched.Advance() {
			r.logger.Info("Video rotation finished", "blocks", r.sched.Block())
			return nil
		}
	}
}

func (r *Rotation) playBlock(ctx context.Context, path string, active core.JurorID, clips map[core.JurorID]string) error {
	var idle sync.WaitGroup
	defer idle.Wait()
	idleCtx, stop := context.WithCancel(ctx)
	defer stop()

	for id, clip := range clips {
		if id == active {
			continue
		}
		args := append(append(append([]string(nil), r.args...), r.loopArgs...), clip)
		cmd := exec.CommandContext(idleCtx, path, args...)
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("idle clip for %s: %w", id, err)
		}
		idle.Add(1)
		go func() {
			defer idle.Done()
			_ = cmd.Wait()
		}()
	}

	clip := clips[active]
	r.logger.Debug("Playing active clip", "speaker", active, "clip", filepath.Base(clip), "block", r.sched.Block())
	cmd := exec.CommandContext(ctx, path, append(append([]string(nil), r.args...), clip)...)
	err := cmd.Run()
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("play %s: %w", clip, err)
	}
	return nil
}
