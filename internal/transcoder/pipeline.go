/*
Copyright (C) 2026 Waxpress

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package transcoder wraps the external media engine processes. Decode, mix,
// encode, and probe all happen in subprocesses; this package only manages
// lifecycle (spawn, signal, exit code) and file based I/O.
package transcoder

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Pipeline manages the GStreamer encoder process feeding the output target.
type Pipeline struct {
	gstBin string
	logger zerolog.Logger

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan error // closed after the process exits; carries the exit error
}

// NewPipeline constructs an encoder pipeline wrapper.
func NewPipeline(gstBin string, logger zerolog.Logger) *Pipeline {
	return &Pipeline{gstBin: gstBin, logger: logger.With().Str("component", "pipeline").Logger()}
}

// Start launches the gst pipeline with the provided launch string.
func (p *Pipeline) Start(ctx context.Context, launch string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd != nil && p.done != nil {
		select {
		case <-p.done:
			// Previous process has exited, ok to start new one
		default:
			return fmt.Errorf("pipeline already running")
		}
	}

	// Use shell to properly parse the GStreamer pipeline string
	shellCmd := fmt.Sprintf("%s -e %s", p.gstBin, launch)
	cmd := exec.CommandContext(ctx, "sh", "-c", shellCmd)
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return err
	}

	p.cmd = cmd
	done := make(chan error, 1)
	p.done = done

	go func(done chan error, c *exec.Cmd) {
		err := c.Wait()
		done <- err
		close(done)
		if err != nil {
			p.logger.Debug().Err(err).Msg("encoder pipeline exited")
		} else {
			p.logger.Info().Msg("encoder pipeline stopped")
		}
	}(done, cmd)

	return nil
}

// Done returns a channel that yields the exit error (nil on clean exit) and
// is closed once the process has terminated.
func (p *Pipeline) Done() <-chan error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Stop terminates the running pipeline. Safe to call repeatedly and when
// nothing is running.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	cmd := p.cmd
	done := p.done
	p.mu.Unlock()

	if cmd == nil || done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	default:
	}

	if cmd.Process != nil {
		_ = cmd.Process.Signal(os.Interrupt)
	}

	select {
	case <-time.After(5 * time.Second):
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-done
	case <-done:
		// Process exited on the interrupt
	}

	return nil
}

// EncodeLaunch builds the continuous encoder launch string reading the spool
// file and writing to target. Targets starting with icecast:// are sent via
// shout2send, anything else is treated as a file sink.
func EncodeLaunch(spoolPath, target string) string {
	src := fmt.Sprintf("filesrc location=%q ! decodebin ! audioconvert ! audioresample ! lamemp3enc bitrate=192", spoolPath)
	if icecast, ok := parseIcecastTarget(target); ok {
		return fmt.Sprintf("%s ! shout2send ip=%s port=%s password=%s mount=%s", src, icecast.host, icecast.port, icecast.password, icecast.mount)
	}
	return fmt.Sprintf("%s ! filesink location=%q", src, target)
}
