// Package player launches mpv and follows the playback over its JSON IPC
// socket so the position can be saved and intros skipped.
package player

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/alvarorichard/Gostream/internal/models"
	"github.com/alvarorichard/Gostream/internal/util"
)

// ErrNotInstalled is returned when the player binary is not in PATH
var ErrNotInstalled = errors.New("mpv not found in PATH. Please install mpv: https://mpv.io/installation/")

const (
	defaultBinary       = "mpv"
	defaultPollInterval = time.Second
	socketWaitAttempts  = 50
)

// Options configures one playback
type Options struct {
	// Binary is the mpv executable, "mpv" when empty
	Binary  string
	Title   string
	Headers map[string]string
	// SubtitleFiles are local files or URLs added as subtitle tracks
	SubtitleFiles []string
	// Start is the resume position in seconds
	Start int
	Skip  models.SkipTimes
	// PollInterval is how often the position is read, one second when zero
	PollInterval time.Duration
	// Args are passed to mpv before the URL
	Args []string
}

// Playback is the last position seen before mpv exited
type Playback struct {
	Position int
	Duration int
	Skipped  []string
}

// Session is a running mpv process
type Session struct {
	cmd    *exec.Cmd
	socket string
	opts   Options
	done   chan error
	stderr *bytes.Buffer
}

// Start launches mpv for url and waits until its IPC socket accepts
// connections
func Start(ctx context.Context, url string, opts Options) (*Session, error) {
	binary := opts.Binary
	if binary == "" {
		binary = defaultBinary
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, ErrNotInstalled
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}

	socket := socketPath(fmt.Sprintf("%x", time.Now().UnixNano()))
	args := buildArgs(url, socket, opts)
	util.Debug("Starting mpv", "args", args)

	cmd := exec.CommandContext(ctx, path, args...)
	setProcessGroup(cmd)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start mpv: %w", err)
	}
	s := &Session{cmd: cmd, socket: socket, opts: opts, done: make(chan error, 1), stderr: &stderr}
	go func() { s.done <- cmd.Wait() }()

	timer := util.StartTimer("mpv_socket")
	defer timer.StopAndLog()
	for i := 0; i < socketWaitAttempts; i++ {
		if conn, err := dialMPVSocket(socket); err == nil {
			_ = conn.Close()
			return s, nil
		}
		select {
		case err := <-s.done:
			s.done <- err
			return nil, fmt.Errorf("mpv exited prematurely: %s", strings.TrimSpace(stderr.String()))
		case <-ctx.Done():
			_ = cmd.Process.Kill()
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}

	_ = cmd.Process.Kill()
	return nil, fmt.Errorf("timeout waiting for mpv socket %s", socket)
}

// Wait follows the playback until mpv exits, seeking past the intro and
// outro the first time the position enters them. Cancelling ctx stops mpv.
func (s *Session) Wait(ctx context.Context) (Playback, error) {
	var pb Playback
	skipped := map[string]bool{}
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()
	defer s.cleanup()

	for {
		select {
		case <-ctx.Done():
			_ = s.cmd.Process.Kill()
			<-s.done
			return pb, ctx.Err()
		case err := <-s.done:
			if err != nil && pb.Duration == 0 {
				return pb, fmt.Errorf("mpv failed: %w (stderr: %s)", err, strings.TrimSpace(s.stderr.String()))
			}
			return pb, nil
		case <-ticker.C:
			pos, err := GetFloat(s.socket, "time-pos")
			if err != nil {
				continue
			}
			pb.Position = int(pos)
			if dur, err := GetFloat(s.socket, "duration"); err == nil && dur > 0 {
				pb.Duration = int(dur)
			}

			if name, to, ok := skipTarget(pos, s.opts.Skip, skipped); ok {
				skipped[name] = true
				pb.Skipped = append(pb.Skipped, name)
				if _, err := SendCommand(s.socket, "seek", to, "absolute"); err != nil {
					util.Debug("Skip failed", "marker", name, "error", err)
					continue
				}
				util.Debug("Skipped", "marker", name, "to", to)
				pb.Position = to
			}
		}
	}
}

func (s *Session) cleanup() {
	if runtime.GOOS != "windows" {
		_ = os.Remove(s.socket)
	}
}

func socketPath(id string) string {
	if runtime.GOOS == "windows" {
		return `\\.\pipe\gostream_mpvsocket_` + id
	}
	return filepath.Join(os.TempDir(), "gostream_mpvsocket_"+id)
}

func buildArgs(url, socket string, opts Options) []string {
	args := []string{
		"--no-terminal",
		"--quiet",
		"--input-ipc-server=" + socket,
	}
	if opts.Title != "" {
		args = append(args, "--force-media-title="+opts.Title)
	}
	if len(opts.Headers) > 0 {
		keys := make([]string, 0, len(opts.Headers))
		for k := range opts.Headers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make([]string, 0, len(keys))
		for _, k := range keys {
			// mpv splits the list on commas
			fields = append(fields, k+": "+strings.ReplaceAll(opts.Headers[k], ",", `\,`))
		}
		args = append(args, "--http-header-fields="+strings.Join(fields, ","))
	}
	for _, sub := range opts.SubtitleFiles {
		args = append(args, "--sub-file="+sub)
	}
	if opts.Start > 0 {
		args = append(args, fmt.Sprintf("--start=%d", opts.Start))
	}
	args = append(args, opts.Args...)
	return append(args, url)
}

// skipTarget returns the marker the position sits in and where it ends
func skipTarget(pos float64, st models.SkipTimes, done map[string]bool) (string, int, bool) {
	for _, m := range []struct {
		name string
		skip models.Skip
	}{{"intro", st.Intro}, {"outro", st.Outro}} {
		if done[m.name] || !m.skip.Valid() {
			continue
		}
		if pos >= float64(m.skip.Start) && pos < float64(m.skip.End) {
			return m.name, m.skip.End, true
		}
	}
	return "", 0, false
}
