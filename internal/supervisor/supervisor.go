// Package supervisor owns the assistant worker's process lifecycle: spawn,
// exit observation, and termination. Spawning is optional; a worker that is
// already running externally never touches this package.
package supervisor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/codeweiz/prismata/internal/logging"
)

// ErrSpawn means the worker failed to launch. Fatal to session start.
var ErrSpawn = errors.New("spawn failed")

const killWait = 2 * time.Second

// Spec describes how to launch the worker.
type Spec struct {
	Path string
	Args []string
	Env  []string // appended to the inherited environment
	Dir  string
}

// State is the worker's last-known liveness state.
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateExited
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	default:
		return "exited"
	}
}

// ExitStatus carries how the worker exited.
type ExitStatus struct {
	Code   int
	Signal string
	Err    error
}

// Worker is one supervised process. The *exec.Cmd handle is owned
// exclusively here; no other component mutates it.
type Worker struct {
	cmd       *exec.Cmd
	spec      Spec
	startedAt time.Time
	state     atomic.Int32
	log       zerolog.Logger

	sinks sync.WaitGroup // output readers still draining their pipes

	mu     sync.Mutex
	status ExitStatus
	exited chan struct{} // closed by monitor after status is recorded
}

// Start launches the worker with the inherited environment. stdout/stderr
// are captured for diagnostics only, never parsed for control decisions.
func Start(spec Spec) (*Worker, error) {
	if spec.Path == "" {
		return nil, fmt.Errorf("%w: empty executable path", ErrSpawn)
	}

	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Env = append(os.Environ(), spec.Env...)
	if spec.Dir != "" {
		cmd.Dir = spec.Dir
	}

	w := &Worker{
		cmd:    cmd,
		spec:   spec,
		exited: make(chan struct{}),
		log:    logging.Component("supervisor"),
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrSpawn, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stderr pipe: %v", ErrSpawn, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSpawn, spec.Path, err)
	}
	w.startedAt = time.Now()
	w.state.Store(int32(StateRunning))

	w.sinks.Add(2)
	go w.sink("stdout", stdout)
	go w.sink("stderr", stderr)
	go w.monitor()

	w.log.Info().Str("path", spec.Path).Int("pid", cmd.Process.Pid).Msg("worker started")
	return w, nil
}

// Pid returns the worker's process id.
func (w *Worker) Pid() int { return w.cmd.Process.Pid }

// StartedAt returns the launch time.
func (w *Worker) StartedAt() time.Time { return w.startedAt }

// State returns the last-known liveness state.
func (w *Worker) State() State { return State(w.state.Load()) }

// Exit is closed once the worker has exited and ExitStatus is available.
func (w *Worker) Exit() <-chan struct{} { return w.exited }

// ExitStatus reports how the worker exited. Only meaningful after Exit.
func (w *Worker) ExitStatus() ExitStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// monitor owns cmd.Wait. It is the only goroutine that reaps the process.
// Wait closes both pipes, so the sinks must reach EOF first or the tail of
// the worker's output is lost.
func (w *Worker) monitor() {
	w.sinks.Wait()
	err := w.cmd.Wait()

	status := ExitStatus{Err: err}
	if ws, ok := w.cmd.ProcessState.Sys().(syscall.WaitStatus); ok {
		if ws.Signaled() {
			status.Code = -1
			status.Signal = ws.Signal().String()
		} else {
			status.Code = ws.ExitStatus()
		}
	}

	w.mu.Lock()
	w.status = status
	w.mu.Unlock()
	w.state.Store(int32(StateExited))

	w.log.Info().Int("pid", w.cmd.Process.Pid).
		Int("code", status.Code).Str("signal", status.Signal).
		Msg("worker exited")
	close(w.exited)
}

// sink forwards one output stream to the diagnostic log, line by line.
func (w *Worker) sink(stream string, r io.Reader) {
	defer w.sinks.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		w.log.Debug().Str("stream", stream).Msg(scanner.Text())
	}
}

// Stop terminates the worker: SIGTERM, then SIGKILL after the grace
// period. Safe to call on an already-exited process.
func (w *Worker) Stop(grace time.Duration) error {
	if w.State() == StateExited {
		return nil
	}

	// Signal errors mean the process is already gone; the monitor
	// observes the exit either way.
	_ = w.cmd.Process.Signal(syscall.SIGTERM)

	select {
	case <-w.exited:
		return nil
	case <-time.After(grace):
	}

	_ = w.cmd.Process.Kill()
	select {
	case <-w.exited:
	case <-time.After(killWait):
	}
	return nil
}
