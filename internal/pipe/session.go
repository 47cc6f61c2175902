package pipe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pipeshard/pipeshard/internal/logging"
)

// DirMode selects the working directory of the external process.
type DirMode string

// Working directory modes.
const (
	DirInherit  DirMode = "inherit"  // run in the caller's current directory
	DirIsolated DirMode = "isolated" // run in a per-task directory with symlinked inputs
)

// taskDirRoot is the relative root under which isolated task directories are
// created.
const taskDirRoot = "tasks"

// Environment variable names under which a file-based split's source path is
// exposed to the subprocess. Both the legacy and the namespaced Hadoop-style
// name are injected so existing external tools find whichever they expect.
const (
	envInputFile           = "map_input_file"
	envInputFileNamespaced = "mapreduce_map_input_file"
)

// session owns one subprocess bound to one partition execution. It is never
// shared across partitions or reused.
type session struct {
	cmd     *exec.Cmd
	command []string
	stdin   io.WriteCloser
	stdout  io.ReadCloser
	taskDir string // "" unless isolated
	cleanup bool
	logger  logging.Logger

	waitOnce sync.Once
	exitCode int
}

// startSession composes the environment, prepares the working directory, and
// starts the subprocess. Any failure up to and including exec is a launch
// failure carrying the attempted command.
func startSession(ctx context.Context, command []string, env map[string]string, mode DirMode, cleanup bool, task Task, logger logging.Logger) (*session, error) {
	if len(command) == 0 {
		return nil, &LaunchError{Command: command, Cause: errors.New("empty command")}
	}

	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = 5 * time.Second
	cmd.Env = composeEnv(env, task)
	cmd.Stderr = os.Stderr

	s := &session{
		cmd:     cmd,
		command: command,
		cleanup: cleanup,
		logger:  logger,
	}

	if mode == DirIsolated {
		dir, err := setupTaskDir(task)
		if err != nil {
			return nil, &LaunchError{Command: command, Cause: err}
		}
		s.taskDir = dir
		cmd.Dir = dir
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		s.removeTaskDir()
		return nil, &LaunchError{Command: command, Cause: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.removeTaskDir()
		return nil, &LaunchError{Command: command, Cause: err}
	}
	s.stdin = stdin
	s.stdout = stdout

	if err := cmd.Start(); err != nil {
		s.removeTaskDir()
		return nil, &LaunchError{Command: command, Cause: err}
	}

	logger.Debug("Process started", "pid", cmd.Process.Pid, "partition", task.Partition, "attempt", task.Attempt)
	return s, nil
}

// wait reaps the process once and returns its exit code. Safe to call more
// than once; subsequent calls return the first result.
func (s *session) wait() int {
	s.waitOnce.Do(func() {
		err := s.cmd.Wait()
		s.exitCode = exitCodeFromError(err)
	})
	return s.exitCode
}

// release closes the output stream and, when configured, removes the isolated
// task directory. Must be called after wait.
func (s *session) release() {
	_ = s.stdout.Close()
	if s.cleanup {
		s.removeTaskDir()
	}
}

// kill force-terminates the subprocess. Used when the consumer abandons the
// output mid-stream, so blocked pipe reads and writes unblock.
func (s *session) kill() {
	if s.cmd.Process == nil {
		return
	}
	if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.logger.Warn("Failed to kill process", "error", err)
	}
}

func (s *session) removeTaskDir() {
	if s.taskDir == "" {
		return
	}
	if err := os.RemoveAll(s.taskDir); err != nil {
		s.logger.Warn("Failed to remove task directory", "dir", s.taskDir, "error", err)
	}
}

// composeEnv overlays the configured overrides onto the ambient environment
// and injects the split provenance variables when the task has one. Later
// values win, so overrides shadow ambient variables of the same name.
func composeEnv(overrides map[string]string, task Task) []string {
	merged := make(map[string]string)
	var order []string
	set := func(k, v string) {
		if _, seen := merged[k]; !seen {
			order = append(order, k)
		}
		merged[k] = v
	}

	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			set(kv[:i], kv[i+1:])
		}
	}
	for k, v := range overrides {
		set(k, v)
	}
	if task.InputFile != "" {
		set(envInputFile, task.InputFile)
		set(envInputFileNamespaced, task.InputFile)
	}

	env := make([]string, 0, len(order))
	for _, k := range order {
		env = append(env, k+"="+merged[k])
	}
	return env
}

// setupTaskDir creates the per-task working directory and populates it with
// symlinks to every staged file. The directory name is derived from partition
// and attempt identity, which is unique across concurrently running tasks.
func setupTaskDir(task Task) (string, error) {
	dir := filepath.Join(taskDirRoot, fmt.Sprintf("%d-%d", task.Partition, task.Attempt))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create task directory: %w", err)
	}
	for _, staged := range task.StagedFiles {
		abs, err := filepath.Abs(staged)
		if err != nil {
			return "", fmt.Errorf("resolve staged file %s: %w", staged, err)
		}
		link := filepath.Join(dir, filepath.Base(staged))
		if err := os.Symlink(abs, link); err != nil && !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("symlink staged file %s: %w", staged, err)
		}
	}
	return dir, nil
}

// exitCodeFromError extracts the exit code from a Wait error: 0 for nil, the
// process's code for an ExitError, 1 otherwise.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}
