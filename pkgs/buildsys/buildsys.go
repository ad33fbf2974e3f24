// Package buildsys holds what the build-system drivers (Autotools,
// MSBuild) share: the lifecycle interface and the way external tools
// are run.
package buildsys

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
)

// BuildSystem captures shared capabilities of build helpers.
type BuildSystem interface {
	// Environment helper, applied to every spawned tool.
	Env(key, val string)

	// Lifecycle.
	Configure(ctx context.Context, args ...string) error
	Build(ctx context.Context, args ...string) error
	Install(ctx context.Context, args ...string) error

	// Where artifacts land.
	OutputDir() string
}

// Command is a single tool invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	Env  map[string]string
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Runner runs commands to completion.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

// ExitError is returned by ExecRunner when a tool fails. Output holds
// the tail of its stderr.
type ExitError struct {
	Command Command
	Err     error
	Output  string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Command, e.Err)
	if e.Output != "" {
		msg += "\n" + e.Output
	}
	return msg
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// tailSize bounds the diagnostic output kept for ExitError.
const tailSize = 8 << 10

// ExecRunner runs commands with os/exec, streaming their output.
// A nil Stdout or Stderr means os.Stdout or os.Stderr.
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
}

func (r *ExecRunner) Run(ctx context.Context, c Command) error {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	stdout, stderr := r.Stdout, r.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	tail := &tailWriter{max: tailSize}
	cmd.Stdout = stdout
	cmd.Stderr = io.MultiWriter(stderr, tail)
	if len(c.Env) > 0 {
		cmd.Env = MergeEnv(os.Environ(), c.Env)
	}
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w (%v)", ctxErr, err)
		}
		return &ExitError{Command: c, Err: err, Output: strings.TrimSpace(tail.String())}
	}
	return nil
}

// DefaultRunner is used by drivers that were not given a Runner.
var DefaultRunner Runner = &ExecRunner{}

// MergeEnv returns base with every key in overrides replaced or
// appended, sorted by key.
func MergeEnv(base []string, overrides map[string]string) []string {
	envMap := make(map[string]string, len(base)+len(overrides))
	for _, kv := range base {
		if k, v, ok := strings.Cut(kv, "="); ok {
			envMap[k] = v
		}
	}
	for k, v := range overrides {
		envMap[k] = v
	}
	keys := make([]string, 0, len(envMap))
	for k := range envMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+envMap[k])
	}
	return out
}

// tailWriter keeps the last max bytes written to it.
type tailWriter struct {
	max int
	buf []byte
}

func (w *tailWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	if over := len(w.buf) - w.max; over > 0 {
		w.buf = append(w.buf[:0], w.buf[over:]...)
	}
	return len(p), nil
}

func (w *tailWriter) String() string {
	return string(w.buf)
}
