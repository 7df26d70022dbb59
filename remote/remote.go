// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package remote

import (
	"fmt"
	"io"
	"strings"
	"unicode"
)

// sentinel terminates the output envelope used by RunString.
const sentinel = '-'

var v = func(string, ...interface{}) {}

// SetVerbose sets the debug print function.
func SetVerbose(f func(string, ...interface{})) {
	v = f
}

// Result is the outcome of a single remote command.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Session runs commands on a remote host.
// Exec returns an error only when the command could not be run at all;
// a command that ran and failed is reported through Result.ExitCode.
type Session interface {
	Exec(cmd string) (*Result, error)
	Close() error
}

// Streamer is a Session that can also start a long-running command
// and talk to it over its stdin and stdout.
type Streamer interface {
	Stream(cmd string) (io.ReadWriteCloser, error)
}

// CommandError is returned when a remote command exits non-zero.
type CommandError struct {
	Cmd      string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if len(msg) == 0 {
		return fmt.Sprintf("remote command %q exited with status %d", e.Cmd, e.ExitCode)
	}
	return msg
}

// Run runs cmd and returns its stdout. A non-zero exit status is
// returned as a *CommandError holding the command's stderr.
func Run(s Session, cmd string) ([]byte, error) {
	return RunHandler(s, cmd, func(r *Result) error {
		return &CommandError{Cmd: cmd, ExitCode: r.ExitCode, Stderr: string(r.Stderr)}
	})
}

// RunHandler runs cmd and returns its stdout. If the command exits
// non-zero, onFail is called with the full result and its error is
// returned. If onFail returns nil, the failure is ignored.
func RunHandler(s Session, cmd string, onFail func(*Result) error) ([]byte, error) {
	v("remote: run %q", cmd)
	r, err := s.Exec(cmd)
	if err != nil {
		return nil, err
	}
	v("remote: %q: exit %d, stdout %q, stderr %q", cmd, r.ExitCode, r.Stdout, r.Stderr)
	if r.ExitCode != 0 {
		if err := onFail(r); err != nil {
			return nil, err
		}
	}
	return r.Stdout, nil
}

// Envelope wraps cmd so that its output always ends with the sentinel
// character, followed by a newline. The command substitution is quoted
// so whitespace inside the output survives the round trip. If cmd fails,
// nothing is printed and its exit status is kept.
func Envelope(cmd string) string {
	return `o=$(` + cmd + `) || exit; printf '%s` + string(sentinel) + `\n' "$o"`
}

// Trim removes the envelope added by Envelope from raw output: trailing
// whitespace goes first, then a single trailing sentinel, if there is one.
// Whitespace the command itself printed before the sentinel is kept.
func Trim(raw []byte) string {
	s := strings.TrimRightFunc(string(raw), unicode.IsSpace)
	if len(s) == 0 {
		return s
	}
	return strings.TrimSuffix(s, string(sentinel))
}

// RunString runs cmd and returns its output, including any trailing
// spaces, but without the trailing newlines a shell would add.
func RunString(s Session, cmd string) (string, error) {
	out, err := Run(s, Envelope(cmd))
	if err != nil {
		return "", err
	}
	return Trim(out), nil
}
