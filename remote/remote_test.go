// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package remote

import (
	"errors"
	"testing"
)

// oneShot answers every command with the same result.
type oneShot struct {
	res  Result
	err  error
	cmds []string
}

func (o *oneShot) Exec(cmd string) (*Result, error) {
	o.cmds = append(o.cmds, cmd)
	if o.err != nil {
		return nil, o.err
	}
	r := o.res
	return &r, nil
}

func (o *oneShot) Close() error { return nil }

func TestTrim(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "\n", want: ""},
		{in: "-\n", want: ""},
		{in: "value-\n", want: "value"},
		{in: "value  -\n", want: "value  "},
		{in: "a  b-\n", want: "a  b"},
		{in: "/home/ubuntu-\n\n", want: "/home/ubuntu"},
		{in: "a--\n", want: "a-"},
		{in: "no sentinel \n", want: "no sentinel"},
	} {
		if got := Trim([]byte(tt.in)); got != tt.want {
			t.Errorf("Trim(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEnvelope(t *testing.T) {
	got := Envelope("pwd")
	want := `o=$(pwd) || exit; printf '%s-\n' "$o"`
	if got != want {
		t.Errorf("Envelope(%q): got %q, want %q", "pwd", got, want)
	}
}

func TestRun(t *testing.T) {
	s := &oneShot{res: Result{Stdout: []byte("hi\n")}}
	out, err := Run(s, "echo hi")
	if err != nil {
		t.Fatalf("Run(%q): %v != nil", "echo hi", err)
	}
	if string(out) != "hi\n" {
		t.Errorf("Run(%q): got %q, want %q", "echo hi", out, "hi\n")
	}
}

func TestRunFails(t *testing.T) {
	s := &oneShot{res: Result{ExitCode: 2, Stdout: []byte("partial"), Stderr: []byte("no such file\n")}}
	out, err := Run(s, "ls /nope")
	var ce *CommandError
	if !errors.As(err, &ce) {
		t.Fatalf("Run(%q): got %v, want *CommandError", "ls /nope", err)
	}
	if ce.ExitCode != 2 || ce.Stderr != "no such file\n" || ce.Cmd != "ls /nope" {
		t.Errorf("Run(%q): got %+v, want exit 2 and stderr %q", "ls /nope", ce, "no such file\n")
	}
	if ce.Error() != "no such file" {
		t.Errorf("CommandError.Error(): got %q, want %q", ce.Error(), "no such file")
	}
	if out != nil {
		t.Errorf("Run(%q): got output %q on failure, want nil", "ls /nope", out)
	}
}

func TestRunTransportError(t *testing.T) {
	want := errors.New("connection reset")
	s := &oneShot{err: want}
	if _, err := Run(s, "true"); !errors.Is(err, want) {
		t.Fatalf("Run(%q): got %v, want %v", "true", err, want)
	}
}

func TestRunHandler(t *testing.T) {
	errMissing := errors.New("missing")
	s := &oneShot{res: Result{ExitCode: 1, Stderr: []byte("which: no sshfs")}}
	var seen *Result
	_, err := RunHandler(s, "which sshfs", func(r *Result) error {
		seen = r
		return errMissing
	})
	if !errors.Is(err, errMissing) {
		t.Fatalf("RunHandler: got %v, want %v", err, errMissing)
	}
	if seen == nil || string(seen.Stderr) != "which: no sshfs" {
		t.Fatalf("RunHandler: handler saw %+v, want stderr %q", seen, "which: no sshfs")
	}

	// A handler returning nil swallows the failure.
	s.res.Stdout = []byte("out")
	out, err := RunHandler(s, "false", func(*Result) error { return nil })
	if err != nil || string(out) != "out" {
		t.Fatalf("RunHandler: got (%q, %v), want (%q, nil)", out, err, "out")
	}
}

func TestRunString(t *testing.T) {
	s := &oneShot{res: Result{Stdout: []byte("/home/my user  -\n")}}
	got, err := RunString(s, "pwd")
	if err != nil {
		t.Fatalf("RunString(%q): %v != nil", "pwd", err)
	}
	if got != "/home/my user  " {
		t.Errorf("RunString(%q): got %q, want %q", "pwd", got, "/home/my user  ")
	}
	if len(s.cmds) != 1 || s.cmds[0] != Envelope("pwd") {
		t.Errorf("RunString(%q): ran %q, want [%q]", "pwd", s.cmds, Envelope("pwd"))
	}
}

func TestRunStringFails(t *testing.T) {
	s := &oneShot{res: Result{ExitCode: 7, Stderr: []byte("boom\n")}}
	got, err := RunString(s, "id -nu")
	var ce *CommandError
	if !errors.As(err, &ce) || ce.ExitCode != 7 || ce.Error() != "boom" {
		t.Fatalf("RunString(%q): got (%q, %v), want *CommandError with exit 7 and %q", "id -nu", got, err, "boom")
	}
}

func TestQuote(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want string
	}{
		{in: "", want: "''"},
		{in: "/home/ubuntu", want: "/home/ubuntu"},
		{in: "a b", want: "'a b'"},
		{in: "it's", want: `'it'"'"'s'`},
		{in: "$(reboot)", want: "'$(reboot)'"},
	} {
		if got := Quote(tt.in); got != tt.want {
			t.Errorf("Quote(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPrivileged(t *testing.T) {
	for _, tt := range []struct {
		prefix string
		script string
		want   string
	}{
		{prefix: "sudo", script: "cd /r && ls", want: "sudo /bin/sh -c 'cd /r && ls'"},
		{prefix: "", script: "cd /r && ls", want: "/bin/sh -c 'cd /r && ls'"},
		{prefix: "doas ", script: "id", want: "doas /bin/sh -c id"},
	} {
		if got := Privileged(tt.prefix, tt.script); got != tt.want {
			t.Errorf("Privileged(%q, %q): got %q, want %q", tt.prefix, tt.script, got, tt.want)
		}
	}
}
