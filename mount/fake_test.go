// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mount

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"sync"

	"github.com/u-root/sshmount/remote"
)

// fake answers commands from a table. Anything not in the table fails
// with status 127, as a shell would for an unknown command.
type fake struct {
	answer map[string]remote.Result
	cmds   []string
	closed int
}

func (f *fake) Exec(cmd string) (*remote.Result, error) {
	f.cmds = append(f.cmds, cmd)
	if r, ok := f.answer[cmd]; ok {
		return &r, nil
	}
	return &remote.Result{ExitCode: 127, Stderr: []byte(fmt.Sprintf("%q: not found", cmd))}, nil
}

func (f *fake) Close() error {
	f.closed++
	return nil
}

// str is the raw output of a RunString command printing s.
func str(s string) remote.Result {
	return remote.Result{Stdout: []byte(s + "-\n")}
}

func out(s string) remote.Result {
	return remote.Result{Stdout: []byte(s)}
}

// shell runs commands with the local /bin/sh, starting in dir.
type shell struct {
	dir    string
	cmds   []string
	closed bool
}

func (l *shell) Exec(cmd string) (*remote.Result, error) {
	l.cmds = append(l.cmds, cmd)
	c := exec.Command(remote.Shell, "-c", cmd)
	c.Dir = l.dir
	var o, e bytes.Buffer
	c.Stdout, c.Stderr = &o, &e
	err := c.Run()
	res := &remote.Result{Stdout: o.Bytes(), Stderr: e.Bytes()}
	var ee *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &ee):
		res.ExitCode = ee.ExitCode()
	default:
		return nil, err
	}
	return res, nil
}

func (l *shell) Close() error {
	l.closed = true
	return nil
}

// recorder is a ulog.Logger that keeps what it is given.
type recorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *recorder) Printf(f string, a ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, fmt.Sprintf(f, a...))
}

func (r *recorder) Print(a ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, fmt.Sprint(a...))
}

func (r *recorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fmt.Sprintf("%q", r.lines)
}

// fakeServer runs until stopped or until exit is closed.
type fakeServer struct {
	s              remote.Session
	source, target string
	gidMap, uidMap map[int]int
	uid, gid       int

	stop  chan struct{}
	exit  chan struct{}
	once  sync.Once
	mu    sync.Mutex
	stops int
}

func newFakeServer() *fakeServer {
	return &fakeServer{stop: make(chan struct{}), exit: make(chan struct{})}
}

func (f *fakeServer) Run() error {
	select {
	case <-f.stop:
	case <-f.exit:
	}
	return nil
}

func (f *fakeServer) Stop() error {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
	f.once.Do(func() { close(f.stop) })
	return nil
}

func (f *fakeServer) Stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

// with returns a ServerFunc that records its arguments in f.
func (f *fakeServer) with() ServerFunc {
	return func(s remote.Session, source, target string, gidMap, uidMap map[int]int, uid, gid int) (Server, error) {
		f.s, f.source, f.target, f.gidMap, f.uidMap, f.uid, f.gid = s, source, target, gidMap, uidMap, uid, gid
		return f, nil
	}
}
