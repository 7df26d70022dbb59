// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package remote

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/crypto/ssh"
)

// SSH is a Session and Streamer over an SSH client connection.
// Each command gets its own ssh session; the connection is shared.
type SSH struct {
	c *ssh.Client
}

var (
	_ Session  = &SSH{}
	_ Streamer = &SSH{}
)

// NewSSH wraps an established client connection. The returned SSH owns
// the connection: Close closes it.
func NewSSH(c *ssh.Client) *SSH {
	return &SSH{c: c}
}

// Exec implements Session.Exec.
func (r *SSH) Exec(cmd string) (*Result, error) {
	if r.c == nil {
		return nil, fmt.Errorf("nil ssh client")
	}
	s, err := r.c.NewSession()
	if err != nil {
		return nil, fmt.Errorf("new ssh session: %w", err)
	}
	defer s.Close()

	var o, e bytes.Buffer
	s.Stdout, s.Stderr = &o, &e
	err = s.Run(cmd)
	res := &Result{Stdout: o.Bytes(), Stderr: e.Bytes()}
	var ee *ssh.ExitError
	switch {
	case err == nil:
	case errors.As(err, &ee):
		res.ExitCode = ee.ExitStatus()
	default:
		return nil, fmt.Errorf("run %q: %w", cmd, err)
	}
	return res, nil
}

// stream joins the stdin and stdout of a running ssh session.
type stream struct {
	io.Reader
	stdin io.WriteCloser
	s     *ssh.Session
	once  sync.Once
	err   error
}

func (st *stream) Write(b []byte) (int, error) {
	return st.stdin.Write(b)
}

// Close closes stdin, then the session. Further calls return nil.
func (st *stream) Close() error {
	st.once.Do(func() {
		var err error
		if e := st.stdin.Close(); e != nil && !errors.Is(e, io.EOF) {
			err = multierror.Append(err, e)
		}
		if e := st.s.Close(); e != nil && !errors.Is(e, io.EOF) {
			err = multierror.Append(err, e)
		}
		st.err = err
	})
	return st.err
}

// Stream implements Streamer.Stream. The command's stderr is passed to
// the debug print function.
func (r *SSH) Stream(cmd string) (io.ReadWriteCloser, error) {
	if r.c == nil {
		return nil, fmt.Errorf("nil ssh client")
	}
	s, err := r.c.NewSession()
	if err != nil {
		return nil, fmt.Errorf("new ssh session: %w", err)
	}
	stdin, err := s.StdinPipe()
	if err != nil {
		s.Close()
		return nil, err
	}
	stdout, err := s.StdoutPipe()
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Stderr = verboseWriter(cmd)
	v("remote: start %q", cmd)
	if err := s.Start(cmd); err != nil {
		s.Close()
		return nil, fmt.Errorf("start %q: %w", cmd, err)
	}
	return &stream{Reader: stdout, stdin: stdin, s: s}, nil
}

// Close implements Session.Close.
func (r *SSH) Close() error {
	if r.c == nil {
		return nil
	}
	if err := r.c.Close(); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

type verboseWriter string

func (w verboseWriter) Write(b []byte) (int, error) {
	v("remote: %q: stderr: %q", string(w), b)
	return len(b), nil
}
