// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/gliderlabs/ssh"
)

// Shell runs each requested command line.
const Shell = "/bin/sh"

var v = func(string, ...interface{}) {}

// SetVerbose sets the debug print function.
func SetVerbose(f func(string, ...interface{})) {
	v = f
}

func command(raw string) *exec.Cmd {
	cmd := exec.Command(Shell, "-c", raw)
	// Like sshd, start in the home directory, so that a fresh
	// shell's pwd is the user's home.
	if h, err := os.UserHomeDir(); err == nil {
		if fi, err := os.Stat(h); err == nil && fi.IsDir() {
			cmd.Dir = h
		}
	}
	return cmd
}

// exitCode extracts an exit status from the error returned by
// exec.Cmd.Run. Commands that could not be started report 127, as
// a shell would.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if c := ee.ExitCode(); c >= 0 {
			return c
		}
		return 1
	}
	return 127
}

func handler(s ssh.Session) {
	raw := s.RawCommand()
	v("handler: cmd is %q", raw)
	if len(raw) == 0 {
		fmt.Fprintln(s.Stderr(), "interactive sessions are not supported")
		s.Exit(1) //nolint
		return
	}
	cmd := command(raw)
	cmd.Env = append(os.Environ(), s.Environ()...)
	cmd.Stdout, cmd.Stderr = s, s.Stderr()
	stdin, err := cmd.StdinPipe()
	if err != nil {
		v("handler: stdin pipe: %v", err)
		s.Exit(1) //nolint
		return
	}
	// The copy is not waited for: a command may exit without
	// reading its input, and the client may never close it.
	go func() {
		io.Copy(stdin, s) //nolint
		stdin.Close()
	}()
	err = cmd.Run()
	if err != nil {
		v("handler: %q: %v", raw, err)
		if exitCode(err) == 127 {
			fmt.Fprintln(s.Stderr(), err)
		}
	}
	s.Exit(exitCode(err)) //nolint
	v("handler exits")
}

// New returns an SSH server that runs each session's command with
// Shell and reports its exit status. There are no terminals, no
// subsystems and no port forwarding: only exec.
//
// If publicKeyFile is empty, clients are not authenticated at all;
// that is only suitable for tests and private networks.
func New(publicKeyFile, hostKeyFile string) (*ssh.Server, error) {
	v("configure SSH server")
	server := &ssh.Server{
		Handler: handler,
	}
	if len(publicKeyFile) != 0 {
		data, err := os.ReadFile(publicKeyFile)
		if err != nil {
			return nil, err
		}
		allowed, _, _, _, err := ssh.ParseAuthorizedKey(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", publicKeyFile, err)
		}
		server.PublicKeyHandler = func(ctx ssh.Context, key ssh.PublicKey) bool {
			return ssh.KeysEqual(key, allowed)
		}
	}
	if len(hostKeyFile) != 0 {
		if err := server.SetOption(ssh.HostKeyFile(hostKeyFile)); err != nil {
			return nil, fmt.Errorf("host key %s: %w", hostKeyFile, err)
		}
	}
	return server, nil
}
