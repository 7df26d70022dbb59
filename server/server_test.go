// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"bytes"
	"errors"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/gliderlabs/ssh"
	ossh "golang.org/x/crypto/ssh"
)

func TestNewServer(t *testing.T) {
	pk := filepath.Join(t.TempDir(), "key.pub")
	if err := os.WriteFile(pk, publicKey, 0644); err != nil {
		t.Fatal(err)
	}
	s, err := New(pk, "")
	if err != nil {
		t.Fatalf(`New(%q, ""): %v != nil`, pk, err)
	}
	if s.PublicKeyHandler == nil {
		t.Fatalf(`New(%q, "") returns a server without a public key handler`, pk)
	}
}

func TestNewServerWithoutKey(t *testing.T) {
	s, err := New("", "")
	if err != nil {
		t.Fatalf(`New("", ""): %v != nil`, err)
	}
	if s.PublicKeyHandler != nil {
		t.Fatalf(`New("", "") returns a server with a public key handler`)
	}
}

func TestNewServerBadKey(t *testing.T) {
	d := t.TempDir()
	if _, err := New(filepath.Join(d, "nope.pub"), ""); err == nil {
		t.Errorf("New with a missing key file: nil != an error")
	}
	bad := filepath.Join(d, "bad.pub")
	if err := os.WriteFile(bad, []byte("not a key"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(bad, ""); err == nil {
		t.Errorf("New with a garbage key file: nil != an error")
	}
}

// start serves s on a loopback port and returns the address.
func start(t *testing.T, s *ssh.Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen(): %v != nil", err)
	}
	go s.Serve(ln) //nolint
	t.Cleanup(func() { s.Close() })
	return ln.Addr().String()
}

func dial(addr string, auth ...ossh.AuthMethod) (*ossh.Client, error) {
	return ossh.Dial("tcp", addr, &ossh.ClientConfig{
		User:            "cputest",
		Auth:            auth,
		HostKeyCallback: ossh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	})
}

func run(t *testing.T, c *ossh.Client, cmd string) (string, string, error) {
	t.Helper()
	s, err := c.NewSession()
	if err != nil {
		t.Fatalf("NewSession: %v != nil", err)
	}
	defer s.Close()
	var o, e bytes.Buffer
	s.Stdout, s.Stderr = &o, &e
	err = s.Run(cmd)
	return o.String(), e.String(), err
}

func TestServerExec(t *testing.T) {
	if runtime.GOOS == "windows" || runtime.GOOS == "plan9" {
		t.Skipf("no %s on %s", Shell, runtime.GOOS)
	}
	v = t.Logf
	s, err := New("", "")
	if err != nil {
		t.Fatalf(`New("", ""): %v != nil`, err)
	}
	c, err := dial(start(t, s))
	if err != nil {
		t.Fatalf("Dial: %v != nil", err)
	}
	defer c.Close()

	o, e, err := run(t, c, "echo hello; echo oops >&2")
	if err != nil {
		t.Fatalf("Run: %v != nil", err)
	}
	if o != "hello\n" || e != "oops\n" {
		t.Errorf("Run: got (%q, %q), want (%q, %q)", o, e, "hello\n", "oops\n")
	}

	_, _, err = run(t, c, "exit 3")
	var ee *ossh.ExitError
	if !errors.As(err, &ee) || ee.ExitStatus() != 3 {
		t.Errorf("Run(exit 3): got %v, want exit status 3", err)
	}

	if h, err := os.UserHomeDir(); err == nil {
		if fi, err := os.Stat(h); err == nil && fi.IsDir() {
			o, _, err := run(t, c, "pwd -P")
			want, _ := filepath.EvalSymlinks(h)
			if err != nil || o != want+"\n" {
				t.Errorf("pwd: got (%q, %v), want (%q, nil)", o, err, want+"\n")
			}
		}
	}
}

func TestServerPublicKey(t *testing.T) {
	signer, err := ossh.ParsePrivateKey(privateKey)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v != nil", err)
	}
	pk := filepath.Join(t.TempDir(), "key.pub")
	if err := os.WriteFile(pk, ossh.MarshalAuthorizedKey(signer.PublicKey()), 0644); err != nil {
		t.Fatal(err)
	}
	s, err := New(pk, "")
	if err != nil {
		t.Fatalf("New(%q, \"\"): %v != nil", pk, err)
	}
	addr := start(t, s)

	c, err := dial(addr, ossh.PublicKeys(signer))
	if err != nil {
		t.Fatalf("Dial with the authorized key: %v != nil", err)
	}
	c.Close()

	if c, err := dial(addr); err == nil {
		c.Close()
		t.Fatalf("Dial without a key: nil != an error")
	}
}

func TestDaemonStart(t *testing.T) {
	s, err := New("", "")
	if err != nil {
		t.Fatalf(`New("", ""): %v != nil`, err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen(): %v != nil", err)
	}
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.Close()
	}()
	if err := s.Serve(ln); err != ssh.ErrServerClosed {
		t.Fatalf("s.Serve(): %v != %v", err, ssh.ErrServerClosed)
	}
}
