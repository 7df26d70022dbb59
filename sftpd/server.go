// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sftpd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/sftp"
	"github.com/u-root/sshmount/remote"
)

var v = func(string, ...interface{}) {}

// SetVerbose sets the debug print function.
func SetVerbose(f func(string, ...interface{})) {
	v = f
}

// ErrRunning is returned by a second concurrent Run.
var ErrRunning = errors.New("sftpd: already running")

// DefaultOptions are the sshfs options every mount gets.
var DefaultOptions = []string{"slave", "transform_symlinks", "allow_other"}

// Server serves one directory to one sshfs.
type Server struct {
	session remote.Session
	stream  remote.Streamer
	fs      *fs

	// Source is the local directory being served.
	Source string
	// Target is where sshfs mounts it on the remote host.
	Target string

	privilege string
	tool      string
	options   []string

	mu      sync.Mutex
	stopped bool
	rs      *sftp.RequestServer
}

// Opt configures a Server.
type Opt func(*Server)

// WithPrivilege sets the prefix sshfs runs under. The default is none.
func WithPrivilege(prefix string) Opt {
	return func(s *Server) {
		s.privilege = prefix
	}
}

// WithTool sets the name of the sshfs binary.
func WithTool(tool string) Opt {
	return func(s *Server) {
		if len(tool) != 0 {
			s.tool = tool
		}
	}
}

// WithOptions adds sshfs -o options, e.g. nonempty for fuse 2.
func WithOptions(o ...string) Opt {
	return func(s *Server) {
		s.options = append(s.options, o...)
	}
}

// New returns a Server for source, to be mounted at target on the far
// side of s. The maps go from host ids to remote ids; uid and gid are
// reported for files whose owner is not in the maps.
//
// s must also be a remote.Streamer. The Server owns s: Stop closes it,
// and so does New if it fails.
func New(s remote.Session, source, target string, gidMap, uidMap map[int]int, uid, gid int, opts ...Opt) (*Server, error) {
	srv, err := newServer(s, source, target, gidMap, uidMap, uid, gid, opts...)
	if err != nil {
		if cerr := s.Close(); cerr != nil {
			v("sftpd: close after %v: %v", err, cerr)
		}
		return nil, err
	}
	return srv, nil
}

func newServer(s remote.Session, source, target string, gidMap, uidMap map[int]int, uid, gid int, opts ...Opt) (*Server, error) {
	st, ok := s.(remote.Streamer)
	if !ok {
		return nil, fmt.Errorf("sftpd: %T can not stream", s)
	}
	root, err := filepath.Abs(source)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("sftpd: %s: not a directory", source)
	}
	srv := &Server{
		session: s,
		stream:  st,
		fs:      newFS(root, gidMap, uidMap, uid, gid),
		Source:  root,
		Target:  target,
		tool:    "sshfs",
		options: append([]string{}, DefaultOptions...),
	}
	for _, o := range opts {
		o(srv)
	}
	return srv, nil
}

// Command is the remote command line that runs sshfs.
func (s *Server) Command() string {
	args := []string{s.tool}
	for _, o := range s.options {
		args = append(args, "-o", remote.Quote(o))
	}
	args = append(args, remote.Quote(":"+filepath.ToSlash(s.Source)), remote.Quote(s.Target))
	if p := strings.TrimSpace(s.privilege); len(p) != 0 {
		args = append([]string{p}, args...)
	}
	return strings.Join(args, " ")
}

// Run starts sshfs and serves it until it exits or Stop is called. Both
// are normal ends and return nil. Run after Stop returns nil at once.
func (s *Server) Run() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	if s.rs != nil {
		s.mu.Unlock()
		return ErrRunning
	}
	cmd := s.Command()
	v("sftpd: start %q", cmd)
	rwc, err := s.stream.Stream(cmd)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	rs := sftp.NewRequestServer(rwc, s.fs.handlers(), sftp.WithStartDirectory(filepath.ToSlash(s.Source)))
	s.rs = rs
	s.mu.Unlock()

	err = rs.Serve()
	rs.Close()
	v("sftpd: serve returns %v", err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// Stop ends Run, if it is running, and closes the session. Later calls
// do nothing.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	var err error
	if s.rs != nil {
		if e := s.rs.Close(); e != nil && !errors.Is(e, io.EOF) {
			err = multierror.Append(err, e)
		}
	}
	if e := s.session.Close(); e != nil {
		err = multierror.Append(err, e)
	}
	return err
}
