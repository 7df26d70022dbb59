// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mount

import (
	"sync"

	"github.com/google/uuid"
	"github.com/u-root/sshmount/remote"
	"github.com/u-root/sshmount/sftpd"
	"github.com/u-root/u-root/pkg/ulog"
)

const (
	// DefaultPrivilege prefixes commands that need root on the remote.
	DefaultPrivilege = "sudo"
	// DefaultTool is the file transfer tool the remote must have.
	DefaultTool = "sshfs"
)

var v = func(string, ...interface{}) {}

// SetVerbose sets the debug print function.
func SetVerbose(f func(string, ...interface{})) {
	v = f
}

func verbose(f string, a ...interface{}) {
	v("mount:"+f, a...)
}

// Server is a file server attached to a prepared remote directory.
// Run serves until the other side goes away or Stop is called. Stop may
// be called more than once, before, during or after Run.
type Server interface {
	Run() error
	Stop() error
}

// ServerFunc builds the Server for a mount. It takes ownership of s,
// and must close it if it returns an error.
type ServerFunc func(s remote.Session, source, target string, gidMap, uidMap map[int]int, uid, gid int) (Server, error)

type opts struct {
	privilege string
	tool      string
	options   []string
	log       ulog.Logger
	server    ServerFunc
}

// Opt configures New.
type Opt func(*opts)

// WithPrivilege sets the command prefix used for privileged steps.
// An empty prefix runs them as the connecting user.
func WithPrivilege(prefix string) Opt {
	return func(o *opts) {
		o.privilege = prefix
	}
}

// WithTool sets the tool that must exist on the remote host.
func WithTool(tool string) Opt {
	return func(o *opts) {
		o.tool = tool
	}
}

// WithOptions adds -o options to the remote sshfs command line.
func WithOptions(o ...string) Opt {
	return func(c *opts) {
		c.options = append(c.options, o...)
	}
}

// WithLogger sets where warnings and state changes are logged.
func WithLogger(l ulog.Logger) Opt {
	return func(o *opts) {
		o.log = l
	}
}

// WithServer replaces the file server.
func WithServer(f ServerFunc) Opt {
	return func(o *opts) {
		o.server = f
	}
}

// sftpServer builds an sftpd.Server with the same privilege and tool.
func (o *opts) sftpServer(s remote.Session, source, target string, gidMap, uidMap map[int]int, uid, gid int) (Server, error) {
	srv, err := sftpd.New(s, source, target, gidMap, uidMap, uid, gid,
		sftpd.WithPrivilege(o.privilege), sftpd.WithTool(o.tool), sftpd.WithOptions(o.options...))
	if err != nil {
		return nil, err
	}
	return srv, nil
}

// preparer runs the preparation commands until the session is handed
// off. After that, it refuses to run anything.
type preparer struct {
	s remote.Session
}

var _ remote.Session = &preparer{}

func (p *preparer) Exec(cmd string) (*remote.Result, error) {
	if p.s == nil {
		return nil, ErrHandedOff
	}
	return p.s.Exec(cmd)
}

// Close closes the session unless it was handed off.
func (p *preparer) Close() error {
	if p.s == nil {
		return nil
	}
	s := p.s
	p.s = nil
	return s.Close()
}

// handoff gives up the session.
func (p *preparer) handoff() remote.Session {
	s := p.s
	p.s = nil
	return s
}

// Mount is a prepared remote directory with a running file server.
type Mount struct {
	// ID tags log lines for this mount.
	ID     uuid.UUID
	Source string
	// Target is the remote directory, with ~ expanded.
	Target string

	server Server
	log    ulog.Logger
	done   chan struct{}
	err    error
	once   sync.Once
}

// New prepares target on the remote host and starts serving source
// there. It blocks until preparation is done, then returns with the
// server running in the background.
//
// New owns s from the start. If preparation fails, s is closed and the
// error returned; no server is started.
func New(s remote.Session, source, target string, gidMap, uidMap map[int]int, o ...Opt) (*Mount, error) {
	cfg := &opts{
		privilege: DefaultPrivilege,
		tool:      DefaultTool,
		log:       ulog.Log,
	}
	for _, f := range o {
		f(cfg)
	}
	if cfg.server == nil {
		cfg.server = cfg.sftpServer
	}

	p := &preparer{s: s}
	m, err := prepare(p, cfg, source, target, gidMap, uidMap)
	if err != nil {
		if cerr := p.Close(); cerr != nil {
			verbose("closing session after %v: %v", err, cerr)
		}
		return nil, err
	}
	go m.run()
	return m, nil
}

func prepare(p *preparer, cfg *opts, source, target string, gidMap, uidMap map[int]int) (*Mount, error) {
	verbose("prepare(source = %q, target = %q)", source, target)
	if err := CheckTool(p, cfg.log, cfg.tool); err != nil {
		return nil, err
	}
	expanded, err := ExpandHome(p, target)
	if err != nil {
		return nil, err
	}
	root, rel, err := SplitPath(p, cfg.privilege, expanded)
	if err != nil {
		return nil, err
	}
	if err := MakeTargetDir(p, cfg.privilege, root, rel); err != nil {
		return nil, err
	}
	if err := SetOwner(p, cfg.privilege, root, rel); err != nil {
		return nil, err
	}
	uid, gid, err := DefaultIDs(p)
	if err != nil {
		return nil, err
	}

	// From here on the session belongs to the server.
	srv, err := cfg.server(p.handoff(), source, expanded, gidMap, uidMap, uid, gid)
	if err != nil {
		return nil, err
	}
	return &Mount{
		ID:     uuid.New(),
		Source: source,
		Target: expanded,
		server: srv,
		log:    cfg.log,
		done:   make(chan struct{}),
	}, nil
}

func (m *Mount) run() {
	defer close(m.done)
	m.log.Printf("mount %v: connected %s to %s", m.ID, m.Source, m.Target)
	m.err = m.server.Run()
	m.log.Printf("mount %v: stopped", m.ID)
}

// Stop stops the server and waits for it to exit. It is safe to call
// more than once, and concurrently with the server exiting on its own;
// only the first call can return an error.
func (m *Mount) Stop() error {
	var err error
	m.once.Do(func() {
		verbose("%v: stop", m.ID)
		err = m.server.Stop()
	})
	<-m.done
	return err
}

// Close implements io.Closer. It is Stop.
func (m *Mount) Close() error {
	return m.Stop()
}

// Done is closed when the server has exited.
func (m *Mount) Done() <-chan struct{} {
	return m.done
}

// Err returns the server's exit error, once Done is closed.
func (m *Mount) Err() error {
	select {
	case <-m.done:
		return m.err
	default:
		return nil
	}
}
