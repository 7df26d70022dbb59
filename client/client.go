// Copyright 2018-2019 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package client dials the SSH connection a mount runs over.
package client

import (
	"fmt"
	"net"
	"time"

	config "github.com/kevinburke/ssh_config"
	"github.com/mdlayher/vsock"
	"github.com/u-root/sshmount/remote"
	"golang.org/x/crypto/ssh"
)

// V allows debug printing.
var V = func(string, ...interface{}) {}

// SetVerbose sets the debug print function.
func SetVerbose(f func(string, ...interface{})) {
	V = f
}

const defaultTimeOut = 30 * time.Second

// Conn is an SSH connection, not yet dialed.
// As in exec.Command, the fields are exposed and can be set directly
// before Dial.
type Conn struct {
	config ssh.ClientConfig
	// Host is the name given by the user.
	Host string
	// HostName as found in .ssh/config; set to Host if not found
	HostName       string
	HostKeyFile    string
	KnownHosts     string
	PrivateKeyFile string
	Port           string
	Timeout        time.Duration
	// DisablePrivateKey skips public key authentication.
	DisablePrivateKey bool

	network string
}

// New returns a Conn for host. Host name and user come from
// .ssh/config when it has them.
func New(host string) *Conn {
	return &Conn{
		Host:     host,
		HostName: GetHostName(host),
		Timeout:  defaultTimeOut,
		config: ssh.ClientConfig{
			User: GetUser(host),
		},
		network: "tcp",
	}
}

// Set is a function that configures a Conn.
type Set func(*Conn) error

// SetOptions applies the options in order, stopping at the first error.
func (c *Conn) SetOptions(opts ...Set) error {
	for _, o := range opts {
		if err := o(c); err != nil {
			return err
		}
	}
	return nil
}

// WithPrivateKeyFile sets the private key file. An empty name means
// look in .ssh/config, then DefaultKeyFile.
func WithPrivateKeyFile(key string) Set {
	return func(c *Conn) error {
		c.PrivateKeyFile = key
		return nil
	}
}

// WithDisablePrivateKey disables public key authentication.
func WithDisablePrivateKey(disable bool) Set {
	return func(c *Conn) error {
		c.DisablePrivateKey = disable
		return nil
	}
}

// WithHostKeyFile pins the server's host key to the one in file.
func WithHostKeyFile(key string) Set {
	return func(c *Conn) error {
		c.HostKeyFile = key
		return nil
	}
}

// WithKnownHosts checks the server's host key against a known_hosts file.
func WithKnownHosts(file string) Set {
	return func(c *Conn) error {
		c.KnownHosts = file
		return nil
	}
}

// WithPort sets the port. An empty port means look in .ssh/config.
func WithPort(port string) Set {
	return func(c *Conn) error {
		c.Port = port
		return nil
	}
}

// WithUser sets the remote user. An empty user changes nothing.
func WithUser(user string) Set {
	return func(c *Conn) error {
		if len(user) != 0 {
			c.config.User = user
		}
		return nil
	}
}

// WithNetwork sets the network. An empty network changes nothing.
func WithNetwork(network string) Set {
	return func(c *Conn) error {
		if len(network) != 0 {
			c.network = network
		}
		return nil
	}
}

// WithTimeout sets the dial timeout from a duration string.
// An empty string changes nothing.
func WithTimeout(timeout string) Set {
	return func(c *Conn) error {
		if len(timeout) == 0 {
			return nil
		}
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return err
		}
		c.Timeout = d
		return nil
	}
}

// User returns the user the connection authenticates as.
func (c *Conn) User() string {
	return c.config.User
}

// Dial connects and authenticates. The returned remote.SSH owns the
// connection.
func (c *Conn) Dial() (*remote.SSH, error) {
	if err := c.UserKeyConfig(); err != nil {
		return nil, err
	}
	if err := c.HostKeyConfig(); err != nil {
		return nil, err
	}
	c.config.Timeout = c.Timeout

	var (
		cl  *ssh.Client
		err error
	)
	switch c.network {
	case "vsock":
		cl, err = c.vsockDial()
	default:
		var p string
		if p, err = GetPort(c.Host, c.Port); err != nil {
			return nil, err
		}
		addr := net.JoinHostPort(c.HostName, p)
		cl, err = ssh.Dial(c.network, addr, &c.config)
		V("ssh.Dial(%s, %s, %v): (%v, %v)", c.network, addr, c.config.User, cl, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", c.Host, err)
	}
	return remote.NewSSH(cl), nil
}

// vsockDial dials a vsock context id and port, then runs the ssh
// handshake over it. Sadly, vsock is not in the standard Go net
// package, so ssh.Dial can not do it.
func (c *Conn) vsockDial() (*ssh.Client, error) {
	p := c.Port
	if len(p) == 0 {
		if p = config.Get(c.Host, "Port"); len(p) == 0 {
			p = DefaultPort
		}
	}
	id, port, err := vsockIdPort(c.HostName, p)
	if err != nil {
		return nil, err
	}
	V("vsock.Dial(%#x, %d)", id, port)
	conn, err := vsock.Dial(id, port, nil)
	if err != nil {
		return nil, err
	}
	addr := fmt.Sprintf("%s:%s", c.HostName, p)
	cc, chans, reqs, err := ssh.NewClientConn(conn, addr, &c.config)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return ssh.NewClient(cc, chans, reqs), nil
}
