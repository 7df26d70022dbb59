// Copyright 2018-2019 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package client

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	config "github.com/kevinburke/ssh_config"
	"github.com/u-root/sshmount/remote"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/term"
)

const (
	// DefaultPort is the default ssh port.
	DefaultPort = "22"
)

// DefaultKeyFile is used when neither the caller nor .ssh/config names a key.
var DefaultKeyFile = filepath.Join(os.Getenv("HOME"), ".ssh/id_rsa")

// passphrase prompts for the passphrase of an encrypted key. It only
// works when stdin is a terminal.
var passphrase = func(kf string) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("%s is encrypted and stdin is not a terminal", kf)
	}
	fmt.Fprintf(os.Stderr, "Enter passphrase for %s: ", kf)
	defer fmt.Fprintln(os.Stderr)
	return term.ReadPassword(fd)
}

// signer reads and parses a private key, asking for a passphrase if
// the key needs one.
func signer(kf string) (ssh.Signer, error) {
	key, err := os.ReadFile(kf)
	if err != nil {
		return nil, fmt.Errorf("unable to read private key %q: %w", kf, err)
	}
	s, err := ssh.ParsePrivateKey(key)
	var pme *ssh.PassphraseMissingError
	if !errors.As(err, &pme) {
		if err != nil {
			return nil, fmt.Errorf("ParsePrivateKey %q: %w", kf, err)
		}
		return s, nil
	}
	pass, err := passphrase(kf)
	if err != nil {
		return nil, err
	}
	if s, err = ssh.ParsePrivateKeyWithPassphrase(key, pass); err != nil {
		return nil, fmt.Errorf("ParsePrivateKeyWithPassphrase %q: %w", kf, err)
	}
	return s, nil
}

// UserKeyConfig sets up authentication for a User Key.
// It is required unless DisablePrivateKey is set.
func (c *Conn) UserKeyConfig() error {
	if c.DisablePrivateKey {
		V("private key disabled")
		return nil
	}
	s, err := signer(GetKeyFile(c.Host, c.PrivateKeyFile))
	if err != nil {
		return err
	}
	c.config.Auth = append(c.config.Auth, ssh.PublicKeys(s))
	return nil
}

// HostKeyConfig sets the host key check. A host key file wins over a
// known_hosts file; with neither, any host key is accepted.
func (c *Conn) HostKeyConfig() error {
	switch {
	case len(c.HostKeyFile) != 0:
		hk, err := os.ReadFile(c.HostKeyFile)
		if err != nil {
			return fmt.Errorf("unable to read host key %v: %w", c.HostKeyFile, err)
		}
		pk, _, _, _, err := ssh.ParseAuthorizedKey(hk)
		if err != nil {
			return fmt.Errorf("host key %v: %w", c.HostKeyFile, err)
		}
		c.config.HostKeyCallback = ssh.FixedHostKey(pk)
	case len(c.KnownHosts) != 0:
		cb, err := knownhosts.New(expand(c.KnownHosts))
		if err != nil {
			return fmt.Errorf("known hosts %v: %w", c.KnownHosts, err)
		}
		c.config.HostKeyCallback = cb
	default:
		c.config.HostKeyCallback = ssh.InsecureIgnoreHostKey()
	}
	return nil
}

// expand replaces a leading ~ with $HOME; the config package doesn't
// handle ~.
func expand(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		return filepath.Join(os.Getenv("HOME"), p[1:])
	}
	return p
}

// GetKeyFile picks a keyfile if none has been set.
// It will use ssh config, else use a default.
func GetKeyFile(host, kf string) string {
	V("getKeyFile for %q", kf)
	if len(kf) == 0 {
		// Get returns the ssh_config default when nothing matches;
		// that default is almost never a real file.
		kf = config.Get(host, "IdentityFile")
		V("key file from config is %q", kf)
		if len(kf) == 0 || kf == config.Default("IdentityFile") {
			kf = DefaultKeyFile
		}
	}
	kf = expand(kf)
	V("getKeyFile returns %q", kf)
	return kf
}

// GetHostName reads the host name from the ssh config file,
// if needed. If it is not found, the host name is returned.
func GetHostName(host string) string {
	h := config.Get(host, "HostName")
	if len(h) != 0 {
		host = h
	}
	return host
}

// GetUser returns the user for host from the ssh config file, else $USER.
func GetUser(host string) string {
	if u := config.Get(host, "User"); len(u) != 0 {
		return u
	}
	return os.Getenv("USER")
}

// GetPort gets a port. It verifies that the port fits in 16-bit space.
// An explicit port wins; else .ssh/config; else DefaultPort.
func GetPort(host, port string) (string, error) {
	p := port
	V("getPort(%q, %q)", host, port)
	if len(port) == 0 {
		if cp := config.Get(host, "Port"); len(cp) != 0 {
			V("config.Get(%q,%q): %q", host, port, cp)
			p = cp
		}
	}
	if len(p) == 0 {
		p = DefaultPort
		V("getPort: return default %q", p)
	}
	if _, err := strconv.ParseUint(p, 0, 16); err != nil {
		return "", fmt.Errorf("port %q: %w", p, err)
	}
	V("returns %q", p)
	return p, nil
}

// vsockIdPort gets a client id and a port from host and port
// The id and port are uint32.
func vsockIdPort(host, port string) (uint32, uint32, error) {
	// The vsock package does not have a "Dial" taking a string,
	// so we parse both parts here.
	h, err := strconv.ParseUint(host, 0, 32)
	if err != nil {
		return 0, 0, err
	}
	p, err := strconv.ParseUint(port, 0, 32)
	if err != nil {
		return 0, 0, err
	}
	return uint32(h), uint32(p), nil
}

// Session dials and returns the connection as a remote.SSH, ready to
// run commands.
func Session(host string, opts ...Set) (*remote.SSH, error) {
	c := New(host)
	if err := c.SetOptions(opts...); err != nil {
		return nil, err
	}
	return c.Dial()
}
