// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// sshmount mounts a local directory on a remote host.
//
// Synopsis:
//
//	sshmount [OPTIONS] host source target
//
// Description:
//
//	sshmount logs in to host, makes sure target exists there and belongs
//	to the login user, and runs sshfs in slave mode at target. sshfs
//	reads and writes source, on this machine, over the same connection.
//	The mount lasts until sshmount is interrupted or sshfs exits.
//
//	target may start with ~ or ~user. Relative targets are relative to
//	the login directory.
//
//	host may be a dnssd URI, e.g. dnssd: or dnssd:?arch=arm64, to mount
//	on the first ssh server found on the local link.
//
// Options:
//
//	-d: enable debug prints
//	-gid: host=remote gid map, e.g. 1000=501:20=20
//	-hk: file containing the host public key
//	-key: private key file
//	-known-hosts: known_hosts file to check the host key against
//	-net: network, tcp or vsock
//	-o: extra sshfs option, may be repeated
//	-privilege: prefix for commands that need root on the remote; empty for none
//	-sp: ssh port
//	-timeout: dial timeout
//	-tool: sshfs binary on the remote
//	-uid: host=remote uid map
//	-user: remote user
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/u-root/sshmount/client"
	"github.com/u-root/sshmount/ds"
	"github.com/u-root/sshmount/mount"
	"github.com/u-root/sshmount/remote"
	"github.com/u-root/sshmount/sftpd"
	"github.com/u-root/u-root/pkg/ulog"
)

type optList []string

func (o *optList) String() string {
	return strings.Join(*o, ",")
}

func (o *optList) Set(s string) error {
	*o = append(*o, s)
	return nil
}

var (
	debug      = flag.Bool("d", false, "enable debug prints")
	gids       = flag.String("gid", "", "host=remote gid map, e.g. 1000=501:20=20")
	hostKey    = flag.String("hk", "", "file containing the host public key")
	keyFile    = flag.String("key", "", "private key file")
	knownHosts = flag.String("known-hosts", "", "known_hosts file to check the host key against")
	network    = flag.String("net", "", "network to use, tcp or vsock")
	privilege  = flag.String("privilege", mount.DefaultPrivilege, "prefix for commands that need root on the remote; empty for none")
	port       = flag.String("sp", "", "ssh port")
	timeout    = flag.String("timeout", "", "dial timeout")
	tool       = flag.String("tool", mount.DefaultTool, "sshfs binary on the remote")
	uids       = flag.String("uid", "", "host=remote uid map, e.g. 1000=501")
	user       = flag.String("user", "", "remote user")
	sshfsOpts  optList

	v = func(string, ...interface{}) {}
)

func init() {
	flag.Var(&sshfsOpts, "o", "extra sshfs option, may be repeated")
}

func verbose(f string, a ...interface{}) {
	v("sshmount:"+f, a...)
}

func flags() {
	flag.Parse()
	if *debug {
		v = log.Printf
		client.SetVerbose(log.Printf)
		ds.SetVerbose(log.Printf)
		remote.SetVerbose(log.Printf)
		mount.SetVerbose(log.Printf)
		sftpd.SetVerbose(log.Printf)
	}
}

func usage() {
	var b bytes.Buffer
	flag.CommandLine.SetOutput(&b)
	flag.PrintDefaults()
	log.Fatalf("Usage: sshmount [options] host source target\n%v", b.String())
}

// idMaps parses the -uid and -gid flags.
func idMaps(uids, gids string) (map[int]int, map[int]int, error) {
	u, err := mount.ParseIDMap(uids)
	if err != nil {
		return nil, nil, fmt.Errorf("-uid: %w", err)
	}
	g, err := mount.ParseIDMap(gids)
	if err != nil {
		return nil, nil, fmt.Errorf("-gid: %w", err)
	}
	return u, g, nil
}

// exitCode picks the process exit status for err. A remote command
// that failed while preparing the mount passes its status on.
func exitCode(err error) int {
	var tm *mount.ToolMissingError
	var ce *remote.CommandError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &tm):
		return 2
	case errors.As(err, &ce) && ce.ExitCode > 0:
		return ce.ExitCode
	}
	return 1
}

// resolve turns a dnssd URI into a host and port. Other hosts, and an
// explicit port, are returned as they are.
func resolve(ctx context.Context, host, port string) (string, string, error) {
	if !ds.IsURI(host) {
		return host, port, nil
	}
	q, err := ds.Parse(host)
	if err != nil {
		return "", "", err
	}
	h, p, err := ds.Lookup(ctx, q)
	if err != nil {
		return "", "", err
	}
	verbose("%s is %s port %s", host, h, p)
	if len(port) == 0 {
		port = p
	}
	return h, port, nil
}

func run(host, source, target string) error {
	uidMap, gidMap, err := idMaps(*uids, *gids)
	if err != nil {
		return err
	}
	host, *port, err = resolve(context.Background(), host, *port)
	if err != nil {
		return err
	}
	s, err := client.Session(host,
		client.WithPrivateKeyFile(*keyFile),
		client.WithHostKeyFile(*hostKey),
		client.WithKnownHosts(*knownHosts),
		client.WithPort(*port),
		client.WithUser(*user),
		client.WithNetwork(*network),
		client.WithTimeout(*timeout))
	if err != nil {
		return err
	}
	m, err := mount.New(s, source, target, gidMap, uidMap,
		mount.WithPrivilege(*privilege),
		mount.WithTool(*tool),
		mount.WithOptions(sshfsOpts...),
		mount.WithLogger(ulog.Log))
	if err != nil {
		return err
	}
	verbose("mount %v: %s on %s:%s", m.ID, m.Source, host, m.Target)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	select {
	case sig := <-sigs:
		verbose("got %v, unmounting", sig)
		return m.Stop()
	case <-m.Done():
		if err := m.Stop(); err != nil {
			return err
		}
		return m.Err()
	}
}

func main() {
	flags()
	args := flag.Args()
	if len(args) != 3 {
		usage()
	}
	if err := run(args[0], args[1], args[2]); err != nil {
		log.Printf("sshmount: %v", err)
		os.Exit(exitCode(err))
	}
}
