// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// execd is a minimal ssh server that runs commands with /bin/sh.
//
// Synopsis:
//
//	execd [OPTIONS]
//
// Description:
//
//	execd is enough of an sshd for sshmount: it runs exec requests,
//	with stdin, stdout, stderr and exit status, in the user's home
//	directory. It is meant for VMs and test machines reached over tcp
//	or vsock that have no sshd.
//
// Options:
//
//	-d: enable debug prints
//	-dnssd: advertise with DNS-SD
//	-dsdomain, -dsiface, -dsinstance, -dstxt, -dstype: DNS-SD details
//	-hk: file for host key
//	-net: network to use, tcp, vsock or unix
//	-pk: file for public key; empty allows any client
//	-sp: port to listen on
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math"
	"net"
	"strconv"

	"github.com/gliderlabs/ssh"
	"github.com/mdlayher/vsock"
	"github.com/u-root/sshmount/ds"
	"github.com/u-root/sshmount/server"
)

const any = math.MaxUint32

var (
	debug       = flag.Bool("d", false, "enable debug prints")
	hostKeyFile = flag.String("hk", "", "file for host key")
	network     = flag.String("net", "tcp", "network to use")
	pubKeyFile  = flag.String("pk", "", "file for public key; empty allows any client")
	port        = flag.String("sp", "2222", "port to listen on")

	dsEnabled  = flag.Bool("dnssd", false, "advertise with DNS-SD")
	dsDomain   = flag.String("dsdomain", "local", "DNS-SD domain")
	dsIface    = flag.String("dsiface", "", "DNS-SD interface; empty for all")
	dsInstance = flag.String("dsinstance", "", "DNS-SD instance name; defaults to <hostname>-execd")
	dsTxt      = flag.String("dstxt", "", "extra DNS-SD TXT values, k=v,k=v")
	dsType     = flag.String("dstype", ds.ServiceType, "DNS-SD service type")

	v = func(string, ...interface{}) {}
)

func verbose(f string, a ...interface{}) {
	v("execd:"+f, a...)
}

func listen(network, port string) (net.Listener, error) {
	// Sadly, vsock is not in the standard Go net package.
	switch network {
	case "vsock":
		p, err := strconv.ParseUint(port, 0, 32)
		if err != nil {
			return nil, err
		}
		return vsock.ListenContextID(any, uint32(p), nil)

	case "unix", "unixpacket":
		// net.JoinHostPort is no help for UDS.
		return net.Listen(network, port)
	}
	return net.Listen(network, net.JoinHostPort("", port))
}

// advertise registers ln with DNS-SD until ctx is done. Only ip
// listeners can be found this way.
func advertise(ctx context.Context, ln net.Listener) error {
	a, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		return fmt.Errorf("can not advertise %v address %v", ln.Addr().Network(), ln.Addr())
	}
	return ds.Register(ctx, *dsInstance, *dsDomain, *dsType, *dsIface, a.Port, ds.ParseKv(*dsTxt))
}

func serve(s *ssh.Server, ln net.Listener) error {
	verbose("listening on %v", ln.Addr())
	if err := s.Serve(ln); !errors.Is(err, ssh.ErrServerClosed) {
		return err
	}
	return nil
}

func main() {
	flag.Parse()
	if *debug {
		v = log.Printf
		server.SetVerbose(log.Printf)
		ds.SetVerbose(log.Printf)
	}
	s, err := server.New(*pubKeyFile, *hostKeyFile)
	if err != nil {
		log.Fatalf("execd: New(%q, %q): %v", *pubKeyFile, *hostKeyFile, err)
	}
	if len(*pubKeyFile) == 0 {
		log.Printf("execd: no -pk, any client may log in")
	}
	ln, err := listen(*network, *port)
	if err != nil {
		log.Fatalf("execd: %v", err)
	}
	if *dsEnabled {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		if err := advertise(ctx, ln); err != nil {
			log.Fatalf("execd: %v", err)
		}
	}
	if err := serve(s, ln); err != nil {
		log.Fatalf("execd: %v", err)
	}
}
