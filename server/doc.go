// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package server is an exec-only SSH server.
//
// Each session runs the command it was given with /bin/sh -c, in the
// home directory of the user running the server, with the session's
// stdin, stdout and stderr attached. The exit status goes back to the
// client. That is all a mount needs from the remote side besides the
// sshfs binary, which makes this server a convenient stand-in for a real
// sshd when testing, or when a small VM has no sshd of its own.
//
// Note that the server does not change user: commands run with the
// privileges of the server process. Run it as the user the client is
// expected to be, and only on hosts that are part of your own
// administrative domain.
//
// The basic flow of setting up a server is similar to most such servers:
// a call to New, a call to net.Listen to get a socket, and a call to
// Serve with the listener. For a usage example, see TestServerExec.
package server
