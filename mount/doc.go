// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mount prepares a directory on a remote host and keeps a file
// server attached to it.
//
// Everything happens through a remote shell: there is no local view of
// the remote file system. New checks that sshfs is installed, expands a
// leading ~ or ~user, finds the longest existing ancestor of the target,
// creates the rest with mkdir -p and hands the newly created top-level
// directory to the connecting user. Then the session moves into a file
// server (by default an sftpd.Server) and the server runs in its own
// goroutine until Stop.
//
// Directory creation and the search for the existing ancestor run
// under a privilege prefix, sudo by default, so they work across
// directories the user can not traverse. WithPrivilege("") runs them as
// the user.
//
// A failed preparation is not rolled back: some directories may have
// been created. Retrying is safe, since existing directories are not
// created again.
package mount
