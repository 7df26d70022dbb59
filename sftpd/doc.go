// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sftpd serves a local directory to sshfs running on a remote
// host.
//
// The usual sshfs runs on the machine doing the mounting and connects
// out to an sftp server. Here it is the other way around: Run starts
// sshfs in slave mode on the remote host, over the exec channel of an
// existing ssh connection, and answers its sftp requests on that
// channel's stdin and stdout. The remote host needs no way to reach
// this one.
//
// Owners are translated in both directions. A file owned by a host id
// in the map is reported as the mapped id; anything else is reported as
// the default id, normally that of the remote user. Changing the owner
// of a file to a mapped id changes it to the host id; an unmapped id
// leaves that part of the owner alone.
//
// Requests for paths outside the served directory are refused.
package sftpd
