// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package remote runs commands on a remote host through an exec-style
// session, such as an SSH connection.
//
// The contract is small: a Session runs one command to completion and
// hands back its exit code, stdout and stderr. Run and RunHandler turn a
// non-zero exit into an error; RunString captures output that may end
// in significant whitespace.
//
// Every value interpolated into a command line must go through Quote.
// The paths and user names handled by callers of this package come from
// users, and the remote side is a shell.
package remote
