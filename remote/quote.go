// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package remote

import (
	"strings"

	"github.com/alessio/shellescape"
)

// Shell is the interpreter privileged scripts run under.
const Shell = "/bin/sh"

// Quote quotes s so a POSIX shell reads it back as exactly one word.
func Quote(s string) string {
	return shellescape.Quote(s)
}

// Privileged returns a command line running script under Shell,
// prefixed by prefix (e.g. "sudo"). An empty prefix runs the script
// with the connecting user's privileges.
func Privileged(prefix, script string) string {
	cmd := Shell + " -c " + Quote(script)
	if p := strings.TrimSpace(prefix); len(p) != 0 {
		cmd = p + " " + cmd
	}
	return cmd
}
