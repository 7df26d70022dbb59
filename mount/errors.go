// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mount

import (
	"errors"
	"fmt"
	"strings"
)

// ErrHandedOff is returned when a session is used after it was given to
// the file server.
var ErrHandedOff = errors.New("session handed off to the file server")

// ToolMissingError means the remote host has no usable file transfer
// tool. Stderr is whatever the probe printed.
type ToolMissingError struct {
	Tool   string
	Stderr string
}

func (e *ToolMissingError) Error() string {
	return fmt.Sprintf("%s is not installed on the remote host; install it (e.g. apt install %s) and try again", e.Tool, e.Tool)
}

// UnknownUserError means ~user named a user with no home directory.
type UnknownUserError struct {
	User string
}

func (e *UnknownUserError) Error() string {
	return fmt.Sprintf("user %s does not exist or does not have a home defined", e.User)
}

// probeMessage is the part of a probe's stderr worth logging.
func probeMessage(stderr []byte) string {
	if s := strings.TrimSpace(string(stderr)); len(s) != 0 {
		return s
	}
	return "no output"
}
