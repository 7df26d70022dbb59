// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build unix

package sftpd

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// owner returns the host uid and gid of fi.
func owner(fi os.FileInfo) (int, int, bool) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, false
	}
	return int(st.Uid), int(st.Gid), true
}

func lchown(p string, uid, gid int) error {
	if err := unix.Lchown(p, uid, gid); err != nil {
		return &os.PathError{Op: "lchown", Path: p, Err: err}
	}
	return nil
}
