// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !linux

package sftpd

import "github.com/pkg/sftp"

func statVFS(string) (*sftp.StatVFS, error) {
	return nil, sftp.ErrSSHFxOpUnsupported
}
