// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mount

import (
	"fmt"
	"path"
	"strings"

	"github.com/u-root/sshmount/remote"
)

// ExpandHome expands a leading ~ or ~user in target, the way a shell
// would, but using the remote host's idea of home. Targets not starting
// with ~ are returned unchanged.
func ExpandHome(s remote.Session, target string) (string, error) {
	if !strings.HasPrefix(target, "~") {
		return target, nil
	}
	pos := strings.IndexByte(target, '/')
	if pos < 0 {
		pos = len(target)
	}
	var home string
	if pos == 1 {
		// A fresh shell starts in the home directory.
		h, err := remote.RunString(s, "pwd")
		if err != nil {
			return "", err
		}
		home = h
	} else {
		user := target[1:pos]
		h, err := remote.RunString(s, "getent passwd "+remote.Quote(user)+" | cut -d : -f 6")
		if err != nil {
			return "", err
		}
		if len(h) == 0 {
			return "", &UnknownUserError{User: user}
		}
		home = h
	}
	verbose("home for %q is %q", target[:pos], home)
	// The remainder keeps its leading /.
	return home + target[pos:], nil
}

// SplitPath splits target into the longest directory that already
// exists on the remote and the path relative to it that does not.
// existing always ends in /, and is / at worst. missing is empty when
// target exists.
//
// Relative targets are taken relative to the remote home directory. The
// search runs under privilege, so it can see through directories the
// user can not.
func SplitPath(s remote.Session, privilege, target string) (existing, missing string, err error) {
	abs := target
	if !path.IsAbs(abs) {
		pwd, err := remote.RunString(s, "pwd")
		if err != nil {
			return "", "", err
		}
		abs = pwd + "/" + abs
	}
	abs = path.Clean(abs)

	script := fmt.Sprintf(`P=%s; while [ ! -d "$P/" ]; do P="${P%%/*}"; done; printf '%%s/\n' "$P"`,
		remote.Quote(strings.TrimSuffix(abs, "/")))
	existing, err = remote.RunString(s, remote.Privileged(privilege, script))
	if err != nil {
		return "", "", err
	}
	if !strings.HasSuffix(existing, "/") {
		existing += "/"
	}
	if !strings.HasPrefix(abs+"/", existing) {
		return "", "", fmt.Errorf("existing directory %q is not an ancestor of %q", existing, abs)
	}
	missing = strings.TrimPrefix(strings.TrimPrefix(abs, strings.TrimSuffix(existing, "/")), "/")
	verbose("split %q: existing %q, missing %q", target, existing, missing)
	return existing, missing, nil
}
