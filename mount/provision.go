// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mount

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/u-root/sshmount/remote"
	"github.com/u-root/u-root/pkg/ulog"
)

// MakeTargetDir creates rel, and any missing parents, under root.
// It does nothing if rel is empty.
func MakeTargetDir(s remote.Session, privilege, root, rel string) error {
	if len(rel) == 0 {
		return nil
	}
	script := fmt.Sprintf("cd %s && mkdir -p -- %s", remote.Quote(root), remote.Quote(rel))
	_, err := remote.Run(s, remote.Privileged(privilege, script))
	return err
}

// firstSegment returns the first path element of a relative path.
func firstSegment(rel string) string {
	if i := strings.IndexByte(rel, '/'); i >= 0 {
		return rel[:i]
	}
	return rel
}

// SetOwner gives the first segment of rel under root, and everything
// below it, to the connecting user and group. root itself is not
// touched. It does nothing if rel is empty.
func SetOwner(s remote.Session, privilege, root, rel string) error {
	if len(rel) == 0 {
		return nil
	}
	user, err := remote.RunString(s, "id -nu")
	if err != nil {
		return err
	}
	group, err := remote.RunString(s, "id -ng")
	if err != nil {
		return err
	}
	script := fmt.Sprintf("cd %s && chown -R -- %s %s",
		remote.Quote(root), remote.Quote(user+":"+group), remote.Quote(firstSegment(rel)))
	_, err = remote.Run(s, remote.Privileged(privilege, script))
	return err
}

func numericID(s remote.Session, cmd string) (int, error) {
	out, err := remote.Run(s, cmd)
	if err != nil {
		return 0, err
	}
	verbose("%q = %q", cmd, out)
	n, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", cmd, err)
	}
	return n, nil
}

// DefaultIDs returns the numeric uid and gid of the connecting user.
// The file server uses them for files whose owner has no mapping.
func DefaultIDs(s remote.Session) (uid, gid int, err error) {
	if uid, err = numericID(s, "id -u"); err != nil {
		return 0, 0, err
	}
	if gid, err = numericID(s, "id -g"); err != nil {
		return 0, 0, err
	}
	return uid, gid, nil
}

// CheckTool makes sure tool is installed on the remote host. If it is
// not, a warning goes to l and the error is a *ToolMissingError.
func CheckTool(s remote.Session, l ulog.Logger, tool string) error {
	_, err := remote.RunHandler(s, "which "+remote.Quote(tool), func(r *remote.Result) error {
		l.Printf("Unable to determine if '%s' is installed: %s", tool, probeMessage(r.Stderr))
		return &ToolMissingError{Tool: tool, Stderr: string(r.Stderr)}
	})
	return err
}
