// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sftpd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/sftp"
)

// maxLinks bounds the symlinks followed for one path, as the kernel does.
const maxLinks = 40

// fs answers sftp requests from a local directory tree.
type fs struct {
	root string
	// real is root with its own symlinks resolved.
	real           string
	gidMap, uidMap map[int]int
	uid, gid       int
}

func newFS(root string, gidMap, uidMap map[int]int, uid, gid int) *fs {
	root = filepath.Clean(root)
	real := root
	if r, err := filepath.EvalSymlinks(root); err == nil {
		real = r
	}
	return &fs{root: root, real: real, gidMap: gidMap, uidMap: uidMap, uid: uid, gid: gid}
}

func (f *fs) handlers() sftp.Handlers {
	return sftp.Handlers{FileGet: f, FilePut: f, FileCmd: f, FileList: f}
}

var (
	_ sftp.OpenFileWriter       = &fs{}
	_ sftp.PosixRenameFileCmder = &fs{}
	_ sftp.StatVFSFileCmder     = &fs{}
	_ sftp.LstatFileLister      = &fs{}
	_ sftp.ReadlinkFileLister   = &fs{}
)

// path maps a request path to a local one with every symlink in it
// followed, refusing anything that ends up outside the root.
func (f *fs) path(p string) (string, error) {
	return f.confine(p, true)
}

// lpath is path for requests about a link itself: the last element is
// not followed.
func (f *fs) lpath(p string) (string, error) {
	return f.confine(p, false)
}

func (f *fs) confine(p string, follow bool) (string, error) {
	lp := filepath.Clean(filepath.FromSlash(p))
	if f.root == string(filepath.Separator) {
		return lp, nil
	}
	if !within(f.root, lp) {
		v("sftpd: %q is outside %q", p, f.root)
		return "", sftp.ErrSSHFxPermissionDenied
	}
	var links int
	rp, err := resolve(lp, follow, &links)
	if err != nil {
		return "", err
	}
	if !within(f.real, rp) {
		v("sftpd: %q leads to %q, outside %q", p, rp, f.real)
		return "", sftp.ErrSSHFxPermissionDenied
	}
	return rp, nil
}

func within(root, p string) bool {
	return p == root || strings.HasPrefix(p, root+string(filepath.Separator))
}

// resolve follows the symlinks in p, a clean absolute path, the way
// open would. The last element is only followed if follow is set.
// Elements that do not exist yet are kept as they are.
func resolve(p string, follow bool, links *int) (string, error) {
	dir := filepath.Dir(p)
	if dir == p {
		return p, nil
	}
	d, err := resolve(dir, true, links)
	if err != nil {
		return "", err
	}
	q := filepath.Join(d, filepath.Base(p))
	for follow {
		fi, err := os.Lstat(q)
		if err != nil || fi.Mode()&os.ModeSymlink == 0 {
			break
		}
		*links++
		if *links > maxLinks {
			return "", fmt.Errorf("%q: too many levels of symbolic links", p)
		}
		t, err := os.Readlink(q)
		if err != nil {
			return "", err
		}
		if !filepath.IsAbs(t) {
			t = filepath.Join(filepath.Dir(q), t)
		}
		if q, err = resolve(filepath.Clean(t), false, links); err != nil {
			return "", err
		}
	}
	return q, nil
}

func openFlags(pf sftp.FileOpenFlags) int {
	var flags int
	switch {
	case pf.Read && pf.Write:
		flags = os.O_RDWR
	case pf.Write || pf.Append:
		flags = os.O_WRONLY
	default:
		flags = os.O_RDONLY
	}
	// No O_APPEND: the server writes at explicit offsets.
	if pf.Creat {
		flags |= os.O_CREATE
	}
	if pf.Trunc {
		flags |= os.O_TRUNC
	}
	if pf.Excl {
		flags |= os.O_EXCL
	}
	return flags
}

// Fileread implements sftp.FileReader.
func (f *fs) Fileread(r *sftp.Request) (io.ReaderAt, error) {
	p, err := f.path(r.Filepath)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

// Filewrite implements sftp.FileWriter.
func (f *fs) Filewrite(r *sftp.Request) (io.WriterAt, error) {
	p, err := f.path(r.Filepath)
	if err != nil {
		return nil, err
	}
	flags := openFlags(r.Pflags())
	if flags&(os.O_WRONLY|os.O_RDWR) == 0 {
		flags |= os.O_WRONLY
	}
	return os.OpenFile(p, flags, 0o644)
}

// OpenFile implements sftp.OpenFileWriter.
func (f *fs) OpenFile(r *sftp.Request) (sftp.WriterAtReaderAt, error) {
	p, err := f.path(r.Filepath)
	if err != nil {
		return nil, err
	}
	return os.OpenFile(p, openFlags(r.Pflags()), 0o644)
}

// Filecmd implements sftp.FileCmder.
func (f *fs) Filecmd(r *sftp.Request) error {
	v("sftpd: %s %q %q", r.Method, r.Filepath, r.Target)
	if r.Method == "Symlink" {
		// Filepath is what the link points to; it need not exist.
		// Anything that later goes through the link is checked then.
		link, err := f.lpath(r.Target)
		if err != nil {
			return err
		}
		return os.Symlink(r.Filepath, link)
	}
	// Only setstat follows a link; the rest act on the link itself.
	p, err := f.confine(r.Filepath, r.Method == "Setstat")
	if err != nil {
		return err
	}
	switch r.Method {
	case "Setstat":
		return f.setstat(p, r)
	case "Rename":
		t, err := f.lpath(r.Target)
		if err != nil {
			return err
		}
		if _, err := os.Lstat(t); err == nil {
			return os.ErrExist
		}
		return os.Rename(p, t)
	case "Rmdir":
		fi, err := os.Lstat(p)
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			return sftp.ErrSSHFxFailure
		}
		return os.Remove(p)
	case "Remove":
		fi, err := os.Lstat(p)
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return sftp.ErrSSHFxFailure
		}
		return os.Remove(p)
	case "Mkdir":
		return os.Mkdir(p, 0o755)
	case "Link":
		t, err := f.lpath(r.Target)
		if err != nil {
			return err
		}
		return os.Link(p, t)
	}
	return sftp.ErrSSHFxOpUnsupported
}

// PosixRename implements sftp.PosixRenameFileCmder. Unlike Rename, it
// replaces an existing target.
func (f *fs) PosixRename(r *sftp.Request) error {
	p, err := f.lpath(r.Filepath)
	if err != nil {
		return err
	}
	t, err := f.lpath(r.Target)
	if err != nil {
		return err
	}
	return os.Rename(p, t)
}

// StatVFS implements sftp.StatVFSFileCmder.
func (f *fs) StatVFS(r *sftp.Request) (*sftp.StatVFS, error) {
	p, err := f.path(r.Filepath)
	if err != nil {
		return nil, err
	}
	return statVFS(p)
}

func (f *fs) setstat(p string, r *sftp.Request) error {
	flags, attrs := r.AttrFlags(), r.Attributes()
	if attrs == nil {
		return sftp.ErrSSHFxBadMessage
	}
	if flags.Size {
		if err := os.Truncate(p, int64(attrs.Size)); err != nil {
			return err
		}
	}
	if flags.Permissions {
		if err := os.Chmod(p, attrs.FileMode()&os.ModePerm); err != nil {
			return err
		}
	}
	if flags.Acmodtime {
		if err := os.Chtimes(p, time.Unix(int64(attrs.Atime), 0), time.Unix(int64(attrs.Mtime), 0)); err != nil {
			return err
		}
	}
	if flags.UidGid {
		uid, gid := hostID(f.uidMap, int(attrs.UID)), hostID(f.gidMap, int(attrs.GID))
		if uid == -1 && gid == -1 {
			return nil
		}
		if err := lchown(p, uid, gid); err != nil {
			return err
		}
	}
	return nil
}

// Filelist implements sftp.FileLister.
func (f *fs) Filelist(r *sftp.Request) (sftp.ListerAt, error) {
	p, err := f.path(r.Filepath)
	if err != nil {
		return nil, err
	}
	switch r.Method {
	case "List":
		ents, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		l := make(listerat, 0, len(ents))
		for _, e := range ents {
			fi, err := e.Info()
			if err != nil {
				// Gone since ReadDir.
				continue
			}
			l = append(l, f.mapped(fi))
		}
		return l, nil
	case "Stat":
		fi, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		return listerat{f.mapped(fi)}, nil
	}
	return nil, sftp.ErrSSHFxOpUnsupported
}

// Lstat implements sftp.LstatFileLister.
func (f *fs) Lstat(r *sftp.Request) (sftp.ListerAt, error) {
	p, err := f.lpath(r.Filepath)
	if err != nil {
		return nil, err
	}
	fi, err := os.Lstat(p)
	if err != nil {
		return nil, err
	}
	return listerat{f.mapped(fi)}, nil
}

// Readlink implements sftp.ReadlinkFileLister.
func (f *fs) Readlink(p string) (string, error) {
	lp, err := f.lpath(p)
	if err != nil {
		return "", err
	}
	return os.Readlink(lp)
}

type listerat []os.FileInfo

// ListAt implements sftp.ListerAt.
func (l listerat) ListAt(ls []os.FileInfo, offset int64) (int, error) {
	if offset >= int64(len(l)) {
		return 0, io.EOF
	}
	n := copy(ls, l[offset:])
	if n < len(ls) {
		return n, io.EOF
	}
	return n, nil
}

// info reports a file with its owner translated to remote ids.
type info struct {
	os.FileInfo
	uid, gid uint32
}

// Uid implements sftp.FileInfoUidGid.
func (i *info) Uid() uint32 { return i.uid }

// Gid implements sftp.FileInfoUidGid.
func (i *info) Gid() uint32 { return i.gid }

func (f *fs) mapped(fi os.FileInfo) os.FileInfo {
	uid, gid := f.uid, f.gid
	if hu, hg, ok := owner(fi); ok {
		uid, gid = remoteID(f.uidMap, hu, f.uid), remoteID(f.gidMap, hg, f.gid)
	}
	return &info{FileInfo: fi, uid: uint32(uid), gid: uint32(gid)}
}

// remoteID returns the remote id for host id id, or def.
func remoteID(m map[int]int, id, def int) int {
	if r, ok := m[id]; ok {
		return r
	}
	return def
}

// hostID returns the host id mapped to remote id id, or -1, meaning
// leave it alone.
func hostID(m map[int]int, id int) int {
	for h, r := range m {
		if r == id {
			return h
		}
	}
	return -1
}
