// Package worktree implements the working-copy side of the engine: a
// billy-backed view of on-disk files paired with the staging index,
// and the checkout algorithm that reconciles a target tree against
// HEAD, the index, and what's actually on disk.
package worktree

import (
	"errors"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	billy "github.com/go-git/go-billy/v5"

	"github.com/statewalker/vcs-sub012/codec"
	"github.com/statewalker/vcs-sub012/filemode"
	"github.com/statewalker/vcs-sub012/history"
	"github.com/statewalker/vcs-sub012/ignore"
	"github.com/statewalker/vcs-sub012/index"
	"github.com/statewalker/vcs-sub012/object"
)

// ErrNotExist mirrors os.ErrNotExist for worktree-relative lookups,
// letting callers branch with errors.Is without reaching into os.
var ErrNotExist = os.ErrNotExist

// ErrDestinationExists is returned by Rename when newPath is already
// occupied and the caller didn't ask to overwrite it.
var ErrDestinationExists = errors.New("worktree: destination already exists")

const indexFileName = "index"
const excludeFilePath = "info/exclude"

// WorktreeEntry describes one file or directory as currently observed
// on disk, independent of what the index or HEAD say about it.
type WorktreeEntry struct {
	Path        string
	Name        string
	Mode        filemode.FileMode
	Size        int64
	ModTime     time.Time
	IsDirectory bool
	IsIgnored   bool
}

// Worktree composes the on-disk working copy, the staging index file,
// and the repository history those two sit on top of.
type Worktree struct {
	FS      billy.Filesystem
	Git     billy.Filesystem
	History *history.History

	ignore ignore.Matcher
}

// New returns a Worktree over fs (the working directory) backed by
// gitFS (the repository's metadata directory, holding the index file
// and everything history.New needs). Ignore patterns are loaded from
// every .gitignore under fs and from gitFS's info/exclude.
func New(h *history.History, fs billy.Filesystem, gitFS billy.Filesystem) (*Worktree, error) {
	w := &Worktree{FS: fs, Git: gitFS, History: h}
	if err := w.reloadIgnore(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Worktree) reloadIgnore() error {
	ps, err := ignore.ReadPatterns(w.FS, nil)
	if err != nil {
		return err
	}

	if f, err := w.Git.Open(excludeFilePath); err == nil {
		data, rerr := io.ReadAll(f)
		_ = f.Close()
		if rerr != nil {
			return rerr
		}
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimRight(line, "\r")
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			ps = append(ps, ignore.ParsePattern(line, nil))
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	w.ignore = ignore.NewMatcher(ps)
	return nil
}

// Index reads the staging index off disk, returning a fresh version-2
// index if none has been written yet.
func (w *Worktree) Index() (*index.Index, error) {
	f, err := w.Git.Open(indexFileName)
	if err != nil {
		if os.IsNotExist(err) {
			return index.New(2), nil
		}
		return nil, err
	}
	defer f.Close()
	return index.Decode(f)
}

// SetIndex persists idx as the current staging index, publishing it
// via a temp-file-then-rename swap so a reader never observes a
// partially-written index.
func (w *Worktree) SetIndex(idx *index.Index) error {
	tmp, err := w.Git.TempFile("", "tmp_index_")
	if err != nil {
		return err
	}
	name := tmp.Name()

	if err := index.Encode(tmp, idx); err != nil {
		_ = tmp.Close()
		_ = w.Git.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = w.Git.Remove(name)
		return err
	}
	return w.Git.Rename(name, indexFileName)
}

// Walk visits every worktree entry rooted at "", skipping the
// repository metadata directory itself, in lexical order within each
// directory. visit returning false stops the walk early without error.
func (w *Worktree) Walk(visit func(WorktreeEntry) (bool, error)) error {
	_, err := w.walkDir("", visit)
	return err
}

func (w *Worktree) walkDir(dir string, visit func(WorktreeEntry) (bool, error)) (bool, error) {
	infos, err := w.FS.ReadDir(w.fsPath(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, err
	}

	names := make([]string, len(infos))
	byName := make(map[string]os.FileInfo, len(infos))
	for i, fi := range infos {
		names[i] = fi.Name()
		byName[fi.Name()] = fi
	}
	sort.Strings(names)

	for _, name := range names {
		if dir == "" && name == ".git" {
			continue
		}
		fi := byName[name]
		entryPath := name
		if dir != "" {
			entryPath = dir + "/" + name
		}

		entry := w.toEntry(entryPath, fi)
		cont, err := visit(entry)
		if err != nil {
			return false, err
		}
		if !cont {
			return false, nil
		}

		if fi.IsDir() {
			cont, err := w.walkDir(entryPath, visit)
			if err != nil {
				return false, err
			}
			if !cont {
				return false, nil
			}
		}
	}
	return true, nil
}

func (w *Worktree) toEntry(p string, fi os.FileInfo) WorktreeEntry {
	mode, err := filemode.FromOSFileMode(fi.Mode())
	if err != nil {
		mode = filemode.Regular
	}
	return WorktreeEntry{
		Path:        p,
		Name:        path.Base(p),
		Mode:        mode,
		Size:        fi.Size(),
		ModTime:     fi.ModTime(),
		IsDirectory: fi.IsDir(),
		IsIgnored:   w.isIgnored(p, fi.IsDir()),
	}
}

func (w *Worktree) isIgnored(p string, isDir bool) bool {
	if w.ignore == nil {
		return false
	}
	return w.ignore.Match(strings.Split(p, "/"), isDir)
}

// GetEntry returns the current on-disk state of path.
func (w *Worktree) GetEntry(path string) (WorktreeEntry, error) {
	fi, err := w.FS.Stat(w.fsPath(path))
	if err != nil {
		return WorktreeEntry{}, err
	}
	return w.toEntry(path, fi), nil
}

// ComputeHash returns the Git-compatible blob ID of path's current
// content, without storing it.
func (w *Worktree) ComputeHash(path string) (codec.ID, error) {
	content, err := w.readAll(path)
	if err != nil {
		return codec.ID{}, err
	}
	return object.Hash(object.BlobType, content), nil
}

func (w *Worktree) readAll(path string) ([]byte, error) {
	f, err := w.FS.Open(w.fsPath(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// ReadContent opens path for streaming reads. The caller must Close it.
func (w *Worktree) ReadContent(path string) (billy.File, error) {
	return w.FS.Open(w.fsPath(path))
}

// WriteOptions configures WriteContent.
type WriteOptions struct {
	Mode          filemode.FileMode
	CreateParents bool
	Overwrite     bool
}

// WriteContent writes r's content to path under opts. Without
// Overwrite, an existing file at path is left untouched and an error
// is returned.
func (w *Worktree) WriteContent(path string, r io.Reader, opts WriteOptions) error {
	full := w.fsPath(path)

	if !opts.Overwrite {
		if _, err := w.FS.Stat(full); err == nil {
			return ErrDestinationExists
		} else if !os.IsNotExist(err) {
			return err
		}
	}

	if opts.CreateParents {
		if dir := parentDir(full); dir != "" {
			if err := w.FS.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
	}

	perm := os.FileMode(0o644)
	if osMode, err := opts.Mode.ToOSFileMode(); err == nil {
		perm = osMode.Perm()
	}

	f, err := w.FS.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(f, r)
	return err
}

// RemoveOptions configures Remove.
type RemoveOptions struct {
	Recursive bool
}

// Remove deletes path, requiring Recursive to remove a non-empty
// directory.
func (w *Worktree) Remove(path string, opts RemoveOptions) error {
	full := w.fsPath(path)
	if !opts.Recursive {
		return w.FS.Remove(full)
	}
	return removeAll(w.FS, full)
}

func removeAll(fs billy.Filesystem, path string) error {
	fi, err := fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if !fi.IsDir() {
		return fs.Remove(path)
	}

	infos, err := fs.ReadDir(path)
	if err != nil {
		return err
	}
	for _, child := range infos {
		if err := removeAll(fs, fs.Join(path, child.Name())); err != nil {
			return err
		}
	}
	return fs.Remove(path)
}

// Mkdir creates path and any missing parents.
func (w *Worktree) Mkdir(path string) error {
	return w.FS.MkdirAll(w.fsPath(path), 0o755)
}

// Rename moves oldPath to newPath, failing with ErrDestinationExists
// if newPath is already occupied.
func (w *Worktree) Rename(oldPath, newPath string) error {
	full := w.fsPath(newPath)
	if _, err := w.FS.Stat(full); err == nil {
		return ErrDestinationExists
	} else if !os.IsNotExist(err) {
		return err
	}
	return w.FS.Rename(w.fsPath(oldPath), full)
}

func (w *Worktree) fsPath(p string) string {
	if p == "" {
		return "."
	}
	return p
}

func parentDir(p string) string {
	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return ""
	}
	return p[:i]
}
