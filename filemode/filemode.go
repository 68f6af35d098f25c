// Package filemode defines the small, fixed set of file modes Git stores in
// tree entries.
package filemode

import (
	"fmt"
	"os"
	"strconv"
)

// FileMode is one of the handful of octal modes Git tree entries carry.
type FileMode uint32

const (
	// Empty is the zero value; never a valid stored mode.
	Empty FileMode = 0
	// Dir is a tree entry pointing at another tree.
	Dir FileMode = 0040000
	// Regular is an ordinary, non-executable file.
	Regular FileMode = 0100644
	// Deprecated is the historical 0100664 regular-file mode, still
	// accepted on decode for compatibility with very old repositories.
	Deprecated FileMode = 0100664
	// Executable is a regular file with the executable bit set.
	Executable FileMode = 0100755
	// Symlink is a symbolic link; blob content is the link target.
	Symlink FileMode = 0120000
	// Submodule ("gitlink") references a commit in another repository.
	Submodule FileMode = 0160000
)

// New parses the ASCII-octal mode string found in a tree entry header.
func New(s string) (FileMode, error) {
	n, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return Empty, fmt.Errorf("filemode: invalid mode %q: %w", s, err)
	}
	return FileMode(n), nil
}

// String renders the mode as the zero-padded 6-digit octal form Git writes
// into tree entries (e.g. "100644").
func (m FileMode) String() string {
	return fmt.Sprintf("%06o", uint32(m))
}

// IsMalformed reports whether m is not one of the known modes.
func (m FileMode) IsMalformed() bool {
	switch m {
	case Dir, Regular, Deprecated, Executable, Symlink, Submodule:
		return false
	default:
		return true
	}
}

// IsRegular reports whether m addresses blob content directly (regular
// file, executable, or symlink all store their payload as a blob; only
// directories and submodules do not).
func (m FileMode) IsRegular() bool {
	switch m {
	case Regular, Deprecated, Executable, Symlink:
		return true
	default:
		return false
	}
}

// FromOSFileMode maps a standard library os.FileMode, as observed while
// walking a worktree, onto the Git mode it should be stored as.
func FromOSFileMode(m os.FileMode) (FileMode, error) {
	switch {
	case m.IsDir():
		return Dir, nil
	case m&os.ModeSymlink != 0:
		return Symlink, nil
	case m&0111 != 0:
		return Executable, nil
	case m.IsRegular():
		return Regular, nil
	default:
		return Empty, fmt.Errorf("filemode: unsupported worktree file mode %v", m)
	}
}

// ToOSFileMode maps m onto the nearest os.FileMode for writing to a
// worktree.
func (m FileMode) ToOSFileMode() (os.FileMode, error) {
	switch m {
	case Dir:
		return os.ModeDir | 0755, nil
	case Symlink:
		return os.ModeSymlink | 0777, nil
	case Executable:
		return 0755, nil
	case Regular, Deprecated:
		return 0644, nil
	case Submodule:
		return os.ModeDir | 0755, nil
	default:
		return 0, fmt.Errorf("filemode: malformed mode %v", m)
	}
}
