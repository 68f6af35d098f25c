package refs

import (
	"errors"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	billy "github.com/go-git/go-billy/v5"
)

// ErrNotFound is returned when a reference name resolves to nothing,
// in either the loose or packed layer.
var ErrNotFound = errors.New("refs: reference not found")

// ErrReferenceHasChanged is returned by SetReference's compare-and-swap
// when the stored value no longer matches the "old" value the caller
// expected, mirroring storage.ErrReferenceHasChanged.
var ErrReferenceHasChanged = errors.New("refs: reference has changed concurrently")

// ErrMaxSymbolicDepth guards ResolveReference against a cyclic or
// excessively long chain of symbolic references.
var ErrMaxSymbolicDepth = errors.New("refs: symbolic reference chain too deep")

const maxSymbolicDepth = 10

const packedRefsPath = "packed-refs"

// Store is a billy-backed reference namespace: one file per loose ref
// under its own path (e.g. "refs/heads/main", "HEAD"), plus a single
// packed-refs file holding the bulk of tags/branches after compaction.
// Reads check loose first, then packed, matching Git's own lookup
// order; writes go through a lock-then-compare-then-write sequence on
// the loose file, falling back to scrubbing packed-refs when the
// existing value lived only there.
type Store struct {
	fs billy.Filesystem
	mu sync.Mutex
}

// NewStore returns a Store rooted at fs (a repository's ".git"
// filesystem view, or an equivalent root holding refs/... and HEAD).
func NewStore(fs billy.Filesystem) *Store {
	return &Store{fs: fs}
}

// GetReference returns the direct-or-symbolic reference stored under
// name, without following a symbolic chain; use ResolveReference for
// that.
func (s *Store) GetReference(name ReferenceName) (*Reference, error) {
	ref, err := s.readLoose(name)
	if err == nil {
		return ref, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	packed, err := s.readPacked()
	if err != nil {
		return nil, err
	}
	for _, e := range packed {
		if e.name == name {
			return NewHashReference(name, e.hash), nil
		}
	}
	return nil, ErrNotFound
}

// ResolveReference follows a chain of symbolic references (e.g. HEAD
// -> refs/heads/main) until it reaches a HashReference, guarding
// against cycles with a fixed depth cap.
func (s *Store) ResolveReference(name ReferenceName) (*Reference, error) {
	cur := name
	for depth := 0; ; depth++ {
		if depth >= maxSymbolicDepth {
			return nil, ErrMaxSymbolicDepth
		}
		ref, err := s.GetReference(cur)
		if err != nil {
			return nil, err
		}
		if ref.Type() != SymbolicReference {
			return ref, nil
		}
		cur = ref.Target()
	}
}

// SetReference writes ref, optionally checking old first (compare-
// and-swap semantics): if old is non-nil and the current value of
// ref.Name() doesn't match old's hash, ErrReferenceHasChanged is
// returned and nothing is written.
func (s *Store) SetReference(ref *Reference, old *Reference) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old != nil {
		current, err := s.GetReference(ref.Name())
		if err != nil {
			return err
		}
		if current.Type() != HashReference || current.Hash() != old.Hash() {
			return ErrReferenceHasChanged
		}
	}

	if err := s.writeLoose(ref); err != nil {
		return err
	}

	// A ref just written loose shadows any packed entry of the same
	// name; scrub it from packed-refs so the two layers never disagree.
	return s.removeFromPacked(ref.Name())
}

// RemoveReference deletes name from both the loose and packed layers.
func (s *Store) RemoveReference(name ReferenceName) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.fs.Remove(string(name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return s.removeFromPacked(name)
}

// IterReferences calls visit once per reference, loose references
// first (more likely to be freshly written) then any packed reference
// not shadowed by a loose one.
func (s *Store) IterReferences(visit func(*Reference) error) error {
	seen := map[ReferenceName]bool{}

	loose, err := s.looseNames()
	if err != nil {
		return err
	}
	sort.Slice(loose, func(i, j int) bool { return loose[i] < loose[j] })
	for _, name := range loose {
		ref, err := s.readLoose(name)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return err
		}
		seen[name] = true
		if err := visit(ref); err != nil {
			return err
		}
	}

	packed, err := s.readPacked()
	if err != nil {
		return err
	}
	for _, e := range packed {
		if seen[e.name] {
			continue
		}
		if err := visit(NewHashReference(e.name, e.hash)); err != nil {
			return err
		}
	}
	return nil
}

// PackRefs compacts every current loose reference (except HEAD, which
// Git always keeps loose) into packed-refs and removes the loose
// files, matching `git pack-refs --all`.
func (s *Store) PackRefs() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.readPacked()
	if err != nil {
		return err
	}
	byName := make(map[ReferenceName]packedEntry, len(existing))
	for _, e := range existing {
		byName[e.name] = e
	}

	loose, err := s.looseNames()
	if err != nil {
		return err
	}

	var toRemove []ReferenceName
	for _, name := range loose {
		if name == HEAD {
			continue
		}
		ref, err := s.readLoose(name)
		if err != nil {
			return err
		}
		if ref.Type() != HashReference {
			continue
		}
		byName[name] = packedEntry{name: name, hash: ref.Hash()}
		toRemove = append(toRemove, name)
	}

	entries := make([]packedEntry, 0, len(byName))
	for _, e := range byName {
		entries = append(entries, e)
	}
	if err := s.writePacked(entries); err != nil {
		return err
	}

	for _, name := range toRemove {
		if err := s.fs.Remove(string(name)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func (s *Store) readLoose(name ReferenceName) (*Reference, error) {
	f, err := s.fs.Open(string(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return NewReferenceFromStrings(string(name), string(content))
}

func (s *Store) writeLoose(ref *Reference) error {
	path := string(ref.Name())
	if dir := parentDir(path); dir != "" {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmp, err := s.fs.TempFile(parentDir(path), "tmp_ref_")
	if err != nil {
		return err
	}
	if _, err := tmp.Write([]byte(ref.String() + "\n")); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmp.Name())
		return err
	}
	if err := s.fs.Rename(tmp.Name(), path); err != nil {
		_ = s.fs.Remove(tmp.Name())
		return err
	}
	return nil
}

func parentDir(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

func (s *Store) looseNames() ([]ReferenceName, error) {
	var names []ReferenceName

	if _, err := s.fs.Stat(string(HEAD)); err == nil {
		names = append(names, HEAD)
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	var walk func(dir string) error
	walk = func(dir string) error {
		entries, err := s.fs.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		for _, e := range entries {
			path := s.fs.Join(dir, e.Name())
			if e.IsDir() {
				if err := walk(path); err != nil {
					return err
				}
				continue
			}
			names = append(names, ReferenceName(path))
		}
		return nil
	}
	if err := walk("refs"); err != nil {
		return nil, err
	}
	return names, nil
}

func (s *Store) readPacked() ([]packedEntry, error) {
	f, err := s.fs.Open(packedRefsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	return decodePackedRefs(f)
}

func (s *Store) writePacked(entries []packedEntry) error {
	tmp, err := s.fs.TempFile("", "tmp_packed_refs_")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(encodePackedRefs(entries)); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmp.Name())
		return err
	}
	if err := s.fs.Rename(tmp.Name(), packedRefsPath); err != nil {
		_ = s.fs.Remove(tmp.Name())
		return err
	}
	return nil
}

func (s *Store) removeFromPacked(name ReferenceName) error {
	entries, err := s.readPacked()
	if err != nil {
		return err
	}

	filtered := entries[:0]
	found := false
	for _, e := range entries {
		if e.name == name {
			found = true
			continue
		}
		filtered = append(filtered, e)
	}
	if !found {
		return nil
	}
	return s.writePacked(filtered)
}
