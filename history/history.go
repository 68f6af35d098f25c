// Package history composes the object store and reference namespace
// into the repository-level operations that only make sense once both
// are available together: initializing a fresh repository layout and
// resolving/walking commit history starting from a named reference.
package history

import (
	"errors"

	"dario.cat/mergo"
	billy "github.com/go-git/go-billy/v5"

	"github.com/statewalker/vcs-sub012/codec"
	"github.com/statewalker/vcs-sub012/object"
	"github.com/statewalker/vcs-sub012/objstore"
	"github.com/statewalker/vcs-sub012/rawstore"
	"github.com/statewalker/vcs-sub012/refs"
)

// ErrAlreadyInitialized is returned by Initialize when HEAD already
// exists, mirroring the teacher's ErrRepositoryAlreadyExists check in
// Init.
var ErrAlreadyInitialized = errors.New("history: repository already initialized")

// ErrNotACommit is returned by ResolveCommit when a reference peels to
// an object that isn't a commit.
var ErrNotACommit = errors.New("history: reference does not resolve to a commit")

// DefaultBranch is the branch HEAD points at on a freshly initialized
// repository.
const DefaultBranch refs.ReferenceName = "refs/heads/main"

// History is the composition façade tying the typed object-store views
// and the reference namespace together: everything a caller needs to
// read, write, and walk a repository's history, with no remote or
// worktree concerns attached.
type History struct {
	Blobs   *objstore.Blobs
	Trees   *objstore.Trees
	Commits *objstore.Commits
	Tags    *objstore.Tags
	Refs    *refs.Store
}

// New composes a History over an already-open raw object store and
// reference filesystem. Most callers want Initialize or Open instead.
func New(raw rawstore.Store, refsFS billy.Filesystem) *History {
	s := objstore.New(raw)
	return &History{
		Blobs:   objstore.NewBlobs(s),
		Trees:   objstore.NewTrees(s),
		Commits: objstore.NewCommits(s),
		Tags:    objstore.NewTags(s),
		Refs:    refs.NewStore(refsFS),
	}
}

// Initialize sets up a fresh repository: HEAD is created as a symbolic
// reference to DefaultBranch, which itself stays unborn (no commit
// yet) until the first commit is stored and HEAD's branch is updated.
// It returns ErrAlreadyInitialized if HEAD already exists.
func Initialize(raw rawstore.Store, refsFS billy.Filesystem) (*History, error) {
	h := New(raw, refsFS)

	if _, err := h.Refs.GetReference(refs.HEAD); err == nil {
		return nil, ErrAlreadyInitialized
	} else if !errors.Is(err, refs.ErrNotFound) {
		return nil, err
	}

	head := refs.NewSymbolicReference(refs.HEAD, DefaultBranch)
	if err := h.Refs.SetReference(head, nil); err != nil {
		return nil, err
	}
	return h, nil
}

// Open composes a History over an existing repository, requiring HEAD
// to already be present.
func Open(raw rawstore.Store, refsFS billy.Filesystem) (*History, error) {
	h := New(raw, refsFS)
	if _, err := h.Refs.GetReference(refs.HEAD); err != nil {
		return nil, err
	}
	return h, nil
}

// Head resolves HEAD through any symbolic chain to the commit it
// ultimately names.
func (h *History) Head() (codec.ID, error) {
	ref, err := h.Refs.ResolveReference(refs.HEAD)
	if err != nil {
		return codec.ID{}, err
	}
	return ref.Hash(), nil
}

// WalkAncestryOptions configures WalkAncestry, with zero values
// replaced by DefaultWalkAncestryOptions via mergo before the walk
// runs, the same option-struct-default pattern the teacher applies to
// CloneOptions/PullOptions.
type WalkAncestryOptions struct {
	// Limit caps the number of commits visited; zero means unbounded.
	Limit int
}

// DefaultWalkAncestryOptions is the zero-value baseline merged into a
// caller-supplied WalkAncestryOptions.
var DefaultWalkAncestryOptions = WalkAncestryOptions{Limit: 0}

// WalkAncestry walks the ancestry of start, breadth-first and visited-
// guarded, delegating to objstore.Commits.WalkAncestry.
func (h *History) WalkAncestry(start codec.ID, opts WalkAncestryOptions, visit func(id codec.ID, commit *object.Commit) (bool, error)) error {
	merged := DefaultWalkAncestryOptions
	if err := mergo.Merge(&merged, opts, mergo.WithOverride); err != nil {
		return err
	}
	return h.Commits.WalkAncestry(start, objstore.WalkOptions{Limit: merged.Limit}, visit)
}

// IsAncestor reports whether a is an ancestor of (or equal to) b.
func (h *History) IsAncestor(a, b codec.ID) (bool, error) {
	return h.Commits.IsAncestor(a, b)
}

// FindMergeBase returns the minimal set of common ancestors of a and b.
func (h *History) FindMergeBase(a, b codec.ID) ([]codec.ID, error) {
	return h.Commits.FindMergeBase(a, b)
}

// ResolveCommit follows name through HEAD/branch/tag resolution and
// tag peeling, if necessary, down to a commit ID.
func (h *History) ResolveCommit(name refs.ReferenceName) (codec.ID, error) {
	ref, err := h.Refs.ResolveReference(name)
	if err != nil {
		return codec.ID{}, err
	}

	id := ref.Hash()
	if ok, err := h.Tags.Has(id); err != nil {
		return codec.ID{}, err
	} else if ok {
		target, typ, err := h.Tags.GetTarget(id, true)
		if err != nil {
			return codec.ID{}, err
		}
		if typ != object.CommitType {
			return codec.ID{}, ErrNotACommit
		}
		return target, nil
	}
	return id, nil
}
