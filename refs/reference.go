// Package refs implements Git's reference namespace: loose ref files,
// the packed-refs compaction format, symbolic references (HEAD's
// "ref: refs/heads/main" indirection), and atomic compare-and-swap
// updates, grounded on storage/filesystem/dotgit's setRef/packed-refs
// handling.
package refs

import (
	"strings"

	"github.com/statewalker/vcs-sub012/codec"
)

// ReferenceType distinguishes a direct (hash) reference from a
// symbolic one that points at another reference by name.
type ReferenceType int8

const (
	InvalidReference ReferenceType = iota
	HashReference
	SymbolicReference
)

func (t ReferenceType) String() string {
	switch t {
	case HashReference:
		return "hash-reference"
	case SymbolicReference:
		return "symbolic-reference"
	default:
		return "invalid-reference"
	}
}

// ReferenceName is a ref's full path, e.g. "refs/heads/main" or "HEAD".
type ReferenceName string

// HEAD is the name of the reference every worktree's current position
// is read from.
const HEAD ReferenceName = "HEAD"

const (
	refHeadPrefix   = "refs/heads/"
	refTagPrefix    = "refs/tags/"
	refRemotePrefix = "refs/remotes/"
	refNotePrefix   = "refs/notes/"
)

// NewBranchReferenceName builds the full name of a local branch.
func NewBranchReferenceName(name string) ReferenceName {
	return ReferenceName(refHeadPrefix + name)
}

// NewTagReferenceName builds the full name of a tag.
func NewTagReferenceName(name string) ReferenceName {
	return ReferenceName(refTagPrefix + name)
}

// NewRemoteReferenceName builds the full name of a remote-tracking
// branch, e.g. NewRemoteReferenceName("origin", "main").
func NewRemoteReferenceName(remote, name string) ReferenceName {
	return ReferenceName(refRemotePrefix + remote + "/" + name)
}

// NewNoteReferenceName builds the full name of a notes ref.
func NewNoteReferenceName(name string) ReferenceName {
	return ReferenceName(refNotePrefix + name)
}

// Short strips the well-known refs/... prefix, if any, the same way
// "git branch"/"git tag" display names.
func (n ReferenceName) Short() string {
	s := string(n)
	res := s
	for _, prefix := range []string{refHeadPrefix, refTagPrefix, refRemotePrefix, refNotePrefix} {
		if strings.HasPrefix(s, prefix) {
			res = s[len(prefix):]
			break
		}
	}
	return res
}

func (n ReferenceName) IsBranch() bool { return strings.HasPrefix(string(n), refHeadPrefix) }
func (n ReferenceName) IsTag() bool    { return strings.HasPrefix(string(n), refTagPrefix) }
func (n ReferenceName) IsRemote() bool { return strings.HasPrefix(string(n), refRemotePrefix) }
func (n ReferenceName) IsNote() bool   { return strings.HasPrefix(string(n), refNotePrefix) }

func (n ReferenceName) String() string { return string(n) }

// Reference is either a direct pointer at an object ID (HashReference)
// or an indirection at another reference name (SymbolicReference).
type Reference struct {
	typ    ReferenceType
	name   ReferenceName
	target ReferenceName
	hash   codec.ID
}

// NewHashReference returns a direct reference from name to id.
func NewHashReference(name ReferenceName, id codec.ID) *Reference {
	return &Reference{typ: HashReference, name: name, hash: id}
}

// NewSymbolicReference returns a reference from name that indirects
// through target.
func NewSymbolicReference(name, target ReferenceName) *Reference {
	return &Reference{typ: SymbolicReference, name: name, target: target}
}

// NewReferenceFromStrings parses the on-disk content of a loose ref
// file: either "ref: <target>" for a symbolic reference, or a bare
// 40-char hex ID for a direct one.
func NewReferenceFromStrings(name, content string) (*Reference, error) {
	content = strings.TrimSpace(content)
	if target, ok := strings.CutPrefix(content, "ref: "); ok {
		return NewSymbolicReference(ReferenceName(name), ReferenceName(strings.TrimSpace(target))), nil
	}

	id, err := codec.NewID(content)
	if err != nil {
		return nil, err
	}
	return NewHashReference(ReferenceName(name), id), nil
}

func (r *Reference) Type() ReferenceType   { return r.typ }
func (r *Reference) Name() ReferenceName   { return r.name }
func (r *Reference) Hash() codec.ID        { return r.hash }
func (r *Reference) Target() ReferenceName { return r.target }

// String renders the content of a loose ref file: "ref: <target>" for
// a symbolic reference, the hex ID otherwise (callers write it under
// the ref's own path).
func (r *Reference) String() string {
	switch r.typ {
	case SymbolicReference:
		return "ref: " + string(r.target)
	default:
		return r.hash.String()
	}
}
