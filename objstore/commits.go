package objstore

import (
	"github.com/statewalker/vcs-sub012/codec"
	"github.com/statewalker/vcs-sub012/object"
)

// Commits is the typed façade over commit objects and the ancestry
// graph operations that only make sense at the commit level.
type Commits struct{ s *Store }

// NewCommits returns a Commits façade over raw.
func NewCommits(raw *Store) *Commits { return &Commits{s: raw} }

// Store encodes and persists a commit, returning its ID.
func (c *Commits) Store(commit *object.Commit) (codec.ID, error) {
	payload, err := commit.Encode()
	if err != nil {
		return codec.ID{}, err
	}
	return c.s.store(object.CommitType, payload)
}

// Load decodes a commit.
func (c *Commits) Load(id codec.ID) (*object.Commit, error) {
	payload, err := c.s.load(id, object.CommitType)
	if err != nil {
		return nil, err
	}
	return object.DecodeCommit(payload)
}

// GetTree returns the ID of the tree a commit points at, without the
// caller needing to Load the whole commit first.
func (c *Commits) GetTree(id codec.ID) (codec.ID, error) {
	commit, err := c.Load(id)
	if err != nil {
		return codec.ID{}, err
	}
	return commit.TreeID, nil
}

// GetParents returns a commit's parent IDs (empty for a root commit).
func (c *Commits) GetParents(id codec.ID) ([]codec.ID, error) {
	commit, err := c.Load(id)
	if err != nil {
		return nil, err
	}
	return commit.ParentIDs, nil
}

// WalkOptions configures WalkAncestry.
type WalkOptions struct {
	// Limit caps the number of commits visited; zero means unbounded.
	Limit int
}

// WalkAncestry walks the ancestry of start in breadth-first, visited-
// guarded order (each commit is yielded at most once, regardless of how
// many paths reach it through merges), stopping early if visit returns
// false or once opts.Limit commits have been yielded.
func (c *Commits) WalkAncestry(start codec.ID, opts WalkOptions, visit func(id codec.ID, commit *object.Commit) (bool, error)) error {
	seen := map[codec.ID]bool{start: true}
	queue := []codec.ID{start}
	count := 0

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		commit, err := c.Load(id)
		if err != nil {
			return err
		}

		cont, err := visit(id, commit)
		if err != nil {
			return err
		}
		count++
		if !cont || (opts.Limit > 0 && count >= opts.Limit) {
			return nil
		}

		for _, p := range commit.ParentIDs {
			if !seen[p] {
				seen[p] = true
				queue = append(queue, p)
			}
		}
	}
	return nil
}

// ancestors returns the full set of ids reachable from start (start
// included), walking every parent edge with a visited guard so merge
// commits don't cause exponential re-visits.
func (c *Commits) ancestors(start codec.ID) (map[codec.ID]bool, error) {
	set := map[codec.ID]bool{}
	err := c.WalkAncestry(start, WalkOptions{}, func(id codec.ID, _ *object.Commit) (bool, error) {
		set[id] = true
		return true, nil
	})
	return set, err
}

// IsAncestor reports whether a is an ancestor of (or equal to) b.
func (c *Commits) IsAncestor(a, b codec.ID) (bool, error) {
	found := false
	err := c.WalkAncestry(b, WalkOptions{}, func(id codec.ID, _ *object.Commit) (bool, error) {
		if id == a {
			found = true
			return false, nil
		}
		return true, nil
	})
	return found, err
}

// FindMergeBase returns the minimal set of common ancestors of a and b:
// commits reachable from both that are not themselves reachable from
// any other commit in the result (so an ancestor of a merge base is
// excluded). When a and b share unrelated histories the result is empty;
// when one is an ancestor of the other the result is just that one.
func (c *Commits) FindMergeBase(a, b codec.ID) ([]codec.ID, error) {
	ancA, err := c.ancestors(a)
	if err != nil {
		return nil, err
	}
	ancB, err := c.ancestors(b)
	if err != nil {
		return nil, err
	}

	var common []codec.ID
	for id := range ancA {
		if ancB[id] {
			common = append(common, id)
		}
	}
	if len(common) == 0 {
		return nil, nil
	}

	// Reduce to the minimal set: drop any candidate that is a proper
	// ancestor of another candidate in the set.
	var minimal []codec.ID
	for i, candidate := range common {
		isAncestorOfOther := false
		for j, other := range common {
			if i == j {
				continue
			}
			ok, err := c.IsAncestor(candidate, other)
			if err != nil {
				return nil, err
			}
			if ok && candidate != other {
				isAncestorOfOther = true
				break
			}
		}
		if !isAncestorOfOther {
			minimal = append(minimal, candidate)
		}
	}
	return dedupeIDs(minimal), nil
}

func dedupeIDs(ids []codec.ID) []codec.ID {
	seen := map[codec.ID]bool{}
	var out []codec.ID
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// Has reports whether id is a known commit.
func (c *Commits) Has(id codec.ID) (bool, error) { return c.s.has(id) }

// Remove deletes a commit's raw storage entry.
func (c *Commits) Remove(id codec.ID) error { return c.s.remove(id) }

// Keys enumerates every commit ID in the store.
func (c *Commits) Keys() ([]codec.ID, error) { return c.s.keysOfType(object.CommitType) }
