package gc

import (
	"github.com/statewalker/vcs-sub012/codec"
	"github.com/statewalker/vcs-sub012/delta"
	"github.com/statewalker/vcs-sub012/object"
	"github.com/statewalker/vcs-sub012/pack"
)

// selectAndDeltify runs delta.SelectCandidates once per object type,
// never across types, and applies the proposals that pass Deltify's
// size/ratio/cycle gates, inside one batch; when several bases pass
// for the same target, Deltify keeps the one with the smallest
// compressed delta. Because this Manager is
// scoped to a single repack rather than persisted across runs, every
// object starts this selection at chain depth zero; a proposal is
// still rejected locally if accepting it would build a chain deeper
// than opts.MaxChainDepth within this run.
func selectAndDeltify(manager *delta.Manager, set *reachableSet, sizes map[codec.ID]int, payloads map[codec.ID]payload, opts Options) error {
	if err := manager.StartBatch(); err != nil {
		return err
	}

	localBase := make(map[codec.ID]codec.ID)
	localDepth := make(map[codec.ID]int)

	groups := [][]codec.ID{
		sortedIDs(set.commits),
		sortedIDs(set.tags),
		sortedIDs(set.trees),
		sortedIDs(set.blobs),
	}

	for _, ids := range groups {
		candidates := make([]delta.Candidate, 0, len(ids))
		for _, id := range ids {
			candidates = append(candidates, delta.Candidate{ID: id, Size: sizes[id]})
		}

		pairs := delta.SelectCandidates(candidates, map[codec.ID]int{}, opts.Window, opts.MaxChainDepth, opts.MaxSize)
		for _, pair := range pairs {
			target, base := pair[0], pair[1]
			if dependsOn(localBase, base, target) {
				continue
			}
			if localDepth[base]+1 > opts.MaxChainDepth {
				continue
			}

			targetPayload := payloads[target].data
			basePayload := payloads[base].data
			currentCompressed := len(codec.Deflate(object.Encode(payloads[target].typ, targetPayload)))
			candidateCompressed := len(codec.Deflate(delta.Encode(basePayload, targetPayload)))

			if err := manager.Deltify(target, base, len(targetPayload), len(basePayload), currentCompressed, candidateCompressed); err != nil {
				continue
			}
			localBase[target] = base
			localDepth[target] = localDepth[base] + 1
		}
	}

	return manager.EndBatch()
}

// dependsOn reports whether candidate's chain, as built so far in
// this batch, passes through target.
func dependsOn(localBase map[codec.ID]codec.ID, candidate, target codec.ID) bool {
	seen := make(map[codec.ID]bool)
	cur := candidate
	for {
		if cur == target {
			return true
		}
		if seen[cur] {
			return false
		}
		seen[cur] = true

		base, ok := localBase[cur]
		if !ok {
			return false
		}
		cur = base
	}
}

// buildSources lays out every reachable object as a pack.Source,
// grouped commits-then-tags-then-trees-then-blobs, each group ordered
// so a delta's base always precedes it.
func buildSources(set *reachableSet, payloads map[codec.ID]payload, manager *delta.Manager) []pack.Source {
	groups := []struct {
		typ object.Type
		ids []codec.ID
	}{
		{object.CommitType, sortedIDs(set.commits)},
		{object.TagType, sortedIDs(set.tags)},
		{object.TreeType, sortedIDs(set.trees)},
		{object.BlobType, sortedIDs(set.blobs)},
	}

	var sources []pack.Source
	for _, g := range groups {
		for _, id := range orderByDependency(g.ids, manager) {
			p := payloads[id]
			src := pack.Source{ID: id, Type: g.typ, Payload: p.data}
			if base, ok := manager.DeltaBase(id); ok {
				src.HasDelta = true
				src.DeltaBase = base
			}
			sources = append(sources, src)
		}
	}
	return sources
}

// orderByDependency topologically sorts ids so that, for any id
// deltified against a base within the same group, the base comes
// first, as pack.Write requires for OFS_DELTA's backward offset.
func orderByDependency(ids []codec.ID, manager *delta.Manager) []codec.ID {
	inGroup := make(map[codec.ID]bool, len(ids))
	for _, id := range ids {
		inGroup[id] = true
	}

	visited := make(map[codec.ID]bool, len(ids))
	order := make([]codec.ID, 0, len(ids))

	var visit func(id codec.ID)
	visit = func(id codec.ID) {
		if visited[id] {
			return
		}
		visited[id] = true
		if base, ok := manager.DeltaBase(id); ok && inGroup[base] {
			visit(base)
		}
		order = append(order, id)
	}
	for _, id := range ids {
		visit(id)
	}
	return order
}
