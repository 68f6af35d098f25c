package refs

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/statewalker/vcs-sub012/codec"
)

// packedRefsHeader marks a packed-refs file as holding fully peeled
// annotated-tag targets, matching Git's own compaction output.
const packedRefsHeader = "# pack-refs with: peeled fully-peeled sorted\n"

// packedEntry is one packed-refs record: a direct reference, plus the
// peeled (dereferenced) target hash when name is an annotated tag.
type packedEntry struct {
	name      ReferenceName
	hash      codec.ID
	peeled    codec.ID
	hasPeeled bool
}

// decodePackedRefs parses the "<hash> <name>" lines of a packed-refs
// file, associating a following "^<hash>" line with the entry that
// precedes it (the peeled target of an annotated tag).
func decodePackedRefs(r io.Reader) ([]packedEntry, error) {
	var entries []packedEntry

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "^") {
			if len(entries) == 0 {
				return nil, fmt.Errorf("refs: packed-refs: peeled line with no preceding ref")
			}
			id, err := codec.NewID(line[1:])
			if err != nil {
				return nil, fmt.Errorf("refs: packed-refs: bad peeled id %q: %w", line, err)
			}
			entries[len(entries)-1].peeled = id
			entries[len(entries)-1].hasPeeled = true
			continue
		}

		hashPart, namePart, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("refs: packed-refs: malformed line %q", line)
		}
		id, err := codec.NewID(hashPart)
		if err != nil {
			return nil, fmt.Errorf("refs: packed-refs: bad id %q: %w", hashPart, err)
		}
		entries = append(entries, packedEntry{name: ReferenceName(namePart), hash: id})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// encodePackedRefs renders entries in Git's canonical sorted form.
func encodePackedRefs(entries []packedEntry) []byte {
	sorted := make([]packedEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].name < sorted[j].name })

	var buf strings.Builder
	buf.WriteString(packedRefsHeader)
	for _, e := range sorted {
		fmt.Fprintf(&buf, "%s %s\n", e.hash, e.name)
		if e.hasPeeled {
			fmt.Fprintf(&buf, "^%s\n", e.peeled)
		}
	}
	return []byte(buf.String())
}
