package merge

import (
	"bytes"
	"sort"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// conflict marker lines, matching git's own merge output format.
const (
	markerOurs   = "<<<<<<< ours"
	markerBase   = "||||||| base"
	markerTheirs = "======="
	markerEnd    = ">>>>>>> theirs"
)

// edit is one replace/insert/delete against a byte range of base,
// expressed as base byte offsets (since diffmatchpatch's Equal/Delete
// diff pieces are themselves literal substrings of base, offsets
// derived from their lengths line up with base's own indexing).
type edit struct {
	start, end  int
	replacement string
}

func (e edit) isInsert() bool { return e.start == e.end }

// editsFromDiffs collapses a base-vs-other diff into a sequence of
// edits against base, merging an adjacent delete+insert pair into a
// single replace.
func editsFromDiffs(diffs []diffmatchpatch.Diff) []edit {
	var edits []edit
	pos := 0
	for i := 0; i < len(diffs); i++ {
		d := diffs[i]
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			pos += len(d.Text)
		case diffmatchpatch.DiffDelete:
			start, end := pos, pos+len(d.Text)
			replacement := ""
			if i+1 < len(diffs) && diffs[i+1].Type == diffmatchpatch.DiffInsert {
				replacement = diffs[i+1].Text
				i++
			}
			edits = append(edits, edit{start: start, end: end, replacement: replacement})
			pos = end
		case diffmatchpatch.DiffInsert:
			edits = append(edits, edit{start: pos, end: pos, replacement: d.Text})
		}
	}
	return edits
}

// editsOverlap reports whether a and b touch any common base byte,
// treating two zero-width inserts landing at the exact same point as
// overlapping too (their relative order would otherwise be arbitrary).
func editsOverlap(a, b edit) bool {
	if a.isInsert() && b.isInsert() {
		return a.start == b.start
	}
	return a.start < b.end && b.start < a.end
}

// MergeBlobContent performs a byte-range three-way merge of a single
// file's content: base is the common ancestor's bytes, ours/theirs are
// the two sides' bytes. When every edit on one side lands on base
// bytes the other side left untouched, both sides' edits are spliced
// into base automatically; otherwise the whole file is wrapped in
// git-style conflict markers. conflict reports whether markers were
// used.
func MergeBlobContent(base, ours, theirs []byte) (merged []byte, conflict bool) {
	if bytes.Equal(ours, theirs) {
		return ours, false
	}
	if bytes.Equal(base, ours) {
		return theirs, false
	}
	if bytes.Equal(base, theirs) {
		return ours, false
	}

	dmp := diffmatchpatch.New()
	oursEdits := editsFromDiffs(dmp.DiffMain(string(base), string(ours), false))
	theirsEdits := editsFromDiffs(dmp.DiffMain(string(base), string(theirs), false))

	for _, a := range oursEdits {
		for _, b := range theirsEdits {
			if editsOverlap(a, b) {
				return wholeFileConflict(base, ours, theirs), true
			}
		}
	}

	all := make([]edit, 0, len(oursEdits)+len(theirsEdits))
	all = append(all, oursEdits...)
	all = append(all, theirsEdits...)
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].start != all[j].start {
			return all[i].start < all[j].start
		}
		return all[i].isInsert() && !all[j].isInsert()
	})

	var out bytes.Buffer
	pos := 0
	for _, e := range all {
		out.WriteString(string(base[pos:e.start]))
		out.WriteString(e.replacement)
		pos = e.end
	}
	out.WriteString(string(base[pos:]))
	return out.Bytes(), false
}

func wholeFileConflict(base, ours, theirs []byte) []byte {
	var out bytes.Buffer
	writeSection := func(marker string, content []byte) {
		out.WriteString(marker)
		out.WriteByte('\n')
		out.Write(content)
		if len(content) > 0 && content[len(content)-1] != '\n' {
			out.WriteByte('\n')
		}
	}
	writeSection(markerOurs, ours)
	writeSection(markerBase, base)
	out.WriteString(markerTheirs)
	out.WriteByte('\n')
	out.Write(theirs)
	if len(theirs) > 0 && theirs[len(theirs)-1] != '\n' {
		out.WriteByte('\n')
	}
	out.WriteString(markerEnd)
	out.WriteByte('\n')
	return out.Bytes()
}
