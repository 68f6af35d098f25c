// Package gc implements repository maintenance: deciding when a
// repack is due, walking everything reachable from refs, and
// rewriting it into a single fresh pack, pruning whatever the new
// pack makes redundant.
package gc

import (
	"bytes"
	"errors"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"golang.org/x/sync/errgroup"

	"github.com/statewalker/vcs-sub012/codec"
	"github.com/statewalker/vcs-sub012/delta"
	"github.com/statewalker/vcs-sub012/filemode"
	"github.com/statewalker/vcs-sub012/history"
	"github.com/statewalker/vcs-sub012/object"
	"github.com/statewalker/vcs-sub012/objstore"
	"github.com/statewalker/vcs-sub012/pack"
	"github.com/statewalker/vcs-sub012/pack/idx"
	"github.com/statewalker/vcs-sub012/rawstore"
	"github.com/statewalker/vcs-sub012/refs"
)

// Options tunes both the scheduling policy (ShouldRun) and the repack
// itself (Run).
type Options struct {
	// LooseBlobThreshold is the loose-object count above which a
	// repack is due.
	LooseBlobThreshold int
	// MaxChainDepth is the longest delta chain Run will produce, and
	// the observed depth above which a repack is due.
	MaxChainDepth int
	// MinInterval is the shortest gap ShouldRun allows between two
	// automatically triggered repacks; it does not apply to a manual
	// Run call.
	MinInterval time.Duration
	// Window bounds how many same-type, size-adjacent candidates
	// SelectCandidates considers per target.
	Window int
	// MaxSize is the largest plaintext object size eligible for
	// deltification.
	MaxSize int
}

// DefaultOptions matches spec's documented defaults: repack past 100
// loose objects or a 50-deep chain, no more often than once a minute.
var DefaultOptions = Options{
	LooseBlobThreshold: 100,
	MaxChainDepth:      delta.DefaultMaxChainDepth,
	MinInterval:        60 * time.Second,
	Window:             delta.DefaultWindow,
	MaxSize:            delta.DefaultMaxSize,
}

// Stats feeds ShouldRun's decision.
type Stats struct {
	LooseObjectCount int
	MaxChainDepth    int
}

// ShouldRun implements the scheduling policy: due once the loose
// count or the deepest observed chain crosses its threshold, gated by
// MinInterval since the last automatic run.
func ShouldRun(stats Stats, opts Options, lastRun, now time.Time) bool {
	if now.Sub(lastRun) < opts.MinInterval {
		return false
	}
	return stats.LooseObjectCount > opts.LooseBlobThreshold || stats.MaxChainDepth > opts.MaxChainDepth
}

// ProgressFunc reports repack progress: the current phase name, how
// many objects have been processed in it, cumulative bytes saved so
// far, and the object currently being handled.
type ProgressFunc func(phase string, processed int, bytesSaved int64, current codec.ID)

// Result summarizes a completed repack.
type Result struct {
	PackChecksum codec.ID
	ObjectCount  int
	RemovedLoose int
	RemovedPacks int
	BytesSaved   int64
}

const packDir = "pack"

// Repacker owns the moving parts a repack touches: the repository
// history, the loose store it prunes from, the pack directory it
// publishes into, and the filesystem backing both pack files.
type Repacker struct {
	History *history.History
	Loose   *rawstore.Loose
	Packs   *pack.Directory
	FS      billy.Filesystem

	mu        sync.Mutex
	packFiles map[codec.ID]string
}

// NewRepacker returns a Repacker over an already-populated pack
// Directory; call LoadExisting first if packs exist on disk but
// haven't been registered into packs yet. packs is wired to fall back
// to loose for any REF_DELTA base a pack reader can't resolve itself.
func NewRepacker(h *history.History, loose *rawstore.Loose, packs *pack.Directory, fs billy.Filesystem) *Repacker {
	packs.SetLooseFallback(loose)
	return &Repacker{History: h, Loose: loose, Packs: packs, FS: fs, packFiles: make(map[codec.ID]string)}
}

// LoadExisting scans FS's pack directory, registers every pack/idx
// pair it finds into Packs, and remembers their filenames so Run can
// remove them once superseded.
func (r *Repacker) LoadExisting() error {
	infos, err := r.FS.ReadDir(packDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, fi := range infos {
		name := fi.Name()
		if len(name) < 5 || name[len(name)-4:] != ".idx" {
			continue
		}
		base := name[:len(name)-4]

		idxData, err := readFile(r.FS, r.FS.Join(packDir, base+".idx"))
		if err != nil {
			return err
		}
		parsedIdx, err := idx.Decode(bytes.NewReader(idxData))
		if err != nil {
			return err
		}

		packData, err := readFile(r.FS, r.FS.Join(packDir, base+".pack"))
		if err != nil {
			return err
		}

		checksum := codec.Sum(packData[:len(packData)-codec.Size])
		r.Packs.AddPack(checksum, packData, parsedIdx)
		r.packFiles[checksum] = base
	}
	return nil
}

// Run performs a full repack: scan reachable objects, select and
// apply delta candidates, write one new pack, publish it, and prune
// whatever it makes redundant.
func (r *Repacker) Run(opts Options, progress ProgressFunc) (Result, error) {
	set, err := r.collectReachable(progress)
	if err != nil {
		return Result{}, err
	}

	payloads, sizes, err := r.loadPayloads(set)
	if err != nil {
		return Result{}, err
	}

	manager := delta.NewManager()
	if err := selectAndDeltify(manager, set, sizes, payloads, opts); err != nil {
		return Result{}, err
	}

	sources := buildSources(set, payloads, manager)

	packData, packIdx, err := pack.Write(sources)
	if err != nil {
		return Result{}, err
	}
	sum := codec.Sum(packData[:len(packData)-codec.Size])

	if err := r.publish(sum, packData, packIdx, progress); err != nil {
		return Result{}, err
	}

	removedLoose, bytesSaved, err := r.pruneLoose(sources)
	if err != nil {
		return Result{}, err
	}

	r.mu.Lock()
	removedPacks := 0
	for old, name := range r.packFiles {
		if old == sum {
			continue
		}
		if r.hasKeep(name) {
			continue
		}
		r.Packs.RemovePack(old)
		_ = r.FS.Remove(r.FS.Join(packDir, name+".pack"))
		_ = r.FS.Remove(r.FS.Join(packDir, name+".idx"))
		delete(r.packFiles, old)
		removedPacks++
	}
	r.mu.Unlock()

	return Result{
		PackChecksum: sum,
		ObjectCount:  len(sources),
		RemovedLoose: removedLoose,
		RemovedPacks: removedPacks,
		BytesSaved:   bytesSaved,
	}, nil
}

func (r *Repacker) publish(checksum codec.ID, packData []byte, packIdx *idx.Index, progress ProgressFunc) error {
	if err := r.FS.MkdirAll(packDir, 0o755); err != nil {
		return err
	}

	name := "pack-" + checksum.String()

	if err := writeTemp(r.FS, packDir, r.FS.Join(packDir, name+".pack"), packData); err != nil {
		return err
	}

	var idxBuf bytes.Buffer
	if err := idx.Encode(&idxBuf, packIdx); err != nil {
		return err
	}
	if err := writeTemp(r.FS, packDir, r.FS.Join(packDir, name+".idx"), idxBuf.Bytes()); err != nil {
		return err
	}

	r.Packs.AddPack(checksum, packData, packIdx)

	r.mu.Lock()
	r.packFiles[checksum] = name
	r.mu.Unlock()

	if progress != nil {
		progress("publish", packIdx.Len(), 0, checksum)
	}
	return nil
}

// hasKeep reports whether name has a companion ".keep" file, which
// marks a pack as exempt from pruning regardless of redundancy.
func (r *Repacker) hasKeep(name string) bool {
	_, err := r.FS.Stat(r.FS.Join(packDir, name+".keep"))
	return err == nil
}

func (r *Repacker) pruneLoose(sources []pack.Source) (int, int64, error) {
	var removed int
	var bytesSaved int64
	for _, src := range sources {
		ok, err := r.Loose.Has(src.ID)
		if err != nil {
			return removed, bytesSaved, err
		}
		if !ok {
			continue
		}
		encoded := object.Encode(src.Type, src.Payload)
		bytesSaved += int64(len(codec.Deflate(encoded)))
		if err := r.Loose.Remove(src.ID); err != nil {
			return removed, bytesSaved, err
		}
		removed++
	}
	return removed, bytesSaved, nil
}

// reachableSet collects, per object type, every ID reached while
// walking from the repository's refs.
type reachableSet struct {
	mu      sync.Mutex
	commits map[codec.ID]bool
	trees   map[codec.ID]bool
	blobs   map[codec.ID]bool
	tags    map[codec.ID]bool
}

func newReachableSet() *reachableSet {
	return &reachableSet{
		commits: make(map[codec.ID]bool),
		trees:   make(map[codec.ID]bool),
		blobs:   make(map[codec.ID]bool),
		tags:    make(map[codec.ID]bool),
	}
}

func (s *reachableSet) mark(m map[codec.ID]bool, id codec.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m[id] {
		return false
	}
	m[id] = true
	return true
}

func (s *reachableSet) markCommit(id codec.ID) bool { return s.mark(s.commits, id) }
func (s *reachableSet) markTree(id codec.ID) bool   { return s.mark(s.trees, id) }
func (s *reachableSet) markBlob(id codec.ID) bool   { return s.mark(s.blobs, id) }
func (s *reachableSet) markTag(id codec.ID) bool    { return s.mark(s.tags, id) }

func (s *reachableSet) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.commits) + len(s.trees) + len(s.blobs) + len(s.tags)
}

// collectReachable fans out one goroutine per ref, each walking that
// ref's ancestry and the trees/blobs it points at; the shared,
// mutex-guarded reachableSet makes the walk cycle-safe and lets
// goroutines skip work another has already done.
func (r *Repacker) collectReachable(progress ProgressFunc) (*reachableSet, error) {
	set := newReachableSet()

	var roots []codec.ID
	if err := r.History.Refs.IterReferences(func(ref *refs.Reference) error {
		id := ref.Hash()
		if ref.Type() == refs.SymbolicReference {
			resolved, err := r.History.Refs.ResolveReference(ref.Name())
			if err != nil {
				if errors.Is(err, refs.ErrNotFound) {
					return nil
				}
				return err
			}
			id = resolved.Hash()
		}
		if !id.IsZero() {
			roots = append(roots, id)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	g := new(errgroup.Group)
	for _, root := range roots {
		root := root
		g.Go(func() error {
			return r.walkFromRoot(root, set, progress)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return set, nil
}

func (r *Repacker) walkFromRoot(root codec.ID, set *reachableSet, progress ProgressFunc) error {
	commitID := root
	if ok, err := r.History.Tags.Has(root); err != nil {
		return err
	} else if ok {
		if !set.markTag(root) {
			return nil
		}
		target, typ, err := r.History.Tags.GetTarget(root, true)
		if err != nil {
			return err
		}
		if typ != object.CommitType {
			return nil
		}
		commitID = target
	}

	return r.History.Commits.WalkAncestry(commitID, objstore.WalkOptions{}, func(id codec.ID, commit *object.Commit) (bool, error) {
		if !set.markCommit(id) {
			return false, nil
		}
		if err := r.walkTree(commit.TreeID, set); err != nil {
			return false, err
		}
		if progress != nil {
			progress("scan", set.count(), 0, id)
		}
		return true, nil
	})
}

func (r *Repacker) walkTree(id codec.ID, set *reachableSet) error {
	if !set.markTree(id) {
		return nil
	}

	tree, err := r.History.Trees.Load(id)
	if err != nil {
		return err
	}
	for _, e := range tree.Entries {
		switch e.Mode {
		case filemode.Dir:
			if err := r.walkTree(e.ID, set); err != nil {
				return err
			}
		case filemode.Submodule:
			continue
		default:
			set.markBlob(e.ID)
		}
	}
	return nil
}

type payload struct {
	typ  object.Type
	data []byte
}

func (r *Repacker) loadPayloads(set *reachableSet) (map[codec.ID]payload, map[codec.ID]int, error) {
	payloads := make(map[codec.ID]payload)
	sizes := make(map[codec.ID]int)

	for id := range set.commits {
		c, err := r.History.Commits.Load(id)
		if err != nil {
			return nil, nil, err
		}
		data, err := c.Encode()
		if err != nil {
			return nil, nil, err
		}
		payloads[id] = payload{object.CommitType, data}
		sizes[id] = len(data)
	}
	for id := range set.tags {
		tag, err := r.History.Tags.Load(id)
		if err != nil {
			return nil, nil, err
		}
		data, err := tag.Encode()
		if err != nil {
			return nil, nil, err
		}
		payloads[id] = payload{object.TagType, data}
		sizes[id] = len(data)
	}
	for id := range set.trees {
		tree, err := r.History.Trees.Load(id)
		if err != nil {
			return nil, nil, err
		}
		data, err := tree.Encode()
		if err != nil {
			return nil, nil, err
		}
		payloads[id] = payload{object.TreeType, data}
		sizes[id] = len(data)
	}
	for id := range set.blobs {
		data, err := r.History.Blobs.Load(id)
		if err != nil {
			return nil, nil, err
		}
		payloads[id] = payload{object.BlobType, data}
		sizes[id] = len(data)
	}

	return payloads, sizes, nil
}

func sortedIDs(m map[codec.ID]bool) []codec.ID {
	out := make([]codec.ID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out
}

func readFile(fs billy.Filesystem, path string) ([]byte, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// writeTemp publishes data at finalPath via a temp-file-then-rename
// swap, the same atomic-publish idiom rawstore/loose.go uses for
// objects and refs/store.go uses for loose refs.
func writeTemp(fs billy.Filesystem, dir, finalPath string, data []byte) error {
	tmp, err := fs.TempFile(dir, "tmp_pack_")
	if err != nil {
		return err
	}
	name := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = fs.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = fs.Remove(name)
		return err
	}
	if err := fs.Rename(name, finalPath); err != nil {
		_ = fs.Remove(name)
		return err
	}
	return nil
}
