package depot

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// OpKind discriminates merge operations.
type OpKind uint8

const (
	// OpPut creates or updates a named entry with a new node key.
	OpPut OpKind = iota + 1

	// OpRemove deletes a named entry.
	OpRemove
)

// MergeOp is one edit transforming the local tree into the merged
// tree. Path is the navigation path from the root to the affected
// entry, inclusive. Ops only ever reference nodes already present in
// storage, so they may be applied in any order within a pass.
type MergeOp struct {
	Path []string
	Kind OpKind
	Key  Key // set for OpPut
}

func (op MergeOp) String() string {
	verb := "put"
	if op.Kind == OpRemove {
		verb = "remove"
	}
	return fmt.Sprintf("%s %v %s", verb, op.Path, op.Key)
}

// TieBreak selects the winner when both sides changed an entry and the
// logical timestamps are equal. An explicit parameter rather than a
// hidden bias: the choice is policy, not correctness.
type TieBreak uint8

const (
	// TieOurs keeps the local change on equal timestamps.
	TieOurs TieBreak = iota

	// TieTheirs takes the remote change on equal timestamps.
	TieTheirs
)

// MergeInput names the three roots of a merge and the logical
// timestamps used for last-writer-wins conflict resolution.
type MergeInput struct {
	Base   Key // common ancestor
	Ours   Key // local head
	Theirs Key // remote head

	OursAt   time.Time
	TheirsAt time.Time
}

// Merger reconciles divergent trees against a depot. The diff itself
// is pure, synchronous computation over already-stored bytes; only the
// pull phase touches the fetcher.
type Merger struct {
	d     *Depot
	fetch NodeFetcher
	log   *zap.Logger
	conc  int
	tie   TieBreak
}

// MergerOption configures a Merger.
type MergerOption func(*Merger)

// WithFetchConcurrency bounds parallel sibling fetches during pull.
func WithFetchConcurrency(n int) MergerOption {
	return func(m *Merger) {
		if n > 0 {
			m.conc = n
		}
	}
}

// WithTieBreak sets the equal-timestamp conflict policy.
func WithTieBreak(t TieBreak) MergerOption {
	return func(m *Merger) { m.tie = t }
}

// WithMergeLogger sets the merger's logger.
func WithMergeLogger(log *zap.Logger) MergerOption {
	return func(m *Merger) {
		if log != nil {
			m.log = log.Named("merge")
		}
	}
}

// DefaultFetchConcurrency bounds parallel pulls per directory level.
const DefaultFetchConcurrency = 4

// NewMerger creates a merger over a depot and a remote node source.
// fetch may be nil when only Merge and Apply are used.
func NewMerger(d *Depot, fetch NodeFetcher, opts ...MergerOption) *Merger {
	m := &Merger{
		d:     d,
		fetch: fetch,
		log:   d.log.Named("merge"),
		conc:  DefaultFetchConcurrency,
		tie:   TieOurs,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Merge computes the ordered op list transforming Ours into the merged
// tree. All three roots must already be local (see Pull). An empty op
// list means Ours already dominates Theirs.
func (m *Merger) Merge(ctx context.Context, in MergeInput) ([]MergeOp, error) {
	if in.Theirs == in.Ours {
		return nil, nil
	}

	tl := &treeLoader{d: m.d, cache: make(map[Key]*Node)}

	ours, err := tl.loadDict(ctx, in.Ours)
	if err != nil {
		return nil, fmt.Errorf("depot: merge: ours root: %w", err)
	}
	theirs, err := tl.loadDict(ctx, in.Theirs)
	if err != nil {
		return nil, fmt.Errorf("depot: merge: theirs root: %w", err)
	}
	base, err := tl.loadDictOrNil(ctx, in.Base)
	if err != nil {
		return nil, fmt.Errorf("depot: merge: base root: %w", err)
	}

	return m.mergeDicts(ctx, tl, nil, base, ours, theirs, in)
}

// mergeDicts performs the per-entry three-way comparison, recursing
// into subdirectories present on both sides.
func (m *Merger) mergeDicts(ctx context.Context, tl *treeLoader, path []string, base, ours, theirs *Node, in MergeInput) ([]MergeOp, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b := entryMap(base)
	o := entryMap(ours)
	t := entryMap(theirs)

	var ops []MergeOp
	for _, name := range unionNames(b, o, t) {
		bkey := b[name] // zero key when absent
		okey := o[name]
		tkey := t[name]

		entryPath := append(append([]string{}, path...), name)

		switch {
		case okey == tkey:
			// Identical on both sides (including both absent).

		case tkey == bkey:
			// Only ours changed; ours stands.

		case okey == bkey:
			// Only theirs changed; take theirs wholesale.
			ops = appendTakeTheirs(ops, entryPath, tkey)

		default:
			// Changed on both sides to different values.
			sub, err := m.mergeConflict(ctx, tl, entryPath, bkey, okey, tkey, in)
			if err != nil {
				return nil, err
			}
			ops = append(ops, sub...)
		}
	}
	return ops, nil
}

// mergeConflict resolves one both-sides-changed entry: recurse when
// both sides still hold dicts, otherwise last-writer-wins. A
// file-vs-dict disagreement is a content conflict under the same rule.
func (m *Merger) mergeConflict(ctx context.Context, tl *treeLoader, path []string, bkey, okey, tkey Key, in MergeInput) ([]MergeOp, error) {
	if !okey.IsZero() && !tkey.IsZero() {
		oursNode, err := tl.load(ctx, okey)
		if err != nil {
			return nil, err
		}
		theirsNode, err := tl.load(ctx, tkey)
		if err != nil {
			return nil, err
		}
		if oursNode.Kind == KindDict && theirsNode.Kind == KindDict {
			baseNode, err := tl.loadDictOrNil(ctx, bkey)
			if err != nil {
				return nil, err
			}
			return m.mergeDicts(ctx, tl, path, baseNode, oursNode, theirsNode, in)
		}
	}

	if m.theirsWins(in) {
		return appendTakeTheirs(nil, path, tkey), nil
	}
	return nil, nil
}

func (m *Merger) theirsWins(in MergeInput) bool {
	if in.TheirsAt.After(in.OursAt) {
		return true
	}
	if in.OursAt.After(in.TheirsAt) {
		return false
	}
	return m.tie == TieTheirs
}

func appendTakeTheirs(ops []MergeOp, path []string, theirs Key) []MergeOp {
	if theirs.IsZero() {
		return append(ops, MergeOp{Path: path, Kind: OpRemove})
	}
	return append(ops, MergeOp{Path: path, Kind: OpPut, Key: theirs})
}

// treeLoader caches decoded nodes for the duration of one merge.
type treeLoader struct {
	d     *Depot
	cache map[Key]*Node
}

func (tl *treeLoader) load(ctx context.Context, key Key) (*Node, error) {
	if n, ok := tl.cache[key]; ok {
		return n, nil
	}
	n, err := tl.d.loadNode(ctx, key)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, fmt.Errorf("node %s not present locally", key)
	}
	tl.cache[key] = n
	return n, nil
}

func (tl *treeLoader) loadDict(ctx context.Context, key Key) (*Node, error) {
	n, err := tl.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if n.Kind != KindDict {
		return nil, fmt.Errorf("node %s is not a dict", key)
	}
	return n, nil
}

// loadDictOrNil tolerates an absent or non-dict base: the comparison
// then treats the whole level as added on both sides.
func (tl *treeLoader) loadDictOrNil(ctx context.Context, key Key) (*Node, error) {
	if key.IsZero() {
		return nil, nil
	}
	n, err := tl.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if n.Kind != KindDict {
		return nil, nil
	}
	return n, nil
}

func entryMap(n *Node) map[string]Key {
	if n == nil {
		return nil
	}
	m := make(map[string]Key, len(n.Entries))
	for _, e := range n.Entries {
		m[e.Name] = e.Key
	}
	return m
}

func unionNames(maps ...map[string]Key) []string {
	seen := make(map[string]struct{})
	for _, m := range maps {
		for name := range m {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
