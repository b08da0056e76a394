package depot

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// NodeFetcher retrieves remote node bytes by navigation path from a
// remote root ([] for the root itself). A (nil, nil) return means the
// node is not available — absent or not authorized — which aborts a
// pull that needs it but is not a hard transport error.
type NodeFetcher interface {
	FetchNode(ctx context.Context, path []string) ([]byte, error)
}

// FetcherFunc adapts a function to the NodeFetcher interface.
type FetcherFunc func(ctx context.Context, path []string) ([]byte, error)

func (f FetcherFunc) FetchNode(ctx context.Context, path []string) ([]byte, error) {
	return f(ctx, path)
}

// DepotFetcher serves nodes out of another depot by navigating from a
// fixed root. The local-to-local case of the sync protocol; a remote
// transport implements the same interface at its boundary.
type DepotFetcher struct {
	Source *Depot
	Root   Key
}

func (f DepotFetcher) FetchNode(ctx context.Context, path []string) ([]byte, error) {
	key := f.Root
	for _, name := range path {
		node, err := f.Source.loadNode(ctx, key)
		if err != nil {
			return nil, err
		}
		if node == nil || node.Kind != KindDict {
			return nil, nil
		}
		entry, found := node.Entry(name)
		if !found {
			return nil, nil
		}
		key = entry.Key
	}
	rec, err := f.Source.GetNode(ctx, key)
	if err != nil || rec == nil {
		return nil, err
	}
	return rec.Body, nil
}

// Pull makes the closure of root local, fetching only nodes not
// already present. Children land before parents so referential
// integrity holds at every intermediate state; sibling subtrees are
// fetched in parallel. Any required node that fails to arrive aborts
// the pull — partial progress is harmless, since every stored node is
// a valid content-addressed node on its own.
func (m *Merger) Pull(ctx context.Context, root Key) error {
	if m.fetch == nil {
		return fmt.Errorf("depot: pull: no fetcher configured")
	}
	return m.pullNode(ctx, nil, root)
}

func (m *Merger) pullNode(ctx context.Context, path []string, key Key) error {
	has, err := m.d.HasNode(ctx, key)
	if err != nil {
		return err
	}
	if has {
		// Referential integrity at put time guarantees the whole
		// subtree below a present node is present.
		return nil
	}

	data, err := m.fetch.FetchNode(ctx, path)
	if err != nil {
		return fmt.Errorf("depot: pull %v: %w", path, err)
	}
	if data == nil {
		return fmt.Errorf("depot: pull %v: node %s unavailable", path, key)
	}
	if !VerifyKey(m.d.keys, key, data) {
		return fmt.Errorf("depot: pull %v: fetched bytes do not hash to %s", path, key)
	}

	node, err := DecodeNode(data)
	if err != nil {
		return fmt.Errorf("depot: pull %v: %w", path, err)
	}

	if node.Kind == KindDict && len(node.Entries) > 0 {
		p := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(m.conc)
		for _, e := range node.Entries {
			childPath := append(append([]string{}, path...), e.Name)
			childKey := e.Key
			p.Go(func(ctx context.Context) error {
				return m.pullNode(ctx, childPath, childKey)
			})
		}
		if err := p.Wait(); err != nil {
			return err
		}
	}

	return m.d.PutNode(ctx, key, data)
}

// Apply rewrites the paths touched by ops bottom-up through the codec,
// producing the merged root key. Every key referenced by an op must
// already be stored (Pull guarantees this for merge output).
func (m *Merger) Apply(ctx context.Context, ours Key, ops []MergeOp) (Key, error) {
	if len(ops) == 0 {
		return ours, nil
	}

	tl := &treeLoader{d: m.d, cache: make(map[Key]*Node)}
	root, err := newWorkDir(ctx, tl, ours)
	if err != nil {
		return ZeroKey, fmt.Errorf("depot: apply: %w", err)
	}

	for _, op := range ops {
		if len(op.Path) == 0 {
			return ZeroKey, fmt.Errorf("depot: apply: op with empty path")
		}
		dir := root
		for _, comp := range op.Path[:len(op.Path)-1] {
			dir, err = dir.descend(ctx, tl, comp)
			if err != nil {
				return ZeroKey, fmt.Errorf("depot: apply %v: %w", op.Path, err)
			}
		}
		name := op.Path[len(op.Path)-1]
		switch op.Kind {
		case OpPut:
			dir.set(name, op.Key)
		case OpRemove:
			dir.remove(name)
		default:
			return ZeroKey, fmt.Errorf("depot: apply %v: unknown op kind %d", op.Path, op.Kind)
		}
	}

	return root.write(ctx, m.d)
}

// MergeRoots runs the full pull → merge → apply pipeline and returns
// the merged root. ok is false whenever any phase fails; the caller is
// expected to fall back to whole-root last-writer-wins rather than
// treat that as fatal. A partially merged root is never returned.
func (m *Merger) MergeRoots(ctx context.Context, in MergeInput) (result Key, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("merge panicked, falling back", zap.Any("panic", r))
			result, ok = ZeroKey, false
		}
	}()

	if in.Theirs == in.Ours {
		return in.Ours, true
	}

	if err := m.Pull(ctx, in.Theirs); err != nil {
		m.log.Warn("pull failed, merge not attempted", zap.Error(err))
		return ZeroKey, false
	}

	ops, err := m.Merge(ctx, in)
	if err != nil {
		m.log.Warn("merge failed", zap.Error(err))
		return ZeroKey, false
	}
	if len(ops) == 0 {
		return in.Ours, true
	}

	merged, err := m.Apply(ctx, in.Ours, ops)
	if err != nil {
		m.log.Warn("apply failed", zap.Error(err))
		return ZeroKey, false
	}

	m.log.Info("merged",
		zap.Stringer("ours", in.Ours),
		zap.Stringer("theirs", in.Theirs),
		zap.Stringer("result", merged),
		zap.Int("ops", len(ops)))
	return merged, true
}

// workDir is a mutable in-memory view of one directory level during
// apply. Only levels on an op path are ever materialized.
type workDir struct {
	entries map[string]Key
	subs    map[string]*workDir
}

func newWorkDir(ctx context.Context, tl *treeLoader, key Key) (*workDir, error) {
	node, err := tl.loadDict(ctx, key)
	if err != nil {
		return nil, err
	}
	w := &workDir{
		entries: entryMap(node),
		subs:    make(map[string]*workDir),
	}
	if w.entries == nil {
		w.entries = make(map[string]Key)
	}
	return w, nil
}

func (w *workDir) descend(ctx context.Context, tl *treeLoader, name string) (*workDir, error) {
	if sub, found := w.subs[name]; found {
		return sub, nil
	}
	key, found := w.entries[name]
	if !found {
		return nil, fmt.Errorf("no entry %q", name)
	}
	sub, err := newWorkDir(ctx, tl, key)
	if err != nil {
		return nil, err
	}
	w.subs[name] = sub
	return sub, nil
}

func (w *workDir) set(name string, key Key) {
	w.entries[name] = key
	delete(w.subs, name)
}

func (w *workDir) remove(name string) {
	delete(w.entries, name)
	delete(w.subs, name)
}

// write re-encodes modified levels bottom-up, storing each rewritten
// dict before its parent references it.
func (w *workDir) write(ctx context.Context, d *Depot) (Key, error) {
	for name, sub := range w.subs {
		key, err := sub.write(ctx, d)
		if err != nil {
			return ZeroKey, err
		}
		w.entries[name] = key
	}

	entries := make([]Entry, 0, len(w.entries))
	for name, key := range w.entries {
		entries = append(entries, Entry{Name: name, Key: key})
	}
	data, key, err := EncodeDictNode(entries, d.keys)
	if err != nil {
		return ZeroKey, fmt.Errorf("depot: apply: encode dict: %w", err)
	}
	if err := d.PutNode(ctx, key, data); err != nil {
		return ZeroKey, fmt.Errorf("depot: apply: store dict: %w", err)
	}
	return key, nil
}
