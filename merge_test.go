package depot

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildTree stores a tree from slash-separated paths to file contents
// and returns its root.
func buildTree(t *testing.T, d *Depot, files map[string]string) Key {
	t.Helper()
	ctx := context.Background()
	root := ZeroKey
	var err error
	for path, content := range files {
		file := putFile(t, d, content)
		root, err = d.SetEntry(ctx, root, strings.Split(path, "/"), file)
		require.NoError(t, err)
	}
	return root
}

// treeFiles flattens a stored tree back to path → content.
func treeFiles(t *testing.T, d *Depot, root Key) map[string]string {
	t.Helper()
	ctx := context.Background()
	files := make(map[string]string)

	var walk func(key Key, prefix string)
	walk = func(key Key, prefix string) {
		node, err := d.loadNode(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, node)
		if node.Kind == KindFile {
			files[strings.TrimPrefix(prefix, "/")] = string(node.Data)
			return
		}
		for _, e := range node.Entries {
			walk(e.Key, prefix+"/"+e.Name)
		}
	}
	walk(root, "")
	return files
}

func mergeTimes(oursNewer bool) (ours, theirs time.Time) {
	t0 := time.UnixMilli(1_700_000_000_000)
	if oursNewer {
		return t0.Add(time.Minute), t0
	}
	return t0, t0.Add(time.Minute)
}

func TestMergeIdenticalRoots(t *testing.T) {
	d := newTestDepot(t)
	root := buildTree(t, d, map[string]string{"a": "1"})

	m := NewMerger(d, nil)
	ops, err := m.Merge(context.Background(), MergeInput{Base: root, Ours: root, Theirs: root})
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestMergeTakesTheirsOnlyChange(t *testing.T) {
	d := newTestDepot(t)
	ctx := context.Background()

	base := buildTree(t, d, map[string]string{"a": "1"})
	added := putFile(t, d, "2")
	theirs, err := d.SetEntry(ctx, base, []string{"b"}, added)
	require.NoError(t, err)

	m := NewMerger(d, nil)
	ops, err := m.Merge(ctx, MergeInput{Base: base, Ours: base, Theirs: theirs})
	require.NoError(t, err)

	require.Len(t, ops, 1)
	assert.Equal(t, OpPut, ops[0].Kind)
	assert.Equal(t, []string{"b"}, ops[0].Path)
	assert.Equal(t, added, ops[0].Key)
}

func TestMergeOursStands(t *testing.T) {
	d := newTestDepot(t)
	ctx := context.Background()

	base := buildTree(t, d, map[string]string{"a": "1"})
	ours, err := d.SetEntry(ctx, base, []string{"b"}, putFile(t, d, "2"))
	require.NoError(t, err)

	m := NewMerger(d, nil)
	ops, err := m.Merge(ctx, MergeInput{Base: base, Ours: ours, Theirs: base})
	require.NoError(t, err)
	assert.Empty(t, ops, "a change only on our side needs no ops")
}

func TestMergeRemovePropagates(t *testing.T) {
	d := newTestDepot(t)
	ctx := context.Background()

	base := buildTree(t, d, map[string]string{"a": "1", "b": "2"})
	theirs, err := d.RemoveEntry(ctx, base, []string{"b"})
	require.NoError(t, err)

	m := NewMerger(d, nil)
	ops, err := m.Merge(ctx, MergeInput{Base: base, Ours: base, Theirs: theirs})
	require.NoError(t, err)

	require.Len(t, ops, 1)
	assert.Equal(t, OpRemove, ops[0].Kind)
	assert.Equal(t, []string{"b"}, ops[0].Path)
}

func TestMergeConflictLastWriterWins(t *testing.T) {
	d := newTestDepot(t)
	ctx := context.Background()

	base := buildTree(t, d, map[string]string{"a": "base"})
	oursFile := putFile(t, d, "ours")
	theirsFile := putFile(t, d, "theirs")
	ours, err := d.SetEntry(ctx, base, []string{"a"}, oursFile)
	require.NoError(t, err)
	theirs, err := d.SetEntry(ctx, base, []string{"a"}, theirsFile)
	require.NoError(t, err)

	m := NewMerger(d, nil)

	oursAt, theirsAt := mergeTimes(false) // theirs newer
	ops, err := m.Merge(ctx, MergeInput{
		Base: base, Ours: ours, Theirs: theirs,
		OursAt: oursAt, TheirsAt: theirsAt,
	})
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, theirsFile, ops[0].Key)

	oursAt, theirsAt = mergeTimes(true) // ours newer
	ops, err = m.Merge(ctx, MergeInput{
		Base: base, Ours: ours, Theirs: theirs,
		OursAt: oursAt, TheirsAt: theirsAt,
	})
	require.NoError(t, err)
	assert.Empty(t, ops, "our newer write stands")
}

func TestMergeTieBreak(t *testing.T) {
	d := newTestDepot(t)
	ctx := context.Background()

	base := buildTree(t, d, map[string]string{"a": "base"})
	ours, err := d.SetEntry(ctx, base, []string{"a"}, putFile(t, d, "ours"))
	require.NoError(t, err)
	theirsFile := putFile(t, d, "theirs")
	theirs, err := d.SetEntry(ctx, base, []string{"a"}, theirsFile)
	require.NoError(t, err)

	at := time.UnixMilli(1_700_000_000_000)
	in := MergeInput{Base: base, Ours: ours, Theirs: theirs, OursAt: at, TheirsAt: at}

	ops, err := NewMerger(d, nil).Merge(ctx, in)
	require.NoError(t, err)
	assert.Empty(t, ops, "equal timestamps keep ours by default")

	ops, err = NewMerger(d, nil, WithTieBreak(TieTheirs)).Merge(ctx, in)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, theirsFile, ops[0].Key)
}

func TestMergeRecursesIntoDicts(t *testing.T) {
	d := newTestDepot(t)
	ctx := context.Background()

	// Both sides edit the same directory, touching different entries:
	// the conflict dissolves one level down.
	base := buildTree(t, d, map[string]string{"dir/a": "1", "dir/b": "2"})
	ours, err := d.SetEntry(ctx, base, []string{"dir", "a"}, putFile(t, d, "ours-a"))
	require.NoError(t, err)
	theirsB := putFile(t, d, "theirs-b")
	theirs, err := d.SetEntry(ctx, base, []string{"dir", "b"}, theirsB)
	require.NoError(t, err)

	oursAt, theirsAt := mergeTimes(true) // ours newer; must not matter here
	m := NewMerger(d, nil)
	ops, err := m.Merge(ctx, MergeInput{
		Base: base, Ours: ours, Theirs: theirs,
		OursAt: oursAt, TheirsAt: theirsAt,
	})
	require.NoError(t, err)

	require.Len(t, ops, 1)
	assert.Equal(t, []string{"dir", "b"}, ops[0].Path)
	assert.Equal(t, theirsB, ops[0].Key)

	merged, err := m.Apply(ctx, ours, ops)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"dir/a": "ours-a", "dir/b": "theirs-b"}, treeFiles(t, d, merged))
}

func TestMergeFileVsDictConflict(t *testing.T) {
	d := newTestDepot(t)
	ctx := context.Background()

	// Ours replaced the entry with a file, theirs with a dict: no
	// recursion possible, last writer takes the whole entry.
	base := buildTree(t, d, map[string]string{"x": "base"})
	ours, err := d.SetEntry(ctx, base, []string{"x"}, putFile(t, d, "ours file"))
	require.NoError(t, err)
	theirs := buildTree(t, d, map[string]string{"x/sub": "theirs"})
	theirsEntry, _, err := d.Resolve(ctx, theirs, []string{"x"})
	require.NoError(t, err)

	oursAt, theirsAt := mergeTimes(false) // theirs newer
	ops, err := NewMerger(d, nil).Merge(ctx, MergeInput{
		Base: base, Ours: ours, Theirs: theirs,
		OursAt: oursAt, TheirsAt: theirsAt,
	})
	require.NoError(t, err)

	require.Len(t, ops, 1)
	assert.Equal(t, OpPut, ops[0].Kind)
	assert.Equal(t, []string{"x"}, ops[0].Path)
	assert.Equal(t, theirsEntry, ops[0].Key)
}

func TestMergeWithoutBase(t *testing.T) {
	d := newTestDepot(t)
	ctx := context.Background()

	// No common ancestor: disjoint adds conflict entry-by-entry only
	// where names collide; elsewhere both survive.
	ours := buildTree(t, d, map[string]string{"mine": "1"})
	theirs := buildTree(t, d, map[string]string{"yours": "2"})

	oursAt, theirsAt := mergeTimes(true)
	m := NewMerger(d, nil)
	ops, err := m.Merge(ctx, MergeInput{
		Ours: ours, Theirs: theirs,
		OursAt: oursAt, TheirsAt: theirsAt,
	})
	require.NoError(t, err)

	merged, err := m.Apply(ctx, ours, ops)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"mine": "1", "yours": "2"}, treeFiles(t, d, merged))
}

func TestApplyEmptyOps(t *testing.T) {
	d := newTestDepot(t)
	root := buildTree(t, d, map[string]string{"a": "1"})

	got, err := NewMerger(d, nil).Apply(context.Background(), root, nil)
	require.NoError(t, err)
	assert.Equal(t, root, got)
}

func TestApplyPutAndRemove(t *testing.T) {
	d := newTestDepot(t)
	ctx := context.Background()

	root := buildTree(t, d, map[string]string{"dir/keep": "k", "dir/drop": "d"})
	newFile := putFile(t, d, "new")

	merged, err := NewMerger(d, nil).Apply(ctx, root, []MergeOp{
		{Path: []string{"dir", "drop"}, Kind: OpRemove},
		{Path: []string{"dir", "added"}, Kind: OpPut, Key: newFile},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"dir/keep": "k", "dir/added": "new"}, treeFiles(t, d, merged))

	// The original root is untouched.
	assert.Equal(t, map[string]string{"dir/keep": "k", "dir/drop": "d"}, treeFiles(t, d, root))
}
