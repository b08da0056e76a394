package depot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepClock is a manually advanced clock for write-timestamp tests.
type stepClock struct {
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *stepClock) Now() time.Time          { return c.now }
func (c *stepClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestDepot(t *testing.T, opts ...Option) *Depot {
	t.Helper()
	d, err := OpenMemory(opts...)
	require.NoError(t, err)
	return d
}

func putFile(t *testing.T, d *Depot, content string) Key {
	t.Helper()
	ctx := context.Background()
	data, key, err := EncodeFileNode([]byte(content), "text/plain", d.Keys())
	require.NoError(t, err)
	require.NoError(t, d.PutNode(ctx, key, data))
	return key
}

func putDict(t *testing.T, d *Depot, entries map[string]Key) Key {
	t.Helper()
	ctx := context.Background()
	list := make([]Entry, 0, len(entries))
	for name, key := range entries {
		list = append(list, Entry{Name: name, Key: key})
	}
	data, key, err := EncodeDictNode(list, d.Keys())
	require.NoError(t, err)
	require.NoError(t, d.PutNode(ctx, key, data))
	return key
}

func TestPutGetHasNode(t *testing.T) {
	d := newTestDepot(t)
	ctx := context.Background()

	data, key, err := EncodeFileNode([]byte("content"), "text/plain", d.Keys())
	require.NoError(t, err)

	has, err := d.HasNode(ctx, key)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, d.PutNode(ctx, key, data))

	has, err = d.HasNode(ctx, key)
	require.NoError(t, err)
	assert.True(t, has)

	rec, err := d.GetNode(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, key, rec.Key)
	assert.Equal(t, data, rec.Body)
}

func TestGetNodeAbsent(t *testing.T) {
	d := newTestDepot(t)

	rec, err := d.GetNode(context.Background(), NewPlainProvider().ComputeKey([]byte("nope")))
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestPutNodeKeyMismatch(t *testing.T) {
	d := newTestDepot(t)
	ctx := context.Background()

	data, _, err := EncodeFileNode([]byte("content"), "", d.Keys())
	require.NoError(t, err)
	wrong := d.Keys().ComputeKey([]byte("something else"))

	err = d.PutNode(ctx, wrong, data)
	require.ErrorIs(t, err, ErrKeyMismatch)

	has, err := d.HasNode(ctx, wrong)
	require.NoError(t, err)
	assert.False(t, has, "rejected write must not land")
}

func TestPutNodeRejectsUndecodable(t *testing.T) {
	d := newTestDepot(t)

	// Correct key over bytes that are not a valid node encoding.
	garbage := []byte{0xff, 0x01, 0x02}
	key := keyForEncoded(d.Keys(), garbage)

	err := d.PutNode(context.Background(), key, garbage)
	require.Error(t, err)
	assert.True(t, IsDecodeError(err))
}

func TestPutNodeChildMissing(t *testing.T) {
	d := newTestDepot(t)
	ctx := context.Background()

	stored := putFile(t, d, "present")
	absent := d.Keys().ComputeKey([]byte("never stored"))

	data, key, err := EncodeDictNode([]Entry{
		{Name: "here", Key: stored},
		{Name: "gone", Key: absent},
	}, d.Keys())
	require.NoError(t, err)

	err = d.PutNode(ctx, key, data)
	require.Error(t, err)
	require.True(t, IsChildMissing(err))

	var cm *ChildMissingError
	require.ErrorAs(t, err, &cm)
	assert.Equal(t, key, cm.Parent)
	assert.Equal(t, absent, cm.Child)
	assert.Equal(t, "gone", cm.Name)

	// Rejection is atomic: no partial parent write.
	has, err := d.HasNode(ctx, key)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestPutNodeIdempotent(t *testing.T) {
	clk := newStepClock()
	d := newTestDepot(t, WithClock(clk.Now))
	ctx := context.Background()

	data, key, err := EncodeFileNode([]byte("once"), "", d.Keys())
	require.NoError(t, err)
	require.NoError(t, d.PutNode(ctx, key, data))
	first := d.writeTime(ctx, key)

	clk.Advance(time.Hour)
	require.NoError(t, d.PutNode(ctx, key, data))

	// The second put is a no-op: the original write time survives.
	assert.Equal(t, first, d.writeTime(ctx, key))
}

func TestGCSweepsUnreachable(t *testing.T) {
	clk := newStepClock()
	d := newTestDepot(t, WithClock(clk.Now))
	ctx := context.Background()

	kept := putFile(t, d, "kept")
	root := putDict(t, d, map[string]Key{"kept": kept})
	orphan := putFile(t, d, "orphan")

	clk.Advance(time.Hour)
	require.NoError(t, d.GC(ctx, []Key{root}, clk.Now()))

	for _, tc := range []struct {
		key  Key
		want bool
	}{
		{root, true},
		{kept, true},
		{orphan, false},
	} {
		has, err := d.HasNode(ctx, tc.key)
		require.NoError(t, err)
		assert.Equal(t, tc.want, has, "key %s", tc.key)
	}
}

func TestGCKeepsSharedChildren(t *testing.T) {
	clk := newStepClock()
	d := newTestDepot(t, WithClock(clk.Now))
	ctx := context.Background()

	shared := putFile(t, d, "shared")
	liveRoot := putDict(t, d, map[string]Key{"f": shared})
	deadRoot := putDict(t, d, map[string]Key{"f": shared, "extra": putFile(t, d, "extra")})

	clk.Advance(time.Hour)
	require.NoError(t, d.GC(ctx, []Key{liveRoot}, clk.Now()))

	has, err := d.HasNode(ctx, shared)
	require.NoError(t, err)
	assert.True(t, has, "child of a live root survives even when a dead root also pointed at it")

	has, err = d.HasNode(ctx, deadRoot)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestGCRetentionCutoff(t *testing.T) {
	clk := newStepClock()
	d := newTestDepot(t, WithClock(clk.Now))
	ctx := context.Background()

	old := putFile(t, d, "written before cutoff")
	clk.Advance(time.Minute)
	cutoff := clk.Now()
	atCutoff := putFile(t, d, "written exactly at cutoff")
	clk.Advance(time.Minute)
	recent := putFile(t, d, "written after cutoff")

	require.NoError(t, d.GC(ctx, nil, cutoff))

	has, err := d.HasNode(ctx, old)
	require.NoError(t, err)
	assert.False(t, has, "unreachable and strictly older than cutoff")

	has, err = d.HasNode(ctx, atCutoff)
	require.NoError(t, err)
	assert.True(t, has, "written at the cutoff instant is retained")

	has, err = d.HasNode(ctx, recent)
	require.NoError(t, err)
	assert.True(t, has, "written after the cutoff is retained")
}

func TestGCEmptyDictRoot(t *testing.T) {
	clk := newStepClock()
	d := newTestDepot(t, WithClock(clk.Now))
	ctx := context.Background()

	empty, err := d.EmptyDict(ctx)
	require.NoError(t, err)
	reachable := putFile(t, d, "reachable")
	root := putDict(t, d, map[string]Key{"e": empty, "f": reachable})
	orphan := putFile(t, d, "orphan")

	clk.Advance(time.Hour)
	require.NoError(t, d.GC(ctx, []Key{root}, clk.Now()))

	for _, k := range []Key{root, empty, reachable} {
		has, err := d.HasNode(ctx, k)
		require.NoError(t, err)
		assert.True(t, has)
	}
	has, err := d.HasNode(ctx, orphan)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestGCSecondPassNoop(t *testing.T) {
	clk := newStepClock()
	d := newTestDepot(t, WithClock(clk.Now))
	ctx := context.Background()

	root := putDict(t, d, map[string]Key{"f": putFile(t, d, "f")})
	putFile(t, d, "orphan")

	clk.Advance(time.Hour)
	cutoff := clk.Now()
	require.NoError(t, d.GC(ctx, []Key{root}, cutoff))

	before, err := d.Info(ctx)
	require.NoError(t, err)

	require.NoError(t, d.GC(ctx, []Key{root}, cutoff))
	after, err := d.Info(ctx)
	require.NoError(t, err)

	assert.Equal(t, before.NodeCount, after.NodeCount)
	assert.Equal(t, before.TotalBytes, after.TotalBytes)
}

func TestInfo(t *testing.T) {
	clk := newStepClock()
	d := newTestDepot(t, WithClock(clk.Now))
	ctx := context.Background()

	stats, err := d.Info(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.NodeCount)
	assert.Zero(t, stats.TotalBytes)
	assert.True(t, stats.LastGC.IsZero())

	data1, k1, err := EncodeFileNode([]byte("first"), "", d.Keys())
	require.NoError(t, err)
	require.NoError(t, d.PutNode(ctx, k1, data1))
	data2, k2, err := EncodeFileNode([]byte("second file"), "", d.Keys())
	require.NoError(t, err)
	require.NoError(t, d.PutNode(ctx, k2, data2))

	stats, err = d.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.NodeCount)
	assert.Equal(t, int64(len(data1)+len(data2)), stats.TotalBytes)

	require.NoError(t, d.GC(ctx, []Key{k1, k2}, clk.Now()))
	stats, err = d.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, clk.Now().UnixMilli(), stats.LastGC.UnixMilli())
}

func TestRefs(t *testing.T) {
	d := newTestDepot(t)
	ctx := context.Background()

	_, err := d.GetRef(ctx, "main")
	require.ErrorIs(t, err, ErrNotFound)

	key := putFile(t, d, "tree root")
	require.NoError(t, d.PutRef(ctx, "main", key))
	require.NoError(t, d.PutRef(ctx, "backup", key))

	got, err := d.GetRef(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, key, got)

	names, err := d.Refs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"backup", "main"}, names)

	require.NoError(t, d.DeleteRef(ctx, "main"))
	_, err = d.GetRef(ctx, "main")
	require.ErrorIs(t, err, ErrNotFound)

	// Deleting twice stays a no-op.
	require.NoError(t, d.DeleteRef(ctx, "main"))
}

func TestRefNameValidation(t *testing.T) {
	d := newTestDepot(t)
	ctx := context.Background()
	key := putFile(t, d, "x")

	for _, name := range []string{"", "a/b", `a\b`, ".hidden"} {
		require.Error(t, d.PutRef(ctx, name, key), "name %q", name)
	}
}

func TestOpenRejectsBadHashKey(t *testing.T) {
	_, err := OpenMemory(WithHashKey([]byte("short")))
	require.Error(t, err)
}

func TestKeyedDepotsDisagree(t *testing.T) {
	secret := make([]byte, HashKeySize)
	secret[31] = 7

	plain := newTestDepot(t)
	keyed := newTestDepot(t, WithHashKey(secret))
	ctx := context.Background()

	data, key, err := EncodeFileNode([]byte("content"), "", plain.Keys())
	require.NoError(t, err)
	require.NoError(t, plain.PutNode(ctx, key, data))

	// The same bytes hash differently under the keyed provider, so the
	// plain key is rejected there.
	err = keyed.PutNode(ctx, key, data)
	require.ErrorIs(t, err, ErrKeyMismatch)
}
