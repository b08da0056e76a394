package depot

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/driftlock/depot/internal/compression"
	"github.com/driftlock/depot/internal/store"
)

// Storage namespaces layered over the flat provider key space.
const (
	objectPrefix = "objects/"
	metaPrefix   = "meta/"
	refPrefix    = "refs/"
	lastGCKey    = "sys/lastgc"
)

// Depot is the mutation and query surface over a storage provider and
// a key provider. It is request-scoped and stateless between calls:
// every operation may run concurrently with any other, and the storage
// provider is the sole point of concurrency control.
type Depot struct {
	st    store.Store
	keys  KeyProvider
	log   *zap.Logger
	clock func() time.Time
}

// NodeRecord is a stored node as returned by GetNode.
type NodeRecord struct {
	Key  Key
	Body []byte
}

// Stats describes the store contents.
type Stats struct {
	NodeCount  int
	TotalBytes int64
	LastGC     time.Time // zero until the first GC
}

// Open creates or opens a filesystem-backed depot rooted at dir.
func Open(dir string, opts ...Option) (*Depot, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	if options.KeyProvider == nil {
		return nil, fmt.Errorf("depot: invalid hash key (want %d bytes)", HashKeySize)
	}

	comp := compression.Disabled()
	if options.Compression {
		var err error
		comp, err = compression.New(options.CompressionLevel)
		if err != nil {
			return nil, fmt.Errorf("depot: create compressor: %w", err)
		}
	}

	base := afero.NewBasePathFs(afero.NewOsFs(), dir)
	if err := base.MkdirAll(".", 0o755); err != nil {
		return nil, fmt.Errorf("depot: create %s: %w", dir, err)
	}

	st := store.NewFS(base, options.CacheSize, comp)
	return newDepot(st, options), nil
}

// New creates a depot over a caller-supplied storage provider.
func New(st store.Store, opts ...Option) (*Depot, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	if options.KeyProvider == nil {
		return nil, fmt.Errorf("depot: invalid hash key (want %d bytes)", HashKeySize)
	}
	return newDepot(st, options), nil
}

// OpenMemory creates an in-memory depot. Useful for tests and as the
// local side of merge scenarios.
func OpenMemory(opts ...Option) (*Depot, error) {
	return New(store.NewMemory(), opts...)
}

func newDepot(st store.Store, options *Options) *Depot {
	return &Depot{
		st:    st,
		keys:  options.KeyProvider,
		log:   options.Logger.Named("depot"),
		clock: options.Clock,
	}
}

// Keys returns the depot's key provider, for encoding nodes destined
// for this store.
func (d *Depot) Keys() KeyProvider { return d.keys }

// PutNode stores canonically encoded node bytes under their content
// key. The bytes must decode and must hash to key. For a dict node,
// every referenced child must already be stored; a missing child
// rejects the write entirely, leaving storage unchanged. Re-putting an
// existing key is an idempotent no-op.
func (d *Depot) PutNode(ctx context.Context, key Key, data []byte) error {
	ok, err := d.HasNode(ctx, key)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	if !VerifyKey(d.keys, key, data) {
		return ErrKeyMismatch
	}

	node, err := DecodeNode(data)
	if err != nil {
		return err
	}

	if node.Kind == KindDict {
		for _, e := range node.Entries {
			has, err := d.HasNode(ctx, e.Key)
			if err != nil {
				return err
			}
			if !has {
				return &ChildMissingError{Parent: key, Child: e.Key, Name: e.Name}
			}
		}
	}

	if err := d.st.Put(ctx, objectPrefix+key.String(), data); err != nil {
		return fmt.Errorf("depot: put node %s: %w", key, err)
	}
	if err := d.st.Put(ctx, metaPrefix+key.String(), encodeMeta(d.clock(), len(data))); err != nil {
		return fmt.Errorf("depot: put node meta %s: %w", key, err)
	}

	d.log.Debug("node stored",
		zap.Stringer("key", key),
		zap.Int("bytes", len(data)),
		zap.Uint8("kind", uint8(node.Kind)))
	return nil
}

// GetNode retrieves a node by key. Absent nodes return (nil, nil).
func (d *Depot) GetNode(ctx context.Context, key Key) (*NodeRecord, error) {
	data, err := d.st.Get(ctx, objectPrefix+key.String())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("depot: get node %s: %w", key, err)
	}
	return &NodeRecord{Key: key, Body: data}, nil
}

// HasNode checks whether a node is stored.
func (d *Depot) HasNode(ctx context.Context, key Key) (bool, error) {
	return d.st.Has(ctx, objectPrefix+key.String())
}

// loadNode fetches and decodes a node. Absent nodes return (nil, nil).
func (d *Depot) loadNode(ctx context.Context, key Key) (*Node, error) {
	rec, err := d.GetNode(ctx, key)
	if err != nil || rec == nil {
		return nil, err
	}
	node, err := DecodeNode(rec.Body)
	if err != nil {
		return nil, fmt.Errorf("depot: node %s: %w", key, err)
	}
	return node, nil
}

// GC deletes every stored node that is not reachable from roots and
// was written strictly before cutoff. Nodes written at or after cutoff
// are retained even when unreachable, protecting writes racing with
// the pass; callers should pick a cutoff no later than the start of
// the pass. GC is idempotent and safe to re-run after a crash.
func (d *Depot) GC(ctx context.Context, roots []Key, cutoff time.Time) error {
	reachable, err := d.mark(ctx, roots)
	if err != nil {
		return err
	}

	objects, err := d.st.Keys(ctx, objectPrefix)
	if err != nil {
		return fmt.Errorf("depot: gc: list objects: %w", err)
	}

	var swept int
	for _, sk := range objects {
		if err := ctx.Err(); err != nil {
			return err
		}
		key, err := ParseKey(strings.TrimPrefix(sk, objectPrefix))
		if err != nil {
			d.log.Warn("gc: skipping foreign object key", zap.String("storageKey", sk))
			continue
		}
		if _, ok := reachable[key]; ok {
			continue
		}
		if !d.writeTime(ctx, key).Before(cutoff) {
			continue
		}
		if err := d.st.Delete(ctx, objectPrefix+key.String()); err != nil {
			return fmt.Errorf("depot: gc: delete %s: %w", key, err)
		}
		if err := d.st.Delete(ctx, metaPrefix+key.String()); err != nil {
			return fmt.Errorf("depot: gc: delete meta %s: %w", key, err)
		}
		swept++
	}

	now := d.clock()
	if err := d.st.Put(ctx, lastGCKey, encodeMillis(now)); err != nil {
		return fmt.Errorf("depot: gc: record pass time: %w", err)
	}

	d.log.Info("gc pass complete",
		zap.Int("roots", len(roots)),
		zap.Int("reachable", len(reachable)),
		zap.Int("swept", swept))
	return nil
}

// mark computes reachability with an explicit worklist: no recursion,
// each key visited once, so a pass stays linear in node count.
func (d *Depot) mark(ctx context.Context, roots []Key) (map[Key]struct{}, error) {
	reachable := make(map[Key]struct{}, len(roots))
	worklist := make([]Key, 0, len(roots))
	for _, r := range roots {
		if _, ok := reachable[r]; !ok {
			reachable[r] = struct{}{}
			worklist = append(worklist, r)
		}
	}

	for len(worklist) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		key := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		node, err := d.loadNode(ctx, key)
		if err != nil {
			// A node that fails to decode cannot be traversed, but it
			// stays marked so the sweep never deletes its referents
			// out from under it.
			d.log.Warn("gc: unreadable node during mark", zap.Stringer("key", key), zap.Error(err))
			continue
		}
		if node == nil {
			// Already-deleted child; tolerated and skipped.
			continue
		}
		if node.Kind != KindDict {
			continue
		}
		for _, e := range node.Entries {
			if _, ok := reachable[e.Key]; !ok {
				reachable[e.Key] = struct{}{}
				worklist = append(worklist, e.Key)
			}
		}
	}
	return reachable, nil
}

// Info reports store statistics. LastGC stays zero until the first
// completed GC pass.
func (d *Depot) Info(ctx context.Context) (Stats, error) {
	metas, err := d.st.Keys(ctx, metaPrefix)
	if err != nil {
		return Stats{}, fmt.Errorf("depot: info: %w", err)
	}

	var stats Stats
	for _, mk := range metas {
		raw, err := d.st.Get(ctx, mk)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue // swept concurrently
			}
			return Stats{}, fmt.Errorf("depot: info: %w", err)
		}
		_, size := decodeMeta(raw)
		stats.NodeCount++
		stats.TotalBytes += size
	}

	if raw, err := d.st.Get(ctx, lastGCKey); err == nil {
		stats.LastGC = decodeMillis(raw)
	} else if !errors.Is(err, store.ErrNotFound) {
		return Stats{}, fmt.Errorf("depot: info: %w", err)
	}

	return stats, nil
}

// writeTime returns a node's recorded write time, or the zero time when
// no meta record survives (treated as arbitrarily old).
func (d *Depot) writeTime(ctx context.Context, key Key) time.Time {
	raw, err := d.st.Get(ctx, metaPrefix+key.String())
	if err != nil {
		return time.Time{}
	}
	t, _ := decodeMeta(raw)
	return t
}

// Meta record: write time in unix millis (8 bytes) + object size (8
// bytes), big-endian.

func encodeMeta(t time.Time, size int) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf, uint64(t.UnixMilli()))
	binary.BigEndian.PutUint64(buf[8:], uint64(size))
	return buf
}

func decodeMeta(raw []byte) (time.Time, int64) {
	if len(raw) < 16 {
		return time.Time{}, 0
	}
	millis := int64(binary.BigEndian.Uint64(raw))
	size := int64(binary.BigEndian.Uint64(raw[8:]))
	return time.UnixMilli(millis), size
}

func encodeMillis(t time.Time) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(t.UnixMilli()))
	return buf
}

func decodeMillis(raw []byte) time.Time {
	if len(raw) < 8 {
		return time.Time{}
	}
	return time.UnixMilli(int64(binary.BigEndian.Uint64(raw)))
}
