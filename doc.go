// Package depot provides a content-addressed, hash-verified DAG store
// with garbage collection and offline-friendly three-way merge.
//
// Nodes are immutable and identified by a 128-bit keyed hash of their
// canonical encoding. A node is either a dict (ordered named references
// to child nodes) or a file (raw payload with a content type). Writing
// a dict whose children are not already stored is rejected, so every
// stored node's reachable closure is always complete.
//
// Basic usage:
//
//	d, _ := depot.Open("/var/lib/depot")
//
//	// Store a file node
//	data, key, _ := depot.EncodeFileNode(content, "text/plain", d.Keys())
//	_ = d.PutNode(ctx, key, data)
//
//	// Store a dict referencing it
//	data, root, _ := depot.EncodeDictNode([]depot.Entry{{Name: "a.txt", Key: key}}, d.Keys())
//	_ = d.PutNode(ctx, root, data)
//
//	// Collect garbage not reachable from root
//	_ = d.GC(ctx, []depot.Key{root}, time.Now())
//
//	stats, _ := d.Info(ctx)
//	fmt.Println(stats.NodeCount, stats.TotalBytes)
//
// Divergent trees are reconciled per-entry with a three-way merge:
//
//	m := depot.NewMerger(d, fetcher)
//	newRoot, ok := m.MergeRoots(ctx, depot.MergeInput{
//		Base: base, Ours: ours, Theirs: theirs,
//		OursAt: t1, TheirsAt: t2,
//	})
//
// Authorization for callers is modeled by the delegate subpackage: a
// tree of strictly-attenuating capability grants validated without I/O.
package depot
