package depot

import (
	"context"
	"fmt"
)

// Tree helpers build and navigate dict trees on top of the node
// operations. Every edit produces a new root: existing nodes are never
// mutated, and each rewritten level is stored before its parent
// references it.

// EmptyDict stores (idempotently) and returns the canonical empty dict.
func (d *Depot) EmptyDict(ctx context.Context) (Key, error) {
	data, key, err := EncodeDictNode(nil, d.keys)
	if err != nil {
		return ZeroKey, err
	}
	if err := d.PutNode(ctx, key, data); err != nil {
		return ZeroKey, err
	}
	return key, nil
}

// SetEntry returns a new root with the node at path set to key,
// creating intermediate dicts as needed. A zero root starts from an
// empty tree.
func (d *Depot) SetEntry(ctx context.Context, root Key, path []string, key Key) (Key, error) {
	if len(path) == 0 {
		return ZeroKey, fmt.Errorf("depot: set entry: empty path")
	}
	return d.editEntry(ctx, root, path, key)
}

// RemoveEntry returns a new root without the entry at path. A missing
// path returns ErrNotFound.
func (d *Depot) RemoveEntry(ctx context.Context, root Key, path []string) (Key, error) {
	if len(path) == 0 {
		return ZeroKey, fmt.Errorf("depot: remove entry: empty path")
	}
	return d.editEntry(ctx, root, path, ZeroKey)
}

// editEntry rewrites the spine from root down to path, setting the
// final entry to key (or removing it when key is zero).
func (d *Depot) editEntry(ctx context.Context, root Key, path []string, key Key) (Key, error) {
	entries := make(map[string]Key)
	if !root.IsZero() {
		node, err := d.loadNode(ctx, root)
		if err != nil {
			return ZeroKey, err
		}
		if node == nil {
			return ZeroKey, fmt.Errorf("depot: edit %v: root %s: %w", path, root, ErrNotFound)
		}
		if node.Kind != KindDict {
			return ZeroKey, fmt.Errorf("depot: edit %v: %s is not a dict", path, root)
		}
		for _, e := range node.Entries {
			entries[e.Name] = e.Key
		}
	}

	name := path[0]
	if len(path) == 1 {
		if key.IsZero() {
			if _, found := entries[name]; !found {
				return ZeroKey, fmt.Errorf("depot: remove %q: %w", name, ErrNotFound)
			}
			delete(entries, name)
		} else {
			entries[name] = key
		}
	} else {
		child := entries[name] // zero when absent: creates the dict
		if key.IsZero() && child.IsZero() {
			return ZeroKey, fmt.Errorf("depot: remove %v: %w", path, ErrNotFound)
		}
		newChild, err := d.editEntry(ctx, child, path[1:], key)
		if err != nil {
			return ZeroKey, err
		}
		entries[name] = newChild
	}

	list := make([]Entry, 0, len(entries))
	for n, k := range entries {
		list = append(list, Entry{Name: n, Key: k})
	}
	data, newRoot, err := EncodeDictNode(list, d.keys)
	if err != nil {
		return ZeroKey, err
	}
	if err := d.PutNode(ctx, newRoot, data); err != nil {
		return ZeroKey, err
	}
	return newRoot, nil
}

// Resolve navigates a path from root and returns the key and decoded
// node it lands on. A missing path component returns ErrNotFound.
func (d *Depot) Resolve(ctx context.Context, root Key, path []string) (Key, *Node, error) {
	key := root
	for _, name := range path {
		node, err := d.loadNode(ctx, key)
		if err != nil {
			return ZeroKey, nil, err
		}
		if node == nil {
			return ZeroKey, nil, fmt.Errorf("depot: resolve %v: node %s: %w", path, key, ErrNotFound)
		}
		if node.Kind != KindDict {
			return ZeroKey, nil, fmt.Errorf("depot: resolve %v: %q is not a dict", path, name)
		}
		entry, found := node.Entry(name)
		if !found {
			return ZeroKey, nil, fmt.Errorf("depot: resolve %v: %q: %w", path, name, ErrNotFound)
		}
		key = entry.Key
	}

	node, err := d.loadNode(ctx, key)
	if err != nil {
		return ZeroKey, nil, err
	}
	if node == nil {
		return ZeroKey, nil, fmt.Errorf("depot: resolve %v: node %s: %w", path, key, ErrNotFound)
	}
	return key, node, nil
}
