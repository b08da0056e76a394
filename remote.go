package depot

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/driftlock/depot/internal/remote"
)

// Remote is the registry surface for whole-tree sync. Re-exported from
// internal/remote for convenience.
type Remote = remote.Remote

// Authenticator provides credentials for remote operations.
type Authenticator = remote.Authenticator

// NewOCIRemote creates a registry remote from an image ref. A nil auth
// falls back to the ambient keychain.
func NewOCIRemote(imageRef string, auth Authenticator, log *zap.Logger) (Remote, error) {
	if auth == nil {
		auth = remote.KeychainAuthenticator{}
	}
	return remote.NewOCIRemote(imageRef, auth, log)
}

// PushTree uploads the reachable closure of root to a remote.
func (d *Depot) PushTree(ctx context.Context, r Remote, root Key) error {
	objects, err := d.collectClosure(ctx, root)
	if err != nil {
		return err
	}
	return r.Push(ctx, root.String(), objects)
}

// PullTree downloads the remote's current tree into the depot and
// returns its root key. Nodes land children-first so referential
// integrity holds throughout.
func (d *Depot) PullTree(ctx context.Context, r Remote) (Key, error) {
	rootStr, objects, err := r.Pull(ctx)
	if err != nil {
		return ZeroKey, fmt.Errorf("depot: pull tree: %w", err)
	}
	root, err := ParseKey(rootStr)
	if err != nil {
		return ZeroKey, fmt.Errorf("depot: pull tree: remote root: %w", err)
	}
	if err := d.storeClosure(ctx, root, objects); err != nil {
		return ZeroKey, err
	}
	return root, nil
}

// collectClosure gathers all objects reachable from root, by key.
func (d *Depot) collectClosure(ctx context.Context, root Key) (map[string][]byte, error) {
	objects := make(map[string][]byte)
	worklist := []Key{root}

	for len(worklist) > 0 {
		key := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		if _, done := objects[key.String()]; done {
			continue
		}

		rec, err := d.GetNode(ctx, key)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, fmt.Errorf("depot: collect closure: node %s: %w", key, ErrNotFound)
		}
		objects[key.String()] = rec.Body

		node, err := DecodeNode(rec.Body)
		if err != nil {
			return nil, fmt.Errorf("depot: collect closure: node %s: %w", key, err)
		}
		if node.Kind == KindDict {
			for _, e := range node.Entries {
				worklist = append(worklist, e.Key)
			}
		}
	}
	return objects, nil
}

// storeClosure inserts a pulled object set children-first from root.
func (d *Depot) storeClosure(ctx context.Context, root Key, objects map[string][]byte) error {
	var insert func(key Key) error
	insert = func(key Key) error {
		has, err := d.HasNode(ctx, key)
		if err != nil {
			return err
		}
		if has {
			return nil
		}

		data, found := objects[key.String()]
		if !found {
			return fmt.Errorf("depot: store closure: node %s missing from pulled set", key)
		}
		node, err := DecodeNode(data)
		if err != nil {
			return fmt.Errorf("depot: store closure: node %s: %w", key, err)
		}
		if node.Kind == KindDict {
			for _, e := range node.Entries {
				if err := insert(e.Key); err != nil {
					return err
				}
			}
		}
		return d.PutNode(ctx, key, data)
	}
	return insert(root)
}

// MapFetcher serves NodeFetcher requests from a pulled in-memory
// object set, navigating by path from its root. Lets the merge pull
// phase run against a remote snapshot without a second round trip.
type MapFetcher struct {
	Root    Key
	Objects map[string][]byte
}

func (f MapFetcher) FetchNode(ctx context.Context, path []string) ([]byte, error) {
	key := f.Root
	for _, name := range path {
		data, found := f.Objects[key.String()]
		if !found {
			return nil, nil
		}
		node, err := DecodeNode(data)
		if err != nil {
			return nil, err
		}
		if node.Kind != KindDict {
			return nil, nil
		}
		entry, found := node.Entry(name)
		if !found {
			return nil, nil
		}
		key = entry.Key
	}
	data, found := f.Objects[key.String()]
	if !found {
		return nil, nil
	}
	return data, nil
}
