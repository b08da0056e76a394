// Package remote syncs depot node sets with an OCI registry.
//
// A pushed root becomes an image whose layers pack node objects and
// whose config labels carry the root key. Follows go-containerregistry
// patterns: keychain authentication, layers before config before
// manifest, standard OCI distribution.
package remote

import "context"

// Remote handles registry operations for a node set.
type Remote interface {
	// Push uploads a root key and its node objects.
	Push(ctx context.Context, root string, objects map[string][]byte) error

	// Pull downloads the current root key and its node objects.
	Pull(ctx context.Context) (root string, objects map[string][]byte, err error)
}
