package depot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/driftlock/depot/internal/store"
)

// Refs map stable names to root keys. The engine itself holds no root
// registry — GC roots are always supplied by the caller — but named
// refs give tooling a place to keep committed tree heads.

// PutRef stores or updates a named root.
func (d *Depot) PutRef(ctx context.Context, name string, key Key) error {
	if err := checkRefName(name); err != nil {
		return err
	}
	if err := d.st.Put(ctx, refPrefix+name, []byte(key.String())); err != nil {
		return fmt.Errorf("depot: put ref %q: %w", name, err)
	}
	return nil
}

// GetRef resolves a named root, or ErrNotFound.
func (d *Depot) GetRef(ctx context.Context, name string) (Key, error) {
	if err := checkRefName(name); err != nil {
		return ZeroKey, err
	}
	raw, err := d.st.Get(ctx, refPrefix+name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ZeroKey, fmt.Errorf("depot: ref %q: %w", name, ErrNotFound)
		}
		return ZeroKey, fmt.Errorf("depot: get ref %q: %w", name, err)
	}
	key, err := ParseKey(string(raw))
	if err != nil {
		return ZeroKey, fmt.Errorf("depot: ref %q: %w", name, err)
	}
	return key, nil
}

// DeleteRef removes a named root. Removing an absent ref is a no-op.
func (d *Depot) DeleteRef(ctx context.Context, name string) error {
	if err := checkRefName(name); err != nil {
		return err
	}
	return d.st.Delete(ctx, refPrefix+name)
}

// Refs lists all ref names, sorted.
func (d *Depot) Refs(ctx context.Context) ([]string, error) {
	keys, err := d.st.Keys(ctx, refPrefix)
	if err != nil {
		return nil, fmt.Errorf("depot: list refs: %w", err)
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, strings.TrimPrefix(k, refPrefix))
	}
	sort.Strings(names)
	return names, nil
}

func checkRefName(name string) error {
	if name == "" || strings.ContainsAny(name, "/\\") || strings.HasPrefix(name, ".") {
		return fmt.Errorf("depot: invalid ref name %q", name)
	}
	return nil
}
