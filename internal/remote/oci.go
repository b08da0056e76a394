package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/types"
	"github.com/klauspost/compress/zstd"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// DefaultConcurrency bounds parallel registry operations.
const DefaultConcurrency = 4

const rootLabel = "dev.depot.root"

// OCIRemote stores node sets as OCI images.
type OCIRemote struct {
	ref         name.Reference
	auth        Authenticator
	concurrency int
	log         *zap.Logger
}

// NewOCIRemote creates a remote from a standard image ref (e.g.
// "registry.example.com/team/depot:main").
func NewOCIRemote(imageRef string, auth Authenticator, log *zap.Logger) (*OCIRemote, error) {
	ref, err := name.ParseReference(imageRef, name.WithDefaultTag("latest"))
	if err != nil {
		return nil, fmt.Errorf("invalid image ref %q: %w", imageRef, err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &OCIRemote{
		ref:         ref,
		auth:        auth,
		concurrency: DefaultConcurrency,
		log:         log.Named("remote"),
	}, nil
}

// SetConcurrency sets the number of parallel registry operations.
func (r *OCIRemote) SetConcurrency(n int) {
	if n > 0 {
		r.concurrency = n
	}
}

func (r *OCIRemote) String() string   { return r.ref.String() }
func (r *OCIRemote) Registry() string { return r.ref.Context().RegistryStr() }

// objectLayer implements v1.Layer with zstd compression for transfer.
type objectLayer struct {
	compressed   []byte
	uncompressed []byte
}

var zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))

func newObjectLayer(data []byte) *objectLayer {
	return &objectLayer{
		compressed:   zstdEncoder.EncodeAll(data, nil),
		uncompressed: data,
	}
}

func (l *objectLayer) Digest() (v1.Hash, error) {
	h, _, err := v1.SHA256(bytes.NewReader(l.compressed))
	return h, err
}

func (l *objectLayer) DiffID() (v1.Hash, error) {
	h, _, err := v1.SHA256(bytes.NewReader(l.uncompressed))
	return h, err
}

func (l *objectLayer) Compressed() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(l.compressed)), nil
}

func (l *objectLayer) Uncompressed() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(l.uncompressed)), nil
}

func (l *objectLayer) Size() (int64, error)                { return int64(len(l.compressed)), nil }
func (l *objectLayer) MediaType() (types.MediaType, error) { return types.OCILayerZStd, nil }

// Push uploads the root key and its objects as a fresh image.
func (r *OCIRemote) Push(ctx context.Context, root string, objects map[string][]byte) error {
	byGroup := GroupBySizeClass(objects)
	plan := BuildLayerPlan(GroupSizes(byGroup))

	r.log.Debug("packing objects",
		zap.Int("objects", len(objects)),
		zap.Int("groups", len(byGroup)),
		zap.Int("layers", len(plan)))

	layers := make([]v1.Layer, 0, len(plan))
	for _, groups := range plan {
		layers = append(layers, newObjectLayer(PackLayer(CollectGroupObjects(groups, byGroup))))
	}

	img, err := r.buildImage(layers, root)
	if err != nil {
		return fmt.Errorf("build image: %w", err)
	}

	options := append(r.remoteOptions(), remote.WithJobs(r.concurrency))
	if _, err := retry(ctx, 3, func() (struct{}, error) {
		return struct{}{}, remote.Write(r.ref, img, options...)
	}); err != nil {
		return fmt.Errorf("push to %s: %w", r.ref, err)
	}

	r.log.Info("pushed", zap.String("root", root), zap.Int("objects", len(objects)))
	return nil
}

func (r *OCIRemote) buildImage(layers []v1.Layer, root string) (v1.Image, error) {
	img := empty.Image

	if len(layers) > 0 {
		var err error
		img, err = mutate.AppendLayers(img, layers...)
		if err != nil {
			return nil, err
		}
	}

	cfg, err := img.ConfigFile()
	if err != nil {
		return nil, err
	}
	cfg.Config.Labels = map[string]string{rootLabel: root}

	return mutate.ConfigFile(img, cfg)
}

// Pull downloads the current root and all object layers in parallel.
func (r *OCIRemote) Pull(ctx context.Context) (string, map[string][]byte, error) {
	img, err := retry(ctx, 3, func() (v1.Image, error) {
		return remote.Image(r.ref, r.remoteOptions()...)
	})
	if err != nil {
		return "", nil, fmt.Errorf("fetch image: %w", err)
	}

	cfg, err := img.ConfigFile()
	if err != nil {
		return "", nil, fmt.Errorf("get config: %w", err)
	}
	root := cfg.Config.Labels[rootLabel]
	if root == "" {
		return "", nil, fmt.Errorf("missing %s label", rootLabel)
	}

	layers, err := img.Layers()
	if err != nil {
		return "", nil, fmt.Errorf("get layers: %w", err)
	}

	var mu sync.Mutex
	objects := make(map[string][]byte)

	p := pool.New().WithMaxGoroutines(r.concurrency).WithContext(ctx).WithCancelOnError()
	for _, layer := range layers {
		p.Go(func(ctx context.Context) error {
			rc, err := layer.Uncompressed()
			if err != nil {
				return fmt.Errorf("read layer: %w", err)
			}
			data, err := io.ReadAll(rc)
			if cerr := rc.Close(); cerr != nil {
				return fmt.Errorf("close layer: %w", cerr)
			}
			if err != nil {
				return fmt.Errorf("read layer: %w", err)
			}

			unpacked, err := UnpackLayer(data)
			if err != nil {
				return fmt.Errorf("unpack layer: %w", err)
			}

			mu.Lock()
			for k, v := range unpacked {
				objects[k] = v
			}
			mu.Unlock()
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return "", nil, err
	}

	r.log.Info("pulled", zap.String("root", root), zap.Int("objects", len(objects)))
	return root, objects, nil
}

func (r *OCIRemote) remoteOptions() []remote.Option {
	if r.auth != nil {
		username, password, err := r.auth.Authenticate(r.Registry())
		if err == nil && username != "" {
			return []remote.Option{remote.WithAuth(&authn.Basic{
				Username: username,
				Password: password,
			})}
		}
	}
	return []remote.Option{remote.WithAuthFromKeychain(authn.DefaultKeychain)}
}

func retry[T any](ctx context.Context, maxAttempts int, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if i < maxAttempts-1 {
			delay := time.Duration(1<<i) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return zero, lastErr
}
