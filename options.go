package depot

import (
	"time"

	"go.uber.org/zap"
)

// Defaults for Open.
const (
	DefaultCacheSize        = 256
	DefaultCompressionLevel = 2
)

// Options configures a Depot.
type Options struct {
	KeyProvider      KeyProvider
	Logger           *zap.Logger
	Clock            func() time.Time
	CacheSize        int
	Compression      bool
	CompressionLevel int
}

// Option is a functional option for configuring Open and New.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		KeyProvider:      NewPlainProvider(),
		Logger:           zap.NewNop(),
		Clock:            time.Now,
		CacheSize:        DefaultCacheSize,
		Compression:      true,
		CompressionLevel: DefaultCompressionLevel,
	}
}

// WithKeyProvider sets the hash capability used for content addressing.
func WithKeyProvider(kp KeyProvider) Option {
	return func(o *Options) {
		if kp != nil {
			o.KeyProvider = kp
		}
	}
}

// WithHashKey configures the default keyed BLAKE3 provider. The secret
// must be HashKeySize bytes; an invalid secret is surfaced by Open.
func WithHashKey(secret []byte) Option {
	return func(o *Options) {
		kp, err := NewKeyedProvider(secret)
		if err == nil {
			o.KeyProvider = kp
		} else {
			o.KeyProvider = nil // force Open to fail loudly
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(o *Options) {
		if log != nil {
			o.Logger = log
		}
	}
}

// WithClock overrides the write-timestamp clock. Mostly for tests.
func WithClock(clock func() time.Time) Option {
	return func(o *Options) {
		if clock != nil {
			o.Clock = clock
		}
	}
}

// WithCacheSize bounds the in-memory object cache (entries, not bytes).
// Zero disables caching.
func WithCacheSize(n int) Option {
	return func(o *Options) { o.CacheSize = n }
}

// WithCompression enables on-disk zstd compression at the given level
// (1 fastest, 2 default, 3 better compression).
func WithCompression(level int) Option {
	return func(o *Options) {
		o.Compression = true
		o.CompressionLevel = level
	}
}

// WithoutCompression stores objects raw.
func WithoutCompression() Option {
	return func(o *Options) { o.Compression = false }
}
