package secrets

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultCacheTTL = 10 * time.Minute
	meterName       = "github.com/marketcart/api/internal/platform/secrets"
)

var newSecretManagerClient = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type accessClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Resolver turns secret://name[?version=N&project=P] references into values using Secret Manager,
// a TTL cache and an optional local fallback file for development.
type Resolver struct {
	client     accessClient
	clientOpts []option.ClientOption
	ownsClient bool
	projectID  string
	ttl        time.Duration
	logger     *zap.Logger
	now        func() time.Time

	fallbackPath string
	fallbackOnce sync.Once
	fallback     map[string]string

	mu    sync.Mutex
	cache map[string]cachedSecret

	latency metric.Float64Histogram
}

type cachedSecret struct {
	value     string
	expiresAt time.Time
}

// Option customises Resolver construction.
type Option func(*Resolver)

// WithProject sets the project used when a reference does not name one.
func WithProject(projectID string) Option {
	return func(r *Resolver) { r.projectID = strings.TrimSpace(projectID) }
}

// WithCacheTTL overrides how long resolved values are reused.
func WithCacheTTL(ttl time.Duration) Option {
	return func(r *Resolver) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithFallbackFile points at a dotenv file keyed by secret name, with "/" written as "_"
// (secret://stripe/api is looked up as stripe_api).
func WithFallbackFile(path string) Option {
	return func(r *Resolver) { r.fallbackPath = strings.TrimSpace(path) }
}

// WithLogger sets the logger used for diagnostic output.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMeter injects a custom OpenTelemetry meter.
func WithMeter(m metric.Meter) Option {
	return func(r *Resolver) {
		if m == nil {
			return
		}
		if h, err := m.Float64Histogram("secrets.resolve.latency", metric.WithUnit("ms")); err == nil {
			r.latency = h
		}
	}
}

// WithClock injects a clock for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

func withAccessClient(client accessClient) Option {
	return func(r *Resolver) { r.client = client }
}

// WithClientOptions forwards options when constructing the Secret Manager client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(r *Resolver) { r.clientOpts = append(r.clientOpts, opts...) }
}

// NewResolver builds a Resolver. Without an explicit client one is created from ambient credentials;
// when that fails the resolver serves only the fallback file.
func NewResolver(ctx context.Context, opts ...Option) (*Resolver, error) {
	r := &Resolver{
		ttl:    defaultCacheTTL,
		logger: zap.NewNop(),
		now:    time.Now,
		cache:  make(map[string]cachedSecret),
	}
	if h, err := otel.GetMeterProvider().Meter(meterName).Float64Histogram("secrets.resolve.latency", metric.WithUnit("ms")); err == nil {
		r.latency = h
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.client == nil {
		client, err := newSecretManagerClient(ctx, r.clientOpts...)
		if err != nil {
			r.logger.Warn("secrets: secret manager client unavailable; using fallback only", zap.Error(err))
		} else {
			r.client = client
			r.ownsClient = true
		}
	}
	return r, nil
}

// Close releases the Secret Manager client when the resolver created it.
func (r *Resolver) Close() error {
	if r == nil || !r.ownsClient || r.client == nil {
		return nil
	}
	return r.client.Close()
}

// Resolve returns the value behind ref, consulting the cache, Secret Manager and the fallback file in order.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	start := r.now()
	parsed, err := parseReference(ref)
	if err != nil {
		return "", err
	}

	if value, ok := r.cached(parsed.key()); ok {
		r.record(ctx, start, "cache")
		return value, nil
	}

	project := parsed.project
	if project == "" {
		project = r.projectID
	}

	if r.client != nil && project != "" {
		name := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, parsed.name, parsed.version)
		resp, err := r.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
		if err == nil && resp.GetPayload() != nil {
			value := string(resp.GetPayload().GetData())
			r.store(parsed.key(), value)
			r.record(ctx, start, "remote")
			return value, nil
		}
		if err != nil && !fallbackAllowed(err) {
			r.record(ctx, start, "error")
			return "", fmt.Errorf("secrets: access %s: %w", parsed.canonical, err)
		}
		r.logger.Debug("secrets: falling back to local file", zap.String("ref", parsed.canonical), zap.Error(err))
	}

	if value, ok := r.lookupFallback(parsed); ok {
		r.store(parsed.key(), value)
		r.record(ctx, start, "fallback")
		return value, nil
	}
	r.record(ctx, start, "error")
	return "", fmt.Errorf("secrets: %s not found", parsed.canonical)
}

// ResolveSecret satisfies config.SecretResolver.
func (r *Resolver) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return r.Resolve(ctx, ref)
}

func (r *Resolver) cached(key string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.cache[key]
	if !ok || r.now().After(entry.expiresAt) {
		return "", false
	}
	return entry.value, true
}

func (r *Resolver) store(key, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[key] = cachedSecret{value: value, expiresAt: r.now().Add(r.ttl)}
}

func (r *Resolver) lookupFallback(ref reference) (string, bool) {
	r.fallbackOnce.Do(func() {
		r.fallback = map[string]string{}
		if r.fallbackPath == "" {
			return
		}
		if _, err := os.Stat(r.fallbackPath); errors.Is(err, os.ErrNotExist) {
			return
		}
		values, err := godotenv.Read(r.fallbackPath)
		if err != nil {
			r.logger.Warn("secrets: unable to read fallback file", zap.String("path", r.fallbackPath), zap.Error(err))
			return
		}
		r.fallback = values
	})
	value, ok := r.fallback[ref.name]
	return value, ok
}

func (r *Resolver) record(ctx context.Context, start time.Time, source string) {
	if r.latency == nil {
		return
	}
	elapsed := float64(r.now().Sub(start)) / float64(time.Millisecond)
	r.latency.Record(ctx, elapsed, metric.WithAttributes(attribute.String("source", source)))
}

type reference struct {
	canonical string
	name      string
	version   string
	project   string
}

func (r reference) key() string {
	return r.project + "|" + r.canonical + "#" + r.version
}

func parseReference(ref string) (reference, error) {
	u, err := url.Parse(normalize(ref))
	if err != nil {
		return reference{}, fmt.Errorf("secrets: invalid reference %q: %w", ref, err)
	}
	if u.Scheme != "secret" {
		return reference{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	name := strings.Trim(u.Host+u.Path, "/")
	if name == "" {
		return reference{}, fmt.Errorf("secrets: missing secret name in %q", ref)
	}
	version := strings.TrimSpace(u.Query().Get("version"))
	if version == "" {
		version = "latest"
	}
	return reference{
		canonical: "secret://" + name,
		name:      strings.ReplaceAll(name, "/", "_"),
		version:   version,
		project:   strings.TrimSpace(u.Query().Get("project")),
	}, nil
}

func normalize(ref string) string {
	trimmed := strings.TrimSpace(ref)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func fallbackAllowed(err error) bool {
	switch status.Code(err) {
	case codes.NotFound, codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}
