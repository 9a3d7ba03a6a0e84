package secrets

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultEnvironment  = "local"
	defaultFallbackPath = ".secrets.local"
	metricNamespace     = "github.com/localeats/api/internal/platform/secrets"
)

var secretManagerClientFactory = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

// Fetcher resolves secret:// references against Google Secret Manager, with
// an in-process cache and an optional local fallback file for development.
type Fetcher struct {
	client     secretManagerClient
	ownsClient bool

	logger *zap.Logger

	env           string
	defaultProjID string
	projectMap    map[string]string
	versionPins   map[string]string

	fallbackPath string
	fallbackOnce sync.Once
	fallbackVals map[string]string
	fallbackErr  error

	mu       sync.RWMutex
	cache    map[string]cachedValue
	watchers map[string][]chan struct{}

	latency          metric.Float64Histogram
	latencyEnabled   bool
	cacheHits        metric.Int64Counter
	cacheHitsEnabled bool
}

type cachedValue struct {
	value     string
	canonical string
	version   string
	fetchedAt time.Time
	source    string
}

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

type fetcherConfig struct {
	logger       *zap.Logger
	env          string
	defaultProj  string
	projectMap   map[string]string
	fallbackPath string
	meter        metric.Meter
	client       secretManagerClient
	clientOpts   []option.ClientOption
	versionPins  map[string]string
}

// Option customises Fetcher construction.
type Option func(*fetcherConfig)

// WithLogger sets the logger used for diagnostic output.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *fetcherConfig) {
		cfg.logger = logger
	}
}

// WithEnvironment selects the environment key used to resolve per-environment project IDs.
func WithEnvironment(env string) Option {
	return func(cfg *fetcherConfig) {
		cfg.env = strings.ToLower(strings.TrimSpace(env))
	}
}

// WithDefaultProject configures the fallback project ID used when no environment-specific mapping matches.
func WithDefaultProject(projectID string) Option {
	return func(cfg *fetcherConfig) {
		cfg.defaultProj = strings.TrimSpace(projectID)
	}
}

// WithProjectMap supplies environment-specific project IDs.
func WithProjectMap(m map[string]string) Option {
	return func(cfg *fetcherConfig) {
		cfg.projectMap = cloneStringMap(m)
	}
}

// WithFallbackFile overrides the path to the local fallback secrets file.
func WithFallbackFile(path string) Option {
	return func(cfg *fetcherConfig) {
		cfg.fallbackPath = strings.TrimSpace(path)
	}
}

// WithMeter injects a custom OpenTelemetry meter.
func WithMeter(m metric.Meter) Option {
	return func(cfg *fetcherConfig) {
		cfg.meter = m
	}
}

// WithSecretManagerClient injects a preconfigured Secret Manager client (primarily for tests).
func WithSecretManagerClient(client secretManagerClient) Option {
	return func(cfg *fetcherConfig) {
		cfg.client = client
	}
}

// WithClientOptions forwards Cloud client options when constructing the Secret Manager client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *fetcherConfig) {
		cfg.clientOpts = append(cfg.clientOpts, opts...)
	}
}

// WithVersionPins sets explicit version overrides keyed by canonical secret reference.
func WithVersionPins(pins map[string]string) Option {
	return func(cfg *fetcherConfig) {
		cfg.versionPins = cloneStringMap(pins)
	}
}

// NewFetcher builds a Fetcher. When the Secret Manager client cannot be
// constructed the fetcher degrades to fallback-file mode instead of failing.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	cfg := fetcherConfig{
		logger:       zap.NewNop(),
		env:          strings.ToLower(strings.TrimSpace(os.Getenv("API_SECURITY_ENVIRONMENT"))),
		fallbackPath: defaultFallbackPath,
		projectMap:   map[string]string{},
		versionPins:  map[string]string{},
	}
	if cfg.env == "" {
		cfg.env = defaultEnvironment
	}

	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	meter := cfg.meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(metricNamespace)
	}

	f := &Fetcher{
		logger:        cfg.logger,
		env:           cfg.env,
		defaultProjID: cfg.defaultProj,
		projectMap:    cloneStringMap(cfg.projectMap),
		versionPins:   cloneStringMap(cfg.versionPins),
		fallbackPath:  cfg.fallbackPath,
		cache:         make(map[string]cachedValue),
		watchers:      make(map[string][]chan struct{}),
	}
	f.registerMetrics(meter)

	if cfg.client != nil {
		f.client = cfg.client
		return f, nil
	}

	client, err := secretManagerClientFactory(ctx, cfg.clientOpts...)
	if err != nil {
		cfg.logger.Warn("secrets: secret manager client unavailable; operating in fallback mode", zap.Error(err))
		return f, nil
	}
	f.client = client
	f.ownsClient = true
	return f, nil
}

func (f *Fetcher) registerMetrics(meter metric.Meter) {
	latency, err := meter.Float64Histogram(
		"secrets.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds for secret fetch attempts"),
	)
	if err != nil {
		f.logger.Warn("secrets: unable to register latency metric", zap.Error(err))
	}
	f.latency = latency
	f.latencyEnabled = err == nil

	cacheHits, err := meter.Int64Counter(
		"secrets.fetch.cache_hits",
		metric.WithDescription("Count of cache hits when resolving secrets"),
	)
	if err != nil {
		f.logger.Warn("secrets: unable to register cache hit metric", zap.Error(err))
	}
	f.cacheHits = cacheHits
	f.cacheHitsEnabled = err == nil
}

// Close releases resources held by the fetcher.
func (f *Fetcher) Close() error {
	f.mu.Lock()
	for canonical, watchers := range f.watchers {
		delete(f.watchers, canonical)
		for _, ch := range watchers {
			closeSafe(ch)
		}
	}
	f.mu.Unlock()

	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// Resolve returns the secret value for the reference, trying cache, Secret
// Manager, then the fallback file. Errors that look like a missing secret
// (NotFound, InvalidArgument) are surfaced rather than masked by fallback.
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	start := time.Now()
	parsed, err := parseSecretRef(ref)
	if err != nil {
		return "", err
	}

	version := f.pinnedVersion(parsed)
	key := refKey(parsed.canonical, version)

	if value, ok := f.lookupCache(key); ok {
		f.recordCacheHit(ctx, parsed)
		f.recordLatency(ctx, time.Since(start), "cache", nil)
		return value, nil
	}

	projectID := f.projectID(parsed)
	if projectID != "" && f.client != nil {
		value, fetchErr := f.fetchRemote(ctx, projectID, parsed.name, version)
		if fetchErr == nil {
			f.storeCache(key, value, parsed.canonical, version, "remote")
			f.recordLatency(ctx, time.Since(start), "remote", nil)
			return value, nil
		}
		if !fallbackEligible(fetchErr) {
			f.recordLatency(ctx, time.Since(start), "error", fetchErr)
			return "", fmt.Errorf("secrets: fetch failed for %s: %w", parsed.canonical, fetchErr)
		}
		f.logger.Debug("secrets: falling back to local secrets", zap.String("ref", parsed.canonical), zap.Error(fetchErr))
	}

	value, ok := f.lookupFallback(parsed, version)
	if !ok {
		err := fmt.Errorf("secrets: fallback value not found for %s", parsed.canonical)
		f.recordLatency(ctx, time.Since(start), "error", err)
		return "", err
	}

	f.storeCache(key, value, parsed.canonical, version, "fallback")
	f.recordLatency(ctx, time.Since(start), "fallback", nil)
	return value, nil
}

// Invalidate clears cached values for the supplied reference and notifies subscribers.
func (f *Fetcher) Invalidate(ref string) {
	parsed, err := parseSecretRef(ref)
	if err != nil {
		return
	}

	f.mu.Lock()
	for key, entry := range f.cache {
		if entry.canonical == parsed.canonical {
			delete(f.cache, key)
		}
	}
	watchers := f.watchers[parsed.canonical]
	f.mu.Unlock()

	for _, ch := range watchers {
		notifyWatcher(ch)
	}
}

// Subscribe registers a watcher that receives notifications when the secret invalidates.
func (f *Fetcher) Subscribe(ref string) (<-chan struct{}, func()) {
	parsed, err := parseSecretRef(ref)
	if err != nil {
		ch := make(chan struct{})
		close(ch)
		return ch, func() {}
	}

	ch := make(chan struct{}, 1)

	f.mu.Lock()
	f.watchers[parsed.canonical] = append(f.watchers[parsed.canonical], ch)
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		watchers := f.watchers[parsed.canonical]
		for i, watcher := range watchers {
			if watcher == ch {
				watchers = append(watchers[:i], watchers[i+1:]...)
				break
			}
		}
		if len(watchers) == 0 {
			delete(f.watchers, parsed.canonical)
		} else {
			f.watchers[parsed.canonical] = watchers
		}
	}

	return ch, cancel
}

// Notify simulates an external rotation event, invalidating cache and notifying subscribers.
func (f *Fetcher) Notify(ref string) {
	f.Invalidate(ref)
}

func (f *Fetcher) lookupCache(key string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	entry, ok := f.cache[key]
	if !ok {
		return "", false
	}
	return entry.value, true
}

func (f *Fetcher) storeCache(key, value, canonical, version, source string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache[key] = cachedValue{
		value:     value,
		canonical: canonical,
		version:   version,
		fetchedAt: time.Now(),
		source:    source,
	}
}

func (f *Fetcher) fetchRemote(ctx context.Context, projectID, name, version string) (string, error) {
	resourceName := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", projectID, name, version)
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: resourceName})
	if err != nil {
		return "", err
	}
	if resp == nil || resp.Payload == nil {
		return "", fmt.Errorf("secret manager returned empty payload for %s", resourceName)
	}
	return string(resp.Payload.GetData()), nil
}

func (f *Fetcher) projectID(ref secretRef) string {
	if ref.project != "" {
		return ref.project
	}
	if id, ok := f.projectMap[f.env]; ok && strings.TrimSpace(id) != "" {
		return strings.TrimSpace(id)
	}
	return strings.TrimSpace(f.defaultProjID)
}

// pinnedVersion applies version pins in precedence order: explicit version on
// the reference, environment-scoped pin, global pin, then "latest".
func (f *Fetcher) pinnedVersion(ref secretRef) string {
	if ref.version != "" {
		return ref.version
	}
	if pin, ok := f.versionPins[envScopedKey(f.env, ref.canonical)]; ok && strings.TrimSpace(pin) != "" {
		return strings.TrimSpace(pin)
	}
	if pin, ok := f.versionPins[ref.canonical]; ok && strings.TrimSpace(pin) != "" {
		return strings.TrimSpace(pin)
	}
	return "latest"
}

func (f *Fetcher) lookupFallback(ref secretRef, version string) (string, bool) {
	f.fallbackOnce.Do(f.loadFallback)

	if f.fallbackErr != nil {
		f.logger.Debug("secrets: fallback load error", zap.Error(f.fallbackErr))
		return "", false
	}

	if val, ok := f.fallbackVals[refKey(ref.canonical, version)]; ok {
		return val, true
	}
	if val, ok := f.fallbackVals[ref.canonical]; ok {
		return val, true
	}
	return "", false
}

func (f *Fetcher) loadFallback() {
	f.fallbackVals = map[string]string{}

	path := strings.TrimSpace(f.fallbackPath)
	if path == "" {
		return
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	file, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			f.fallbackErr = fmt.Errorf("secrets: unable to open fallback file %s: %w", path, err)
		}
		return
	}
	defer file.Close()

	values, err := parseFallbackFile(file)
	if err != nil {
		f.fallbackErr = fmt.Errorf("secrets: failed reading %s: %w", path, err)
		return
	}
	f.fallbackVals = values
}

// parseFallbackFile reads KEY=VALUE lines, indexing each secret both by its
// canonical reference and by its versioned key.
func parseFallbackFile(file *os.File) (map[string]string, error) {
	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = normalizeFallbackKey(key)
		value = strings.TrimSpace(value)
		if key == "" {
			continue
		}

		parsed, err := parseSecretRef(key)
		if err != nil {
			values[key] = value
			continue
		}
		version := parsed.version
		if version == "" {
			version = "latest"
		}
		values[parsed.canonical] = value
		values[refKey(parsed.canonical, version)] = value
	}
	return values, scanner.Err()
}

func (f *Fetcher) recordLatency(ctx context.Context, d time.Duration, source string, err error) {
	if !f.latencyEnabled {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("source", source)}
	if err != nil {
		attrs = append(attrs, attribute.String("error", err.Error()))
	}
	f.latency.Record(ctx, float64(d)/float64(time.Millisecond), metric.WithAttributes(attrs...))
}

func (f *Fetcher) recordCacheHit(ctx context.Context, ref secretRef) {
	if !f.cacheHitsEnabled {
		return
	}
	f.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("secret", hashRef(ref.canonical))))
}

func notifyWatcher(ch chan struct{}) {
	if ch == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	select {
	case ch <- struct{}{}:
	default:
	}
}

func closeSafe(ch chan struct{}) {
	defer func() {
		_ = recover()
	}()
	close(ch)
}

// secretRef is a parsed secret://name?version=N&project=ID reference. The
// canonical form strips query and fragment so pins and caches can key on it.
type secretRef struct {
	raw       string
	canonical string
	name      string
	version   string
	project   string
}

func parseSecretRef(ref string) (secretRef, error) {
	if strings.TrimSpace(ref) == "" {
		return secretRef{}, errors.New("secrets: empty reference")
	}
	u, err := url.Parse(ref)
	if err != nil {
		return secretRef{}, fmt.Errorf("secrets: invalid reference %q: %w", ref, err)
	}
	if u.Scheme != "secret" {
		return secretRef{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	name := strings.Trim(strings.TrimPrefix(u.Host+u.Path, "/"), "/")
	if name == "" {
		return secretRef{}, fmt.Errorf("secrets: missing secret name in %q", ref)
	}

	canonical := *u
	canonical.RawQuery = ""
	canonical.Fragment = ""

	query := u.Query()
	return secretRef{
		raw:       ref,
		canonical: canonical.String(),
		name:      name,
		version:   strings.TrimSpace(query.Get("version")),
		project:   strings.TrimSpace(query.Get("project")),
	}, nil
}

func refKey(canonical, version string) string {
	return canonical + "#" + version
}

func envScopedKey(env, canonical string) string {
	if strings.TrimSpace(env) == "" {
		return canonical
	}
	return env + ":" + canonical
}

func cloneStringMap(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}

func hashRef(ref string) string {
	h := sha256.Sum256([]byte(ref))
	return hex.EncodeToString(h[:8])
}

// fallbackEligible reports whether the remote failure is an access problem
// the local fallback file may paper over, as opposed to a missing secret.
func fallbackEligible(err error) bool {
	if err == nil {
		return false
	}
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}

// normalizeFallbackKey accepts legacy sm:// prefixes in fallback files.
func normalizeFallbackKey(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}
