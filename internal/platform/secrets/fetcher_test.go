package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type stubSecretManager struct {
	mu      sync.Mutex
	values  map[string]string
	errs    map[string]error
	counter map[string]int
}

func newStubSecretManager() *stubSecretManager {
	return &stubSecretManager{
		values:  make(map[string]string),
		errs:    make(map[string]error),
		counter: make(map[string]int),
	}
}

func (s *stubSecretManager) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := req.GetName()
	s.counter[name]++

	if err, ok := s.errs[name]; ok && err != nil {
		return nil, err
	}
	if value, ok := s.values[name]; ok {
		return &secretmanagerpb.AccessSecretVersionResponse{
			Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
		}, nil
	}
	return nil, status.Error(codes.NotFound, "not found")
}

func (s *stubSecretManager) Close() error { return nil }

func (s *stubSecretManager) calls(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counter[name]
}

// writeFallbackFile drops a .secrets.local with the given line into a temp
// dir and returns its path.
func writeFallbackFile(t *testing.T, line string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(path, []byte(line+"\n"), 0o600); err != nil {
		t.Fatalf("failed writing fallback file: %v", err)
	}
	return path
}

func TestResolveCachesRemoteSecret(t *testing.T) {
	ctx := context.Background()

	manager := newStubSecretManager()
	resource := "projects/localeats-prod/secrets/stripe_api_key/versions/latest"
	manager.values[resource] = "sk_live_abc"

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(manager),
		WithDefaultProject("localeats-prod"),
		WithLogger(zap.NewNop()),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	for i := 0; i < 2; i++ {
		got, err := fetcher.Resolve(ctx, "secret://stripe_api_key")
		if err != nil {
			t.Fatalf("Resolve call %d returned error: %v", i+1, err)
		}
		if got != "sk_live_abc" {
			t.Fatalf("expected sk_live_abc, got %s", got)
		}
	}

	if calls := manager.calls(resource); calls != 1 {
		t.Fatalf("expected a single remote fetch, got %d", calls)
	}
}

func TestResolveFallsBackWhenAccessDenied(t *testing.T) {
	ctx := context.Background()

	fallbackPath := writeFallbackFile(t, "secret://stripe_api_key=sk_test_local")

	manager := newStubSecretManager()
	manager.errs["projects/localeats-prod/secrets/stripe_api_key/versions/latest"] = status.Error(codes.PermissionDenied, "denied")

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(manager),
		WithDefaultProject("localeats-prod"),
		WithFallbackFile(fallbackPath),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	got, err := fetcher.Resolve(ctx, "secret://stripe_api_key")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "sk_test_local" {
		t.Fatalf("expected fallback value sk_test_local, got %s", got)
	}
}

func TestResolveSurfacesMissingSecret(t *testing.T) {
	ctx := context.Background()

	fallbackPath := writeFallbackFile(t, "secret://stripe_api_key=sk_test_local")

	manager := newStubSecretManager()
	manager.errs["projects/localeats-prod/secrets/stripe_api_key/versions/latest"] = status.Error(codes.NotFound, "missing")

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(manager),
		WithDefaultProject("localeats-prod"),
		WithFallbackFile(fallbackPath),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	if _, err := fetcher.Resolve(ctx, "secret://stripe_api_key"); err == nil {
		t.Fatal("expected a missing secret to error, not fall back")
	}
}

func TestResolveHonoursVersionPins(t *testing.T) {
	ctx := context.Background()

	manager := newStubSecretManager()
	pinned := "projects/localeats-prod/secrets/webhook_signing_secret/versions/5"
	manager.values[pinned] = "whsec_v5"

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(manager),
		WithDefaultProject("localeats-prod"),
		WithVersionPins(map[string]string{
			"secret://webhook_signing_secret": "5",
		}),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	got, err := fetcher.Resolve(ctx, "secret://webhook_signing_secret")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "whsec_v5" {
		t.Fatalf("expected whsec_v5, got %s", got)
	}
	if calls := manager.calls(pinned); calls != 1 {
		t.Fatalf("expected a fetch of the pinned version, got %d calls", calls)
	}
}

func TestInvalidateNotifiesSubscribers(t *testing.T) {
	ctx := context.Background()

	manager := newStubSecretManager()
	manager.values["projects/localeats-prod/secrets/stripe_api_key/versions/latest"] = "sk_live_abc"

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(manager),
		WithDefaultProject("localeats-prod"),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	if _, err := fetcher.Resolve(ctx, "secret://stripe_api_key"); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	ch, cancel := fetcher.Subscribe("secret://stripe_api_key")
	defer cancel()

	fetcher.Invalidate("secret://stripe_api_key")

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected a rotation notification")
	}
}

func TestNewFetcherWithoutCredentialsUsesFallback(t *testing.T) {
	ctx := context.Background()

	originalFactory := secretManagerClientFactory
	secretManagerClientFactory = func(context.Context, ...option.ClientOption) (*secretmanager.Client, error) {
		return nil, errors.New("no credentials")
	}
	t.Cleanup(func() {
		secretManagerClientFactory = originalFactory
	})

	fallbackPath := writeFallbackFile(t, "secret://stripe_api_key=sk_test_local")

	fetcher, err := NewFetcher(ctx, WithFallbackFile(fallbackPath))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	value, err := fetcher.Resolve(ctx, "secret://stripe_api_key")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if value != "sk_test_local" {
		t.Fatalf("expected sk_test_local, got %s", value)
	}
}
