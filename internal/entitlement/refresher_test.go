package entitlement

import (
	"context"
	"sync"
	"testing"
	"time"

	"pawkeeper/internal/types"
)

func newTestRefresher(provider *mockProvider, cache *StatusCache, sleep types.SleepFunc) *Refresher {
	return NewRefresher(provider, cache, "cus_123", DefaultBackoffPolicy(), sleep, nil)
}

func TestRefresher_SuccessUpdatesCache(t *testing.T) {
	cache := NewStatusCache(newFakeClock())
	provider := &mockProvider{
		GetSubscriptionStatusFunc: func(ctx context.Context, customerID string) (*types.SubscriptionStatus, error) {
			if customerID != "cus_123" {
				t.Errorf("customerID = %q, want cus_123", customerID)
			}
			return premiumStatus(), nil
		},
	}
	r := newTestRefresher(provider, cache, (&sleepRecorder{}).Sleep)

	status, err := r.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if status.Tier != types.TierPremium {
		t.Errorf("Tier = %v, want premium", status.Tier)
	}

	entry := cache.Get()
	if !entry.Known || entry.Status.Tier != types.TierPremium {
		t.Errorf("cache entry = %+v, want known premium", entry)
	}
}

func TestRefresher_RetryCapExhausted(t *testing.T) {
	cache := NewStatusCache(newFakeClock())
	cache.Set(*premiumStatus())

	provider := &mockProvider{
		GetSubscriptionStatusFunc: func(ctx context.Context, customerID string) (*types.SubscriptionStatus, error) {
			return nil, &types.ProviderError{Code: "rate_limit", HTTPStatus: 429}
		},
	}
	sleeps := &sleepRecorder{}
	r := newTestRefresher(provider, cache, sleeps.Sleep)

	_, err := r.Refresh(context.Background())
	if err == nil {
		t.Fatal("Refresh() should fail after exhausting retries")
	}

	// MaxAttempts=3 retries after the initial attempt: 4 provider calls total.
	if got := provider.statusCalls.Load(); got != 4 {
		t.Errorf("provider calls = %d, want 4", got)
	}

	// Backoff doubles from the base between attempts.
	want := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}
	got := sleeps.Delays()
	if len(got) != len(want) {
		t.Fatalf("delays = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	// A failed cycle never clears the last good value.
	entry := cache.Get()
	if !entry.Known || entry.Status.Tier != types.TierPremium {
		t.Errorf("cache entry = %+v, want prior premium value retained", entry)
	}
	if entry.RetryCount != 3 {
		t.Errorf("RetryCount = %d, want 3", entry.RetryCount)
	}
}

func TestRefresher_CardDeclineNotRetried(t *testing.T) {
	cache := NewStatusCache(newFakeClock())
	provider := &mockProvider{
		GetSubscriptionStatusFunc: func(ctx context.Context, customerID string) (*types.SubscriptionStatus, error) {
			return nil, &types.ProviderError{Code: "card_declined", DeclineCode: "do_not_honor", HTTPStatus: 402}
		},
	}
	sleeps := &sleepRecorder{}
	r := newTestRefresher(provider, cache, sleeps.Sleep)

	_, err := r.Refresh(context.Background())
	pe, ok := types.AsPaymentError(err)
	if !ok {
		t.Fatalf("error = %T, want *types.PaymentError", err)
	}
	if pe.Kind != types.KindCardError {
		t.Errorf("Kind = %v, want card_error", pe.Kind)
	}

	if got := provider.statusCalls.Load(); got != 1 {
		t.Errorf("provider calls = %d, want 1: terminal failures are not retried", got)
	}
	if len(sleeps.Delays()) != 0 {
		t.Error("no backoff should occur for a terminal failure")
	}
}

func TestRefresher_ConcurrentCallsShareOneFetch(t *testing.T) {
	cache := NewStatusCache(newFakeClock())

	release := make(chan struct{})
	provider := &mockProvider{
		GetSubscriptionStatusFunc: func(ctx context.Context, customerID string) (*types.SubscriptionStatus, error) {
			<-release
			return premiumStatus(), nil
		},
	}
	r := newTestRefresher(provider, cache, (&sleepRecorder{}).Sleep)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*types.SubscriptionStatus, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = r.Refresh(context.Background())
		}(i)
	}

	// Give the goroutines time to pile onto the in-flight fetch.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := provider.statusCalls.Load(); got != 1 {
		t.Errorf("provider calls = %d, want 1: concurrent refreshes must coalesce", got)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d error = %v", i, errs[i])
		}
		if results[i].Tier != types.TierPremium {
			t.Errorf("caller %d Tier = %v, want premium", i, results[i].Tier)
		}
	}
}

func TestRefresher_InvalidateDuringFetchDiscardsCompletion(t *testing.T) {
	cache := NewStatusCache(newFakeClock())

	started := make(chan struct{})
	release := make(chan struct{})
	provider := &mockProvider{
		GetSubscriptionStatusFunc: func(ctx context.Context, customerID string) (*types.SubscriptionStatus, error) {
			close(started)
			<-release
			return premiumStatus(), nil
		},
	}
	r := newTestRefresher(provider, cache, (&sleepRecorder{}).Sleep)

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Refresh(context.Background())
	}()

	<-started
	cache.Invalidate()
	close(release)
	<-done

	if cache.Get().Known {
		t.Error("a fetch begun before Invalidate must not repopulate the cache")
	}
}

func TestRefresher_ManualResetsRetryCounter(t *testing.T) {
	cache := NewStatusCache(newFakeClock())
	cache.Set(*premiumStatus())
	cache.NoteRetry()
	cache.NoteRetry()

	provider := &mockProvider{
		GetSubscriptionStatusFunc: func(ctx context.Context, customerID string) (*types.SubscriptionStatus, error) {
			return nil, &types.ProviderError{Code: "card_declined", HTTPStatus: 402}
		},
	}
	r := newTestRefresher(provider, cache, (&sleepRecorder{}).Sleep)

	r.RefreshManual(context.Background())

	if got := cache.Get().RetryCount; got != 0 {
		t.Errorf("RetryCount = %d, want 0: manual refresh starts from a clean counter", got)
	}
}

func TestRefresher_NoCustomerIDResolvesToFree(t *testing.T) {
	cache := NewStatusCache(newFakeClock())
	provider := &mockProvider{
		GetSubscriptionStatusFunc: func(ctx context.Context, customerID string) (*types.SubscriptionStatus, error) {
			t.Fatal("no provider call expected for a user without a billing profile")
			return nil, nil
		},
	}
	r := NewRefresher(provider, cache, "", DefaultBackoffPolicy(), (&sleepRecorder{}).Sleep, nil)

	status, err := r.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if status.Tier != types.TierFree || status.State != types.StateFree {
		t.Errorf("status = %+v, want synthesized free tier", status)
	}
	if !cache.Get().Known {
		t.Error("free status should be cached")
	}
}

func TestBackoffPolicy_DelayCapped(t *testing.T) {
	p := BackoffPolicy{Base: time.Second, Factor: 2, Max: 30 * time.Second, MaxAttempts: 10}

	if got := p.Delay(0); got != time.Second {
		t.Errorf("Delay(0) = %v, want 1s", got)
	}
	if got := p.Delay(3); got != 8*time.Second {
		t.Errorf("Delay(3) = %v, want 8s", got)
	}
	if got := p.Delay(20); got != 30*time.Second {
		t.Errorf("Delay(20) = %v, want the 30s cap", got)
	}
}
