package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/gavelhq/gavel/internal/domain"
	"github.com/gavelhq/gavel/internal/repository"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "gavel-cache-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	store, err := New(domain.CacheConfig{HotLayer: "memory", LocalMaxSize: 100}, repo)
	if err != nil {
		t.Fatalf("failed to create cache store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

func testEntry(id, identity string, createdAt time.Time) *domain.CacheEntry {
	return &domain.CacheEntry{
		ID:             id,
		TenantID:       "tenant-001",
		Subject:        "ford|f-150|2018",
		AnalysisType:   domain.AnalysisMarketOverview,
		Identity:       identity,
		Payload:        []byte(`{"summary":{"totalRecords":55}}`),
		CreatedAt:      createdAt,
		LastAccessedAt: createdAt,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	entry := testEntry("ce-001", "identity-a", now)
	if err := store.Put(ctx, entry); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, "tenant-001", "identity-a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected hit, got miss")
	}
	if string(got.Payload) != string(entry.Payload) {
		t.Errorf("payload mismatch: %s", got.Payload)
	}
	if got.AccessCount != 1 {
		t.Errorf("expected access count 1 after first get, got %d", got.AccessCount)
	}

	// Repeat gets are served through the hot layer and each one still
	// counts exactly once.
	for want := int64(2); want <= 4; want++ {
		got, err = store.Get(ctx, "tenant-001", "identity-a")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.AccessCount != want {
			t.Errorf("expected access count %d, got %d", want, got.AccessCount)
		}
	}

	// The durable row carries the same count as the last returned entry.
	history, err := store.History(ctx, "tenant-001", "ford|f-150|2018", 1)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 1 || history[0].AccessCount != 4 {
		t.Errorf("expected durable access count 4, got %+v", history)
	}
}

func TestStoreMiss(t *testing.T) {
	store := newTestStore(t)

	got, err := store.Get(context.Background(), "tenant-001", "unknown")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected miss, got %+v", got)
	}
}

func TestStoreAppendHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	// Same identity written twice: both kept, most recent wins on read.
	if err := store.Put(ctx, testEntry("ce-001", "identity-a", now.Add(-time.Hour))); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Put(ctx, testEntry("ce-002", "identity-a", now)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, "tenant-001", "identity-a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ID != "ce-002" {
		t.Errorf("expected most recent entry, got %s", got.ID)
	}

	history, err := store.History(ctx, "tenant-001", "ford|f-150|2018", 10)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected both entries in history, got %d", len(history))
	}
	if history[0].ID != "ce-002" || history[1].ID != "ce-001" {
		t.Errorf("history not most-recent-first: %s, %s", history[0].ID, history[1].ID)
	}
}

func TestStorePurge(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := store.Put(ctx, testEntry("ce-old", "identity-old", now.Add(-40*24*time.Hour))); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Put(ctx, testEntry("ce-new", "identity-new", now)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	purged, err := store.PurgeOlderThan(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("PurgeOlderThan failed: %v", err)
	}
	if purged != 1 {
		t.Errorf("expected 1 purged entry, got %d", purged)
	}

	history, _ := store.History(ctx, "tenant-001", "ford|f-150|2018", 10)
	if len(history) != 1 || history[0].ID != "ce-new" {
		t.Errorf("expected only the recent entry to survive, got %d entries", len(history))
	}
}

func TestStoreTenantIsolation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, testEntry("ce-001", "identity-a", time.Now().UTC())); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, "tenant-002", "identity-a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Error("expected miss for other tenant")
	}
}

func TestLRUHot(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("SetAndGet", func(t *testing.T) {
		hot := NewLRUHot(100)
		if err := hot.Set(ctx, tenantID, "key1", []byte("value1"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := hot.Get(ctx, tenantID, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		hot := NewLRUHot(100)
		_ = hot.Set(ctx, tenantID, "expiring", []byte("temp"), 10*time.Millisecond)

		time.Sleep(20 * time.Millisecond)

		val, _ := hot.Get(ctx, tenantID, "expiring")
		if val != nil {
			t.Error("expected nil after expiration")
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		hot := NewLRUHot(3)

		_ = hot.Set(ctx, tenantID, "a", []byte("1"), time.Minute)
		_ = hot.Set(ctx, tenantID, "b", []byte("2"), time.Minute)
		_ = hot.Set(ctx, tenantID, "c", []byte("3"), time.Minute)

		// Access 'a' to make it recently used
		_, _ = hot.Get(ctx, tenantID, "a")

		// Add 'd' - should evict 'b' (oldest accessed)
		_ = hot.Set(ctx, tenantID, "d", []byte("4"), time.Minute)

		val, _ := hot.Get(ctx, tenantID, "b")
		if val != nil {
			t.Error("expected 'b' to be evicted")
		}
		val, _ = hot.Get(ctx, tenantID, "a")
		if val == nil {
			t.Error("expected 'a' to still exist")
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		hot := NewLRUHot(10)
		if err := hot.Set(ctx, "", "key", []byte("value"), time.Minute); err == nil {
			t.Error("expected error for empty tenantID")
		}
		if _, err := hot.Get(ctx, "", "key"); err == nil {
			t.Error("expected error for empty tenantID")
		}
	})
}
