package settings

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/adamancini/hotpush/internal/types"
)

func openKV(t *testing.T, path string) *SQLiteKV {
	t.Helper()
	kv, err := OpenSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}

func newTestStore(t *testing.T) (*Store, *SQLiteKV) {
	t.Helper()
	kv := openKV(t, filepath.Join(t.TempDir(), "settings.db"))
	return New(kv, "MyApp"), kv
}

func remote(hash string) *types.RemotePackage {
	return &types.RemotePackage{Descriptor: types.Descriptor{PackageHash: hash, AppVersion: "1.0.0"}}
}

func TestSQLiteKV(t *testing.T) {
	ctx := context.Background()
	kv := openKV(t, filepath.Join(t.TempDir(), "kv.db"))

	if _, ok, err := kv.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get(missing) = ok %v, err %v", ok, err)
	}
	if err := kv.Set(ctx, "k", "v1"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := kv.Set(ctx, "k", "v2"); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}
	if v, ok, err := kv.Get(ctx, "k"); err != nil || !ok || v != "v2" {
		t.Fatalf("Get(k) = %q, %v, %v", v, ok, err)
	}
	if err := kv.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := kv.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() of missing key error = %v", err)
	}
	if _, ok, _ := kv.Get(ctx, "k"); ok {
		t.Error("key still present after Delete()")
	}
}

func TestFailedUpdates_PersistAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "settings.db")

	kv, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	store := New(kv, "MyApp")
	if err := store.SaveFailedUpdate(ctx, remote("h1")); err != nil {
		t.Fatalf("SaveFailedUpdate() error = %v", err)
	}
	if err := kv.Close(); err != nil {
		t.Fatal(err)
	}

	reopened := New(openKV(t, path), "MyApp")
	exists, err := reopened.ExistsFailedUpdate(ctx, "h1")
	if err != nil {
		t.Fatalf("ExistsFailedUpdate() error = %v", err)
	}
	if !exists {
		t.Error("failed update should survive reopening the store")
	}
}

func TestFailedUpdates_OrderAndFlag(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	for _, h := range []string{"h1", "h2"} {
		if err := store.SaveFailedUpdate(ctx, remote(h)); err != nil {
			t.Fatal(err)
		}
	}

	failed, err := store.FailedUpdates(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 2 || failed[0].PackageHash != "h1" || failed[1].PackageHash != "h2" {
		t.Fatalf("FailedUpdates() = %+v", failed)
	}
	if !failed[0].FailedInstall {
		t.Error("recorded entries should carry failedInstall")
	}

	if ok, _ := store.ExistsFailedUpdate(ctx, "h3"); ok {
		t.Error("h3 was never recorded")
	}
	if ok, _ := store.ExistsFailedUpdate(ctx, ""); ok {
		t.Error("empty hash should never match")
	}

	if err := store.ClearFailedUpdates(ctx); err != nil {
		t.Fatal(err)
	}
	if ok, _ := store.ExistsFailedUpdate(ctx, "h1"); ok {
		t.Error("h1 should be gone after ClearFailedUpdates()")
	}
}

func TestFailedUpdates_CorruptedIsReset(t *testing.T) {
	ctx := context.Background()
	store, kv := newTestStore(t)

	if err := kv.Set(ctx, "MyApp-"+failedUpdatesKey, "{garbage"); err != nil {
		t.Fatal(err)
	}

	failed, err := store.FailedUpdates(ctx)
	if err != nil {
		t.Fatalf("FailedUpdates() error = %v", err)
	}
	if len(failed) != 0 {
		t.Errorf("FailedUpdates() = %v, want empty", failed)
	}

	raw, _, _ := kv.Get(ctx, "MyApp-"+failedUpdatesKey)
	if raw != "[]" {
		t.Errorf("corrupted list not reset, stored = %q", raw)
	}

	if err := store.SaveFailedUpdate(ctx, remote("h1")); err != nil {
		t.Fatalf("SaveFailedUpdate() after reset error = %v", err)
	}
}

func TestKeysAreScopedByAppName(t *testing.T) {
	ctx := context.Background()
	kv := openKV(t, filepath.Join(t.TempDir(), "settings.db"))
	a := New(kv, "AppA")
	b := New(kv, "AppB")

	if err := a.SaveFailedUpdate(ctx, remote("h1")); err != nil {
		t.Fatal(err)
	}
	if err := a.SavePendingUpdate(ctx, types.PendingUpdate{Hash: "h1"}); err != nil {
		t.Fatal(err)
	}

	if ok, _ := b.ExistsFailedUpdate(ctx, "h1"); ok {
		t.Error("AppB sees AppA's failed update")
	}
	if ok, _ := b.IsPendingUpdate(ctx, ""); ok {
		t.Error("AppB sees AppA's pending update")
	}
}

func TestIsPendingUpdate(t *testing.T) {
	tests := []struct {
		name    string
		pending *types.PendingUpdate
		hash    string
		want    bool
	}{
		{"no record", nil, "", false},
		{"any pending", &types.PendingUpdate{Hash: "h1"}, "", true},
		{"matching hash", &types.PendingUpdate{Hash: "h1"}, "h1", true},
		{"other hash", &types.PendingUpdate{Hash: "h1"}, "h2", false},
		{"loading", &types.PendingUpdate{Hash: "h1", IsLoading: true}, "h1", false},
		{"loading any", &types.PendingUpdate{Hash: "h1", IsLoading: true}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store, _ := newTestStore(t)
			if tt.pending != nil {
				if err := store.SavePendingUpdate(ctx, *tt.pending); err != nil {
					t.Fatal(err)
				}
			}

			got, err := store.IsPendingUpdate(ctx, tt.hash)
			if err != nil {
				t.Fatalf("IsPendingUpdate() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("IsPendingUpdate(%q) = %v, want %v", tt.hash, got, tt.want)
			}
		})
	}
}

func TestPendingUpdate_RoundTripAndRemove(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	if p, err := store.PendingUpdate(ctx); err != nil || p != nil {
		t.Fatalf("PendingUpdate() on empty store = %v, %v", p, err)
	}

	if err := store.SavePendingUpdate(ctx, types.PendingUpdate{Hash: "h1", IsLoading: true}); err != nil {
		t.Fatal(err)
	}
	p, err := store.PendingUpdate(ctx)
	if err != nil || p == nil || p.Hash != "h1" || !p.IsLoading {
		t.Fatalf("PendingUpdate() = %+v, %v", p, err)
	}

	if err := store.RemovePendingUpdate(ctx); err != nil {
		t.Fatal(err)
	}
	if p, _ := store.PendingUpdate(ctx); p != nil {
		t.Errorf("PendingUpdate() after remove = %+v", p)
	}
}

func TestPendingUpdate_CorruptedIsRemoved(t *testing.T) {
	ctx := context.Background()
	store, kv := newTestStore(t)

	if err := kv.Set(ctx, "MyApp-"+pendingUpdateKey, "not-json"); err != nil {
		t.Fatal(err)
	}

	p, err := store.PendingUpdate(ctx)
	if err != nil || p != nil {
		t.Fatalf("PendingUpdate() = %+v, %v; want nil, nil", p, err)
	}
	if _, ok, _ := kv.Get(ctx, "MyApp-"+pendingUpdateKey); ok {
		t.Error("corrupted pending record should be removed")
	}
}

func TestClientUniqueID_Stable(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	first, err := store.ClientUniqueID(ctx)
	if err != nil || first == "" {
		t.Fatalf("ClientUniqueID() = %q, %v", first, err)
	}
	second, err := store.ClientUniqueID(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("ClientUniqueID() changed: %q then %q", first, second)
	}
}
