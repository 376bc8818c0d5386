package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestSQLiteKV(t *testing.T) *SQLiteKV {
	t.Helper()
	kv, err := NewSQLiteKV(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteKV: %v", err)
	}
	t.Cleanup(func() { kv.Close() })
	return kv
}

func TestSQLiteKVRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := newTestSQLiteKV(t)

	if _, found, err := kv.Get(ctx, "missing"); err != nil || found {
		t.Fatalf("Get(missing) = found=%v err=%v", found, err)
	}

	if err := kv.Put(ctx, "k", []byte("v1"), 0); err != nil {
		t.Fatal(err)
	}
	// Put overwrites.
	if err := kv.Put(ctx, "k", []byte("v2"), 0); err != nil {
		t.Fatal(err)
	}
	data, found, err := kv.Get(ctx, "k")
	if err != nil || !found || string(data) != "v2" {
		t.Fatalf("Get(k) = %q found=%v err=%v", data, found, err)
	}

	if err := kv.Delete(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := kv.Get(ctx, "k"); found {
		t.Error("key survived delete")
	}
}

func TestSQLiteKVExpiry(t *testing.T) {
	ctx := context.Background()
	kv := newTestSQLiteKV(t)

	if err := kv.Put(ctx, "gone", []byte("x"), time.Minute); err != nil {
		t.Fatal(err)
	}
	kv.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, found, err := kv.Get(ctx, "gone"); err != nil || found {
		t.Errorf("expired entry: found=%v err=%v", found, err)
	}

	keys, err := kv.List(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 0 {
		t.Errorf("List should skip expired keys, got %v", keys)
	}
}

func TestSQLiteKVList(t *testing.T) {
	ctx := context.Background()
	kv := newTestSQLiteKV(t)

	for _, k := range []string{"cache:a", "cache:b", "session:x:history"} {
		if err := kv.Put(ctx, k, []byte("{}"), 0); err != nil {
			t.Fatal(err)
		}
	}
	keys, err := kv.List(ctx, "cache:")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 || keys[0] != "cache:a" || keys[1] != "cache:b" {
		t.Errorf("List(cache:) = %v", keys)
	}
}
