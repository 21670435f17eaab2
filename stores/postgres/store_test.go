package postgres

import (
	"context"
	"errors"
	"imagedesk/core"
	"os"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
)

// Tests run against a live database named by TEST_POSTGRES_DSN and are
// skipped otherwise.
func newTestStore(t *testing.T) *postgresStore {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	store, err := NewStore(context.Background(), dsn)
	if err != nil {
		t.Fatalf("NewStore() failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestImagesRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ownerID := "pg-" + ulid.Make().String()
	t.Cleanup(func() {
		store.db.Exec(`DELETE FROM images WHERE owner_id = $1`, ownerID)
	})

	now := time.Now().UTC().Truncate(time.Millisecond)
	for i, sec := range []string{"s1", "s2", "s1"} {
		img := &core.StoredImage{
			ID:          ulid.Make().String(),
			Owner:       core.Owner{OwnerID: ownerID, SecondaryOwnerID: sec},
			DisplayName: "img.png",
			ContentType: "image/png",
			ObjectKey:   ownerID + "/" + sec + "/x.png",
			CreatedAt:   now.Add(time.Duration(i) * time.Second),
		}
		if err := store.SaveImage(ctx, img); err != nil {
			t.Fatalf("SaveImage() failed: %v", err)
		}
	}

	all, err := store.ListImages(ctx, core.Owner{OwnerID: ownerID})
	if err != nil || len(all) != 3 {
		t.Fatalf("ListImages(owner) = %d, %v; want 3", len(all), err)
	}
	if !all[0].CreatedAt.After(all[2].CreatedAt) {
		t.Error("ListImages() should return newest first")
	}
	site, _ := store.ListImages(ctx, core.Owner{OwnerID: ownerID, SecondaryOwnerID: "s1"})
	if len(site) != 2 {
		t.Errorf("ListImages(site) = %d, want 2", len(site))
	}

	if _, err := store.GetImage(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetImage() error = %v, want ErrNotFound", err)
	}
}

func TestPendingAndObjects(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := "pg-" + ulid.Make().String() + "/a.png"
	t.Cleanup(func() {
		store.db.Exec(`DELETE FROM objects WHERE object_key = $1`, key)
	})

	p := &core.PendingUpload{ObjectKey: key, Owner: core.Owner{OwnerID: "c1"}, ExpiresAt: time.Now().Add(time.Minute)}
	if err := store.SavePending(ctx, p); err != nil {
		t.Fatalf("SavePending() failed: %v", err)
	}
	got, err := store.GetPending(ctx, key)
	if err != nil || got.Owner.OwnerID != "c1" {
		t.Fatalf("GetPending() = %+v, %v", got, err)
	}
	if err := store.DeletePending(ctx, key); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetPending(ctx, key); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetPending() after delete error = %v, want ErrNotFound", err)
	}

	if err := store.PutObject(ctx, key, []byte("one")); err != nil {
		t.Fatal(err)
	}
	if err := store.PutObject(ctx, key, []byte("two")); err != nil {
		t.Fatal(err)
	}
	data, err := store.GetObject(ctx, key)
	if err != nil || string(data) != "two" {
		t.Errorf("GetObject() = %q, %v; want two", data, err)
	}
	if err := store.PutObject(ctx, "../escape", nil); err == nil {
		t.Error("PutObject() should reject unsafe keys")
	}
}
