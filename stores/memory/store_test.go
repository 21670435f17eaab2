package memory

import (
	"context"
	"errors"
	"fmt"
	"imagedesk/core"
	"sync"
	"testing"
	"time"
)

func TestNewStore(t *testing.T) {
	store := NewStore()
	if store == nil {
		t.Fatal("NewStore() returned nil")
	}
}

func TestSaveImage_AndGet(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	img := &core.StoredImage{
		ID:          "img-1",
		Owner:       core.Owner{OwnerID: "client-1"},
		DisplayName: "front.png",
		ContentType: "image/png",
		CreatedAt:   time.Now(),
	}
	if err := store.SaveImage(ctx, img); err != nil {
		t.Fatalf("SaveImage() failed: %v", err)
	}

	got, err := store.GetImage(ctx, "img-1")
	if err != nil {
		t.Fatalf("GetImage() failed: %v", err)
	}
	if got.DisplayName != "front.png" {
		t.Errorf("DisplayName mismatch: got %q, want %q", got.DisplayName, "front.png")
	}

	// Mutating the returned copy must not leak back into the store.
	got.DisplayName = "changed"
	again, _ := store.GetImage(ctx, "img-1")
	if again.DisplayName != "front.png" {
		t.Errorf("store was mutated through returned pointer: %q", again.DisplayName)
	}
}

func TestSaveImage_EmptyID(t *testing.T) {
	store := NewStore()
	if err := store.SaveImage(context.Background(), &core.StoredImage{}); err == nil {
		t.Error("SaveImage() should reject an empty ID")
	}
}

func TestGetImage_NotFound(t *testing.T) {
	store := NewStore()
	_, err := store.GetImage(context.Background(), "missing")
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetImage() error = %v, want ErrNotFound", err)
	}
}

func TestListImages_FiltersByOwner(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	base := time.Now()

	images := []*core.StoredImage{
		{ID: "a", Owner: core.Owner{OwnerID: "c1", SecondaryOwnerID: "s1"}, CreatedAt: base},
		{ID: "b", Owner: core.Owner{OwnerID: "c1", SecondaryOwnerID: "s2"}, CreatedAt: base.Add(time.Second)},
		{ID: "c", Owner: core.Owner{OwnerID: "c2"}, CreatedAt: base.Add(2 * time.Second)},
	}
	for _, img := range images {
		if err := store.SaveImage(ctx, img); err != nil {
			t.Fatalf("SaveImage() failed: %v", err)
		}
	}

	all, err := store.ListImages(ctx, core.Owner{OwnerID: "c1"})
	if err != nil {
		t.Fatalf("ListImages() failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("ListImages() returned %d images, want 2", len(all))
	}
	if all[0].ID != "b" {
		t.Errorf("expected newest first, got %q", all[0].ID)
	}

	site, _ := store.ListImages(ctx, core.Owner{OwnerID: "c1", SecondaryOwnerID: "s1"})
	if len(site) != 1 || site[0].ID != "a" {
		t.Errorf("site listing mismatch: %+v", site)
	}

	none, _ := store.ListImages(ctx, core.Owner{OwnerID: "nobody"})
	if none == nil || len(none) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", none)
	}
}

func TestPending_Lifecycle(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	p := &core.PendingUpload{ObjectKey: "c1/01H.png", Owner: core.Owner{OwnerID: "c1"}}
	if err := store.SavePending(ctx, p); err != nil {
		t.Fatalf("SavePending() failed: %v", err)
	}
	if _, err := store.GetPending(ctx, p.ObjectKey); err != nil {
		t.Fatalf("GetPending() failed: %v", err)
	}
	if err := store.DeletePending(ctx, p.ObjectKey); err != nil {
		t.Fatalf("DeletePending() failed: %v", err)
	}
	if _, err := store.GetPending(ctx, p.ObjectKey); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetPending() after delete error = %v, want ErrNotFound", err)
	}
}

func TestSavePending_RejectsTraversal(t *testing.T) {
	store := NewStore()
	err := store.SavePending(context.Background(), &core.PendingUpload{ObjectKey: "../etc/passwd"})
	if err == nil {
		t.Error("SavePending() should reject traversal keys")
	}
}

func TestObjects_DataIntegrity(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	testCases := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"png header", []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}},
		{"binary", []byte{0x00, 0x01, 0x02, 0xff}},
	}

	for i, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			key := fmt.Sprintf("c1/obj-%d", i)
			if err := store.PutObject(ctx, key, tc.data); err != nil {
				t.Fatalf("PutObject() failed: %v", err)
			}
			got, err := store.GetObject(ctx, key)
			if err != nil {
				t.Fatalf("GetObject() failed: %v", err)
			}
			if string(got) != string(tc.data) {
				t.Errorf("data mismatch: got %v, want %v", got, tc.data)
			}
		})
	}
}

func TestGetObject_NotFound(t *testing.T) {
	store := NewStore()
	if _, err := store.GetObject(context.Background(), "c1/none"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetObject() error = %v, want ErrNotFound", err)
	}
}

func TestStoreIsolation(t *testing.T) {
	a := NewStore()
	b := NewStore()
	ctx := context.Background()

	if err := a.SaveImage(ctx, &core.StoredImage{ID: "x", Owner: core.Owner{OwnerID: "c"}}); err != nil {
		t.Fatalf("SaveImage() failed: %v", err)
	}
	if _, err := b.GetImage(ctx, "x"); err == nil {
		t.Error("stores must not share state")
	}
}

func TestConcurrentPutGet(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			key := fmt.Sprintf("c1/concurrent-%d", index)
			if err := store.PutObject(ctx, key, []byte{byte(index)}); err != nil {
				t.Errorf("Concurrent PutObject() failed: %v", err)
				return
			}
			if _, err := store.GetObject(ctx, key); err != nil {
				t.Errorf("Concurrent GetObject() failed: %v", err)
			}
		}(i)
	}
	wg.Wait()
}
