package files

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"image"
	"image/color"
	"image/png"
	"imagedesk/core"
	"imagedesk/stores/memory"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingNotifier struct {
	mu     sync.Mutex
	owners []core.Owner
	ids    []string
}

func (n *recordingNotifier) ImagesChanged(owner core.Owner, imageID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.owners = append(n.owners, owner)
	n.ids = append(n.ids, imageID)
}

func newTestService() *Service {
	return NewService(memory.NewStore(), NewTokenSigner("test-secret"), Options{
		PublicBaseURL:  "http://files.test/",
		SlotTTL:        time.Minute,
		MaxUploadBytes: 1 << 20,
	})
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func uploadPNG(t *testing.T, svc *Service, owner core.Owner, name string, data []byte) *core.ConfirmedUpload {
	t.Helper()
	ctx := context.Background()
	slot, err := svc.RequestUploadSlot(ctx, core.UploadMetadata{Owner: owner, FileName: name, ContentType: "image/png"})
	if err != nil {
		t.Fatalf("RequestUploadSlot() failed: %v", err)
	}
	if err := svc.Transfer(ctx, slot.ObjectKey, bytes.NewReader(data)); err != nil {
		t.Fatalf("Transfer() failed: %v", err)
	}
	confirmed, err := svc.ConfirmUpload(ctx, core.UploadConfirmation{
		ObjectKey:   slot.ObjectKey,
		Size:        int64(len(data)),
		Checksum:    checksum(data),
		ContentType: "image/png",
	})
	if err != nil {
		t.Fatalf("ConfirmUpload() failed: %v", err)
	}
	return confirmed
}

func TestUploadProtocol_HappyPath(t *testing.T) {
	svc := newTestService()
	notifier := &recordingNotifier{}
	svc.SetNotifier(notifier)
	owner := core.Owner{OwnerID: "client-7", SecondaryOwnerID: "site-2"}

	confirmed := uploadPNG(t, svc, owner, "C:\\photos\\roof.png", pngBytes(t, 40, 20))
	if confirmed.ConfirmedID == "" {
		t.Fatal("ConfirmedID is empty")
	}
	if confirmed.DisplayName != "roof.png" {
		t.Errorf("DisplayName = %q, want roof.png", confirmed.DisplayName)
	}
	if !strings.HasPrefix(confirmed.ObjectKey, "client-7/site-2/") {
		t.Errorf("ObjectKey %q is not owner scoped", confirmed.ObjectKey)
	}

	infos, err := svc.ListImages(context.Background(), owner)
	if err != nil {
		t.Fatalf("ListImages() failed: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("ListImages() returned %d items, want 1", len(infos))
	}
	want := "http://files.test/api/v1/images/" + confirmed.ConfirmedID + "/thumbnail"
	if infos[0].ThumbnailURL != want {
		t.Errorf("ThumbnailURL = %q, want %q", infos[0].ThumbnailURL, want)
	}

	if len(notifier.ids) != 1 || notifier.ids[0] != confirmed.ConfirmedID || notifier.owners[0] != owner {
		t.Errorf("notifier not called as expected: %+v", notifier)
	}
}

func TestRequestUploadSlot_TransferURLCarriesToken(t *testing.T) {
	svc := newTestService()
	slot, err := svc.RequestUploadSlot(context.Background(), core.UploadMetadata{
		Owner:    core.Owner{OwnerID: "c1"},
		FileName: "a.PNG",
	})
	if err != nil {
		t.Fatalf("RequestUploadSlot() failed: %v", err)
	}
	if !strings.HasSuffix(slot.ObjectKey, ".png") {
		t.Errorf("ObjectKey %q should keep the lower-cased extension", slot.ObjectKey)
	}
	prefix := "http://files.test/api/v1/transfer/" + slot.ObjectKey + "?token="
	if !strings.HasPrefix(slot.TransferURL, prefix) {
		t.Fatalf("TransferURL = %q, want prefix %q", slot.TransferURL, prefix)
	}
	token := strings.TrimPrefix(slot.TransferURL, prefix)
	claims, err := svc.Signer().Parse(token)
	if err != nil {
		t.Fatalf("token does not parse: %v", err)
	}
	if claims.Subject != slot.ObjectKey {
		t.Errorf("token subject = %q, want %q", claims.Subject, slot.ObjectKey)
	}
	if claims.ContentType != "image/png" {
		t.Errorf("content type should be derived from the extension, got %q", claims.ContentType)
	}
}

func TestRequestUploadSlot_InvalidOwner(t *testing.T) {
	svc := newTestService()
	_, err := svc.RequestUploadSlot(context.Background(), core.UploadMetadata{Owner: core.Owner{OwnerID: "../x"}})
	if err == nil {
		t.Error("RequestUploadSlot() should reject a path-like owner id")
	}
}

func TestConfirmUpload_ChecksumMismatch(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	data := pngBytes(t, 4, 4)

	slot, _ := svc.RequestUploadSlot(ctx, core.UploadMetadata{Owner: core.Owner{OwnerID: "c1"}, FileName: "x.png"})
	if err := svc.Transfer(ctx, slot.ObjectKey, bytes.NewReader(data)); err != nil {
		t.Fatalf("Transfer() failed: %v", err)
	}
	_, err := svc.ConfirmUpload(ctx, core.UploadConfirmation{
		ObjectKey: slot.ObjectKey,
		Size:      int64(len(data)),
		Checksum:  strings.Repeat("0", 64),
	})
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("ConfirmUpload() error = %v, want ErrChecksumMismatch", err)
	}
}

func TestConfirmUpload_SizeMismatch(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	data := pngBytes(t, 4, 4)

	slot, _ := svc.RequestUploadSlot(ctx, core.UploadMetadata{Owner: core.Owner{OwnerID: "c1"}, FileName: "x.png"})
	_ = svc.Transfer(ctx, slot.ObjectKey, bytes.NewReader(data))
	_, err := svc.ConfirmUpload(ctx, core.UploadConfirmation{ObjectKey: slot.ObjectKey, Size: 1, Checksum: checksum(data)})
	if !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("ConfirmUpload() error = %v, want ErrSizeMismatch", err)
	}
}

func TestConfirmUpload_RejectsUndecodableImage(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	data := []byte("definitely not a png")

	slot, _ := svc.RequestUploadSlot(ctx, core.UploadMetadata{Owner: core.Owner{OwnerID: "c1"}, FileName: "x.png", ContentType: "image/png"})
	_ = svc.Transfer(ctx, slot.ObjectKey, bytes.NewReader(data))
	_, err := svc.ConfirmUpload(ctx, core.UploadConfirmation{ObjectKey: slot.ObjectKey, Size: int64(len(data)), Checksum: checksum(data)})
	if !errors.Is(err, ErrNotAnImage) {
		t.Errorf("ConfirmUpload() error = %v, want ErrNotAnImage", err)
	}
}

func TestConfirmUpload_AcceptsNonImageDocuments(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	data := []byte("%PDF-1.4")

	slot, _ := svc.RequestUploadSlot(ctx, core.UploadMetadata{Owner: core.Owner{OwnerID: "c1"}, FileName: "quote.pdf", ContentType: "application/pdf"})
	_ = svc.Transfer(ctx, slot.ObjectKey, bytes.NewReader(data))
	if _, err := svc.ConfirmUpload(ctx, core.UploadConfirmation{ObjectKey: slot.ObjectKey, Size: int64(len(data)), Checksum: checksum(data)}); err != nil {
		t.Fatalf("ConfirmUpload() failed: %v", err)
	}

	infos, _ := svc.ListImages(ctx, core.Owner{OwnerID: "c1"})
	if len(infos) != 1 || infos[0].ContentType != "application/pdf" {
		t.Errorf("ListImages() = %+v, want the pdf entry", infos)
	}
}

func TestTransfer_ExpiredSlot(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	slot, _ := svc.RequestUploadSlot(ctx, core.UploadMetadata{Owner: core.Owner{OwnerID: "c1"}, FileName: "x.png"})

	svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if err := svc.Transfer(ctx, slot.ObjectKey, strings.NewReader("x")); !errors.Is(err, ErrSlotExpired) {
		t.Errorf("Transfer() error = %v, want ErrSlotExpired", err)
	}
}

func TestTransfer_TooLarge(t *testing.T) {
	svc := NewService(memory.NewStore(), NewTokenSigner("s"), Options{MaxUploadBytes: 8})
	ctx := context.Background()
	slot, _ := svc.RequestUploadSlot(ctx, core.UploadMetadata{Owner: core.Owner{OwnerID: "c1"}, FileName: "x.png"})

	if err := svc.Transfer(ctx, slot.ObjectKey, strings.NewReader("123456789")); !errors.Is(err, ErrTooLarge) {
		t.Errorf("Transfer() error = %v, want ErrTooLarge", err)
	}
}

func TestTransfer_UnknownSlot(t *testing.T) {
	svc := newTestService()
	err := svc.Transfer(context.Background(), "c1/unknown.png", strings.NewReader("x"))
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Transfer() error = %v, want ErrNotFound", err)
	}
}

func TestPreview_Downscales(t *testing.T) {
	svc := newTestService()
	confirmed := uploadPNG(t, svc, core.Owner{OwnerID: "c1"}, "big.png", pngBytes(t, 200, 100))

	r, err := svc.Preview(context.Background(), confirmed.ConfirmedID, 50)
	if err != nil {
		t.Fatalf("Preview() failed: %v", err)
	}
	if r.Width != 50 || r.Height != 25 {
		t.Errorf("Preview() size = %dx%d, want 50x25", r.Width, r.Height)
	}
	decoded, err := png.Decode(bytes.NewReader(r.Data))
	if err != nil {
		t.Fatalf("preview is not a png: %v", err)
	}
	if decoded.Bounds().Dx() != 50 {
		t.Errorf("decoded width = %d, want 50", decoded.Bounds().Dx())
	}
}

func TestPreview_NeverUpscales(t *testing.T) {
	svc := newTestService()
	confirmed := uploadPNG(t, svc, core.Owner{OwnerID: "c1"}, "small.png", pngBytes(t, 30, 10))

	r, err := svc.Preview(context.Background(), confirmed.ConfirmedID, 300)
	if err != nil {
		t.Fatalf("Preview() failed: %v", err)
	}
	if r.Width != 30 || r.Height != 10 {
		t.Errorf("Preview() size = %dx%d, want 30x10", r.Width, r.Height)
	}
}

func TestTokenSigner_RejectsForeignSecret(t *testing.T) {
	token, err := NewTokenSigner("a").Sign("c1/x.png", "image/png", time.Minute)
	if err != nil {
		t.Fatalf("Sign() failed: %v", err)
	}
	if _, err := NewTokenSigner("b").Parse(token); err == nil {
		t.Error("Parse() should reject a token signed with another secret")
	}
}

func TestTokenSigner_RejectsExpired(t *testing.T) {
	signer := NewTokenSigner("a")
	token, _ := signer.Sign("c1/x.png", "image/png", time.Minute)
	signer.now = func() time.Time { return time.Now().Add(time.Hour) }
	if _, err := signer.Parse(token); err == nil {
		t.Error("Parse() should reject an expired token")
	}
}
