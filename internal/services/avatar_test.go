package services

import (
  "bytes"
  "context"
  "testing"

  "github.com/smartchat-org/smartchat-backend/internal/testutil"
)

var pngMagic = []byte{0x89, 0x50, 0x4e, 0x47}

func TestGenerateAvatarProducesPNG(t *testing.T) {
  svc, err := NewAvatarService(testutil.NewTestLogger(t), newFakeBucket())
  if err != nil {
    t.Fatalf("NewAvatarService failed: %v", err)
  }
  buf, err := svc.GenerateAvatar("guest-12345")
  if err != nil {
    t.Fatalf("GenerateAvatar failed: %v", err)
  }
  if !bytes.HasPrefix(buf.Bytes(), pngMagic) {
    t.Fatalf("avatar output is not a PNG")
  }

  // Same label renders the same image, different labels may differ.
  again, err := svc.GenerateAvatar("guest-12345")
  if err != nil {
    t.Fatalf("GenerateAvatar failed: %v", err)
  }
  if !bytes.Equal(buf.Bytes(), again.Bytes()) {
    t.Fatalf("avatar generation should be deterministic per label")
  }
}

func TestCreateAndUploadAvatarStoresObject(t *testing.T) {
  bucket := newFakeBucket()
  svc, err := NewAvatarService(testutil.NewTestLogger(t), bucket)
  if err != nil {
    t.Fatalf("NewAvatarService failed: %v", err)
  }
  url, err := svc.CreateAndUploadAvatar(context.Background(), "avatars/users/test.png", "Dana Reyes")
  if err != nil {
    t.Fatalf("CreateAndUploadAvatar failed: %v", err)
  }
  if url != "https://cdn.test/avatars/users/test.png" {
    t.Fatalf("unexpected public URL: %s", url)
  }
  exists, err := bucket.Exists(context.Background(), "avatars/users/test.png")
  if err != nil || !exists {
    t.Fatalf("avatar object missing from bucket: %v", err)
  }
}
