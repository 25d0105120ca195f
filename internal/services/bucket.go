package services

import (
  "context"
  "errors"
  "fmt"
  "io"
  "mime"
  "os"
  "path/filepath"
  "time"

  "cloud.google.com/go/storage"
  "google.golang.org/api/option"

  "github.com/smartchat-org/smartchat-backend/internal/logger"
)

// BucketService is the blob-storage collaborator for chat attachments and
// generated avatars.
type BucketService interface {
  Exists(ctx context.Context, key string) (bool, error)
  UploadFile(ctx context.Context, key string, file io.Reader) error
  DownloadFile(ctx context.Context, key string) (io.ReadCloser, error)
  DeleteFile(ctx context.Context, key string) error
  GetPublicURL(key string) string
}

type bucketService struct {
  log           *logger.Logger
  storageClient *storage.Client
  bucketName    string
  cdnDomain     string
}

func NewBucketService(log *logger.Logger) (BucketService, error) {
  serviceLog := log.With("service", "BucketService")

  bucketName := os.Getenv("CHAT_GCS_BUCKET_NAME")
  if bucketName == "" {
    return nil, fmt.Errorf("missing env var CHAT_GCS_BUCKET_NAME")
  }
  cdnDomain := os.Getenv("CHAT_CDN_DOMAIN")

  ctx := context.Background()
  var opts []option.ClientOption
  if creds := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); creds != "" {
    opts = append(opts, option.WithCredentialsFile(creds))
  }
  opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
  stClient, err := storage.NewClient(ctx, opts...)
  if err != nil {
    return nil, fmt.Errorf("failed to create storage client: %w", err)
  }

  return &bucketService{
    log:           serviceLog,
    storageClient: stClient,
    bucketName:    bucketName,
    cdnDomain:     cdnDomain,
  }, nil
}

func (bs *bucketService) Exists(ctx context.Context, key string) (bool, error) {
  ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
  defer cancel()

  _, err := bs.storageClient.Bucket(bs.bucketName).Object(key).Attrs(ctx)
  if err != nil {
    if errors.Is(err, storage.ErrObjectNotExist) {
      return false, nil
    }
    bs.log.Warn("failed to stat bucket object", "key", key, "error", err)
    return false, err
  }
  return true, nil
}

func (bs *bucketService) UploadFile(ctx context.Context, key string, file io.Reader) error {
  ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
  defer cancel()

  w := bs.storageClient.Bucket(bs.bucketName).Object(key).NewWriter(ctx)
  if ct := mime.TypeByExtension(filepath.Ext(key)); ct != "" {
    w.ContentType = ct
  }
  if _, err := io.Copy(w, file); err != nil {
    _ = w.Close()
    bs.log.Warn("failed to upload bucket object", "key", key, "error", err)
    return err
  }
  if err := w.Close(); err != nil {
    bs.log.Warn("failed to finalize bucket object upload", "key", key, "error", err)
    return err
  }
  return nil
}

func (bs *bucketService) DownloadFile(ctx context.Context, key string) (io.ReadCloser, error) {
  r, err := bs.storageClient.Bucket(bs.bucketName).Object(key).NewReader(ctx)
  if err != nil {
    bs.log.Warn("failed to open bucket object for read", "key", key, "error", err)
    return nil, err
  }
  return r, nil
}

func (bs *bucketService) DeleteFile(ctx context.Context, key string) error {
  ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
  defer cancel()

  if err := bs.storageClient.Bucket(bs.bucketName).Object(key).Delete(ctx); err != nil {
    if errors.Is(err, storage.ErrObjectNotExist) {
      return nil
    }
    bs.log.Warn("failed to delete bucket object", "key", key, "error", err)
    return err
  }
  return nil
}

func (bs *bucketService) GetPublicURL(key string) string {
  if bs.cdnDomain != "" {
    return fmt.Sprintf("https://%s/%s", bs.cdnDomain, key)
  }
  return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bs.bucketName, key)
}
