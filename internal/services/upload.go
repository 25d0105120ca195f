package services

import (
  "bytes"
  "context"
  "fmt"
  "io"
  "mime/multipart"
  "path/filepath"
  "strings"

  "github.com/disintegration/imaging"
  "github.com/google/uuid"

  "github.com/smartchat-org/smartchat-backend/internal/logger"
  "github.com/smartchat-org/smartchat-backend/internal/types"
)

const (
  maxAttachmentBytes = 10 << 20 // 10 MiB
  maxImageDimension  = 1600
)

var allowedAttachmentTypes = map[string]bool{
  "jpg": true, "jpeg": true, "png": true, "gif": true, "webp": true,
  "pdf": true, "txt": true,
}

// UploadService stores guest attachments in the bucket, downscaling oversized
// images on the way in.
type UploadService interface {
  StoreAttachment(ctx context.Context, chatID uuid.UUID, fileHeader *multipart.FileHeader) (*types.Attachment, error)
}

type uploadService struct {
  log           *logger.Logger
  bucketService BucketService
}

func NewUploadService(log *logger.Logger, bucketService BucketService) UploadService {
  return &uploadService{
    log:           log.With("service", "UploadService"),
    bucketService: bucketService,
  }
}

func (us *uploadService) StoreAttachment(ctx context.Context, chatID uuid.UUID, fileHeader *multipart.FileHeader) (*types.Attachment, error) {
  if fileHeader.Size > maxAttachmentBytes {
    return nil, fmt.Errorf("attachment exceeds maximum size of %d bytes", maxAttachmentBytes)
  }
  fileType := strings.ToLower(strings.TrimPrefix(filepath.Ext(fileHeader.Filename), "."))
  if !allowedAttachmentTypes[fileType] {
    return nil, fmt.Errorf("attachment type %q is not allowed", fileType)
  }

  f, err := fileHeader.Open()
  if err != nil {
    return nil, fmt.Errorf("failed to open attachment: %w", err)
  }
  defer f.Close()

  raw, err := io.ReadAll(io.LimitReader(f, maxAttachmentBytes+1))
  if err != nil {
    return nil, fmt.Errorf("failed to read attachment: %w", err)
  }
  if int64(len(raw)) > maxAttachmentBytes {
    return nil, fmt.Errorf("attachment exceeds maximum size of %d bytes", maxAttachmentBytes)
  }

  if isOptimizableImage(fileType) {
    if optimized, optErr := us.optimizeImage(raw, fileType); optErr != nil {
      // Store the original rather than reject the message.
      us.log.Warn("failed to optimize image attachment, storing original", "chatID", chatID, "error", optErr)
    } else {
      raw = optimized
    }
  }

  key := fmt.Sprintf("chat-attachments/%s/%s.%s", chatID.String(), uuid.New().String(), fileType)
  if err := us.bucketService.UploadFile(ctx, key, bytes.NewReader(raw)); err != nil {
    return nil, fmt.Errorf("failed to store attachment: %w", err)
  }
  return &types.Attachment{
    Path: key,
    Type: fileType,
    Size: int64(len(raw)),
  }, nil
}

func isOptimizableImage(fileType string) bool {
  switch fileType {
  case "jpg", "jpeg", "png":
    return true
  }
  return false
}

func (us *uploadService) optimizeImage(raw []byte, fileType string) ([]byte, error) {
  img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
  if err != nil {
    return nil, err
  }
  bounds := img.Bounds()
  if bounds.Dx() <= maxImageDimension && bounds.Dy() <= maxImageDimension {
    return raw, nil
  }
  resized := imaging.Fit(img, maxImageDimension, maxImageDimension, imaging.Lanczos)

  var buf bytes.Buffer
  format := imaging.JPEG
  if fileType == "png" {
    format = imaging.PNG
  }
  if err := imaging.Encode(&buf, resized, format, imaging.JPEGQuality(85)); err != nil {
    return nil, err
  }
  return buf.Bytes(), nil
}
