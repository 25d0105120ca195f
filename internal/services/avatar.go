package services

import (
  "bytes"
  "context"
  "fmt"
  "hash/fnv"
  "image/color"
  "strings"
  "unicode"

  "github.com/fogleman/gg"
  "github.com/golang/freetype/truetype"
  "golang.org/x/image/font"
  "golang.org/x/image/font/gofont/goregular"

  "github.com/smartchat-org/smartchat-backend/internal/logger"
)

const avatarSize = 512

// AvatarService renders deterministic initial-letter avatars for agents and
// guest threads and stores them in the bucket.
type AvatarService interface {
  CreateAndUploadAvatar(ctx context.Context, bucketKey, label string) (string, error)
  GenerateAvatar(label string) (bytes.Buffer, error)
}

type avatarService struct {
  log           *logger.Logger
  bucketService BucketService
  bgColors      []color.NRGBA
  fontFace      font.Face
}

func NewAvatarService(log *logger.Logger, bucketService BucketService) (AvatarService, error) {
  serviceLog := log.With("service", "AvatarService")

  ttf, err := truetype.Parse(goregular.TTF)
  if err != nil {
    return nil, fmt.Errorf("could not parse avatar font: %w", err)
  }
  face := truetype.NewFace(ttf, &truetype.Options{Size: 224})

  return &avatarService{
    log:           serviceLog,
    bucketService: bucketService,
    bgColors: []color.NRGBA{
      {R: 0x2f, G: 0x6f, B: 0xed, A: 0xff},
      {R: 0x0f, G: 0x9d, B: 0x58, A: 0xff},
      {R: 0xd9, G: 0x48, B: 0x3b, A: 0xff},
      {R: 0x8e, G: 0x44, B: 0xad, A: 0xff},
      {R: 0xe6, G: 0x7e, B: 0x22, A: 0xff},
      {R: 0x16, G: 0x80, B: 0x8d, A: 0xff},
    },
    fontFace: face,
  }, nil
}

func (as *avatarService) CreateAndUploadAvatar(ctx context.Context, bucketKey, label string) (string, error) {
  buf, err := as.GenerateAvatar(label)
  if err != nil {
    return "", err
  }
  if err := as.bucketService.UploadFile(ctx, bucketKey, bytes.NewReader(buf.Bytes())); err != nil {
    return "", fmt.Errorf("failed to upload avatar %s: %w", bucketKey, err)
  }
  return as.bucketService.GetPublicURL(bucketKey), nil
}

func (as *avatarService) GenerateAvatar(label string) (bytes.Buffer, error) {
  var buf bytes.Buffer

  initial := avatarInitial(label)
  bg := as.bgColors[hashLabel(label)%uint32(len(as.bgColors))]

  dc := gg.NewContext(avatarSize, avatarSize)
  dc.SetColor(bg)
  dc.Clear()
  dc.SetFontFace(as.fontFace)
  dc.SetRGB(1, 1, 1)
  dc.DrawStringAnchored(initial, avatarSize/2, avatarSize/2, 0.5, 0.5)

  if err := dc.EncodePNG(&buf); err != nil {
    return buf, fmt.Errorf("failed to encode avatar png: %w", err)
  }
  return buf, nil
}

func avatarInitial(label string) string {
  for _, r := range strings.TrimSpace(label) {
    if unicode.IsLetter(r) || unicode.IsDigit(r) {
      return strings.ToUpper(string(r))
    }
  }
  return "?"
}

func hashLabel(label string) uint32 {
  h := fnv.New32a()
  _, _ = h.Write([]byte(label))
  return h.Sum32()
}
