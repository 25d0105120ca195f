package services

import (
  "context"
  "encoding/base64"
  "fmt"
  "strings"
  "time"

  openai "github.com/sashabaranov/go-openai"

  "github.com/smartchat-org/smartchat-backend/internal/logger"
  "github.com/smartchat-org/smartchat-backend/internal/utils"
)

// CompletionImage is binary media handed to the model alongside the prompt.
type CompletionImage struct {
  MimeType string
  Data     []byte
}

// CompletionService is the opaque text-generation collaborator. An empty
// result string with a nil error is a valid outcome and means "no reply".
type CompletionService interface {
  Generate(ctx context.Context, systemPrompt, userPrompt string, images []CompletionImage) (string, error)
}

type openAICompletionService struct {
  log         *logger.Logger
  client      *openai.Client
  model       string
  maxTokens   int
  temperature float32
  timeout     time.Duration
}

func NewOpenAICompletionService(log *logger.Logger) (CompletionService, error) {
  serviceLog := log.With("service", "CompletionService")

  apiKey := utils.GetEnv("OPENAI_API_KEY", "", nil)
  if apiKey == "" {
    return nil, fmt.Errorf("missing OPENAI_API_KEY environment variable")
  }
  model := utils.GetEnv("OPENAI_MODEL", openai.GPT4oMini, serviceLog)
  maxTokens := utils.GetEnvAsInt("AUTO_REPLY_MAX_TOKENS", 500, serviceLog)
  temperature := utils.GetEnvAsFloat("AUTO_REPLY_TEMPERATURE", 0.7, serviceLog)
  timeout := utils.GetEnvAsDuration("AUTO_REPLY_TIMEOUT", 60*time.Second, serviceLog)

  return &openAICompletionService{
    log:         serviceLog,
    client:      openai.NewClient(apiKey),
    model:       model,
    maxTokens:   maxTokens,
    temperature: float32(temperature),
    timeout:     timeout,
  }, nil
}

func (cs *openAICompletionService) Generate(ctx context.Context, systemPrompt, userPrompt string, images []CompletionImage) (string, error) {
  ctx, cancel := context.WithTimeout(ctx, cs.timeout)
  defer cancel()

  userMessage := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
  if len(images) == 0 {
    userMessage.Content = userPrompt
  } else {
    parts := []openai.ChatMessagePart{
      {Type: openai.ChatMessagePartTypeText, Text: userPrompt},
    }
    for _, img := range images {
      dataURL := fmt.Sprintf("data:%s;base64,%s", img.MimeType, base64.StdEncoding.EncodeToString(img.Data))
      parts = append(parts, openai.ChatMessagePart{
        Type:     openai.ChatMessagePartTypeImageURL,
        ImageURL: &openai.ChatMessageImageURL{URL: dataURL},
      })
    }
    userMessage.MultiContent = parts
  }

  resp, err := cs.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
    Model: cs.model,
    Messages: []openai.ChatCompletionMessage{
      {Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
      userMessage,
    },
    MaxTokens:   cs.maxTokens,
    Temperature: cs.temperature,
  })
  if err != nil {
    cs.log.Warn("completion call failed", "model", cs.model, "error", err)
    return "", err
  }
  if len(resp.Choices) == 0 {
    return "", nil
  }
  return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
