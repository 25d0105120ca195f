package services

import (
  "context"
  "fmt"
  "io"
  "os"
  "strings"

  "gorm.io/gorm"

  "github.com/smartchat-org/smartchat-backend/internal/logger"
  "github.com/smartchat-org/smartchat-backend/internal/repos"
  "github.com/smartchat-org/smartchat-backend/internal/socket"
  "github.com/smartchat-org/smartchat-backend/internal/types"
  "github.com/smartchat-org/smartchat-backend/internal/utils"
)

const defaultContextMessageLimit = 5

// AutoReplyService decides whether the bot answers a guest message, builds
// the bounded conversation context, calls the completion service and commits
// the reply. The expensive generation work runs outside the chat lock; only
// the final eligibility re-check and insert hold it.
type AutoReplyService interface {
  ShouldGenerateAutoReply(chat *types.Chat) bool
  // HandleGuestMessage runs the full dispatch for one persisted guest
  // message. Generation failures are swallowed after logging; the returned
  // message is nil whenever no reply was produced.
  HandleGuestMessage(ctx context.Context, message *types.Message) (*types.Message, error)
  // GenerateReply assembles context and calls the completion service without
  // touching chat state.
  GenerateReply(ctx context.Context, chat *types.Chat, message *types.Message) (string, error)
}

type autoReplyService struct {
  db            *gorm.DB
  log           *logger.Logger
  chatRepo      repos.ChatRepo
  messageRepo   repos.MessageRepo
  ruleService   RuleService
  completion    CompletionService
  bucketService BucketService
  pdfService    PdfTextService
  hub           Broadcaster
  contextLimit  int
}

func NewAutoReplyService(
  db *gorm.DB,
  log *logger.Logger,
  chatRepo repos.ChatRepo,
  messageRepo repos.MessageRepo,
  ruleService RuleService,
  completion CompletionService,
  bucketService BucketService,
  pdfService PdfTextService,
  hub Broadcaster,
) AutoReplyService {
  serviceLog := log.With("service", "AutoReplyService")
  contextLimit := utils.GetEnvAsInt("AUTO_REPLY_CONTEXT_LIMIT", defaultContextMessageLimit, serviceLog)
  if contextLimit <= 0 {
    contextLimit = defaultContextMessageLimit
  }
  return &autoReplyService{
    db:            db,
    log:           serviceLog,
    chatRepo:      chatRepo,
    messageRepo:   messageRepo,
    ruleService:   ruleService,
    completion:    completion,
    bucketService: bucketService,
    pdfService:    pdfService,
    hub:           hub,
    contextLimit:  contextLimit,
  }
}

func (ars *autoReplyService) ShouldGenerateAutoReply(chat *types.Chat) bool {
  return chat.EligibleForAutoReply()
}

func (ars *autoReplyService) HandleGuestMessage(ctx context.Context, message *types.Message) (*types.Message, error) {
  if message.Sender != types.SenderGuest {
    return nil, nil
  }

  // Speculative check on a fresh read, before the expensive work.
  chat, err := ars.chatRepo.GetByID(ctx, nil, message.ChatID)
  if err != nil {
    return nil, err
  }
  if !ars.ShouldGenerateAutoReply(chat) {
    ars.log.Info("auto-reply skipped for message",
      "messageID", message.ID, "chatID", chat.ID, "state", chat.State())
    return nil, nil
  }

  replyContent, err := ars.ruleService.MatchReply(ctx, chat.ID, message.Content)
  if err != nil {
    ars.log.Warn("rule lookup failed, falling through to generation", "chatID", chat.ID, "error", err)
    replyContent = ""
  }
  if replyContent == "" {
    replyContent, err = ars.GenerateReply(ctx, chat, message)
    if err != nil {
      ars.log.Warn("failed to generate auto-reply", "messageID", message.ID, "chatID", chat.ID, "error", err)
      return nil, nil
    }
  }
  if replyContent == "" {
    ars.log.Warn("auto-reply generation produced empty content", "messageID", message.ID, "chatID", chat.ID)
    return nil, nil
  }

  // Commit under the chat lock: re-read ownership, and discard the generated
  // text when a human took over while we were generating.
  var reply *types.Message
  err = ars.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    lockedChat, lockErr := ars.chatRepo.GetByIDForUpdate(ctx, tx, chat.ID)
    if lockErr != nil {
      return lockErr
    }
    if !ars.ShouldGenerateAutoReply(lockedChat) {
      ars.log.Info("auto-reply discarded, ownership changed during generation",
        "messageID", message.ID, "chatID", chat.ID, "state", lockedChat.State())
      return nil
    }
    botMsg := types.NewBotReply(chat.ID, replyContent)
    if _, createErr := ars.messageRepo.Create(ctx, tx, botMsg); createErr != nil {
      return createErr
    }
    if touchErr := ars.chatRepo.TouchActivity(ctx, tx, chat.ID, botMsg.CreatedAt); touchErr != nil {
      return touchErr
    }
    reply = botMsg
    return nil
  })
  if err != nil {
    ars.log.Warn("failed to commit auto-reply", "messageID", message.ID, "chatID", chat.ID, "error", err)
    return nil, nil
  }
  if reply == nil {
    return nil, nil
  }

  ars.broadcastReply(ctx, reply)
  ars.log.Info("auto-reply generated and broadcast",
    "messageID", message.ID, "autoReplyID", reply.ID, "chatID", chat.ID)
  return reply, nil
}

func (ars *autoReplyService) GenerateReply(ctx context.Context, chat *types.Chat, message *types.Message) (string, error) {
  contextBlock, err := ars.buildConversationContext(ctx, chat)
  if err != nil {
    return "", err
  }
  userPrompt, images := ars.buildUserPrompt(ctx, message, contextBlock)
  return ars.completion.Generate(ctx, ars.systemPrompt(chat), userPrompt, images)
}

// buildConversationContext renders the most recent messages oldest-first,
// prefixed with an omission marker when older history exists. N+1 rows are
// fetched so the marker reflects reality without counting the whole thread.
func (ars *autoReplyService) buildConversationContext(ctx context.Context, chat *types.Chat) (string, error) {
  recent, err := ars.messageRepo.GetRecentByChatID(ctx, nil, chat.ID, ars.contextLimit+1)
  if err != nil {
    return "", err
  }
  hasMore := len(recent) > ars.contextLimit
  if hasMore {
    recent = recent[:ars.contextLimit]
  }
  // Newest-first from the store; flip to chronological.
  for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
    recent[i], recent[j] = recent[j], recent[i]
  }

  var b strings.Builder
  if hasMore {
    b.WriteString("Earlier messages omitted for brevity.\n\n")
  }
  fmt.Fprintf(&b, "Recent conversation history (showing last %d messages):\n\n", ars.contextLimit)
  for _, msg := range recent {
    fmt.Fprintf(&b, "%s: %s\n", senderLabel(msg), msg.Content)
    if msg.HasAttachment() {
      fmt.Fprintf(&b, "[Attachment: %s]\n", attachmentLabel(msg.FileType))
    }
  }
  return b.String(), nil
}

func senderLabel(msg *types.Message) string {
  switch msg.Sender {
  case types.SenderGuest:
    return "Guest"
  case types.SenderBot:
    return "Assistant"
  default:
    if msg.User != nil {
      return msg.User.DisplayName()
    }
    return "Agent"
  }
}

func attachmentLabel(fileType string) string {
  if fileType == "" {
    return "FILE"
  }
  return strings.ToUpper(fileType)
}

// buildUserPrompt composes the final prompt and resolves attachment media.
// Attachment failures degrade the prompt, never the reply.
func (ars *autoReplyService) buildUserPrompt(ctx context.Context, message *types.Message, contextBlock string) (string, []CompletionImage) {
  prompt := contextBlock + "\n\nLatest message from guest:\n" + strings.TrimSpace(message.Content)

  if !message.HasAttachment() {
    return prompt, nil
  }
  label := attachmentLabel(message.FileType)
  prompt += fmt.Sprintf("\n\nGuest included an attachment (%s). Use it as needed.", label)

  var images []CompletionImage
  switch {
  case message.AttachmentIsImage():
    if img := ars.resolveImageAttachment(ctx, message); img != nil {
      images = append(images, *img)
    }
  case message.AttachmentIsPdf():
    if excerpt := ars.extractPdfExcerpt(ctx, message); excerpt != nil {
      suffix := ""
      if excerpt.Truncated {
        suffix = " (truncated)"
      }
      prompt += fmt.Sprintf("\n\n%s content preview%s:\n%s", label, suffix, excerpt.Text)
    }
  }
  return prompt, images
}

func (ars *autoReplyService) resolveImageAttachment(ctx context.Context, message *types.Message) *CompletionImage {
  exists, err := ars.bucketService.Exists(ctx, message.FilePath)
  if err != nil || !exists {
    ars.log.Warn("attachment missing in storage for auto-reply context",
      "messageID", message.ID, "path", message.FilePath, "error", err)
    return nil
  }
  r, err := ars.bucketService.DownloadFile(ctx, message.FilePath)
  if err != nil {
    ars.log.Warn("failed to download image attachment for auto-reply context",
      "messageID", message.ID, "path", message.FilePath, "error", err)
    return nil
  }
  defer r.Close()
  data, err := io.ReadAll(r)
  if err != nil {
    ars.log.Warn("failed to read image attachment for auto-reply context",
      "messageID", message.ID, "path", message.FilePath, "error", err)
    return nil
  }
  return &CompletionImage{MimeType: imageMimeType(message.FileType), Data: data}
}

func imageMimeType(fileType string) string {
  switch fileType {
  case "jpg", "jpeg":
    return "image/jpeg"
  case "gif":
    return "image/gif"
  case "webp":
    return "image/webp"
  default:
    return "image/png"
  }
}

// extractPdfExcerpt stages the stored PDF on local disk for the extraction
// binary. A nil return means no excerpt, for whatever reason; the caller has
// nothing to handle.
func (ars *autoReplyService) extractPdfExcerpt(ctx context.Context, message *types.Message) *PdfExcerpt {
  if ars.pdfService == nil {
    return nil
  }
  exists, err := ars.bucketService.Exists(ctx, message.FilePath)
  if err != nil || !exists {
    ars.log.Warn("attachment missing in storage during PDF extraction",
      "messageID", message.ID, "path", message.FilePath, "error", err)
    return nil
  }
  r, err := ars.bucketService.DownloadFile(ctx, message.FilePath)
  if err != nil {
    ars.log.Warn("failed to download PDF attachment for extraction",
      "messageID", message.ID, "path", message.FilePath, "error", err)
    return nil
  }
  defer r.Close()

  tmp, err := os.CreateTemp("", "smartchat-pdf-*.pdf")
  if err != nil {
    ars.log.Warn("failed to stage PDF attachment for extraction", "messageID", message.ID, "error", err)
    return nil
  }
  defer os.Remove(tmp.Name())
  if _, err := io.Copy(tmp, r); err != nil {
    _ = tmp.Close()
    ars.log.Warn("failed to stage PDF attachment for extraction", "messageID", message.ID, "error", err)
    return nil
  }
  if err := tmp.Close(); err != nil {
    ars.log.Warn("failed to stage PDF attachment for extraction", "messageID", message.ID, "error", err)
    return nil
  }

  excerpt, err := ars.pdfService.ExtractExcerpt(ctx, tmp.Name())
  if err != nil {
    ars.log.Warn("failed to extract text from PDF attachment",
      "messageID", message.ID, "path", message.FilePath, "error", err)
    return nil
  }
  return excerpt
}

func (ars *autoReplyService) systemPrompt(chat *types.Chat) string {
  guestLine := chat.GuestIdentifier
  if chat.GuestName != "" {
    guestLine = fmt.Sprintf("%s (%s)", chat.GuestName, chat.GuestEmail)
  }
  return fmt.Sprintf(`You are a helpful customer support AI assistant. Your role is to provide immediate, accurate, and friendly responses to customer inquiries.

Guidelines:
- Be concise but thorough in your responses
- If you're not sure about something, be honest about it
- Maintain a professional yet friendly tone
- If a question requires human expertise, acknowledge that and suggest waiting for an agent
- Use the conversation history to provide contextually relevant responses
- If the user uploaded an image, analyze it carefully and reference details from it in your response
- If the user uploaded a PDF, use the extracted text to provide accurate information

Current conversation context: Guest is chatting as %s`, guestLine)
}

func (ars *autoReplyService) broadcastReply(ctx context.Context, reply *types.Message) {
  if ars.hub == nil {
    return
  }
  ars.hub.BroadcastGlobal(ctx, socket.Message{
    Channel: socket.ChatChannel(reply.ChatID),
    Event:   "message_sent",
    Payload: reply,
  })
  ars.hub.BroadcastGlobal(ctx, socket.Message{
    Channel: socket.AgentsChannel,
    Event:   "message_sent",
    Payload: reply,
  })
}
