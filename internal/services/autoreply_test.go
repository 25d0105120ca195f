package services

import (
  "bytes"
  "context"
  "fmt"
  "io"
  "strings"
  "sync"
  "testing"

  "gorm.io/gorm"

  "github.com/smartchat-org/smartchat-backend/internal/repos"
  "github.com/smartchat-org/smartchat-backend/internal/testutil"
  "github.com/smartchat-org/smartchat-backend/internal/types"
)

type fakeCompletion struct {
  mu          sync.Mutex
  calls       int
  lastSystem  string
  lastUser    string
  lastImages  []CompletionImage
  reply       string
  err         error
  beforeReply func()
}

func (f *fakeCompletion) Generate(ctx context.Context, systemPrompt, userPrompt string, images []CompletionImage) (string, error) {
  f.mu.Lock()
  f.calls++
  f.lastSystem = systemPrompt
  f.lastUser = userPrompt
  f.lastImages = images
  hook := f.beforeReply
  f.mu.Unlock()
  if hook != nil {
    hook()
  }
  return f.reply, f.err
}

type fakeBucket struct {
  mu    sync.Mutex
  files map[string][]byte
}

func newFakeBucket() *fakeBucket {
  return &fakeBucket{files: map[string][]byte{}}
}

func (f *fakeBucket) Exists(ctx context.Context, key string) (bool, error) {
  f.mu.Lock()
  defer f.mu.Unlock()
  _, ok := f.files[key]
  return ok, nil
}

func (f *fakeBucket) UploadFile(ctx context.Context, key string, file io.Reader) error {
  data, err := io.ReadAll(file)
  if err != nil {
    return err
  }
  f.mu.Lock()
  defer f.mu.Unlock()
  f.files[key] = data
  return nil
}

func (f *fakeBucket) DownloadFile(ctx context.Context, key string) (io.ReadCloser, error) {
  f.mu.Lock()
  defer f.mu.Unlock()
  data, ok := f.files[key]
  if !ok {
    return nil, fmt.Errorf("object %s not found", key)
  }
  return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeBucket) DeleteFile(ctx context.Context, key string) error {
  f.mu.Lock()
  defer f.mu.Unlock()
  delete(f.files, key)
  return nil
}

func (f *fakeBucket) GetPublicURL(key string) string {
  return "https://cdn.test/" + key
}

type fakePdf struct {
  excerpt *PdfExcerpt
  err     error
}

func (f *fakePdf) ExtractExcerpt(ctx context.Context, path string) (*PdfExcerpt, error) {
  return f.excerpt, f.err
}

type autoReplyFixture struct {
  db          *gorm.DB
  chatRepo    repos.ChatRepo
  messageRepo repos.MessageRepo
  userRepo    repos.UserRepo
  ruleRepo    repos.AutoReplyRuleRepo
  chatService ChatService
  service     AutoReplyService
  completion  *fakeCompletion
  bucket      *fakeBucket
  pdf         *fakePdf
  hub         *fakeHub
}

func newAutoReplyFixture(t *testing.T) *autoReplyFixture {
  t.Helper()
  db := testutil.OpenTestDB(t)
  log := testutil.NewTestLogger(t)
  chatRepo := repos.NewChatRepo(db, log)
  messageRepo := repos.NewMessageRepo(db, log)
  userRepo := repos.NewUserRepo(db, log)
  ruleRepo := repos.NewAutoReplyRuleRepo(db, log)
  hub := &fakeHub{}
  completion := &fakeCompletion{reply: "How can I help you today?"}
  bucket := newFakeBucket()
  pdf := &fakePdf{excerpt: &PdfExcerpt{Text: "invoice total 42.00"}}

  chatService := NewChatService(db, log, chatRepo, messageRepo, userRepo, nil, nil, nil, hub)
  ruleService := NewRuleService(db, log, ruleRepo)
  service := NewAutoReplyService(db, log, chatRepo, messageRepo, ruleService, completion, bucket, pdf, hub)

  return &autoReplyFixture{
    db:          db,
    chatRepo:    chatRepo,
    messageRepo: messageRepo,
    userRepo:    userRepo,
    ruleRepo:    ruleRepo,
    chatService: chatService,
    service:     service,
    completion:  completion,
    bucket:      bucket,
    pdf:         pdf,
    hub:         hub,
  }
}

func (fx *autoReplyFixture) postGuestMessage(t *testing.T, guest, content string, attachment *types.Attachment) (*types.Chat, *types.Message) {
  t.Helper()
  chat, msg, err := fx.chatService.AddGuestMessage(context.Background(), guest, content, attachment)
  if err != nil {
    t.Fatalf("AddGuestMessage failed: %v", err)
  }
  return chat, msg
}

func TestHandleGuestMessageGeneratesReply(t *testing.T) {
  fx := newAutoReplyFixture(t)
  ctx := context.Background()

  chat, msg := fx.postGuestMessage(t, "guest-gen", "what are your plans?", nil)
  reply, err := fx.service.HandleGuestMessage(ctx, msg)
  if err != nil {
    t.Fatalf("HandleGuestMessage failed: %v", err)
  }
  if reply == nil {
    t.Fatalf("expected a bot reply")
  }
  if reply.Sender != types.SenderBot || !reply.IsAutoReply || reply.Content != "How can I help you today?" {
    t.Fatalf("bot reply malformed: %+v", reply)
  }

  stored, err := fx.messageRepo.GetByID(ctx, nil, reply.ID)
  if err != nil {
    t.Fatalf("bot reply not persisted: %v", err)
  }
  if stored.ChatID != chat.ID {
    t.Fatalf("bot reply stored on wrong chat")
  }
  if fx.completion.calls != 1 {
    t.Fatalf("expected exactly one completion call, got %d", fx.completion.calls)
  }
}

func TestHandleGuestMessageSkipsIneligibleChat(t *testing.T) {
  fx := newAutoReplyFixture(t)
  ctx := context.Background()

  agent := &types.User{Email: "busy@example.com"}
  if _, err := fx.userRepo.Create(ctx, nil, agent); err != nil {
    t.Fatalf("failed to create agent: %v", err)
  }
  chat, msg := fx.postGuestMessage(t, "guest-skip", "anyone there?", nil)
  if _, err := fx.chatService.AssignAgent(ctx, chat.ID, agent.ID); err != nil {
    t.Fatalf("AssignAgent failed: %v", err)
  }

  reply, err := fx.service.HandleGuestMessage(ctx, msg)
  if err != nil {
    t.Fatalf("HandleGuestMessage failed: %v", err)
  }
  if reply != nil {
    t.Fatalf("human-owned chat must not get a bot reply")
  }
  if fx.completion.calls != 0 {
    t.Fatalf("completion must not be called for ineligible chats")
  }
}

func TestHandleGuestMessageRuleShortCircuit(t *testing.T) {
  fx := newAutoReplyFixture(t)
  ctx := context.Background()

  rule := &types.AutoReplyRule{Keyword: "pricing", ReplyMessage: "See our pricing page.", IsActive: true}
  if _, err := fx.ruleRepo.Create(ctx, nil, rule); err != nil {
    t.Fatalf("failed to create rule: %v", err)
  }

  _, msg := fx.postGuestMessage(t, "guest-rule", "Tell me about PRICING please", nil)
  reply, err := fx.service.HandleGuestMessage(ctx, msg)
  if err != nil {
    t.Fatalf("HandleGuestMessage failed: %v", err)
  }
  if reply == nil || reply.Content != "See our pricing page." {
    t.Fatalf("expected canned rule reply, got %+v", reply)
  }
  if fx.completion.calls != 0 {
    t.Fatalf("rule hit must skip the completion service")
  }
}

// An agent taking over while the completion is in flight must win: the
// generated text is discarded at commit time.
func TestHandleGuestMessageDiscardsAfterTakeover(t *testing.T) {
  fx := newAutoReplyFixture(t)
  ctx := context.Background()

  agent := &types.User{Email: "swoop@example.com"}
  if _, err := fx.userRepo.Create(ctx, nil, agent); err != nil {
    t.Fatalf("failed to create agent: %v", err)
  }
  chat, msg := fx.postGuestMessage(t, "guest-race", "help!", nil)

  fx.completion.beforeReply = func() {
    if _, err := fx.chatService.AssignAgent(context.Background(), chat.ID, agent.ID); err != nil {
      t.Errorf("mid-generation AssignAgent failed: %v", err)
    }
  }

  reply, err := fx.service.HandleGuestMessage(ctx, msg)
  if err != nil {
    t.Fatalf("HandleGuestMessage failed: %v", err)
  }
  if reply != nil {
    t.Fatalf("reply must be discarded after takeover")
  }
  count, err := fx.messageRepo.CountByChatID(ctx, nil, chat.ID)
  if err != nil {
    t.Fatalf("count failed: %v", err)
  }
  if count != 1 {
    t.Fatalf("expected only the guest message in the thread, got %d", count)
  }
}

func TestHandleGuestMessageEmptyCompletion(t *testing.T) {
  fx := newAutoReplyFixture(t)
  fx.completion.reply = ""

  _, msg := fx.postGuestMessage(t, "guest-empty", "hello?", nil)
  reply, err := fx.service.HandleGuestMessage(context.Background(), msg)
  if err != nil {
    t.Fatalf("HandleGuestMessage failed: %v", err)
  }
  if reply != nil {
    t.Fatalf("empty completion must produce no reply")
  }
}

func TestHandleGuestMessageIgnoresNonGuestSenders(t *testing.T) {
  fx := newAutoReplyFixture(t)
  ctx := context.Background()

  chat, _ := fx.postGuestMessage(t, "guest-bot-loop", "first", nil)
  bot := types.NewBotReply(chat.ID, "automated")
  if _, err := fx.messageRepo.Create(ctx, nil, bot); err != nil {
    t.Fatalf("failed to create bot message: %v", err)
  }
  reply, err := fx.service.HandleGuestMessage(ctx, bot)
  if err != nil {
    t.Fatalf("HandleGuestMessage failed: %v", err)
  }
  if reply != nil || fx.completion.calls != 0 {
    t.Fatalf("bot messages must never trigger another reply")
  }
}

func TestConversationContextWindow(t *testing.T) {
  fx := newAutoReplyFixture(t)
  ctx := context.Background()

  var last *types.Message
  var chat *types.Chat
  for i := 0; i < 7; i++ {
    chat, last = fx.postGuestMessage(t, "guest-window", fmt.Sprintf("message %d", i), nil)
  }

  if _, err := fx.service.GenerateReply(ctx, chat, last); err != nil {
    t.Fatalf("GenerateReply failed: %v", err)
  }
  prompt := fx.completion.lastUser

  if !strings.Contains(prompt, "Earlier messages omitted for brevity.") {
    t.Fatalf("omission marker missing from prompt:\n%s", prompt)
  }
  if !strings.Contains(prompt, "Recent conversation history (showing last 5 messages):") {
    t.Fatalf("history header missing from prompt:\n%s", prompt)
  }
  for i := 2; i <= 6; i++ {
    if !strings.Contains(prompt, fmt.Sprintf("message %d", i)) {
      t.Fatalf("message %d missing from context window:\n%s", i, prompt)
    }
  }
  for i := 0; i <= 1; i++ {
    if strings.Contains(prompt, fmt.Sprintf("Guest: message %d\n", i)) {
      t.Fatalf("message %d should be outside the context window:\n%s", i, prompt)
    }
  }
  // Chronological order inside the window.
  if strings.Index(prompt, "message 2") > strings.Index(prompt, "message 6") {
    t.Fatalf("context window not chronological:\n%s", prompt)
  }
  if !strings.Contains(prompt, "Latest message from guest:\nmessage 6") {
    t.Fatalf("latest message block missing:\n%s", prompt)
  }
}

func TestConversationContextNoOmissionMarkerForShortThreads(t *testing.T) {
  fx := newAutoReplyFixture(t)
  ctx := context.Background()

  var last *types.Message
  var chat *types.Chat
  for i := 0; i < 3; i++ {
    chat, last = fx.postGuestMessage(t, "guest-short", fmt.Sprintf("note %d", i), nil)
  }
  if _, err := fx.service.GenerateReply(ctx, chat, last); err != nil {
    t.Fatalf("GenerateReply failed: %v", err)
  }
  if strings.Contains(fx.completion.lastUser, "Earlier messages omitted for brevity.") {
    t.Fatalf("short thread must not carry the omission marker:\n%s", fx.completion.lastUser)
  }
}

func TestSenderLabels(t *testing.T) {
  fx := newAutoReplyFixture(t)
  ctx := context.Background()

  agent := &types.User{Email: "label@example.com", FirstName: "Dana", LastName: "Reyes"}
  if _, err := fx.userRepo.Create(ctx, nil, agent); err != nil {
    t.Fatalf("failed to create agent: %v", err)
  }
  chat, _ := fx.postGuestMessage(t, "guest-labels", "guest line", nil)
  if _, err := fx.messageRepo.Create(ctx, nil, types.NewAgentMessage(chat.ID, agent.ID, "agent line", nil)); err != nil {
    t.Fatalf("failed to create agent message: %v", err)
  }
  if _, err := fx.messageRepo.Create(ctx, nil, types.NewBotReply(chat.ID, "bot line")); err != nil {
    t.Fatalf("failed to create bot message: %v", err)
  }
  _, last := fx.postGuestMessage(t, "guest-labels", "latest line", nil)

  if _, err := fx.service.GenerateReply(ctx, chat, last); err != nil {
    t.Fatalf("GenerateReply failed: %v", err)
  }
  prompt := fx.completion.lastUser
  for _, want := range []string{"Guest: guest line", "Dana Reyes: agent line", "Assistant: bot line"} {
    if !strings.Contains(prompt, want) {
      t.Fatalf("prompt missing %q:\n%s", want, prompt)
    }
  }
}

func TestImageAttachmentResolvedFromBucket(t *testing.T) {
  fx := newAutoReplyFixture(t)
  ctx := context.Background()

  key := "chat-attachments/test/photo.png"
  if err := fx.bucket.UploadFile(ctx, key, bytes.NewReader([]byte{0x89, 0x50, 0x4e, 0x47})); err != nil {
    t.Fatalf("failed to stage image: %v", err)
  }
  chat, msg := fx.postGuestMessage(t, "guest-image", "look at this",
    &types.Attachment{Path: key, Type: "png", Size: 4})

  if _, err := fx.service.GenerateReply(ctx, chat, msg); err != nil {
    t.Fatalf("GenerateReply failed: %v", err)
  }
  if len(fx.completion.lastImages) != 1 {
    t.Fatalf("expected 1 image, got %d", len(fx.completion.lastImages))
  }
  if fx.completion.lastImages[0].MimeType != "image/png" {
    t.Fatalf("wrong mime type: %s", fx.completion.lastImages[0].MimeType)
  }
  if !strings.Contains(fx.completion.lastUser, "Guest included an attachment (PNG). Use it as needed.") {
    t.Fatalf("attachment note missing:\n%s", fx.completion.lastUser)
  }
}

func TestMissingImageDegradesToNote(t *testing.T) {
  fx := newAutoReplyFixture(t)
  ctx := context.Background()

  chat, msg := fx.postGuestMessage(t, "guest-missing-image", "photo attached",
    &types.Attachment{Path: "chat-attachments/gone.png", Type: "png", Size: 10})

  if _, err := fx.service.GenerateReply(ctx, chat, msg); err != nil {
    t.Fatalf("GenerateReply failed: %v", err)
  }
  if len(fx.completion.lastImages) != 0 {
    t.Fatalf("missing object must produce no images")
  }
  if !strings.Contains(fx.completion.lastUser, "Guest included an attachment (PNG). Use it as needed.") {
    t.Fatalf("attachment note must survive the missing object:\n%s", fx.completion.lastUser)
  }
}

// A failed PDF extraction degrades to the bare attachment note: the prompt is
// exactly the successful-extraction prompt minus the preview block.
func TestPdfFailureDegradesToNote(t *testing.T) {
  fx := newAutoReplyFixture(t)
  ctx := context.Background()

  key := "chat-attachments/test/doc.pdf"
  if err := fx.bucket.UploadFile(ctx, key, bytes.NewReader([]byte("%PDF-1.4"))); err != nil {
    t.Fatalf("failed to stage pdf: %v", err)
  }
  chat, msg := fx.postGuestMessage(t, "guest-pdf", "see the invoice",
    &types.Attachment{Path: key, Type: "pdf", Size: 8})

  fx.pdf.err = fmt.Errorf("extraction binary crashed")
  if _, err := fx.service.GenerateReply(ctx, chat, msg); err != nil {
    t.Fatalf("GenerateReply with failing pdf failed: %v", err)
  }
  failedPrompt := fx.completion.lastUser

  fx.pdf.err = nil
  fx.pdf.excerpt = &PdfExcerpt{Text: "invoice total 42.00", Truncated: true}
  if _, err := fx.service.GenerateReply(ctx, chat, msg); err != nil {
    t.Fatalf("GenerateReply with working pdf failed: %v", err)
  }
  successPrompt := fx.completion.lastUser

  if !strings.Contains(failedPrompt, "Guest included an attachment (PDF). Use it as needed.") {
    t.Fatalf("attachment note missing from degraded prompt:\n%s", failedPrompt)
  }
  if strings.Contains(failedPrompt, "content preview") {
    t.Fatalf("degraded prompt must not carry a preview block:\n%s", failedPrompt)
  }
  if !strings.HasPrefix(successPrompt, failedPrompt) {
    t.Fatalf("success prompt should extend the degraded prompt:\nfailed:\n%s\nsuccess:\n%s", failedPrompt, successPrompt)
  }
  if !strings.Contains(successPrompt, "PDF content preview (truncated):\ninvoice total 42.00") {
    t.Fatalf("preview block missing:\n%s", successPrompt)
  }
}
