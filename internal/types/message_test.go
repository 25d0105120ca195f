package types

import (
  "testing"

  "github.com/google/uuid"
)

func TestMessageConstructors(t *testing.T) {
  chatID := uuid.New()
  agentID := uuid.New()

  guest := NewGuestMessage(chatID, "hello", nil)
  if guest.Sender != SenderGuest || guest.UserID != nil || guest.IsAutoReply {
    t.Fatalf("guest message invariant broken: %+v", guest)
  }
  if err := guest.Validate(); err != nil {
    t.Fatalf("guest message should validate: %v", err)
  }

  agent := NewAgentMessage(chatID, agentID, "hi there", nil)
  if agent.Sender != SenderAgent || agent.UserID == nil || *agent.UserID != agentID || agent.IsAutoReply {
    t.Fatalf("agent message invariant broken: %+v", agent)
  }
  if err := agent.Validate(); err != nil {
    t.Fatalf("agent message should validate: %v", err)
  }

  bot := NewBotReply(chatID, "automated answer")
  if bot.Sender != SenderBot || bot.UserID != nil || !bot.IsAutoReply {
    t.Fatalf("bot message invariant broken: %+v", bot)
  }
  if err := bot.Validate(); err != nil {
    t.Fatalf("bot message should validate: %v", err)
  }
}

func TestMessageValidateRejectsMixedStates(t *testing.T) {
  chatID := uuid.New()
  agentID := uuid.New()

  cases := []struct {
    name string
    msg  Message
  }{
    {"guest with user", Message{ChatID: chatID, Sender: SenderGuest, UserID: &agentID}},
    {"guest auto-reply", Message{ChatID: chatID, Sender: SenderGuest, IsAutoReply: true}},
    {"agent without user", Message{ChatID: chatID, Sender: SenderAgent}},
    {"agent auto-reply", Message{ChatID: chatID, Sender: SenderAgent, UserID: &agentID, IsAutoReply: true}},
    {"bot with user", Message{ChatID: chatID, Sender: SenderBot, UserID: &agentID, IsAutoReply: true}},
    {"bot without auto-reply flag", Message{ChatID: chatID, Sender: SenderBot}},
    {"unknown sender", Message{ChatID: chatID, Sender: "system"}},
  }
  for _, tc := range cases {
    if err := tc.msg.Validate(); err == nil {
      t.Fatalf("%s: expected validation error", tc.name)
    }
  }
}

func TestMessageAttachment(t *testing.T) {
  chatID := uuid.New()

  plain := NewGuestMessage(chatID, "no file", nil)
  if plain.HasAttachment() {
    t.Fatalf("message without attachment reported one")
  }

  img := NewGuestMessage(chatID, "see photo", &Attachment{Path: "chat-attachments/x.png", Type: "png", Size: 1234})
  if !img.HasAttachment() || !img.AttachmentIsImage() || img.AttachmentIsPdf() {
    t.Fatalf("png attachment misclassified: %+v", img)
  }

  pdf := NewGuestMessage(chatID, "see doc", &Attachment{Path: "chat-attachments/x.pdf", Type: "pdf", Size: 99})
  if !pdf.HasAttachment() || pdf.AttachmentIsImage() || !pdf.AttachmentIsPdf() {
    t.Fatalf("pdf attachment misclassified: %+v", pdf)
  }
}
