package types

import (
  "testing"

  "github.com/google/uuid"
)

func TestChatState(t *testing.T) {
  agentID := uuid.New()

  cases := []struct {
    name string
    chat Chat
    want ChatState
    auto bool
  }{
    {"fresh chat is bot owned", Chat{AutoReplyEnabled: true}, ChatStateBotOwned, true},
    {"assigned chat is human owned", Chat{AgentID: &agentID, AutoReplyEnabled: false}, ChatStateHumanOwned, false},
    {"unassigned with flag off is suspended", Chat{AutoReplyEnabled: false}, ChatStateSuspended, false},
    // A stale true flag on an assigned chat must not make the bot answer.
    {"assigned chat with flag on", Chat{AgentID: &agentID, AutoReplyEnabled: true}, ChatStateHumanOwned, false},
  }
  for _, tc := range cases {
    if got := tc.chat.State(); got != tc.want {
      t.Fatalf("%s: state = %q, want %q", tc.name, got, tc.want)
    }
    if got := tc.chat.EligibleForAutoReply(); got != tc.auto {
      t.Fatalf("%s: eligible = %v, want %v", tc.name, got, tc.auto)
    }
  }
}

func TestUserDisplayName(t *testing.T) {
  named := User{FirstName: "Dana", LastName: "Reyes"}
  if got := named.DisplayName(); got != "Dana Reyes" {
    t.Fatalf("DisplayName = %q, want %q", got, "Dana Reyes")
  }
  anonymous := User{}
  if got := anonymous.DisplayName(); got != "Agent" {
    t.Fatalf("DisplayName = %q, want %q", got, "Agent")
  }
}
