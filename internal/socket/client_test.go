package socket

import (
  "context"
  "net/http"
  "net/http/httptest"
  "strings"
  "testing"
  "time"

  "github.com/gorilla/websocket"

  "github.com/smartchat-org/smartchat-backend/internal/testutil"
)

var testUpgrader = websocket.Upgrader{
  CheckOrigin: func(*http.Request) bool { return true },
}

// A peer disconnect makes both loops exit and both run their deferred
// close(). That must tear the client down once, not panic the process.
func TestClientSurvivesPeerDisconnect(t *testing.T) {
  log := testutil.NewTestLogger(t)
  hub := NewHub(log)

  clients := make(chan *Client, 1)
  readDone := make(chan struct{})
  srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
    conn, err := testUpgrader.Upgrade(w, r, nil)
    if err != nil {
      t.Errorf("upgrade failed: %v", err)
      return
    }
    ctx, cancel := context.WithCancel(context.Background())
    client := NewClient(conn, hub, cancel, log)
    hub.Subscribe(client, []string{AgentsChannel})
    clients <- client
    go client.WriteLoop(ctx)
    client.ReadLoop(ctx)
    close(readDone)
  }))
  defer srv.Close()

  url := "ws" + strings.TrimPrefix(srv.URL, "http")
  conn, _, err := websocket.DefaultDialer.Dial(url, nil)
  if err != nil {
    t.Fatalf("dial failed: %v", err)
  }
  client := <-clients
  _ = conn.Close()

  select {
  case <-readDone:
  case <-time.After(5 * time.Second):
    t.Fatalf("read loop did not exit after peer disconnect")
  }

  // Let the write loop observe the cancelled context and run its own
  // deferred close.
  time.Sleep(100 * time.Millisecond)

  // And closing yet again stays a no-op.
  client.close()
}
