package scheduler

import (
  "context"
  "time"

  "github.com/smartchat-org/smartchat-backend/internal/logger"
  "github.com/smartchat-org/smartchat-backend/internal/services"
  "github.com/smartchat-org/smartchat-backend/internal/utils"
)

const (
  defaultSweepInterval = 5 * time.Minute
  defaultIdleThreshold = 15 * time.Minute
)

// IdleSweeper periodically releases chats whose assigned agent has gone
// quiet, handing them back to the bot. Sweeps never overlap: the next tick
// waits for the previous pass to finish.
type IdleSweeper struct {
  log         *logger.Logger
  chatService services.ChatService
  interval    time.Duration
  threshold   time.Duration
  stop        chan struct{}
  done        chan struct{}
}

func NewIdleSweeper(log *logger.Logger, chatService services.ChatService) *IdleSweeper {
  sweeperLog := log.With("scheduler", "IdleSweeper")
  return &IdleSweeper{
    log:         sweeperLog,
    chatService: chatService,
    interval:    utils.GetEnvAsDuration("IDLE_SWEEP_INTERVAL", defaultSweepInterval, sweeperLog),
    threshold:   utils.GetEnvAsDuration("IDLE_RELEASE_THRESHOLD", defaultIdleThreshold, sweeperLog),
    stop:        make(chan struct{}),
    done:        make(chan struct{}),
  }
}

func (is *IdleSweeper) Start() {
  is.log.Info("idle sweeper starting", "interval", is.interval, "threshold", is.threshold)
  go is.run()
}

func (is *IdleSweeper) run() {
  defer close(is.done)
  ticker := time.NewTicker(is.interval)
  defer ticker.Stop()
  for {
    select {
    case <-is.stop:
      return
    case <-ticker.C:
      is.sweep()
    }
  }
}

func (is *IdleSweeper) sweep() {
  ctx, cancel := context.WithTimeout(context.Background(), is.interval)
  defer cancel()
  released, err := is.chatService.ReactivateIdleChats(ctx, is.threshold)
  if err != nil {
    is.log.Warn("idle sweep failed", "error", err)
    return
  }
  if released > 0 {
    is.log.Info("idle sweep completed", "released", released)
  }
}

func (is *IdleSweeper) Stop() {
  close(is.stop)
  <-is.done
  is.log.Info("idle sweeper stopped")
}
