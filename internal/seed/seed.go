package seed

import (
  "context"
  "fmt"

  "golang.org/x/crypto/bcrypt"
  "gorm.io/gorm"

  "github.com/smartchat-org/smartchat-backend/internal/repos"
  "github.com/smartchat-org/smartchat-backend/internal/types"
  "github.com/smartchat-org/smartchat-backend/internal/utils"
)

// SeedAll provisions the initial admin account and a starter set of global
// canned-reply rules. Everything here is idempotent: existing rows win.
func SeedAll(db *gorm.DB, userRepo repos.UserRepo, ruleRepo repos.AutoReplyRuleRepo) error {
  ctx := context.Background()

  adminEmail := utils.GetEnv("SEED_ADMIN_EMAIL", "admin@smartchat.app", nil)
  adminPassword := utils.GetEnv("SEED_ADMIN_PASSWORD", "", nil)
  fmt.Println("Running SeedAll... seeding admin user and auto-reply rules")

  if adminPassword != "" {
    exists, err := userRepo.EmailExists(ctx, nil, adminEmail)
    if err != nil {
      return fmt.Errorf("failed to check for existing admin: %w", err)
    }
    if !exists {
      hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
      if err != nil {
        return fmt.Errorf("failed to hash admin password: %w", err)
      }
      admin := &types.User{
        Email:     adminEmail,
        Password:  string(hash),
        FirstName: "Admin",
        LastName:  "User",
        UserType:  types.UserTypeAdmin,
      }
      if _, err := userRepo.Create(ctx, nil, admin); err != nil {
        return fmt.Errorf("failed to create admin user: %w", err)
      }
    }
  }

  defaults := []types.AutoReplyRule{
    {Keyword: "pricing", ReplyMessage: "You can find our current plans and pricing at https://smartchat.app/pricing. Let me know if you have questions about a specific plan!", IsActive: true},
    {Keyword: "refund", ReplyMessage: "Refund requests are handled by our billing team. Please share your order number and an agent will follow up shortly.", IsActive: true},
    {Keyword: "business hours", ReplyMessage: "Our support team is available Monday through Friday, 9am to 6pm UTC. Outside those hours I am happy to help!", IsActive: true},
  }
  existing, err := ruleRepo.List(ctx, nil)
  if err != nil {
    return fmt.Errorf("failed to list auto-reply rules: %w", err)
  }
  have := make(map[string]bool, len(existing))
  for _, rule := range existing {
    have[rule.Keyword] = true
  }
  for i := range defaults {
    if have[defaults[i].Keyword] {
      continue
    }
    if _, err := ruleRepo.Create(ctx, nil, &defaults[i]); err != nil {
      return fmt.Errorf("failed to seed auto-reply rule %q: %w", defaults[i].Keyword, err)
    }
  }

  fmt.Println("SeedAll Complete!")
  return nil
}
