package services

import (
  "context"
  "fmt"
  "os"

  "github.com/sendgrid/sendgrid-go"
  "github.com/sendgrid/sendgrid-go/helpers/mail"

  "github.com/smartchat-org/smartchat-backend/internal/logger"
)

type EmailService interface {
  SendEmail(ctx context.Context, toEmail string, subject string, plainText string, htmlContent string) error
}

type emailService struct {
  log       *logger.Logger
  client    *sendgrid.Client
  fromEmail string
  fromName  string
}

func NewEmailService(log *logger.Logger) (EmailService, error) {
  serviceLog := log.With("service", "EmailService")
  apiKey := os.Getenv("SENDGRID_API_KEY")
  if apiKey == "" {
    return nil, fmt.Errorf("missing SENDGRID_API_KEY environment variable")
  }
  fromEmail := os.Getenv("SENDGRID_FROM_EMAIL")
  if fromEmail == "" {
    serviceLog.Warn("SENDGRID_FROM_EMAIL not set; using fallback no-reply@smartchat.app")
    fromEmail = "no-reply@smartchat.app"
  }
  client := sendgrid.NewSendClient(apiKey)

  return &emailService{
    log:       serviceLog,
    client:    client,
    fromEmail: fromEmail,
    fromName:  "SmartChat",
  }, nil
}

func (es *emailService) SendEmail(ctx context.Context, toEmail string, subject string, plainText string, htmlContent string) error {
  from := mail.NewEmail(es.fromName, es.fromEmail)
  to := mail.NewEmail("", toEmail)
  message := mail.NewSingleEmail(from, subject, to, plainText, htmlContent)

  resp, err := es.client.Send(message)
  if err != nil {
    es.log.Warn("Failed to send email via Sendgrid", "toEmail", toEmail, "error", err)
    return err
  }
  if resp.StatusCode >= 400 {
    es.log.Warn("Sendgrid responded with non-2xx", "toEmail", toEmail, "statusCode", resp.StatusCode, "body", resp.Body)
    return fmt.Errorf("sendgrid HTTP %d", resp.StatusCode)
  }
  es.log.Info("Successfully sent email via Sendgrid", "toEmail", toEmail, "subject", subject)
  return nil
}
