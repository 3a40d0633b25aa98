package service

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/rs/zerolog"
)

// sesAPI is the part of the SES client the service uses.
type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// EmailService handles sending emails via Amazon SES
type EmailService struct {
	client    sesAPI
	fromEmail string
	fromName  string
	enabled   bool
	log       zerolog.Logger
}

// NewEmailService creates a new email service. An empty fromEmail yields a
// disabled service that skips every send.
func NewEmailService(ctx context.Context, awsRegion, fromEmail, fromName string, log zerolog.Logger) (*EmailService, error) {
	if fromEmail == "" {
		log.Info().Msg("email_disabled")
		return &EmailService{log: log}, nil
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(awsRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	log.Info().Str("from", fromEmail).Str("region", awsRegion).Msg("email_enabled")
	return newEmailService(sesv2.NewFromConfig(cfg), fromEmail, fromName, log), nil
}

func newEmailService(client sesAPI, fromEmail, fromName string, log zerolog.Logger) *EmailService {
	return &EmailService{
		client:    client,
		fromEmail: fromEmail,
		fromName:  fromName,
		enabled:   true,
		log:       log,
	}
}

// IsEnabled returns whether the email service is enabled
func (s *EmailService) IsEnabled() bool {
	return s.enabled
}

// SendWelcomeEmail sends a welcome email to new readers
func (s *EmailService) SendWelcomeEmail(ctx context.Context, toEmail, toName string) error {
	if !s.enabled {
		s.log.Debug().Str("to", toEmail).Msg("email_skipped")
		return nil
	}

	subject := "Welcome to ReadAlong!"
	htmlBody := fmt.Sprintf(emailLayout, "Welcome to ReadAlong!", fmt.Sprintf(`
			<p>Hi %s,</p>
			<p>Your account is ready. Pick a story, share your session code with a friend and take turns reading sentences out loud.</p>
			<p>Every sentence you read well earns points for your profile.</p>`, toName))

	textBody := fmt.Sprintf(`Hi %s,

Your account is ready. Pick a story, share your session code with a friend and take turns reading sentences out loud.

Every sentence you read well earns points for your profile.
%s`, toName, textFooter)

	return s.sendEmail(ctx, toEmail, subject, htmlBody, textBody)
}

// SendSessionSummary tells a reader how many points a finished session earned
func (s *EmailService) SendSessionSummary(ctx context.Context, toEmail, toName string, points, total int) error {
	if !s.enabled {
		s.log.Debug().Str("to", toEmail).Msg("email_skipped")
		return nil
	}

	subject := fmt.Sprintf("Great reading! You earned %d points", points)
	htmlBody := fmt.Sprintf(emailLayout, "Reading session complete", fmt.Sprintf(`
			<p>Hi %s,</p>
			<p>You just finished a reading session and earned <strong>%d points</strong>.</p>
			<p>Your total score is now <strong>%d</strong>. Keep it up!</p>`, toName, points, total))

	textBody := fmt.Sprintf(`Hi %s,

You just finished a reading session and earned %d points.

Your total score is now %d. Keep it up!
%s`, toName, points, total, textFooter)

	return s.sendEmail(ctx, toEmail, subject, htmlBody, textBody)
}

const emailLayout = `
<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<style>
		body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
		.container { max-width: 600px; margin: 0 auto; padding: 20px; }
		.header { background-color: #f5a623; color: white; padding: 20px; text-align: center; border-radius: 5px 5px 0 0; }
		.content { background-color: #f9f9f9; padding: 30px; border-radius: 0 0 5px 5px; }
		.footer { text-align: center; margin-top: 20px; font-size: 12px; color: #666; }
	</style>
</head>
<body>
	<div class="container">
		<div class="header">
			<h1>%s</h1>
		</div>
		<div class="content">%s
		</div>
		<div class="footer">
			<p>This is an automated email from ReadAlong. Please do not reply.</p>
		</div>
	</div>
</body>
</html>
`

const textFooter = `
---
This is an automated email from ReadAlong. Please do not reply.
`

// sendEmail sends an email using Amazon SES
func (s *EmailService) sendEmail(ctx context.Context, toEmail, subject, htmlBody, textBody string) error {
	fromAddress := s.fromEmail
	if s.fromName != "" {
		fromAddress = fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{toEmail},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Html: &types.Content{
						Data:    aws.String(htmlBody),
						Charset: aws.String("UTF-8"),
					},
					Text: &types.Content{
						Data:    aws.String(textBody),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", toEmail, err)
	}

	event := s.log.Info().Str("to", toEmail).Str("subject", subject)
	if result.MessageId != nil {
		event = event.Str("message_id", *result.MessageId)
	}
	event.Msg("email_sent")
	return nil
}
