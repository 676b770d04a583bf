package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrz1836/postmark"
)

// Config holds Postmark configuration. Tokens are optional so that
// development environments can run with the NopNotifier instead.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"RECEIPT_SENDER_EMAIL"`
}

var (
	ErrInvalidConfig      = errors.New("invalid notification config")
	ErrFailedToSendEmail  = errors.New("failed to send notification email")
	ErrNoRecipientAddress = errors.New("receipt has no recipient address")
)

type postmarkNotifier struct {
	client *postmark.Client
	config Config
}

// NewPostmarkNotifier creates a Postmark-backed receipt notifier.
func NewPostmarkNotifier(cfg Config) (Notifier, error) {
	if cfg.PostmarkServerToken == "" || cfg.PostmarkAccountToken == "" {
		return nil, fmt.Errorf("%w: postmark tokens are required", ErrInvalidConfig)
	}
	if cfg.SenderEmail == "" {
		return nil, fmt.Errorf("%w: RECEIPT_SENDER_EMAIL is required", ErrInvalidConfig)
	}
	return &postmarkNotifier{
		client: postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		config: cfg,
	}, nil
}

func (n *postmarkNotifier) PurchaseReceipt(ctx context.Context, receipt Receipt) error {
	if receipt.Email == "" {
		return ErrNoRecipientAddress
	}

	resp, err := n.client.SendEmail(ctx, postmark.Email{
		From:    n.config.SenderEmail,
		To:      receipt.Email,
		Subject: "Your credits are ready",
		Tag:     "purchase-receipt",
		TextBody: fmt.Sprintf(
			"Thanks for your purchase! %s credits (package %s) have been added to your account.\nPayment reference: %s\n",
			receipt.Credits.String(), receipt.PackageID, receipt.PaymentRef),
	})
	if err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(ErrFailedToSendEmail,
			fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message))
	}
	return nil
}
