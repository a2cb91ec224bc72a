package email

import (
	"fmt"
	"net/smtp"
	"time"

	"github.com/jordan-wright/email"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/mdbxhq/mdbx-backend/internal/config"
	"github.com/mdbxhq/mdbx-backend/internal/cycle"
)

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
	}
}

func (s *Sender) send(e *email.Email) error {
	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	if err := e.Send(addr, auth); err != nil {
		s.logger.Errorf("Failed to send email to %v: %v", e.To, err)
		return fmt.Errorf("failed to send email: %w", err)
	}
	s.logger.Infof("Email sent to %v: %s", e.To, e.Subject)
	return nil
}

// SendContributionReceipt confirms a committed contribution
func (s *Sender) SendContributionReceipt(to string, track cycle.Track, amount decimal.Decimal, date time.Time) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{to}
	e.Subject = "Contribution Receipt"

	var body string
	switch track {
	case cycle.TrackPooled:
		body = fmt.Sprintf(
			"Your contribution of %s on %s has been added to the pooled (ICA) savings account.\n"+
				"The amount has been moved from your wallet to the cooperative pool.\n",
			amount, date.Format("2006-01-02"),
		)
	case cycle.TrackPersonal:
		body = fmt.Sprintf(
			"Your contribution of %s on %s has been recorded against your personal (PIGGY) savings.\n"+
				"The funds remain in your wallet.\n",
			amount, date.Format("2006-01-02"),
		)
	case cycle.TrackFee:
		body = fmt.Sprintf(
			"A platform fee of %s was charged to your wallet on %s.\n",
			amount, date.Format("2006-01-02"),
		)
	}
	body += "\nBest regards,\nMDBX Cooperative"
	e.Text = []byte(body)

	return s.send(e)
}

// SendInterestNotice reports an interest accrual on the pooled balance
func (s *Sender) SendInterestNotice(to string, interest, newBalance decimal.Decimal) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{to}
	e.Subject = "Interest Accrued"

	body := fmt.Sprintf(
		"Interest of %s has been added to your pooled (ICA) savings.\n"+
			"Your pooled balance is now %s.\n"+
			"\nBest regards,\nMDBX Cooperative",
		interest, newBalance,
	)
	e.Text = []byte(body)

	return s.send(e)
}
