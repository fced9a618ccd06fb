package notification

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/propfolio/backend/internal/application/alerting"
	"github.com/propfolio/backend/internal/application/settlement"
	"github.com/propfolio/backend/internal/domain/billing"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// MailerConfig holds SMTP connection configuration
type MailerConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     int    `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	From     string `json:"from" mapstructure:"from"`
}

// DefaultMailerConfig returns a default configuration for development
func DefaultMailerConfig() *MailerConfig {
	return &MailerConfig{
		Port: 587,
		From: "billing@propfolio.example",
	}
}

// Validate validates the mailer configuration
func (c *MailerConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("mailer: SMTP host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("mailer: invalid SMTP port %d", c.Port)
	}
	if c.From == "" {
		return fmt.Errorf("mailer: from address is required")
	}
	return nil
}

// Mailer delivers usage alerts and overage receipts over SMTP. It implements
// both mailer ports so one SMTP client serves the alerter and the settler.
type Mailer struct {
	client      *mail.Client
	from        string
	logger      *zap.Logger
	alertTmpl   *template.Template
	receiptTmpl *template.Template
}

// NewMailer creates a new SMTP mailer
func NewMailer(cfg *MailerConfig, logger *zap.Logger) (*Mailer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("mailer: failed to create SMTP client: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Mailer{
		client:      client,
		from:        cfg.From,
		logger:      logger,
		alertTmpl:   template.Must(template.New("usage_alert").Parse(usageAlertBody)),
		receiptTmpl: template.Must(template.New("overage_receipt").Parse(overageReceiptBody)),
	}, nil
}

// alertData is the template input for a usage alert email
type alertData struct {
	TenantName string
	Service    string
	Usage      string
	Percent    string
	Period     string
	Critical   bool
}

func buildAlertData(alert alerting.UsageAlert) alertData {
	unit := alert.Service.Unit()
	return alertData{
		TenantName: alert.Tenant.Name,
		Service:    alert.Service.DisplayName(),
		Usage:      fmt.Sprintf("%s of %s", unit.FormatValue(alert.Usage.Used), unit.FormatValue(alert.Usage.Limit)),
		Percent:    fmt.Sprintf("%.0f", alert.Usage.Percentage()),
		Period:     alert.Period,
		Critical:   alert.Threshold == billing.ThresholdCritical,
	}
}

// SendUsageAlert sends one usage threshold alert email
func (m *Mailer) SendUsageAlert(ctx context.Context, alert alerting.UsageAlert) error {
	data := buildAlertData(alert)

	body, err := render(m.alertTmpl, data)
	if err != nil {
		return fmt.Errorf("mailer: failed to render alert body: %w", err)
	}

	subject := fmt.Sprintf("Usage warning: %s at %s%%", data.Service, data.Percent)
	if data.Critical {
		subject = fmt.Sprintf("Quota reached: %s", data.Service)
	}

	if err := m.send(ctx, alert.Tenant.BillingEmail, subject, body); err != nil {
		return err
	}

	m.logger.Info("Sent usage alert email",
		zap.String("to", alert.Tenant.BillingEmail),
		zap.String("service", string(alert.Service)),
		zap.Int("threshold", int(alert.Threshold)))
	return nil
}

// receiptLine is one invoice line in the receipt template input
type receiptLine struct {
	Description string
	Amount      string
}

// receiptData is the template input for an overage receipt email
type receiptData struct {
	TenantName string
	Period     string
	Total      string
	Currency   string
	Lines      []receiptLine
}

// SendOverageReceipt sends one overage receipt email
func (m *Mailer) SendOverageReceipt(ctx context.Context, receipt settlement.OverageReceipt) error {
	data := receiptData{
		TenantName: receipt.Tenant.Name,
		Period:     receipt.Period,
		Total:      receipt.Total.StringFixed(2),
		Currency:   receipt.Invoice.Currency,
		Lines:      make([]receiptLine, 0, len(receipt.Invoice.Lines)),
	}
	for _, line := range receipt.Invoice.Lines {
		data.Lines = append(data.Lines, receiptLine{
			Description: line.Description,
			Amount:      line.Amount.StringFixed(2),
		})
	}

	body, err := render(m.receiptTmpl, data)
	if err != nil {
		return fmt.Errorf("mailer: failed to render receipt body: %w", err)
	}

	subject := fmt.Sprintf("Usage overage invoice for %s", receipt.Period)
	if err := m.send(ctx, receipt.Tenant.BillingEmail, subject, body); err != nil {
		return err
	}

	m.logger.Info("Sent overage receipt email",
		zap.String("to", receipt.Tenant.BillingEmail),
		zap.String("period", receipt.Period),
		zap.String("total", receipt.Total.StringFixed(2)))
	return nil
}

func (m *Mailer) send(ctx context.Context, to, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("mailer: invalid from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("mailer: invalid recipient address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, body)

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("mailer: failed to send email: %w", err)
	}
	return nil
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const usageAlertBody = `<html>
<body>
  <p>Hello {{.TenantName}},</p>
  {{if .Critical}}
  <p>Your monthly quota for <strong>{{.Service}}</strong> has been reached
  ({{.Usage}}). Further usage this month will be billed as overage or
  refused, depending on your plan.</p>
  {{else}}
  <p>Your monthly usage of <strong>{{.Service}}</strong> has reached
  {{.Percent}}% of your plan quota ({{.Usage}}).</p>
  {{end}}
  <p>Billing period: {{.Period}}</p>
  <p>You can review your usage in the dashboard under Settings &gt; Usage.</p>
</body>
</html>`

const overageReceiptBody = `<html>
<body>
  <p>Hello {{.TenantName}},</p>
  <p>Your usage in {{.Period}} exceeded the quotas included in your plan.
  The overage below has been invoiced.</p>
  <table>
    {{range .Lines}}
    <tr><td>{{.Description}}</td><td align="right">{{.Amount}} {{$.Currency}}</td></tr>
    {{end}}
    <tr><td><strong>Total</strong></td><td align="right"><strong>{{.Total}} {{.Currency}}</strong></td></tr>
  </table>
  <p>The invoice will be delivered separately by our payment provider.</p>
</body>
</html>`

// Ensure Mailer implements both mailer ports
var (
	_ alerting.AlertMailer     = (*Mailer)(nil)
	_ settlement.ReceiptMailer = (*Mailer)(nil)
)
