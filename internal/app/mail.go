package app

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

// Mail interfaces selectable through system.mail:interface.default.
const (
	MailLog       = "log_mail"
	MailCollector = "test_mail_collector"
)

// MailCollectorKey is the state key the collector appends to.
const MailCollectorKey = "system.test_mail_collector"

// Mail is one outgoing message.
type Mail struct {
	ID      string            `json:"id"`
	To      string            `json:"to"`
	Subject string            `json:"subject"`
	Body    string            `json:"body"`
	Params  map[string]string `json:"params,omitempty"`
	Sent    int64             `json:"sent"`
}

// MailManager sends mail through the configured interface.
type MailManager struct {
	config *ConfigFactory
	state  *State
	logger *log.Logger
}

// NewMailManager creates the mail service.
func NewMailManager(config *ConfigFactory, state *State, logger *log.Logger) *MailManager {
	return &MailManager{config: config, state: state, logger: logger}
}

// Send delivers m.
func (m *MailManager) Send(ctx context.Context, mail Mail) error {
	cfg, err := m.config.Get(ctx, "system.mail")
	if err != nil {
		return err
	}
	mail.Sent = time.Now().Unix()

	switch iface := cfg.GetString("interface.default"); iface {
	case MailCollector:
		var collected []Mail
		if _, err := m.state.Get(ctx, MailCollectorKey, &collected); err != nil {
			return err
		}
		return m.state.Set(ctx, MailCollectorKey, append(collected, mail))
	case MailLog, "":
		m.logger.Info("mail sent", "id", mail.ID, "to", mail.To, "subject", mail.Subject)
		return nil
	default:
		return fmt.Errorf("unknown mail interface %q", iface)
	}
}

// Collected returns the mails captured by the test collector.
func (m *MailManager) Collected(ctx context.Context) ([]Mail, error) {
	var collected []Mail
	if _, err := m.state.Get(ctx, MailCollectorKey, &collected); err != nil {
		return nil, err
	}
	return collected, nil
}
