package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/promo-storefront/internal/common"
	"github.com/noah-isme/promo-storefront/internal/events"
)

// EmailNotifier sends transactional emails for selected topics.
type EmailNotifier struct {
	Mail         common.EmailSender
	Enabled      bool
	TopicToggles map[string]bool
}

// Notify implements the events.Notifier interface.
func (n EmailNotifier) Notify(_ context.Context, event events.Event) error {
	if !n.Enabled || n.Mail == nil {
		return nil
	}
	if !topicEnabled(n.TopicToggles, event.Topic) {
		return nil
	}
	payload, err := decodePayload(event)
	if err != nil {
		return err
	}
	to := extractRecipient(payload)
	if to == "" {
		return nil
	}
	return n.Mail.Send(to, subjectFor(event.Topic), bodyFor(event.Topic, payload, event.OccurredAt))
}

// OpsNotifier mails operators about events that need manual follow-up, such
// as a captured charge without an order.
type OpsNotifier struct {
	Mail    common.EmailSender
	To      string
	Enabled bool
}

// Notify implements the events.Notifier interface.
func (n OpsNotifier) Notify(_ context.Context, event events.Event) error {
	if !n.Enabled || n.Mail == nil || strings.TrimSpace(n.To) == "" {
		return nil
	}
	if !events.Critical(event.Topic) {
		return nil
	}
	payload, err := decodePayload(event)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("[action required] %s", event.Topic)
	return n.Mail.Send(n.To, subject, opsBody(event, payload))
}

// LogSender is an EmailSender that writes messages to the log instead of
// delivering them. It is the default when no mail transport is configured.
type LogSender struct {
	Logger *zerolog.Logger
}

// Send implements common.EmailSender.
func (s LogSender) Send(to, subject, html string) error {
	if s.Logger == nil {
		return nil
	}
	s.Logger.Info().
		Str("to", to).
		Str("subject", subject).
		Int("body_bytes", len(html)).
		Msg("email_outbound")
	return nil
}

func topicEnabled(toggles map[string]bool, topic string) bool {
	if toggles == nil {
		return true
	}
	enabled, ok := toggles[topic]
	return !ok || enabled
}

func decodePayload(event events.Event) (map[string]any, error) {
	payload := map[string]any{}
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return nil, fmt.Errorf("email notify: decode payload: %w", err)
		}
	}
	return payload, nil
}

func extractRecipient(payload map[string]any) string {
	keys := []string{"email", "recipient", "userEmail", "customerEmail"}
	for _, key := range keys {
		if val, ok := payload[key]; ok {
			if s, ok := val.(string); ok {
				s = strings.TrimSpace(s)
				if s != "" {
					return s
				}
			}
		}
	}
	return ""
}

func subjectFor(topic string) string {
	switch topic {
	case events.TopicOrderCreated:
		return "Your order has been placed"
	case events.TopicPaymentCaptured:
		return "Payment received"
	case events.TopicPaymentDeclined:
		return "Payment declined"
	case events.TopicCheckoutChargeVoided:
		return "Your payment has been refunded"
	default:
		return fmt.Sprintf("Notification: %s", topic)
	}
}

func bodyFor(topic string, payload map[string]any, occurred time.Time) string {
	summary := fmt.Sprintf("Event %s occurred at %s.", topic, occurred.UTC().Format(time.RFC3339))
	if orderID, ok := payload["order_id"].(string); ok && orderID != "" {
		summary += fmt.Sprintf("\nOrder: %s", orderID)
	}
	if total, ok := payload["amount_total"].(string); ok && total != "" {
		summary += fmt.Sprintf("\nTotal: %s", total)
	}
	if note, ok := payload["message"].(string); ok && note != "" {
		summary += "\n" + note
	}
	return summary
}

func opsBody(event events.Event, payload map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Event %s (%s) at %s\n", event.Topic, event.ID, event.OccurredAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Attempt: %s\n", event.AggregateID)
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %v\n", k, payload[k])
	}
	return b.String()
}
