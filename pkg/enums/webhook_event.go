package enums

import "fmt"

// WebhookEvent names a subscription lifecycle event endpoints may subscribe to.
type WebhookEvent string

const (
	EventSubscriptionCreated  WebhookEvent = "subscription_created"
	EventSubscriptionUpdated  WebhookEvent = "subscription_updated"
	EventSubscriptionCanceled WebhookEvent = "subscription_canceled"
	EventSubscriptionExpired  WebhookEvent = "subscription_expired"
	EventSubscriptionRenewed  WebhookEvent = "subscription_renewed"
)

var validWebhookEvents = []WebhookEvent{
	EventSubscriptionCreated,
	EventSubscriptionUpdated,
	EventSubscriptionCanceled,
	EventSubscriptionExpired,
	EventSubscriptionRenewed,
}

// String implements fmt.Stringer.
func (e WebhookEvent) String() string {
	return string(e)
}

// IsValid reports whether the value is a known WebhookEvent.
func (e WebhookEvent) IsValid() bool {
	for _, candidate := range validWebhookEvents {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseWebhookEvent converts raw input into a WebhookEvent.
func ParseWebhookEvent(value string) (WebhookEvent, error) {
	for _, candidate := range validWebhookEvents {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid webhook event %q", value)
}

// WebhookEvents returns every known event name as strings, for validation
// hints and endpoint subscription checks.
func WebhookEvents() []string {
	out := make([]string, 0, len(validWebhookEvents))
	for _, event := range validWebhookEvents {
		out = append(out, string(event))
	}
	return out
}
