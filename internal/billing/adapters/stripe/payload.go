package stripe

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/smallbiznis/scorebench/internal/billing/domain"
)

// expandableID accepts either a bare id or an expanded object carrying an id.
type expandableID string

func (e *expandableID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*e = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*e = expandableID(strings.TrimSpace(s))
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*e = expandableID(strings.TrimSpace(obj.ID))
	return nil
}

type stripeCheckoutSession struct {
	ID                string            `json:"id"`
	Customer          expandableID      `json:"customer"`
	Subscription      expandableID      `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	Mode              string            `json:"mode"`
	Metadata          map[string]string `json:"metadata"`
}

type stripeSubscription struct {
	ID                 string                  `json:"id"`
	Customer           expandableID            `json:"customer"`
	Status             string                  `json:"status"`
	CancelAtPeriodEnd  bool                    `json:"cancel_at_period_end"`
	CurrentPeriodStart int64                   `json:"current_period_start"`
	CurrentPeriodEnd   int64                   `json:"current_period_end"`
	Items              stripeSubscriptionItems `json:"items"`
}

type stripeSubscriptionItems struct {
	Data []stripeSubscriptionItem `json:"data"`
}

type stripeSubscriptionItem struct {
	CurrentPeriodStart int64       `json:"current_period_start"`
	CurrentPeriodEnd   int64       `json:"current_period_end"`
	Price              stripePrice `json:"price"`
}

type stripePrice struct {
	ID        string `json:"id"`
	Recurring *struct {
		Interval string `json:"interval"`
	} `json:"recurring"`
}

type stripeInvoice struct {
	ID           string       `json:"id"`
	Customer     expandableID `json:"customer"`
	Status       string       `json:"status"`
	Subscription expandableID `json:"subscription"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription expandableID `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func (s stripeCheckoutSession) toDomain() domain.CheckoutSession {
	metadata := make(map[string]string, len(s.Metadata))
	for k, v := range s.Metadata {
		metadata[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return domain.CheckoutSession{
		ID:                strings.TrimSpace(s.ID),
		CustomerID:        string(s.Customer),
		SubscriptionID:    string(s.Subscription),
		ClientReferenceID: strings.TrimSpace(s.ClientReferenceID),
		Mode:              strings.TrimSpace(s.Mode),
		Metadata:          metadata,
	}
}

// toDomain prefers item-level periods and falls back to the legacy
// subscription-level fields.
func (s stripeSubscription) toDomain() domain.ProviderSubscription {
	out := domain.ProviderSubscription{
		ID:                strings.TrimSpace(s.ID),
		CustomerID:        string(s.Customer),
		Status:            strings.TrimSpace(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
	}
	start, end := s.CurrentPeriodStart, s.CurrentPeriodEnd
	if len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		out.PriceID = strings.TrimSpace(item.Price.ID)
		if item.Price.Recurring != nil {
			out.Interval = strings.TrimSpace(item.Price.Recurring.Interval)
		}
		if item.CurrentPeriodStart > 0 {
			start = item.CurrentPeriodStart
		}
		if item.CurrentPeriodEnd > 0 {
			end = item.CurrentPeriodEnd
		}
	}
	out.PeriodStart = unixTime(start)
	out.PeriodEnd = unixTime(end)
	return out
}

func (i stripeInvoice) toDomain() domain.Invoice {
	subscriptionID := string(i.Subscription)
	if subscriptionID == "" && i.Parent != nil && i.Parent.SubscriptionDetails != nil {
		subscriptionID = string(i.Parent.SubscriptionDetails.Subscription)
	}
	return domain.Invoice{
		ID:             strings.TrimSpace(i.ID),
		CustomerID:     string(i.Customer),
		SubscriptionID: subscriptionID,
		Status:         strings.TrimSpace(i.Status),
	}
}

func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
