package demo

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/northbridge-ai/switchboard/pkg/types"
)

// Shipping handles order status, tracking and returns.
type Shipping struct {
	patterns []pattern
}

// NewShipping returns the shipping agent.
func NewShipping() *Shipping {
	return &Shipping{patterns: shippingPatterns()}
}

func shippingPatterns() []pattern {
	return []pattern{
		{regexp.MustCompile(`\borders?\b`), 0.6},
		{regexp.MustCompile(`\btrack(ing|ed)?\b`), 0.6},
		{regexp.MustCompile(`\b(ship(ping|ped|ment)?|deliver(y|ed|ies)?|package|parcel|courier)\b`), 0.5},
		{regexp.MustCompile(`\bwhere\s+is\s+my\b`), 0.3},
		{regexp.MustCompile(`\b(status|eta|arriv(e|ing|al)|late|delayed)\b`), 0.25},
		{regexp.MustCompile(`\b(returns?|refunds?|exchange)\b`), 0.5},
		{regexp.MustCompile(`\b1z[0-9a-z]{8,}\b`), 0.5},
		{regexp.MustCompile(`\b\d{6,10}\b`), 0.2},
	}
}

var (
	trackingRe     = regexp.MustCompile(`(?i)\b(1z[0-9a-z]{8,16})\b`)
	bareTrackingRe = regexp.MustCompile(`\b(\d{12,22})\b`)
	orderNumberRe  = regexp.MustCompile(`\b(\d{6,10})\b`)

	returnTopicRe = regexp.MustCompile(`(?i)\b(returns?|refunds?|exchange|send\s+(it\s+)?back)\b`)
	orderTopicRe  = regexp.MustCompile(`(?i)\b(orders?|track(ing)?|deliver(y|ed)?|package|parcel|shipment|shipping)\b`)
)

func (s *Shipping) ID() string   { return "shipping" }
func (s *Shipping) Name() string { return "Shipping" }

func (s *Shipping) Description() string {
	return "Order status, package tracking and returns"
}

func (s *Shipping) CanHandle(_ context.Context, input string, _ types.Context) (float64, error) {
	return capability(input, s.patterns), nil
}

func (s *Shipping) Process(ctx context.Context, input string, tc types.Context) (*types.HandlerResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if isFarewell(input) {
		return &types.HandlerResult{
			Text:      "Glad I could help with the delivery. Anything else, just ask.",
			IsClosing: true,
			Metadata:  map[string]any{"topic": "farewell"},
		}, nil
	}

	entities := map[string]string{}
	tracking := strings.ToUpper(trackingRe.FindString(input))
	if tracking == "" {
		tracking = bareTrackingRe.FindString(input)
	}
	if tracking != "" {
		entities["tracking_number"] = tracking
	} else {
		tracking = tc.Entities["tracking_number"]
	}
	orderID := orderNumberRe.FindString(input)
	if orderID != "" {
		entities["order_id"] = orderID
	} else {
		orderID = tc.Entities["order_id"]
	}

	switch {
	case returnTopicRe.MatchString(input):
		if orderID == "" {
			return &types.HandlerResult{
				Text:                  "I can start a return. Which order number is it for?",
				ContinueWithSameAgent: true,
				ExtractedEntities:     entities,
				Metadata:              map[string]any{"topic": "return"},
			}, nil
		}
		return &types.HandlerResult{
			Text:              fmt.Sprintf("I've started a return for order #%s. A prepaid label will land in your inbox shortly.", orderID),
			ExtractedEntities: entities,
			Metadata:          map[string]any{"topic": "return"},
		}, nil

	case tracking != "":
		return &types.HandlerResult{
			Text:              fmt.Sprintf("Tracking %s: the package cleared the regional hub this morning and is on schedule.", tracking),
			ExtractedEntities: entities,
			Metadata:          map[string]any{"topic": "tracking"},
		}, nil

	case orderID != "":
		return &types.HandlerResult{
			Text:              fmt.Sprintf("Order #%s %s.", orderID, orderStatus(orderID)),
			ExtractedEntities: entities,
			Metadata:          map[string]any{"topic": "status"},
		}, nil

	case orderTopicRe.MatchString(input):
		return &types.HandlerResult{
			Text:                  "Happy to check on that. What's the order number?",
			ContinueWithSameAgent: true,
			ExtractedEntities:     entities,
			Metadata:              map[string]any{"topic": "status"},
		}, nil

	default:
		return &types.HandlerResult{
			Text:                  "I handle orders, deliveries and returns. Do you have an order number handy?",
			ContinueWithSameAgent: true,
			ExtractedEntities:     entities,
			Metadata:              map[string]any{"topic": "shipping"},
		}, nil
	}
}

// orderStatus derives a stable canned status from the order number, so the
// same order always reports the same stage.
func orderStatus(orderID string) string {
	statuses := []string{
		"is being packed at the warehouse",
		"has shipped and is on its way",
		"is out for delivery today",
		"was delivered; check around your door",
	}
	var sum int
	for _, r := range orderID {
		sum += int(r - '0')
	}
	return statuses[sum%len(statuses)]
}
