package demo

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/northbridge-ai/switchboard/pkg/types"
)

// Stores finds nearby store locations and answers hours questions.
type Stores struct {
	patterns []pattern
}

// NewStores returns the store locator agent.
func NewStores() *Stores {
	return &Stores{patterns: storesPatterns()}
}

func storesPatterns() []pattern {
	return []pattern{
		{regexp.MustCompile(`\bstores?\b`), 0.6},
		{regexp.MustCompile(`\b(location|directions|address)\b`), 0.55},
		{regexp.MustCompile(`\b(near|nearest|nearby|closest|close\s+by)\b`), 0.5},
		{regexp.MustCompile(`\b(hours|open|opening|closing)\b`), 0.45},
		{regexp.MustCompile(`\b(open|closed?)\s+(now|today|tonight|tomorrow|on\s+(sundays?|saturdays?|weekends?))\b`), 0.35},
		{regexp.MustCompile(`\b\d{5}(?:-\d{4})?\b`), 0.45},
		{regexp.MustCompile(`\b(seattle|portland|denver|austin|chicago)\b`), 0.5},
	}
}

var (
	zipRe  = regexp.MustCompile(`\b(\d{5}(?:-\d{4})?)\b`)
	cityRe = regexp.MustCompile(`(?i)\b(seattle|portland|denver|austin|chicago)\b`)

	hoursTopicRe    = regexp.MustCompile(`(?i)\b(hours|open|opening|closing|close)\b`)
	locationTopicRe = regexp.MustCompile(`(?i)\b(stores?|location|directions|address|near|nearest|nearby|closest)\b`)
)

func (s *Stores) ID() string   { return "stores" }
func (s *Stores) Name() string { return "Store Locator" }

func (s *Stores) Description() string {
	return "Store locations, directions and opening hours"
}

func (s *Stores) CanHandle(_ context.Context, input string, _ types.Context) (float64, error) {
	return capability(input, s.patterns), nil
}

func (s *Stores) Process(ctx context.Context, input string, tc types.Context) (*types.HandlerResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if isFarewell(input) {
		return &types.HandlerResult{
			Text:      "Come see us soon.",
			IsClosing: true,
			Metadata:  map[string]any{"topic": "farewell"},
		}, nil
	}

	entities := map[string]string{}
	zip := zipRe.FindString(input)
	if zip != "" {
		entities["zip_code"] = zip
	} else {
		zip = tc.Entities["zip_code"]
	}
	city := strings.ToLower(cityRe.FindString(input))
	if city != "" {
		entities["city"] = city
	} else {
		city = tc.Entities["city"]
	}

	switch {
	case hoursTopicRe.MatchString(input):
		text := "Most locations are open 9am to 8pm Monday through Saturday, and 10am to 6pm on Sundays."
		if city != "" {
			text = fmt.Sprintf("The %s store is open 9am to 8pm today, 10am to 6pm on Sundays.", capitalize(city))
		}
		return &types.HandlerResult{
			Text:              text,
			ExtractedEntities: entities,
			Metadata:          map[string]any{"topic": "hours"},
		}, nil

	case zip != "":
		return &types.HandlerResult{
			Text:              fmt.Sprintf("The closest store to %s is at 1200 Pine Street, about ten minutes away. Open 9am to 8pm today.", zip),
			ExtractedEntities: entities,
			Metadata:          map[string]any{"topic": "location"},
		}, nil

	case city != "":
		return &types.HandlerResult{
			Text:              fmt.Sprintf("Our %s store is downtown at 4th and Main, open 9am to 8pm today.", capitalize(city)),
			ExtractedEntities: entities,
			Metadata:          map[string]any{"topic": "location"},
		}, nil

	case locationTopicRe.MatchString(input):
		return &types.HandlerResult{
			Text:                  "Which city or ZIP code should I look near?",
			ContinueWithSameAgent: true,
			ExtractedEntities:     entities,
			Metadata:              map[string]any{"topic": "location"},
		}, nil

	default:
		return &types.HandlerResult{
			Text:                  "I can find nearby stores and check their hours. Which city or ZIP code are you in?",
			ContinueWithSameAgent: true,
			ExtractedEntities:     entities,
			Metadata:              map[string]any{"topic": "stores"},
		}, nil
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}
