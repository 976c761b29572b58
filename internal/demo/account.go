package demo

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/northbridge-ai/switchboard/pkg/types"
)

// Account handles passwords, sign-in trouble and profile changes.
type Account struct {
	patterns []pattern
}

// NewAccount returns the account support agent.
func NewAccount() *Account {
	return &Account{patterns: accountPatterns()}
}

func accountPatterns() []pattern {
	return []pattern{
		{regexp.MustCompile(`\b(password|passphrase)\b`), 0.7},
		{regexp.MustCompile(`\b(log\s*in|login|sign\s*in|signin|logged\s+out)\b`), 0.65},
		{regexp.MustCompile(`\b(account|profile|username)\b`), 0.55},
		{regexp.MustCompile(`\b(email|e-mail)\b`), 0.45},
		{regexp.MustCompile(`\b(forgot|reset|recover|change|update)\s+(my\s+)?(password|email|username|profile|account)\b`), 0.3},
		{regexp.MustCompile(`\b(locked\s+out|can.?t\s+(log|sign)\s*in|cannot\s+(log|sign)\s*in)\b`), 0.35},
		{regexp.MustCompile(`\b(two[-\s]?factor|2fa|verification\s+code)\b`), 0.5},
	}
}

var (
	emailRe    = regexp.MustCompile(`(?i)\b[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}\b`)
	usernameRe = regexp.MustCompile(`(?i)\busername\s+(?:is\s+)?([a-z0-9][a-z0-9_.-]{2,})\b`)

	passwordTopicRe = regexp.MustCompile(`(?i)\b(password|passphrase|locked\s+out|can.?t\s+(log|sign)\s*in|cannot\s+(log|sign)\s*in)\b`)
	profileTopicRe  = regexp.MustCompile(`(?i)\b(change|update|new|edit)\b.{0,30}\b(email|e-mail|username|profile|address)\b`)
)

func (a *Account) ID() string   { return "account" }
func (a *Account) Name() string { return "Account Support" }

func (a *Account) Description() string {
	return "Password resets, sign-in trouble and profile changes"
}

func (a *Account) CanHandle(_ context.Context, input string, _ types.Context) (float64, error) {
	return capability(input, a.patterns), nil
}

func (a *Account) Process(ctx context.Context, input string, tc types.Context) (*types.HandlerResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if isFarewell(input) {
		return &types.HandlerResult{
			Text:      "Happy to help. Come back any time you have account trouble.",
			IsClosing: true,
			Metadata:  map[string]any{"topic": "farewell"},
		}, nil
	}

	entities := map[string]string{}
	email := strings.ToLower(emailRe.FindString(input))
	if email != "" {
		entities["email"] = email
	} else {
		email = tc.Entities["email"]
	}
	if m := usernameRe.FindStringSubmatch(input); len(m) == 2 {
		entities["username"] = strings.ToLower(m[1])
	}

	switch {
	case passwordTopicRe.MatchString(input):
		if email == "" {
			return &types.HandlerResult{
				Text:                  "I can reset that. What email address is on the account?",
				ContinueWithSameAgent: true,
				ExtractedEntities:     entities,
				Metadata:              map[string]any{"topic": "password"},
			}, nil
		}
		return &types.HandlerResult{
			Text:              fmt.Sprintf("Done. A reset link is on its way to %s and expires in 30 minutes.", email),
			ExtractedEntities: entities,
			Metadata:          map[string]any{"topic": "password"},
		}, nil

	case profileTopicRe.MatchString(input):
		if email == "" {
			return &types.HandlerResult{
				Text:                  "Sure. What should the new email address be?",
				ContinueWithSameAgent: true,
				ExtractedEntities:     entities,
				Metadata:              map[string]any{"topic": "profile"},
			}, nil
		}
		return &types.HandlerResult{
			Text:              fmt.Sprintf("All set. Your contact email is now %s.", email),
			ExtractedEntities: entities,
			Metadata:          map[string]any{"topic": "profile"},
		}, nil

	// A bare email address is almost always the answer to a question this
	// agent just asked, so finish the reset with it.
	case entities["email"] != "":
		return &types.HandlerResult{
			Text:              fmt.Sprintf("Done. A reset link is on its way to %s and expires in 30 minutes.", email),
			ExtractedEntities: entities,
			Metadata:          map[string]any{"topic": "password"},
		}, nil

	default:
		return &types.HandlerResult{
			Text:                  "I can help with passwords, sign-in trouble and profile changes. What's going on with the account?",
			ContinueWithSameAgent: true,
			ExtractedEntities:     entities,
			Metadata:              map[string]any{"topic": "account"},
		}, nil
	}
}
