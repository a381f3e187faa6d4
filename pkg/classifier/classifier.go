// Package classifier decides whether a text message is a bank transaction notification.
//
// A message is accepted when its sender looks like a bank (a short-code pattern or a
// known bank name) and its body carries transaction vocabulary. Whether the body also
// contains a currency amount is reported as evidence but does not affect the decision.
package classifier

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ArionMiles/smsexpensor/pkg/api"
)

// AmountPattern matches a rupee amount: "rs", "inr" or the rupee glyph, an optional
// period, optional whitespace and a digit group with optional thousands separators and
// an optional two-digit fraction.
var AmountPattern = regexp.MustCompile(`(?i)(?:\b(?:rs|inr)|₹)\s*\.?\s*\d[\d,]*(?:\.\d{2})?`)

// Config holds the static data the classifier matches against.
type Config struct {
	// SenderPatterns are regular expressions over the sender ID. They are compiled
	// case-insensitively. A pattern may open with "^(?!PREFIX)", PREFIX being
	// letters or digits, to keep senders starting with PREFIX from matching it.
	SenderPatterns []string `json:"senderPatterns"`
	// BankNames are substrings looked up in the lower-cased sender.
	BankNames []string `json:"bankNames"`
	// Keywords are substrings looked up in the lower-cased body.
	Keywords []string `json:"keywords"`
}

// DefaultConfig returns the canonical lists used for Indian bank SMS.
func DefaultConfig() Config {
	return Config{
		SenderPatterns: []string{
			`^[A-Z]{2}-[A-Z]+BANK`,         // AD-SBIBANK
			`^[A-Z]{2}-[A-Z]{3,6}`,         // VM-HDFC
			`^(?!SPAM)[A-Z]{2,6}-\d{1,6}$`, // HDFC-123, not SPAM-123
			`^[A-Z]{2,6}\d{6}$`,            // HDFC000123
			`^[A-Z]{2,6}-[A-Z]{2,6}$`,      // SBI-BANK
		},
		BankNames: []string{
			"sbi", "hdfc", "icici", "axis", "kotak", "pnb", "rbl", "canara",
			"bob", "boi", "federal", "idbi", "indian bank", "indusind", "yes bank",
		},
		Keywords: []string{
			"credited", "debited", "spent", "withdrawn", "deposited", "transfer",
			"balance", "a/c", "acct", "account", "transaction", "payment",
			"upi", "neft", "imps", "rtgs",
		},
	}
}

// ParseConfig decodes a Config from JSON. Missing lists fall back to DefaultConfig.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing classifier config: %w", err)
	}

	def := DefaultConfig()
	if cfg.SenderPatterns == nil {
		cfg.SenderPatterns = def.SenderPatterns
	}
	if cfg.BankNames == nil {
		cfg.BankNames = def.BankNames
	}
	if cfg.Keywords == nil {
		cfg.Keywords = def.Keywords
	}
	return cfg, nil
}

// Classifier evaluates messages against a fixed configuration.
// It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	senderPatterns []senderPattern
	bankNames      []string
	keywords       []string
}

type senderPattern struct {
	re *regexp.Regexp
	// excluded is a lower-cased prefix that keeps a sender from matching re.
	excluded string
}

// leadingLookahead matches a literal negative lookahead at the start of a
// pattern. RE2 has no lookahead, so it is checked as a prefix instead.
var leadingLookahead = regexp.MustCompile(`^\^\(\?!([A-Za-z0-9]+)\)`)

// New compiles the configuration into a Classifier.
func New(cfg Config) (*Classifier, error) {
	c := &Classifier{
		senderPatterns: make([]senderPattern, 0, len(cfg.SenderPatterns)),
		bankNames:      normalizeList(cfg.BankNames),
		keywords:       normalizeList(cfg.Keywords),
	}

	for _, p := range cfg.SenderPatterns {
		sp, err := compileSenderPattern(p)
		if err != nil {
			return nil, err
		}
		c.senderPatterns = append(c.senderPatterns, sp)
	}

	return c, nil
}

func compileSenderPattern(p string) (senderPattern, error) {
	var sp senderPattern
	expr := p
	if m := leadingLookahead.FindStringSubmatch(p); m != nil {
		sp.excluded = lower(m[1])
		expr = "^" + p[len(m[0]):]
	}

	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		return senderPattern{}, fmt.Errorf("compiling sender pattern %q: %w", p, err)
	}
	sp.re = re
	return sp, nil
}

// Default returns a Classifier built from DefaultConfig.
func Default() *Classifier {
	c, err := New(DefaultConfig())
	if err != nil {
		panic(err) // default patterns are constant
	}
	return c
}

// Classify reports whether the message is a bank transaction notification.
func (c *Classifier) Classify(body, sender string) api.ClassificationResult {
	lowerBody := lower(body)
	lowerSender := lower(sender)

	res := api.ClassificationResult{
		SenderMatchedPattern:     c.matchesSenderPattern(sender, lowerSender),
		SenderMatchedKnownName:   containsAny(lowerSender, c.bankNames),
		BodyMatchedKeyword:       containsAny(lowerBody, c.keywords),
		BodyMatchedAmountPattern: AmountPattern.MatchString(body),
	}

	senderSignal := res.SenderMatchedPattern || res.SenderMatchedKnownName
	res.IsTransactionMessage = senderSignal && res.BodyMatchedKeyword

	return res
}

// IsTransactionMessage is shorthand for Classify(body, sender).IsTransactionMessage.
func (c *Classifier) IsTransactionMessage(body, sender string) bool {
	return c.Classify(body, sender).IsTransactionMessage
}

func (c *Classifier) matchesSenderPattern(sender, lowerSender string) bool {
	for _, sp := range c.senderPatterns {
		if sp.excluded != "" && strings.HasPrefix(lowerSender, sp.excluded) {
			continue
		}
		if sp.re.MatchString(sender) {
			return true
		}
	}
	return false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func normalizeList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = lower(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// lower case-folds s. A Caser is stateful, so one is created per call.
func lower(s string) string {
	return cases.Lower(language.Und).String(s)
}
