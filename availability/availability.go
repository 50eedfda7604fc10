package availability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/networked-ai/formguard"
	"github.com/networked-ai/formguard/i18n"
	"github.com/networked-ai/formguard/internal/logger"
)

// DefaultDebounce is the quiet period a value must survive before it is checked.
const DefaultDebounce = 300 * time.Millisecond

// CheckFunc asks the remote side whether value is available (not taken).
type CheckFunc func(ctx context.Context, value string) (available bool, err error)

// Extractor derives the string to check from the field and its value. It
// returns false when nothing can be checked.
type Extractor func(f *formguard.Field, value any) (string, bool)

// Normalizer rewrites the extracted value before it is checked.
type Normalizer func(string) string

// Config is the registration-time configuration of an availability rule.
type Config struct {
	Check CheckFunc
	// CheckExistence flips the polarity: the value must already exist
	// (login-style), so "available" is reported as notFound. Otherwise an
	// unavailable value is reported as taken.
	CheckExistence bool
	// Extract defaults to the raw field value.
	Extract Extractor
	// Normalize defaults to Lower.
	Normalize Normalizer
	// Debounce defaults to DefaultDebounce; a negative value disables it.
	Debounce time.Duration
	// ShouldRun, when set, is evaluated on every invocation; false passes
	// the value without checking it.
	ShouldRun func() bool
	// ReportCheckFailed reports transport failures as checkFailed instead of
	// the rule's default taken/notFound issue.
	ReportCheckFailed bool
	Logger            formguard.Logger
}

// Option tweaks a Config built by Rule.
type Option func(*Config)

func WithExtractor(e Extractor) Option   { return func(c *Config) { c.Extract = e } }
func WithNormalizer(n Normalizer) Option { return func(c *Config) { c.Normalize = n } }
func WithDebounce(d time.Duration) Option {
	return func(c *Config) { c.Debounce = d }
}

// WithGate makes the rule run only while shouldRun reports true.
func WithGate(shouldRun func() bool) Option { return func(c *Config) { c.ShouldRun = shouldRun } }

// WithCheckFailed reports transport failures with the checkFailed code.
func WithCheckFailed() Option { return func(c *Config) { c.ReportCheckFailed = true } }

func WithLogger(l formguard.Logger) Option { return func(c *Config) { c.Logger = l } }

// Rule builds an availability rule around check.
func Rule(check CheckFunc, checkExistence bool, opts ...Option) formguard.AsyncRule {
	cfg := Config{Check: check, CheckExistence: checkExistence}
	for _, opt := range opts {
		opt(&cfg)
	}
	return New(cfg)
}

// New builds an availability rule from cfg. It panics when cfg.Check is nil.
func New(cfg Config) formguard.AsyncRule {
	if cfg.Check == nil {
		panic("availability: Check must not be nil")
	}
	extract := cfg.Extract
	if extract == nil {
		extract = Raw
	}
	normalize := cfg.Normalize
	if normalize == nil {
		normalize = Lower
	}
	debounce := cfg.Debounce
	switch {
	case debounce == 0:
		debounce = DefaultDebounce
	case debounce < 0:
		debounce = 0
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	failCode := formguard.CodeTaken
	if cfg.CheckExistence {
		failCode = formguard.CodeNotFound
	}

	return func(ctx context.Context, f *formguard.Field, value any) *formguard.Issue {
		if formguard.IsEmpty(value) {
			return nil
		}
		if cfg.ShouldRun != nil && !cfg.ShouldRun() {
			return nil
		}
		s, ok := extract(f, value)
		if !ok || s == "" {
			return newIssue(failCode, nil)
		}
		if s = normalize(s); s == "" {
			// blank input ("   ") is left to Required
			return nil
		}

		if debounce > 0 {
			t := time.NewTimer(debounce)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil
			case <-t.C:
			}
		}

		available, err := safeCheck(ctx, cfg.Check, s)
		if err != nil {
			if ctx.Err() != nil {
				// superseded; the field drops this result
				return nil
			}
			log.Warnw("availability check failed", "path", f.Path(), "error", err)
			code := failCode
			if cfg.ReportCheckFailed {
				code = formguard.CodeCheckFailed
			}
			return newIssue(code, err)
		}
		switch {
		case cfg.CheckExistence && available:
			return newIssue(formguard.CodeNotFound, nil)
		case !cfg.CheckExistence && !available:
			return newIssue(formguard.CodeTaken, nil)
		default:
			return nil
		}
	}
}

var errPanicked = errors.New("availability: check panicked")

func safeCheck(ctx context.Context, check CheckFunc, s string) (available bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			available, err = false, fmt.Errorf("%w: %v", errPanicked, r)
		}
	}()
	return check(ctx, s)
}

func newIssue(code string, cause error) *formguard.Issue {
	return &formguard.Issue{Code: code, Message: i18n.T(code, nil), Cause: cause, Rule: "availability"}
}

// Raw extracts strings, fmt.Stringers and numbers (see formguard.AsString).
func Raw(_ *formguard.Field, value any) (string, bool) {
	return formguard.AsString(value)
}

// WithCountryCode combines the sibling field holding a country code with the
// phone number held by the checked field ("+1" and "555 123-4567" give
// "+15551234567").
func WithCountryCode(sibling string) Extractor {
	return func(f *formguard.Field, value any) (string, bool) {
		num, ok := formguard.AsString(value)
		if !ok {
			return "", false
		}
		cf, ok := f.Parent().Field(sibling)
		if !ok {
			return "", false
		}
		code, ok := formguard.AsString(cf.Value())
		code = strings.TrimSpace(code)
		if !ok || code == "" {
			return "", false
		}
		digits := keepDigits(num)
		if digits == "" {
			return "", false
		}
		return code + digits, true
	}
}

// Lower trims and lower-cases the value, for usernames and emails.
func Lower(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// AsIs leaves the value untouched, for phone numbers.
func AsIs(s string) string { return s }

func keepDigits(s string) string {
	b := strings.Builder{}
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
