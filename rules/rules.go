package rules

import (
	"fmt"
	"reflect"
	"regexp"
	"unicode/utf8"

	"github.com/networked-ai/formguard"
	"github.com/networked-ai/formguard/i18n"
)

// emailPattern mirrors the permissive check browsers apply to type=email inputs.
var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

// Required fails on empty values (see formguard.IsEmpty).
func Required() formguard.SyncRule {
	return func(v any) *formguard.Issue {
		if formguard.IsEmpty(v) {
			return issue(formguard.CodeRequired, "required", nil)
		}
		return nil
	}
}

// MinLength fails when a non-empty value is shorter than n. Empty values pass;
// combine with Required when the field is mandatory.
func MinLength(n int) formguard.SyncRule {
	return func(v any) *formguard.Issue {
		l, ok := length(v)
		if !ok || l == 0 || l >= n {
			return nil
		}
		return issue(formguard.CodeMinLength, "minLength", map[string]any{"min": n, "got": l})
	}
}

// MaxLength fails when a value is longer than n.
func MaxLength(n int) formguard.SyncRule {
	return func(v any) *formguard.Issue {
		l, ok := length(v)
		if !ok || l <= n {
			return nil
		}
		return issue(formguard.CodeMaxLength, "maxLength", map[string]any{"max": n, "got": l})
	}
}

// Pattern fails when a non-empty string value does not match re. The pattern
// is anchored the way HTML pattern attributes are.
func Pattern(re string) formguard.SyncRule {
	anchored := regexp.MustCompile("^(?:" + re + ")$")
	return func(v any) *formguard.Issue {
		s, ok := formguard.AsString(v)
		if !ok || s == "" || anchored.MatchString(s) {
			return nil
		}
		return issue(formguard.CodePattern, "pattern", map[string]any{"pattern": re})
	}
}

// Email fails when a non-empty value is not an email address.
func Email() formguard.SyncRule {
	return func(v any) *formguard.Issue {
		s, ok := formguard.AsString(v)
		if !ok || s == "" || emailPattern.MatchString(s) {
			return nil
		}
		return issue(formguard.CodeEmail, "email", nil)
	}
}

// When runs rule only while pred holds for the value.
func When(pred func(v any) bool, rule formguard.SyncRule) formguard.SyncRule {
	return func(v any) *formguard.Issue {
		if rule == nil || !pred(v) {
			return nil
		}
		return rule(v)
	}
}

// ---------- Rule combinators ----------

// And runs rules in order and returns the first issue.
func And(rules ...formguard.SyncRule) formguard.SyncRule {
	return func(v any) *formguard.Issue {
		for _, r := range rules {
			if r == nil {
				continue
			}
			if it := r(v); it != nil {
				return it
			}
		}
		return nil
	}
}

// Or succeeds if any rule passes. When all fail, the first rule's issue is returned.
func Or(rules ...formguard.SyncRule) formguard.SyncRule {
	return func(v any) *formguard.Issue {
		var first *formguard.Issue
		for _, r := range rules {
			if r == nil {
				continue
			}
			it := r(v)
			if it == nil {
				return nil
			}
			if first == nil {
				first = it
			}
		}
		return first
	}
}

// ------- helpers -------

func issue(code, rule string, params map[string]any) *formguard.Issue {
	return &formguard.Issue{
		Code:    code,
		Message: i18n.T(code, stringify(params)),
		Params:  params,
		Rule:    rule,
	}
}

func stringify(params map[string]any) map[string]string {
	if len(params) == 0 {
		return nil
	}
	out := make(map[string]string, len(params))
	for k, v := range params {
		out[k] = fmt.Sprint(v)
	}
	return out
}

// length counts runes for strings and numbers, and elements for collections.
func length(v any) (int, bool) {
	if s, ok := formguard.AsString(v); ok {
		return utf8.RuneCountInString(s), true
	}
	if v == nil {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len(), true
	default:
		return 0, false
	}
}
