package i18n

import (
	"strings"
	"sync"
)

// Translator retrieves localized messages for Issue codes.
// data provides optional metadata to embed in the message (for example,
// "min" or "max").
type Translator interface {
	Message(code string, data map[string]string) string
}

// dictTranslator is the built-in dictionary-based Translator.
type dictTranslator struct{ lang string }

var dictionaries = map[string]map[string]string{
	"en": {
		"required":    "This field is required",
		"minlength":   "Must be at least {min} characters",
		"maxlength":   "Must be at most {max} characters",
		"pattern":     "Invalid format",
		"email":       "Enter a valid email address",
		"taken":       "Already taken",
		"notFound":    "Not found",
		"checkFailed": "Couldn't verify availability, try again",
		"pending":     "Still checking, try again",
	},
	"ja": {
		"required":    "必須項目です",
		"minlength":   "{min}文字以上で入力してください",
		"maxlength":   "{max}文字以内で入力してください",
		"pattern":     "形式が正しくありません",
		"email":       "有効なメールアドレスを入力してください",
		"taken":       "既に使用されています",
		"notFound":    "見つかりません",
		"checkFailed": "確認できませんでした。もう一度お試しください",
		"pending":     "確認中です。もう一度お試しください",
	},
}

func (t dictTranslator) Message(code string, data map[string]string) string {
	msg, ok := dictionaries[t.lang][code]
	if !ok {
		return code
	}
	if t.lang == "en" {
		// fall back to a plain sentence when a placeholder has no value
		if strings.Contains(msg, "{min}") && data["min"] == "" {
			return "Too short"
		}
		if strings.Contains(msg, "{max}") && data["max"] == "" {
			return "Too long"
		}
	}
	for k, v := range data {
		msg = strings.ReplaceAll(msg, "{"+k+"}", v)
	}
	return msg
}

var (
	mu                sync.RWMutex
	currentTranslator Translator = dictTranslator{lang: "en"}
)

// SetLanguage switches the built-in Translator language ("en"/"ja").
func SetLanguage(lang string) {
	if lang != "ja" {
		lang = "en"
	}
	mu.Lock()
	currentTranslator = dictTranslator{lang: lang}
	mu.Unlock()
}

// SetTranslator replaces the Translator implementation (not limited to the
// dictionary version).
func SetTranslator(tr Translator) {
	mu.Lock()
	defer mu.Unlock()
	if tr == nil {
		currentTranslator = dictTranslator{lang: "en"}
		return
	}
	currentTranslator = tr
}

// T fetches a message for the given code using the current Translator.
func T(code string, data map[string]string) string {
	mu.RLock()
	tr := currentTranslator
	mu.RUnlock()
	return tr.Message(code, data)
}
