package i18n

import "testing"

func TestTranslator_DefaultAndJapanese(t *testing.T) {
	// default is en
	if msg := T("taken", nil); msg == "taken" || msg == "" {
		t.Fatalf("expected a human message, got %q", msg)
	}

	SetLanguage("ja")
	if msg := T("taken", nil); msg == "Already taken" {
		t.Fatalf("expected japanese message, got %q", msg)
	}

	// reset to en
	SetLanguage("en")
}

func TestTranslator_Placeholders(t *testing.T) {
	if msg := T("minlength", map[string]string{"min": "6"}); msg != "Must be at least 6 characters" {
		t.Fatalf("unexpected message %q", msg)
	}
	if msg := T("minlength", nil); msg != "Too short" {
		t.Fatalf("expected fallback, got %q", msg)
	}
}

func TestTranslator_UnknownCodeEchoes(t *testing.T) {
	if msg := T("no_such_code", nil); msg != "no_such_code" {
		t.Fatalf("expected code echo, got %q", msg)
	}
}

type upper struct{}

func (upper) Message(code string, _ map[string]string) string { return "X:" + code }

func TestSetTranslator_CustomAndReset(t *testing.T) {
	SetTranslator(upper{})
	if msg := T("taken", nil); msg != "X:taken" {
		t.Fatalf("custom translator not used, got %q", msg)
	}
	SetTranslator(nil)
	if msg := T("taken", nil); msg != "Already taken" {
		t.Fatalf("expected default after reset, got %q", msg)
	}
}
