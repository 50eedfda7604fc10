package formguard_test

import (
	"sync"
	"testing"

	"github.com/networked-ai/formguard"
)

func TestRegister_Idempotent(t *testing.T) {
	rec := formguard.NewRecord()
	defer rec.Close()

	a := rec.Register("username", "ab", required, minLen(6))
	before := a.Status()
	b := rec.Register("username", "ab", required, minLen(6))

	if a != b {
		t.Fatalf("expected the existing field to be returned")
	}
	if names := rec.Names(); len(names) != 1 || names[0] != "username" {
		t.Fatalf("expected exactly one field, got %v", names)
	}
	if b.Status() != before || before != formguard.StatusInvalid {
		t.Fatalf("status changed by re-registration: %v -> %v", before, b.Status())
	}
}

func TestRegister_KeepsExistingValue(t *testing.T) {
	rec := formguard.NewRecord()
	defer rec.Close()

	f := rec.Register("email", "")
	f.SetValue("a@b.c")
	rec.Register("email", "other")
	if f.Value() != "a@b.c" {
		t.Fatalf("re-registration must not reset the value, got %v", f.Value())
	}
}

func TestRegisterSpec_ForceReplacesInPlace(t *testing.T) {
	rec := formguard.NewRecord()
	defer rec.Close()

	rec.Register("first", "x")
	old := rec.Register("username", "abc")
	rec.Register("last", "y")

	repl := rec.RegisterSpec(formguard.FieldSpec{
		Name:    "username",
		Initial: "abc",
		Rules:   []formguard.SyncRule{minLen(6)},
		Force:   true,
	})
	if repl == old {
		t.Fatalf("expected a new field")
	}
	if got, _ := rec.Field("username"); got != repl {
		t.Fatalf("record does not hold the replacement")
	}
	if names := rec.Names(); len(names) != 3 || names[1] != "username" {
		t.Fatalf("expected replacement at the same position, got %v", names)
	}
	if repl.Status() != formguard.StatusInvalid {
		t.Fatalf("expected new rules to apply, got %v", repl.Status())
	}

	// the detached handle no longer affects the record
	old.SetValue("zzzzzzzz")
	if repl.Value() != "abc" {
		t.Fatalf("detached field leaked into the record")
	}
}

func TestRegister_Panics(t *testing.T) {
	rec := formguard.NewRecord()
	defer rec.Close()
	rec.Group("settings")

	for name, fn := range map[string]func(){
		"empty name":    func() { rec.Register("", nil) },
		"group name":    func() { rec.Register("settings", nil) },
		"field as group": func() { rec.Register("plain", nil); rec.Group("plain") },
	} {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatalf("expected panic")
				}
			}()
			fn()
		})
	}
}

func TestGroup_PathsAndLookup(t *testing.T) {
	rec := formguard.NewRecord()
	defer rec.Close()

	settings := rec.Group("settings")
	if rec.Group("settings") != settings {
		t.Fatalf("Group must return the existing sub-record")
	}
	a := settings.Register("a/b", "1")
	if a.Path() != "/settings/a~1b" {
		t.Fatalf("unexpected path %q", a.Path())
	}
	if got := rec.Get("settings.a/b"); got != formguard.Control(a) {
		t.Fatalf("dotted lookup failed: %v", got)
	}
	if rec.Get("settings.missing") != nil || rec.Get("") != nil {
		t.Fatalf("expected nil for missing controls")
	}
	if _, ok := rec.Field("settings"); ok {
		t.Fatalf("a group is not a field")
	}
}

func TestRecord_DisableCascades(t *testing.T) {
	rec := formguard.NewRecord()
	defer rec.Close()

	settings := rec.Group("settings")
	a := settings.Register("a", "", required)
	settings.Disable()

	if a.Status() != formguard.StatusDisabled || settings.Status() != formguard.StatusDisabled {
		t.Fatalf("expected disabled, got field=%v group=%v", a.Status(), settings.Status())
	}
	late := settings.Register("late", "x")
	if !late.Disabled() {
		t.Fatalf("fields registered into a disabled record start disabled")
	}

	settings.Enable()
	if a.Status() != formguard.StatusInvalid {
		t.Fatalf("expected field re-enabled and invalid, got %v", a.Status())
	}
}

func TestRecord_StatusAggregation(t *testing.T) {
	rec := formguard.NewRecord()
	defer rec.Close()

	a := rec.Register("a", "x")
	b := rec.Register("b", "", required)
	if rec.Status() != formguard.StatusInvalid {
		t.Fatalf("expected invalid, got %v", rec.Status())
	}
	b.SetValue("y")
	if rec.Status() != formguard.StatusValid {
		t.Fatalf("expected valid, got %v", rec.Status())
	}
	a.Disable()
	b.Disable()
	if rec.Status() != formguard.StatusDisabled {
		t.Fatalf("expected disabled when all children are, got %v", rec.Status())
	}
}

func TestRecord_PatchValuesAndIssues(t *testing.T) {
	rec := formguard.NewRecord()
	defer rec.Close()

	name := rec.Register("name", "", required)
	theme := rec.Group("settings").Register("theme", "light")

	if iss := rec.Issues(); len(iss) != 1 || iss[0].Path != "/name" || iss[0].Code != formguard.CodeRequired {
		t.Fatalf("unexpected issues %v", iss)
	}

	rec.Patch(map[string]any{
		"name":     "Ada",
		"settings": map[string]any{"theme": "dark"},
		"unknown":  1,
	})
	if name.Value() != "Ada" || theme.Value() != "dark" {
		t.Fatalf("patch not applied: %v", rec.Values())
	}
	if name.Dirty() {
		t.Fatalf("patch must not mark fields dirty")
	}
	name.SetValue("Bob")
	if !name.Dirty() {
		t.Fatalf("SetValue marks the field dirty")
	}
	vals := rec.Values()
	if vals["name"] != "Bob" || vals["settings"].(map[string]any)["theme"] != "dark" {
		t.Fatalf("unexpected values %v", vals)
	}
}

func TestRecord_Err(t *testing.T) {
	rec := formguard.NewRecord()
	defer rec.Close()

	rec.Register("name", "Ada", required)
	if err := rec.Err(); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	rec.Register("email", "", required)
	rec.Group("settings").RegisterSpec(formguard.FieldSpec{
		Name: "mobile", Initial: "5551234", Async: []formguard.AsyncRule{neverRule()},
	})
	iss, ok := formguard.AsIssues(rec.Err())
	if !ok || len(iss) != 2 {
		t.Fatalf("expected two issues, got %v", iss)
	}
	if iss[0].Path != "/email" || iss[0].Code != formguard.CodeRequired {
		t.Fatalf("unexpected first issue %v", iss[0])
	}
	if iss[1].Path != "/settings/mobile" || iss[1].Code != formguard.CodePending {
		t.Fatalf("expected a pending issue for the unresolved field, got %v", iss[1])
	}
	if !iss.Has(formguard.CodePending) {
		t.Fatalf("Has(pending) = false")
	}
}

func TestRegisterSpec_NeverPublishesUnvalidatedField(t *testing.T) {
	for i := 0; i < 100; i++ {
		rec := formguard.NewRecord()
		done := make(chan struct{})
		var seen []formguard.Status
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if c := rec.Get("x"); c != nil {
					seen = append(seen, c.Status())
				}
				select {
				case <-done:
					return
				default:
				}
			}
		}()
		rec.Register("x", "", required)
		close(done)
		wg.Wait()
		rec.Close()

		for _, s := range seen {
			if s != formguard.StatusInvalid {
				t.Fatalf("iteration %d: observed status %v before the initial validation", i, s)
			}
		}
	}
}

func TestRecord_Remove(t *testing.T) {
	rec := formguard.NewRecord()
	defer rec.Close()

	rec.Register("a", "x")
	rec.Group("g").Register("b", "y")
	if !rec.Remove("a") || !rec.Remove("g") || rec.Remove("a") {
		t.Fatalf("unexpected Remove results")
	}
	if len(rec.Names()) != 0 {
		t.Fatalf("expected empty record, got %v", rec.Names())
	}
}
