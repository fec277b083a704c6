package pattern

import "testing"

func TestValidate_Sentinels(t *testing.T) {
	if err := Validate(Silence); err != nil {
		t.Fatalf("silence should validate: %v", err)
	}
	if err := Validate(NoChange); err != nil {
		t.Fatalf("no_change should validate: %v", err)
	}
}

func TestValidate_WellFormed(t *testing.T) {
	cases := []string{
		`s("bd sd").gain(0.8)`,
		`s("bd*4 [sd hh]").fast(2)`,
		`note("<c e g>").s("piano")`,
		`stack(s("bd sd"), note("c e g"))`,
	}
	for _, p := range cases {
		if err := Validate(p); err != nil {
			t.Errorf("Validate(%q) unexpected error: %v", p, err)
		}
	}
}

func TestValidate_UnbalancedDelimiters(t *testing.T) {
	cases := []string{
		`s("bd sd"`,
		`s("bd [sd)")`,
		`s("bd sd"))`,
	}
	for _, p := range cases {
		if err := Validate(p); err == nil {
			t.Errorf("Validate(%q) expected error, got nil", p)
		}
	}
}

func TestValidate_NoSourceCall(t *testing.T) {
	if err := Validate(`gain(0.8)`); err == nil {
		t.Error("expected error for pattern with no source call")
	}
}

func TestCheckBalance_MismatchedDelimiter(t *testing.T) {
	err := checkBalance(`s("bd [sd)")`)
	if err == nil {
		t.Fatal("expected mismatched delimiter error")
	}
}
