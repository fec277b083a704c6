package pattern

import "testing"

func TestSummarize_Sentinels(t *testing.T) {
	if got := Summarize(Silence); got != "" {
		t.Errorf("Summarize(Silence) = %q, want empty", got)
	}
	if got := Summarize(""); got != "" {
		t.Errorf("Summarize(\"\") = %q, want empty", got)
	}
}

func TestSummarize_SingleLayer(t *testing.T) {
	got := Summarize(`s("bd sd").gain(0.8)`)
	if got == "" {
		t.Fatal("expected non-empty summary")
	}
}

func TestSummarize_StackMultiLayer(t *testing.T) {
	got := Summarize(`stack(s("bd sd"), note("c e g").s("piano"))`)
	if got == "" {
		t.Fatal("expected non-empty summary for stacked pattern")
	}
}

func TestParseLayers_BankQualifier(t *testing.T) {
	layers, err := parseLayers(`s("bd:3 sd:1")`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(layers) != 1 {
		t.Fatalf("expected 1 layer, got %d", len(layers))
	}
	if layers[0].Tokens[0] != "bd" || layers[0].Bank != "3" {
		t.Errorf("unexpected layer: %+v", layers[0])
	}
}
