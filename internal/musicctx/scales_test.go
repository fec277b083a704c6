package musicctx

import (
	"reflect"
	"testing"
)

func TestScale_CMajor(t *testing.T) {
	scale, ok := Scale("C", Major)
	if !ok {
		t.Fatal("expected ok")
	}
	want := []string{"C", "D", "E", "F", "G", "A", "B"}
	if !reflect.DeepEqual(scale, want) {
		t.Errorf("Scale(C, major) = %v, want %v", scale, want)
	}
}

func TestScale_FMajorUsesFlats(t *testing.T) {
	scale, ok := Scale("F", Major)
	if !ok {
		t.Fatal("expected ok")
	}
	want := []string{"F", "G", "A", "Bb", "C", "D", "E"}
	if !reflect.DeepEqual(scale, want) {
		t.Errorf("Scale(F, major) = %v, want %v", scale, want)
	}
}

func TestScale_AMinor(t *testing.T) {
	scale, ok := Scale("A", Minor)
	if !ok {
		t.Fatal("expected ok")
	}
	want := []string{"A", "B", "C", "D", "E", "F", "G"}
	if !reflect.DeepEqual(scale, want) {
		t.Errorf("Scale(A, minor) = %v, want %v", scale, want)
	}
}

func TestScale_UnknownRoot(t *testing.T) {
	if _, ok := Scale("H", Major); ok {
		t.Error("expected not ok for invalid root")
	}
}

func TestDiatonicFallbackChords_Major(t *testing.T) {
	chords, ok := DiatonicFallbackChords("C", Major)
	if !ok {
		t.Fatal("expected ok")
	}
	want := []string{"C", "Am", "F", "G"}
	if !reflect.DeepEqual(chords, want) {
		t.Errorf("chords = %v, want %v", chords, want)
	}
}

func TestDiatonicFallbackChords_Minor(t *testing.T) {
	chords, ok := DiatonicFallbackChords("A", Minor)
	if !ok {
		t.Fatal("expected ok")
	}
	want := []string{"Am", "F", "C", "G"}
	if !reflect.DeepEqual(chords, want) {
		t.Errorf("chords = %v, want %v", chords, want)
	}
}

func TestNormalizeRoot(t *testing.T) {
	cases := map[string]string{"bB": "Bb", "f#": "F#", "c": "C", "G": "G"}
	for in, want := range cases {
		if got := NormalizeRoot(in); got != want {
			t.Errorf("NormalizeRoot(%q) = %q, want %q", in, got, want)
		}
	}
}
