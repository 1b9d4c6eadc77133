package enhance

import (
	"errors"
	"strings"
	"testing"

	"github.com/clinscribe/clinscribe/internal/enhance/phonetic"
	"github.com/clinscribe/clinscribe/internal/vocabulary"
	"github.com/clinscribe/clinscribe/pkg/types"
)

func newEnhancer(t *testing.T, opts ...Option) *Enhancer {
	t.Helper()
	return New(vocabulary.New(), opts...)
}

func TestEnhance_MultiWordTermWinsOverSubstring(t *testing.T) {
	t.Parallel()

	e := newEnhancer(t)
	res, err := e.Enhance("Patient reports chest pain and shortness of breath.")
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}

	if len(res.Terms) != 2 {
		t.Fatalf("len(Terms) = %d (%+v), want 2", len(res.Terms), res.Terms)
	}
	if res.Terms[0].Term != "chest pain" || res.Terms[0].Category != types.CategorySymptoms {
		t.Errorf("Terms[0] = %+v, want chest pain / symptoms", res.Terms[0])
	}
	if res.Terms[1].Term != "shortness of breath" {
		t.Errorf("Terms[1] = %+v, want shortness of breath", res.Terms[1])
	}
	// The standalone "pain" entry must not produce a second overlapping term.
	for _, term := range res.Terms {
		if term.Term == "pain" {
			t.Error("standalone \"pain\" detected inside the claimed \"chest pain\" span")
		}
	}
	if res.Section != types.SectionSubjective {
		t.Errorf("Section = %s, want subjective", res.Section)
	}
}

func TestEnhance_NoOverlappingSpans(t *testing.T) {
	t.Parallel()

	e := newEnhancer(t)
	res, err := e.Enhance("Severe chest pain with back pain and abdominal pain since yesterday.")
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}

	for i := 1; i < len(res.Terms); i++ {
		prev, cur := res.Terms[i-1], res.Terms[i]
		if cur.StartPosition < prev.EndPosition {
			t.Errorf("terms overlap: %+v and %+v", prev, cur)
		}
	}
}

func TestEnhance_TermPositionsMatchRawText(t *testing.T) {
	t.Parallel()

	e := newEnhancer(t)
	raw := "History of hypertension, prescribed metoprolol 50 mg daily."
	res, err := e.Enhance(raw)
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}
	if len(res.Terms) == 0 {
		t.Fatal("no terms detected")
	}
	for _, term := range res.Terms {
		if got := raw[term.StartPosition:term.EndPosition]; got != term.Term {
			t.Errorf("raw[%d:%d] = %q, want %q", term.StartPosition, term.EndPosition, got, term.Term)
		}
		if term.Confidence != 0.9 {
			t.Errorf("dictionary hit %q: Confidence = %v, want 0.9", term.Term, term.Confidence)
		}
	}
}

func TestEnhance_AppliesCorrections(t *testing.T) {
	t.Parallel()

	e := newEnhancer(t)
	res, err := e.Enhance("Diagnosis of hypertention, start asprin and order an xray.")
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}

	want := "Diagnosis of hypertension, start aspirin and order an x-ray."
	if res.EnhancedText != want {
		t.Errorf("EnhancedText = %q, want %q", res.EnhancedText, want)
	}

	// Corrections are recorded on the terms too.
	byTerm := make(map[string]string)
	for _, term := range res.Terms {
		byTerm[strings.ToLower(term.Term)] = term.Correction
	}
	if byTerm["hypertention"] != "hypertension" {
		t.Errorf("hypertention correction = %q, want hypertension", byTerm["hypertention"])
	}
	if byTerm["asprin"] != "aspirin" {
		t.Errorf("asprin correction = %q, want aspirin", byTerm["asprin"])
	}
}

func TestEnhance_CleanTextPassesThrough(t *testing.T) {
	t.Parallel()

	e := newEnhancer(t)
	raw := "Patient reports chest pain."
	res, err := e.Enhance(raw)
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}
	if res.EnhancedText != raw {
		t.Errorf("EnhancedText = %q, want unchanged input", res.EnhancedText)
	}
}

func TestEnhance_CaseInsensitiveDetection(t *testing.T) {
	t.Parallel()

	e := newEnhancer(t)
	res, err := e.Enhance("CHEST PAIN and Hypertension noted.")
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}
	if len(res.Terms) != 2 {
		t.Fatalf("len(Terms) = %d (%+v), want 2", len(res.Terms), res.Terms)
	}
	// Original casing is preserved in the detected term text.
	if res.Terms[0].Term != "CHEST PAIN" {
		t.Errorf("Terms[0].Term = %q, want original casing preserved", res.Terms[0].Term)
	}
}

func TestEnhance_WordBoundaries(t *testing.T) {
	t.Parallel()

	e := newEnhancer(t)
	// "painting" must not match "pain".
	res, err := e.Enhance("The painting in the waiting room.")
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}
	if len(res.Terms) != 0 {
		t.Errorf("Terms = %+v, want none", res.Terms)
	}
}

func TestEnhance_PhoneticFallback(t *testing.T) {
	t.Parallel()

	e := newEnhancer(t, WithMatcher(phonetic.New()))
	res, err := e.Enhance("Continue metoprollol as before.")
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}

	var found *types.MedicalTerm
	for i := range res.Terms {
		if res.Terms[i].Term == "metoprollol" {
			found = &res.Terms[i]
		}
	}
	if found == nil {
		t.Fatalf("Terms = %+v, want phonetic hit for metoprollol", res.Terms)
	}
	if found.Correction != "metoprolol" {
		t.Errorf("Correction = %q, want metoprolol", found.Correction)
	}
	if found.Category != types.CategoryMedications {
		t.Errorf("Category = %s, want medications", found.Category)
	}
	if found.Confidence <= 0 || found.Confidence > 1 {
		t.Errorf("Confidence = %v, want similarity score in (0,1]", found.Confidence)
	}
	if !strings.Contains(res.EnhancedText, "metoprolol") {
		t.Errorf("EnhancedText = %q, want phonetic correction applied", res.EnhancedText)
	}
}

func TestClassifySection(t *testing.T) {
	t.Parallel()

	e := newEnhancer(t)
	cases := []struct {
		text string
		want types.Section
	}{
		{"Patient reports chest pain and shortness of breath.", types.SectionSubjective},
		{"Examination reveals elevated blood pressure, vital signs stable.", types.SectionObjective},
		{"Impression: findings consistent with pneumonia.", types.SectionAssessment},
		{"Plan: prescribe amoxicillin, follow up in two weeks.", types.SectionPlan},
		{"The weather is nice today.", types.SectionGeneral},
		{"", types.SectionGeneral},
	}
	for _, c := range cases {
		if got := e.ClassifySection(c.text); got != c.want {
			t.Errorf("ClassifySection(%q) = %s, want %s", c.text, got, c.want)
		}
	}
}

type panickyMatcher struct{}

func (panickyMatcher) Match(string, []string) (string, float64, bool) {
	panic("matcher exploded")
}

func TestEnhance_DegradesOnPanic(t *testing.T) {
	t.Parallel()

	e := newEnhancer(t, WithMatcher(panickyMatcher{}))
	raw := "Patient reports chest pain."
	res, err := e.Enhance(raw)
	if !errors.Is(err, ErrDegraded) {
		t.Fatalf("err = %v, want ErrDegraded", err)
	}
	if res.EnhancedText != raw {
		t.Errorf("EnhancedText = %q, want raw input passed through", res.EnhancedText)
	}
	if res.Section != types.SectionGeneral {
		t.Errorf("Section = %s, want general", res.Section)
	}
	if len(res.Terms) != 0 {
		t.Errorf("Terms = %+v, want none", res.Terms)
	}
}
