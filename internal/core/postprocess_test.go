package core

import (
	"errors"
	"strings"
	"testing"
)

func newTestPostProcessor() *PostProcessor {
	return NewPostProcessor(NewMatcher(DefaultRules))
}

func TestProcess_AddsRecommendationAndDisclaimer(t *testing.T) {
	p := newTestPostProcessor()
	out, err := p.Process("Essayez de vous reposer.", "J'ai mal à la tête", "fr")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "Essayez de vous reposer.") {
		t.Errorf("model text should come first: %q", out)
	}
	for _, want := range []string{SpecialistMarker, "**neurologue**", "pour les problèmes de tête", "professionnel de santé"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %q", want, out)
		}
	}
}

func TestProcess_Arabic(t *testing.T) {
	p := newTestPostProcessor()
	out, err := p.Process("ارتاح مزيان.", "j'ai des vertiges", "ar")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{SpecialistMarker, "نصيحة طبية", "**neurologue**", "طبيب مختص"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %q", want, out)
		}
	}
	if strings.Contains(out, "professionnel de santé") {
		t.Errorf("arabic reply should not get the french disclaimer: %q", out)
	}
}

func TestProcess_KeepsExistingMarkers(t *testing.T) {
	p := newTestPostProcessor()
	raw := "Reposez-vous.\n\n👨‍⚕️ Voyez un spécialiste.\n\nParlez à un professionnel de santé."
	out, err := p.Process(raw, "j'ai mal au ventre", "fr")
	if err != nil {
		t.Fatal(err)
	}
	if out != raw {
		t.Fatalf("reply with both markers and no vocabulary should be unchanged:\n got %q\nwant %q", out, raw)
	}
}

func TestProcess_MarkerWithoutVariationSelector(t *testing.T) {
	p := newTestPostProcessor()
	raw := "👨\u200d⚕ Voyez un spécialiste.\n\nParlez à un professionnel de santé."
	out, err := p.Process(raw, "j'ai mal au ventre", "fr")
	if err != nil {
		t.Fatal(err)
	}
	if out != raw {
		t.Fatalf("a second recommendation was appended:\n got %q\nwant %q", out, raw)
	}
}

func TestProcess_DisclaimerMarkerIsCaseInsensitive(t *testing.T) {
	p := newTestPostProcessor()
	raw := "👨‍⚕️ Voyez un spécialiste. Un Professionnel De Santé saura vous aider."
	out, _ := p.Process(raw, "x", "fr")
	if strings.Contains(out, "Rappel") {
		t.Fatalf("disclaimer should not be added twice: %q", out)
	}
}

func TestProcess_Idempotent(t *testing.T) {
	p := newTestPostProcessor()
	inputs := []string{
		"Essayez de vous reposer.",
		"La douleur dure depuis 48h, consultez un médecin en urgence.",
		"",
		"Une **douleur** importante, important, URGENT.",
		"texte avec un ** marqueur orphelin et une douleur",
		"Les douleurs persistent, voyez des médecins et prenez vos médicaments.",
	}
	for _, raw := range inputs {
		once, err := p.Process(raw, "mal au ventre", "fr")
		if err != nil {
			t.Fatal(err)
		}
		twice, err := p.Process(once, "mal au ventre", "fr")
		if err != nil {
			t.Fatal(err)
		}
		if once != twice {
			t.Errorf("not idempotent for %q:\n once %q\ntwice %q", raw, once, twice)
		}
		if !strings.Contains(once, SpecialistMarker) || !strings.Contains(once, "professionnel de santé") {
			t.Errorf("markers missing for %q: %q", raw, once)
		}
	}
}

func TestProcess_EmptyReplyIsNeverEmpty(t *testing.T) {
	p := newTestPostProcessor()
	out, err := p.Process("  ", "bonjour", "fr")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) == "" {
		t.Fatal("expected non-empty output")
	}
	if strings.HasPrefix(out, "\n") {
		t.Errorf("output should not start with blank lines: %q", out)
	}
	if !strings.Contains(out, "**médecin généraliste**") {
		t.Errorf("expected default specialist: %q", out)
	}
}

func TestProcess_Emphasis(t *testing.T) {
	p := newTestPostProcessor()
	tests := []struct {
		raw  string
		want string
		not  string
	}{
		{"Une Douleur vive.", "Une **Douleur** vive.", ""},
		{"Revenez dans 48h.", "dans **48h**.", ""},
		{"Il faut toujours boire.", "toujours", "tou**jours**"},
		{"Déjà **urgent** signalé.", "Déjà **urgent** signalé.", "****"},
		{"urgent et urgence", "**urgent** et **urgence**", ""},
		{"Des douleurs aiguës.", "Des **douleur**s aiguës.", ""},
		{"Voyez un ORL.", "un **ORL**.", ""},
		{"Il prend de l'orlistat.", "orlistat", "**orl**istat"},
	}
	for _, tt := range tests {
		out, err := p.Process(tt.raw, "bonjour", "fr")
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(out, tt.want) {
			t.Errorf("Process(%q) missing %q: %q", tt.raw, tt.want, out)
		}
		if tt.not != "" && strings.Contains(out, tt.not) {
			t.Errorf("Process(%q) should not contain %q: %q", tt.raw, tt.not, out)
		}
	}
}

func TestProcess_EmphasisInflectedForms(t *testing.T) {
	p := newTestPostProcessor()
	out, err := p.Process("Les douleurs persistent, voyez des médecins et prenez vos médicaments.", "bonjour", "fr")
	if err != nil {
		t.Fatal(err)
	}
	want := "Les **douleur**s persistent, voyez des **médecin**s et prenez vos **médicament**s."
	if !strings.HasPrefix(out, want) {
		t.Fatalf("plural terms not emphasized:\n got %q\nwant prefix %q", out, want)
	}
}

func TestProcess_SafetyFilter(t *testing.T) {
	p := newTestPostProcessor()
	out, err := p.Process("Ne consultez pas de médecin, reposez-vous.", "bonjour", "fr")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(strings.ToLower(out), "ne consultez pas") {
		t.Fatalf("harmful phrase kept: %q", out)
	}
	if !strings.Contains(out, "[Consultez un professionnel de santé]") {
		t.Fatalf("replacement missing: %q", out)
	}
}

func TestProcess_UnsupportedLanguage(t *testing.T) {
	p := newTestPostProcessor()
	if _, err := p.Process("x", "y", "de"); !errors.Is(err, ErrUnsupportedLanguage) {
		t.Fatalf("expected ErrUnsupportedLanguage, got %v", err)
	}
}
