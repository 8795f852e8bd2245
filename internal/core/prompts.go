package core

// prompts.go defines the per-language texts used by the prompt assembler and
// the post-processor.  Keeping them together makes it possible to add a
// language by adding one profile instead of branching in several places.

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnsupportedLanguage is the configuration error returned for a language
// code without a profile.
var ErrUnsupportedLanguage = errors.New("core: unsupported language")

// SpecialistMarker is the glyph that opens every specialist recommendation.
// A reply containing it is considered to already carry a recommendation.
const SpecialistMarker = "👨‍⚕️"

// specialistGlyph is SpecialistMarker without the trailing U+FE0F variation
// selector, which models often leave out.
const specialistGlyph = "👨\u200d⚕"

// Language holds every language-dependent text of the pipeline.
type Language struct {
	Code string

	// SystemPrompt instructs the model how to answer.
	SystemPrompt string

	// RecommendationFormat is a fmt template taking the specialist label and
	// the reason phrase.  It must contain SpecialistMarker.
	RecommendationFormat string

	// DisclaimerMarker is searched in the lowercased reply; when absent
	// Disclaimer is appended.  Disclaimer must contain the marker.
	DisclaimerMarker string
	Disclaimer       string

	// SafetyReplacement replaces phrases that discourage seeing a doctor.
	SafetyReplacement string

	// Apology is returned to the caller when the pipeline fails.
	Apology string

	// Emphasis lists terms wrapped in ** markers, processed in order.
	Emphasis []string

	emphasis []*regexp.Regexp
}

// specialistTerms are emphasized in every language since recommendations
// always name the specialist in French.
var specialistTerms = []string{
	"neurologue", "cardiologue", "gastro-entérologue", "dermatologue",
	"gynécologue", "urologue", "pneumologue", "rhumatologue",
	"endocrinologue", "psychiatre", "orl", "ophtalmologue",
}

var french = &Language{
	Code: "fr",
	SystemPrompt: `Tu es un assistant médical IA spécialisé en français. Tes réponses doivent:

1. TOUJOURS inclure des disclaimers médicaux appropriés
2. Recommander des spécialistes médicaux quand nécessaire
3. Utiliser un formatage en gras pour les informations importantes
4. Ne JAMAIS donner de diagnostic direct
5. Être empathique et professionnel
6. Répondre en français ou darija marocain selon la langue de l'utilisateur
7. Te souvenir de l'historique de conversation pour éviter de répéter les mêmes questions

Format de réponse souhaité:
- Réponse empathique à la question
- Conseils généraux appropriés
- 👨‍⚕️ **Recommandation médicale**: [Spécialiste recommandé]
- ⚠️ **Rappel**: Consultez toujours un **professionnel de santé**`,
	RecommendationFormat: "\n\n👨‍⚕️ **Recommandation médicale**: Je vous conseille de consulter un **%s** %s.",
	DisclaimerMarker:     "professionnel de santé",
	Disclaimer:           "\n\n⚠️ **Rappel**: Cette conversation est à titre informatif uniquement. **Consultez un professionnel de santé** pour tout problème médical.",
	SafetyReplacement:    "[Consultez un professionnel de santé]",
	Apology:              "Désolé, une erreur s'est produite. Veuillez réessayer.",
	Emphasis: append([]string{
		"urgent", "important", "consultation", "médecin", "docteur",
		"symptômes", "douleur", "traitement", "médicament", "urgence",
	}, append(specialistTerms,
		"24h", "48h", "72h", "heures", "jours", "semaines",
	)...),
}

var arabic = &Language{
	Code: "ar",
	SystemPrompt: `أنت مساعد طبي ذكي متخصص في اللغة العربية والدارجة المغربية. يجب أن تكون إجاباتك:

1. تتضمن دائماً تنبيهات طبية مناسبة
2. توصي بالأطباء المختصين عند الضرورة
3. تستخدم التنسيق الغامق للمعلومات المهمة
4. لا تعطي تشخيصاً مباشراً أبداً
5. تكون متعاطفة ومهنية
6. تجيب بالدارجة المغربية
7. تتذكر تاريخ المحادثة لتجنب تكرار نفس الأسئلة

تنسيق الإجابة المطلوب:
- إجابة متعاطفة للسؤال
- نصائح عامة مناسبة
- 👨‍⚕️ **نصيحة طبية**: [الطبيب المختص الموصى به]
- ⚠️ **تذكير**: شوف دائماً **طبيب مختص**`,
	RecommendationFormat: "\n\n👨‍⚕️ **نصيحة طبية**: نصحك تشوف **%s** %s.",
	DisclaimerMarker:     "طبيب مختص",
	Disclaimer:           "\n\n⚠️ **تذكير**: هاد المحادثة غير للمعلومات فقط. **شوف طبيب مختص** لأي مشكل صحي.",
	SafetyReplacement:    "[شوف طبيب مختص]",
	Apology:              "سمح لينا، وقع مشكل. عاود من فضلك.",
	Emphasis:             append([]string{"مستعجل", "الأعراض", "الدوا"}, specialistTerms...),
}

var languages = map[string]*Language{
	french.Code: french,
	arabic.Code: arabic,
}

func init() {
	for _, l := range languages {
		for _, term := range l.Emphasis {
			l.emphasis = append(l.emphasis, regexp.MustCompile(`(?i)`+regexp.QuoteMeta(term)))
		}
	}
}

// LookupLanguage returns the profile for code.  Codes are matched case
// insensitively; an empty or unknown code is a configuration error.
func LookupLanguage(code string) (*Language, error) {
	l, ok := languages[strings.ToLower(strings.TrimSpace(code))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, code)
	}
	return l, nil
}

// SupportedLanguages returns the known language codes.
func SupportedLanguages() []string {
	return []string{french.Code, arabic.Code}
}
