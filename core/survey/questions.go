package survey

type QuestionKind string

const (
	KindShortText    QuestionKind = "short-text"
	KindSingleChoice QuestionKind = "single-choice"
	KindScale        QuestionKind = "scale"
	KindFreeText     QuestionKind = "free-text"
)

const (
	ScaleMin = 1
	ScaleMax = 5
)

type Question struct {
	ID      string       `json:"id"`
	Label   string       `json:"label"`
	Kind    QuestionKind `json:"kind"`
	Options []string     `json:"options,omitempty"`
}

func (q Question) hasOption(opt string) bool {
	for _, o := range q.Options {
		if o == opt {
			return true
		}
	}
	return false
}

var (
	yesPartlyNo = []string{"Oui, totalement", "Oui, en partie", "Non"}

	hotQuestions = []Question{
		{ID: "trainer_name", Label: "Nom du formateur", Kind: KindShortText},
		{ID: "overall_satisfaction", Label: "Globalement, êtes-vous satisfait(e) de la formation ?", Kind: KindScale},
		{ID: "objectives_met", Label: "Les objectifs de la formation ont-ils été atteints ?", Kind: KindSingleChoice, Options: yesPartlyNo},
		{ID: "content_quality", Label: "Qualité du contenu", Kind: KindScale},
		{ID: "trainer_expertise", Label: "Maîtrise du sujet par le formateur", Kind: KindScale},
		{ID: "pace", Label: "Le rythme de la formation était", Kind: KindSingleChoice, Options: []string{"Trop lent", "Adapté", "Trop rapide"}},
		{ID: "organization", Label: "Organisation (logistique, supports, horaires)", Kind: KindScale},
		{ID: "applicability", Label: "Pourrez-vous appliquer ce que vous avez appris ?", Kind: KindScale},
		{ID: "recommend", Label: "Recommanderiez-vous cette formation ?", Kind: KindSingleChoice, Options: []string{"Oui", "Peut-être", "Non"}},
		{ID: "strengths", Label: "Qu'avez-vous le plus apprécié ?", Kind: KindFreeText},
		{ID: "improvements", Label: "Que pourrions-nous améliorer ?", Kind: KindFreeText},
	}

	coldQuestions = []Question{
		{ID: "job_title", Label: "Votre poste actuel", Kind: KindShortText},
		{ID: "skills_used", Label: "Utilisez-vous les compétences acquises dans votre travail ?", Kind: KindSingleChoice, Options: []string{"Souvent", "Parfois", "Rarement", "Jamais"}},
		{ID: "skills_retention", Label: "Que retenez-vous de la formation aujourd'hui ?", Kind: KindScale},
		{ID: "performance_impact", Label: "Impact de la formation sur votre performance", Kind: KindScale},
		{ID: "confidence", Label: "Vous sentez-vous plus à l'aise dans votre poste ?", Kind: KindScale},
		{ID: "knowledge_shared", Label: "Avez-vous partagé ces connaissances avec vos collègues ?", Kind: KindSingleChoice, Options: yesPartlyNo},
		{ID: "obstacles", Label: "Quels obstacles avez-vous rencontrés pour appliquer la formation ?", Kind: KindFreeText},
		{ID: "manager_support", Label: "Soutien de votre hiérarchie dans la mise en pratique", Kind: KindScale},
		{ID: "career_impact", Label: "La formation a-t-elle eu un effet sur votre évolution professionnelle ?", Kind: KindSingleChoice, Options: []string{"Oui", "Pas encore", "Non"}},
		{ID: "relevance_today", Label: "Pertinence de la formation au regard de vos missions actuelles", Kind: KindScale},
		{ID: "further_training", Label: "Sur quels sujets souhaiteriez-vous être formé(e) ?", Kind: KindShortText},
		{ID: "overall_value", Label: "Avec le recul, quelle valeur accordez-vous à cette formation ?", Kind: KindScale},
		{ID: "comments", Label: "Commentaires libres", Kind: KindFreeText},
	}
)

// Questions returns the fixed questionnaire of a form type.
func Questions(t FormType) []Question {
	qs := hotQuestions
	if t == Cold {
		qs = coldQuestions
	}
	out := make([]Question, len(qs))
	copy(out, qs)
	return out
}
