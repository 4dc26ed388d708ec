package models

// AnswerType grades how an inquiry answer is grounded
type AnswerType string

const (
	AnswerFactual     AnswerType = "factual"
	AnswerSpeculative AnswerType = "speculative"
	AnswerUnavailable AnswerType = "unavailable"
)

// QuestionAnswer is one answered customer question
type QuestionAnswer struct {
	Question            string     `json:"question" yaml:"question"`
	Answer              string     `json:"answer" yaml:"answer"`
	Confidence          float64    `json:"confidence" yaml:"confidence" validate:"gte=0,lte=1"`
	ReferenceProductIDs []string   `json:"reference_product_ids,omitempty" yaml:"reference_product_ids,omitempty"`
	AnswerType          AnswerType `json:"answer_type" yaml:"answer_type" validate:"required,oneof=factual speculative unavailable"`
}

// AdvisorOutput is the Advisor's neutral, factual result for one email.
// Persona and phrasing are left to the Composer.
type AdvisorOutput struct {
	EmailID                string           `json:"email_id" yaml:"email_id"`
	PrimaryProducts        []string         `json:"primary_products,omitempty" yaml:"primary_products,omitempty"`
	AnsweredQuestions      []QuestionAnswer `json:"answered_questions" yaml:"answered_questions"`
	UnansweredQuestions    []string         `json:"unanswered_questions,omitempty" yaml:"unanswered_questions,omitempty"`
	RelatedProducts        []string         `json:"related_products,omitempty" yaml:"related_products,omitempty"`
	UnsuccessfulReferences []string         `json:"unsuccessful_references,omitempty" yaml:"unsuccessful_references,omitempty"`
}

// NotFoundAnswers returns the answers that report an unavailable product.
func (a *AdvisorOutput) NotFoundAnswers() []QuestionAnswer {
	var out []QuestionAnswer
	for _, answer := range a.AnsweredQuestions {
		if answer.AnswerType == AnswerUnavailable {
			out = append(out, answer)
		}
	}
	return out
}
