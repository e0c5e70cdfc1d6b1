package chat

import "library_chatbot/pkg/apperr"

type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRedirect
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRedirect:
		return "redirect"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Result is the reply to one command. Text is set for successes and
// failures, Target for redirects and Kind for failures only.
type Result struct {
	Outcome Outcome
	Text    string
	Target  string
	Kind    apperr.Kind
}

func Success(text string) Result {
	return Result{Outcome: OutcomeSuccess, Text: text}
}

func Redirect(target string) Result {
	return Result{Outcome: OutcomeRedirect, Target: target}
}

func Failure(kind apperr.Kind, text string) Result {
	return Result{Outcome: OutcomeFailure, Kind: kind, Text: text}
}
