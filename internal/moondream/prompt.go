package moondream

import "strings"

// CommandKind identifies which backend endpoint a prompt maps to.
type CommandKind int

const (
	KindCaption CommandKind = iota
	KindDetect
	KindQuestion
)

// String returns the endpoint-ish name of the kind, for logs.
func (k CommandKind) String() string {
	switch k {
	case KindCaption:
		return "caption"
	case KindDetect:
		return "detect"
	default:
		return "question"
	}
}

// Command is the classified form of a prompt. Exactly one payload field is
// meaningful: Object for KindDetect, Question for KindQuestion, neither for
// KindCaption.
type Command struct {
	Kind     CommandKind
	Object   string
	Question string
}

const detectPrefix = "detect:"

// ClassifyPrompt maps free-form prompt text onto a backend command.
//
// The grammar is deliberately small: a prompt equal (case-insensitively) to
// "generate caption" asks for a caption; a case-insensitive "detect:" prefix
// asks for detection of the trimmed remainder (which may be empty); anything
// else is passed to the model verbatim as a question.
func ClassifyPrompt(prompt string) Command {
	if strings.EqualFold(prompt, "generate caption") {
		return Command{Kind: KindCaption}
	}
	if len(prompt) >= len(detectPrefix) && strings.EqualFold(prompt[:len(detectPrefix)], detectPrefix) {
		return Command{
			Kind:   KindDetect,
			Object: strings.TrimSpace(prompt[len(detectPrefix):]),
		}
	}
	return Command{Kind: KindQuestion, Question: prompt}
}
