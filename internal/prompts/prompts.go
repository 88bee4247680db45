// Package prompts renders cascade requests into the instruction and user
// prompt sent to every backend, so all providers see identical input.
package prompts

import (
	"fmt"
	"slices"
	"strings"

	"github.com/rhythmlogic/gps/internal/cascade"
)

// SystemInstruction defines the drafting assistant persona shared by all backends.
// It covers both creating a first draft and revising an existing one.
const SystemInstruction = `You are a drafting assistant for educators and small organizations. You write clear, practical material adapted to the audience and place described in the request.

## GENERAL RULES
1. Use local names, currency, food and places from the region when one is given.
2. Assume NO supplies are available unless the request says otherwise. Text only.
3. Match vocabulary and length to the stated age band or audience.
4. Respond in Markdown. Do not wrap the whole answer in a code block.

## CREATING A DRAFT
Structure the draft as:
- **Topic**
- **Concept** (short explanation)
- **Real Life Example** (set in the given region)
- **Activity** (no supplies)
- **Quiz** (3 questions)

## REVISING A DRAFT [CRITICAL]
When a current draft is provided, return the COMPLETE revised draft, not a diff or a list of changes. Apply the instruction, keep everything it does not touch, and do not comment on what you changed.
`

// Mode is the kind of generation a request asks for.
type Mode string

const (
	ModeCreate Mode = "create"
	ModeRefine Mode = "refine"
)

// DefaultTopic is used when a new draft has no explicit subject.
const DefaultTopic = "Fundamental Concept"

// ModeOf reports whether the request creates a new draft or refines one.
func ModeOf(req cascade.Request) Mode {
	if req.Refining() {
		return ModeRefine
	}
	return ModeCreate
}

// Render builds the user prompt for a request. Context parameters are
// emitted in key order so identical requests render identically.
func Render(req cascade.Request) string {
	var sb strings.Builder

	subject := strings.TrimSpace(req.SubjectMatter)
	if subject == "" {
		subject = DefaultTopic
	}

	switch ModeOf(req) {
	case ModeRefine:
		sb.WriteString("Revise the current draft.\n\n")
	default:
		sb.WriteString("Create a new draft.\n\n")
	}
	fmt.Fprintf(&sb, "SUBJECT: %s\n", subject)

	if len(req.Context) > 0 {
		keys := make([]string, 0, len(req.Context))
		for k := range req.Context {
			keys = append(keys, k)
		}
		slices.Sort(keys)

		sb.WriteString("\nPARAMETERS:\n")
		for _, k := range keys {
			v := strings.TrimSpace(req.Context[k])
			if v == "" {
				continue
			}
			fmt.Fprintf(&sb, "- %s: %s\n", k, v)
		}
	}

	if req.Refining() {
		sb.WriteString("\nCURRENT DRAFT:\n")
		sb.WriteString(strings.TrimSpace(req.PriorOutput))
		sb.WriteString("\n")
	}

	if instr := strings.TrimSpace(req.Instruction); instr != "" {
		sb.WriteString("\nINSTRUCTION:\n")
		sb.WriteString(instr)
		sb.WriteString("\n")
	}

	if req.HasAudio() {
		sb.WriteString("\nThe attached audio recording contains the spoken instruction. Follow it.\n")
	}

	return sb.String()
}
