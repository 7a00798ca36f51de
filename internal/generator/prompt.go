package generator

import (
	"fmt"
	"strings"
)

// PromptInput is the part of a dream the prompt is built from.
type PromptInput struct {
	Description string
	Mood        string
	IsLucid     bool
	Tags        []string
}

const promptInstructions = `Please provide the analysis in a structured format with the following sections:
- **Core Themes:** Identify the main emotional and psychological themes.
- **Symbol Analysis:** Interpret the key symbols and their potential meanings.
- **Potential Influences:** Suggest possible real-life connections or stressors.
- **Summary & Reflection:** Offer a concluding thought or a question for self-reflection.

Keep the tone insightful, empathetic, and avoid making definitive statements. Use "could represent," "might suggest," etc. The analysis should be between 200 and 400 words.`

// BuildPrompt renders the interpretation prompt for a dream. The output
// depends only on the input, so the same dream always yields the same
// prompt.
func BuildPrompt(in PromptInput) string {
	var b strings.Builder

	b.WriteString("Analyze the following dream and provide a detailed analysis of its potential meanings, symbols, and emotional themes. The user is looking for insights into their subconscious mind.\n\n")
	fmt.Fprintf(&b, "Dream Description:\n%s\n\n", in.Description)
	fmt.Fprintf(&b, "Mood Upon Waking: %s\n", in.Mood)
	fmt.Fprintf(&b, "Lucid Dream: %s\n", yesNo(in.IsLucid))
	// The tag line carries its own blank separator; without tags the
	// instructions follow the lucid line directly.
	if len(in.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n\n", strings.Join(in.Tags, ", "))
	}
	b.WriteString(promptInstructions)

	return b.String()
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
