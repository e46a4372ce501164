package narrative

import (
	"fmt"
	"strings"

	"talkmubio-backend/internal/reconcile"
)

func storyUpdatePrompt(in reconcile.GenerateInput) string {
	prevSummary := in.PreviousSummary
	if prevSummary == "" {
		prevSummary = "No previous summary"
	}

	var b strings.Builder
	b.WriteString("You are an AI assistant helping to analyze and summarize conversations about family stories and memories.\n\n")
	fmt.Fprintf(&b, "Category Context: %s - %s\n", in.Category.Title, in.Category.Description)
	fmt.Fprintf(&b, "Initial Question: %s\n", in.InitialQuestion)
	fmt.Fprintf(&b, "Onboarding Call Summary: %s\n", in.OnboardingSummary)
	fmt.Fprintf(&b, "Previous Summary: %s\n\n", prevSummary)

	b.WriteString("Narrative Preferences:\n")
	fmt.Fprintf(&b, "- Narrative Style: %s\n", in.Preferences.NarrativeStyle)
	b.WriteString("  • first-person: Stories written from the speaker's perspective (\"I remember...\")\n")
	fmt.Fprintf(&b, "  • third-person: Stories written from %s's perspective (\"%s remembers...\")\n", in.UserName, in.UserName)
	fmt.Fprintf(&b, "- Length Preference: %s\n", in.Preferences.LengthPreference)
	b.WriteString("  • longer: Comprehensive, detailed stories\n")
	b.WriteString("  • balanced: Moderate length with key details\n")
	b.WriteString("  • shorter: Concise, focused stories\n")
	fmt.Fprintf(&b, "- Detail Richness: %s\n", in.Preferences.DetailRichness)
	b.WriteString("  • more: Rich, descriptive narratives with sensory details\n")
	b.WriteString("  • balanced: Mix of events and descriptive elements\n")
	b.WriteString("  • fewer: Focus on key events and minimal description\n\n")

	b.WriteString("Based on the transcript of the conversation and the narrative preferences above, generate a JSON response with the following fields:\n\n")
	b.WriteString("- storySummary: A concise summary of all conversations so far\n")
	b.WriteString("- storyText: A well-formatted narrative combining all the stories shared, following the specified narrative style, length, and detail richness\n")
	b.WriteString("- title: A one-line title (only if current title is null)\n")
	b.WriteString("- description: A 40-50 word description (only if current description is null)\n\n")

	fmt.Fprintf(&b, "Current Transcript:\n%s", in.Transcript)
	return b.String()
}

func upcomingQuestionsPrompt(covered []CoveredStory) string {
	var b strings.Builder
	b.WriteString("You are helping a family-memory service pick the next conversation starters for a user.\n")
	b.WriteString("Based on the questions already asked and what each conversation covered, suggest five fresh questions that explore new ground.\n")
	b.WriteString("Avoid repeating themes already covered. Format the response as JSON: {\"questions\": [\"...\"]}\n\n")
	b.WriteString("Conversations so far:\n")
	for i, c := range covered {
		fmt.Fprintf(&b, "\nConversation %d:\nQuestion: %s\nSummary: %s\n", i+1, c.InitialQuestion, c.StorySummary)
	}
	return b.String()
}
