package book

import (
	"fmt"
	"strings"

	"talkmubio-backend/internal/story"
)

func indexPrompt(stories []*story.Story) string {
	var b strings.Builder
	b.WriteString("Create a book index from the following stories. Each story has an initial question and story text. ")
	b.WriteString("Generate a cohesive structure with chapters and a suggested book title. ")
	b.WriteString("Format the response as JSON with the following structure:\n")
	b.WriteString(`{
  "title": "Book title",
  "coverDescription": "Description for cover image generation",
  "chapters": [
    {
      "number": 1,
      "title": "Chapter title",
      "storyIndex": 0
    }
  ]
}
`)
	b.WriteString("storyIndex is the index of the story in the provided array.\n\nStories:\n")
	for i, st := range stories {
		text := ""
		if st.StoryText != nil {
			text = *st.StoryText
		}
		fmt.Fprintf(&b, "\nStory %d:\nQuestion: %s\nText: %s\n", i+1, st.InitialQuestion, text)
	}
	return b.String()
}

func chapterPrompt(st *story.Story, chapterTitle, summariesSoFar string, prefs story.StoryPreferences) string {
	text := ""
	if st.StoryText != nil {
		text = *st.StoryText
	}

	var b strings.Builder
	b.WriteString("We are creating a cohesive book of multiple chapters.\n")
	b.WriteString("So far, these story summaries (NOT full text) have been covered:\n")
	b.WriteString(summariesSoFar)
	fmt.Fprintf(&b, "\n\nNow, generate the next chapter with the title: %q based on this new story:\n", chapterTitle)
	fmt.Fprintf(&b, "Question: %s\nStory Text: %s\n\n", st.InitialQuestion, text)
	b.WriteString("Narrative Preferences:\n")
	fmt.Fprintf(&b, "- Narrative Style: %s\n", prefs.NarrativeStyle)
	b.WriteString("  first-person: stories written from the speaker's perspective (\"I remember...\")\n")
	b.WriteString("  third-person: stories written from an observer's perspective (\"John remembers...\")\n")
	fmt.Fprintf(&b, "- Length Preference: %s\n", prefs.LengthPreference)
	b.WriteString("  longer: comprehensive, detailed stories\n")
	b.WriteString("  balanced: moderate length with key details\n")
	b.WriteString("  shorter: concise, focused stories\n")
	fmt.Fprintf(&b, "- Detail Richness: %s\n", prefs.DetailRichness)
	b.WriteString("  more: rich, descriptive narratives with sensory details\n")
	b.WriteString("  balanced: mix of events and descriptive elements\n")
	b.WriteString("  fewer: focus on key events and minimal description\n\n")
	b.WriteString("IMPORTANT REQUIREMENTS:\n")
	b.WriteString("1. Do NOT include any automatic chapter numbering (e.g., \"Chapter One\", \"Chapter Seven\").\n")
	b.WriteString("2. Do NOT use the word \"Chapter\" at all.\n")
	b.WriteString("3. Write a cohesive, engaging narrative that can logically follow from the previous stories' summaries.\n")
	b.WriteString("4. Return only the text of the new chapter with no extra headings or metadata.")
	return b.String()
}
