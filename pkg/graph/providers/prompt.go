package providers

import (
	"fmt"
	"strings"
)

const systemPrompt = "You are a knowledge graph extraction agent. " +
	"You perform named-entity and relationship extraction on unstructured memory entries " +
	"and output ONLY JSON with 'entities' and 'relations'."

// buildPrompt renders the shared extraction prompt for model-backed
// providers. The ENTRY node keeps the full text; extracted entities stay
// concise, and relation endpoints reference either the entry id or exact
// entity names from the same response.
func buildPrompt(req Request) string {
	contextNotice := fmt.Sprintf("You may use up to %d tokens.", req.ContextWindowTokens)
	if req.Truncated {
		contextNotice = fmt.Sprintf("The provided text has been truncated to %d tokens maximum.", req.ContextWindowTokens)
	}

	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "ENTRY_ID: %s\n\n", req.EntryID)
	b.WriteString(contextNotice)
	b.WriteString("\n\nRAW_ENTRY_TEXT:\n\"\"\"")
	b.WriteString(req.Text)
	b.WriteString("\"\"\"\n\n")
	b.WriteString(`Requirements:
1. Identify distinct entities for people, locations, organizations, objects, events, and key concepts.
   Ignore pronouns, stop words, months, or vague references ("he", "she", "it", "my", "december", etc.).
2. Each entity object MUST include:
   - "name": short canonical name. Do NOT include an "id" field.
   - "kind": one of ["PERSON","LOCATION","ORGANIZATION","OBJECT","EVENT","CONCEPT"].
   - "summary": 1-2 sentence description referencing facts from the entry.
   - "confidence": number between 0 and 1.
3. Build "relations" that reflect the real relationships in the text.
   - Use uppercase snake_case kind values like MENTIONS, WORKED_AT, MET_AT, LOCATED_IN.
   - When linking from the entry to an extracted entity, set "source" to `)
	fmt.Fprintf(&b, "%q", req.EntryID)
	b.WriteString(` and "target" to that entity's exact "name".
   - When linking between extracted entities, set both "source" and "target" to exact "name" strings.
4. Output JSON ONLY in the form:
   {"entities": [{...}], "relations": [{...}]}
   No explanations, code fences, or additional text.`)
	return b.String()
}
