package providers

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/momento-app/momento-graph/pkg/graph"
)

// Parse turns raw provider output into typed candidates. Model output is
// frequently wrapped in code fences or prose, so the outer JSON object is
// located first and the lists are pulled out with gjson. Individual malformed
// elements are skipped; a response whose shape cannot be located at all is an
// InvalidResponse, which triggers the runner's fallback-or-fail policy.
func Parse(provider, raw string) ([]graph.EntityCandidate, []graph.RelationCandidate, error) {
	cleaned, err := extractJSONObject(raw)
	if err != nil {
		return nil, nil, graph.NewProviderError(provider, graph.ProviderInvalidResponse, err)
	}
	if !gjson.Valid(cleaned) {
		return nil, nil, graph.NewProviderError(provider, graph.ProviderInvalidResponse,
			errors.New("response is not valid JSON"))
	}

	entitiesField := gjson.Get(cleaned, "entities")
	relationsField := gjson.Get(cleaned, "relations")
	if !entitiesField.IsArray() && !relationsField.IsArray() {
		return nil, nil, graph.NewProviderError(provider, graph.ProviderInvalidResponse,
			errors.New("response missing entities/relations lists"))
	}

	var entities []graph.EntityCandidate
	entitiesField.ForEach(func(_, value gjson.Result) bool {
		name := strings.TrimSpace(value.Get("name").String())
		if name == "" {
			return true
		}
		kind := value.Get("kind").String()
		if kind == "" {
			// Older prompt revisions emitted a system_labels array.
			kind = value.Get("system_labels.0").String()
		}
		entities = append(entities, graph.EntityCandidate{
			Name:       name,
			Kind:       graph.KindFromString(kind),
			Summary:    strings.TrimSpace(value.Get("summary").String()),
			Confidence: value.Get("confidence").Float(),
		})
		return true
	})

	var relations []graph.RelationCandidate
	relationsField.ForEach(func(_, value gjson.Result) bool {
		source := strings.TrimSpace(value.Get("source").String())
		target := strings.TrimSpace(value.Get("target").String())
		kind := value.Get("kind").String()
		if kind == "" {
			kind = value.Get("relationType").String()
		}
		normalized, ok := graph.NormalizeRelationKind(kind)
		if source == "" || target == "" || !ok {
			return true
		}
		relations = append(relations, graph.RelationCandidate{
			Source:     source,
			Target:     target,
			Kind:       normalized,
			Confidence: value.Get("confidence").Float(),
		})
		return true
	})

	// Empty-but-well-formed lists are a legitimate "nothing found": the
	// entry succeeds and the graph stays untouched.
	return entities, relations, nil
}

// extractJSONObject strips code fences and returns the outermost JSON object.
func extractJSONObject(raw string) (string, error) {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.Trim(cleaned, "`")
		if strings.HasPrefix(strings.ToLower(cleaned), "json") {
			cleaned = cleaned[4:]
		}
		cleaned = strings.TrimSpace(cleaned)
	}
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end == -1 || end < start {
		return "", errors.New("response did not contain a JSON object")
	}
	return cleaned[start : end+1], nil
}
