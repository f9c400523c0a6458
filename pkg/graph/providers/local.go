package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/jdkato/prose/v2"
	"github.com/sirupsen/logrus"

	"github.com/momento-app/momento-graph/pkg/graph"
)

// capitalized single words or pairs ("Alice", "Hopewell Junction")
var namePattern = regexp.MustCompile(`\b([A-Z][a-z]+(?:\s[A-Z][a-z]+)?)\b`)

var stopwords = mapset.NewSet(
	"he", "she", "it", "we", "i", "my", "me", "you", "they", "the", "a", "an",
	"january", "february", "march", "april", "may", "june", "july", "august",
	"september", "october", "november", "december",
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
	"mid", "first", "last", "next", "today", "tomorrow", "yesterday",
)

var locationSuffixes = []string{
	"junction", "city", "town", "park", "beach", "street", "avenue", "valley",
	"island", "lake", "river", "mountain",
}

var organizationMarkers = []string{
	"inc", "llc", "corp", "labs", "florist", "company", "university", "hospital",
	"bank", "school",
}

var eventMarkers = []string{"date", "meeting", "wedding", "party", "concert", "marathon"}

// LocalProvider is a deterministic rule-based extractor used for development
// and as the unconditional fallback backend. It performs no I/O and cannot
// fail: any text, including empty text, yields a well-formed response.
type LocalProvider struct {
	log *logrus.Entry
}

// NewLocalProvider builds the heuristic provider.
func NewLocalProvider(logger *logrus.Logger) *LocalProvider {
	return &LocalProvider{log: logger.WithField("provider", NameLocal)}
}

func (p *LocalProvider) Name() string { return NameLocal }

// Extract derives entities from NER tags and capitalized phrases, then links
// the entry to each via a MENTIONS relation. Output uses the same JSON shape
// model-backed providers produce so it flows through the shared parser.
func (p *LocalProvider) Extract(_ context.Context, req Request) (string, error) {
	names := mapset.NewSet[string]()
	kinds := map[string]graph.EntityKind{}
	confidences := map[string]float64{}

	if doc, err := prose.NewDocument(req.Text); err == nil {
		for _, ent := range doc.Entities() {
			name := strings.TrimSpace(ent.Text)
			if name == "" || stopwords.Contains(strings.ToLower(name)) {
				continue
			}
			names.Add(name)
			kinds[name] = kindFromNERLabel(ent.Label)
			confidences[name] = 0.9
		}
	} else {
		p.log.WithError(err).Debug("prose document creation failed, using pattern matching only")
	}

	for _, match := range namePattern.FindAllString(req.Text, -1) {
		name := strings.TrimSpace(match)
		if stopwords.Contains(strings.ToLower(name)) {
			continue
		}
		if names.Add(name) {
			kinds[name] = inferKind(name)
			confidences[name] = 0.6
		}
	}

	sorted := names.ToSlice()
	sort.Strings(sorted)

	type entityPayload struct {
		Name       string  `json:"name"`
		Kind       string  `json:"kind"`
		Summary    string  `json:"summary"`
		Confidence float64 `json:"confidence"`
	}
	type relationPayload struct {
		Source     string  `json:"source"`
		Target     string  `json:"target"`
		Kind       string  `json:"kind"`
		Confidence float64 `json:"confidence"`
	}

	entities := make([]entityPayload, 0, len(sorted))
	relations := make([]relationPayload, 0, len(sorted))
	for _, name := range sorted {
		entities = append(entities, entityPayload{
			Name:       name,
			Kind:       string(kinds[name]),
			Summary:    fmt.Sprintf("Mentioned in entry %s", req.EntryID),
			Confidence: confidences[name],
		})
		relations = append(relations, relationPayload{
			Source:     req.EntryID,
			Target:     name,
			Kind:       "MENTIONS",
			Confidence: confidences[name],
		})
	}

	payload, err := json.Marshal(map[string]any{
		"entities":  entities,
		"relations": relations,
	})
	if err != nil {
		// Marshalling plain structs cannot fail; keep the contract anyway.
		return `{"entities":[],"relations":[]}`, nil
	}
	return string(payload), nil
}

func kindFromNERLabel(label string) graph.EntityKind {
	switch label {
	case "PERSON":
		return graph.KindPerson
	case "GPE", "LOC", "FAC":
		return graph.KindLocation
	case "ORG":
		return graph.KindOrganization
	case "EVENT":
		return graph.KindEvent
	default:
		return graph.KindConcept
	}
}

// inferKind guesses a kind for pattern-matched names the NER pass missed.
func inferKind(name string) graph.EntityKind {
	lower := strings.ToLower(name)
	for _, suffix := range locationSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return graph.KindLocation
		}
	}
	for _, marker := range organizationMarkers {
		if strings.Contains(lower, marker) {
			return graph.KindOrganization
		}
	}
	for _, marker := range eventMarkers {
		if strings.Contains(lower, marker) {
			return graph.KindEvent
		}
	}
	return graph.KindPerson
}
