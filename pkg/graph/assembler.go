package graph

import (
	"strings"
	"sync"

	"github.com/jdkato/prose/v2"
	"github.com/pkg/errors"
	"github.com/pkoukk/tiktoken-go"
)

// Assembly is the outcome of fitting entry text into the provider's context
// window. Segments are each within the token budget; Truncated is set when
// the input did not fit in a single segment.
type Assembly struct {
	Segments  []string
	Truncated bool
	Tokens    int
}

// Prompt returns the segment handed to the provider. Only the first segment
// is sent; the rest exist so callers can inspect what was cut.
func (a Assembly) Prompt() string {
	if len(a.Segments) == 0 {
		return ""
	}
	return a.Segments[0]
}

// Assembler fits entry text into a token budget, preserving sentence
// boundaries where possible. It is a pure function of (text, budget): no
// network or persistence side effects.
type Assembler struct {
	budget int
	encode func(string) []int
	decode func([]int) string
}

// NewAssembler builds an assembler for the given token budget using the
// cl100k_base encoding.
func NewAssembler(budgetTokens int) (*Assembler, error) {
	if budgetTokens <= 0 {
		return nil, errors.New("assembler: token budget must be positive")
	}
	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, errors.Wrap(err, "assembler: load encoding")
	}
	return &Assembler{
		budget: budgetTokens,
		encode: func(text string) []int { return encoding.Encode(text, nil, nil) },
		decode: encoding.Decode,
	}, nil
}

// NewWordAssembler builds an assembler that approximates tokens by
// whitespace-delimited words. It serves environments where the BPE vocabulary
// cannot be fetched; counts run low relative to cl100k_base, so pair it with
// a conservative budget.
func NewWordAssembler(budgetTokens int) (*Assembler, error) {
	if budgetTokens <= 0 {
		return nil, errors.New("assembler: token budget must be positive")
	}
	var (
		mu    sync.Mutex
		words []string
		index = map[string]int{}
	)
	encode := func(text string) []int {
		mu.Lock()
		defer mu.Unlock()
		fields := strings.Fields(text)
		ids := make([]int, 0, len(fields))
		for _, w := range fields {
			id, ok := index[w]
			if !ok {
				id = len(words)
				words = append(words, w)
				index[w] = id
			}
			ids = append(ids, id)
		}
		return ids
	}
	decode := func(ids []int) string {
		mu.Lock()
		defer mu.Unlock()
		out := make([]string, 0, len(ids))
		for _, id := range ids {
			if id >= 0 && id < len(words) {
				out = append(out, words[id])
			}
		}
		return strings.Join(out, " ")
	}
	return &Assembler{budget: budgetTokens, encode: encode, decode: decode}, nil
}

// Assemble splits text into segments that each fit the token budget. Sentence
// boundaries are respected; a single sentence larger than the whole budget is
// hard-cut on tokens.
func (a *Assembler) Assemble(text string) (Assembly, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Assembly{}, NewValidationError("entry text is empty")
	}

	total := a.countTokens(text)
	if total <= a.budget {
		return Assembly{Segments: []string{text}, Tokens: total}, nil
	}

	sentences, err := splitSentences(text)
	if err != nil {
		return Assembly{}, errors.Wrap(err, "assembler: sentence segmentation")
	}

	var (
		segments []string
		current  strings.Builder
		used     int
	)
	flush := func() {
		if current.Len() > 0 {
			segments = append(segments, strings.TrimSpace(current.String()))
			current.Reset()
			used = 0
		}
	}
	for _, sentence := range sentences {
		n := a.countTokens(sentence)
		if n > a.budget {
			flush()
			segments = append(segments, a.hardCut(sentence)...)
			continue
		}
		if used+n > a.budget {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sentence)
		used += n
	}
	flush()

	return Assembly{Segments: segments, Truncated: true, Tokens: total}, nil
}

func (a *Assembler) countTokens(text string) int {
	return len(a.encode(text))
}

// hardCut slices an oversized sentence on raw token boundaries.
func (a *Assembler) hardCut(sentence string) []string {
	ids := a.encode(sentence)
	var out []string
	for start := 0; start < len(ids); start += a.budget {
		end := start + a.budget
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, a.decode(ids[start:end]))
	}
	return out
}

func splitSentences(text string) ([]string, error) {
	doc, err := prose.NewDocument(text, prose.WithTagging(false), prose.WithExtraction(false))
	if err != nil {
		return nil, err
	}
	sentences := doc.Sentences()
	out := make([]string, 0, len(sentences))
	for _, s := range sentences {
		if trimmed := strings.TrimSpace(s.Text); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out, nil
}
