// Package vuamc loads the VU Amsterdam Metaphor Corpus files distributed with
// the NAACL 2018 metaphor detection shared task.
//
// The corpus file has a header row and the columns txt_id, sentence_id and
// sentence_txt; tokens are separated by whitespace. The verb file has one row
// per verb token, "txt_id_sentence_id_offset[,label]", where offset is 1-based
// and label is a label index.
package vuamc

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/jamesainslie/go-metaphor/corpus"
	"github.com/jamesainslie/go-metaphor/labels"
	"github.com/jamesainslie/go-metaphor/records"
)

// ErrFormat indicates a row that does not follow the VUAMC layout.
var ErrFormat = errors.New("vuamc: malformed file")

// Mode selects whether verb labels are required.
type Mode int

const (
	// ModeTrain requires a label on every verb row.
	ModeTrain Mode = iota
	// ModeTest accepts verb rows without labels.
	ModeTest
)

func (m Mode) String() string {
	if m == ModeTest {
		return "test"
	}
	return "train"
}

// ParseMode parses "train" or "test".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "train", "":
		return ModeTrain, nil
	case "test":
		return ModeTest, nil
	default:
		return 0, fmt.Errorf("vuamc: unknown mode %q", s)
	}
}

// Load reads and validates a corpus from the corpus and verb files.
func Load(corpusPath, verbsPath string, mode Mode, set labels.Set) (*corpus.Corpus, error) {
	cf, err := os.Open(corpusPath)
	if err != nil {
		return nil, fmt.Errorf("opening corpus: %w", err)
	}
	defer func() { _ = cf.Close() }()

	vf, err := os.Open(verbsPath)
	if err != nil {
		return nil, fmt.Errorf("opening verb tokens: %w", err)
	}
	defer func() { _ = vf.Close() }()

	return Read(cf, vf, mode, set)
}

// Read is Load over readers.
func Read(corpusR, verbsR io.Reader, mode Mode, set labels.Set) (*corpus.Corpus, error) {
	c, byID, err := readSentences(corpusR)
	if err != nil {
		return nil, fmt.Errorf("corpus: %w", err)
	}
	if err := readVerbs(verbsR, c, byID, mode, set); err != nil {
		return nil, fmt.Errorf("verb tokens: %w", err)
	}

	for i := range c.Sentences {
		slices.SortFunc(c.Sentences[i].Verbs, func(a, b corpus.VerbToken) int {
			return a.Position - b.Position
		})
	}
	if err := c.Validate(set, mode == ModeTrain); err != nil {
		return nil, err
	}
	return c, nil
}

func readSentences(r io.Reader) (*corpus.Corpus, map[string]int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	c := &corpus.Corpus{}
	byID := map[string]int{}
	for first := true; ; first = false {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return c, byID, nil
		}
		if err != nil {
			return nil, nil, fmt.Errorf("reading csv: %w", err)
		}
		if first && strings.EqualFold(strings.TrimSpace(row[0]), "txt_id") {
			continue
		}

		line, _ := cr.FieldPos(0)
		if len(row) != 3 {
			return nil, nil, fmt.Errorf("%w: line %d: want 3 fields, got %d", ErrFormat, line, len(row))
		}
		id := strings.TrimSpace(row[0]) + "_" + strings.TrimSpace(row[1])
		if _, dup := byID[id]; dup {
			return nil, nil, fmt.Errorf("%w: line %d: duplicate sentence %s", ErrFormat, line, id)
		}
		byID[id] = len(c.Sentences)
		c.Sentences = append(c.Sentences, corpus.Sentence{ID: id, Tokens: strings.Fields(row[2])})
	}
}

func readVerbs(r io.Reader, c *corpus.Corpus, byID map[string]int, mode Mode, set labels.Set) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading csv: %w", err)
		}
		line, _ := cr.FieldPos(0)

		sentence, offset, err := records.SplitVUAMCID(row[0])
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		idx, ok := byID[sentence]
		if !ok {
			return fmt.Errorf("%w: line %d: sentence %s not in corpus", ErrFormat, line, sentence)
		}

		verb := corpus.VerbToken{Position: offset - 1}
		switch {
		case len(row) >= 2 && strings.TrimSpace(row[1]) != "":
			l, err := strconv.Atoi(strings.TrimSpace(row[1]))
			if err != nil || l < 0 || l >= set.Len() {
				return fmt.Errorf("%w: line %d: label %q", ErrFormat, line, row[1])
			}
			verb.Label = set.Name(l)
		case mode == ModeTrain:
			return fmt.Errorf("%w: line %d: verb %s has no label", ErrFormat, line, row[0])
		}

		s := &c.Sentences[idx]
		s.Verbs = append(s.Verbs, verb)
	}
}
