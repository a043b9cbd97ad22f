// Package records reads and writes the flat label tables exchanged between
// the aligner and the scorer: one row per verb token.
package records

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jamesainslie/go-metaphor/labels"
)

// ErrMalformed indicates a row that cannot be decoded.
var ErrMalformed = errors.New("records: malformed row")

// Key identifies a verb token.
type Key struct {
	SentenceID string
	Position   int // 0-based
}

func (k Key) String() string {
	return k.SentenceID + "#" + strconv.Itoa(k.Position)
}

// Record is one labeled verb token.
type Record struct {
	SentenceID string
	Position   int
	Label      string
}

// Key returns the join key of r.
func (r Record) Key() Key {
	return Key{SentenceID: r.SentenceID, Position: r.Position}
}

// Format selects the on-disk row layout.
type Format int

const (
	// FormatTriple rows are "sentence_id,position,label" with 0-based
	// positions and label names.
	FormatTriple Format = iota

	// FormatVUAMC rows are "txt_sentence_offset,label_index" as used by the
	// VUAMC metaphor shared task: a 1-based token offset joined to the
	// sentence id with '_', and the label index.
	FormatVUAMC
)

func (f Format) String() string {
	switch f {
	case FormatTriple:
		return "triple"
	case FormatVUAMC:
		return "vuamc"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// ParseFormat parses "triple" or "vuamc".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "triple", "":
		return FormatTriple, nil
	case "vuamc":
		return FormatVUAMC, nil
	default:
		return 0, fmt.Errorf("records: unknown format %q", s)
	}
}

// Codec encodes records in one Format against one label set.
type Codec struct {
	Format Format
	Labels labels.Set
}

// Write encodes recs to w in order.
func (c Codec) Write(w io.Writer, recs []Record) error {
	cw := csv.NewWriter(w)
	for i, r := range recs {
		row, err := c.encode(r)
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing record %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Read decodes every row of r. Blank lines are skipped.
func (c Codec) Read(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var recs []Record
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return recs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv: %w", err)
		}
		line, _ := cr.FieldPos(0)
		rec, err := c.decode(row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		recs = append(recs, rec)
	}
}

// WriteFile writes recs to path. The file appears only once fully written.
func (c Codec) WriteFile(path string, recs []Record) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = c.Write(tmp, recs); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", tmp.Name(), err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmp.Name(), err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming to %s: %w", path, err)
	}
	return nil
}

// ReadFile reads all records from path.
func (c Codec) ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }() // Read-only; close error carries no data loss

	recs, err := c.Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return recs, nil
}

func (c Codec) encode(r Record) ([]string, error) {
	idx, ok := c.Labels.Index(r.Label)
	if !ok {
		return nil, fmt.Errorf("%w: unknown label %q", ErrMalformed, r.Label)
	}
	if r.Position < 0 {
		return nil, fmt.Errorf("%w: negative position %d", ErrMalformed, r.Position)
	}
	if r.SentenceID == "" || strings.TrimSpace(r.SentenceID) != r.SentenceID {
		return nil, fmt.Errorf("%w: sentence id %q", ErrMalformed, r.SentenceID)
	}

	switch c.Format {
	case FormatVUAMC:
		id := r.SentenceID + "_" + strconv.Itoa(r.Position+1)
		return []string{id, strconv.Itoa(idx)}, nil
	default:
		return []string{r.SentenceID, strconv.Itoa(r.Position), r.Label}, nil
	}
}

func (c Codec) decode(row []string) (Record, error) {
	switch c.Format {
	case FormatVUAMC:
		if len(row) != 2 {
			return Record{}, fmt.Errorf("%w: want 2 fields, got %d", ErrMalformed, len(row))
		}
		sentence, offset, err := SplitVUAMCID(row[0])
		if err != nil {
			return Record{}, err
		}
		idx, err := strconv.Atoi(strings.TrimSpace(row[1]))
		if err != nil || idx < 0 || idx >= c.Labels.Len() {
			return Record{}, fmt.Errorf("%w: label index %q", ErrMalformed, row[1])
		}
		return Record{SentenceID: sentence, Position: offset - 1, Label: c.Labels.Name(idx)}, nil

	default:
		if len(row) != 3 {
			return Record{}, fmt.Errorf("%w: want 3 fields, got %d", ErrMalformed, len(row))
		}
		pos, err := strconv.Atoi(strings.TrimSpace(row[1]))
		if err != nil || pos < 0 {
			return Record{}, fmt.Errorf("%w: position %q", ErrMalformed, row[1])
		}
		label := strings.TrimSpace(row[2])
		if _, ok := c.Labels.Index(label); !ok {
			return Record{}, fmt.Errorf("%w: unknown label %q", ErrMalformed, label)
		}
		return Record{SentenceID: strings.TrimSpace(row[0]), Position: pos, Label: label}, nil
	}
}

// SplitVUAMCID splits "txt_sentence_offset" into the sentence id
// "txt_sentence" and the 1-based token offset.
func SplitVUAMCID(id string) (sentence string, offset int, err error) {
	id = strings.TrimSpace(id)
	i := strings.LastIndexByte(id, '_')
	if i <= 0 || i == len(id)-1 {
		return "", 0, fmt.Errorf("%w: token id %q", ErrMalformed, id)
	}
	offset, err = strconv.Atoi(id[i+1:])
	if err != nil || offset < 1 {
		return "", 0, fmt.Errorf("%w: token offset in %q", ErrMalformed, id)
	}
	return id[:i], offset, nil
}
