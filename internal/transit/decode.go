package transit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

const (
	// MaxCandidates is the number of array elements inspected per document.
	// Elements after it are ignored, not rejected: the document still decodes.
	MaxCandidates = 16

	// DefaultDocumentBudget bounds the bytes consumed while decoding a document.
	DefaultDocumentBudget = MaxCandidates*256 + 512

	etaMissing = -1
)

// Decoder turns a backend response body into departures.
type Decoder struct {
	// Capacity is the maximum number of accepted entries (default: DefaultCapacity).
	Capacity int

	// Budget is the maximum number of bytes read from the body (default: DefaultDocumentBudget).
	Budget int
}

// NewDecoder creates a decoder with the given capacity and default budget.
func NewDecoder(capacity int) *Decoder {
	return &Decoder{Capacity: capacity, Budget: DefaultDocumentBudget}
}

// Decode parses body as a JSON array of departure objects.
// The returned slice is always safe to store: on error it is empty.
// Elements with a missing or out-of-range eta_min are skipped without consuming
// a slot; missing or mistyped line/destination default to "".
func (d *Decoder) Decode(body []byte) ([]Departure, error) {
	capacity := d.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	budget := d.Budget
	if budget <= 0 {
		budget = DefaultDocumentBudget
	}

	reader := &budgetReader{r: bytes.NewReader(body), remaining: budget}
	dec := json.NewDecoder(reader)

	tok, err := dec.Token()
	if err != nil {
		return nil, decodeError(reader, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, fmt.Errorf("%w: top level is not an array", ErrMalformedResponse)
	}

	departures := make([]Departure, 0, capacity)
	for candidates := 0; len(departures) < capacity && candidates < MaxCandidates; candidates++ {
		if !dec.More() {
			// Consume the closing bracket so truncated documents are detected.
			if _, err := dec.Token(); err != nil {
				return nil, decodeError(reader, err)
			}
			break
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, decodeError(reader, err)
		}

		dep, ok := decodeElement(raw)
		if !ok {
			continue
		}
		departures = append(departures, dep)
	}

	return departures, nil
}

// decodeElement applies field defaults and the ETA range check to one element.
func decodeElement(raw json.RawMessage) (Departure, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		// Not an object: every field takes its default, so the ETA rejects it.
		return Departure{}, false
	}

	eta := integerField(fields["eta_min"], etaMissing)
	if eta < 0 || eta > MaxETAMinutes {
		return Departure{}, false
	}

	return NewDeparture(
		stringField(fields["line"]),
		stringField(fields["destination"]),
		uint8(eta),
	), true
}

func stringField(raw json.RawMessage) string {
	if len(raw) == 0 || raw[0] != '"' {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// integerField accepts integer literals only; floats, strings and booleans yield def.
func integerField(raw json.RawMessage, def int64) int64 {
	if len(raw) == 0 {
		return def
	}
	n, err := strconv.ParseInt(string(bytes.TrimSpace(raw)), 10, 64)
	if err != nil {
		return def
	}
	return n
}

func decodeError(reader *budgetReader, err error) error {
	if reader.exhausted {
		return fmt.Errorf("%w: %d byte budget", ErrDocumentTooLarge, reader.limit())
	}
	if err == io.EOF {
		return fmt.Errorf("%w: unexpected end of document", ErrMalformedResponse)
	}
	return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
}

// budgetReader stops reading after a fixed number of bytes and remembers
// whether the budget, rather than the body, ran out.
type budgetReader struct {
	r         io.Reader
	remaining int
	consumed  int
	exhausted bool
}

func (b *budgetReader) Read(p []byte) (int, error) {
	if b.remaining <= 0 {
		if n, _ := b.r.Read(make([]byte, 1)); n > 0 {
			b.exhausted = true
		}
		return 0, io.EOF
	}
	if len(p) > b.remaining {
		p = p[:b.remaining]
	}
	n, err := b.r.Read(p)
	b.remaining -= n
	b.consumed += n
	return n, err
}

func (b *budgetReader) limit() int {
	return b.consumed + b.remaining
}
