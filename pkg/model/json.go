package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Position is a placement: x and y in millimeters, rotation in degrees.
// It serializes as [x, y, rot].
type Position struct {
	X   float64
	Y   float64
	Rot float64
}

func (p Position) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]float64{p.X, p.Y, p.Rot})
}

func (p *Position) UnmarshalJSON(data []byte) error {
	var v []float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("position: %w", err)
	}
	switch len(v) {
	case 2:
		*p = Position{X: v[0], Y: v[1]}
	case 3:
		*p = Position{X: v[0], Y: v[1], Rot: v[2]}
	default:
		return fmt.Errorf("position: want [x, y] or [x, y, rot], got %d numbers", len(v))
	}
	return nil
}

// Point is an offset in millimeters, serialized as [x, y].
type Point struct {
	X float64
	Y float64
}

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.X, p.Y})
}

func (p *Point) UnmarshalJSON(data []byte) error {
	var v [2]float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("point: %w", err)
	}
	*p = Point{X: v[0], Y: v[1]}
	return nil
}

// Size is a width and height in millimeters, serialized as [w, h].
type Size struct {
	Width  float64
	Height float64
}

func (s Size) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{s.Width, s.Height})
}

func (s *Size) UnmarshalJSON(data []byte) error {
	var v [2]float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("size: %w", err)
	}
	*s = Size{Width: v[0], Height: v[1]}
	return nil
}

// Marshal renders d as indented JSON. Map keys are sorted by encoding/json
// and Normalize sorts the lists, so equal documents give equal bytes.
func (d *Document) Marshal() ([]byte, error) {
	d.Normalize()
	return marshalIndent(d)
}

// UnmarshalDocument decodes a canonical document.
func UnmarshalDocument(data []byte) (*Document, error) {
	if err := checkDuplicateRefs(data, false); err != nil {
		return nil, err
	}
	doc := NewDocument()
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	doc.init()
	return doc, nil
}

// Design is a whole project: one document per schematic file.
type Design struct {
	Root      string               `json:"root"`
	Documents map[string]*Document `json:"documents"`
}

// NewDesign returns a design with an empty root document.
func NewDesign(root string) *Design {
	return &Design{Root: root, Documents: map[string]*Document{root: NewDocument()}}
}

// RootDocument returns the document of the root file.
func (d *Design) RootDocument() *Document {
	return d.Documents[d.Root]
}

// Files returns the document file names sorted, root first.
func (d *Design) Files() []string {
	files := []string{d.Root}
	rest := make([]string, 0, len(d.Documents))
	for f := range d.Documents {
		if f != d.Root {
			rest = append(rest, f)
		}
	}
	SortRefs(rest)
	return append(files, rest...)
}

// Marshal renders the design as indented JSON.
func (d *Design) Marshal() ([]byte, error) {
	for _, doc := range d.Documents {
		doc.Normalize()
	}
	return marshalIndent(d)
}

// Clone returns a deep copy.
func (d *Design) Clone() *Design {
	out := &Design{Root: d.Root, Documents: make(map[string]*Document, len(d.Documents))}
	for f, doc := range d.Documents {
		out.Documents[f] = doc.Clone()
	}
	return out
}

// ParseDesign decodes either a design or a bare document. A bare document
// becomes a single-file design rooted at defaultRoot.
func ParseDesign(data []byte, defaultRoot string) (*Design, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode design: %w", err)
	}

	if _, ok := probe["documents"]; !ok {
		doc, err := UnmarshalDocument(data)
		if err != nil {
			return nil, err
		}
		return &Design{Root: defaultRoot, Documents: map[string]*Document{defaultRoot: doc}}, nil
	}

	if err := checkDuplicateRefs(data, true); err != nil {
		return nil, err
	}
	var d Design
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode design: %w", err)
	}
	if d.Root == "" {
		d.Root = defaultRoot
	}
	if d.Documents[d.Root] == nil {
		return nil, fmt.Errorf("decode design: root %q has no document", d.Root)
	}
	for f, doc := range d.Documents {
		if doc == nil {
			return nil, fmt.Errorf("decode design: document %q is null", f)
		}
		doc.init()
	}
	return &d, nil
}

// checkDuplicateRefs reports a components object that names one reference
// twice. encoding/json would silently keep the last one.
func checkDuplicateRefs(data []byte, design bool) error {
	s := &refScanner{dec: json.NewDecoder(bytes.NewReader(data)), data: data}
	var err error
	if design {
		err = s.members(func(key string, _ int) error {
			if !strings.EqualFold(key, "documents") {
				return s.value()
			}
			return s.members(func(file string, _ int) error {
				return s.document(file)
			})
		})
	} else {
		err = s.document("")
	}
	var conflict *ReferenceConflictError
	if errors.As(err, &conflict) {
		return err
	}
	// syntax errors are reported by the decoder proper
	return nil
}

type refScanner struct {
	dec  *json.Decoder
	data []byte
}

// line returns the line the decoder has read up to.
func (s *refScanner) line() int {
	return 1 + bytes.Count(s.data[:s.dec.InputOffset()], []byte("\n"))
}

// document checks the components of the document object that comes next.
func (s *refScanner) document(file string) error {
	where := func(line int) string {
		if file == "" {
			return fmt.Sprintf("line %d", line)
		}
		return fmt.Sprintf("%s (line %d)", file, line)
	}
	return s.members(func(key string, _ int) error {
		if !strings.EqualFold(key, "components") {
			return s.value()
		}
		seen := map[string]int{}
		return s.members(func(ref string, line int) error {
			if first, dup := seen[ref]; dup {
				return &ReferenceConflictError{Ref: ref, First: where(first), Second: where(line)}
			}
			seen[ref] = line
			return s.value()
		})
	})
}

// members walks the object that comes next, calling fn after each key.
// fn must consume the member's value. Anything but an object is skipped.
func (s *refScanner) members(fn func(key string, line int) error) error {
	tok, err := s.dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return s.skip(tok)
	}
	for s.dec.More() {
		tok, err := s.dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		if err := fn(key, s.line()); err != nil {
			return err
		}
	}
	_, err = s.dec.Token()
	return err
}

// value skips the value that comes next.
func (s *refScanner) value() error {
	tok, err := s.dec.Token()
	if err != nil {
		return err
	}
	return s.skip(tok)
}

// skip consumes the rest of a value whose first token is tok.
func (s *refScanner) skip(tok json.Token) error {
	if d, ok := tok.(json.Delim); !ok || d == '}' || d == ']' {
		return nil
	}
	for depth := 1; depth > 0; {
		tok, err := s.dec.Token()
		if err != nil {
			return err
		}
		switch tok {
		case json.Delim('{'), json.Delim('['):
			depth++
		case json.Delim('}'), json.Delim(']'):
			depth--
		}
	}
	return nil
}

func marshalIndent(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
