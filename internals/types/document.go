package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"unicode/utf8"
)

const TextKey = "text"

type DocumentKind int

const (
	ParsedDocument DocumentKind = iota
	EmptyDocument
	MalformedDocument
)

func (kind DocumentKind) String() string {
	switch kind {
	case ParsedDocument:
		return "parsed"
	case EmptyDocument:
		return "empty"
	case MalformedDocument:
		return "malformed"
	}
	return "unknown"
}

// Document is the mapping read from stdin. Values is never nil.
type Document struct {
	Kind   DocumentKind
	Values map[string]any
	Err    error
}

// ParseDocument consumes r entirely. Anything that is not a JSON object
// degrades to an empty mapping; only a failing reader returns an error.
func ParseDocument(r io.Reader) (*Document, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return &Document{Kind: MalformedDocument, Values: map[string]any{}, Err: err}, err
	}
	return ParseDocumentBytes(content), nil
}

func ParseDocumentBytes(content []byte) *Document {
	if len(bytes.TrimSpace(content)) == 0 {
		return &Document{Kind: EmptyDocument, Values: map[string]any{}}
	}

	if !utf8.Valid(content) {
		return &Document{Kind: MalformedDocument, Values: map[string]any{}, Err: errors.New("input is not valid UTF-8")}
	}

	var values map[string]any
	decoder := json.NewDecoder(bytes.NewReader(content))
	decoder.UseNumber()
	err := decoder.Decode(&values)
	if err == nil && decoder.Decode(&struct{}{}) != io.EOF {
		err = errors.New("unexpected data after JSON object")
	}
	if err == nil && values == nil {
		err = errors.New("input is not a JSON object")
	}
	if err != nil {
		return &Document{Kind: MalformedDocument, Values: map[string]any{}, Err: err}
	}
	return &Document{Kind: ParsedDocument, Values: values}
}

// Text returns the "text" value, or fallback when the key is absent.
// Non-string values are rendered as compact JSON.
func (document *Document) Text(fallback string) string {
	value, exists := document.Values[TextKey]
	if !exists {
		return fallback
	}
	if text, ok := value.(string); ok {
		return text
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fallback
	}
	return string(encoded)
}
