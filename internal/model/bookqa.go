// Package model provides data models for the BookQA service.
package model

// Mode selects how question context is assembled.
// The two modes are mutually exclusive per request.
type Mode string

const (
	// ModeWholeCorpus retrieves context by vector similarity search
	// across all ingested units.
	ModeWholeCorpus Mode = "whole-corpus"
	// ModeSelectedText uses the user-supplied text as the only context;
	// no retrieval is performed.
	ModeSelectedText Mode = "selected-text"
)

// Valid reports whether m is one of the two supported modes.
func (m Mode) Valid() bool {
	return m == ModeWholeCorpus || m == ModeSelectedText
}

// Document is the ingestion input: plain text plus its source locator.
type Document struct {
	// SourceLocator identifies the chapter/section the text came from.
	SourceLocator string `json:"source_locator"`
	// Content is the raw document text.
	Content string `json:"content"`
}

// TextUnit is the atomic unit of retrieval: a bounded, stably-identified
// segment of source text.
type TextUnit struct {
	// ID is derived from (SourceLocator, SequenceIndex, content hash);
	// re-chunking unchanged source text reproduces the same IDs.
	ID string `json:"id"`
	// Content is the unit text, at most the configured token budget.
	Content string `json:"content"`
	// SourceLocator identifies the unit's chapter/section.
	SourceLocator string `json:"source_locator"`
	// SequenceIndex is the unit's order within its source, starting at 0.
	SequenceIndex int `json:"sequence_index"`
	// TokenCount is the number of whitespace-delimited tokens in Content.
	TokenCount int `json:"token_count"`
	// Truncated marks units that were hard-cut at the token budget because
	// no usable split boundary existed.
	Truncated bool `json:"truncated,omitempty"`
}

// UnitSource is the citation attached to an answer for one context unit.
type UnitSource struct {
	UnitID        string  `json:"unit_id"`
	SourceLocator string  `json:"source_locator"`
	Content       string  `json:"content"`
	Score         float32 `json:"score,omitempty"`
}

// QueryResult is the outcome of one question.
type QueryResult struct {
	Answer   string       `json:"answer"`
	Sources  []UnitSource `json:"sources"`
	ModeUsed Mode         `json:"mode_used"`
	Refused  bool         `json:"refused"`
}
