// Package document is the text mutation boundary: the Document interface edits are applied through, an in-memory Buffer implementation with transactional
// writes, a Dispatcher that serializes mutations onto one goroutine, and best-effort Reformatters.
package document

import (
	"errors"
	"fmt"
	"sync"
)

// ErrRange is returned when an edit's range is outside the document or inverted.
var ErrRange = errors.New("document: range out of bounds")

// Document is editable text addressed by byte offsets.
type Document interface {
	Text() string

	// ReplaceRange replaces text[start:end] with text.
	ReplaceRange(start, end int, text string) error
}

// Transactional is implemented by documents that can apply a group of edits atomically. fn edits tx; if fn returns an error, none of its edits are applied.
type Transactional interface {
	WriteTx(fn func(tx Document) error) error
}

// Buffer is an in-memory Document, optionally backed by a file. It is safe for concurrent use.
type Buffer struct {
	mu      sync.RWMutex
	text    string
	path    string
	version int
	saved   int // version at last load/save
}

var (
	_ Document      = (*Buffer)(nil)
	_ Transactional = (*Buffer)(nil)
)

// NewBuffer returns a Buffer holding text, not backed by a file.
func NewBuffer(text string) *Buffer {
	return &Buffer{text: text}
}

func (b *Buffer) Text() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.text
}

// Version increases by one with every committed edit or transaction that changed the text.
func (b *Buffer) Version() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.version
}

// Path is the backing file, or "".
func (b *Buffer) Path() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.path
}

// Modified reports whether the text changed since it was loaded or last saved.
func (b *Buffer) Modified() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.version != b.saved
}

func (b *Buffer) ReplaceRange(start, end int, text string) error {
	return b.WriteTx(func(tx Document) error {
		return tx.ReplaceRange(start, end, text)
	})
}

// WriteTx runs fn with exclusive access to a copy of the text and commits the copy if fn succeeds.
func (b *Buffer) WriteTx(fn func(tx Document) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	tx := &txDoc{text: b.text}
	if err := fn(tx); err != nil {
		return err
	}
	if tx.text != b.text {
		b.text = tx.text
		b.version++
	}
	return nil
}

// txDoc is the Document handed to WriteTx callbacks.
type txDoc struct {
	text string
}

func (t *txDoc) Text() string {
	return t.text
}

func (t *txDoc) ReplaceRange(start, end int, text string) error {
	s, err := replaceRange(t.text, start, end, text)
	if err != nil {
		return err
	}
	t.text = s
	return nil
}

func replaceRange(s string, start, end int, text string) (string, error) {
	if start < 0 || end < start || end > len(s) {
		return "", fmt.Errorf("%w: [%d, %d) in %d bytes", ErrRange, start, end, len(s))
	}
	return s[:start] + text + s[end:], nil
}
