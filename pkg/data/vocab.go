// Package data reads training corpora into the token streams consumed by the
// schedulers. Words are separated by '_' in every corpus.
package data

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Separator delimits words in a corpus.
const Separator = '_'

// Vocab maps characters to dense ids in first-seen order.
type Vocab struct {
	toID   map[rune]int
	toRune []rune
}

func NewVocab() *Vocab {
	return &Vocab{toID: make(map[rune]int)}
}

// Add returns the id of r, assigning the next free id if r is new.
func (v *Vocab) Add(r rune) int {
	if id, ok := v.toID[r]; ok {
		return id
	}
	id := len(v.toRune)
	v.toID[r] = id
	v.toRune = append(v.toRune, r)
	return id
}

// ID returns the id of r and whether r is known.
func (v *Vocab) ID(r rune) (int, bool) {
	id, ok := v.toID[r]
	return id, ok
}

func (v *Vocab) Rune(id int) rune { return v.toRune[id] }

func (v *Vocab) Size() int { return len(v.toRune) }

// Decode converts ids back to text.
func (v *Vocab) Decode(ids []int) string {
	var b strings.Builder
	for _, id := range ids {
		b.WriteRune(v.toRune[id])
	}
	return b.String()
}

// ErrEmptyCorpus is returned when a corpus holds no tokens.
var ErrEmptyCorpus = errors.New("empty corpus")

// eachRune calls fn for every rune read from r.
func eachRune(r io.Reader, fn func(rune)) error {
	br := bufio.NewReader(r)
	for {
		c, _, err := br.ReadRune()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading corpus: %w", err)
		}
		fn(c)
	}
}

func withFile(path string, fn func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	if err := fn(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
