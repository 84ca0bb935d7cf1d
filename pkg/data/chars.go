package data

import "io"

// CharCorpus is a character stream whose context keys are the longest
// frequent suffix of the last Order characters.
type CharCorpus struct {
	order   int
	minFreq int

	vocab  *Vocab
	valid  map[string]struct{}
	tokens []int
	words  int
	// dropped counts characters skipped because the training vocabulary
	// never saw them.
	dropped int

	pos     int
	history []rune
}

// NewCharCorpus returns an empty corpus using histories of up to order
// characters; an n-gram longer than one character is kept as a context only
// when it occurs more than minFreq times in the training text.
func NewCharCorpus(order, minFreq int) *CharCorpus {
	return &CharCorpus{
		order:   order,
		minFreq: minFreq,
		vocab:   NewVocab(),
		valid:   make(map[string]struct{}),
		words:   1,
	}
}

// ReadCharCorpus loads a training corpus from path.
func ReadCharCorpus(path string, order, minFreq int) (*CharCorpus, error) {
	c := NewCharCorpus(order, minFreq)
	err := withFile(path, c.Read)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Read consumes training text, building the vocabulary and the set of valid
// contexts.
func (c *CharCorpus) Read(r io.Reader) error {
	counts := make(map[string]int)
	window := make([]rune, 0, c.order+1)
	err := eachRune(r, func(ch rune) {
		if ch == Separator {
			c.words++
		}
		c.tokens = append(c.tokens, c.vocab.Add(ch))

		window = append(window, ch)
		if len(window) > c.order {
			window = window[1:]
		}
		if len(window) == c.order {
			for j := 0; j < c.order; j++ {
				counts[string(window[j:])]++
			}
		}
	})
	if err != nil {
		return err
	}
	if len(c.tokens) == 0 {
		return ErrEmptyCorpus
	}
	for k, n := range counts {
		if len([]rune(k)) == 1 || n > c.minFreq {
			c.valid[k] = struct{}{}
		}
	}
	return nil
}

// Derive reads held-out text against c's vocabulary and contexts.
// Characters unknown to c are skipped and counted in Dropped.
func (c *CharCorpus) Derive(r io.Reader) (*CharCorpus, error) {
	d := &CharCorpus{
		order:   c.order,
		minFreq: c.minFreq,
		vocab:   c.vocab,
		valid:   c.valid,
		words:   1,
	}
	err := eachRune(r, func(ch rune) {
		id, ok := c.vocab.ID(ch)
		if !ok {
			d.dropped++
			return
		}
		if ch == Separator {
			d.words++
		}
		d.tokens = append(d.tokens, id)
	})
	if err != nil {
		return nil, err
	}
	if len(d.tokens) == 0 {
		return nil, ErrEmptyCorpus
	}
	return d, nil
}

// DeriveFile is Derive on the contents of path.
func (c *CharCorpus) DeriveFile(path string) (*CharCorpus, error) {
	var d *CharCorpus
	err := withFile(path, func(r io.Reader) error {
		var err error
		d, err = c.Derive(r)
		return err
	})
	return d, err
}

func (c *CharCorpus) Reset() {
	c.pos = 0
	c.history = c.history[:0]
}

func (c *CharCorpus) Len() int           { return len(c.tokens) }
func (c *CharCorpus) NumSymbols() int    { return c.vocab.Size() }
func (c *CharCorpus) Symbol(id int) rune { return c.vocab.Rune(id) }
func (c *CharCorpus) Order() int         { return c.order }
func (c *CharCorpus) Words() int         { return c.words }
func (c *CharCorpus) Dropped() int       { return c.dropped }

// NumContexts is the number of valid context keys.
func (c *CharCorpus) NumContexts() int { return len(c.valid) }

// Next returns the current token, its successor (wrapping at the end) and
// the context key ending at the current token.
func (c *CharCorpus) Next() (now, next int, key string) {
	now = c.tokens[c.pos]
	c.history = append(c.history, c.vocab.Rune(now))
	if len(c.history) > c.order {
		c.history = c.history[1:]
	}
	c.pos++
	if c.pos == len(c.tokens) {
		c.pos = 0
	}
	return now, c.tokens[c.pos], c.Context(c.history)
}

// Context backs history off to its longest valid suffix, possibly empty.
func (c *CharCorpus) Context(history []rune) string {
	for i := 0; i < len(history); i++ {
		k := string(history[i:])
		if _, ok := c.valid[k]; ok {
			return k
		}
	}
	return ""
}
