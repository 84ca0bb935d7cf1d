package data

import (
	"io"
	"math"
	"math/rand"
	"sort"
	"strings"
)

// Unknown is the word id reserved for out-of-vocabulary words.
const Unknown = 0

// WordCorpus is a word stream with restricted input and output
// vocabularies and the character spelling of every word.
type WordCorpus struct {
	words     []string
	ids       map[string]int
	counts    []int
	spellings [][]int
	// input and output map a full word id to its restricted ids.
	input, output []int
	inputSize     int
	outputSize    int
	chars         *Vocab

	tokens []int
	oov    map[int]struct{}
	// droppedChars counts characters skipped because the training
	// vocabulary never saw them.
	droppedChars int

	pos int
}

func newWordCorpus() *WordCorpus {
	c := &WordCorpus{
		ids:   make(map[string]int),
		chars: NewVocab(),
		oov:   make(map[int]struct{}),
	}
	c.chars.Add(Separator)
	c.words = append(c.words, "<unk>")
	c.ids["<unk>"] = Unknown
	c.counts = append(c.counts, 0)
	c.spellings = append(c.spellings, nil)
	c.input = append(c.input, Unknown)
	c.output = append(c.output, Unknown)
	return c
}

// ReadWordCorpus loads a training corpus from path; see ReadWords.
func ReadWordCorpus(path string, minCount, outputWords int) (*WordCorpus, error) {
	var c *WordCorpus
	err := withFile(path, func(r io.Reader) error {
		var err error
		c, err = ReadWords(r, minCount, outputWords)
		return err
	})
	return c, err
}

// ReadWords reads training text. Words seen at most minCount times share
// the unknown input id; the outputWords most frequent words (and any tied
// with the last of them) get their own output id.
func ReadWords(r io.Reader, minCount, outputWords int) (*WordCorpus, error) {
	c := newWordCorpus()
	var cur []rune
	err := eachRune(r, func(ch rune) {
		if ch == Separator {
			c.addWord(cur, false)
			cur = cur[:0]
			return
		}
		c.chars.Add(ch)
		cur = append(cur, ch)
	})
	if err != nil {
		return nil, err
	}
	if len(c.tokens) == 0 {
		return nil, ErrEmptyCorpus
	}
	c.restrict(minCount, outputWords)
	return c, nil
}

func (c *WordCorpus) addWord(runes []rune, held bool) {
	w := string(runes)
	if id, ok := c.ids[w]; ok {
		c.counts[id]++
		c.tokens = append(c.tokens, id)
		return
	}
	id := len(c.words)
	c.words = append(c.words, w)
	c.ids[w] = id
	c.counts = append(c.counts, 1)
	spelling := make([]int, len(runes))
	for i, r := range runes {
		spelling[i], _ = c.chars.ID(r)
	}
	c.spellings = append(c.spellings, spelling)
	c.input = append(c.input, Unknown)
	c.output = append(c.output, Unknown)
	c.tokens = append(c.tokens, id)
	if held {
		c.oov[id] = struct{}{}
	}
}

// restrict assigns restricted ids in order of decreasing count, ties broken
// by first appearance.
func (c *WordCorpus) restrict(minCount, outputWords int) {
	order := make([]int, 0, len(c.words)-1)
	for id := 1; id < len(c.words); id++ {
		order = append(order, id)
	}
	sort.SliceStable(order, func(i, j int) bool {
		return c.counts[order[i]] > c.counts[order[j]]
	})

	threshold := 0
	switch {
	case outputWords <= 0:
		threshold = math.MaxInt
	case outputWords < len(order):
		threshold = c.counts[order[outputWords-1]]
	}
	k1, k2 := 0, 0
	for _, id := range order {
		n := c.counts[id]
		switch {
		case n <= minCount:
		case n < threshold:
			k1++
			c.input[id] = k1
		default:
			k1++
			k2++
			c.input[id] = k1
			c.output[id] = k2
		}
	}
	c.inputSize, c.outputSize = k1+1, k2+1
}

// Derive reads held-out text against c's vocabularies. Unseen words map to
// the unknown ids and count as out of vocabulary; unseen characters are
// dropped from spellings.
func (c *WordCorpus) Derive(r io.Reader) (*WordCorpus, error) {
	d := &WordCorpus{
		words:      append([]string(nil), c.words...),
		ids:        make(map[string]int, len(c.ids)),
		counts:     append([]int(nil), c.counts...),
		spellings:  append([][]int(nil), c.spellings...),
		input:      append([]int(nil), c.input...),
		output:     append([]int(nil), c.output...),
		inputSize:  c.inputSize,
		outputSize: c.outputSize,
		chars:      c.chars,
		oov:        make(map[int]struct{}),
	}
	for w, id := range c.ids {
		d.ids[w] = id
	}
	var cur []rune
	err := eachRune(r, func(ch rune) {
		if ch == Separator {
			d.addWord(cur, true)
			cur = cur[:0]
			return
		}
		if _, ok := c.chars.ID(ch); !ok {
			d.droppedChars++
			return
		}
		cur = append(cur, ch)
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
func (c *WordCorpus) DeriveFile(path string) (*WordCorpus, error) {
	var d *WordCorpus
	err := withFile(path, func(r io.Reader) error {
		var err error
		d, err = c.Derive(r)
		return err
	})
	return d, err
}

func (c *WordCorpus) Reset()             { c.pos = 0 }
func (c *WordCorpus) Len() int           { return len(c.tokens) }
func (c *WordCorpus) Sentinel() int      { return 0 }
func (c *WordCorpus) Char(id int) rune   { return c.chars.Rune(id) }
func (c *WordCorpus) NumChars() int      { return c.chars.Size() }
func (c *WordCorpus) InputSize() int     { return c.inputSize }
func (c *WordCorpus) OutputSize() int    { return c.outputSize }
func (c *WordCorpus) Vocabulary() int    { return len(c.words) }
func (c *WordCorpus) DroppedChars() int  { return c.droppedChars }
func (c *WordCorpus) Word(id int) string { return c.words[id] }

// Next returns the restricted input id of the current word, the restricted
// output id of the next word (wrapping at the end) and the next word's
// spelling.
func (c *WordCorpus) Next() (now, next int, spelling []int) {
	cur := c.tokens[c.pos]
	c.pos++
	if c.pos == len(c.tokens) {
		c.pos = 0
	}
	nxt := c.tokens[c.pos]
	return c.input[cur], c.output[nxt], c.spellings[nxt]
}

// RandomWord draws a word uniformly from the full vocabulary.
func (c *WordCorpus) RandomWord(rng *rand.Rand) (int, string) {
	id := rng.Intn(len(c.words))
	return c.input[id], c.words[id]
}

// WordID returns the restricted input id of word.
func (c *WordCorpus) WordID(word string) int {
	id, ok := c.ids[word]
	if !ok {
		return Unknown
	}
	return c.input[id]
}

// OOVRate is the fraction of tokens that were not seen in training.
func (c *WordCorpus) OOVRate() float64 {
	n := 0
	for _, id := range c.tokens {
		if _, ok := c.oov[id]; ok {
			n++
		}
	}
	return float64(n) / float64(len(c.tokens))
}

// Spell renders character ids as text.
func (c *WordCorpus) Spell(ids []int) string {
	return strings.TrimRight(c.chars.Decode(ids), string(Separator))
}
