// Package rnn drives truncated backpropagation through time over a window of
// timestep cells: forward passes per token, a reverse backward sweep and a
// scaled update at every window boundary, with the last hidden state carried
// into the next window.
package rnn

import (
	"math/rand"

	"github.com/sirupsen/logrus"

	"tinyrnn/pkg/linalg"
)

// Options configures a scheduler. Zero values fall back to the defaults of
// the character model.
type Options struct {
	// T is the truncation length: cells per window.
	T int
	// LearningRate is the initial step size; each update uses Rate()/T.
	LearningRate float64
	// Shrink divides the rate once validation loss stops improving.
	Shrink float64
	// MinRateFraction floors the rate at this fraction of LearningRate.
	MinRateFraction float64
	Backend         linalg.Backend

	Logger *logrus.Logger
	// Verbose enables progress records every ReportEvery tokens.
	Verbose     bool
	ReportEvery int
	// Rand drives sampling in Generate.
	Rand *rand.Rand
}

func (o Options) withDefaults() Options {
	if o.T <= 0 {
		o.T = 30
	}
	if o.LearningRate == 0 {
		o.LearningRate = 0.1
	}
	if o.Shrink == 0 {
		o.Shrink = 2
	}
	if o.MinRateFraction == 0 {
		o.MinRateFraction = 1e-4
	}
	if o.ReportEvery <= 0 {
		o.ReportEvery = 100000
	}
	if o.Logger == nil {
		o.Logger = logrus.New()
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(1))
	}
	return o
}

// CharSource is a wrapping stream of character tokens with their history
// context keys.
type CharSource interface {
	// Reset rewinds the stream.
	Reset()
	// Len is the number of tokens in one pass.
	Len() int
	// Next returns the current token, the token after it and the context
	// key of the current position, then advances.
	Next() (now, next int, key string)
	NumSymbols() int
	Symbol(id int) rune
	// Order is the maximum history length.
	Order() int
	// Context maps a raw history to the key used for it.
	Context(history []rune) string
}

// WordSource is a wrapping stream of words for the hierarchical model.
type WordSource interface {
	Reset()
	Len() int
	// Next returns the restricted input id of the current word, the
	// restricted output id of the next word and the character ids
	// spelling the next word, then advances.
	Next() (now, next int, spelling []int)
	// Sentinel is the character id framing every word.
	Sentinel() int
	Char(id int) rune
	// RandomWord picks a vocabulary word, returning its input id.
	RandomWord(rng *rand.Rand) (id int, word string)
	// WordID returns the input id of word, 0 when it is not in the input
	// vocabulary.
	WordID(word string) int
}
