// Package runlog records per-epoch statistics: a json_stats line on stdout,
// structured log fields and an optional SQLite table.
package runlog

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// CharEpoch is the record of one epoch of the character model.
type CharEpoch struct {
	Hidden     int     `json:"nhid"`
	Hash       string  `json:"hash"`
	CorpusHash string  `json:"corpus_hash,omitempty"`
	BPTT       int     `json:"bptt"`
	NGram      int     `json:"ngram"`
	MinFreq    int     `json:"minFreq"`
	LR         float64 `json:"lr"`
	ShrinkVal  float64 `json:"shrinkVal"`
	Epoch      int     `json:"epoch"`
	TrainTime  float64 `json:"train_time"`
	Backend    string  `json:"backend"`

	TrainEntropy float64 `json:"train_char_entropy"`
	ValidEntropy float64 `json:"valid_char_entropy"`
	TestEntropy  float64 `json:"test_char_entropy"`
	TrainLogProb float64 `json:"train_logprob"`
	ValidLogProb float64 `json:"valid_logprob"`
	TestLogProb  float64 `json:"test_logprob"`
}

// WordEntropies are the three entropies reported per corpus by the
// hierarchical model.
type WordEntropies struct {
	WordModel float64
	Word      float64
	Char      float64
}

// MixedEpoch is the record of one epoch of the hierarchical model.
type MixedEpoch struct {
	Hash        string  `json:"hash"`
	CorpusHash  string  `json:"corpus_hash,omitempty"`
	Alpha       float64 `json:"alpha"`
	V1          int     `json:"V1"`
	V2          int     `json:"V2"`
	NValidChars int     `json:"nValidChars"`
	NValidWords int     `json:"nValidWords"`
	NTestChars  int     `json:"nTestChars"`
	NTestWords  int     `json:"nTestWords"`
	CharHidden  int     `json:"nhidc"`
	WordHidden  int     `json:"nhidw"`
	BPTT        int     `json:"bptt"`
	Seed        int64   `json:"seed"`
	LR          float64 `json:"lr"`
	ShrinkVal   float64 `json:"shrinkVal"`
	Init        string  `json:"init"`
	Epoch       int     `json:"epoch"`
	TrainTime   float64 `json:"train_time"`
	Backend     string  `json:"backend"`

	TrainWordModelEntropy float64 `json:"train_word_model_entropy"`
	TrainWordEntropy      float64 `json:"train_word_entropy"`
	TrainCharEntropy      float64 `json:"train_char_entropy"`
	ValidWordModelEntropy float64 `json:"valid_word_model_entropy"`
	ValidWordEntropy      float64 `json:"valid_word_entropy"`
	ValidCharEntropy      float64 `json:"valid_char_entropy"`
	TestWordModelEntropy  float64 `json:"test_word_model_entropy"`
	TestWordEntropy       float64 `json:"test_word_entropy"`
	TestCharEntropy       float64 `json:"test_char_entropy"`
}

// SetEntropies fills the per-corpus entropy fields.
func (m *MixedEpoch) SetEntropies(train, valid, test WordEntropies) {
	m.TrainWordModelEntropy, m.TrainWordEntropy, m.TrainCharEntropy = train.WordModel, train.Word, train.Char
	m.ValidWordModelEntropy, m.ValidWordEntropy, m.ValidCharEntropy = valid.WordModel, valid.Word, valid.Char
	m.TestWordModelEntropy, m.TestWordEntropy, m.TestCharEntropy = test.WordModel, test.Word, test.Char
}

// LogProb converts an average entropy in bits over n tokens into the total
// log10 probability of the corpus.
func LogProb(entropy float64, n int) float64 {
	return entropy * float64(n) * ln2 / ln10
}

const (
	ln2  = 0.693147180559945309417232121458176568
	ln10 = 2.30258509299404568401799145468436421
)

// NewRunID returns a fresh identifier for a training run.
func NewRunID() string { return uuid.New().String() }

// HashFile returns the first 16 hex digits of the SHA-256 of a file.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hashing corpus: %w", err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return fmt.Sprintf("%x", h.Sum(nil))[:16], nil
}

// Print writes record as a single json_stats line.
func Print(w io.Writer, record any) error {
	b, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding stats: %w", err)
	}
	_, err = fmt.Fprintf(w, "json_stats: %s\n", b)
	return err
}

// Fields flattens record into logrus fields keyed by its JSON names.
func Fields(record any) logrus.Fields {
	b, err := json.Marshal(record)
	if err != nil {
		return logrus.Fields{"error": err.Error()}
	}
	f := logrus.Fields{}
	if err := json.Unmarshal(b, &f); err != nil {
		return logrus.Fields{"error": err.Error()}
	}
	return f
}
