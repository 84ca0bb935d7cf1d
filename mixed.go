package main

import (
	"flag"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"tinyrnn/pkg/config"
	"tinyrnn/pkg/data"
	"tinyrnn/pkg/linalg"
	"tinyrnn/pkg/model"
	"tinyrnn/pkg/rnn"
	"tinyrnn/pkg/runlog"
)

func parseMixed(args []string) (*config.MixedConfig, *runFlags, error) {
	cfg := config.DefaultMixed()
	newFlags := func(rf *runFlags) *flag.FlagSet {
		fs := flag.NewFlagSet("mixed", flag.ExitOnError)
		bindTraining(fs, &cfg.Training)
		fs.IntVar(&cfg.WordHidden, "nhidw", cfg.WordHidden, "Word hidden layer size")
		fs.IntVar(&cfg.CharHidden, "nhidc", cfg.CharHidden, "Character hidden layer size")
		fs.IntVar(&cfg.V1, "V1", cfg.V1, "Words seen at most this often share the unknown input id")
		fs.IntVar(&cfg.V2, "V2", cfg.V2, "Number of most frequent words with their own output id")
		fs.Float64Var(&cfg.Alpha, "alpha", cfg.Alpha, "Weight of the word-level loss")
		rf.bind(fs)
		return fs
	}
	load := func(path string) error {
		c, err := config.LoadMixed(path)
		if err != nil {
			return err
		}
		cfg = c
		return nil
	}
	rf, err := parseArgs(args, newFlags, load)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, rf, nil
}

func entropies(s rnn.WordStats) runlog.WordEntropies {
	return runlog.WordEntropies{
		WordModel: s.WordModelEntropy(),
		Word:      s.WordEntropy(),
		Char:      s.CharEntropy(),
	}
}

func runMixed(args []string) error {
	cfg, rf, err := parseMixed(args)
	if err != nil {
		return err
	}
	log := newLogger(rf.verbose)
	be, err := linalg.ParseBackend(cfg.Backend)
	if err != nil {
		return err
	}
	banner("tinyrnn mixed", be)

	fmt.Printf("\n📚 Loading corpora...\n")
	train, err := data.ReadWordCorpus(cfg.Train, cfg.V1, cfg.V2)
	if err != nil {
		return err
	}
	valid, err := train.DeriveFile(cfg.Valid)
	if err != nil {
		return err
	}
	test, err := train.DeriveFile(cfg.Test)
	if err != nil {
		return err
	}
	warnDropped(log, "valid", valid.DroppedChars())
	warnDropped(log, "test", test.DroppedChars())
	fmt.Printf("   Characters: %d\n", train.NumChars())
	fmt.Printf("   Vocabulary: V0=%d V1=%d V2=%d\n", train.Vocabulary(), train.InputSize(), train.OutputSize())
	fmt.Printf("   OOV rate: valid %.2f%%, test %.2f%%\n", valid.OOVRate()*100, test.OOVRate()*100)

	corpusHash, err := runlog.HashFile(cfg.Train)
	if err != nil {
		return err
	}
	runID := runlog.NewRunID()
	fmt.Printf("   Run: %s\n", runID)

	size := model.HierarchicalSize{
		WordHidden:  cfg.WordHidden,
		CharHidden:  cfg.CharHidden,
		InputWords:  train.InputSize(),
		OutputWords: train.OutputSize(),
		Chars:       train.NumChars(),
	}
	m := model.NewHierarchical(size, cfg.Alpha, rand.New(rand.NewSource(cfg.Seed)))
	if err := m.Initialize(cfg.Init); err != nil {
		return err
	}
	if !m.WordOutputEnabled() {
		log.WithField("alpha", cfg.Alpha).Info("word output layer disabled")
	}
	net := rnn.NewWordNet(m, train.Sentinel(), rnn.Options{
		T:               cfg.BPTT,
		LearningRate:    cfg.LR,
		Shrink:          cfg.ShrinkVal,
		MinRateFraction: cfg.MinLRFraction,
		Backend:         be,
		Logger:          log,
		Verbose:         rf.verbose,
		Rand:            rand.New(rand.NewSource(cfg.Seed + 1)),
	})

	if rf.gradcheck > 0 {
		net.GradientCheck(train, rf.gradcheck)
	}
	if rf.linesearch > 0 {
		net.LineSearch(train, rf.linesearch, rf.lineGamma)
	}

	store, err := openStore(rf.runlog)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	fmt.Printf("\n🏋️  Training for %d epochs...\n", cfg.Epochs)
	var trainTime time.Duration
	for e := 0; e < cfg.Epochs; e++ {
		ts := net.Train(train)
		trainTime += ts.Elapsed
		vs := net.Eval(valid)
		tst := net.Eval(test)

		rec := runlog.MixedEpoch{
			Hash:        runID,
			CorpusHash:  corpusHash,
			Alpha:       cfg.Alpha,
			V1:          cfg.V1,
			V2:          cfg.V2,
			NValidChars: vs.Chars,
			NValidWords: vs.Words,
			NTestChars:  tst.Chars,
			NTestWords:  tst.Words,
			CharHidden:  cfg.CharHidden,
			WordHidden:  cfg.WordHidden,
			BPTT:        cfg.BPTT,
			Seed:        cfg.Seed,
			LR:          cfg.LR,
			ShrinkVal:   cfg.ShrinkVal,
			Init:        cfg.Init,
			Epoch:       e,
			TrainTime:   trainTime.Seconds(),
			Backend:     be.String(),
		}
		rec.SetEntropies(entropies(ts), entropies(vs), entropies(tst))
		if err := report(log, store, runID, "mixed", e, rec); err != nil {
			return err
		}
		if net.Schedule.Observe(vs.Loss(cfg.Alpha)) {
			fmt.Printf("decreasing the learning rate to %f.\n", net.Schedule.Rate())
		}
	}

	if rf.generate > 0 {
		printWords(log, net.Generate(train, rf.generate))
	}
	return nil
}

// printWords prints sampled words, marking those outside the input
// vocabulary with a trailing '*'.
func printWords(log *logrus.Logger, words []rnn.GeneratedWord) {
	parts := make([]string, len(words))
	novel := 0
	for i, w := range words {
		parts[i] = w.Text
		if !w.Known {
			parts[i] += "*"
			novel++
		}
	}
	fmt.Printf("\n🎲 Sample:\n%s\n", strings.Join(parts, " "))
	log.WithFields(logrus.Fields{
		"words": len(words),
		"novel": novel,
	}).Debug("generated words")
}
