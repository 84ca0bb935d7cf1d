package main

import (
	"bufio"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"tinyrnn/pkg/autodiff"
	"tinyrnn/pkg/config"
	"tinyrnn/pkg/data"
	"tinyrnn/pkg/linalg"
	"tinyrnn/pkg/model"
	"tinyrnn/pkg/rnn"
	"tinyrnn/pkg/runlog"
)

type charFlags struct {
	autodiff bool
	probs    string
}

func parseChar(args []string) (*config.CharConfig, *runFlags, *charFlags, error) {
	cfg := config.DefaultChar()
	cf := &charFlags{}
	newFlags := func(rf *runFlags) *flag.FlagSet {
		fs := flag.NewFlagSet("char", flag.ExitOnError)
		bindTraining(fs, &cfg.Training)
		fs.IntVar(&cfg.Hidden, "nhid", cfg.Hidden, "Hidden layer size")
		fs.IntVar(&cfg.NGram, "ngram", cfg.NGram, "Longest history used as a context")
		fs.IntVar(&cfg.MinFreq, "minFreq", cfg.MinFreq, "Minimum count of a multi-character context")
		fs.BoolVar(&cf.autodiff, "autodiff", false, "Compare the first step's gradient with a gorgonia reference")
		fs.StringVar(&cf.probs, "probs", "", "Write the test set's per-character probabilities to this file")
		rf.bind(fs)
		return fs
	}
	load := func(path string) error {
		c, err := config.LoadChar(path)
		if err != nil {
			return err
		}
		cfg = c
		return nil
	}
	rf, err := parseArgs(args, newFlags, load)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, rf, cf, nil
}

func runChar(args []string) error {
	cfg, rf, cf, err := parseChar(args)
	if err != nil {
		return err
	}
	log := newLogger(rf.verbose)
	be, err := linalg.ParseBackend(cfg.Backend)
	if err != nil {
		return err
	}
	banner("tinyrnn char", be)

	fmt.Printf("\n📚 Loading corpora...\n")
	train, err := data.ReadCharCorpus(cfg.Train, cfg.NGram, cfg.MinFreq)
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
	warnDropped(log, "valid", valid.Dropped())
	warnDropped(log, "test", test.Dropped())
	fmt.Printf("   Symbols: %d\n", train.NumSymbols())
	fmt.Printf("   Contexts: %d\n", train.NumContexts())
	fmt.Printf("   Words: %d\n", train.Words())
	fmt.Printf("   Tokens: train %d, valid %d, test %d\n", train.Len(), valid.Len(), test.Len())

	corpusHash, err := runlog.HashFile(cfg.Train)
	if err != nil {
		return err
	}
	runID := runlog.NewRunID()
	fmt.Printf("   Run: %s\n", runID)

	m := model.NewConditional(cfg.Hidden, train.NumSymbols(), rand.New(rand.NewSource(cfg.Seed)))
	if err := m.Initialize(cfg.Init); err != nil {
		return err
	}
	net := rnn.NewCharNet(m, rnn.Options{
		T:               cfg.BPTT,
		LearningRate:    cfg.LR,
		Shrink:          cfg.ShrinkVal,
		MinRateFraction: cfg.MinLRFraction,
		Backend:         be,
		Logger:          log,
		Verbose:         rf.verbose,
		Rand:            rand.New(rand.NewSource(cfg.Seed + 1)),
	})

	if cf.autodiff {
		if err := checkCharGradient(log, m, be, train); err != nil {
			return err
		}
	}
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
		trainEntropy, elapsed := net.Train(train)
		trainTime += elapsed
		validEntropy := net.Eval(valid)
		testEntropy := net.Eval(test)

		rec := runlog.CharEpoch{
			Hidden:       cfg.Hidden,
			Hash:         runID,
			CorpusHash:   corpusHash,
			BPTT:         cfg.BPTT,
			NGram:        cfg.NGram,
			MinFreq:      cfg.MinFreq,
			LR:           cfg.LR,
			ShrinkVal:    cfg.ShrinkVal,
			Epoch:        e,
			TrainTime:    trainTime.Seconds(),
			Backend:      be.String(),
			TrainEntropy: trainEntropy,
			ValidEntropy: validEntropy,
			TestEntropy:  testEntropy,
			TrainLogProb: runlog.LogProb(trainEntropy, train.Len()),
			ValidLogProb: runlog.LogProb(validEntropy, valid.Len()),
			TestLogProb:  runlog.LogProb(testEntropy, test.Len()),
		}
		if err := report(log, store, runID, "char", e, rec); err != nil {
			return err
		}
		if net.Schedule.Observe(validEntropy) {
			fmt.Printf("decreasing the learning rate to %f.\n", net.Schedule.Rate())
		}
	}

	if rf.generate > 0 {
		fmt.Printf("\n🎲 Sample:\n%s\n", net.Generate(train, rf.generate))
	}
	if cf.probs != "" {
		if err := writeProbabilities(cf.probs, net, test); err != nil {
			return err
		}
		fmt.Printf("📊 Probabilities saved to: %s\n", cf.probs)
	}
	return nil
}

// checkCharGradient compares the first training step against the gorgonia
// reference graph.
func checkCharGradient(log *logrus.Logger, m *model.Conditional, be linalg.Backend, src *data.CharCorpus) error {
	src.Reset()
	now, next, key := src.Next()
	src.Reset()
	r, err := autodiff.CheckChar(m, be, now, next, key, linalg.NewVector(m.Hidden))
	if err != nil {
		return err
	}
	entry := log.WithFields(logrus.Fields{
		"entropy": r.Entropy,
		"U":       r.U,
		"R":       r.R,
		"A":       r.A,
		"hPrev":   r.HPrev,
	})
	if r.Max() > 1e-6 {
		entry.Warn("gradient disagrees with the autodiff reference")
		return nil
	}
	entry.Info("gradient matches the autodiff reference")
	return nil
}

func writeProbabilities(path string, net *rnn.CharNet, src *data.CharCorpus) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	net.Probabilities(src, func(next int, p float64) {
		fmt.Fprintf(w, "%q\t%.10f\n", src.Symbol(next), p)
	})
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
