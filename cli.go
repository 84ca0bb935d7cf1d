package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"tinyrnn/pkg/config"
	"tinyrnn/pkg/linalg"
	"tinyrnn/pkg/runlog"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "char":
		err = runChar(os.Args[2:])
	case "mixed":
		err = runMixed(os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("tinyrnn - recurrent language models trained with truncated BPTT")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  tinyrnn char  -trainFile FILE -validFile FILE -testFile FILE [options]")
	fmt.Println("  tinyrnn mixed -trainFile FILE -validFile FILE -testFile FILE [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  char     Character model conditioned on the recent history")
	fmt.Println("  mixed    Hierarchical word model with a character chain per word")
}

// runFlags are the options that do not belong to the model configuration.
type runFlags struct {
	configPath string
	verbose    bool
	runlog     string
	gradcheck  int
	linesearch int
	lineGamma  float64
	generate   int
}

func (r *runFlags) bind(fs *flag.FlagSet) {
	fs.StringVar(&r.configPath, "config", "", "JSON configuration file; flags override its values")
	fs.BoolVar(&r.verbose, "verbose", false, "Log training progress")
	fs.StringVar(&r.runlog, "runlog", "", "SQLite database receiving one row per epoch")
	fs.IntVar(&r.gradcheck, "gradcheck", 0, "Check the gradient along this many random directions before training")
	fs.IntVar(&r.linesearch, "linesearch", 0, "Run this many steps of a line search before training")
	fs.Float64Var(&r.lineGamma, "linegamma", 1e-3, "Step size of the line search")
	fs.IntVar(&r.generate, "generate", 0, "Sample this many tokens after training")
}

func bindTraining(fs *flag.FlagSet, t *config.Training) {
	fs.StringVar(&t.Train, "trainFile", t.Train, "Training corpus (required)")
	fs.StringVar(&t.Valid, "validFile", t.Valid, "Validation corpus (required)")
	fs.StringVar(&t.Test, "testFile", t.Test, "Test corpus (required)")
	fs.IntVar(&t.BPTT, "bptt", t.BPTT, "Truncation length")
	fs.IntVar(&t.Epochs, "nepoch", t.Epochs, "Number of epochs")
	fs.Float64Var(&t.LR, "lr", t.LR, "Learning rate")
	fs.Float64Var(&t.ShrinkVal, "shrinkVal", t.ShrinkVal, "Learning rate divisor once validation stops improving")
	fs.Float64Var(&t.MinLRFraction, "minLRFraction", t.MinLRFraction, "Learning rate floor as a fraction of -lr")
	fs.StringVar(&t.Init, "init", t.Init, "Initialization: gaussian or diagonal")
	fs.Int64Var(&t.Seed, "seed", t.Seed, "Random seed")
	fs.StringVar(&t.Backend, "blas", t.Backend, "Matrix kernels: loop, blas or auto")
}

// parseArgs parses args twice when -config is given: once to find the file,
// then again on top of the file's values so explicit flags win.
func parseArgs(args []string, newFlags func(*runFlags) *flag.FlagSet, load func(path string) error) (*runFlags, error) {
	rf := &runFlags{}
	if err := newFlags(rf).Parse(args); err != nil {
		return nil, err
	}
	if rf.configPath == "" {
		return rf, nil
	}
	if err := load(rf.configPath); err != nil {
		return nil, err
	}
	rf = &runFlags{}
	if err := newFlags(rf).Parse(args); err != nil {
		return nil, err
	}
	return rf, nil
}

func newLogger(verbose bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

func openStore(path string) (*runlog.Store, error) {
	if path == "" {
		return nil, nil
	}
	return runlog.Open(path)
}

// report prints the json_stats line of an epoch, logs it and stores it.
func report(log *logrus.Logger, store *runlog.Store, runID, modelName string, epoch int, record any) error {
	if err := runlog.Print(os.Stdout, record); err != nil {
		return err
	}
	log.WithFields(runlog.Fields(record)).Debug("epoch finished")
	if store == nil {
		return nil
	}
	return store.Insert(runID, modelName, epoch, record)
}

func banner(title string, be linalg.Backend) {
	fmt.Printf("🤖 %s\n", title)
	for range title {
		fmt.Print("=")
	}
	fmt.Printf("===\n\n")
	fmt.Printf("   CPU: %s\n", linalg.CPUSummary())
	fmt.Printf("   Backend: %s\n", be)
}

func warnDropped(log *logrus.Logger, corpus string, dropped int) {
	if dropped == 0 {
		return
	}
	log.WithFields(logrus.Fields{
		"corpus":  corpus,
		"dropped": dropped,
	}).Warn("skipping characters not seen in training")
}
