package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "char.json",
		`{"trainFile": "a", "validFile": "b", "testFile": "c", "nhid": 20, "bptt": 7}`)

	cfg, rf, _, err := parseChar([]string{"-config", cfgPath, "-bptt", "5", "-verbose"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Hidden != 20 {
		t.Errorf("nhid = %d, want 20 from the file", cfg.Hidden)
	}
	if cfg.BPTT != 5 {
		t.Errorf("bptt = %d, want 5 from the flag", cfg.BPTT)
	}
	if cfg.NGram != 30 {
		t.Errorf("ngram = %d, want default 30", cfg.NGram)
	}
	if !rf.verbose || rf.configPath != cfgPath {
		t.Errorf("run flags %+v", rf)
	}
}

func TestParseRequiresFiles(t *testing.T) {
	if _, _, err := parseMixed([]string{"-nhidw", "10"}); err == nil {
		t.Error("expected an error without corpus files")
	}
}

func corpora(t *testing.T, text string) (string, string, string) {
	dir := t.TempDir()
	return writeFile(t, dir, "train.txt", strings.Repeat(text, 8)),
		writeFile(t, dir, "valid.txt", text),
		writeFile(t, dir, "test.txt", text)
}

func TestRunChar(t *testing.T) {
	train, valid, test := corpora(t, "the_cat_sat_on_the_mat_")
	probs := filepath.Join(t.TempDir(), "probs.tsv")
	err := runChar([]string{
		"-trainFile", train, "-validFile", valid, "-testFile", test,
		"-nhid", "6", "-bptt", "4", "-ngram", "3", "-minFreq", "1", "-nepoch", "2",
		"-blas", "loop", "-autodiff", "-generate", "10", "-probs", probs,
		"-runlog", filepath.Join(t.TempDir(), "runs.sqlite3"),
	})
	if err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(probs)
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Count(string(b), "\n"); lines != len("the_cat_sat_on_the_mat_") {
		t.Errorf("wrote %d probabilities", lines)
	}
}

func TestRunMixed(t *testing.T) {
	train, valid, test := corpora(t, "the_cat_sat_on_the_mat_")
	err := runMixed([]string{
		"-trainFile", train, "-validFile", valid, "-testFile", test,
		"-nhidw", "6", "-nhidc", "5", "-bptt", "3", "-V1", "0", "-V2", "3",
		"-blas", "blas", "-generate", "5", "-gradcheck", "1",
	})
	if err != nil {
		t.Fatal(err)
	}
}
