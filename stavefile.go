//go:build stave

package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/yaklabco/stave/pkg/sh"
	"github.com/yaklabco/stave/pkg/st"
	"github.com/yaklabco/stave/pkg/target"
)

// Default target when running `stave` with no arguments.
var Default = All

// Aliases for common targets.
var Aliases = map[string]interface{}{
	"b": Build,
	"t": Test,
	"l": Lint,
	"c": Clean,
}

// All lints, tests and builds.
func All() error {
	st.Deps(Init)
	st.Deps(Lint, Test)
	st.Deps(Build)
	return nil
}

// Init ensures the module dependencies are up to date.
func Init() error {
	return sh.Run("go", "mod", "tidy")
}

// Build compiles bin/metaphor with version information.
func Build() error {
	st.Deps(Init)

	rebuild, err := target.Glob("bin/metaphor", "**/*.go", "go.mod", "go.sum")
	if err != nil {
		return fmt.Errorf("checking rebuild: %w", err)
	}
	if !rebuild {
		if st.Verbose() {
			fmt.Println("metaphor is up to date")
		}
		return nil
	}

	return sh.RunV("go", "build", "-ldflags", ldflags(), "-o", "bin/metaphor", "./cmd/metaphor")
}

// ldflags injects version, commit and build date into main.
func ldflags() string {
	version, _ := sh.Output("git", "describe", "--tags", "--always", "--dirty")
	commit, _ := sh.Output("git", "rev-parse", "--short", "HEAD")

	return fmt.Sprintf("-X main.version=%s -X main.commit=%s -X main.date=%s",
		strings.TrimSpace(version), strings.TrimSpace(commit), time.Now().Format(time.RFC3339))
}

// Test runs all tests with race detection and coverage. ONNX tests skip
// unless testdata/model.onnx and the onnxruntime library are present.
func Test() error {
	st.Deps(Init)
	return sh.RunV("go", "test", "-race", "-cover", "./...")
}

// Coverage writes coverage.html.
func Coverage() error {
	st.Deps(Init)
	if err := sh.RunV("go", "test", "-race", "-coverprofile=coverage.out", "./..."); err != nil {
		return err
	}
	return sh.RunV("go", "tool", "cover", "-html=coverage.out", "-o", "coverage.html")
}

// Lint runs golangci-lint.
func Lint() error {
	return sh.RunV("golangci-lint", "run", "./...")
}

// Vet runs go vet.
func Vet() error {
	return sh.RunV("go", "vet", "./...")
}

// Fmt formats all Go code.
func Fmt() error {
	if err := sh.Run("gofmt", "-w", "."); err != nil {
		return fmt.Errorf("gofmt: %w", err)
	}
	return sh.Run("goimports", "-w", ".")
}

// CI runs vet, lint, test and build in order.
func CI() error {
	st.Deps(Init)
	st.SerialDeps(Vet, Lint, Test, Build)
	return nil
}

// Clean removes build and evaluation artifacts.
func Clean() error {
	for _, a := range []string{"bin/", "predictions.csv", "coverage.out", "coverage.html"} {
		if err := sh.Rm(a); err != nil {
			return fmt.Errorf("removing %s: %w", a, err)
		}
	}
	return nil
}

// Eval namespace runs the pipeline on the NAACL 2018 shared task data.
// METAPHOR_DATA names the data directory (default "source") and
// METAPHOR_MODEL the ONNX model (default "naacl_metaphor.onnx").
type Eval st.Namespace

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Test evaluates the model on the test split and scores it against the gold
// labels, writing predictions.csv.
func (Eval) Test() error {
	st.Deps(Build)

	data := envOr("METAPHOR_DATA", "source")
	return sh.RunV("./bin/metaphor", "evaluate",
		"--model", envOr("METAPHOR_MODEL", "naacl_metaphor.onnx"),
		"--corpus", data+"/vuamc_corpus_test.csv",
		"--verbs", data+"/verb_tokens_test.csv",
		"--gold", data+"/verb_tokens_test_gold_labels.csv",
		"--predictions", "predictions.csv",
	)
}

// Score rescores an existing predictions.csv.
func (Eval) Score() error {
	st.Deps(Build)

	return sh.RunV("./bin/metaphor", "score",
		"--predictions", "predictions.csv",
		"--gold", envOr("METAPHOR_DATA", "source")+"/verb_tokens_test_gold_labels.csv",
	)
}

// Weights prints the class weights of the training split.
func (Eval) Weights() error {
	st.Deps(Build)

	data := envOr("METAPHOR_DATA", "source")
	return sh.RunV("./bin/metaphor", "weights",
		"--corpus", data+"/vuamc_corpus_train.csv",
		"--verbs", data+"/verb_tokens.csv",
	)
}

// Inspect prints the model's input and output signature.
func (Eval) Inspect() error {
	st.Deps(Build)
	return sh.RunV("./bin/metaphor", "inspect", "--model", envOr("METAPHOR_MODEL", "naacl_metaphor.onnx"))
}
