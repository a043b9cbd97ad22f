// Package metaphor evaluates a trained verb metaphor detection model on a
// labeled corpus.
//
// # Quick Start
//
//	ev, err := metaphor.NewFromFile("naacl_metaphor.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ev.Close()
//
//	c, err := vuamc.Load("vuamc_corpus_test.csv", "verb_tokens_test.csv", vuamc.ModeTest, labels.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	res, err := ev.Evaluate(ctx, c, "verb_tokens_test_gold_labels.csv", "predictions.csv")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.Report)
//
// # Pipeline
//
// Evaluate computes class weights from the corpus labels, embeds every
// sentence into a fixed-length input batch, runs the model, takes the arg-max
// label at each verb position, writes the prediction table and scores it
// against the gold table. Verbs at or beyond the maximum sentence length
// cannot be predicted; they are reported in Result.Dropped and excluded from
// scoring.
//
// # Thread Safety
//
// Evaluator is safe for concurrent use. ONNX-backed evaluators run batches on
// an internal pool of sessions, configurable via WithPoolSize.
package metaphor
