package infer

import "fmt"

// DimensionMismatchError reports expression data whose gene count does
// not match the gene count the model was trained on.
type DimensionMismatchError struct {
	DataGenes  int
	ModelGenes int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("expression data has %d genes, model expects %d genes. Gene ordering must match model training data.",
		e.DataGenes, e.ModelGenes)
}

// ModelLoadError wraps any failure to read, parse, or validate a model
// checkpoint.
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("failed to load model: %v", e.Err)
	}
	return fmt.Sprintf("failed to load model from %s: %v", e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }
