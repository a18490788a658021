//go:build !onnx

package embed

import "fmt"

// ONNXConfig configures the local ONNX embedder. See the onnx build tag.
type ONNXConfig struct {
	ModelPath     string
	TokenizerPath string
	Dimensions    int
	LibraryPath   string
}

// NewONNX is only available when the binary is built with -tags onnx.
func NewONNX(ONNXConfig) (Embedder, error) {
	return nil, fmt.Errorf("onnx embedder: binary built without onnx support (rebuild with -tags onnx)")
}
