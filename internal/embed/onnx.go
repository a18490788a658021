//go:build onnx

package embed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ONNXConfig configures the local ONNX embedder.
type ONNXConfig struct {
	// ModelPath points at an all-MiniLM-L6-v2 style ONNX model.
	ModelPath string
	// TokenizerPath points at the matching tokenizer.json.
	TokenizerPath string
	// Dimensions defaults to 384.
	Dimensions int
	// LibraryPath overrides the onnxruntime shared library location.
	// Falls back to the ONNXRUNTIME_LIB environment variable.
	LibraryPath string
}

// ONNXEmbedder runs a sentence-transformer model locally through ONNX
// Runtime. Inference is serialized; the session is not safe for
// concurrent Run calls.
type ONNXEmbedder struct {
	mu         sync.Mutex
	session    *ort.DynamicAdvancedSession
	tokenizer  *wordPieceTokenizer
	dimensions int
}

const onnxSeqLen = 128

// NewONNX loads the model and tokenizer and initializes the runtime.
func NewONNX(cfg ONNXConfig) (Embedder, error) {
	if cfg.ModelPath == "" || cfg.TokenizerPath == "" {
		return nil, fmt.Errorf("onnx embedder: model and tokenizer paths are required")
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 384
	}
	lib := cfg.LibraryPath
	if lib == "" {
		lib = os.Getenv("ONNXRUNTIME_LIB")
	}
	if lib != "" {
		ort.SetSharedLibraryPath(lib)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("initialize onnx runtime: %w", err)
	}

	tok, err := loadTokenizer(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	return &ONNXEmbedder{session: session, tokenizer: tok, dimensions: cfg.Dimensions}, nil
}

func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tokens := e.tokenizer.tokenize(text)
	if len(tokens) > onnxSeqLen-2 {
		tokens = tokens[:onnxSeqLen-2]
	}

	inputIDs := make([]int64, onnxSeqLen)
	attentionMask := make([]int64, onnxSeqLen)
	tokenTypeIDs := make([]int64, onnxSeqLen)

	inputIDs[0] = clsTokenID
	attentionMask[0] = 1
	for i, id := range tokens {
		inputIDs[i+1] = id
		attentionMask[i+1] = 1
	}
	inputIDs[len(tokens)+1] = sepTokenID
	attentionMask[len(tokens)+1] = 1

	shape := ort.NewShape(1, int64(onnxSeqLen))
	inputs := make([]ort.Value, 0, 3)
	for _, data := range [][]int64{inputIDs, attentionMask, tokenTypeIDs} {
		tensor, err := ort.NewTensor(shape, data)
		if err != nil {
			for _, in := range inputs {
				in.Destroy()
			}
			return nil, fmt.Errorf("create input tensor: %w", err)
		}
		inputs = append(inputs, tensor)
	}
	defer func() {
		for _, in := range inputs {
			in.Destroy()
		}
	}()

	outputs := []ort.Value{nil}
	if err := e.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("onnx inference: %w", err)
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	tensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("onnx inference: unexpected output tensor type %T", outputs[0])
	}
	return e.pool(tensor, attentionMask)
}

// pool mean-pools the hidden states over attended tokens and normalizes.
func (e *ONNXEmbedder) pool(tensor *ort.Tensor[float32], attentionMask []int64) ([]float32, error) {
	data := tensor.GetData()
	shape := tensor.GetShape()

	if len(shape) == 2 {
		// Model already pooled.
		if len(data) < e.dimensions {
			return nil, fmt.Errorf("onnx output dimension %d < %d", len(data), e.dimensions)
		}
		out := make([]float32, e.dimensions)
		copy(out, data[:e.dimensions])
		return Normalize(out), nil
	}
	if len(shape) != 3 || shape[0] != 1 {
		return nil, fmt.Errorf("onnx output shape %v not supported", shape)
	}
	seqLen, hidden := int(shape[1]), int(shape[2])
	if hidden != e.dimensions {
		return nil, fmt.Errorf("onnx hidden size %d, want %d", hidden, e.dimensions)
	}

	out := make([]float32, hidden)
	var attended float32
	for i := 0; i < seqLen && i < len(attentionMask); i++ {
		if attentionMask[i] == 0 {
			continue
		}
		attended++
		base := i * hidden
		for j := 0; j < hidden; j++ {
			out[j] += data[base+j]
		}
	}
	if attended == 0 {
		return out, nil
	}
	for j := range out {
		out[j] /= attended
	}
	return Normalize(out), nil
}

func (e *ONNXEmbedder) Dimensions() int { return e.dimensions }

// Close releases the ONNX session.
func (e *ONNXEmbedder) Close() error {
	if e.session != nil {
		return e.session.Destroy()
	}
	return nil
}

// --- WordPiece tokenization ---

const (
	unkTokenID = 100 // [UNK]
	clsTokenID = 101 // [CLS]
	sepTokenID = 102 // [SEP]
)

type wordPieceTokenizer struct {
	vocab map[string]int
}

func loadTokenizer(path string) (*wordPieceTokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer vocab is empty")
	}
	return &wordPieceTokenizer{vocab: parsed.Model.Vocab}, nil
}

func (t *wordPieceTokenizer) tokenize(text string) []int64 {
	var ids []int64
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'")
		if word == "" {
			continue
		}
		if id, ok := t.vocab[word]; ok {
			ids = append(ids, int64(id))
			continue
		}
		for _, piece := range t.splitWord(word) {
			if id, ok := t.vocab[piece]; ok {
				ids = append(ids, int64(id))
			} else {
				ids = append(ids, unkTokenID)
			}
		}
	}
	return ids
}

// splitWord greedily matches the longest known prefix, falling back one
// byte at a time when nothing in the vocab fits.
func (t *wordPieceTokenizer) splitWord(word string) []string {
	var pieces []string
	start := 0
	for start < len(word) {
		end := len(word)
		matched := false
		for end > start {
			piece := word[start:end]
			if start > 0 {
				piece = "##" + piece
			}
			if _, ok := t.vocab[piece]; ok {
				pieces = append(pieces, piece)
				start = end
				matched = true
				break
			}
			end--
		}
		if !matched {
			pieces = append(pieces, "[UNK]")
			start++
		}
	}
	return pieces
}
