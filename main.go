package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/calebreed/recall/internal/embed"
	"github.com/calebreed/recall/internal/graph"
	"github.com/calebreed/recall/internal/persist"
	"github.com/calebreed/recall/internal/retrieve"
	"github.com/calebreed/recall/internal/server"
)

func main() {
	transport := flag.String("transport", "stdio", "Transport mode: stdio or http")
	port := flag.String("port", "9041", "HTTP port (only used with --transport http)")
	memoryFile := flag.String("memory-file", "memory.json", "Path to the persisted graph (.json or .db)")
	storeKind := flag.String("store", "", "Persistence backend: json or sqlite (default: from file extension)")
	embedderKind := flag.String("embedder", "hash", "Embedder: hash, openai or onnx")
	tagList := flag.String("tags", "", "Optional comma-separated allow-list of canonical tags")
	onnxModel := flag.String("onnx-model", "", "ONNX model path (embedder=onnx)")
	onnxTokenizer := flag.String("onnx-tokenizer", "", "tokenizer.json path (embedder=onnx)")
	flag.Parse()

	adapter, err := openAdapter(*memoryFile, *storeKind)
	if err != nil {
		log.Fatalf("Failed to open persistence: %v", err)
	}

	store, err := graph.Open(adapter)
	if err != nil {
		log.Fatalf("Failed to load graph: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("Final flush failed: %v", err)
		}
	}()

	embedder, err := openEmbedder(*embedderKind, *onnxModel, *onnxTokenizer)
	if err != nil {
		log.Fatalf("Failed to initialize embedder: %v", err)
	}

	var opts []retrieve.Option
	if *tagList != "" {
		var tags []string
		for _, tag := range strings.Split(*tagList, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags = append(tags, tag)
			}
		}
		opts = append(opts, retrieve.WithAllowedTags(tags))
	}
	engine, err := retrieve.New(store, embedder, opts...)
	if err != nil {
		log.Fatalf("Failed to build retrieval engine: %v", err)
	}

	srv := server.New(store, engine)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch *transport {
	case "stdio":
		log.Printf("Recall server starting (stdio, memory=%s, embedder=%s)", *memoryFile, *embedderKind)
		if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	case "http":
		addr := ":" + *port
		handler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
			return srv
		}, nil)
		log.Printf("Recall server listening on %s (memory=%s, embedder=%s)", addr, *memoryFile, *embedderKind)
		if err := http.ListenAndServe(addr, handler); err != nil {
			log.Fatalf("HTTP server error: %v", err)
		}
	default:
		log.Fatalf("Unknown transport: %s (use stdio or http)", *transport)
	}
}

// openAdapter picks the persistence backend from the flag, falling back
// to the memory file's extension.
func openAdapter(path, kind string) (persist.Adapter, error) {
	if kind == "" {
		if ext := filepath.Ext(path); ext == ".db" || ext == ".sqlite" {
			kind = "sqlite"
		} else {
			kind = "json"
		}
	}
	switch kind {
	case "json":
		return persist.NewFile(path), nil
	case "sqlite":
		return persist.OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unknown store %q (use json or sqlite)", kind)
	}
}

func openEmbedder(kind, onnxModel, onnxTokenizer string) (embed.Embedder, error) {
	switch kind {
	case "hash":
		return embed.NewHash(384), nil
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("embedder openai requires OPENAI_API_KEY")
		}
		return embed.NewOpenAI(apiKey), nil
	case "onnx":
		return embed.NewONNX(embed.ONNXConfig{
			ModelPath:     onnxModel,
			TokenizerPath: onnxTokenizer,
		})
	default:
		return nil, fmt.Errorf("unknown embedder %q (use hash, openai or onnx)", kind)
	}
}
