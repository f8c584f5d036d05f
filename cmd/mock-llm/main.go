// Package main implements a mock interpreter endpoint for local
// development. It serves OpenAI-compatible /chat/completions responses
// from JSON fixture files, routing by the forced tool name in the
// request's tool_choice. This removes the need for a real LLM when
// exercising the agent by hand: responses are fast, deterministic, and
// offline.
//
// Usage:
//
//	mock-llm -fixtures /path/to/fixtures -addr :11434
//
// Fixture files are JSON named by tool (e.g. "route_request.json"
// becomes the arguments of a route_request tool call). Numbered files
// ("resolve_entity_reference.1.json", ".2.json") are served in order,
// with the base file as the repeating fallback, so multi-step flows
// like gate-then-approve can be scripted.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type chatRequest struct {
	Model      string `json:"model"`
	ToolChoice *struct {
		Type     string `json:"type"`
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	} `json:"tool_choice"`
}

type server struct {
	fixtures map[string][]string // tool name -> ordered argument payloads

	mu    sync.Mutex
	calls map[string]int
	total int
}

func main() {
	fixtureDir := flag.String("fixtures", "", "directory containing fixture argument files")
	addr := flag.String("addr", ":11434", "listen address")
	flag.Parse()

	if env := os.Getenv("MOCK_LLM_FIXTURES"); env != "" && *fixtureDir == "" {
		*fixtureDir = env
	}
	if *fixtureDir == "" {
		*fixtureDir = "fixtures"
	}

	fixtures, err := loadFixtures(*fixtureDir)
	if err != nil {
		log.Fatalf("Failed to load fixtures from %s: %v", *fixtureDir, err)
	}
	log.Printf("Loaded %d tool(s) from %s", len(fixtures), *fixtureDir)
	for tool, seq := range fixtures {
		log.Printf("  tool: %s (%d fixture(s))", tool, len(seq))
	}

	s := &server{fixtures: fixtures, calls: make(map[string]int)}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("/stats", s.handleStats)

	log.Printf("Mock interpreter listening on %s", *addr)
	if err := http.ListenAndServe(*addr, mux); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.ToolChoice == nil || req.ToolChoice.Function.Name == "" {
		http.Error(w, "request carries no forced tool_choice", http.StatusBadRequest)
		return
	}
	tool := req.ToolChoice.Function.Name

	seq, ok := s.fixtures[tool]
	if !ok {
		log.Printf("WARNING: no fixture for tool %q", tool)
		http.Error(w, fmt.Sprintf("no fixture for tool %q", tool), http.StatusNotFound)
		return
	}

	s.mu.Lock()
	index := s.calls[tool]
	s.calls[tool]++
	s.total++
	s.mu.Unlock()

	arguments := seq[len(seq)-1]
	if index < len(seq) {
		arguments = seq[index]
	}
	log.Printf("tool=%s call=%d/%d", tool, index+1, len(seq))

	writeJSON(w, map[string]any{
		"id":      fmt.Sprintf("mock-%d", time.Now().UnixNano()),
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   req.Model,
		"choices": []map[string]any{{
			"index": 0,
			"message": map[string]any{
				"role": "assistant",
				"tool_calls": []map[string]any{{
					"id":   "call-1",
					"type": "function",
					"function": map[string]any{
						"name":      tool,
						"arguments": arguments,
					},
				}},
			},
			"finish_reason": "tool_calls",
		}},
		"usage": map[string]int{
			"prompt_tokens":     len(arguments) / 4,
			"completion_tokens": len(arguments) / 4,
			"total_tokens":      len(arguments) / 2,
		},
	})
}

// handleStats reports per-tool call counts for assertions in scripts.
func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	byTool := make(map[string]int, len(s.calls))
	for tool, n := range s.calls {
		byTool[tool] = n
	}
	total := s.total
	s.mu.Unlock()

	writeJSON(w, map[string]any{
		"total_calls":   total,
		"calls_by_tool": byTool,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// numberedFileRe matches files like "route_request.1.json".
var numberedFileRe = regexp.MustCompile(`^(.+)\.(\d+)\.json$`)

// loadFixtures reads JSON files from dir into tool -> argument
// sequences: numbered files in numeric order, then the base file as the
// repeating fallback.
func loadFixtures(dir string) (map[string][]string, error) {
	baseFiles := make(map[string]string)
	numberedFiles := make(map[string]map[int]string)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(info.Name(), ".json") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if !json.Valid(data) {
			return fmt.Errorf("invalid JSON in %s", path)
		}

		if matches := numberedFileRe.FindStringSubmatch(info.Name()); matches != nil {
			tool := matches[1]
			index, _ := strconv.Atoi(matches[2])
			if numberedFiles[tool] == nil {
				numberedFiles[tool] = make(map[int]string)
			}
			numberedFiles[tool][index] = string(data)
			return nil
		}

		tool := strings.TrimSuffix(info.Name(), ".json")
		baseFiles[tool] = string(data)
		return nil
	})
	if err != nil {
		return nil, err
	}

	fixtures := make(map[string][]string)
	tools := make(map[string]bool)
	for t := range baseFiles {
		tools[t] = true
	}
	for t := range numberedFiles {
		tools[t] = true
	}

	for tool := range tools {
		var seq []string
		if numbered, ok := numberedFiles[tool]; ok {
			indices := make([]int, 0, len(numbered))
			for idx := range numbered {
				indices = append(indices, idx)
			}
			sort.Ints(indices)
			for _, idx := range indices {
				seq = append(seq, numbered[idx])
			}
		}
		if base, ok := baseFiles[tool]; ok {
			seq = append(seq, base)
		}
		if len(seq) > 0 {
			fixtures[tool] = seq
		}
	}

	if len(fixtures) == 0 {
		return nil, fmt.Errorf("no fixture files found in %s", dir)
	}
	return fixtures, nil
}
