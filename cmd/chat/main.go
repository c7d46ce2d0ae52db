// Command chat is an interactive terminal client for the Bio2 API. It keeps
// one session for the whole conversation so history accumulates server-side.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/david1005910/Bio2/engine/domain"
)

func main() {
	var (
		apiURL = flag.String("api", envOr("BIO2_API_URL", "http://localhost:8080"), "Bio2 API base URL")
		topK   = flag.Int("k", 5, "max sources per answer")
		rerank = flag.Bool("rerank", true, "rerank retrieved evidence")
	)
	flag.Parse()

	client := &http.Client{Timeout: 120 * time.Second}
	sessionID := uuid.NewString()

	fmt.Println("Bio2 chat. Ask about the indexed literature; 'quit' to exit.")
	fmt.Printf("session %s\n\n", sessionID)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "quit" || question == "exit" {
			break
		}

		resp, err := ask(client, *apiURL, domain.Query{
			Question:   question,
			SessionID:  sessionID,
			MaxSources: *topK,
			Rerank:     *rerank,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}

		fmt.Printf("\n%s\n\n", resp.Answer)
		if len(resp.Sources) > 0 {
			fmt.Println("Sources:")
			for _, s := range resp.Sources {
				fmt.Printf("  [PMID: %s] %s (relevance %.2f)\n", s.PMID, s.Title, s.Relevance)
			}
		}
		fmt.Printf("confidence %.2f", resp.Confidence)
		if resp.Cached {
			fmt.Print(" (cached)")
		}
		fmt.Printf(", %dms\n\n", resp.ResponseTimeMS)
	}
}

func ask(client *http.Client, apiURL string, q domain.Query) (*domain.RAGResponse, error) {
	body, err := json.Marshal(q)
	if err != nil {
		return nil, err
	}
	resp, err := client.Post(apiURL+"/api/v1/chat/query", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("api returned %d: %s", resp.StatusCode, snippet)
	}
	var out domain.RAGResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
