// Package main implements a smoke checker for a running agent instance.
// It walks the discovery and RPC surface end to end: health, the agent
// card, the credentials manifest, tool.list, and a credential-less
// tool.execute that must come back as needs_setup. It exits non-zero on
// the first failed check, so it can gate deploys.
//
// Usage:
//
//	e2e -url http://localhost:8080 -secret dev-secret
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/chronoplan/chronoplan/agent"
	"github.com/chronoplan/chronoplan/rpc"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "agent base URL")
	secret := flag.String("secret", "", "dev secret for X-A2A-Dev-Secret")
	timeout := flag.Duration("timeout", 15*time.Second, "per-request timeout")
	flag.Parse()

	c := &checker{
		baseURL: *baseURL,
		secret:  *secret,
		client:  &http.Client{Timeout: *timeout},
	}

	checks := []struct {
		name string
		run  func() error
	}{
		{"health", c.checkHealth},
		{"agent card document", c.checkCardDocument},
		{"credentials manifest", c.checkCredentialsManifest},
		{"tool.list", c.checkToolList},
		{"tool.execute without credentials", c.checkNeedsSetup},
	}

	for _, check := range checks {
		if err := check.run(); err != nil {
			log.Printf("FAIL %s: %v", check.name, err)
			os.Exit(1)
		}
		log.Printf("ok   %s", check.name)
	}
	log.Printf("all %d checks passed against %s", len(checks), c.baseURL)
}

type checker struct {
	baseURL string
	secret  string
	client  *http.Client
}

func (c *checker) checkHealth() error {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.getJSON("/health", &body); err != nil {
		return err
	}
	if body.Status != "ok" {
		return fmt.Errorf("status %q", body.Status)
	}
	return nil
}

func (c *checker) checkCardDocument() error {
	var card rpc.Card
	if err := c.getJSON("/.well-known/a2a.json", &card); err != nil {
		return err
	}
	if card.ID == "" {
		return fmt.Errorf("card has no agent id")
	}
	if len(card.Capabilities) == 0 {
		return fmt.Errorf("card lists no capabilities")
	}
	return nil
}

func (c *checker) checkCredentialsManifest() error {
	var manifest struct {
		Credentials []rpc.CredentialSpec `json:"credentials"`
	}
	if err := c.getJSON("/.well-known/a2a-credentials.json", &manifest); err != nil {
		return err
	}
	if len(manifest.Credentials) == 0 {
		return fmt.Errorf("manifest lists no credentials")
	}
	return nil
}

func (c *checker) checkToolList() error {
	var tools []agent.ToolInfo
	if err := c.call("tool.list", nil, &tools); err != nil {
		return err
	}
	if len(tools) == 0 {
		return fmt.Errorf("no tools listed")
	}
	for _, tool := range tools {
		if tool.Name == agent.ToolManageProductivity {
			return nil
		}
	}
	return fmt.Errorf("%s is not listed", agent.ToolManageProductivity)
}

// checkNeedsSetup verifies the credential gate: an execute with no
// provider credentials must come back needs_setup, not an error.
func (c *checker) checkNeedsSetup() error {
	params := map[string]any{
		"tool":      agent.ToolManageProductivity,
		"arguments": agent.Arguments{Query: "create a task to verify the deployment"},
		"user_context": map[string]any{
			"timezone": "UTC",
		},
	}
	var result agent.Response
	if err := c.call("tool.execute", params, &result); err != nil {
		return err
	}
	if !result.NeedsSetup {
		return fmt.Errorf("expected needs_setup, got %+v", result)
	}
	return nil
}

// call performs one JSON-RPC request and decodes the result.
func (c *checker) call(method string, params any, result any) error {
	reqBody := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		reqBody["params"] = params
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/a2a/rpc", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.secret != "" {
		req.Header.Set("X-A2A-Dev-Secret", c.secret)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var out struct {
		Result json.RawMessage `json:"result"`
		Error  *rpc.Error      `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	if out.Error != nil {
		return fmt.Errorf("%s: rpc error %d: %s", method, out.Error.Code, out.Error.Message)
	}
	if result != nil {
		if err := json.Unmarshal(out.Result, result); err != nil {
			return fmt.Errorf("decoding %s result: %w", method, err)
		}
	}
	return nil
}

func (c *checker) getJSON(path string, v any) error {
	resp, err := c.client.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
