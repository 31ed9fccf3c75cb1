package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

type createConversationResponse struct {
	ID string `json:"ID"`
}

// runChat creates a conversation, posts one message, and copies the SSE
// stream's raw frames to out (mirrors memoryctl's runSearch: a thin HTTP
// round-trip with the response copied straight through).
func runChat(apiURL, message string, out io.Writer) error {
	createResp, err := http.Post(apiURL+"/api/conversations", "application/json", bytes.NewReader(nil))
	if err != nil {
		return err
	}
	defer func() { _ = createResp.Body.Close() }()
	if createResp.StatusCode != http.StatusCreated {
		data, _ := io.ReadAll(createResp.Body)
		return fmt.Errorf("create conversation: http %d: %s", createResp.StatusCode, string(data))
	}

	var envelope struct {
		Data createConversationResponse `json:"data"`
	}
	if err := json.NewDecoder(createResp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode conversation response: %w", err)
	}

	body, _ := json.Marshal(map[string]string{"content": message})
	resp, err := http.Post(apiURL+"/api/conversations/"+envelope.Data.ID+"/messages", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("send message: http %d: %s", resp.StatusCode, string(data))
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		fmt.Fprintln(out, scanner.Text())
	}
	return scanner.Err()
}
