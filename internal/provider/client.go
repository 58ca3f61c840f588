package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/mentha-app/mentha-engine/pkg/models"
)

// httpClient is shared by all adapters. Per-attempt deadlines come from the
// dispatcher's context; the client timeout is only a backstop.
var httpClient = &http.Client{Timeout: 90 * time.Second}

// postJSON sends body as JSON to url and decodes the response into out.
// Transport and status failures are mapped to sentinel errors.
func postJSON(ctx context.Context, url string, headers map[string]string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyStatus(resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding body: %v", ErrInvalidResponse, err)
	}

	return nil
}

var reURL = regexp.MustCompile(`https?://[^\s<>"')\]]+`)

// extractCitations pulls source URLs out of answer text, preserving first-seen
// order and dropping duplicates. Used for chat-style engines that inline their
// sources instead of returning a citation list.
func extractCitations(content string) []models.Citation {
	seen := make(map[string]bool)
	var cites []models.Citation
	for _, u := range reURL.FindAllString(content, -1) {
		if seen[u] {
			continue
		}
		seen[u] = true
		cites = append(cites, models.Citation{URL: u, Index: len(cites)})
	}
	return cites
}

// userPrompt renders the query plus any geo targeting into the user message.
func userPrompt(req models.SearchRequest) string {
	if req.Geo == nil {
		return req.Query
	}
	loc := req.Geo.Location
	if loc == "" {
		loc = req.Geo.Country
	}
	if loc == "" {
		return req.Query
	}
	return fmt.Sprintf("%s\n\nAnswer for a user located in %s.", req.Query, loc)
}
