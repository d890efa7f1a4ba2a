// SPDX-License-Identifier: MPL-2.0

package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"facet/server/pipeline"
)

const restMaxResponseBytes = 32 << 20 // 32 MB

// restDriver fetches JSON from an HTTP endpoint. The query text is a path (or
// absolute URL) resolved against the source's base URL. A JSON array of
// objects becomes one row per object; a single object becomes a one-row
// result.
type restDriver struct {
	baseURL string
}

func (d *restDriver) Query(ctx context.Context, query string) (pipeline.QueryResult, error) {
	result := pipeline.QueryResult{Columns: []string{}, Rows: [][]any{}}
	url := strings.TrimSpace(query)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = strings.TrimRight(d.baseURL, "/") + "/" + strings.TrimLeft(url, "/")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return result, err
	}
	req.Header.Set("Accept", "application/json")
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return result, fmt.Errorf("error fetching %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return result, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, restMaxResponseBytes))
	if err != nil {
		return result, err
	}

	var parsed any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return result, fmt.Errorf("response from %s is not valid JSON: %w", url, err)
	}
	switch parsed := parsed.(type) {
	case []any:
		objects := make([]map[string]any, 0, len(parsed))
		for _, el := range parsed {
			obj, ok := el.(map[string]any)
			if !ok {
				// Arrays of scalars render as a single value column.
				rows := make([][]any, len(parsed))
				for i, v := range parsed {
					rows[i] = []any{v}
				}
				return pipeline.QueryResult{Columns: []string{"value"}, Rows: rows}, nil
			}
			objects = append(objects, obj)
			if len(objects) >= queryMaxRows {
				break
			}
		}
		return pipeline.ToQueryResult(objects, nil), nil
	case map[string]any:
		return pipeline.ToQueryResult([]map[string]any{parsed}, nil), nil
	}
	return result, fmt.Errorf("response from %s is not a JSON object or array", url)
}

func (d *restDriver) Close() error {
	return nil
}
