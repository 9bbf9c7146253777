package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"knowpack/internal/creds"
	"knowpack/internal/domain"
	"knowpack/internal/profile"
)

const trelloBaseURL = "https://api.trello.com"

// Trello exports one board as JSON via the Trello REST API.
type Trello struct {
	BaseURL string
	Client  *http.Client
}

func (t *Trello) Fetch(ctx context.Context, entry profile.Entry, bundle creds.Bundle) (domain.Artifact, error) {
	q := url.Values{}
	q.Set("key", bundle.TrelloKey)
	q.Set("token", bundle.TrelloToken)
	q.Set("fields", "name,desc,url")
	q.Set("lists", "open")
	q.Set("cards", "all")
	q.Set("card_fields", "name,desc,due,labels,url,shortUrl")
	q.Set("labels", "all")

	reqURL := fmt.Sprintf("%s/1/boards/%s?%s", t.BaseURL, url.PathEscape(entry.ID), q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return domain.Artifact{}, &Error{Op: "trello api", Detail: err.Error()}
	}
	resp, err := t.Client.Do(req)
	if err != nil {
		return domain.Artifact{}, &Error{Op: "trello api", Detail: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return domain.Artifact{}, &Error{Op: "trello api", Detail: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.Artifact{}, &Error{
			Op:     "trello api",
			Detail: fmt.Sprintf("board %s: %s: %s", entry.ID, resp.Status, snippet(body)),
		}
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		// Keep whatever the API returned rather than failing on formatting.
		return domain.Artifact{Data: body, Ext: ".json"}, nil
	}
	return domain.Artifact{Data: pretty.Bytes(), Ext: ".json"}, nil
}

func snippet(body []byte) string {
	const max = 200
	s := string(bytes.TrimSpace(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
