package kaiku

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

// SubmitRequest is the payload sent to the persistence collaborator. The
// location is always the obfuscated coordinate; the raw reading never
// reaches this struct.
type SubmitRequest struct {
	ID           MessageID `json:"id"`
	Text         string    `json:"text"`
	AuthorID     ActorID   `json:"author_id"`
	Location     LatLng    `json:"location"`
	OriginRegion string    `json:"origin_region,omitempty"`
	ParentID     MessageID `json:"parent_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	IsRemote     bool      `json:"is_remote"`
}

// Store is the persistence collaborator. The engine treats it as external:
// it may reject submissions (moderation, rate limits of its own) and its
// fetch results are re-filtered defensively on arrival.
type Store interface {
	Submit(ctx context.Context, req SubmitRequest) (Message, error)
	Fetch(ctx context.Context, viewport *Viewport, onlyTopLevel bool) ([]Message, error)
	Vote(ctx context.Context, id MessageID, direction VoteDirection) (int, error)
	Delete(ctx context.Context, id MessageID) error
}

// HTTPStore talks JSON to the backing service.
type HTTPStore struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPStore(baseURL string) *HTTPStore {
	return &HTTPStore{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (s *HTTPStore) Submit(ctx context.Context, req SubmitRequest) (Message, error) {
	var msg Message
	body, err := json.Marshal(req)
	if err != nil {
		return msg, &PersistenceError{Op: "submit", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return msg, &PersistenceError{Op: "submit", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(httpReq)
	if err != nil {
		return msg, &PersistenceError{Op: "submit", Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
			return msg, &PersistenceError{Op: "submit", Err: err}
		}
		return msg, nil
	case http.StatusTooManyRequests:
		var payload struct {
			RetryAfter time.Time `json:"retry_after"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		return msg, &RateLimitError{RetryAfter: payload.RetryAfter}
	case http.StatusUnprocessableEntity:
		var payload struct {
			Reason string `json:"reason"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		return msg, &ModerationError{Reason: payload.Reason}
	default:
		return msg, &PersistenceError{Op: "submit", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
}

func (s *HTTPStore) Fetch(ctx context.Context, viewport *Viewport, onlyTopLevel bool) ([]Message, error) {
	query := url.Values{}
	if viewport != nil {
		query.Set("bbox", fmt.Sprintf("%f,%f,%f,%f", viewport.MinLat, viewport.MinLng, viewport.MaxLat, viewport.MaxLng))
	}
	if onlyTopLevel {
		query.Set("top_level", "true")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"/messages?"+query.Encode(), nil)
	if err != nil {
		return nil, &PersistenceError{Op: "fetch", Err: err}
	}

	resp, err := s.Client.Do(httpReq)
	if err != nil {
		return nil, &PersistenceError{Op: "fetch", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &PersistenceError{Op: "fetch", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var messages []Message
	if err := json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		return nil, &PersistenceError{Op: "fetch", Err: err}
	}
	logrus.Debugf("store: fetched %d messages", len(messages))
	return messages, nil
}

func (s *HTTPStore) Vote(ctx context.Context, id MessageID, direction VoteDirection) (int, error) {
	body, _ := json.Marshal(map[string]string{"direction": direction.String()})
	endpoint := fmt.Sprintf("%s/messages/%s/vote", s.BaseURL, url.PathEscape(string(id)))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, &PersistenceError{Op: "vote", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(httpReq)
	if err != nil {
		return 0, &PersistenceError{Op: "vote", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, &PersistenceError{Op: "vote", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var payload struct {
		Delta int `json:"delta"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, &PersistenceError{Op: "vote", Err: err}
	}
	return payload.Delta, nil
}

func (s *HTTPStore) Delete(ctx context.Context, id MessageID) error {
	endpoint := fmt.Sprintf("%s/messages/%s", s.BaseURL, url.PathEscape(string(id)))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return &PersistenceError{Op: "delete", Err: err}
	}

	resp, err := s.Client.Do(httpReq)
	if err != nil {
		return &PersistenceError{Op: "delete", Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return &PersistenceError{Op: "delete", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	return nil
}
