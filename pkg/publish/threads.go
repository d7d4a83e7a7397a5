package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"quotemine/pkg/domain"
)

const defaultThreadsBaseURL = "https://graph.threads.net/v1.0"

// ThreadsPublisher posts quotes through the Threads Graph API. Publishing
// is two calls: create a media container, then publish it by creation ID.
type ThreadsPublisher struct {
	userID     string
	token      string
	baseURL    string
	httpClient *http.Client
}

// NewThreadsPublisher builds a publisher for the given Threads user.
func NewThreadsPublisher(userID, accessToken string) (*ThreadsPublisher, error) {
	userID = strings.TrimSpace(userID)
	accessToken = strings.TrimSpace(accessToken)
	if userID == "" || accessToken == "" {
		return nil, fmt.Errorf("threads user id and access token required")
	}
	return &ThreadsPublisher{
		userID:     userID,
		token:      accessToken,
		baseURL:    defaultThreadsBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Publish creates a text container for the quote and publishes it,
// returning the post ID.
func (t *ThreadsPublisher) Publish(ctx context.Context, book domain.Book, quote domain.Quote) (string, error) {
	creationID, err := t.createContainer(ctx, FormatPost(book, quote))
	if err != nil {
		return "", fmt.Errorf("create container: %w", err)
	}
	postID, err := t.publishContainer(ctx, creationID)
	if err != nil {
		return "", fmt.Errorf("publish container: %w", err)
	}
	return postID, nil
}

func (t *ThreadsPublisher) createContainer(ctx context.Context, text string) (string, error) {
	form := url.Values{
		"media_type":   {"TEXT"},
		"text":         {text},
		"access_token": {t.token},
	}
	return t.postForm(ctx, fmt.Sprintf("%s/%s/threads", t.baseURL, t.userID), form)
}

func (t *ThreadsPublisher) publishContainer(ctx context.Context, creationID string) (string, error) {
	form := url.Values{
		"creation_id":  {creationID},
		"access_token": {t.token},
	}
	return t.postForm(ctx, fmt.Sprintf("%s/%s/threads_publish", t.baseURL, t.userID), form)
}

func (t *ThreadsPublisher) postForm(ctx context.Context, endpoint string, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var payload struct {
		ID    string `json:"id"`
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= 400 {
		if payload.Error.Message != "" {
			return "", fmt.Errorf("threads api error: %s", payload.Error.Message)
		}
		return "", fmt.Errorf("threads api error: %s", resp.Status)
	}
	if payload.ID == "" {
		return "", fmt.Errorf("threads api returned no id")
	}
	return payload.ID, nil
}
