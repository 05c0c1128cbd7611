// Package studio is the HTTP client for the managed studio backend: channel
// fetches, post/comment/reaction mutations and object-storage uploads. It is
// the only package that talks to the backend's REST surface; realtime change
// delivery lives in internal/realtime.
package studio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/studioalign/studio07-sub001/internal/core/channels"
	"github.com/studioalign/studio07-sub001/internal/core/posts"
	"github.com/studioalign/studio07-sub001/internal/identity"
	"github.com/studioalign/studio07-sub001/internal/media"
)

// TokenSource supplies a fresh access token when the current one is about to
// expire. Optional; without one the configured token is used as-is.
type TokenSource func(ctx context.Context) (string, error)

// Config holds the client configuration.
type Config struct {
	BaseURL     string
	AccessToken string
	TokenSource TokenSource
	HTTPClient  *http.Client
	Resolver    *identity.Resolver // optional, for author display-name hydration
	Logger      *slog.Logger
}

// Client is the backend collaborator contract the feed reconciler depends on.
type Client interface {
	FetchChannel(ctx context.Context, channelID string) (*channels.ChannelDetail, error)
	GetPost(ctx context.Context, postID string) (*posts.Post, error)
	GetComment(ctx context.Context, postID, commentID string) (*posts.Comment, error)
	CreatePost(ctx context.Context, channelID, content string, attachments []media.Attachment) (*posts.Post, error)
	UpdatePost(ctx context.Context, postID, content string) (*posts.Post, error)
	DeletePost(ctx context.Context, postID string) error
	CreateComment(ctx context.Context, postID, content string) (*posts.Comment, error)
	UpdateComment(ctx context.Context, postID, commentID, content string) (*posts.Comment, error)
	DeleteComment(ctx context.Context, postID, commentID string) error
	ToggleReaction(ctx context.Context, postID string) (bool, error)
}

// HTTPClient implements Client against the backend's REST API.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	resolver   *identity.Resolver
	logger     *slog.Logger
	tokens     *tokenManager
}

// NewClient creates a backend client from the given configuration.
func NewClient(cfg Config) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: httpClient,
		resolver:   cfg.Resolver,
		logger:     logger,
		tokens:     newTokenManager(cfg.AccessToken, cfg.TokenSource, logger),
	}, nil
}

// FetchChannel returns channel metadata and the full hydrated post list.
// Fails with channels.ErrChannelNotFound when the channel id is unknown.
func (c *HTTPClient) FetchChannel(ctx context.Context, channelID string) (*channels.ChannelDetail, error) {
	var detail channels.ChannelDetail
	err := c.do(ctx, http.MethodGet, "/api/channels/"+url.PathEscape(channelID), nil, "", &detail)
	if err != nil {
		if isNotFoundStatus(err) {
			return nil, channels.ErrChannelNotFound
		}
		return nil, fmt.Errorf("failed to fetch channel %s: %w", channelID, err)
	}
	return &detail, nil
}

// GetPost returns a single post with nested media, reactions and comments.
func (c *HTTPClient) GetPost(ctx context.Context, postID string) (*posts.Post, error) {
	var post posts.Post
	err := c.do(ctx, http.MethodGet, "/api/posts/"+url.PathEscape(postID), nil, "", &post)
	if err != nil {
		if isNotFoundStatus(err) {
			return nil, posts.ErrPostNotFound
		}
		return nil, fmt.Errorf("failed to fetch post %s: %w", postID, err)
	}
	c.hydratePostAuthors(ctx, &post)
	return &post, nil
}

// GetComment returns a single comment with its author resolved.
func (c *HTTPClient) GetComment(ctx context.Context, postID, commentID string) (*posts.Comment, error) {
	path := "/api/posts/" + url.PathEscape(postID) + "/comments/" + url.PathEscape(commentID)
	var comment posts.Comment
	err := c.do(ctx, http.MethodGet, path, nil, "", &comment)
	if err != nil {
		if isNotFoundStatus(err) {
			return nil, posts.ErrCommentNotFound
		}
		return nil, fmt.Errorf("failed to fetch comment %s: %w", commentID, err)
	}
	c.hydrateAuthor(ctx, &comment.Author)
	return &comment, nil
}

type mediaRef struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Kind     string `json:"kind"`
	Filename string `json:"filename"`
}

type createPostRequest struct {
	Content string     `json:"content"`
	Media   []mediaRef `json:"media,omitempty"`
}

// CreatePost uploads each attachment to object storage, then persists the
// post with one media row per uploaded file. Returns the created post's full
// detail. Attachments must already have passed media validation.
func (c *HTTPClient) CreatePost(ctx context.Context, channelID, content string, attachments []media.Attachment) (*posts.Post, error) {
	refs := make([]mediaRef, 0, len(attachments))
	for _, att := range attachments {
		prepared, err := media.PrepareImage(att)
		if err != nil {
			// Preprocessing is best-effort; upload the original on failure
			c.logger.Warn("image preprocessing failed, uploading original",
				"filename", att.Filename,
				"error", err)
			prepared = att
		}
		ref, err := c.uploadAttachment(ctx, prepared)
		if err != nil {
			return nil, fmt.Errorf("failed to upload %s: %w", att.Filename, err)
		}
		refs = append(refs, *ref)
	}

	body, err := json.Marshal(createPostRequest{Content: content, Media: refs})
	if err != nil {
		return nil, fmt.Errorf("failed to encode create post request: %w", err)
	}

	var post posts.Post
	path := "/api/channels/" + url.PathEscape(channelID) + "/posts"
	if err := c.do(ctx, http.MethodPost, path, bytes.NewReader(body), "application/json", &post); err != nil {
		if isNotFoundStatus(err) {
			return nil, channels.ErrChannelNotFound
		}
		return nil, fmt.Errorf("failed to create post: %w", err)
	}
	return &post, nil
}

type updateContentRequest struct {
	Content string `json:"content"`
}

// UpdatePost edits a post's content in place.
func (c *HTTPClient) UpdatePost(ctx context.Context, postID, content string) (*posts.Post, error) {
	body, err := json.Marshal(updateContentRequest{Content: content})
	if err != nil {
		return nil, fmt.Errorf("failed to encode update post request: %w", err)
	}
	var post posts.Post
	path := "/api/posts/" + url.PathEscape(postID)
	if err := c.do(ctx, http.MethodPatch, path, bytes.NewReader(body), "application/json", &post); err != nil {
		if isNotFoundStatus(err) {
			return nil, posts.ErrPostNotFound
		}
		return nil, fmt.Errorf("failed to update post %s: %w", postID, err)
	}
	return &post, nil
}

// DeletePost deletes a post and its nested comments, reactions and media rows.
func (c *HTTPClient) DeletePost(ctx context.Context, postID string) error {
	err := c.do(ctx, http.MethodDelete, "/api/posts/"+url.PathEscape(postID), nil, "", nil)
	if err != nil {
		if isNotFoundStatus(err) {
			return posts.ErrPostNotFound
		}
		return fmt.Errorf("failed to delete post %s: %w", postID, err)
	}
	return nil
}

// CreateComment persists a new comment on a post and returns its full detail.
func (c *HTTPClient) CreateComment(ctx context.Context, postID, content string) (*posts.Comment, error) {
	body, err := json.Marshal(updateContentRequest{Content: content})
	if err != nil {
		return nil, fmt.Errorf("failed to encode create comment request: %w", err)
	}
	var comment posts.Comment
	path := "/api/posts/" + url.PathEscape(postID) + "/comments"
	if err := c.do(ctx, http.MethodPost, path, bytes.NewReader(body), "application/json", &comment); err != nil {
		if isNotFoundStatus(err) {
			return nil, posts.ErrPostNotFound
		}
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}
	return &comment, nil
}

// UpdateComment edits a comment's content in place.
func (c *HTTPClient) UpdateComment(ctx context.Context, postID, commentID, content string) (*posts.Comment, error) {
	body, err := json.Marshal(updateContentRequest{Content: content})
	if err != nil {
		return nil, fmt.Errorf("failed to encode update comment request: %w", err)
	}
	var comment posts.Comment
	path := "/api/posts/" + url.PathEscape(postID) + "/comments/" + url.PathEscape(commentID)
	if err := c.do(ctx, http.MethodPatch, path, bytes.NewReader(body), "application/json", &comment); err != nil {
		if isNotFoundStatus(err) {
			return nil, posts.ErrCommentNotFound
		}
		return nil, fmt.Errorf("failed to update comment %s: %w", commentID, err)
	}
	return &comment, nil
}

// DeleteComment deletes a single comment.
func (c *HTTPClient) DeleteComment(ctx context.Context, postID, commentID string) error {
	path := "/api/posts/" + url.PathEscape(postID) + "/comments/" + url.PathEscape(commentID)
	if err := c.do(ctx, http.MethodDelete, path, nil, "", nil); err != nil {
		if isNotFoundStatus(err) {
			return posts.ErrCommentNotFound
		}
		return fmt.Errorf("failed to delete comment %s: %w", commentID, err)
	}
	return nil
}

type toggleReactionResponse struct {
	Reacted bool `json:"reacted"`
}

// ToggleReaction flips the acting user's reaction on a post. The backend
// applies existence-check-then-insert-or-delete semantics; the returned bool
// is the resulting membership.
func (c *HTTPClient) ToggleReaction(ctx context.Context, postID string) (bool, error) {
	var result toggleReactionResponse
	path := "/api/posts/" + url.PathEscape(postID) + "/reactions/toggle"
	if err := c.do(ctx, http.MethodPost, path, nil, "", &result); err != nil {
		if isNotFoundStatus(err) {
			return false, posts.ErrPostNotFound
		}
		return false, fmt.Errorf("failed to toggle reaction on %s: %w", postID, err)
	}
	return result.Reacted, nil
}

// uploadAttachment POSTs raw attachment bytes to object storage and returns
// the persisted media reference.
func (c *HTTPClient) uploadAttachment(ctx context.Context, att media.Attachment) (*mediaRef, error) {
	mime := att.MIME
	if mime == "" {
		mime = http.DetectContentType(att.Data)
	}

	var ref mediaRef
	path := "/api/storage/upload?filename=" + url.QueryEscape(att.Filename)
	if err := c.do(ctx, http.MethodPost, path, bytes.NewReader(att.Data), mime, &ref); err != nil {
		return nil, err
	}
	if ref.ID == "" || ref.URL == "" {
		return nil, errors.New("storage response missing id or url")
	}
	if ref.Kind == "" {
		ref.Kind = string(att.Kind())
	}
	if ref.Filename == "" {
		ref.Filename = att.Filename
	}
	return &ref, nil
}

// hydratePostAuthors fills in missing display names on a post and its comments.
func (c *HTTPClient) hydratePostAuthors(ctx context.Context, post *posts.Post) {
	c.hydrateAuthor(ctx, &post.Author)
	for _, comment := range post.Comments {
		c.hydrateAuthor(ctx, &comment.Author)
	}
}

func (c *HTTPClient) hydrateAuthor(ctx context.Context, author *posts.Author) {
	if c.resolver == nil || author.DisplayName != "" || author.ID == "" {
		return
	}
	author.DisplayName = c.resolver.DisplayName(ctx, author.ID)
}

// statusError carries a non-2xx response for sentinel mapping at call sites.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.status, e.body)
}

func isNotFoundStatus(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.status == http.StatusNotFound
}

// do executes one API request with auth and decodes the JSON response into out.
func (c *HTTPClient) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	token, err := c.tokens.token(ctx)
	if err != nil {
		return fmt.Errorf("failed to obtain access token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Truncate error bodies before they reach logs or error chains
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return &statusError{status: resp.StatusCode, body: string(preview)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
