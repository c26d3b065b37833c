package client

import (
	"context"
	"fmt"

	"github.com/kjstillabower/local-briefing/internal/circuitbreaker"
	"github.com/kjstillabower/local-briefing/internal/models"
)

// DefaultNewsURL is the public posts feed used for headlines.
const DefaultNewsURL = "https://dummyjson.com/posts"

type NewsClient interface {
	GetPosts(ctx context.Context) ([]models.NewsPost, error)
}

// PostsClient reads headlines from a dummyjson-style posts endpoint.
type PostsClient struct {
	apiURL   string
	maxPosts int
	upstream *upstream
}

// NewPostsClient returns a client for apiURL. maxPosts limits the returned posts; 0 keeps all.
func NewPostsClient(apiURL string, maxPosts int, opts Options) *PostsClient {
	if apiURL == "" {
		apiURL = DefaultNewsURL
	}
	if maxPosts < 0 {
		maxPosts = 0
	}
	return &PostsClient{
		apiURL:   apiURL,
		maxPosts: maxPosts,
		upstream: newUpstream(string(models.SourceNews), opts),
	}
}

func (c *PostsClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.upstream.breaker = cb
}

type postsResponse struct {
	Posts []models.NewsPost `json:"posts"`
	Total int               `json:"total"`
}

// GetPosts fetches the posts list. An absent "posts" field is an API error; an empty list is not.
func (c *PostsClient) GetPosts(ctx context.Context) ([]models.NewsPost, error) {
	var resp postsResponse
	if err := c.upstream.getJSON(ctx, c.apiURL, &resp); err != nil {
		return nil, err
	}
	if resp.Posts == nil {
		return nil, c.upstream.fail(fmt.Errorf("%w: posts not found in response", ErrAPI))
	}

	posts := resp.Posts
	if c.maxPosts > 0 && len(posts) > c.maxPosts {
		posts = posts[:c.maxPosts]
	}
	return posts, nil
}
