package reviewboard

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// ReviewRequest is a single review request as returned by the Web API.
type ReviewRequest struct {
	ID          int    `json:"id"`
	Summary     string `json:"summary"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Public      bool   `json:"public"`
	Branch      string `json:"branch"`
	TimeAdded   string `json:"time_added"`
	LastUpdated string `json:"last_updated"`
	AbsoluteURL string `json:"absolute_url"`
	Links       struct {
		Submitter struct {
			Title string `json:"title"`
		} `json:"submitter"`
	} `json:"links"`
}

// Diff is one uploaded diff revision on a review request.
type Diff struct {
	ID        int    `json:"id"`
	Revision  int    `json:"revision"`
	Name      string `json:"name"`
	Timestamp string `json:"timestamp"`
}

// Review is a review posted on a review request.
type Review struct {
	ID      int    `json:"id"`
	BodyTop string `json:"body_top"`
	ShipIt  bool   `json:"ship_it"`
	Public  bool   `json:"public"`
}

// ListOptions filters ListReviewRequests.
type ListOptions struct {
	Status     string // pending, submitted, discarded, all
	FromUser   string
	MaxResults int
}

// ListReviewRequests returns review requests matching opts.
func (c *Client) ListReviewRequests(
	ctx context.Context,
	opts ListOptions,
) ([]ReviewRequest, int, error) {
	q := url.Values{}
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	if opts.FromUser != "" {
		q.Set("from-user", opts.FromUser)
	}
	if opts.MaxResults > 0 {
		q.Set("max-results", strconv.Itoa(opts.MaxResults))
	}

	var resp struct {
		ReviewRequests []ReviewRequest `json:"review_requests"`
		TotalResults   int             `json:"total_results"`
	}
	if err := c.get(ctx, "/api/review-requests/", q, &resp); err != nil {
		return nil, 0, fmt.Errorf("listing review requests: %w", err)
	}
	return resp.ReviewRequests, resp.TotalResults, nil
}

// GetReviewRequest returns a single review request by id.
func (c *Client) GetReviewRequest(ctx context.Context, id int) (*ReviewRequest, error) {
	var resp struct {
		ReviewRequest ReviewRequest `json:"review_request"`
	}
	path := fmt.Sprintf("/api/review-requests/%d/", id)
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("getting review request %d: %w", id, err)
	}
	return &resp.ReviewRequest, nil
}

// GetDiffs returns the diff revisions uploaded to a review request.
func (c *Client) GetDiffs(ctx context.Context, id int) ([]Diff, error) {
	var resp struct {
		Diffs []Diff `json:"diffs"`
	}
	path := fmt.Sprintf("/api/review-requests/%d/diffs/", id)
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("getting diffs for review request %d: %w", id, err)
	}
	return resp.Diffs, nil
}

// SearchResult is the subset of the search resource the tools expose.
type SearchResult struct {
	ReviewRequests []ReviewRequest `json:"review_requests"`
	Users          []struct {
		Username string `json:"username"`
		FullName string `json:"fullname"`
	} `json:"users"`
}

// Search performs a full-text search across review requests and users.
func (c *Client) Search(ctx context.Context, query string, maxResults int) (*SearchResult, error) {
	q := url.Values{}
	q.Set("q", query)
	if maxResults > 0 {
		q.Set("max-results", strconv.Itoa(maxResults))
	}

	var resp struct {
		Search SearchResult `json:"search"`
	}
	if err := c.get(ctx, "/api/search/", q, &resp); err != nil {
		return nil, fmt.Errorf("searching for %q: %w", query, err)
	}
	return &resp.Search, nil
}

// CreateReview posts a review on a review request. When publish is false the
// review is left as a draft.
func (c *Client) CreateReview(
	ctx context.Context,
	id int,
	bodyTop string,
	shipIt, publish bool,
) (*Review, error) {
	form := url.Values{}
	form.Set("body_top", bodyTop)
	form.Set("ship_it", strconv.FormatBool(shipIt))
	form.Set("public", strconv.FormatBool(publish))

	var resp struct {
		Review Review `json:"review"`
	}
	path := fmt.Sprintf("/api/review-requests/%d/reviews/", id)
	if err := c.postForm(ctx, path, form, &resp); err != nil {
		return nil, fmt.Errorf("creating review on request %d: %w", id, err)
	}
	return &resp.Review, nil
}
