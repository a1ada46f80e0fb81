package gerrit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kilupskalvis/patchtroll/internal/models"
)

// xssiPrefix guards every JSON response body from Gerrit.
const xssiPrefix = ")]}'"

// CodeReviewLabel is the label patchtroll votes on.
const CodeReviewLabel = "Code-Review"

// queryOptions are requested for every change so reviews can run without a
// second round trip.
var queryOptions = []string{"CURRENT_REVISION", "CURRENT_COMMIT", "MESSAGES"}

// Service defines the review operations patchtroll needs from Gerrit.
type Service interface {
	QueryChanges(ctx context.Context, q Query) ([]*models.Change, error)
	GetChange(ctx context.Context, id string) (*models.Change, error)
	PostReview(ctx context.Context, c *models.Change, in *ReviewInput) error
}

// Query selects changes. Zero fields are left out of the search.
type Query struct {
	Status  string
	Message string
	After   time.Time
	Project string
}

// String renders q in Gerrit search syntax.
func (q Query) String() string {
	var terms []string
	if q.Status != "" {
		terms = append(terms, "status:"+q.Status)
	}
	if q.Message != "" {
		terms = append(terms, fmt.Sprintf("message:%q", q.Message))
	}
	if !q.After.IsZero() {
		terms = append(terms, fmt.Sprintf("after:%q", q.After.UTC().Format("2006-01-02")))
	}
	if q.Project != "" {
		terms = append(terms, "project:"+q.Project)
	}
	return strings.Join(terms, " ")
}

// Client implements Service over HTTP.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

// NewClient creates a Gerrit client. Requests are authenticated with HTTP basic
// auth under the /a/ prefix when username is set.
func NewClient(baseURL, username, password string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		username:   username,
		password:   password,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

// BaseURL returns the server URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) apiURL(path string) string {
	if c.username != "" {
		return c.baseURL + "/a" + path
	}
	return c.baseURL + path
}

func (c *Client) do(ctx context.Context, method, url string, body io.Reader, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}

	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, url string, reqBody, respBody interface{}) error {
	var body io.Reader
	headers := map[string]string{}

	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
		headers["Content-Type"] = "application/json; charset=UTF-8"
	}

	resp, err := c.do(ctx, method, url, body, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if respBody != nil {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		data = bytes.TrimPrefix(data, []byte(xssiPrefix))
		if err := json.Unmarshal(data, respBody); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

// QueryChanges returns every change matching q, following Gerrit's paging.
func (c *Client) QueryChanges(ctx context.Context, q Query) ([]*models.Change, error) {
	var changes []*models.Change
	start := 0
	for {
		params := url.Values{}
		params.Set("q", q.String())
		for _, o := range queryOptions {
			params.Add("o", o)
		}
		if start > 0 {
			params.Set("S", strconv.Itoa(start))
		}

		var page []*ChangeInfo
		if err := c.doJSON(ctx, "GET", c.apiURL("/changes/?"+params.Encode()), nil, &page); err != nil {
			return nil, fmt.Errorf("query changes %q: %w", q.String(), err)
		}
		for _, ci := range page {
			changes = append(changes, ci.toModel(c.baseURL))
		}
		if len(page) == 0 || !page[len(page)-1].MoreChanges {
			return changes, nil
		}
		start += len(page)
	}
}

// GetChange returns a single change by number or full id.
func (c *Client) GetChange(ctx context.Context, id string) (*models.Change, error) {
	params := url.Values{}
	for _, o := range queryOptions {
		params.Add("o", o)
	}

	var ci ChangeInfo
	if err := c.doJSON(ctx, "GET", c.apiURL("/changes/"+url.PathEscape(id)+"?"+params.Encode()), nil, &ci); err != nil {
		return nil, fmt.Errorf("get change %s: %w", id, err)
	}
	return ci.toModel(c.baseURL), nil
}

// PostReview posts in against the current revision of ch.
func (c *Client) PostReview(ctx context.Context, ch *models.Change, in *ReviewInput) error {
	// Gerrit ids arrive already escaped; the number needs no escaping.
	id := ch.ID
	if ch.Number != 0 {
		id = strconv.Itoa(ch.Number)
	}
	rev := "current"
	if ch.Current != nil && ch.Current.SHA != "" {
		rev = ch.Current.SHA
	}

	path := fmt.Sprintf("/changes/%s/revisions/%s/review", id, rev)
	var res ReviewResult
	if err := c.doJSON(ctx, "POST", c.apiURL(path), in, &res); err != nil {
		return fmt.Errorf("post review on %d: %w", ch.Number, err)
	}
	return nil
}

// RemoteError is a non-success HTTP reply from Gerrit.
type RemoteError struct {
	Status  int
	Message string
	// RetryAfter is the server's requested pause on a throttled reply.
	RetryAfter time.Duration
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("gerrit error (%d): %s", e.Status, e.Message)
}

// decodeError reads Gerrit's plain text error body.
func decodeError(resp *http.Response) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(data))
	if err != nil || msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	re := &RemoteError{Status: resp.StatusCode, Message: msg}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		re.RetryAfter = time.Duration(secs) * time.Second
	}
	return re
}
