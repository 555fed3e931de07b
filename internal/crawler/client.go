package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"
)

var (
	// ErrBadStatus is returned when a peer answers with a non-200 status
	ErrBadStatus = errors.New("unexpected HTTP status")
	// ErrNotArray is returned when a /nodes body is not a JSON array of strings
	ErrNotArray = errors.New("peer listing is not a JSON array of strings")
	// ErrNotOK is returned when a /health body does not carry status "OK"
	ErrNotOK = errors.New("health status is not OK")
)

const userAgent = "peer-weaver"

// Client speaks the peer wire protocol over a colly collector.
// Every call clones the base collector so callbacks never cross requests.
type Client struct {
	collector *colly.Collector
}

// NewClient creates a synchronous client with a per-request timeout
func NewClient(timeout time.Duration) *Client {
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.UserAgent(userAgent),
	)
	c.SetRequestTimeout(timeout)

	return &Client{collector: c}
}

// Response is the part of a peer answer the callers care about
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// get performs one GET and returns the response or the failure reason
func (c *Client) get(ctx context.Context, url string) (*Response, error) {
	return c.do(ctx, url, func(col *colly.Collector) error {
		return col.Visit(url)
	})
}

func (c *Client) do(ctx context.Context, url string, send func(*colly.Collector) error) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	col := c.collector.Clone()

	var resp *Response
	status := 0
	col.OnResponse(func(r *colly.Response) {
		resp = &Response{
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
			Body:        r.Body,
		}
	})
	col.OnError(func(r *colly.Response, _ error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	if err := send(col); err != nil {
		if status != 0 {
			return nil, fmt.Errorf("%w %d from %s", ErrBadStatus, status, url)
		}
		return nil, fmt.Errorf("request to %s failed: %w", url, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("no response from %s", url)
	}
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("%w %d from %s", ErrBadStatus, resp.StatusCode, url)
	}

	return resp, nil
}

// Health checks <peer>/health and returns nil only for {"status":"OK"}
func (c *Client) Health(ctx context.Context, peer string) error {
	resp, err := c.get(ctx, peer+"/health")
	if err != nil {
		return err
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return fmt.Errorf("bad health payload from %s: %w", peer, err)
	}
	if body.Status != "OK" {
		return fmt.Errorf("%w: got %q from %s", ErrNotOK, body.Status, peer)
	}

	return nil
}

// Nodes fetches the raw peer listing advertised by <peer>/nodes
func (c *Client) Nodes(ctx context.Context, peer string) ([]string, error) {
	resp, err := c.get(ctx, peer+"/nodes")
	if err != nil {
		return nil, err
	}

	var urls []string
	if err := json.Unmarshal(resp.Body, &urls); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotArray, peer, err)
	}
	if urls == nil {
		return nil, fmt.Errorf("%w: %s returned null", ErrNotArray, peer)
	}

	return urls, nil
}

// ProfileImage downloads <peer>/profile.png along with its declared content type
func (c *Client) ProfileImage(ctx context.Context, peer string) ([]byte, string, error) {
	resp, err := c.get(ctx, peer+"/profile.png")
	if err != nil {
		return nil, "", err
	}
	return resp.Body, resp.ContentType, nil
}

// Register asks target to add self to its live registry (POST /nodes)
func (c *Client) Register(ctx context.Context, target, self string) error {
	payload, err := json.Marshal(map[string]string{"url": self})
	if err != nil {
		return err
	}

	_, err = c.do(ctx, target+"/nodes", func(col *colly.Collector) error {
		col.OnRequest(func(r *colly.Request) {
			r.Headers.Set("Content-Type", "application/json")
		})
		return col.PostRaw(target+"/nodes", payload)
	})
	return err
}
