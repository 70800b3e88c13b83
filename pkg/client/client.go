// Package client talks to the disk API over HTTP.
package client

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/faciam-dev/gcdisk/internal/api/schema"
	"github.com/faciam-dev/gcdisk/internal/paging"
)

// Client is a thin REST client for the disk API.
type Client struct {
	base string
	http *resty.Client
}

type Option func(*Client)

// WithToken sets the bearer token sent with every request.
func WithToken(tok string) Option {
	return func(c *Client) {
		c.http.SetAuthToken(tok)
	}
}

// WithResty replaces the underlying resty client.
func WithResty(r *resty.Client) Option {
	return func(c *Client) {
		c.http = r
	}
}

// New returns a client for the API at base.
func New(base string, opts ...Option) *Client {
	c := &Client{base: strings.TrimSuffix(base, "/"), http: resty.New()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// APIError is the problem document the API returns on failure.
type APIError struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Errors []struct {
		Location string `json:"location"`
		Message  string `json:"message"`
	} `json:"errors"`
}

func (e *APIError) Error() string {
	msg := e.Detail
	if msg == "" {
		msg = e.Title
	}
	if len(e.Errors) == 0 {
		return fmt.Sprintf("%d: %s", e.Status, msg)
	}
	parts := make([]string, 0, len(e.Errors))
	for _, d := range e.Errors {
		parts = append(parts, d.Location+": "+d.Message)
	}
	return fmt.Sprintf("%d: %s (%s)", e.Status, msg, strings.Join(parts, "; "))
}

func (c *Client) check(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if !resp.IsError() {
		return nil
	}
	if apiErr, ok := resp.Error().(*APIError); ok && apiErr != nil && (apiErr.Title != "" || apiErr.Detail != "") {
		if apiErr.Status == 0 {
			apiErr.Status = resp.StatusCode()
		}
		return apiErr
	}
	return fmt.Errorf("%s", resp.Status())
}

// Login exchanges credentials for an access token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var out struct {
		AccessToken string `json:"access_token"`
	}
	resp, err := c.http.R().SetContext(ctx).
		SetBody(map[string]string{"email": email, "password": password}).
		SetResult(&out).SetError(&APIError{}).
		Post(c.base + "/v1/auth/login")
	if err := c.check(resp, err); err != nil {
		return "", err
	}
	return out.AccessToken, nil
}

// DiskList is one page of disks.
type DiskList struct {
	Data []schema.DiskListItem `json:"data"`
	Meta paging.Meta           `json:"meta"`
}

// ListOptions filters ListDisks. Zero values are not sent.
type ListOptions struct {
	Name    string
	Type    string
	Page    int
	PerPage int
	SortBy  string
}

// ListDisks searches disks.
func (c *Client) ListDisks(ctx context.Context, o ListOptions) (DiskList, error) {
	var out DiskList
	req := c.http.R().SetContext(ctx).SetResult(&out).SetError(&APIError{})
	set := func(k, v string) {
		if v != "" {
			req.SetQueryParam(k, v)
		}
	}
	set("name", o.Name)
	set("type", o.Type)
	set("sortBy", o.SortBy)
	if o.Page > 0 {
		set("page", strconv.Itoa(o.Page))
	}
	if o.PerPage > 0 {
		set("perPage", strconv.Itoa(o.PerPage))
	}
	resp, err := req.Get(c.base + "/v1/disks")
	return out, c.check(resp, err)
}

// DiskType fetches a disk type with its rules and widgets.
func (c *Client) DiskType(ctx context.Context, code string) (schema.DiskTypeDetail, error) {
	var out schema.DiskTypeDetail
	resp, err := c.http.R().SetContext(ctx).
		SetPathParam("code", code).
		SetResult(&out).SetError(&APIError{}).
		Get(c.base + "/v1/disk-types/{code}")
	return out, c.check(resp, err)
}
