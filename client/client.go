// Package client is a small HTTP client for hashdbd.
package client

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-resty/resty/v2"
)

const (
	entriesEndpoint = "/db"
	statEndpoint    = "/stat"
)

// Stat - Statistics reported by the server
type Stat struct {
	Records      int64 `json:"records"`
	FileSize     int64 `json:"fileSize"`
	Buckets      int64 `json:"buckets"`
	UsedBuckets  int64 `json:"usedBuckets"`
	FreeBlocks   int64 `json:"freeBlocks"`
	FreeBytes    int64 `json:"freeBytes"`
	AlignPow     int8  `json:"alignPow"`
	FreeBlockPow int8  `json:"freeBlockPow"`
	Options      uint8 `json:"options"`
	Writable     bool  `json:"writable"`
	Recovered    bool  `json:"recovered"`
}

type keysResponse struct {
	Keys      []string `json:"keys"`
	Truncated bool     `json:"truncated"`
}

// StatusError - Custom error holding an unexpected HTTP status and the body returned with it
type StatusError struct {
	Status int
	Body   string
}

// Error - Used to notify that the server answered with an unexpected status
func (E StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", E.Status, E.Body)
}

// Client - Client of a hashdbd server
type Client struct {
	client    *resty.Client
	serverUrl string
}

// New - Returns a pointer to a new Client for the server at serverUrl
func New(serverUrl string) *Client {
	return &Client{
		client:    resty.New(),
		serverUrl: serverUrl,
	}
}

func (c *Client) entryUri(key string) string {
	return c.serverUrl + entriesEndpoint + "/" + url.PathEscape(key)
}

// Get - Returns the value of key, found is false if the key doesn't exist
func (c *Client) Get(key string) (value []byte, found bool, err error) {
	resp, err := c.client.R().Get(c.entryUri(key))
	if err != nil {
		return
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		value, found = resp.Body(), true
	case http.StatusNotFound:
	default:
		err = statusError(resp)
	}

	return
}

// Put - Stores value under key
func (c *Client) Put(key string, value []byte) (err error) {
	resp, err := c.client.R().SetBody(value).Put(c.entryUri(key))
	if err != nil {
		return
	}
	if resp.StatusCode() != http.StatusNoContent {
		err = statusError(resp)
	}

	return
}

// PutKeep - Stores value under key unless the key exists, stored is false if it did
func (c *Client) PutKeep(key string, value []byte) (stored bool, err error) {
	resp, err := c.client.R().SetBody(value).SetQueryParam("keep", "1").Post(c.entryUri(key))
	if err != nil {
		return
	}

	switch resp.StatusCode() {
	case http.StatusCreated:
		stored = true
	case http.StatusConflict:
	default:
		err = statusError(resp)
	}

	return
}

// Append - Appends value to the value of key
func (c *Client) Append(key string, value []byte) (err error) {
	resp, err := c.client.R().SetBody(value).Patch(c.entryUri(key))
	if err != nil {
		return
	}
	if resp.StatusCode() != http.StatusNoContent {
		err = statusError(resp)
	}

	return
}

// Remove - Removes key, removed is false if the key didn't exist
func (c *Client) Remove(key string) (removed bool, err error) {
	resp, err := c.client.R().Delete(c.entryUri(key))
	if err != nil {
		return
	}

	switch resp.StatusCode() {
	case http.StatusNoContent:
		removed = true
	case http.StatusNotFound:
	default:
		err = statusError(resp)
	}

	return
}

// Keys - Returns up to limit keys, zero for the server's max, truncated is true if there were more
func (c *Client) Keys(limit int) (keys []string, truncated bool, err error) {
	var result keysResponse
	req := c.client.R().SetResult(&result)
	if limit > 0 {
		req.SetQueryParam("limit", fmt.Sprint(limit))
	}

	resp, err := req.Get(c.serverUrl + entriesEndpoint)
	if err != nil {
		return
	}
	if resp.StatusCode() != http.StatusOK {
		err = statusError(resp)
		return
	}

	return result.Keys, result.Truncated, nil
}

// Stat - Returns the server's statistics
func (c *Client) Stat() (stat Stat, err error) {
	resp, err := c.client.R().SetResult(&stat).Get(c.serverUrl + statEndpoint)
	if err != nil {
		return
	}
	if resp.StatusCode() != http.StatusOK {
		err = statusError(resp)
	}

	return
}

func statusError(resp *resty.Response) error {
	return StatusError{Status: resp.StatusCode(), Body: resp.String()}
}
