// Package peer provides the HTTP transport and in-memory collaborator
// stand-ins the snapshot package consumes through its PeerRPCClient,
// PeerDirectory, NodeStateService, and SnapshotFileStore interfaces.
package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"

	"github.com/elgohr-update/porkotron-constellation-1/snapshot"
)

// Client is the production snapshot.PeerRPCClient: it speaks the two
// endpoints Server exposes over plain HTTP, retrying transient transport
// failures through retryablehttp's own backoff before giving up.
type Client struct {
	http *retryablehttp.Client
}

// NewClient builds a client with a bounded retry budget; callers still
// wrap every call in their own 5s-ish deadline (snapshot.peerVerifyTimeout
// does this for them), so retries here are about transient connection
// resets, not about waiting out a slow peer.
func NewClient() *Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 2
	c.RetryWaitMin = 50 * time.Millisecond
	c.RetryWaitMax = 250 * time.Millisecond
	c.Logger = nil
	return &Client{http: c}
}

// VerifySnapshot posts a SnapshotCreated announcement to the peer and
// decodes its SnapshotVerification response.
func (c *Client) VerifySnapshot(ctx context.Context, p snapshot.PeerData, body snapshot.SnapshotCreated) (*snapshot.SnapshotVerification, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot created: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint+"/snapshot/verify", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verify snapshot against %s: %w", p.Endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("verify snapshot against %s: status %d", p.Endpoint, resp.StatusCode)
	}

	var out snapshot.SnapshotVerification
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode verification response: %w", err)
	}
	return &out, nil
}

// RecentSnapshots fetches the peer's recent-snapshot list.
func (c *Client) RecentSnapshots(ctx context.Context, p snapshot.PeerData) ([]snapshot.RecentSnapshot, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, p.Endpoint+"/snapshot/recent", nil)
	if err != nil {
		return nil, fmt.Errorf("build recent-snapshots request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch recent snapshots from %s: %w", p.Endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetch recent snapshots from %s: status %d", p.Endpoint, resp.StatusCode)
	}

	var out []snapshot.RecentSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode recent-snapshots response: %w", err)
	}
	return out, nil
}
