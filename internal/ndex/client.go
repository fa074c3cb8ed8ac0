// SPDX-License-Identifier: MIT

// Package ndex fetches CX networks from an NDEx server and flattens them
// into tab-separated edge rows.
package ndex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client talks to the NDEx v2 REST API.
type Client struct {
	base string
	http *http.Client
}

// New builds a client for the given server. A bare host like
// "public.ndexbio.org" is promoted to http.
func New(server string) *Client {
	if !strings.Contains(server, "://") {
		server = "http://" + server
	}
	return &Client{
		base: strings.TrimRight(server, "/"),
		http: &http.Client{Timeout: 60 * time.Second},
	}
}

// cxNode and cxEdge are the two CX aspects we care about. Everything else
// in the aspect list is skipped.
type cxNode struct {
	ID   int64  `json:"@id"`
	Name string `json:"n"`
}

type cxEdge struct {
	Source int64 `json:"s"`
	Target int64 `json:"t"`
}

// NetworkSIF downloads the network with the given UUID and returns it as
// "name<TAB>name<TAB>1" rows, node ids relabelled to node names. Edges
// referencing an unnamed or unknown node are dropped.
func (c *Client) NetworkSIF(ctx context.Context, uuid string) ([]byte, error) {
	u := c.base + "/v2/network/" + url.PathEscape(uuid)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("ndex: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ndex: fetch network: %w", err)
	}
	defer res.Body.Close() //nolint:errcheck
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ndex: fetch network %s: unexpected status %d", uuid, res.StatusCode)
	}

	var aspects []map[string]json.RawMessage
	if err := json.NewDecoder(res.Body).Decode(&aspects); err != nil {
		return nil, fmt.Errorf("ndex: decode CX: %w", err)
	}

	names := make(map[int64]string)
	var edges []cxEdge
	for _, aspect := range aspects {
		if raw, ok := aspect["nodes"]; ok {
			var nodes []cxNode
			if err := json.Unmarshal(raw, &nodes); err != nil {
				return nil, fmt.Errorf("ndex: decode nodes aspect: %w", err)
			}
			for _, n := range nodes {
				if n.Name != "" {
					names[n.ID] = n.Name
				}
			}
		}
		if raw, ok := aspect["edges"]; ok {
			var es []cxEdge
			if err := json.Unmarshal(raw, &es); err != nil {
				return nil, fmt.Errorf("ndex: decode edges aspect: %w", err)
			}
			edges = append(edges, es...)
		}
	}

	var buf bytes.Buffer
	kept := 0
	for _, e := range edges {
		s, ok := names[e.Source]
		if !ok {
			continue
		}
		t, ok := names[e.Target]
		if !ok {
			continue
		}
		buf.WriteString(s)
		buf.WriteByte('\t')
		buf.WriteString(t)
		buf.WriteByte('\t')
		buf.WriteString(strconv.Itoa(1))
		buf.WriteByte('\n')
		kept++
	}
	if kept == 0 {
		return nil, fmt.Errorf("ndex: network %s has no usable edges", uuid)
	}
	return buf.Bytes(), nil
}
