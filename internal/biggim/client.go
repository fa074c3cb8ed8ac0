// SPDX-License-Identifier: MIT

// Package biggim queries the BigGIM interaction service. A query is
// asynchronous on the server side: submit, poll until it leaves the
// "running" state, then download and concatenate the CSV shards it
// produced.
package biggim

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultTable is used when the metadata endpoint does not mark one.
	DefaultTable = "BigGIM_70_v1"

	queryLimit = 400000000
)

// Client talks to the BigGIM REST API.
type Client struct {
	base      string
	threshold float64
	http      *http.Client
	poll      *rate.Limiter
}

// New builds a client against base (e.g. "http://biggim.ncats.io/api").
// Rows whose value in the queried column is at or below threshold are
// excluded server-side.
func New(base string, threshold float64) *Client {
	return &Client{
		base:      strings.TrimRight(base, "/"),
		threshold: threshold,
		http:      &http.Client{Timeout: 60 * time.Second},
		poll:      rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

type queryResponse struct {
	RequestID string `json:"request_id"`
}

type statusResponse struct {
	Status     string   `json:"status"`
	RequestURI []string `json:"request_uri"`
	Message    string   `json:"message"`
}

type tableMeta struct {
	Name    string `json:"name"`
	Default bool   `json:"default"`
}

// ColumnSIF runs a query restricted to the given column and returns the
// matching interactions as "gene1<TAB>gene2<TAB>value" rows.
func (c *Client) ColumnSIF(ctx context.Context, column string) ([]byte, error) {
	table, err := c.defaultTable(ctx)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("table", table)
	q.Set("columns", column)
	q.Set("restriction_gt", fmt.Sprintf("%s,%g", column, c.threshold))
	q.Set("limit", fmt.Sprintf("%d", queryLimit))

	var submit queryResponse
	if err := c.getJSON(ctx, "/biggim/query?"+q.Encode(), &submit); err != nil {
		return nil, fmt.Errorf("biggim: submit query: %w", err)
	}
	if submit.RequestID == "" {
		return nil, fmt.Errorf("biggim: submit query: empty request id")
	}

	status, err := c.await(ctx, submit.RequestID)
	if err != nil {
		return nil, err
	}

	var sif bytes.Buffer
	for _, uri := range status.RequestURI {
		if err := c.appendShard(ctx, uri, column, &sif); err != nil {
			return nil, err
		}
	}
	if sif.Len() == 0 {
		return nil, fmt.Errorf("biggim: column %s matched no interactions", column)
	}
	return sif.Bytes(), nil
}

// await polls the query status, paced by the client limiter, until it
// leaves the running state.
func (c *Client) await(ctx context.Context, requestID string) (*statusResponse, error) {
	for {
		if err := c.poll.Wait(ctx); err != nil {
			return nil, fmt.Errorf("biggim: await query: %w", err)
		}
		var status statusResponse
		if err := c.getJSON(ctx, "/biggim/status/"+url.PathEscape(requestID), &status); err != nil {
			return nil, fmt.Errorf("biggim: query status: %w", err)
		}
		if status.Status == "running" {
			continue
		}
		if status.Status != "complete" {
			return nil, fmt.Errorf("biggim: query %s ended with status %q: %s", requestID, status.Status, status.Message)
		}
		return &status, nil
	}
}

// defaultTable asks the metadata endpoint for the default table and falls
// back to DefaultTable when none is flagged.
func (c *Client) defaultTable(ctx context.Context) (string, error) {
	var tables []tableMeta
	if err := c.getJSON(ctx, "/metadata/table", &tables); err != nil {
		return "", fmt.Errorf("biggim: list tables: %w", err)
	}
	for _, t := range tables {
		if t.Default {
			return t.Name, nil
		}
	}
	return DefaultTable, nil
}

// appendShard downloads one CSV shard and appends its rows as SIF lines.
// Shards carry a header of Gene1, Gene2 and the queried column; column
// order is not guaranteed.
func (c *Client) appendShard(ctx context.Context, uri, column string, out *bytes.Buffer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return fmt.Errorf("biggim: build shard request: %w", err)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("biggim: fetch shard: %w", err)
	}
	defer res.Body.Close() //nolint:errcheck
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("biggim: fetch shard %s: unexpected status %d", uri, res.StatusCode)
	}

	r := csv.NewReader(res.Body)
	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("biggim: shard %s: read header: %w", uri, err)
	}
	g1, g2, val := -1, -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case "Gene1":
			g1 = i
		case "Gene2":
			g2 = i
		case column:
			val = i
		}
	}
	if g1 < 0 || g2 < 0 || val < 0 {
		return fmt.Errorf("biggim: shard %s: missing Gene1/Gene2/%s columns", uri, column)
	}

	for {
		row, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("biggim: shard %s: read row: %w", uri, err)
		}
		out.WriteString(row[g1])
		out.WriteByte('\t')
		out.WriteString(row[g2])
		out.WriteByte('\t')
		out.WriteString(row[val])
		out.WriteByte('\n')
	}
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close() //nolint:errcheck
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", res.StatusCode)
	}
	return json.NewDecoder(res.Body).Decode(v)
}
