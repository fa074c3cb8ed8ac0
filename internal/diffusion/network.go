// SPDX-License-Identifier: MIT

// Package diffusion propagates seed heat across a gene interaction
// network with a random-walk-with-restart style update until the heat
// vector converges.
package diffusion

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Network is an undirected weighted graph built from tab-separated edge
// rows. Node indices are assigned in first-seen order.
type Network struct {
	names []string
	idx   map[string]int
	adj   [][]edge
}

type edge struct {
	to     int
	weight float64
}

// ParseSIF reads "geneA<TAB>geneB[<TAB>weight]" rows. A missing weight
// defaults to 1. Blank lines and lines starting with '#' are skipped,
// self-loops are dropped, and any other malformed row is an error.
func ParseSIF(r io.Reader) (*Network, error) {
	n := &Network{idx: make(map[string]int)}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		fields := strings.Split(raw, "\t")
		if len(fields) < 2 || len(fields) > 3 {
			return nil, fmt.Errorf("diffusion: line %d: expected 2 or 3 tab-separated fields, got %d", line, len(fields))
		}
		a, b := strings.TrimSpace(fields[0]), strings.TrimSpace(fields[1])
		if a == "" || b == "" {
			return nil, fmt.Errorf("diffusion: line %d: empty gene name", line)
		}
		w := 1.0
		if len(fields) == 3 {
			var err error
			w, err = strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
			if err != nil {
				return nil, fmt.Errorf("diffusion: line %d: bad weight %q", line, fields[2])
			}
		}
		if a == b {
			continue
		}
		ai, bi := n.node(a), n.node(b)
		n.adj[ai] = append(n.adj[ai], edge{to: bi, weight: w})
		n.adj[bi] = append(n.adj[bi], edge{to: ai, weight: w})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("diffusion: read network: %w", err)
	}
	if len(n.names) == 0 {
		return nil, fmt.Errorf("diffusion: empty network")
	}
	return n, nil
}

func (n *Network) node(name string) int {
	if i, ok := n.idx[name]; ok {
		return i
	}
	i := len(n.names)
	n.idx[name] = i
	n.names = append(n.names, name)
	n.adj = append(n.adj, nil)
	return i
}

// Size returns the number of nodes.
func (n *Network) Size() int { return len(n.names) }

// Has reports whether the gene appears in the network.
func (n *Network) Has(gene string) bool {
	_, ok := n.idx[gene]
	return ok
}
