// SPDX-License-Identifier: MIT

package diffusion

import (
	"fmt"
	"math"
)

const (
	// Tolerance is the L1 convergence threshold between iterations.
	Tolerance = 1e-6
	// MaxIterations caps the walk on networks that converge slowly.
	MaxIterations = 1000
)

// Result is the converged heat per gene plus how many iterations it took.
type Result struct {
	Scores     map[string]float64
	Iterations int
}

// Run scores every gene in the network by restarting a random walk at the
// seed genes. Each step mixes the degree-normalised neighbourhood heat
// with the restart vector:
//
//	h' = (1-alpha) * W * h + alpha * h0
//
// where h0 is uniform over the seeds. Seeds absent from the network are
// ignored; if none remain the run fails.
func Run(n *Network, seeds []string, alpha float64) (*Result, error) {
	if alpha <= 0 || alpha >= 1 {
		return nil, fmt.Errorf("diffusion: alpha must be in (0, 1), got %g", alpha)
	}
	restart := make([]float64, n.Size())
	present := 0
	for _, s := range seeds {
		if i, ok := n.idx[s]; ok {
			restart[i] = 1
			present++
		}
	}
	if present == 0 {
		return nil, fmt.Errorf("diffusion: none of the %d seeds found in network", len(seeds))
	}
	for i := range restart {
		restart[i] /= float64(present)
	}

	// row-normalise edge weights once
	norm := make([][]edge, n.Size())
	for i, edges := range n.adj {
		var total float64
		for _, e := range edges {
			total += e.weight
		}
		if total == 0 {
			continue
		}
		norm[i] = make([]edge, len(edges))
		for j, e := range edges {
			norm[i][j] = edge{to: e.to, weight: e.weight / total}
		}
	}

	heat := make([]float64, n.Size())
	copy(heat, restart)
	next := make([]float64, n.Size())

	iters := 0
	for iters < MaxIterations {
		iters++
		for i := range next {
			next[i] = alpha * restart[i]
		}
		for i, edges := range norm {
			if heat[i] == 0 {
				continue
			}
			spread := (1 - alpha) * heat[i]
			for _, e := range edges {
				next[e.to] += spread * e.weight
			}
		}
		var delta float64
		for i := range heat {
			delta += math.Abs(next[i] - heat[i])
		}
		heat, next = next, heat
		if delta < Tolerance {
			break
		}
	}

	scores := make(map[string]float64, n.Size())
	for name, i := range n.idx {
		scores[name] = heat[i]
	}
	return &Result{Scores: scores, Iterations: iters}, nil
}
