package topology

import (
	"context"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/constellation-testbed/core"
)

// NewPST returns the partitioned spanning tree protocol. Satellites are split
// into contiguous ranges processed in parallel; within a range every
// satellite greedily takes its shortest link that joins two components and
// keeps both endpoints below MaxDegree. The result is a forest that
// approximates the MST.
func NewPST(net *core.Network, cfg Config, obs Observer) *Tree {
	cfg = cfg.withDefaults()
	return newTree("pst", net, cfg, obs, func(ctx context.Context, _ core.NodeID, candidates []weightedLink) (linkSet, error) {
		return partitioned(ctx, candidates, cfg.Workers, cfg.MaxDegree)
	})
}

func partitioned(ctx context.Context, candidates []weightedLink, workers, maxDegree int) (linkSet, error) {
	adjacent := make(map[core.NodeID][]weightedLink)
	for _, l := range candidates {
		adjacent[l.a] = append(adjacent[l.a], l)
		adjacent[l.b] = append(adjacent[l.b], l)
	}
	satellites := make([]core.NodeID, 0, len(adjacent))
	for id := range adjacent {
		satellites = append(satellites, id)
	}
	slices.Sort(satellites)

	var (
		mu       sync.Mutex
		uf       = newUnionFind(len(satellites))
		degree   = make(map[core.NodeID]int, len(satellites))
		accepted = newLinkSet()
	)

	size := (len(satellites) + workers - 1) / workers
	if size == 0 {
		return accepted, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < len(satellites); start += size {
		part := satellites[start:min(start+size, len(satellites))]
		g.Go(func() error {
			local := make([][]weightedLink, len(part))
			for i, sat := range part {
				links := slices.Clone(adjacent[sat])
				slices.SortFunc(links, compareWeighted)
				local[i] = links
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			for i, sat := range part {
				for _, l := range local[i] {
					other := l.a
					if other == sat {
						other = l.b
					}
					if degree[sat] >= maxDegree || degree[other] >= maxDegree {
						continue
					}
					if !uf.union(sat, other) {
						continue
					}
					degree[sat]++
					degree[other]++
					accepted.add(l.id)
					break
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return accepted, nil
}
