package chain

import (
	"context"
	"errors"

	"github.com/satindergrewal/clipchain/internal/clip"
)

// Node is one position in a walked chain. A missing node is a link target
// that is no longer indexed; its Link is zero.
type Node struct {
	ID      clip.ID
	Missing bool
	Link    Link
}

// Chain is the ordered result of a walk.
type Chain struct {
	Nodes  []Node
	Cyclic bool
}

// IDs returns the node identifiers in chain order.
func (c Chain) IDs() []clip.ID {
	ids := make([]clip.ID, len(c.Nodes))
	for i, n := range c.Nodes {
		ids[i] = n.ID
	}
	return ids
}

// Walk returns the chain through id: before links are followed back to the
// head, then after links forward to the tail. Each clip is visited at most
// once, so cyclic links terminate the walk and set Cyclic.
func (x *Index) Walk(ctx context.Context, id clip.ID) (Chain, error) {
	start, err := x.Get(ctx, id)
	if err != nil {
		return Chain{}, err
	}

	visited := map[clip.ID]bool{id: true}
	var chain Chain

	back, cyclic, err := x.follow(ctx, start, visited, func(l Link) clip.ID { return l.Before })
	if err != nil {
		return Chain{}, err
	}
	chain.Cyclic = cyclic

	forward, cyclic, err := x.follow(ctx, start, visited, func(l Link) clip.ID { return l.After })
	if err != nil {
		return Chain{}, err
	}
	chain.Cyclic = chain.Cyclic || cyclic

	chain.Nodes = make([]Node, 0, len(back)+1+len(forward))
	for i := len(back) - 1; i >= 0; i-- {
		chain.Nodes = append(chain.Nodes, back[i])
	}
	chain.Nodes = append(chain.Nodes, Node{ID: id, Link: start})
	chain.Nodes = append(chain.Nodes, forward...)
	return chain, nil
}

func (x *Index) follow(ctx context.Context, from Link, visited map[clip.ID]bool, next func(Link) clip.ID) ([]Node, bool, error) {
	var nodes []Node
	for cur := from; next(cur) != ""; {
		id := next(cur)
		if visited[id] {
			return nodes, true, nil
		}
		visited[id] = true

		link, err := x.Get(ctx, id)
		if errors.Is(err, clip.ErrNotFound) {
			return append(nodes, Node{ID: id, Missing: true}), false, nil
		}
		if err != nil {
			return nil, false, err
		}
		nodes = append(nodes, Node{ID: id, Link: link})
		cur = link
	}
	return nodes, false, nil
}
