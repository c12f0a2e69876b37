package peers

import (
	"sort"

	"github.com/libp2p/go-libp2p/core/peer"
)

// SelectionPolicy picks one peer out of the eligible candidates. Candidates are snapshots, so
// a policy cannot alter pool state. Candidates are passed in insertion order.
type SelectionPolicy interface {
	Select(candidates []PeerInfo) (peer.ID, bool)
}

// PolicyFunc adapts a function to SelectionPolicy.
type PolicyFunc func(candidates []PeerInfo) (peer.ID, bool)

func (f PolicyFunc) Select(candidates []PeerInfo) (peer.ID, bool) {
	return f(candidates)
}

// ByTotalDifficulty prefers non-weak peers, then the highest total difficulty, then the peer
// that has been awake the longest. It is the default policy.
var ByTotalDifficulty SelectionPolicy = PolicyFunc(func(candidates []PeerInfo) (peer.ID, bool) {
	return best(candidates, func(a, b PeerInfo) bool {
		if a.Weak != b.Weak {
			return !a.Weak
		}
		if c := a.TotalDifficulty.Cmp(b.TotalDifficulty); c != 0 {
			return c > 0
		}
		return awakeLonger(a, b)
	})
})

// LeastRecentlyUsed prefers the peer that was returned to the pool the longest time ago. Peers
// that were never borrowed come first. Weak peers come last.
var LeastRecentlyUsed SelectionPolicy = PolicyFunc(func(candidates []PeerInfo) (peer.ID, bool) {
	return best(candidates, func(a, b PeerInfo) bool {
		if a.Weak != b.Weak {
			return !a.Weak
		}
		if !a.LastFreed.Equal(b.LastFreed) {
			return a.LastFreed.Before(b.LastFreed)
		}
		return awakeLonger(a, b)
	})
})

// WithoutWeak wraps the policy so that peers reported weak are never selected.
func WithoutWeak(policy SelectionPolicy) SelectionPolicy {
	return PolicyFunc(func(candidates []PeerInfo) (peer.ID, bool) {
		strong := make([]PeerInfo, 0, len(candidates))
		for _, c := range candidates {
			if !c.Weak {
				strong = append(strong, c)
			}
		}
		return policy.Select(strong)
	})
}

func awakeLonger(a, b PeerInfo) bool {
	if !a.AwakeSince.Equal(b.AwakeSince) {
		return a.AwakeSince.Before(b.AwakeSince)
	}
	return a.seq < b.seq
}

func best(candidates []PeerInfo, less func(a, b PeerInfo) bool) (peer.ID, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	ranked := make([]PeerInfo, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return less(ranked[i], ranked[j])
	})
	return ranked[0].ID, true
}
