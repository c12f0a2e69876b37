package peers

import (
	"math/big"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/assert"
)

func TestSelectionPolicies(t *testing.T) {
	now := time.Unix(1700000000, 0)
	candidate := func(id string, td int64, seq uint64, mutate func(*PeerInfo)) PeerInfo {
		pi := PeerInfo{
			ID:              peer.ID(id),
			TotalDifficulty: big.NewInt(td),
			AwakeSince:      now,
			seq:             seq,
		}
		if mutate != nil {
			mutate(&pi)
		}
		return pi
	}

	tests := []struct {
		name       string
		policy     SelectionPolicy
		candidates []PeerInfo
		expected   peer.ID
		ok         bool
	}{
		{
			name:   "no candidates",
			policy: ByTotalDifficulty,
		},
		{
			name:   "highest difficulty",
			policy: ByTotalDifficulty,
			candidates: []PeerInfo{
				candidate("A", 50, 1, nil),
				candidate("B", 100, 2, nil),
				candidate("C", 75, 3, nil),
			},
			expected: "B",
			ok:       true,
		},
		{
			name:   "tie broken by longest awake",
			policy: ByTotalDifficulty,
			candidates: []PeerInfo{
				candidate("A", 100, 1, func(pi *PeerInfo) { pi.AwakeSince = now.Add(time.Minute) }),
				candidate("B", 100, 2, nil),
			},
			expected: "B",
			ok:       true,
		},
		{
			name:   "tie broken by insertion",
			policy: ByTotalDifficulty,
			candidates: []PeerInfo{
				candidate("B", 100, 2, nil),
				candidate("A", 100, 1, nil),
			},
			expected: "A",
			ok:       true,
		},
		{
			name:   "weak ranked last",
			policy: ByTotalDifficulty,
			candidates: []PeerInfo{
				candidate("A", 1000, 1, func(pi *PeerInfo) { pi.Weak = true }),
				candidate("B", 1, 2, nil),
			},
			expected: "B",
			ok:       true,
		},
		{
			name:   "only weak",
			policy: ByTotalDifficulty,
			candidates: []PeerInfo{
				candidate("A", 1000, 1, func(pi *PeerInfo) { pi.Weak = true }),
			},
			expected: "A",
			ok:       true,
		},
		{
			name:   "without weak",
			policy: WithoutWeak(ByTotalDifficulty),
			candidates: []PeerInfo{
				candidate("A", 1000, 1, func(pi *PeerInfo) { pi.Weak = true }),
			},
		},
		{
			name:   "least recently used",
			policy: LeastRecentlyUsed,
			candidates: []PeerInfo{
				candidate("A", 100, 1, func(pi *PeerInfo) { pi.LastFreed = now.Add(time.Second) }),
				candidate("B", 1, 2, func(pi *PeerInfo) { pi.LastFreed = now }),
				candidate("C", 50, 3, func(pi *PeerInfo) { pi.LastFreed = now.Add(2 * time.Second) }),
			},
			expected: "B",
			ok:       true,
		},
		{
			name:   "never used first",
			policy: LeastRecentlyUsed,
			candidates: []PeerInfo{
				candidate("A", 100, 1, func(pi *PeerInfo) { pi.LastFreed = now }),
				candidate("B", 1, 2, nil),
			},
			expected: "B",
			ok:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := tt.policy.Select(tt.candidates)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, id)
		})
	}
}

func TestSelectionPolicies_DoNotReorderCandidates(t *testing.T) {
	candidates := []PeerInfo{
		{ID: "A", TotalDifficulty: big.NewInt(1), seq: 1},
		{ID: "B", TotalDifficulty: big.NewInt(2), seq: 2},
	}
	id, ok := ByTotalDifficulty.Select(candidates)
	assert.True(t, ok)
	assert.Equal(t, peer.ID("B"), id)
	assert.Equal(t, peer.ID("A"), candidates[0].ID)
}
