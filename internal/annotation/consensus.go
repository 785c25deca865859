package annotation

import (
	"sort"
	"time"
)

type proposalRecord struct {
	ID        ProposalID
	ImageID   int64
	Key       Key
	Author    string
	Value     string
	CreatedAt time.Time
	Votes     []Vote
}

type candidate struct {
	value     string
	score     int
	earliest  time.Time
	proposals []proposalRecord
}

// netWeight is the author's weight (explicit self-vote if cast, otherwise
// authorWeight) plus every other voter's weight.
func netWeight(p proposalRecord, authorWeight int) int {
	total := authorWeight
	for _, v := range p.Votes {
		if v.Voter == p.Author {
			total += v.Weight - authorWeight
			continue
		}
		total += v.Weight
	}
	return total
}

// rank groups proposals by value and orders the groups by score, then the
// earliest proposal, then value.
func rank(proposals []proposalRecord, authorWeight int) []candidate {
	index := make(map[string]int)
	var out []candidate
	for _, p := range proposals {
		i, ok := index[p.Value]
		if !ok {
			i = len(out)
			index[p.Value] = i
			out = append(out, candidate{value: p.Value, earliest: p.CreatedAt})
		}
		c := &out[i]
		c.score += netWeight(p, authorWeight)
		if p.CreatedAt.Before(c.earliest) {
			c.earliest = p.CreatedAt
		}
		c.proposals = append(c.proposals, p)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if !a.earliest.Equal(b.earliest) {
			return a.earliest.Before(b.earliest)
		}
		return a.value < b.value
	})
	return out
}

func decide(key Key, proposals []proposalRecord, authorWeight int) (Consensus, bool) {
	ranked := rank(proposals, authorWeight)
	if len(ranked) == 0 {
		return Consensus{}, false
	}
	win := ranked[0]
	return Consensus{
		Key:        key,
		Value:      win.value,
		Score:      win.score,
		Support:    len(win.proposals),
		Contenders: len(ranked),
		ProposedAt: win.earliest,
	}, true
}

func tallies(proposals []proposalRecord, authorWeight int) []ProposalTally {
	ranked := rank(proposals, authorWeight)
	out := make([]ProposalTally, 0, len(proposals))
	for i, c := range ranked {
		members := append([]proposalRecord(nil), c.proposals...)
		sort.Slice(members, func(a, b int) bool {
			if !members[a].CreatedAt.Equal(members[b].CreatedAt) {
				return members[a].CreatedAt.Before(members[b].CreatedAt)
			}
			return members[a].ID < members[b].ID
		})
		for _, p := range members {
			votes := p.Votes
			if votes == nil {
				votes = []Vote{}
			}
			out = append(out, ProposalTally{
				ID:         p.ID,
				Author:     p.Author,
				Value:      p.Value,
				CreatedAt:  p.CreatedAt,
				Weight:     netWeight(p, authorWeight),
				ValueScore: c.score,
				Rank:       i + 1,
				Votes:      votes,
			})
		}
	}
	return out
}
