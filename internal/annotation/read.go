package annotation

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode/utf8"

	"rawlabel/internal/services"
	"rawlabel/internal/textutil"
)

// Consensus returns the accepted value for (image, key).
func (s *Store) Consensus(ctx context.Context, image string, key Key) (Consensus, error) {
	key, err := ParseKey(string(key))
	if err != nil {
		return Consensus{}, err
	}
	if image, err = cleanSourceID(image); err != nil {
		return Consensus{}, err
	}
	records, err := s.loadProposals(ctx, `i.source_id = ? AND p.key = ?`, image, string(key))
	if err != nil {
		return Consensus{}, err
	}
	consensus, ok := decide(key, records, s.opts.AuthorWeight)
	if !ok {
		return Consensus{}, fmt.Errorf("%w: %s on %s", services.ErrNoConsensus, key, image)
	}
	return consensus, nil
}

// Annotations returns the consensus for every key that has one.
func (s *Store) Annotations(ctx context.Context, image string) (map[Key]Consensus, error) {
	image, err := cleanSourceID(image)
	if err != nil {
		return nil, err
	}
	records, err := s.loadProposals(ctx, `i.source_id = ?`, image)
	if err != nil {
		return nil, err
	}
	return decideAll(records, s.opts.AuthorWeight), nil
}

// Proposals lists the live proposals for (image, key) in consensus rank
// order, each with its net weight and votes.
func (s *Store) Proposals(ctx context.Context, image string, key Key) ([]ProposalTally, error) {
	key, err := ParseKey(string(key))
	if err != nil {
		return nil, err
	}
	if image, err = cleanSourceID(image); err != nil {
		return nil, err
	}
	records, err := s.loadProposals(ctx, `i.source_id = ? AND p.key = ?`, image, string(key))
	if err != nil {
		return nil, err
	}
	return tallies(records, s.opts.AuthorWeight), nil
}

// DistinctValues returns the sorted distinct values proposed for key that
// start with prefix (after normalization).
func (s *Store) DistinctValues(ctx context.Context, key Key, prefix string) ([]string, error) {
	key, err := ParseKey(string(key))
	if err != nil {
		return nil, err
	}
	prefix = textutil.Fold(strings.TrimLeft(prefix, " \t"))
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT value FROM proposals
		 WHERE key = ? AND substr(value, 1, ?) = ?
		 ORDER BY value`,
		string(key), utf8.RuneCountInString(prefix), prefix,
	)
	if err != nil {
		return nil, classify("distinct values", err)
	}
	defer rows.Close()
	values := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, classify("distinct values", err)
		}
		values = append(values, v)
	}
	return values, classify("distinct values", rows.Err())
}

func decideAll(records []proposalRecord, authorWeight int) map[Key]Consensus {
	byKey := make(map[Key][]proposalRecord)
	for _, r := range records {
		byKey[r.Key] = append(byKey[r.Key], r)
	}
	out := make(map[Key]Consensus, len(byKey))
	for key, group := range byKey {
		if c, ok := decide(key, group, authorWeight); ok {
			out[key] = c
		}
	}
	return out
}

// loadProposals reads proposals matching where (over aliases p and i) with
// their votes attached.
func (s *Store) loadProposals(ctx context.Context, where string, args ...any) ([]proposalRecord, error) {
	q := `SELECT p.id, p.image_id, p.key, p.author, p.value, p.created_at,
	             v.voter, v.weight, v.created_at
	      FROM proposals p
	      JOIN images i ON i.id = p.image_id
	      LEFT JOIN votes v ON v.proposal_id = p.id`
	if where != "" {
		q += " WHERE " + where
	}
	q += " ORDER BY p.id, v.voter"
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify("load proposals", err)
	}
	defer rows.Close()

	var records []proposalRecord
	for rows.Next() {
		var (
			rec          proposalRecord
			key, created string
			voter        sql.NullString
			weight       sql.NullInt64
			voteCreated  sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.ImageID, &key, &rec.Author, &rec.Value, &created, &voter, &weight, &voteCreated); err != nil {
			return nil, classify("load proposals", err)
		}
		if n := len(records); n == 0 || records[n-1].ID != rec.ID {
			rec.Key = Key(key)
			if rec.CreatedAt, err = parseTimestamp(created); err != nil {
				return nil, classify("load proposals", err)
			}
			records = append(records, rec)
		}
		if voter.Valid {
			vote := Vote{Voter: voter.String, Weight: int(weight.Int64)}
			if voteCreated.Valid {
				if vote.CreatedAt, err = parseTimestamp(voteCreated.String); err != nil {
					return nil, classify("load proposals", err)
				}
			}
			last := &records[len(records)-1]
			last.Votes = append(last.Votes, vote)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, classify("load proposals", err)
	}
	return records, nil
}
