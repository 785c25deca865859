package annotation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"rawlabel/internal/logging"
	"rawlabel/internal/services"
	"rawlabel/internal/textutil"
)

// Propose records user's value for (image, key). Resubmitting the same value
// is a no-op; a different value resets the proposal's creation time and drops
// its votes; an empty value withdraws and returns 0.
func (s *Store) Propose(ctx context.Context, image string, key Key, user, value string) (ProposalID, error) {
	key, err := ParseKey(string(key))
	if err != nil {
		return 0, err
	}
	if user, err = cleanUser(user, "user"); err != nil {
		return 0, err
	}
	if image, err = cleanSourceID(image); err != nil {
		return 0, err
	}
	normalized := textutil.NormalizeLabel(value)
	if normalized == "" {
		if err := s.Withdraw(ctx, image, key, user); err != nil && !errors.Is(err, services.ErrProposalNotFound) {
			return 0, err
		}
		return 0, nil
	}

	var (
		id     ProposalID
		action string
	)
	err = s.withTx(ctx, "propose", func(tx *sql.Tx) error {
		imageID, err := s.ensureImage(ctx, tx, image)
		if err != nil {
			return err
		}
		var current string
		err = tx.QueryRowContext(ctx,
			`SELECT id, value FROM proposals WHERE image_id = ? AND key = ? AND author = ?`,
			imageID, string(key), user,
		).Scan(&id, &current)
		now := s.now()
		switch {
		case errors.Is(err, sql.ErrNoRows):
			res, err := tx.ExecContext(ctx,
				`INSERT INTO proposals (image_id, key, author, value, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				imageID, string(key), user, normalized, now, now,
			)
			if err != nil {
				return err
			}
			last, err := res.LastInsertId()
			if err != nil {
				return err
			}
			id = ProposalID(last)
			action = "created"
			return nil
		case err != nil:
			return err
		case current == normalized:
			action = "unchanged"
			return nil
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM votes WHERE proposal_id = ?`, int64(id)); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE proposals SET value = ?, created_at = ?, updated_at = ? WHERE id = ?`,
			normalized, now, now, int64(id),
		); err != nil {
			return err
		}
		action = "replaced"
		return nil
	})
	if err != nil {
		return 0, err
	}
	logging.WithContext(ctx, s.logger).Info("proposal recorded",
		logging.String(logging.FieldSourceID, image),
		logging.String("key", string(key)),
		logging.String("value", normalized),
		logging.String("action", action),
		logging.Int64("proposal_id", int64(id)),
	)
	return id, nil
}

// Withdraw deletes user's proposal for (image, key) along with its votes.
func (s *Store) Withdraw(ctx context.Context, image string, key Key, user string) error {
	key, err := ParseKey(string(key))
	if err != nil {
		return err
	}
	if user, err = cleanUser(user, "user"); err != nil {
		return err
	}
	if image, err = cleanSourceID(image); err != nil {
		return err
	}
	err = s.withTx(ctx, "withdraw", func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx,
			`SELECT p.id FROM proposals p JOIN images i ON i.id = p.image_id
			 WHERE i.source_id = ? AND p.key = ? AND p.author = ?`,
			image, string(key), user,
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s by %s on %s", services.ErrProposalNotFound, key, user, image)
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM votes WHERE proposal_id = ?`, id); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM proposals WHERE id = ?`, id)
		return err
	})
	if err != nil {
		return err
	}
	logging.WithContext(ctx, s.logger).Info("proposal withdrawn",
		logging.String(logging.FieldSourceID, image),
		logging.String("key", string(key)),
	)
	return nil
}

// Vote records voter's weight on a proposal, replacing any earlier vote.
func (s *Store) Vote(ctx context.Context, proposal ProposalID, voter string, weight int) error {
	voter, err := cleanUser(voter, "voter")
	if err != nil {
		return err
	}
	if weight < s.opts.MinWeight || weight > s.opts.MaxWeight {
		return fmt.Errorf("%w: %d outside [%d, %d]", services.ErrInvalidWeight, weight, s.opts.MinWeight, s.opts.MaxWeight)
	}
	err = s.withTx(ctx, "vote", func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM proposals WHERE id = ?`, int64(proposal)).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return fmt.Errorf("%w: id %d", services.ErrProposalNotFound, proposal)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO votes (proposal_id, voter, weight, created_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(proposal_id, voter) DO UPDATE SET weight = excluded.weight, created_at = excluded.created_at`,
			int64(proposal), voter, weight, s.now(),
		)
		return err
	})
	if err != nil {
		return err
	}
	logging.WithContext(ctx, s.logger).Info("vote recorded",
		logging.Int64("proposal_id", int64(proposal)),
		logging.Int("weight", weight),
	)
	return nil
}
