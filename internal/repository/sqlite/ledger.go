package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sakif/csstoy/internal/apperror"
	"github.com/sakif/csstoy/internal/model"
	"github.com/sakif/csstoy/internal/repository"
)

var _ repository.LedgerRepository = (*LedgerDB)(nil)

// LedgerDB owns the likes and collections tables and the two counters on
// snippets that mirror them.
//
// THE INVARIANT:
// snippets.likes_count == COUNT(*) FROM likes WHERE snippet_id = s.id
// (and the same for collections). Every write below changes the ledger row
// and the counter inside one transaction, so either both land or neither
// does.
//
// RACES:
// There is no explicit locking. Two concurrent Adds for the same pair both
// try to INSERT; the PRIMARY KEY (user_id, snippet_id) lets exactly one
// through and the other gets a unique violation, which becomes Conflict and
// rolls back before its counter update runs.
type LedgerDB struct {
	db *DB
}

// ledger names the table and counter column for one InteractionKind.
// Table and column names cannot be ? parameters, so they come only from
// this switch and never from input.
type ledger struct {
	table   string
	counter string
	already string // Conflict message on Add
	absent  string // Conflict message on Remove
}

func ledgerFor(kind model.InteractionKind) (ledger, error) {
	switch kind {
	case model.Like:
		return ledger{"likes", "likes_count", "snippet is already liked", "snippet is not liked"}, nil
	case model.Collect:
		return ledger{"collections", "collections_count", "snippet is already collected", "snippet is not collected"}, nil
	default:
		return ledger{}, fmt.Errorf("sqlite: unknown interaction kind %d", kind)
	}
}

// Add records the interaction and returns the new counter value.
func (l *LedgerDB) Add(ctx context.Context, kind model.InteractionKind, userID, snippetID string) (int, error) {
	lg, err := ledgerFor(kind)
	if err != nil {
		return 0, err
	}

	var count int
	err = l.db.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := snippetMustExist(ctx, tx, snippetID); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO `+lg.table+` (user_id, snippet_id, created_at) VALUES (?, ?, ?)`,
			userID, snippetID, time.Now().UTC())
		if err != nil {
			if isUniqueViolation(err) {
				return apperror.Conflict(lg.already)
			}
			return fmt.Errorf("sqlite: inserting into %s: %w", lg.table, err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE snippets SET `+lg.counter+` = `+lg.counter+` + 1 WHERE id = ?`,
			snippetID); err != nil {
			return fmt.Errorf("sqlite: incrementing %s: %w", lg.counter, err)
		}

		return readCounter(ctx, tx, lg.counter, snippetID, &count)
	})
	return count, err
}

// Remove deletes the interaction and returns the new counter value. The
// counter is floored at zero even if it had already drifted below the row
// count.
func (l *LedgerDB) Remove(ctx context.Context, kind model.InteractionKind, userID, snippetID string) (int, error) {
	lg, err := ledgerFor(kind)
	if err != nil {
		return 0, err
	}

	var count int
	err = l.db.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := snippetMustExist(ctx, tx, snippetID); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`DELETE FROM `+lg.table+` WHERE user_id = ? AND snippet_id = ?`,
			userID, snippetID)
		if err != nil {
			return fmt.Errorf("sqlite: deleting from %s: %w", lg.table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: checking rows affected: %w", err)
		}
		if n == 0 {
			return apperror.Conflict(lg.absent)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE snippets SET `+lg.counter+` = MAX(0, `+lg.counter+` - 1) WHERE id = ?`,
			snippetID); err != nil {
			return fmt.Errorf("sqlite: decrementing %s: %w", lg.counter, err)
		}

		return readCounter(ctx, tx, lg.counter, snippetID, &count)
	})
	return count, err
}

func (l *LedgerDB) Exists(ctx context.Context, kind model.InteractionKind, userID, snippetID string) (bool, error) {
	lg, err := ledgerFor(kind)
	if err != nil {
		return false, err
	}

	var exists bool
	err = l.db.conn.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM `+lg.table+` WHERE user_id = ? AND snippet_id = ?)`,
		userID, snippetID)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking %s: %w", lg.table, err)
	}
	return exists, nil
}

// States reports, for each snippet id, whether userID has liked and
// collected it. Ids absent from the result have neither. It is one query
// per ledger no matter how many snippets are on the page.
func (l *LedgerDB) States(ctx context.Context, userID string, snippetIDs []string) (map[string]model.ViewerState, error) {
	states := make(map[string]model.ViewerState, len(snippetIDs))
	if userID == "" || len(snippetIDs) == 0 {
		return states, nil
	}

	for _, kind := range []model.InteractionKind{model.Like, model.Collect} {
		lg, _ := ledgerFor(kind)
		query, args, err := sqlx.In(
			`SELECT snippet_id FROM `+lg.table+` WHERE user_id = ? AND snippet_id IN (?)`,
			userID, snippetIDs)
		if err != nil {
			return nil, fmt.Errorf("sqlite: building %s state query: %w", lg.table, err)
		}

		var ids []string
		if err := l.db.conn.SelectContext(ctx, &ids, l.db.conn.Rebind(query), args...); err != nil {
			return nil, fmt.Errorf("sqlite: loading %s state: %w", lg.table, err)
		}
		for _, id := range ids {
			st := states[id]
			if kind == model.Like {
				st.Liked = true
			} else {
				st.Collected = true
			}
			states[id] = st
		}
	}
	return states, nil
}

// Recount rewrites every counter from the ledger rows (and comment rows)
// and returns how many snippets were out of sync beforehand.
func (l *LedgerDB) Recount(ctx context.Context) (int, error) {
	var drifted int
	err := l.db.withTx(ctx, func(tx *sqlx.Tx) error {
		const actual = `
			(SELECT COUNT(*) FROM likes WHERE snippet_id = snippets.id) AS likes,
			(SELECT COUNT(*) FROM collections WHERE snippet_id = snippets.id) AS collections,
			(SELECT COUNT(*) FROM comments WHERE snippet_id = snippets.id) AS comments`

		err := tx.GetContext(ctx, &drifted,
			`SELECT COUNT(*) FROM (
			     SELECT likes_count, collections_count, comments_count, `+actual+`
			     FROM snippets)
			 WHERE likes_count != likes OR collections_count != collections
			    OR comments_count != comments`)
		if err != nil {
			return fmt.Errorf("sqlite: counting drifted snippets: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE snippets SET
			     likes_count       = (SELECT COUNT(*) FROM likes WHERE snippet_id = snippets.id),
			     collections_count = (SELECT COUNT(*) FROM collections WHERE snippet_id = snippets.id),
			     comments_count    = (SELECT COUNT(*) FROM comments WHERE snippet_id = snippets.id)`)
		if err != nil {
			return fmt.Errorf("sqlite: recounting: %w", err)
		}
		return nil
	})
	return drifted, err
}

// snippetMustExist returns NotFound when the snippet is gone. It runs inside
// the caller's transaction so the answer stays valid for the writes that
// follow.
func snippetMustExist(ctx context.Context, tx *sqlx.Tx, snippetID string) error {
	var exists bool
	if err := tx.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM snippets WHERE id = ?)`, snippetID); err != nil {
		return fmt.Errorf("sqlite: checking snippet %s: %w", snippetID, err)
	}
	if !exists {
		return apperror.NotFound("snippet", snippetID)
	}
	return nil
}

func readCounter(ctx context.Context, tx *sqlx.Tx, column, snippetID string, dst *int) error {
	if err := tx.GetContext(ctx, dst,
		`SELECT `+column+` FROM snippets WHERE id = ?`, snippetID); err != nil {
		return fmt.Errorf("sqlite: reading %s: %w", column, err)
	}
	return nil
}
