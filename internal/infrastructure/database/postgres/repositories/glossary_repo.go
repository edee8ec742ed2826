package repositories

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/turtacn/doctalk/internal/infrastructure/database/postgres"
	"github.com/turtacn/doctalk/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/doctalk/internal/intelligence/glossary"
	"github.com/turtacn/doctalk/pkg/errors"
	"github.com/turtacn/doctalk/pkg/types/clinical"
)

const (
	selectTerms    = `SELECT id, canonical, category, definition, why FROM terms ORDER BY id`
	selectAliases  = `SELECT alias, term_id FROM aliases ORDER BY id`
	selectAcronyms = `SELECT acronym, expansions FROM acronyms ORDER BY acronym`

	upsertTerm = `
		INSERT INTO terms (canonical, category, definition, why)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT ((lower(canonical))) DO UPDATE SET
			category = EXCLUDED.category, definition = EXCLUDED.definition,
			why = EXCLUDED.why, updated_at = NOW()
		RETURNING id`
	upsertAlias = `
		INSERT INTO aliases (alias, term_id) VALUES ($1, $2)
		ON CONFLICT ((lower(alias))) DO UPDATE SET term_id = EXCLUDED.term_id`
	upsertAcronym = `
		INSERT INTO acronyms (acronym, expansions) VALUES ($1, $2)
		ON CONFLICT (acronym) DO UPDATE SET expansions = EXCLUDED.expansions`
)

// GlossaryRepository reads and writes the relational glossary.  It
// satisfies glossary.Provider.
type GlossaryRepository struct {
	conn *postgres.Connection
	log  logging.Logger
}

func NewGlossaryRepository(conn *postgres.Connection, log logging.Logger) *GlossaryRepository {
	return &GlossaryRepository{conn: conn, log: logging.OrNop(log)}
}

// Load reads every term, alias and acronym.
func (r *GlossaryRepository) Load(ctx context.Context) (*clinical.Glossary, error) {
	db := r.conn.DB()
	g := &clinical.Glossary{}

	rows, err := db.QueryContext(ctx, selectTerms)
	if err != nil {
		return nil, unavailable(err, "failed to query terms")
	}
	err = scanAll(rows, func(s *sql.Rows) error {
		var t clinical.Term
		var category string
		if err := s.Scan(&t.ID, &t.Canonical, &category, &t.Definition, &t.Why); err != nil {
			return err
		}
		t.Category = clinical.Category(category)
		g.Terms = append(g.Terms, t)
		return nil
	})
	if err != nil {
		return nil, unavailable(err, "failed to scan terms")
	}

	rows, err = db.QueryContext(ctx, selectAliases)
	if err != nil {
		return nil, unavailable(err, "failed to query aliases")
	}
	err = scanAll(rows, func(s *sql.Rows) error {
		var a clinical.Alias
		if err := s.Scan(&a.Text, &a.TermID); err != nil {
			return err
		}
		g.Aliases = append(g.Aliases, a)
		return nil
	})
	if err != nil {
		return nil, unavailable(err, "failed to scan aliases")
	}

	rows, err = db.QueryContext(ctx, selectAcronyms)
	if err != nil {
		return nil, unavailable(err, "failed to query acronyms")
	}
	err = scanAll(rows, func(s *sql.Rows) error {
		var a clinical.Acronym
		if err := s.Scan(&a.Acronym, pq.Array(&a.Expansions)); err != nil {
			return err
		}
		g.Acronyms = append(g.Acronyms, a)
		return nil
	})
	if err != nil {
		return nil, unavailable(err, "failed to scan acronyms")
	}

	r.log.Debug("glossary loaded from postgres",
		logging.Int("terms", len(g.Terms)),
		logging.Int("aliases", len(g.Aliases)),
		logging.Int("acronyms", len(g.Acronyms)),
	)
	return g, nil
}

// ImportStats counts the rows written by Import.
type ImportStats struct {
	Terms    int `json:"terms"`
	Aliases  int `json:"aliases"`
	Acronyms int `json:"acronyms"`
}

// Import validates g and upserts it in one transaction.  Terms are matched
// by case-insensitive canonical name; alias term IDs refer to g's own IDs.
func (r *GlossaryRepository) Import(ctx context.Context, g *clinical.Glossary) (ImportStats, error) {
	var stats ImportStats
	if _, err := glossary.Build(g); err != nil {
		return stats, err
	}

	err := withTx(ctx, r.conn.DB(), func(q queryExecutor) error {
		ids := make(map[int64]int64, len(g.Terms))
		for _, t := range g.Terms {
			var id int64
			err := q.QueryRowContext(ctx, upsertTerm, t.Canonical, string(t.Category), t.Definition, t.Why).Scan(&id)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to upsert term").WithDetail("canonical=" + t.Canonical)
			}
			ids[t.ID] = id
			stats.Terms++
		}
		for _, a := range g.Aliases {
			if _, err := q.ExecContext(ctx, upsertAlias, a.Text, ids[a.TermID]); err != nil {
				return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to upsert alias").WithDetail("alias=" + a.Text)
			}
			stats.Aliases++
		}
		for _, a := range g.Acronyms {
			if _, err := q.ExecContext(ctx, upsertAcronym, a.Acronym, pq.Array(a.Expansions)); err != nil {
				return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to upsert acronym").WithDetail("acronym=" + a.Acronym)
			}
			stats.Acronyms++
		}
		return nil
	})
	if err != nil {
		return ImportStats{}, err
	}
	r.log.Info("glossary imported",
		logging.Int("terms", stats.Terms),
		logging.Int("aliases", stats.Aliases),
		logging.Int("acronyms", stats.Acronyms),
	)
	return stats, nil
}

func scanAll(rows *sql.Rows, fn func(*sql.Rows) error) error {
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func unavailable(err error, msg string) error {
	return errors.Wrap(err, errors.ErrCodeGlossaryUnavailable, msg)
}
