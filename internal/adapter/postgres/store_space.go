package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Strob0t/spacegate/internal/domain/space"
)

// spaceColumns selects one space row with its domains and admins aggregated.
const spaceColumns = `
	s.id, s.name, s.creator, s.features, s.config, s.admin_user_ids, s.archived, s.created_at, s.updated_at,
	COALESCE((SELECT array_agg(d.domain ORDER BY d.domain) FROM space_domains d WHERE d.space_id = s.id), '{}'),
	COALESCE((SELECT array_agg(a.username ORDER BY a.username) FROM space_admins a WHERE a.space_id = s.id), '{}')`

func scanSpace(row scannable) (space.Space, error) {
	var sp space.Space
	var cfg []byte
	err := row.Scan(&sp.ID, &sp.Name, &sp.Creator, &sp.Features, &cfg, &sp.AdminUserIDs, &sp.Archived,
		&sp.CreatedAt, &sp.UpdatedAt, &sp.Domains, &sp.AdminUsernames)
	if err != nil {
		return sp, err
	}
	if len(cfg) > 0 {
		sp.Config = cfg
	}
	return sp, nil
}

func (s *Store) GetSpace(ctx context.Context, id string) (*space.Space, error) {
	sp, err := scanSpace(s.pool.QueryRow(ctx,
		`SELECT `+spaceColumns+` FROM spaces s WHERE s.id = $1`, id))
	if err != nil {
		return nil, wrapErr(err, "get space %s", id)
	}
	return &sp, nil
}

func (s *Store) GetSpaceByDomain(ctx context.Context, host string) (*space.Space, error) {
	sp, err := scanSpace(s.pool.QueryRow(ctx,
		`SELECT `+spaceColumns+`
		 FROM space_domains sd JOIN spaces s ON s.id = sd.space_id
		 WHERE sd.domain = $1`, space.NormalizeDomain(host)))
	if err != nil {
		return nil, wrapErr(err, "get space by domain %s", host)
	}
	return &sp, nil
}

func (s *Store) ListSpaces(ctx context.Context, includeArchived bool) ([]space.Space, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+spaceColumns+` FROM spaces s
		 WHERE $1 OR NOT s.archived
		 ORDER BY s.created_at ASC, s.id ASC`, includeArchived)
	if err != nil {
		return nil, fmt.Errorf("list spaces: %w", err)
	}
	defer rows.Close()

	var spaces []space.Space
	for rows.Next() {
		sp, err := scanSpace(rows)
		if err != nil {
			return nil, fmt.Errorf("scan space: %w", err)
		}
		spaces = append(spaces, sp)
	}
	return spaces, rows.Err()
}

func (s *Store) CreateSpace(ctx context.Context, sp *space.Space) error {
	now := time.Now().UTC()
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO spaces (id, name, creator, features, config, admin_user_ids, archived, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
			sp.ID, sp.Name, sp.Creator, pgTextArray(sp.Features), nullJSON(sp.Config),
			pgTextArray(sp.AdminUserIDs), sp.Archived, now)
		if err != nil {
			return err
		}
		return replaceMembers(ctx, tx, sp)
	})
	if err != nil {
		return wrapErr(err, "create space %s", sp.ID)
	}
	sp.CreatedAt, sp.UpdatedAt = now, now
	return nil
}

func (s *Store) UpdateSpace(ctx context.Context, sp *space.Space) error {
	var updated time.Time
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`UPDATE spaces
			 SET name = $2, creator = $3, features = $4, config = $5, admin_user_ids = $6, archived = $7, updated_at = now()
			 WHERE id = $1
			 RETURNING updated_at`,
			sp.ID, sp.Name, sp.Creator, pgTextArray(sp.Features), nullJSON(sp.Config),
			pgTextArray(sp.AdminUserIDs), sp.Archived).Scan(&updated)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM space_domains WHERE space_id = $1`, sp.ID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM space_admins WHERE space_id = $1`, sp.ID); err != nil {
			return err
		}
		return replaceMembers(ctx, tx, sp)
	})
	if err != nil {
		return wrapErr(err, "update space %s", sp.ID)
	}
	sp.UpdatedAt = updated
	return nil
}

// replaceMembers inserts the domain and admin rows of sp. The primary key on
// space_domains.domain rejects a domain already owned by another space.
func replaceMembers(ctx context.Context, tx pgx.Tx, sp *space.Space) error {
	batch := &pgx.Batch{}
	for _, d := range sp.Domains {
		batch.Queue(`INSERT INTO space_domains (domain, space_id) VALUES ($1, $2)`, d, sp.ID)
	}
	for _, u := range sp.AdminUsernames {
		batch.Queue(`INSERT INTO space_admins (space_id, username) VALUES ($1, $2)`, sp.ID, u)
	}
	if batch.Len() == 0 {
		return nil
	}
	return tx.SendBatch(ctx, batch).Close()
}
