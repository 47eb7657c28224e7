package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"strconv"
	"strings"

	logx "pzrelay/pkg/logx"
)

//go:embed migrations.sql
var migrations string

// sqlStore serves both SQL drivers; queries are written with '?' and
// rebound for drivers that use numbered placeholders.
type sqlStore struct {
	db       *sql.DB
	log      logx.Logger
	numbered bool
}

func (s *sqlStore) q(query string) string {
	if !s.numbered {
		return query
	}
	return rebind(query)
}

// rebind turns '?' placeholders into $1, $2, ...
func rebind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migrations)
	return err
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqlStore) TrackedMods(ctx context.Context) ([]TrackedMod, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT mod_id, channel_id, last_updated FROM workshop_tracks ORDER BY mod_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TrackedMod
	for rows.Next() {
		var m TrackedMod
		if err := rows.Scan(&m.ModID, &m.ChannelID, &m.LastUpdated); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *sqlStore) UpdateModTimestamp(ctx context.Context, modID string, ts int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE workshop_tracks SET last_updated = ? WHERE mod_id = ?`), ts, modID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqlStore) TrackMod(ctx context.Context, m TrackedMod) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		s.q(`INSERT INTO workshop_tracks(mod_id, channel_id, last_updated) VALUES(?,?,?) ON CONFLICT(mod_id) DO NOTHING`),
		m.ModID, m.ChannelID, m.LastUpdated)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
