package dao

import (
	"embed"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/xdooria-roster/app/roster/internal/model"
)

const (
	tableGenerations = "roster_generations"
	tableEntries     = "roster_entries"
)

//go:embed migrations
var migrations embed.FS

// ErrStaleGeneration 写入的代数不大于已存储的代数
var ErrStaleGeneration = errors.New("dao: stale roster generation")

type generationRow struct {
	Generation int64  `db:"generation"`
	Digest     string `db:"digest"`
	UpdatedAt  int64  `db:"updated_at"`
}

type entryRow struct {
	CharacterID int    `db:"character_id"`
	Data        []byte `db:"data"`
}

func encodeEntry(e model.RosterEntry) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal character %d", e.CharacterID)
	}
	return b, nil
}

func decodeEntries(rows []entryRow) ([]model.RosterEntry, error) {
	out := make([]model.RosterEntry, 0, len(rows))
	for _, row := range rows {
		var e model.RosterEntry
		if err := json.Unmarshal(row.Data, &e); err != nil {
			return nil, errors.Wrapf(err, "corrupt roster entry for character %d", row.CharacterID)
		}
		out = append(out, e)
	}
	return out, nil
}

func since(start time.Time) float64 {
	return time.Since(start).Seconds()
}
