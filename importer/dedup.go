package importer

import (
	"bytes"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Resolution is the outcome of duplicate detection over one scan: the ids to
// delete and the key statistics. It is recomputed from a fresh scan on every
// invocation and never persisted.
type Resolution struct {
	TotalScanned  int
	UniqueKeys    int
	DuplicateKeys int
	IDsToDelete   []uuid.UUID
}

// FindDuplicates groups the scanned rows by trimmed logical key and keeps
// exactly one row per group: the oldest, with exact-timestamp ties broken by
// lowest id. Every other member lands in the deletion set. The tie-break is
// fully deterministic, so repeated runs over unchanged data pick the same
// keeper.
func FindDuplicates(rows []ScannedRow) Resolution {
	resolution := Resolution{TotalScanned: len(rows)}

	groups := make(map[string][]ScannedRow)
	for _, row := range rows {
		key := strings.TrimSpace(row.Key)
		if key == "" {
			continue
		}
		groups[key] = append(groups[key], row)
	}
	resolution.UniqueKeys = len(groups)

	// Sorted key iteration keeps the deletion set order stable across runs.
	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		group := groups[key]
		if len(group) < 2 {
			continue
		}
		resolution.DuplicateKeys++

		sort.Slice(group, func(i, j int) bool {
			if !group[i].CreatedAt.Equal(group[j].CreatedAt) {
				return group[i].CreatedAt.Before(group[j].CreatedAt)
			}
			return bytes.Compare(group[i].ID[:], group[j].ID[:]) < 0
		})

		for _, loser := range group[1:] {
			resolution.IDsToDelete = append(resolution.IDsToDelete, loser.ID)
		}
	}

	return resolution
}
