package bolt

import (
	"context"
	"fmt"

	"github.com/goodtune/apptime/internal/storage"
	"go.etcd.io/bbolt"
)

type sessionStore struct {
	db *bbolt.DB
}

// Append writes one record in a single bolt transaction.
func (s *sessionStore) Append(ctx context.Context, record storage.SessionRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		byID, err := bucket(tx, bucketAppIDs)
		if err != nil {
			return err
		}
		name := byID.Get(itob(uint64(record.EntityID)))
		if name == nil {
			return fmt.Errorf("%w: id %d", storage.ErrUnknownEntity, record.EntityID)
		}
		record.Entity = string(name)

		sessions, err := bucket(tx, bucketSessions)
		if err != nil {
			return err
		}
		seq, err := sessions.NextSequence()
		if err != nil {
			return fmt.Errorf("next session id: %w", err)
		}
		data, err := marshal(record)
		if err != nil {
			return err
		}
		return sessions.Put(itob(seq), data)
	})
}

func (s *sessionStore) SumByEntity(ctx context.Context) ([]storage.EntityTotal, error) {
	sums := make(map[int64]int64)
	names := make(map[int64]string)

	err := s.db.View(func(tx *bbolt.Tx) error {
		byID, err := bucket(tx, bucketAppIDs)
		if err != nil {
			return err
		}
		sessions, err := bucket(tx, bucketSessions)
		if err != nil {
			return err
		}
		return sessions.ForEach(func(_, v []byte) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var record storage.SessionRecord
			if err := unmarshal(v, &record); err != nil {
				return err
			}
			if _, ok := names[record.EntityID]; !ok {
				name := byID.Get(itob(uint64(record.EntityID)))
				if name == nil {
					return nil
				}
				names[record.EntityID] = string(name)
			}
			sums[record.EntityID] += record.Seconds
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("sum sessions: %w", err)
	}

	totals := make([]storage.EntityTotal, 0, len(sums))
	for id, seconds := range sums {
		totals = append(totals, storage.EntityTotal{Name: names[id], TotalSeconds: seconds})
	}
	return totals, nil
}

func (s *sessionStore) List(ctx context.Context, name string) ([]storage.SessionRecord, error) {
	records, err := listBucket[storage.SessionRecord](ctx, s.db, bucketSessions)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	if name != "" {
		filtered := records[:0]
		for _, record := range records {
			if record.Entity == name {
				filtered = append(filtered, record)
			}
		}
		records = filtered
	}

	storage.SortByStart(records)
	return records, nil
}
