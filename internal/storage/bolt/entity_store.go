package bolt

import (
	"context"
	"fmt"
	"sort"

	"github.com/goodtune/apptime/internal/storage"
	"go.etcd.io/bbolt"
)

type entityStore struct {
	db *bbolt.DB
}

func (s *entityStore) Ensure(ctx context.Context, name string) (int64, error) {
	if name == "" {
		return 0, fmt.Errorf("ensure app: empty name")
	}

	var id int64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		apps, err := bucket(tx, bucketApps)
		if err != nil {
			return err
		}
		if existing := apps.Get([]byte(name)); existing != nil {
			var entity storage.Entity
			if err := unmarshal(existing, &entity); err != nil {
				return err
			}
			id = entity.ID
			return nil
		}

		seq, err := apps.NextSequence()
		if err != nil {
			return fmt.Errorf("next app id: %w", err)
		}
		entity := storage.Entity{ID: int64(seq), Name: name}
		data, err := marshal(entity)
		if err != nil {
			return err
		}
		if err := apps.Put([]byte(name), data); err != nil {
			return err
		}

		byID, err := bucket(tx, bucketAppIDs)
		if err != nil {
			return err
		}
		if err := byID.Put(itob(seq), []byte(name)); err != nil {
			return err
		}
		id = entity.ID
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("ensure app %q: %w", name, err)
	}
	return id, nil
}

func (s *entityStore) Lookup(ctx context.Context, name string) (*storage.Entity, error) {
	return getBucketValue[storage.Entity](ctx, s.db, bucketApps, []byte(name))
}

func (s *entityStore) List(ctx context.Context) ([]storage.Entity, error) {
	entities, err := listBucket[storage.Entity](ctx, s.db, bucketApps)
	if err != nil {
		return nil, fmt.Errorf("list apps: %w", err)
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i].ID < entities[j].ID })
	return entities, nil
}
