package metastore

import (
	"encoding/json"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"

	"github.com/IvanBrykalov/policystack/internal/logger"
)

// Badger is a Store backed by BadgerDB.
type Badger struct {
	db *badgerdb.DB
}

// OpenBadger opens (or creates) a store in dir. An empty dir opens an
// in-memory database.
func OpenBadger(dir string) (*Badger, error) {
	opts := badgerdb.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "open badger store %q", dir)
	}
	logger.Debug("metastore opened", "dir", dir, "in_memory", dir == "")
	return &Badger{db: db}, nil
}

// Replace drops the header, rewrites the mappings (removing those not in ms)
// and finally writes the new header.
func (b *Badger) Replace(h Header, ms []Mapping) error {
	err := b.db.Update(func(txn *badgerdb.Txn) error {
		err := txn.Delete([]byte(keyHeader))
		if err != nil && err != badgerdb.ErrKeyNotFound {
			return err
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "metastore: drop header")
	}
	stale, err := b.mappingKeys()
	if err != nil {
		return errors.Wrap(err, "metastore: list mappings")
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, m := range ms {
		k := keyMapping(m.CBlock)
		delete(stale, string(k))
		if err := wb.Set(k, encodeValue(m)); err != nil {
			return errors.Wrapf(err, "metastore: write cblock %d", m.CBlock)
		}
	}
	for k := range stale {
		if err := wb.Delete([]byte(k)); err != nil {
			return errors.Wrap(err, "metastore: drop stale mapping")
		}
	}
	if err := wb.Flush(); err != nil {
		return errors.Wrap(err, "metastore: flush mappings")
	}

	hdr, err := json.Marshal(h)
	if err != nil {
		return errors.Wrap(err, "metastore: encode header")
	}
	return errors.Wrap(b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(keyHeader), hdr)
	}), "metastore: write header")
}

// Load reads the header and every mapping in cblock order.
func (b *Badger) Load() (Header, []Mapping, error) {
	var (
		h  Header
		ms []Mapping
	)
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keyHeader))
		if err == badgerdb.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &h)
		}); err != nil {
			return errors.Wrap(err, "metastore: decode header")
		}

		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(prefixMapping)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(opts.Prefix); it.Next() {
			item := it.Item()
			cb, err := decodeKey(item.Key())
			if err != nil {
				return err
			}
			var m Mapping
			if err := item.Value(func(val []byte) error {
				m, err = decodeValue(cb, val)
				return err
			}); err != nil {
				return err
			}
			ms = append(ms, m)
		}
		return nil
	})
	if err != nil {
		return Header{}, nil, err
	}
	return h, ms, nil
}

// mappingKeys returns the set of stored mapping keys.
func (b *Badger) mappingKeys() (map[string]struct{}, error) {
	keys := make(map[string]struct{})
	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(prefixMapping)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.ValidForPrefix(opts.Prefix); it.Next() {
			keys[string(it.Item().KeyCopy(nil))] = struct{}{}
		}
		return nil
	})
	return keys, err
}

// Close releases the database.
func (b *Badger) Close() error { return b.db.Close() }

var _ Store = (*Badger)(nil)
