// Package store wraps an embedded bbolt database as the set of named
// "collections" the writer pipeline and id allocator persist into:
// orders_<id>, live_orders_<id>, trades_<id>, instruments, counters.
// Every bucket maps directly onto one of spec's logical collections.
package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	bolt "go.etcd.io/bbolt"

	"fenrir/internal/domain"
)

const (
	ordersPrefix      = "orders_"
	liveOrdersPrefix  = "live_orders_"
	tradesPrefix      = "trades_"
	instrumentsBucket = "instruments"
	countersBucket    = "counters"
)

// Store is a thin, synchronous wrapper over a bbolt database file. All
// methods are safe for concurrent use; bbolt serializes writers
// internally and this package never holds a transaction open across a
// goroutine boundary.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) the bbolt file at path and ensures the
// always-present buckets (instruments, counters) exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	s := &Store{db: db}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(instrumentsBucket)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(countersBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init store: %w", err)
	}
	return s, nil
}

// Close closes the underlying database file.
func (s *Store) Close() error { return s.db.Close() }

func ordersBucketName(instrumentID int64) string {
	return ordersPrefix + strconv.FormatInt(instrumentID, 10)
}

func liveOrdersBucketName(instrumentID int64) string {
	return liveOrdersPrefix + strconv.FormatInt(instrumentID, 10)
}

func tradesBucketName(instrumentID int64) string {
	return tradesPrefix + strconv.FormatInt(instrumentID, 10)
}

func orderKey(orderID int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(orderID))
	return buf
}

// CreateInstrument ensures the per-instrument buckets exist and records
// the instrument in the instruments collection. It is idempotent.
func (s *Store) CreateInstrument(instrumentID int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{
			ordersBucketName(instrumentID),
			liveOrdersBucketName(instrumentID),
			tradesBucketName(instrumentID),
		} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		instruments := tx.Bucket([]byte(instrumentsBucket))
		return instruments.Put(orderKey(instrumentID), []byte("1"))
	})
}

// UpsertOrder replaces (or inserts) the order document keyed by order_id
// in the per-instrument orders collection.
func (s *Store) UpsertOrder(instrumentID int64, order *domain.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(ordersBucketName(instrumentID)))
		if err != nil {
			return err
		}
		return b.Put(orderKey(order.OrderID), data)
	})
}

// UpsertLiveOrder upserts order into the per-instrument live-orders
// collection, keyed by order_id.
func (s *Store) UpsertLiveOrder(instrumentID int64, order *domain.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(liveOrdersBucketName(instrumentID)))
		if err != nil {
			return err
		}
		return b.Put(orderKey(order.OrderID), data)
	})
}

// RemoveLiveOrder deletes order_id from the per-instrument live-orders
// collection. Deleting a missing key is a no-op, matching CANCEL/REM_LIVE
// semantics.
func (s *Store) RemoveLiveOrder(instrumentID, orderID int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(liveOrdersBucketName(instrumentID)))
		if b == nil {
			return nil
		}
		return b.Delete(orderKey(orderID))
	})
}

// UpdateLiveOrderQuantity atomically adjusts remaining/filled quantity on
// a live order by a signed delta (positive delta = additional fill). The
// same delta is also applied to the order's row in the per-instrument
// orders collection: that collection is what rebuild_from_storage reads,
// so a resting maker that gets partially filled by a later taker must
// not leave its orders-collection row stuck at its submission-time
// quantity, or a cold-start rebuild would rest it with a stale
// remaining_quantity.
func (s *Store) UpdateLiveOrderQuantity(instrumentID, orderID, deltaFilled int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := applyQuantityDelta(tx, liveOrdersBucketName(instrumentID), orderID, deltaFilled); err != nil {
			return err
		}
		return applyQuantityDelta(tx, ordersBucketName(instrumentID), orderID, deltaFilled)
	})
}

// applyQuantityDelta adjusts the filled/remaining quantity of orderID's
// row in bucket by deltaFilled, if both the bucket and the row exist.
func applyQuantityDelta(tx *bolt.Tx, bucket string, orderID, deltaFilled int64) error {
	b := tx.Bucket([]byte(bucket))
	if b == nil {
		return nil
	}
	raw := b.Get(orderKey(orderID))
	if raw == nil {
		return nil
	}
	var o domain.Order
	if err := json.Unmarshal(raw, &o); err != nil {
		return err
	}
	o.FilledQuantity += deltaFilled
	o.RemainingQuantity -= deltaFilled
	data, err := json.Marshal(&o)
	if err != nil {
		return err
	}
	return b.Put(orderKey(orderID), data)
}

// AppendTrade appends trade to the per-instrument trades collection. Keys
// use the bucket's monotonic sequence so trades are naturally ordered by
// insertion.
func (s *Store) AppendTrade(instrumentID int64, trade *domain.Trade) error {
	data, err := json.Marshal(trade)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(tradesBucketName(instrumentID)))
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return b.Put(key, data)
	})
}

// ListInstruments enumerates instrument ids that have an orders
// collection, by bucket-name convention.
func (s *Store) ListInstruments() ([]int64, error) {
	var ids []int64
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			n := string(name)
			if !strings.HasPrefix(n, ordersPrefix) {
				return nil
			}
			id, err := strconv.ParseInt(strings.TrimPrefix(n, ordersPrefix), 10, 64)
			if err != nil {
				return nil
			}
			ids = append(ids, id)
			return nil
		})
	})
	return ids, err
}

// IterOrders returns every persisted order for instrumentID, sorted by
// timestamp ascending, for cold-start rebuild.
func (s *Store) IterOrders(instrumentID int64) ([]*domain.Order, error) {
	var orders []*domain.Order
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(ordersBucketName(instrumentID)))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var o domain.Order
			if err := json.Unmarshal(v, &o); err != nil {
				return err
			}
			orders = append(orders, &o)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].Timestamp < orders[j].Timestamp })
	return orders, nil
}

// NextCounter atomically increments and returns the named sequence in
// the counters collection (e.g. "order_id").
func (s *Store) NextCounter(name string) (int64, error) {
	var next int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(countersBucket))
		cur := int64(0)
		if raw := b.Get([]byte(name)); raw != nil {
			cur = int64(binary.BigEndian.Uint64(raw))
		}
		next = cur + 1
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(next))
		return b.Put([]byte(name), buf)
	})
	return next, err
}

// CounterValue reads the named counter without incrementing it.
func (s *Store) CounterValue(name string) (int64, error) {
	var val int64
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(countersBucket))
		if raw := b.Get([]byte(name)); raw != nil {
			val = int64(binary.BigEndian.Uint64(raw))
		}
		return nil
	})
	return val, err
}

// SeedCounter sets the named counter to value if value is greater than
// the counter's current value. Used to reconcile the persisted counter
// with the max order_id observed during rebuild.
func (s *Store) SeedCounter(name string, value int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(countersBucket))
		cur := int64(0)
		if raw := b.Get([]byte(name)); raw != nil {
			cur = int64(binary.BigEndian.Uint64(raw))
		}
		if value <= cur {
			return nil
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(value))
		return b.Put([]byte(name), buf)
	})
}
