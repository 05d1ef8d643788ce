// Package pebble backs the storage.KV interface with a pebble database,
// one keyspace prefix per logical store.
package pebble

import (
	"github.com/bridgefleet/bridgefleet/pkg/storage"
	"github.com/cockroachdb/pebble/v2"
)

type KVBroker struct {
	db *pebble.DB
}

func NewKVBroker(db *pebble.DB) *KVBroker {
	return &KVBroker{
		db: db,
	}
}

func (k *KVBroker) KeyValue(prefix string) storage.KV {
	return &prefixedKV{
		db:     k.db,
		prefix: []byte(prefix),
	}
}

var _ storage.KVBroker = (*KVBroker)(nil)
