// Package storage wraps the pebble database in a dskit service so the
// module manager controls its lifecycle.
package storage

import (
	"context"
	"log/slog"

	"github.com/bridgefleet/bridgefleet/pkg/storage"
	bfpebble "github.com/bridgefleet/bridgefleet/pkg/storage/pebble"
	"github.com/cockroachdb/pebble/v2"
	"github.com/grafana/dskit/services"
)

type StorageService struct {
	logger *slog.Logger
	db     *pebble.DB
	broker storage.KVBroker

	services.Service
	storagePath string
}

var _ services.Service = (*StorageService)(nil)
var _ storage.KVBroker = (*StorageService)(nil)

func NewStorageService(
	logger *slog.Logger,
	storagePath string,
) (*StorageService, error) {
	kvDb, err := pebble.Open(
		storagePath,
		&pebble.Options{},
	)
	if err != nil {
		logger.Error("failed to start KV store")
		return nil, err
	}
	s := &StorageService{
		logger:      logger,
		storagePath: storagePath,
		db:          kvDb,
		broker:      bfpebble.NewKVBroker(kvDb),
	}

	s.Service = services.NewBasicService(nil, s.running, s.stopping)
	return s, nil
}

func (s *StorageService) running(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (s *StorageService) stopping(_ error) error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *StorageService) KeyValue(prefix string) storage.KV {
	return s.broker.KeyValue(prefix)
}
