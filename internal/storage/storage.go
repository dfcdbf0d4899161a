package storage

import "tickflow/internal/model"

// Storage defines a sink for replay event records.
type Storage interface {
	PutEventBatch(events []model.EventRecord) error
}
