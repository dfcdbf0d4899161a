package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"tickflow/internal/model"
)

func TestJsonlStoragePutEventBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "events.jsonl")
	s := NewJsonlStorage(path)

	batch := []model.EventRecord{
		{Seq: 1, Op: model.OpInitialize, Amount0: "0", Amount1: "0"},
		{Seq: 2, Op: model.OpMint, Amount0: "100", Amount1: "200"},
	}
	if err := s.PutEventBatch(batch); err != nil {
		t.Fatalf("PutEventBatch: %v", err)
	}
	// Appending a second batch keeps earlier lines.
	if err := s.PutEventBatch([]model.EventRecord{{Seq: 3, Op: model.OpSwap, Amount0: "5", Amount1: "-4"}}); err != nil {
		t.Fatalf("PutEventBatch: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer file.Close()

	var got []model.EventRecord
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var rec model.EventRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("unmarshal line: %v", err)
		}
		got = append(got, rec)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("got %d records, want 3", len(got))
	}
	if got[0].Seq != 1 || got[2].Seq != 3 {
		t.Fatalf("records out of order: %+v", got)
	}
	if got[1].Amount1 != "200" {
		t.Fatalf("amount1 = %q, want 200", got[1].Amount1)
	}
}

func TestJsonlStorageEmptyBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	s := NewJsonlStorage(path)

	if err := s.PutEventBatch(nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("empty batch must not create the file")
	}
}
