package distill

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// Spooler moves queued records into an append-only JSONL file read by the
// offline trainer.
type Spooler struct {
	queue *Queue
	path  string
	log   *zap.Logger
}

// NewSpooler creates a Spooler writing to path.
func NewSpooler(q *Queue, path string, log *zap.Logger) *Spooler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Spooler{queue: q, path: path, log: log.Named("spool")}
}

// Flush drains the queue and appends every record as one JSON line. Records
// drained before a write error are lost; the error reports how many.
func (s *Spooler) Flush() (int, error) {
	recs := s.queue.Drain(0)
	if len(recs) == 0 {
		return 0, nil
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, fmt.Errorf("open spool: %w (%d records lost)", err, len(recs))
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for i, rec := range recs {
		if err := enc.Encode(rec); err != nil {
			return i, fmt.Errorf("write spool: %w (%d records lost)", err, len(recs)-i)
		}
	}
	if err := w.Flush(); err != nil {
		return 0, fmt.Errorf("flush spool: %w (%d records lost)", err, len(recs))
	}
	s.log.Debug("spooled distillation records", zap.Int("count", len(recs)), zap.String("path", s.path))
	return len(recs), nil
}

// CountSpooled returns the number of records in the spool file at path.
// A missing file holds zero records.
func CountSpooled(path string) (int, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("open spool: %w", err)
	}
	defer f.Close()

	n := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) > 0 {
			n++
		}
	}
	return n, scanner.Err()
}
