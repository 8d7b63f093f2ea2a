// Package journal provides a tamper-evident append-only journal. Each
// entry carries the checksum of its predecessor, so any rewrite of the
// file breaks the chain and is caught by Verify.
package journal

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is one journaled record.
type Entry struct {
	Sequence  int64           `json:"sequence"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	PrevHash  string          `json:"prevHash,omitempty"`
	Checksum  string          `json:"checksum"`
}

// Journal is an append-only, hash-chained record log.
type Journal interface {
	// Append adds a payload to the end of the journal.
	Append(payload []byte) (*Entry, error)

	// Entries reads every entry in order.
	Entries() ([]Entry, error)

	// Verify walks the chain and reports the first broken link.
	Verify() error
}

// FileJournal stores entries as newline-delimited JSON in a single file.
type FileJournal struct {
	path     string
	mu       sync.Mutex
	lastHash string
	lastSeq  int64
}

// Open opens the journal at path, creating the file and its parent
// directories if needed, and restores the chain tail from the last entry.
func Open(path string) (*FileJournal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	file.Close()

	j := &FileJournal{path: path}
	entries, err := j.readAll()
	if err != nil {
		return nil, err
	}
	if n := len(entries); n > 0 {
		j.lastHash = entries[n-1].Checksum
		j.lastSeq = entries[n-1].Sequence
	}
	return j, nil
}

// Append writes a payload as the next chained entry and syncs it to disk.
func (j *FileJournal) Append(payload []byte) (*Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	entry := Entry{
		Sequence:  j.lastSeq + 1,
		Timestamp: time.Now().UTC(),
		Payload:   append(json.RawMessage(nil), payload...),
		PrevHash:  j.lastHash,
	}
	entry.Checksum = checksum(&entry)

	line, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to encode journal entry: %w", err)
	}

	file, err := os.OpenFile(j.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal for appending: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(line, '\n')); err != nil {
		return nil, fmt.Errorf("failed to write journal entry: %w", err)
	}
	if err := file.Sync(); err != nil {
		return nil, fmt.Errorf("failed to sync journal: %w", err)
	}

	j.lastHash = entry.Checksum
	j.lastSeq = entry.Sequence
	return &entry, nil
}

// Entries reads every entry from the journal in write order.
func (j *FileJournal) Entries() ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.readAll()
}

// Verify recomputes every checksum and checks the chain links.
func (j *FileJournal) Verify() error {
	entries, err := j.Entries()
	if err != nil {
		return err
	}
	return verifyChain(entries)
}

// LastHash returns the checksum of the most recent entry, or the empty
// string for an empty journal.
func (j *FileJournal) LastHash() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastHash
}

func (j *FileJournal) readAll() ([]Entry, error) {
	file, err := os.Open(j.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("corrupt journal entry at line %d: %w", len(entries)+1, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan journal: %w", err)
	}
	return entries, nil
}

// checksum hashes the chained fields of an entry.
func checksum(e *Entry) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|", e.Sequence, e.Timestamp.Format(time.RFC3339Nano))
	h.Write(e.Payload)
	h.Write([]byte("|" + e.PrevHash))
	return hex.EncodeToString(h.Sum(nil))
}

func verifyChain(entries []Entry) error {
	prev := ""
	for i := range entries {
		e := &entries[i]
		if e.PrevHash != prev {
			return fmt.Errorf("journal chain broken at sequence %d", e.Sequence)
		}
		if checksum(e) != e.Checksum {
			return fmt.Errorf("journal checksum mismatch at sequence %d", e.Sequence)
		}
		prev = e.Checksum
	}
	return nil
}

// MemoryJournal keeps entries in memory. Useful for tests.
type MemoryJournal struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemoryJournal creates an empty in-memory journal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

// Append adds a payload as the next chained entry.
func (j *MemoryJournal) Append(payload []byte) (*Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	entry := Entry{
		Sequence:  int64(len(j.entries) + 1),
		Timestamp: time.Now().UTC(),
		Payload:   append(json.RawMessage(nil), payload...),
	}
	if n := len(j.entries); n > 0 {
		entry.PrevHash = j.entries[n-1].Checksum
	}
	entry.Checksum = checksum(&entry)
	j.entries = append(j.entries, entry)
	return &entry, nil
}

// Entries returns a copy of every entry in write order.
func (j *MemoryJournal) Entries() ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Entry(nil), j.entries...), nil
}

// Verify walks the chain and reports the first broken link.
func (j *MemoryJournal) Verify() error {
	entries, _ := j.Entries()
	return verifyChain(entries)
}
