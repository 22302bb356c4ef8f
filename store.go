package main

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bodul/loto/ticket"
)

// historyLimit caps the scans returned for one user.
const historyLimit = 50

var errScanNotFound = errors.New("scan not found")

// ScanRecord is one recognized upload.
type ScanRecord struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id,omitempty"`
	ImageName   string         `json:"image_name"`
	LotteryType string         `json:"lottery_type"`
	Blocks      []ticket.Block `json:"blocks,omitempty"`
	Numbers     []int          `json:"extracted_numbers"`
	TicketID    string         `json:"ticket_id,omitempty"`
	Confidence  float64        `json:"confidence"`
	Status      string         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
}

// ScanHistoryItem is the summary listed in a user's history.
type ScanHistoryItem struct {
	ID               string    `json:"id"`
	ExtractedNumbers []int     `json:"extracted_numbers"`
	Confidence       float64   `json:"confidence"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
}

func (r *ScanRecord) historyItem() ScanHistoryItem {
	return ScanHistoryItem{
		ID:               r.ID,
		ExtractedNumbers: r.Numbers,
		Confidence:       r.Confidence,
		Status:           r.Status,
		CreatedAt:        r.CreatedAt,
	}
}

// ScanStore keeps the scan history.
type ScanStore interface {
	// SaveScan assigns the record an ID and creation time and stores it.
	SaveScan(ctx context.Context, rec *ScanRecord) error
	// ScansByUser returns the user's latest scans, most recent first.
	ScansByUser(ctx context.Context, userID string) ([]ScanHistoryItem, error)
	// Scan returns a record by ID or errScanNotFound.
	Scan(ctx context.Context, id string) (*ScanRecord, error)
	Close()
}

// MemoryStore holds the scan history in memory.
type MemoryStore struct {
	mu    sync.RWMutex
	scans map[string]*ScanRecord
	now   func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		scans: make(map[string]*ScanRecord),
		now:   time.Now,
	}
}

func (s *MemoryStore) SaveScan(_ context.Context, rec *ScanRecord) error {
	rec.ID = uuid.NewString()
	rec.CreatedAt = s.now().UTC()

	cp := *rec
	s.mu.Lock()
	s.scans[cp.ID] = &cp
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ScansByUser(_ context.Context, userID string) ([]ScanHistoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var list []*ScanRecord
	for _, rec := range s.scans {
		if rec.UserID == userID {
			list = append(list, rec)
		}
	}
	slices.SortFunc(list, func(a, b *ScanRecord) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if len(list) > historyLimit {
		list = list[:historyLimit]
	}

	items := make([]ScanHistoryItem, len(list))
	for i, rec := range list {
		items[i] = rec.historyItem()
	}
	return items, nil
}

func (s *MemoryStore) Scan(_ context.Context, id string) (*ScanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.scans[id]
	if !ok {
		return nil, errScanNotFound
	}
	cp := *rec
	return &cp, nil
}

// Len returns the number of stored scans.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.scans)
}

func (s *MemoryStore) Close() {}
