package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"park-ticketing/internal/logger"
	"park-ticketing/internal/models"
)

var ErrTicketNotFound = errors.New("ticket not found")

var ErrDuplicateTicket = errors.New("ticket id already stored")

// FileStore keeps every ticket in memory and mirrors the whole collection to a
// JSON array on disk after each append.
type FileStore struct {
	mu      sync.RWMutex
	path    string
	tickets []models.Ticket
	nextID  int64
	logger  *logger.Logger
}

// OpenFileStore loads path if it exists. A file that cannot be read or parsed
// is moved aside and the store starts empty.
func OpenFileStore(path string, log *logger.Logger) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	s := &FileStore{path: path, logger: log}
	s.tickets = s.load()

	var max int64
	for _, t := range s.tickets {
		if t.ID > max {
			max = t.ID
		}
	}
	s.nextID = max + 1

	log.LogDatabase("LOAD", path, fmt.Sprintf("%d tickets loaded, next id %d", len(s.tickets), s.nextID))
	return s, nil
}

func (s *FileStore) load() []models.Ticket {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []models.Ticket{}
	}
	if err != nil {
		s.logger.Error("DATABASE", fmt.Sprintf("Failed to read %s, starting empty: %v", s.path, err))
		return []models.Ticket{}
	}
	if len(data) == 0 {
		return []models.Ticket{}
	}

	var tickets []models.Ticket
	if err := json.Unmarshal(data, &tickets); err != nil {
		s.logger.Error("DATABASE", fmt.Sprintf("Corrupt ticket file %s, starting empty: %v", s.path, err))
		s.quarantine()
		return []models.Ticket{}
	}
	if tickets == nil {
		tickets = []models.Ticket{}
	}
	return tickets
}

func (s *FileStore) quarantine() {
	aside := fmt.Sprintf("%s.corrupt-%d", s.path, time.Now().Unix())
	if err := os.Rename(s.path, aside); err != nil {
		s.logger.Warn("DATABASE", fmt.Sprintf("Could not move corrupt file aside: %v", err))
		return
	}
	s.logger.Warn("DATABASE", fmt.Sprintf("Corrupt ticket file kept at %s", aside))
}

func (s *FileStore) NextID(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	return id, nil
}

func (s *FileStore) MaxID(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var max int64
	for _, t := range s.tickets {
		if t.ID > max {
			max = t.ID
		}
	}
	return max, nil
}

// AppendTicket adds the ticket and rewrites the backing file. When the write
// fails the in-memory collection is left as it was.
func (s *FileStore) AppendTicket(ctx context.Context, ticket models.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tickets {
		if t.ID == ticket.ID {
			return fmt.Errorf("%w: %d", ErrDuplicateTicket, ticket.ID)
		}
	}

	next := append(s.tickets[:len(s.tickets):len(s.tickets)], ticket)
	if err := s.persist(next); err != nil {
		return fmt.Errorf("failed to persist ticket %d: %w", ticket.ID, err)
	}
	s.tickets = next
	if ticket.ID >= s.nextID {
		s.nextID = ticket.ID + 1
	}
	return nil
}

func (s *FileStore) persist(tickets []models.Ticket) error {
	data, err := json.MarshalIndent(tickets, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".tickets-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, s.path)
}

func (s *FileStore) ListTickets(ctx context.Context) ([]models.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Ticket, len(s.tickets))
	copy(out, s.tickets)
	return out, nil
}

func (s *FileStore) GetTicketByID(ctx context.Context, id int64) (*models.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tickets {
		if t.ID == id {
			found := t
			return &found, nil
		}
	}
	return nil, ErrTicketNotFound
}
