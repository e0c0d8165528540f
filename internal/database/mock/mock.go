// Package mock provides in-memory implementations of the database interfaces
// for testing.
package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/roll-call/internal/database"
)

// StudentStore is an in-memory implementation of database.StudentWriter.
type StudentStore struct {
	mu       sync.RWMutex
	students map[string]database.StoredStudent

	// Error injection
	GetError  error
	HasError  error
	ListError error
	SaveError error

	// SaveCalls counts SaveStudent invocations, useful for skip-path assertions.
	SaveCalls int
}

// NewStudentStore creates a new in-memory student store.
func NewStudentStore() *StudentStore {
	return &StudentStore{
		students: make(map[string]database.StoredStudent),
	}
}

// GetStudent retrieves a student by ID, returns nil if not found.
func (m *StudentStore) GetStudent(ctx context.Context, studentID string) (*database.StoredStudent, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[studentID]
	if !ok {
		return nil, nil
	}
	cp := s
	return &cp, nil
}

// HasStudent checks if a student exists.
func (m *StudentStore) HasStudent(ctx context.Context, studentID string) (bool, error) {
	if m.HasError != nil {
		return false, m.HasError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.students[studentID]
	return ok, nil
}

// ListStudents returns all students ordered by ID.
func (m *StudentStore) ListStudents(ctx context.Context) ([]database.StoredStudent, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.StoredStudent, 0, len(m.students))
	for _, s := range m.students {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CountStudents returns the number of stored students.
func (m *StudentStore) CountStudents(ctx context.Context) (int, error) {
	if m.ListError != nil {
		return 0, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.students), nil
}

// SaveStudent stores a student, replacing any previous record.
func (m *StudentStore) SaveStudent(ctx context.Context, student database.StoredStudent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveCalls++
	if m.SaveError != nil {
		return m.SaveError
	}
	m.students[student.ID] = student
	return nil
}

// AttendanceStore is an in-memory implementation of database.AttendanceWriter.
type AttendanceStore struct {
	mu      sync.Mutex
	records map[string]database.AttendanceRecord // key: studentID|date
	nextID  int64

	// Error injection
	MarkError error
	GetError  error
}

// NewAttendanceStore creates a new in-memory attendance store.
func NewAttendanceStore() *AttendanceStore {
	return &AttendanceStore{
		records: make(map[string]database.AttendanceRecord),
	}
}

// MarkAttendance inserts a record unless one exists for (student, date).
func (m *AttendanceStore) MarkAttendance(ctx context.Context, rec database.AttendanceRecord) (bool, error) {
	if m.MarkError != nil {
		return false, m.MarkError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := rec.StudentID + "|" + rec.DateKey()
	if _, exists := m.records[key]; exists {
		return false, nil
	}
	m.nextID++
	rec.ID = m.nextID
	rec.CreatedAt = time.Now()
	m.records[key] = rec
	return true, nil
}

// GetAttendance returns all records for one date.
func (m *AttendanceStore) GetAttendance(ctx context.Context, date time.Time) ([]database.AttendanceRecord, error) {
	return m.GetAttendanceRange(ctx, date, date)
}

// GetAttendanceRange returns records with dates in [from, to].
func (m *AttendanceStore) GetAttendanceRange(ctx context.Context, from, to time.Time) ([]database.AttendanceRecord, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	fromKey := from.Format(database.DateFormat)
	toKey := to.Format(database.DateFormat)

	var out []database.AttendanceRecord
	for _, rec := range m.records {
		key := rec.DateKey()
		if key >= fromKey && key <= toKey {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DateKey() != out[j].DateKey() {
			return out[i].DateKey() < out[j].DateKey()
		}
		return out[i].StudentID < out[j].StudentID
	})
	return out, nil
}

// Store bundles the mock repositories into a database.Store.
type Store struct {
	StudentStore    *StudentStore
	AttendanceStore *AttendanceStore
}

// NewStore creates a mock store with fresh repositories.
func NewStore() *Store {
	return &Store{
		StudentStore:    NewStudentStore(),
		AttendanceStore: NewAttendanceStore(),
	}
}

func (s *Store) Students() database.StudentWriter {
	return s.StudentStore
}

func (s *Store) Attendance() database.AttendanceWriter {
	return s.AttendanceStore
}

func (s *Store) Close() error {
	return nil
}
