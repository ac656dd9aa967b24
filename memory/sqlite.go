package memory

import (
	"fmt"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aidenhq/aiden/core"
)

// turnRow is the persisted form of a conversation turn. Rows are append-only;
// the auto-increment primary key doubles as the ordering within a session.
type turnRow struct {
	ID         uint   `gorm:"primaryKey"`
	TurnID     string `gorm:"size:64;uniqueIndex"`
	SessionID  string `gorm:"size:128;index:idx_session"`
	Role       string `gorm:"size:16"`
	Content    string
	ToolName   string `gorm:"size:128"`
	Incomplete bool
	CreatedAt  int64 `gorm:"autoCreateTime:nano"`
}

func (turnRow) TableName() string { return "turns" }

// SQLiteStore is a durable MemoryStore backed by SQLite via GORM. Appends to
// the same session are serialized through a per-session lock so a turn is
// either fully written or absent, never interleaved.
type SQLiteStore struct {
	db *gorm.DB

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewSQLiteStore opens (creating if needed) the database at path and migrates
// the schema. Use ":memory:" for an ephemeral database in tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := db.AutoMigrate(&turnRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &SQLiteStore{
		db:    db,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// Get rebuilds the full session from its persisted turns. Unknown sessions
// come back empty, mirroring the in-memory store's lazy creation.
func (s *SQLiteStore) Get(sessionID string) (*core.Session, error) {
	turns, err := s.History(sessionID, 0)
	if err != nil {
		return nil, err
	}

	sess := core.NewSession(sessionID)
	for _, t := range turns {
		sess.Append(t)
	}
	return sess, nil
}

// AppendTurn persists a single turn at the end of the session's history.
func (s *SQLiteStore) AppendTurn(sessionID string, t core.Turn) error {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	row := turnRow{
		TurnID:     t.ID,
		SessionID:  sessionID,
		Role:       string(t.Role),
		Content:    t.Content,
		ToolName:   t.ToolName,
		Incomplete: t.Incomplete,
		CreatedAt:  t.CreatedAt.UnixNano(),
	}
	if err := s.db.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}
	return nil
}

// History returns the most recent turns for a session in chronological order.
// A limit <= 0 returns the full history.
func (s *SQLiteStore) History(sessionID string, limit int) ([]core.Turn, error) {
	var rows []turnRow

	query := s.db.Where("session_id = ?", sessionID).Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	// Rows arrive newest-first; reverse into chronological order.
	turns := make([]core.Turn, len(rows))
	for i, row := range rows {
		turns[len(rows)-1-i] = rowToTurn(row)
	}
	return turns, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLiteStore) sessionLock(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[sessionID] = lock
	}
	return lock
}

func rowToTurn(row turnRow) core.Turn {
	return core.Turn{
		ID:         row.TurnID,
		Role:       core.Role(row.Role),
		Content:    row.Content,
		ToolName:   row.ToolName,
		Incomplete: row.Incomplete,
		CreatedAt:  time.Unix(0, row.CreatedAt),
	}
}
