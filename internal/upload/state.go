package upload

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// StateDB tracks which workout files have been uploaded to avoid re-sending
// unchanged ones.
type StateDB struct {
	db *sql.DB
}

// OpenStateDB opens (or creates) the SQLite state database at dir/upload_state.db.
func OpenStateDB(dir string) (*StateDB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir %s: %w", dir, err)
	}

	dbPath := filepath.Join(dir, "upload_state.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS uploaded_workouts (
		external_id TEXT PRIMARY KEY,
		hash        TEXT NOT NULL,
		uploaded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating state table: %w", err)
	}

	return &StateDB{db: db}, nil
}

// IsUploaded reports whether externalID was uploaded with the same content hash.
func (s *StateDB) IsUploaded(externalID, hash string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM uploaded_workouts WHERE external_id = ? AND hash = ?`,
		externalID, hash,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("querying upload state for %s: %w", externalID, err)
	}
	return count > 0, nil
}

// MarkUploaded records that externalID was uploaded with the given hash.
func (s *StateDB) MarkUploaded(externalID, hash string) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO uploaded_workouts (external_id, hash) VALUES (?, ?)`,
		externalID, hash,
	)
	if err != nil {
		return fmt.Errorf("recording upload of %s: %w", externalID, err)
	}
	return nil
}

// Close closes the state database.
func (s *StateDB) Close() error {
	return s.db.Close()
}

// HashContent computes the hex SHA-256 of a file's content.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
