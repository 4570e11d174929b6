package store

import (
	"database/sql"

	"golang.org/x/crypto/bcrypt"
)

const adminPasswordHashKey = "admin_password_hash"

// SetMetadata upserts a key-value pair in the metadata table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetAdminPassword hashes and stores the admin password used for the
// analytics endpoints.
func (s *Store) SetAdminPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.SetMetadata(adminPasswordHashKey, string(hash))
}

// CheckAdminPassword compares a candidate against the stored hash. It
// returns false when no password has been set.
func (s *Store) CheckAdminPassword(password string) (bool, error) {
	hash, err := s.GetMetadata(adminPasswordHashKey)
	if err != nil {
		return false, err
	}
	if hash == "" {
		return false, nil
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil, nil
}
