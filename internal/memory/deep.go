package memory

import (
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/roguectrl/electricsheep/internal/cipher"
	"github.com/roguectrl/electricsheep/internal/clock"
	"github.com/roguectrl/electricsheep/internal/db"
	"github.com/roguectrl/electricsheep/internal/logging"
)

// timeLayout is fixed width so that text ordering in SQL matches time
// ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// FingerprintLen is the number of hex characters kept from the content hash.
const FingerprintLen = 16

// DeepStore is the encrypted record store. Every payload is encrypted
// before it reaches SQLite; plaintext exists only in memory.
type DeepStore struct {
	db     *db.DB
	cipher *cipher.Cipher
	clock  clock.Clock
	log    *logging.Logger
	owned  bool
}

// NewDeepStore wraps an open database. The caller keeps ownership of
// database; Close on the returned store does not close it.
func NewDeepStore(database *db.DB, c *cipher.Cipher, clk clock.Clock, log *logging.Logger) *DeepStore {
	if clk == nil {
		clk = clock.Real()
	}
	return &DeepStore{
		db:     database,
		cipher: c,
		clock:  clk,
		log:    logging.OrNop(log).With("component", "deep_memory"),
	}
}

// OpenDeep opens the database at path and returns a store that owns it.
func OpenDeep(path string, c *cipher.Cipher, clk clock.Clock, log *logging.Logger) (*DeepStore, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, fmt.Errorf("store: open deep memory: %w", err)
	}
	s := NewDeepStore(database, c, clk, log)
	s.owned = true
	return s, nil
}

// Close releases the database if this store opened it.
func (s *DeepStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// Fingerprint returns the first FingerprintLen hex characters of the
// BLAKE3 hash of data. It is a change signal, not a security property.
func Fingerprint(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])[:FingerprintLen]
}

// Store encrypts content and appends it as a new undreamed record.
// Returns the new record ID.
func (s *DeepStore) Store(content map[string]any, category string) (int64, error) {
	if category == "" {
		category = DefaultCategory
	}
	if content == nil {
		content = map[string]any{}
	}

	// encoding/json sorts map keys, so equal content serialises identically.
	plaintext, err := json.Marshal(content)
	if err != nil {
		return 0, fmt.Errorf("store: encode content: %w", err)
	}
	token, err := s.cipher.Encrypt(plaintext)
	if err != nil {
		return 0, fmt.Errorf("store: encrypt: %w", err)
	}

	res, err := s.db.Conn().Exec(`
		INSERT INTO deep_memories (created_at, category, encrypted_blob, content_hash, dreamed)
		VALUES (?, ?, ?, ?, 0)`,
		formatTime(s.clock.Now()), category, token, Fingerprint(plaintext),
	)
	if err != nil {
		return 0, fmt.Errorf("store: insert deep memory: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: insert deep memory: %w", err)
	}
	s.log.Debug("stored deep memory", "id", id, "category", category)
	return id, nil
}

// RetrieveUndreamed returns every undreamed record, oldest first. A row
// that fails to decrypt comes back as a corrupted sentinel in its place.
func (s *DeepStore) RetrieveUndreamed() ([]Record, error) {
	return s.Query(Filter{UndreamedOnly: true})
}

// Query returns matching records, oldest first, with the same
// decrypt-or-sentinel policy as RetrieveUndreamed.
func (s *DeepStore) Query(f Filter) ([]Record, error) {
	var (
		where []string
		args  []any
	)
	if f.UndreamedOnly {
		where = append(where, "dreamed = 0")
	}
	if len(f.Categories) > 0 {
		placeholders := make([]string, len(f.Categories))
		for i, c := range f.Categories {
			placeholders[i] = "?"
			args = append(args, c)
		}
		where = append(where, "category IN ("+strings.Join(placeholders, ", ")+")")
	}

	inner := `SELECT id, created_at, category, encrypted_blob, content_hash, dreamed, dream_date FROM deep_memories`
	if len(where) > 0 {
		inner += " WHERE " + strings.Join(where, " AND ")
	}

	var q string
	if f.Limit > 0 {
		q = `SELECT * FROM (` + inner + ` ORDER BY created_at DESC, id DESC LIMIT ?) ORDER BY created_at ASC, id ASC`
		args = append(args, f.Limit)
	} else {
		q = inner + ` ORDER BY created_at ASC, id ASC`
	}

	rows, err := s.db.Conn().Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query deep memories: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := s.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: query deep memories: %w", err)
	}
	return out, nil
}

func (s *DeepStore) scanRecord(rows *sql.Rows) (Record, error) {
	var (
		rec       Record
		createdAt string
		blob      []byte
		dreamed   int
		dreamDate sql.NullString
	)
	if err := rows.Scan(&rec.ID, &createdAt, &rec.Category, &blob, &rec.Fingerprint, &dreamed, &dreamDate); err != nil {
		return rec, fmt.Errorf("store: scan deep memory: %w", err)
	}
	rec.CreatedAt = parseTime(createdAt)
	rec.Dreamed = dreamed == 1
	if dreamDate.Valid {
		t := parseTime(dreamDate.String)
		rec.DreamedAt = &t
	}

	content, err := s.open(blob)
	if err != nil {
		s.log.Warn("deep memory unrecoverable", "id", rec.ID, "category", rec.Category, "error", err)
		rec.Category = CategoryCorrupted
		rec.Content = map[string]any{"note": corruptedNote}
		return rec, nil
	}
	rec.Content = content
	return rec, nil
}

func (s *DeepStore) open(token []byte) (map[string]any, error) {
	plaintext, err := s.cipher.Decrypt(token)
	if err != nil {
		return nil, err
	}
	var content map[string]any
	if err := json.Unmarshal(plaintext, &content); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	if content == nil {
		return nil, errors.New("decode content: not an object")
	}
	return content, nil
}

// MarkDreamed flags exactly the given records as dreamed and stamps the
// dream time. Records already dreamed keep their original stamp. An empty
// set is a no-op. Returns the number of records that changed.
func (s *DeepStore) MarkDreamed(ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := s.db.Conn().Begin()
	if err != nil {
		return 0, fmt.Errorf("store: mark dreamed: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`UPDATE deep_memories SET dreamed = 1, dream_date = ? WHERE id = ? AND dreamed = 0`)
	if err != nil {
		return 0, fmt.Errorf("store: mark dreamed: %w", err)
	}
	defer stmt.Close()

	now := formatTime(s.clock.Now())
	changed := 0
	for _, id := range ids {
		res, err := stmt.Exec(now, id)
		if err != nil {
			return 0, fmt.Errorf("store: mark dreamed %d: %w", id, err)
		}
		n, _ := res.RowsAffected()
		changed += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: mark dreamed: %w", err)
	}
	s.log.Debug("marked deep memories dreamed", "requested", len(ids), "changed", changed)
	return changed, nil
}

// Stats returns aggregate counts read fresh from the database.
func (s *DeepStore) Stats() (Stats, error) {
	st := Stats{ByCategory: map[string]int{}}

	err := s.db.Conn().QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN dreamed = 0 THEN 1 ELSE 0 END), 0)
		FROM deep_memories`).Scan(&st.Total, &st.Undreamed)
	if err != nil {
		return st, fmt.Errorf("store: stats: %w", err)
	}
	st.Dreamed = st.Total - st.Undreamed

	rows, err := s.db.Conn().Query(`SELECT category, COUNT(*) FROM deep_memories GROUP BY category`)
	if err != nil {
		return st, fmt.Errorf("store: stats by category: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return st, fmt.Errorf("store: stats by category: %w", err)
		}
		st.ByCategory[cat] = n
	}
	return st, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime parses the fixed-width layout, falling back to RFC 3339.
func parseTime(s string) time.Time {
	for _, layout := range []string{timeLayout, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
