package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/saltstream/saltstream/pkg/message"
	"github.com/saltstream/saltstream/pkg/sponge"
)

// DB is a SQLite-backed Store for participants that must survive
// restarts without replaying the stream.
type DB struct {
	db *sql.DB
}

// OpenDB opens or creates the link database at dbPath.
func OpenDB(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %v", err)
	}

	d := &DB{db: db}
	if err := d.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

// initSchema creates database tables
func (d *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS links (
		msg_id BLOB PRIMARY KEY,
		inner_state BLOB NOT NULL,
		content_type INTEGER NOT NULL,
		topic TEXT NOT NULL,
		seq_num INTEGER NOT NULL,
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);
	`
	if _, err := d.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %v", err)
	}
	return nil
}

func (d *DB) Lookup(id message.MsgId) (*sponge.Spongos, Info, error) {
	var (
		inner []byte
		info  Info
		topic string
	)
	err := d.db.QueryRow(
		"SELECT inner_state, content_type, topic, seq_num FROM links WHERE msg_id = ?",
		id[:],
	).Scan(&inner, &info.ContentType, &topic, &info.SeqNum)
	if err == sql.ErrNoRows {
		return nil, Info{}, ErrLinkNotFound
	}
	if err != nil {
		return nil, Info{}, fmt.Errorf("failed to look up link: %v", err)
	}
	info.Topic = message.Topic(topic)
	st, err := sponge.FromInner(inner)
	if err != nil {
		return nil, Info{}, err
	}
	return st, info, nil
}

func (d *DB) Update(id message.MsgId, st *sponge.Spongos, info Info) error {
	inner, err := st.Inner()
	if err != nil {
		return err
	}
	_, err = d.db.Exec(`
		INSERT INTO links (msg_id, inner_state, content_type, topic, seq_num)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(msg_id) DO UPDATE SET
			inner_state = excluded.inner_state,
			content_type = excluded.content_type,
			topic = excluded.topic,
			seq_num = excluded.seq_num,
			updated_at = strftime('%s', 'now')`,
		id[:], inner, info.ContentType, string(info.Topic), info.SeqNum,
	)
	if err != nil {
		return fmt.Errorf("failed to store link: %v", err)
	}
	return nil
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.db.Close()
}
