package persistence

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	log "github.com/sirupsen/logrus"
)

const mysqlDuplicateEntry = 1062

//SQLBackend keeps each document as a single row of the Documents table in MySQL
type SQLBackend struct {
	db *sql.DB
}

//NewSQLBackend connects to MySQL and creates the Documents table if missing
func NewSQLBackend(dsn string, credentials string) (*SQLBackend, error) {
	connString := fmt.Sprintf("%s@/%s?interpolateParams=true&parseTime=true", credentials, dsn)
	db, err := sql.Open("mysql", connString)
	if err != nil {
		log.WithError(err).Error("error connecting to db")
		return nil, err
	}
	return newSQLBackend(db)
}

func newSQLBackend(db *sql.DB) (*SQLBackend, error) {
	if err := db.Ping(); err != nil {
		log.WithError(err).Error("error establishing active connection to db")
		return nil, err
	}

	query := `CREATE TABLE IF NOT EXISTS Documents (
		kind varchar(32) NOT NULL,
		body MEDIUMTEXT NOT NULL,
		PRIMARY KEY (kind))`
	if _, err := db.Exec(query); err != nil {
		log.WithError(err).Error("error creating Documents table")
		return nil, err
	}
	return &SQLBackend{db: db}, nil
}

func (b *SQLBackend) Read(kind Kind) ([]byte, error) {
	body, err := b.selectBody(kind)
	if err == nil {
		return body, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("select %s: %w", kind, err)
	}

	_, err = b.db.Exec(`INSERT INTO Documents (kind, body) VALUES (?, ?);`, string(kind), string(emptyDocument))
	if err != nil {
		var sqlError *mysql.MySQLError
		if errors.As(err, &sqlError) && sqlError.Number == mysqlDuplicateEntry {
			log.WithField("kind", kind).Debug("document was initialised concurrently, reading it back")
			return b.selectBody(kind)
		}
		return nil, fmt.Errorf("initialise %s: %w", kind, err)
	}
	log.WithField("kind", kind).Info("initialised empty document")
	return emptyDocument, nil
}

func (b *SQLBackend) selectBody(kind Kind) ([]byte, error) {
	var body string
	row := b.db.QueryRow(`SELECT body FROM Documents WHERE kind = ?;`, string(kind))
	if err := row.Scan(&body); err != nil {
		return nil, err
	}
	return []byte(body), nil
}

func (b *SQLBackend) Write(kind Kind, data []byte) error {
	query := `INSERT INTO Documents (kind, body) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE body = VALUES(body);`
	if _, err := b.db.Exec(query, string(kind), string(data)); err != nil {
		return fmt.Errorf("write %s: %w", kind, err)
	}
	return nil
}

func (b *SQLBackend) Ping() error {
	return b.db.Ping()
}

func (b *SQLBackend) Close() error {
	return b.db.Close()
}
