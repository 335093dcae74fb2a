package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ohowland/elec_core/internal/pkg/msg"
	"github.com/ohowland/elec_core/internal/pkg/network"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

// Handler keeps the latest status of every component in the realtime table
// of a MySQL or PostgreSQL database.
type Handler struct {
	mux    *sync.Mutex
	inbox  <-chan msg.Msg
	pid    uuid.UUID
	config config
	stop   chan bool
}

type config struct {
	Driver   string `json:"Driver"` // mysql or postgres
	Server   string `json:"Server"`
	Port     int    `json:"Port"`
	Username string `json:"Username"`
	Password string `json:"Password"`
	Database string `json:"Database"`
}

func (h Handler) PID() uuid.UUID {
	return h.pid
}

func redirectMsg(chIn <-chan msg.Msg, chOut chan<- msg.Msg) {
	for m := range chIn {
		chOut <- m
	}
}

// New reads the handler configuration and subscribes to system.
func New(configPath string, system msg.Publisher) (Handler, error) {
	jsonConfig, err := os.ReadFile(configPath)
	if err != nil {
		return Handler{}, err
	}
	cfg := config{Driver: "mysql"}
	if err := json.Unmarshal(jsonConfig, &cfg); err != nil {
		return Handler{}, err
	}
	if cfg.Driver != "mysql" && cfg.Driver != "postgres" {
		return Handler{}, fmt.Errorf("unsupported sql driver %q", cfg.Driver)
	}

	pid, err := uuid.NewUUID()
	if err != nil {
		return Handler{}, err
	}

	inbox := make(chan msg.Msg, 50)

	chStatus, err := system.Subscribe(pid, msg.Status)
	if err != nil {
		return Handler{}, err
	}
	go redirectMsg(chStatus, inbox)

	return Handler{
		mux:    &sync.Mutex{},
		inbox:  inbox,
		pid:    pid,
		config: cfg,
		stop:   make(chan bool, 1),
	}, nil
}

// Stop ends Process.
func (h *Handler) Stop() {
	h.stop <- true
}

// DSN is the data source name for the configured driver.
func (h Handler) DSN() string {
	c := h.config
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.Server, c.Port, c.Username, c.Password, c.Database)
	}
	return fmt.Sprintf("%v:%v@tcp(%v:%v)/%v", c.Username, c.Password, c.Server, c.Port, c.Database)
}

// DB opens the database. No connection is made until first use.
func (h Handler) DB() (*sql.DB, error) {
	return sql.Open(h.config.Driver, h.DSN())
}

const createTable = `CREATE TABLE IF NOT EXISTS realtime (
	network VARCHAR(64) NOT NULL,
	name VARCHAR(64) NOT NULL,
	type VARCHAR(16) NOT NULL,
	status TEXT NOT NULL,
	PRIMARY KEY (network, name))`

// upsertStatement replaces the status row of one component.
func (h Handler) upsertStatement() string {
	if h.config.Driver == "postgres" {
		return `INSERT INTO realtime (network, name, type, status) VALUES ($1, $2, $3, $4)
	ON CONFLICT (network, name) DO UPDATE SET type = EXCLUDED.type, status = EXCLUDED.status`
	}
	return `INSERT INTO realtime (network, name, type, status) VALUES (?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE type = VALUES(type), status = VALUES(status)`
}

type row struct {
	network string
	name    string
	typ     string
	status  string
}

func rows(snap *network.Snapshot) ([]row, error) {
	status := snap.Status()
	out := make([]row, 0, len(status))
	for _, cs := range status {
		data, err := json.Marshal(cs)
		if err != nil {
			return nil, err
		}
		out = append(out, row{snap.Network, cs.Name, cs.Type, string(data)})
	}
	return out, nil
}

// Process writes every snapshot until Stop.
func (h Handler) Process() error {
	db, err := h.DB()
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.Exec(createTable); err != nil {
		return err
	}
	stmt := h.upsertStatement()

loop:
	for {
		select {
		case m := <-h.inbox:
			snap, ok := m.Payload().(*network.Snapshot)
			if !ok {
				continue
			}
			if err := h.write(db, stmt, snap); err != nil {
				log.Printf("[SQL] error %s update db", err)
			}

		case <-h.stop:
			break loop
		}
	}
	log.Println("[SQL] Process Shutdown")
	return nil
}

func (h Handler) write(db *sql.DB, stmt string, snap *network.Snapshot) error {
	rs, err := rows(snap)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, r := range rs {
		if _, err := tx.ExecContext(ctx, stmt, r.network, r.name, r.typ, r.status); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
