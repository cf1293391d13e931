package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"signalflow/models"
)

// DB persists channel records and account risk snapshots across restarts.
// The pipeline core never touches it; cmd loads state at startup and saves
// on shutdown and periodically.
type DB struct {
	*sql.DB
}

// ConnectionParams holds PostgreSQL connection parameters
type ConnectionParams struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// New creates a new database connection
func New(params ConnectionParams) (*DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		params.Host, params.Port, params.User, params.Password, params.DBName, params.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	if err := createTables(db); err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS channel_records (
			channel_id TEXT PRIMARY KEY,
			name TEXT,
			broker TEXT,
			min_confidence INTEGER NOT NULL,
			martingale_enabled BOOLEAN NOT NULL,
			total_signals INTEGER NOT NULL,
			successful_signals INTEGER NOT NULL,
			avg_confidence DOUBLE PRECISION NOT NULL,
			win_rate DOUBLE PRECISION NOT NULL,
			first_seen TIMESTAMP NOT NULL,
			last_signal TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS account_state (
			id INTEGER PRIMARY KEY DEFAULT 1,
			balance DOUBLE PRECISION NOT NULL,
			daily_pnl DOUBLE PRECISION NOT NULL,
			daily_trades INTEGER NOT NULL,
			max_daily_balance DOUBLE PRECISION NOT NULL,
			day TEXT NOT NULL,
			realized_wins INTEGER NOT NULL,
			realized_losses INTEGER NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	return err
}

// SaveChannels upserts a snapshot of every channel record
func (db *DB) SaveChannels(records []models.ChannelRecord) error {
	for _, rec := range records {
		var lastSignal sql.NullTime
		if !rec.LastSignal.IsZero() {
			lastSignal = sql.NullTime{Time: rec.LastSignal, Valid: true}
		}

		_, err := db.Exec(`
			INSERT INTO channel_records (
				channel_id, name, broker, min_confidence, martingale_enabled,
				total_signals, successful_signals, avg_confidence, win_rate,
				first_seen, last_signal
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (channel_id)
			DO UPDATE SET
				name = EXCLUDED.name,
				broker = EXCLUDED.broker,
				min_confidence = EXCLUDED.min_confidence,
				martingale_enabled = EXCLUDED.martingale_enabled,
				total_signals = EXCLUDED.total_signals,
				successful_signals = EXCLUDED.successful_signals,
				avg_confidence = EXCLUDED.avg_confidence,
				win_rate = EXCLUDED.win_rate,
				last_signal = EXCLUDED.last_signal
		`,
			rec.ID, rec.Name, rec.Broker, rec.MinConfidence, rec.MartingaleEnabled,
			rec.Performance.TotalSignals, rec.Performance.SuccessfulSignals,
			rec.Performance.AvgConfidence, rec.Performance.WinRate,
			rec.FirstSeen, lastSignal)
		if err != nil {
			return fmt.Errorf("saving channel %s: %w", rec.ID, err)
		}
	}
	return nil
}

// LoadChannels retrieves every persisted channel record
func (db *DB) LoadChannels() ([]models.ChannelRecord, error) {
	rows, err := db.Query(`
		SELECT
			channel_id, name, broker, min_confidence, martingale_enabled,
			total_signals, successful_signals, avg_confidence, win_rate,
			first_seen, last_signal
		FROM channel_records
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.ChannelRecord
	for rows.Next() {
		var rec models.ChannelRecord
		var name, broker sql.NullString
		var lastSignal sql.NullTime

		err := rows.Scan(
			&rec.ID, &name, &broker, &rec.MinConfidence, &rec.MartingaleEnabled,
			&rec.Performance.TotalSignals, &rec.Performance.SuccessfulSignals,
			&rec.Performance.AvgConfidence, &rec.Performance.WinRate,
			&rec.FirstSeen, &lastSignal,
		)
		if err != nil {
			return nil, err
		}

		if name.Valid {
			rec.Name = name.String
		}
		if broker.Valid {
			rec.Broker = broker.String
		}
		if lastSignal.Valid {
			rec.LastSignal = lastSignal.Time
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SaveAccount upserts the single account state row
func (db *DB) SaveAccount(state models.AccountRiskState) error {
	_, err := db.Exec(`
		INSERT INTO account_state (
			id, balance, daily_pnl, daily_trades, max_daily_balance,
			day, realized_wins, realized_losses, updated_at
		) VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id)
		DO UPDATE SET
			balance = EXCLUDED.balance,
			daily_pnl = EXCLUDED.daily_pnl,
			daily_trades = EXCLUDED.daily_trades,
			max_daily_balance = EXCLUDED.max_daily_balance,
			day = EXCLUDED.day,
			realized_wins = EXCLUDED.realized_wins,
			realized_losses = EXCLUDED.realized_losses,
			updated_at = EXCLUDED.updated_at
	`,
		state.Balance, state.DailyPnL, state.DailyTrades, state.MaxDailyBalance,
		state.Day, state.RealizedWins, state.RealizedLosses, time.Now().UTC())
	return err
}

// LoadAccount retrieves the persisted account state, nil when none exists
func (db *DB) LoadAccount() (*models.AccountRiskState, error) {
	var state models.AccountRiskState

	err := db.QueryRow(`
		SELECT balance, daily_pnl, daily_trades, max_daily_balance,
			day, realized_wins, realized_losses
		FROM account_state
		WHERE id = 1
	`).Scan(
		&state.Balance, &state.DailyPnL, &state.DailyTrades, &state.MaxDailyBalance,
		&state.Day, &state.RealizedWins, &state.RealizedLosses,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	state.OpenTrades = make(map[string]struct{})
	return &state, nil
}
