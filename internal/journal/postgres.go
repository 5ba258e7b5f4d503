package journal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"futures-trading-engine/config"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Postgres is a pgx-backed trade journal.
type Postgres struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id UUID PRIMARY KEY,
	symbol VARCHAR(20) NOT NULL,
	direction VARCHAR(5) NOT NULL,
	strategy VARCHAR(20) NOT NULL,
	entry_price DECIMAL(20, 8) NOT NULL,
	quantity DECIMAL(20, 8) NOT NULL,
	dca_count INT NOT NULL DEFAULT 0,
	stop_loss DECIMAL(20, 8),
	take_profit DECIMAL(20, 8),
	entry_time TIMESTAMPTZ NOT NULL,
	exit_price DECIMAL(20, 8),
	exit_time TIMESTAMPTZ,
	pnl_percent DECIMAL(10, 4),
	exit_reason TEXT,
	status VARCHAR(10) NOT NULL DEFAULT 'OPEN'
);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status);
`

// NewPostgres connects to the journal database and ensures the schema exists.
func NewPostgres(cfg config.DatabaseConfig, logger zerolog.Logger) (*Postgres, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing journal database config: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating journal pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging journal database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating journal schema: %w", err)
	}

	return &Postgres{
		pool: pool,
		log:  logger.With().Str("component", "journal").Logger(),
	}, nil
}

// Append inserts a new trade record.
func (p *Postgres) Append(ctx context.Context, trade *TradeRecord) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO trades (
			id, symbol, direction, strategy, entry_price, quantity, dca_count,
			stop_loss, take_profit, entry_time, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		trade.ID, trade.Symbol, trade.Direction, trade.Strategy,
		trade.EntryPrice, trade.Quantity, trade.DCACount,
		trade.StopLoss, trade.TakeProfit, trade.EntryTime, trade.Status,
	)
	if err != nil {
		return fmt.Errorf("appending trade %s: %w", trade.ID, err)
	}
	return nil
}

// allowed column names for Update; anything else is rejected.
var updatableColumns = map[string]bool{
	"entry_price": true,
	"quantity":    true,
	"dca_count":   true,
	"stop_loss":   true,
	"take_profit": true,
	"exit_price":  true,
	"exit_time":   true,
	"pnl_percent": true,
	"exit_reason": true,
	"status":      true,
}

// Update applies the given fields to an existing trade record.
func (p *Postgres) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}

	setClauses := make([]string, 0, len(fields))
	args := make([]interface{}, 0, len(fields)+1)
	i := 1
	for col, val := range fields {
		if !updatableColumns[col] {
			return fmt.Errorf("journal: column %q is not updatable", col)
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", col, i))
		args = append(args, val)
		i++
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE trades SET %s WHERE id = $%d", strings.Join(setClauses, ", "), i)
	if _, err := p.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("updating trade %s: %w", id, err)
	}
	return nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
	p.log.Info().Msg("journal closed")
}

var _ Journal = (*Postgres)(nil)
