package sqldb

import (
	"context"
	"database/sql"
)

func ensureSchema(ctx context.Context, db *sql.DB, d dialect) error {
	statements := []string{
		`
CREATE TABLE IF NOT EXISTS games (
    id TEXT PRIMARY KEY,
    owner TEXT NOT NULL,
    mode TEXT NOT NULL,
    entry_fee_cents BIGINT NOT NULL,
    currency TEXT NOT NULL,
    status TEXT NOT NULL,
    chosen_case INTEGER,
    burned_count INTEGER NOT NULL DEFAULT 0,
    banker_offer BIGINT,
    accepted_deal BOOLEAN NOT NULL DEFAULT FALSE,
    final_won_cents BIGINT,
    payment_tx TEXT NOT NULL DEFAULT '',
    paid_out BOOLEAN NOT NULL DEFAULT FALSE,
    payout_tx TEXT NOT NULL DEFAULT '',
    created_at_ns BIGINT NOT NULL,
    updated_at_ns BIGINT NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_games_owner ON games(owner, created_at_ns DESC)`,
		`
CREATE TABLE IF NOT EXISTS cards (
    game_id TEXT NOT NULL,
    idx INTEGER NOT NULL,
    value_cents BIGINT NOT NULL,
    revealed BOOLEAN NOT NULL DEFAULT FALSE,
    burned BOOLEAN NOT NULL DEFAULT FALSE,
    PRIMARY KEY (game_id, idx),
    FOREIGN KEY (game_id) REFERENCES games(id) ON DELETE CASCADE
)`,
		`
CREATE TABLE IF NOT EXISTS moves (
    ` + d.moveSeqColumn + `,
    id TEXT NOT NULL UNIQUE,
    game_id TEXT NOT NULL,
    actor TEXT,
    action TEXT NOT NULL,
    payload TEXT NOT NULL,
    created_at_ns BIGINT NOT NULL,
    FOREIGN KEY (game_id) REFERENCES games(id) ON DELETE CASCADE
)`,
		`CREATE INDEX IF NOT EXISTS idx_moves_game ON moves(game_id, seq)`,
		`
CREATE TABLE IF NOT EXISTS payment_txs (
    tx_hash TEXT PRIMARY KEY,
    owner TEXT NOT NULL,
    claimed_at_ns BIGINT NOT NULL
)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
