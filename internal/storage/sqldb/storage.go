package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/mcoot/dealgame/internal/model"
	"github.com/mcoot/dealgame/internal/storage"
)

// Storage is a database/sql implementation of the storage interface,
// backed by postgres or sqlite
type Storage struct {
	db      *sql.DB
	dialect dialect
}

// New opens the database, applies connection settings and bootstraps the schema
func New(cfg Config) (*Storage, error) {
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("empty %s data source", cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if cfg.Driver == DriverSQLite {
		// One connection: in-memory databases are per-connection and
		// pragmas below only apply to the connection they run on.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		for _, pragma := range []string{
			`PRAGMA busy_timeout = 5000;`,
			`PRAGMA foreign_keys = ON;`,
		} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensureSchema(ctx, db, d); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Storage{db: db, dialect: d}, nil
}

// Close closes the database handle
func (s *Storage) Close() error {
	return s.db.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

func (s *Storage) exec(ctx context.Context, q interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, s.dialect.rebind(query), args...)
}

// Game operations

const gameColumns = `id, owner, mode, entry_fee_cents, currency, status, chosen_case, burned_count, banker_offer,
    accepted_deal, final_won_cents, payment_tx, paid_out, payout_tx, created_at_ns, updated_at_ns`

func (s *Storage) InsertGame(ctx context.Context, game *model.Game) error {
	_, err := s.exec(ctx, s.db, `
INSERT INTO games (`+gameColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(game.ID),
		string(game.Owner),
		string(game.Mode),
		game.EntryFeeCents,
		game.Currency,
		string(game.Status),
		nullInt(game.ChosenCase),
		game.BurnedCount,
		nullInt64(game.BankerOffer),
		game.AcceptedDeal,
		nullInt64(game.FinalWonCents),
		game.PaymentTx,
		game.PaidOut,
		game.PayoutTx,
		game.CreatedAt.UnixNano(),
		game.UpdatedAt.UnixNano(),
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (*model.Game, error) {
	var (
		g                     model.Game
		id, owner, mode       string
		status                string
		chosenCase            sql.NullInt64
		bankerOffer, finalWon sql.NullInt64
		createdAt, updatedAt  int64
	)
	err := row.Scan(
		&id, &owner, &mode, &g.EntryFeeCents, &g.Currency, &status,
		&chosenCase, &g.BurnedCount, &bankerOffer, &g.AcceptedDeal, &finalWon,
		&g.PaymentTx, &g.PaidOut, &g.PayoutTx, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	g.ID = model.GameID(id)
	g.Owner = model.Principal(owner)
	g.Mode = model.ModeName(mode)
	g.Status = model.GameStatus(status)
	if chosenCase.Valid {
		g.ChosenCase = model.Ptr(int(chosenCase.Int64))
	}
	if bankerOffer.Valid {
		g.BankerOffer = model.Ptr(bankerOffer.Int64)
	}
	if finalWon.Valid {
		g.FinalWonCents = model.Ptr(finalWon.Int64)
	}
	g.CreatedAt = time.Unix(0, createdAt).UTC()
	g.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &g, nil
}

func (s *Storage) GetGame(ctx context.Context, id model.GameID) (*model.GameDetail, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT `+gameColumns+` FROM games WHERE id = ?`), string(id))
	game, err := scanGame(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrGameNotFound
		}
		return nil, err
	}

	cards, err := s.listCards(ctx, id)
	if err != nil {
		return nil, err
	}
	moves, err := s.listMoves(ctx, id)
	if err != nil {
		return nil, err
	}

	return &model.GameDetail{
		Game:  game,
		Cards: cards,
		Moves: moves,
	}, nil
}

func (s *Storage) ListGamesByOwner(ctx context.Context, owner model.Principal) ([]*model.Game, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`
SELECT `+gameColumns+`
FROM games
WHERE owner = ?
ORDER BY created_at_ns DESC`), string(owner))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var games []*model.Game
	for rows.Next() {
		game, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, game)
	}
	return games, rows.Err()
}

func (s *Storage) UpdateGame(ctx context.Context, id model.GameID, patch model.GamePatch, pred model.GamePredicate) (int64, error) {
	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if patch.Status != nil {
		set("status", string(*patch.Status))
	}
	if patch.ChosenCase != nil {
		set("chosen_case", *patch.ChosenCase)
	}
	if patch.BurnedCount != nil {
		set("burned_count", *patch.BurnedCount)
	}
	if patch.BankerOffer != nil {
		set("banker_offer", *patch.BankerOffer)
	}
	if patch.AcceptedDeal != nil {
		set("accepted_deal", *patch.AcceptedDeal)
	}
	if patch.FinalWonCents != nil {
		set("final_won_cents", *patch.FinalWonCents)
	}
	if patch.PaidOut != nil {
		set("paid_out", *patch.PaidOut)
	}
	if patch.PayoutTx != nil {
		set("payout_tx", *patch.PayoutTx)
	}
	if patch.UpdatedAt != nil {
		set("updated_at_ns", patch.UpdatedAt.UnixNano())
	}
	if len(sets) == 0 {
		return 0, errors.New("empty game patch")
	}

	where := []string{"id = ?"}
	args = append(args, string(id))
	if len(pred.StatusIn) > 0 {
		placeholders := make([]string, len(pred.StatusIn))
		for i, st := range pred.StatusIn {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if pred.ChosenCaseUnset {
		where = append(where, "chosen_case IS NULL")
	}
	if pred.BurnedCount != nil {
		where = append(where, "burned_count = ?")
		args = append(args, *pred.BurnedCount)
	}
	if pred.AcceptedDeal != nil {
		where = append(where, "accepted_deal = ?")
		args = append(args, *pred.AcceptedDeal)
	}
	if pred.PaidOut != nil {
		where = append(where, "paid_out = ?")
		args = append(args, *pred.PaidOut)
	}

	query := "UPDATE games SET " + strings.Join(sets, ", ") + " WHERE " + strings.Join(where, " AND ")
	res, err := s.exec(ctx, s.db, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Storage) DeleteGame(ctx context.Context, id model.GameID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Children first so this works even where foreign keys are not enforced
	for _, stmt := range []string{
		`DELETE FROM moves WHERE game_id = ?`,
		`DELETE FROM cards WHERE game_id = ?`,
		`DELETE FROM games WHERE id = ?`,
	} {
		if _, err := s.exec(ctx, tx, stmt, string(id)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Card operations

func (s *Storage) gameExists(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, id model.GameID) error {
	var one int
	err := q.QueryRowContext(ctx, s.dialect.rebind(`SELECT 1 FROM games WHERE id = ?`), string(id)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrGameNotFound
	}
	return err
}

func (s *Storage) InsertCards(ctx context.Context, cards []model.Card) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	checked := make(map[model.GameID]bool)
	for _, c := range cards {
		if !checked[c.GameID] {
			if err := s.gameExists(ctx, tx, c.GameID); err != nil {
				return err
			}
			checked[c.GameID] = true
		}
		_, err := s.exec(ctx, tx, `
INSERT INTO cards (game_id, idx, value_cents, revealed, burned)
VALUES (?, ?, ?, ?, ?)`,
			string(c.GameID), c.Index, c.ValueCents, c.Revealed, c.Burned)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Storage) listCards(ctx context.Context, id model.GameID) ([]model.Card, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`
SELECT idx, value_cents, revealed, burned
FROM cards
WHERE game_id = ?
ORDER BY idx`), string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []model.Card
	for rows.Next() {
		c := model.Card{GameID: id}
		if err := rows.Scan(&c.Index, &c.ValueCents, &c.Revealed, &c.Burned); err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

func (s *Storage) UpdateCard(ctx context.Context, gameID model.GameID, index int, patch model.CardPatch, pred model.CardPredicate) (int64, error) {
	var (
		sets []string
		args []any
	)
	if patch.Revealed != nil {
		sets = append(sets, "revealed = ?")
		args = append(args, *patch.Revealed)
	}
	if patch.Burned != nil {
		sets = append(sets, "burned = ?")
		args = append(args, *patch.Burned)
	}
	if len(sets) == 0 {
		return 0, errors.New("empty card patch")
	}

	where := []string{"game_id = ?", "idx = ?"}
	args = append(args, string(gameID), index)
	if pred.Revealed != nil {
		where = append(where, "revealed = ?")
		args = append(args, *pred.Revealed)
	}

	query := "UPDATE cards SET " + strings.Join(sets, ", ") + " WHERE " + strings.Join(where, " AND ")
	res, err := s.exec(ctx, s.db, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Move operations

func (s *Storage) InsertMove(ctx context.Context, move *model.Move) error {
	if err := s.gameExists(ctx, s.db, move.GameID); err != nil {
		return err
	}

	payload, err := json.Marshal(move.Payload)
	if err != nil {
		return err
	}
	var actor sql.NullString
	if move.Actor != nil {
		actor = sql.NullString{String: string(*move.Actor), Valid: true}
	}

	_, err = s.exec(ctx, s.db, `
INSERT INTO moves (id, game_id, actor, action, payload, created_at_ns)
VALUES (?, ?, ?, ?, ?, ?)`,
		string(move.ID), string(move.GameID), actor, string(move.Action), string(payload), move.CreatedAt.UnixNano())
	return err
}

func (s *Storage) listMoves(ctx context.Context, id model.GameID) ([]model.Move, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`
SELECT id, actor, action, payload, created_at_ns
FROM moves
WHERE game_id = ?
ORDER BY seq`), string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var moves []model.Move
	for rows.Next() {
		var (
			moveID, action, payload string
			actor                   sql.NullString
			createdAt               int64
		)
		if err := rows.Scan(&moveID, &actor, &action, &payload, &createdAt); err != nil {
			return nil, err
		}
		m := model.Move{
			ID:        model.MoveID(moveID),
			GameID:    id,
			Action:    model.MoveAction(action),
			CreatedAt: time.Unix(0, createdAt).UTC(),
		}
		if actor.Valid {
			m.Actor = model.Ptr(model.Principal(actor.String))
		}
		if err := json.Unmarshal([]byte(payload), &m.Payload); err != nil {
			return nil, err
		}
		moves = append(moves, m)
	}
	return moves, rows.Err()
}

// Payment operations

func (s *Storage) ClaimPaymentTx(ctx context.Context, txHash string, owner model.Principal) error {
	res, err := s.exec(ctx, s.db, `
INSERT INTO payment_txs (tx_hash, owner, claimed_at_ns)
VALUES (?, ?, ?)
ON CONFLICT (tx_hash) DO NOTHING`,
		txHash, string(owner), time.Now().UTC().UnixNano())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrPaymentReused
	}
	return nil
}

func (s *Storage) ReleasePaymentTx(ctx context.Context, txHash string, owner model.Principal) error {
	_, err := s.exec(ctx, s.db, `DELETE FROM payment_txs WHERE tx_hash = ? AND owner = ?`, txHash, string(owner))
	return err
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
