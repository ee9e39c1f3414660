package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/dealgame/internal/model"
	"github.com/mcoot/dealgame/internal/storage"
)

// Storage is a Redis-backed implementation of the storage interface
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return NewWithClient(client, cfg), nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	if cfg.MaxTxRetries <= 0 {
		cfg.MaxTxRetries = DefaultConfig().MaxTxRetries
	}
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// expire queues a TTL refresh for key, unless games are kept forever
func (s *Storage) expire(ctx context.Context, pipe redis.Pipeliner, key string) {
	if s.cfg.GameTTL > 0 {
		pipe.Expire(ctx, key, s.cfg.GameTTL)
	}
}

// Game operations

func (s *Storage) InsertGame(ctx context.Context, game *model.Game) error {
	data, err := json.Marshal(game)
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(ctx, gameKey(game.ID), data, s.cfg.GameTTL).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("game %s already exists", game.ID)
	}

	indexKey := gamesByOwnerIndexKey(game.Owner)
	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, indexKey, redis.Z{
		Score:  float64(game.CreatedAt.UnixNano()),
		Member: string(game.ID),
	})
	s.expire(ctx, pipe, indexKey) // Keep index TTL in sync
	_, err = pipe.Exec(ctx)
	return err
}

// getter is satisfied by both the client and a watched transaction
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *Storage) getGame(ctx context.Context, c getter, id model.GameID) (*model.Game, error) {
	data, err := c.Get(ctx, gameKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrGameNotFound
		}
		return nil, err
	}

	var game model.Game
	if err := json.Unmarshal(data, &game); err != nil {
		return nil, err
	}
	return &game, nil
}

func (s *Storage) GetGame(ctx context.Context, id model.GameID) (*model.GameDetail, error) {
	game, err := s.getGame(ctx, s.client, id)
	if err != nil {
		return nil, err
	}

	pipe := s.client.Pipeline()
	cardsCmd := pipe.HGetAll(ctx, cardsKey(id))
	movesCmd := pipe.LRange(ctx, movesKey(id), 0, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	cards := make([]model.Card, 0, len(cardsCmd.Val()))
	for _, raw := range cardsCmd.Val() {
		var card model.Card
		if err := json.Unmarshal([]byte(raw), &card); err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	slices.SortFunc(cards, func(a, b model.Card) int { return a.Index - b.Index })

	// The list is already in append order
	moves := make([]model.Move, 0, len(movesCmd.Val()))
	for _, raw := range movesCmd.Val() {
		var move model.Move
		if err := json.Unmarshal([]byte(raw), &move); err != nil {
			return nil, err
		}
		moves = append(moves, move)
	}

	return &model.GameDetail{
		Game:  game,
		Cards: cards,
		Moves: moves,
	}, nil
}

func (s *Storage) ListGamesByOwner(ctx context.Context, owner model.Principal) ([]*model.Game, error) {
	ids, err := s.client.ZRevRange(ctx, gamesByOwnerIndexKey(owner), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = gameKey(model.GameID(id))
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	games := make([]*model.Game, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Expired or deleted since indexing
			continue
		}
		var game model.Game
		if err := json.Unmarshal([]byte(raw), &game); err != nil {
			return nil, err
		}
		games = append(games, &game)
	}
	return games, nil
}

// watchRetry runs fn in an optimistic transaction over keys, retrying while
// another client modifies a watched key between the read and the EXEC
func (s *Storage) watchRetry(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for range s.cfg.MaxTxRetries {
		err := s.client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("transaction retries exhausted: %w", model.ErrConflict)
}

func (s *Storage) UpdateGame(ctx context.Context, id model.GameID, patch model.GamePatch, pred model.GamePredicate) (int64, error) {
	key := gameKey(id)
	var affected int64

	err := s.watchRetry(ctx, func(tx *redis.Tx) error {
		affected = 0

		game, err := s.getGame(ctx, tx, id)
		if errors.Is(err, model.ErrGameNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !pred.Matches(game) {
			return nil
		}

		patch.Apply(game)
		data, err := json.Marshal(game)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.cfg.GameTTL)
			return nil
		})
		if err != nil {
			return err
		}
		affected = 1
		return nil
	}, key)

	return affected, err
}

func (s *Storage) DeleteGame(ctx context.Context, id model.GameID) error {
	game, err := s.getGame(ctx, s.client, id)
	if errors.Is(err, model.ErrGameNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, gameKey(id), cardsKey(id), movesKey(id))
	pipe.ZRem(ctx, gamesByOwnerIndexKey(game.Owner), string(id))
	_, err = pipe.Exec(ctx)
	return err
}

// Card operations

func (s *Storage) InsertCards(ctx context.Context, cards []model.Card) error {
	byGame := make(map[model.GameID][]model.Card)
	for _, c := range cards {
		byGame[c.GameID] = append(byGame[c.GameID], c)
	}

	for gameID, gameCards := range byGame {
		exists, err := s.client.Exists(ctx, gameKey(gameID)).Result()
		if err != nil {
			return err
		}
		if exists == 0 {
			return model.ErrGameNotFound
		}

		key := cardsKey(gameID)
		pipe := s.client.TxPipeline()
		cmds := make([]*redis.BoolCmd, 0, len(gameCards))
		for _, c := range gameCards {
			data, err := json.Marshal(c)
			if err != nil {
				return err
			}
			cmds = append(cmds, pipe.HSetNX(ctx, key, strconv.Itoa(c.Index), data))
		}
		s.expire(ctx, pipe, key)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		for i, cmd := range cmds {
			if !cmd.Val() {
				return fmt.Errorf("case %d already exists for game %s", gameCards[i].Index, gameID)
			}
		}
	}
	return nil
}

func (s *Storage) UpdateCard(ctx context.Context, gameID model.GameID, index int, patch model.CardPatch, pred model.CardPredicate) (int64, error) {
	key := cardsKey(gameID)
	field := strconv.Itoa(index)
	var affected int64

	err := s.watchRetry(ctx, func(tx *redis.Tx) error {
		affected = 0

		data, err := tx.HGet(ctx, key, field).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}

		var card model.Card
		if err := json.Unmarshal(data, &card); err != nil {
			return err
		}
		if !pred.Matches(&card) {
			return nil
		}

		patch.Apply(&card)
		updated, err := json.Marshal(card)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, field, updated)
			return nil
		})
		if err != nil {
			return err
		}
		affected = 1
		return nil
	}, key)

	return affected, err
}

// Move operations

func (s *Storage) InsertMove(ctx context.Context, move *model.Move) error {
	exists, err := s.client.Exists(ctx, gameKey(move.GameID)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return model.ErrGameNotFound
	}

	data, err := json.Marshal(move)
	if err != nil {
		return err
	}

	key := movesKey(move.GameID)
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, data)
	s.expire(ctx, pipe, key)
	_, err = pipe.Exec(ctx)
	return err
}

// Payment operations

func (s *Storage) ClaimPaymentTx(ctx context.Context, txHash string, owner model.Principal) error {
	ok, err := s.client.SetNX(ctx, paymentTxKey(txHash), string(owner), s.cfg.PaymentTTL).Result()
	if err != nil {
		return err
	}
	if !ok {
		return model.ErrPaymentReused
	}
	return nil
}

func (s *Storage) ReleasePaymentTx(ctx context.Context, txHash string, owner model.Principal) error {
	key := paymentTxKey(txHash)
	return s.watchRetry(ctx, func(tx *redis.Tx) error {
		claimant, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		if !model.Principal(claimant).Equal(owner) {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}, key)
}
