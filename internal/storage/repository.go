package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrItemNotFound is returned when a watch-list item does not exist.
	ErrItemNotFound = errors.New("storage: item not found")
	// ErrItemExists is returned when adding an item that is already watched.
	ErrItemExists = errors.New("storage: item already on watch-list")
)

const uniqueViolation = "23505"

const (
	latestObservationSQL = `SELECT id, item_id, price::text, lowest_price::text, observed_at
    FROM price_history
    WHERE item_id = $1
    ORDER BY id DESC
    LIMIT 1;`

	appendObservationSQL = `INSERT INTO price_history (
        item_id,
        price,
        lowest_price,
        observed_at
    ) VALUES (
        $1,$2,$3,$4
    )
    RETURNING id;`

	listObservationsBetweenSQL = `SELECT id, item_id, price::text, lowest_price::text, observed_at
    FROM price_history
    WHERE item_id = $1
      AND observed_at >= $2
      AND observed_at < $3
    ORDER BY observed_at, id;`

	listRecentObservationsSQL = `SELECT id, item_id, price::text, lowest_price::text, observed_at
    FROM price_history
    WHERE item_id = $1
    ORDER BY id DESC
    LIMIT $2;`

	listItemsSQL = `SELECT item_id, name, added_at FROM watchlist ORDER BY added_at, item_id;`

	getItemSQL = `SELECT item_id, name, added_at FROM watchlist WHERE item_id = $1;`

	addItemSQL = `INSERT INTO watchlist (item_id, name) VALUES ($1, $2) RETURNING added_at;`

	removeItemSQL = `DELETE FROM watchlist WHERE item_id = $1;`

	insertAlertSQL = `INSERT INTO price_alerts (
        item_id,
        observed_at,
        price,
        reasons,
        channels,
        delivered,
        error
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    RETURNING id, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        item_id,
        observed_at,
        price::text,
        reasons,
        channels,
        delivered,
        error,
        created_at
    FROM price_alerts
    ORDER BY created_at DESC, id DESC
    LIMIT $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// HistoryStore is the append-only price ledger.
type HistoryStore interface {
	// LatestObservation returns the most recently appended observation for
	// itemID, regardless of its timestamp. found is false when the item has
	// no history.
	LatestObservation(ctx context.Context, itemID string) (obs PriceObservation, found bool, err error)
	AppendObservation(ctx context.Context, obs PriceObservation) (PriceObservation, error)
	ListObservationsBetween(ctx context.Context, itemID string, from, to time.Time) ([]PriceObservation, error)
	ListRecentObservations(ctx context.Context, itemID string, limit int) ([]PriceObservation, error)
}

// WatchlistStore manages the tracked items.
type WatchlistStore interface {
	ListItems(ctx context.Context) ([]Item, error)
	GetItem(ctx context.Context, itemID string) (Item, error)
	AddItem(ctx context.Context, item Item) (Item, error)
	RemoveItem(ctx context.Context, itemID string) error
}

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store is the PostgreSQL implementation of every store interface.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// the session lock also goes away with the connection if this fails
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// LatestObservation returns the last row appended for an item. Append order
// wins over observed_at so a clock stepping back cannot hide a newer row.
func (s *Store) LatestObservation(ctx context.Context, itemID string) (PriceObservation, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return PriceObservation{}, false, err
	}

	obs, err := scanObservation(pool.QueryRow(ctx, latestObservationSQL, itemID))
	if errors.Is(err, pgx.ErrNoRows) {
		return PriceObservation{}, false, nil
	}
	if err != nil {
		return PriceObservation{}, false, fmt.Errorf("latest observation: %w", err)
	}
	return obs, true, nil
}

// AppendObservation inserts one ledger row.
func (s *Store) AppendObservation(ctx context.Context, obs PriceObservation) (PriceObservation, error) {
	pool, err := s.getPool()
	if err != nil {
		return PriceObservation{}, err
	}

	if obs.ObservedAt.IsZero() {
		obs.ObservedAt = time.Now().UTC()
	}

	if err := pool.QueryRow(ctx, appendObservationSQL,
		obs.ItemID,
		obs.Price.String(),
		obs.LowestPrice.String(),
		obs.ObservedAt,
	).Scan(&obs.ID); err != nil {
		return PriceObservation{}, fmt.Errorf("append observation: %w", err)
	}
	return obs, nil
}

// ListObservationsBetween lists an item's observations in [from, to) in ascending order.
func (s *Store) ListObservationsBetween(ctx context.Context, itemID string, from, to time.Time) ([]PriceObservation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listObservationsBetweenSQL, itemID, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list observations between: %w", queryErr)
	}
	defer rows.Close()

	return collectObservations(rows, 0)
}

// ListRecentObservations lists an item's observations in reverse append order.
func (s *Store) ListRecentObservations(ctx context.Context, itemID string, limit int) ([]PriceObservation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentObservationsSQL, itemID, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent observations: %w", queryErr)
	}
	defer rows.Close()

	return collectObservations(rows, limit)
}

// ListItems returns the watch-list in insertion order.
func (s *Store) ListItems(ctx context.Context) ([]Item, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listItemsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list items: %w", queryErr)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.Name, &item.AddedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

// GetItem looks up a single watch-list item.
func (s *Store) GetItem(ctx context.Context, itemID string) (Item, error) {
	pool, err := s.getPool()
	if err != nil {
		return Item{}, err
	}

	var item Item
	err = pool.QueryRow(ctx, getItemSQL, itemID).Scan(&item.ID, &item.Name, &item.AddedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrItemNotFound
	}
	if err != nil {
		return Item{}, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// AddItem puts an item on the watch-list.
func (s *Store) AddItem(ctx context.Context, item Item) (Item, error) {
	pool, err := s.getPool()
	if err != nil {
		return Item{}, err
	}

	err = pool.QueryRow(ctx, addItemSQL, item.ID, item.Name).Scan(&item.AddedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Item{}, ErrItemExists
		}
		return Item{}, fmt.Errorf("add item: %w", err)
	}
	return item, nil
}

// RemoveItem drops an item from the watch-list. Its price history is kept.
func (s *Store) RemoveItem(ctx context.Context, itemID string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	cmdTag, execErr := pool.Exec(ctx, removeItemSQL, itemID)
	if execErr != nil {
		return fmt.Errorf("remove item: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

// InsertAlert persists an alert dispatch attempt.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	var errMsg interface{}
	if alert.Error != nil {
		errMsg = *alert.Error
	}
	channels := alert.Channels
	if channels == nil {
		channels = []string{}
	}

	if scanErr := pool.QueryRow(ctx, insertAlertSQL,
		alert.ItemID,
		alert.ObservedAt,
		alert.Price.String(),
		alert.Reasons,
		channels,
		alert.Delivered,
		errMsg,
	).Scan(&alert.ID, &alert.CreatedAt); scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	alert.Channels = channels
	return alert, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		var rec AlertRecord
		var priceStr string
		if err := rows.Scan(
			&rec.ID,
			&rec.ItemID,
			&rec.ObservedAt,
			&priceStr,
			&rec.Reasons,
			&rec.Channels,
			&rec.Delivered,
			&rec.Error,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}

		price, convErr := decimal.NewFromString(priceStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse alert price: %w", convErr)
		}
		rec.Price = price

		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

func collectObservations(rows pgx.Rows, capacity int) ([]PriceObservation, error) {
	observations := make([]PriceObservation, 0, capacity)
	for rows.Next() {
		obs, scanErr := scanObservation(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		observations = append(observations, obs)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return observations, nil
}

func scanObservation(row pgx.Row) (PriceObservation, error) {
	var (
		obs       PriceObservation
		priceStr  string
		lowestStr string
	)

	if err := row.Scan(&obs.ID, &obs.ItemID, &priceStr, &lowestStr, &obs.ObservedAt); err != nil {
		return PriceObservation{}, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return PriceObservation{}, fmt.Errorf("parse price: %w", err)
	}
	lowest, err := decimal.NewFromString(lowestStr)
	if err != nil {
		return PriceObservation{}, fmt.Errorf("parse lowest price: %w", err)
	}

	obs.Price = price
	obs.LowestPrice = lowest
	return obs, nil
}

var (
	_ HistoryStore   = (*Store)(nil)
	_ WatchlistStore = (*Store)(nil)
	_ AlertStore     = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
