package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"wishlist-pricewatch/internal/alerting"
	"wishlist-pricewatch/internal/chart"
	"wishlist-pricewatch/internal/config"
	"wishlist-pricewatch/internal/fetcher"
	"wishlist-pricewatch/internal/metrics"
	"wishlist-pricewatch/internal/pricing"
	"wishlist-pricewatch/internal/scheduler"
	"wishlist-pricewatch/internal/storage"
)

var (
	// ErrFetch marks items whose upstream price lookup failed.
	ErrFetch = errors.New("fetch price")
	// ErrPersistence marks items whose observation could not be read or written.
	ErrPersistence = errors.New("persist observation")
	// ErrDelivery marks alerts that failed on at least one channel.
	ErrDelivery = errors.New("deliver alert")
)

// ItemResult describes what happened to one item during a check.
type ItemResult struct {
	Item        storage.Item
	Previous    *storage.PriceObservation
	Observation storage.PriceObservation
	Decision    pricing.Decision
	Alerted     bool
	// LockSkipped is set when another process held the check lock and
	// the item was left untouched.
	LockSkipped bool
	// DeliveryErr is set when the alert was dispatched but a channel failed.
	// The observation is recorded regardless.
	DeliveryErr error
}

// CycleReport summarises one pass over the watch-list.
type CycleReport struct {
	At               time.Time
	Checked          int
	Recorded         int
	Skipped          int
	Failed           int
	Alerts           int
	DeliveryFailures int
	LockSkipped      bool
	Results          []ItemResult
}

// Service orchestrates fetching, decisions, persistence, and alerting.
type Service struct {
	scheduler  *scheduler.Scheduler
	fetcher    fetcher.PriceFetcher
	history    storage.HistoryStore
	watchlist  storage.WatchlistStore
	alertStore storage.AlertStore
	notifier   alerting.Notifier
	metrics    *metrics.Metrics
	engine     *pricing.Engine
	logger     zerolog.Logger

	channels    []string
	alertsOn    bool
	chartWindow time.Duration
	locker      storage.AdvisoryLocker
	lockKey     int64
	now         func() time.Time
}

// New constructs the watch service. Any of sched, fetch, watchlist,
// alertStore, notifier and m may be nil when the caller does not need them.
func New(cfg *config.Config, sched *scheduler.Scheduler, fetch fetcher.PriceFetcher, history storage.HistoryStore, watchlist storage.WatchlistStore, alertStore storage.AlertStore, notifier alerting.Notifier, m *metrics.Metrics, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := history.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler:   sched,
		fetcher:     fetch,
		history:     history,
		watchlist:   watchlist,
		alertStore:  alertStore,
		notifier:    notifier,
		metrics:     m,
		engine:      pricing.NewEngine(decimal.NewFromFloat(cfg.Alerting.DropThresholdPct)),
		logger:      logger.With().Str("component", "service").Logger(),
		channels:    cfg.EnabledChannels(),
		alertsOn:    cfg.Alerting.Enabled,
		chartWindow: cfg.Alerting.ChartWindow,
		locker:      locker,
		lockKey:     cfg.Scheduler.AdvisoryLockKey,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Engine exposes the decision engine in use.
func (s *Service) Engine() *pricing.Engine {
	return s.engine
}

// Run begins the scheduled check loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessTick)
}

// ProcessTick runs one cycle; it satisfies scheduler.TickFunc.
func (s *Service) ProcessTick(ctx context.Context, at time.Time) error {
	_, err := s.CheckAll(ctx, at)
	return err
}

// CheckAll checks every watch-list item once, sequentially. Per-item
// failures are logged and counted; they never stop the cycle.
func (s *Service) CheckAll(ctx context.Context, at time.Time) (CycleReport, error) {
	report := CycleReport{At: at}
	if s.watchlist == nil {
		return report, fmt.Errorf("watch-list not configured")
	}

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return report, err
	}
	if !proceed {
		s.logger.Debug().Time("at", at).Msg("skip cycle because advisory lock held elsewhere")
		report.LockSkipped = true
		return report, nil
	}
	if unlock != nil {
		defer unlock()
	}

	started := time.Now()
	items, err := s.watchlist.ListItems(ctx)
	if err != nil {
		return report, fmt.Errorf("list watch-list: %w", err)
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++

		result, err := s.ProcessItem(ctx, item)
		var parseErr *pricing.ParseError
		switch {
		case errors.As(err, &parseErr):
			report.Skipped++
			continue
		case err != nil:
			report.Failed++
			s.logger.Error().Err(err).Str("item_id", item.ID).Msg("item check failed")
			continue
		}

		report.Recorded++
		if result.Alerted {
			report.Alerts++
		}
		if result.DeliveryErr != nil {
			report.DeliveryFailures++
		}
		report.Results = append(report.Results, result)
	}

	elapsed := time.Since(started)
	s.metrics.ObserveCycle(elapsed.Seconds(), float64(s.now().Unix()))
	s.logger.Info().Time("at", at).
		Int("checked", report.Checked).
		Int("recorded", report.Recorded).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Int("alerts", report.Alerts).
		Dur("elapsed", elapsed).
		Msg("cycle complete")

	return report, nil
}

// CheckItem looks up one watch-list item and checks it under the same
// advisory lock as CheckAll.
func (s *Service) CheckItem(ctx context.Context, itemID string) (ItemResult, error) {
	if s.watchlist == nil {
		return ItemResult{}, fmt.Errorf("watch-list not configured")
	}
	item, err := s.watchlist.GetItem(ctx, itemID)
	if err != nil {
		return ItemResult{}, fmt.Errorf("get item %s: %w", itemID, err)
	}

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return ItemResult{Item: item}, err
	}
	if !proceed {
		s.logger.Debug().Str("item_id", itemID).Msg("skip item because advisory lock held elsewhere")
		return ItemResult{Item: item, LockSkipped: true}, nil
	}
	if unlock != nil {
		defer unlock()
	}

	return s.ProcessItem(ctx, item)
}

// ProcessItem fetches the current price for item and processes it.
func (s *Service) ProcessItem(ctx context.Context, item storage.Item) (ItemResult, error) {
	if s.fetcher == nil {
		return ItemResult{Item: item}, fmt.Errorf("%w: fetcher not configured", ErrFetch)
	}

	raw, err := s.fetcher.FetchPrice(ctx, item.ID)
	if err != nil {
		s.metrics.ObserveCheck(metrics.OutcomeFetchError)
		return ItemResult{Item: item}, fmt.Errorf("%w for %s: %w", ErrFetch, item.ID, err)
	}
	if item.Name == "" {
		item.Name = raw.Name
	}
	return s.ProcessPrice(ctx, item, raw.Value)
}

// ProcessPrice normalizes raw, decides against the item's history, records
// the observation, and dispatches at most one alert.
func (s *Service) ProcessPrice(ctx context.Context, item storage.Item, raw any) (ItemResult, error) {
	result := ItemResult{Item: item}
	logger := s.logger.With().Str("item_id", item.ID).Logger()

	amount, err := pricing.Normalize(raw)
	if err != nil {
		s.metrics.ObserveCheck(metrics.OutcomeParseError)
		logger.Warn().Err(err).Msg("skipping item with unparseable price")
		return result, fmt.Errorf("normalize price for %s: %w", item.ID, err)
	}

	latest, found, err := s.history.LatestObservation(ctx, item.ID)
	if err != nil {
		s.metrics.ObserveCheck(metrics.OutcomePersistence)
		return result, fmt.Errorf("%w: load latest for %s: %w", ErrPersistence, item.ID, err)
	}

	in := pricing.Input{ItemID: item.ID, New: amount}
	if found {
		prev := latest
		result.Previous = &prev
		in.Last = decimal.NewNullDecimal(latest.Price)
		in.Lowest = decimal.NewNullDecimal(latest.LowestPrice)
	}

	decision := s.engine.Decide(in)
	result.Decision = decision
	if decision.LowestBackfilled {
		logger.Warn().Str("last", latest.Price.String()).Msg("history has no lowest price, using last price")
	}

	obs, err := s.history.AppendObservation(ctx, storage.PriceObservation{
		ItemID:      item.ID,
		Price:       amount,
		LowestPrice: decision.NewLowest,
		ObservedAt:  s.now(),
	})
	if err != nil {
		s.metrics.ObserveCheck(metrics.OutcomePersistence)
		return result, fmt.Errorf("%w: append for %s: %w", ErrPersistence, item.ID, err)
	}
	result.Observation = obs
	s.metrics.ObserveCheck(metrics.OutcomeRecorded)

	logger.Info().
		Str("price", amount.String()).
		Str("lowest", decision.NewLowest.String()).
		Str("reasons", decision.Reasons.String()).
		Msg("price recorded")

	if decision.Reasons.Empty() || !s.alertsOn || s.notifier == nil {
		return result, nil
	}

	result.Alerted = true
	s.metrics.ObserveAlert(decision.Reasons.Strings())

	alert := s.buildAlert(item, result.Previous, obs, decision)
	if err := s.notifier.Notify(ctx, alert); err != nil {
		s.metrics.ObserveDeliveryFailure()
		result.DeliveryErr = fmt.Errorf("%w for %s: %w", ErrDelivery, item.ID, err)
		logger.Error().Err(err).Str("reasons", decision.Reasons.String()).Msg("failed to dispatch alert")
	}
	s.recordAlert(ctx, obs, decision.Reasons, result.DeliveryErr)

	return result, nil
}

func (s *Service) buildAlert(item storage.Item, previous *storage.PriceObservation, obs storage.PriceObservation, decision pricing.Decision) alerting.Alert {
	alert := alerting.Alert{
		ItemID:       item.ID,
		ItemName:     item.Name,
		Price:        obs.Price,
		LowestPrice:  obs.LowestPrice,
		DropPct:      decision.DropPct,
		ThresholdPct: s.engine.Threshold(),
		Reasons:      decision.Reasons,
		ObservedAt:   obs.ObservedAt,
		History:      s.seriesLoader(item.ID, obs.ObservedAt),
	}
	if previous != nil {
		alert.PreviousPrice = decimal.NewNullDecimal(previous.Price)
		alert.PreviousLowest = decimal.NewNullDecimal(previous.LowestPrice)
	}
	return alert
}

func (s *Service) seriesLoader(itemID string, until time.Time) alerting.SeriesLoader {
	window := s.chartWindow
	return func(ctx context.Context) ([]chart.Point, error) {
		from := time.Time{}
		if window > 0 {
			from = until.Add(-window)
		}
		observations, err := s.history.ListObservationsBetween(ctx, itemID, from, until.Add(time.Nanosecond))
		if err != nil {
			return nil, err
		}
		return ChartPoints(observations), nil
	}
}

func (s *Service) recordAlert(ctx context.Context, obs storage.PriceObservation, reasons pricing.Reasons, deliveryErr error) {
	if s.alertStore == nil {
		return
	}
	record := storage.AlertRecord{
		ItemID:     obs.ItemID,
		ObservedAt: obs.ObservedAt,
		Price:      obs.Price,
		Reasons:    reasons.Strings(),
		Channels:   s.channels,
		Delivered:  deliveryErr == nil,
	}
	if deliveryErr != nil {
		msg := deliveryErr.Error()
		record.Error = &msg
	}
	if _, err := s.alertStore.InsertAlert(ctx, record); err != nil {
		s.logger.Error().Err(err).Str("item_id", obs.ItemID).Msg("failed to persist alert record")
	}
}

// ChartPoints converts ledger rows into chart points.
func ChartPoints(observations []storage.PriceObservation) []chart.Point {
	points := make([]chart.Point, len(observations))
	for i, obs := range observations {
		points[i] = chart.Point{At: obs.ObservedAt, Price: obs.Price, Lowest: obs.LowestPrice}
	}
	return points
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
