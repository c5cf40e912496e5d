package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"wishlist-pricewatch/internal/alerting"
	"wishlist-pricewatch/internal/config"
	"wishlist-pricewatch/internal/fetcher"
	"wishlist-pricewatch/internal/metrics"
	"wishlist-pricewatch/internal/scheduler"
	"wishlist-pricewatch/internal/service"
	"wishlist-pricewatch/internal/storage"
	"wishlist-pricewatch/internal/version"
)

// ErrNoDatabase is returned by commands that need the PostgreSQL store.
var ErrNoDatabase = errors.New("database.dsn not configured")

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config: cfg,
		Logger: logger.With().Str("component", "app").Logger(),
		Out:    os.Stdout,
	}
}

func (a *App) newFetcher() fetcher.PriceFetcher {
	return a.newSteam()
}

func (a *App) newSteam() *fetcher.Steam {
	cfg := a.Config.Steam
	return fetcher.NewSteam(fetcher.SteamOptions{
		BaseURL:     cfg.BaseURL,
		APIBaseURL:  cfg.APIBaseURL,
		CountryCode: cfg.CountryCode,
		Language:    cfg.Language,
		Timeout:     cfg.RequestTimeout,
		MinInterval: cfg.MinInterval,
		UserAgent:   cfg.UserAgent,
	}, a.Logger)
}

// newNotifier builds the fan-out notifier for every enabled channel. It
// returns a nil Notifier when no channel is enabled.
func (a *App) newNotifier() (alerting.Notifier, func()) {
	cfg := a.Config.Alerting
	var channels []alerting.Channel
	closer := func() {}

	if cfg.Discord.Enabled {
		channels = append(channels, alerting.Channel{
			Name: "discord",
			Notifier: alerting.NewDiscordNotifier(alerting.DiscordOptions{
				WebhookURL:  cfg.Discord.WebhookURL,
				Username:    cfg.Discord.Username,
				Timeout:     cfg.Discord.Timeout,
				AttachChart: cfg.AttachChart,
			}, a.Logger),
		})
	}
	if cfg.Telegram.Enabled {
		channels = append(channels, alerting.Channel{
			Name:     "telegram",
			Notifier: alerting.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.APIBase, cfg.Telegram.Timeout, a.Logger),
		})
	}
	if cfg.Kafka.Enabled {
		kafkaNotifier := alerting.NewKafkaNotifier(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.WriteTimeout, a.Logger)
		channels = append(channels, alerting.Channel{Name: "kafka", Notifier: kafkaNotifier})
		closer = func() {
			if err := kafkaNotifier.Close(); err != nil {
				a.Logger.Warn().Err(err).Msg("close kafka writer")
			}
		}
	}

	multi := alerting.NewMultiNotifier(channels...)
	if multi.Len() == 0 {
		return nil, closer
	}
	return multi, closer
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	if a.Config.Database.AutoMigrate {
		v, err := storage.Migrate(a.Config.Database.DSN)
		if err != nil {
			return nil, nil, err
		}
		a.Logger.Debug().Uint("schema_version", v).Msg("schema up to date")
	}

	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) requireStore(ctx context.Context) (*storage.Store, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, ErrNoDatabase
	}
	return store, closeStore, nil
}

func (a *App) newScheduler() (*scheduler.Scheduler, error) {
	cfg := a.Config.Scheduler
	return scheduler.New(scheduler.Options{
		Interval:     cfg.Interval,
		Cron:         cfg.Cron,
		AlignToStart: cfg.AlignToBucket,
		RunOnStart:   cfg.RunOnStart,
		StartupDelay: cfg.StartupDelay,
	}, a.Logger)
}

// Run executes the long-running watch service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	sched, err := a.newScheduler()
	if err != nil {
		return err
	}

	notifier, closeNotifier := a.newNotifier()
	defer closeNotifier()
	if notifier == nil && a.Config.Alerting.Enabled {
		a.Logger.Warn().Msg("alerting enabled but no channel configured; alerts will only be logged")
	}

	m := metrics.New()
	stopAPI, err := a.startAPI(store, m)
	if err != nil {
		return err
	}
	defer stopAPI()

	svc := service.New(a.Config, sched, a.newFetcher(), store, store, store, notifier, m, a.Logger)

	a.Logger.Info().
		Str("version", version.Version).
		Strs("channels", a.Config.EnabledChannels()).
		Msg("starting watch service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("watch service stopped")
	return nil
}

// Check runs a single cycle over the watch-list, or one item, and prints a summary.
func (a *App) Check(ctx context.Context, opts CheckOptions) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	var notifier alerting.Notifier
	if !opts.NoNotify {
		var closeNotifier func()
		notifier, closeNotifier = a.newNotifier()
		defer closeNotifier()
	}

	svc := service.New(a.Config, nil, a.newFetcher(), store, store, store, notifier, nil, a.Logger)

	if opts.ItemID != "" {
		result, err := svc.CheckItem(ctx, opts.ItemID)
		if err != nil {
			return err
		}
		if result.LockSkipped {
			fmt.Fprintln(a.Out, "another instance holds the check lock; nothing done")
			return nil
		}
		fmt.Fprintf(a.Out, "%s: price %s, lowest %s, reasons %s\n",
			result.Item.ID,
			result.Observation.Price.StringFixed(2),
			result.Observation.LowestPrice.StringFixed(2),
			result.Decision.Reasons)
		return result.DeliveryErr
	}

	report, err := svc.CheckAll(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	if report.LockSkipped {
		fmt.Fprintln(a.Out, "another instance holds the check lock; nothing done")
		return nil
	}
	fmt.Fprintf(a.Out, "checked %d, recorded %d, skipped %d, failed %d, alerts %d, delivery failures %d\n",
		report.Checked, report.Recorded, report.Skipped, report.Failed, report.Alerts, report.DeliveryFailures)
	return nil
}

// Migrate applies pending schema migrations.
func (a *App) Migrate(ctx context.Context) error {
	if a.Config.Database.DSN == "" {
		return ErrNoDatabase
	}
	v, err := storage.Migrate(a.Config.Database.DSN)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "schema at version %d\n", v)
	return nil
}

// CheckOptions configure the check command.
type CheckOptions struct {
	ItemID   string
	NoNotify bool
}

// ExportOptions hold parameters for exporting an item's history.
type ExportOptions struct {
	ItemID    string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	ItemID string
	Limit  int
	Alerts bool
}

// SimulateOptions configure the simulate command.
type SimulateOptions struct {
	ItemID string
	Name   string
	Prices []string
	Notify bool
}
