package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"wishlist-pricewatch/internal/fetcher"
	"wishlist-pricewatch/internal/storage"
)

// WatchAdd puts an item on the watch-list. When name is empty it is looked
// up from the store page.
func (a *App) WatchAdd(ctx context.Context, itemID, name string) error {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return errors.New("item id is required")
	}

	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if name == "" {
		name = a.lookupName(ctx, a.newFetcher(), itemID)
	}

	return a.addItem(ctx, store, storage.Item{ID: itemID, Name: name})
}

type appSearcher interface {
	SearchApp(ctx context.Context, name string) (fetcher.App, error)
}

// WatchAddByName resolves name against the store's app list and puts the
// matching app on the watch-list.
func (a *App) WatchAddByName(ctx context.Context, name string) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	return a.addByName(ctx, store, a.newSteam(), name)
}

func (a *App) addByName(ctx context.Context, store storage.WatchlistStore, searcher appSearcher, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("app name is required")
	}

	app, err := searcher.SearchApp(ctx, name)
	if errors.Is(err, fetcher.ErrAppNotFound) {
		return fmt.Errorf("no store app matches %q", name)
	}
	if err != nil {
		return err
	}
	return a.addItem(ctx, store, storage.Item{ID: app.ID, Name: app.Name})
}

func (a *App) addItem(ctx context.Context, store storage.WatchlistStore, item storage.Item) error {
	added, err := store.AddItem(ctx, item)
	if errors.Is(err, storage.ErrItemExists) {
		return fmt.Errorf("item %s is already on the watch-list", item.ID)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "added %s (%s)\n", added.ID, added.Name)
	return nil
}

func (a *App) lookupName(ctx context.Context, f fetcher.PriceFetcher, itemID string) string {
	raw, err := f.FetchPrice(ctx, itemID)
	if err != nil && !errors.Is(err, fetcher.ErrPriceUnavailable) {
		a.Logger.Warn().Err(err).Str("item_id", itemID).Msg("could not look up item name")
	}
	return raw.Name
}

// WatchRemove takes an item off the watch-list. Its history is kept.
func (a *App) WatchRemove(ctx context.Context, itemID string) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	return a.removeItem(ctx, store, itemID)
}

// WatchRemoveByName takes the watched item called name off the watch-list.
// The match is case-insensitive and must be unique.
func (a *App) WatchRemoveByName(ctx context.Context, name string) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	return a.removeByName(ctx, store, name)
}

func (a *App) removeByName(ctx context.Context, store storage.WatchlistStore, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("item name is required")
	}

	items, err := store.ListItems(ctx)
	if err != nil {
		return err
	}

	var matches []storage.Item
	for _, item := range items {
		if strings.EqualFold(item.Name, name) {
			matches = append(matches, item)
		}
	}
	switch len(matches) {
	case 0:
		return fmt.Errorf("no watched item is named %q", name)
	case 1:
		return a.removeItem(ctx, store, matches[0].ID)
	default:
		ids := make([]string, 0, len(matches))
		for _, item := range matches {
			ids = append(ids, item.ID)
		}
		return fmt.Errorf("name %q matches several items (%s); remove by id", name, strings.Join(ids, ", "))
	}
}

func (a *App) removeItem(ctx context.Context, store storage.WatchlistStore, itemID string) error {
	if err := store.RemoveItem(ctx, itemID); err != nil {
		if errors.Is(err, storage.ErrItemNotFound) {
			return fmt.Errorf("item %s is not on the watch-list", itemID)
		}
		return err
	}
	fmt.Fprintf(a.Out, "removed %s\n", itemID)
	return nil
}

// WatchList prints the watch-list with latest prices.
func (a *App) WatchList(ctx context.Context) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	return a.showWatchlist(ctx, store, store)
}
