// Command seed loads a small trekking-gear catalog and a few purchase orders
// into a development database. The catalog tables are owned by the
// master-data service in production; they are created here only if missing.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/trekgear/gearstock/internal/app"
	"github.com/trekgear/gearstock/internal/platform/db"
	"github.com/trekgear/gearstock/migrations"
)

const catalogDDL = `
CREATE TABLE IF NOT EXISTS categories (
    id   BIGINT PRIMARY KEY,
    code TEXT   NOT NULL UNIQUE,
    name TEXT   NOT NULL
);
CREATE TABLE IF NOT EXISTS items (
    id          BIGINT PRIMARY KEY,
    code        TEXT   NOT NULL UNIQUE,
    name        TEXT   NOT NULL,
    category_id BIGINT NOT NULL REFERENCES categories (id)
);
CREATE TABLE IF NOT EXISTS purchase_order_items (
    purchase_order_id BIGINT NOT NULL,
    item_id           BIGINT NOT NULL REFERENCES items (id),
    quantity          BIGINT NOT NULL CHECK (quantity >= 0),
    PRIMARY KEY (purchase_order_id, item_id)
);`

type category struct {
	id         int64
	code, name string
}

type item struct {
	id, categoryID int64
	code, name     string
}

type orderLine struct {
	orderID, itemID, quantity int64
}

var (
	categories = []category{
		{1, "TNT", "Tents"},
		{2, "BPK", "Backpacks"},
		{3, "SLP", "Sleeping gear"},
		{4, "CKW", "Cookware"},
	}
	items = []item{
		{101, 1, "TNT-2P", "Two-person dome tent"},
		{102, 1, "TNT-4P", "Four-person tunnel tent"},
		{201, 2, "BPK-45", "45L trekking backpack"},
		{202, 2, "BPK-65", "65L expedition backpack"},
		{301, 3, "SLP-M5", "Sleeping bag -5C"},
		{302, 3, "SLP-MAT", "Inflatable sleeping mat"},
		{401, 4, "CKW-STV", "Gas stove"},
		{402, 4, "CKW-POT", "Titanium pot set"},
	}
	orderLines = []orderLine{
		{1, 101, 10}, {1, 201, 20}, {1, 301, 15},
		{2, 102, 4}, {2, 202, 8},
		{3, 302, 30}, {3, 401, 12}, {3, 402, 12},
		{4, 101, 0},
	}
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("seed failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("seed complete", slog.Int("items", len(items)), slog.Int("order_lines", len(orderLines)))
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, 2)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := migrations.Apply(ctx, pool, logger); err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, catalogDDL); err != nil {
		return fmt.Errorf("create catalog tables: %w", err)
	}

	return db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, c := range categories {
			batch.Queue(`INSERT INTO categories (id, code, name) VALUES ($1, $2, $3)
				ON CONFLICT (id) DO UPDATE SET code = EXCLUDED.code, name = EXCLUDED.name`, c.id, c.code, c.name)
		}
		for _, it := range items {
			batch.Queue(`INSERT INTO items (id, code, name, category_id) VALUES ($1, $2, $3, $4)
				ON CONFLICT (id) DO UPDATE SET code = EXCLUDED.code, name = EXCLUDED.name, category_id = EXCLUDED.category_id`,
				it.id, it.code, it.name, it.categoryID)
		}
		for _, l := range orderLines {
			batch.Queue(`INSERT INTO purchase_order_items (purchase_order_id, item_id, quantity) VALUES ($1, $2, $3)
				ON CONFLICT (purchase_order_id, item_id) DO UPDATE SET quantity = EXCLUDED.quantity`,
				l.orderID, l.itemID, l.quantity)
		}
		// Order 2 still waits for purchasing approval.
		batch.Queue(`INSERT INTO po_order_status (order_id, status) VALUES (2, 'DRAFT') ON CONFLICT (order_id) DO NOTHING`)
		return tx.SendBatch(ctx, batch).Close()
	})
}
