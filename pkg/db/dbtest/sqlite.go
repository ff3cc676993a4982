// Package dbtest opens throwaway SQLite databases migrated with the engine models.
package dbtest

import (
	"fmt"
	"io"
	"log"
	"testing"

	"github.com/angelmondragon/cartengine/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open returns an in-memory database private to the calling test. A single
// pooled connection keeps concurrent goroutines from tripping SQLite table locks.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:engine_%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger: gormlogger.New(
			log.New(io.Discard, "", log.LstdFlags),
			gormlogger.Config{LogLevel: gormlogger.Silent},
		),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(
		&models.Product{},
		&models.Cart{},
		&models.CartItem{},
		&models.Order{},
		&models.OrderLineItem{},
	); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return conn
}

// SeedProduct inserts a visible product with the given price and stock.
func SeedProduct(t testing.TB, conn *gorm.DB, id string, price int64, stock int, sellerUID string) models.Product {
	t.Helper()

	product := models.Product{
		ID:         id,
		Name:       "Product " + id,
		Price:      price,
		ImageURL:   "https://cdn.example.com/" + id + ".jpg",
		Stock:      stock,
		SellerUID:  sellerUID,
		SellerName: "Seller " + sellerUID,
		IsVisible:  true,
	}
	if err := conn.Create(&product).Error; err != nil {
		t.Fatalf("seed product %s: %v", id, err)
	}
	return product
}

// StockOf reads the current stock column for a product.
func StockOf(t testing.TB, conn *gorm.DB, id string) int {
	t.Helper()

	var product models.Product
	if err := conn.Select("stock").Where("id = ?", id).Take(&product).Error; err != nil {
		t.Fatalf("read stock %s: %v", id, err)
	}
	return product.Stock
}
