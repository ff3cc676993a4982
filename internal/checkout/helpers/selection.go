package helpers

import (
	"strings"

	"github.com/angelmondragon/cartengine/pkg/db/models"
)

// UniqueIDs trims ids and drops blanks and duplicates, keeping first-seen order.
func UniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// SelectItems returns the cart items whose product id is in ids, in cart order.
func SelectItems(items []models.CartItem, ids []string) []models.CartItem {
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	selected := make([]models.CartItem, 0, len(ids))
	for _, item := range items {
		if _, ok := wanted[item.ProductID]; ok {
			selected = append(selected, item)
		}
	}
	return selected
}

// ProductIDs lists the product ids of items.
func ProductIDs(items []models.CartItem) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	return ids
}
