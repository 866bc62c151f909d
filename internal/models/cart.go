package models

import (
	"time"

	"github.com/google/uuid"
)

// CartItem is one selection in a user's cart
type CartItem struct {
	TourID   uuid.UUID `json:"tourId" bson:"tour_id"`
	Date     string    `json:"date" bson:"date"`
	Adults   int       `json:"adults" bson:"adults"`
	Children int       `json:"children" bson:"children"`
	Selected bool      `json:"selected" bson:"selected"`
	AddedAt  time.Time `json:"addedAt" bson:"added_at"`
}

// Cart is the per-user cart document
type Cart struct {
	UserID    string     `json:"userId" bson:"user_id"`
	Items     []CartItem `json:"items" bson:"items"`
	CreatedAt time.Time  `json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time  `json:"updatedAt" bson:"updated_at"`
}

// Matches reports whether the cart item is the same selection as a session line
func (c CartItem) Matches(item SessionItem) bool {
	return c.TourID == item.TourID && c.Date == item.Date && c.Adults == item.Adults && c.Children == item.Children
}

// CartItemFromSession recreates a selected cart line from a session line
func CartItemFromSession(item SessionItem) CartItem {
	return CartItem{
		TourID:   item.TourID,
		Date:     item.Date,
		Adults:   item.Adults,
		Children: item.Children,
		Selected: true,
		AddedAt:  time.Now(),
	}
}

// SelectedItems returns the selected lines as unpriced session items
func (c *Cart) SelectedItems() []SessionItem {
	var items []SessionItem
	for _, ci := range c.Items {
		if !ci.Selected {
			continue
		}
		items = append(items, SessionItem{
			TourID:   ci.TourID,
			Date:     ci.Date,
			Adults:   ci.Adults,
			Children: ci.Children,
		})
	}
	return items
}
