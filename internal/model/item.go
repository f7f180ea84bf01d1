package model

import "slices"

// Item is a listed possession available for swapping.
type Item struct {
	ID          string `json:"id"`
	UserID      string `json:"userId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl"`
	Category    string `json:"category"`
	Condition   string `json:"condition"`
	CreatedAt   int64  `json:"createdAt"`
	Status      string `json:"status"`
}

// ItemFields are the user-supplied fields of a new item.
type ItemFields struct {
	Title       string `json:"title" validate:"min=3,max=100"`
	Description string `json:"description" validate:"min=10,max=500"`
	Category    string `json:"category" validate:"required,category"`
	Condition   string `json:"condition" validate:"required,condition"`
}

// Item statuses.
const (
	ItemStatusAvailable = "available"
	ItemStatusPending   = "pending"
	ItemStatusSwapped   = "swapped"
)

// Categories lists the fixed set of item categories.
var Categories = []string{"Electronics", "Furniture", "Clothing", "Books", "Sports", "Other"}

// Conditions lists item conditions from best to worst.
var Conditions = []string{"new", "like-new", "good", "fair", "poor"}

// IsCategory reports whether c is a known category.
func IsCategory(c string) bool {
	return slices.Contains(Categories, c)
}

// ConditionRank returns the position of c in Conditions (0 is best),
// or -1 if c is not a known condition.
func ConditionRank(c string) int {
	return slices.Index(Conditions, c)
}

// ValidateItemFields checks length bounds and enum membership.
func ValidateItemFields(f ItemFields) error {
	return validateStruct(f)
}
