// Package catalog serves the appliance rental products the assistant can talk about.
package catalog

import (
	"fmt"
	"strings"
)

const StatusAvailable = "Available"

type Product struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	Category           string   `json:"category"`
	Brand              string   `json:"brand"`
	Description        string   `json:"description"`
	PricePerMonth      float64  `json:"price_per_month"`
	AvailabilityStatus string   `json:"availability_status"`
	StockCount         int      `json:"stock_count"`
	Features           []string `json:"features"`
	Rating             float64  `json:"rating"`
}

func (p Product) clone() Product {
	p.Features = append([]string(nil), p.Features...)
	return p
}

// matches reports whether the lowercase query occurs in the name, description,
// category or one of the features.
func (p Product) matches(q string) bool {
	if strings.Contains(strings.ToLower(p.Name), q) ||
		strings.Contains(strings.ToLower(p.Description), q) ||
		strings.Contains(strings.ToLower(p.Category), q) {
		return true
	}
	for _, f := range p.Features {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

// Catalog is read-only after construction and safe for concurrent use.
type Catalog struct {
	products []Product
}

func New(products []Product) *Catalog {
	c := &Catalog{products: make([]Product, 0, len(products))}
	for _, p := range products {
		c.products = append(c.products, p.clone())
	}
	return c
}

func (c *Catalog) List() []Product {
	out := make([]Product, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p.clone())
	}
	return out
}

// Get looks a product up by id, ignoring case.
func (c *Catalog) Get(id string) (Product, bool) {
	id = strings.TrimSpace(id)
	for _, p := range c.products {
		if strings.EqualFold(p.ID, id) {
			return p.clone(), true
		}
	}
	return Product{}, false
}

// Search returns the products matching q case-insensitively. An empty query returns all.
func (c *Catalog) Search(q string) []Product {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return c.List()
	}
	out := []Product{}
	for _, p := range c.products {
		if p.matches(q) {
			out = append(out, p.clone())
		}
	}
	return out
}

var productKeywords = []string{
	"product", "appliance", "washer", "fridge", "oven", "machine",
	"features", "price", "cost", "availability", "stock", "rent",
	"about", "details", "info", "specs",
}

// Answer replies to product questions. A message naming a product or equal to its id
// gets that product's details; other product questions get the available products.
// ok is false when text is not about products.
func (c *Catalog) Answer(text string) (answer string, ok bool) {
	lower := strings.ToLower(strings.TrimSpace(text))
	related := false
	for _, kw := range productKeywords {
		if strings.Contains(lower, kw) {
			related = true
			break
		}
	}
	if !related {
		return "", false
	}
	for _, p := range c.products {
		if strings.Contains(lower, strings.ToLower(p.Name)) || lower == strings.ToLower(p.ID) {
			return describe(p), true
		}
	}

	var available []string
	for _, p := range c.products {
		if p.AvailabilityStatus == StatusAvailable {
			available = append(available, fmt.Sprintf("%s (%s, $%.2f/month)", p.Name, p.Category, p.PricePerMonth))
		}
	}
	if len(available) == 0 {
		return "Nothing is available to rent right now.", true
	}
	return "Available to rent: " + strings.Join(available, ", ") + ". Ask about one for details.", true
}

func describe(p Product) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s) by %s: %s\n", p.Name, p.ID, p.Brand, p.Description)
	fmt.Fprintf(&b, "Price: $%.2f/month. %s, %d in stock.\n", p.PricePerMonth, p.AvailabilityStatus, p.StockCount)
	fmt.Fprintf(&b, "Features: %s. Rated %.1f out of 5.", strings.Join(p.Features, ", "), p.Rating)
	return b.String()
}
