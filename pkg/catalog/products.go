package catalog

// Default returns the built-in rental catalog.
func Default() *Catalog {
	return New(defaultProducts)
}

var defaultProducts = []Product{
	{
		ID:                 "WM001",
		Name:               "SmartWasher 5000 (Top Load)",
		Category:           "Washing Machine",
		Brand:              "AppliancePro",
		Description:        "High-efficiency top-load washing machine with smart fabric care and quick wash cycles. Perfect for medium to large families.",
		PricePerMonth:      45.00,
		AvailabilityStatus: StatusAvailable,
		StockCount:         15,
		Features:           []string{"10kg Capacity", "AI Smart Wash", "Steam Sanitize", "Low Water Usage"},
		Rating:             4.5,
	},
	{
		ID:                 "WM002",
		Name:               "Compact Washer 200 (Front Load)",
		Category:           "Washing Machine",
		Brand:              "EcoWash",
		Description:        "Space-saving front-load washing machine ideal for apartments. Energy-efficient and quiet operation.",
		PricePerMonth:      30.00,
		AvailabilityStatus: StatusAvailable,
		StockCount:         8,
		Features:           []string{"5kg Capacity", "Eco-Friendly Mode", "Delay Start", "Child Lock"},
		Rating:             4.2,
	},
	{
		ID:                 "FR001",
		Name:               "FrostFree Refrigerator (Double Door)",
		Category:           "Refrigerator",
		Brand:              "CoolTech",
		Description:        "Large capacity double-door refrigerator with frost-free technology and advanced cooling system. Includes ice dispenser.",
		PricePerMonth:      60.00,
		AvailabilityStatus: "Limited Stock",
		StockCount:         3,
		Features:           []string{"400L Capacity", "Twin Cooling Plus", "Deodorizing Filter", "LED Lighting"},
		Rating:             4.7,
	},
	{
		ID:                 "FR002",
		Name:               "Mini Fridge Elite",
		Category:           "Refrigerator",
		Brand:              "CompactCool",
		Description:        "Portable and energy-efficient mini-fridge. Perfect for bedrooms, offices, or dorms. Silent operation.",
		PricePerMonth:      20.00,
		AvailabilityStatus: "Out of Stock",
		StockCount:         0,
		Features:           []string{"50L Capacity", "Quiet Operation", "Adjustable Shelf", "Reversible Door"},
		Rating:             3.9,
	},
	{
		ID:                 "OVN001",
		Name:               "Smart Oven Chef",
		Category:           "Oven",
		Brand:              "BakeMaster",
		Description:        "Multi-function smart oven with pre-programmed recipes and Wi-Fi connectivity. Perfect for baking, grilling, and roasting.",
		PricePerMonth:      35.00,
		AvailabilityStatus: StatusAvailable,
		StockCount:         10,
		Features:           []string{"25L Capacity", "Convection Bake", "Touch Control Panel", "Appliance Integration"},
		Rating:             4.6,
	},
}
