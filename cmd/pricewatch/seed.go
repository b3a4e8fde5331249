package main

import (
	"context"

	"pricewatch/internal/store"
)

func ptr(v float64) *float64 { return &v }

// seedProducts inserts a small demo catalog so scheduled jobs have something
// to chew on. It does nothing if the store already has products.
func seedProducts(ctx context.Context, st store.Store) error {
	total, _, err := st.CountProducts(ctx)
	if err != nil {
		return err
	}
	if total > 0 {
		return nil
	}

	demo := []store.Product{
		{Name: "Mechanical Keyboard", URL: "https://shop.example/kb-87", Platform: "example", Currency: "USD", IsActive: true, TargetPrice: ptr(79.99)},
		{Name: "27\" Monitor", URL: "https://shop.example/mon-27", Platform: "example", Currency: "USD", IsActive: true, TargetPrice: ptr(189.00)},
		{Name: "USB-C Dock", URL: "https://store.example/dock", Platform: "store", Currency: "USD", IsActive: true, TargetPrice: ptr(99.50)},
		{Name: "Noise-Canceling Headphones", URL: "https://store.example/anc", Platform: "store", Currency: "USD", IsActive: true},
		{Name: "Discontinued Webcam", URL: "https://shop.example/cam", Platform: "example", Currency: "USD", IsActive: false},
	}
	for i := range demo {
		if err := st.InsertProduct(ctx, &demo[i]); err != nil {
			return err
		}
	}
	return nil
}
