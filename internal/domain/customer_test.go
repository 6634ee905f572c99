package domain_test

import (
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

func TestCashbackFor(t *testing.T) {
	cases := []struct {
		name     string
		referral string
		total    string
		want     string
	}{
		{name: "leafcoin", referral: "leafcoin", total: "100.00", want: "5.00"},
		{name: "keeps sub-cent precision", referral: "leafcoin", total: "10.10", want: "0.505"},
		{name: "smallest total", referral: "leafcoin", total: "0.01", want: "0.0005"},
		{name: "other code", referral: "LEAFCOIN", total: "100.00", want: "0"},
		{name: "no code", referral: "", total: "100.00", want: "0"},
		{name: "zero total", referral: "leafcoin", total: "0", want: "0"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			user := domain.BusinessUser{ReferralCode: tc.referral}
			got := user.CashbackFor(dec(tc.total))
			if !got.Equal(dec(tc.want)) {
				t.Fatalf("expected cashback %s, got %s", tc.want, got)
			}
		})
	}
}

func TestBusinessUserValidate(t *testing.T) {
	valid := domain.BusinessUser{
		CompanyName:   "Leaf Ltd",
		ContactPerson: "Alex",
		Email:         "alex@leaf.test",
		Phone:         "+1234567890",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	broken := valid
	broken.Email = "not-an-email"
	err := broken.Validate()
	var vErr *domain.ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "email" {
		t.Fatalf("expected email validation error, got %v", err)
	}
}

func TestProductAndOfferValidate(t *testing.T) {
	product := domain.Product{CategoryID: "c", Name: "Tea", Price: dec("2"), WholesalePrice: dec("1.5"), StockQuantity: 0}
	product.RefreshStockFlag()
	if product.IsInStock {
		t.Fatal("product with zero stock must not be in stock")
	}
	product.StockQuantity = 1
	product.RefreshStockFlag()
	if !product.IsInStock {
		t.Fatal("product with stock must be in stock")
	}

	product.StockQuantity = -1
	if err := product.Validate(); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for negative stock, got %v", err)
	}

	offer := domain.Offer{Title: "Bulk", DiscountPercentage: dec("100")}
	if err := offer.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	offer.DiscountPercentage = dec("100.01")
	if err := offer.Validate(); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for discount above 100, got %v", err)
	}
}
