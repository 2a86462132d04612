package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// sequentialIDs returns a generator yielding line-1, line-2, ...
func sequentialIDs() IDGenerator {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("line-%d", n)
	}
}

func product(id int64, price string) Product {
	return Product{
		ID:    id,
		Title: fmt.Sprintf("Product %d", id),
		Price: decimal.RequireFromString(price),
	}
}

func validForm() CustomerForm {
	return CustomerForm{
		Name:       "Ada Lovelace",
		Email:      "ada@example.com",
		Address:    "12 Analytical Row",
		City:       "London",
		ZipCode:    "N1 9GU",
		CardNumber: "4111 1111 1111 1111",
		CardExpiry: "12/29",
		CardCvv:    "123",
	}
}
