package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Rule checks one property of a candidate value and returns a *ValidationError or nil.
type Rule[T any] func(ctx context.Context, v T) error

// Validate runs rules in order and stops at the first failure
func Validate[T any](ctx context.Context, v T, rules ...Rule[T]) error {
	for _, rule := range rules {
		if err := rule(ctx, v); err != nil {
			return err
		}
	}
	return nil
}

func requireID[T any](field string, get func(T) uuid.UUID) Rule[T] {
	return func(_ context.Context, v T) error {
		if get(v) == uuid.Nil {
			return &ValidationError{Field: field, Details: "is required"}
		}
		return nil
	}
}

func positiveQty[T any](field string, get func(T) decimal.Decimal) Rule[T] {
	return func(_ context.Context, v T) error {
		if !get(v).IsPositive() {
			return &ValidationError{Field: field, Details: "must be greater than 0"}
		}
		return nil
	}
}

func nonNegative[T any](field string, get func(T) decimal.Decimal) Rule[T] {
	return func(_ context.Context, v T) error {
		if get(v).IsNegative() {
			return &ValidationError{Field: field, Details: "must not be negative"}
		}
		return nil
	}
}

func notEmpty[T any, E any](field string, get func(T) []E) Rule[T] {
	return func(_ context.Context, v T) error {
		if len(get(v)) == 0 {
			return &ValidationError{Field: field, Details: "must contain at least one entry"}
		}
		return nil
	}
}

// each applies rules to every element, prefixing the field with its index
func each[T any, E any](field string, get func(T) []E, rules ...Rule[E]) Rule[T] {
	return func(ctx context.Context, v T) error {
		for i, item := range get(v) {
			if err := Validate(ctx, item, rules...); err != nil {
				if ve, ok := err.(*ValidationError); ok {
					return &ValidationError{Field: fmt.Sprintf("%s[%d].%s", field, i, ve.Field), Details: ve.Details}
				}
				return err
			}
		}
		return nil
	}
}

func distinct[T any, E any](field string, get func(T) []E, key func(E) uuid.UUID) Rule[T] {
	return func(_ context.Context, v T) error {
		seen := make(map[uuid.UUID]struct{})
		for _, item := range get(v) {
			k := key(item)
			if k == uuid.Nil {
				continue
			}
			if _, dup := seen[k]; dup {
				return &ValidationError{Field: field, Details: fmt.Sprintf("%s appears more than once", k)}
			}
			seen[k] = struct{}{}
		}
		return nil
	}
}

// wholeQuantity rejects fractional quantities for products counted in whole units
func wholeQuantity(field string, allowsFraction bool, qty decimal.Decimal) error {
	if allowsFraction || qty.Equal(qty.Truncate(0)) {
		return nil
	}
	return &ValidationError{Field: field, Details: fmt.Sprintf("%s is not a whole quantity", qty.String())}
}
