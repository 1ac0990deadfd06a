package service

import (
	"context"
	"math/rand"
	"strconv"
)

const (
	accountNumberMin = 1_000_000_000
	accountNumberMax = 9_999_999_999
)

// AccountNumberExistsFunc reports whether a number is already assigned.
type AccountNumberExistsFunc func(ctx context.Context, accountNumber string) (bool, error)

// AccountNumberGenerator draws 10-digit account numbers uniformly from
// [1000000000, 9999999999] and redraws while the number is taken. The check
// only narrows the race; the unique constraint on insert decides.
type AccountNumberGenerator struct {
	exists AccountNumberExistsFunc
	draw   func() int64
}

func NewAccountNumberGenerator(exists AccountNumberExistsFunc) *AccountNumberGenerator {
	return &AccountNumberGenerator{
		exists: exists,
		draw: func() int64 {
			return accountNumberMin + rand.Int63n(accountNumberMax-accountNumberMin+1)
		},
	}
}

func (g *AccountNumberGenerator) Generate(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		candidate := strconv.FormatInt(g.draw(), 10)
		taken, err := g.exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
}
