package main

import (
	"fmt"
	"strings"

	"conductor/internal/domain"
)

// parseContext turns repeated key=value flags into a Context, keeping flag order.
func parseContext(pairs []string) (*domain.Context, error) {
	msgCtx := domain.NewContext()
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: context %q must be key=value", domain.ErrInvalidInput, p)
		}
		msgCtx.Set(key, strings.TrimSpace(value))
	}
	return msgCtx, nil
}
