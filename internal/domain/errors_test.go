package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsVersionConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "version conflict error",
			err:  ErrOrderVersionConflict,
			want: true,
		},
		{
			name: "wrapped version conflict error",
			err:  errors.Join(ErrOrderVersionConflict, errors.New("additional context")),
			want: true,
		},
		{
			name: "other error",
			err:  ErrOrderNotFound,
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsVersionConflict(tt.err)
			if got != tt.want {
				t.Errorf("IsVersionConflict() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		notFound   bool
		validation bool
		conflict   bool
	}{
		{name: "product not found", err: ErrProductNotFound, notFound: true},
		{name: "described not found", err: Describe(ErrOrderNotFound, "Order with ID %s not found", "o-1"), notFound: true},
		{name: "duplicate email", err: ErrDuplicateEmail, conflict: true},
		{name: "version conflict", err: ErrOrderVersionConflict, conflict: true},
		{name: "insufficient stock", err: &InsufficientStockError{ProductID: "p-1", Available: 1, Requested: 2}, validation: true},
		{name: "invalid transition", err: &InvalidTransitionError{From: OrderStatusPending, To: OrderStatusDelivered}, validation: true},
		{name: "wrapped validation", err: fmt.Errorf("create: %w", Validationf("bad input")), validation: true},
		{name: "plain error", err: errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFound(tt.err); got != tt.notFound {
				t.Errorf("IsNotFound() = %v, want %v", got, tt.notFound)
			}
			if got := IsValidation(tt.err); got != tt.validation {
				t.Errorf("IsValidation() = %v, want %v", got, tt.validation)
			}
			if got := IsConflict(tt.err); got != tt.conflict {
				t.Errorf("IsConflict() = %v, want %v", got, tt.conflict)
			}
		})
	}
}

func TestDescribeKeepsSentinel(t *testing.T) {
	err := Describe(ErrOrderNotFound, "Order with ID %s not found", "42")
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatal("described error must match its sentinel")
	}
	if got := Message(err); got != "Order with ID 42 not found" {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestMessage(t *testing.T) {
	stock := &InsufficientStockError{ProductName: "Mouse", Available: 3, Requested: 5}
	if got := Message(fmt.Errorf("reserve: %w", stock)); got != "Insufficient stock for product Mouse. Available: 3, Requested: 5" {
		t.Fatalf("unexpected stock message: %q", got)
	}

	transition := &InvalidTransitionError{From: OrderStatusPending, To: OrderStatusDelivered}
	if got := Message(transition); got != "Invalid status transition from pending to delivered" {
		t.Fatalf("unexpected transition message: %q", got)
	}

	if got := Message(errors.New("raw")); got != "raw" {
		t.Fatalf("unexpected raw message: %q", got)
	}
	if Message(nil) != "" {
		t.Fatal("nil error must produce empty message")
	}
}
