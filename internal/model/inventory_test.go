package model

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestMovementBeforeSave(t *testing.T) {
	tests := []struct {
		name         string
		movement     Movement
		wantErr      error
		wantOutgoing bool
	}{
		{name: "issue forced outgoing", movement: Movement{Type: MovementIssue, Qty: decimal.NewFromInt(2)}, wantOutgoing: true},
		{name: "transfer in forced incoming", movement: Movement{Type: MovementTransferIn, Qty: decimal.NewFromInt(2), IsOutgoing: true}},
		{name: "count adjustment keeps direction", movement: Movement{Type: MovementCountAdjustment, Qty: decimal.NewFromInt(1), IsOutgoing: true}, wantOutgoing: true},
		{name: "zero quantity", movement: Movement{Type: MovementAdd}, wantErr: ErrInvalidMovement},
		{name: "unknown type", movement: Movement{Type: "LOST", Qty: decimal.NewFromInt(1)}, wantErr: ErrInvalidMovement},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tt.movement
			err := m.BeforeSave(nil)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if err == nil && m.IsOutgoing != tt.wantOutgoing {
				t.Fatalf("IsOutgoing = %v, want %v", m.IsOutgoing, tt.wantOutgoing)
			}
		})
	}
}
