package domain

import (
	"encoding/json"
	"testing"
)

func TestAmountLenientDecoding(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  float64
	}{
		{"plain number", `120.5`, 120.5},
		{"quoted number", `"340"`, 340},
		{"null", `null`, 0},
		{"empty string", `""`, 0},
		{"garbage", `"abc"`, 0},
		{"negative", `-15`, -15},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var a Amount
			if err := json.Unmarshal([]byte(tc.input), &a); err != nil {
				t.Fatalf("unmarshal %s: %v", tc.input, err)
			}
			if !a.Equal(NewAmount(tc.want)) {
				t.Fatalf("%s: expected %v, got %s", tc.input, tc.want, a)
			}
		})
	}
}

func TestAmountMarshalsAsNumber(t *testing.T) {
	raw, err := json.Marshal(NewAmount(120.5))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != "120.5" {
		t.Fatalf("expected unquoted 120.5, got %s", raw)
	}
}

func TestAmountExactArithmetic(t *testing.T) {
	// 0.1 + 0.2 is exactly 0.3 here; this is the reason floats are banned
	sum := NewAmount(0.1).Add(NewAmount(0.2))
	if !sum.Equal(NewAmount(0.3)) {
		t.Fatalf("expected exactly 0.3, got %s", sum)
	}
}

func TestInvoiceModeDerivation(t *testing.T) {
	cases := []struct {
		name string
		inv  Invoice
		want InvoiceMode
	}{
		{"sale", Invoice{TotalAmount: NewAmount(100)}, ModeSale},
		{"hold wins", Invoice{TotalAmount: NewAmount(100), IsHold: true, IsReturn: true}, ModeHold},
		{"return", Invoice{TotalAmount: NewAmount(100), IsReturn: true}, ModeReturn},
		{"voucher", Invoice{PaidAmount: NewAmount(300)}, ModeVoucher},
		{"zero-total sale with items", Invoice{Items: []InvoiceItem{{ProductID: "P1"}}}, ModeSale},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.inv.Mode(); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}
