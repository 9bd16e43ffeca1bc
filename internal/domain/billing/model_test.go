package billing

import "testing"

func TestComputeFees_Flat(t *testing.T) {
	m := PaymentMethodConfig{ID: "card_flat", FlatFee: 300}
	fees := m.ComputeFees(2500)
	if fees.ProcessingFee != 300 {
		t.Errorf("expected flat fee 300, got %d", fees.ProcessingFee)
	}
	if fees.Total != 2800 {
		t.Errorf("expected total 2800, got %d", fees.Total)
	}
	if fees.PricePerReferral != 2500 {
		t.Errorf("expected price 2500, got %d", fees.PricePerReferral)
	}
}

func TestComputeFees_Percent(t *testing.T) {
	m := PaymentMethodConfig{ID: "card_pct", FeePercent: 2.9}
	fees := m.ComputeFees(10000)
	if fees.ProcessingFee != 290 {
		t.Errorf("expected 2.9%% of 10000 = 290, got %d", fees.ProcessingFee)
	}
	if fees.Total != 10290 {
		t.Errorf("expected total 10290, got %d", fees.Total)
	}
	if fees.FeePercent != 2.9 {
		t.Errorf("expected stored percent 2.9, got %v", fees.FeePercent)
	}
}

func TestComputeFees_Deterministic(t *testing.T) {
	m := PaymentMethodConfig{ID: "card_pct", FeePercent: 1.5}
	a := m.ComputeFees(2500)
	b := m.ComputeFees(2500)
	if a != b {
		t.Errorf("expected identical breakdowns, got %+v and %+v", a, b)
	}
	if a.Total != a.PricePerReferral+a.ProcessingFee {
		t.Error("expected total to equal price plus fee")
	}
}
