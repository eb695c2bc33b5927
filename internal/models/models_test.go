package models

import (
	"testing"
	"time"
)

func TestAuthMethodIsValid(t *testing.T) {
	tests := []struct {
		method   AuthMethod
		expected bool
	}{
		{AuthMethodNone, true},
		{AuthMethodSMS, true},
		{AuthMethodTOTP, true},
		{AuthMethodEmail, true},
		{AuthMethodYubikey, true},
		{AuthMethodPush, true},
		{AuthMethod("telegram"), false},
		{AuthMethod(""), false},
	}

	for _, tt := range tests {
		if got := tt.method.IsValid(); got != tt.expected {
			t.Errorf("AuthMethod(%q).IsValid() = %v, want %v", tt.method, got, tt.expected)
		}
	}
}

func TestTradeActionIsValid(t *testing.T) {
	tests := []struct {
		action   TradeAction
		expected bool
	}{
		{ActionBuy, true},
		{ActionSell, true},
		{ActionClose, true},
		{ActionCancel, true},
		{TradeAction("hold"), false},
		{TradeAction(""), false},
	}

	for _, tt := range tests {
		if got := tt.action.IsValid(); got != tt.expected {
			t.Errorf("TradeAction(%q).IsValid() = %v, want %v", tt.action, got, tt.expected)
		}
	}
}

func TestDetectedFormFieldByType(t *testing.T) {
	form := &DetectedForm{
		LoginFields: []LoginField{
			{Name: "email", Type: FieldTypeEmail, Label: "Email"},
			{Name: "password", Type: FieldTypePassword, Label: "Password"},
		},
	}

	if f := form.FieldByType(FieldTypePassword); f == nil || f.Name != "password" {
		t.Errorf("FieldByType(password) = %+v, want password field", f)
	}
	if f := form.FieldByType(FieldTypeSelect); f != nil {
		t.Errorf("FieldByType(select) = %+v, want nil", f)
	}
}

func TestInterfaceAnalysisIsEmpty(t *testing.T) {
	var nilAnalysis *InterfaceAnalysis
	if !nilAnalysis.IsEmpty() {
		t.Error("nil analysis must be empty")
	}

	empty := &InterfaceAnalysis{}
	if !empty.IsEmpty() {
		t.Error("zero analysis must be empty")
	}

	withBuy := &InterfaceAnalysis{
		BuyElements: []ElementInfo{{Selector: ".buy-button"}},
	}
	if withBuy.IsEmpty() {
		t.Error("analysis with buy elements must not be empty")
	}

	withTable := &InterfaceAnalysis{PositionsTable: ".positions"}
	if withTable.IsEmpty() {
		t.Error("analysis with positions table must not be empty")
	}
}

func TestInterfaceAnalysisExpired(t *testing.T) {
	now := time.Now()
	analysis := &InterfaceAnalysis{AnalyzedAt: now.Add(-10 * time.Minute)}

	tests := []struct {
		name     string
		ttl      time.Duration
		expected bool
	}{
		{"zero ttl never expires", 0, false},
		{"negative ttl never expires", -time.Minute, false},
		{"fresh snapshot", time.Hour, false},
		{"stale snapshot", 5 * time.Minute, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := analysis.Expired(tt.ttl, now); got != tt.expected {
				t.Errorf("Expired(%v) = %v, want %v", tt.ttl, got, tt.expected)
			}
		})
	}
}
