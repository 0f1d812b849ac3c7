package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestHistoryEntryJSONKeepsDetailsType(t *testing.T) {
	actor := uuid.New()
	reason := "item not as described"
	entries := []HistoryEntry{
		NewHistoryEntry(&actor, time.Now(), DisputeOpenedDetails{OpenedBy: PartyBuyer, Reason: &reason}),
		NewHistoryEntry(nil, time.Now(), ChatOpenedDetails{}),
		NewHistoryEntry(&actor, time.Now(), SettledDetails{
			SellerAmount:     decimal.RequireFromString("38.80"),
			MediatorFee:      decimal.RequireFromString("2.40"),
			Currency:         CurrencyTND,
			SellerAmountBase: decimal.RequireFromString("38.80"),
			MediatorFeeBase:  decimal.RequireFromString("2.40"),
		}),
	}

	data, err := json.Marshal(entries)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded []HistoryEntry
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded) != len(entries) {
		t.Fatalf("got %d entries", len(decoded))
	}

	d, ok := decoded[0].Details.(DisputeOpenedDetails)
	if !ok {
		t.Fatalf("details type = %T", decoded[0].Details)
	}
	if d.Reason == nil || *d.Reason != reason || d.OpenedBy != PartyBuyer {
		t.Errorf("dispute details = %+v", d)
	}
	if decoded[1].ActorID != nil {
		t.Errorf("system entry has actor %v", decoded[1].ActorID)
	}
	s := decoded[2].Details.(SettledDetails)
	if !s.SellerAmount.Equal(decimal.RequireFromString("38.8")) {
		t.Errorf("seller amount = %s", s.SellerAmount)
	}
}

func TestHistoryEntryRejectsMismatchedDetails(t *testing.T) {
	h := HistoryEntry{Event: HistorySettled, At: time.Now(), Details: ChatOpenedDetails{}}
	if _, err := json.Marshal(h); err == nil {
		t.Fatal("expected error for mismatched details")
	}
}

func TestDecodeHistoryDetailsUnknownEvent(t *testing.T) {
	if _, err := DecodeHistoryDetails("mystery", []byte(`{}`)); err == nil {
		t.Fatal("expected error")
	}
}

func TestEveryHistoryEventDecodes(t *testing.T) {
	for event := range historyDetailsFactory {
		d, err := DecodeHistoryDetails(event, nil)
		if err != nil {
			t.Fatalf("%s: %v", event, err)
		}
		if d.Event() != event {
			t.Errorf("%s decodes to %s", event, d.Event())
		}
	}
}
