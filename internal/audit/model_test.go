package audit

import (
	"testing"

	"github.com/telecare/platform/internal/shared/types"
)

func TestEntryHashVerifies(t *testing.T) {
	resourceID := types.NewID()
	entry := NewEntry("doctor", types.NewID(), "consultation.accepted", "consultation", &resourceID,
		map[string]any{"doctor_id": "abc"}, "")

	if entry.Hash == "" {
		t.Fatal("entry must be hashed on creation")
	}
	if !entry.VerifyHash() {
		t.Fatal("fresh entry must verify")
	}
}

func TestEntryTamperDetection(t *testing.T) {
	entry := NewEntry("patient", types.NewID(), "payment.recorded", "payment", nil, nil, "")

	entry.Action = "payment.refunded"
	if entry.VerifyHash() {
		t.Fatal("tampered entry must not verify")
	}
}

func TestEntryChaining(t *testing.T) {
	first := NewEntry("system", types.NewID(), "consultation.created", "consultation", nil, nil, "")
	second := NewEntry("system", types.NewID(), "consultation.accepted", "consultation", nil, nil, first.Hash)

	if second.PrevHash != first.Hash {
		t.Fatal("second entry must link to the first")
	}
	if first.Hash == second.Hash {
		t.Fatal("distinct entries must hash differently")
	}
}

func TestCanonicalJSONDeterministic(t *testing.T) {
	value := map[string]any{
		"b": 2,
		"a": map[string]any{"z": true, "y": []any{"one", "two"}},
	}

	want := `{"a":{"y":["one","two"],"z":true},"b":2}`
	for i := 0; i < 10; i++ {
		got, err := canonicalJSON(value)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != want {
			t.Fatalf("canonicalJSON = %s; want %s", got, want)
		}
	}
}
