package mongo

import (
	"reflect"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"moneymate/internal/docstore"
)

func TestNormalize(t *testing.T) {
	in := bson.M{
		"createdAt": int64(1700000000000),
		"months": bson.D{
			{Key: "March 2025", Value: bson.M{
				"income":       int32(50000),
				"transactions": bson.A{bson.M{"id": "1", "amount": 12.5}},
			}},
		},
	}
	want := docstore.Document{
		"createdAt": 1700000000000.0,
		"months": map[string]any{
			"March 2025": map[string]any{
				"income":       50000.0,
				"transactions": []any{map[string]any{"id": "1", "amount": 12.5}},
			},
		},
	}
	if got := normalize(in); !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v\nwant %#v", got, want)
	}
}

func TestRecordSnapshotEmpty(t *testing.T) {
	snap := record{ID: "x"}.snapshot()
	if !snap.Exists || snap.Data == nil || len(snap.Data) != 0 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestNormalizeKeepsScalars(t *testing.T) {
	for _, v := range []any{"s", true, 1.5, nil} {
		if got := normalize(v); got != v {
			t.Fatalf("%v changed to %v", v, got)
		}
	}
	if got := normalize(primitive.DateTime(5)); got != 5.0 {
		t.Fatalf("DateTime not converted: %v", got)
	}
}
