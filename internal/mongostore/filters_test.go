package mongostore

import (
	"encoding/json"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsonrw"

	"coinline/internal/domain"
)

func TestVersionFilter(t *testing.T) {
	f := versionFilter("t1", 4)
	if f["_id"] != "t1" || f["version"] != int64(4) {
		t.Fatalf("unexpected filter %v", f)
	}
}

func TestTaskFilterOnlySetsGivenFields(t *testing.T) {
	f := taskFilter(domain.TaskFilter{ProjectID: "p1", Status: domain.StatusBlocked})
	if len(f) != 2 || f["project_id"] != "p1" || f["status"] != domain.StatusBlocked {
		t.Fatalf("unexpected filter %v", f)
	}
	if len(taskFilter(domain.TaskFilter{})) != 0 {
		t.Fatalf("empty filter should match everything")
	}
}

func TestPageOptions(t *testing.T) {
	opts := pageOptions(domain.TaskFilter{Page: 3, Limit: 20})
	if opts.Limit == nil || *opts.Limit != 20 {
		t.Fatalf("limit not set: %v", opts.Limit)
	}
	if opts.Skip == nil || *opts.Skip != 40 {
		t.Fatalf("skip not set: %v", opts.Skip)
	}
	sort, ok := opts.Sort.(bson.D)
	if !ok || sort[0].Key != "created_at" {
		t.Fatalf("unexpected sort %v", opts.Sort)
	}
	first := pageOptions(domain.TaskFilter{Page: 1, Limit: 5})
	if first.Skip != nil {
		t.Fatalf("first page should not skip")
	}
}

func TestTaskBSONUsesIDField(t *testing.T) {
	data, err := bson.Marshal(domain.Task{ID: "t1", Version: 2, Actions: []domain.Action{{ID: "a1"}}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw bson.M
	if err := bson.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if raw["_id"] != "t1" || raw["version"] != int64(2) {
		t.Fatalf("unexpected document %v", raw)
	}
}

func TestTailOptionsSortsNewestFirst(t *testing.T) {
	opts := tailOptions(50)
	if opts.Limit == nil || *opts.Limit != 50 {
		t.Fatalf("limit not set: %v", opts.Limit)
	}
	sort, ok := opts.Sort.(bson.D)
	if !ok || len(sort) != 2 || sort[0].Key != "ts" || sort[0].Value != -1 || sort[1].Key != "_id" || sort[1].Value != -1 {
		t.Fatalf("unexpected sort %v", opts.Sort)
	}
	if tailOptions(0).Limit != nil {
		t.Fatalf("zero limit should not cap the feed")
	}
}

func TestNestedActionDataDecodesAsObject(t *testing.T) {
	opts := collectionOptions()
	if opts.BSONOptions == nil || !opts.BSONOptions.DefaultDocumentM {
		t.Fatalf("collections should decode documents as maps")
	}
	raw, err := bson.Marshal(domain.Task{
		ID: "t1",
		Actions: []domain.Action{{
			ID:   "form",
			Type: "form",
			Data: domain.ActionData{"answers": map[string]any{"q1": "yes", "tags": []any{"a", "b"}}},
		}},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	dec, err := bson.NewDecoder(bsonrw.NewBSONDocumentReader(raw))
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	dec.DefaultDocumentM()
	var got domain.Task
	if err := dec.Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	data, err := json.Marshal(got.Actions[0].Data)
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	if string(data) != `{"answers":{"q1":"yes","tags":["a","b"]}}` {
		t.Fatalf("nested data does not round-trip: %s", data)
	}
}
