package engine_test

import (
	"encoding/json"
	"testing"

	"coinline/internal/domain"
)

func sameActions(t *testing.T, a, b []domain.Action) bool {
	t.Helper()
	ja, err := json.Marshal(a)
	if err != nil {
		t.Fatal(err)
	}
	jb, err := json.Marshal(b)
	if err != nil {
		t.Fatal(err)
	}
	return string(ja) == string(jb)
}
