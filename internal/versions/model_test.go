package versions

import (
	"testing"
)

func TestEvictionCandidates(t *testing.T) {
	testCases := []struct {
		name     string
		versions []ContractVersion
		limits   Limits
		expected []string
	}{
		{
			name:     "under caps",
			versions: []ContractVersion{{ID: "m2"}, {ID: "a1", Auto: true}, {ID: "m1"}},
			limits:   Limits{MaxManual: 2, MaxAuto: 1},
			expected: nil,
		},
		{
			name:     "oldest manual dropped",
			versions: []ContractVersion{{ID: "m3"}, {ID: "m2"}, {ID: "m1"}},
			limits:   Limits{MaxManual: 2, MaxAuto: 1},
			expected: []string{"m1"},
		},
		{
			name:     "auto churn keeps manual",
			versions: []ContractVersion{{ID: "a3", Auto: true}, {ID: "a2", Auto: true}, {ID: "m1"}, {ID: "a1", Auto: true}},
			limits:   Limits{MaxManual: 1, MaxAuto: 1},
			expected: []string{"a2", "a1"},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			evicted := evictionCandidates(testCase.versions, testCase.limits)
			if len(evicted) != len(testCase.expected) {
				t.Fatalf("expected %v, got %v", testCase.expected, evicted)
			}
			for index := range evicted {
				if evicted[index] != testCase.expected[index] {
					t.Fatalf("expected %v, got %v", testCase.expected, evicted)
				}
			}
		})
	}
}

func TestCopyVariablesNeverReturnsNil(t *testing.T) {
	copied := copyVariables(nil)
	if copied == nil {
		t.Fatalf("expected empty map")
	}
	source := map[string]string{"a": "1"}
	copied = copyVariables(source)
	copied["a"] = "2"
	if source["a"] != "1" {
		t.Fatalf("copy aliases the source map")
	}
}
