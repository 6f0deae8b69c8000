package dag

import "testing"

func TestNewGraph(t *testing.T) {
	tests := []struct {
		name    string
		deps    map[string][]string
		wantErr bool
	}{
		{
			name: "no dependencies",
			deps: map[string][]string{"dataService": nil, "uiService": nil},
		},
		{
			name: "valid dependency",
			deps: map[string][]string{"dataService": nil, "uiService": {"dataService"}},
		},
		{
			name:    "unknown dependency",
			deps:    map[string][]string{"uiService": {"dataService"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGraph(tt.deps)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("NewGraph() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewGraph() unexpected error: %v", err)
			}
			if g == nil {
				t.Fatalf("NewGraph() returned nil graph")
			}
		})
	}
}

func TestTopologicalSort(t *testing.T) {
	tests := []struct {
		name    string
		deps    map[string][]string
		wantErr bool
	}{
		{
			name: "linear dependency",
			deps: map[string][]string{"dataService": nil, "uiService": {"dataService"}},
		},
		{
			name: "multiple dependencies",
			deps: map[string][]string{
				"dataService": nil,
				"cacheService":   nil,
				"uiService":   {"dataService"},
				"jobRunner": {"dataService", "cacheService"},
			},
		},
		{
			name:    "circular dependency",
			deps:    map[string][]string{"a": {"b"}, "b": {"a"}},
			wantErr: true,
		},
		{
			name:    "indirect circular dependency",
			deps:    map[string][]string{"a": {"b"}, "b": {"c"}, "c": {"a"}},
			wantErr: true,
		},
		{
			name:    "self dependency",
			deps:    map[string][]string{"a": {"a"}},
			wantErr: true,
		},
		{
			name: "no dependencies",
			deps: map[string][]string{"dataService": nil, "uiService": nil},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGraph(tt.deps)
			if err != nil {
				t.Fatalf("NewGraph() unexpected error: %v", err)
			}

			order, err := g.TopologicalSort()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("TopologicalSort() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("TopologicalSort() unexpected error: %v", err)
			}

			if len(order) != len(tt.deps) {
				t.Fatalf("TopologicalSort() order length = %d, want %d", len(order), len(tt.deps))
			}

			pos := make(map[string]int, len(order))
			for i, name := range order {
				pos[name] = i
			}
			for name, ds := range tt.deps {
				for _, dep := range ds {
					if pos[dep] >= pos[name] {
						t.Errorf("dependency constraint violated: %s should come before %s", dep, name)
					}
				}
			}
		})
	}
}
