package schema

import "testing"

func TestValidate(t *testing.T) {
	v := NewValidator()

	fadeInput := map[string]any{
		"type":     "object",
		"required": []string{"brightness", "duration"},
		"properties": map[string]any{
			"brightness": map[string]any{
				"type":    "integer",
				"minimum": 0,
				"maximum": 100,
			},
			"duration": map[string]any{
				"type":    "integer",
				"minimum": 1,
			},
		},
	}

	tests := []struct {
		name    string
		schema  map[string]any
		value   any
		wantErr bool
	}{
		{
			name:   "valid object",
			schema: fadeInput,
			value:  map[string]any{"brightness": 50, "duration": 2000},
		},
		{
			name:    "missing required field",
			schema:  fadeInput,
			value:   map[string]any{"brightness": 50},
			wantErr: true,
		},
		{
			name:    "out of range",
			schema:  fadeInput,
			value:   map[string]any{"brightness": 150, "duration": 2000},
			wantErr: true,
		},
		{
			name:    "wrong type",
			schema:  fadeInput,
			value:   "not an object",
			wantErr: true,
		},
		{
			name:   "boolean property",
			schema: map[string]any{"type": "boolean"},
			value:  true,
		},
		{
			name:    "boolean property rejects string",
			schema:  map[string]any{"type": "boolean"},
			value:   "true",
			wantErr: true,
		},
		{
			name:  "nil schema accepts anything",
			value: map[string]any{"whatever": 1},
		},
		{
			name:   "empty schema accepts anything",
			schema: map[string]any{},
			value:  42,
		},
		{
			name:   "go native int against integer",
			schema: map[string]any{"type": "integer"},
			value:  7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.schema, tt.value)
			if tt.wantErr && err == nil {
				t.Error("expected a validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateCachesCompiledSchemas(t *testing.T) {
	v := NewValidator()
	schema := map[string]any{"type": "number"}

	for i := 0; i < 3; i++ {
		if err := v.Validate(schema, 1.5); err != nil {
			t.Fatalf("pass %d: %v", i, err)
		}
	}

	v.mu.Lock()
	size := len(v.compiled)
	v.mu.Unlock()
	if size != 1 {
		t.Errorf("cache has %d entries, want 1", size)
	}
}

func TestValidateBadSchema(t *testing.T) {
	v := NewValidator()
	err := v.Validate(map[string]any{"type": 12345}, "x")
	if err == nil {
		t.Error("expected a compile error for a malformed schema")
	}
}
