package id

import (
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var generatedPattern = regexp.MustCompile(`^GEN-[0-9a-f-]{36}$`)

func TestNewGeneratedRequestID(t *testing.T) {
	rid := NewGeneratedRequestID("GEN")

	if !generatedPattern.MatchString(rid) {
		t.Fatalf("generated ID should match %s, got: %s", generatedPattern, rid)
	}

	u, err := uuid.Parse(strings.TrimPrefix(rid, "GEN-"))
	if err != nil {
		t.Fatalf("UUID part should parse: %v", err)
	}
	if u.Version() != 4 {
		t.Errorf("UUID should be version 4, got %d", u.Version())
	}
}

func TestIsGeneratedRequestID(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		prefix string
		want   bool
	}{
		{"generated", NewGeneratedRequestID("GEN"), "GEN", true},
		{"custom prefix", NewGeneratedRequestID("EDGE"), "EDGE", true},
		{"wrong prefix", NewGeneratedRequestID("GEN"), "EDGE", false},
		{"inbound value", "abc", "GEN", false},
		{"uuid v1 shape", "GEN-6ba7b810-9dad-11d1-80b4-00c04fd430c8", "GEN", false},
		{"uppercase uuid", "GEN-" + strings.ToUpper(uuid.NewString()), "GEN", false},
		{"empty", "", "GEN", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsGeneratedRequestID(tt.id, tt.prefix); got != tt.want {
				t.Errorf("IsGeneratedRequestID(%q, %q) = %v, want %v", tt.id, tt.prefix, got, tt.want)
			}
		})
	}
}

func TestGeneratedRequestIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		rid := NewGeneratedRequestID("GEN")
		if seen[rid] {
			t.Fatalf("Duplicate request ID: %s", rid)
		}
		seen[rid] = true
	}
}

func TestGenerate(t *testing.T) {
	gen := NewGenerator()

	id1 := gen.Generate()
	id2 := gen.Generate()

	if id1.String() == id2.String() {
		t.Error("Generated IDs should be unique")
	}
}

func TestGenerateWithPrefix(t *testing.T) {
	gen := NewGenerator()

	id := gen.GenerateWithPrefix(TaskPrefix)

	if !strings.HasPrefix(id, TaskPrefix+"_") {
		t.Errorf("ID should start with '%s_', got: %s", TaskPrefix, id)
	}

	parts := strings.Split(id, "_")
	if len(parts) != 2 {
		t.Fatalf("Prefixed ID should have format 'prefix_ulid', got: %s", id)
	}

	if _, err := ulid.Parse(parts[1]); err != nil {
		t.Errorf("ULID part should be valid: %s", parts[1])
	}
}

func TestNewTaskID(t *testing.T) {
	taskID := NewTaskID()

	if !strings.HasPrefix(taskID.String(), "task_") {
		t.Errorf("TaskID should start with 'task_', got: %s", taskID)
	}
}

func TestConcurrentGeneration(t *testing.T) {
	gen := NewGenerator()

	const goroutines = 50
	const idsPerGoroutine = 100

	var wg sync.WaitGroup
	idChan := make(chan string, goroutines*idsPerGoroutine)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < idsPerGoroutine; j++ {
				idChan <- gen.GenerateString()
			}
		}()
	}

	wg.Wait()
	close(idChan)

	seen := make(map[string]bool)
	for id := range idChan {
		if seen[id] {
			t.Errorf("Duplicate ID found in concurrent generation: %s", id)
		}
		seen[id] = true
	}

	if len(seen) != goroutines*idsPerGoroutine {
		t.Errorf("Expected %d unique IDs, got %d", goroutines*idsPerGoroutine, len(seen))
	}
}

func TestTaskIDsSortInSubmissionOrder(t *testing.T) {
	gen := NewGenerator()

	ids := make([]string, 50)
	for i := range ids {
		ids[i] = gen.GenerateString()
	}

	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			t.Errorf("IDs should be lexicographically sorted: %s should be > %s", ids[i], ids[i-1])
		}
	}
}

func TestDefaultGenerator(t *testing.T) {
	if Default() != Default() {
		t.Error("Default() should return the same instance")
	}
}

func BenchmarkNewGeneratedRequestID(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = NewGeneratedRequestID("GEN")
	}
}

func BenchmarkGenerateWithPrefix(b *testing.B) {
	gen := NewGenerator()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = gen.GenerateWithPrefix(TaskPrefix)
	}
}
