// Package id provides centralized ID generation.
//
// Two formats are in use:
//   - Request identifiers: "<prefix>-<uuid v4>", the format downstream
//     services already expect in the RequestID header
//   - Internal identifiers (tasks, workers): prefixed ULIDs, k-sortable so
//     log lines of one executor read in submission order
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// ============================================================================
// Type-Safe ID Wrappers
// ============================================================================

// TaskID identifies a task submitted to an executor
type TaskID string

const (
	TaskPrefix = "task"
)

// ============================================================================
// Request Identifiers
// ============================================================================

// NewGeneratedRequestID returns "<prefix>-<uuid v4>".
func NewGeneratedRequestID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// IsGeneratedRequestID reports whether s was produced by
// NewGeneratedRequestID with the given prefix.
func IsGeneratedRequestID(s, prefix string) bool {
	rest, ok := strings.CutPrefix(s, prefix+"-")
	if !ok {
		return false
	}
	u, err := uuid.Parse(rest)
	if err != nil {
		return false
	}
	return u.Version() == 4 && u.Variant() == uuid.RFC4122 && u.String() == rest
}

// ============================================================================
// ULID Generator
// ============================================================================

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// NewTaskID generates a new task ID
func NewTaskID() TaskID {
	return TaskID(Default().GenerateWithPrefix(TaskPrefix))
}

func (id TaskID) String() string { return string(id) }
