package allocation

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Lineage id prefixes.
const (
	PrefixRoot = "A"
	PrefixRM   = "RM"
	PrefixBM   = "BM"
)

type IDGenerator interface {
	New(prefix string) string
}

// RandomIDs produces ids like "A3F9C01B2D4E7".
type RandomIDs struct{}

func (RandomIDs) New(prefix string) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + strings.ToUpper(hex[:12])
}

// SequenceIDs produces A0001, A0002, RM0001, ... for tests and demo data.
type SequenceIDs struct {
	mu   sync.Mutex
	next map[string]int
}

func (s *SequenceIDs) New(prefix string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next == nil {
		s.next = make(map[string]int)
	}
	s.next[prefix]++
	return fmt.Sprintf("%s%04d", prefix, s.next[prefix])
}
