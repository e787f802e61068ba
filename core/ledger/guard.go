package ledger

import (
	"fmt"
	"sort"
	"strings"
)

// GuardKind selects how a guard is satisfied.
type GuardKind uint8

const (
	// GuardKeyset is satisfied by transaction signers.
	GuardKeyset GuardKind = 1
	// GuardCapability is satisfied only while the named capability is granted
	// inside the current transaction.
	GuardCapability GuardKind = 2
)

// Keyset predicates.
const (
	PredKeysAll = "keys-all"
	PredKeysAny = "keys-any"
	PredKeys2   = "keys-2"
)

// Guard protects an account or privileged row. Guards are persisted verbatim
// and compared structurally.
type Guard struct {
	Kind       GuardKind `json:"kind"`
	Keys       []string  `json:"keys,omitempty"`
	Pred       string    `json:"pred,omitempty"`
	Capability string    `json:"capability,omitempty"`
	Scope      string    `json:"scope,omitempty"`
}

// KeysetGuard builds a keyset guard over the supplied addresses. An empty
// predicate defaults to keys-all.
func KeysetGuard(pred string, keys ...string) Guard {
	if strings.TrimSpace(pred) == "" {
		pred = PredKeysAll
	}
	normalized := make([]string, 0, len(keys))
	for _, key := range keys {
		if trimmed := strings.TrimSpace(key); trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	sort.Strings(normalized)
	return Guard{Kind: GuardKeyset, Keys: normalized, Pred: pred}
}

// CapabilityGuard builds a guard that only a transaction-scoped capability
// grant can satisfy.
func CapabilityGuard(name, scope string) Guard {
	return Guard{Kind: GuardCapability, Capability: name, Scope: scope}
}

// Validate checks the guard is structurally usable.
func (g Guard) Validate() error {
	switch g.Kind {
	case GuardKeyset:
		if len(g.Keys) == 0 {
			return fmt.Errorf("guard: keyset must contain at least one key")
		}
		seen := make(map[string]struct{}, len(g.Keys))
		for _, key := range g.Keys {
			if strings.TrimSpace(key) == "" {
				return fmt.Errorf("guard: empty key")
			}
			if _, dup := seen[key]; dup {
				return fmt.Errorf("guard: duplicate key %s", key)
			}
			seen[key] = struct{}{}
		}
		switch g.Pred {
		case PredKeysAll, PredKeysAny:
		case PredKeys2:
			if len(g.Keys) < 2 {
				return fmt.Errorf("guard: keys-2 requires at least two keys")
			}
		default:
			return fmt.Errorf("guard: unknown predicate %q", g.Pred)
		}
		return nil
	case GuardCapability:
		if strings.TrimSpace(g.Capability) == "" {
			return fmt.Errorf("guard: capability name required")
		}
		return nil
	default:
		return fmt.Errorf("guard: unknown kind %d", g.Kind)
	}
}

// Equal reports structural equality.
func (g Guard) Equal(other Guard) bool {
	if g.Kind != other.Kind || g.Pred != other.Pred || g.Capability != other.Capability || g.Scope != other.Scope {
		return false
	}
	if len(g.Keys) != len(other.Keys) {
		return false
	}
	for i := range g.Keys {
		if g.Keys[i] != other.Keys[i] {
			return false
		}
	}
	return true
}

func (g Guard) String() string {
	switch g.Kind {
	case GuardKeyset:
		return fmt.Sprintf("keyset(%s:%s)", g.Pred, strings.Join(g.Keys, ","))
	case GuardCapability:
		return fmt.Sprintf("capability(%s/%s)", g.Capability, g.Scope)
	default:
		return "guard(invalid)"
	}
}

func (g Guard) satisfiedBy(signers map[string]struct{}) bool {
	if len(g.Keys) == 0 {
		return false
	}
	matched := 0
	for _, key := range g.Keys {
		if _, ok := signers[key]; ok {
			matched++
		}
	}
	switch g.Pred {
	case PredKeysAll:
		return matched == len(g.Keys)
	case PredKeysAny:
		return matched >= 1
	case PredKeys2:
		return matched >= 2
	default:
		return false
	}
}
