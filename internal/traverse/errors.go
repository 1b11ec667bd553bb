package traverse

import (
	"errors"
	"fmt"

	"github.com/hupe1980/rulecache/internal/graph"
)

var (
	// ErrCorruptBuffer is returned when a payload's pointer table or root
	// does not describe valid locations inside the payload.
	ErrCorruptBuffer = errors.New("traverse: corrupt buffer")
	// ErrTooLarge is returned when a payload exceeds the addressable pointer table.
	ErrTooLarge = errors.New("traverse: payload too large")
)

func unknownField(t graph.Tag, f graph.Field) error {
	return fmt.Errorf("%w: field %s.%s has kind %s", graph.ErrUnknownTag, t, f.Name, f.Kind)
}
