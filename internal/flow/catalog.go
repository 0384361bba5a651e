package flow

import (
	"context"
	"encoding/json"
	"fmt"
)

// Catalog holds flows by name. It is populated at startup and only read
// afterwards, so lookups need no locking.
type Catalog struct {
	flows map[string]*Flow
	order []string
}

// NewCatalog creates a catalog from the given flows.
func NewCatalog(flows ...*Flow) (*Catalog, error) {
	c := &Catalog{flows: make(map[string]*Flow, len(flows))}
	for _, f := range flows {
		if err := c.Register(f); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Register adds a flow. Names must be unique.
func (c *Catalog) Register(f *Flow) error {
	if _, exists := c.flows[f.Name()]; exists {
		return fmt.Errorf("flow %s is already registered", f.Name())
	}
	c.flows[f.Name()] = f
	c.order = append(c.order, f.Name())
	return nil
}

// Get returns the named flow.
func (c *Catalog) Get(name string) (*Flow, error) {
	f, ok := c.flows[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFlow, name)
	}
	return f, nil
}

// Flows returns every flow in registration order.
func (c *Catalog) Flows() []*Flow {
	out := make([]*Flow, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.flows[name])
	}
	return out
}

// Run invokes the named flow.
func (c *Catalog) Run(ctx context.Context, name string, input any) (map[string]any, error) {
	f, err := c.Get(name)
	if err != nil {
		return nil, err
	}
	return f.Run(ctx, input)
}

// Invoke runs the named flow with a typed request and decodes the validated
// result into O. The field names of I and O follow their JSON tags.
func Invoke[I, O any](ctx context.Context, c *Catalog, name string, in I) (*O, error) {
	record, err := c.Run(ctx, name, in)
	if err != nil {
		return nil, err
	}

	b, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("flow %s: failed to encode result: %w", name, err)
	}
	var out O
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("flow %s: failed to decode result: %w", name, err)
	}
	return &out, nil
}
