package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Chative-Billing-Assistant/agent/contract"
)

// Handler runs one tool invocation on raw JSON arguments and returns the
// text handed back to the model.
type Handler func(ctx context.Context, args json.RawMessage) (string, error)

// Validator is implemented by argument structs with constraints beyond
// their JSON shape.
type Validator interface {
	Validate() error
}

type entry struct {
	info    *schema.ToolInfo
	handler Handler
}

// Registry maps tool names to their schema and handler. Registration order
// is kept so tool binding is deterministic.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]entry
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]entry)}
}

// Register adds a raw handler under info.Name.
func (r *Registry) Register(info *schema.ToolInfo, h Handler) error {
	if info == nil || strings.TrimSpace(info.Name) == "" {
		return errors.New("tool info with a name is required")
	}
	if h == nil {
		return fmt.Errorf("tool=%s: handler is nil", info.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[info.Name]; exists {
		return fmt.Errorf("tool=%s already registered", info.Name)
	}
	r.tools[info.Name] = entry{info: info, handler: h}
	r.order = append(r.order, info.Name)
	return nil
}

// RegisterTyped registers fn behind a strict decoder: unknown fields and
// trailing data are rejected, and A.Validate runs before dispatch when A
// implements Validator.
func RegisterTyped[A any](r *Registry, info *schema.ToolInfo, fn func(ctx context.Context, args A) (string, error)) error {
	if fn == nil {
		return errors.New("typed handler is nil")
	}
	return r.Register(info, func(ctx context.Context, raw json.RawMessage) (string, error) {
		args, err := DecodeArgs[A](raw)
		if err != nil {
			return "", err
		}
		return fn(ctx, args)
	})
}

// DecodeArgs strictly decodes raw into A and validates it.
func DecodeArgs[A any](raw json.RawMessage) (A, error) {
	var args A
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&args); err != nil {
		return args, fmt.Errorf("%w: %v", contractx.ErrInvalidArguments, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return args, fmt.Errorf("%w: trailing data after arguments", contractx.ErrInvalidArguments)
	}

	if v, ok := any(&args).(Validator); ok {
		if err := v.Validate(); err != nil {
			return args, fmt.Errorf("%w: %v", contractx.ErrInvalidArguments, err)
		}
	}
	return args, nil
}

func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return e.handler, true
}

// Infos returns the schemas in registration order, for model binding.
func (r *Registry) Infos() []*schema.ToolInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*schema.ToolInfo, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].info)
	}
	return out
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]string(nil), r.order...)
	sort.Strings(out)
	return out
}
