package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Chative-Billing-Assistant/agent/contract"
)

type echoArgs struct {
	Text string `json:"text"`
}

func (a echoArgs) Validate() error {
	if a.Text == "" {
		return errors.New("text is required")
	}
	return nil
}

func echoRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	err := RegisterTyped(r, &schema.ToolInfo{Name: "echo", Desc: "echo"}, func(_ context.Context, a echoArgs) (string, error) {
		return a.Text, nil
	})
	if err != nil {
		t.Fatalf("RegisterTyped() error = %v", err)
	}
	return r
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	t.Parallel()

	r := echoRegistry(t)
	err := r.Register(&schema.ToolInfo{Name: "echo"}, func(context.Context, json.RawMessage) (string, error) { return "", nil })
	if err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
	if got := len(r.Infos()); got != 1 {
		t.Fatalf("Infos() len = %d, want 1", got)
	}
}

func TestDecodeArgsIsStrict(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{name: "valid", raw: `{"text":"hi"}`},
		{name: "unknown field", raw: `{"text":"hi","extra":1}`, wantErr: true},
		{name: "wrong type", raw: `{"text":3}`, wantErr: true},
		{name: "trailing data", raw: `{"text":"hi"} {}`, wantErr: true},
		{name: "fails validation", raw: `{}`, wantErr: true},
		{name: "empty arguments", raw: ``, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeArgs[echoArgs](json.RawMessage(tt.raw))
			if tt.wantErr {
				if !errors.Is(err, contractx.ErrInvalidArguments) {
					t.Fatalf("DecodeArgs() error = %v, want ErrInvalidArguments", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeArgs() error = %v", err)
			}
		})
	}
}
