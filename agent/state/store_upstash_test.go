package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	contractx "github.com/tanpawarit/Chative-Billing-Assistant/agent/contract"
)

type upstashRecorder struct {
	mu         sync.Mutex
	commands   [][]any
	txs        int
	reply      func(cmd []any) string
	multiReply func(cmds [][]any) string
}

func (r *upstashRecorder) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		defer req.Body.Close()
		if got := req.Header.Get("Authorization"); got != "Bearer token" {
			t.Errorf("Authorization = %q", got)
		}

		if req.URL.Path == "/multi-exec" {
			var cmds [][]any
			if err := json.NewDecoder(req.Body).Decode(&cmds); err != nil {
				t.Errorf("decode transaction: %v", err)
				return
			}
			r.mu.Lock()
			r.commands = append(r.commands, cmds...)
			r.txs++
			r.mu.Unlock()
			if r.multiReply != nil {
				fmt.Fprint(w, r.multiReply(cmds))
				return
			}
			parts := make([]string, len(cmds))
			for i, cmd := range cmds {
				parts[i] = r.reply(cmd)
			}
			fmt.Fprint(w, "["+strings.Join(parts, ",")+"]")
			return
		}

		var cmd []any
		if err := json.NewDecoder(req.Body).Decode(&cmd); err != nil {
			t.Errorf("decode command: %v", err)
			return
		}
		r.mu.Lock()
		r.commands = append(r.commands, cmd)
		r.mu.Unlock()
		fmt.Fprint(w, r.reply(cmd))
	}
}

func newUpstashTestBackend(t *testing.T, rec *upstashRecorder, opts ...UpstashOption) *UpstashBackend {
	t.Helper()
	server := httptest.NewServer(rec.handler(t))
	t.Cleanup(server.Close)

	b, err := NewUpstashBackend(
		UpstashConfig{URL: server.URL, Token: "token"},
		append([]UpstashOption{WithHTTPClient(server.Client())}, opts...)...,
	)
	if err != nil {
		t.Fatalf("NewUpstashBackend() error = %v", err)
	}
	return b
}

func TestUpstashBackendListKey(t *testing.T) {
	t.Parallel()

	b := &UpstashBackend{keyPrefix: defaultThreadKeyPrefix}
	got, err := b.listKey("abc")
	if err != nil {
		t.Fatalf("listKey() error = %v", err)
	}
	if got != "billing:thread:abc" {
		t.Fatalf("listKey() = %q, want %q", got, "billing:thread:abc")
	}
	if _, err := b.listKey("   "); !errors.Is(err, ErrInvalidThread) {
		t.Fatalf("listKey() error = %v, want ErrInvalidThread", err)
	}
}

func TestUpstashBackendAppendPushesAndExpiresInOneTransaction(t *testing.T) {
	t.Parallel()

	rec := &upstashRecorder{reply: func([]any) string { return `{"result":2}` }}
	b := newUpstashTestBackend(t, rec, WithTTL(90*time.Second), WithKeyPrefix("t:"))

	err := b.Append(context.Background(), "th-1", []contractx.Message{
		contractx.UserMessage("hello"),
		contractx.AssistantMessage("hi there"),
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if len(rec.commands) != 2 || rec.txs != 1 {
		t.Fatalf("commands = %#v (txs=%d), want RPUSH then EXPIRE in one transaction", rec.commands, rec.txs)
	}
	push := rec.commands[0]
	if push[0] != "RPUSH" || push[1] != "t:th-1" || len(push) != 4 {
		t.Fatalf("push command = %#v", push)
	}
	var first contractx.Message
	if err := json.Unmarshal([]byte(push[2].(string)), &first); err != nil {
		t.Fatalf("decode pushed message: %v", err)
	}
	if first.Role != contractx.RoleUser || first.Content != "hello" {
		t.Fatalf("pushed message = %#v", first)
	}

	expire := rec.commands[1]
	if expire[0] != "EXPIRE" || expire[2] != float64(90) {
		t.Fatalf("expire command = %#v", expire)
	}
}

func TestUpstashBackendLoadDecodesList(t *testing.T) {
	t.Parallel()

	stored := []contractx.Message{contractx.UserMessage("q"), contractx.AssistantMessage("a")}
	var encoded []string
	for _, m := range stored {
		raw, _ := json.Marshal(m)
		encoded = append(encoded, string(raw))
	}
	body, _ := json.Marshal(map[string]any{"result": encoded})

	rec := &upstashRecorder{reply: func([]any) string { return string(body) }}
	b := newUpstashTestBackend(t, rec)

	msgs, err := b.Load(context.Background(), "th-2")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(msgs) != 2 || msgs[1].Content != "a" {
		t.Fatalf("Load() = %#v", msgs)
	}
	if cmd := rec.commands[0]; cmd[0] != "LRANGE" || cmd[1] != "billing:thread:th-2" {
		t.Fatalf("load command = %#v", cmd)
	}
}

func TestUpstashBackendErrorsAreStorageErrors(t *testing.T) {
	t.Parallel()

	rec := &upstashRecorder{reply: func([]any) string { return `{"error":"WRONGTYPE"}` }}
	b := newUpstashTestBackend(t, rec)

	_, err := b.Load(context.Background(), "th-3")
	if !errors.Is(err, contractx.ErrStorage) {
		t.Fatalf("Load() error = %v, want ErrStorage", err)
	}
	err = b.Append(context.Background(), "th-3", []contractx.Message{contractx.UserMessage("x")})
	if !errors.Is(err, contractx.ErrStorage) {
		t.Fatalf("Append() error = %v, want ErrStorage", err)
	}
}

func TestUpstashBackendAppendWithoutTTLSkipsTransaction(t *testing.T) {
	t.Parallel()

	rec := &upstashRecorder{reply: func([]any) string { return `{"result":1}` }}
	b := newUpstashTestBackend(t, rec)

	if err := b.Append(context.Background(), "th-4", []contractx.Message{contractx.UserMessage("x")}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if rec.txs != 0 || len(rec.commands) != 1 || rec.commands[0][0] != "RPUSH" {
		t.Fatalf("commands = %#v (txs=%d), want a single RPUSH", rec.commands, rec.txs)
	}
}

func TestUpstashBackendExpireFailureKeepsAppend(t *testing.T) {
	t.Parallel()

	rec := &upstashRecorder{
		reply: func([]any) string { return `{"result":[]}` },
		multiReply: func([][]any) string {
			return `[{"result":1},{"error":"ERR expire failed"}]`
		},
	}
	b := newUpstashTestBackend(t, rec, WithTTL(time.Minute))
	store, err := NewThreadStore(b)
	if err != nil {
		t.Fatalf("NewThreadStore() error = %v", err)
	}

	sess, err := store.Acquire(context.Background(), "th-5")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer sess.Release()

	if err := sess.Append(context.Background(), contractx.UserMessage("x")); err != nil {
		t.Fatalf("Append() error = %v, want nil when only EXPIRE failed", err)
	}
	if sess.Len() != 1 {
		t.Fatalf("session len = %d, want 1", sess.Len())
	}
}

func TestUpstashBackendPushFailureInTransaction(t *testing.T) {
	t.Parallel()

	rec := &upstashRecorder{multiReply: func([][]any) string {
		return `[{"error":"WRONGTYPE"},{"result":1}]`
	}}
	b := newUpstashTestBackend(t, rec, WithTTL(time.Minute))

	err := b.Append(context.Background(), "th-6", []contractx.Message{contractx.UserMessage("x")})
	if !errors.Is(err, contractx.ErrStorage) {
		t.Fatalf("Append() error = %v, want ErrStorage", err)
	}
}

func TestUpstashLeaserWaitsThenReleasesOwnToken(t *testing.T) {
	t.Parallel()

	var sets int
	rec := &upstashRecorder{reply: func(cmd []any) string {
		switch cmd[0] {
		case "SET":
			sets++
			if sets == 1 {
				return `{"result":null}`
			}
			return `{"result":"OK"}`
		default:
			return `{"result":1}`
		}
	}}
	b := newUpstashTestBackend(t, rec)
	l, err := NewUpstashLeaser(b, "", time.Minute)
	if err != nil {
		t.Fatalf("NewUpstashLeaser() error = %v", err)
	}
	l.poll = time.Millisecond

	release, err := l.Lease(context.Background(), "th-7")
	if err != nil {
		t.Fatalf("Lease() error = %v", err)
	}
	release()

	if len(rec.commands) != 3 {
		t.Fatalf("commands = %#v, want SET, SET, EVAL", rec.commands)
	}
	set := rec.commands[1]
	if set[1] != "billing:lease:th-7" || set[3] != "NX" || set[4] != "PX" || set[5] != "60000" {
		t.Fatalf("set command = %#v", set)
	}
	eval := rec.commands[2]
	if eval[0] != "EVAL" || eval[3] != "billing:lease:th-7" || eval[4] != set[2] {
		t.Fatalf("release command = %#v, want EVAL with the lease token", eval)
	}

	if _, err := l.Lease(context.Background(), " "); !errors.Is(err, ErrInvalidThread) {
		t.Fatalf("Lease() error = %v, want ErrInvalidThread", err)
	}
}
