package call_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/relayvox/relayvox/internal/model/call"
	callsvc "github.com/relayvox/relayvox/internal/service/call"
)

func TestRegistryCreateAndGet(t *testing.T) {
	reg := callsvc.NewRegistry()

	created, err := reg.Create("CA1", "+15550100", "+15550200")
	if err != nil {
		t.Fatalf("Create err: %v", err)
	}
	if !created.Active {
		t.Fatal("new session must be active")
	}

	got, ok := reg.Get("CA1")
	if !ok {
		t.Fatal("session not found after create")
	}
	if got.From != "+15550100" || got.To != "+15550200" {
		t.Fatalf("unexpected endpoints: %s -> %s", got.From, got.To)
	}
}

func TestRegistryCreateDuplicate(t *testing.T) {
	reg := callsvc.NewRegistry()

	if _, err := reg.Create("CA1", "a", "b"); err != nil {
		t.Fatalf("Create err: %v", err)
	}
	if _, err := reg.Create("CA1", "a", "b"); !errors.Is(err, callsvc.ErrSessionExists) {
		t.Fatalf("expected ErrSessionExists, got %v", err)
	}
	if _, err := reg.Create("", "a", "b"); !errors.Is(err, callsvc.ErrCallIDRequired) {
		t.Fatalf("expected ErrCallIDRequired, got %v", err)
	}
}

func TestRegistryHistoryCap(t *testing.T) {
	reg := callsvc.NewRegistry()
	if _, err := reg.Create("CA1", "a", "b"); err != nil {
		t.Fatalf("Create err: %v", err)
	}

	for i := 0; i < 25; i++ {
		if !reg.AppendHistory("CA1", call.RoleUser, fmt.Sprintf("turn %d", i)) {
			t.Fatalf("append %d failed", i)
		}
	}

	got, _ := reg.Get("CA1")
	if len(got.History) != 20 {
		t.Fatalf("history length: got %d want 20", len(got.History))
	}
	if got.History[0].Content != "turn 5" {
		t.Fatalf("oldest entries must drop first: got %q", got.History[0].Content)
	}
	if got.History[19].Content != "turn 24" {
		t.Fatalf("newest entry: got %q", got.History[19].Content)
	}
}

func TestRegistryAppendAfterEndDropped(t *testing.T) {
	reg := callsvc.NewRegistry()
	if _, err := reg.Create("CA1", "a", "b"); err != nil {
		t.Fatalf("Create err: %v", err)
	}

	if _, ok := reg.End("CA1", "hangup"); !ok {
		t.Fatal("End failed")
	}
	if reg.AppendHistory("CA1", call.RoleUser, "too late") {
		t.Fatal("append after end must be a no-op")
	}
	if _, ok := reg.Get("CA1"); ok {
		t.Fatal("ended session must leave the live set")
	}
}

func TestRegistrySingleOutstandingStream(t *testing.T) {
	reg := callsvc.NewRegistry()
	if _, err := reg.Create("CA1", "a", "b"); err != nil {
		t.Fatalf("Create err: %v", err)
	}

	ctx1, cancel1 := context.WithCancel(context.Background())
	if _, ok := reg.SetStreamCancel("CA1", cancel1); !ok {
		t.Fatal("SetStreamCancel failed")
	}

	ctx2, cancel2 := context.WithCancel(context.Background())
	if _, ok := reg.SetStreamCancel("CA1", cancel2); !ok {
		t.Fatal("second SetStreamCancel failed")
	}

	if ctx1.Err() == nil {
		t.Fatal("registering a new stream must cancel the previous one")
	}
	if ctx2.Err() != nil {
		t.Fatal("current stream must stay live")
	}

	if !reg.CancelStream("CA1") {
		t.Fatal("CancelStream found no handle")
	}
	if ctx2.Err() == nil {
		t.Fatal("CancelStream must fire the handle")
	}
	if reg.CancelStream("CA1") {
		t.Fatal("handle must be cleared after cancel")
	}
}

func TestRegistryClearStreamCancelTokenGuard(t *testing.T) {
	reg := callsvc.NewRegistry()
	if _, err := reg.Create("CA1", "a", "b"); err != nil {
		t.Fatalf("Create err: %v", err)
	}

	_, cancel1 := context.WithCancel(context.Background())
	token1, _ := reg.SetStreamCancel("CA1", cancel1)

	ctx2, cancel2 := context.WithCancel(context.Background())
	if _, ok := reg.SetStreamCancel("CA1", cancel2); !ok {
		t.Fatal("second SetStreamCancel failed")
	}

	// A stale token must not drop the newer stream's handle.
	reg.ClearStreamCancel("CA1", token1)
	if !reg.CancelStream("CA1") {
		t.Fatal("current handle was clobbered by a stale clear")
	}
	if ctx2.Err() == nil {
		t.Fatal("current stream should have been cancelled")
	}
}

func TestRegistryEndCancelsStream(t *testing.T) {
	reg := callsvc.NewRegistry()
	if _, err := reg.Create("CA1", "a", "b"); err != nil {
		t.Fatalf("Create err: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if _, ok := reg.SetStreamCancel("CA1", cancel); !ok {
		t.Fatal("SetStreamCancel failed")
	}

	summary, ok := reg.End("CA1", "hangup")
	if !ok {
		t.Fatal("End failed")
	}
	if ctx.Err() == nil {
		t.Fatal("End must cancel the outstanding stream")
	}
	if summary.Reason != "hangup" {
		t.Fatalf("unexpected reason: %s", summary.Reason)
	}
}

func TestRegistryEndSummary(t *testing.T) {
	reg := callsvc.NewRegistry()
	if _, err := reg.Create("CA1", "+1", "+2"); err != nil {
		t.Fatalf("Create err: %v", err)
	}
	reg.AppendHistory("CA1", call.RoleUser, "hi")
	reg.AppendHistory("CA1", call.RoleAssistant, "hello")

	summary, ok := reg.End("CA1", "timeout")
	if !ok {
		t.Fatal("End failed")
	}
	if summary.Messages != 2 {
		t.Fatalf("message count: got %d want 2", summary.Messages)
	}
	if summary.Duration < 0 {
		t.Fatalf("negative duration: %v", summary.Duration)
	}
}

func TestRegistryTouchSequenceMonotonic(t *testing.T) {
	reg := callsvc.NewRegistry()
	if _, err := reg.Create("CA1", "a", "b"); err != nil {
		t.Fatalf("Create err: %v", err)
	}

	reg.Touch("CA1", 5)
	reg.Touch("CA1", 3)

	got, _ := reg.Get("CA1")
	if got.SequenceNumber != 5 {
		t.Fatalf("sequence number must not move backwards: got %d", got.SequenceNumber)
	}
}

func TestRegistryMarkLastInterrupted(t *testing.T) {
	reg := callsvc.NewRegistry()
	if _, err := reg.Create("CA1", "a", "b"); err != nil {
		t.Fatalf("Create err: %v", err)
	}
	reg.AppendHistory("CA1", call.RoleUser, "question")
	reg.AppendHistory("CA1", call.RoleAssistant, "the full answer nobody heard")
	reg.AppendHistory("CA1", call.RoleUser, "wait")

	if !reg.MarkLastInterrupted("CA1", "the full") {
		t.Fatal("MarkLastInterrupted failed")
	}

	got, _ := reg.Get("CA1")
	entry := got.History[1]
	if !entry.Interrupted {
		t.Fatal("assistant entry not flagged interrupted")
	}
	if entry.Content != "the full" {
		t.Fatalf("content not replaced with heard utterance: %q", entry.Content)
	}
	if got.History[2].Interrupted {
		t.Fatal("user entry must stay untouched")
	}
}

func TestRegistryMetricsAndReset(t *testing.T) {
	reg := callsvc.NewRegistry()
	reg.Create("CA1", "a", "b")
	reg.Create("CA2", "a", "b")
	reg.End("CA1", "hangup")

	m := reg.Metrics()
	if m.Active != 1 || m.TotalStarted != 2 || m.TotalEnded != 1 {
		t.Fatalf("unexpected metrics: %+v", m)
	}

	ctx, cancel := context.WithCancel(context.Background())
	reg.SetStreamCancel("CA2", cancel)

	reg.Reset()
	if reg.Count() != 0 {
		t.Fatalf("sessions survive reset: %d", reg.Count())
	}
	if ctx.Err() == nil {
		t.Fatal("reset must cancel outstanding streams")
	}
	if got := reg.Metrics(); got.TotalEnded != 2 {
		t.Fatalf("reset must account ended sessions: %+v", got)
	}
}

func TestRegistrySnapshotIsolation(t *testing.T) {
	reg := callsvc.NewRegistry()
	reg.Create("CA1", "a", "b")
	reg.AppendHistory("CA1", call.RoleAssistant, "original")

	got, _ := reg.Get("CA1")
	got.History[0].Content = "mutated"

	again, _ := reg.Get("CA1")
	if again.History[0].Content != "original" {
		t.Fatal("registry must hand out copies, not shared state")
	}
}
