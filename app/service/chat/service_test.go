package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"menreiki/app/service/history"
)

type fakeCompleter struct {
	mu    sync.Mutex
	calls [][]history.Turn
	reply func(call int, messages []history.Turn) ([]string, error)
}

func (f *fakeCompleter) Complete(_ context.Context, messages []history.Turn) ([]string, error) {
	f.mu.Lock()
	call := len(f.calls)
	f.calls = append(f.calls, messages)
	f.mu.Unlock()

	return f.reply(call, messages)
}

func echoCompleter() *fakeCompleter {
	return &fakeCompleter{
		reply: func(call int, _ []history.Turn) ([]string, error) {
			return []string{fmt.Sprintf("r%d", call+1)}, nil
		},
	}
}

func firstChoice(int) int { return 0 }

func TestExchange_BuildsTranscript(t *testing.T) {
	t.Parallel()
	store := history.NewMemoryStore(30)
	svc := NewService(store, echoCompleter(), WithChooser(firstChoice))

	ctx := context.Background()
	r1, err := svc.Exchange(ctx, "c1", "hi")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	r2, err := svc.Exchange(ctx, "c1", "there")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}

	want := []history.Turn{
		history.UserTurn("hi"),
		history.AssistantTurn(r1),
		history.UserTurn("there"),
		history.AssistantTurn(r2),
	}
	got := store.Transcript("c1")
	if len(got) != len(want) {
		t.Fatalf("transcript = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("turn %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestExchange_SendsPreambleTranscriptAndPrompt(t *testing.T) {
	t.Parallel()
	store := history.NewMemoryStore(30)
	completer := echoCompleter()
	system := history.Turn{Role: history.RoleSystem, Content: "be brief"}
	svc := NewService(store, completer, WithChooser(firstChoice), WithPreamble(system))

	ctx := context.Background()
	if _, err := svc.Exchange(ctx, "c1", "hi"); err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if _, err := svc.Exchange(ctx, "c1", "again"); err != nil {
		t.Fatalf("Exchange: %v", err)
	}

	want := []history.Turn{
		system,
		history.UserTurn("hi"),
		history.AssistantTurn("r1"),
		history.UserTurn("again"),
	}
	got := completer.calls[1]
	if len(got) != len(want) {
		t.Fatalf("messages = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestExchange_UsesChooser(t *testing.T) {
	t.Parallel()
	completer := &fakeCompleter{
		reply: func(int, []history.Turn) ([]string, error) {
			return []string{"a", "b", "c"}, nil
		},
	}

	var seen int
	choose := func(n int) int {
		seen = n
		return 2
	}
	svc := NewService(history.NewMemoryStore(30), completer, WithChooser(choose))

	reply, err := svc.Exchange(context.Background(), "c1", "hi")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if seen != 3 {
		t.Errorf("chooser saw n = %d, want 3", seen)
	}
	if reply != "c" {
		t.Errorf("reply = %q, want c", reply)
	}
}

func TestExchange_EmptyReplyIsRecorded(t *testing.T) {
	t.Parallel()
	store := history.NewMemoryStore(30)
	completer := &fakeCompleter{
		reply: func(int, []history.Turn) ([]string, error) {
			return []string{""}, nil
		},
	}
	svc := NewService(store, completer)

	reply, err := svc.Exchange(context.Background(), "c1", "hi")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if reply != "" {
		t.Errorf("reply = %q, want empty", reply)
	}
	if got := store.Transcript("c1"); len(got) != 2 || got[1] != history.AssistantTurn("") {
		t.Errorf("transcript = %+v", got)
	}
}

func TestExchange_FailureLeavesTranscriptUntouched(t *testing.T) {
	t.Parallel()
	store := history.NewMemoryStore(30)
	backendErr := errors.New("rate limited")
	completer := &fakeCompleter{
		reply: func(call int, _ []history.Turn) ([]string, error) {
			if call == 1 {
				return nil, backendErr
			}
			return []string{"ok"}, nil
		},
	}
	svc := NewService(store, completer)

	ctx := context.Background()
	if _, err := svc.Exchange(ctx, "c1", "first"); err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	before := store.Transcript("c1")

	_, err := svc.Exchange(ctx, "c1", "second")
	if !errors.Is(err, backendErr) {
		t.Fatalf("err = %v, want %v", err, backendErr)
	}

	after := store.Transcript("c1")
	if len(after) != len(before) {
		t.Fatalf("transcript changed: %+v -> %+v", before, after)
	}
	for i := range before {
		if after[i] != before[i] {
			t.Errorf("turn %d changed: %+v -> %+v", i, before[i], after[i])
		}
	}
}

func TestExchange_NoChoicesIsAnError(t *testing.T) {
	t.Parallel()
	store := history.NewMemoryStore(30)
	completer := &fakeCompleter{
		reply: func(int, []history.Turn) ([]string, error) {
			return nil, nil
		},
	}
	svc := NewService(store, completer)

	_, err := svc.Exchange(context.Background(), "c1", "hi")
	if !errors.Is(err, ErrNoChoices) {
		t.Fatalf("err = %v, want ErrNoChoices", err)
	}
	if n := store.Conversations(); n != 0 {
		t.Errorf("Conversations = %d, want 0", n)
	}
}

func TestExchange_CapsTranscript(t *testing.T) {
	t.Parallel()
	store := history.NewMemoryStore(30)
	svc := NewService(store, echoCompleter(), WithChooser(firstChoice))

	for i := range 20 {
		if _, err := svc.Exchange(context.Background(), "c1", fmt.Sprintf("q%d", i)); err != nil {
			t.Fatalf("Exchange %d: %v", i, err)
		}
	}

	got := store.Transcript("c1")
	if len(got) != 30 {
		t.Fatalf("len = %d, want 30", len(got))
	}
	if got[0] != history.UserTurn("q5") || got[1] != history.AssistantTurn("r6") {
		t.Errorf("oldest pair = %+v %+v, want q5/r6", got[0], got[1])
	}
	for i := 0; i < len(got); i += 2 {
		if got[i].Role != history.RoleUser || got[i+1].Role != history.RoleAssistant {
			t.Errorf("pairing broken at %d", i)
		}
	}
}

func TestExchange_SerializesSameConversation(t *testing.T) {
	t.Parallel()
	store := history.NewMemoryStore(30)

	var (
		mu       sync.Mutex
		inFlight int
		overlap  bool
	)
	completer := &fakeCompleter{
		reply: func(call int, messages []history.Turn) ([]string, error) {
			mu.Lock()
			inFlight++
			if inFlight > 1 {
				overlap = true
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()

			return []string{messages[len(messages)-1].Content}, nil
		},
	}
	svc := NewService(store, completer)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Exchange(context.Background(), "c1", fmt.Sprintf("p%d", i))
		}()
	}
	wg.Wait()

	if overlap {
		t.Error("exchanges on the same conversation overlapped")
	}

	got := store.Transcript("c1")
	if len(got) != 16 {
		t.Fatalf("len = %d, want 16", len(got))
	}
	for i := 0; i < len(got); i += 2 {
		if got[i].Role != history.RoleUser || got[i+1].Role != history.RoleAssistant {
			t.Fatalf("pairing broken at %d", i)
		}
		if got[i].Content != got[i+1].Content {
			t.Errorf("turn %d reply %q does not answer %q", i, got[i+1].Content, got[i].Content)
		}
	}
}

func TestExchange_DifferentConversationsRunConcurrently(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	started := make(chan struct{}, 2)

	completer := &fakeCompleter{
		reply: func(int, []history.Turn) ([]string, error) {
			started <- struct{}{}
			<-release
			return []string{"ok"}, nil
		},
	}
	svc := NewService(history.NewMemoryStore(30), completer)

	var wg sync.WaitGroup
	for _, id := range []string{"c1", "c2"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Exchange(context.Background(), id, "hi")
		}()
	}

	for range 2 {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			close(release)
			t.Fatal("exchanges on different conversations did not run concurrently")
		}
	}
	close(release)
	wg.Wait()
}

func TestRandomChooser_InRange(t *testing.T) {
	t.Parallel()
	for range 100 {
		if i := RandomChooser(3); i < 0 || i >= 3 {
			t.Fatalf("RandomChooser(3) = %d", i)
		}
	}
}

func TestExchange_WaitingGivesUpWhenContextDone(t *testing.T) {
	t.Parallel()
	store := history.NewMemoryStore(30)
	release := make(chan struct{})
	started := make(chan struct{})

	completer := &fakeCompleter{
		reply: func(call int, _ []history.Turn) ([]string, error) {
			if call == 0 {
				close(started)
				<-release
			}
			return []string{"ok"}, nil
		},
	}
	svc := NewService(store, completer)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.Exchange(context.Background(), "c1", "slow")
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := svc.Exchange(ctx, "c1", "impatient")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}

	close(release)
	<-done

	completer.mu.Lock()
	calls := len(completer.calls)
	completer.mu.Unlock()
	if calls != 1 {
		t.Errorf("backend calls = %d, want 1", calls)
	}

	got := store.Transcript("c1")
	if len(got) != 2 || got[0] != history.UserTurn("slow") {
		t.Errorf("transcript = %+v, want only the slow exchange", got)
	}
}
