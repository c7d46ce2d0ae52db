package rag

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/david1005910/Bio2/engine/domain"
	"github.com/david1005910/Bio2/pkg/modelhttp"
)

type fakeChat struct {
	reply    string
	err      error
	lastMsgs []modelhttp.ChatMessage
	lastOpts modelhttp.ChatOpts
}

func (f *fakeChat) Chat(_ context.Context, opts modelhttp.ChatOpts, msgs []modelhttp.ChatMessage) (string, int, error) {
	f.lastOpts = opts
	f.lastMsgs = msgs
	return f.reply, 42, f.err
}

func TestGenHandle_PromptCarriesEvidenceAndRules(t *testing.T) {
	chat := &fakeChat{reply: "answer [PMID: 123]"}
	h := NewGenHandle(DefaultGenerateOptions(), func() (ChatClient, error) { return chat, nil })

	out, err := h.Generate(context.Background(), "what about genes?", []domain.EvidenceItem{
		{PMID: "123", Title: "Gene study", Section: "results", Text: "genes do things"},
	}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if out != "answer [PMID: 123]" {
		t.Fatalf("unexpected reply: %q", out)
	}

	if len(chat.lastMsgs) != 2 || chat.lastMsgs[0].Role != "system" {
		t.Fatalf("unexpected message shape: %+v", chat.lastMsgs)
	}
	if !strings.Contains(chat.lastMsgs[0].Content, "[PMID: xxxxx]") {
		t.Error("system prompt missing citation format rule")
	}
	if !strings.Contains(chat.lastMsgs[0].Content, DeclinePhrase) {
		t.Error("system prompt missing decline instruction")
	}
	user := chat.lastMsgs[1].Content
	for _, want := range []string{"PMID: 123", "genes do things", "what about genes?"} {
		if !strings.Contains(user, want) {
			t.Errorf("user prompt missing %q", want)
		}
	}
}

func TestGenHandle_TemperatureOverride(t *testing.T) {
	chat := &fakeChat{reply: "r"}
	h := NewGenHandle(DefaultGenerateOptions(), func() (ChatClient, error) { return chat, nil })

	_, _ = h.Generate(context.Background(), "q", nil, 0.9)
	if chat.lastOpts.Temperature != 0.9 {
		t.Fatalf("override ignored: %v", chat.lastOpts.Temperature)
	}
	_, _ = h.Generate(context.Background(), "q", nil, 0)
	if chat.lastOpts.Temperature != DefaultGenerateOptions().Temperature {
		t.Fatalf("default not applied: %v", chat.lastOpts.Temperature)
	}
}

func TestGenHandle_DialsAtMostOnce(t *testing.T) {
	var dials atomic.Int32
	chat := &fakeChat{reply: "r"}
	h := NewGenHandle(DefaultGenerateOptions(), func() (ChatClient, error) {
		dials.Add(1)
		return chat, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.Generate(context.Background(), "q", nil, 0)
		}()
	}
	wg.Wait()
	if dials.Load() != 1 {
		t.Fatalf("dial ran %d times, want 1", dials.Load())
	}
}

func TestGenHandle_FailuresWrapSentinel(t *testing.T) {
	h := NewGenHandle(DefaultGenerateOptions(), func() (ChatClient, error) {
		return nil, errors.New("gateway down")
	})
	if _, err := h.Generate(context.Background(), "q", nil, 0); !errors.Is(err, domain.ErrGenerationUnavailable) {
		t.Fatalf("dial failure: expected sentinel, got %v", err)
	}

	h2 := NewGenHandle(DefaultGenerateOptions(), func() (ChatClient, error) {
		return &fakeChat{err: errors.New("503")}, nil
	})
	if _, err := h2.Generate(context.Background(), "q", nil, 0); !errors.Is(err, domain.ErrGenerationUnavailable) {
		t.Fatalf("call failure: expected sentinel, got %v", err)
	}
}
