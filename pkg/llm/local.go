package llm

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"time"
)

// LocalProvider answers with a canned summary of the last user message. It is
// used when no API key is configured so the rest of the pipeline stays usable.
type LocalProvider struct {
	// Delay between chunks; zero streams as fast as the reader pulls.
	Delay time.Duration
}

func (p *LocalProvider) StreamChat(ctx context.Context, req Request) (Stream, error) {
	full := []rune(LocalAnswer(req))
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	var chunks []string
	for i := 0; i < len(full); {
		step := 16 + r.Intn(32)
		if i+step > len(full) {
			step = len(full) - i
		}
		chunks = append(chunks, string(full[i:i+step]))
		i += step
	}
	return &SliceStream{Chunks: chunks, Delay: p.Delay, ctx: ctx}, nil
}

func LocalAnswer(req Request) string {
	var last string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			last = strings.TrimSpace(req.Messages[i].Content.PlainText())
			break
		}
	}
	if last == "" {
		last = "your question"
	}
	b := &strings.Builder{}
	fmt.Fprintf(b, "Summary for: %s\n\n", truncate(last, 120))
	fmt.Fprintln(b, "The language model is not configured on this server, so this is a placeholder answer.")
	fmt.Fprintf(b, "- Model requested: %s\n", req.Model)
	fmt.Fprintf(b, "- Messages in context: %d\n", len(req.Messages))
	fmt.Fprintln(b, "\nSet OPENAI_API_KEY to get real responses.")
	return b.String()
}

// SliceStream replays fixed chunks. Tests use it as a scripted provider.
type SliceStream struct {
	Chunks []string
	// Err, when set, is returned after all chunks instead of io.EOF.
	Err   error
	Delay time.Duration

	ctx    context.Context
	pos    int
	closed bool
}

func NewSliceStream(chunks ...string) *SliceStream {
	return &SliceStream{Chunks: chunks}
}

func (s *SliceStream) Recv() (string, error) {
	if s.closed {
		return "", io.ErrClosedPipe
	}
	if s.pos >= len(s.Chunks) {
		if s.Err != nil {
			return "", s.Err
		}
		return "", io.EOF
	}
	if s.Delay > 0 {
		ctx := s.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		t := time.NewTimer(s.Delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return "", ctx.Err()
		}
	}
	chunk := s.Chunks[s.pos]
	s.pos++
	return chunk, nil
}

func (s *SliceStream) Close() error {
	s.closed = true
	return nil
}

// truncate limits s to n characters, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
