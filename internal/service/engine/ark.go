package engine

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/mjchen/parley/internal/config"
	"github.com/mjchen/parley/internal/model/chat"
)

// Ark implements Engine on top of an eino chat chain backed by the Ark model
// service. The chain itself is stateless; each Session carries the system
// instruction and accumulated history it was created with.
type Ark struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewArk compiles the chat chain from the engine configuration.
func NewArk(ctx context.Context, cfg config.EngineConfig) (*Ark, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Ark{chain: runnable}, nil
}

// CreateSession binds a system instruction and a replayed history to a new
// engine session.
func (a *Ark) CreateSession(_ context.Context, systemPrompt string, history []chat.Turn) (Session, error) {
	return &arkSession{
		chain:   a.chain,
		system:  systemPrompt,
		history: historyMessages(history),
	}, nil
}

type arkSession struct {
	chain   compose.Runnable[map[string]any, *schema.Message]
	system  string
	history []*schema.Message
}

func (s *arkSession) SendStreaming(ctx context.Context, text string) (Stream, error) {
	input := map[string]any{
		"system":  s.system,
		"history": s.history,
		"query":   text,
	}

	reader, err := s.chain.Stream(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to stream chat chain output: %w", err)
	}

	return &arkStream{session: s, query: text, reader: reader}, nil
}

type arkStream struct {
	session *arkSession
	query   string
	reader  *schema.StreamReader[*schema.Message]
	chunks  []*schema.Message
	done    bool
}

func (st *arkStream) Recv() (Fragment, error) {
	for {
		chunk, err := st.reader.Recv()
		if errors.Is(err, io.EOF) {
			st.done = true
			return Fragment{}, io.EOF
		}
		if err != nil {
			return Fragment{}, err
		}
		if chunk == nil {
			continue
		}

		st.chunks = append(st.chunks, chunk)
		if chunk.Content == "" {
			continue
		}
		return Fragment{Text: chunk.Content}, nil
	}
}

func (st *arkStream) Final() (string, error) {
	if !st.done {
		return "", fmt.Errorf("stream not yet exhausted")
	}
	if len(st.chunks) == 0 {
		return "", nil
	}

	response, err := schema.ConcatMessages(st.chunks)
	if err != nil {
		return "", fmt.Errorf("failed to concatenate response chunks: %w", err)
	}

	// A completed exchange becomes part of the session's replay history.
	st.session.history = append(st.session.history,
		schema.UserMessage(st.query),
		schema.AssistantMessage(response.Content, nil),
	)

	return response.Content, nil
}

func (st *arkStream) Close() {
	st.reader.Close()
}

func historyMessages(turns []chat.Turn) []*schema.Message {
	if len(turns) == 0 {
		return nil
	}

	history := make([]*schema.Message, 0, len(turns))
	for _, t := range turns {
		switch t.Speaker {
		case chat.SpeakerUser:
			history = append(history, schema.UserMessage(t.Text))
		case chat.SpeakerAssistant:
			history = append(history, schema.AssistantMessage(t.Text, nil))
		}
	}
	return history
}
