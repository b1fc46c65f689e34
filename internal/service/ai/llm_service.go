package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/relayvox/relayvox/internal/config"
	"github.com/relayvox/relayvox/internal/model/call"
	"github.com/relayvox/relayvox/internal/voice"
)

// ErrStreamingDisabled reports a streaming request while ARK_STREAM is off.
var ErrStreamingDisabled = errors.New("streaming disabled in configuration")

// promptWindow bounds how many transcript turns go into one request,
// independent of the session history cap.
const promptWindow = 10

// Service drives the completion backend for voice replies.
type Service struct {
	chatModel  model.ChatModel
	cfg        config.AIConfig
	chain      compose.Runnable[map[string]any, *schema.Message]
	flushWords int
}

// NewService builds the chat model and compiles the completion chain.
// flushWords controls how many words accumulate before a speakable chunk is
// released on the streaming path.
func NewService(ctx context.Context, cfg config.AIConfig, flushWords int) (*Service, error) {
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

	return &Service{
		chatModel:  chatModel,
		cfg:        cfg,
		chain:      runnable,
		flushWords: flushWords,
	}, nil
}

// Streaming reports whether streamed replies are enabled.
func (s *Service) Streaming() bool {
	return s.cfg.StreamResponse
}

// Respond runs one non-streaming completion and returns the full reply text.
func (s *Service) Respond(ctx context.Context, callID string, history []call.ConversationEntry, userText string) (string, error) {
	input := s.buildChainInput(history, userText)

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run completion chain: %w", err)
	}

	log.Printf("[ai] generated response call=%s length=%d", callID, len(response.Content))
	return response.Content, nil
}

// RespondStream runs a streaming completion, feeding speakable chunks to emit
// as they become ready. The accumulated raw text is returned in all cases so
// an interrupted turn can still be recorded. Cancellation of ctx stops the
// stream without a backend error: no emit call happens after it is observed
// and the returned error is ctx's.
func (s *Service) RespondStream(ctx context.Context, callID string, history []call.ConversationEntry, userText string, emit func(chunk string) error) (string, error) {
	if !s.Streaming() {
		return "", ErrStreamingDisabled
	}

	input := s.buildChainInput(history, userText)

	stream, err := s.chain.Stream(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to start completion stream: %w", err)
	}
	defer stream.Close()

	buf := newChunkBuffer(s.flushWords)
	var full strings.Builder
	chunks := 0

	send := func(segment string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		cleaned := voice.CleanForVoice(segment)
		if cleaned == "" {
			return nil
		}
		chunks++
		return emit(cleaned)
	}

	for {
		if err := ctx.Err(); err != nil {
			return full.String(), err
		}

		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return full.String(), ctx.Err()
			}
			return full.String(), fmt.Errorf("failed to receive completion chunk: %w", err)
		}

		full.WriteString(msg.Content)
		for _, segment := range buf.Add(msg.Content) {
			if err := send(segment); err != nil {
				return full.String(), err
			}
		}
	}

	if tail := buf.Flush(); tail != "" {
		if err := send(tail); err != nil {
			return full.String(), err
		}
	}

	log.Printf("[ai] streamed response call=%s chunks=%d length=%d", callID, chunks, full.Len())
	return full.String(), nil
}

func (s *Service) buildChainInput(history []call.ConversationEntry, userText string) map[string]any {
	return map[string]any{
		"system":  systemInstruction(s.cfg.SystemPrompt),
		"history": buildHistoryMessages(history),
		"query":   userText,
	}
}

// buildHistoryMessages converts the most recent transcript turns into model
// messages. System-role entries never travel to the backend, and at most
// promptWindow turns are kept, oldest dropped first.
func buildHistoryMessages(entries []call.ConversationEntry) []*schema.Message {
	filtered := make([]call.ConversationEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.Role == call.RoleSystem {
			continue
		}
		filtered = append(filtered, entry)
	}
	if len(filtered) == 0 {
		return nil
	}

	startIdx := 0
	if len(filtered) > promptWindow {
		startIdx = len(filtered) - promptWindow
	}

	history := make([]*schema.Message, 0, len(filtered)-startIdx)
	for _, entry := range filtered[startIdx:] {
		switch entry.Role {
		case call.RoleUser:
			history = append(history, schema.UserMessage(entry.Content))
		case call.RoleAssistant:
			history = append(history, schema.AssistantMessage(entry.Content, nil))
		}
	}

	return history
}
