package llmproxy

import (
	"context"
	"fmt"
	"io"

	llmv1 "github.com/codeready-toolchain/loom/proto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// GRPCClient implements Client by calling a provider-adapter sidecar over
// gRPC, using Loom's provider-agnostic Request/Response/Event vocabulary.
type GRPCClient struct {
	conn   *grpc.ClientConn
	client llmv1.LLMServiceClient
}

// NewGRPCClient dials addr with insecure (plaintext) transport — the
// sidecar is expected to run alongside the server or on localhost. Upgrade
// to TLS credentials before crossing a network boundary.
func NewGRPCClient(addr string) (*GRPCClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial LLM sidecar at %s: %w", addr, err)
	}
	return &GRPCClient{conn: conn, client: llmv1.NewLLMServiceClient(conn)}, nil
}

// CompleteStreaming opens a Generate stream and translates each response
// into an Event, terminating the channel after exactly one Completed or
// Error event.
func (c *GRPCClient) CompleteStreaming(ctx context.Context, req Request) (<-chan Event, error) {
	stream, err := c.client.Generate(ctx, toProtoRequest(req))
	if err != nil {
		return nil, fmt.Errorf("open generate stream: %w", err)
	}

	ch := make(chan Event, 32)
	go func() {
		defer close(ch)
		for {
			resp, err := stream.Recv()
			if err == io.EOF {
				send(ctx, ch, Event{Kind: EventError, Err: fmt.Errorf("generate stream ended without a completed event")})
				return
			}
			if err != nil {
				send(ctx, ch, Event{Kind: EventError, Err: err})
				return
			}
			evt, terminal := fromProtoResponse(resp)
			send(ctx, ch, evt)
			if terminal {
				return
			}
		}
	}()
	return ch, nil
}

// Complete drains CompleteStreaming, accumulating deltas into a single
// buffered Response.
func (c *GRPCClient) Complete(ctx context.Context, req Request) (Response, error) {
	stream, err := c.CompleteStreaming(ctx, req)
	if err != nil {
		return Response{}, err
	}

	var text string
	var toolCalls []ToolCall
	for evt := range stream {
		switch evt.Kind {
		case EventTextDelta:
			text += evt.TextDelta
		case EventToolCallDelta:
			if evt.ToolCallDelta != nil {
				toolCalls = append(toolCalls, *evt.ToolCallDelta)
			}
		case EventCompleted:
			if evt.Completed != nil {
				return *evt.Completed, nil
			}
			return Response{Content: text, ToolCalls: toolCalls}, nil
		case EventError:
			return Response{}, evt.Err
		}
	}
	return Response{Content: text, ToolCalls: toolCalls}, nil
}

// Close releases the gRPC connection.
func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func send(ctx context.Context, ch chan<- Event, evt Event) {
	select {
	case ch <- evt:
	case <-ctx.Done():
	}
}

func toProtoRequest(req Request) *llmv1.GenerateRequest {
	out := &llmv1.GenerateRequest{
		Model:       req.Model,
		MaxTokens:   int32(req.MaxTokens),
		Temperature: req.Temperature,
		Messages:    toProtoMessages(req.Messages),
		Tools:       toProtoTools(req.Tools),
	}
	return out
}

func toProtoMessages(msgs []Message) []*llmv1.ConversationMessage {
	out := make([]*llmv1.ConversationMessage, len(msgs))
	for i, m := range msgs {
		pm := &llmv1.ConversationMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallId: m.ToolCallID,
			ToolName:   m.ToolName,
		}
		for _, tc := range m.ToolCalls {
			pm.ToolCalls = append(pm.ToolCalls, toProtoToolCall(tc))
		}
		out[i] = pm
	}
	return out
}

func toProtoTools(tools []Tool) []*llmv1.ToolDefinition {
	if len(tools) == 0 {
		return nil
	}
	out := make([]*llmv1.ToolDefinition, len(tools))
	for i, t := range tools {
		out[i] = &llmv1.ToolDefinition{
			Name:             t.Name,
			Description:      t.Description,
			ParametersSchema: t.ParametersSchema,
		}
	}
	return out
}

func toProtoToolCall(tc ToolCall) *llmv1.ToolCall {
	return &llmv1.ToolCall{Id: tc.ID, Name: tc.Name, Arguments: tc.Arguments}
}

func fromProtoToolCall(tc *llmv1.ToolCall) ToolCall {
	return ToolCall{ID: tc.Id, Name: tc.Name, Arguments: tc.Arguments}
}

// fromProtoResponse translates one GenerateResponse into an Event, and
// reports whether it terminates the stream (Completed or Error).
func fromProtoResponse(resp *llmv1.GenerateResponse) (Event, bool) {
	switch c := resp.Content.(type) {
	case *llmv1.GenerateResponse_TextDelta:
		return Event{Kind: EventTextDelta, TextDelta: c.TextDelta.Content}, false
	case *llmv1.GenerateResponse_ToolCallDelta:
		tc := fromProtoToolCall(c.ToolCallDelta)
		return Event{Kind: EventToolCallDelta, ToolCallDelta: &tc}, false
	case *llmv1.GenerateResponse_Completed:
		toolCalls := make([]ToolCall, len(c.Completed.ToolCalls))
		for i, tc := range c.Completed.ToolCalls {
			toolCalls[i] = fromProtoToolCall(tc)
		}
		resp := &Response{
			Content:   c.Completed.Content,
			ToolCalls: toolCalls,
		}
		if c.Completed.Usage != nil {
			resp.Usage = Usage{
				InputTokens:  int(c.Completed.Usage.InputTokens),
				OutputTokens: int(c.Completed.Usage.OutputTokens),
				TotalTokens:  int(c.Completed.Usage.TotalTokens),
			}
		}
		return Event{Kind: EventCompleted, Completed: resp}, true
	case *llmv1.GenerateResponse_Error:
		return Event{Kind: EventError, Err: fmt.Errorf("%s: %s", c.Error.Code, c.Error.Message)}, true
	default:
		return Event{Kind: EventError, Err: fmt.Errorf("unknown generate response content %T", resp.Content)}, true
	}
}
