package uistream

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Writer turns a flat sequence of text, reasoning and source deltas into a
// well-formed UI message stream. Text and reasoning blocks are opened on
// their first delta and closed when the other kind starts or the stream ends.
// Sources are sent once per URL.
type Writer struct {
	sink Sink

	messageID   string
	textID      string
	reasoningID string
	blocks      int
	sources     map[string]bool
	started     bool
	finished    bool
}

func NewWriter(sink Sink) *Writer {
	return &Writer{
		sink:    sink,
		sources: make(map[string]bool),
	}
}

// MessageID returns the id announced in the start chunk.
func (w *Writer) MessageID() string {
	return w.messageID
}

// Start announces a new assistant message and its first step.
func (w *Writer) Start() error {
	if w.started {
		return nil
	}
	w.started = true
	w.messageID = "msg-" + uuid.NewString()

	if err := w.sink.WriteChunk(Chunk{Type: TypeStart, MessageID: w.messageID}); err != nil {
		return err
	}
	return w.sink.WriteChunk(Chunk{Type: TypeStartStep})
}

func (w *Writer) Text(delta string) error {
	if delta == "" {
		return nil
	}
	if err := w.closeReasoning(); err != nil {
		return err
	}
	if w.textID == "" {
		w.textID = w.nextID("txt")
		if err := w.sink.WriteChunk(Chunk{Type: TypeTextStart, ID: w.textID}); err != nil {
			return err
		}
	}
	return w.sink.WriteChunk(Chunk{Type: TypeTextDelta, ID: w.textID, Delta: delta})
}

func (w *Writer) Reasoning(delta string) error {
	if delta == "" {
		return nil
	}
	if err := w.closeText(); err != nil {
		return err
	}
	if w.reasoningID == "" {
		w.reasoningID = w.nextID("rsn")
		if err := w.sink.WriteChunk(Chunk{Type: TypeReasoningStart, ID: w.reasoningID}); err != nil {
			return err
		}
	}
	return w.sink.WriteChunk(Chunk{Type: TypeReasoningDelta, ID: w.reasoningID, Delta: delta})
}

func (w *Writer) Source(url, title string) error {
	if url == "" || w.sources[url] {
		return nil
	}
	w.sources[url] = true
	return w.sink.WriteChunk(Chunk{
		Type:     TypeSourceURL,
		SourceID: w.nextID("src"),
		URL:      url,
		Title:    title,
	})
}

// Finish closes open blocks and the step, then sends the finish chunk.
func (w *Writer) Finish(meta *Metadata) error {
	if w.finished {
		return nil
	}
	w.finished = true

	if err := w.closeText(); err != nil {
		return err
	}
	if err := w.closeReasoning(); err != nil {
		return err
	}
	if err := w.sink.WriteChunk(Chunk{Type: TypeFinishStep}); err != nil {
		return err
	}
	return w.sink.WriteChunk(Chunk{Type: TypeFinish, MessageMetadata: meta})
}

// Error reports a failure to the client. No finish chunk follows.
func (w *Writer) Error(text string) error {
	w.finished = true
	return w.sink.WriteChunk(Chunk{Type: TypeError, ErrorText: text})
}

// Close ends the stream.
func (w *Writer) Close() error {
	return w.sink.Close()
}

func (w *Writer) closeText() error {
	if w.textID == "" {
		return nil
	}
	id := w.textID
	w.textID = ""
	return w.sink.WriteChunk(Chunk{Type: TypeTextEnd, ID: id})
}

func (w *Writer) closeReasoning() error {
	if w.reasoningID == "" {
		return nil
	}
	id := w.reasoningID
	w.reasoningID = ""
	return w.sink.WriteChunk(Chunk{Type: TypeReasoningEnd, ID: id})
}

func (w *Writer) nextID(prefix string) string {
	id := fmt.Sprintf("%s-%d", prefix, w.blocks)
	w.blocks++
	return id
}

func marshalChunk(c Chunk) ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("uistream: failed to marshal chunk: %w", err)
	}
	return data, nil
}
