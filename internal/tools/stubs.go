package tools

import "fmt"

// RegisterStubLeaves registers the tool families spec.md explicitly
// scopes out of this engine (headless browser, document parsing,
// embeddings/RAG, TTS/image/video generation): the engine only needs
// their {name, description, input_schema, risky, handler} contract, not
// a working implementation, so each handler here returns a clear
// "not implemented" error rather than silently no-op-ing — a step that
// calls one fails loudly instead of reporting false success.
func RegisterStubLeaves(r *Registry) error {
	leaves := []struct {
		name  string
		desc  string
		risky bool
	}{
		{"browser.open", "Navigate a headless browser to a URL.", false},
		{"browser.extract", "Extract text/structured content from the current page.", false},
		{"browser.screenshot", "Capture a screenshot of the current page.", false},
		{"browser.click", "Click an element on the current page.", true},
		{"web.fetch", "Fetch a URL over HTTP(S).", false},
		{"docs.parse", "Parse a document (PDF/DOCX/etc.) into text.", false},
		{"kb.ingest", "Ingest documents into the embeddings knowledge base.", true},
		{"kb.query", "Query the embeddings knowledge base.", false},
		{"media.image_generate", "Generate an image from a text prompt.", true},
		{"media.image_edit", "Edit an existing image.", true},
		{"media.audio_transcribe", "Transcribe audio to text.", false},
		{"media.audio_speech", "Synthesize speech audio from text.", true},
		{"media.video_generate", "Generate a video from a text prompt.", true},
	}
	for _, leaf := range leaves {
		spec := Spec{
			Name:        leaf.name,
			Description: leaf.desc,
			InputSchema: schemaObj(map[string]any{}, nil),
			Risky:       leaf.risky,
			Handler:     notImplementedHandler(leaf.name),
		}
		if err := r.Register(spec); err != nil {
			return err
		}
	}
	return nil
}

func notImplementedHandler(name string) Handler {
	return func(ctx *Context, args map[string]any) (map[string]any, error) {
		return nil, fmt.Errorf("tools: %s has no local implementation in this deployment", name)
	}
}
