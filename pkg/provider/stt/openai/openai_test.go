package openai

import (
	"context"
	"io"
	"testing"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/MrWong99/voxwidget/pkg/audio"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty api key")
	}
	p, err := New("sk-test", WithModel("gpt-4o-transcribe"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.model != "gpt-4o-transcribe" {
		t.Errorf("model = %q, want gpt-4o-transcribe", p.model)
	}
}

func TestBuildRequest(t *testing.T) {
	t.Parallel()

	blob := audio.Blob{Data: []byte("OggS..."), MIMEType: "audio/ogg"}
	req := buildRequest(goopenai.Whisper1, blob, "pt")

	if req.FilePath != "audio.ogg" {
		t.Errorf("file path = %q, want audio.ogg", req.FilePath)
	}
	if req.Format != goopenai.AudioResponseFormatVerboseJSON {
		t.Errorf("format = %q, want verbose_json", req.Format)
	}
	if req.Language != "pt" {
		t.Errorf("language = %q, want pt", req.Language)
	}
	data, _ := io.ReadAll(req.Reader)
	if string(data) != "OggS..." {
		t.Errorf("reader data = %q", data)
	}
}

func TestTranscribe_EmptyBlob(t *testing.T) {
	t.Parallel()

	p, _ := New("sk-test")
	if _, err := p.Transcribe(context.Background(), audio.Blob{}, ""); err == nil {
		t.Fatal("expected error for empty recording")
	}
}
