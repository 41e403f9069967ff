package openai

import (
	"context"
	"testing"

	goopenai "github.com/sashabaranov/go-openai"
)

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty api key")
	}
	p, err := New("sk-test")
	if err != nil {
		t.Fatal(err)
	}
	if p.model != goopenai.TTSModel1 || p.voice != goopenai.VoiceAlloy {
		t.Errorf("defaults = %q/%q, want tts-1/alloy", p.model, p.voice)
	}
}

func TestBuildRequest(t *testing.T) {
	t.Parallel()

	p, _ := New("sk-test", WithModel("tts-1-hd"), WithVoice("nova"), WithSpeed(1.25))

	req := p.buildRequest("Olá!", "")
	if req.Model != "tts-1-hd" || req.Voice != "nova" || req.Speed != 1.25 {
		t.Errorf("request = %+v", req)
	}
	if req.ResponseFormat != goopenai.SpeechResponseFormatMp3 {
		t.Errorf("format = %q, want mp3", req.ResponseFormat)
	}

	req = p.buildRequest("Olá!", "shimmer")
	if req.Voice != "shimmer" {
		t.Errorf("voice override = %q, want shimmer", req.Voice)
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	t.Parallel()
	p, _ := New("sk-test")
	if _, err := p.Synthesize(context.Background(), "", ""); err == nil {
		t.Fatal("expected error for empty text")
	}
}
