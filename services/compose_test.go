package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"mailpilot/models"

	"github.com/nalgeon/be"
)

// fakeGenerator は固定の応答またはエラーを返すGenerator実装です
type fakeGenerator struct {
	reply string
	err   error

	lastSystem    string
	lastPrompt    string
	lastMaxTokens int
	lastTemp      float64
	calls         int
}

func (g *fakeGenerator) Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error) {
	g.calls++
	g.lastSystem = systemPrompt
	g.lastPrompt = userPrompt
	g.lastMaxTokens = maxTokens
	g.lastTemp = temperature
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

func TestDetectLanguageEnglish(t *testing.T) {
	be.Equal(t, DetectLanguage("Hello, my name is Anthon, I want to get your service"), "en")
	be.Equal(t, DetectLanguage("Thank you for the quick reply, can we schedule a call?"), "en")
}

func TestDetectLanguageItalian(t *testing.T) {
	be.Equal(t, DetectLanguage("Buongiorno, vorrei informazioni sul servizio"), "it")
	be.Equal(t, DetectLanguage("Grazie per la risposta, cordiali saluti"), "it")
}

func TestDetectLanguageFallsBackToItalian(t *testing.T) {
	// 判定材料が無い場合は常にイタリア語に倒れること
	be.Equal(t, DetectLanguage(""), "it")
	be.Equal(t, DetectLanguage("ok"), "it")
	be.Equal(t, DetectLanguage("12345 !!!"), "it")
}

func TestComposeUsesGeneratedReply(t *testing.T) {
	gen := &fakeGenerator{reply: "Hi Anna, happy to help."}
	c := NewComposer(gen)

	msg := &models.Message{
		ID:          "m1",
		CleanedBody: "Hello, I want to know more about your service",
	}

	reply := c.Compose(context.Background(), msg, "", nil, "", true)
	be.Equal(t, reply, "Hi Anna, happy to help.")
	be.Equal(t, gen.lastMaxTokens, models.ReplyMaxTokens)
	be.Equal(t, gen.lastTemp, models.ReplyTemperature)
}

func TestComposeFallsBackOnGeneratorFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("timeout")}
	c := NewComposer(gen)

	msg := &models.Message{ID: "m1", CleanedBody: "Buongiorno"}

	// 生成失敗は致命的エラーにならず固定文面に劣化すること
	reply := c.Compose(context.Background(), msg, "", nil, "", true)
	be.Equal(t, reply, models.FallbackReply)
}

func TestComposePromptFirstReplyGreeting(t *testing.T) {
	gen := &fakeGenerator{reply: "ok"}
	c := NewComposer(gen)

	msg := &models.Message{CleanedBody: "Hello, this is my first message to you"}
	c.Compose(context.Background(), msg, "history here", nil, "", true)

	be.True(t, strings.Contains(gen.lastPrompt, "FIRST reply"))
	be.True(t, strings.Contains(gen.lastPrompt, "Reply in English."))
	be.True(t, strings.Contains(gen.lastPrompt, "history here"))
}

func TestComposePromptSubsequentReplyGreeting(t *testing.T) {
	gen := &fakeGenerator{reply: "ok"}
	c := NewComposer(gen)

	msg := &models.Message{CleanedBody: "Grazie, vorrei procedere"}
	c.Compose(context.Background(), msg, "", nil, "", false)

	be.True(t, strings.Contains(gen.lastPrompt, "ALREADY been replied"))
	be.True(t, strings.Contains(gen.lastPrompt, "Rispondi in italiano."))
	be.True(t, !strings.Contains(gen.lastPrompt, "FIRST reply"))
}

func TestComposePromptIncludesExemplarAndTone(t *testing.T) {
	gen := &fakeGenerator{reply: "ok"}
	c := NewComposer(gen)

	exemplar := &models.RetrievalExample{
		OriginalMessage: "old question",
		ReplyMessage:    "warm exemplar reply",
	}

	msg := &models.Message{CleanedBody: "Hello, I want the service"}
	c.Compose(context.Background(), msg, "", exemplar, "informal, concise", true)

	be.True(t, strings.Contains(gen.lastPrompt, "warm exemplar reply"))
	be.True(t, strings.Contains(gen.lastPrompt, "informal, concise"))
}

func TestComposePromptForbidsSignature(t *testing.T) {
	gen := &fakeGenerator{reply: "ok"}
	c := NewComposer(gen)

	msg := &models.Message{CleanedBody: "Hello there, I need your help with this"}
	c.Compose(context.Background(), msg, "", nil, "", true)

	be.True(t, strings.Contains(gen.lastPrompt, "No signature block"))
	be.True(t, strings.Contains(gen.lastPrompt, "NEVER mix languages"))
}
