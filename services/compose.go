package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"mailpilot/logger"
	"mailpilot/models"

	"go.uber.org/zap"
)

// Composer は会話履歴・応答例・トーンプロファイル・ポリシーから
// 生成プロンプトを組み立て、返信本文を生成します。
type Composer struct {
	gen Generator
}

func NewComposer(gen Generator) *Composer {
	return &Composer{gen: gen}
}

const composerSystemPrompt = "You are the dedicated Email Specialist for Fast Book Ads (FBA-Agent) " +
	"and you reply from either fastbookads@gmail.com or info@fastbookads.com."

// Compose は返信本文を生成します。
// 生成に失敗した場合は致命的エラーとせず、固定のフォールバック文面に劣化します。
func (c *Composer) Compose(ctx context.Context, msg *models.Message, history string, exemplar *models.RetrievalExample, toneProfile string, firstReply bool) string {
	lang := DetectLanguage(msg.CleanedBody)
	prompt := buildPrompt(msg, history, exemplar, toneProfile, lang, firstReply)

	reply, err := c.gen.Complete(ctx, composerSystemPrompt, prompt, models.ReplyMaxTokens, models.ReplyTemperature)
	if err != nil {
		// 1メッセージの生成失敗で監視ループを止めない
		logger.Logger.Error("返信の生成に失敗したためフォールバック文面を使用します",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		return models.FallbackReply
	}

	return reply
}

var wordPattern = regexp.MustCompile(`[\p{L}']+`)

// 言語判定用のストップワード。英語として十分な証拠がない場合はイタリア語に倒します。
var (
	englishStopwords = map[string]bool{
		"the": true, "and": true, "is": true, "are": true, "i": true, "you": true,
		"to": true, "of": true, "in": true, "that": true, "for": true, "it": true,
		"my": true, "your": true, "have": true, "want": true, "hello": true,
		"hi": true, "thanks": true, "thank": true, "with": true, "we": true,
		"would": true, "can": true, "please": true, "get": true, "service": true,
		"name": true, "this": true, "our": true, "me": true, "about": true,
	}
	italianStopwords = map[string]bool{
		"il": true, "la": true, "lo": true, "di": true, "che": true, "e": true,
		"un": true, "una": true, "per": true, "non": true, "sono": true,
		"mi": true, "ti": true, "si": true, "con": true, "del": true,
		"della": true, "buongiorno": true, "salve": true, "grazie": true,
		"vorrei": true, "ho": true, "da": true, "le": true, "io": true,
		"nome": true, "servizio": true, "questo": true, "come": true,
		"gentile": true, "cordiali": true, "saluti": true, "informazioni": true,
	}
)

// DetectLanguage は受信メッセージの主要言語を判定します。
// サポートする結果は"en"と"it"の2種類のみで、判定が不確かな場合は
// 常にイタリア語にフォールバックします。
func DetectLanguage(text string) string {
	english, italian := 0, 0
	for _, word := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if englishStopwords[word] {
			english++
		}
		if italianStopwords[word] {
			italian++
		}
	}

	if english > italian {
		return "en"
	}
	return "it"
}

func languageInstruction(lang string) string {
	if lang == "en" {
		return "Reply in English."
	}
	return "Rispondi in italiano."
}

func greetingRule(firstReply bool) string {
	if firstReply {
		return `- This is the FIRST reply in the thread: you may open with a name-based salutation ("Hi <name>" / "Hello <name>" / "Ciao <name>") if the sender's name is clear from the conversation history; otherwise use a generic greeting without a name.`
	}
	return `- This thread has ALREADY been replied to: do NOT open with "Hi/Hello/Ciao + name". Use a different acknowledgment idiom instead (e.g. "Thanks for the quick reply," / "Grazie per il riscontro,") and never repeat the first-turn salutation form.`
}

// buildPrompt は応答例・会話履歴・トーン・ポリシーを1つの生成リクエストにまとめます
func buildPrompt(msg *models.Message, history string, exemplar *models.RetrievalExample, toneProfile, lang string, firstReply bool) string {
	exemplarReply := ""
	if exemplar != nil {
		exemplarReply = exemplar.ReplyMessage
	}

	return fmt.Sprintf(`You are an email response automation assistant. Your task is to generate email responses that closely match the tone, style, and approach of a provided reference reply.

Instructions:
1. Analyze the reference reply for tone, writing style, language patterns, level of formality and emotional undertone.
2. Generate a response that mirrors the same tone and style, uses similar sentence structure, maintains a consistent formality level and feels natural and authentic in the established voice.
3. Ensure the response is contextually relevant to the original email, maintains the same level of detail as the reference and follows the same communication approach.

CRITICAL RULES - FOLLOW EXACTLY:

1. LANGUAGE CONSISTENCY
- Response language: %s
- NEVER mix languages in the same email
- If the language is Italian: ALL text must be Italian (greeting, body, closing)
- If the language is English: ALL text must be English (greeting, body, closing)

2. GREETING
%s

3. NAME HANDLING
- Extract the sender's name from the conversation history only
- If no clear name is found, use a generic greeting without a name
- NEVER use placeholder names like [Name] or {Name}
- NEVER use names from the reference reply

4. GRATITUDE
- Avoid stock gratitude phrases ("Thank you for reaching out", "Grazie per averci contattato") in the body; they are acceptable only as part of the closing sentence.

FORMATTING:
- Plain text with markdown only, no inline styling
- Natural paragraph breaks, keep lines reasonably short
- Keep sentences conversational length
- No bullet points unless listing specific steps
- Never use names or sign at the end of the message
- No signature block

%s

Reference reply: %s

Conversation history:
%s

Original email to respond to: %s

Generate a response that someone reading both messages would recognize as coming from the same person with the same communication style.`,
		languageInstruction(lang),
		greetingRule(firstReply),
		toneSection(toneProfile),
		exemplarReply,
		history,
		msg.CleanedBody,
	)
}

func toneSection(toneProfile string) string {
	if toneProfile == "" {
		return ""
	}
	return "Style descriptor of the sender identity (apply it consistently): " + toneProfile
}
