package services

import (
	"encoding/base64"
	"testing"

	"github.com/nalgeon/be"
	"google.golang.org/api/gmail/v1"
)

func b64(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func TestExtractBodyPrefersPlainText(t *testing.T) {
	payload := &gmail.MessagePart{
		MimeType: "multipart/alternative",
		Parts: []*gmail.MessagePart{
			{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: b64("<p>html version</p>")}},
			{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64("plain version")}},
		},
	}
	be.Equal(t, ExtractBody(payload), "plain version")
}

func TestExtractBodyNestedMultipart(t *testing.T) {
	payload := &gmail.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []*gmail.MessagePart{
			{
				MimeType: "multipart/alternative",
				Parts: []*gmail.MessagePart{
					{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64("nested plain")}},
				},
			},
			{
				MimeType: "text/plain",
				Filename: "notes.txt",
				Body:     &gmail.MessagePartBody{Data: b64("attachment text")},
			},
		},
	}
	be.Equal(t, ExtractBody(payload), "nested plain")
}

func TestExtractBodyHTMLFallback(t *testing.T) {
	payload := &gmail.MessagePart{
		MimeType: "text/html",
		Body:     &gmail.MessagePartBody{Data: b64("<div><p>First paragraph</p><p>Second paragraph</p></div>")},
	}
	be.Equal(t, ExtractBody(payload), "First paragraph\nSecond paragraph")
}

func TestExtractBodySkipsScriptAndStyle(t *testing.T) {
	payload := &gmail.MessagePart{
		MimeType: "text/html",
		Body:     &gmail.MessagePartBody{Data: b64("<html><head><style>p{color:red}</style></head><body><p>visible</p><script>alert(1)</script></body></html>")},
	}
	be.Equal(t, ExtractBody(payload), "visible")
}

func TestExtractBodyEmptyPayload(t *testing.T) {
	be.Equal(t, ExtractBody(nil), "")
	be.Equal(t, ExtractBody(&gmail.MessagePart{MimeType: "multipart/mixed"}), "")
}

func TestDecodeBodyRawURLEncoding(t *testing.T) {
	// パディングなしのbase64urlもデコードできること
	raw := base64.RawURLEncoding.EncodeToString([]byte("no padding"))
	be.Equal(t, decodeBody(raw), "no padding")
}

func TestCleanEmailBodyCutsQuotedReply(t *testing.T) {
	body := "Thanks, that works for me.\n\nOn Mon, Jan 6, 2025 at 9:00 AM John <john@example.com> wrote:\n> previous message"
	be.Equal(t, CleanEmailBody(body), "Thanks, that works for me.")
}

func TestCleanEmailBodyCutsQuoteMarkerLine(t *testing.T) {
	body := "New content here.\n> quoted line\n> more quoted"
	be.Equal(t, CleanEmailBody(body), "New content here.")
}

func TestCleanEmailBodyCutsForwardHeader(t *testing.T) {
	body := "Please see below.\nFrom: a@example.com To: b@example.com\nforwarded content"
	be.Equal(t, CleanEmailBody(body), "Please see below.")
}

func TestCleanEmailBodyCutsOriginalMessageSeparator(t *testing.T) {
	body := "My answer.\n----- Original Message -----\nold stuff"
	be.Equal(t, CleanEmailBody(body), "My answer.")
}

func TestCleanEmailBodyKeepsPlainContent(t *testing.T) {
	body := "Hello,\n\nI would like more information.\n"
	be.Equal(t, CleanEmailBody(body), "Hello,\n\nI would like more information.")
}
