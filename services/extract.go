package services

import (
	"encoding/base64"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"google.golang.org/api/gmail/v1"
)

// ExtractBody はメッセージペイロードのツリーから最適なテキスト本文を取り出します。
// text/plainのリーフを深さ優先で探索し、見つからない場合は最初のtext/htmlを
// タグ除去してフォールバックとして使用します。どちらも存在しない場合は空文字列を
// 返します（nilは返しません）。
func ExtractBody(payload *gmail.MessagePart) string {
	if payload == nil {
		return ""
	}

	if plain := findPart(payload, "text/plain"); plain != "" {
		return strings.TrimSpace(plain)
	}

	if htmlBody := findPart(payload, "text/html"); htmlBody != "" {
		return strings.TrimSpace(htmlToText(htmlBody))
	}

	return ""
}

// findPart は指定MIMEタイプの最初のリーフ本文を深さ優先で探します。
// コンテナパートは兄弟より先に子を辿ります。添付ファイルは対象外です。
func findPart(part *gmail.MessagePart, mimeType string) string {
	if part == nil {
		return ""
	}

	if part.Filename != "" {
		return ""
	}

	if part.MimeType == mimeType && part.Body != nil && part.Body.Data != "" {
		return decodeBody(part.Body.Data)
	}

	for _, child := range part.Parts {
		if found := findPart(child, mimeType); found != "" {
			return found
		}
	}

	return ""
}

// decodeBody はbase64url形式の本文をデコードします。
// 不正なバイト列は置換文字に差し替え、エラーは伝播させません。
func decodeBody(data string) string {
	raw, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		raw, err = base64.RawURLEncoding.DecodeString(data)
		if err != nil {
			return ""
		}
	}
	return strings.ToValidUTF8(string(raw), "�")
}

// htmlToText はHTML本文からタグを除去してテキスト化します。
// ブロック要素の境界では改行を維持します。
var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"ul": true, "ol": true, "table": true, "blockquote": true,
}

func htmlToText(src string) string {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return src
	}

	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" || n.Data == "head" {
				return
			}
			if blockTags[n.Data] {
				sb.WriteString("\n")
			}
		case html.TextNode:
			sb.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	// 連続する空行を1つにまとめる
	lines := strings.Split(sb.String(), "\n")
	var cleaned []string
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank && len(cleaned) > 0 {
				cleaned = append(cleaned, "")
			}
			blank = true
			continue
		}
		blank = false
		cleaned = append(cleaned, line)
	}
	return strings.Join(cleaned, "\n")
}

var (
	replyHeaderPattern = regexp.MustCompile(`(?i)On .*wrote:`)
	separatorPattern   = regexp.MustCompile(`(?i)---+ ?Original Message ?---+`)
)

// CleanEmailBody は引用・転送部分を切り落とし、送信者が実際に書いた部分のみを残します。
// 最初の引用マーカー行、または転送ヘッダーブロックらしき行（同一行にFrom:とTo:を含む）
// 以降をすべて破棄します。意図的に非可逆な処理です。
func CleanEmailBody(body string) string {
	if m := replyHeaderPattern.FindStringIndex(body); m != nil {
		body = body[:m[0]]
	}
	if m := separatorPattern.FindStringIndex(body); m != nil {
		body = body[:m[0]]
	}

	lines := strings.Split(body, "\n")
	cut := len(lines)
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, ">") {
			cut = i
			break
		}
		if strings.Contains(line, "From:") && strings.Contains(line, "To:") {
			cut = i
			break
		}
	}

	return strings.TrimRight(strings.Join(lines[:cut], "\n"), " \t\r\n")
}
