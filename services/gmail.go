package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"mailpilot/logger"
	"mailpilot/models"

	"github.com/jhillyerd/enmime"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const gmailUser = "me"

// Mailbox はメールボックスへの狭いインターフェースを定義します。
// 監視ループと履歴ビルダーはこのインターフェースのみに依存します。
type Mailbox interface {
	ListUnread(ctx context.Context, since time.Time) ([]models.MessageRef, error)
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	GetThread(ctx context.Context, threadID string) ([]models.Message, error)
	CreateDraft(ctx context.Context, draft *models.DraftReply) (string, error)
}

// GmailService はGmail APIを使用したMailboxの実装です
type GmailService struct {
	srv        *gmail.Service
	maxResults int64
	replyFrom  string
}

// NewGmailService はGmailサービスを初期化します。
// credentials.jsonとtoken.jsonを読み込み、トークンが無い場合は
// コンソールで認可コードの入力を求めます。
func NewGmailService(ctx context.Context, credentialsFile, tokenFile, replyFrom string, maxResults int64) (*GmailService, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}

	oauthConfig, err := google.ConfigFromJSON(b, gmail.GmailModifyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}

	httpClient, err := getOAuthClient(ctx, oauthConfig, tokenFile)
	if err != nil {
		return nil, err
	}

	srv, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}

	logger.Logger.Info("Gmailサービスを初期化しました",
		zap.String("credentials_file", credentialsFile),
		zap.Int64("max_results", maxResults),
	)

	return &GmailService{srv: srv, maxResults: maxResults, replyFrom: replyFrom}, nil
}

func getOAuthClient(ctx context.Context, config *oauth2.Config, tokenFile string) (*http.Client, error) {
	tok, err := tokenFromFile(tokenFile)
	if err != nil {
		tok, err = getTokenFromConsole(ctx, config)
		if err != nil {
			return nil, err
		}
		if err := saveToken(tokenFile, tok); err != nil {
			logger.Logger.Warn("トークンの保存に失敗しました", zap.Error(err))
		}
	}
	return config.Client(ctx, tok), nil
}

func getTokenFromConsole(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Printf("Go to the following link in your browser then type the "+
		"authorization code: \n%v\n", authURL)

	var authCode string
	if _, err := fmt.Scan(&authCode); err != nil {
		return nil, fmt.Errorf("unable to read authorization code: %w", err)
	}

	tok, err := config.Exchange(ctx, authCode)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve token from web: %w", err)
	}
	return tok, nil
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

func saveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

// ListUnread は受信トレイの未読メッセージ参照を取得します。
// sinceが指定されている場合は日付単位のafter:条件で絞り込みます。
func (s *GmailService) ListUnread(ctx context.Context, since time.Time) ([]models.MessageRef, error) {
	query := "is:unread in:inbox"
	if !since.IsZero() {
		query += " after:" + since.Format("2006/01/02")
	}

	res, err := s.srv.Users.Messages.List(gmailUser).
		Q(query).
		MaxResults(s.maxResults).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	refs := make([]models.MessageRef, 0, len(res.Messages))
	for _, m := range res.Messages {
		refs = append(refs, models.MessageRef{ID: m.Id, ThreadID: m.ThreadId})
	}
	return refs, nil
}

// ListThreads は指定ラベルのスレッドIDを列挙します。
// ページネーションを辿り、最大maxThreads件まで取得します。
func (s *GmailService) ListThreads(ctx context.Context, label string, maxThreads int64) ([]string, error) {
	ids := make([]string, 0, maxThreads)
	pageToken := ""

	for {
		call := s.srv.Users.Threads.List(gmailUser).
			LabelIds(label).
			MaxResults(s.maxResults).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		res, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list threads: %w", err)
		}

		for _, t := range res.Threads {
			ids = append(ids, t.Id)
			if int64(len(ids)) >= maxThreads {
				return ids, nil
			}
		}

		if res.NextPageToken == "" {
			return ids, nil
		}
		pageToken = res.NextPageToken
	}
}

// GetMessage はメッセージの全体を取得してModelに変換します
func (s *GmailService) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	msg, err := s.srv.Users.Messages.Get(gmailUser, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}
	return convertMessage(msg), nil
}

// GetThread はスレッド内の全メッセージを送信時刻の昇順で取得します
func (s *GmailService) GetThread(ctx context.Context, threadID string) ([]models.Message, error) {
	thread, err := s.srv.Users.Threads.Get(gmailUser, threadID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get thread %s: %w", threadID, err)
	}

	messages := make([]models.Message, 0, len(thread.Messages))
	for _, m := range thread.Messages {
		messages = append(messages, *convertMessage(m))
	}

	sort.Slice(messages, func(i, j int) bool {
		return messages[i].InternalDate < messages[j].InternalDate
	})

	return messages, nil
}

// CreateDraft は返信をMIMEメッセージとして構築し、スレッドの下書きとして保存します
func (s *GmailService) CreateDraft(ctx context.Context, draft *models.DraftReply) (string, error) {
	raw, err := buildDraftMIME(draft, s.replyFrom)
	if err != nil {
		return "", fmt.Errorf("failed to build draft message: %w", err)
	}

	created, err := s.srv.Users.Drafts.Create(gmailUser, &gmail.Draft{
		Message: &gmail.Message{
			ThreadId: draft.ThreadID,
			Raw:      base64.URLEncoding.EncodeToString(raw),
		},
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create draft: %w", err)
	}

	logger.Logger.Info("下書きを作成しました",
		zap.String("draft_id", created.Id),
		zap.String("thread_id", draft.ThreadID),
		zap.String("recipient", draft.Recipient),
	)

	return created.Id, nil
}

func convertMessage(msg *gmail.Message) *models.Message {
	m := &models.Message{
		ID:           msg.Id,
		ThreadID:     msg.ThreadId,
		InternalDate: msg.InternalDate,
	}

	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch h.Name {
			case "Subject":
				m.Subject = h.Value
			case "From":
				m.Sender = h.Value
			case "Date":
				m.Date = h.Value
			case "Message-ID", "Message-Id":
				m.MessageIDHeader = h.Value
			}
		}
		m.RawBody = ExtractBody(msg.Payload)
		m.CleanedBody = CleanEmailBody(m.RawBody)
	}

	return m
}

// buildDraftMIME は下書きのMIMEメッセージを構築します。
// テキストとHTMLの両方を持ち、署名画像が設定されていればインラインで添付します。
func buildDraftMIME(draft *models.DraftReply, from string) ([]byte, error) {
	builder := enmime.Builder().
		From("", from).
		To("", draft.Recipient).
		Subject(draft.Subject).
		Text([]byte(draft.Body)).
		HTML([]byte(bodyToHTML(draft.Body, draft.SignatureImage != "")))

	if draft.SignatureImage != "" {
		img, err := os.ReadFile(draft.SignatureImage)
		if err != nil {
			// 署名画像が読めない場合は添付なしで続行する
			logger.Logger.Warn("署名画像の読み込みに失敗しました",
				zap.String("path", draft.SignatureImage),
				zap.Error(err),
			)
		} else {
			builder = builder.AddInline(img, signatureContentType(draft.SignatureImage),
				filepath.Base(draft.SignatureImage), "signature")
		}
	}

	part, err := builder.Build()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := part.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func bodyToHTML(body string, withSignature bool) string {
	var sb strings.Builder
	sb.WriteString("<div>")
	for _, line := range strings.Split(body, "\n") {
		sb.WriteString(htmlEscape(line))
		sb.WriteString("<br>")
	}
	if withSignature {
		sb.WriteString(`<img src="cid:signature" alt="">`)
	}
	sb.WriteString("</div>")
	return sb.String()
}

func htmlEscape(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
	)
	return replacer.Replace(s)
}

func signatureContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	default:
		return "image/png"
	}
}
