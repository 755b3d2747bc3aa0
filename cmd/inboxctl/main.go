package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/inboxmirror/inboxd/internal/config"
)

func main() {
	addrFlag := flag.String("addr", "http://"+config.Default().ListenAddr, "inboxd API address")
	jsonFlag := flag.Bool("json", false, "output raw JSON")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c := &client{
		base: *addrFlag,
		http: &http.Client{Timeout: 30 * time.Second},
	}

	switch args[0] {
	case "accounts":
		cmdAccounts(c, *jsonFlag)
	case "status":
		requireArg(args, 2, "inboxctl status <account-id>")
		cmdStatus(c, args[1], *jsonFlag)
	case "backfill":
		requireArg(args, 2, "inboxctl backfill <account-id>")
		cmdBackfill(c, args[1])
	case "chats":
		requireArg(args, 2, "inboxctl chats <account-id>")
		cmdChats(c, args[1], *jsonFlag)
	case "messages":
		requireArg(args, 2, "inboxctl messages <chat-id>")
		cmdMessages(c, args[1], *jsonFlag)
	case "search":
		requireArg(args, 3, "inboxctl search <account-id> <query>")
		cmdSearch(c, args[1], args[2], *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: inboxctl [--addr <url>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  accounts                      List mirrored accounts")
	fmt.Fprintln(os.Stderr, "  status <account-id>           Show sync run status")
	fmt.Fprintln(os.Stderr, "  backfill <account-id>         Request a backfill")
	fmt.Fprintln(os.Stderr, "  chats <account-id>            List mirrored chats")
	fmt.Fprintln(os.Stderr, "  messages <chat-id>            List a chat's messages")
	fmt.Fprintln(os.Stderr, "  search <account-id> <query>   Full-text message search")
}

func requireArg(args []string, n int, usage string) {
	if len(args) < n {
		fmt.Fprintln(os.Stderr, "usage: "+usage)
		os.Exit(1)
	}
}

type client struct {
	base string
	http *http.Client
}

func (c *client) get(path string) ([]byte, error) {
	return c.do(http.MethodGet, path)
}

func (c *client) post(path string) ([]byte, error) {
	return c.do(http.MethodPost, path)
}

func (c *client) do(method, path string) ([]byte, error) {
	req, err := http.NewRequest(method, c.base+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("%s: %s", resp.Status, apiErr.Error)
		}
		return nil, fmt.Errorf("%s", resp.Status)
	}
	return body, nil
}

func cmdAccounts(c *client, jsonOut bool) {
	body := fetch(c, "/v1/accounts")
	if jsonOut {
		fmt.Println(string(body))
		return
	}
	var accounts []struct {
		ID        string `json:"id"`
		Provider  string `json:"provider"`
		Status    string `json:"status"`
		OwnerName string `json:"owner_name"`
	}
	decode(body, &accounts)
	if len(accounts) == 0 {
		fmt.Println("no accounts")
		return
	}
	for _, a := range accounts {
		fmt.Printf("%s  %-10s %-12s %s\n", a.ID, a.Provider, a.Status, a.OwnerName)
	}
}

func cmdStatus(c *client, accountID string, jsonOut bool) {
	body := fetch(c, "/v1/accounts/"+url.PathEscape(accountID)+"/sync")
	if jsonOut {
		fmt.Println(string(body))
		return
	}
	var run struct {
		Status               string `json:"status"`
		CurrentStep          string `json:"current_step"`
		ChatsProcessed       int    `json:"chats_processed"`
		ChatsSkipped         int    `json:"chats_skipped"`
		MessagesProcessed    int    `json:"messages_processed"`
		AttachmentsProcessed int    `json:"attachments_processed"`
		Error                string `json:"error"`
	}
	decode(body, &run)
	fmt.Printf("status:      %s\n", run.Status)
	if run.CurrentStep != "" {
		fmt.Printf("step:        %s\n", run.CurrentStep)
	}
	fmt.Printf("chats:       %d (%d skipped)\n", run.ChatsProcessed, run.ChatsSkipped)
	fmt.Printf("messages:    %d\n", run.MessagesProcessed)
	fmt.Printf("attachments: %d\n", run.AttachmentsProcessed)
	if run.Error != "" {
		fmt.Printf("error:       %s\n", run.Error)
	}
}

func cmdBackfill(c *client, accountID string) {
	body, err := c.post("/v1/accounts/" + url.PathEscape(accountID) + "/backfill")
	if err != nil {
		fail(err)
	}
	_ = body
	fmt.Println("backfill requested")
}

func cmdChats(c *client, accountID string, jsonOut bool) {
	body := fetch(c, "/v1/accounts/"+url.PathEscape(accountID)+"/chats")
	if jsonOut {
		fmt.Println(string(body))
		return
	}
	var chats []struct {
		ID             string `json:"id"`
		Type           string `json:"type"`
		Name           string `json:"name"`
		LastActivityAt int64  `json:"last_activity_at"`
		UnreadCount    int    `json:"unread_count"`
	}
	decode(body, &chats)
	for _, ch := range chats {
		name := ch.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Printf("%s  %-6s unread=%-3d %s  %s\n",
			ch.ID, ch.Type, ch.UnreadCount, formatMillis(ch.LastActivityAt), name)
	}
}

func cmdMessages(c *client, chatID string, jsonOut bool) {
	body := fetch(c, "/v1/chats/"+url.PathEscape(chatID)+"/messages")
	if jsonOut {
		fmt.Println(string(body))
		return
	}
	var msgs []struct {
		SenderID   string `json:"sender_id"`
		Content    string `json:"content"`
		IsOutgoing bool   `json:"is_outgoing"`
		Deleted    bool   `json:"deleted"`
		SentAt     int64  `json:"sent_at"`
	}
	decode(body, &msgs)
	for _, m := range msgs {
		dir := "<-"
		if m.IsOutgoing {
			dir = "->"
		}
		content := m.Content
		if m.Deleted {
			content = "(deleted)"
		}
		fmt.Printf("%s %s %s: %s\n", formatMillis(m.SentAt), dir, m.SenderID, content)
	}
}

func cmdSearch(c *client, accountID, query string, jsonOut bool) {
	body := fetch(c, "/v1/accounts/"+url.PathEscape(accountID)+"/search?q="+url.QueryEscape(query))
	if jsonOut {
		fmt.Println(string(body))
		return
	}
	var hits []struct {
		Message struct {
			ID     string `json:"id"`
			SentAt int64  `json:"sent_at"`
		} `json:"message"`
		Snippet string `json:"snippet"`
	}
	decode(body, &hits)
	if len(hits) == 0 {
		fmt.Println("no matches")
		return
	}
	for _, h := range hits {
		fmt.Printf("%s  %s  %s\n", h.Message.ID, formatMillis(h.Message.SentAt), h.Snippet)
	}
}

func fetch(c *client, path string) []byte {
	body, err := c.get(path)
	if err != nil {
		fail(err)
	}
	return body
}

func decode(body []byte, v any) {
	if err := json.Unmarshal(body, v); err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func formatMillis(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return time.UnixMilli(ms).Format("2006-01-02 15:04")
}
