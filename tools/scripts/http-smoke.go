// Package main provides a CI-friendly HTTP smoke test for a running Coterie
// server.
//
// It validates:
//   - invite-gated registration for two users
//   - token auth (whoami)
//   - invite issuance by an authenticated user
//   - private chat creation + duplicate-pair rejection
//   - message send -> ordered history fetch from the other side
//   - token refresh invalidating the prior token
//   - idempotent logout
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const maxBodyBytes = 1 << 20 // 1MiB

type smokeUser struct {
	name   string
	handle string
	token  string
	selfID string
	userID string
}

func main() {
	var (
		baseURL = flag.String("url", "http://127.0.0.1:8080", "Server base URL")
		invite  = flag.String("invite", "", "Invite code for the first registration (required)")
		text    = flag.String("text", "hello coterie 👋", "Message text to send")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateBaseURL(*baseURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if strings.TrimSpace(*invite) == "" {
		fatalf("missing -invite")
	}

	root := context.Background()
	client := &smokeHTTP{base: strings.TrimRight(*baseURL, "/"), timeout: *timeout}

	suffix := time.Now().UnixNano() % 1_000_000
	a := client.mustRegister(root, "A", fmt.Sprintf("smoke_a_%d", suffix), *invite)
	if *verbose {
		fmt.Printf("registered: A=%s self_chat=%s\n", a.handle, a.selfID)
	}

	client.mustWhoami(root, a)

	codeB := client.mustCreateInvite(root, a)
	b := client.mustRegister(root, "B", fmt.Sprintf("smoke_b_%d", suffix), codeB)
	if *verbose {
		fmt.Printf("registered: B=%s via invite from A\n", b.handle)
	}

	chatID := client.mustCreatePrivateChat(root, a, b.handle)

	// Same pair again, either order, must be rejected.
	client.mustRejectDuplicatePair(root, b, a.handle)

	msgID := client.mustSendMessage(root, a, chatID, *text)
	client.mustHistoryContains(root, b, chatID, msgID, a.userID, *text)

	oldToken := a.token
	client.mustRefresh(root, a)
	client.mustRejectToken(root, oldToken, "GET", "/auth/whoami")

	client.mustLogout(root, a)
	client.mustLogout(root, a) // second logout is a no-op
	client.mustRejectToken(root, a.token, "GET", "/auth/whoami")

	fmt.Printf("OK: A=%s B=%s chat_id=%s msg_id=%s\n", a.handle, b.handle, chatID, msgID)
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

type smokeHTTP struct {
	base    string
	timeout time.Duration
}

func (c *smokeHTTP) do(parent context.Context, method, path, token string, body any) (int, []byte) {
	ctx, cancel := context.WithTimeout(parent, c.timeout)
	defer cancel()

	var r io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			fatalf("marshal request body: %v", err)
		}
		r = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		fatalf("build request %s %s: %v", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("%s %s: %v", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		fatalf("read response %s %s: %v", method, path, err)
	}
	return resp.StatusCode, data
}

func (c *smokeHTTP) mustRegister(parent context.Context, name, handle, invite string) *smokeUser {
	status, data := c.do(parent, http.MethodPost, "/auth/register", "", map[string]any{
		"handle":       handle,
		"display_name": "Smoke " + name,
		"password":     "correct horse battery staple",
		"invite_code":  invite,
	})
	if status != http.StatusCreated {
		fatalf("register %s: status=%d body=%s", name, status, data)
	}

	var resp struct {
		User struct {
			ID     string `json:"id"`
			Handle string `json:"handle"`
		} `json:"user"`
		SelfChatID string `json:"self_chat_id"`
		Token      string `json:"token"`
	}
	mustUnmarshal(data, &resp, "register "+name)

	if resp.Token == "" || resp.SelfChatID == "" || resp.User.ID == "" {
		fatalf("register %s: incomplete response: %s", name, data)
	}
	return &smokeUser{name: name, handle: resp.User.Handle, token: resp.Token, selfID: resp.SelfChatID, userID: resp.User.ID}
}

func (c *smokeHTTP) mustWhoami(parent context.Context, u *smokeUser) {
	status, data := c.do(parent, http.MethodGet, "/auth/whoami", u.token, nil)
	if status != http.StatusOK {
		fatalf("whoami %s: status=%d body=%s", u.name, status, data)
	}

	var resp struct {
		Handle string `json:"handle"`
	}
	mustUnmarshal(data, &resp, "whoami "+u.name)
	if resp.Handle != u.handle {
		fatalf("whoami %s: handle mismatch: got=%q want=%q", u.name, resp.Handle, u.handle)
	}
}

func (c *smokeHTTP) mustCreateInvite(parent context.Context, u *smokeUser) string {
	status, data := c.do(parent, http.MethodPost, "/auth/invites", u.token, map[string]any{
		"ttl": "24h",
	})
	if status != http.StatusCreated {
		fatalf("create invite (%s): status=%d body=%s", u.name, status, data)
	}

	var resp struct {
		Code string `json:"code"`
	}
	mustUnmarshal(data, &resp, "create invite")
	if strings.TrimSpace(resp.Code) == "" {
		fatalf("create invite (%s): missing code: %s", u.name, data)
	}
	return resp.Code
}

func (c *smokeHTTP) mustCreatePrivateChat(parent context.Context, u *smokeUser, withHandle string) string {
	status, data := c.do(parent, http.MethodPost, "/chats/private", u.token, map[string]any{
		"recipient_handle": withHandle,
	})
	if status != http.StatusCreated {
		fatalf("create private chat (%s with %s): status=%d body=%s", u.name, withHandle, status, data)
	}

	var resp struct {
		ID string `json:"id"`
	}
	mustUnmarshal(data, &resp, "create private chat")
	if resp.ID == "" {
		fatalf("create private chat (%s): missing id: %s", u.name, data)
	}
	return resp.ID
}

func (c *smokeHTTP) mustRejectDuplicatePair(parent context.Context, u *smokeUser, withHandle string) {
	status, data := c.do(parent, http.MethodPost, "/chats/private", u.token, map[string]any{
		"recipient_handle": withHandle,
	})
	if status != http.StatusConflict {
		fatalf("duplicate pair (%s with %s): status=%d want=409 body=%s", u.name, withHandle, status, data)
	}
}

func (c *smokeHTTP) mustSendMessage(parent context.Context, u *smokeUser, chatID, text string) string {
	status, data := c.do(parent, http.MethodPost, "/chats/"+chatID+"/messages", u.token, map[string]any{
		"text": text,
	})
	if status != http.StatusCreated {
		fatalf("send message (%s): status=%d body=%s", u.name, status, data)
	}

	var resp struct {
		ID       string `json:"id"`
		SenderID string `json:"sender_id"`
		Text     string `json:"text"`
	}
	mustUnmarshal(data, &resp, "send message")
	if resp.ID == "" || resp.Text != text {
		fatalf("send message (%s): unexpected response: %s", u.name, data)
	}
	return resp.ID
}

func (c *smokeHTTP) mustHistoryContains(parent context.Context, u *smokeUser, chatID, msgID, senderID, text string) {
	status, data := c.do(parent, http.MethodGet, "/chats/"+chatID+"/messages", u.token, nil)
	if status != http.StatusOK {
		fatalf("list messages (%s): status=%d body=%s", u.name, status, data)
	}

	var resp struct {
		Messages []struct {
			ID       string `json:"id"`
			SenderID string `json:"sender_id"`
			Text     string `json:"text"`
		} `json:"messages"`
	}
	mustUnmarshal(data, &resp, "list messages")

	for _, m := range resp.Messages {
		if m.ID == msgID && m.SenderID == senderID && m.Text == text {
			return
		}
	}
	fatalf("list messages (%s): expected message not found: %s", u.name, data)
}

func (c *smokeHTTP) mustRefresh(parent context.Context, u *smokeUser) {
	status, data := c.do(parent, http.MethodPost, "/auth/refresh", u.token, nil)
	if status != http.StatusOK {
		fatalf("refresh (%s): status=%d body=%s", u.name, status, data)
	}

	var resp struct {
		Token string `json:"token"`
	}
	mustUnmarshal(data, &resp, "refresh")
	if resp.Token == "" || resp.Token == u.token {
		fatalf("refresh (%s): token not rotated", u.name)
	}
	u.token = resp.Token
}

func (c *smokeHTTP) mustLogout(parent context.Context, u *smokeUser) {
	status, data := c.do(parent, http.MethodPost, "/auth/logout", u.token, nil)
	if status != http.StatusNoContent {
		fatalf("logout (%s): status=%d body=%s", u.name, status, data)
	}
}

func (c *smokeHTTP) mustRejectToken(parent context.Context, token, method, path string) {
	status, data := c.do(parent, method, path, token, nil)
	if status != http.StatusUnauthorized {
		fatalf("%s %s with dead token: status=%d want=401 body=%s", method, path, status, data)
	}
}

func mustUnmarshal(data []byte, v any, step string) {
	if err := json.Unmarshal(data, v); err != nil {
		fatalf("unmarshal %s: %v (body=%s)", step, err, data)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
