package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

type email struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	From    []struct {
		Address string `json:"address"`
	} `json:"from"`
}

func main() {
	baseURL := getenvDefault("MAILDEV_URL", "http://localhost:1080")
	smtpAddr := getenvDefault("MAILDEV_SMTP", "localhost:1025")
	smtpUser := os.Getenv("MAILDEV_INCOMING_USER")
	smtpPass := os.Getenv("MAILDEV_INCOMING_PASS")

	client := newClient()

	senderA := "orders@shop.test"
	senderB := "alerts@monitor.test"

	fmt.Println("Sending test emails...")
	sendSMTP(smtpAddr, smtpUser, smtpPass, senderA, []string{"dev@maildev.test"}, buildTestMessage(senderA, "Order confirmation"))
	sendSMTP(smtpAddr, smtpUser, smtpPass, senderB, []string{"dev@maildev.test"}, buildTestMessage(senderB, "Disk usage warning"))
	sendSMTP(smtpAddr, smtpUser, smtpPass, senderA, []string{"dev@maildev.test", "ops@maildev.test"}, buildTestMessage(senderA, "Order shipped"))

	time.Sleep(500 * time.Millisecond)

	fmt.Println("All emails:")
	printEmails(listEmails(client, baseURL+"/email"))

	fmt.Println("Remembering filter for", senderA)
	setFilter(client, baseURL, senderA)

	fmt.Println("Listing without parameters follows the remembered filter:")
	printEmails(listEmails(client, baseURL+"/email"))

	fmt.Println("An explicit filter wins over the remembered one:")
	printEmails(listEmails(client, baseURL+"/email?from="+url.QueryEscape(senderB)))

	fmt.Println("Second page of the remembered filter:")
	printEmails(listEmails(client, baseURL+"/email?skip=1"))

	fmt.Println("Clearing filter")
	mustDo(client, http.MethodPost, baseURL+"/clear-filter", nil).Body.Close()
	printEmails(listEmails(client, baseURL+"/email"))
}

func newClient() *http.Client {
	jar, _ := cookiejar.New(nil)
	return &http.Client{
		Timeout: 10 * time.Second,
		Jar:     jar,
	}
}

func setFilter(client *http.Client, baseURL, from string) {
	form := url.Values{"email": {from}}
	resp := mustDo(client, http.MethodPost, baseURL+"/set-filter", strings.NewReader(form.Encode()))
	resp.Body.Close()
}

func listEmails(client *http.Client, target string) []email {
	resp := mustDo(client, http.MethodGet, target, nil)
	defer resp.Body.Close()
	fmt.Println("  GET", resp.Request.URL.RequestURI())
	var out []email
	mustDecode(resp.Body, &out)
	return out
}

func printEmails(emails []email) {
	for _, e := range emails {
		from := ""
		if len(e.From) > 0 {
			from = e.From[0].Address
		}
		fmt.Printf("  - %s %q from %s\n", e.ID, e.Subject, from)
	}
	fmt.Printf("  total=%d\n", len(emails))
}

func sendSMTP(addr, username, password, from string, to []string, msg string) {
	var auth sasl.Client
	if username != "" || password != "" {
		auth = sasl.NewPlainClient("", username, password)
	}
	if err := smtp.SendMail(addr, auth, from, to, strings.NewReader(msg)); err != nil {
		fmt.Fprintln(os.Stderr, "smtp error:", err)
	}
}

func buildTestMessage(from, subject string) string {
	boundary := fmt.Sprintf("maildev-%d", time.Now().UnixNano())
	text := "Hello!\n\nThis is a MailDev filter test email from " + from + ".\n"
	html := "<html><body><h2>MailDev filter test</h2><p>Sent by <strong>" + from + "</strong>.</p></body></html>"
	lines := []string{
		"From: " + from,
		"To: dev@maildev.test",
		"Subject: " + subject,
		"Date: " + time.Now().Format(time.RFC1123Z),
		"MIME-Version: 1.0",
		"Content-Type: multipart/alternative; boundary=" + boundary,
		"",
		"--" + boundary,
		"Content-Type: text/plain; charset=utf-8",
		"",
		text,
		"--" + boundary,
		"Content-Type: text/html; charset=utf-8",
		"",
		html,
		"--" + boundary + "--",
		"",
	}
	return strings.Join(lines, "\r\n")
}

func mustDo(client *http.Client, method, target string, body io.Reader) *http.Response {
	req, err := http.NewRequest(method, target, body)
	if err != nil {
		panic(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	resp, err := client.Do(req)
	if err != nil {
		panic(err)
	}
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		panic(fmt.Sprintf("request failed: %s %s: %s", method, target, string(b)))
	}
	return resp
}

func mustDecode(r io.Reader, v any) {
	if err := json.NewDecoder(r).Decode(v); err != nil {
		panic(err)
	}
}

func getenvDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
