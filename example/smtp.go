package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

func main() {
	addr := getenvDefault("MAILDEV_SMTP", "127.0.0.1:1025")
	senders := []string{"billing@shop.test", "alerts@monitor.test", "noreply@signup.test"}
	to := "dev@maildev.test"

	var auth sasl.Client
	if user := os.Getenv("MAILDEV_INCOMING_USER"); user != "" {
		auth = sasl.NewPlainClient("", user, os.Getenv("MAILDEV_INCOMING_PASS"))
	}

	for i := 1; i <= 30; i++ {
		from := senders[i%len(senders)]
		subject := fmt.Sprintf("MailDev Example #%d", i)
		body := fmt.Sprintf("Hello from %s. Message %d.\r\n", from, i)
		message := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", from, to, subject, body)

		if err := smtp.SendMail(addr, auth, from, []string{to}, strings.NewReader(message)); err != nil {
			panic(err)
		}
	}

	fmt.Println("sent 30 messages from", len(senders), "senders")
}

func getenvDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
