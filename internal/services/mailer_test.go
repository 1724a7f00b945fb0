package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/schoolfeedback/feedbackd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sendGridPayload struct {
	Personalizations []struct {
		To []struct {
			Email string `json:"email"`
		} `json:"to"`
	} `json:"personalizations"`
	From struct {
		Email string `json:"email"`
	} `json:"from"`
	Subject string `json:"subject"`
	Content []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"content"`
}

func testEmail() *Email {
	return &Email{
		To:      "info@schoolfeedback.org",
		From:    "info@schoolfeedback.org",
		Subject: "[praise] great class",
		Text:    FeedbackBodyPrefix + "Loved it",
	}
}

func TestSendGridMailer_Send(t *testing.T) {
	var payload sendGridPayload
	var auth, method, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &payload)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	mailer := NewSendGridMailer("SG.test", srv.URL)
	require.NoError(t, mailer.Send(context.Background(), testEmail()))

	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "/v3/mail/send", path)
	assert.Equal(t, "Bearer SG.test", auth)
	assert.Equal(t, "info@schoolfeedback.org", payload.From.Email)
	assert.Equal(t, "[praise] great class", payload.Subject)
	require.Len(t, payload.Personalizations, 1)
	require.Len(t, payload.Personalizations[0].To, 1)
	assert.Equal(t, "info@schoolfeedback.org", payload.Personalizations[0].To[0].Email)
	require.NotEmpty(t, payload.Content)
	assert.Equal(t, "text/plain", payload.Content[0].Type)
	assert.Equal(t, "Feedback content:\n\nLoved it", payload.Content[0].Value)
}

func TestSendGridMailer_RejectedRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"errors":[{"message":"The provided authorization grant is invalid"}]}`)
	}))
	defer srv.Close()

	mailer := NewSendGridMailer("SG.bad", srv.URL)
	err := mailer.Send(context.Background(), testEmail())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
	assert.Contains(t, err.Error(), "authorization grant is invalid")
}

func TestSendGridMailer_ConcurrentSendsKeepTheirPayload(t *testing.T) {
	const senders = 50

	var mu sync.Mutex
	received := make(map[string]int)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload sendGridPayload
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &payload)
		mu.Lock()
		received[payload.Subject]++
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	mailer := NewSendGridMailer("SG.test", srv.URL)

	var wg sync.WaitGroup
	errs := make(chan error, senders)
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			email := testEmail()
			email.Subject = fmt.Sprintf("[other] feedback %d", i)
			errs <- mailer.Send(context.Background(), email)
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.Len(t, received, senders, "every subject must arrive")
	for subject, n := range received {
		assert.Equal(t, 1, n, "subject %q delivered more than once", subject)
	}
}

func TestBuildSMTPMessage(t *testing.T) {
	msg := buildSMTPMessage(testEmail())

	assert.Equal(t, []string{"info@schoolfeedback.org"}, msg.GetHeader("From"))
	assert.Equal(t, []string{"info@schoolfeedback.org"}, msg.GetHeader("To"))
	assert.Equal(t, []string{"[praise] great class"}, msg.GetHeader("Subject"))
}

func TestSMTPMailer_CanceledContext(t *testing.T) {
	mailer := NewSMTPMailer(&config.SMTPConfig{Host: "127.0.0.1", Port: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := mailer.Send(ctx, testEmail())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewMailer(t *testing.T) {
	t.Run("sendgrid", func(t *testing.T) {
		cfg := config.DefaultConfig().Mail
		cfg.APIKey = "SG.test"

		mailer, err := NewMailer(&cfg)
		require.NoError(t, err)
		assert.Equal(t, "sendgrid", mailer.Provider())
	})

	t.Run("sendgrid without key", func(t *testing.T) {
		cfg := config.DefaultConfig().Mail

		_, err := NewMailer(&cfg)
		var missing *config.MissingSecretError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, "SendGrid API Key not configured", err.Error())
	})

	t.Run("smtp", func(t *testing.T) {
		cfg := config.DefaultConfig().Mail
		cfg.Provider = "smtp"
		cfg.SMTP.Host = "smtp.example.org"

		mailer, err := NewMailer(&cfg)
		require.NoError(t, err)
		assert.Equal(t, "smtp", mailer.Provider())
	})
}
