package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jjudge-oj/identity/config"
	"github.com/jjudge-oj/identity/internal/mq"
)

type collectingSink struct {
	mu    sync.Mutex
	got   []Notification
	err   error
	block chan struct{}
}

func (s *collectingSink) Deliver(ctx context.Context, n Notification) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, n)
	return s.err
}

func (s *collectingSink) delivered() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification(nil), s.got...)
}

func TestDispatcherDeliversEachOnce(t *testing.T) {
	sink := &collectingSink{}
	d := NewDispatcher(sink, 2, 8, time.Second, nil)

	d.SendVerification(context.Background(), "alice@example.com", "alice", "123456")
	d.SendReset(context.Background(), "bob@example.com", "bob", "654321")
	d.Close()

	got := sink.delivered()
	if len(got) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(got))
	}
	kinds := map[Kind]Notification{}
	for _, n := range got {
		kinds[n.Kind] = n
	}
	if kinds[KindVerification].Code != "123456" || kinds[KindPasswordReset].Email != "bob@example.com" {
		t.Fatalf("unexpected deliveries: %+v", got)
	}
}

func TestDispatcherIgnoresCallerCancellation(t *testing.T) {
	sink := &collectingSink{}
	d := NewDispatcher(sink, 1, 4, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if !d.Schedule(ctx, Notification{Kind: KindVerification, Email: "a@example.com", Code: "1"}) {
		t.Fatalf("expected notification to be accepted")
	}
	d.Close()

	if len(sink.delivered()) != 1 {
		t.Fatalf("expected delivery despite cancelled caller context")
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := &collectingSink{block: make(chan struct{})}
	d := NewDispatcher(sink, 1, 1, time.Second, nil)

	n := Notification{Kind: KindVerification, Email: "a@example.com", Code: "1"}
	accepted := 0
	for i := 0; i < 5; i++ {
		if d.Schedule(context.Background(), n) {
			accepted++
		}
	}
	if accepted > 2 {
		t.Fatalf("expected at most worker+queue capacity accepted, got %d", accepted)
	}
	close(sink.block)
	d.Close()

	if got := len(sink.delivered()); got != accepted {
		t.Fatalf("expected %d deliveries, got %d", accepted, got)
	}
}

func TestDispatcherFailureIsNotRetried(t *testing.T) {
	sink := &collectingSink{err: errors.New("smtp down")}
	d := NewDispatcher(sink, 1, 4, time.Second, nil)

	d.SendVerification(context.Background(), "a@example.com", "a", "1")
	d.Close()

	if got := len(sink.delivered()); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
}

func TestDispatcherRejectsAfterClose(t *testing.T) {
	d := NewDispatcher(&collectingSink{}, 1, 1, time.Second, nil)
	d.Close()
	d.Close()

	if d.Schedule(context.Background(), Notification{Kind: KindVerification}) {
		t.Fatalf("expected closed dispatcher to reject")
	}
}

func TestDispatcherRecoversFromPanic(t *testing.T) {
	calls := 0
	var mu sync.Mutex
	sink := SinkFunc(func(ctx context.Context, n Notification) error {
		mu.Lock()
		calls++
		mu.Unlock()
		if n.Code == "boom" {
			panic("sink exploded")
		}
		return nil
	})
	d := NewDispatcher(sink, 1, 4, time.Second, nil)

	d.Schedule(context.Background(), Notification{Kind: KindVerification, Code: "boom"})
	d.Schedule(context.Background(), Notification{Kind: KindVerification, Code: "ok"})
	d.Close()

	if calls != 2 {
		t.Fatalf("expected worker to survive panic, calls=%d", calls)
	}
}

type mapSource map[string]string

func (m mapSource) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	body, ok := m[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func TestTemplatesRenderDefaults(t *testing.T) {
	tmpl, err := LoadTemplates(context.Background(), nil, "", nil)
	if err != nil {
		t.Fatalf("LoadTemplates error: %v", err)
	}

	subject, body, err := tmpl.Render(Notification{Kind: KindVerification, Username: "alice", Code: "042917"})
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	if subject != "Your Verification Code" {
		t.Fatalf("unexpected subject: %q", subject)
	}
	if !strings.Contains(body, "042917") || !strings.Contains(body, "alice") {
		t.Fatalf("body missing code or username: %s", body)
	}

	subject, body, err = tmpl.Render(Notification{Kind: KindPasswordReset, Username: "<bob>", Code: "111111"})
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	if subject != "Reset Your Password" || !strings.Contains(body, "111111") {
		t.Fatalf("unexpected reset email: %q %s", subject, body)
	}
	if strings.Contains(body, "<bob>") {
		t.Fatalf("username was not escaped: %s", body)
	}

	if _, _, err := tmpl.Render(Notification{Kind: "unknown"}); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestTemplatesOverride(t *testing.T) {
	source := mapSource{"email/verification_email.html": "custom {{.Code}}"}
	tmpl, err := LoadTemplates(context.Background(), source, "email/", nil)
	if err != nil {
		t.Fatalf("LoadTemplates error: %v", err)
	}

	_, body, err := tmpl.Render(Notification{Kind: KindVerification, Code: "9"})
	if err != nil || body != "custom 9" {
		t.Fatalf("expected override, got %q, %v", body, err)
	}

	_, body, err = tmpl.Render(Notification{Kind: KindPasswordReset, Code: "8"})
	if err != nil || body == "custom 8" || !strings.Contains(body, "8") {
		t.Fatalf("expected embedded reset template, got %q, %v", body, err)
	}
}

func TestTemplatesRejectBrokenOverride(t *testing.T) {
	source := mapSource{"verification_email.html": "{{.Code"}
	if _, err := LoadTemplates(context.Background(), source, "", nil); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestDefaultTemplateFiles(t *testing.T) {
	files, err := DefaultTemplateFiles()
	if err != nil {
		t.Fatalf("DefaultTemplateFiles error: %v", err)
	}
	if len(files["verification_email.html"]) == 0 || len(files["password_reset_email.html"]) == 0 {
		t.Fatalf("missing embedded templates: %v", len(files))
	}
}

type sentMail struct {
	addr string
	auth smtp.Auth
	from string
	to   []string
	msg  []byte
}

func newTestMailer(t *testing.T, sent *[]sentMail) *Mailer {
	t.Helper()
	tmpl, err := LoadTemplates(context.Background(), nil, "", nil)
	if err != nil {
		t.Fatalf("LoadTemplates error: %v", err)
	}
	m := NewMailer(config.SMTPConfig{Server: "smtp.example.com", Port: 587, Sender: "noreply@example.com", Password: "pw"}, tmpl)
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		*sent = append(*sent, sentMail{addr: addr, auth: a, from: from, to: to, msg: msg})
		return nil
	}
	return m
}

func TestMailerDeliver(t *testing.T) {
	var sent []sentMail
	m := newTestMailer(t, &sent)

	err := m.Deliver(context.Background(), Notification{Kind: KindVerification, Email: "alice@example.com", Username: "alice", Code: "042917"})
	if err != nil {
		t.Fatalf("Deliver error: %v", err)
	}
	if len(sent) != 1 {
		t.Fatalf("expected one message, got %d", len(sent))
	}
	mail := sent[0]
	if mail.addr != "smtp.example.com:587" || mail.from != "noreply@example.com" || mail.auth == nil {
		t.Fatalf("unexpected envelope: %+v", mail)
	}
	if len(mail.to) != 1 || mail.to[0] != "alice@example.com" {
		t.Fatalf("unexpected recipients: %v", mail.to)
	}
	msg := string(mail.msg)
	if !strings.Contains(msg, "Subject: Your Verification Code\r\n") || !strings.Contains(msg, "text/html") {
		t.Fatalf("unexpected headers: %s", msg)
	}
	if !strings.Contains(msg, "042917") {
		t.Fatalf("message missing code")
	}
}

func TestMailerRejectsInvalidAddress(t *testing.T) {
	var sent []sentMail
	m := newTestMailer(t, &sent)

	for _, email := range []string{"", "not-an-email", "a@"} {
		if err := m.Deliver(context.Background(), Notification{Kind: KindVerification, Email: email, Code: "1"}); err == nil {
			t.Fatalf("expected error for %q", email)
		}
	}
	if len(sent) != 0 {
		t.Fatalf("expected nothing sent, got %d", len(sent))
	}
}

func TestMailerPropagatesSendError(t *testing.T) {
	var sent []sentMail
	m := newTestMailer(t, &sent)
	m.send = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}

	err := m.Deliver(context.Background(), Notification{Kind: KindPasswordReset, Email: "a@example.com", Code: "1"})
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected send error, got %v", err)
	}
}

type fakeQueue struct {
	channel string
	data    []byte
	attrs   map[string]string
	msgs    []mq.Message
}

func (q *fakeQueue) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	q.channel = channel
	q.data = data
	q.attrs = attrs
	q.msgs = append(q.msgs, mq.Message{ID: "m1", Data: data, Attributes: attrs})
	return "m1", nil
}

func (q *fakeQueue) Subscribe(ctx context.Context, channel string, handler mq.Handler) error {
	for _, msg := range q.msgs {
		if err := handler(ctx, msg); err != nil {
			return err
		}
	}
	return context.Canceled
}

func TestQueueSinkAndWorker(t *testing.T) {
	queue := &fakeQueue{}
	sink := NewQueueSink(queue, "identity.notifications")

	n := Notification{Kind: KindPasswordReset, Email: "a@example.com", Username: "a", Code: "777777"}
	if err := sink.Deliver(context.Background(), n); err != nil {
		t.Fatalf("Deliver error: %v", err)
	}
	if queue.channel != "identity.notifications" || queue.attrs["kind"] != string(KindPasswordReset) {
		t.Fatalf("unexpected publish: %s %v", queue.channel, queue.attrs)
	}
	var decoded Notification
	if err := json.Unmarshal(queue.data, &decoded); err != nil || decoded != n {
		t.Fatalf("unexpected payload: %s, %v", queue.data, err)
	}

	delivered := &collectingSink{}
	worker := NewWorker(queue, "identity.notifications", delivered, nil)
	if err := worker.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if got := delivered.delivered(); len(got) != 1 || got[0] != n {
		t.Fatalf("unexpected worker deliveries: %+v", got)
	}
}

func TestWorkerAcknowledgesFailures(t *testing.T) {
	worker := NewWorker(&fakeQueue{}, "c", &collectingSink{err: errors.New("smtp down")}, nil)

	if err := worker.Handle(context.Background(), mq.Message{ID: "1", Data: []byte(`{"kind":"verification"}`)}); err != nil {
		t.Fatalf("expected nil on delivery failure, got %v", err)
	}
	if err := worker.Handle(context.Background(), mq.Message{ID: "2", Data: bytes.Repeat([]byte("{"), 3)}); err != nil {
		t.Fatalf("expected nil on malformed payload, got %v", err)
	}
}
