package mail

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gopkg.in/gomail.v2"

	"github.com/northbeam-ai/sitegate/pkg/config"
	"github.com/northbeam-ai/sitegate/pkg/metrics"
)

type fakeDialer struct {
	failures int
	calls    int
	last     *gomail.Message
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	d.calls++
	d.last = m[0]
	if d.calls <= d.failures {
		return errors.New("connection refused")
	}
	return nil
}

func newTestSender(t *testing.T, d Dialer, retries int) (*sender, *[]time.Duration) {
	t.Helper()
	s := newSender(d, config.Mail{Host: "smtp.test", From: "web@northbeam.test", RetryCount: retries}, zaptest.NewLogger(t).Sugar())
	var sleeps []time.Duration
	s.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	return s, &sleeps
}

func TestSenderSendsHeaders(t *testing.T) {
	d := &fakeDialer{}
	s, _ := newTestSender(t, d, 1)
	before := testutil.ToFloat64(metrics.MailSendSuccess.WithLabelValues("smtp.test"))

	err := s.Send(Message{To: []string{"sales@northbeam.test"}, ReplyTo: "jane@acme.test", Subject: "Hi", Body: "<p>x</p>"})
	require.NoError(t, err)
	assert.Equal(t, 1, d.calls)
	assert.Equal(t, []string{"web@northbeam.test"}, d.last.GetHeader("From"))
	assert.Equal(t, []string{"sales@northbeam.test"}, d.last.GetHeader("To"))
	assert.Equal(t, []string{"jane@acme.test"}, d.last.GetHeader("Reply-To"))
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.MailSendSuccess.WithLabelValues("smtp.test")))
}

func TestSenderRetriesWithBackoff(t *testing.T) {
	d := &fakeDialer{failures: 2}
	s, sleeps := newTestSender(t, d, 3)

	require.NoError(t, s.Send(Message{To: []string{"a@b.test"}, Subject: "s"}))
	assert.Equal(t, 3, d.calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, *sleeps)
}

func TestSenderGivesUp(t *testing.T) {
	d := &fakeDialer{failures: 10}
	s, _ := newTestSender(t, d, 2)
	before := testutil.ToFloat64(metrics.MailSendFailure.WithLabelValues("smtp.test"))

	err := s.Send(Message{To: []string{"a@b.test"}, Subject: "s"})
	require.Error(t, err)
	assert.Equal(t, 3, d.calls)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.MailSendFailure.WithLabelValues("smtp.test")))
}

func TestSenderRejectsEmptyRecipients(t *testing.T) {
	s, _ := newTestSender(t, &fakeDialer{}, 1)
	assert.ErrorIs(t, s.Send(Message{Subject: "s"}), ErrNoRecipients)
}

func TestNewSenderDefaults(t *testing.T) {
	s := NewSender(config.Mail{Host: "smtp.example.com", Port: 587, InsecureSkipVerify: true}, nil)
	assert.Equal(t, "smtp.example.com", s.GetHost())

	impl := s.(*sender)
	assert.Equal(t, "noreply@smtp.example.com", impl.from)
	assert.Equal(t, defaultRetryCount, impl.retryCount)
	d := impl.dialer.(*gomail.Dialer)
	require.NotNil(t, d.TLSConfig)
	assert.True(t, d.TLSConfig.InsecureSkipVerify)
}
