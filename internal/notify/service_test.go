package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moneta.app/internal/obs"
	"moneta.app/internal/paging"
)

type staticRecipients map[int64]string

func (r staticRecipients) EmailFor(_ context.Context, id int64) (string, error) {
	if e, ok := r[id]; ok {
		return e, nil
	}
	return "", errors.New("unknown user")
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []Email
}

func (m *recordingMailer) Send(_ context.Context, e Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, e)
	return nil
}

func TestNotifyStoresMailsAndPublishes(t *testing.T) {
	mailer := &recordingMailer{}
	hub := NewHub()
	svc := NewService(NewInMemory(), staticRecipients{1: "a@example.com"},
		WithMailer(mailer), WithHub(hub), WithSender("alerts@moneta.test"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	live := hub.Subscribe(ctx, 1)
	other := hub.Subscribe(ctx, 2)

	n, err := svc.Notify(context.Background(), Message{UserID: 1, Kind: BudgetExceeded, Subject: "Budget exceeded", Body: "over"})
	require.NoError(t, err)
	assert.NotEmpty(t, n.ID)

	select {
	case got := <-live:
		assert.Equal(t, n.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive notification")
	}
	select {
	case got := <-other:
		t.Fatalf("notification leaked to another user: %+v", got)
	default:
	}

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, Email{From: "alerts@moneta.test", To: "a@example.com", Subject: "Budget exceeded", Body: "over"}, mailer.sent[0])

	page, err := svc.List(context.Background(), 1, paging.Request{})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.False(t, page.Items[0].Read)

	require.NoError(t, svc.MarkRead(context.Background(), 1, n.ID))
	page, _ = svc.List(context.Background(), 1, paging.Request{})
	assert.True(t, page.Items[0].Read)

	assert.ErrorIs(t, svc.MarkRead(context.Background(), 2, n.ID), ErrNotFound)
	assert.ErrorIs(t, svc.MarkRead(context.Background(), 1, "bogus"), ErrNotFound)
}

func TestNotifyEmailFailureIsLoggedNotReturned(t *testing.T) {
	l := obs.Logger()
	orig := l.Writer()
	var buf bytes.Buffer
	l.SetOutput(&buf)
	defer l.SetOutput(orig)

	svc := NewService(NewInMemory(), staticRecipients{})
	_, err := svc.Notify(context.Background(), Message{UserID: 9, Kind: GoalAchieved, Subject: "s"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "notification_email_failed")
}

func TestConsoleMailerWritesJSONLine(t *testing.T) {
	l := obs.Logger()
	orig := l.Writer()
	var buf bytes.Buffer
	l.SetOutput(&buf)
	defer l.SetOutput(orig)

	require.NoError(t, ConsoleMailer{}.Send(context.Background(), Email{To: "x@y.z", Subject: "hi"}))
	assert.True(t, strings.Contains(buf.String(), `"msg":"email_sent"`))
	assert.Error(t, ConsoleMailer{}.Send(context.Background(), Email{}))
}

func TestListNewestFirst(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := NewService(NewInMemory(), nil, WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))
	for _, subj := range []string{"first", "second", "third"} {
		_, err := svc.Notify(context.Background(), Message{UserID: 1, Kind: BudgetWarning, Subject: subj})
		require.NoError(t, err)
	}
	page, err := svc.List(context.Background(), 1, paging.Request{Page: 1, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "third", page.Items[0].Subject)
	assert.Equal(t, "second", page.Items[1].Subject)
}

func TestHubUnsubscribesOnCancel(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	ch := hub.Subscribe(ctx, 1)
	assert.Equal(t, 1, hub.Subscribers())
	cancel()
	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, hub.Subscribers())
}
