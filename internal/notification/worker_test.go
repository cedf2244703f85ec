package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gate-access-backend/internal/model"
	"gate-access-backend/internal/store"
)

// mockSender is a mock implementation of the NotificationSender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// Send calls the mock SendFunc.
func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

// fakeStore records the notification-related calls; other Store methods are not used.
type fakeStore struct {
	store.Store

	mu         sync.Mutex
	saved      []model.AdminNotification
	subs       []model.PushSubscription
	severities []string
	deleted    []string
}

func (f *fakeStore) SaveNotification(_ context.Context, n *model.AdminNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, *n)
	return nil
}

func (f *fakeStore) ListSubscriptions(_ context.Context, severities []string) ([]model.PushSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.severities = severities
	return f.subs, nil
}

func (f *fakeStore) DeleteSubscription(_ context.Context, endpoint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, endpoint)
	return nil
}

func okResponse(status int) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewBufferString(""))}
}

var testPush = &webpush.Options{VAPIDPublicKey: "pub", VAPIDPrivateKey: "priv"}

func TestWorkerPool_NotifyNeverBlocks(t *testing.T) {
	wp := NewWorkerPool(1, 1, &fakeStore{}, nil, nil)

	wp.Notify(Alert{Severity: model.SeverityDanger, Title: "first"})

	done := make(chan struct{})
	go func() {
		wp.Notify(Alert{Severity: model.SeverityDanger, Title: "second"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full queue")
	}

	job := <-wp.Jobs()
	assert.Equal(t, "first", job.Title)
	assert.Empty(t, wp.Jobs())
}

func TestWorkerPool_DeliversAlert(t *testing.T) {
	fs := &fakeStore{subs: []model.PushSubscription{{Endpoint: "https://example.com/push", P256DH: "k", Auth: "a"}}}
	wp := NewWorkerPool(1, 4, fs, testPush, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	wp.sender = &mockSender{
		SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
			defer wg.Done()
			assert.Equal(t, "https://example.com/push", sub.Endpoint)
			var body map[string]string
			require.NoError(t, json.Unmarshal(payload, &body))
			assert.Equal(t, "Station locked", body["title"])
			assert.NotEmpty(t, body["id"])
			return okResponse(http.StatusCreated), nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	wp.Notify(Alert{Severity: model.SeverityDanger, Title: "Station locked", Body: "plate 59A12345"})
	wg.Wait()

	fs.mu.Lock()
	defer fs.mu.Unlock()
	require.Len(t, fs.saved, 1)
	assert.Equal(t, "Station locked", fs.saved[0].Title)
	assert.Equal(t, []string{model.SeverityInfo, model.SeverityWarning, model.SeverityDanger}, fs.severities)
}

func TestWorkerPool_DeletesExpiredSubscription(t *testing.T) {
	fs := &fakeStore{subs: []model.PushSubscription{{Endpoint: "https://example.com/expired", P256DH: "k", Auth: "a"}}}
	wp := NewWorkerPool(1, 4, fs, testPush, nil)
	wp.sender = &mockSender{
		SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
			return okResponse(http.StatusGone), nil
		},
	}

	wp.deliver(context.Background(), Alert{Severity: model.SeverityWarning, Title: "backup code mismatches"})

	assert.Equal(t, []string{"https://example.com/expired"}, fs.deleted)
	assert.Equal(t, []string{model.SeverityInfo, model.SeverityWarning}, fs.severities)
}

func TestWorkerPool_PersistsWithoutPushKeys(t *testing.T) {
	fs := &fakeStore{}
	wp := NewWorkerPool(1, 4, fs, nil, nil)
	wp.sender = &mockSender{
		SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
			t.Fatal("push must not be attempted without VAPID keys")
			return nil, nil
		},
	}

	wp.deliver(context.Background(), Alert{Severity: model.SeverityInfo, Title: "hello"})

	assert.Len(t, fs.saved, 1)
	assert.Nil(t, fs.severities)
}
