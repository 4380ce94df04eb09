package captions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snapcast/internal/bunny"
)

type fakeClient struct {
	mu        sync.Mutex
	info      *bunny.AssetInfo
	infoErr   error
	reqErr    error
	infoCalls int
	requests  []string
}

func (f *fakeClient) AssetInfo(context.Context, string) (*bunny.AssetInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.infoCalls++
	return f.info, f.infoErr
}

func (f *fakeClient) RequestAutoCaption(_ context.Context, assetID, lang, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, assetID+"/"+lang+"/"+label)
	return f.reqErr
}

func TestJobRun(t *testing.T) {
	ctx := context.Background()

	t.Run("not ready", func(t *testing.T) {
		c := &fakeClient{info: &bunny.AssetInfo{Status: bunny.StatusProcessing}}
		assert.Equal(t, SkippedNotReady, NewJob(c, nil).Run(ctx, "abc"))
		assert.Empty(t, c.requests)
	})

	t.Run("requests captions when finished", func(t *testing.T) {
		c := &fakeClient{info: &bunny.AssetInfo{Status: bunny.StatusFinished}}
		assert.Equal(t, Requested, NewJob(c, nil).Run(ctx, "abc"))
		assert.Equal(t, []string{"abc/en/English"}, c.requests)
	})

	t.Run("info failure is swallowed", func(t *testing.T) {
		c := &fakeClient{infoErr: errors.New("timeout")}
		assert.Equal(t, Failed, NewJob(c, nil).Run(ctx, "abc"))
	})

	t.Run("request failure is swallowed", func(t *testing.T) {
		c := &fakeClient{info: &bunny.AssetInfo{Status: 4}, reqErr: errors.New("403")}
		assert.Equal(t, Failed, NewJob(c, nil).Run(ctx, "abc"))
	})
}

func TestJobIsIdempotentWhenCaptionsExist(t *testing.T) {
	c := &fakeClient{info: &bunny.AssetInfo{
		Status:   bunny.StatusFinished,
		Captions: []bunny.Caption{{SrcLang: "en", Label: "English"}},
	}}
	job := NewJob(c, nil)

	assert.Equal(t, SkippedExists, job.Run(context.Background(), "abc"))
	assert.Equal(t, SkippedExists, job.Run(context.Background(), "abc"))
	assert.Empty(t, c.requests)
	assert.Equal(t, 2, c.infoCalls)
}

type recordingRunner struct {
	mu      sync.Mutex
	assets  []string
	block   chan struct{}
	started chan struct{}
	hasDL   bool
}

func (r *recordingRunner) Run(ctx context.Context, assetID string) Outcome {
	if r.started != nil {
		r.started <- struct{}{}
	}
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, r.hasDL = ctx.Deadline()
	r.assets = append(r.assets, assetID)
	return Requested
}

func (r *recordingRunner) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.assets...)
}

func TestPoolRunsAndDrains(t *testing.T) {
	r := &recordingRunner{}
	p := NewPool(r, 2, 8, time.Second)

	for _, id := range []string{"a", "b", "c"} {
		p.Dispatch(id)
	}
	require.NoError(t, p.Close(context.Background()))

	assert.ElementsMatch(t, []string{"a", "b", "c"}, r.seen())
	assert.True(t, r.hasDL)

	// dispatch after close is dropped
	p.Dispatch("d")
	assert.Len(t, r.seen(), 3)
}

func TestPoolDropsWhenFull(t *testing.T) {
	r := &recordingRunner{block: make(chan struct{}), started: make(chan struct{}, 1)}
	p := NewPool(r, 1, 1, time.Second)

	p.Dispatch("running")
	<-r.started
	p.Dispatch("queued")
	p.Dispatch("dropped")

	close(r.block)
	require.NoError(t, p.Close(context.Background()))

	assert.ElementsMatch(t, []string{"running", "queued"}, r.seen())
}

type fakeSQS struct {
	mu       sync.Mutex
	sendErr  error
	hang     bool
	sent     []string
	batches  [][]types.Message
	deleted  []string
	received int
}

func (f *fakeSQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	hang := f.hang
	f.mu.Unlock()
	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, aws.ToString(in.MessageBody))
	return &sqs.SendMessageOutput{MessageId: aws.String("m1")}, nil
}

func (f *fakeSQS) ReceiveMessage(context.Context, *sqs.ReceiveMessageInput, ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received++
	if len(f.batches) == 0 {
		return &sqs.ReceiveMessageOutput{}, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return &sqs.ReceiveMessageOutput{Messages: batch}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

type countingDispatcher struct {
	mu     sync.Mutex
	assets []string
}

func (d *countingDispatcher) Dispatch(assetID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.assets = append(d.assets, assetID)
}

func (d *countingDispatcher) seen() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.assets...)
}

func TestSQSDispatcher(t *testing.T) {
	client := &fakeSQS{}
	fallback := &countingDispatcher{}
	d := NewSQSDispatcher(client, "https://sqs.example/queue", fallback)

	d.Dispatch("abc")
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, []string{`{"assetId":"abc"}`}, client.sent)
	assert.Empty(t, fallback.seen())

	client.mu.Lock()
	client.sendErr = errors.New("throttled")
	client.mu.Unlock()
	d.Dispatch("def")
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, []string{"def"}, fallback.seen())
}

func TestSQSDispatcherDoesNotBlockOnSlowQueue(t *testing.T) {
	client := &fakeSQS{hang: true}
	fallback := &countingDispatcher{}
	d := NewSQSDispatcher(client, "https://sqs.example/queue", fallback)
	d.timeout = 100 * time.Millisecond

	start := time.Now()
	d.Dispatch("asset-1")
	assert.Less(t, time.Since(start), 50*time.Millisecond)
	assert.Empty(t, fallback.seen())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
	assert.Equal(t, []string{"asset-1"}, fallback.seen())
}

func TestWorkerPollDeletesEveryMessage(t *testing.T) {
	client := &fakeSQS{batches: [][]types.Message{{
		{MessageId: aws.String("1"), ReceiptHandle: aws.String("r1"), Body: aws.String(`{"assetId":"abc"}`)},
		{MessageId: aws.String("2"), ReceiptHandle: aws.String("r2"), Body: aws.String(`not json`)},
		{MessageId: aws.String("3"), ReceiptHandle: aws.String("r3"), Body: aws.String(`{"assetId":""}`)},
	}}}
	r := &recordingRunner{}
	w := NewWorker(client, "https://sqs.example/queue", r, time.Second)

	n, err := w.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"abc"}, r.seen())
	assert.Equal(t, []string{"r1", "r2", "r3"}, client.deleted)
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	client := &fakeSQS{}
	w := NewWorker(client, "q", &recordingRunner{}, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
