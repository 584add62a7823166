package contract

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultContract(t *testing.T) {
	c := Default()

	assert.Equal(t, []string{"title", "narrative", "needs", "fit", "hooks"}, c.SectionNames())
	assert.Equal(t, 3, c.Attempts())
	assert.Equal(t, 95, c.Scoring.Threshold)
	assert.Equal(t, time.Second, c.Generation.RetryDelay)
	assert.Equal(t, int64(2000), c.Generation.MaxTokens)
	assert.InDelta(t, 0.3, c.Generation.Temperature, 1e-9)
	assert.Contains(t, c.Forbidden, "holding space")

	narrative, ok := c.Section("narrative")
	require.True(t, ok)
	assert.Equal(t, Range{Min: 100, Max: 150}, narrative.Words)
	assert.Contains(t, narrative.AllMarkers(), "**PERSONA:**")

	hooks, ok := c.Section("hooks")
	require.True(t, ok)
	require.True(t, hooks.IsList())
	assert.Equal(t, 3, hooks.List.Expected)
}

func TestDefaultReturnsIndependentCopies(t *testing.T) {
	a := Default()
	b := Default()
	a.Forbidden[0] = "changed"
	assert.NotEqual(t, a.Forbidden[0], b.Forbidden[0])
}

func TestRange(t *testing.T) {
	r := Range{Min: 45, Max: 60}
	assert.True(t, r.Contains(45))
	assert.True(t, r.Contains(60))
	assert.False(t, r.Contains(44))
	assert.False(t, r.Contains(61))
	assert.Equal(t, "45-60", r.String())

	assert.True(t, Range{}.Contains(1000))
	assert.Equal(t, "at least 3", Range{Min: 3}.String())
	assert.True(t, Range{}.IsZero())
}

func TestParseRejectsInvalidContracts(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "no sections",
			yaml: "version: x\n",
			want: "no sections declared",
		},
		{
			name: "duplicate marker",
			yaml: `
version: x
sections:
  - {name: a, marker: "A:"}
  - {name: b, marker: "a:"}
`,
			want: "used by both",
		},
		{
			name: "inverted range",
			yaml: `
version: x
sections:
  - {name: a, marker: "A:", words: {min: 10, max: 5}}
`,
			want: "invalid word range",
		},
		{
			name: "list without count",
			yaml: `
version: x
sections:
  - {name: hooks, marker: "H:", list: {item_marker: "- "}}
`,
			want: "positive expected item count",
		},
		{
			name: "threshold out of range",
			yaml: `
version: x
sections:
  - {name: a, marker: "A:"}
scoring: {threshold: 120}
`,
			want: "threshold 120",
		},
		{
			name: "fallback for unknown section",
			yaml: `
version: x
sections:
  - {name: a, marker: "A:"}
fallbacks: {b: text}
`,
			want: "unknown section",
		},
		{
			name: "unknown key",
			yaml: `
version: x
sectons: []
`,
			want: "sectons",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(`
version: min
sections:
  - {name: a, marker: "A:"}
  - {name: items, marker: "I:", list: {expected: 2}}
`))
	require.NoError(t, err)
	assert.Equal(t, 95, c.Scoring.Threshold)
	assert.Equal(t, 10, c.Scoring.StructuralPenalty)
	assert.Equal(t, 15, c.Scoring.ContentPenalty)
	assert.Equal(t, 5, c.Scoring.WarningPenalty)
	assert.Equal(t, "- ", c.Sections[1].List.ItemMarker)
	assert.Equal(t, 1, c.Attempts())
}

func TestMarshalRoundTrip(t *testing.T) {
	data, err := Marshal(Default())
	require.NoError(t, err)

	c, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoaderFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contract.yaml")
	require.NoError(t, os.WriteFile(path, DefaultYAML(), 0644))

	c, err := Loader{}.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "2025.3", c.Version)

	_, err = Loader{}.Load(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

type fakeS3 struct {
	calls  int
	bucket string
	key    string
	body   []byte
	err    error
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.calls++
	f.bucket = *in.Bucket
	f.key = *in.Key
	if f.err != nil {
		return nil, f.err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(f.body))}, nil
}

func TestLoaderS3(t *testing.T) {
	fake := &fakeS3{body: DefaultYAML()}
	c, err := Loader{S3: fake}.Load(context.Background(), "s3://contracts/persona/v3.yaml")
	require.NoError(t, err)
	assert.Equal(t, "contracts", fake.bucket)
	assert.Equal(t, "persona/v3.yaml", fake.key)
	assert.Equal(t, "ideal-client-persona", c.Name)

	_, err = Loader{}.Load(context.Background(), "s3://contracts/x.yaml")
	assert.ErrorContains(t, err, "requires AWS credentials")

	_, err = Loader{S3: fake}.Load(context.Background(), "s3://only-bucket")
	assert.ErrorContains(t, err, "invalid S3 contract URI")

	_, err = Loader{S3: &fakeS3{err: errors.New("denied")}}.Load(context.Background(), "s3://b/k")
	assert.ErrorContains(t, err, "denied")
}

func TestCacheReusesAndExpires(t *testing.T) {
	fake := &fakeS3{body: DefaultYAML()}
	cache, err := NewCache(Loader{S3: fake}, 4, time.Minute)
	require.NoError(t, err)

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	ctx := context.Background()
	first, err := cache.Get(ctx, "s3://b/k")
	require.NoError(t, err)
	second, err := cache.Get(ctx, "s3://b/k")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, fake.calls)

	now = now.Add(2 * time.Minute)
	_, err = cache.Get(ctx, "s3://b/k")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.calls)
	assert.Equal(t, 1, cache.Len())
}

type gatedS3 struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedS3) GetObject(ctx context.Context, _ *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	g.calls.Add(1)
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(DefaultYAML()))}, nil
}

func TestCacheSlowLoadDoesNotBlockHits(t *testing.T) {
	gate := &gatedS3{started: make(chan struct{}), release: make(chan struct{})}
	cache, err := NewCache(Loader{S3: gate}, 4, time.Minute)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = cache.Get(ctx, DefaultSource)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*Contract, 3)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := cache.Get(ctx, "s3://b/slow.yaml")
			assert.NoError(t, err)
			results[i] = c
		}(i)
	}
	<-gate.started

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := cache.Get(ctx, DefaultSource)
		assert.NoError(t, err)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cached Get blocked behind a slow load")
	}

	close(gate.release)
	wg.Wait()
	assert.Equal(t, int32(1), gate.calls.Load())
	assert.Same(t, results[0], results[1])
	assert.Same(t, results[1], results[2])
}
