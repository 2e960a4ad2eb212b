package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"studio/internal/entity"
	sqlrepo "studio/internal/model/sql"
	"studio/internal/provider"
	"studio/internal/storage"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestRepo(t *testing.T) *sqlrepo.GormRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&entity.DbUser{},
		&entity.DbGeneration{},
		&entity.DbCreditTransaction{},
		&entity.DbFirstGeneration{},
	))
	return sqlrepo.NewGormRepository(db)
}

func seedGeneration(t *testing.T, repo *sqlrepo.GormRepository, g *entity.DbGeneration) *entity.DbGeneration {
	t.Helper()
	if g.Status == "" {
		g.Status = entity.GenerationStatusGenerating
	}
	require.NoError(t, repo.CreateGeneration(context.Background(), g))
	return g
}

func mustGet(t *testing.T, repo *sqlrepo.GormRepository, id string) *entity.DbGeneration {
	t.Helper()
	g, err := repo.GetGeneration(context.Background(), id)
	require.NoError(t, err)
	return g
}

// memStore 内存对象存储
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	puts    int
	failPut error
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memStore) Put(_ context.Context, key string, data []byte, opts storage.PutOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut != nil {
		return m.failPut
	}
	m.puts++
	m.objects[key] = append([]byte(nil), data...)
	m.types[key] = opts.ContentType
	return nil
}

func (m *memStore) PublicURL(key string) string {
	return "/files/" + key
}

func (m *memStore) object(key string) ([]byte, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return data, m.types[key], ok
}

func (m *memStore) putCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}

// scriptedFetcher answers status queries from a fixed table.
type scriptedFetcher struct {
	status *provider.TaskStatus
	err    error

	recordCalls atomic.Int32
	videoCalls  atomic.Int32
	lastModel   atomic.Value
}

func (f *scriptedFetcher) FetchRecord(_ context.Context, _ string) (*provider.TaskStatus, error) {
	f.recordCalls.Add(1)
	return f.answer()
}

func (f *scriptedFetcher) FetchVideo(_ context.Context, _ string, modelID string) (*provider.TaskStatus, error) {
	f.videoCalls.Add(1)
	f.lastModel.Store(modelID)
	return f.answer()
}

func (f *scriptedFetcher) answer() (*provider.TaskStatus, error) {
	if f.err != nil {
		return nil, f.err
	}
	copied := *f.status
	return &copied, nil
}

// recordingNotifier 记录收到的通知
type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, msg Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.err
}

func (n *recordingNotifier) all() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.sent...)
}

type failingMaterializer struct{}

func (failingMaterializer) Materialize(context.Context, MaterializeRequest) (*MaterializedAsset, error) {
	return nil, errors.New("bucket unavailable")
}

// stubFrames is a FrameExtractor returning canned bytes.
type stubFrames struct {
	poster    []byte
	posterErr error
	clip      []byte
	clipErr   error
}

func (s stubFrames) Poster(context.Context, string, int) ([]byte, error) {
	return s.poster, s.posterErr
}

func (s stubFrames) Clip(context.Context, string, int, int) ([]byte, error) {
	return s.clip, s.clipErr
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.RGBA{B: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// assetServer serves body with contentType on every path and counts requests.
func assetServer(t *testing.T, contentType string, body []byte) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}
