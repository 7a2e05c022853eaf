package app

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"recon/internal/datahive/models"
	"recon/internal/datahive/query"
	"recon/internal/datahive/store"
	"recon/internal/platform/config"
	"recon/internal/suspension/mocks"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeKey(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "rsa_key.pem")
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))
	return path
}

func TestNewWithMemoryBackends(t *testing.T) {
	cfg := config.FromEnv()
	cfg.DataHive.BaseURL = "https://account.example.com"
	cfg.DataHive.Account = "acme"
	cfg.DataHive.User = "recon"
	cfg.DataHive.PrivateKeyPath = writeKey(t)
	cfg.Suspension.BaseURL = "http://suspension.local"

	a, err := New(context.Background(), cfg, discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.NotNil(t, a.Job)
	assert.NotNil(t, a.Runs)
	assert.Empty(t, a.Checks, "no remote dependencies to probe")
}

func TestNewRequiresPrivateKey(t *testing.T) {
	cfg := config.FromEnv()
	cfg.DataHive.BaseURL = "https://account.example.com"

	_, err := New(context.Background(), cfg, discard())
	assert.ErrorContains(t, err, "private key")
}

func TestNewRequiresSuspensionURL(t *testing.T) {
	cfg := config.FromEnv()
	empty := query.ClientFunc(func(context.Context, string) ([]query.RawRow, error) { return nil, nil })

	_, err := New(context.Background(), cfg, discard(), WithQueryClient(empty))
	assert.Error(t, err)
}

func TestRunThroughWiredJob(t *testing.T) {
	cfg := config.FromEnv()
	var statements atomic.Int32
	qc := query.ClientFunc(func(context.Context, string) ([]query.RawRow, error) {
		statements.Add(1)
		return nil, nil
	})
	mem := store.NewMemoryStore()

	a, err := New(context.Background(), cfg, discard(),
		WithQueryClient(qc),
		WithStatusClient(mocks.NewMockApplier(gomock.NewController(t))),
		WithStore(mem),
	)
	require.NoError(t, err)

	summary, err := a.Job.Run(context.Background(), models.ClassNRIC, []models.Notice{
		{Pair: models.Pair{Identifier: "S1234567A", CaseReference: "N1"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Applied)
	assert.Positive(t, statements.Load())

	got, err := a.Runs.Get(context.Background(), summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, summary.RunID, got.RunID)
}
