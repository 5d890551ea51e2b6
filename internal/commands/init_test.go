package commands_test

import (
	"context"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dinarwallet/wallet/internal/config"
	"github.com/dinarwallet/wallet/internal/devserver"
)

var binaryPath string

func TestMain(m *testing.M) {
	// Build the binary once for all tests.
	tmpDir, err := os.MkdirTemp("", "wallet-test-*")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(tmpDir)

	binaryPath = filepath.Join(tmpDir, "wallet")
	cmd := exec.Command("go", "build", "-o", binaryPath, "../../cmd/wallet")
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		panic("failed to build binary: " + err.Error())
	}

	os.Exit(m.Run())
}

type cli struct {
	home  string
	env   []string
	stdin string
}

func newCLI(t *testing.T, env ...string) *cli {
	t.Helper()
	home := t.TempDir()
	return &cli{home: home, env: append([]string{"WALLET_HOME=" + home}, env...)}
}

func (c *cli) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := exec.Command(binaryPath, args...)
	cmd.Dir = c.home
	cmd.Env = append(cleanEnv(), c.env...)
	if c.stdin != "" {
		cmd.Stdin = strings.NewReader(c.stdin)
	}
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// cleanEnv drops wallet settings inherited from the developer's shell.
func cleanEnv() []string {
	var env []string
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "WALLET_") || strings.Contains(kv, "SUPABASE_") {
			continue
		}
		env = append(env, kv)
	}
	return env
}

func TestInit_WritesDefaultConfig(t *testing.T) {
	c := newCLI(t)
	out, err := c.run(t, "init", "--url", "http://127.0.0.1:9999", "--anon-key", "k")
	require.NoError(t, err, out)

	cfg, err := config.Load(filepath.Join(c.home, config.FileName))
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9999", cfg.Backend.URL)
	assert.Equal(t, "k", cfg.Backend.AnonKey)
	assert.Equal(t, int64(100), cfg.Transfer.MinAmount)
	assert.Equal(t, 5*time.Second, cfg.Transfer.ResetAfter)
}

func TestInit_RefusesOverwrite(t *testing.T) {
	c := newCLI(t)
	_, err := c.run(t, "init")
	require.NoError(t, err)

	out, err := c.run(t, "init")
	require.Error(t, err)
	assert.Contains(t, out, "already exists")

	_, err = c.run(t, "init", "--force")
	assert.NoError(t, err)
}

func TestVersion(t *testing.T) {
	out, err := newCLI(t).run(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "commit:")
}

func TestCommand_RequiresUser(t *testing.T) {
	out, err := newCLI(t).run(t, "balance")
	require.Error(t, err)
	assert.Contains(t, out, "no user")
}

// backendEnv starts a seeded development backend and returns the environment
// that points the CLI at it as the given demo user.
func backendEnv(t *testing.T, email string) []string {
	t.Helper()
	const anon, secret = "test-anon", "test-secret"

	store := devserver.NewMemStore()
	users, err := devserver.Seed(context.Background(), store, devserver.DemoUsers())
	require.NoError(t, err)
	ts := httptest.NewServer(devserver.NewServer(store, devserver.Options{AnonKey: anon, JWTSecret: secret}).Handler())
	t.Cleanup(ts.Close)

	for _, u := range users {
		if u.Email != email {
			continue
		}
		token, err := devserver.IssueToken(secret, u.ID, u.Email, time.Hour)
		require.NoError(t, err)
		return []string{"WALLET_URL=" + ts.URL, "WALLET_ANON_KEY=" + anon, "WALLET_ACCESS_TOKEN=" + token}
	}
	t.Fatalf("no demo user %s", email)
	return nil
}
