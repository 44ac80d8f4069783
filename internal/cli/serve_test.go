package cli

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/themizzi/sitetest/internal/config"
	"github.com/themizzi/sitetest/internal/logging"
)

func mockSite(response string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(response + " " + r.URL.Path))
	})
}

func createTestDeps(port string) ServerDependencies {
	return ServerDependencies{
		ServerConfig: config.ServerConfig{Port: port},
		Site:         mockSite("site"),
		Logger:       logging.Discard(),
	}
}

func startTestServer(t *testing.T, deps ServerDependencies) (*http.Server, int) {
	t.Helper()
	listener, server, err := StartServer(deps)
	require.NoError(t, err)
	t.Cleanup(func() {
		server.Close()
		listener.Close()
	})
	return server, listener.Addr().(*net.TCPAddr).Port
}

func httpGet(t *testing.T, url string) (string, int) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return string(body), resp.StatusCode
}

func TestStartServer_ServesEveryPath(t *testing.T) {
	// GIVEN
	_, port := startTestServer(t, createTestDeps("0"))

	// WHEN / THEN
	for _, path := range []string{"/", "/user/login", "/simpletest/hello"} {
		body, status := httpGet(t, fmt.Sprintf("http://localhost:%d%s", port, path))
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "site "+path, body)
	}
}

func TestStartServer_Errors(t *testing.T) {
	inUse, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer inUse.Close()

	tests := []struct {
		name string
		deps ServerDependencies
	}{
		{"invalid port", createTestDeps("99999")},
		{"port in use", createTestDeps(fmt.Sprint(inUse.Addr().(*net.TCPAddr).Port))},
		{"no site", ServerDependencies{ServerConfig: config.ServerConfig{Port: "0"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			listener, server, err := StartServer(tt.deps)
			if err == nil {
				listener.Close()
				server.Close()
			}
			assert.Error(t, err)
		})
	}
}

func TestWaitForShutdown_Signals(t *testing.T) {
	for _, sig := range []os.Signal{syscall.SIGTERM, syscall.SIGINT} {
		t.Run(sig.String(), func(t *testing.T) {
			// GIVEN
			server, port := startTestServer(t, createTestDeps("0"))
			shutdown := make(chan os.Signal, 1)
			errCh := make(chan error, 1)
			go func() {
				errCh <- WaitForShutdownWithTimeout(server, shutdown, time.Second, logging.Discard())
			}()

			// WHEN
			shutdown <- sig

			// THEN
			select {
			case err := <-errCh:
				assert.NoError(t, err)
			case <-time.After(5 * time.Second):
				t.Fatal("WaitForShutdown did not complete")
			}
			_, err := http.Get(fmt.Sprintf("http://localhost:%d/", port))
			assert.Error(t, err, "server still responding after shutdown")
		})
	}
}

func TestWaitForShutdown_LetsActiveRequestsFinish(t *testing.T) {
	// GIVEN
	deps := createTestDeps("0")
	deps.Site = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.Write([]byte("done"))
	})
	server, port := startTestServer(t, deps)

	responses := make(chan string, 1)
	go func() {
		resp, err := http.Get(fmt.Sprintf("http://localhost:%d/", port))
		if err != nil {
			responses <- err.Error()
			return
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		responses <- string(body)
	}()
	time.Sleep(50 * time.Millisecond)

	// WHEN
	shutdown := make(chan os.Signal, 1)
	shutdown <- syscall.SIGTERM
	err := WaitForShutdownWithTimeout(server, shutdown, 5*time.Second, logging.Discard())

	// THEN
	require.NoError(t, err)
	select {
	case body := <-responses:
		assert.Equal(t, "done", body)
	case <-time.After(2 * time.Second):
		t.Error("Request did not complete in time")
	}
}

func TestWaitForShutdown_ForcesCloseAfterTimeout(t *testing.T) {
	// GIVEN
	deps := createTestDeps("0")
	release := make(chan struct{})
	deps.Site = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	})
	server, port := startTestServer(t, deps)
	defer close(release)

	go http.Get(fmt.Sprintf("http://localhost:%d/", port))
	time.Sleep(50 * time.Millisecond)

	// WHEN
	shutdown := make(chan os.Signal, 1)
	shutdown <- syscall.SIGTERM
	err := WaitForShutdownWithTimeout(server, shutdown, time.Nanosecond, logging.Discard())

	// THEN
	assert.NoError(t, err, "http.Server.Close does not propagate listener errors")
}

func TestRunServe_StopsOnSignal(t *testing.T) {
	// GIVEN
	errCh := make(chan error, 1)
	go func() {
		errCh <- RunServe(createTestDeps("0"))
	}()
	time.Sleep(100 * time.Millisecond)

	// WHEN
	p, err := os.FindProcess(os.Getpid())
	require.NoError(t, err)
	require.NoError(t, p.Signal(syscall.SIGTERM))

	// THEN
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Server did not shut down within timeout")
	}
}

func TestRunServe_StartupFailure(t *testing.T) {
	assert.Error(t, RunServe(createTestDeps("99999")))
}

func TestBuildServerDependencies(t *testing.T) {
	// GIVEN
	root := t.TempDir()
	cfg := &config.HarnessConfig{
		SandboxRoot:  filepath.Join(root, "simpletest"),
		OriginalSite: filepath.Join(root, "default"),
		Storage: config.StorageConfig{
			Driver: "sqlite",
			DSN:    config.SQLiteDSN(filepath.Join(root, "sitetest.sqlite")),
		},
	}

	// WHEN
	deps, err := BuildServerDependencies(cfg, config.ServerConfig{Port: "0"}, logging.Discard())
	require.NoError(t, err)
	_, port := startTestServer(t, deps)

	// THEN
	_, status := httpGet(t, fmt.Sprintf("http://localhost:%d/", port))
	assert.Equal(t, http.StatusServiceUnavailable, status, "the default site is not installed")
}

func BenchmarkStartServer(b *testing.B) {
	deps := createTestDeps("0")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		listener, server, err := StartServer(deps)
		if err != nil {
			b.Fatalf("Failed to start server: %v", err)
		}
		server.Close()
		listener.Close()
	}
}

func TestStartServer_ShutdownWithContext(t *testing.T) {
	server, port := startTestServer(t, createTestDeps("0"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Shutdown(ctx))

	_, err := http.Get(fmt.Sprintf("http://localhost:%d/", port))
	assert.Error(t, err)
}
