package proxmox

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtwarden/virtwarden/internal/boundaries/out"
	"github.com/virtwarden/virtwarden/internal/domain"
)

func testSession(srv *httptest.Server) out.Session {
	return out.Session{Ticket: "TICKET", CSRFToken: "CSRF", APIURL: srv.URL}
}

func TestAuthenticate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api2/json/access/ticket", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "backup@pve", r.PostForm.Get("username"))
		assert.Equal(t, "secret", r.PostForm.Get("password"))
		w.Write([]byte(`{"data":{"ticket":"TICKET","CSRFPreventionToken":"CSRF"}}`))
	}))
	defer srv.Close()

	client := NewClient()
	sess, err := client.Authenticate(context.Background(), domain.ClusterCredentials{
		APIURL:   srv.URL,
		Username: "backup@pve",
		Password: "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "TICKET", sess.Ticket)
	assert.Equal(t, "CSRF", sess.CSRFToken)
	assert.Equal(t, srv.URL, sess.APIURL)
}

func TestAuthenticateRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewClient().Authenticate(context.Background(), domain.ClusterCredentials{APIURL: srv.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestSubmitBackup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api2/json/nodes/pve1/vzdump", r.URL.Path)
		assert.Equal(t, "CSRF", r.Header.Get("CSRFPreventionToken"))
		cookie, err := r.Cookie("PVEAuthCookie")
		require.NoError(t, err)
		assert.Equal(t, "TICKET", cookie.Value)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "101", r.PostForm.Get("vmid"))
		assert.Equal(t, "zstd", r.PostForm.Get("compress"))
		assert.Equal(t, "snapshot", r.PostForm.Get("mode"))
		assert.Equal(t, "local", r.PostForm.Get("storage"))

		w.Write([]byte(`{"data":"UPID:pve1:0000C530:vzdump:101"}`))
	}))
	defer srv.Close()

	taskID, err := NewClient().SubmitBackup(context.Background(), testSession(srv), "pve1", 101, domain.BackupOptions{
		Compression: "zstd",
		Mode:        "snapshot",
		Storage:     "local",
	})
	require.NoError(t, err)
	assert.Equal(t, "UPID:pve1:0000C530:vzdump:101", taskID)
}

func TestSubmitBackupRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "storage 'local' does not exist", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewClient().SubmitBackup(context.Background(), testSession(srv), "pve1", 101, domain.BackupOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage 'local' does not exist")
}

func TestSubmitAction(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"data":"UPID:pve1:qmstop:101"}`))
	}))
	defer srv.Close()

	client := NewClient()
	taskID, err := client.SubmitAction(context.Background(), testSession(srv), "pve1", 101, domain.ActionStop)
	require.NoError(t, err)
	assert.Equal(t, "UPID:pve1:qmstop:101", taskID)
	assert.Equal(t, "/api2/json/nodes/pve1/qemu/101/status/stop", gotPath)

	_, err = client.SubmitAction(context.Background(), testSession(srv), "pve1", 101, domain.ActionSnapshot)
	require.NoError(t, err)
	assert.Equal(t, "/api2/json/nodes/pve1/qemu/101/snapshot", gotPath)

	_, err = client.SubmitAction(context.Background(), testSession(srv), "pve1", 101, domain.ActionKind("reboot"))
	assert.Error(t, err)
}

func TestPollStatus(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected out.TaskStatus
	}{
		{
			name:     "running",
			body:     `{"data":{"status":"running"}}`,
			expected: out.TaskStatus{Terminal: false},
		},
		{
			name:     "stopped ok",
			body:     `{"data":{"status":"stopped","exitstatus":"OK"}}`,
			expected: out.TaskStatus{Terminal: true, Success: true, ExitStatus: "OK"},
		},
		{
			name:     "stopped with error",
			body:     `{"data":{"status":"stopped","exitstatus":"job errors"}}`,
			expected: out.TaskStatus{Terminal: true, Success: false, ExitStatus: "job errors"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api2/json/nodes/pve1/tasks/UPID:x/status", r.URL.Path)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			status, err := NewClient().PollStatus(context.Background(), testSession(srv), "pve1", "UPID:x")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, status)
		})
	}
}
