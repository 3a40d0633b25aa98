package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"readalong/internal/apperr"
	"readalong/internal/auth"
	"readalong/internal/database"
	"readalong/internal/grading"
	"readalong/internal/handlers"
	"readalong/internal/models"
	"readalong/internal/reading"
	"readalong/internal/realtime"
	"readalong/internal/repository"
	"readalong/internal/security"
	"readalong/internal/service"
	"readalong/internal/turn"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("READALONG_CONFIG", "")
	t.Setenv("READALONG_TOKEN_FILE", filepath.Join(dir, "token.toml"))
	t.Setenv("READALONG_AUDIO_DIR", filepath.Join(dir, "speech"))
	t.Setenv("CONTENT_PATH", "")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("READALONG_PASSWORD", "")
	return dir
}

func executeCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	log := zerolog.Nop()

	db, err := database.Initialize(ctx, filepath.Join(t.TempDir(), "cli.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	srv := httptest.NewServer(handlers.NewRouter(handlers.Deps{
		Auth: service.NewAuthService(
			repository.NewUserRepository(db),
			auth.NewTokenIssuer("cli-secret", time.Hour),
			nil, nil, log,
		),
		Profiles: service.NewProfileService(db, nil, nil, log),
		Hub:      realtime.NewHub(log),
		Limiter:  security.NewRateLimiter(100, time.Minute),
		Logger:   log,
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPassagesAndCode(t *testing.T) {
	isolate(t)

	out, err := executeCLI(t, "passages")
	require.NoError(t, err)
	assert.Contains(t, out, "peer-reading")
	assert.Contains(t, out, "The Jungle Adventure")

	out, err = executeCLI(t, "passages", "--theme", "friends")
	require.NoError(t, err)
	assert.Contains(t, out, "The Friendship Tale")
	assert.NotContains(t, out, "peer-reading")

	out, err = executeCLI(t, "code")
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[1-9][0-9]{5}\n$`), out)
}

func TestAccountCommands(t *testing.T) {
	isolate(t)
	srv := newServer(t)

	out, err := executeCLI(t, "--server", srv.URL, "signup", "--email", "maya@example.com", "--name", "Maya", "--password", "password123")
	require.NoError(t, err)
	assert.Contains(t, out, "Welcome, Maya!")

	_, err = executeCLI(t, "--server", srv.URL, "whoami")
	assert.ErrorIs(t, err, errNotLoggedIn)

	_, err = executeCLI(t, "--server", srv.URL, "login", "--email", "maya@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password required")

	t.Setenv("READALONG_PASSWORD", "password123")
	out, err = executeCLI(t, "--server", srv.URL, "login", "--email", "maya@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as Maya.")

	out, err = executeCLI(t, "--server", srv.URL, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "maya@example.com")
	assert.Regexp(t, `score:\s+0`, out)

	out, err = executeCLI(t, "--server", srv.URL, "profile", "--avatar", "bear", "--age", "7")
	require.NoError(t, err)
	assert.Regexp(t, `avatar:\s+bear`, out)
	assert.Regexp(t, `age:\s+7`, out)

	_, err = executeCLI(t, "--server", srv.URL, "profile")
	assert.Error(t, err)

	out, err = executeCLI(t, "--server", srv.URL, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No reading sessions yet.")

	_, err = executeCLI(t, "--server", srv.URL, "logout")
	require.NoError(t, err)
	_, err = executeCLI(t, "--server", srv.URL, "whoami")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestListen(t *testing.T) {
	dir := isolate(t)
	speech := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("mp3:" + r.URL.Query().Get("q")))
	}))
	defer speech.Close()
	t.Setenv("SPEECH_URL", speech.URL)

	out, err := executeCLI(t, "listen", "peer-reading", "2")
	require.NoError(t, err)
	path := strings.TrimSpace(out)
	assert.True(t, strings.HasPrefix(path, filepath.Join(dir, "speech")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "mp3:Let's practice our reading skills together.", string(data))

	_, err = executeCLI(t, "listen", "peer-reading", "9")
	assert.Error(t, err)

	out, err = executeCLI(t, "listen", "peer-reading", "--all")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 4)
}

func TestJoinRejectsBadCode(t *testing.T) {
	isolate(t)
	_, err := executeCLI(t, "join", "12ab56")
	assert.Error(t, err)
}

func TestClipFor(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2.m4a"), []byte("x"), 0o644))

	assert.Equal(t, filepath.Join(dir, "2.m4a"), clipFor(dir, 1))
	assert.Equal(t, filepath.Join(dir, "1.wav"), clipFor(dir, 0))
}

type memoryProfiles struct {
	mu     sync.Mutex
	scores map[string]int
}

func (m *memoryProfiles) GetScore(_ context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scores[id], nil
}

func (m *memoryProfiles) UpdateScore(_ context.Context, id string, score int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores[id] = score
	return nil
}

func (m *memoryProfiles) score(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scores[id]
}

var (
	hostReader = models.Participant{ID: "host-1", DisplayName: "Maya", Role: models.RoleHost}
	peerReader = models.Participant{ID: "peer-1", DisplayName: "Sam", Role: models.RolePeer}
)

func newReadingSession(t *testing.T, transport realtime.Transport, profiles *memoryProfiles, self models.Participant) *reading.Session {
	t.Helper()
	rs, err := reading.New(reading.Config{
		SessionCode:   "135790",
		Self:          self,
		Sentences:     []string{"The cat sat.", "The dog ran."},
		SettleDelay:   10 * time.Millisecond,
		LeaveDebounce: 80 * time.Millisecond,
		MaxRecording:  time.Minute,
	}, reading.Deps{
		Transport: transport,
		Recorder:  &grading.FakeRecorder{Clip: grading.Clip{Data: []byte("pcm")}},
		Grader:    &grading.FakeGrader{Results: []models.AttemptResult{{Grade: 1}}},
		Profiles:  profiles,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	return rs
}

func TestPlayReadsPassageAndSavesPoints(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	transport := realtime.NewLocal(realtime.NewHub(zerolog.Nop()))
	profiles := &memoryProfiles{scores: map[string]int{"host-1": 4}}
	host := newReadingSession(t, transport, profiles, hostReader)
	peer := newReadingSession(t, transport, profiles, peerReader)

	in, input := io.Pipe()
	defer input.Close()
	var out bytes.Buffer
	played := make(chan error, 1)
	go func() { played <- play(ctx, in, &out, host, nil) }()

	peerEnded := make(chan reading.Ending, 1)
	go func() {
		ending, _ := peer.Run(ctx)
		peerEnded <- ending
	}()

	require.Eventually(t, host.IsMyTurn, 2*time.Second, 5*time.Millisecond)
	_, err := fmt.Fprint(input, "read\nstop\n")
	require.NoError(t, err)

	require.Eventually(t, peer.IsMyTurn, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, peer.StartAttempt(ctx))
	require.NoError(t, peer.StopAttempt(ctx))

	select {
	case err := <-played:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("play did not return")
	}
	assert.Equal(t, reading.EndCompleted, <-peerEnded)

	text := out.String()
	assert.Contains(t, text, "Sam joined the session.")
	assert.Contains(t, text, "Sentence 1/2: The cat sat.")
	assert.Contains(t, text, "Your turn!")
	assert.Contains(t, text, "+10 points")
	assert.Contains(t, text, "Waiting for Sam to read.")
	assert.Contains(t, text, "All sentences read!")
	assert.Contains(t, text, "You scored 10 points.")
	assert.Contains(t, text, "Your points were added to your profile.")
	assert.Equal(t, 14, profiles.score("host-1"))
}

func TestPlayQuitNotifiesPartner(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	transport := realtime.NewLocal(realtime.NewHub(zerolog.Nop()))
	profiles := &memoryProfiles{scores: map[string]int{}}
	host := newReadingSession(t, transport, profiles, hostReader)
	peer := newReadingSession(t, transport, profiles, peerReader)

	in, input := io.Pipe()
	defer input.Close()
	var out bytes.Buffer
	played := make(chan error, 1)
	go func() { played <- play(ctx, in, &out, host, nil) }()

	peerEnded := make(chan reading.Ending, 1)
	go func() {
		ending, _ := peer.Run(ctx)
		peerEnded <- ending
	}()

	require.Eventually(t, host.IsMyTurn, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		phase, _ := peer.Turn()
		return phase == turn.Active
	}, 2*time.Second, 5*time.Millisecond, "peer never saw the first turn")

	_, err := fmt.Fprint(input, "skip\nread\nbogus\nquit\n")
	require.NoError(t, err)

	select {
	case err := <-played:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("play did not return")
	}
	assert.Equal(t, reading.EndPeerLeft, <-peerEnded)

	text := out.String()
	assert.Contains(t, text, "It's not your turn yet.")
	assert.Contains(t, text, `Unknown command "bogus"`)
	assert.Contains(t, text, "You left the session.")
	assert.Equal(t, 0, profiles.score("host-1"))
}

type deniedProfiles struct{}

func (deniedProfiles) GetScore(context.Context, string) (int, error) {
	return 0, fmt.Errorf("GET profile: %w", apperr.ErrForbidden)
}

func (deniedProfiles) UpdateScore(context.Context, string, int) error {
	return apperr.ErrForbidden
}

func TestFinishStopsOnAuthorizationErrors(t *testing.T) {
	rs, err := reading.New(reading.Config{
		SessionCode: "135790",
		Self:        models.Participant{ID: "user-1", Role: models.RoleHost},
		Sentences:   []string{"The cat sat."},
	}, reading.Deps{
		Transport: realtime.NewLocal(realtime.NewHub(zerolog.Nop())),
		Profiles:  deniedProfiles{},
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)

	var out bytes.Buffer
	lines := make(chan string)
	done := make(chan error, 1)
	go func() {
		done <- finish(context.Background(), &out, rs, runResult{ending: reading.EndCompleted}, lines)
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, apperr.ErrForbidden)
		assert.NotContains(t, out.String(), "try again")
	case <-time.After(time.Second):
		t.Fatal("finish kept prompting after a forbidden write")
	}
}
