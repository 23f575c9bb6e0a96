package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih/bamview-paas/internal/adapters/proxy"
	"github.com/melih/bamview-paas/internal/config"
	"github.com/melih/bamview-paas/internal/core/domain"
)

type fakeContainers struct {
	mu         sync.Mutex
	startCalls int
	stopped    []string
	startErr   error
	startDelay time.Duration
	available  map[string]bool // nil means every image is available
}

func (f *fakeContainers) StartContainer(ctx context.Context, spec domain.LaunchSpec, hostPort int, name string) (string, error) {
	if f.startDelay > 0 {
		time.Sleep(f.startDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return "", f.startErr
	}
	if f.available != nil && !f.available[spec.Image] {
		return "", fmt.Errorf("no such image: %s", spec.Image)
	}
	f.startCalls++
	return fmt.Sprintf("container-%d", f.startCalls), nil
}

func (f *fakeContainers) setStartErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startErr = err
}

func (f *fakeContainers) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startCalls
}

func (f *fakeContainers) StopContainer(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, id)
	return nil
}

func (f *fakeContainers) ContainerRunning(ctx context.Context, id string) (bool, error) {
	return true, nil
}

func (f *fakeContainers) ListContainers(ctx context.Context) ([]domain.Container, error) {
	return nil, nil
}

func (f *fakeContainers) GetContainerLogs(ctx context.Context, id string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("log line\n")), nil
}

type fakeBuilder struct {
	built  []string
	images map[string]bool // built images land here, like in the daemon
	err    error
}

func (f *fakeBuilder) BuildImage(ctx context.Context, repoURL, imageName string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.built = append(f.built, repoURL)
	if f.images != nil {
		f.images[imageName] = true
	}
	return imageName, nil
}

type immediateClock struct{}

func (immediateClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

type staticProber struct{ err error }

func (p staticProber) Probe(context.Context, string) error { return p.err }

func viewerSpec() domain.LaunchSpec {
	return domain.LaunchSpec{
		Plugin:        "bam",
		Image:         "bam-iobio:latest",
		InternalPort:  8080,
		HostPort:      34012,
		URLTemplate:   "${PROXY_URL}/?bam=${BAM_URL}",
		ReadinessPath: "/",
		URLBindings: map[string]string{
			"BAM_URL": "http://localhost/tmp/bamfile.bam",
		},
	}
}

func newTestLauncher(containers *fakeContainers, routes *proxy.Table, prober staticProber) *Launcher {
	return NewLauncher(LauncherOptions{
		Containers: containers,
		Routes:     routes,
		PublicHost: "localhost",
		Readiness:  config.ReadinessConfig{InitialDelay: time.Millisecond, Interval: time.Millisecond, Budget: 3},
		Prober:     prober,
		Clock:      immediateClock{},
	})
}

func TestLaunch_SynthesizesAccessURL(t *testing.T) {
	containers := &fakeContainers{}
	routes := proxy.NewTable()
	launcher := newTestLauncher(containers, routes, staticProber{})

	session, err := launcher.Launch(context.Background(), "s1", viewerSpec())
	require.NoError(t, err)

	assert.Equal(t, "/proxy/s1/?bam=http://localhost/tmp/bamfile.bam", session.AccessURL)
	assert.Equal(t, 34012, session.HostPort)

	binding, ok := routes.Lookup("s1")
	require.True(t, ok)
	assert.Equal(t, "localhost", binding.TargetHost)
	assert.Equal(t, 34012, binding.TargetPort)
}

func TestLaunch_IsIdempotentPerSession(t *testing.T) {
	containers := &fakeContainers{}
	launcher := newTestLauncher(containers, proxy.NewTable(), staticProber{})

	first, err := launcher.Launch(context.Background(), "s1", viewerSpec())
	require.NoError(t, err)
	second, err := launcher.Launch(context.Background(), "s1", viewerSpec())
	require.NoError(t, err)

	assert.Equal(t, first.InstanceID, second.InstanceID)
	assert.Equal(t, 1, containers.startCalls)
}

func TestLaunch_DistinctSessionsGetDistinctInstances(t *testing.T) {
	containers := &fakeContainers{}
	launcher := newTestLauncher(containers, proxy.NewTable(), staticProber{})

	first, err := launcher.Launch(context.Background(), "s1", viewerSpec())
	require.NoError(t, err)
	second, err := launcher.Launch(context.Background(), "s2", viewerSpec())
	require.NoError(t, err)

	assert.NotEqual(t, first.InstanceID, second.InstanceID)
	assert.Equal(t, 2, containers.startCalls)
}

func TestLaunch_ConcurrentDuplicatesShareOutcome(t *testing.T) {
	containers := &fakeContainers{startDelay: 20 * time.Millisecond}
	launcher := newTestLauncher(containers, proxy.NewTable(), staticProber{})

	var wg sync.WaitGroup
	sessions := make([]domain.Session, 2)
	errs := make([]error, 2)
	for i := range sessions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessions[i], errs[i] = launcher.Launch(context.Background(), "s1", viewerSpec())
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, sessions[0].InstanceID, sessions[1].InstanceID)
	assert.Equal(t, 1, containers.calls(), "overlapping launches of one session must start one container")
}

func TestLaunch_RetryAfterFailedLaunch(t *testing.T) {
	containers := &fakeContainers{startErr: errors.New("driver failed")}
	routes := proxy.NewTable()
	launcher := newTestLauncher(containers, routes, staticProber{})

	_, err := launcher.Launch(context.Background(), "s1", viewerSpec())
	var launchErr *domain.LaunchError
	require.ErrorAs(t, err, &launchErr)

	containers.setStartErr(nil)

	session, err := launcher.Launch(context.Background(), "s1", viewerSpec())
	require.NoError(t, err, "a failed launch must not poison the session")
	assert.Equal(t, "container-1", session.InstanceID)

	_, ok := routes.Lookup("s1")
	assert.True(t, ok)
}

func TestLaunch_StartFailureLeavesNoBinding(t *testing.T) {
	containers := &fakeContainers{startErr: errors.New("image not found")}
	routes := proxy.NewTable()
	launcher := newTestLauncher(containers, routes, staticProber{})

	_, err := launcher.Launch(context.Background(), "s1", viewerSpec())

	var launchErr *domain.LaunchError
	require.ErrorAs(t, err, &launchErr)
	assert.Equal(t, "s1", launchErr.SessionID)
	assert.Contains(t, launchErr.Error(), "image not found")

	_, ok := routes.Lookup("s1")
	assert.False(t, ok, "failed launch must not leave a proxy binding")
}

func TestLaunch_TemplateFailureRollsBack(t *testing.T) {
	containers := &fakeContainers{}
	routes := proxy.NewTable()
	launcher := newTestLauncher(containers, routes, staticProber{})

	spec := viewerSpec()
	spec.URLTemplate = "${PROXY_URL}/?bam=${UNBOUND}"

	_, err := launcher.Launch(context.Background(), "s1", spec)

	var tmplErr *domain.TemplateError
	require.ErrorAs(t, err, &tmplErr)
	assert.Equal(t, "UNBOUND", tmplErr.Placeholder)

	_, ok := routes.Lookup("s1")
	assert.False(t, ok, "template failure must unbind the route")
	assert.Equal(t, []string{"container-1"}, containers.stopped, "the started container must be stopped")
}

func TestLaunch_BuildsFromSourceRepo(t *testing.T) {
	containers := &fakeContainers{}
	builder := &fakeBuilder{}
	launcher := NewLauncher(LauncherOptions{
		Containers: containers,
		Builder:    builder,
		Routes:     proxy.NewTable(),
		PublicHost: "localhost",
		Readiness:  config.ReadinessConfig{Budget: 1},
		Prober:     staticProber{},
		Clock:      immediateClock{},
	})

	spec := viewerSpec()
	spec.SourceRepo = "https://example.com/bam-viewer.git"

	_, err := launcher.Launch(context.Background(), "s1", spec)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/bam-viewer.git"}, builder.built)
}

func TestLaunch_StartsFromBuiltImage(t *testing.T) {
	// The built image exists only in the local daemon; starting the
	// container must succeed off the build result alone.
	images := map[string]bool{}
	containers := &fakeContainers{available: images}
	builder := &fakeBuilder{images: images}
	launcher := NewLauncher(LauncherOptions{
		Containers: containers,
		Builder:    builder,
		Routes:     proxy.NewTable(),
		PublicHost: "localhost",
		Readiness:  config.ReadinessConfig{Budget: 1},
		Prober:     staticProber{},
		Clock:      immediateClock{},
	})

	spec := viewerSpec()
	spec.Image = "bamview/bam:latest"
	spec.SourceRepo = "https://example.com/bam-viewer.git"

	session, err := launcher.Launch(context.Background(), "s1", spec)
	require.NoError(t, err)
	assert.NotEmpty(t, session.InstanceID)
	assert.Equal(t, []string{"https://example.com/bam-viewer.git"}, builder.built)
}

func TestLaunch_ReadinessReachesReady(t *testing.T) {
	containers := &fakeContainers{}
	launcher := newTestLauncher(containers, proxy.NewTable(), staticProber{})

	_, err := launcher.Launch(context.Background(), "s1", viewerSpec())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		session, err := launcher.Get("s1")
		return err == nil && session.Readiness == domain.ReadinessReady
	}, time.Second, 5*time.Millisecond)
}

func TestLaunch_ReadinessTimesOut(t *testing.T) {
	containers := &fakeContainers{}
	launcher := newTestLauncher(containers, proxy.NewTable(), staticProber{err: errors.New("connection refused")})

	_, err := launcher.Launch(context.Background(), "s1", viewerSpec())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		session, err := launcher.Get("s1")
		return err == nil && session.Readiness == domain.ReadinessTimedOut
	}, time.Second, 5*time.Millisecond)
}

func TestStop_RemovesSessionAndBinding(t *testing.T) {
	containers := &fakeContainers{}
	routes := proxy.NewTable()
	launcher := newTestLauncher(containers, routes, staticProber{})

	session, err := launcher.Launch(context.Background(), "s1", viewerSpec())
	require.NoError(t, err)

	require.NoError(t, launcher.Stop(context.Background(), "s1"))

	_, ok := routes.Lookup("s1")
	assert.False(t, ok)
	assert.Contains(t, containers.stopped, session.InstanceID)

	_, err = launcher.Get("s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.ErrorIs(t, launcher.Stop(context.Background(), "s1"), ErrSessionNotFound)
}

func TestList(t *testing.T) {
	launcher := newTestLauncher(&fakeContainers{}, proxy.NewTable(), staticProber{})

	_, err := launcher.Launch(context.Background(), "s1", viewerSpec())
	require.NoError(t, err)
	_, err = launcher.Launch(context.Background(), "s2", viewerSpec())
	require.NoError(t, err)

	assert.Len(t, launcher.List(), 2)
}

func TestLogs(t *testing.T) {
	launcher := newTestLauncher(&fakeContainers{}, proxy.NewTable(), staticProber{})

	_, err := launcher.Launch(context.Background(), "s1", viewerSpec())
	require.NoError(t, err)

	logs, err := launcher.Logs(context.Background(), "s1")
	require.NoError(t, err)
	defer logs.Close()

	data, err := io.ReadAll(logs)
	require.NoError(t, err)
	assert.Equal(t, "log line\n", string(data))
}
