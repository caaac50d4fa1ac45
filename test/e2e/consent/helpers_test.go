package consent_test

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/aussiebroadwan/consent/internal/consent/remote"
	"github.com/aussiebroadwan/consent/pkg/cryptox"
	"github.com/aussiebroadwan/consent/pkg/jwtx"
)

/*
 * Common constants and helper functions for consent service end-to-end tests.
 * The service image is built once; each test gets its own container seeded
 * from cmd/consent/seed.example.json.
 */

const (
	testImageName = "consent-service-test:latest"

	testIssuer = "https://auth.e2e.test"
	testKeyID  = "e2e-key"
)

// TestMain builds the Docker image once before all tests and removes it
// afterwards. Under -short nothing is built and every test skips.
func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	fmt.Fprintf(os.Stdout, "Building Consent Service Docker image...")
	if err := buildDockerImage(); err != nil {
		fmt.Fprintf(os.Stderr, "\nFailed to build Docker image: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, " done\n")

	exitCode := m.Run()

	fmt.Fprintf(os.Stdout, "Cleaning up Consent Service Docker image...")
	cleanupDockerImage()
	fmt.Fprintf(os.Stdout, " done\n")

	os.Exit(exitCode)
}

func skipShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("e2e: needs docker")
	}
}

func buildDockerImage() error {
	cmd := exec.CommandContext(context.Background(), "docker", "build",
		"-t", testImageName,
		"-f", "../../../cmd/consent/Dockerfile",
		"../../../")
	cmd.Stdout = os.Stdout
	return cmd.Run()
}

func cleanupDockerImage() {
	cmd := exec.CommandContext(context.Background(), "docker", "rmi", "-f", testImageName)
	_ = cmd.Run() // image might not exist
}

type consentService struct {
	baseURL string
	signer  *jwtx.Signer
}

// setupConsentContainer starts the service with a fresh signing key whose
// public half is mounted into the container.
func setupConsentContainer(t *testing.T) *consentService {
	t.Helper()
	skipShort(t)
	ctx := context.Background()

	priv, pub, err := cryptox.GenerateEd25519Key()
	require.NoError(t, err)
	signer, err := jwtx.NewSigner(testKeyID, priv)
	require.NoError(t, err)

	req := testcontainers.ContainerRequest{
		Image:        testImageName,
		ExposedPorts: []string{"8080/tcp"},
		Env: map[string]string{
			"ENV":                  "test",
			"LOG_LEVEL":            "info",
			"LOG_FORMAT":           "json",
			"AUTH_PUBLIC_KEY_FILE": "/tmp/auth.pub",
			"AUTH_KEY_ID":          testKeyID,
			"AUTH_ISSUER":          testIssuer,
			// Tests fire requests faster than the production limits allow
			"RATELIMIT_READ_REQUESTS":  "1000",
			"RATELIMIT_READ_BURST":     "1000",
			"RATELIMIT_WRITE_REQUESTS": "1000",
			"RATELIMIT_WRITE_BURST":    "1000",
			"RATELIMIT_ADMIN_REQUESTS": "1000",
			"RATELIMIT_ADMIN_BURST":    "1000",
		},
		Files: []testcontainers.ContainerFile{{
			Reader:            bytes.NewReader(pub),
			ContainerFilePath: "/tmp/auth.pub",
			FileMode:          0o644,
		}},
		WaitingFor: wait.ForHTTP("/readyz").
			WithPort("8080/tcp").
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	mappedPort, err := container.MappedPort(ctx, "8080")
	require.NoError(t, err)
	host, err := container.Host(ctx)
	require.NoError(t, err)

	return &consentService{
		baseURL: fmt.Sprintf("http://%s:%s", host, mappedPort.Port()),
		signer:  signer,
	}
}

// token mints a bearer token for subject.
func (s *consentService) token(t *testing.T, subject string) string {
	t.Helper()
	tok, err := s.signer.Sign(jwtx.NewClaims(subject, testIssuer, nil, time.Hour, time.Now()))
	require.NoError(t, err)
	return tok
}

// client returns an API client acting as subject.
func (s *consentService) client(t *testing.T, subject string) *remote.Client {
	t.Helper()
	return remote.NewClient(remote.EndpointsFor(s.baseURL), s.token(t, subject))
}

// requireAPIError asserts err is an API error with the given status and code.
func requireAPIError(t *testing.T, err error, status int, code string) {
	t.Helper()
	require.Error(t, err)
	var apiErr *remote.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, status, apiErr.StatusCode, apiErr.Error())
	require.Equal(t, code, apiErr.Code)
}
