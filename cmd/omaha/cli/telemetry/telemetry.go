// Package telemetry sends anonymous, opt-in command usage events.
package telemetry

import (
	"net"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/posthog/posthog-go"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// OptOutEnvVar disables telemetry regardless of settings when set to any value.
const OptOutEnvVar = "OMAHA_TELEMETRY_OPTOUT"

var (
	// PostHogAPIKey is set at build time for production
	PostHogAPIKey = "phc_development_key"
	// PostHogEndpoint is set at build time for production
	PostHogEndpoint = "https://eu.i.posthog.com"
)

// Client defines the telemetry interface
type Client interface {
	TrackCommand(cmd *cobra.Command, cacheBackend string)
	Close()
}

// NoOpClient is used when telemetry is disabled
type NoOpClient struct{}

func (n *NoOpClient) TrackCommand(_ *cobra.Command, _ string) {}
func (n *NoOpClient) Close()                                  {}

// silentLogger suppresses PostHog log output; telemetry is best-effort
type silentLogger struct{}

func (silentLogger) Logf(_ string, _ ...interface{})   {}
func (silentLogger) Debugf(_ string, _ ...interface{}) {}
func (silentLogger) Warnf(_ string, _ ...interface{})  {}
func (silentLogger) Errorf(_ string, _ ...interface{}) {}

// PostHogClient is the real telemetry client
type PostHogClient struct {
	client    posthog.Client
	machineID string
	mu        sync.RWMutex
}

// NewClient creates a telemetry client. enabled is the user's opt-in from
// settings.
//
//nolint:ireturn // returns NoOpClient or PostHogClient based on settings
func NewClient(version string, enabled bool) Client {
	if os.Getenv(OptOutEnvVar) != "" {
		return &NoOpClient{}
	}
	if !enabled {
		return &NoOpClient{}
	}

	id, err := machineid.ProtectedID("omaha-cli")
	if err != nil {
		return &NoOpClient{}
	}

	// Short timeouts: telemetry must not delay CLI exit.
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: 100 * time.Millisecond,
		}).DialContext,
		TLSHandshakeTimeout:   100 * time.Millisecond,
		ResponseHeaderTimeout: 100 * time.Millisecond,
	}

	client, err := posthog.NewWithConfig(PostHogAPIKey, posthog.Config{
		Endpoint:           PostHogEndpoint,
		ShutdownTimeout:    100 * time.Millisecond,
		BatchUploadTimeout: 200 * time.Millisecond,
		Transport:          transport,
		Logger:             silentLogger{},
		DisableGeoIP:       posthog.Ptr(true),
		DefaultEventProperties: posthog.NewProperties().
			Set("cli_version", version).
			Set("os", runtime.GOOS).
			Set("arch", runtime.GOARCH),
	})
	if err != nil {
		return &NoOpClient{}
	}

	return &PostHogClient{client: client, machineID: id}
}

// TrackCommand records the command path, the names of the flags that were
// set (never their values) and the cache backend in use.
func (p *PostHogClient) TrackCommand(cmd *cobra.Command, cacheBackend string) {
	if cmd == nil || cmd.Hidden {
		return
	}

	p.mu.RLock()
	id := p.machineID
	c := p.client
	p.mu.RUnlock()

	if c == nil {
		return
	}

	props := posthog.NewProperties().
		Set("command", cmd.CommandPath()).
		Set("cache_backend", cacheBackend)
	if flags := flagNames(cmd); len(flags) > 0 {
		props.Set("flags", strings.Join(flags, ","))
	}

	//nolint:errcheck // best-effort telemetry
	_ = c.Enqueue(posthog.Capture{
		DistinctId: id,
		Event:      "cli_command_executed",
		Properties: props,
	})
}

// Close flushes pending events
func (p *PostHogClient) Close() {
	p.mu.RLock()
	c := p.client
	p.mu.RUnlock()

	if c != nil {
		_ = c.Close()
	}
}

func flagNames(cmd *cobra.Command) []string {
	var flags []string
	cmd.Flags().Visit(func(flag *pflag.Flag) {
		flags = append(flags, flag.Name)
	})
	return flags
}
