package leader

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/jensholdgaard/auction-house-bot/internal/config"
)

func TestIdentity_FromPodName(t *testing.T) {
	t.Setenv("POD_NAME", "auctionbot-7d9f6")
	if got := identity(); got != "auctionbot-7d9f6" {
		t.Errorf("identity() = %q, want %q", got, "auctionbot-7d9f6")
	}
}

func TestIdentity_Hostname(t *testing.T) {
	t.Setenv("POD_NAME", "")
	host, err := os.Hostname()
	if err != nil {
		t.Skip("cannot get hostname")
	}
	if got := identity(); got != host {
		t.Errorf("identity() = %q, want %q", got, host)
	}
}

func TestRun_InvalidTimings(t *testing.T) {
	orig := ClientFactory
	ClientFactory = func() (kubernetes.Interface, error) { return fake.NewClientset(), nil }
	t.Cleanup(func() { ClientFactory = orig })

	cfg := config.LeaderElectionConfig{
		Enabled:        true,
		LeaseName:      "auctionbot-leader",
		LeaseNamespace: "default",
		LeaseDuration:  time.Second,
		RenewDeadline:  2 * time.Second,
		RetryPeriod:    time.Second,
	}
	err := Run(context.Background(), cfg, slog.New(slog.DiscardHandler), func(context.Context) {
		t.Error("became leader with an invalid configuration")
	}, func() {})
	if err == nil {
		t.Fatal("Run() error = nil, want invalid configuration error")
	}
}

func TestRun_ClientError(t *testing.T) {
	orig := ClientFactory
	ClientFactory = func() (kubernetes.Interface, error) { return nil, errors.New("not in cluster") }
	t.Cleanup(func() { ClientFactory = orig })

	err := Run(context.Background(), config.LeaderElectionConfig{}, slog.New(slog.DiscardHandler), func(context.Context) {}, func() {})
	if err == nil {
		t.Fatal("Run() error = nil, want client error")
	}
}
