package leader_test

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/k3s"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/jensholdgaard/auction-house-bot/internal/config"
	"github.com/jensholdgaard/auction-house-bot/internal/leader"
)

// startCluster runs a k3s container and points leader.Run at it.
func startCluster(t *testing.T, ctx context.Context) kubernetes.Interface {
	t.Helper()

	ctr, err := k3s.Run(ctx, "rancher/k3s:v1.31.6-k3s1")
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("starting k3s container: %v", err)
	}

	kubeConfig, err := ctr.GetKubeConfig(ctx)
	if err != nil {
		t.Fatalf("getting kubeconfig: %v", err)
	}
	restCfg, err := clientcmd.RESTConfigFromKubeConfig(kubeConfig)
	if err != nil {
		t.Fatalf("building rest config: %v", err)
	}
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		t.Fatalf("creating kubernetes client: %v", err)
	}

	orig := leader.ClientFactory
	leader.ClientFactory = func() (kubernetes.Interface, error) { return clientset, nil }
	t.Cleanup(func() { leader.ClientFactory = orig })
	return clientset
}

// TestLeaderElection_K3s runs the election against a real API server.
// Skipped in short mode.
func TestLeaderElection_K3s(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping k3s integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	clientset := startCluster(t, ctx)
	t.Setenv("POD_NAME", "auctionbot-k3s-0")
	logger := slog.New(slog.DiscardHandler)

	t.Run("invalid timings", func(t *testing.T) {
		cfg := config.LeaderElectionConfig{
			Enabled:        true,
			LeaseName:      "auctionbot-misconfigured",
			LeaseNamespace: "default",
			LeaseDuration:  2 * time.Second,
			RenewDeadline:  3 * time.Second,
			RetryPeriod:    time.Second,
		}
		err := leader.Run(ctx, cfg, logger, func(context.Context) {
			t.Error("became leader with a renew deadline past the lease duration")
		}, func() {})
		if err == nil || !strings.Contains(err.Error(), "configuring leader election") {
			t.Fatalf("leader.Run() error = %v, want a configuration error", err)
		}

		_, err = clientset.CoordinationV1().Leases("default").Get(ctx, cfg.LeaseName, metav1.GetOptions{})
		if !apierrors.IsNotFound(err) {
			t.Errorf("lease lookup error = %v, want not found", err)
		}
	})

	t.Run("acquire and release", func(t *testing.T) {
		cfg := config.LeaderElectionConfig{
			Enabled:        true,
			LeaseName:      "auctionbot-test-leader",
			LeaseNamespace: "default",
			LeaseDuration:  5 * time.Second,
			RenewDeadline:  3 * time.Second,
			RetryPeriod:    time.Second,
		}

		var leading, stopped atomic.Bool
		leaderCtx, leaderCancel := context.WithCancel(ctx)
		defer leaderCancel()

		errCh := make(chan error, 1)
		go func() {
			errCh <- leader.Run(leaderCtx, cfg, logger,
				func(ctx context.Context) {
					leading.Store(true)
					<-ctx.Done()
				},
				func() { stopped.Store(true) },
			)
		}()

		deadline := time.After(30 * time.Second)
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for !leading.Load() {
			select {
			case <-deadline:
				t.Fatal("timed out waiting for leadership")
			case <-ticker.C:
			}
		}

		lease, err := clientset.CoordinationV1().Leases("default").Get(ctx, cfg.LeaseName, metav1.GetOptions{})
		if err != nil {
			t.Fatalf("getting lease: %v", err)
		}
		if h := lease.Spec.HolderIdentity; h == nil || *h != "auctionbot-k3s-0" {
			t.Errorf("lease holder = %v, want auctionbot-k3s-0", h)
		}

		leaderCancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Fatalf("leader.Run() error = %v", err)
			}
		case <-time.After(10 * time.Second):
			t.Fatal("timed out waiting for leader.Run to return")
		}
		if !stopped.Load() {
			t.Error("stopped leading callback did not run")
		}

		// Cancelling releases the lease.
		lease, err = clientset.CoordinationV1().Leases("default").Get(ctx, cfg.LeaseName, metav1.GetOptions{})
		if err != nil {
			t.Fatalf("getting lease after release: %v", err)
		}
		if h := lease.Spec.HolderIdentity; h != nil && *h != "" {
			t.Errorf("lease holder after release = %q, want empty", *h)
		}
	})
}
