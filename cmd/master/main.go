package main

import (
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vanguarddb/vanguard/pkg/api"
	"github.com/vanguarddb/vanguard/pkg/balancer"
	"github.com/vanguarddb/vanguard/pkg/catalog"
	"github.com/vanguarddb/vanguard/pkg/config"
	"github.com/vanguarddb/vanguard/pkg/log"
	"github.com/vanguarddb/vanguard/pkg/metrics"
	"github.com/vanguarddb/vanguard/pkg/security"
	"github.com/vanguarddb/vanguard/pkg/snapshotdriver"
	"github.com/vanguarddb/vanguard/pkg/storage"
	"github.com/vanguarddb/vanguard/pkg/tserverclient"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "vanguard-master",
	Short:   "Vanguard master - catalog manager and load balancer for a distributed SQL cluster",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("vanguard-master version %s\nCommit: %s\n", Version, Commit))
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(joinCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new master cluster with this node as the first member",
	RunE:  runMaster(true),
}

var joinCmd = &cobra.Command{
	Use:   "join --leader ADDR",
	Short: "Start this node and join it to an existing Raft cluster",
	RunE:  runMaster(false),
}

func init() {
	for _, cmd := range []*cobra.Command{initCmd, joinCmd} {
		cmd.Flags().String("node-id", "master-1", "unique node ID")
		cmd.Flags().String("bind-addr", "127.0.0.1:7600", "address for Raft communication")
		cmd.Flags().String("api-addr", "127.0.0.1:7650", "address for the master gRPC API")
		cmd.Flags().String("data-dir", "./vanguard-data", "data directory for catalog and Raft state")
		cmd.Flags().String("cluster-id", "vanguard-cluster", "identifier used to derive this cluster's at-rest encryption key")
		cmd.Flags().String("config", "", "path to a YAML options file (cdc/balancer/callhome settings)")
		cmd.Flags().String("tserver-cert-dir", "", "certificate directory the master uses to dial tablet servers (defaults to the master's own cert dir)")
		cmd.Flags().Bool("enable-pprof", false, "enable pprof profiling endpoints on the metrics server")
	}
	joinCmd.Flags().String("leader", "", "address of an existing master to join through (currently advisory; Raft membership changes are driven by the leader's AddReplica path)")
}

// runMaster builds the RunE for both init and join: the two commands
// differ only in whether Bootstrap() forms a brand-new single-node
// Raft cluster or the node waits to be added to one that already
// exists.
func runMaster(bootstrap bool) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		nodeID, _ := cmd.Flags().GetString("node-id")
		bindAddr, _ := cmd.Flags().GetString("bind-addr")
		apiAddr, _ := cmd.Flags().GetString("api-addr")
		dataDir, _ := cmd.Flags().GetString("data-dir")
		clusterID, _ := cmd.Flags().GetString("cluster-id")
		configPath, _ := cmd.Flags().GetString("config")
		tserverCertDir, _ := cmd.Flags().GetString("tserver-cert-dir")
		pprofEnabled, _ := cmd.Flags().GetBool("enable-pprof")

		fmt.Println("Starting vanguard master...")
		fmt.Printf("  Node ID: %s\n", nodeID)
		fmt.Printf("  Raft Address: %s\n", bindAddr)
		fmt.Printf("  API Address: %s\n", apiAddr)
		fmt.Printf("  Data Directory: %s\n", dataDir)
		fmt.Println()

		opts, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if err := ensureCertificate(nodeID, clusterID, dataDir, bindAddr, apiAddr); err != nil {
			return fmt.Errorf("failed to provision certificate: %w", err)
		}
		fmt.Println("✓ Certificate ready")

		mgr, err := catalog.NewManager(catalog.Config{
			NodeID:   nodeID,
			BindAddr: bindAddr,
			DataDir:  dataDir,
		})
		if err != nil {
			return fmt.Errorf("failed to create catalog manager: %w", err)
		}

		if bootstrap {
			if err := mgr.Bootstrap(); err != nil {
				return fmt.Errorf("failed to bootstrap cluster: %w", err)
			}
			fmt.Println("✓ Cluster bootstrapped")
		} else {
			fmt.Println("✓ Node started, awaiting leader to add it as a Raft voter")
		}

		if tserverCertDir == "" {
			tserverCertDir, _ = security.GetCertDir("master", nodeID)
		}
		rpcPool := tserverclient.NewPool(tserverCertDir)

		var lb *balancer.Balancer
		if opts.EnableLoadBalancing {
			maxAdds, maxRemoves, maxMoves, leaderThreshold, stepDownBackoff := opts.BalancerConfig()
			lb = balancer.New(mgr, balancer.Config{
				MaxAddsPerRun:          maxAdds,
				MaxRemovesPerRun:       maxRemoves,
				MaxMovesPerRun:         maxMoves,
				LeaderBalanceThreshold: leaderThreshold,
				StepDownBackoff:        stepDownBackoff,
			}, rpcPool)
			lb.Start()
			fmt.Println("✓ Load balancer started")
		}

		cleaner := catalog.NewCDCCleaner(mgr, time.Minute)
		cleaner.Start()
		fmt.Println("✓ CDC stream cleaner started")

		driver := snapshotdriver.New(mgr, rpcPool, 10*time.Second)
		driver.Start()
		fmt.Println("✓ Snapshot driver started")

		collector := metrics.NewCollector(mgr)
		collector.Start()
		fmt.Println("✓ Metrics collector started")

		healthServer := api.NewHealthServer(mgr)

		metricsAddr := "127.0.0.1:9090"
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/", healthServer.GetHandler())
			if pprofEnabled {
				mux.Handle("/debug/pprof/", http.DefaultServeMux)
			}
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				fmt.Printf("metrics server error: %v\n", err)
			}
		}()
		fmt.Printf("✓ Metrics endpoint: http://%s/metrics\n", metricsAddr)
		fmt.Printf("  - Health check: http://%s/health\n", metricsAddr)
		fmt.Printf("  - Readiness:    http://%s/ready\n", metricsAddr)
		fmt.Printf("  - Liveness:     http://%s/live\n", metricsAddr)
		if pprofEnabled {
			fmt.Printf("✓ Profiling endpoints enabled at http://%s/debug/pprof/\n", metricsAddr)
		}

		apiServer, err := api.NewServer(mgr, nodeID)
		if err != nil {
			return fmt.Errorf("failed to create API server: %w", err)
		}
		errCh := make(chan error, 1)
		go func() {
			if err := apiServer.Start(apiAddr); err != nil {
				errCh <- fmt.Errorf("API server error: %w", err)
			}
		}()
		time.Sleep(200 * time.Millisecond)
		fmt.Printf("✓ Master API listening on %s\n", apiAddr)
		fmt.Println()
		fmt.Println("Master is running. Press Ctrl+C to stop.")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		select {
		case <-sigCh:
			fmt.Println("\nShutting down...")
		case err := <-errCh:
			fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
		}

		if lb != nil {
			lb.Stop()
		}
		cleaner.Stop()
		driver.Stop()
		collector.Stop()
		apiServer.Stop()
		if err := mgr.Shutdown(); err != nil {
			return fmt.Errorf("failed to shut down cleanly: %w", err)
		}
		fmt.Println("✓ Shutdown complete")
		return nil
	}
}

// ensureCertificate provisions this master's certificate authority
// and node certificate on first start. The CA's root key lives in the
// same BoltDB file the catalog manager itself opens (local_security
// bucket, never replicated through Raft), so this store is closed
// again before NewManager reopens that file - bbolt only allows one
// writer per process.
func ensureCertificate(nodeID, clusterID, dataDir, bindAddr, apiAddr string) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	certDir, err := security.GetCertDir("master", nodeID)
	if err != nil {
		return fmt.Errorf("get cert dir: %w", err)
	}
	if security.CertExists(certDir) {
		return nil
	}

	if err := security.SetClusterEncryptionKey(security.DeriveKeyFromClusterID(clusterID)); err != nil {
		return fmt.Errorf("set cluster encryption key: %w", err)
	}

	store, err := storage.NewBoltStore(dataDir)
	if err != nil {
		return fmt.Errorf("open security store: %w", err)
	}
	defer store.Close()

	ca := security.NewCertAuthority(store)
	if err := ca.LoadFromStore(); err != nil {
		if err := ca.Initialize(); err != nil {
			return fmt.Errorf("initialize certificate authority: %w", err)
		}
		if err := ca.SaveToStore(); err != nil {
			return fmt.Errorf("save certificate authority: %w", err)
		}
	}

	dnsNames := []string{"localhost"}
	ipAddresses := hostIPs(bindAddr, apiAddr)
	cert, err := ca.IssueNodeCertificate(nodeID, "master", dnsNames, ipAddresses)
	if err != nil {
		return fmt.Errorf("issue node certificate: %w", err)
	}
	return security.SaveCertToFile(cert, certDir)
}

func hostIPs(addrs ...string) []net.IP {
	seen := make(map[string]bool)
	var ips []net.IP
	ips = append(ips, net.ParseIP("127.0.0.1"))
	seen["127.0.0.1"] = true
	for _, addr := range addrs {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			continue
		}
		ip := net.ParseIP(host)
		if ip == nil || seen[host] {
			continue
		}
		seen[host] = true
		ips = append(ips, ip)
	}
	return ips
}
