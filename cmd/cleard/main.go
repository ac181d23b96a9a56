// main.go - cleard, the clearing auction daemon.
//
// cleard runs the auctioneer side of the sealed-bid clearing protocol: it
// opens a commitment registry, collects reveals over REST and the p2p
// channel, and settles a proved clearing against its own verifier.
//
// Usage:
//   cleard keygen              one-time Groth16 trusted setup
//   cleard serve               run the daemon
//   cleard version             print the version

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"sealedbid/internal/clearing"
	"sealedbid/p2p"
)

var (
	configPath string
	p2pListen  string
)

var rootCmd = &cobra.Command{
	Use:   "cleard",
	Short: "Sealed-bid clearing auction daemon",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the clearing daemon",
	RunE:  runServe,
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate Groth16 keys for the clearing circuit",
	RunE:  runKeygen,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the cleard version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(daemonVersion)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "cleard.json", "path to the config file")
	serveCmd.Flags().StringVar(&p2pListen, "p2p-listen", "", "address for the p2p reveal channel (disabled when empty)")
	rootCmd.AddCommand(serveCmd, keygenCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "cleard failed: %v\n", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	auditPath := ""
	if cfg.EnableAudit {
		auditPath = cfg.AuditLogPath
	}
	logger, err := NewLogger(cfg.LogLevel, cfg.LogFile, auditPath)
	if err != nil {
		return err
	}
	defer logger.Close()

	metrics := NewMetricsCollector()
	server, err := NewServer(cfg, logger, metrics)
	if err != nil {
		return err
	}

	if p2pListen != "" {
		var wg sync.WaitGroup
		node := p2p.NewNode("cleard", p2pListen, map[string]string{}, &wg)
		node.SetRevealSink(server)
		ready := make(chan struct{})
		node.StartServer(ready)
		<-ready
		logger.Info("p2p reveal channel on %s", p2pListen)
	}

	return server.Run()
}

func runKeygen(cmd *cobra.Command, args []string) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}

	fmt.Println("Compiling clearing circuit...")
	ccs, err := clearing.Compile()
	if err != nil {
		return err
	}
	fmt.Printf("Circuit: %d constraints\n", ccs.GetNbConstraints())

	if _, _, err := setupKeys(cfg.KeyDir, ccs, true); err != nil {
		return err
	}
	fmt.Printf("Keys written to %s\n", cfg.KeyDir)
	return nil
}

// setupKeys loads or generates the Groth16 key pair under keyDir. With
// progress enabled, a fresh setup always runs and key writes show a byte
// counter.
func setupKeys(keyDir string, ccs constraint.ConstraintSystem, progress bool) (groth16.ProvingKey, groth16.VerifyingKey, error) {
	if err := os.MkdirAll(keyDir, 0755); err != nil {
		return nil, nil, err
	}
	pkPath := filepath.Join(keyDir, "clearing_pk.bin")
	vkPath := filepath.Join(keyDir, "clearing_vk.bin")

	if !progress {
		return clearing.SetupOrLoadKeys(ccs, pkPath, vkPath)
	}

	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, nil, err
	}
	if err := writeKeyWithProgress(pkPath, "Writing proving key", pk); err != nil {
		return nil, nil, err
	}
	if err := writeKeyWithProgress(vkPath, "Writing verifying key", vk); err != nil {
		return nil, nil, err
	}
	return pk, vk, nil
}

func writeKeyWithProgress(path, label string, key io.WriterTo) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	bar := progressbar.DefaultBytes(-1, label)
	defer bar.Finish()
	_, err = key.WriteTo(io.MultiWriter(f, bar))
	return err
}
