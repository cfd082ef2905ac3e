// Command txfirewall runs the pre-signing transaction firewall: a CLI
// wrapper around firewall.Service for one-off scans and fixture replay.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/evmsentinel/txfirewall/chain"
	"github.com/evmsentinel/txfirewall/classifier"
	"github.com/evmsentinel/txfirewall/common"
	"github.com/evmsentinel/txfirewall/config"
	"github.com/evmsentinel/txfirewall/firewall"
	"github.com/evmsentinel/txfirewall/history"
)

var configPath string

func main() {
	_ = godotenv.Load() // optional .env; missing file is not an error

	root := &cobra.Command{
		Use:   "txfirewall",
		Short: "Pre-signing EVM transaction firewall",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config.yaml")

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan a single transaction against the configured chain",
		RunE:  runScan,
	}
	scanCmd.Flags().Uint64("chain", 1, "chain ID")
	scanCmd.Flags().String("from", "", "sender address")
	scanCmd.Flags().String("to", "", "target contract address")
	scanCmd.Flags().String("data", "0x", "calldata, hex-encoded")
	scanCmd.Flags().String("value", "0", "value in wei")

	var fixturePath string
	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a fixture file offline and print its verdict",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, fixturePath)
		},
	}
	replayCmd.Flags().StringVar(&fixturePath, "fixture", "", "path to a fixture JSON file")
	_ = replayCmd.MarkFlagRequired("fixture")

	root.AddCommand(scanCmd, replayCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() *zap.Logger {
	log, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func buildService(log *zap.Logger) (*firewall.Service, *config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	oracle := chain.NewClient(log)

	var classifierClient *classifier.Client
	if cfg.Classifier.Enabled {
		classifierClient = classifier.NewClient(cfg.Classifier.Endpoint, log)
	}

	var store history.Store
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store = history.NewRedisStore(rdb)
	} else {
		store = history.NewMemStore()
	}

	return firewall.NewService(oracle, classifierClient, store, log), cfg, nil
}

func runScan(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer log.Sync()

	svc, cfg, err := buildService(log)
	if err != nil {
		return err
	}

	chainID, _ := cmd.Flags().GetUint64("chain")
	fromStr, _ := cmd.Flags().GetString("from")
	toStr, _ := cmd.Flags().GetString("to")
	dataStr, _ := cmd.Flags().GetString("data")
	valueStr, _ := cmd.Flags().GetString("value")

	wire := common.WireRequest{Chain: chainID, From: fromStr, To: toStr, Data: dataStr, Value: valueStr}
	req, err := common.ParseRequest(wire, func(id common.ChainID) []string {
		ch, ok := cfg.ChainByID(id)
		if !ok {
			return nil
		}
		return ch.Endpoints
	})
	if err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}

	env, err := svc.Scan(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	return json.NewEncoder(os.Stdout).Encode(env)
}

// fixtureFile is the shape of a --fixture replay file: a transaction plus
// the target contract's bytecode and initial storage, so the six golden
// scenarios (benign contract, honeypot, time-lock, delayed trading,
// proxy-over-drain, post-upgrade drift) are replayable without a live chain.
type fixtureFile struct {
	ChainID uint64            `json:"chain_id"`
	From    string            `json:"from"`
	To      string            `json:"to"`
	Data    string            `json:"data"`
	Value   string            `json:"value"`
	Code    string            `json:"code"`              // hex-encoded bytecode for the target address
	Storage map[string]string `json:"storage,omitempty"` // slot index (decimal) -> hex-encoded value
}

func runReplay(cmd *cobra.Command, fixturePath string) error {
	log := newLogger()
	defer log.Sync()

	raw, err := os.ReadFile(fixturePath)
	if err != nil {
		return fmt.Errorf("reading fixture: %w", err)
	}
	var fx fixtureFile
	if err := json.Unmarshal(raw, &fx); err != nil {
		return fmt.Errorf("parsing fixture: %w", err)
	}

	wire := common.WireRequest{Chain: fx.ChainID, From: fx.From, To: fx.To, Data: fx.Data, Value: fx.Value}
	req, err := common.ParseRequest(wire, func(id common.ChainID) []string {
		return []string{"fixture://offline"}
	})
	if err != nil {
		return fmt.Errorf("invalid fixture request: %w", err)
	}

	fake := chain.NewFake()
	code, err := decodeHex(fx.Code)
	if err != nil {
		return fmt.Errorf("decoding fixture code: %w", err)
	}
	fake.SetCode(req.To, code)
	for idxStr, valStr := range fx.Storage {
		idx, err := strconv.Atoi(idxStr)
		if err != nil {
			return fmt.Errorf("fixture storage key %q: %w", idxStr, err)
		}
		val, err := decodeHex(valStr)
		if err != nil {
			return fmt.Errorf("fixture storage value %q: %w", valStr, err)
		}
		var slot chain.Slot
		copy(slot[32-len(val):], val)
		fake.SetStorage(req.To, indexSlot(idx), slot)
	}

	store := history.NewMemStore()
	svc := firewall.NewService(fake, nil, store, log)

	env, err := svc.Scan(context.Background(), req)
	if err != nil {
		return fmt.Errorf("replay failed: %w", err)
	}
	return json.NewEncoder(os.Stdout).Encode(env)
}

func decodeHex(s string) ([]byte, error) {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	if len(s) == 0 {
		return nil, nil
	}
	if len(s)%2 != 0 {
		s = "0" + s
	}
	out := make([]byte, len(s)/2)
	for i := range out {
		var b byte
		if _, err := fmt.Sscanf(s[i*2:i*2+2], "%02x", &b); err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

func indexSlot(i int) chain.Slot {
	var s chain.Slot
	n := uint64(i)
	for j := 0; j < 8; j++ {
		s[31-j] = byte(n >> (8 * j))
	}
	return s
}
