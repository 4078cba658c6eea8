package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"gopkg.in/yaml.v3"
)

type LogConfig struct {
	Level    string
	Format   string
	Output   string
	FilePath string
}

type KellyConfig struct {
	WinProbability float64
	PayoutMultiple float64
	MaxFraction    float64
}

type AgentConfig struct {
	RPCURL      string
	Commitment  rpc.CommitmentType
	KeypairPath string

	PollInterval time.Duration
	TxTimeout    time.Duration

	MiningEnabled bool
	DryRun        bool

	Strategy             string
	ManualAmountLamports uint64
	TargetRounds         uint64
	Percentage           float64
	Kelly                KellyConfig
	CurvesFile           string

	MotherloadThreshold   uint64 // raw ORB units
	ClaimThresholdSol     uint64 // lamports
	ClaimThresholdOrb     uint64 // raw ORB units
	AutoSwapThresholdOrb  uint64 // raw ORB units
	MinSolBalanceLamports uint64
	FeeEstimateLamports   uint64

	MaxRetries     uint64
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	ProgramID    solana.PublicKey
	OrbMint      solana.PublicKey
	SolMint      solana.PublicKey
	FeeCollector solana.PublicKey

	EvalWinShare   float64
	EvalCostFactor float64

	HermesWSURL            string
	PriceFeedID            string
	PriceMaxAge            time.Duration
	PriceReconnectInterval time.Duration

	JupiterBaseURL string
	SlippageBps    uint64

	JournalDSN string

	SkipPreflight                 bool
	SendMaxRetries                *uint
	ComputeUnitLimit              uint32
	ComputeUnitPriceMicroLamports uint64

	Log LogConfig
}

const (
	lamportsPerSol = 1_000_000_000
	orbUnit        = 1_000_000_000

	defaultHermesWSURL = "wss://hermes.pyth.network/ws"
	// SOL/USD Pyth feed; the ORB composite is configured per deployment.
	defaultPriceFeedID = "ef0d8b6fda2ceba41da15d4095d1da392a0d2f8ed0c6c7bc0f4cfac8c280b56d"
)

var wrappedSolMint = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")

func LoadAgentConfig() (AgentConfig, error) {
	if err := ensureRuntimeConfigLoaded(); err != nil {
		return AgentConfig{}, err
	}

	keypairPath := envOrDefault("AGENT_KEYPAIR_PATH", envOrDefault("SOLANA_KEYPAIR_PATH", "~/.config/solana/id.json"))
	expandedKeypair, err := expandHomePath(keypairPath)
	if err != nil {
		return AgentConfig{}, fmt.Errorf("expand keypair path: %w", err)
	}

	commitment, err := envCommitment("SOLANA_COMMITMENT", rpc.CommitmentConfirmed)
	if err != nil {
		return AgentConfig{}, err
	}
	pollInterval, err := envDuration("AGENT_POLL_INTERVAL", 30*time.Second)
	if err != nil {
		return AgentConfig{}, err
	}
	txTimeout, err := envDuration("AGENT_TX_TIMEOUT", 45*time.Second)
	if err != nil {
		return AgentConfig{}, err
	}

	miningEnabled, err := envBool("MINING_ENABLED", false)
	if err != nil {
		return AgentConfig{}, err
	}
	dryRun, err := envBool("DRY_RUN", true)
	if err != nil {
		return AgentConfig{}, err
	}

	strategy := strings.ToLower(envOrDefault("DEPLOYMENT_AMOUNT_STRATEGY", "balanced"))
	manualAmount, err := envSolAmount("MANUAL_AMOUNT_PER_ROUND", 0)
	if err != nil {
		return AgentConfig{}, err
	}
	targetRounds, err := envUint64("TARGET_ROUNDS", 100)
	if err != nil {
		return AgentConfig{}, err
	}
	percentage, err := envFloat("DEPLOYMENT_PERCENTAGE", 1.0)
	if err != nil {
		return AgentConfig{}, err
	}
	kellyWinProb, err := envFloat("KELLY_WIN_PROBABILITY", 0.04)
	if err != nil {
		return AgentConfig{}, err
	}
	kellyPayout, err := envFloat("KELLY_PAYOUT_MULTIPLE", 30)
	if err != nil {
		return AgentConfig{}, err
	}
	kellyMaxFraction, err := envFloat("KELLY_MAX_FRACTION", 0.25)
	if err != nil {
		return AgentConfig{}, err
	}

	motherloadThreshold, err := envOrbAmount("MOTHERLOAD_THRESHOLD", 0)
	if err != nil {
		return AgentConfig{}, err
	}
	claimThresholdSol, err := envSolAmount("CLAIM_THRESHOLD_SOL", 0)
	if err != nil {
		return AgentConfig{}, err
	}
	claimThresholdOrb, err := envOrbAmount("CLAIM_THRESHOLD_ORB", 0)
	if err != nil {
		return AgentConfig{}, err
	}
	autoSwapThreshold, err := envOrbAmount("AUTO_SWAP_THRESHOLD", 0)
	if err != nil {
		return AgentConfig{}, err
	}
	minSolBalance, err := envSolAmount("MIN_SOL_BALANCE", 0.01)
	if err != nil {
		return AgentConfig{}, err
	}
	feeEstimate, err := envSolAmount("TX_FEE_ESTIMATE", 0.00002)
	if err != nil {
		return AgentConfig{}, err
	}

	maxRetries, err := envUint64("AGENT_MAX_RETRIES", 3)
	if err != nil {
		return AgentConfig{}, err
	}
	retryBaseDelay, err := envDuration("AGENT_RETRY_BASE_DELAY", time.Second)
	if err != nil {
		return AgentConfig{}, err
	}
	retryMaxDelay, err := envDuration("AGENT_RETRY_MAX_DELAY", 20*time.Second)
	if err != nil {
		return AgentConfig{}, err
	}
	if retryMaxDelay < retryBaseDelay {
		return AgentConfig{}, fmt.Errorf("invalid AGENT_RETRY_MAX_DELAY: must be >= AGENT_RETRY_BASE_DELAY")
	}

	programID, err := requirePubkey("ORB_PROGRAM_ID")
	if err != nil {
		return AgentConfig{}, err
	}
	orbMint, err := requirePubkey("ORB_MINT")
	if err != nil {
		return AgentConfig{}, err
	}
	feeCollector, err := requirePubkey("FEE_COLLECTOR")
	if err != nil {
		return AgentConfig{}, err
	}
	solMint, err := envPubkey("SOL_MINT", wrappedSolMint)
	if err != nil {
		return AgentConfig{}, err
	}

	evalWinShare, err := envFloat("EVAL_WIN_SHARE", 1.0/25.0)
	if err != nil {
		return AgentConfig{}, err
	}
	evalCostFactor, err := envFloat("EVAL_COST_FACTOR", 1.0)
	if err != nil {
		return AgentConfig{}, err
	}

	priceMaxAge, err := envDuration("PRICE_MAX_AGE", 2*time.Minute)
	if err != nil {
		return AgentConfig{}, err
	}
	priceReconnect, err := envDuration("PRICE_RECONNECT_INTERVAL", 3*time.Second)
	if err != nil {
		return AgentConfig{}, err
	}

	slippageBps, err := envUint64("SLIPPAGE_BPS", 50)
	if err != nil {
		return AgentConfig{}, err
	}

	skipPreflight, err := envBool("AGENT_SKIP_PREFLIGHT", false)
	if err != nil {
		return AgentConfig{}, err
	}
	sendMaxRetries, err := envOptionalUint("AGENT_SEND_MAX_RETRIES")
	if err != nil {
		return AgentConfig{}, err
	}
	cuLimit, err := envUint32("AGENT_COMPUTE_UNIT_LIMIT", 0)
	if err != nil {
		return AgentConfig{}, err
	}
	cuPrice, err := envUint64("AGENT_COMPUTE_UNIT_PRICE_MICRO_LAMPORTS", 0)
	if err != nil {
		return AgentConfig{}, err
	}

	return AgentConfig{
		RPCURL:       envOrDefault("SOLANA_RPC_URL", "http://127.0.0.1:8899"),
		Commitment:   commitment,
		KeypairPath:  expandedKeypair,
		PollInterval: pollInterval,
		TxTimeout:    txTimeout,

		MiningEnabled: miningEnabled,
		DryRun:        dryRun,

		Strategy:             strategy,
		ManualAmountLamports: manualAmount,
		TargetRounds:         targetRounds,
		Percentage:           percentage,
		Kelly: KellyConfig{
			WinProbability: kellyWinProb,
			PayoutMultiple: kellyPayout,
			MaxFraction:    kellyMaxFraction,
		},
		CurvesFile: envOrDefault("STRATEGY_CURVES_FILE", ""),

		MotherloadThreshold:   motherloadThreshold,
		ClaimThresholdSol:     claimThresholdSol,
		ClaimThresholdOrb:     claimThresholdOrb,
		AutoSwapThresholdOrb:  autoSwapThreshold,
		MinSolBalanceLamports: minSolBalance,
		FeeEstimateLamports:   feeEstimate,

		MaxRetries:     maxRetries,
		RetryBaseDelay: retryBaseDelay,
		RetryMaxDelay:  retryMaxDelay,

		ProgramID:    programID,
		OrbMint:      orbMint,
		SolMint:      solMint,
		FeeCollector: feeCollector,

		EvalWinShare:   evalWinShare,
		EvalCostFactor: evalCostFactor,

		HermesWSURL:            envOrDefault("HERMES_WS_URL", defaultHermesWSURL),
		PriceFeedID:            strings.ToLower(strings.TrimSpace(envOrDefault("PRICE_FEED_ID", defaultPriceFeedID))),
		PriceMaxAge:            priceMaxAge,
		PriceReconnectInterval: priceReconnect,

		JupiterBaseURL: envOrDefault("JUPITER_BASE_URL", ""),
		SlippageBps:    slippageBps,

		JournalDSN: envOrDefault("JOURNAL_DB_DSN", ""),

		SkipPreflight:                 skipPreflight,
		SendMaxRetries:                sendMaxRetries,
		ComputeUnitLimit:              cuLimit,
		ComputeUnitPriceMicroLamports: cuPrice,

		Log: buildLogConfig("AGENT", "agent"),
	}, nil
}

type ConfigSource struct {
	Phase  string
	Path   string
	Loaded bool
}

func CurrentConfigSource() (ConfigSource, error) {
	if err := ensureRuntimeConfigLoaded(); err != nil {
		return ConfigSource{}, err
	}
	return ConfigSource{
		Phase:  runtimeConfigPhase,
		Path:   runtimeConfigPath,
		Loaded: runtimeConfigLoaded,
	}, nil
}

func buildLogConfig(prefix string, serviceName string) LogConfig {
	level := envOrDefault(prefix+"_LOG_LEVEL", envOrDefault("LOG_LEVEL", "info"))
	format := envOrDefault(prefix+"_LOG_FORMAT", envOrDefault("LOG_FORMAT", "text"))
	output := envOrDefault(prefix+"_LOG_OUTPUT", envOrDefault("LOG_OUTPUT", "console"))
	filePath := envOrDefault(prefix+"_LOG_FILE", envOrDefault("LOG_FILE", filepath.Join("logs", serviceName+".log")))

	return LogConfig{
		Level:    level,
		Format:   format,
		Output:   output,
		FilePath: filePath,
	}
}

// envSolAmount reads a decimal SOL value and converts to lamports.
func envSolAmount(key string, fallbackSol float64) (uint64, error) {
	value, err := envFloat(key, fallbackSol)
	if err != nil {
		return 0, err
	}
	if value < 0 {
		return 0, fmt.Errorf("invalid %s: must be >= 0", key)
	}
	return uint64(value * lamportsPerSol), nil
}

// envOrbAmount reads a decimal ORB value and converts to raw units.
func envOrbAmount(key string, fallbackOrb float64) (uint64, error) {
	value, err := envFloat(key, fallbackOrb)
	if err != nil {
		return 0, err
	}
	if value < 0 {
		return 0, fmt.Errorf("invalid %s: must be >= 0", key)
	}
	return uint64(value * orbUnit), nil
}

func requirePubkey(key string) (solana.PublicKey, error) {
	raw := strings.TrimSpace(valueForKey(key))
	if raw == "" {
		return solana.PublicKey{}, fmt.Errorf("%s is required", key)
	}
	pk, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return pk, nil
}

func envPubkey(key string, fallback solana.PublicKey) (solana.PublicKey, error) {
	raw := strings.TrimSpace(valueForKey(key))
	if raw == "" {
		return fallback, nil
	}
	pk, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return pk, nil
}

func envCommitment(key string, fallback rpc.CommitmentType) (rpc.CommitmentType, error) {
	raw := strings.TrimSpace(valueForKey(key))
	if raw == "" {
		return fallback, nil
	}
	switch strings.ToLower(raw) {
	case string(rpc.CommitmentProcessed):
		return rpc.CommitmentProcessed, nil
	case string(rpc.CommitmentConfirmed):
		return rpc.CommitmentConfirmed, nil
	case string(rpc.CommitmentFinalized):
		return rpc.CommitmentFinalized, nil
	default:
		return "", fmt.Errorf("invalid %s: %q (expected processed|confirmed|finalized)", key, raw)
	}
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(valueForKey(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be > 0", key)
	}
	return d, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	raw := strings.TrimSpace(valueForKey(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func envUint64(key string, fallback uint64) (uint64, error) {
	raw := strings.TrimSpace(valueForKey(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func envUint32(key string, fallback uint32) (uint32, error) {
	raw := strings.TrimSpace(valueForKey(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return uint32(v), nil
}

func envOptionalUint(key string) (*uint, error) {
	raw := strings.TrimSpace(valueForKey(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	out := uint(v)
	return &out, nil
}

func envBool(key string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(valueForKey(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func envOrDefault(key, fallback string) string {
	if value := strings.TrimSpace(valueForKey(key)); value != "" {
		return value
	}
	return fallback
}

func expandHomePath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if path == "~" {
			return homeDir, nil
		}
		return filepath.Join(homeDir, strings.TrimPrefix(path, "~/")), nil
	}
	return path, nil
}

var (
	runtimeConfigOnce   sync.Once
	runtimeConfigErr    error
	runtimeConfigValues map[string]string
	runtimeConfigLoaded bool
	runtimeConfigPath   string
	runtimeConfigPhase  string
)

func ensureRuntimeConfigLoaded() error {
	runtimeConfigOnce.Do(func() {
		runtimeConfigValues = make(map[string]string)

		phase := strings.TrimSpace(os.Getenv("CONFIG_PHASE"))
		if phase == "" {
			phase = "local"
		}
		runtimeConfigPhase = phase

		configPath := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
		explicitPath := configPath != ""
		if configPath == "" {
			configPath = filepath.Join("config", "config-"+phase+".yaml")
		}

		body, err := os.ReadFile(configPath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) && !explicitPath {
				return
			}
			runtimeConfigErr = fmt.Errorf("read config file %q: %w", configPath, err)
			return
		}

		raw := make(map[string]any)
		if err := yaml.Unmarshal(body, &raw); err != nil {
			runtimeConfigErr = fmt.Errorf("parse config file %q: %w", configPath, err)
			return
		}

		flattened, err := flattenConfig(raw)
		if err != nil {
			runtimeConfigErr = fmt.Errorf("flatten config file %q: %w", configPath, err)
			return
		}

		runtimeConfigValues = flattened
		runtimeConfigLoaded = true
		if absPath, err := filepath.Abs(configPath); err == nil {
			runtimeConfigPath = absPath
		} else {
			runtimeConfigPath = configPath
		}
	})
	return runtimeConfigErr
}

func flattenConfig(raw map[string]any) (map[string]string, error) {
	out := make(map[string]string)
	for key, value := range raw {
		segment := normalizeKeySegment(key)
		if segment == "" {
			continue
		}
		if err := flattenConfigValue(segment, value, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func flattenConfigValue(prefix string, value any, out map[string]string) error {
	switch typed := value.(type) {
	case map[string]any:
		for key, child := range typed {
			segment := normalizeKeySegment(key)
			if segment == "" {
				continue
			}
			if err := flattenConfigValue(prefix+"_"+segment, child, out); err != nil {
				return err
			}
		}
		return nil
	case []any:
		parts := make([]string, 0, len(typed))
		for _, item := range typed {
			switch scalar := item.(type) {
			case string:
				if strings.TrimSpace(scalar) == "" {
					continue
				}
				parts = append(parts, strings.TrimSpace(scalar))
			case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
				parts = append(parts, fmt.Sprint(scalar))
			default:
				return fmt.Errorf("unsupported list item type %T under %q", item, prefix)
			}
		}
		out[prefix] = strings.Join(parts, ",")
		return nil
	case nil:
		return nil
	default:
		out[prefix] = fmt.Sprint(typed)
		return nil
	}
}

func normalizeKeySegment(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(raw))
	lastUnderscore := false

	for _, r := range raw {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
			lastUnderscore = false
			continue
		}
		if !lastUnderscore && b.Len() > 0 {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}

	return strings.Trim(b.String(), "_")
}

func valueForKey(key string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}

	if err := ensureRuntimeConfigLoaded(); err != nil {
		return ""
	}

	if value := strings.TrimSpace(runtimeConfigValues[key]); value != "" {
		return value
	}
	return ""
}
