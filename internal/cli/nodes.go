package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/sglre6355/sgrlink/internal/bot"
	"github.com/sglre6355/sgrlink/internal/modules/music_player"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/infrastructure"
)

var (
	probeTimeout time.Duration
	probeUserID  uint64
)

var (
	okColor   = color.New(color.FgHiGreen, color.Bold)
	failColor = color.New(color.FgHiRed, color.Bold)
	dimColor  = color.New(color.FgHiBlack)
)

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "Check that the configured Lavalink nodes are reachable",
	Long: `Connects to every node from LAVALINK_NODES and LAVALINK_NODES_FILE,
prints its version, sources and load, and disconnects again.`,
	RunE: runNodes,
}

func init() {
	nodesCmd.Flags().DurationVarP(&probeTimeout, "timeout", "t", 10*time.Second, "time allowed per node")
	nodesCmd.Flags().Uint64Var(&probeUserID, "user-id", 0, "User-Id sent to the nodes (default: derived from DISCORD_TOKEN)")
	rootCmd.AddCommand(nodesCmd)
}

// probeResult is the outcome of probing one node.
type probeResult struct {
	config  infrastructure.NodeConfig
	version string
	sources []string
	players int
	load    float64
	latency time.Duration
	err     error
}

func runNodes(cmd *cobra.Command, args []string) error {
	cfg, err := music_player.LoadConfig()
	if err != nil {
		return err
	}
	configs, err := cfg.NodeConfigs()
	if err != nil {
		return err
	}

	userID := snowflake.ID(probeUserID)
	if userID == 0 {
		if token := os.Getenv("DISCORD_TOKEN"); token != "" {
			if id, err := bot.UserIDFromToken(token); err == nil {
				userID = id
			}
		}
	}

	results := make([]probeResult, len(configs))
	var wg sync.WaitGroup
	for idx, nodeCfg := range configs {
		wg.Go(func() {
			results[idx] = probeNode(cmd.Context(), nodeCfg, userID, cfg.ClientName)
		})
	}
	wg.Wait()

	failed := printProbeResults(cmd.OutOrStdout(), results)
	if failed > 0 {
		return fmt.Errorf("%d of %d nodes unreachable", failed, len(results))
	}
	return nil
}

func probeNode(ctx context.Context, cfg infrastructure.NodeConfig, userID snowflake.ID, clientName string) probeResult {
	result := probeResult{config: cfg}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	bus := infrastructure.NewChannelEventBus(infrastructure.DefaultEventBufferSize)
	defer bus.Close()

	node, err := infrastructure.NewNode(cfg, userID, clientName, bus)
	if err != nil {
		result.err = err
		return result
	}
	defer node.Destroy("probe finished")

	start := time.Now()
	if err := node.Connect(ctx); err != nil {
		result.err = err
		return result
	}
	result.latency = time.Since(start)

	if version, err := node.FetchVersion(ctx); err == nil {
		result.version = version
	}
	info := node.Info()
	if info == nil {
		info, err = node.FetchInfo(ctx)
		if err != nil {
			result.err = err
			return result
		}
	}
	if result.version == "" {
		result.version = info.Version
	}
	result.sources = info.SourceManagers

	stats, err := node.FetchStats(ctx)
	if err != nil {
		result.err = err
		return result
	}
	result.players = stats.Players
	result.load = stats.LavalinkLoad
	return result
}

// printProbeResults writes one status line per node and returns the number
// of failures.
func printProbeResults(w io.Writer, results []probeResult) int {
	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
			failColor.Fprint(w, "✗ ")
			fmt.Fprintf(w, "%s %s\n", r.config.ID, dimColor.Sprint(r.config.Address()))
			fmt.Fprintf(w, "    %v\n", r.err)
			continue
		}

		okColor.Fprint(w, "✓ ")
		fmt.Fprintf(w, "%s %s %s\n", r.config.ID, dimColor.Sprint(r.config.Address()),
			dimColor.Sprintf("(%s)", r.latency.Round(time.Millisecond)))
		fmt.Fprintf(w, "    version: %s\n", r.version)
		fmt.Fprintf(w, "    sources: %s\n", strings.Join(r.sources, ", "))
		fmt.Fprintf(w, "    players: %d, load: %.2f%%\n", r.players, r.load*100)
	}
	return failed
}
