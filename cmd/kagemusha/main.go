package main

import (
	"fmt"
	"os"
	"time"

	"github.com/bdobrica/Kagemusha/common/environment"
	"github.com/bdobrica/Kagemusha/common/version"
	"github.com/bdobrica/Kagemusha/internal/kagemusha/app"
	"github.com/bdobrica/Kagemusha/internal/kagemusha/llm"
	"github.com/bdobrica/Kagemusha/internal/kagemusha/matrix"
	"github.com/bdobrica/Kagemusha/internal/kagemusha/peers"
	"github.com/bdobrica/Kagemusha/internal/kagemusha/profile"
	"github.com/bdobrica/Kagemusha/internal/kagemusha/prompt"
	"github.com/bdobrica/Kagemusha/internal/kagemusha/store"
)

func main() {
	fmt.Printf("Kagemusha\n")
	fmt.Printf("Version: %s\n", version.Version)
	fmt.Printf("Commit: %s\n", version.GitCommit)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Println()

	config, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	kagemusha, err := app.New(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize Kagemusha: %v\n", err)
		os.Exit(1)
	}
	defer kagemusha.Stop()

	if err := kagemusha.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running Kagemusha: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration from environment variables
func loadConfig() (*app.Config, error) {
	homeserver, err := environment.RequiredString("MATRIX_HOMESERVER")
	if err != nil {
		return nil, err
	}
	userID, err := environment.RequiredString("MATRIX_USER_ID")
	if err != nil {
		return nil, err
	}
	accessToken, err := environment.RequiredString("MATRIX_ACCESS_TOKEN")
	if err != nil {
		return nil, err
	}
	apiKey, err := environment.RequiredString("OPENAI_API_KEY")
	if err != nil {
		return nil, err
	}

	return &app.Config{
		DatabasePath: environment.StringOr("BOT_DOUBLE_DB_PATH", "./kagemusha.db"),
		Matrix: matrix.Config{
			Homeserver:  homeserver,
			UserID:      userID,
			AccessToken: accessToken,
			Rooms:       environment.StringSliceOr("MATRIX_ROOMS", nil),
		},
		LLM: llm.Config{
			APIKey:          apiKey,
			BaseURL:         environment.StringOr("OPENAI_BASE_URL", ""),
			Model:           environment.StringOr("OPENAI_MODEL", ""),
			ReasoningEffort: environment.StringOr("OPENAI_REASONING_EFFORT", ""),
			TextVerbosity:   environment.StringOr("OPENAI_TEXT_VERBOSITY", ""),
		},
		PersonasPath:           environment.StringOr("PERSONAS_PATH", ""),
		AutoImitateProbability: environment.FloatOr("AUTO_IMITATE_PROBABILITY", 0.2),
		Limits: store.Limits{
			MaxMessagesPerUser: environment.IntOr("MAX_MESSAGES_PER_USER", store.DefaultLimits.MaxMessagesPerUser),
			MinTokensToStore:   environment.IntOr("MIN_TOKENS_TO_STORE", store.DefaultLimits.MinTokensToStore),
		},
		Profile: profile.Config{
			MinMessages:    environment.IntOr("MIN_MESSAGES_FOR_PROFILE", profile.DefaultConfig.MinMessages),
			SampleSize:     environment.IntOr("PROMPT_SAMPLE_SIZE", profile.DefaultConfig.SampleSize),
			RecentMessages: environment.IntOr("STYLE_RECENT_MESSAGES", profile.DefaultConfig.RecentMessages),
		},
		Prompt: prompt.Config{
			ContextMessages:    environment.IntOr("DIALOG_CONTEXT_MESSAGES", prompt.DefaultConfig.ContextMessages),
			PeerProfileCount:   environment.IntOr("PEER_PROFILE_COUNT", prompt.DefaultConfig.PeerProfileCount),
			PeerProfileSamples: environment.IntOr("PEER_PROFILE_SAMPLES", prompt.DefaultConfig.PeerProfileSamples),
		},
		Peers: peers.Config{
			ReanalyzeInterval: environment.DurationOr("REANALYZE_INTERVAL", peers.DefaultConfig.ReanalyzeInterval),
			InteractionStep:   environment.IntOr("REANALYZE_STEP", peers.DefaultConfig.InteractionStep),
			MaxExcerpts:       environment.IntOr("REANALYZE_MAX_EXCERPTS", peers.DefaultConfig.MaxExcerpts),
		},
		PeersTickInterval: environment.DurationOr("REANALYZE_TICK_INTERVAL", 15*time.Minute),
		GenerationTimeout: environment.DurationOr("GENERATION_TIMEOUT", 2*time.Minute),
	}, nil
}
