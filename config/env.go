package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables
const (
	EnvRPCEndpoint    = "TIERARB_RPC_ENDPOINT"
	EnvFlashbotsRelay = "TIERARB_FLASHBOTS_RELAY"
	EnvSubmitMode     = "TIERARB_SUBMIT_MODE"
	EnvExecutorKey    = "EXECUTOR_PRIVATE_KEY"
	EnvFlashbotsKey   = "FLASHBOTS_SIGNER_KEY"
	EnvInfuraKey      = "INFURA_API_KEY"
	EnvNetwork        = "NETWORK" // mainnet, sepolia, holesky
)

// LoadEnv loads environment variables from the given .env files, or ./.env
// when none are given. A missing file is not an error.
func LoadEnv(files ...string) error {
	err := godotenv.Load(files...)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// GetEnvWithDefault gets an environment variable with a default value
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func GetRequiredEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("required environment variable %s not set", key)
	}
	return value, nil
}

// GetNetworkEndpoint derives an Infura HTTP endpoint from NETWORK
func GetNetworkEndpoint() (string, error) {
	network := GetEnvWithDefault(EnvNetwork, "mainnet")
	infuraKey, err := GetRequiredEnv(EnvInfuraKey)
	if err != nil {
		return "", err
	}

	switch network {
	case "mainnet", "sepolia", "holesky":
		return fmt.Sprintf("https://%s.infura.io/v3/%s", network, infuraKey), nil
	default:
		return "", fmt.Errorf("unsupported network: %s", network)
	}
}
