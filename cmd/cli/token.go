package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/theblitlabs/parity-stake/internal/core/config"
	"github.com/theblitlabs/parity-stake/internal/utils"
	"github.com/theblitlabs/parity-stake/pkg/keystore"
	"github.com/theblitlabs/parity-stake/pkg/logger"
	"github.com/theblitlabs/parity-stake/pkg/wallet"
)

// TokenCommand issues an API bearer token for an account.
func TokenCommand() *cobra.Command {
	log := logger.WithComponent("token")

	return utils.CreateCommand(utils.CommandConfig{
		Use:     "token",
		Short:   "Issue an API token for an account",
		Example: "parity-stake token --address 0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		RunFunc: func(cmd *cobra.Command, args []string) error {
			address, _ := cmd.Flags().GetString("address")
			privateKey, _ := cmd.Flags().GetString("private-key")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			save, _ := cmd.Flags().GetBool("save")
			keystoreDir, _ := cmd.Flags().GetString("keystore-dir")

			account, err := resolveAccount(address, privateKey)
			if err != nil {
				return err
			}

			cfg, err := config.GetConfigManager().GetConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if ttl <= 0 {
				if ttl, err = cfg.Auth.TokenTTLDuration(); err != nil {
					return err
				}
			}

			token, err := wallet.GenerateToken(cfg.Auth.JWTSecret, account, ttl)
			if err != nil {
				return err
			}

			if save {
				path, err := saveToKeystore(keystoreDir, privateKey, token, time.Now())
				if err != nil {
					return err
				}
				log.Info().Str("keystore", path).Msg("Saved credentials to keystore")
			}

			log.Info().Str("address", account.Hex()).Dur("ttl", ttl).Msg("Issued API token")
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
		Flags: map[string]utils.Flag{
			"address": {
				Type:        utils.FlagTypeString,
				Shorthand:   "a",
				Description: "Account address the token authenticates",
			},
			"private-key": {
				Type:        utils.FlagTypeString,
				Shorthand:   "k",
				Description: "Derive the account from a hex private key instead of --address",
			},
			"ttl": {
				Type:        utils.FlagTypeDuration,
				Description: "Token lifetime; defaults to AUTH_TOKEN_TTL",
			},
			"save": {
				Type:        utils.FlagTypeBool,
				Description: "Store the token, and the private key if given, in the keystore",
			},
			"keystore-dir": {
				Type:        utils.FlagTypeString,
				Description: "Keystore directory; defaults to ~/.parity",
			},
		},
	}, log)
}

// saveToKeystore writes the issued token, and the private key when one was
// given, to the keystore in dir. It returns the keystore path.
func saveToKeystore(dir, privateKey, token string, now time.Time) (string, error) {
	cfg, err := keystore.DefaultConfig()
	if dir != "" {
		cfg, err = keystore.Config{DirPath: dir, FileName: keystore.FileName}, nil
	}
	if err != nil {
		return "", err
	}
	ks, err := keystore.NewKeystore(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to create keystore: %w", err)
	}
	if privateKey != "" {
		if _, err := ks.SavePrivateKey(privateKey); err != nil {
			return "", fmt.Errorf("failed to save private key: %w", err)
		}
	}
	if err := ks.SaveToken(token, now); err != nil {
		return "", fmt.Errorf("failed to save token: %w", err)
	}
	return ks.Path(), nil
}

func resolveAccount(address, privateKey string) (common.Address, error) {
	switch {
	case address != "" && privateKey != "":
		return common.Address{}, fmt.Errorf("use either --address or --private-key, not both")
	case privateKey != "":
		key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKey, "0x"))
		if err != nil {
			return common.Address{}, fmt.Errorf("invalid private key format: %w", err)
		}
		return crypto.PubkeyToAddress(key.PublicKey), nil
	case common.IsHexAddress(address):
		return common.HexToAddress(address), nil
	case address == "":
		return common.Address{}, fmt.Errorf("an --address or --private-key is required")
	default:
		return common.Address{}, fmt.Errorf("invalid address %q", address)
	}
}
