package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/adapters/security"
)

var (
	flagServer    string
	flagSubject   string
	flagRole      string
	flagJWTSecret string
	flagOutput    string
	flagTimeout   time.Duration
	flagIdemKey   string
)

// rootCmd is an operator client for the trust layer REST API. With
// --jwt-secret it mints a short-lived HS256 token for --subject, otherwise it
// sends the subject as the bearer value with X-Actor-Role.
var rootCmd = &cobra.Command{
	Use:           "trustctl",
	Short:         "Trust layer operator client",
	Long:          "Inspect and operate stakes, payments, escrow deals and campaigns on the trust layer service.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagServer, "server", envOr("TRUSTCTL_SERVER", "http://localhost:8080"), "Trust layer base URL")
	rootCmd.PersistentFlags().StringVar(&flagSubject, "subject", envOr("TRUSTCTL_SUBJECT", ""), "Acting subject id")
	rootCmd.PersistentFlags().StringVar(&flagRole, "role", envOr("TRUSTCTL_ROLE", "user"), "Acting role: user|verifier|arbitrator|provider|admin")
	rootCmd.PersistentFlags().StringVar(&flagJWTSecret, "jwt-secret", os.Getenv("JWT_SECRET"), "Sign a bearer token with this HS256 secret")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "json", "Output format: json|yaml")
	rootCmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", 15*time.Second, "Request timeout")
	rootCmd.PersistentFlags().StringVar(&flagIdemKey, "idempotency-key", "", "Idempotency-Key header for write commands")

	rootCmd.AddCommand(
		newStakingCmd(),
		newPaymentCmd(),
		newChannelCmd(),
		newEscrowCmd(),
		newTrustCmd(),
		newCampaignCmd(),
		newTokenCmd(),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func envOr(name, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return fallback
}

// bearer returns the Authorization value and the role header to send.
func bearer() (token, role string, err error) {
	subject := strings.TrimSpace(flagSubject)
	if subject == "" {
		return "", "", fmt.Errorf("--subject is required")
	}
	if flagJWTSecret == "" {
		return subject, flagRole, nil
	}
	verifier, err := security.NewHMACVerifier(flagJWTSecret, os.Getenv("JWT_ISSUER"))
	if err != nil {
		return "", "", err
	}
	token, err = verifier.Sign(subject, flagRole, 10*time.Minute)
	if err != nil {
		return "", "", fmt.Errorf("sign token: %w", err)
	}
	return token, "", nil
}
