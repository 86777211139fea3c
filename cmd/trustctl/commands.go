package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/adapters/security"
	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/contracts"
)

// call runs one request and prints the data payload.
func call(cmd *cobra.Command, method, path string, query url.Values, body any) error {
	data, err := newClient().do(cmd.Context(), method, path, query, body)
	if err != nil {
		return err
	}
	return printData(cmd.OutOrStdout(), data)
}

func get(path string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return call(cmd, http.MethodGet, fmt.Sprintf(path, url.PathEscape(args[0])), nil, nil)
	}
}

func newStakingCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "staking", Short: "Stake, unstake and slash USDC stakes"}

	var owner, tier string
	stake := &cobra.Command{
		Use:   "stake <amount>",
		Short: "Lock tokens as stake",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, http.MethodPost, "/v1/trust/staking/stake", nil,
				contracts.StakeRequest{Owner: owner, Amount: args[0], TargetTier: tier})
		},
	}
	stake.Flags().StringVar(&owner, "owner", "", "Stake owner (defaults to --subject)")
	stake.Flags().StringVar(&tier, "target-tier", "", "Fail unless the stake reaches this tier")

	var unstakeOwner string
	unstake := &cobra.Command{
		Use:   "unstake <amount>",
		Short: "Withdraw stake after the lock period",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, http.MethodPost, "/v1/trust/staking/unstake", nil,
				contracts.UnstakeRequest{Owner: unstakeOwner, Amount: args[0]})
		},
	}
	unstake.Flags().StringVar(&unstakeOwner, "owner", "", "Stake owner (defaults to --subject)")

	var evidence []string
	slash := &cobra.Command{
		Use:   "slash <owner> <condition>",
		Short: "Slash a stake for a violation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, http.MethodPost, "/v1/trust/staking/slash", nil,
				contracts.SlashRequest{Owner: args[0], Condition: args[1], Evidence: evidence})
		},
	}
	slash.Flags().StringSliceVar(&evidence, "evidence", nil, "Evidence references")

	var reqTier string
	requirements := &cobra.Command{
		Use:   "requirements <owner>",
		Short: "Check whether a stake meets a tier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, http.MethodGet, "/v1/trust/staking/"+url.PathEscape(args[0])+"/requirements",
				url.Values{"tier": {reqTier}}, nil)
		},
	}
	requirements.Flags().StringVar(&reqTier, "tier", "BASIC", "Tier to check")

	cmd.AddCommand(
		stake, unstake, slash, requirements,
		&cobra.Command{Use: "get <owner>", Short: "Show a stake", Args: cobra.ExactArgs(1), RunE: get("/v1/trust/staking/%s")},
		&cobra.Command{Use: "history <owner>", Short: "List stake events", Args: cobra.ExactArgs(1), RunE: get("/v1/trust/staking/%s/history")},
	)
	return cmd
}

func newPaymentCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "payment", Short: "x402 payments and balances"}

	var from, currency string
	create := &cobra.Command{
		Use:   "create <to> <amount> <resource>",
		Short: "Create a pending payment",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, http.MethodPost, "/v1/trust/payments", nil, contracts.CreatePaymentRequest{
				From: from, To: args[0], Amount: args[1], Currency: currency, Resource: args[2],
			})
		},
	}
	create.Flags().StringVar(&from, "from", "", "Payer (defaults to --subject)")
	create.Flags().StringVar(&currency, "currency", "USDC", "Currency")

	var proofFile string
	complete := &cobra.Command{
		Use:   "complete <payment-id>",
		Short: "Complete a payment, optionally with a proof read from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req contracts.CompletePaymentRequest
			if proofFile != "" {
				var proof contracts.PaymentProof
				if err := readJSONFile(proofFile, &proof); err != nil {
					return err
				}
				req.Proof = &proof
			}
			return call(cmd, http.MethodPost, "/v1/trust/payments/"+url.PathEscape(args[0])+"/complete", nil, req)
		},
	}
	complete.Flags().StringVar(&proofFile, "proof", "", "Path to a payment proof JSON document")

	reasonCmd := func(use, short, action string) *cobra.Command {
		var reason string
		c := &cobra.Command{
			Use:   use + " <payment-id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return call(cmd, http.MethodPost, "/v1/trust/payments/"+url.PathEscape(args[0])+"/"+action, nil,
					contracts.ReasonRequest{Reason: reason})
			},
		}
		c.Flags().StringVar(&reason, "reason", "", "Reason")
		return c
	}

	cmd.AddCommand(
		create, complete,
		reasonCmd("refund", "Refund a completed payment", "refund"),
		reasonCmd("dispute", "Dispute a payment", "dispute"),
		&cobra.Command{Use: "get <payment-id>", Short: "Show a payment", Args: cobra.ExactArgs(1), RunE: get("/v1/trust/payments/%s")},
		&cobra.Command{Use: "balance <user>", Short: "Show a USDC balance", Args: cobra.ExactArgs(1), RunE: get("/v1/trust/users/%s/balance")},
		&cobra.Command{Use: "stats <user>", Short: "Show payment statistics", Args: cobra.ExactArgs(1), RunE: get("/v1/trust/users/%s/payment-statistics")},
	)
	return cmd
}

func newChannelCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "channel", Short: "Micropayment channels with a reserved deposit"}

	var duration time.Duration
	open := &cobra.Command{
		Use:   "open <payee> <deposit>",
		Short: "Reserve a deposit toward a payee",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, http.MethodPost, "/v1/trust/channels", nil, contracts.OpenChannelRequest{
				Payee: args[0], Deposit: args[1], DurationSeconds: int64(duration / time.Second),
			})
		},
	}
	open.Flags().DurationVar(&duration, "duration", 24*time.Hour, "Channel lifetime")

	var payer string
	payerQuery := func() url.Values {
		if payer == "" {
			return nil
		}
		return url.Values{"payer": {payer}}
	}
	closeCmd := &cobra.Command{
		Use:   "close <payee>",
		Short: "Close a channel and return its deposit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, http.MethodDelete, "/v1/trust/channels/"+url.PathEscape(args[0]), payerQuery(), nil)
		},
	}
	getCmd := &cobra.Command{
		Use:   "get <payee>",
		Short: "Show a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, http.MethodGet, "/v1/trust/channels/"+url.PathEscape(args[0]), payerQuery(), nil)
		},
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List a payer's open channels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return call(cmd, http.MethodGet, "/v1/trust/channels", payerQuery(), nil)
		},
	}
	cmd.PersistentFlags().StringVar(&payer, "payer", "", "Payer (defaults to --subject)")

	cmd.AddCommand(open, closeCmd, getCmd, list)
	return cmd
}

func newEscrowCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "escrow", Short: "Performance escrow deals"}

	var threshold float64
	var verificationHash string
	create := &cobra.Command{
		Use:   "create <payee> <amount>",
		Short: "Create an escrow deal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, http.MethodPost, "/v1/trust/escrow", nil, contracts.CreateEscrowRequest{
				Payee: args[0], TotalAmount: args[1], PerformanceThreshold: threshold, VerificationHash: verificationHash,
			})
		},
	}
	create.Flags().Float64Var(&threshold, "threshold", 0.7, "Performance threshold in [0,1]")
	create.Flags().StringVar(&verificationHash, "verification-hash", "", "Hash of the off-chain verification terms")

	var metrics contracts.PerformanceMetrics
	var maxReleasable string
	release := &cobra.Command{
		Use:   "release <deal-id>",
		Short: "Submit performance proof and release funds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, http.MethodPost, "/v1/trust/escrow/"+url.PathEscape(args[0])+"/release", nil,
				contracts.ReleaseEscrowRequest{Proof: metrics, MaxReleasable: maxReleasable})
		},
	}
	release.Flags().Float64Var(&metrics.EngagementRate, "engagement", 0, "Engagement rate")
	release.Flags().Int64Var(&metrics.Conversions, "conversions", 0, "Conversions")
	release.Flags().Float64Var(&metrics.QualityRating, "quality", 0, "Quality score")
	release.Flags().StringVar(&maxReleasable, "max", "", "Cap for this release")

	var reason string
	var evidence []string
	slash := &cobra.Command{
		Use:   "slash <deal-id>",
		Short: "Slash an escrow deal back to the payer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, http.MethodPost, "/v1/trust/escrow/"+url.PathEscape(args[0])+"/slash", nil,
				contracts.SlashDealRequest{Reason: reason, Evidence: evidence})
		},
	}
	slash.Flags().StringVar(&reason, "reason", "", "Slash reason")
	slash.Flags().StringSliceVar(&evidence, "evidence", nil, "Evidence references")

	activate := &cobra.Command{
		Use:   "activate <deal-id>",
		Short: "Activate a pending deal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, http.MethodPost, "/v1/trust/escrow/"+url.PathEscape(args[0])+"/activate", nil, struct{}{})
		},
	}

	cmd.AddCommand(
		create, activate, release, slash,
		&cobra.Command{Use: "get <deal-id>", Short: "Show a deal", Args: cobra.ExactArgs(1), RunE: get("/v1/trust/escrow/%s")},
		&cobra.Command{Use: "deals <user>", Short: "List a user's deals", Args: cobra.ExactArgs(1), RunE: get("/v1/trust/users/%s/deals")},
		&cobra.Command{
			Use:   "stats",
			Short: "Show slashing statistics",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return call(cmd, http.MethodGet, "/v1/trust/escrow/statistics", nil, nil)
			},
		},
	)
	return cmd
}

func newTrustCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "trust", Short: "Trust scores and reports"}
	cmd.AddCommand(
		&cobra.Command{Use: "score <user>", Short: "Show the composite trust score", Args: cobra.ExactArgs(1), RunE: get("/v1/trust/users/%s/score")},
		&cobra.Command{Use: "report <user>", Short: "Show the full trust report", Args: cobra.ExactArgs(1), RunE: get("/v1/trust/users/%s/report")},
	)
	return cmd
}

func newCampaignCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "campaign", Short: "Trust-gated campaigns"}
	execute := &cobra.Command{
		Use:   "execute <request.json>",
		Short: "Execute a campaign described by a JSON request file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req contracts.ExecuteCampaignRequest
			if err := readJSONFile(args[0], &req); err != nil {
				return err
			}
			return call(cmd, http.MethodPost, "/v1/trust/campaigns", nil, req)
		},
	}
	cmd.AddCommand(
		execute,
		&cobra.Command{Use: "get <campaign-id>", Short: "Show a campaign", Args: cobra.ExactArgs(1), RunE: get("/v1/trust/campaigns/%s")},
	)
	return cmd
}

func newTokenCmd() *cobra.Command {
	var ttl time.Duration
	var issuer string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for --subject and --role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flagJWTSecret == "" {
				return fmt.Errorf("--jwt-secret is required")
			}
			if flagSubject == "" {
				return fmt.Errorf("--subject is required")
			}
			verifier, err := security.NewHMACVerifier(flagJWTSecret, issuer)
			if err != nil {
				return err
			}
			token, err := verifier.Sign(flagSubject, flagRole, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	cmd.Flags().StringVar(&issuer, "issuer", os.Getenv("JWT_ISSUER"), "Token issuer")
	return cmd
}

func readJSONFile(path string, dst any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
