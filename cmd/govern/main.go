// Package main is the entry point for the govern binary.
// It provides a CLI for operating a governance deployment: creating
// DAOs, managing members, submitting proposals, voting, and executing.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/microaidao/governance/pkg/api"
	"github.com/spf13/cobra"
)

const defaultServerURL = "http://localhost:8080"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "govern",
		Short: "CLI for the governance API",
		Long: `govern operates a running governd deployment over its HTTP API.

Example:
  govern dao init my-dao --authority alice --human-quorum 51 --ai-quorum 51
  govern member add my-dao bob --authority alice --class human --power 10
  govern proposal create my-dao --proposer alice --title "Fund research"
  govern vote my-dao 0 --voter bob --class human --choice for`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringP("server", "s", defaultServerURL, "Governance API base URL")

	rootCmd.AddCommand(newDAOCmd())
	rootCmd.AddCommand(newMemberCmd())
	rootCmd.AddCommand(newProposalCmd())
	rootCmd.AddCommand(newVoteCmd())
	rootCmd.AddCommand(newExecuteCmd())
	rootCmd.AddCommand(newTreasuryCmd())

	return rootCmd
}

func clientFor(cmd *cobra.Command) *api.Client {
	server, _ := cmd.Flags().GetString("server")
	return api.NewClient(server)
}

// printJSON renders API responses for human consumption.
func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func newDAOCmd() *cobra.Command {
	daoCmd := &cobra.Command{
		Use:   "dao",
		Short: "Create and inspect DAOs",
	}

	initCmd := &cobra.Command{
		Use:   "init <name>",
		Short: "Initialize a new DAO",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			authority, _ := cmd.Flags().GetString("authority")
			description, _ := cmd.Flags().GetString("description")
			humanQuorum, _ := cmd.Flags().GetUint8("human-quorum")
			aiQuorum, _ := cmd.Flags().GetUint8("ai-quorum")
			treasury, _ := cmd.Flags().GetUint64("treasury")

			dao, err := clientFor(cmd).InitializeDAO(cmd.Context(), api.InitializeDAORequest{
				Name:                 args[0],
				Description:          description,
				Authority:            authority,
				HumanQuorumThreshold: humanQuorum,
				AIQuorumThreshold:    aiQuorum,
				InitialTreasury:      treasury,
			})
			if err != nil {
				return err
			}
			return printJSON(dao)
		},
	}
	initCmd.Flags().String("authority", "", "DAO authority identity")
	initCmd.Flags().String("description", "", "DAO description")
	initCmd.Flags().Uint8("human-quorum", 51, "Human quorum threshold percentage (1-100)")
	initCmd.Flags().Uint8("ai-quorum", 51, "AI quorum threshold percentage (1-100)")
	initCmd.Flags().Uint64("treasury", 0, "Initial treasury balance")
	_ = initCmd.MarkFlagRequired("authority")

	registryCmd := &cobra.Command{
		Use:   "init-registry <dao>",
		Short: "Initialize the member registry of a DAO",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			authority, _ := cmd.Flags().GetString("authority")
			registry, err := clientFor(cmd).InitializeRegistry(cmd.Context(), args[0], authority)
			if err != nil {
				return err
			}
			return printJSON(registry)
		},
	}
	registryCmd.Flags().String("authority", "", "Registry authority identity")
	_ = registryCmd.MarkFlagRequired("authority")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all DAOs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			daos, err := clientFor(cmd).ListDAOs(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(daos)
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show one DAO",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dao, err := clientFor(cmd).GetDAO(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(dao)
		},
	}

	daoCmd.AddCommand(initCmd, registryCmd, listCmd, showCmd)
	return daoCmd
}

func newMemberCmd() *cobra.Command {
	memberCmd := &cobra.Command{
		Use:   "member",
		Short: "Manage DAO members",
	}

	addCmd := &cobra.Command{
		Use:   "add <dao> <identity>",
		Short: "Enroll a member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			authority, _ := cmd.Flags().GetString("authority")
			class, _ := cmd.Flags().GetString("class")
			power, _ := cmd.Flags().GetUint64("power")

			member, err := clientFor(cmd).AddMember(cmd.Context(), args[0], api.AddMemberRequest{
				Authority:   authority,
				Identity:    args[1],
				Class:       class,
				VotingPower: power,
			})
			if err != nil {
				return err
			}
			return printJSON(member)
		},
	}
	addCmd.Flags().String("authority", "", "Registry authority identity")
	addCmd.Flags().String("class", "human", "Voter class (human, ai, organization)")
	addCmd.Flags().Uint64("power", 1, "Voting power")
	_ = addCmd.MarkFlagRequired("authority")

	updateCmd := &cobra.Command{
		Use:   "update <dao> <identity>",
		Short: "Update a member's voting power or active flag",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			authority, _ := cmd.Flags().GetString("authority")

			req := api.UpdateMemberRequest{Authority: authority}
			if cmd.Flags().Changed("power") {
				power, _ := cmd.Flags().GetUint64("power")
				req.VotingPower = &power
			}
			if cmd.Flags().Changed("active") {
				active, _ := cmd.Flags().GetBool("active")
				req.IsActive = &active
			}

			member, err := clientFor(cmd).UpdateMember(cmd.Context(), args[0], args[1], req)
			if err != nil {
				return err
			}
			return printJSON(member)
		},
	}
	updateCmd.Flags().String("authority", "", "Registry authority identity")
	updateCmd.Flags().Uint64("power", 0, "New voting power")
	updateCmd.Flags().Bool("active", true, "Active flag")
	_ = updateCmd.MarkFlagRequired("authority")

	listCmd := &cobra.Command{
		Use:   "list <dao>",
		Short: "List the members of a DAO",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			members, err := clientFor(cmd).ListMembers(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(members)
		},
	}

	memberCmd.AddCommand(addCmd, updateCmd, listCmd)
	return memberCmd
}

func newProposalCmd() *cobra.Command {
	proposalCmd := &cobra.Command{
		Use:   "proposal",
		Short: "Create and inspect proposals",
	}

	createCmd := &cobra.Command{
		Use:   "create <dao>",
		Short: "Submit a proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			proposer, _ := cmd.Flags().GetString("proposer")
			title, _ := cmd.Flags().GetString("title")
			description, _ := cmd.Flags().GetString("description")
			ptype, _ := cmd.Flags().GetString("type")
			period, _ := cmd.Flags().GetDuration("period")
			recipient, _ := cmd.Flags().GetString("recipient")
			amount, _ := cmd.Flags().GetUint64("amount")

			var executionData []byte
			if recipient != "" || amount > 0 {
				payload, err := json.Marshal(map[string]any{
					"recipient": recipient,
					"amount":    amount,
				})
				if err != nil {
					return err
				}
				executionData = payload
			}

			proposal, err := clientFor(cmd).CreateProposal(cmd.Context(), args[0], api.CreateProposalRequest{
				Proposer:      proposer,
				Title:         title,
				Description:   description,
				Type:          ptype,
				ExecutionData: executionData,
				VotingPeriod:  int64(period / time.Second),
			})
			if err != nil {
				return err
			}
			return printJSON(proposal)
		},
	}
	createCmd.Flags().String("proposer", "", "Proposer identity")
	createCmd.Flags().String("title", "", "Proposal title")
	createCmd.Flags().String("description", "", "Proposal description")
	createCmd.Flags().String("type", "text", "Proposal type (treasury, policy, membership, text)")
	createCmd.Flags().Duration("period", 72*time.Hour, "Voting period")
	createCmd.Flags().String("recipient", "", "Treasury transfer recipient (treasury proposals)")
	createCmd.Flags().Uint64("amount", 0, "Treasury transfer amount (treasury proposals)")
	_ = createCmd.MarkFlagRequired("proposer")
	_ = createCmd.MarkFlagRequired("title")

	listCmd := &cobra.Command{
		Use:   "list <dao>",
		Short: "List the proposals of a DAO",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			proposals, err := clientFor(cmd).ListProposals(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(proposals)
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <dao> <id>",
		Short: "Show a proposal with its quorum progress",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProposalID(args[1])
			if err != nil {
				return err
			}
			detail, err := clientFor(cmd).GetProposal(cmd.Context(), args[0], id)
			if err != nil {
				return err
			}
			return printJSON(detail)
		},
	}

	votesCmd := &cobra.Command{
		Use:   "votes <dao> <id>",
		Short: "List the vote records of a proposal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProposalID(args[1])
			if err != nil {
				return err
			}
			votes, err := clientFor(cmd).ListVotes(cmd.Context(), args[0], id)
			if err != nil {
				return err
			}
			return printJSON(votes)
		},
	}

	proposalCmd.AddCommand(createCmd, listCmd, showCmd, votesCmd)
	return proposalCmd
}

func newVoteCmd() *cobra.Command {
	voteCmd := &cobra.Command{
		Use:   "vote <dao> <proposal-id>",
		Short: "Cast a vote on a proposal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProposalID(args[1])
			if err != nil {
				return err
			}
			voter, _ := cmd.Flags().GetString("voter")
			class, _ := cmd.Flags().GetString("class")
			choice, _ := cmd.Flags().GetString("choice")
			reasoning, _ := cmd.Flags().GetString("reasoning")

			result, err := clientFor(cmd).CastVote(cmd.Context(), args[0], id, api.CastVoteRequest{
				Voter:     voter,
				Class:     class,
				Choice:    choice,
				Reasoning: reasoning,
			})
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	voteCmd.Flags().String("voter", "", "Voter identity")
	voteCmd.Flags().String("class", "human", "Voter class (human, ai, organization)")
	voteCmd.Flags().String("choice", "", "Vote choice (for, against, abstain)")
	voteCmd.Flags().String("reasoning", "", "Optional vote reasoning")
	_ = voteCmd.MarkFlagRequired("voter")
	_ = voteCmd.MarkFlagRequired("choice")
	return voteCmd
}

func newExecuteCmd() *cobra.Command {
	executeCmd := &cobra.Command{
		Use:   "execute <dao> <proposal-id>",
		Short: "Execute a succeeded proposal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProposalID(args[1])
			if err != nil {
				return err
			}
			executor, _ := cmd.Flags().GetString("executor")

			proposal, err := clientFor(cmd).ExecuteProposal(cmd.Context(), args[0], id, executor)
			if err != nil {
				return err
			}
			return printJSON(proposal)
		},
	}
	executeCmd.Flags().String("executor", "", "Executor identity (must be the DAO authority)")
	_ = executeCmd.MarkFlagRequired("executor")
	return executeCmd
}

func newTreasuryCmd() *cobra.Command {
	treasuryCmd := &cobra.Command{
		Use:   "treasury <dao> [holder]",
		Short: "Show a treasury account balance",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			holder := "treasury"
			if len(args) == 2 {
				holder = args[1]
			}
			account, err := clientFor(cmd).GetTreasury(cmd.Context(), args[0], holder)
			if err != nil {
				return err
			}
			return printJSON(account)
		},
	}
	return treasuryCmd
}

func parseProposalID(arg string) (uint64, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid proposal id %q: %w", arg, err)
	}
	return id, nil
}
