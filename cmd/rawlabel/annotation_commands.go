package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"rawlabel/internal/annotation"
	"rawlabel/internal/api"
	"rawlabel/internal/services"
)

func newAnnotationCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newProposeCommand(ctx),
		newWithdrawCommand(ctx),
		newVoteCommand(ctx),
		newConsensusCommand(ctx),
		newProposalsCommand(ctx),
		newValuesCommand(ctx),
	}
}

func keyList() string {
	names := make([]string, len(annotation.Keys))
	for i, key := range annotation.Keys {
		names[i] = string(key)
	}
	return strings.Join(names, ", ")
}

func newProposeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "propose <file> <key> <value>",
		Short: "Propose a label value (an empty value withdraws)",
		Long:  "Propose a value for one key of an image. Keys: " + keyList() + ".",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, key, err := sourceAndKey(args[0], args[1])
			if err != nil {
				return err
			}
			user, err := ctx.user()
			if err != nil {
				return err
			}
			store, err := ctx.annotationStore(cmd.Context())
			if err != nil {
				return err
			}
			id, err := store.Propose(cmd.Context(), source, key, user, args[2])
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, api.ProposeResponse{ID: int64(id)})
			}
			if id == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Withdrew %s proposal by %s\n", key, user)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Proposal %d: %s = %q by %s\n", id, key, args[2], user)
			return nil
		},
	}
}

func newWithdrawCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "withdraw <file> <key>",
		Short: "Withdraw your proposal for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, key, err := sourceAndKey(args[0], args[1])
			if err != nil {
				return err
			}
			user, err := ctx.user()
			if err != nil {
				return err
			}
			store, err := ctx.annotationStore(cmd.Context())
			if err != nil {
				return err
			}
			if err := store.Withdraw(cmd.Context(), source, key, user); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Withdrew %s proposal by %s\n", key, user)
			return nil
		},
	}
}

func newVoteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "vote <proposal-id> <weight>",
		Short: "Vote on a proposal (re-voting replaces your weight)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid proposal id %q", args[0])
			}
			weight, err := strconv.Atoi(strings.TrimSpace(args[1]))
			if err != nil {
				return fmt.Errorf("%w: %q is not an integer", services.ErrInvalidWeight, args[1])
			}
			user, err := ctx.user()
			if err != nil {
				return err
			}
			store, err := ctx.annotationStore(cmd.Context())
			if err != nil {
				return err
			}
			if err := store.Vote(cmd.Context(), annotation.ProposalID(id), user, weight); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s voted %+d on proposal %d\n", user, weight, id)
			return nil
		},
	}
}

func newConsensusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "consensus <file> [key]",
		Short: "Show the accepted label values of an image",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := sourceArg(args[0])
			if err != nil {
				return err
			}
			store, err := ctx.annotationStore(cmd.Context())
			if err != nil {
				return err
			}

			decided := map[annotation.Key]annotation.Consensus{}
			if len(args) == 2 {
				key, err := annotation.ParseKey(args[1])
				if err != nil {
					return err
				}
				c, err := store.Consensus(cmd.Context(), source, key)
				if err != nil {
					return err
				}
				decided[key] = c
			} else if decided, err = store.Annotations(cmd.Context(), source); err != nil {
				return err
			}

			if ctx.jsonOutput() {
				resp := api.AnnotationsResponse{Source: source, Annotations: map[string]api.Consensus{}}
				for key, c := range decided {
					resp.Annotations[string(key)] = api.FromConsensus(c)
				}
				return writeJSON(cmd, resp)
			}
			if len(decided) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No labels yet")
				return nil
			}
			var rows [][]string
			for _, key := range annotation.Keys {
				c, ok := decided[key]
				if !ok {
					continue
				}
				rows = append(rows, []string{string(key), c.Value, strconv.Itoa(c.Score), strconv.Itoa(c.Support), strconv.Itoa(c.Contenders)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Key", "Value", "Score", "Support", "Contenders"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
}

func newProposalsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "proposals <file> <key>",
		Short: "List live proposals for one key with their tallies",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, key, err := sourceAndKey(args[0], args[1])
			if err != nil {
				return err
			}
			store, err := ctx.annotationStore(cmd.Context())
			if err != nil {
				return err
			}
			tallies, err := store.Proposals(cmd.Context(), source, key)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				resp := api.ProposalListResponse{Source: source, Key: string(key), Proposals: []api.Proposal{}}
				for _, t := range tallies {
					resp.Proposals = append(resp.Proposals, api.FromTally(t))
				}
				return writeJSON(cmd, resp)
			}
			if len(tallies) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No proposals")
				return nil
			}
			rows := make([][]string, 0, len(tallies))
			for _, t := range tallies {
				rows = append(rows, []string{
					strconv.Itoa(t.Rank), strconv.FormatInt(int64(t.ID), 10), t.Value, t.Author,
					strconv.Itoa(t.Weight), strconv.Itoa(t.ValueScore), strconv.Itoa(len(t.Votes)),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Rank", "ID", "Value", "Author", "Weight", "Value Score", "Votes"}, rows,
				[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
}

func newValuesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "values <key> [prefix]",
		Short: "List values already proposed for a key",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := annotation.ParseKey(args[0])
			if err != nil {
				return err
			}
			var prefix string
			if len(args) == 2 {
				prefix = args[1]
			}
			store, err := ctx.annotationStore(cmd.Context())
			if err != nil {
				return err
			}
			values, err := store.DistinctValues(cmd.Context(), key, prefix)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				if values == nil {
					values = []string{}
				}
				return writeJSON(cmd, api.ValuesResponse{Key: string(key), Values: values})
			}
			for _, value := range values {
				fmt.Fprintln(cmd.OutOrStdout(), value)
			}
			return nil
		},
	}
}

func sourceAndKey(rawSource, rawKey string) (string, annotation.Key, error) {
	source, err := sourceArg(rawSource)
	if err != nil {
		return "", "", err
	}
	key, err := annotation.ParseKey(rawKey)
	if err != nil {
		return "", "", fmt.Errorf("%w (valid keys: %s)", err, keyList())
	}
	return source, key, nil
}
