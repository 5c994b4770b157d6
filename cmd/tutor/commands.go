package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-go/vai-tutor/pkg/core/types"
	"github.com/vango-go/vai-tutor/pkg/tutor/topics"
)

func newTopicsCmd(load func() (*app, error)) *cobra.Command {
	var age int
	cmd := &cobra.Command{
		Use:   "topics [--age n]",
		Short: "List the topics a learner can pick",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			list := a.catalog.All()
			if age > 0 {
				list = a.catalog.ForAge(age)
			}
			if len(list) == 0 {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "no topics for age %d\n", age)
				return nil
			}
			printTopics(cmd, list)
			return nil
		},
	}
	cmd.Flags().IntVar(&age, "age", 0, "only topics suitable for this age")
	return cmd
}

func printTopics(cmd *cobra.Command, list []topics.Topic) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tTOPIC\tAGES\tDESCRIPTION")
	for _, t := range list {
		_, _ = fmt.Fprintf(tw, "%s\t%s %s\t%s\t%s\n", t.ID, t.Emoji, t.Name, t.AgeRange, t.Description)
	}
	_ = tw.Flush()
}

func newProfileCmd(load func() (*app, error)) *cobra.Command {
	var name, voice string
	cmd := &cobra.Command{
		Use:   "profile [--name n] [--voice id]",
		Short: "Show the learner profile, or change its name or voice",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			var upd types.ProfileUpdate
			if cmd.Flags().Changed("name") {
				upd.Name = &name
			}
			if cmd.Flags().Changed("voice") {
				upd.SelectedVoice = &voice
			}

			var p types.Profile
			if upd.Name != nil || upd.SelectedVoice != nil {
				p, err = a.backend.UpdateProfile(cmd.Context(), upd)
			} else {
				p, err = a.backend.GetProfile(cmd.Context())
			}
			if err != nil {
				return err
			}
			current := p.SelectedVoice
			if current == "" {
				current = a.cfg.DefaultVoice
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "name:   %s\n", p.Name)
			_, _ = fmt.Fprintf(out, "email:  %s\n", p.Email)
			_, _ = fmt.Fprintf(out, "age:    %d\n", p.Age)
			_, _ = fmt.Fprintf(out, "voice:  %s\n", current)
			_, _ = fmt.Fprintf(out, "points: %d\n", p.TotalPoints)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "change the learner name")
	cmd.Flags().StringVar(&voice, "voice", "", "change the tutor voice (see `tutor voices`)")
	return cmd
}

func newVoicesCmd(load func() (*app, error)) *cobra.Command {
	var age int
	cmd := &cobra.Command{
		Use:   "voices [--age n]",
		Short: "List the tutor voices; defaults to those offered at the learner's age",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			current := ""
			if age == 0 && a.cfg.AuthToken != "" {
				p, err := a.backend.GetProfile(cmd.Context())
				if err != nil {
					return err
				}
				age = p.Age
				current = p.SelectedVoice
				if current == "" {
					current = a.cfg.DefaultVoice
				}
			}
			voices, err := a.backend.ListVoices(cmd.Context(), age)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "\tID\tNAME\tDESCRIPTION")
			for _, v := range voices {
				mark := ""
				if v.ID == current {
					mark = "*"
				}
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", mark, v.ID, v.Name, v.Description)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&age, "age", 0, "only voices offered at this age")
	return cmd
}

func newHistoryCmd(load func() (*app, error)) *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "history [--limit n --offset n]",
		Short: "List past tutoring sessions, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			page, err := a.backend.ListConversations(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(page.Conversations) == 0 {
				_, _ = fmt.Fprintln(out, "no sessions yet")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "STARTED\tTOPIC\tMINUTES\tPOINTS")
			for _, c := range page.Conversations {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", c.StartedAt.Local().Format(time.DateTime), topicOrDash(c), minutesOrDash(c), c.PointsEarned)
			}
			_ = tw.Flush()
			p := page.Pagination
			_, _ = fmt.Fprintf(out, "showing %d-%d of %d\n", p.Offset+1, p.Offset+len(page.Conversations), p.Total)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "sessions per page (1-100)")
	cmd.Flags().IntVar(&offset, "offset", 0, "sessions to skip")
	return cmd
}

func topicOrDash(c types.Conversation) string {
	if c.Topic == "" {
		return "-"
	}
	return c.Topic
}

func minutesOrDash(c types.Conversation) string {
	if !c.Ended() {
		return "-"
	}
	return fmt.Sprint(c.DurationMinutes)
}

func newRegisterCmd(load func() (*app, error)) *cobra.Command {
	var (
		req   types.RegisterRequest
		voice string
	)
	cmd := &cobra.Command{
		Use:   "register --name <name> --email <email> --age <n>",
		Short: "Create a learner and print its access token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Email) == "" {
				return fmt.Errorf("--name and --email are required")
			}
			if req.Age < types.MinLearnerAge || req.Age > types.MaxLearnerAge {
				return fmt.Errorf("--age must be between %d and %d", types.MinLearnerAge, types.MaxLearnerAge)
			}
			req.SelectedVoice = voice
			a, err := load()
			if err != nil {
				return err
			}
			reg, err := a.backend.Register(cmd.Context(), req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "registered %s (%s)\n", reg.User.Name, reg.User.ID)
			_, _ = fmt.Fprintf(out, "access token (shown once): %s\n", reg.Token)
			_, _ = fmt.Fprintf(out, "export TUTOR_AUTH_TOKEN=%s\n", reg.Token)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Name, "name", "", "learner name")
	cmd.Flags().StringVar(&req.Email, "email", "", "learner email")
	cmd.Flags().IntVar(&req.Age, "age", 0, "learner age")
	cmd.Flags().StringVar(&voice, "voice", "", "preferred tutor voice")
	return cmd
}
